package config

import (
	"errors"
	"os"
	"strings"
	"testing"
)

func validConfig() Config {
	return Config{
		ModelName:        "gemini-2.5-flash",
		EmbedderModel:    "gemini-embedding-001",
		PostgresHost:     "localhost",
		PostgresPort:     5432,
		PostgresUser:     "printdesk",
		PostgresPassword: "secret",
		PostgresDBName:   "printdesk",
		PostgresSSLMode:  "disable",
		ChunkSize:        500,
		ChunkOverlap:     50,
		ChunkMinText:     10,
		PDFToTextPath:    "pdftotext",
	}
}

func TestValidate(t *testing.T) {
	t.Setenv("GEMINI_API_KEY", "test-key")

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr error
	}{
		{name: "valid", mutate: func(*Config) {}},
		{
			name:    "empty host",
			mutate:  func(c *Config) { c.PostgresHost = "" },
			wantErr: ErrInvalidPostgresHost,
		},
		{
			name:    "port too high",
			mutate:  func(c *Config) { c.PostgresPort = 70000 },
			wantErr: ErrInvalidPostgresPort,
		},
		{
			name:    "port zero",
			mutate:  func(c *Config) { c.PostgresPort = 0 },
			wantErr: ErrInvalidPostgresPort,
		},
		{
			name:    "empty embedder model",
			mutate:  func(c *Config) { c.EmbedderModel = "" },
			wantErr: ErrInvalidEmbedderModel,
		},
		{
			name:    "overlap equals size",
			mutate:  func(c *Config) { c.ChunkOverlap = c.ChunkSize },
			wantErr: ErrInvalidChunkGeometry,
		},
		{
			name:    "zero chunk size",
			mutate:  func(c *Config) { c.ChunkSize = 0 },
			wantErr: ErrInvalidChunkGeometry,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			cfg := validConfig()
			tc.mutate(&cfg)

			err := cfg.Validate()
			if tc.wantErr == nil {
				if err != nil {
					t.Fatalf("Validate() = %v, want nil", err)
				}
				return
			}
			if !errors.Is(err, tc.wantErr) {
				t.Fatalf("Validate() = %v, want %v", err, tc.wantErr)
			}
		})
	}
}

func TestValidateMissingAPIKey(t *testing.T) {
	if err := os.Unsetenv("GEMINI_API_KEY"); err != nil {
		t.Fatal(err)
	}

	cfg := validConfig()
	if err := cfg.Validate(); !errors.Is(err, ErrMissingAPIKey) {
		t.Fatalf("Validate() = %v, want ErrMissingAPIKey", err)
	}
}

func TestApplyDatabaseURL(t *testing.T) {
	tests := []struct {
		name    string
		url     string
		check   func(t *testing.T, c Config)
		wantErr bool
	}{
		{
			name: "full URL",
			url:  "postgres://alice:pw@db.internal:6432/shop?sslmode=require",
			check: func(t *testing.T, c Config) {
				if c.PostgresHost != "db.internal" {
					t.Errorf("host = %q", c.PostgresHost)
				}
				if c.PostgresPort != 6432 {
					t.Errorf("port = %d", c.PostgresPort)
				}
				if c.PostgresUser != "alice" || c.PostgresPassword != "pw" {
					t.Errorf("credentials = %q/%q", c.PostgresUser, c.PostgresPassword)
				}
				if c.PostgresDBName != "shop" {
					t.Errorf("db = %q", c.PostgresDBName)
				}
				if c.PostgresSSLMode != "require" {
					t.Errorf("sslmode = %q", c.PostgresSSLMode)
				}
			},
		},
		{
			name: "empty URL keeps defaults",
			url:  "",
			check: func(t *testing.T, c Config) {
				if c.PostgresHost != "localhost" {
					t.Errorf("host = %q", c.PostgresHost)
				}
			},
		},
		{
			name:    "wrong scheme",
			url:     "mysql://root@localhost/db",
			wantErr: true,
		},
		{
			name:    "bad port",
			url:     "postgres://host:notaport/db",
			wantErr: true,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			cfg := validConfig()
			err := cfg.applyDatabaseURL(tc.url)
			if tc.wantErr {
				if err == nil {
					t.Fatal("expected error")
				}
				return
			}
			if err != nil {
				t.Fatalf("applyDatabaseURL() = %v", err)
			}
			tc.check(t, cfg)
		})
	}
}

func TestMarshalJSONMasksPassword(t *testing.T) {
	cfg := validConfig()
	cfg.PostgresPassword = "super_secret_password"

	data, err := cfg.MarshalJSON()
	if err != nil {
		t.Fatal(err)
	}

	out := string(data)
	if strings.Contains(out, "super_secret_password") {
		t.Errorf("password leaked in JSON: %s", out)
	}
	if !strings.Contains(out, maskedValue) {
		t.Errorf("mask missing in JSON: %s", out)
	}
}

func TestMaskSecretShortValues(t *testing.T) {
	if got := maskSecret(""); got != "" {
		t.Errorf("maskSecret(\"\") = %q", got)
	}
	if got := maskSecret("short"); got != maskedValue {
		t.Errorf("maskSecret(short) = %q, want full mask", got)
	}
	got := maskSecret("longer_than_eight")
	if strings.Contains(got, "nger_than_eig") {
		t.Errorf("middle of secret leaked: %q", got)
	}
}

func TestDSN(t *testing.T) {
	cfg := validConfig()
	dsn := cfg.DSN()
	for _, part := range []string{"host=localhost", "port=5432", "dbname=printdesk", "sslmode=disable"} {
		if !strings.Contains(dsn, part) {
			t.Errorf("DSN missing %q: %s", part, dsn)
		}
	}
}
