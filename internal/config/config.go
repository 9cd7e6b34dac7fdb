// Package config loads process configuration for printdesk.
//
// Sources, highest priority first:
//  1. Environment variables
//  2. Config file (~/.printdesk/config.yaml or ./config.yaml)
//  3. Defaults
//
// This covers process-level settings only (database, model identities,
// chunker geometry). Operator-tunable values such as retrieval thresholds
// and bot prompts live in the app_settings table, see internal/settings.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/spf13/viper"
)

var (
	// ErrMissingAPIKey indicates GEMINI_API_KEY is not set.
	ErrMissingAPIKey = errors.New("missing API key")

	// ErrInvalidPostgresHost indicates an empty or malformed host.
	ErrInvalidPostgresHost = errors.New("invalid PostgreSQL host")

	// ErrInvalidPostgresPort indicates a port outside 1-65535.
	ErrInvalidPostgresPort = errors.New("invalid PostgreSQL port")

	// ErrInvalidChunkGeometry indicates chunk size/overlap that cannot
	// produce forward progress in the sliding window.
	ErrInvalidChunkGeometry = errors.New("invalid chunk geometry")

	// ErrInvalidEmbedderModel indicates an empty embedder model name.
	ErrInvalidEmbedderModel = errors.New("invalid embedder model")
)

// Default model identities. The embedding model fixes the vector
// dimensionality used by the kb_chunks schema; see knowledge.VectorDimension.
const (
	DefaultModel         = "gemini-2.5-flash"
	DefaultEmbedderModel = "gemini-embedding-001"
)

// Config stores printdesk process configuration.
// PostgresPassword is masked in MarshalJSON; keep it that way when adding
// new sensitive fields.
type Config struct {
	// Model identities
	ModelName     string `mapstructure:"model_name" json:"model_name"`
	EmbedderModel string `mapstructure:"embedder_model" json:"embedder_model"`

	// PostgreSQL connection
	PostgresHost     string `mapstructure:"postgres_host" json:"postgres_host"`
	PostgresPort     int    `mapstructure:"postgres_port" json:"postgres_port"`
	PostgresUser     string `mapstructure:"postgres_user" json:"postgres_user"`
	PostgresPassword string `mapstructure:"postgres_password" json:"postgres_password"` // SENSITIVE
	PostgresDBName   string `mapstructure:"postgres_db_name" json:"postgres_db_name"`
	PostgresSSLMode  string `mapstructure:"postgres_ssl_mode" json:"postgres_ssl_mode"`

	// Chunker geometry (characters)
	ChunkSize    int `mapstructure:"chunk_size" json:"chunk_size"`
	ChunkOverlap int `mapstructure:"chunk_overlap" json:"chunk_overlap"`
	ChunkMinText int `mapstructure:"chunk_min_text" json:"chunk_min_text"`

	// Path to the pdftotext binary used for PDF extraction.
	PDFToTextPath string `mapstructure:"pdftotext_path" json:"pdftotext_path"`
}

// Load reads configuration with env > file > defaults priority.
func Load() (*Config, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return nil, fmt.Errorf("getting user home directory: %w", err)
	}

	configDir := filepath.Join(home, ".printdesk")
	if err := os.MkdirAll(configDir, 0o750); err != nil {
		return nil, fmt.Errorf("creating config directory: %w", err)
	}

	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(configDir)
	v.AddConfigPath(".")

	setDefaults(v)
	bindEnvVariables(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
		// No file is fine, defaults apply.
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("parsing configuration: %w", err)
	}

	if err := cfg.applyDatabaseURL(os.Getenv("DATABASE_URL")); err != nil {
		return nil, fmt.Errorf("parsing DATABASE_URL: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating configuration: %w", err)
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("model_name", DefaultModel)
	v.SetDefault("embedder_model", DefaultEmbedderModel)

	v.SetDefault("postgres_host", "localhost")
	v.SetDefault("postgres_port", 5432)
	v.SetDefault("postgres_user", "printdesk")
	v.SetDefault("postgres_password", "printdesk_dev_password")
	v.SetDefault("postgres_db_name", "printdesk")
	v.SetDefault("postgres_ssl_mode", "disable")

	v.SetDefault("chunk_size", 500)
	v.SetDefault("chunk_overlap", 50)
	v.SetDefault("chunk_min_text", 10)

	v.SetDefault("pdftotext_path", "pdftotext")
}

func bindEnvVariables(v *viper.Viper) {
	mustBind := func(key, envVar string) {
		if err := v.BindEnv(key, envVar); err != nil {
			panic(fmt.Sprintf("BUG: failed to bind %q to %q: %v", key, envVar, err))
		}
	}

	mustBind("model_name", "PRINTDESK_MODEL_NAME")
	mustBind("embedder_model", "PRINTDESK_EMBEDDER_MODEL")
	mustBind("postgres_host", "PRINTDESK_POSTGRES_HOST")
	mustBind("postgres_port", "PRINTDESK_POSTGRES_PORT")
	mustBind("postgres_user", "PRINTDESK_POSTGRES_USER")
	mustBind("postgres_password", "PRINTDESK_POSTGRES_PASSWORD")
	mustBind("postgres_db_name", "PRINTDESK_POSTGRES_DB")
	mustBind("postgres_ssl_mode", "PRINTDESK_POSTGRES_SSL_MODE")
	mustBind("pdftotext_path", "PRINTDESK_PDFTOTEXT")

	// GEMINI_API_KEY is read by the genai client itself; Validate only
	// checks its presence.
}

// applyDatabaseURL overrides the Postgres fields from a DATABASE_URL value,
// when present. Accepts postgres:// and postgresql:// schemes.
func (c *Config) applyDatabaseURL(raw string) error {
	if raw == "" {
		return nil
	}

	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("malformed URL: %w", err)
	}
	if u.Scheme != "postgres" && u.Scheme != "postgresql" {
		return fmt.Errorf("unsupported scheme %q", u.Scheme)
	}

	if host := u.Hostname(); host != "" {
		c.PostgresHost = host
	}
	if portStr := u.Port(); portStr != "" {
		port, err := strconv.Atoi(portStr)
		if err != nil {
			return fmt.Errorf("malformed port %q: %w", portStr, err)
		}
		c.PostgresPort = port
	}
	if u.User != nil {
		if user := u.User.Username(); user != "" {
			c.PostgresUser = user
		}
		if pass, ok := u.User.Password(); ok {
			c.PostgresPassword = pass
		}
	}
	if db := strings.TrimPrefix(u.Path, "/"); db != "" {
		c.PostgresDBName = db
	}
	if mode := u.Query().Get("sslmode"); mode != "" {
		c.PostgresSSLMode = mode
	}

	return nil
}

// Validate performs fail-fast checks after loading.
func (c *Config) Validate() error {
	if c.PostgresHost == "" || strings.ContainsAny(c.PostgresHost, " \t") {
		return fmt.Errorf("%w: %q", ErrInvalidPostgresHost, c.PostgresHost)
	}
	if c.PostgresPort < 1 || c.PostgresPort > 65535 {
		return fmt.Errorf("%w: %d", ErrInvalidPostgresPort, c.PostgresPort)
	}
	if c.EmbedderModel == "" {
		return ErrInvalidEmbedderModel
	}
	if c.ChunkSize <= 0 || c.ChunkOverlap < 0 || c.ChunkOverlap >= c.ChunkSize {
		return fmt.Errorf("%w: size=%d overlap=%d", ErrInvalidChunkGeometry, c.ChunkSize, c.ChunkOverlap)
	}
	if os.Getenv("GEMINI_API_KEY") == "" {
		return fmt.Errorf("%w: GEMINI_API_KEY is not set", ErrMissingAPIKey)
	}
	return nil
}

// DSN renders a keyword/value connection string for pgxpool.
func (c *Config) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.PostgresHost, c.PostgresPort, c.PostgresUser, c.PostgresPassword,
		c.PostgresDBName, c.PostgresSSLMode,
	)
}

// maskedValue replaces secrets in serialized output. Full-width blocks so a
// real password can never be a substring of its own mask.
const maskedValue = "████████"

func maskSecret(s string) string {
	if s == "" {
		return ""
	}
	if len(s) <= 8 {
		return maskedValue
	}
	return s[:2] + "<" + maskedValue + ">" + s[len(s)-2:]
}

// MarshalJSON masks sensitive fields so the config can be logged safely.
func (c Config) MarshalJSON() ([]byte, error) {
	type alias Config
	a := alias(c)
	a.PostgresPassword = maskSecret(a.PostgresPassword)
	data, err := json.Marshal(a)
	if err != nil {
		return nil, fmt.Errorf("marshal config: %w", err)
	}
	return data, nil
}

// String implements Stringer through the masking marshaller.
func (c Config) String() string {
	data, err := c.MarshalJSON()
	if err != nil {
		return fmt.Sprintf("Config{error: %v}", err)
	}
	return string(data)
}
