// Package settings reads runtime configuration from the app_settings table.
//
// Unlike process config (internal/config), these values are editable at
// runtime through the admin backoffice and are read fresh on every request,
// so handlers stay stateless and changes apply without a restart.
package settings

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Keys the assistant core reads. Values live in app_settings; a missing key
// falls back to the documented default.
const (
	// KeyMatchCount caps knowledge-base search results.
	KeyMatchCount = "bot_kb_match_count"

	// KeyMatchThreshold is the minimum similarity for a search hit.
	KeyMatchThreshold = "bot_kb_match_threshold"

	// KeySecurityGuardPrompt is the classifier system prompt. When absent
	// the security gate treats every query as safe.
	KeySecurityGuardPrompt = "bot_prompt_security_guard"

	// KeySecurityWarning is sent on a strike below the block threshold.
	KeySecurityWarning = "bot_message_security_warning"

	// KeyBlockedPermanent is sent once a user is blocked.
	KeyBlockedPermanent = "bot_message_blocked_permanent"

	// KeyRouterPrompt is the system prompt for the routing completion.
	KeyRouterPrompt = "bot_prompt_router"

	// KeyExpertPrompt is the system prompt for the synthesis completion.
	KeyExpertPrompt = "bot_prompt_expert"

	// KeyIntroMessage greets first-time users.
	KeyIntroMessage = "bot_message_intro"
)

// Defaults for the numeric knowledge-base keys.
const (
	DefaultMatchCount     = 5
	DefaultMatchThreshold = 0.5
)

// Values is one prefix read of app_settings. Typed getters fall back to
// the caller's default when the key is absent or unparseable.
type Values map[string]string

// Int returns the key parsed as an integer, or def.
func (v Values) Int(key string, def int) int {
	raw, ok := v[key]
	if !ok {
		return def
	}
	n, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil {
		return def
	}
	return n
}

// Float returns the key parsed as a float, or def.
func (v Values) Float(key string, def float64) float64 {
	raw, ok := v[key]
	if !ok {
		return def
	}
	f, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
	if err != nil {
		return def
	}
	return f
}

// Text returns the key's raw value, or def. An empty stored value counts
// as present.
func (v Values) Text(key, def string) string {
	raw, ok := v[key]
	if !ok {
		return def
	}
	return raw
}

// Querier is the database surface Store depends on.
type Querier interface {
	SelectByPrefix(ctx context.Context, prefix string) (map[string]string, error)
}

// Queries implements Querier over a pgx pool.
type Queries struct {
	pool *pgxpool.Pool
}

// NewQueries wraps a pool.
func NewQueries(pool *pgxpool.Pool) *Queries {
	return &Queries{pool: pool}
}

// SelectByPrefix reads every app_settings row whose key starts with prefix.
func (q *Queries) SelectByPrefix(ctx context.Context, prefix string) (map[string]string, error) {
	rows, err := q.pool.Query(ctx,
		`SELECT key, value FROM app_settings WHERE key LIKE $1 || '%'`, prefix)
	if err != nil {
		return nil, fmt.Errorf("selecting settings %q: %w", prefix, err)
	}
	defer rows.Close()

	out := make(map[string]string)
	for rows.Next() {
		var key, value string
		if err := rows.Scan(&key, &value); err != nil {
			return nil, fmt.Errorf("scanning setting row: %w", err)
		}
		out[key] = value
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating setting rows: %w", err)
	}
	return out, nil
}

// Store reads runtime settings by key prefix.
type Store struct {
	queries Querier
	logger  *slog.Logger
}

// New creates a Store.
func New(queries Querier, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{queries: queries, logger: logger}
}

// Prefix returns all settings whose key starts with prefix. A read failure
// comes back as an empty Values plus the error, so callers can fall back
// to defaults and still log what happened.
func (s *Store) Prefix(ctx context.Context, prefix string) (Values, error) {
	values, err := s.queries.SelectByPrefix(ctx, prefix)
	if err != nil {
		s.logger.Warn("settings read failed, using defaults", "prefix", prefix, "error", err)
		return Values{}, fmt.Errorf("reading settings %q: %w", prefix, err)
	}
	return Values(values), nil
}

// Bot returns the whole bot_* settings namespace.
func (s *Store) Bot(ctx context.Context) (Values, error) {
	return s.Prefix(ctx, "bot_")
}
