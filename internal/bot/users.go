package bot

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/printdesk/printdesk/internal/guard"
)

// User is one Telegram identity's conversation state. Read fresh from the
// store at the start of every request; never cached in-process.
type User struct {
	ID          int64
	Name        string
	Greeted     bool
	StrikeCount int
	Blocked     bool

	// Known is false when the store has no row for this id yet.
	Known bool
}

// UserStore is the persistence surface the conversation flow depends on.
type UserStore interface {
	Get(ctx context.Context, userID int64) (User, error)
	MarkGreeted(ctx context.Context, userID int64) error
	SetName(ctx context.Context, userID int64, name string) error
	RecordStrike(ctx context.Context, userID int64) (count int, blocked bool, err error)
}

// Users implements UserStore over a pgx pool. It also satisfies
// guard.Strikes.
type Users struct {
	pool *pgxpool.Pool
}

var _ guard.Strikes = (*Users)(nil)

// NewUsers wraps a pool.
func NewUsers(pool *pgxpool.Pool) *Users {
	return &Users{pool: pool}
}

// Get reads one user. An absent row comes back as a zero User with
// Known=false, not an error.
func (u *Users) Get(ctx context.Context, userID int64) (User, error) {
	user := User{ID: userID}
	err := u.pool.QueryRow(ctx,
		`SELECT COALESCE(name, ''), greeted, strike_count, blocked
		 FROM bot_users WHERE user_id = $1`, userID,
	).Scan(&user.Name, &user.Greeted, &user.StrikeCount, &user.Blocked)
	if errors.Is(err, pgx.ErrNoRows) {
		return user, nil
	}
	if err != nil {
		return User{}, fmt.Errorf("reading user %d: %w", userID, err)
	}
	user.Known = true
	return user, nil
}

// MarkGreeted flags the user as introduced.
func (u *Users) MarkGreeted(ctx context.Context, userID int64) error {
	_, err := u.pool.Exec(ctx,
		`INSERT INTO bot_users (user_id, greeted) VALUES ($1, true)
		 ON CONFLICT (user_id) DO UPDATE SET greeted = true, updated_at = now()`, userID)
	if err != nil {
		return fmt.Errorf("marking user %d greeted: %w", userID, err)
	}
	return nil
}

// SetName stores the user's self-declared name.
func (u *Users) SetName(ctx context.Context, userID int64, name string) error {
	_, err := u.pool.Exec(ctx,
		`INSERT INTO bot_users (user_id, name) VALUES ($1, $2)
		 ON CONFLICT (user_id) DO UPDATE SET name = $2, updated_at = now()`, userID, name)
	if err != nil {
		return fmt.Errorf("setting name for user %d: %w", userID, err)
	}
	return nil
}

// RecordStrike increments the strike counter and flags the user blocked at
// the threshold. One statement, so the caller can never observe the
// increment without the block decision.
func (u *Users) RecordStrike(ctx context.Context, userID int64) (int, bool, error) {
	var (
		count   int
		blocked bool
	)
	err := u.pool.QueryRow(ctx,
		`INSERT INTO bot_users (user_id, strike_count, blocked, last_strike)
		 VALUES ($1, 1, 1 >= $2, now())
		 ON CONFLICT (user_id) DO UPDATE SET
		     strike_count = bot_users.strike_count + 1,
		     blocked = bot_users.blocked OR bot_users.strike_count + 1 >= $2,
		     last_strike = now(),
		     updated_at = now()
		 RETURNING strike_count, blocked`,
		userID, guard.StrikeThreshold,
	).Scan(&count, &blocked)
	if err != nil {
		return 0, false, fmt.Errorf("recording strike for user %d: %w", userID, err)
	}
	return count, blocked, nil
}
