// Package guard classifies incoming queries against a prompt-injection
// policy and tracks per-user strikes.
//
// The safety posture is asymmetric on purpose: classification fails open
// (a missing policy prompt or a provider failure admits the query), strike
// recording fails closed (a store failure blocks rather than admitting
// uncertainty). Both halves are documented behavior, not accidents.
package guard

import (
	"context"
	"log/slog"
	"strings"

	"github.com/printdesk/printdesk/internal/ai"
	"github.com/printdesk/printdesk/internal/settings"
)

// StrikeThreshold is the strike count at which a user is permanently
// blocked.
const StrikeThreshold = 2

// Fallback messages when the admin has not configured custom ones.
const (
	defaultWarning = "Ваш запрос похож на попытку обойти правила работы ассистента. " +
		"Пожалуйста, задавайте вопросы об услугах типографии. Это предупреждение."
	defaultBlocked = "Доступ к ассистенту заблокирован из-за повторных нарушений. " +
		"Если вы считаете это ошибкой, свяжитесь с администратором типографии."
)

// Completer runs one completion call.
type Completer interface {
	Complete(ctx context.Context, req ai.CompletionRequest) (*ai.Completion, error)
}

// Strikes records malicious-query strikes. Implemented by bot.Users.
type Strikes interface {
	RecordStrike(ctx context.Context, userID int64) (count int, blocked bool, err error)
}

// SettingsReader supplies the policy prompt and response messages.
type SettingsReader interface {
	Prefix(ctx context.Context, prefix string) (settings.Values, error)
}

// Gate is the security gate in front of the conversation flow.
type Gate struct {
	completer Completer
	strikes   Strikes
	settings  SettingsReader
	logger    *slog.Logger
}

// New creates a Gate.
func New(completer Completer, strikes Strikes, sr SettingsReader, logger *slog.Logger) *Gate {
	if logger == nil {
		logger = slog.Default()
	}
	return &Gate{completer: completer, strikes: strikes, settings: sr, logger: logger}
}

// Classify reports whether the query is malicious. No configured policy
// prompt means no policy: the query passes. A classifier failure or an
// unparseable verdict also admits the query, logged for the operator.
func (g *Gate) Classify(ctx context.Context, query string) bool {
	values, err := g.settings.Prefix(ctx, "bot_prompt_")
	if err != nil {
		g.logger.Warn("security prompt unavailable, admitting query", "error", err)
		return false
	}

	prompt := values.Text(settings.KeySecurityGuardPrompt, "")
	if strings.TrimSpace(prompt) == "" {
		return false
	}

	completion, err := g.completer.Complete(ctx, ai.CompletionRequest{
		System: prompt,
		Prompt: query,
	})
	if err != nil {
		g.logger.Error("security classification failed, admitting query", "error", err)
		return false
	}

	switch strings.ToLower(strings.TrimSpace(completion.Text)) {
	case "true":
		return true
	case "false":
		return false
	default:
		g.logger.Warn("unparseable classifier verdict, admitting query",
			"verdict", completion.Text)
		return false
	}
}

// HandleMalicious records a strike and returns the response text: a
// warning below the threshold, the permanent-block message at or above it.
// A recording failure is treated as if the user had already reached the
// threshold.
func (g *Gate) HandleMalicious(ctx context.Context, userID int64, query string) string {
	count, blocked, err := g.strikes.RecordStrike(ctx, userID)
	if err != nil {
		g.logger.Error("strike recording failed, treating as blocked",
			"user_id", userID, "error", err)
		count, blocked = StrikeThreshold, true
	}

	g.logger.Info("malicious query", "user_id", userID,
		"strike_count", count, "blocked", blocked, "query", query)

	values, verr := g.settings.Prefix(ctx, "bot_message_")
	if verr != nil {
		g.logger.Warn("response messages unavailable, using defaults", "error", verr)
	}

	if blocked || count >= StrikeThreshold {
		return values.Text(settings.KeyBlockedPermanent, defaultBlocked)
	}
	return values.Text(settings.KeySecurityWarning, defaultWarning)
}
