// Package bot orchestrates one assistant turn per incoming Telegram
// message: greeting, security gate, routing completion, tool dispatch and
// expert synthesis.
//
// Each message runs the state machine below end to end and produces
// exactly one text response. There is no in-process conversation state;
// everything per-user lives in bot_users and is read fresh every turn, so
// handlers scale horizontally.
package bot

import (
	"context"
	"log/slog"
	"strings"

	"github.com/google/uuid"

	"github.com/printdesk/printdesk/internal/ai"
	"github.com/printdesk/printdesk/internal/settings"
)

// state is one step of the per-message machine.
type state int

const (
	stateNewUser state = iota
	stateSecurityCheck
	stateRouted
	stateToolInvoked
	stateExpertSynthesis
	stateDone
)

// ToolKind identifies a tool the router may invoke. Dispatch goes through
// an explicit handler table keyed by kind, never by reflection.
type ToolKind int

const (
	ToolKindUnknown ToolKind = iota
	ToolKindGeneralKB
	ToolKindTechnicalKB
	ToolKindLegalKB
	ToolKindRememberName
	ToolKindEndConversation
)

// Wire names the model sees in function declarations.
const (
	toolNameGeneral   = "search_general_kb"
	toolNameTechnical = "search_technical_kb"
	toolNameLegal     = "search_legal_kb"
	toolNameRemember  = "remember_name"
	toolNameEnd       = "end_conversation"
)

var kindByName = map[string]ToolKind{
	toolNameGeneral:   ToolKindGeneralKB,
	toolNameTechnical: ToolKindTechnicalKB,
	toolNameLegal:     ToolKindLegalKB,
	toolNameRemember:  ToolKindRememberName,
	toolNameEnd:       ToolKindEndConversation,
}

// Fallback texts when the admin has not configured custom ones.
const (
	defaultIntro = "Здравствуйте! Я ассистент типографии. Помогу с ценами, услугами, " +
		"совместимостью расходных материалов и условиями заказа. Чем могу помочь?"
	defaultBlocked = "Доступ к ассистенту заблокирован из-за повторных нарушений."
	defaultTrouble = "Извините, сейчас не получается обработать ваш вопрос. " +
		"Попробуйте, пожалуйста, ещё раз чуть позже."
	defaultRouterPrompt = "Ты — ассистент типографии. Отвечай кратко и дружелюбно. " +
		"Используй инструменты поиска по базе знаний, когда вопрос касается цен, услуг, " +
		"техники или юридических условий."
	defaultExpertPrompt = "Ты — эксперт типографии. Ответь на вопрос клиента, " +
		"опираясь только на приведённый контекст. Если контекста недостаточно, скажи об этом честно."
	defaultGoodbye = "Спасибо за обращение! Хорошего дня!"
)

// Completer runs completion calls.
type Completer interface {
	Complete(ctx context.Context, req ai.CompletionRequest) (*ai.Completion, error)
}

// SecurityGate classifies queries and handles strikes. Implemented by
// guard.Gate.
type SecurityGate interface {
	Classify(ctx context.Context, query string) bool
	HandleMalicious(ctx context.Context, userID int64, query string) string
}

// Retriever answers a query with formatted context or the no-results
// sentinel. Implemented by retrieve.Retriever.
type Retriever interface {
	Retrieve(ctx context.Context, query string) string
}

// SettingsReader supplies prompts and canned messages.
type SettingsReader interface {
	Prefix(ctx context.Context, prefix string) (settings.Values, error)
}

// Retrievers groups the three knowledge-base variants the router can
// reach.
type Retrievers struct {
	General   Retriever
	Technical Retriever
	Legal     Retriever
}

// Flow handles one message end to end.
type Flow struct {
	completer Completer
	gate      SecurityGate
	users     UserStore
	settings  SettingsReader
	noResults string
	handlers  map[ToolKind]toolHandler
	logger    *slog.Logger
}

// turn is the per-message context threaded through states.
type turn struct {
	userID     int64
	message    string
	logger     *slog.Logger
	values     settings.Values
	routerText string
	call       *ai.ToolCall
	kind       ToolKind
	context    string
	response   string
}

type toolHandler func(ctx context.Context, t *turn) state

// NewFlow wires a Flow. noResultsSentinel must match what the retrievers
// return on an empty search (retrieve.NoResults).
func NewFlow(completer Completer, gate SecurityGate, users UserStore, sr SettingsReader,
	retrievers Retrievers, noResultsSentinel string, logger *slog.Logger) *Flow {
	if logger == nil {
		logger = slog.Default()
	}

	f := &Flow{
		completer: completer,
		gate:      gate,
		users:     users,
		settings:  sr,
		noResults: noResultsSentinel,
		logger:    logger,
	}
	f.handlers = map[ToolKind]toolHandler{
		ToolKindGeneralKB:       f.retrievalHandler(retrievers.General),
		ToolKindTechnicalKB:     f.retrievalHandler(retrievers.Technical),
		ToolKindLegalKB:         f.retrievalHandler(retrievers.Legal),
		ToolKindRememberName:    f.handleRememberName,
		ToolKindEndConversation: f.handleEndConversation,
	}
	return f
}

// Handle runs the state machine for one incoming message and returns the
// single response text.
func (f *Flow) Handle(ctx context.Context, userID int64, message string) string {
	// Correlates every log line of one message across states.
	logger := f.logger.With("turn_id", uuid.NewString(), "user_id", userID)

	user, err := f.users.Get(ctx, userID)
	if err != nil {
		// Without user state the safe assumption is a known, non-blocked
		// user: no duplicate intro, no false block.
		logger.Error("user state unavailable", "error", err)
		user = User{ID: userID, Known: true, Greeted: true}
	}

	t := &turn{userID: userID, message: strings.TrimSpace(message), logger: logger}
	if values, err := f.settings.Prefix(ctx, "bot_"); err == nil {
		t.values = values
	} else {
		logger.Warn("bot settings unavailable, using defaults", "error", err)
		t.values = settings.Values{}
	}

	st := stateNewUser
	if user.Known && user.Greeted {
		st = stateSecurityCheck
	}

	for st != stateDone {
		switch st {
		case stateNewUser:
			st = f.stepNewUser(ctx, t)
		case stateSecurityCheck:
			st = f.stepSecurityCheck(ctx, t, user)
		case stateRouted:
			st = f.stepRouted(ctx, t)
		case stateToolInvoked:
			st = f.stepToolInvoked(ctx, t)
		case stateExpertSynthesis:
			st = f.stepExpertSynthesis(ctx, t)
		}
	}

	return t.response
}

// stepNewUser short-circuits first contact to the canned introduction.
func (f *Flow) stepNewUser(ctx context.Context, t *turn) state {
	if err := f.users.MarkGreeted(ctx, t.userID); err != nil {
		t.logger.Error("marking user greeted failed", "error", err)
	}
	t.response = t.values.Text(settings.KeyIntroMessage, defaultIntro)
	return stateDone
}

func (f *Flow) stepSecurityCheck(ctx context.Context, t *turn, user User) state {
	if user.Blocked {
		t.response = t.values.Text(settings.KeyBlockedPermanent, defaultBlocked)
		return stateDone
	}
	if f.gate.Classify(ctx, t.message) {
		t.response = f.gate.HandleMalicious(ctx, t.userID, t.message)
		return stateDone
	}
	return stateRouted
}

// stepRouted makes the routing completion: cheap, tool-aware, its job is
// to pick at most one tool.
func (f *Flow) stepRouted(ctx context.Context, t *turn) state {
	completion, err := f.completer.Complete(ctx, ai.CompletionRequest{
		System: t.values.Text(settings.KeyRouterPrompt, defaultRouterPrompt),
		Prompt: t.message,
		Tools:  toolDecls(),
	})
	if err != nil {
		t.logger.Error("routing completion failed", "error", err)
		t.response = defaultTrouble
		return stateDone
	}

	t.routerText = strings.TrimSpace(completion.Text)
	if len(completion.ToolCalls) == 0 {
		if t.routerText == "" {
			t.response = defaultTrouble
			return stateDone
		}
		t.response = t.routerText
		return stateDone
	}

	t.call = &completion.ToolCalls[0]
	t.kind = kindByName[t.call.Name]
	return stateToolInvoked
}

func (f *Flow) stepToolInvoked(ctx context.Context, t *turn) state {
	handler, ok := f.handlers[t.kind]
	if !ok {
		t.logger.Warn("router chose unknown tool", "tool", t.call.Name)
		if t.routerText != "" {
			t.response = t.routerText
		} else {
			t.response = defaultTrouble
		}
		return stateDone
	}
	return handler(ctx, t)
}

// retrievalHandler binds one knowledge-base variant into the handler
// table. Real context moves the machine to synthesis; the sentinel is
// itself the user-facing answer, no second completion.
func (f *Flow) retrievalHandler(r Retriever) toolHandler {
	return func(ctx context.Context, t *turn) state {
		query := argString(t.call.Args, "query")
		if query == "" {
			query = t.message
		}

		t.context = r.Retrieve(ctx, query)
		if t.context == f.noResults {
			t.response = t.context
			return stateDone
		}
		return stateExpertSynthesis
	}
}

func (f *Flow) handleRememberName(ctx context.Context, t *turn) state {
	name := strings.TrimSpace(argString(t.call.Args, "name"))
	if name != "" {
		if err := f.users.SetName(ctx, t.userID, name); err != nil {
			t.logger.Error("storing user name failed", "error", err)
		}
	}

	if t.routerText != "" {
		t.response = t.routerText
	} else if name != "" {
		t.response = "Приятно познакомиться, " + name + "!"
	} else {
		t.response = defaultTrouble
	}
	return stateDone
}

func (f *Flow) handleEndConversation(_ context.Context, t *turn) state {
	if t.routerText != "" {
		t.response = t.routerText
	} else {
		t.response = defaultGoodbye
	}
	return stateDone
}

// stepExpertSynthesis makes the grounded-generation completion: tools
// disabled, context plus the original question.
func (f *Flow) stepExpertSynthesis(ctx context.Context, t *turn) state {
	completion, err := f.completer.Complete(ctx, ai.CompletionRequest{
		System: t.values.Text(settings.KeyExpertPrompt, defaultExpertPrompt),
		Prompt: "Контекст из базы знаний:\n" + t.context + "\n\nВопрос клиента: " + t.message,
	})
	if err != nil {
		t.logger.Error("synthesis completion failed", "error", err)
		t.response = defaultTrouble
		return stateDone
	}

	t.response = strings.TrimSpace(completion.Text)
	if t.response == "" {
		t.response = defaultTrouble
	}
	return stateDone
}

// toolDecls is the full tool surface the router sees.
func toolDecls() []ai.ToolDecl {
	queryParam := []ai.ToolParam{{
		Name:        "query",
		Description: "Вопрос клиента своими словами",
		Required:    true,
	}}

	return []ai.ToolDecl{
		{
			Name:        toolNameGeneral,
			Description: "Поиск по общей базе знаний: цены, услуги, сроки, доставка.",
			Params:      queryParam,
		},
		{
			Name:        toolNameTechnical,
			Description: "Поиск по технической базе знаний: принтеры, картриджи, совместимость расходных материалов.",
			Params:      queryParam,
		},
		{
			Name:        toolNameLegal,
			Description: "Поиск по юридической базе знаний: оферта, возвраты, персональные данные.",
			Params:      queryParam,
		},
		{
			Name:        toolNameRemember,
			Description: "Клиент представился. Запомнить его имя.",
			Params: []ai.ToolParam{{
				Name:        "name",
				Description: "Имя, которым представился клиент",
				Required:    true,
			}},
		},
		{
			Name:        toolNameEnd,
			Description: "Клиент прощается или завершает разговор.",
		},
	}
}

func argString(args map[string]any, key string) string {
	if args == nil {
		return ""
	}
	s, _ := args[key].(string)
	return s
}
