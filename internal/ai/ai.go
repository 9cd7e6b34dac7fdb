// Package ai wraps the Gemini API behind the two narrow capabilities the
// core needs: text embedding and prompted completion with optional tools.
//
// Consumers declare their own single-method interfaces (Embedder,
// Completer) and accept *Client; nothing outside this package imports the
// genai SDK types except through the request/response structs below.
package ai

import "errors"

var (
	// ErrEmbedding covers provider failures and responses that are missing
	// a vector for any requested input. An Embed call either returns one
	// vector per input or fails as a whole; it never partially applies.
	ErrEmbedding = errors.New("embedding failed")

	// ErrCompletion covers provider failures on completion calls.
	ErrCompletion = errors.New("completion failed")
)

// ToolParam describes one parameter of a declared tool. All parameters are
// strings; the routing tools need nothing richer.
type ToolParam struct {
	Name        string
	Description string
	Required    bool
}

// ToolDecl declares a callable tool to the routing completion.
type ToolDecl struct {
	Name        string
	Description string
	Params      []ToolParam
}

// CompletionRequest is a single completion call. Tools may be nil; the
// expert-synthesis stage deliberately runs without any.
type CompletionRequest struct {
	System string
	Prompt string
	Tools  []ToolDecl
}

// ToolCall is the model's choice of a declared tool.
type ToolCall struct {
	Name string
	Args map[string]any
}

// Completion is the provider's answer: plain text plus zero or more tool
// calls. The router expects at most one call and ignores the rest.
type Completion struct {
	Text      string
	ToolCalls []ToolCall
}
