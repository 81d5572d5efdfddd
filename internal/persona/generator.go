// Package persona produces in-character honeypot replies using a chat model.
package persona

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"honeypot-agent/internal/domain"
	"honeypot-agent/internal/integrations/openai"
)

const (
	DefaultModel   = "llama-3.1-8b-instant"
	defaultTimeout = 8 * time.Second
	temperature    = 0.6
	maxTokens      = 120
)

// Status is the outcome of a generation attempt.
type Status string

const (
	StatusSuccess Status = "success"
	StatusFail    Status = "fail"
)

// Constraints bound what the persona may say.
type Constraints struct {
	NoAccusation    bool
	NoIllegalAdvice bool
	SoftTone        bool
}

// DefaultConstraints are applied to every honeypot reply.
var DefaultConstraints = Constraints{NoAccusation: true, NoIllegalAdvice: true, SoftTone: true}

// Request is one reply generation request.
type Request struct {
	SessionID      string
	CurrentMessage domain.Message
	History        []domain.Message
	Metadata       domain.Metadata
	Style          domain.ResponseStyle
	Constraints    Constraints
}

// Result carries the reply. Reply is empty whenever Status is StatusFail.
type Result struct {
	Status Status
	Reply  string
}

// OK reports whether a usable reply was produced.
func (r Result) OK() bool {
	return r.Status == StatusSuccess && r.Reply != ""
}

// ChatClient is the LLM capability the generator needs.
type ChatClient interface {
	Chat(ctx context.Context, model string, messages []domain.ChatMessage, params openai.ChatParams) (string, error)
}

// Generator turns a persona style and a conversation into a reply.
type Generator struct {
	llm     ChatClient
	model   string
	timeout time.Duration
	logger  *slog.Logger
}

// NewGenerator creates a Generator. An empty model selects DefaultModel and a
// non-positive timeout selects the package default.
func NewGenerator(llm ChatClient, model string, timeout time.Duration, logger *slog.Logger) (*Generator, error) {
	if llm == nil {
		return nil, errors.New("persona: chat client must not be nil")
	}
	model = strings.TrimSpace(model)
	if model == "" {
		model = DefaultModel
	}
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Generator{llm: llm, model: model, timeout: timeout, logger: logger}, nil
}

// Generate never returns an error: failures are reported as StatusFail so the
// caller can carry on without a reply.
func (g *Generator) Generate(ctx context.Context, req Request) Result {
	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	messages := append([]domain.ChatMessage{
		{Role: domain.RoleSystem, Content: buildSystemPrompt(req.Style, req.Metadata, req.Constraints)},
	}, buildConversation(req.History, req.CurrentMessage)...)

	t := temperature
	raw, err := g.llm.Chat(ctx, g.model, messages, openai.ChatParams{Temperature: &t, MaxTokens: maxTokens})
	if err != nil {
		g.logger.Warn("reply generation failed", "session_id", req.SessionID, "style", req.Style, "err", err)
		return Result{Status: StatusFail}
	}

	reply := strings.TrimSpace(raw)
	if reply == "" {
		g.logger.Warn("reply generation returned empty text", "session_id", req.SessionID, "style", req.Style)
		return Result{Status: StatusFail}
	}
	return Result{Status: StatusSuccess, Reply: reply}
}
