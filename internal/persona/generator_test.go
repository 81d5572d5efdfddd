package persona

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"honeypot-agent/internal/domain"
	"honeypot-agent/internal/integrations/openai"
)

type capturingLLM struct {
	answer   string
	err      error
	delay    time.Duration
	model    string
	messages []domain.ChatMessage
	params   openai.ChatParams
	calls    int
}

func (c *capturingLLM) Chat(ctx context.Context, model string, msgs []domain.ChatMessage, params openai.ChatParams) (string, error) {
	c.calls++
	c.model = model
	c.messages = msgs
	c.params = params
	if c.delay > 0 {
		select {
		case <-time.After(c.delay):
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	return c.answer, c.err
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestGenerator(t *testing.T, llm ChatClient) *Generator {
	t.Helper()
	g, err := NewGenerator(llm, "", 0, quietLogger())
	require.NoError(t, err)
	return g
}

func sampleRequest(style domain.ResponseStyle) Request {
	return Request{
		SessionID: "sess-1",
		CurrentMessage: domain.Message{
			Sender: domain.SenderScammer,
			Text:   "Share the OTP now",
		},
		History: []domain.Message{
			{Sender: domain.SenderScammer, Text: "Your account is blocked"},
			{Sender: domain.SenderUser, Text: "Oh no, what happened?"},
			{Sender: domain.SenderScammer, Text: "  "},
		},
		Metadata:    domain.Metadata{Channel: "SMS", Language: "en", Locale: "IN"},
		Style:       style,
		Constraints: DefaultConstraints,
	}
}

func TestNewGenerator_Validation(t *testing.T) {
	_, err := NewGenerator(nil, "", 0, nil)
	require.Error(t, err)

	g, err := NewGenerator(&capturingLLM{}, "  ", 0, nil)
	require.NoError(t, err)
	require.Equal(t, DefaultModel, g.model)
	require.Equal(t, defaultTimeout, g.timeout)
}

func TestGenerate_Success(t *testing.T) {
	llm := &capturingLLM{answer: "  Which OTP do you mean?  "}
	g := newTestGenerator(t, llm)

	res := g.Generate(context.Background(), sampleRequest(domain.StyleConfused))
	require.True(t, res.OK())
	require.Equal(t, StatusSuccess, res.Status)
	require.Equal(t, "Which OTP do you mean?", res.Reply)

	require.Equal(t, DefaultModel, llm.model)
	require.Equal(t, maxTokens, llm.params.MaxTokens)
	require.InDelta(t, temperature, *llm.params.Temperature, 1e-9)

	require.Len(t, llm.messages, 4)
	require.Equal(t, "system", llm.messages[0].Role)
	require.Contains(t, llm.messages[0].Content, "confused")
	require.Equal(t, domain.ChatMessage{Role: "user", Content: "Your account is blocked"}, llm.messages[1])
	require.Equal(t, domain.ChatMessage{Role: "assistant", Content: "Oh no, what happened?"}, llm.messages[2])
	require.Equal(t, domain.ChatMessage{Role: "user", Content: "Share the OTP now"}, llm.messages[3])
}

func TestGenerate_FailureModes(t *testing.T) {
	cases := []struct {
		name string
		llm  *capturingLLM
	}{
		{"upstream error", &capturingLLM{err: &openai.HTTPStatusError{StatusCode: 500}}},
		{"empty reply", &capturingLLM{answer: ""}},
		{"whitespace reply", &capturingLLM{answer: " \n\t "}},
		{"network error", &capturingLLM{err: errors.New("connection reset")}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			res := newTestGenerator(t, tc.llm).Generate(context.Background(), sampleRequest(domain.StyleHesitant))
			require.False(t, res.OK())
			require.Equal(t, StatusFail, res.Status)
			require.Empty(t, res.Reply)
		})
	}
}

func TestGenerate_TimeoutIsFailure(t *testing.T) {
	llm := &capturingLLM{answer: "late", delay: time.Second}
	g, err := NewGenerator(llm, "m", 20*time.Millisecond, quietLogger())
	require.NoError(t, err)

	res := g.Generate(context.Background(), sampleRequest(domain.StyleHesitant))
	require.Equal(t, StatusFail, res.Status)
}

func TestBuildSystemPrompt_Styles(t *testing.T) {
	cases := map[domain.ResponseStyle]string{
		domain.StyleNaive:    "trusting",
		domain.StyleConfused: "confused",
		domain.StyleHesitant: "cautious",
		domain.StyleUrgent:   "anxious",
		domain.StyleNeutral:  "Do not ask questions.",
	}
	for style, want := range cases {
		prompt := buildSystemPrompt(style, domain.Metadata{Language: "en"}, DefaultConstraints)
		require.Contains(t, prompt, want, "style=%s", style)
		require.Contains(t, prompt, "Do not accuse or warn anyone.", "style=%s", style)
		require.Contains(t, prompt, "(en)", "style=%s", style)
	}
}

func TestBuildSystemPrompt_ConstraintsAreOptional(t *testing.T) {
	prompt := buildSystemPrompt(domain.StyleNeutral, domain.Metadata{}, Constraints{})
	require.NotContains(t, prompt, "Do not accuse")
	require.NotContains(t, prompt, "language")
}
