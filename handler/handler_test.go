package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"testing"

	"github.com/aws/aws-lambda-go/events"
	"github.com/stretchr/testify/require"

	"honeypot-agent/internal/domain"
	"honeypot-agent/internal/usecase"
)

const testAPIKey = "secret-key"

type stubUseCase struct {
	out    usecase.RespondOutput
	err    error
	in     usecase.RespondInput
	called bool
}

func (s *stubUseCase) Respond(_ context.Context, in usecase.RespondInput) (usecase.RespondOutput, error) {
	s.in = in
	s.called = true
	return s.out, s.err
}

const validBody = `{
	"sessionId": "sess-1",
	"message": {"sender": "scammer", "text": "Your account is blocked", "timestamp": "2026-01-21T10:15:30Z"},
	"conversationHistory": [],
	"metadata": {"channel": "SMS", "language": "English", "locale": "IN"}
}`

func makeEvent(body string) events.APIGatewayProxyRequest {
	return events.APIGatewayProxyRequest{
		HTTPMethod: http.MethodPost,
		Path:       "/honeypot",
		Headers: map[string]string{
			"Content-Type": "application/json",
			"x-api-key":    testAPIKey,
		},
		Body: body,
	}
}

func parseBody[T any](t *testing.T, body string) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal([]byte(body), &v))
	return v
}

func newTestHandler(t *testing.T, uc Responder) *Handler {
	t.Helper()
	h, err := NewHandler(uc, testAPIKey, nil)
	require.NoError(t, err)
	return h
}

func TestNewHandler_ValidatesDependency(t *testing.T) {
	_, err := NewHandler(nil, testAPIKey, nil)
	require.Error(t, err)

	_, err = NewHandler(&stubUseCase{}, "", nil)
	require.Error(t, err)
}

func TestHandle_HappyPath(t *testing.T) {
	uc := &stubUseCase{out: usecase.RespondOutput{Reply: "Why is it blocked?", State: domain.StateSuspectedScam}}
	h := newTestHandler(t, uc)

	resp, err := h.Handle(context.Background(), makeEvent(validBody))
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	require.Equal(t, usecase.RespondInput{
		SessionID: "sess-1",
		Message: domain.Message{
			Sender:    domain.SenderScammer,
			Text:      "Your account is blocked",
			Timestamp: "2026-01-21T10:15:30Z",
		},
		History:  []domain.Message{},
		Metadata: domain.Metadata{Channel: "SMS", Language: "English", Locale: "IN"},
		Flags:    domain.Flags{IsFirstMessage: true, HasHistory: false},
	}, uc.in)

	out := parseBody[replyResponse](t, resp.Body)
	require.Equal(t, "success", out.Status)
	require.Equal(t, "Why is it blocked?", out.Reply)
	require.NotEmpty(t, resp.Headers["X-Correlation-Id"])
}

func TestHandle_EmptyReplyIsStillSuccess(t *testing.T) {
	h := newTestHandler(t, &stubUseCase{out: usecase.RespondOutput{State: domain.StateClosed}})

	resp, err := h.Handle(context.Background(), makeEvent(validBody))
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.JSONEq(t, `{"status":"success","reply":""}`, resp.Body)
}

func TestHandle_HistorySetsFlagsAndNormalizesTimestamps(t *testing.T) {
	uc := &stubUseCase{}
	h := newTestHandler(t, uc)

	body := `{
		"sessionId": "sess-2",
		"message": {"sender": "scammer", "text": "Share OTP", "timestamp": 1769000000000},
		"conversationHistory": [
			{"sender": "scammer", "text": "Hello", "timestamp": 1769000000},
			{"sender": "user", "text": "Who is this?", "timestamp": "2026-01-21T15:45:30+05:30"}
		],
		"metadata": {"channel": "WhatsApp", "language": "English", "locale": "IN"}
	}`
	resp, err := h.Handle(context.Background(), makeEvent(body))
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	require.Equal(t, domain.Flags{IsFirstMessage: false, HasHistory: true}, uc.in.Flags)
	require.Equal(t, "2026-01-21T12:53:20Z", uc.in.Message.Timestamp)
	require.Len(t, uc.in.History, 2)
	require.Equal(t, "2026-01-21T12:53:20Z", uc.in.History[0].Timestamp)
	require.Equal(t, "2026-01-21T10:15:30Z", uc.in.History[1].Timestamp)
	require.Equal(t, domain.SenderUser, uc.in.History[1].Sender)
}

func TestHandle_InvalidBody(t *testing.T) {
	cases := []struct {
		name string
		body string
	}{
		{name: "not json", body: `not-json`},
		{name: "missing session", body: `{"message":{"sender":"scammer","text":"hi"},"metadata":{"channel":"SMS","language":"English","locale":"IN"}}`},
		{name: "bad sender", body: `{"sessionId":"s","message":{"sender":"bot","text":"hi"},"metadata":{"channel":"SMS","language":"English","locale":"IN"}}`},
		{name: "empty text", body: `{"sessionId":"s","message":{"sender":"scammer","text":""},"metadata":{"channel":"SMS","language":"English","locale":"IN"}}`},
		{name: "missing metadata", body: `{"sessionId":"s","message":{"sender":"scammer","text":"hi"}}`},
		{name: "bad history entry", body: `{"sessionId":"s","message":{"sender":"scammer","text":"hi"},"conversationHistory":[{"sender":"x","text":"y"}],"metadata":{"channel":"SMS","language":"English","locale":"IN"}}`},
		{name: "bad timestamp", body: `{"sessionId":"s","message":{"sender":"scammer","text":"hi","timestamp":"yesterday"},"metadata":{"channel":"SMS","language":"English","locale":"IN"}}`},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			uc := &stubUseCase{}
			h := newTestHandler(t, uc)

			resp, err := h.Handle(context.Background(), makeEvent(tc.body))
			require.NoError(t, err)
			require.Equal(t, http.StatusBadRequest, resp.StatusCode)
			require.False(t, uc.called)

			out := parseBody[errorResponse](t, resp.Body)
			require.Equal(t, string(usecase.ErrorInvalidInput), out.Error)
		})
	}
}

func TestHandle_RequiresJSONContentType(t *testing.T) {
	h := newTestHandler(t, &stubUseCase{})

	event := makeEvent(validBody)
	event.Headers["Content-Type"] = "text/plain"
	resp, err := h.Handle(context.Background(), event)
	require.NoError(t, err)
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)

	event.Headers["Content-Type"] = "application/json; charset=utf-8"
	resp, err = h.Handle(context.Background(), event)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestHandle_RejectsBadAPIKey(t *testing.T) {
	uc := &stubUseCase{}
	h := newTestHandler(t, uc)

	event := makeEvent(validBody)
	event.Headers["x-api-key"] = "wrong"
	resp, err := h.Handle(context.Background(), event)
	require.NoError(t, err)
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	require.False(t, uc.called)

	delete(event.Headers, "x-api-key")
	resp, err = h.Handle(context.Background(), event)
	require.NoError(t, err)
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	event.Headers["X-API-Key"] = testAPIKey
	resp, err = h.Handle(context.Background(), event)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestHandle_MapsUseCaseErrors(t *testing.T) {
	cases := []struct {
		name   string
		err    error
		status int
		code   string
	}{
		{name: "invalid input", err: &usecase.Error{Code: usecase.ErrorInvalidInput, Reason: "invalid_sender"}, status: http.StatusBadRequest, code: string(usecase.ErrorInvalidInput)},
		{name: "internal", err: &usecase.Error{Code: usecase.ErrorInternal, Reason: "session_store_error"}, status: http.StatusInternalServerError, code: string(usecase.ErrorInternal)},
		{name: "unexpected", err: errors.New("boom"), status: http.StatusInternalServerError, code: string(usecase.ErrorInternal)},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			h := newTestHandler(t, &stubUseCase{err: tc.err})

			resp, err := h.Handle(context.Background(), makeEvent(validBody))
			require.NoError(t, err)
			require.Equal(t, tc.status, resp.StatusCode)

			out := parseBody[errorResponse](t, resp.Body)
			require.Equal(t, tc.code, out.Error)
		})
	}
}

func TestHandle_Routes(t *testing.T) {
	h := newTestHandler(t, &stubUseCase{})

	resp, err := h.Handle(context.Background(), events.APIGatewayProxyRequest{HTTPMethod: http.MethodGet, Path: "/health"})
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.JSONEq(t, `{"status":"ok"}`, resp.Body)

	resp, err = h.Handle(context.Background(), events.APIGatewayProxyRequest{HTTPMethod: http.MethodGet, Path: "/honeypot"})
	require.NoError(t, err)
	require.Equal(t, http.StatusNotFound, resp.StatusCode)
	out := parseBody[errorResponse](t, resp.Body)
	require.Equal(t, string(usecase.ErrorNotFound), out.Error)
}

func TestHandle_UsesProvidedCorrelationID_CaseInsensitive(t *testing.T) {
	h := newTestHandler(t, &stubUseCase{out: usecase.RespondOutput{Reply: "ok"}})

	event := makeEvent(validBody)
	event.Headers["x-correlation-id"] = "corr-123"
	resp, err := h.Handle(context.Background(), event)
	require.NoError(t, err)
	require.Equal(t, "corr-123", resp.Headers["X-Correlation-Id"])
}

func TestTimestamp_UnmarshalJSON(t *testing.T) {
	cases := []struct {
		in   string
		want Timestamp
	}{
		{in: `"2026-01-21T10:15:30Z"`, want: "2026-01-21T10:15:30Z"},
		{in: `1769000000`, want: "2026-01-21T12:53:20Z"},
		{in: `1769000000123`, want: "2026-01-21T12:53:20.123Z"},
		{in: `null`, want: ""},
		{in: `""`, want: ""},
	}
	for _, tc := range cases {
		var ts Timestamp
		require.NoError(t, json.Unmarshal([]byte(tc.in), &ts), tc.in)
		require.Equal(t, tc.want, ts, tc.in)
	}

	var ts Timestamp
	require.Error(t, json.Unmarshal([]byte(`-5`), &ts))
	require.Error(t, json.Unmarshal([]byte(`true`), &ts))
}
