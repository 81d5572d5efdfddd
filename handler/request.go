package handler

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"honeypot-agent/internal/domain"
	"honeypot-agent/internal/usecase"
)

// epochMillisThreshold separates epoch seconds from epoch milliseconds.
const epochMillisThreshold = 1e12

type respondRequest struct {
	SessionID           string           `json:"sessionId" validate:"required"`
	Message             messageRequest   `json:"message"`
	ConversationHistory []messageRequest `json:"conversationHistory" validate:"omitempty,dive"`
	Metadata            metadataRequest  `json:"metadata"`
}

type messageRequest struct {
	Sender    string    `json:"sender" validate:"required,oneof=scammer user"`
	Text      string    `json:"text" validate:"required"`
	Timestamp Timestamp `json:"timestamp"`
}

type metadataRequest struct {
	Channel  string `json:"channel" validate:"required"`
	Language string `json:"language" validate:"required"`
	Locale   string `json:"locale" validate:"required"`
}

// Timestamp accepts an ISO-8601 string or an epoch number (seconds, or
// milliseconds when larger than 10^12) and holds it as RFC 3339 UTC.
type Timestamp string

func (t *Timestamp) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || string(b) == "null" {
		*t = ""
		return nil
	}
	if b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		s = strings.TrimSpace(s)
		if s == "" {
			*t = ""
			return nil
		}
		parsed, err := time.Parse(time.RFC3339Nano, s)
		if err != nil {
			return fmt.Errorf("timestamp %q is not ISO-8601: %w", s, err)
		}
		*t = Timestamp(parsed.UTC().Format(time.RFC3339Nano))
		return nil
	}

	var n float64
	if err := json.Unmarshal(b, &n); err != nil {
		return fmt.Errorf("timestamp must be a string or number: %w", err)
	}
	if n < 0 || math.IsNaN(n) || math.IsInf(n, 0) {
		return fmt.Errorf("timestamp %v out of range", n)
	}
	var at time.Time
	if n > epochMillisThreshold {
		at = time.UnixMilli(int64(n))
	} else {
		sec, frac := math.Modf(n)
		at = time.Unix(int64(sec), int64(frac*1e9))
	}
	*t = Timestamp(at.UTC().Format(time.RFC3339Nano))
	return nil
}

func (m messageRequest) toDomain() domain.Message {
	return domain.Message{
		Sender:    domain.Sender(m.Sender),
		Text:      m.Text,
		Timestamp: string(m.Timestamp),
	}
}

// toInput normalizes a validated request. Flags are derived from the history
// length here and nowhere else.
func (r respondRequest) toInput() usecase.RespondInput {
	history := make([]domain.Message, 0, len(r.ConversationHistory))
	for _, m := range r.ConversationHistory {
		history = append(history, m.toDomain())
	}
	return usecase.RespondInput{
		SessionID: strings.TrimSpace(r.SessionID),
		Message:   r.Message.toDomain(),
		History:   history,
		Metadata: domain.Metadata{
			Channel:  r.Metadata.Channel,
			Language: r.Metadata.Language,
			Locale:   r.Metadata.Locale,
		},
		Flags: domain.Flags{
			IsFirstMessage: len(history) == 0,
			HasHistory:     len(history) > 0,
		},
	}
}

func decodeRequest(v *validator.Validate, body string) (respondRequest, error) {
	var req respondRequest
	dec := json.NewDecoder(strings.NewReader(body))
	if err := dec.Decode(&req); err != nil {
		return respondRequest{}, usecase.NewError(usecase.ErrorInvalidInput, "malformed_json", err)
	}
	if err := v.Struct(req); err != nil {
		return respondRequest{}, usecase.NewError(usecase.ErrorInvalidInput, validationReason(err), err)
	}
	return req, nil
}

func validationReason(err error) string {
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		return "invalid_" + strings.ToLower(verrs[0].Field())
	}
	return "validation_failed"
}
