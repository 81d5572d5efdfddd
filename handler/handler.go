package handler

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"log/slog"
	"mime"
	"net/http"
	"strings"

	"github.com/aws/aws-lambda-go/events"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"honeypot-agent/internal/usecase"
)

const (
	routeHoneypot = "/honeypot"
	routeHealth   = "/health"

	headerCorrelationID = "X-Correlation-Id"
	headerAPIKey        = "x-api-key"
)

type Responder interface {
	Respond(ctx context.Context, in usecase.RespondInput) (usecase.RespondOutput, error)
}

type Handler struct {
	uc       Responder
	apiKey   string
	logger   *slog.Logger
	validate *validator.Validate
}

type replyResponse struct {
	Status string `json:"status"`
	Reply  string `json:"reply"`
}

type healthResponse struct {
	Status string `json:"status"`
}

type errorResponse struct {
	Error  string `json:"error"`
	Reason string `json:"reason,omitempty"`
}

func NewHandler(uc Responder, apiKey string, logger *slog.Logger) (*Handler, error) {
	if uc == nil {
		return nil, errors.New("handler: responder must not be nil")
	}
	if apiKey == "" {
		return nil, errors.New("handler: api key must not be empty")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		uc:       uc,
		apiKey:   apiKey,
		logger:   logger,
		validate: validator.New(),
	}, nil
}

func (h *Handler) Handle(ctx context.Context, req events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
	correlationID := header(req.Headers, headerCorrelationID)
	if correlationID == "" {
		correlationID = uuid.NewString()
	}
	log := h.logger.With("correlation_id", correlationID)

	switch {
	case req.HTTPMethod == http.MethodGet && req.Path == routeHealth:
		return jsonResponse(http.StatusOK, correlationID, healthResponse{Status: "ok"}), nil
	case req.HTTPMethod == http.MethodPost && req.Path == routeHoneypot:
		return h.respond(ctx, log, correlationID, req), nil
	default:
		return errorResponseFor(correlationID, usecase.NewError(usecase.ErrorNotFound, "route_not_found", nil)), nil
	}
}

func (h *Handler) respond(ctx context.Context, log *slog.Logger, correlationID string, req events.APIGatewayProxyRequest) events.APIGatewayProxyResponse {
	if !h.authorized(req.Headers) {
		log.Warn("rejected request with missing or invalid api key")
		return errorResponseFor(correlationID, usecase.NewError(usecase.ErrorUnauthorized, "invalid_api_key", nil))
	}
	if !isJSON(header(req.Headers, "Content-Type")) {
		return errorResponseFor(correlationID, usecase.NewError(usecase.ErrorInvalidInput, "unsupported_content_type", nil))
	}

	body, err := decodeRequest(h.validate, req.Body)
	if err != nil {
		log.Info("rejected invalid payload", "err", err)
		return errorResponseFor(correlationID, err)
	}

	in := body.toInput()
	out, err := h.uc.Respond(ctx, in)
	if err != nil {
		log.Error("respond failed", "session_id", in.SessionID, "err", err)
		return errorResponseFor(correlationID, err)
	}

	log.Info("responded", "session_id", in.SessionID, "state", out.State, "replied", out.Reply != "")
	return jsonResponse(http.StatusOK, correlationID, replyResponse{Status: "success", Reply: out.Reply})
}

func (h *Handler) authorized(headers map[string]string) bool {
	got := header(headers, headerAPIKey)
	return got != "" && subtle.ConstantTimeCompare([]byte(got), []byte(h.apiKey)) == 1
}

func isJSON(contentType string) bool {
	if contentType == "" {
		return false
	}
	mediaType, _, err := mime.ParseMediaType(contentType)
	return err == nil && mediaType == "application/json"
}

// header looks a header up case-insensitively; API Gateway preserves the
// client's casing.
func header(headers map[string]string, name string) string {
	if v, ok := headers[name]; ok {
		return strings.TrimSpace(v)
	}
	for k, v := range headers {
		if strings.EqualFold(k, name) {
			return strings.TrimSpace(v)
		}
	}
	return ""
}

func errorResponseFor(correlationID string, err error) events.APIGatewayProxyResponse {
	code, reason := usecase.Classify(err)
	return jsonResponse(statusFor(code), correlationID, errorResponse{Error: string(code), Reason: reason})
}

func statusFor(code usecase.ErrorCode) int {
	switch code {
	case usecase.ErrorInvalidInput:
		return http.StatusBadRequest
	case usecase.ErrorUnauthorized:
		return http.StatusUnauthorized
	case usecase.ErrorNotFound:
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

func jsonResponse(status int, correlationID string, v any) events.APIGatewayProxyResponse {
	body, err := json.Marshal(v)
	if err != nil {
		status = http.StatusInternalServerError
		body = []byte(`{"error":"INTERNAL_ERROR"}`)
	}
	return events.APIGatewayProxyResponse{
		StatusCode: status,
		Headers: map[string]string{
			"Content-Type":      "application/json",
			headerCorrelationID: correlationID,
		},
		Body: string(body),
	}
}
