// Package handler exposes the tutoring service over API Gateway proxy events.
package handler

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/aws/aws-lambda-go/events"
	"github.com/google/uuid"

	"mentor-ai/internal/domain"
	"mentor-ai/internal/usecase"
)

const (
	correlationHeader = "X-Correlation-Id"
	welcomeMessage    = "Welcome to MentorAI API. Visit /health for status."

	pathRoot   = "/"
	pathHealth = "/health"
	pathAsk    = "/education/ask"
)

type AskUseCase interface {
	Ask(ctx context.Context, in usecase.AskInput) (usecase.AskOutput, error)
}

type askRequest struct {
	Question       *string `json:"question"`
	ConversationID string  `json:"conversationId"`
}

type askResponse struct {
	Answer         string `json:"answer"`
	ConversationID string `json:"conversationId"`
}

type errorResponse struct {
	Error  string `json:"error"`
	Detail string `json:"detail,omitempty"`
}

// Handler routes API Gateway proxy requests.
type Handler struct {
	uc      AskUseCase
	logger  *slog.Logger
	origins map[string]struct{}
}

type Option func(*Handler)

func WithLogger(logger *slog.Logger) Option {
	return func(h *Handler) {
		if logger != nil {
			h.logger = logger
		}
	}
}

// WithAllowedOrigins sets the CORS allow-list. "*" allows any origin.
func WithAllowedOrigins(origins ...string) Option {
	return func(h *Handler) {
		for _, o := range origins {
			if o = strings.TrimRight(strings.TrimSpace(o), "/"); o != "" {
				h.origins[o] = struct{}{}
			}
		}
	}
}

func NewHandler(uc AskUseCase, opts ...Option) (*Handler, error) {
	if uc == nil {
		return nil, errors.New("handler: use case must not be nil")
	}
	h := &Handler{
		uc:      uc,
		logger:  slog.Default(),
		origins: map[string]struct{}{},
	}
	for _, opt := range opts {
		opt(h)
	}
	h.logger = h.logger.With("component", "handler")
	return h, nil
}

func (h *Handler) Handle(ctx context.Context, event events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
	corrID := strings.TrimSpace(header(event.Headers, correlationHeader))
	if corrID == "" {
		corrID = uuid.NewString()
	}
	headers := map[string]string{
		"Content-Type":    "application/json",
		correlationHeader: corrID,
	}
	h.applyCORS(headers, header(event.Headers, "Origin"))

	if event.HTTPMethod == http.MethodOptions {
		headers["Access-Control-Allow-Methods"] = "GET, POST, OPTIONS"
		headers["Access-Control-Allow-Headers"] = "Content-Type, " + correlationHeader
		return events.APIGatewayProxyResponse{StatusCode: http.StatusNoContent, Headers: headers}, nil
	}

	switch normalizePath(event.Path) {
	case pathRoot:
		if event.HTTPMethod != http.MethodGet {
			return methodNotAllowed(headers), nil
		}
		return jsonResponse(http.StatusOK, headers, map[string]string{"message": welcomeMessage}), nil
	case pathHealth:
		if event.HTTPMethod != http.MethodGet {
			return methodNotAllowed(headers), nil
		}
		return jsonResponse(http.StatusOK, headers, map[string]string{"status": "ok"}), nil
	case pathAsk:
		if event.HTTPMethod != http.MethodPost {
			return methodNotAllowed(headers), nil
		}
		return h.ask(ctx, event, headers, corrID), nil
	default:
		return jsonResponse(http.StatusNotFound, headers, errorResponse{
			Error:  string(domain.ErrorGeneric),
			Detail: "not_found",
		}), nil
	}
}

func (h *Handler) ask(ctx context.Context, event events.APIGatewayProxyRequest, headers map[string]string, corrID string) events.APIGatewayProxyResponse {
	logger := h.logger.With("correlation_id", corrID)

	body := event.Body
	if event.IsBase64Encoded {
		decoded, err := base64.StdEncoding.DecodeString(body)
		if err != nil {
			return validationError(headers, "invalid_body_encoding")
		}
		body = string(decoded)
	}

	var req askRequest
	if err := json.Unmarshal([]byte(body), &req); err != nil {
		return validationError(headers, "invalid_json")
	}
	if req.Question == nil {
		return validationError(headers, "question_required")
	}

	out, err := h.uc.Ask(ctx, usecase.AskInput{
		Question:       *req.Question,
		ConversationID: req.ConversationID,
	})
	if err != nil {
		var ucErr *usecase.Error
		if !errors.As(err, &ucErr) {
			logger.Error("unexpected ask failure", "err", err)
			return jsonResponse(http.StatusInternalServerError, headers, errorResponse{
				Error:  string(domain.ErrorGeneric),
				Detail: "internal_error",
			})
		}
		status := statusForKind(ucErr.Kind)
		if status >= http.StatusInternalServerError {
			logger.Error("ask failed", "kind", ucErr.Kind, "reason", ucErr.Reason, "err", ucErr.Err)
		} else {
			logger.Info("ask rejected", "kind", ucErr.Kind, "reason", ucErr.Reason)
		}
		return jsonResponse(status, headers, errorResponse{
			Error:  string(ucErr.Kind),
			Detail: ucErr.Reason,
		})
	}

	logger.Info("question answered", "conversation_id", out.ConversationID)
	return jsonResponse(http.StatusOK, headers, askResponse{
		Answer:         out.Answer,
		ConversationID: out.ConversationID,
	})
}

func (h *Handler) applyCORS(headers map[string]string, origin string) {
	origin = strings.TrimRight(strings.TrimSpace(origin), "/")
	if origin == "" {
		return
	}
	_, wildcard := h.origins["*"]
	_, ok := h.origins[origin]
	if !wildcard && !ok {
		return
	}
	headers["Access-Control-Allow-Origin"] = origin
	headers["Access-Control-Allow-Credentials"] = "true"
	headers["Vary"] = "Origin"
}

func statusForKind(kind domain.ErrorKind) int {
	switch kind {
	case domain.ErrorInvalidInput:
		return http.StatusBadRequest
	case domain.ErrorValidation:
		return http.StatusUnprocessableEntity
	case domain.ErrorServiceUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func validationError(headers map[string]string, detail string) events.APIGatewayProxyResponse {
	return jsonResponse(http.StatusUnprocessableEntity, headers, errorResponse{
		Error:  string(domain.ErrorValidation),
		Detail: detail,
	})
}

func methodNotAllowed(headers map[string]string) events.APIGatewayProxyResponse {
	return jsonResponse(http.StatusMethodNotAllowed, headers, errorResponse{
		Error:  string(domain.ErrorGeneric),
		Detail: "method_not_allowed",
	})
}

func jsonResponse(status int, headers map[string]string, v any) events.APIGatewayProxyResponse {
	body, err := json.Marshal(v)
	if err != nil {
		status = http.StatusInternalServerError
		body = []byte(`{"error":"generic-error"}`)
	}
	return events.APIGatewayProxyResponse{
		StatusCode: status,
		Headers:    headers,
		Body:       string(body),
	}
}

// header looks up name case-insensitively; API Gateway forwards headers as
// the client sent them.
func header(headers map[string]string, name string) string {
	if v, ok := headers[name]; ok {
		return v
	}
	for k, v := range headers {
		if strings.EqualFold(k, name) {
			return v
		}
	}
	return ""
}

func normalizePath(p string) string {
	p = strings.TrimSpace(p)
	if p == "" {
		return pathRoot
	}
	if len(p) > 1 {
		p = strings.TrimRight(p, "/")
	}
	return p
}
