package handler

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/aws/aws-lambda-go/events"
	"github.com/stretchr/testify/require"

	"mentor-ai/internal/domain"
	"mentor-ai/internal/usecase"
)

type stubUseCase struct {
	out    usecase.AskOutput
	err    error
	in     usecase.AskInput
	called bool
}

func (s *stubUseCase) Ask(_ context.Context, in usecase.AskInput) (usecase.AskOutput, error) {
	s.in = in
	s.called = true
	return s.out, s.err
}

func makeEvent(body string) events.APIGatewayProxyRequest {
	return events.APIGatewayProxyRequest{
		HTTPMethod: http.MethodPost,
		Path:       "/education/ask",
		Headers:    map[string]string{"Content-Type": "application/json"},
		Body:       body,
	}
}

func parseBody[T any](t *testing.T, body string) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal([]byte(body), &v))
	return v
}

func mustHandler(t *testing.T, uc AskUseCase, opts ...Option) *Handler {
	t.Helper()
	h, err := NewHandler(uc, opts...)
	require.NoError(t, err)
	return h
}

func TestNewHandler_ValidatesDependency(t *testing.T) {
	_, err := NewHandler(nil)
	require.Error(t, err)
}

func TestHandle_HappyPath(t *testing.T) {
	uc := &stubUseCase{out: usecase.AskOutput{Answer: "A prime has exactly two divisors.", ConversationID: "conv-1"}}
	h := mustHandler(t, uc)

	resp, err := h.Handle(context.Background(), makeEvent(`{"question":"What is a prime?","conversationId":"conv-1"}`))
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, usecase.AskInput{Question: "What is a prime?", ConversationID: "conv-1"}, uc.in)

	out := parseBody[askResponse](t, resp.Body)
	require.Equal(t, "A prime has exactly two divisors.", out.Answer)
	require.Equal(t, "conv-1", out.ConversationID)
	require.NotEmpty(t, resp.Headers["X-Correlation-Id"])
	require.Equal(t, "application/json", resp.Headers["Content-Type"])
}

func TestHandle_Base64Body(t *testing.T) {
	uc := &stubUseCase{out: usecase.AskOutput{Answer: "ok", ConversationID: "c"}}
	h := mustHandler(t, uc)

	event := makeEvent(base64.StdEncoding.EncodeToString([]byte(`{"question":"What is pi?"}`)))
	event.IsBase64Encoded = true
	resp, err := h.Handle(context.Background(), event)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, "What is pi?", uc.in.Question)
}

func TestHandle_InvalidBodies(t *testing.T) {
	cases := []struct {
		name   string
		body   string
		b64    bool
		detail string
	}{
		{name: "not json", body: `not-json`, detail: "invalid_json"},
		{name: "missing question", body: `{"conversationId":"c"}`, detail: "question_required"},
		{name: "wrong type", body: `{"question":42}`, detail: "invalid_json"},
		{name: "bad base64", body: `%%%`, b64: true, detail: "invalid_body_encoding"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			uc := &stubUseCase{}
			h := mustHandler(t, uc)
			event := makeEvent(tc.body)
			event.IsBase64Encoded = tc.b64

			resp, err := h.Handle(context.Background(), event)
			require.NoError(t, err)
			require.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
			require.False(t, uc.called)

			out := parseBody[errorResponse](t, resp.Body)
			require.Equal(t, string(domain.ErrorValidation), out.Error)
			require.Equal(t, tc.detail, out.Detail)
		})
	}
}

func TestHandle_MapsUseCaseErrors(t *testing.T) {
	cases := []struct {
		name   string
		err    error
		status int
		code   domain.ErrorKind
		detail string
	}{
		{name: "invalid input", err: &usecase.Error{Kind: domain.ErrorInvalidInput, Reason: "empty_question"}, status: http.StatusBadRequest, code: domain.ErrorInvalidInput, detail: "empty_question"},
		{name: "validation", err: &usecase.Error{Kind: domain.ErrorValidation, Reason: "bad_field"}, status: http.StatusUnprocessableEntity, code: domain.ErrorValidation, detail: "bad_field"},
		{name: "unavailable", err: &usecase.Error{Kind: domain.ErrorServiceUnavailable, Reason: "llm_rate_limited"}, status: http.StatusServiceUnavailable, code: domain.ErrorServiceUnavailable, detail: "llm_rate_limited"},
		{name: "generic", err: &usecase.Error{Kind: domain.ErrorGeneric, Reason: "dynamodb_write_error", Err: errors.New("boom")}, status: http.StatusInternalServerError, code: domain.ErrorGeneric, detail: "dynamodb_write_error"},
		{name: "unexpected", err: errors.New("boom"), status: http.StatusInternalServerError, code: domain.ErrorGeneric, detail: "internal_error"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			h := mustHandler(t, &stubUseCase{err: tc.err})

			resp, err := h.Handle(context.Background(), makeEvent(`{"question":"What is a prime?"}`))
			require.NoError(t, err)
			require.Equal(t, tc.status, resp.StatusCode)

			out := parseBody[errorResponse](t, resp.Body)
			require.Equal(t, string(tc.code), out.Error)
			require.Equal(t, tc.detail, out.Detail)
		})
	}
}

func TestHandle_UsesProvidedCorrelationID_CaseInsensitive(t *testing.T) {
	h := mustHandler(t, &stubUseCase{out: usecase.AskOutput{Answer: "ok", ConversationID: "conv-1"}})

	event := makeEvent(`{"question":"What is a prime?"}`)
	event.Headers["x-correlation-id"] = "corr-123"
	resp, err := h.Handle(context.Background(), event)
	require.NoError(t, err)
	require.Equal(t, "corr-123", resp.Headers["X-Correlation-Id"])
}

func TestHandle_HealthAndRoot(t *testing.T) {
	h := mustHandler(t, &stubUseCase{})

	resp, err := h.Handle(context.Background(), events.APIGatewayProxyRequest{HTTPMethod: http.MethodGet, Path: "/health/"})
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.JSONEq(t, `{"status":"ok"}`, resp.Body)

	resp, err = h.Handle(context.Background(), events.APIGatewayProxyRequest{HTTPMethod: http.MethodGet, Path: "/"})
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, welcomeMessage, parseBody[map[string]string](t, resp.Body)["message"])
}

func TestHandle_RoutingErrors(t *testing.T) {
	h := mustHandler(t, &stubUseCase{})

	resp, err := h.Handle(context.Background(), events.APIGatewayProxyRequest{HTTPMethod: http.MethodGet, Path: "/education/ask"})
	require.NoError(t, err)
	require.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)

	resp, err = h.Handle(context.Background(), events.APIGatewayProxyRequest{HTTPMethod: http.MethodPost, Path: "/health"})
	require.NoError(t, err)
	require.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)

	resp, err = h.Handle(context.Background(), events.APIGatewayProxyRequest{HTTPMethod: http.MethodGet, Path: "/docs"})
	require.NoError(t, err)
	require.Equal(t, http.StatusNotFound, resp.StatusCode)
	require.Equal(t, "not_found", parseBody[errorResponse](t, resp.Body).Detail)
}

func TestHandle_CORS(t *testing.T) {
	h := mustHandler(t, &stubUseCase{}, WithAllowedOrigins("http://localhost:3000", "https://mentor.example.com/"))

	preflight := events.APIGatewayProxyRequest{
		HTTPMethod: http.MethodOptions,
		Path:       "/education/ask",
		Headers:    map[string]string{"origin": "https://mentor.example.com"},
	}
	resp, err := h.Handle(context.Background(), preflight)
	require.NoError(t, err)
	require.Equal(t, http.StatusNoContent, resp.StatusCode)
	require.Equal(t, "https://mentor.example.com", resp.Headers["Access-Control-Allow-Origin"])
	require.Contains(t, resp.Headers["Access-Control-Allow-Methods"], http.MethodPost)
	require.Contains(t, resp.Headers["Access-Control-Allow-Headers"], "X-Correlation-Id")

	event := events.APIGatewayProxyRequest{HTTPMethod: http.MethodGet, Path: "/health", Headers: map[string]string{"Origin": "https://evil.example.com"}}
	resp, err = h.Handle(context.Background(), event)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.NotContains(t, resp.Headers, "Access-Control-Allow-Origin")
}

func TestHandle_CORSWildcard(t *testing.T) {
	h := mustHandler(t, &stubUseCase{}, WithAllowedOrigins("*"))
	event := events.APIGatewayProxyRequest{HTTPMethod: http.MethodGet, Path: "/health", Headers: map[string]string{"Origin": "http://anywhere.test"}}
	resp, err := h.Handle(context.Background(), event)
	require.NoError(t, err)
	require.Equal(t, "http://anywhere.test", resp.Headers["Access-Control-Allow-Origin"])
}

func TestHTTP_Adapter(t *testing.T) {
	uc := &stubUseCase{out: usecase.AskOutput{Answer: "Newton's second law: F = ma.", ConversationID: "conv-9"}}
	srv := httptest.NewServer(HTTP(mustHandler(t, uc)))
	defer srv.Close()

	req, err := http.NewRequest(http.MethodPost, srv.URL+"/education/ask", strings.NewReader(`{"question":"What is Newton's second law?"}`))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Correlation-Id", "corr-http")

	res, err := srv.Client().Do(req)
	require.NoError(t, err)
	defer func() { _ = res.Body.Close() }()

	require.Equal(t, http.StatusOK, res.StatusCode)
	require.Equal(t, "corr-http", res.Header.Get("X-Correlation-Id"))
	raw, err := io.ReadAll(res.Body)
	require.NoError(t, err)
	out := parseBody[askResponse](t, string(raw))
	require.Equal(t, "conv-9", out.ConversationID)
	require.Equal(t, "What is Newton's second law?", uc.in.Question)
}
