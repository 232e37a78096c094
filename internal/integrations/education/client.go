package education

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"mentor-ai/internal/domain"
)

const (
	askPath              = "/education/ask"
	defaultMaxQuestion   = 300
	defaultClientTimeout = 60 * time.Second
	correlationHeader    = "X-Correlation-Id"
)

type askRequest struct {
	Question       string `json:"question"`
	ConversationID string `json:"conversationId,omitempty"`
}

type askResponse struct {
	Answer         string `json:"answer"`
	ConversationID string `json:"conversationId"`
}

type errorResponse struct {
	Error  string `json:"error"`
	Detail string `json:"detail"`
}

// Client calls the tutoring service's ask endpoint.
type Client struct {
	baseURL        string
	httpClient     *http.Client
	maxQuestionLen int
}

type Option func(*Client)

func WithHTTPClient(httpClient *http.Client) Option {
	return func(c *Client) {
		c.httpClient = httpClient
	}
}

// WithMaxQuestionLength sets the client-side question length limit in runes.
func WithMaxQuestionLength(n int) Option {
	return func(c *Client) {
		if n > 0 {
			c.maxQuestionLen = n
		}
	}
}

// NewClient returns a Client for the service at baseURL.
func NewClient(baseURL string, opts ...Option) (*Client, error) {
	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if baseURL == "" {
		return nil, errors.New("education: base URL must not be empty")
	}
	u, err := url.Parse(baseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("education: invalid base URL %q", baseURL)
	}
	c := &Client{
		baseURL:        baseURL,
		httpClient:     &http.Client{Timeout: defaultClientTimeout},
		maxQuestionLen: defaultMaxQuestion,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Ask sends question (and the service-side conversation id, when known) and
// returns the answer. Every failure is a *domain.AskError.
func (c *Client) Ask(ctx context.Context, question, conversationID string) (domain.Answer, error) {
	trimmed := strings.TrimSpace(question)
	if trimmed == "" {
		return domain.Answer{}, &domain.AskError{Kind: domain.ErrorInvalidInput, StatusCode: http.StatusBadRequest, Detail: "question must not be empty"}
	}
	if utf8.RuneCountInString(trimmed) > c.maxQuestionLen {
		return domain.Answer{}, &domain.AskError{
			Kind:       domain.ErrorInvalidInput,
			StatusCode: http.StatusBadRequest,
			Detail:     fmt.Sprintf("question exceeds %d characters", c.maxQuestionLen),
		}
	}

	body, err := json.Marshal(askRequest{Question: question, ConversationID: strings.TrimSpace(conversationID)})
	if err != nil {
		return domain.Answer{}, &domain.AskError{Kind: domain.ErrorGeneric, Detail: "marshal request", Err: err}
	}

	endpoint := c.baseURL + askPath
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return domain.Answer{}, &domain.AskError{Kind: domain.ErrorGeneric, Detail: "create request", Err: err}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set(correlationHeader, uuid.NewString())

	res, err := c.resolvedHTTPClient().Do(req)
	if err != nil {
		return domain.Answer{}, &domain.AskError{Kind: domain.ErrorGeneric, Detail: "request failed", Err: err}
	}
	defer func() { _ = res.Body.Close() }()

	raw, err := io.ReadAll(io.LimitReader(res.Body, 1<<20))
	if err != nil {
		return domain.Answer{}, &domain.AskError{Kind: domain.ErrorGeneric, StatusCode: res.StatusCode, Detail: "read response body", Err: err}
	}

	if res.StatusCode < 200 || res.StatusCode >= 300 {
		return domain.Answer{}, statusError(res.StatusCode, raw)
	}

	var payload askResponse
	if err := json.Unmarshal(raw, &payload); err != nil {
		return domain.Answer{}, &domain.AskError{Kind: domain.ErrorGeneric, StatusCode: res.StatusCode, Detail: "decode response", Err: err}
	}
	if strings.TrimSpace(payload.Answer) == "" {
		return domain.Answer{}, &domain.AskError{Kind: domain.ErrorGeneric, StatusCode: res.StatusCode, Detail: "empty answer in response"}
	}
	return domain.Answer{Answer: payload.Answer, ConversationID: payload.ConversationID}, nil
}

func (c *Client) resolvedHTTPClient() *http.Client {
	if c.httpClient != nil {
		return c.httpClient
	}
	return &http.Client{Timeout: defaultClientTimeout}
}

// statusError classifies a non-2xx response. A recognised error code in the
// body wins over the status code.
func statusError(status int, raw []byte) *domain.AskError {
	var payload errorResponse
	_ = json.Unmarshal(raw, &payload)

	detail := strings.TrimSpace(payload.Detail)
	if detail == "" {
		detail = strings.TrimSpace(string(raw))
	}
	if detail == "" {
		detail = http.StatusText(status)
	}

	kind, ok := domain.ParseErrorKind(payload.Error)
	if !ok {
		kind = kindForStatus(status)
	}
	return &domain.AskError{Kind: kind, StatusCode: status, Detail: detail}
}

func kindForStatus(status int) domain.ErrorKind {
	switch status {
	case http.StatusBadRequest:
		return domain.ErrorInvalidInput
	case http.StatusUnprocessableEntity:
		return domain.ErrorValidation
	case http.StatusTooManyRequests, http.StatusBadGateway, http.StatusServiceUnavailable, http.StatusGatewayTimeout:
		return domain.ErrorServiceUnavailable
	default:
		return domain.ErrorGeneric
	}
}
