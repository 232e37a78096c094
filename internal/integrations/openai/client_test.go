package openai

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"mentor-ai/internal/domain"
)

// ---------------------------------------------------------------------------
// endpoint helper
// ---------------------------------------------------------------------------

func TestEndpoint(t *testing.T) {
	cases := []struct {
		base string
		path string
		want string
	}{
		{"https://api.openai.com/v1", "/chat/completions", "https://api.openai.com/v1/chat/completions"},
		{"https://api.openai.com/v1/", "/moderations", "https://api.openai.com/v1/moderations"},
		{"http://localhost:8080", "/chat/completions", "http://localhost:8080/v1/chat/completions"},
		{DefaultBaseURL, "/chat/completions", "https://generativelanguage.googleapis.com/v1beta/openai/chat/completions"},
		{"", "/chat/completions", "https://generativelanguage.googleapis.com/v1beta/openai/chat/completions"},
	}
	for _, tc := range cases {
		require.Equal(t, tc.want, endpoint(tc.base, tc.path), "base=%q", tc.base)
	}
}

// ---------------------------------------------------------------------------
// NewClient
// ---------------------------------------------------------------------------

func TestNewClient_NilGetter(t *testing.T) {
	_, err := NewClient(nil, "/mentor-ai")
	require.Error(t, err)
	require.Contains(t, err.Error(), "nil")
}

func TestNewClient_EmptyPrefix(t *testing.T) {
	_, err := NewClient(&fakeGetter{}, " / ")
	require.Error(t, err)
	require.Contains(t, err.Error(), "prefix")
}

func TestNewClient_Defaults(t *testing.T) {
	c, err := NewClient(&fakeGetter{}, "/mentor-ai/")
	require.NoError(t, err)
	require.Equal(t, DefaultBaseURL, c.baseURL)
	require.Equal(t, "/mentor-ai/llm-token", c.tokenName)
	require.Nil(t, c.temperature)
	require.NotNil(t, c.httpClient)
}

func TestNewClient_NilHTTPClientKeepsDefault(t *testing.T) {
	c, err := NewClient(&fakeGetter{}, "/mentor-ai", WithHTTPClient(nil))
	require.NoError(t, err)
	require.NotNil(t, c.httpClient)
	require.Equal(t, defaultTimeout, c.httpClient.Timeout)
}

func TestNewClient_TokenParameterOverride(t *testing.T) {
	c, err := NewClient(&fakeGetter{}, "/mentor-ai", WithTokenParameter("gemini-token"))
	require.NoError(t, err)
	require.Equal(t, "/mentor-ai/gemini-token", c.tokenName)
}

// ---------------------------------------------------------------------------
// resolveAPIKey
// ---------------------------------------------------------------------------

// fakeGetter is a minimal paramstore.Getter stub for use within this package.
type fakeGetter struct {
	val      string
	err      error
	calls    int
	lastName string
}

func (f *fakeGetter) GetParameter(_ context.Context, name string) (string, error) {
	f.calls++
	f.lastName = name
	return f.val, f.err
}

func TestResolveAPIKey_FetchedOnce(t *testing.T) {
	g := &fakeGetter{val: `{"token":"key-from-ssm"}`}
	c, err := NewClient(g, "/mentor-ai")
	require.NoError(t, err)

	key, err := c.resolveAPIKey(context.Background())
	require.NoError(t, err)
	require.Equal(t, "key-from-ssm", key)
	require.Equal(t, "/mentor-ai/llm-token", g.lastName)

	_, _ = c.resolveAPIKey(context.Background())
	_, _ = c.resolveAPIKey(context.Background())
	require.Equal(t, 1, g.calls, "SSM must only be called once per process lifetime")
}

func TestFetchAPIKey(t *testing.T) {
	cases := []struct {
		name    string
		getter  Getter
		param   string
		want    string
		wantErr string
	}{
		{name: "json token", getter: &fakeGetter{val: `{"token":"k"}`}, param: "/p", want: "k"},
		{name: "missing field", getter: &fakeGetter{val: `{"other":"v"}`}, param: "/p", wantErr: "API token is empty"},
		{name: "malformed", getter: &fakeGetter{val: `{"broken`}, param: "/p", wantErr: "unmarshal"},
		{name: "getter error", getter: &fakeGetter{err: errors.New("ssm unavailable")}, param: "/p", wantErr: "ssm unavailable"},
		{name: "nil getter", getter: nil, param: "/p", wantErr: "nil"},
		{name: "empty name", getter: &fakeGetter{val: `{"token":"k"}`}, param: " ", wantErr: "empty"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			key, err := fetchAPIKeyFromParamStore(context.Background(), tc.getter, tc.param)
			if tc.wantErr != "" {
				require.Error(t, err)
				require.Contains(t, err.Error(), tc.wantErr)
				return
			}
			require.NoError(t, err)
			require.Equal(t, tc.want, key)
		})
	}
}

// ---------------------------------------------------------------------------
// Client.Chat
// ---------------------------------------------------------------------------

func newTestClient(t *testing.T, srv *httptest.Server, opts ...Option) *Client {
	t.Helper()
	opts = append([]Option{
		WithBaseURL(srv.URL),
		WithHTTPClient(&http.Client{Timeout: 2 * time.Second}),
	}, opts...)
	c, err := NewClient(&fakeGetter{val: `{"token":"test-key"}`}, "/mentor-ai", opts...)
	require.NoError(t, err)
	return c
}

func statusServer(t *testing.T, status int, body string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestClient_Chat_HappyPath(t *testing.T) {
	var got chatRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/v1/chat/completions", r.URL.Path)
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))
		reqBody, err := io.ReadAll(r.Body)
		require.NoError(t, err)
		require.Contains(t, string(reqBody), `"response_format":{"type":"json_schema"`)
		require.Contains(t, string(reqBody), `"name":"tutor_answer"`)
		require.NoError(t, json.Unmarshal(reqBody, &got))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"choices": [{
				"index": 0,
				"message": { "role": "assistant", "content": "{\"in_scope\":true,\"answer\":\"42\"}" },
				"finish_reason": "stop"
			}]
		}`))
	}))
	defer srv.Close()

	c := newTestClient(t, srv, WithTemperature(0.2))
	resp, err := c.Chat(context.Background(), "gemini-2.0-flash", []domain.ChatMessage{{Role: domain.RoleUser, Content: "hi"}})
	require.NoError(t, err)
	require.Equal(t, `{"in_scope":true,"answer":"42"}`, resp)
	require.Equal(t, "gemini-2.0-flash", got.Model)
	require.Equal(t, []domain.ChatMessage{{Role: domain.RoleUser, Content: "hi"}}, got.Messages)
	require.NotNil(t, got.Temperature)
	require.InDelta(t, 0.2, *got.Temperature, 1e-9)
}

func TestClient_Chat_StatusErrors(t *testing.T) {
	for _, status := range []int{http.StatusBadRequest, http.StatusTooManyRequests, http.StatusInternalServerError} {
		srv := statusServer(t, status, `{"error":"nope"}`)
		c := newTestClient(t, srv)
		_, err := c.Chat(context.Background(), "m", nil)
		require.Error(t, err)

		var statusErr *HTTPStatusError
		require.ErrorAs(t, err, &statusErr)
		require.Equal(t, status, statusErr.HTTPStatusCode())
		require.Contains(t, err.Error(), "unexpected status")
	}
}

func TestClient_Chat_InvalidJSON(t *testing.T) {
	c := newTestClient(t, statusServer(t, http.StatusOK, `not-a-json`))
	_, err := c.Chat(context.Background(), "m", nil)
	require.Error(t, err)
	require.Contains(t, err.Error(), "decode response")
}

func TestClient_Chat_NoChoices(t *testing.T) {
	c := newTestClient(t, statusServer(t, http.StatusOK, `{"choices":[]}`))
	_, err := c.Chat(context.Background(), "m", nil)
	require.Error(t, err)
	require.Contains(t, err.Error(), "no choices")
}

func TestClient_Chat_Timeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		time.Sleep(200 * time.Millisecond)
		_, _ = w.Write([]byte(`{"choices":[]}`))
	}))
	defer srv.Close()

	c := newTestClient(t, srv, WithHTTPClient(&http.Client{Timeout: 50 * time.Millisecond}))
	_, err := c.Chat(context.Background(), "m", nil)
	require.Error(t, err)
	require.Contains(t, err.Error(), "request failed")
}

func TestClient_Chat_EmptyModel(t *testing.T) {
	g := &fakeGetter{val: `{"token":"k"}`}
	c, err := NewClient(g, "/mentor-ai")
	require.NoError(t, err)
	_, err = c.Chat(context.Background(), "", nil)
	require.Error(t, err)
	require.Contains(t, err.Error(), "model")
	require.Zero(t, g.calls)
}

func TestClient_Chat_TokenError(t *testing.T) {
	srv := statusServer(t, http.StatusOK, `{"choices":[]}`)
	c, err := NewClient(&fakeGetter{err: errors.New("access denied")}, "/mentor-ai", WithBaseURL(srv.URL))
	require.NoError(t, err)
	_, err = c.Chat(context.Background(), "m", nil)
	require.ErrorContains(t, err, "access denied")
}

// ---------------------------------------------------------------------------
// Client.Moderate
// ---------------------------------------------------------------------------

func TestClient_Moderate(t *testing.T) {
	for _, flagged := range []bool{false, true} {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			require.Equal(t, "/v1/moderations", r.URL.Path)
			var in moderationRequest
			require.NoError(t, json.NewDecoder(r.Body).Decode(&in))
			require.Equal(t, "What is entropy?", in.Input)
			_ = json.NewEncoder(w).Encode(map[string]any{"results": []map[string]bool{{"flagged": flagged}}})
		}))

		c := newTestClient(t, srv)
		got, err := c.Moderate(context.Background(), "What is entropy?")
		require.NoError(t, err)
		require.Equal(t, flagged, got)
		srv.Close()
	}
}

func TestClient_Moderate_Errors(t *testing.T) {
	c := newTestClient(t, statusServer(t, http.StatusTooManyRequests, `{"error":"rate limited"}`))
	_, err := c.Moderate(context.Background(), "hello")
	require.Error(t, err)
	require.Contains(t, err.Error(), "429")

	c = newTestClient(t, statusServer(t, http.StatusOK, `not-json`))
	_, err = c.Moderate(context.Background(), "hello")
	require.Error(t, err)
	require.Contains(t, err.Error(), "decode response")

	c = newTestClient(t, statusServer(t, http.StatusOK, `{"results":[]}`))
	_, err = c.Moderate(context.Background(), "hello")
	require.Error(t, err)
	require.Contains(t, err.Error(), "no results")
}

func TestClient_Moderate_NetworkError(t *testing.T) {
	c, err := NewClient(&fakeGetter{val: `{"token":"k"}`}, "/mentor-ai",
		WithBaseURL("http://127.0.0.1:1"),
		WithHTTPClient(&http.Client{Timeout: 100 * time.Millisecond}),
	)
	require.NoError(t, err)

	_, err = c.Moderate(context.Background(), "hello")
	require.Error(t, err)
	require.Contains(t, err.Error(), "request failed")
}
