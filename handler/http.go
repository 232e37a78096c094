package handler

import (
	"io"
	"net/http"

	"github.com/aws/aws-lambda-go/events"
)

const maxBodyBytes = 64 << 10

// HTTP adapts h to net/http for running the service outside Lambda.
func HTTP(h *Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
		if err != nil {
			http.Error(w, "failed to read body", http.StatusBadRequest)
			return
		}

		event := events.APIGatewayProxyRequest{
			HTTPMethod:            r.Method,
			Path:                  r.URL.Path,
			Headers:               make(map[string]string, len(r.Header)),
			QueryStringParameters: make(map[string]string),
			Body:                  string(body),
		}
		for k := range r.Header {
			event.Headers[k] = r.Header.Get(k)
		}
		for k := range r.URL.Query() {
			event.QueryStringParameters[k] = r.URL.Query().Get(k)
		}

		resp, err := h.Handle(r.Context(), event)
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		for k, v := range resp.Headers {
			w.Header().Set(k, v)
		}
		w.WriteHeader(resp.StatusCode)
		_, _ = io.WriteString(w, resp.Body)
	})
}
