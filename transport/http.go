// Package transport exposes the inbound pipeline over HTTP. The
// handler converts each provider delivery into a pipeline request and
// writes the terminal result back; it never surfaces internal errors
// to the provider beyond the pipeline's own status mapping.
package transport

import (
	"io"
	"net/http"
	"strings"

	"github.com/goliatone/go-ingest/core"
	"github.com/goliatone/go-ingest/pipeline"
)

const (
	headerSubscriptionID = "X-Subscription-Id"

	maxInboundBodyBytes = 4 << 20 // 4 MiB
)

// Handler serves provider deliveries at PathPrefix. The remainder of
// the URL path is the subscription route; an explicit subscription id
// may be carried in the X-Subscription-Id header or the sid query
// parameter instead.
type Handler struct {
	Pipeline   *pipeline.Pipeline
	PathPrefix string
	Logger     core.Logger
}

func NewHandler(p *pipeline.Pipeline) *Handler {
	return &Handler{Pipeline: p, PathPrefix: "/ingest/"}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.Pipeline == nil {
		http.Error(w, "ingest pipeline not configured", http.StatusServiceUnavailable)
		return
	}
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, maxInboundBodyBytes))
	if err != nil {
		http.Error(w, "read request body", http.StatusBadRequest)
		return
	}

	result, err := h.Pipeline.Handle(r.Context(), h.buildRequest(r, body))
	if err != nil {
		core.LogError(r.Context(), h.Logger, "inbound pipeline misconfigured", map[string]any{
			"path":  r.URL.Path,
			"error": err.Error(),
		})
		http.Error(w, "ingest pipeline unavailable", http.StatusServiceUnavailable)
		return
	}
	writeResult(w, result)
}

func (h *Handler) buildRequest(r *http.Request, body []byte) core.InboundRequest {
	headers := make(map[string]string, len(r.Header))
	for name := range r.Header {
		headers[name] = r.Header.Get(name)
	}
	query := make(map[string]string)
	for name, values := range r.URL.Query() {
		if len(values) > 0 {
			query[name] = values[0]
		}
	}

	subscriptionID := strings.TrimSpace(r.Header.Get(headerSubscriptionID))
	if subscriptionID == "" {
		subscriptionID = strings.TrimSpace(r.URL.Query().Get("sid"))
	}

	return core.InboundRequest{
		SubscriptionID: subscriptionID,
		Route:          h.route(r.URL.Path),
		Method:         r.Method,
		Headers:        headers,
		Query:          query,
		Body:           body,
	}
}

func (h *Handler) route(path string) string {
	prefix := h.PathPrefix
	if strings.TrimSpace(prefix) == "" {
		prefix = "/ingest/"
	}
	route := strings.TrimPrefix(path, prefix)
	return strings.Trim(route, "/")
}

func writeResult(w http.ResponseWriter, result core.InboundResult) {
	if result.ContentType != "" {
		w.Header().Set("Content-Type", result.ContentType)
	}
	status := result.StatusCode
	if status == 0 {
		status = http.StatusOK
	}
	w.WriteHeader(status)
	if len(result.Body) > 0 {
		_, _ = w.Write(result.Body)
	}
}
