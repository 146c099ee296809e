package chatsvc

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/mkrupp/ircsvc/internal/infra/logging"
	http_ "github.com/mkrupp/ircsvc/internal/infra/transport/http"
)

// HTTPTransportConfig contains configuration parameters for the admin HTTP endpoint.
type HTTPTransportConfig struct {
	http_.HTTPTransportConfig
}

// HTTPTransport serves the read-only admin surface of the chat service.
type HTTPTransport struct {
	chatSvc *ChatService
	log     logging.Logger
	cfg     HTTPTransportConfig
	mux     *http.ServeMux
}

// NewHTTPTransport creates a new HTTPTransport with routes:
// - GET /healthz: liveness probe
// - GET /stats: directory counters as JSON
// - GET /metrics: Prometheus metrics.
func NewHTTPTransport(chatSvc *ChatService, cfg HTTPTransportConfig) *HTTPTransport {
	ht := &HTTPTransport{
		chatSvc: chatSvc,
		log:     logging.GetLogger("svc.chatsvc.http_transport"),
		cfg:     cfg,
		mux:     http.NewServeMux(),
	}

	ht.mux.HandleFunc("GET /healthz", ht.HandleHealth)
	ht.mux.HandleFunc("GET /stats", ht.HandleStats)
	ht.mux.Handle("GET /metrics", promhttp.Handler())

	return ht
}

var _ http_.HTTPTransport = (*HTTPTransport)(nil)

// ServeHTTP implements http.Handler.
func (ht *HTTPTransport) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ht.mux.ServeHTTP(w, r)
}

// HandleHealth reports that the process is serving.
func (ht *HTTPTransport) HandleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = w.Write([]byte("ok\n"))
}

// HandleStats writes a snapshot of the directory counters.
func (ht *HTTPTransport) HandleStats(w http.ResponseWriter, r *http.Request) {
	_ = ht.handleStats(w, r)
}

func (ht *HTTPTransport) handleStats(w http.ResponseWriter, r *http.Request) (err error) {
	log := ht.log.With(logging.Group("http", "method", r.Method, "url", r.URL.String()))

	defer func(ctx context.Context) {
		if err != nil {
			log.ErrorContext(ctx, "stats failed", "error", err)
		}
	}(r.Context())

	w.Header().Set("Content-Type", "application/json")

	if err := json.NewEncoder(w).Encode(ht.chatSvc.Stats()); err != nil {
		return fmt.Errorf("encode stats: %w", err)
	}

	return nil
}
