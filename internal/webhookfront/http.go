// Package webhookfront is the HTTP front end: a gorilla/mux router
// implementing spec.md §6's GET-response contract (persistent-response
// short-circuit, pinned dispatch-and-await) plus POST ingestion of unpinned
// webhook events. Grounded on internal/webhooks/dispatcher.go's routing
// idiom and internal/middleware/rate_limiter.go's sliding-window limiter.
package webhookfront

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/ocx-labs/plaid/internal/config"
	"github.com/ocx-labs/plaid/internal/loader"
	"github.com/ocx-labs/plaid/internal/logback"
	"github.com/ocx-labs/plaid/internal/message"
)

// Dispatcher is the narrow interface the front end needs: enqueue a
// message, non-blocking.
type Dispatcher interface {
	Enqueue(ctx context.Context, msg *message.Message) bool
}

// Front is the webhook HTTP server.
type Front struct {
	cfg        config.WebhookConfig
	registry   *loader.Registry
	dispatcher Dispatcher
	logger     *slog.Logger
	limiter    *rateLimiter
	router     *mux.Router
}

// New builds a Front and registers every configured GET route plus the
// generic POST ingestion and logback callback endpoints.
func New(cfg config.WebhookConfig, registry *loader.Registry, dispatcher Dispatcher, logger *slog.Logger) *Front {
	f := &Front{
		cfg:        cfg,
		registry:   registry,
		dispatcher: dispatcher,
		logger:     logger,
		limiter:    newRateLimiter(cfg.RateLimit.MaxCallsPerMinute, cfg.RateLimit.BurstSize),
		router:     mux.NewRouter(),
	}

	for _, route := range cfg.Routes {
		route := route
		f.router.HandleFunc(route.Path, f.handleGet(route)).Methods(http.MethodGet)
	}
	f.router.HandleFunc("/webhook/{logtype}", f.handlePost).Methods(http.MethodPost)
	f.router.HandleFunc("/internal/logback", f.handleLogbackCallback).Methods(http.MethodPost)

	f.router.Use(f.limiter.middleware)
	return f
}

// Handler returns the http.Handler to mount on a server.
func (f *Front) Handler() http.Handler { return f.router }

// handleGet implements the GET-response contract for a single configured
// route bound to one module.
func (f *Front) handleGet(route config.GetRouteConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		m, ok := f.registry.ByName(route.Module)
		if !ok {
			http.Error(w, "module not loaded", http.StatusNotFound)
			return
		}

		if route.UsePersistent && m.Persistent != nil {
			if body, ok := m.Persistent.Get(); ok {
				w.Write([]byte(body))
				return
			}
			if !route.CallOnNone {
				w.WriteHeader(http.StatusNoContent)
				return
			}
		}

		headers := make(map[string]string, len(r.Header))
		for k := range r.Header {
			headers[k] = r.Header.Get(k)
		}
		params := make(map[string]string, len(r.URL.Query()))
		for k := range r.URL.Query() {
			params[k] = r.URL.Query().Get(k)
		}

		msg := message.New(m.Logtype, nil, message.SourceWebhook, message.Unlimited())
		msg.Headers = headers
		msg.QueryParams = params
		msg.ModulePin = m.Name
		msg.ResponseSender = make(message.ResponseChannel, 1)

		if !f.dispatcher.Enqueue(r.Context(), msg) {
			http.Error(w, "dispatcher queue full", http.StatusServiceUnavailable)
			return
		}

		timeout := time.Duration(f.cfg.PersistentWaitSec) * time.Second
		if timeout <= 0 {
			timeout = 30 * time.Second
		}

		select {
		case resp := <-msg.ResponseSender:
			if resp.Status == 0 {
				resp.Status = http.StatusOK
			}
			w.WriteHeader(resp.Status)
			w.Write([]byte(resp.Body))
		case <-time.After(timeout):
			http.Error(w, "rule did not respond in time", http.StatusGatewayTimeout)
		case <-r.Context().Done():
		}
	}
}

// handlePost ingests an unpinned webhook event, fanning out to every module
// subscribed to the logtype named in the path.
func (f *Front) handlePost(w http.ResponseWriter, r *http.Request) {
	logtype := mux.Vars(r)["logtype"]

	body, err := io.ReadAll(io.LimitReader(r.Body, 4<<20))
	if err != nil {
		http.Error(w, "failed to read body", http.StatusBadRequest)
		return
	}
	defer r.Body.Close()

	headers := make(map[string]string, len(r.Header))
	for k := range r.Header {
		headers[k] = r.Header.Get(k)
	}
	params := make(map[string]string, len(r.URL.Query()))
	for k := range r.URL.Query() {
		params[k] = r.URL.Query().Get(k)
	}

	msg := message.New(logtype, body, message.SourceWebhook, message.Unlimited())
	msg.Headers = headers
	msg.QueryParams = params

	if !f.dispatcher.Enqueue(r.Context(), msg) {
		http.Error(w, "dispatcher queue full", http.StatusServiceUnavailable)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

// handleLogbackCallback receives a delayed logback delivered by
// internal/logback's Cloud Tasks scheduler and re-enqueues it.
func (f *Front) handleLogbackCallback(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		http.Error(w, "failed to read body", http.StatusBadRequest)
		return
	}
	defer r.Body.Close()

	msg, err := logback.FromWire(body)
	if err != nil {
		f.logger.Error("webhookfront: bad logback callback payload", "error", err)
		http.Error(w, "bad payload", http.StatusBadRequest)
		return
	}

	if !f.dispatcher.Enqueue(r.Context(), msg) {
		http.Error(w, "dispatcher queue full", http.StatusServiceUnavailable)
		return
	}
	w.WriteHeader(http.StatusOK)
}
