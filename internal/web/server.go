// Package web provides the HTTP surface of the controller: the status
// page, the remote-command endpoints, the panel endpoint and /metrics.
package web

import (
	"context"
	"net"
	"net/http"
	"time"

	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/sweeney/fancoil-controller/internal/message"
	"github.com/sweeney/fancoil-controller/internal/metrics"
	"github.com/sweeney/fancoil-controller/internal/status"
)

// DefaultTimeout bounds how long a request waits on the orchestrator.
const DefaultTimeout = 5 * time.Second

// PanelInput receives user changes made through the panel endpoint.
type PanelInput interface {
	Interact(ctx context.Context, target *float64, speed *int) error
}

// Options configures a Server.
type Options struct {
	Addr    string
	Token   string
	Timeout time.Duration
}

// Server serves the status page and the remote endpoints over HTTP.
type Server struct {
	httpServer *http.Server
	tracker    *status.Tracker
	panel      PanelInput
	out        chan<- message.Message
	token      string
	timeout    time.Duration
	log        *zap.Logger
	metrics    *metrics.Metrics
}

// New creates a Server. Remote commands are enqueued on out; the status
// page reads the tracker.
func New(o Options, tracker *status.Tracker, pn PanelInput, out chan<- message.Message, log *zap.Logger, m *metrics.Metrics) *Server {
	if o.Timeout <= 0 {
		o.Timeout = DefaultTimeout
	}
	s := &Server{
		tracker: tracker,
		panel:   pn,
		out:     out,
		token:   o.Token,
		timeout: o.Timeout,
		log:     log,
		metrics: m,
	}

	r := mux.NewRouter()
	r.HandleFunc("/", s.handleIndex).Methods(http.MethodGet)
	r.HandleFunc("/index.html", s.handleIndex).Methods(http.MethodGet)
	r.HandleFunc("/index.json", s.handleJSON).Methods(http.MethodGet)
	r.Handle("/metrics", promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{})).Methods(http.MethodGet)

	for _, ep := range remoteEndpoints {
		r.HandleFunc(ep.path, s.handleRemote(ep)).Methods(http.MethodPost)
	}
	r.HandleFunc("/panel", s.handlePanel).Methods(http.MethodPost)

	std := zap.NewStdLog(log.Named("http"))
	var h http.Handler = handlers.RecoveryHandler(
		handlers.RecoveryLogger(std),
		handlers.PrintRecoveryStack(true),
	)(r)
	h = handlers.CombinedLoggingHandler(std.Writer(), h)

	s.httpServer = &http.Server{
		Addr:              o.Addr,
		Handler:           h,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

// Handler returns the root handler. Useful for tests.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// ListenAndServe starts listening. It blocks until the server is shut down.
func (s *Server) ListenAndServe() error {
	return s.httpServer.ListenAndServe()
}

// Serve accepts connections on the given listener.
func (s *Server) Serve(ln net.Listener) error {
	return s.httpServer.Serve(ln)
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	snap := s.tracker.Snapshot()
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := renderHTML(w, snap); err != nil {
		s.log.Warn("render status page", zap.Error(err))
	}
}

func (s *Server) handleJSON(w http.ResponseWriter, r *http.Request) {
	snap := s.tracker.Snapshot()
	w.Header().Set("Content-Type", "application/json")
	w.Write(status.FormatJSON(snap))
}
