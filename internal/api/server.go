package api

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/roach88/tally/internal/ir"
	"github.com/roach88/tally/internal/registry"
	"github.com/roach88/tally/internal/store"
)

// CallerHeader carries the address a DID update is made on behalf of.
// Signature verification happens upstream of this service.
const CallerHeader = "X-Caller-Address"

// Server holds the dependencies of the HTTP handlers.
type Server struct {
	store    *store.Store
	registry *registry.Registry
	gatherer prometheus.Gatherer
	ingester Ingester
	logger   *slog.Logger
	metrics  *httpMetrics
}

// Ingester accepts ledger events for asynchronous application.
// *engine.Engine satisfies it.
type Ingester interface {
	NewBatch() string
	Enqueue(ev ir.LedgerEvent) bool
	// QueueLen and Seq are reported by /healthz.
	QueueLen() int
	Seq() int64
}

// Option configures a Server.
type Option func(*Server)

// WithLogger sets the request logger. Defaults to slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) {
		s.logger = logger
	}
}

// WithIngest enables POST /v1/events, which hands event batches to in.
func WithIngest(in Ingester) Option {
	return func(s *Server) {
		s.ingester = in
	}
}

// WithPrometheus registers request metrics on reg and serves gatherer at
// /metrics. Without it /metrics serves the default registry.
func WithPrometheus(reg prometheus.Registerer, gatherer prometheus.Gatherer) Option {
	return func(s *Server) {
		s.metrics = newHTTPMetrics(reg)
		s.gatherer = gatherer
	}
}

// New creates a Server.
func New(st *store.Store, reg *registry.Registry, opts ...Option) *Server {
	s := &Server{
		store:    st,
		registry: reg,
		gatherer: prometheus.DefaultGatherer,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Handler returns the router.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID, middleware.RealIP, middleware.Recoverer, s.requestLogger)

	r.Get("/healthz", s.health)
	r.Handle("/metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))

	r.Route("/v1/projects/{address}", func(r chi.Router) {
		r.Get("/", s.getProject)
		r.Get("/donors", s.getProjectDonors)
		r.Get("/contributions", s.getProjectContributions)
		r.Get("/milestones", s.getProjectMilestones)
	})
	r.Get("/v1/donors/{address}", s.getDonor)
	if s.ingester != nil {
		r.Post("/v1/events", s.postEvents)
	}

	r.Route("/v1/did", func(r chi.Router) {
		r.Get("/events", s.streamDocumentUpdates)
		r.Get("/{address}", s.getDocument)
		r.Put("/{address}", s.putDocument)
	})

	return r
}

type errorResponse struct {
	Error string `json:"error"`
}

func (s *Server) json(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func (s *Server) error(w http.ResponseWriter, code int, msg string) {
	s.json(w, code, errorResponse{Error: msg})
}

func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		route := chi.RouteContext(r.Context()).RoutePattern()
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		s.metrics.observe(r.Method, route, status)
		s.logger.Debug("http request",
			"method", r.Method,
			"path", r.URL.Path,
			"route", route,
			"status", status,
			"bytes", ww.BytesWritten(),
			"request_id", middleware.GetReqID(r.Context()),
		)
	})
}
