// Package server provides the HTTP API for kaiwa.
package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/hyperjump/kaiwa/internal/config"
	"github.com/hyperjump/kaiwa/internal/events"
	"github.com/hyperjump/kaiwa/internal/extract"
	"github.com/hyperjump/kaiwa/internal/interview"
	"github.com/hyperjump/kaiwa/internal/questionbank"
	"github.com/hyperjump/kaiwa/internal/retrieval"
	"github.com/hyperjump/kaiwa/internal/search"
	"github.com/hyperjump/kaiwa/pkg/utils"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.uber.org/zap"
)

const (
	serviceName           = "kaiwa"
	defaultMaxUploadBytes = 10 << 20
	maxJSONBytes          = 1 << 20
)

// Deps are the components behind the API.
type Deps struct {
	Retrieval  *retrieval.Service
	Banks      *questionbank.Manager
	Interviews *interview.Service
	Extractor  *extract.Extractor
	// Search defaults to an engine over Banks.General.
	Search     *search.Engine
	Events     events.Publisher
	Logger     *zap.Logger
}

// Server is the HTTP server for the kaiwa API.
type Server struct {
	retrieval  *retrieval.Service
	banks      *questionbank.Manager
	interviews *interview.Service
	extractor  *extract.Extractor
	search     *search.Engine
	events     events.Publisher
	config     *config.ServerConfig
	logger     *zap.Logger
	server     *http.Server
	now        func() time.Time
}

// NewServer creates a server with the given dependencies.
func NewServer(deps Deps, cfg *config.ServerConfig) *Server {
	if cfg == nil {
		cfg = &config.ServerConfig{}
	}
	pub := deps.Events
	if pub == nil {
		pub = events.Nop{}
	}
	ex := deps.Extractor
	if ex == nil {
		ex = extract.NewExtractor()
	}
	engine := deps.Search
	if engine == nil && deps.Banks != nil {
		engine = search.NewEngine(deps.Banks.General, 0)
	}
	return &Server{
		retrieval:  deps.Retrieval,
		banks:      deps.Banks,
		interviews: deps.Interviews,
		extractor:  ex,
		search:     engine,
		events:     pub,
		config:     cfg,
		logger:     utils.OrNop(deps.Logger),
		now:        time.Now,
	}
}

// Handler returns the instrumented router.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.requestLogger)
	r.Use(middleware.Recoverer)
	timeout := s.config.RequestTimeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	r.Use(middleware.Timeout(timeout))
	r.Use(middleware.Compress(5))

	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/context", s.handleBuildContext)
		r.Post("/context/upload", s.handleUploadContext)
		r.Post("/context/query", s.handleQueryContext)

		r.Post("/sessions", s.handleStartSession)
		r.Get("/sessions/{id}", s.handleGetSession)
		r.Post("/sessions/{id}/messages", s.handleMessage)
		r.Post("/sessions/{id}/end", s.handleEndSession)
		r.Get("/sessions/{id}/feedback", s.handleFeedback)

		r.Post("/rags", s.handleBuildRAG)
		r.Get("/rags/{id}", s.handleGetRAG)
		r.Delete("/rags/{id}", s.handleDeleteRAG)
		r.Post("/rags/{id}/question", s.handleRAGQuestion)
		r.Post("/rags/{id}/query", s.handleRAGQuery)

		r.Post("/questions/random", s.handleRandomQuestion)
		r.Post("/questions/query", s.handleQueryQuestions)
		r.Get("/questions/search", s.handleSearchQuestions)
		r.Post("/questions/rebuild", s.handleRebuild)

		r.Get("/stats", s.handleStats)
	})
	r.Get("/health", s.handleHealth)

	return otelhttp.NewHandler(r, serviceName)
}

// requestLogger logs each request through zap once it completes.
func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		s.logger.Debug("request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.Duration("duration", time.Since(start)),
			zap.String("request_id", middleware.GetReqID(r.Context())))
	})
}

// Start starts the HTTP server and blocks until it stops.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)
	s.server = &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	s.logger.Info("Starting server", zap.String("addr", addr))
	return s.server.ListenAndServe()
}

// Stop gracefully shuts down the server.
func (s *Server) Stop(ctx context.Context) error {
	if s.server != nil {
		return s.server.Shutdown(ctx)
	}
	return nil
}

func (s *Server) maxUploadBytes() int64 {
	if s.config.MaxUploadBytes > 0 {
		return s.config.MaxUploadBytes
	}
	return defaultMaxUploadBytes
}
