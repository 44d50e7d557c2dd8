// Package api exposes the job orchestrator over HTTP.
package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rotisserie/eris"
	"github.com/xeipuuv/gojsonschema"
	"go.uber.org/zap"

	"github.com/sells-group/leadgen/internal/model"
)

// Jobs is the orchestrator surface the handlers need.
type Jobs interface {
	CreateJob(q model.ExtractionQuery) (string, error)
	GetStatus(id string) (model.Job, error)
	GetArtifact(id string) (string, error)
}

// Config tunes the HTTP surface.
type Config struct {
	CORSOrigins  []string
	PreviewLimit int // records returned by /status; default 20
	DefaultLeads int // used when a request omits leads; default 20
}

// Server holds the handlers' dependencies.
type Server struct {
	jobs   Jobs
	cfg    Config
	schema *gojsonschema.Schema
	log    *zap.Logger
}

// New creates a Server and compiles the request schema.
func New(jobs Jobs, cfg Config) (*Server, error) {
	if cfg.PreviewLimit <= 0 {
		cfg.PreviewLimit = 20
	}
	if cfg.DefaultLeads <= 0 {
		cfg.DefaultLeads = 20
	}
	if len(cfg.CORSOrigins) == 0 {
		cfg.CORSOrigins = []string{"*"}
	}

	schema, err := gojsonschema.NewSchema(gojsonschema.NewStringLoader(scrapeRequestSchema))
	if err != nil {
		return nil, eris.Wrap(err, "api: compile request schema")
	}

	return &Server{
		jobs:   jobs,
		cfg:    cfg,
		schema: schema,
		log:    zap.L().With(zap.String("component", "api")),
	}, nil
}

// Router builds the HTTP handler tree.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.accessLog)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: s.cfg.CORSOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type", "X-Request-Id"},
		ExposedHeaders: []string{"Content-Disposition"},
		MaxAge:         300,
	}))

	r.Get("/health", s.handleHealth)
	r.Handle("/metrics", promhttp.Handler())
	r.Post("/scrape", s.handleScrape)
	r.Get("/status/{jobId}", s.handleStatus)
	r.Get("/download/{jobId}", s.handleDownload)
	return r
}

// accessLog logs one line per request after it completes.
func (s *Server) accessLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		defer func() {
			s.log.Info("api: request",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", ww.Status()),
				zap.Int("bytes", ww.BytesWritten()),
				zap.Duration("duration", time.Since(start)),
				zap.String("request_id", middleware.GetReqID(r.Context())),
			)
		}()
		next.ServeHTTP(ww, r)
	})
}
