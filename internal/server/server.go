// Package server hosts the food admin page, its JSON API and the server side
// of the extension interference filter.
package server

import (
	"bytes"
	"context"
	"embed"
	"errors"
	"fmt"
	"html/template"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/poku-e/foodadmin/internal/catalog"
	"github.com/poku-e/foodadmin/internal/interference"
	"github.com/poku-e/foodadmin/internal/logger"
	"github.com/poku-e/foodadmin/internal/prefs"
)

//go:embed templates/*.html
var tmplFS embed.FS

var adminTmpl = template.Must(template.ParseFS(tmplFS, "templates/admin.html"))

// Options wires the server's collaborators.
type Options struct {
	Addr            string
	ShutdownTimeout time.Duration
	Title           string

	Catalog *catalog.Catalog
	Prefs   *prefs.Store
	Filter  *interference.Filter
	Sweeper *interference.Sweeper
	// FetchMode is passed to the browser gate.
	FetchMode interference.FetchMode
	// SweepInterval is passed to the browser gate and drives the shell sweep.
	SweepInterval  time.Duration
	StyleHeuristic bool
	Logger         logger.Logger
}

type Server struct {
	opts     Options
	log      logger.Logger
	mux      *http.ServeMux
	registry *prometheus.Registry
	shell    *interference.Page
}

// gateConfig is embedded in the admin page for the browser-side gate.
type gateConfig struct {
	Revision       interference.Revision `json:"revision"`
	Entries        []string              `json:"entries"`
	Selectors      []string              `json:"selectors"`
	FetchMode      string                `json:"fetchMode"`
	SweepInterval  int64                 `json:"sweepIntervalMs"`
	StyleHeuristic bool                  `json:"styleHeuristic"`
}

type pageData struct {
	Title     string
	FoodCount int
	Gate      gateConfig
}

// New renders the admin shell and registers every route.
func New(opts Options) (*Server, error) {
	if opts.Catalog == nil || opts.Prefs == nil || opts.Filter == nil {
		return nil, errors.New("server: catalog, prefs and filter are required")
	}
	if opts.Logger == nil {
		opts.Logger = logger.NewNop()
	}
	if opts.SweepInterval <= 0 {
		opts.SweepInterval = interference.DefaultSweepInterval
	}
	if opts.ShutdownTimeout <= 0 {
		opts.ShutdownTimeout = 10 * time.Second
	}
	if opts.Sweeper == nil {
		opts.Sweeper = opts.Filter.Sweeper(interference.WithInterval(opts.SweepInterval))
	}
	if opts.FetchMode == "" {
		opts.FetchMode = interference.FetchReject
	}
	if opts.Title == "" {
		opts.Title = "Food Admin"
	}

	s := &Server{
		opts:     opts,
		log:      opts.Logger.Named("server"),
		mux:      http.NewServeMux(),
		registry: prometheus.NewRegistry(),
	}
	s.registry.MustRegister(
		interference.NewCollector(opts.Filter),
		collectors.NewGoCollector(),
	)

	shell, err := s.renderShell()
	if err != nil {
		return nil, err
	}
	s.shell = shell
	s.routes()
	return s, nil
}

func (s *Server) renderShell() (*interference.Page, error) {
	dl := s.opts.Filter.Denylist()
	data := pageData{
		Title:     s.opts.Title,
		FoodCount: s.opts.Catalog.Len(),
		Gate: gateConfig{
			Revision:       dl.Revision(),
			Entries:        dl.Entries(),
			Selectors:      s.opts.Sweeper.Selectors(),
			FetchMode:      string(s.opts.FetchMode),
			SweepInterval:  s.opts.SweepInterval.Milliseconds(),
			StyleHeuristic: s.opts.StyleHeuristic,
		},
	}
	var buf bytes.Buffer
	if err := adminTmpl.Execute(&buf, data); err != nil {
		return nil, fmt.Errorf("render admin page: %w", err)
	}
	page, err := interference.NewPage(&buf)
	if err != nil {
		return nil, err
	}
	s.opts.Filter.Observer(page).Scan()
	s.opts.Sweeper.Sweep(page)
	return page, nil
}

func (s *Server) routes() {
	s.mux.HandleFunc("GET /{$}", s.handleIndex)
	s.mux.HandleFunc("GET /api/foods", s.handleFoods)
	s.mux.HandleFunc("GET /api/food/{id}", s.handleFood)
	s.mux.HandleFunc("/api/preferences", s.handlePreferences)
	s.mux.HandleFunc("GET /api/interference/denylist", s.handleDenylist)
	s.mux.HandleFunc("POST /api/interference/signal", s.handleSignal)
	s.mux.HandleFunc("POST /api/interference/sanitize", s.handleSanitize)
	s.mux.Handle("GET /debug/interference", s.opts.Filter.DebugHandler())
	s.mux.HandleFunc("POST /debug/interference/reset", s.handleReset)
	s.mux.Handle("GET /metrics", promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{}))
}

// Handler returns the routed handler with common headers and request logging.
func (s *Server) Handler() http.Handler {
	return withCommonHeaders(s.withRequestLog(s.mux))
}

// ListenAndServe serves until ctx is done, then shuts down gracefully. The
// admin shell is swept on the configured interval meanwhile.
func (s *Server) ListenAndServe(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.opts.Addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	sweepCtx, stopSweep := context.WithCancel(ctx)
	defer stopSweep()
	go s.opts.Sweeper.Run(sweepCtx, s.shell)

	errCh := make(chan error, 1)
	go func() {
		s.log.Info("listening", logger.String("addr", s.opts.Addr))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.opts.ShutdownTimeout)
	defer cancel()
	s.log.Info("shutting down")
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}

func withCommonHeaders(h http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		if r.Method == http.MethodOptions {
			w.Header().Set("Access-Control-Allow-Methods", "GET,POST,OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
			w.WriteHeader(http.StatusNoContent)
			return
		}
		h.ServeHTTP(w, r)
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (s *Server) withRequestLog(h http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		h.ServeHTTP(rec, r)
		s.log.Debug("request",
			logger.String("method", r.Method),
			logger.String("path", r.URL.Path),
			logger.Int("status", rec.status),
			logger.Duration("duration", time.Since(start)))
	})
}
