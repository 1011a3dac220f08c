// Package dashboard serves the experiment results, chain outputs and run
// history as a read-only JSON API.
package dashboard

import (
	"context"
	"encoding/json"
	"net/http"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/mux"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/agentic-turing/atm/pkg/analysis"
	"github.com/agentic-turing/atm/pkg/config"
	"github.com/agentic-turing/atm/pkg/cost"
	"github.com/agentic-turing/atm/pkg/logger"
	"github.com/agentic-turing/atm/pkg/pipeline"
	"github.com/agentic-turing/atm/pkg/store"
	"github.com/agentic-turing/atm/pkg/version"
)

const (
	defaultRunLimit = 50
	maxRunLimit     = 1000
	shutdownTimeout = 10 * time.Second
)

var reportNamePattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9_.-]*\.(json|md)$`)

// RunStore is the run history the dashboard reads
type RunStore interface {
	ListRuns(ctx context.Context, limit int) ([]store.Run, error)
	CostSummary(ctx context.Context, currency string) (cost.Summary, error)
}

// ServerConfig holds the configuration for the dashboard server
type ServerConfig struct {
	Addr       string
	ResultsDir string
	OutputsDir string
	Stages     []pipeline.Stage
	Currency   string
}

// Validate validates the server configuration
func (c *ServerConfig) Validate() error {
	if c.Addr == "" {
		return errors.New("address cannot be empty")
	}
	if c.ResultsDir == "" {
		return errors.New("results directory cannot be empty")
	}
	if c.OutputsDir == "" {
		return errors.New("outputs directory cannot be empty")
	}
	return nil
}

// Server is the dashboard HTTP server
type Server struct {
	router *mux.Router
	config ServerConfig
	runs   RunStore
	cache  *reportCache
	server *http.Server
}

// NewServer creates a dashboard server. runs may be nil, in which case the
// run and cost endpoints answer 503.
func NewServer(cfg ServerConfig, runs RunStore) (*Server, error) {
	if err := cfg.Validate(); err != nil {
		return nil, errors.Wrap(err, "invalid server configuration")
	}
	if len(cfg.Stages) == 0 {
		cfg.Stages = pipeline.DefaultStages
	}
	if cfg.Currency == "" {
		cfg.Currency = "USD"
	}

	s := &Server{
		router: mux.NewRouter(),
		config: cfg,
		runs:   runs,
		cache:  newReportCache(cfg.ResultsDir),
	}
	s.setupRoutes()
	return s, nil
}

// Handler returns the routed handler with middleware applied
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) setupRoutes() {
	s.router.HandleFunc("/healthz", s.handleHealth).Methods("GET")

	api := s.router.PathPrefix("/api").Subrouter()
	api.HandleFunc("/results", s.handleResults).Methods("GET")
	api.HandleFunc("/reports", s.handleListReports).Methods("GET")
	api.HandleFunc("/reports/{name}", s.handleGetReport).Methods("GET")
	api.HandleFunc("/outputs/{level:[0-9]+}", s.handleOutputs).Methods("GET")
	api.HandleFunc("/runs", s.handleListRuns).Methods("GET")
	api.HandleFunc("/costs", s.handleCosts).Methods("GET")

	s.router.Use(s.loggingMiddleware)
	s.router.Use(s.corsMiddleware)
}

func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rw := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}

		next.ServeHTTP(rw, r)

		logger.G(r.Context()).WithFields(logrus.Fields{
			"method":      r.Method,
			"path":        r.URL.Path,
			"status":      rw.statusCode,
			"duration":    time.Since(start),
			"remote_addr": r.RemoteAddr,
		}).Debug("HTTP request")
	})
}

func (s *Server) corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// responseWriter captures the status code for the request log
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// handleHealth handles GET /healthz
func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	s.writeJSONResponse(w, map[string]any{
		"status":  "ok",
		"version": version.Get().Version,
	})
}

// handleResults handles GET /api/results
func (s *Server) handleResults(w http.ResponseWriter, r *http.Request) {
	data, err := s.cache.get(analysis.ResultsFileName)
	if os.IsNotExist(err) {
		s.writeErrorResponse(r.Context(), w, http.StatusNotFound, "no analysis results yet, run `atm analyze` first", nil)
		return
	}
	if err != nil {
		s.writeErrorResponse(r.Context(), w, http.StatusInternalServerError, "failed to read analysis results", err)
		return
	}

	var results analysis.Results
	if err := json.Unmarshal(data, &results); err != nil {
		s.writeErrorResponse(r.Context(), w, http.StatusInternalServerError, "malformed analysis results", err)
		return
	}
	s.writeJSONResponse(w, results)
}

// ReportInfo describes one file in the results directory
type ReportInfo struct {
	Name     string    `json:"name"`
	Size     int64     `json:"size"`
	Modified time.Time `json:"modified"`
}

// handleListReports handles GET /api/reports
func (s *Server) handleListReports(w http.ResponseWriter, r *http.Request) {
	entries, err := os.ReadDir(s.config.ResultsDir)
	if err != nil && !os.IsNotExist(err) {
		s.writeErrorResponse(r.Context(), w, http.StatusInternalServerError, "failed to list reports", err)
		return
	}

	reports := make([]ReportInfo, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() || !reportNamePattern.MatchString(entry.Name()) {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		reports = append(reports, ReportInfo{Name: entry.Name(), Size: info.Size(), Modified: info.ModTime().UTC()})
	}
	sort.Slice(reports, func(i, j int) bool { return reports[i].Name < reports[j].Name })

	s.writeJSONResponse(w, map[string]any{"reports": reports})
}

// handleGetReport handles GET /api/reports/{name}
func (s *Server) handleGetReport(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["name"]
	if strings.Contains(name, "..") || filepath.Base(name) != name || !reportNamePattern.MatchString(name) {
		s.writeErrorResponse(r.Context(), w, http.StatusBadRequest, "invalid report name", nil)
		return
	}

	data, err := s.cache.get(name)
	if os.IsNotExist(err) {
		s.writeErrorResponse(r.Context(), w, http.StatusNotFound, "report not found: "+name, nil)
		return
	}
	if err != nil {
		s.writeErrorResponse(r.Context(), w, http.StatusInternalServerError, "failed to read report", err)
		return
	}

	if strings.HasSuffix(name, ".md") {
		w.Header().Set("Content-Type", "text/markdown; charset=utf-8")
	} else {
		w.Header().Set("Content-Type", "application/json")
	}
	w.Write(data)
}

// StageOutput is the text one stage produced
type StageOutput struct {
	Number int    `json:"number"`
	Skill  string `json:"skill"`
	File   string `json:"file"`
	Text   string `json:"text"`
}

// LevelOutputs is everything the chain wrote for one noise level
type LevelOutputs struct {
	NoiseLevel int           `json:"noise_level"`
	Input      string        `json:"input"`
	Stages     []StageOutput `json:"stages"`
}

// handleOutputs handles GET /api/outputs/{level}
func (s *Server) handleOutputs(w http.ResponseWriter, r *http.Request) {
	level, err := strconv.Atoi(mux.Vars(r)["level"])
	if err != nil {
		s.writeErrorResponse(r.Context(), w, http.StatusBadRequest, "invalid noise level", err)
		return
	}

	dir := filepath.Join(s.config.OutputsDir, config.NoiseDirName(level))
	if _, err := os.Stat(dir); os.IsNotExist(err) {
		s.writeErrorResponse(r.Context(), w, http.StatusNotFound, "no outputs for noise level "+strconv.Itoa(level), nil)
		return
	}

	out := LevelOutputs{NoiseLevel: level, Stages: []StageOutput{}}
	if data, err := os.ReadFile(filepath.Join(dir, pipeline.InputFileName)); err == nil {
		out.Input = strings.TrimSpace(string(data))
	}
	for _, stage := range s.config.Stages {
		data, err := os.ReadFile(filepath.Join(dir, stage.OutputFile))
		if err != nil {
			continue
		}
		out.Stages = append(out.Stages, StageOutput{
			Number: stage.Number,
			Skill:  stage.Skill,
			File:   stage.OutputFile,
			Text:   strings.TrimSpace(string(data)),
		})
	}
	s.writeJSONResponse(w, out)
}

// handleListRuns handles GET /api/runs
func (s *Server) handleListRuns(w http.ResponseWriter, r *http.Request) {
	if s.runs == nil {
		s.writeErrorResponse(r.Context(), w, http.StatusServiceUnavailable, "run history unavailable", nil)
		return
	}

	limit := defaultRunLimit
	if l := r.URL.Query().Get("limit"); l != "" {
		parsed, err := strconv.Atoi(l)
		if err != nil || parsed < 1 || parsed > maxRunLimit {
			s.writeErrorResponse(r.Context(), w, http.StatusBadRequest, "limit must be between 1 and 1000", err)
			return
		}
		limit = parsed
	}

	runs, err := s.runs.ListRuns(r.Context(), limit)
	if err != nil {
		s.writeErrorResponse(r.Context(), w, http.StatusInternalServerError, "failed to list runs", err)
		return
	}
	if runs == nil {
		runs = []store.Run{}
	}
	s.writeJSONResponse(w, map[string]any{"runs": runs, "limit": limit})
}

// handleCosts handles GET /api/costs
func (s *Server) handleCosts(w http.ResponseWriter, r *http.Request) {
	if s.runs == nil {
		s.writeErrorResponse(r.Context(), w, http.StatusServiceUnavailable, "run history unavailable", nil)
		return
	}

	summary, err := s.runs.CostSummary(r.Context(), s.config.Currency)
	if err != nil {
		s.writeErrorResponse(r.Context(), w, http.StatusInternalServerError, "failed to summarize costs", err)
		return
	}
	s.writeJSONResponse(w, summary)
}

func (s *Server) writeJSONResponse(w http.ResponseWriter, data any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(data); err != nil {
		logger.G(context.TODO()).WithError(err).Error("failed to encode JSON response")
		http.Error(w, "internal server error", http.StatusInternalServerError)
	}
}

func (s *Server) writeErrorResponse(ctx context.Context, w http.ResponseWriter, statusCode int, message string, err error) {
	if err != nil {
		logger.G(ctx).WithError(err).Error(message)
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	response := map[string]any{
		"error":   message,
		"status":  statusCode,
		"success": false,
	}
	if err := json.NewEncoder(w).Encode(response); err != nil {
		logger.G(ctx).WithError(err).Error("failed to encode error response")
	}
}

// Start serves the dashboard until ctx is cancelled, then shuts down
// gracefully. The report cache follows changes to the results directory
// while the server runs.
func (s *Server) Start(ctx context.Context) error {
	if err := os.MkdirAll(s.config.ResultsDir, 0o755); err != nil {
		return errors.Wrap(err, "failed to create results directory")
	}

	s.server = &http.Server{
		Addr:              s.config.Addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.G(gctx).WithField("addr", s.config.Addr).Info("dashboard listening")
		if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return errors.Wrap(err, "dashboard server failed")
		}
		return nil
	})
	g.Go(func() error {
		return s.cache.watch(gctx)
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(gctx), shutdownTimeout)
		defer cancel()
		return s.server.Shutdown(shutdownCtx)
	})
	return g.Wait()
}
