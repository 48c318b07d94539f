// Package server exposes metrics and run progress over HTTP while a run is
// in flight.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/unkn0wn-root/cascheck"
	"github.com/unkn0wn-root/cascheck/report"
	"github.com/unkn0wn-root/cascheck/scenario"
)

// Results reads back recorded entries of a run.
type Results interface {
	Collect(ctx context.Context, run string) ([]report.Entry, error)
}

// Options configure a Server.
type Options struct {
	Addr        string       // "" => :9090
	MetricsPath string       // "" => /metrics
	Metrics     http.Handler // nil => no metrics route
	Results     Results      // nil => /runs answers 404
	State       func() scenario.State
	Logger      cascheck.Logger // if nil, NopLogger is used
}

type Server struct {
	router *mux.Router
	http   *http.Server
	opts   Options
	log    cascheck.Logger
}

func New(opts Options) *Server {
	if opts.Addr == "" {
		opts.Addr = ":9090"
	}
	if opts.MetricsPath == "" {
		opts.MetricsPath = "/metrics"
	}
	s := &Server{router: mux.NewRouter(), opts: opts, log: opts.Logger}
	if s.log == nil {
		s.log = cascheck.NopLogger{}
	}
	s.http = &http.Server{
		Addr:              opts.Addr,
		Handler:           s.router,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      30 * time.Second,
	}
	s.routes()
	return s
}

func (s *Server) routes() {
	s.router.HandleFunc("/healthz", s.health).Methods(http.MethodGet)
	if s.opts.Metrics != nil {
		s.router.Handle(s.opts.MetricsPath, s.opts.Metrics).Methods(http.MethodGet)
	}
	s.router.HandleFunc("/state", s.state).Methods(http.MethodGet)
	s.router.HandleFunc("/runs/{run}", s.run).Methods(http.MethodGet)
	s.router.HandleFunc("/runs/{run}/summary", s.summary).Methods(http.MethodGet)
}

// Handler is the routed handler, for tests and embedding.
func (s *Server) Handler() http.Handler { return s.router }

// Start serves in the background; listener errors other than a clean
// shutdown are logged.
func (s *Server) Start() {
	go func() {
		s.log.Info("status server listening", cascheck.Fields{"addr": s.opts.Addr})
		if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.log.Error("status server stopped", cascheck.Fields{"err": err})
		}
	}()
}

func (s *Server) Shutdown(ctx context.Context) error { return s.http.Shutdown(ctx) }

func (s *Server) health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) state(w http.ResponseWriter, _ *http.Request) {
	if s.opts.State == nil {
		writeJSON(w, http.StatusOK, map[string]string{"phase": scenario.NotStarted.String()})
		return
	}
	st := s.opts.State()
	writeJSON(w, http.StatusOK, map[string]any{"phase": st.Phase.String(), "index": st.Index, "scenario": st.Name})
}

func (s *Server) entries(w http.ResponseWriter, r *http.Request) (string, []report.Entry, bool) {
	run := mux.Vars(r)["run"]
	if s.opts.Results == nil {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "results are not recorded"})
		return run, nil, false
	}
	es, err := s.opts.Results.Collect(r.Context(), run)
	switch {
	case errors.Is(err, report.ErrUnknownRun):
		writeJSON(w, http.StatusNotFound, map[string]string{"error": err.Error()})
		return run, nil, false
	case err != nil:
		s.log.Warn("collect failed", cascheck.Fields{"run": run, "err": err})
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return run, nil, false
	}
	return run, es, true
}

func (s *Server) run(w http.ResponseWriter, r *http.Request) {
	if _, es, ok := s.entries(w, r); ok {
		writeJSON(w, http.StatusOK, es)
	}
}

func (s *Server) summary(w http.ResponseWriter, r *http.Request) {
	run, es, ok := s.entries(w, r)
	if !ok {
		return
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	if err := report.WriteText(w, run, es); err != nil {
		s.log.Warn("summary write failed", cascheck.Fields{"run": run, "err": err})
	}
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
