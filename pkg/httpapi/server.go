// Package httpapi exposes the engine's prediction and learning
// operations over HTTP: a net/http.Server wrapped in Start/Stop with a
// context.Context-bound graceful shutdown, serving CapiForge's own JSON
// endpoints rather than a database wire protocol.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/hyperforge/capiforge/pkg/engine"
	"github.com/hyperforge/capiforge/pkg/learning"
	"github.com/hyperforge/capiforge/pkg/obslog"
	"github.com/hyperforge/capiforge/pkg/types"
)

var log = obslog.WithPrefix("httpapi")

// ErrServerClosed is returned by Start after Stop has been called.
var ErrServerClosed = errors.New("httpapi: server closed")

// Config controls the listen address and HTTP timeouts.
type Config struct {
	Address      string
	Port         int
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// DefaultConfig returns a Config listening on :8080 with 15s timeouts.
func DefaultConfig() Config {
	return Config{Address: "", Port: 8080, ReadTimeout: 15 * time.Second, WriteTimeout: 15 * time.Second}
}

// Server serves the engine's operations over HTTP.
type Server struct {
	cfg    Config
	engine *engine.Engine

	httpServer *http.Server
	listener   net.Listener
	closed     atomic.Bool
	started    time.Time
}

// New builds a Server over eng, not yet listening.
func New(eng *engine.Engine, cfg Config) *Server {
	return &Server{cfg: cfg, engine: eng}
}

// Start begins listening and serving in a background goroutine.
func (s *Server) Start() error {
	if s.closed.Load() {
		return ErrServerClosed
	}
	addr := fmt.Sprintf("%s:%d", s.cfg.Address, s.cfg.Port)
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("httpapi: listen on %s: %w", addr, err)
	}
	s.listener = listener
	s.started = time.Now()

	s.httpServer = &http.Server{
		Handler:      s.buildRouter(),
		ReadTimeout:  s.cfg.ReadTimeout,
		WriteTimeout: s.cfg.WriteTimeout,
	}
	go func() {
		if err := s.httpServer.Serve(listener); err != nil && err != http.ErrServerClosed {
			log.Error("server exited", map[string]any{"err": err})
		}
	}()
	log.Info("server started", map[string]any{"addr": listener.Addr().String()})
	return nil
}

// Stop gracefully shuts the server down.
func (s *Server) Stop(ctx context.Context) error {
	if !s.closed.CompareAndSwap(false, true) {
		return nil
	}
	if s.httpServer != nil {
		return s.httpServer.Shutdown(ctx)
	}
	return nil
}

// Addr returns the server's bound listen address.
func (s *Server) Addr() string {
	if s.listener != nil {
		return s.listener.Addr().String()
	}
	return ""
}

func (s *Server) buildRouter() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", s.handleHealth)
	mux.HandleFunc("/stats", s.handleStats)
	mux.HandleFunc("/score", s.handleScore)
	mux.HandleFunc("/predict", s.handlePredict)
	mux.HandleFunc("/hyperpath", s.handleHyperpath)
	mux.HandleFunc("/execute", s.handleExecute)
	return mux
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.engine.Predict.GetStats())
}

type scoreRequest struct {
	Intent       string         `json:"intent"`
	ContextNodes []types.NodeID `json:"context_nodes"`
}

func (s *Server) handleScore(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "POST only")
		return
	}
	var req scoreRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	scores, err := s.engine.Predict.ScoreCapabilities(r.Context(), req.Intent, req.ContextNodes)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, scores)
}

func (s *Server) handlePredict(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "POST only")
		return
	}
	var req scoreRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	suggestion, err := s.engine.Predict.PredictNextNode(r.Context(), req.Intent, req.ContextNodes)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if suggestion == nil {
		writeJSON(w, http.StatusOK, nil)
		return
	}
	writeJSON(w, http.StatusOK, suggestion)
}

type hyperpathRequest struct {
	Source types.NodeID `json:"source"`
	Target types.NodeID `json:"target,omitempty"` // omitted: find_all_shortest_paths from Source
}

// handleHyperpath runs find_shortest_hyperpath when Target is set, or
// find_all_shortest_paths from Source otherwise.
func (s *Server) handleHyperpath(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "POST only")
		return
	}
	var req hyperpathRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.Target != "" {
		result, err := s.engine.FindShortestHyperpath(req.Source, req.Target)
		if err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		writeJSON(w, http.StatusOK, result)
		return
	}
	results, err := s.engine.FindAllShortestPaths(req.Source)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, results)
}

type executeRequest struct {
	RootID    types.TraceID         `json:"root_id"`
	IntentEmb []float32             `json:"intent_emb"`
	Traces    []executeRequestTrace `json:"traces"`
}

type executeRequestTrace struct {
	TraceID       types.TraceID   `json:"trace_id"`
	ParentTraceID types.TraceID   `json:"parent_trace_id"`
	Kind          types.TraceKind `json:"kind"`
	NodeID        types.NodeID    `json:"node_id"`
	StartedAt     int64           `json:"started_at"`
	FinishedAt    int64           `json:"finished_at"`
	Success       bool            `json:"success"`
	ExecutedPath  []types.NodeID  `json:"executed_path"`
}

func (s *Server) handleExecute(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "POST only")
		return
	}
	var req executeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	ex := learning.Execution{RootID: req.RootID, IntentEmb: req.IntentEmb}
	for _, t := range req.Traces {
		ex.Traces = append(ex.Traces, &types.ExecutionTrace{
			TraceID:       t.TraceID,
			ParentTraceID: t.ParentTraceID,
			Kind:          t.Kind,
			NodeID:        t.NodeID,
			StartedAt:     time.Unix(0, t.StartedAt),
			FinishedAt:    time.Unix(0, t.FinishedAt),
			Success:       t.Success,
			ExecutedPath:  t.ExecutedPath,
			IntentEmb:     req.IntentEmb,
		})
	}

	result, err := s.engine.Learning.CompleteExecution(ex)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
