// Package gateway exposes the rollout engine over HTTP. It is the layer
// that turns engine decisions into workload actions: after every mutating
// call it applies the resulting traffic split and reports failures back.
package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-logr/logr"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/apollo/canaria/pkg/canary"
	"github.com/apollo/canaria/pkg/driver"
	"github.com/apollo/canaria/pkg/engine"
	"github.com/apollo/canaria/pkg/metricsource"
	"github.com/apollo/canaria/pkg/store"
	"github.com/apollo/canaria/pkg/workload"
)

const maxBodyBytes = 1 << 20

// TickRequest optionally carries an inline metrics snapshot. When present it
// overrides the server's configured metrics source for this tick, letting an
// external pipeline push its own observation.
type TickRequest struct {
	Sample *canary.MetricsSnapshot `json:"sample,omitempty"`
}

// RollbackRequest parameterizes a manual rollback.
type RollbackRequest struct {
	InitiatedBy string `json:"initiatedBy"`
	Reason      string `json:"reason"`
}

// CancelRequest parameterizes a cancellation.
type CancelRequest struct {
	Reason string `json:"reason"`
}

// ApproveRequest records who approved promotion.
type ApproveRequest struct {
	ApprovedBy string `json:"approvedBy"`
}

// CompleteRollbackRequest reports the outcome of an externally executed
// traffic revert.
type CompleteRollbackRequest struct {
	RollbackID   string `json:"rollbackId"`
	Success      bool   `json:"success"`
	ErrorMessage string `json:"errorMessage,omitempty"`
}

type errorResponse struct {
	Error string `json:"error"`
}

// Server serves the rollout HTTP API.
type Server struct {
	engine   *engine.Engine
	source   engine.MetricsSource
	workload workload.Controller
	log      logr.Logger

	addr      string
	authToken string

	server *http.Server
}

// New constructs a Server. source and ctl may be nil; ticks then evaluate
// without metrics (inconclusive) and traffic application is skipped.
func New(eng *engine.Engine, source engine.MetricsSource, ctl workload.Controller, addr, token string, log logr.Logger) *Server {
	return &Server{
		engine:    eng,
		source:    source,
		workload:  ctl,
		log:       log,
		addr:      addr,
		authToken: strings.TrimSpace(token),
	}
}

// Start runs the HTTP server until the context is cancelled.
func (s *Server) Start(ctx context.Context) error {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	mux.HandleFunc("/readyz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ready"))
	})
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/v1/rollouts", s.handleCollection)
	mux.HandleFunc("/v1/rollouts/", s.handleRollout)

	s.server = &http.Server{Addr: s.addr, Handler: mux}

	errCh := make(chan error, 1)
	go func() {
		err := s.server.ListenAndServe()
		if !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return err
		}
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = s.server.Shutdown(shutdownCtx)

	select {
	case err := <-errCh:
		if err != nil {
			return err
		}
	default:
	}

	return nil
}

// Handler returns the mux for tests.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/v1/rollouts", s.handleCollection)
	mux.HandleFunc("/v1/rollouts/", s.handleRollout)
	return mux
}

func (s *Server) handleCollection(w http.ResponseWriter, r *http.Request) {
	if !s.authorize(r) {
		s.respondErr(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	switch r.Method {
	case http.MethodPost:
		s.handleCreate(w, r)
	case http.MethodGet:
		s.handleList(w, r)
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func (s *Server) handleRollout(w http.ResponseWriter, r *http.Request) {
	if !s.authorize(r) {
		s.respondErr(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	parts := strings.Split(strings.Trim(r.URL.Path, "/"), "/")
	// parts[0]="v1" parts[1]="rollouts" parts[2]=id parts[3]=action ...
	if len(parts) < 3 || parts[2] == "" {
		http.NotFound(w, r)
		return
	}
	id := parts[2]

	if len(parts) == 3 {
		switch r.Method {
		case http.MethodGet:
			s.handleGet(w, r, id)
		case http.MethodDelete:
			s.handleDelete(w, r, id)
		default:
			w.WriteHeader(http.StatusMethodNotAllowed)
		}
		return
	}

	action := parts[3]

	if r.Method == http.MethodGet {
		switch action {
		case "steps":
			s.handleSteps(w, r, id)
		case "rollbacks":
			s.handleRollbacks(w, r, id)
		default:
			http.NotFound(w, r)
		}
		return
	}
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	if action == "rollback" && len(parts) == 5 && parts[4] == "complete" {
		s.handleCompleteRollback(w, r, id)
		return
	}

	switch action {
	case "start":
		s.mutate(w, r, id, func(ctx context.Context) (*canary.Deployment, error) {
			return s.engine.Start(ctx, id)
		})
	case "tick":
		s.handleTick(w, r, id)
	case "pause":
		s.mutate(w, r, id, func(ctx context.Context) (*canary.Deployment, error) {
			return s.engine.Pause(ctx, id)
		})
	case "resume":
		s.mutate(w, r, id, func(ctx context.Context) (*canary.Deployment, error) {
			return s.engine.Resume(ctx, id)
		})
	case "promote":
		s.mutate(w, r, id, func(ctx context.Context) (*canary.Deployment, error) {
			return s.engine.PromoteNow(ctx, id)
		})
	case "rollback":
		var req RollbackRequest
		if !s.decode(w, r, &req) {
			return
		}
		s.mutate(w, r, id, func(ctx context.Context) (*canary.Deployment, error) {
			return s.engine.RollbackNow(ctx, id, req.InitiatedBy, req.Reason)
		})
	case "cancel":
		var req CancelRequest
		if !s.decode(w, r, &req) {
			return
		}
		s.mutate(w, r, id, func(ctx context.Context) (*canary.Deployment, error) {
			return s.engine.Cancel(ctx, id, req.Reason)
		})
	case "approve":
		var req ApproveRequest
		if !s.decode(w, r, &req) {
			return
		}
		s.mutate(w, r, id, func(ctx context.Context) (*canary.Deployment, error) {
			return s.engine.Approve(ctx, id, req.ApprovedBy)
		})
	default:
		http.NotFound(w, r)
	}
}

func (s *Server) handleCreate(w http.ResponseWriter, r *http.Request) {
	var cfg canary.Config
	if !s.decode(w, r, &cfg) {
		return
	}
	d, err := s.engine.Create(r.Context(), cfg)
	if err != nil {
		s.respondEngineErr(w, err)
		return
	}
	s.respondJSON(w, http.StatusCreated, d)
}

func (s *Server) handleList(w http.ResponseWriter, r *http.Request) {
	ds, err := s.engine.ListDeployments(r.Context())
	if err != nil {
		s.respondEngineErr(w, err)
		return
	}
	s.respondJSON(w, http.StatusOK, ds)
}

func (s *Server) handleGet(w http.ResponseWriter, r *http.Request, id string) {
	d, err := s.engine.GetDeployment(r.Context(), id)
	if err != nil {
		s.respondEngineErr(w, err)
		return
	}
	s.respondJSON(w, http.StatusOK, d)
}

func (s *Server) handleDelete(w http.ResponseWriter, r *http.Request, id string) {
	if err := s.engine.DeleteDeployment(r.Context(), id); err != nil {
		s.respondEngineErr(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleSteps(w http.ResponseWriter, r *http.Request, id string) {
	steps, err := s.engine.GetSteps(r.Context(), id)
	if err != nil {
		s.respondEngineErr(w, err)
		return
	}
	s.respondJSON(w, http.StatusOK, steps)
}

func (s *Server) handleRollbacks(w http.ResponseWriter, r *http.Request, id string) {
	recs, err := s.engine.GetRollbackHistory(r.Context(), id)
	if err != nil {
		s.respondEngineErr(w, err)
		return
	}
	s.respondJSON(w, http.StatusOK, recs)
}

func (s *Server) handleTick(w http.ResponseWriter, r *http.Request, id string) {
	src := s.source
	if r.ContentLength != 0 {
		var req TickRequest
		if !s.decode(w, r, &req) {
			return
		}
		if req.Sample != nil {
			src = metricsource.Static{Snapshot: req.Sample}
		}
	}
	s.mutate(w, r, id, func(ctx context.Context) (*canary.Deployment, error) {
		return s.engine.Tick(ctx, id, src)
	})
}

func (s *Server) handleCompleteRollback(w http.ResponseWriter, r *http.Request, id string) {
	var req CompleteRollbackRequest
	if !s.decode(w, r, &req) {
		return
	}
	if req.RollbackID == "" {
		s.respondErr(w, http.StatusBadRequest, "rollbackId is required")
		return
	}
	d, err := s.engine.CompleteRollback(r.Context(), id, req.RollbackID, req.Success, req.ErrorMessage)
	if err != nil {
		s.respondEngineErr(w, err)
		return
	}
	s.respondJSON(w, http.StatusOK, d)
}

// mutate runs an engine mutation and then applies the resulting traffic
// decision to the workload.
func (s *Server) mutate(w http.ResponseWriter, r *http.Request, id string, fn func(context.Context) (*canary.Deployment, error)) {
	ctx := r.Context()
	d, err := fn(ctx)
	if err != nil {
		s.respondEngineErr(w, err)
		return
	}
	d, err = driver.ApplyDecision(ctx, s.engine, s.workload, d, s.log)
	if err != nil {
		s.log.Error(err, "apply decision", "id", id)
		s.respondErr(w, http.StatusInternalServerError, "failed to apply traffic decision")
		return
	}
	s.respondJSON(w, http.StatusOK, d)
}

func (s *Server) authorize(r *http.Request) bool {
	if s.authToken == "" {
		return true
	}
	header := strings.TrimSpace(r.Header.Get("Authorization"))
	return header == "Bearer "+s.authToken
}

func (s *Server) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	defer r.Body.Close()
	if r.ContentLength == 0 {
		return true
	}
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		s.respondErr(w, http.StatusBadRequest, "invalid JSON body")
		return false
	}
	return true
}

func (s *Server) respondJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.log.Error(err, "encode response")
	}
}

func (s *Server) respondErr(w http.ResponseWriter, status int, msg string) {
	s.log.V(1).Info("http error", "status", status, "message", msg)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(errorResponse{Error: msg})
}

func (s *Server) respondEngineErr(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, store.ErrNotFound):
		s.respondErr(w, http.StatusNotFound, err.Error())
	case errors.Is(err, store.ErrExists), errors.Is(err, store.ErrConflict):
		s.respondErr(w, http.StatusConflict, err.Error())
	case errors.Is(err, engine.ErrInvalidTransition):
		s.respondErr(w, http.StatusConflict, err.Error())
	case errors.Is(err, canary.ErrInvalidConfiguration):
		s.respondErr(w, http.StatusBadRequest, err.Error())
	default:
		s.respondErr(w, http.StatusInternalServerError, err.Error())
	}
}
