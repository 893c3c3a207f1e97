// Package api provides the HTTP surface for submitting simplet jobs and
// managing running stacks.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/artpar/simplets/internal/core/domain"
	"github.com/artpar/simplets/internal/shell/docker"
	"github.com/artpar/simplets/internal/shell/registry"
	"github.com/artpar/simplets/internal/shell/store"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// maxOverrideBytes bounds a job override body.
const maxOverrideBytes = 1 << 20

// Jobs runs deployments and manages registered stacks.
type Jobs interface {
	Run(ctx context.Context, service string, override []byte) string
	Stop(ctx context.Context, key string) error
	Remove(ctx context.Context, key string) error
}

// stackInspector is implemented by stacks that can describe themselves.
type stackInspector interface {
	Info() docker.StackInfo
}

// =============================================================================
// Handler
// =============================================================================

// Handler provides HTTP handlers for the API.
type Handler struct {
	jobs     Jobs
	registry *registry.Registry
	store    store.Store
	metrics  http.Handler
	logger   *slog.Logger
}

// NewHandler creates a new API handler. The store and metrics handler are
// optional.
func NewHandler(jobs Jobs, reg *registry.Registry, s store.Store, metrics http.Handler, l *slog.Logger) *Handler {
	if l == nil {
		l = slog.Default()
	}
	return &Handler{
		jobs:     jobs,
		registry: reg,
		store:    s,
		metrics:  metrics,
		logger:   l,
	}
}

// Routes returns the router with all routes configured.
func (h *Handler) Routes() http.Handler {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(h.requestIDHeader)

	r.Get("/health", h.handleHealth)
	if h.metrics != nil {
		r.Method(http.MethodGet, "/metrics", h.metrics)
	}

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(h.jsonContentType)

		r.Post("/jobs/{service}", h.handleRunJob)

		r.Route("/stacks", func(r chi.Router) {
			r.Get("/", h.handleListStacks)
			r.Get("/{key}", h.handleGetStack)
			r.Post("/{key}/stop", h.handleStopStack)
			r.Delete("/{key}", h.handleRemoveStack)
		})

		r.Get("/deployments", h.handleListDeployments)
		r.Get("/deployments/{id}", h.handleGetDeployment)
	})

	return r
}

// =============================================================================
// Middleware
// =============================================================================

// jsonContentType sets Content-Type header to application/json.
func (h *Handler) jsonContentType(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		next.ServeHTTP(w, r)
	})
}

// requestIDHeader copies the request ID to the response header.
func (h *Handler) requestIDHeader(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if reqID := middleware.GetReqID(r.Context()); reqID != "" {
			w.Header().Set("X-Request-ID", reqID)
		}
		next.ServeHTTP(w, r)
	})
}

// =============================================================================
// Health Handlers
// =============================================================================

func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	h.writeJSON(w, http.StatusOK, HealthResponse{
		Status:        "healthy",
		RunningStacks: h.registry.Len(),
	})
}

// =============================================================================
// Job Handlers
// =============================================================================

// handleRunJob always answers 200 once the body is read: the outcome of the
// deployment is carried in the message.
func (h *Handler) handleRunJob(w http.ResponseWriter, r *http.Request) {
	service := chi.URLParam(r, "service")

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxOverrideBytes))
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "failed to read request body", "validation_error")
		return
	}

	message := h.jobs.Run(r.Context(), service, body)
	h.writeJSON(w, http.StatusOK, JobResponse{Message: message})
}

// =============================================================================
// Stack Handlers
// =============================================================================

func (h *Handler) handleListStacks(w http.ResponseWriter, r *http.Request) {
	entries := h.registry.List()

	resp := ListStacksResponse{
		Stacks: make([]StackResponse, 0, len(entries)),
		Total:  len(entries),
	}
	for _, e := range entries {
		resp.Stacks = append(resp.Stacks, stackToResponse(e))
	}

	h.writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) handleGetStack(w http.ResponseWriter, r *http.Request) {
	key := chi.URLParam(r, "key")

	entry, err := h.registry.Get(key)
	if err != nil {
		h.writeError(w, http.StatusNotFound, "stack not found", "stack_not_found")
		return
	}

	h.writeJSON(w, http.StatusOK, stackToResponse(entry))
}

func (h *Handler) handleStopStack(w http.ResponseWriter, r *http.Request) {
	key := chi.URLParam(r, "key")

	if err := h.jobs.Stop(r.Context(), key); err != nil {
		h.writeStackError(w, key, "stop", err)
		return
	}

	h.writeJSON(w, http.StatusOK, StackActionResponse{Key: key, Status: "stopped"})
}

func (h *Handler) handleRemoveStack(w http.ResponseWriter, r *http.Request) {
	key := chi.URLParam(r, "key")

	if err := h.jobs.Remove(r.Context(), key); err != nil {
		h.writeStackError(w, key, "remove", err)
		return
	}

	h.writeJSON(w, http.StatusOK, StackActionResponse{Key: key, Status: "removed"})
}

func (h *Handler) writeStackError(w http.ResponseWriter, key, op string, err error) {
	switch {
	case errors.Is(err, registry.ErrNotFound):
		h.writeError(w, http.StatusNotFound, "stack not found", "stack_not_found")
	case errors.Is(err, docker.ErrInvalidState), errors.Is(err, docker.ErrStackRemoved):
		h.writeError(w, http.StatusConflict, err.Error(), "invalid_state")
	default:
		h.logger.Error("stack operation failed", "op", op, "key", key, "error", err)
		h.writeError(w, http.StatusInternalServerError, "failed to "+op+" stack", "engine_error")
	}
}

// =============================================================================
// Ledger Handlers
// =============================================================================

func (h *Handler) handleListDeployments(w http.ResponseWriter, r *http.Request) {
	if h.store == nil {
		h.writeError(w, http.StatusServiceUnavailable, "deployment ledger disabled", "ledger_disabled")
		return
	}

	opts := store.DefaultListOptions()
	if limit := r.URL.Query().Get("limit"); limit != "" {
		if l, err := strconv.Atoi(limit); err == nil {
			opts.Limit = l
		}
	}
	if offset := r.URL.Query().Get("offset"); offset != "" {
		if o, err := strconv.Atoi(offset); err == nil {
			opts.Offset = o
		}
	}
	opts = opts.Normalize()

	var (
		list []domain.Deployment
		err  error
	)
	if key := r.URL.Query().Get("key"); key != "" {
		list, err = h.store.ListDeploymentsByKey(r.Context(), key, opts)
	} else {
		list, err = h.store.ListDeployments(r.Context(), opts)
	}
	if err != nil {
		h.logger.Error("failed to list deployments", "error", err)
		h.writeError(w, http.StatusInternalServerError, "failed to list deployments", "internal_error")
		return
	}

	deployments := make([]DeploymentResponse, 0, len(list))
	for _, d := range list {
		deployments = append(deployments, deploymentToResponse(d))
	}

	h.writeJSON(w, http.StatusOK, ListDeploymentsResponse{
		Deployments: deployments,
		Total:       len(deployments),
		Limit:       opts.Limit,
		Offset:      opts.Offset,
	})
}

func (h *Handler) handleGetDeployment(w http.ResponseWriter, r *http.Request) {
	if h.store == nil {
		h.writeError(w, http.StatusServiceUnavailable, "deployment ledger disabled", "ledger_disabled")
		return
	}

	id := chi.URLParam(r, "id")
	d, err := h.store.GetDeployment(r.Context(), id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			h.writeError(w, http.StatusNotFound, "deployment not found", "deployment_not_found")
			return
		}
		h.logger.Error("failed to get deployment", "id", id, "error", err)
		h.writeError(w, http.StatusInternalServerError, "failed to get deployment", "internal_error")
		return
	}

	h.writeJSON(w, http.StatusOK, deploymentToResponse(*d))
}

// =============================================================================
// Helpers
// =============================================================================

func (h *Handler) writeJSON(w http.ResponseWriter, status int, v any) {
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.logger.Error("failed to encode JSON", "error", err)
	}
}

func (h *Handler) writeError(w http.ResponseWriter, status int, message, code string) {
	h.writeJSON(w, status, ErrorResponse{
		Error: message,
		Code:  code,
	})
}
