// Package api exposes the orchestrator over HTTP.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/fabricd/fabricd/internal/core/domain"
	"github.com/fabricd/fabricd/internal/shell/api/openapi"
	"github.com/fabricd/fabricd/internal/shell/orchestrator"
	"github.com/fabricd/fabricd/internal/shell/store"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-playground/validator/v10"
)

// DefaultMaxArchiveBytes bounds uploaded blueprint archives.
const DefaultMaxArchiveBytes = 64 << 20

// Orchestrator is the subset of *orchestrator.Service the handlers use.
type Orchestrator interface {
	SyncContainer(ctx context.Context, containerID, blueprintID string, opts orchestrator.SyncOptions) (orchestrator.SyncResult, error)
	Redeploy(ctx context.Context, containerID string, opts orchestrator.SyncOptions) (orchestrator.SyncResult, error)
	Undeploy(ctx context.Context, containerID string) (orchestrator.SyncResult, error)

	CreateContainer(ctx context.Context, description string) (*domain.Container, error)
	GetContainer(ctx context.Context, id string) (*domain.Container, error)
	ListContainers(ctx context.Context, opts store.ListOptions) ([]domain.Container, error)
	DeleteContainer(ctx context.Context, id string) error
	ContainerNodes(ctx context.Context, id string) ([]orchestrator.Node, error)

	RegisterBlueprint(ctx context.Context, archive io.Reader) (*domain.Blueprint, error)
	DiscardBlueprint(ctx context.Context, id string) error
	GetBlueprint(ctx context.Context, id string) (*domain.Blueprint, error)
	ListBlueprints(ctx context.Context, opts store.ListOptions) ([]domain.Blueprint, error)

	CreateInput(ctx context.Context, input domain.Input) (*domain.Input, error)
	GetInput(ctx context.Context, key string) (*domain.Input, error)
	UpdateInput(ctx context.Context, key string, value, description *string) (*domain.Input, error)
	DeleteInput(ctx context.Context, key string) error
	ListInputs(ctx context.Context) ([]domain.Input, error)
}

// =============================================================================
// Handler
// =============================================================================

// Config holds the collaborators of a Handler.
type Config struct {
	Orchestrator    Orchestrator
	Metrics         http.Handler // served at /metrics when set
	Logger          *slog.Logger
	MaxArchiveBytes int64
	Version         string
}

// Handler provides HTTP handlers for the API.
type Handler struct {
	orch            Orchestrator
	metrics         http.Handler
	logger          *slog.Logger
	validate        *validator.Validate
	openapi         *openapi.Generator
	maxArchiveBytes int64
}

// NewHandler creates a new API handler.
func NewHandler(cfg Config) *Handler {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.MaxArchiveBytes <= 0 {
		cfg.MaxArchiveBytes = DefaultMaxArchiveBytes
	}
	if cfg.Version == "" {
		cfg.Version = "dev"
	}
	return &Handler{
		orch:            cfg.Orchestrator,
		metrics:         cfg.Metrics,
		logger:          logger.With("component", "api"),
		validate:        validator.New(validator.WithRequiredStructEnabled()),
		openapi:         newDocument(cfg.Version),
		maxArchiveBytes: cfg.MaxArchiveBytes,
	}
}

// Routes returns the router with all routes configured.
func (h *Handler) Routes() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(h.requestIDHeader)

	r.Get("/health", h.handleHealth)
	r.Get("/openapi.json", h.openapi.Handler())
	if h.metrics != nil {
		r.Handle("/metrics", h.metrics)
	}

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(h.jsonContentType)

		r.Route("/containers", func(r chi.Router) {
			r.Post("/", h.handleCreateContainer)
			r.Get("/", h.handleListContainers)
			r.Get("/{id}", h.handleGetContainer)
			r.Delete("/{id}", h.handleDeleteContainer)
			r.Post("/{id}/blueprint", h.handleDeployBlueprint)
			r.Put("/{id}/blueprint", h.handleRedeploy)
			r.Delete("/{id}/blueprint", h.handleUndeploy)
			r.Get("/{id}/nodes", h.handleContainerNodes)
		})

		r.Route("/blueprints", func(r chi.Router) {
			r.Get("/", h.handleListBlueprints)
			r.Get("/{id}", h.handleGetBlueprint)
			r.Get("/{id}/outputs", h.handleBlueprintOutputs)
		})

		r.Route("/inputs", func(r chi.Router) {
			r.Post("/", h.handleCreateInput)
			r.Get("/", h.handleListInputs)
			r.Get("/{key}", h.handleGetInput)
			r.Patch("/{key}", h.handleUpdateInput)
			r.Delete("/{key}", h.handleDeleteInput)
		})
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

func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	h.writeJSON(w, http.StatusOK, HealthResponse{Status: "healthy"})
}

// =============================================================================
// Container Handlers
// =============================================================================

func (h *Handler) handleCreateContainer(w http.ResponseWriter, r *http.Request) {
	var req CreateContainerRequest
	if !h.decode(w, r, &req) {
		return
	}

	c, err := h.orch.CreateContainer(r.Context(), req.Description)
	if err != nil {
		h.writeServiceError(w, err, "container")
		return
	}
	h.writeJSON(w, http.StatusCreated, containerToResponse(c))
}

func (h *Handler) handleGetContainer(w http.ResponseWriter, r *http.Request) {
	c, err := h.orch.GetContainer(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeServiceError(w, err, "container")
		return
	}
	h.writeJSON(w, http.StatusOK, containerToResponse(c))
}

func (h *Handler) handleListContainers(w http.ResponseWriter, r *http.Request) {
	opts := listOptions(r)
	containers, err := h.orch.ListContainers(r.Context(), opts)
	if err != nil {
		h.writeServiceError(w, err, "container")
		return
	}

	resp := ListContainersResponse{
		Containers: make([]ContainerResponse, 0, len(containers)),
		Total:      len(containers),
		Limit:      opts.Limit,
		Offset:     opts.Offset,
	}
	for i := range containers {
		resp.Containers = append(resp.Containers, containerToResponse(&containers[i]))
	}
	h.writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) handleDeleteContainer(w http.ResponseWriter, r *http.Request) {
	if err := h.orch.DeleteContainer(r.Context(), chi.URLParam(r, "id")); err != nil {
		h.writeServiceError(w, err, "container")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleDeployBlueprint stores the uploaded archive as a new blueprint and
// syncs the container to it. The blueprint is discarded when the container
// cannot take it.
func (h *Handler) handleDeployBlueprint(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := chi.URLParam(r, "id")

	if _, err := h.orch.GetContainer(ctx, id); err != nil {
		h.writeServiceError(w, err, "container")
		return
	}

	bp, err := h.orch.RegisterBlueprint(ctx, http.MaxBytesReader(w, r.Body, h.maxArchiveBytes))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			h.writeError(w, http.StatusRequestEntityTooLarge, "blueprint archive too large", "archive_too_large")
			return
		}
		h.writeServiceError(w, err, "blueprint")
		return
	}

	res, err := h.orch.SyncContainer(ctx, id, bp.ID, orchestrator.SyncOptions{RegisterApp: queryBool(r, "register_app")})
	if err != nil {
		if discardErr := h.orch.DiscardBlueprint(context.WithoutCancel(ctx), bp.ID); discardErr != nil {
			h.logger.Warn("failed to discard rejected blueprint", "blueprint_id", bp.ID, "error", discardErr)
		}
		h.writeSyncError(w, res, err)
		return
	}

	h.logger.Info("blueprint deploy accepted", "container_id", id, "blueprint_id", bp.ID)
	h.writeSyncAccepted(ctx, w, id, bp.ID, res)
}

func (h *Handler) handleRedeploy(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := chi.URLParam(r, "id")

	res, err := h.orch.Redeploy(ctx, id, orchestrator.SyncOptions{RegisterApp: queryBool(r, "register_app")})
	if err != nil {
		h.writeSyncError(w, res, err)
		return
	}
	h.writeSyncAccepted(ctx, w, id, "", res)
}

func (h *Handler) handleUndeploy(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := chi.URLParam(r, "id")

	res, err := h.orch.Undeploy(ctx, id)
	if err != nil {
		h.writeSyncError(w, res, err)
		return
	}
	h.writeSyncAccepted(ctx, w, id, "", res)
}

// handleContainerNodes lists node addresses; ?raw returns a bare IP list.
func (h *Handler) handleContainerNodes(w http.ResponseWriter, r *http.Request) {
	nodes, err := h.orch.ContainerNodes(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeServiceError(w, err, "container")
		return
	}

	if _, raw := r.URL.Query()["raw"]; raw {
		ips := make([]string, 0, len(nodes))
		for _, n := range nodes {
			ips = append(ips, n.IP)
		}
		h.writeJSON(w, http.StatusOK, ips)
		return
	}

	resp := make([]NodeResponse, 0, len(nodes))
	for _, n := range nodes {
		resp = append(resp, NodeResponse{ID: n.ID, NodeID: n.NodeID, IP: n.IP})
	}
	h.writeJSON(w, http.StatusOK, resp)
}

// =============================================================================
// Blueprint Handlers
// =============================================================================

func (h *Handler) handleGetBlueprint(w http.ResponseWriter, r *http.Request) {
	bp, err := h.orch.GetBlueprint(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeServiceError(w, err, "blueprint")
		return
	}
	h.writeJSON(w, http.StatusOK, blueprintToResponse(bp))
}

func (h *Handler) handleListBlueprints(w http.ResponseWriter, r *http.Request) {
	opts := listOptions(r)
	blueprints, err := h.orch.ListBlueprints(r.Context(), opts)
	if err != nil {
		h.writeServiceError(w, err, "blueprint")
		return
	}

	resp := ListBlueprintsResponse{
		Blueprints: make([]BlueprintResponse, 0, len(blueprints)),
		Total:      len(blueprints),
		Limit:      opts.Limit,
		Offset:     opts.Offset,
	}
	for i := range blueprints {
		resp.Blueprints = append(resp.Blueprints, blueprintToResponse(&blueprints[i]))
	}
	h.writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) handleBlueprintOutputs(w http.ResponseWriter, r *http.Request) {
	bp, err := h.orch.GetBlueprint(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeServiceError(w, err, "blueprint")
		return
	}
	h.writeJSON(w, http.StatusOK, outputsToResponse(bp.Outputs))
}

// =============================================================================
// Input Handlers
// =============================================================================

func (h *Handler) handleCreateInput(w http.ResponseWriter, r *http.Request) {
	var req CreateInputRequest
	if !h.decode(w, r, &req) {
		return
	}

	in, err := h.orch.CreateInput(r.Context(), domain.Input{
		Key:         req.Key,
		Value:       req.Value,
		Description: req.Description,
	})
	if err != nil {
		h.writeServiceError(w, err, "input")
		return
	}
	h.writeJSON(w, http.StatusCreated, inputToResponse(in))
}

func (h *Handler) handleGetInput(w http.ResponseWriter, r *http.Request) {
	in, err := h.orch.GetInput(r.Context(), chi.URLParam(r, "key"))
	if err != nil {
		h.writeServiceError(w, err, "input")
		return
	}
	h.writeJSON(w, http.StatusOK, inputToResponse(in))
}

func (h *Handler) handleListInputs(w http.ResponseWriter, r *http.Request) {
	inputs, err := h.orch.ListInputs(r.Context())
	if err != nil {
		h.writeServiceError(w, err, "input")
		return
	}
	resp := ListInputsResponse{Inputs: make([]InputResponse, 0, len(inputs))}
	for i := range inputs {
		resp.Inputs = append(resp.Inputs, inputToResponse(&inputs[i]))
	}
	h.writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) handleUpdateInput(w http.ResponseWriter, r *http.Request) {
	key := chi.URLParam(r, "key")

	var req UpdateInputRequest
	if !h.decode(w, r, &req) {
		return
	}
	if req.Key != nil && *req.Key != key {
		h.writeError(w, http.StatusBadRequest, "input key cannot be changed", "validation_error")
		return
	}

	in, err := h.orch.UpdateInput(r.Context(), key, req.Value, req.Description)
	if err != nil {
		h.writeServiceError(w, err, "input")
		return
	}
	h.writeJSON(w, http.StatusOK, inputToResponse(in))
}

func (h *Handler) handleDeleteInput(w http.ResponseWriter, r *http.Request) {
	if err := h.orch.DeleteInput(r.Context(), chi.URLParam(r, "key")); err != nil {
		h.writeServiceError(w, err, "input")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// =============================================================================
// Helpers
// =============================================================================

// decode reads and validates a JSON body, writing a 400 on failure.
func (h *Handler) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid JSON", "validation_error")
		return false
	}
	if err := h.validate.Struct(v); err != nil {
		h.writeError(w, http.StatusBadRequest, validationMessage(err), "validation_error")
		return false
	}
	return true
}

func validationMessage(err error) string {
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		fe := verrs[0]
		if fe.Param() != "" {
			return fmt.Sprintf("%s failed %s=%s", fe.Field(), fe.Tag(), fe.Param())
		}
		return fmt.Sprintf("%s is %s", fe.Field(), fe.Tag())
	}
	return err.Error()
}

func (h *Handler) writeSyncAccepted(ctx context.Context, w http.ResponseWriter, containerID, blueprintID string, res orchestrator.SyncResult) {
	resp := SyncResponse{Accepted: res.Accepted, Message: res.Message, BlueprintID: blueprintID}
	if c, err := h.orch.GetContainer(ctx, containerID); err == nil {
		cr := containerToResponse(c)
		resp.Container = &cr
	}
	h.writeJSON(w, http.StatusAccepted, resp)
}

func (h *Handler) writeSyncError(w http.ResponseWriter, res orchestrator.SyncResult, err error) {
	if errors.Is(err, domain.ErrContainerBusy) && res.Message != "" {
		h.writeError(w, http.StatusConflict, res.Message, "container_busy")
		return
	}
	h.writeServiceError(w, err, "container")
}

// writeServiceError maps orchestrator and store errors to status codes.
func (h *Handler) writeServiceError(w http.ResponseWriter, err error, entity string) {
	switch {
	case errors.Is(err, orchestrator.ErrNoActiveBlueprint):
		h.writeError(w, http.StatusNotFound, "container has no active blueprint", "no_active_blueprint")
	case store.IsNotFound(err):
		h.writeError(w, http.StatusNotFound, entity+" not found", entity+"_not_found")
	case errors.Is(err, domain.ErrContainerBusy), errors.Is(err, store.ErrVersionConflict):
		h.writeError(w, http.StatusConflict, "container is busy", "container_busy")
	case errors.Is(err, domain.ErrContainerNotEmpty):
		h.writeError(w, http.StatusBadRequest, "container has an active blueprint", "container_not_empty")
	case errors.Is(err, domain.ErrInvalidInput):
		h.writeError(w, http.StatusBadRequest, err.Error(), "validation_error")
	case errors.Is(err, store.ErrDuplicateID):
		h.writeError(w, http.StatusConflict, entity+" already exists", entity+"_exists")
	case errors.Is(err, orchestrator.ErrQueueFull), errors.Is(err, orchestrator.ErrPoolStopped):
		h.writeError(w, http.StatusServiceUnavailable, "pipeline queue unavailable", "queue_unavailable")
	default:
		h.logger.Error("request failed", "entity", entity, "error", err)
		h.writeError(w, http.StatusInternalServerError, "internal error", "internal_error")
	}
}

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

func listOptions(r *http.Request) store.ListOptions {
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
	return opts.Normalize()
}

func queryBool(r *http.Request, name string) bool {
	v, err := strconv.ParseBool(r.URL.Query().Get(name))
	return err == nil && v
}
