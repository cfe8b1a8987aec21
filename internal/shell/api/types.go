package api

import (
	"time"

	"github.com/fabricd/fabricd/internal/core/domain"
)

// =============================================================================
// Request Types
// =============================================================================

// CreateContainerRequest is the request body for creating a container.
type CreateContainerRequest struct {
	Description string `json:"description" validate:"required,max=512"`
}

// CreateInputRequest is the request body for creating an input.
type CreateInputRequest struct {
	Key         string `json:"key" validate:"required,max=255"`
	Value       string `json:"value" validate:"required"`
	Description string `json:"description,omitempty" validate:"max=1024"`
}

// UpdateInputRequest is the request body for updating an input. Key may be
// sent back unchanged but never altered.
type UpdateInputRequest struct {
	Key         *string `json:"key,omitempty"`
	Value       *string `json:"value,omitempty" validate:"omitnil,min=1"`
	Description *string `json:"description,omitempty" validate:"omitnil,max=1024"`
}

// =============================================================================
// Response Types
// =============================================================================

// ContainerResponse is the response for container operations.
type ContainerResponse struct {
	ID              string    `json:"id"`
	Description     string    `json:"description"`
	ActiveBlueprint string    `json:"active_blueprint,omitempty"`
	QueuedBlueprint string    `json:"queued_blueprint,omitempty"`
	Busy            bool      `json:"busy"`
	Version         int64     `json:"version"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// ListContainersResponse is the response for listing containers.
type ListContainersResponse struct {
	Containers []ContainerResponse `json:"containers"`
	Total      int                 `json:"total"`
	Limit      int                 `json:"limit"`
	Offset     int                 `json:"offset"`
}

// SyncResponse is returned when a pipeline was scheduled.
type SyncResponse struct {
	Accepted    bool               `json:"accepted"`
	Message     string             `json:"message"`
	BlueprintID string             `json:"blueprint_id,omitempty"`
	Container   *ContainerResponse `json:"container,omitempty"`
}

// BlueprintResponse is the response for blueprint operations.
type BlueprintResponse struct {
	ID        string                    `json:"id"`
	State     string                    `json:"state"`
	Phase     string                    `json:"phase"`
	Outcome   string                    `json:"outcome"`
	Outputs   map[string]OutputResponse `json:"outputs"`
	Errors    []ErrorRecordResponse     `json:"errors"`
	CreatedAt time.Time                 `json:"created_at"`
	UpdatedAt time.Time                 `json:"updated_at"`
}

// OutputResponse is a deployment output.
type OutputResponse struct {
	Value       any    `json:"value"`
	Description string `json:"description,omitempty"`
}

// ErrorRecordResponse is one entry of a blueprint's error log.
type ErrorRecordResponse struct {
	State     string    `json:"state"`
	Message   string    `json:"message"`
	CreatedAt time.Time `json:"created_at"`
}

// ListBlueprintsResponse is the response for listing blueprints.
type ListBlueprintsResponse struct {
	Blueprints []BlueprintResponse `json:"blueprints"`
	Total      int                 `json:"total"`
	Limit      int                 `json:"limit"`
	Offset     int                 `json:"offset"`
}

// InputResponse is the response for input operations.
type InputResponse struct {
	Key         string `json:"key"`
	Value       string `json:"value"`
	Description string `json:"description"`
}

// ListInputsResponse is the response for listing inputs.
type ListInputsResponse struct {
	Inputs []InputResponse `json:"inputs"`
}

// NodeResponse is an addressable node instance.
type NodeResponse struct {
	ID     string `json:"id"`
	NodeID string `json:"node_id"`
	IP     string `json:"ip"`
}

// ErrorResponse is the error response format.
type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

// HealthResponse is the health check response.
type HealthResponse struct {
	Status string `json:"status"`
}

// =============================================================================
// Conversions
// =============================================================================

func containerToResponse(c *domain.Container) ContainerResponse {
	return ContainerResponse{
		ID:              c.ID,
		Description:     c.Description,
		ActiveBlueprint: c.ActiveBlueprint,
		QueuedBlueprint: c.QueuedBlueprint,
		Busy:            c.Busy,
		Version:         c.Version,
		CreatedAt:       c.CreatedAt,
		UpdatedAt:       c.UpdatedAt,
	}
}

func blueprintToResponse(b *domain.Blueprint) BlueprintResponse {
	resp := BlueprintResponse{
		ID:        b.ID,
		State:     b.State.String(),
		Phase:     b.State.Phase.String(),
		Outcome:   string(b.State.Outcome),
		Outputs:   outputsToResponse(b.Outputs),
		Errors:    make([]ErrorRecordResponse, 0, len(b.Errors)),
		CreatedAt: b.CreatedAt,
		UpdatedAt: b.UpdatedAt,
	}
	for _, e := range b.Errors {
		resp.Errors = append(resp.Errors, ErrorRecordResponse{
			State:     e.State.String(),
			Message:   e.Message,
			CreatedAt: e.CreatedAt,
		})
	}
	return resp
}

func outputsToResponse(outputs map[string]domain.Output) map[string]OutputResponse {
	resp := make(map[string]OutputResponse, len(outputs))
	for name, o := range outputs {
		resp[name] = OutputResponse{Value: o.Value, Description: o.Description}
	}
	return resp
}

func inputToResponse(i *domain.Input) InputResponse {
	return InputResponse{Key: i.Key, Value: i.Value, Description: i.Description}
}
