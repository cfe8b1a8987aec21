package domain

import (
	"time"

	"github.com/google/uuid"
)

// =============================================================================
// Blueprint
// =============================================================================

// Output is a single deployment output reported by the fabric manager.
type Output struct {
	Value       any    `json:"value"`
	Description string `json:"description,omitempty"`
}

// ErrorRecord is one entry of a blueprint's append-only failure history.
type ErrorRecord struct {
	ID          string    `json:"id"`
	BlueprintID string    `json:"blueprint_id"`
	State       State     `json:"state"`
	Message     string    `json:"message"`
	CreatedAt   time.Time `json:"created_at"`
}

// Blueprint is an uploaded deployment package and its lifecycle position.
type Blueprint struct {
	ID        string            `json:"id"`
	State     State             `json:"state"`
	Outputs   map[string]Output `json:"outputs,omitempty"`
	Errors    []ErrorRecord     `json:"errors,omitempty"`
	CreatedAt time.Time         `json:"created_at"`
	UpdatedAt time.Time         `json:"updated_at"`
}

// NewBlueprint returns a blueprint that exists locally but has no remote footprint.
func NewBlueprint() *Blueprint {
	now := time.Now().UTC()
	return &Blueprint{
		ID:        uuid.New().String(),
		State:     Succeeded(PhasePresent),
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// SetState moves the blueprint to s and bumps UpdatedAt.
func (b *Blueprint) SetState(s State) {
	b.State = s
	b.UpdatedAt = time.Now().UTC()
}

// Fail marks the current phase failed and returns the error record to persist.
func (b *Blueprint) Fail(message string) ErrorRecord {
	b.SetState(Failed(b.State.Phase))
	return b.RecordError(message)
}

// RecordError appends an error without touching the state.
func (b *Blueprint) RecordError(message string) ErrorRecord {
	rec := ErrorRecord{
		ID:          uuid.New().String(),
		BlueprintID: b.ID,
		State:       b.State,
		Message:     message,
		CreatedAt:   time.Now().UTC(),
	}
	b.Errors = append(b.Errors, rec)
	return rec
}

// HasRemoteFootprint reports whether anything of the blueprint may exist on
// the fabric manager.
func (b *Blueprint) HasRemoteFootprint() bool {
	return b.State.Phase != PhasePresent
}

// IsDeployed reports whether the blueprint finished its deploy pipeline.
func (b *Blueprint) IsDeployed() bool {
	return b.State == Succeeded(PhaseDeployed)
}
