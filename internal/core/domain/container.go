package domain

import (
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
)

var (
	ErrContainerBusy     = errors.New("container is busy")
	ErrContainerNotEmpty = errors.New("container has an active blueprint")
	ErrInvalidInput      = errors.New("invalid input")
)

// =============================================================================
// Container
// =============================================================================

// Container is a logical deployment slot. Busy is the exclusive lock held by
// an in-flight pipeline; Version is bumped by the store on every write.
type Container struct {
	ID              string    `json:"id"`
	Description     string    `json:"description"`
	ActiveBlueprint string    `json:"active_blueprint,omitempty"`
	QueuedBlueprint string    `json:"queued_blueprint,omitempty"`
	Busy            bool      `json:"busy"`
	Version         int64     `json:"version"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// NewContainer returns an empty, idle container.
func NewContainer(description string) (*Container, error) {
	description = strings.TrimSpace(description)
	if description == "" {
		return nil, errors.Join(ErrInvalidInput, errors.New("description is required"))
	}
	now := time.Now().UTC()
	return &Container{
		ID:          uuid.New().String(),
		Description: description,
		CreatedAt:   now,
		UpdatedAt:   now,
	}, nil
}

// CanDelete reports whether the container may be removed.
func (c *Container) CanDelete() error {
	if c.ActiveBlueprint != "" {
		return ErrContainerNotEmpty
	}
	if c.Busy {
		return ErrContainerBusy
	}
	return nil
}

// Touch bumps UpdatedAt.
func (c *Container) Touch() {
	c.UpdatedAt = time.Now().UTC()
}
