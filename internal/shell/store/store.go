package store

import (
	"context"

	"github.com/fabricd/fabricd/internal/core/domain"
)

// =============================================================================
// Store Interface
// =============================================================================

// Store defines the persistence interface for fabricd entities.
type Store interface {
	// Container operations. SaveContainer and DeleteContainer are
	// compare-and-swap on Container.Version.
	CreateContainer(ctx context.Context, container *domain.Container) error
	GetContainer(ctx context.Context, id string) (*domain.Container, error)
	SaveContainer(ctx context.Context, container *domain.Container) error
	DeleteContainer(ctx context.Context, id string, version int64) error
	ListContainers(ctx context.Context, opts ListOptions) ([]domain.Container, error)

	// Blueprint operations
	CreateBlueprint(ctx context.Context, blueprint *domain.Blueprint) error
	GetBlueprint(ctx context.Context, id string) (*domain.Blueprint, error)
	UpdateBlueprint(ctx context.Context, blueprint *domain.Blueprint) error
	DeleteBlueprint(ctx context.Context, id string) error
	ListBlueprints(ctx context.Context, opts ListOptions) ([]domain.Blueprint, error)
	AppendBlueprintError(ctx context.Context, record domain.ErrorRecord) error

	// Input operations
	CreateInput(ctx context.Context, input *domain.Input) error
	GetInput(ctx context.Context, key string) (*domain.Input, error)
	UpdateInput(ctx context.Context, input *domain.Input) error
	DeleteInput(ctx context.Context, key string) error
	ListInputs(ctx context.Context) ([]domain.Input, error)

	// Transaction support
	WithTx(ctx context.Context, fn func(Store) error) error

	// Lifecycle
	Close() error
}

// =============================================================================
// Options
// =============================================================================

// ListOptions defines pagination options.
type ListOptions struct {
	Limit  int
	Offset int
}

// DefaultListOptions returns default list options.
func DefaultListOptions() ListOptions {
	return ListOptions{
		Limit:  100,
		Offset: 0,
	}
}

// Normalize ensures list options have valid values.
func (o ListOptions) Normalize() ListOptions {
	if o.Limit <= 0 {
		o.Limit = 100
	}
	if o.Limit > 1000 {
		o.Limit = 1000
	}
	if o.Offset < 0 {
		o.Offset = 0
	}
	return o
}
