// Package store provides data persistence interfaces and implementations.
package store

import (
	"context"
	"errors"

	"github.com/ashureev/mindx/internal/domain"
)

var (
	// ErrNotFound is returned when no progress record exists for a namespace.
	ErrNotFound = errors.New("progress record not found")
	// ErrVersionConflict is returned when the stored version does not match the expected one.
	ErrVersionConflict = errors.New("progress record version conflict")
)

// Repository persists the progress record.
type Repository interface {
	// LoadProgress returns the record stored under namespace, or ErrNotFound.
	LoadProgress(ctx context.Context, namespace string) (domain.Progress, error)

	// SaveProgress writes p under namespace only if the stored version equals
	// expectedVersion (0 means no record may exist yet). It returns
	// ErrVersionConflict otherwise.
	SaveProgress(ctx context.Context, namespace string, p domain.Progress, expectedVersion int64) error

	// Ping verifies the backend is reachable.
	Ping(ctx context.Context) error

	// Close releases the backend.
	Close() error
}
