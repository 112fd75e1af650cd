package agent

import (
	"context"

	"github.com/ashureev/mindx/internal/domain"
)

// Gateway is the transport to the agent platform.
// Implementations never retry on their own.
type Gateway interface {
	// Invoke sends text and optional asset ids to one agent and returns its verdict.
	Invoke(ctx context.Context, req Request) (Verdict, error)

	// UploadEvidence stores one file and returns the asset ids it was assigned.
	UploadEvidence(ctx context.Context, ev domain.Evidence) ([]string, error)

	// Name identifies the transport for diagnostics.
	Name() string

	// Close releases resources.
	Close() error
}

// Ensure the transports implement Gateway.
var (
	_ Gateway = (*GrpcClient)(nil)
	_ Gateway = (*HTTPClient)(nil)
	_ Gateway = DisabledGateway{}
)

// DisabledGateway fails every call. It is wired when no transport is configured
// so every flow runs its fallback path.
type DisabledGateway struct{}

// Invoke always fails with ErrUnavailable.
func (DisabledGateway) Invoke(context.Context, Request) (Verdict, error) {
	return nil, ErrUnavailable
}

// UploadEvidence always fails with ErrUnavailable.
func (DisabledGateway) UploadEvidence(context.Context, domain.Evidence) ([]string, error) {
	return nil, ErrUnavailable
}

// Name implements Gateway.
func (DisabledGateway) Name() string { return "disabled" }

// Close implements Gateway.
func (DisabledGateway) Close() error { return nil }
