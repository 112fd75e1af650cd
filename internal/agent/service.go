package agent

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/ashureev/mindx/internal/domain"
)

// Service binds the gateway to the configured agent ids and per-flow bounds.
// Every call either yields a verdict or a terminal error; none waits forever.
type Service struct {
	gateway       Gateway
	agentIDs      map[Role]string
	timeouts      map[Role]time.Duration
	uploadTimeout time.Duration
	logger        *slog.Logger
}

// NewService creates a new agent service over a gateway.
func NewService(gateway Gateway, cfg ServiceConfig, logger *slog.Logger) (*Service, error) {
	if gateway == nil {
		gateway = DisabledGateway{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	for _, role := range Roles {
		if cfg.AgentIDs[role] == "" {
			return nil, fmt.Errorf("no agent id configured for %s", role)
		}
	}
	timeouts := make(map[Role]time.Duration, len(Roles))
	for _, role := range Roles {
		d := cfg.Timeouts[role]
		if d <= 0 {
			d = DefaultTimeout
		}
		timeouts[role] = d
	}
	upload := cfg.UploadTimeout
	if upload <= 0 {
		upload = DefaultTimeout
	}
	ids := make(map[Role]string, len(cfg.AgentIDs))
	for k, v := range cfg.AgentIDs {
		ids[k] = v
	}
	return &Service{
		gateway:       gateway,
		agentIDs:      ids,
		timeouts:      timeouts,
		uploadTimeout: upload,
		logger:        logger,
	}, nil
}

// Invoke calls the agent behind role and classifies the result.
func (s *Service) Invoke(ctx context.Context, role Role, message string, assets ...string) Outcome {
	bound := s.timeouts[role]
	callCtx, cancel := context.WithTimeout(ctx, bound)
	defer cancel()

	start := time.Now()
	verdict, err := s.gateway.Invoke(callCtx, Request{
		AgentID: s.agentIDs[role],
		Message: message,
		Assets:  assets,
	})
	elapsed := time.Since(start)

	if err == nil && verdict == nil {
		err = ErrEmptyVerdict
	}
	if err != nil {
		kind := OutcomeGatewayError
		if isDeadline(callCtx, err) && ctx.Err() == nil {
			kind = OutcomeTimeout
			err = fmt.Errorf("%w: %s after %s", ErrTimeout, role, bound)
		}
		s.logger.Warn("agent call failed",
			"agent", role,
			"outcome", kind.String(),
			"duration", elapsed,
			"error", err,
		)
		return Outcome{Kind: kind, Err: err, Duration: elapsed}
	}

	s.logger.Debug("agent call succeeded", "agent", role, "duration", elapsed, "fields", len(verdict))
	return Outcome{Kind: OutcomeVerdict, Verdict: verdict, Duration: elapsed}
}

// Upload stores evidence and returns its asset ids. Zero ids is an error.
func (s *Service) Upload(ctx context.Context, ev domain.Evidence) ([]string, error) {
	callCtx, cancel := context.WithTimeout(ctx, s.uploadTimeout)
	defer cancel()

	ids, err := s.gateway.UploadEvidence(callCtx, ev)
	if err != nil {
		if isDeadline(callCtx, err) && ctx.Err() == nil {
			err = fmt.Errorf("%w: upload after %s", ErrTimeout, s.uploadTimeout)
		}
		return nil, fmt.Errorf("upload evidence: %w", err)
	}
	clean := make([]string, 0, len(ids))
	for _, id := range ids {
		if id != "" {
			clean = append(clean, id)
		}
	}
	if len(clean) == 0 {
		return nil, ErrNoAssets
	}
	return clean, nil
}

// Transport returns the gateway name.
func (s *Service) Transport() string {
	return s.gateway.Name()
}

// AgentID returns the identifier configured for role.
func (s *Service) AgentID(role Role) string {
	return s.agentIDs[role]
}

// Close releases resources.
func (s *Service) Close() {
	if s.gateway != nil {
		if err := s.gateway.Close(); err != nil {
			s.logger.Warn("failed to close agent gateway", "gateway", s.gateway.Name(), "error", err)
		}
	}
}

func isDeadline(ctx context.Context, err error) bool {
	return errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded)
}
