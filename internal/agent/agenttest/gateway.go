// Package agenttest provides a scriptable agent gateway for tests.
package agenttest

import (
	"context"
	"sync"
	"time"

	"github.com/ashureev/mindx/internal/agent"
	"github.com/ashureev/mindx/internal/domain"
)

// Agent identifiers used by NewService.
const (
	OrchestratorID = "orchestrator-test"
	RecommenderID  = "recommender-test"
	VerifierID     = "verifier-test"
	ModeratorID    = "moderator-test"
)

// Gateway records calls and answers them with the configured funcs.
// A nil func fails the call with agent.ErrUnavailable.
type Gateway struct {
	InvokeFunc func(ctx context.Context, req agent.Request) (agent.Verdict, error)
	UploadFunc func(ctx context.Context, ev domain.Evidence) ([]string, error)

	mu      sync.Mutex
	calls   []agent.Request
	uploads []domain.Evidence
}

var _ agent.Gateway = (*Gateway)(nil)

// Invoke implements agent.Gateway.
func (g *Gateway) Invoke(ctx context.Context, req agent.Request) (agent.Verdict, error) {
	g.mu.Lock()
	g.calls = append(g.calls, req)
	fn := g.InvokeFunc
	g.mu.Unlock()
	if fn == nil {
		return nil, agent.ErrUnavailable
	}
	return fn(ctx, req)
}

// UploadEvidence implements agent.Gateway.
func (g *Gateway) UploadEvidence(ctx context.Context, ev domain.Evidence) ([]string, error) {
	g.mu.Lock()
	g.uploads = append(g.uploads, ev)
	fn := g.UploadFunc
	g.mu.Unlock()
	if fn == nil {
		return nil, agent.ErrUnavailable
	}
	return fn(ctx, ev)
}

// Name implements agent.Gateway.
func (g *Gateway) Name() string { return "fake" }

// Close implements agent.Gateway.
func (g *Gateway) Close() error { return nil }

// Calls returns a copy of the recorded invocations.
func (g *Gateway) Calls() []agent.Request {
	g.mu.Lock()
	defer g.mu.Unlock()
	out := make([]agent.Request, len(g.calls))
	copy(out, g.calls)
	return out
}

// Uploads returns how many uploads were attempted.
func (g *Gateway) Uploads() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.uploads)
}

// Reply returns an InvokeFunc that always answers with v.
func Reply(v agent.Verdict) func(context.Context, agent.Request) (agent.Verdict, error) {
	return func(context.Context, agent.Request) (agent.Verdict, error) {
		return v, nil
	}
}

// Fail returns an InvokeFunc that always fails with err.
func Fail(err error) func(context.Context, agent.Request) (agent.Verdict, error) {
	return func(context.Context, agent.Request) (agent.Verdict, error) {
		return nil, err
	}
}

// Block returns an InvokeFunc that waits for ctx to end.
func Block() func(context.Context, agent.Request) (agent.Verdict, error) {
	return func(ctx context.Context, _ agent.Request) (agent.Verdict, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	}
}

// Assets returns an UploadFunc that answers with ids.
func Assets(ids ...string) func(context.Context, domain.Evidence) ([]string, error) {
	return func(context.Context, domain.Evidence) ([]string, error) {
		return ids, nil
	}
}

// NewService wraps gw in an agent.Service with test ids and the given bound for every role.
func NewService(gw agent.Gateway, timeout time.Duration) *agent.Service {
	timeouts := make(map[agent.Role]time.Duration, len(agent.Roles))
	for _, r := range agent.Roles {
		timeouts[r] = timeout
	}
	svc, err := agent.NewService(gw, agent.ServiceConfig{
		AgentIDs: map[agent.Role]string{
			agent.RoleOrchestrator:     OrchestratorID,
			agent.RoleTaskRecommender:  RecommenderID,
			agent.RoleEvidenceVerifier: VerifierID,
			agent.RoleModerator:        ModeratorID,
		},
		Timeouts:      timeouts,
		UploadTimeout: timeout,
	}, nil)
	if err != nil {
		panic(err)
	}
	return svc
}
