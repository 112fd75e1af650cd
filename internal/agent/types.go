// Package agent implements the gateway to the four decision agents and the
// rules for reading their verdicts.
package agent

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrUnavailable is returned when no gateway transport is configured or reachable.
	ErrUnavailable = errors.New("agent gateway unavailable")
	// ErrTimeout is the terminal error of a call that exceeded its flow's bound.
	ErrTimeout = errors.New("agent call timed out")
	// ErrEmptyVerdict means the gateway reported success without a result object.
	ErrEmptyVerdict = errors.New("agent returned no result")
	// ErrRejected means the gateway answered with a non-success envelope.
	ErrRejected = errors.New("agent call rejected")
	// ErrNoAssets means an upload completed but produced no asset identifiers.
	ErrNoAssets = errors.New("upload returned no asset ids")
)

// Role names one of the four agents.
type Role string

const (
	// RoleOrchestrator answers free-form chat and detects crisis signals.
	RoleOrchestrator Role = "orchestrator"
	// RoleTaskRecommender proposes personalized wellness tasks.
	RoleTaskRecommender Role = "task_recommender"
	// RoleEvidenceVerifier checks uploaded evidence against a task.
	RoleEvidenceVerifier Role = "evidence_verifier"
	// RoleModerator rates pod messages for severity.
	RoleModerator Role = "moderator"
)

// Roles lists every agent role.
var Roles = []Role{RoleOrchestrator, RoleTaskRecommender, RoleEvidenceVerifier, RoleModerator}

// Request is a single agent invocation.
type Request struct {
	AgentID string
	Message string
	Assets  []string
}

// OutcomeKind classifies a finished invocation.
type OutcomeKind int

const (
	// OutcomeVerdict means a verdict object came back. Individual fields may still be missing.
	OutcomeVerdict OutcomeKind = iota
	// OutcomeGatewayError covers transport failures and non-success envelopes.
	OutcomeGatewayError
	// OutcomeTimeout means the flow's bound expired before the gateway answered.
	OutcomeTimeout
)

func (k OutcomeKind) String() string {
	switch k {
	case OutcomeVerdict:
		return "verdict"
	case OutcomeGatewayError:
		return "gateway_error"
	case OutcomeTimeout:
		return "timeout"
	default:
		return fmt.Sprintf("outcome(%d)", int(k))
	}
}

// Outcome is the result every flow interprets.
type Outcome struct {
	Kind     OutcomeKind
	Verdict  Verdict
	Err      error
	Duration time.Duration
}

// OK reports whether a verdict is available.
func (o Outcome) OK() bool {
	return o.Kind == OutcomeVerdict && o.Verdict != nil
}

// ServiceConfig maps roles to agent identifiers and per-flow bounds.
type ServiceConfig struct {
	AgentIDs      map[Role]string
	Timeouts      map[Role]time.Duration
	UploadTimeout time.Duration
}

// DefaultTimeout applies to a role with no configured bound.
const DefaultTimeout = 30 * time.Second
