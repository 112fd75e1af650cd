// Package tasks runs the recommendation and evidence verification flow.
package tasks

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/ashureev/mindx/internal/agent"
	"github.com/ashureev/mindx/internal/domain"
)

// State is the flow's position.
type State string

// Flow states.
const (
	StateIdle      State = "idle"
	StateListing   State = "listing"
	StateDetail    State = "detail"
	StateVerifying State = "verifying"
	StateResolved  State = "resolved"
)

// Result of the last verification attempt.
type Result string

// Verification results.
const (
	ResultNone         Result = ""
	ResultApproved     Result = "approved"
	ResultRejected     Result = "rejected"
	ResultUploadFailed Result = "upload_failed"
	ResultUnavailable  Result = "unavailable"
)

// Fixed texts shown on the task detail.
const (
	DefaultAck            = "Great job!"
	DefaultRejection      = "We couldn't verify this task from the image. Try another photo."
	UploadFailedText      = "Upload failed. Please try again."
	VerifyUnavailableText = "Verification is unavailable right now. Please try again."
)

// DefaultAckDelay is how long the approval acknowledgment stays up.
const DefaultAckDelay = 3 * time.Second

var (
	ackRule       = agent.TextRule{Fields: []string{"feedback_message"}, Default: DefaultAck}
	rejectionRule = agent.TextRule{Fields: []string{"rejection_reason", "feedback_message"}, Default: DefaultRejection}
	pointsRule    = agent.NumberRule{Fields: []string{"points_awarded"}}
)

// ProgressUpdater applies serialized updates to the progress record.
type ProgressUpdater interface {
	Current() domain.Progress
	// Update applies fn to the current record. The in-memory update always
	// happens; a non-nil error reports that it could not be persisted.
	Update(ctx context.Context, fn func(*domain.Progress)) (domain.Progress, error)
}

// Config configures a Flow.
type Config struct {
	Agents           *agent.Service
	Progress         ProgressUpdater
	Logger           *slog.Logger
	AckDelay         time.Duration
	MaxEvidenceBytes int64
	Now              func() time.Time
}

// Flow is the task screen's state. One gateway call runs at a time.
type Flow struct {
	agents      *agent.Service
	progress    ProgressUpdater
	logger      *slog.Logger
	ackDelay    time.Duration
	maxEvidence int64
	now         func() time.Time

	inflight sync.Mutex

	mu         sync.Mutex
	state      State
	candidates []domain.TaskCandidate
	selected   int
	evidence   *domain.Evidence
	result     Result
	feedback   string
	awarded    int
	gen        uint64
	ackTimer   *time.Timer
}

// NewFlow creates a flow in the idle state.
func NewFlow(cfg Config) *Flow {
	f := &Flow{
		agents:      cfg.Agents,
		progress:    cfg.Progress,
		logger:      cfg.Logger,
		ackDelay:    cfg.AckDelay,
		maxEvidence: cfg.MaxEvidenceBytes,
		now:         cfg.Now,
		state:       StateIdle,
		selected:    -1,
	}
	if f.logger == nil {
		f.logger = slog.Default()
	}
	if f.ackDelay <= 0 {
		f.ackDelay = DefaultAckDelay
	}
	if f.now == nil {
		f.now = time.Now
	}
	return f
}

// RecommendationPrompt builds the recommender prompt. Missing scores count as 0.
func RecommendationPrompt(p domain.Progress) string {
	return fmt.Sprintf("PHQ-9 score: %d, GAD-7 score: %d, user profile: student experiencing stress",
		domain.ScoreOrZero(p.PHQ9Score), domain.ScoreOrZero(p.GAD7Score))
}

// VerificationPrompt builds the verifier prompt.
func VerificationPrompt(title string) string {
	return "Task: " + title + ". Verify completion from uploaded image."
}

// RequestRecommendations asks for new candidates. The list is replaced only
// when the verdict carries a non-empty recommended_tasks array.
func (f *Flow) RequestRecommendations(ctx context.Context) (View, error) {
	if !f.inflight.TryLock() {
		return View{}, domain.ErrBusy
	}
	defer f.inflight.Unlock()

	f.mu.Lock()
	if f.state != StateIdle && f.state != StateListing {
		f.mu.Unlock()
		return View{}, fmt.Errorf("%w: recommendations from %s", domain.ErrInvalidState, f.state)
	}
	f.mu.Unlock()

	out := f.agents.Invoke(ctx, agent.RoleTaskRecommender, RecommendationPrompt(f.progress.Current()))

	var list []domain.TaskCandidate
	if out.OK() && out.Verdict.Has("recommended_tasks") {
		var dropped int
		list, dropped = parseCandidates(out.Verdict)
		if dropped > 0 {
			f.logger.Warn("dropped malformed recommended tasks", "dropped", dropped)
		}
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if len(list) > 0 {
		f.candidates = list
	}
	f.state = StateListing
	f.logger.Info("task recommendations requested", "outcome", out.Kind.String(), "candidates", len(f.candidates))
	return f.viewLocked(), nil
}

// SelectTask opens the candidate at index.
func (f *Flow) SelectTask(index int) (View, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.state != StateListing {
		return View{}, f.stateErrLocked("select task")
	}
	if index < 0 || index >= len(f.candidates) {
		return View{}, fmt.Errorf("%w: task %d", domain.ErrNotFound, index)
	}
	f.selected = index
	f.state = StateDetail
	f.clearAttemptLocked()
	return f.viewLocked(), nil
}

// AttachEvidence holds the file locally for the selected task. No gateway call is made.
func (f *Flow) AttachEvidence(ev domain.Evidence) (View, error) {
	if len(ev.Data) == 0 {
		return View{}, fmt.Errorf("%w: evidence is empty", domain.ErrInvalidInput)
	}
	if f.maxEvidence > 0 && int64(len(ev.Data)) > f.maxEvidence {
		return View{}, fmt.Errorf("%w: evidence exceeds %d bytes", domain.ErrInvalidInput, f.maxEvidence)
	}
	if ct := ev.ContentTypeOrSniff(); !strings.HasPrefix(ct, "image/") {
		return View{}, fmt.Errorf("%w: evidence must be an image, got %s", domain.ErrInvalidInput, ct)
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.state != StateDetail {
		return View{}, f.stateErrLocked("attach evidence")
	}
	f.evidence = &ev
	f.result = ResultNone
	f.feedback = ""
	return f.viewLocked(), nil
}

// ClearEvidence removes the attached file.
func (f *Flow) ClearEvidence() (View, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.state != StateDetail {
		return View{}, f.stateErrLocked("clear evidence")
	}
	f.evidence = nil
	return f.viewLocked(), nil
}

// SubmitEvidence uploads the evidence and asks the verifier about it. Only an
// "approved" status changes progress. Every other outcome keeps the task and
// evidence in place so the user can try again.
func (f *Flow) SubmitEvidence(ctx context.Context) (View, error) {
	if !f.inflight.TryLock() {
		return View{}, domain.ErrBusy
	}
	defer f.inflight.Unlock()

	f.mu.Lock()
	if f.state != StateDetail || f.evidence == nil || f.selected < 0 {
		defer f.mu.Unlock()
		if f.state == StateDetail {
			return View{}, fmt.Errorf("%w: no evidence attached", domain.ErrInvalidState)
		}
		return View{}, f.stateErrLocked("submit evidence")
	}
	task := f.candidates[f.selected]
	ev := *f.evidence
	gen := f.gen
	f.state = StateVerifying
	f.mu.Unlock()

	assets, err := f.agents.Upload(ctx, ev)
	if err != nil {
		f.logger.Warn("evidence upload failed", "task", task.Title, "error", err)
		return f.finishAttempt(gen, ResultUploadFailed, UploadFailedText, 0), nil
	}

	out := f.agents.Invoke(ctx, agent.RoleEvidenceVerifier, VerificationPrompt(task.Title), assets...)
	if !out.OK() {
		return f.finishAttempt(gen, ResultUnavailable, VerifyUnavailableText, 0), nil
	}
	if !out.Verdict.Is("verification_status", "approved") {
		text, _ := rejectionRule.Resolve(out.Verdict)
		return f.finishAttempt(gen, ResultRejected, text, 0), nil
	}

	amount, _ := pointsRule.Resolve(out.Verdict, task.Points)
	at := f.now()
	updated, err := f.progress.Update(ctx, func(p *domain.Progress) {
		p.Reward(task.Title, amount, at)
	})
	if err != nil {
		f.logger.Warn("reward applied but not persisted", "task", task.Title, "error", err)
	}
	f.logger.Info("task approved", "task", task.Title, "points", amount, "balance", updated.Points)

	ack, _ := ackRule.Resolve(out.Verdict)
	return f.finishAttempt(gen, ResultApproved, ack, amount), nil
}

// finishAttempt records the attempt's result unless the user left meanwhile.
func (f *Flow) finishAttempt(gen uint64, result Result, feedback string, awarded int) View {
	f.mu.Lock()
	defer f.mu.Unlock()
	if gen != f.gen {
		return f.viewLocked()
	}
	f.result = result
	f.feedback = feedback
	f.awarded = awarded
	if result != ResultApproved {
		f.state = StateDetail
		return f.viewLocked()
	}

	f.state = StateResolved
	f.stopTimerLocked()
	f.ackTimer = time.AfterFunc(f.ackDelay, func() {
		f.mu.Lock()
		defer f.mu.Unlock()
		if f.gen == gen && f.state == StateResolved {
			f.leaveLocked()
		}
	})
	return f.viewLocked()
}

// Back returns from the task detail to the candidate list.
func (f *Flow) Back() (View, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.state != StateDetail && f.state != StateResolved {
		return View{}, f.stateErrLocked("back")
	}
	f.leaveLocked()
	return f.viewLocked(), nil
}

// Leave clears the selection and evidence. The candidate list survives until
// the next recommendation request.
func (f *Flow) Leave() View {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.leaveLocked()
	return f.viewLocked()
}

func (f *Flow) leaveLocked() {
	f.gen++
	f.stopTimerLocked()
	f.selected = -1
	f.clearAttemptLocked()
	if len(f.candidates) > 0 {
		f.state = StateListing
	} else {
		f.state = StateIdle
	}
}

func (f *Flow) clearAttemptLocked() {
	f.evidence = nil
	f.result = ResultNone
	f.feedback = ""
	f.awarded = 0
}

func (f *Flow) stopTimerLocked() {
	if f.ackTimer != nil {
		f.ackTimer.Stop()
		f.ackTimer = nil
	}
}

func (f *Flow) stateErrLocked(op string) error {
	if f.state == StateVerifying {
		return domain.ErrBusy
	}
	return fmt.Errorf("%w: cannot %s while %s", domain.ErrInvalidState, op, f.state)
}

// Close stops the acknowledgment timer.
func (f *Flow) Close() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stopTimerLocked()
}
