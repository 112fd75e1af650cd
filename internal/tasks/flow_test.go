package tasks

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/ashureev/mindx/internal/agent"
	"github.com/ashureev/mindx/internal/agent/agenttest"
	"github.com/ashureev/mindx/internal/domain"
)

var pngBytes = []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR")

type fakeProgress struct {
	mu      sync.Mutex
	p       domain.Progress
	updates int
}

func newFakeProgress() *fakeProgress {
	return &fakeProgress{p: domain.NewProgress()}
}

func (f *fakeProgress) Current() domain.Progress {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.p.Clone()
}

func (f *fakeProgress) Update(_ context.Context, fn func(*domain.Progress)) (domain.Progress, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	next := f.p.Clone()
	fn(&next)
	f.p = next
	f.updates++
	return next.Clone(), nil
}

var twoTasks = agent.Verdict{
	"recommended_tasks": []any{
		map[string]any{"task_title": "Evening walk", "points_value": float64(20), "category": "movement"},
		map[string]any{"task_title": "Gratitude list", "points_value": float64(15)},
	},
}

func newTestFlow(t *testing.T, gw *agenttest.Gateway, progress *fakeProgress) *Flow {
	t.Helper()
	f := NewFlow(Config{
		Agents:   agenttest.NewService(gw, 200*time.Millisecond),
		Progress: progress,
		AckDelay: 20 * time.Millisecond,
		Now:      func() time.Time { return time.Date(2026, 10, 18, 12, 0, 0, 0, time.UTC) },
	})
	t.Cleanup(f.Close)
	return f
}

// openDetail drives the flow to the detail screen of the first task with evidence attached.
func openDetail(t *testing.T, f *Flow) {
	t.Helper()
	if _, err := f.RequestRecommendations(context.Background()); err != nil {
		t.Fatalf("RequestRecommendations() error = %v", err)
	}
	if _, err := f.SelectTask(0); err != nil {
		t.Fatalf("SelectTask() error = %v", err)
	}
	if _, err := f.AttachEvidence(domain.Evidence{FileName: "walk.png", Data: pngBytes}); err != nil {
		t.Fatalf("AttachEvidence() error = %v", err)
	}
}

// scripted answers recommender and verifier calls differently.
func scripted(verdict agent.Verdict, verifyErr error) func(context.Context, agent.Request) (agent.Verdict, error) {
	return func(_ context.Context, req agent.Request) (agent.Verdict, error) {
		switch req.AgentID {
		case agenttest.RecommenderID:
			return twoTasks, nil
		case agenttest.VerifierID:
			return verdict, verifyErr
		}
		return nil, agent.ErrRejected
	}
}

func TestApprovedAwardsPointsOnce(t *testing.T) {
	progress := newFakeProgress()
	gw := &agenttest.Gateway{
		InvokeFunc: scripted(agent.Verdict{
			"verification_status": "approved",
			"points_awarded":      float64(50),
			"feedback_message":    "Lovely walk!",
		}, nil),
		UploadFunc: agenttest.Assets("asset-1"),
	}
	f := newTestFlow(t, gw, progress)
	openDetail(t, f)

	v, err := f.SubmitEvidence(context.Background())
	if err != nil {
		t.Fatalf("SubmitEvidence() error = %v", err)
	}
	if v.State != StateResolved || v.Result != ResultApproved || v.PointsAwarded != 50 || v.Feedback != "Lovely walk!" {
		t.Fatalf("unexpected view: %+v", v)
	}

	p := progress.Current()
	if p.Points != 50 || len(p.CompletedTasks) != 1 || p.CompletedTasks[0] != "Evening walk" {
		t.Fatalf("unexpected progress: %+v", p)
	}
	if progress.updates != 1 {
		t.Fatalf("expected one atomic update, got %d", progress.updates)
	}

	calls := gw.Calls()
	last := calls[len(calls)-1]
	if last.Message != "Task: Evening walk. Verify completion from uploaded image." || len(last.Assets) != 1 || last.Assets[0] != "asset-1" {
		t.Fatalf("unexpected verifier request: %+v", last)
	}

	deadline := time.Now().Add(2 * time.Second)
	for f.State() != StateListing {
		if time.Now().After(deadline) {
			t.Fatalf("flow did not leave after the acknowledgment delay, state=%s", f.State())
		}
		time.Sleep(5 * time.Millisecond)
	}
	v = f.View()
	if v.Evidence != nil || v.Selected != nil || len(v.Candidates) != 2 {
		t.Fatalf("unexpected view after leave: %+v", v)
	}
}

func TestApprovedWithoutPointsUsesTaskReward(t *testing.T) {
	progress := newFakeProgress()
	gw := &agenttest.Gateway{
		InvokeFunc: scripted(agent.Verdict{"verification_status": "approved", "points_awarded": float64(0)}, nil),
		UploadFunc: agenttest.Assets("asset-1"),
	}
	f := newTestFlow(t, gw, progress)
	openDetail(t, f)

	v, err := f.SubmitEvidence(context.Background())
	if err != nil {
		t.Fatalf("SubmitEvidence() error = %v", err)
	}
	if v.Feedback != DefaultAck || v.PointsAwarded != 20 {
		t.Fatalf("unexpected view: %+v", v)
	}
	if got := progress.Current().Points; got != 20 {
		t.Fatalf("points = %d, want 20", got)
	}
}

func TestNonApprovedKeepsEvidenceAndProgress(t *testing.T) {
	tests := []struct {
		name         string
		verdict      agent.Verdict
		verifyErr    error
		upload       func(context.Context, domain.Evidence) ([]string, error)
		wantResult   Result
		wantFeedback string
	}{
		{
			name:         "rejected",
			verdict:      agent.Verdict{"verification_status": "rejected", "rejection_reason": "Image is blurry"},
			upload:       agenttest.Assets("asset-1"),
			wantResult:   ResultRejected,
			wantFeedback: "Image is blurry",
		},
		{
			name:         "case mismatch is not approval",
			verdict:      agent.Verdict{"verification_status": "Approved"},
			upload:       agenttest.Assets("asset-1"),
			wantResult:   ResultRejected,
			wantFeedback: DefaultRejection,
		},
		{
			name:         "verifier unavailable",
			verifyErr:    agent.ErrRejected,
			upload:       agenttest.Assets("asset-1"),
			wantResult:   ResultUnavailable,
			wantFeedback: VerifyUnavailableText,
		},
		{
			name:         "upload failed",
			upload:       func(context.Context, domain.Evidence) ([]string, error) { return nil, errors.New("boom") },
			wantResult:   ResultUploadFailed,
			wantFeedback: UploadFailedText,
		},
		{
			name:         "upload returned no ids",
			upload:       agenttest.Assets(),
			wantResult:   ResultUploadFailed,
			wantFeedback: UploadFailedText,
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			progress := newFakeProgress()
			gw := &agenttest.Gateway{InvokeFunc: scripted(tc.verdict, tc.verifyErr), UploadFunc: tc.upload}
			f := newTestFlow(t, gw, progress)
			openDetail(t, f)

			v, err := f.SubmitEvidence(context.Background())
			if err != nil {
				t.Fatalf("SubmitEvidence() error = %v", err)
			}
			if v.State != StateDetail || v.Result != tc.wantResult || v.Feedback != tc.wantFeedback {
				t.Fatalf("unexpected view: %+v", v)
			}
			if v.Evidence == nil || v.Selected == nil {
				t.Fatal("evidence and selection must be retained")
			}
			if progress.updates != 0 || progress.Current().Points != 0 {
				t.Fatal("progress must not change")
			}
		})
	}
}

func TestUploadFailureSkipsVerifier(t *testing.T) {
	gw := &agenttest.Gateway{
		InvokeFunc: scripted(agent.Verdict{"verification_status": "approved"}, nil),
		UploadFunc: agenttest.Assets(""),
	}
	f := newTestFlow(t, gw, newFakeProgress())
	openDetail(t, f)
	if _, err := f.SubmitEvidence(context.Background()); err != nil {
		t.Fatal(err)
	}
	for _, c := range gw.Calls() {
		if c.AgentID == agenttest.VerifierID {
			t.Fatal("verifier must not be called without asset ids")
		}
	}
}

func TestRecommendationsReplaceOnlyWhenNonEmpty(t *testing.T) {
	progress := newFakeProgress()
	progress.p.SetScores(12, 9)
	var verdict agent.Verdict = twoTasks
	gw := &agenttest.Gateway{InvokeFunc: func(context.Context, agent.Request) (agent.Verdict, error) {
		return verdict, nil
	}}
	f := newTestFlow(t, gw, progress)

	v, err := f.RequestRecommendations(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if v.State != StateListing || len(v.Candidates) != 2 {
		t.Fatalf("unexpected view: %+v", v)
	}
	if got := gw.Calls()[0].Message; got != "PHQ-9 score: 12, GAD-7 score: 9, user profile: student experiencing stress" {
		t.Fatalf("unexpected prompt: %q", got)
	}

	for _, next := range []agent.Verdict{
		{"recommended_tasks": []any{}},
		{"recommended_tasks": "not a list"},
		{},
	} {
		verdict = next
		v, err = f.RequestRecommendations(context.Background())
		if err != nil {
			t.Fatal(err)
		}
		if len(v.Candidates) != 2 {
			t.Fatalf("list replaced by %v", next)
		}
	}

	gw.InvokeFunc = agenttest.Fail(agent.ErrUnavailable)
	if v, _ = f.RequestRecommendations(context.Background()); len(v.Candidates) != 2 {
		t.Fatal("gateway failure must leave the list as-is")
	}
}

func TestRecommendationPromptDefaultsScoresToZero(t *testing.T) {
	if got := RecommendationPrompt(domain.NewProgress()); !strings.HasPrefix(got, "PHQ-9 score: 0, GAD-7 score: 0") {
		t.Fatalf("unexpected prompt: %q", got)
	}
}

func TestSubmitRequiresEvidence(t *testing.T) {
	gw := &agenttest.Gateway{InvokeFunc: scripted(nil, nil)}
	f := newTestFlow(t, gw, newFakeProgress())
	if _, err := f.RequestRecommendations(context.Background()); err != nil {
		t.Fatal(err)
	}
	if _, err := f.SelectTask(1); err != nil {
		t.Fatal(err)
	}
	if _, err := f.SubmitEvidence(context.Background()); !errors.Is(err, domain.ErrInvalidState) {
		t.Fatalf("expected ErrInvalidState, got %v", err)
	}
	if gw.Uploads() != 0 {
		t.Fatal("nothing should be uploaded")
	}
}

func TestAttachAndClearEvidence(t *testing.T) {
	gw := &agenttest.Gateway{InvokeFunc: scripted(nil, nil)}
	f := newTestFlow(t, gw, newFakeProgress())
	openDetail(t, f)

	if _, err := f.AttachEvidence(domain.Evidence{FileName: "notes.txt", Data: []byte("hello")}); !errors.Is(err, domain.ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput for non-image, got %v", err)
	}
	v := f.View()
	if v.Evidence == nil || !strings.HasPrefix(v.Evidence.Preview, "data:image/png;base64,") {
		t.Fatalf("unexpected evidence view: %+v", v.Evidence)
	}
	v, err := f.ClearEvidence()
	if err != nil {
		t.Fatal(err)
	}
	if v.Evidence != nil || v.State != StateDetail {
		t.Fatalf("unexpected view after clear: %+v", v)
	}
}

func TestSelectTaskValidation(t *testing.T) {
	gw := &agenttest.Gateway{InvokeFunc: scripted(nil, nil)}
	f := newTestFlow(t, gw, newFakeProgress())
	if _, err := f.SelectTask(0); !errors.Is(err, domain.ErrInvalidState) {
		t.Fatalf("expected ErrInvalidState from idle, got %v", err)
	}
	if _, err := f.RequestRecommendations(context.Background()); err != nil {
		t.Fatal(err)
	}
	if _, err := f.SelectTask(5); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestSubmitIsGuardedWhileVerifying(t *testing.T) {
	release := make(chan struct{})
	started := make(chan struct{})
	gw := &agenttest.Gateway{
		InvokeFunc: func(ctx context.Context, req agent.Request) (agent.Verdict, error) {
			if req.AgentID == agenttest.RecommenderID {
				return twoTasks, nil
			}
			close(started)
			<-release
			return agent.Verdict{"verification_status": "rejected"}, nil
		},
		UploadFunc: agenttest.Assets("a"),
	}
	f := newTestFlow(t, gw, newFakeProgress())
	openDetail(t, f)

	done := make(chan struct{})
	go func() {
		defer close(done)
		_, _ = f.SubmitEvidence(context.Background())
	}()
	<-started

	if f.State() != StateVerifying {
		t.Fatalf("state = %s, want verifying", f.State())
	}
	if _, err := f.SubmitEvidence(context.Background()); !errors.Is(err, domain.ErrBusy) {
		t.Fatalf("expected ErrBusy, got %v", err)
	}
	if _, err := f.ClearEvidence(); !errors.Is(err, domain.ErrBusy) {
		t.Fatalf("expected ErrBusy while verifying, got %v", err)
	}
	close(release)
	<-done
}

func TestApprovedIgnoresImplausiblePoints(t *testing.T) {
	for _, awarded := range []any{float64(-10), float64(1e30), "-3"} {
		progress := newFakeProgress()
		gw := &agenttest.Gateway{
			InvokeFunc: scripted(agent.Verdict{"verification_status": "approved", "points_awarded": awarded}, nil),
			UploadFunc: agenttest.Assets("asset-1"),
		}
		f := newTestFlow(t, gw, progress)
		openDetail(t, f)

		v, err := f.SubmitEvidence(context.Background())
		if err != nil {
			t.Fatalf("SubmitEvidence() error = %v", err)
		}
		if v.Result != ResultApproved || v.PointsAwarded != 20 {
			t.Fatalf("points_awarded %v: unexpected view %+v", awarded, v)
		}
		if got := progress.Current().Points; got != 20 {
			t.Fatalf("points_awarded %v: balance = %d, want 20", awarded, got)
		}
	}
}

func TestRecommendationsTolerateLooseFields(t *testing.T) {
	gw := &agenttest.Gateway{InvokeFunc: agenttest.Reply(agent.Verdict{
		"recommended_tasks": []any{
			map[string]any{"task_title": "Evening walk", "points_value": "20", "difficulty": 3},
			map[string]any{"task_description": "no title"},
			"not an object",
			map[string]any{"task_title": "Box breathing", "points_value": float64(-5), "category": "calm"},
		},
	})}
	f := newTestFlow(t, gw, newFakeProgress())

	v, err := f.RequestRecommendations(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if len(v.Candidates) != 2 {
		t.Fatalf("candidates = %+v, want the two titled tasks", v.Candidates)
	}
	walk, breathing := v.Candidates[0], v.Candidates[1]
	if walk.Title != "Evening walk" || walk.Points != 20 || walk.Difficulty != "" {
		t.Fatalf("unexpected first candidate: %+v", walk)
	}
	if breathing.Title != "Box breathing" || breathing.Points != 0 || breathing.Category != "calm" {
		t.Fatalf("unexpected second candidate: %+v", breathing)
	}
}

func TestLeaveDuringVerificationKeepsRewardButNotView(t *testing.T) {
	release := make(chan struct{})
	started := make(chan struct{})
	gw := &agenttest.Gateway{
		InvokeFunc: func(_ context.Context, req agent.Request) (agent.Verdict, error) {
			if req.AgentID == agenttest.RecommenderID {
				return twoTasks, nil
			}
			close(started)
			<-release
			return agent.Verdict{"verification_status": "approved"}, nil
		},
		UploadFunc: agenttest.Assets("a"),
	}
	progress := newFakeProgress()
	f := newTestFlow(t, gw, progress)
	openDetail(t, f)

	done := make(chan View, 1)
	go func() {
		v, _ := f.SubmitEvidence(context.Background())
		done <- v
	}()
	<-started

	left := f.Leave()
	if left.State != StateListing || left.Selected != nil || left.Evidence != nil {
		t.Fatalf("unexpected view after leave: %+v", left)
	}
	close(release)
	<-done

	v := f.View()
	if v.State != StateListing || v.Selected != nil || v.Evidence != nil || v.Result != ResultNone {
		t.Fatalf("detail view came back after leave: %+v", v)
	}
	if len(v.Candidates) != 2 {
		t.Fatalf("candidates = %d, want 2", len(v.Candidates))
	}
	p := progress.Current()
	if p.Points != 20 || !p.HasCompleted("Evening walk") {
		t.Fatalf("approved reward must still apply: %+v", p)
	}
}
