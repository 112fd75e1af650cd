// Package session is the state machine tying the flows together: it tracks
// the current screen, owns the progress ledger and dispatches to the
// assessment, chat, task and pod flows.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/ashureev/mindx/internal/assessment"
	"github.com/ashureev/mindx/internal/chat"
	"github.com/ashureev/mindx/internal/domain"
	"github.com/ashureev/mindx/internal/pods"
	"github.com/ashureev/mindx/internal/tasks"
)

// DefaultCelebrationDelay is how long the completion celebration runs before the dashboard.
const DefaultCelebrationDelay = 3 * time.Second

// Deps are the collaborators a Session dispatches to.
type Deps struct {
	Ledger      *Ledger
	Assessment  *assessment.Engine
	Chat        *chat.Router
	Tasks       *tasks.Flow
	Pods        *pods.Registry
	Board       *Board
	Leaderboard []domain.LeaderboardEntry

	CelebrationDelay time.Duration
	Logger           *slog.Logger
}

// Session is the single user's session.
type Session struct {
	ledger      *Ledger
	assessment  *assessment.Engine
	chat        *chat.Router
	tasks       *tasks.Flow
	pods        *pods.Registry
	board       *Board
	leaderboard []domain.LeaderboardEntry
	celebration time.Duration
	logger      *slog.Logger

	mu          sync.Mutex
	screen      Screen
	celebrating bool
	timer       *time.Timer
}

// Snapshot is the session as served to clients.
type Snapshot struct {
	Screen          Screen          `json:"screen"`
	Progress        domain.Progress `json:"progress"`
	PHQ9Band        string          `json:"phq9Band,omitempty"`
	GAD7Band        string          `json:"gad7Band,omitempty"`
	NextLevelPoints int             `json:"nextLevelPoints"`
	Celebrating     bool            `json:"celebrating"`
	ActivePod       string          `json:"activePod,omitempty"`
	PersistWarning  string          `json:"persistWarning,omitempty"`
}

// New creates a session. It starts on the dashboard when both assessment
// scores were restored, otherwise on the login screen.
func New(d Deps) *Session {
	s := &Session{
		ledger:      d.Ledger,
		assessment:  d.Assessment,
		chat:        d.Chat,
		tasks:       d.Tasks,
		pods:        d.Pods,
		board:       d.Board,
		leaderboard: d.Leaderboard,
		celebration: d.CelebrationDelay,
		logger:      d.Logger,
		screen:      ScreenLogin,
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	if s.celebration <= 0 {
		s.celebration = DefaultCelebrationDelay
	}
	if s.ledger.Current().HasAssessment() {
		s.screen = ScreenDashboard
	}
	return s
}

// Screen returns the current screen.
func (s *Session) Screen() Screen {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.screen
}

// Snapshot returns the current screen and progress.
func (s *Session) Snapshot() Snapshot {
	p := s.ledger.Current()
	s.mu.Lock()
	snap := Snapshot{
		Screen:          s.screen,
		Progress:        p,
		NextLevelPoints: domain.PointsRequiredForLevel(p.Level + 1),
		Celebrating:     s.celebrating,
		PersistWarning:  s.ledger.PersistWarning(),
	}
	s.mu.Unlock()
	if p.PHQ9Score != nil {
		snap.PHQ9Band = string(assessment.PHQ9Band(*p.PHQ9Score))
	}
	if p.GAD7Score != nil {
		snap.GAD7Band = string(assessment.GAD7Band(*p.GAD7Score))
	}
	if s.pods != nil {
		snap.ActivePod = s.pods.Active()
	}
	return snap
}

// Login records the user's label and moves to the home screen. A blank
// label keeps the current one.
func (s *Session) Login(ctx context.Context, username string) (Snapshot, error) {
	s.mu.Lock()
	if s.screen != ScreenLogin {
		defer s.mu.Unlock()
		return Snapshot{}, s.transitionErr("login")
	}
	s.screen = ScreenHome
	s.mu.Unlock()

	if name := strings.TrimSpace(username); name != "" && name != s.ledger.Current().Username {
		// A failed save is reported through the snapshot's persist warning.
		_, _ = s.ledger.Update(ctx, func(p *domain.Progress) { p.Username = name })
	}
	return s.Snapshot(), nil
}

// StartAssessment leaves the home screen. Users who already have both scores
// go straight to the dashboard.
func (s *Session) StartAssessment() (Snapshot, error) {
	s.mu.Lock()
	if s.screen != ScreenHome {
		defer s.mu.Unlock()
		return Snapshot{}, s.transitionErr("start assessment")
	}
	if s.ledger.Current().HasAssessment() {
		s.screen = ScreenDashboard
	} else {
		s.assessment.Reset()
		s.screen = ScreenOnboarding
	}
	s.mu.Unlock()
	return s.Snapshot(), nil
}

// Answer records a value for an assessment item. A nil index answers the current item.
func (s *Session) Answer(index *int, value int) (assessment.View, error) {
	if err := s.requireScreen(ScreenOnboarding, "answer"); err != nil {
		return assessment.View{}, err
	}
	var err error
	if index == nil {
		err = s.assessment.AnswerCurrent(value)
	} else {
		if *index < 0 || *index >= assessment.TotalItems {
			return assessment.View{}, fmt.Errorf("%w: item %d", domain.ErrInvalidInput, *index)
		}
		err = s.assessment.Answer(*index, value)
	}
	if errors.Is(err, assessment.ErrComplete) {
		return assessment.View{}, fmt.Errorf("%w: %v", domain.ErrInvalidState, err)
	}
	if err != nil {
		return assessment.View{}, fmt.Errorf("%w: %v", domain.ErrInvalidInput, err)
	}
	return s.assessment.View(), nil
}

// Advance moves the questionnaire forward. Completing it stores both scores
// and moves to the dashboard once the celebration delay has passed.
func (s *Session) Advance(ctx context.Context) (assessment.View, error) {
	if err := s.requireScreen(ScreenOnboarding, "advance"); err != nil {
		return assessment.View{}, err
	}
	scores, done := s.assessment.Advance()
	if !done {
		return s.assessment.View(), nil
	}

	// A failed save is reported through the snapshot's persist warning.
	_, _ = s.ledger.Update(ctx, func(p *domain.Progress) { p.SetScores(scores.PHQ9, scores.GAD7) })
	s.logger.Info("assessment completed", "phq9", scores.PHQ9, "gad7", scores.GAD7)

	s.mu.Lock()
	s.celebrating = true
	s.stopTimerLocked()
	s.timer = time.AfterFunc(s.celebration, func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		s.celebrating = false
		if s.screen == ScreenOnboarding {
			s.screen = ScreenDashboard
		}
	})
	s.mu.Unlock()
	return s.assessment.View(), nil
}

// Retreat moves the questionnaire back one item.
func (s *Session) Retreat() (assessment.View, error) {
	if err := s.requireScreen(ScreenOnboarding, "retreat"); err != nil {
		return assessment.View{}, err
	}
	s.assessment.Retreat()
	return s.assessment.View(), nil
}

// AssessmentView returns the questionnaire state.
func (s *Session) AssessmentView() assessment.View {
	return s.assessment.View()
}

// Navigate moves between the dashboard and its leaf screens. Leaving the
// task screen clears the selected task and evidence; leaving the pod
// screen closes the active pod.
func (s *Session) Navigate(name string) (Snapshot, error) {
	target := ParseScreen(name)

	s.mu.Lock()
	from := s.screen
	switch {
	case from == ScreenDashboard:
	case from.IsLeaf() && (target == ScreenDashboard || target == from):
	default:
		defer s.mu.Unlock()
		return Snapshot{}, fmt.Errorf("%w: cannot navigate from %s to %s", domain.ErrInvalidState, from, target)
	}
	s.screen = target
	s.mu.Unlock()

	if from != target {
		switch from {
		case ScreenTasks:
			s.tasks.Leave()
		case ScreenPods:
			s.pods.CloseActive()
		}
	}
	return s.Snapshot(), nil
}

// JoinChallenge activates a challenge and records it in progress once.
func (s *Session) JoinChallenge(ctx context.Context, id string) (domain.Challenge, error) {
	c, joined, err := s.board.Join(id)
	if err != nil {
		return domain.Challenge{}, err
	}
	if joined {
		// A failed save is reported through the snapshot's persist warning.
		_, _ = s.ledger.Update(ctx, func(p *domain.Progress) { p.JoinChallenge(id) })
		s.logger.Info("challenge joined", "challenge_id", id, "participants", c.Participants)
	}
	return c, nil
}

// Challenges lists the community challenges.
func (s *Session) Challenges() []domain.Challenge {
	return s.board.List()
}

// Leaderboard ranks the seeded entries with the current user.
func (s *Session) Leaderboard() []domain.LeaderboardEntry {
	return Leaderboard(s.leaderboard, s.ledger.Current())
}

// Close stops pending timers and shuts down the flows.
func (s *Session) Close() {
	s.mu.Lock()
	s.stopTimerLocked()
	s.mu.Unlock()
	if s.tasks != nil {
		s.tasks.Close()
	}
	if s.pods != nil {
		s.pods.Close()
	}
}

func (s *Session) requireScreen(want Screen, op string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.screen != want {
		return s.transitionErr(op)
	}
	return nil
}

func (s *Session) transitionErr(op string) error {
	return fmt.Errorf("%w: cannot %s on %s", domain.ErrInvalidState, op, s.screen)
}

func (s *Session) stopTimerLocked() {
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
}
