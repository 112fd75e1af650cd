package assessment

import (
	"errors"
	"testing"

	"github.com/ashureev/mindx/internal/catalog"
)

func newTestEngine(t *testing.T) *Engine {
	t.Helper()
	cat, err := catalog.Default()
	if err != nil {
		t.Fatalf("catalog.Default() error = %v", err)
	}
	return New(cat.Assessment)
}

func answerAll(t *testing.T, e *Engine, value int) (Scores, bool) {
	t.Helper()
	var (
		s    Scores
		done bool
	)
	for i := 0; i < TotalItems; i++ {
		if err := e.AnswerCurrent(value); err != nil {
			t.Fatalf("AnswerCurrent(%d) error = %v", value, err)
		}
		s, done = e.Advance()
	}
	return s, done
}

func TestAllOnesScoresNineAndSeven(t *testing.T) {
	e := newTestEngine(t)
	s, done := answerAll(t, e, 1)
	if !done {
		t.Fatal("expected questionnaire to finalize on the last item")
	}
	if s.PHQ9 != 9 || s.GAD7 != 7 {
		t.Fatalf("scores = %+v, want 9 and 7", s)
	}
	if v := e.View(); !v.Complete || v.Scores == nil || *v.Scores != s {
		t.Fatalf("view not complete: %+v", v)
	}
}

func TestAdvanceIsNoopWhenUnanswered(t *testing.T) {
	e := newTestEngine(t)
	if _, done := e.Advance(); done {
		t.Fatal("advance must not finalize")
	}
	if got := e.View().Index; got != 0 {
		t.Fatalf("index = %d, want 0", got)
	}
}

func TestScoresIndependentOfNavigationOrder(t *testing.T) {
	e := newTestEngine(t)

	// Answer forward with 3s, then go back and revise the first three items to 0.
	for i := 0; i < 5; i++ {
		if err := e.AnswerCurrent(3); err != nil {
			t.Fatal(err)
		}
		e.Advance()
	}
	for e.Retreat() {
	}
	for i := 0; i < 3; i++ {
		if err := e.AnswerCurrent(0); err != nil {
			t.Fatal(err)
		}
		e.Advance()
	}
	// Items 3 and 4 keep their earlier answer; walk past them.
	e.Advance()
	e.Advance()
	for e.View().Index < TotalItems-1 {
		if err := e.AnswerCurrent(2); err != nil {
			t.Fatal(err)
		}
		e.Advance()
	}
	if err := e.AnswerCurrent(2); err != nil {
		t.Fatal(err)
	}
	s, done := e.Advance()
	if !done {
		t.Fatal("expected finalize")
	}

	// Same answers written directly by position.
	want := Scores{PHQ9: 0*3 + 3*2 + 2*4, GAD7: 2 * 7}
	if s != want {
		t.Fatalf("scores = %+v, want %+v", s, want)
	}
}

func TestFinalizesOnce(t *testing.T) {
	e := newTestEngine(t)
	if _, done := answerAll(t, e, 2); !done {
		t.Fatal("expected finalize")
	}
	if _, done := e.Advance(); done {
		t.Fatal("second advance must not finalize again")
	}
	if e.Retreat() {
		t.Fatal("retreat after completion must be refused")
	}
}

func TestAnswersFrozenAfterCompletion(t *testing.T) {
	e := newTestEngine(t)
	want, done := answerAll(t, e, 1)
	if !done {
		t.Fatal("expected finalize")
	}
	if err := e.AnswerCurrent(3); !errors.Is(err, ErrComplete) {
		t.Fatalf("expected ErrComplete, got %v", err)
	}
	if err := e.Answer(0, 3); !errors.Is(err, ErrComplete) {
		t.Fatalf("expected ErrComplete, got %v", err)
	}
	v := e.View()
	if v.Scores == nil || *v.Scores != want {
		t.Fatalf("scores changed: %+v", v.Scores)
	}
	for i, a := range v.Answers {
		if a != 1 {
			t.Fatalf("answer %d = %d after completion", i, a)
		}
	}
}

func TestRetreatStopsAtFirstItem(t *testing.T) {
	e := newTestEngine(t)
	if e.Retreat() {
		t.Fatal("retreat at first item must be refused")
	}
	if err := e.AnswerCurrent(1); err != nil {
		t.Fatal(err)
	}
	e.Advance()
	if !e.Retreat() || e.View().Index != 0 {
		t.Fatal("expected retreat to item 0")
	}
}

func TestAnswerValidation(t *testing.T) {
	e := newTestEngine(t)
	if err := e.Answer(0, 4); !errors.Is(err, ErrInvalidAnswer) {
		t.Fatalf("expected ErrInvalidAnswer, got %v", err)
	}
	if err := e.Answer(0, -1); !errors.Is(err, ErrInvalidAnswer) {
		t.Fatalf("expected ErrInvalidAnswer, got %v", err)
	}

	defer func() {
		if recover() == nil {
			t.Fatal("expected panic for out-of-range index")
		}
	}()
	_ = e.Answer(TotalItems, 1)
}

func TestReset(t *testing.T) {
	e := newTestEngine(t)
	answerAll(t, e, 3)
	e.Reset()
	v := e.View()
	if v.Complete || v.Index != 0 || v.Scores != nil {
		t.Fatalf("reset view = %+v", v)
	}
	for i, a := range v.Answers {
		if a != Unanswered {
			t.Fatalf("answer %d = %d after reset", i, a)
		}
	}
}

func TestBands(t *testing.T) {
	tests := []struct {
		score int
		phq9  Band
		gad7  Band
	}{
		{0, BandMinimal, BandMinimal},
		{5, BandMild, BandMild},
		{12, BandModerate, BandModerate},
		{17, BandModeratelySevere, BandSevere},
		{24, BandSevere, BandSevere},
	}
	for _, tc := range tests {
		if got := PHQ9Band(tc.score); got != tc.phq9 {
			t.Errorf("PHQ9Band(%d) = %s, want %s", tc.score, got, tc.phq9)
		}
		if got := GAD7Band(tc.score); got != tc.gad7 {
			t.Errorf("GAD7Band(%d) = %s, want %s", tc.score, got, tc.gad7)
		}
	}
}
