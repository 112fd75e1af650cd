// Package assessment runs the PHQ-9 / GAD-7 questionnaire.
package assessment

import (
	"errors"
	"fmt"
	"sync"

	"github.com/ashureev/mindx/internal/catalog"
)

// Unanswered marks a slot with no answer yet.
const Unanswered = -1

// TotalItems is the number of questions across both scales.
const TotalItems = catalog.PHQ9Items + catalog.GAD7Items

// Scale names.
const (
	ScalePHQ9 = "PHQ-9"
	ScaleGAD7 = "GAD-7"
)

// Answer errors.
var (
	ErrInvalidAnswer = errors.New("answer must be between 0 and 3")
	ErrComplete      = errors.New("questionnaire already completed")
)

// Item is one question as presented to the user.
type Item struct {
	Scale  string `json:"scale"`
	Number int    `json:"number"`
	Text   string `json:"text"`
}

// Scores are the two sums produced when the questionnaire is finalized.
type Scores struct {
	PHQ9 int `json:"phq9"`
	GAD7 int `json:"gad7"`
}

// View is a snapshot of the engine.
type View struct {
	Items    []Item                 `json:"items"`
	Options  []catalog.AnswerOption `json:"options"`
	Index    int                    `json:"index"`
	Answers  []int                  `json:"answers"`
	Complete bool                   `json:"complete"`
	Scores   *Scores                `json:"scores,omitempty"`
}

// Engine holds the answers for one run through both scales.
// Answers are stored by position so the sums never depend on the order
// the user moved through the items.
type Engine struct {
	items   []Item
	options []catalog.AnswerOption

	mu       sync.Mutex
	answers  [TotalItems]int
	index    int
	complete bool
	scores   *Scores
}

// New creates an engine over the questionnaire text.
func New(a catalog.Assessment) *Engine {
	items := make([]Item, 0, TotalItems)
	for i, text := range a.PHQ9 {
		items = append(items, Item{Scale: ScalePHQ9, Number: i + 1, Text: text})
	}
	for i, text := range a.GAD7 {
		items = append(items, Item{Scale: ScaleGAD7, Number: i + 1, Text: text})
	}
	if len(items) != TotalItems {
		panic(fmt.Sprintf("assessment: expected %d items, got %d", TotalItems, len(items)))
	}
	e := &Engine{items: items, options: a.Options}
	e.resetLocked()
	return e
}

// Reset clears every answer and returns to the first item.
func (e *Engine) Reset() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.resetLocked()
}

func (e *Engine) resetLocked() {
	for i := range e.answers {
		e.answers[i] = Unanswered
	}
	e.index = 0
	e.complete = false
	e.scores = nil
}

// Answer records value for the item at index. Answers are frozen once the
// questionnaire is finalized. An index outside the questionnaire is a
// programming error and panics.
func (e *Engine) Answer(index, value int) error {
	if index < 0 || index >= TotalItems {
		panic(fmt.Sprintf("assessment: item index %d out of range [0,%d)", index, TotalItems))
	}
	if value < 0 || value > 3 {
		return fmt.Errorf("%w: got %d", ErrInvalidAnswer, value)
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.complete {
		return ErrComplete
	}
	e.answers[index] = value
	return nil
}

// AnswerCurrent records value for the item currently shown.
func (e *Engine) AnswerCurrent(value int) error {
	e.mu.Lock()
	index := e.index
	e.mu.Unlock()
	return e.Answer(index, value)
}

// Advance moves to the next item. It does nothing while the current item is
// unanswered. On the final item it finalizes exactly once and returns the scores.
func (e *Engine) Advance() (Scores, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.complete || e.answers[e.index] == Unanswered {
		return Scores{}, false
	}
	if e.index < TotalItems-1 {
		e.index++
		return Scores{}, false
	}

	for _, a := range e.answers {
		if a == Unanswered {
			return Scores{}, false
		}
	}
	var s Scores
	for i, a := range e.answers {
		if i < catalog.PHQ9Items {
			s.PHQ9 += a
		} else {
			s.GAD7 += a
		}
	}
	e.complete = true
	e.scores = &s
	return s, true
}

// Retreat moves back one item unless already at the first.
func (e *Engine) Retreat() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.complete || e.index == 0 {
		return false
	}
	e.index--
	return true
}

// View returns a snapshot.
func (e *Engine) View() View {
	e.mu.Lock()
	defer e.mu.Unlock()
	v := View{
		Items:    e.items,
		Options:  e.options,
		Index:    e.index,
		Answers:  append([]int(nil), e.answers[:]...),
		Complete: e.complete,
	}
	if e.scores != nil {
		s := *e.scores
		v.Scores = &s
	}
	return v
}
