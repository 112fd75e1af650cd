// Package domain contains core domain types for the mindX application.
package domain

import (
	"slices"
	"time"
)

// Progress is the single persisted per-user record.
// Balance never decreases and assessment scores never change once set.
type Progress struct {
	Username         string    `json:"username"`
	Points           int       `json:"points"`
	Streak           int       `json:"streak"`
	Level            int       `json:"level"`
	PHQ9Score        *int      `json:"phq9Score,omitempty"`
	GAD7Score        *int      `json:"gad7Score,omitempty"`
	CompletedTasks   []string  `json:"completedTasks"`
	ActiveChallenges []string  `json:"activeChallenges"`
	LastActiveDay    string    `json:"lastActiveDay,omitempty"` // YYYY-MM-DD of the last approved task
	Version          int64     `json:"version"`
	UpdatedAt        time.Time `json:"updatedAt"`
}

// DefaultUsername is used until the user logs in with a label of their own.
const DefaultUsername = "Anonymous User"

// NewProgress returns the record used when nothing has been persisted yet.
func NewProgress() Progress {
	return Progress{
		Username:         DefaultUsername,
		Level:            1,
		CompletedTasks:   []string{},
		ActiveChallenges: []string{},
	}
}

// HasAssessment reports whether both assessment scores are present.
func (p Progress) HasAssessment() bool {
	return p.PHQ9Score != nil && p.GAD7Score != nil
}

// HasCompleted reports whether a task title is already in the completed set.
func (p Progress) HasCompleted(title string) bool {
	return slices.Contains(p.CompletedTasks, title)
}

// HasJoined reports whether a challenge id is already in the joined set.
func (p Progress) HasJoined(challengeID string) bool {
	return slices.Contains(p.ActiveChallenges, challengeID)
}

// Clone returns a deep copy so callers can mutate it without touching shared state.
func (p Progress) Clone() Progress {
	c := p
	c.CompletedTasks = slices.Clone(p.CompletedTasks)
	c.ActiveChallenges = slices.Clone(p.ActiveChallenges)
	if c.CompletedTasks == nil {
		c.CompletedTasks = []string{}
	}
	if c.ActiveChallenges == nil {
		c.ActiveChallenges = []string{}
	}
	if p.PHQ9Score != nil {
		v := *p.PHQ9Score
		c.PHQ9Score = &v
	}
	if p.GAD7Score != nil {
		v := *p.GAD7Score
		c.GAD7Score = &v
	}
	return c
}

// ScoreOrZero dereferences an optional score.
func ScoreOrZero(score *int) int {
	if score == nil {
		return 0
	}
	return *score
}

// dayLayout formats LastActiveDay.
const dayLayout = "2006-01-02"

// Reward credits an approved task in one step: the balance grows by amount,
// the title joins the completed set once, the level follows the balance
// without ever dropping, and the streak counts consecutive active days.
func (p *Progress) Reward(title string, amount int, at time.Time) {
	if amount > 0 {
		p.Points += amount
	}
	if title != "" && !p.HasCompleted(title) {
		p.CompletedTasks = append(p.CompletedTasks, title)
	}
	if lvl := LevelForPoints(p.Points); lvl > p.Level {
		p.Level = lvl
	}

	today := at.Format(dayLayout)
	switch p.LastActiveDay {
	case today:
		if p.Streak == 0 {
			p.Streak = 1
		}
	case at.AddDate(0, 0, -1).Format(dayLayout):
		p.Streak++
	default:
		p.Streak = 1
	}
	p.LastActiveDay = today
}

// SetScores records the assessment totals. Scores already present are kept.
// It reports whether anything changed.
func (p *Progress) SetScores(phq9, gad7 int) bool {
	changed := false
	if p.PHQ9Score == nil {
		p.PHQ9Score = &phq9
		changed = true
	}
	if p.GAD7Score == nil {
		p.GAD7Score = &gad7
		changed = true
	}
	return changed
}

// JoinChallenge adds the challenge to the joined set once.
// It reports whether the set changed.
func (p *Progress) JoinChallenge(id string) bool {
	if p.HasJoined(id) {
		return false
	}
	p.ActiveChallenges = append(p.ActiveChallenges, id)
	return true
}
