package session

import (
	"fmt"
	"sort"
	"sync"

	"github.com/ashureev/mindx/internal/domain"
)

// Board holds the community challenges.
type Board struct {
	mu         sync.Mutex
	challenges []domain.Challenge
}

// NewBoard seeds the board and restores challenges the user already joined.
// A restored challenge counts the user among its participants.
func NewBoard(seed []domain.Challenge, joined []string) *Board {
	b := &Board{challenges: make([]domain.Challenge, len(seed))}
	copy(b.challenges, seed)
	for _, id := range joined {
		for i := range b.challenges {
			if b.challenges[i].ID == id {
				b.challenges[i].Join()
			}
		}
	}
	return b
}

// List returns a copy of every challenge.
func (b *Board) List() []domain.Challenge {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]domain.Challenge, len(b.challenges))
	copy(out, b.challenges)
	return out
}

// Join activates a challenge. Joining an active challenge changes nothing
// and reports false.
func (b *Board) Join(id string) (domain.Challenge, bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for i := range b.challenges {
		if b.challenges[i].ID == id {
			joined := b.challenges[i].Join()
			return b.challenges[i], joined, nil
		}
	}
	return domain.Challenge{}, false, fmt.Errorf("%w: challenge %q", domain.ErrNotFound, id)
}

// Leaderboard ranks the seeded entries together with the current user.
// Ties keep the seeded entries ahead.
func Leaderboard(seed []domain.LeaderboardEntry, p domain.Progress) []domain.LeaderboardEntry {
	rows := make([]domain.LeaderboardEntry, 0, len(seed)+1)
	for _, e := range seed {
		e.IsCurrent = false
		rows = append(rows, e)
	}
	rows = append(rows, domain.LeaderboardEntry{
		Username:  p.Username,
		Points:    p.Points,
		Badges:    len(p.CompletedTasks),
		IsCurrent: true,
	})
	sort.SliceStable(rows, func(i, j int) bool {
		return rows[i].Points > rows[j].Points
	})
	for i := range rows {
		rows[i].Rank = i + 1
	}
	return rows
}
