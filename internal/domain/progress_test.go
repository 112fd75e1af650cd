package domain

import (
	"testing"
	"time"
)

func TestRewardAddsPointsAndTitleOnce(t *testing.T) {
	p := NewProgress()
	day := time.Date(2026, 10, 18, 9, 0, 0, 0, time.UTC)

	p.Reward("Evening walk", 50, day)
	p.Reward("Evening walk", 50, day)

	if p.Points != 100 {
		t.Fatalf("points = %d, want 100", p.Points)
	}
	if len(p.CompletedTasks) != 1 {
		t.Fatalf("completed = %v, want one title", p.CompletedTasks)
	}
	if p.Level != 2 {
		t.Fatalf("level = %d, want 2", p.Level)
	}
}

func TestRewardStreak(t *testing.T) {
	p := NewProgress()
	d1 := time.Date(2026, 10, 16, 20, 0, 0, 0, time.UTC)

	p.Reward("a", 10, d1)
	if p.Streak != 1 {
		t.Fatalf("streak after first day = %d", p.Streak)
	}
	p.Reward("b", 10, d1.Add(time.Hour))
	if p.Streak != 1 {
		t.Fatalf("same-day streak = %d", p.Streak)
	}
	p.Reward("c", 10, d1.AddDate(0, 0, 1))
	if p.Streak != 2 {
		t.Fatalf("next-day streak = %d", p.Streak)
	}
	p.Reward("d", 10, d1.AddDate(0, 0, 5))
	if p.Streak != 1 {
		t.Fatalf("streak after a gap = %d", p.Streak)
	}
}

func TestLevelNeverDrops(t *testing.T) {
	p := NewProgress()
	p.Level = 7
	p.Reward("x", 10, time.Now())
	if p.Level != 7 {
		t.Fatalf("level = %d, want 7", p.Level)
	}
}

func TestLevelForPoints(t *testing.T) {
	tests := []struct {
		points int
		want   int
	}{
		{-5, 1},
		{0, 1},
		{99, 1},
		{100, 2},
		{282, 2},
		{283, 3},
		{520, 4},
	}
	for _, tc := range tests {
		if got := LevelForPoints(tc.points); got != tc.want {
			t.Errorf("LevelForPoints(%d) = %d, want %d", tc.points, got, tc.want)
		}
	}
}

func TestSetScoresIsWriteOnce(t *testing.T) {
	p := NewProgress()
	if !p.SetScores(10, 4) {
		t.Fatal("first SetScores must change the record")
	}
	if p.SetScores(20, 20) {
		t.Fatal("second SetScores must not change the record")
	}
	if *p.PHQ9Score != 10 || *p.GAD7Score != 4 {
		t.Fatalf("scores changed: %d %d", *p.PHQ9Score, *p.GAD7Score)
	}
}

func TestCloneIsDeep(t *testing.T) {
	p := NewProgress()
	p.SetScores(3, 2)
	p.JoinChallenge("1")

	c := p.Clone()
	c.JoinChallenge("2")
	*c.PHQ9Score = 27

	if len(p.ActiveChallenges) != 1 || *p.PHQ9Score != 3 {
		t.Fatalf("clone shares state with original: %+v", p)
	}
}

func TestChallengeJoinIsIdempotent(t *testing.T) {
	c := Challenge{ID: "1", Participants: 156}
	if !c.Join() {
		t.Fatal("first join must succeed")
	}
	if c.Join() {
		t.Fatal("second join must be refused")
	}
	if c.Participants != 157 || !c.Active {
		t.Fatalf("unexpected challenge: %+v", c)
	}
}
