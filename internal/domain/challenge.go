package domain

// Challenge represents a community challenge the user can join.
type Challenge struct {
	ID           string `json:"id" yaml:"id"`
	Name         string `json:"name" yaml:"name"`
	Description  string `json:"description" yaml:"description"`
	Points       int    `json:"points" yaml:"points"`
	Participants int    `json:"participants" yaml:"participants"`
	Duration     string `json:"duration" yaml:"duration"`
	Deadline     string `json:"deadline" yaml:"deadline"`
	Progress     int    `json:"progress" yaml:"progress"`
	Active       bool   `json:"active" yaml:"-"`
}

// Join marks the challenge as joined by the current user.
// It returns false without changing anything when the challenge is already active.
func (c *Challenge) Join() bool {
	if c.Active {
		return false
	}
	c.Active = true
	c.Participants++
	return true
}

// LeaderboardEntry is one ranked row of the leaderboard.
type LeaderboardEntry struct {
	Rank      int    `json:"rank"`
	Username  string `json:"username" yaml:"username"`
	Points    int    `json:"points" yaml:"points"`
	Badges    int    `json:"badges" yaml:"badges"`
	IsCurrent bool   `json:"isCurrent,omitempty" yaml:"-"`
}
