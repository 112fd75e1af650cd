package domain

import "time"

// Pod is a peer-support discussion thread.
type Pod struct {
	ID           string       `json:"id" yaml:"id"`
	Name         string       `json:"name" yaml:"name"`
	Topic        string       `json:"topic" yaml:"topic"`
	Participants int          `json:"participants" yaml:"participants"`
	Tags         []string     `json:"tags" yaml:"tags"`
	Messages     []PodMessage `json:"messages" yaml:"-"`
}

// PodMessage is a single post in a pod. Flagged only ever moves from false to true.
type PodMessage struct {
	ID        string    `json:"id"`
	Username  string    `json:"username"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
	Flagged   bool      `json:"flagged"`
}
