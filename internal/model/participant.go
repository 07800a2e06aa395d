package model

import "time"

// Participant represents a registered chat user
type Participant struct {
	Name          string    `json:"name"`
	LastHeartbeat time.Time `json:"lastStatus"`
}

// IdleFor returns how long the participant has been silent at now
func (p Participant) IdleFor(now time.Time) time.Duration {
	return now.Sub(p.LastHeartbeat)
}
