package storage

import "time"

type Project struct {
	ID        int64
	Title     string
	Summary   string
	Author    string
	Tags      string
	IsPublic  bool
	CreatedAt time.Time
}

// ChatLogEntry is one durable record of a chat turn, written asynchronously
// by the logger worker.
type ChatLogEntry struct {
	Question   string
	Outcome    string
	Attempts   int
	DurationMS int64
}

const (
	OutcomeAnswered    = "answered"
	OutcomeRateLimited = "rate_limited"
	OutcomeOverloaded  = "overloaded"
	OutcomeError       = "error"
)
