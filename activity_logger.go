package crew

import (
	"context"
	"time"

	"go.jetify.com/typeid"
)

// ActivityLogEntry records one node visit
type ActivityLogEntry struct {
	ID        string    `json:"id"`
	ThreadID  string    `json:"thread_id"`
	Node      string    `json:"node"`
	Visit     int       `json:"visit"`
	Decision  string    `json:"decision,omitempty"`
	Messages  []string  `json:"messages,omitempty"`
	Error     string    `json:"error,omitempty"`
	StartTime time.Time `json:"start_time"`
	Duration  float64   `json:"duration"`
}

// ActivityLogger keeps an audit trail of node visits per thread
type ActivityLogger interface {
	// LogActivity logs a completed node visit
	LogActivity(ctx context.Context, entry *ActivityLogEntry) error

	// GetActivityHistory retrieves the activity log of a thread
	GetActivityHistory(ctx context.Context, threadID string) ([]*ActivityLogEntry, error)
}

// NewActivityID returns a new activity log entry identifier.
func NewActivityID() string {
	id, err := typeid.WithPrefix("act")
	if err != nil {
		panic(err)
	}
	return id.String()
}
