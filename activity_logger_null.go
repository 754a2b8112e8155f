package crew

import "context"

// NullActivityLogger discards every entry.
type NullActivityLogger struct{}

func NewNullActivityLogger() *NullActivityLogger {
	return &NullActivityLogger{}
}

func (l *NullActivityLogger) LogActivity(ctx context.Context, entry *ActivityLogEntry) error {
	return nil
}

func (l *NullActivityLogger) GetActivityHistory(ctx context.Context, threadID string) ([]*ActivityLogEntry, error) {
	return nil, nil
}
