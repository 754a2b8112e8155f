package crew

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestFileActivityLogger(t *testing.T) {
	logger := NewFileActivityLogger(t.TempDir())
	ctx := context.Background()
	start := time.Date(2025, 3, 1, 9, 30, 0, 0, time.UTC)

	history, err := logger.GetActivityHistory(ctx, "thread_a")
	require.NoError(t, err)
	require.Empty(t, history)

	entries := []*ActivityLogEntry{
		{ThreadID: "thread_a", Node: NodeStart, Visit: 1, Decision: "plan", StartTime: start},
		{ThreadID: "thread_a", Node: NodePlanning, Visit: 2, Messages: []string{"m1"}, StartTime: start, Duration: 1.5},
		{ThreadID: "thread_b", Node: NodeStart, Visit: 1, Error: "classifier offline", StartTime: start},
	}
	for _, entry := range entries {
		require.NoError(t, logger.LogActivity(ctx, entry))
		require.NotEmpty(t, entry.ID)
	}

	history, err = logger.GetActivityHistory(ctx, "thread_a")
	require.NoError(t, err)
	require.Equal(t, entries[:2], history)

	require.NoError(t, logger.DeleteHistory(ctx, "thread_a"))
	require.NoError(t, logger.DeleteHistory(ctx, "thread_a"))
	history, err = logger.GetActivityHistory(ctx, "thread_a")
	require.NoError(t, err)
	require.Empty(t, history)

	history, err = logger.GetActivityHistory(ctx, "thread_b")
	require.NoError(t, err)
	require.Len(t, history, 1)
	require.Equal(t, "classifier offline", history[0].Error)
}

func TestNullActivityLogger(t *testing.T) {
	logger := NewNullActivityLogger()
	require.NoError(t, logger.LogActivity(context.Background(), &ActivityLogEntry{ThreadID: "t"}))
	history, err := logger.GetActivityHistory(context.Background(), "t")
	require.NoError(t, err)
	require.Empty(t, history)
}
