// Package checkpointtest holds a behavior suite every crew.CheckpointStore
// implementation is run against.
package checkpointtest

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/deepnoodle-ai/crew"
	"github.com/stretchr/testify/require"
)

// Factory returns an empty store. Cleanup is registered on t.
type Factory func(t *testing.T) crew.CheckpointStore

// Run exercises a store implementation.
func Run(t *testing.T, newStore Factory) {
	t.Run("missing thread", func(t *testing.T) {
		store := newStore(t)
		checkpoint, err := store.GetLatest(context.Background(), "thread_missing")
		require.NoError(t, err)
		require.Nil(t, checkpoint)
	})

	t.Run("round trip", func(t *testing.T) {
		store := newStore(t)
		ctx := context.Background()
		want := Sample("thread_a", 1)
		require.NoError(t, store.Put(ctx, want))

		got, err := store.GetLatest(ctx, "thread_a")
		require.NoError(t, err)
		require.NotNil(t, got)
		requireSameCheckpoint(t, want, got)
	})

	t.Run("latest replaces", func(t *testing.T) {
		store := newStore(t)
		ctx := context.Background()
		for i := 1; i <= 3; i++ {
			require.NoError(t, store.Put(ctx, Sample("thread_a", i)))
		}
		got, err := store.GetLatest(ctx, "thread_a")
		require.NoError(t, err)
		requireSameCheckpoint(t, Sample("thread_a", 3), got)
	})

	t.Run("threads are isolated", func(t *testing.T) {
		store := newStore(t)
		ctx := context.Background()
		require.NoError(t, store.Put(ctx, Sample("thread_a", 1)))
		require.NoError(t, store.Put(ctx, Sample("thread_b", 2)))
		require.NoError(t, store.DeleteAll(ctx, "thread_a"))

		gone, err := store.GetLatest(ctx, "thread_a")
		require.NoError(t, err)
		require.Nil(t, gone)

		kept, err := store.GetLatest(ctx, "thread_b")
		require.NoError(t, err)
		requireSameCheckpoint(t, Sample("thread_b", 2), kept)
	})

	t.Run("delete unknown thread", func(t *testing.T) {
		store := newStore(t)
		require.NoError(t, store.DeleteAll(context.Background(), "thread_missing"))
	})

	t.Run("compact keeps latest", func(t *testing.T) {
		store := newStore(t)
		compactor, ok := store.(crew.Compactor)
		if !ok {
			t.Skip("store does not compact")
		}
		ctx := context.Background()
		for i := 1; i <= 5; i++ {
			require.NoError(t, store.Put(ctx, Sample("thread_a", i)))
			require.NoError(t, store.Put(ctx, Sample("thread_b", i)))
		}
		require.NoError(t, store.DeleteAll(ctx, "thread_b"))
		require.NoError(t, compactor.Compact(ctx))

		got, err := store.GetLatest(ctx, "thread_a")
		require.NoError(t, err)
		requireSameCheckpoint(t, Sample("thread_a", 5), got)
	})

	t.Run("concurrent writers", func(t *testing.T) {
		store := newStore(t)
		ctx := context.Background()
		var wg sync.WaitGroup
		for i := 0; i < 4; i++ {
			threadID := fmt.Sprintf("thread_%d", i)
			wg.Add(1)
			go func() {
				defer wg.Done()
				for n := 1; n <= 5; n++ {
					if err := store.Put(ctx, Sample(threadID, n)); err != nil {
						t.Error(err)
						return
					}
				}
			}()
		}
		wg.Wait()
		for i := 0; i < 4; i++ {
			threadID := fmt.Sprintf("thread_%d", i)
			got, err := store.GetLatest(ctx, threadID)
			require.NoError(t, err)
			requireSameCheckpoint(t, Sample(threadID, 5), got)
		}
	})
}

// Sample builds a checkpoint whose content depends on n. Its payloads hold
// ints and typed slices, which a store decodes as float64 and []any.
func Sample(threadID string, n int) *crew.Checkpoint {
	state := crew.WorkflowState{}
	state.Append(
		crew.Message{ID: fmt.Sprintf("m%d-1", n), Role: crew.RoleUser, Content: []crew.Part{crew.TextPart(fmt.Sprintf("request %d", n))}},
		crew.Message{
			ID:        fmt.Sprintf("m%d-2", n),
			Role:      crew.RoleAgent,
			AgentName: crew.NodePlanning,
			Content:   []crew.Part{crew.TextPart("1. gather data\n2. report")},
			ToolCalls: []crew.ToolCall{{ID: "call_1", Name: "search", Arguments: map[string]any{"query": "toxicity", "top_k": 5}}},
		},
		crew.Message{
			ID:         fmt.Sprintf("m%d-3", n),
			Role:       crew.RoleToolResult,
			AgentName:  crew.NodePlanning,
			ToolName:   "search",
			ToolCallID: "call_1",
			Content:    []crew.Part{crew.JSONPart(map[string]any{"hits": 3, "ids": []string{"a", "b"}})},
		},
	)
	state.PendingInterrupt = &crew.Interrupt{
		Type:    crew.InterruptPlanReview,
		Plan:    "1. gather data\n2. report",
		Message: crew.PlanReviewInstructions,
		Node:    crew.NodeHumanChat,
	}
	return &crew.Checkpoint{
		ID:           fmt.Sprintf("cp_%s_%04d", threadID, n),
		ThreadID:     threadID,
		State:        state,
		NextStep:     crew.NodeHumanChat,
		Status:       crew.CheckpointInterrupted,
		CheckpointAt: time.Date(2025, 3, 1, 12, 0, n, 0, time.UTC),
	}
}

func requireSameCheckpoint(t *testing.T, want, got *crew.Checkpoint) {
	t.Helper()
	require.NotNil(t, got)
	require.Equal(t, want, got)
}
