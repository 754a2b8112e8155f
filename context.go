package crew

import (
	"context"
	"log/slog"
)

type ContextKey string

const (
	LoggerContextKey   ContextKey = "logger"
	ThreadIDContextKey ContextKey = "thread_id"
	NodeContextKey     ContextKey = "node"
	EpisodicContextKey ContextKey = "episodic"
)

func WithLogger(ctx context.Context, logger *slog.Logger) context.Context {
	return context.WithValue(ctx, LoggerContextKey, logger)
}

func WithThreadID(ctx context.Context, threadID string) context.Context {
	return context.WithValue(ctx, ThreadIDContextKey, threadID)
}

func WithNode(ctx context.Context, node string) context.Context {
	return context.WithValue(ctx, NodeContextKey, node)
}

func WithEpisodicContext(ctx context.Context, episodic *EpisodicContext) context.Context {
	return context.WithValue(ctx, EpisodicContextKey, episodic)
}

func GetLoggerFromContext(ctx context.Context) (*slog.Logger, bool) {
	logger, ok := ctx.Value(LoggerContextKey).(*slog.Logger)
	return logger, ok
}

func GetThreadIDFromContext(ctx context.Context) (string, bool) {
	threadID, ok := ctx.Value(ThreadIDContextKey).(string)
	return threadID, ok
}

func GetNodeFromContext(ctx context.Context) (string, bool) {
	node, ok := ctx.Value(NodeContextKey).(string)
	return node, ok
}

// EpisodicContextFromContext returns the examples retrieved for the planning
// agent, if any.
func EpisodicContextFromContext(ctx context.Context) (*EpisodicContext, bool) {
	episodic, ok := ctx.Value(EpisodicContextKey).(*EpisodicContext)
	return episodic, ok && episodic != nil
}
