package crew

import (
	"context"
)

// AgentUpdate is what an agent adds to the conversation when invoked.
type AgentUpdate struct {
	Messages []Message
}

// Agent is a specialized worker that reads the conversation and contributes
// messages to it.
type Agent interface {

	// Name returns the node name the agent runs as
	Name() string

	// Invoke runs the agent against a snapshot of the workflow state.
	Invoke(ctx context.Context, state *WorkflowState) (*AgentUpdate, error)
}

// AgentFunc adapts a function to the Agent interface.
type AgentFunc struct {
	name string
	fn   func(ctx context.Context, state *WorkflowState) (*AgentUpdate, error)
}

// NewAgentFunc returns an Agent for the given function.
func NewAgentFunc(name string, fn func(ctx context.Context, state *WorkflowState) (*AgentUpdate, error)) *AgentFunc {
	return &AgentFunc{name: name, fn: fn}
}

func (a *AgentFunc) Name() string {
	return a.name
}

func (a *AgentFunc) Invoke(ctx context.Context, state *WorkflowState) (*AgentUpdate, error) {
	return a.fn(ctx, state)
}

// Delegation is a supervisor decision. Next names the worker node to run, or
// is empty once the work is done and the report should be written.
type Delegation struct {
	Messages []Message
	Next     string
}

// Supervisor coordinates the worker agents.
type Supervisor interface {
	Delegate(ctx context.Context, state *WorkflowState) (*Delegation, error)
}

// SupervisorFunc adapts a function to the Supervisor interface.
type SupervisorFunc func(ctx context.Context, state *WorkflowState) (*Delegation, error)

func (f SupervisorFunc) Delegate(ctx context.Context, state *WorkflowState) (*Delegation, error) {
	return f(ctx, state)
}

// Route is a classifier decision.
type Route string

const (
	// RoutePlan sends the request through planning and human review.
	RoutePlan Route = "plan"
	// RouteSkip sends the request straight to the supervisor.
	RouteSkip Route = "skip"
)

// Classifier decides whether a request needs a plan.
type Classifier interface {
	Classify(ctx context.Context, text string) (Route, error)
}

// ClassifierFunc adapts a function to the Classifier interface.
type ClassifierFunc func(ctx context.Context, text string) (Route, error)

func (f ClassifierFunc) Classify(ctx context.Context, text string) (Route, error) {
	return f(ctx, text)
}

// AlwaysPlan is the classifier used when none is configured.
var AlwaysPlan = ClassifierFunc(func(ctx context.Context, text string) (Route, error) {
	return RoutePlan, nil
})

// EpisodicExample is a past request and the plan that served it well.
type EpisodicExample struct {
	Request string  `json:"request"`
	Plan    string  `json:"plan"`
	Score   float64 `json:"score,omitempty"`
}

// EpisodicContext is handed to the planning agent through the context.
type EpisodicContext struct {
	Examples []EpisodicExample `json:"examples"`
	Prompt   string            `json:"prompt,omitempty"`
}

// ExtractionResult reports what was learned from a finished thread.
type ExtractionResult struct {
	Stored  int    `json:"stored"`
	Summary string `json:"summary,omitempty"`
}

// EpisodicMemory retrieves and records planning experience.
type EpisodicMemory interface {
	GetContext(ctx context.Context, text string, maxExamples int) (*EpisodicContext, error)
	Extract(ctx context.Context, threadID string) (*ExtractionResult, error)
}
