package crew

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/deepnoodle-ai/crew/retry"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

// testCrew is a set of scripted collaborators that count their invocations.
type testCrew struct {
	mu    sync.Mutex
	calls map[string]int
	// fail, when set for a node, replaces that agent's output.
	fail map[string]func(n int) error
}

func newTestCrew() *testCrew {
	return &testCrew{calls: map[string]int{}, fail: map[string]func(int) error{}}
}

func (c *testCrew) count(name string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.calls[name]
}

func (c *testCrew) record(name string) error {
	c.mu.Lock()
	c.calls[name]++
	n := c.calls[name]
	fail := c.fail[name]
	c.mu.Unlock()
	if fail != nil {
		return fail(n)
	}
	return nil
}

func (c *testCrew) setFail(name string, fn func(n int) error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.fail[name] = fn
}

func (c *testCrew) agents() []Agent {
	agents := []Agent{
		NewAgentFunc(NodePlanning, func(ctx context.Context, state *WorkflowState) (*AgentUpdate, error) {
			if err := c.record(NodePlanning); err != nil {
				return nil, err
			}
			plan := "Plan for: " + state.LatestUserPrompt()
			if episodic, ok := EpisodicContextFromContext(ctx); ok {
				plan += fmt.Sprintf(" (examples: %d)", len(episodic.Examples))
			}
			return &AgentUpdate{Messages: []Message{NewAgentMessage("", plan)}}, nil
		}),
		NewAgentFunc(NodeReport, func(ctx context.Context, state *WorkflowState) (*AgentUpdate, error) {
			if err := c.record(NodeReport); err != nil {
				return nil, err
			}
			return &AgentUpdate{Messages: []Message{NewAgentMessage(NodeReport, "## Report")}}, nil
		}),
	}
	for _, worker := range WorkerNodes {
		agents = append(agents, NewAgentFunc(worker, func(ctx context.Context, state *WorkflowState) (*AgentUpdate, error) {
			if err := c.record(worker); err != nil {
				return nil, err
			}
			return &AgentUpdate{Messages: []Message{NewAgentMessage(worker, worker+" done")}}, nil
		}))
	}
	return agents
}

// supervisor delegates to each worker that has not yet spoken, in order.
func (c *testCrew) supervisor() Supervisor {
	return SupervisorFunc(func(ctx context.Context, state *WorkflowState) (*Delegation, error) {
		if err := c.record(NodeSupervisor); err != nil {
			return nil, err
		}
		spoken := map[string]bool{}
		for _, msg := range state.Messages {
			spoken[msg.AgentName] = true
		}
		for _, worker := range WorkerNodes {
			if !spoken[worker] {
				return &Delegation{
					Messages: []Message{NewAgentMessage("", "⏳ CURRENT: "+worker)},
					Next:     worker,
				}, nil
			}
		}
		return &Delegation{Messages: []Message{NewAgentMessage("", "✓ COMPLETED: all")}}, nil
	})
}

var skipPlanning = ClassifierFunc(func(ctx context.Context, text string) (Route, error) {
	return RouteSkip, nil
})

func newTestOrchestrator(t *testing.T, c *testCrew, configure ...func(*OrchestratorOptions)) (*Orchestrator, *MemoryCheckpointStore) {
	t.Helper()
	store := NewMemoryCheckpointStore(5)
	opts := OrchestratorOptions{
		Store:      store,
		Agents:     c.agents(),
		Supervisor: c.supervisor(),
	}
	for _, fn := range configure {
		fn(&opts)
	}
	o, err := NewOrchestrator(opts)
	require.NoError(t, err)
	return o, store
}

type recordedTurn struct {
	result *TurnResult
	err    error
	nodes  []string
	events []StreamEvent
}

func runTurn(ctx context.Context, o *Orchestrator, req TurnRequest) recordedTurn {
	var rec recordedTurn
	rec.result, rec.err = o.Run(ctx, req, func(event StreamEvent) error {
		rec.events = append(rec.events, event)
		if chunk, ok := event.(*Chunk); ok {
			rec.nodes = append(rec.nodes, chunk.AgentName)
		}
		return nil
	})
	return rec
}

func (r recordedTurn) complete(t *testing.T) *Complete {
	t.Helper()
	require.NotEmpty(t, r.events)
	complete, ok := r.events[len(r.events)-1].(*Complete)
	require.True(t, ok, "last event is %T", r.events[len(r.events)-1])
	return complete
}

func latest(t *testing.T, store CheckpointStore, threadID string) *Checkpoint {
	t.Helper()
	checkpoint, err := store.GetLatest(context.Background(), threadID)
	require.NoError(t, err)
	require.NotNil(t, checkpoint)
	return checkpoint
}

func TestNewOrchestratorValidation(t *testing.T) {
	c := newTestCrew()

	_, err := NewOrchestrator(OrchestratorOptions{Supervisor: c.supervisor(), Agents: c.agents()})
	require.ErrorContains(t, err, "checkpoint store is required")

	_, err = NewOrchestrator(OrchestratorOptions{Store: NewMemoryCheckpointStore(1), Agents: c.agents()})
	require.ErrorContains(t, err, "supervisor is required")

	_, err = NewOrchestrator(OrchestratorOptions{
		Store:      NewMemoryCheckpointStore(1),
		Supervisor: c.supervisor(),
		Agents:     c.agents()[:2],
	})
	require.ErrorContains(t, err, "no agent for node")

	o, err := NewOrchestrator(OrchestratorOptions{
		Store:      NewMemoryCheckpointStore(1),
		Supervisor: c.supervisor(),
		Agents:     c.agents(),
	})
	require.NoError(t, err)
	require.Equal(t, NewCrewGraph().String(), o.Graph().String())
}

func TestOrchestratorPlanReviewFlow(t *testing.T) {
	c := newTestCrew()
	o, store := newTestOrchestrator(t, c)
	ctx := context.Background()
	const thread = "thread_flow"

	// The first message is planned and then held for review.
	first := runTurn(ctx, o, TurnRequest{ThreadID: thread, Input: "build a model"})
	require.NoError(t, first.err)
	require.Equal(t, TurnSuspended, first.result.Status)
	require.Equal(t, []string{NodeStart, NodePlanning}, first.nodes)
	require.True(t, first.complete(t).Interrupted)
	require.Equal(t, &Interrupt{
		Type:    InterruptPlanReview,
		Plan:    "Plan for: build a model",
		Message: PlanReviewInstructions,
		Node:    NodeHumanChat,
	}, first.result.Interrupt)

	checkpoint := latest(t, store, thread)
	require.True(t, checkpoint.AwaitingHuman())
	require.Equal(t, CheckpointInterrupted, checkpoint.Status)
	require.NotNil(t, checkpoint.State.PendingInterrupt)
	require.Len(t, checkpoint.State.Messages, 2)

	// Feedback on a pending plan resumes even without the Resume flag.
	second := runTurn(ctx, o, TurnRequest{ThreadID: thread, Input: "also check toxicity"})
	require.NoError(t, second.err)
	require.Equal(t, TurnSuspended, second.result.Status)
	require.Equal(t, []string{NodeHumanChat, NodePlanning}, second.nodes)
	require.Equal(t, "Plan for: also check toxicity", second.result.Interrupt.Plan)
	require.Equal(t, 2, c.count(NodePlanning))
	require.Equal(t, 0, c.count(NodeSupervisor))

	// Approval runs the plan through the workers to the report.
	third := runTurn(ctx, o, TurnRequest{ThreadID: thread, Input: ApproveToken, Resume: true})
	require.NoError(t, third.err)
	require.Equal(t, TurnCompleted, third.result.Status)
	require.Nil(t, third.result.Interrupt)
	require.False(t, third.complete(t).Interrupted)
	require.Equal(t, []string{
		NodeHumanChat, NodePlanning,
		NodeSupervisor, NodeResearch,
		NodeSupervisor, NodePrediction,
		NodeSupervisor, NodeData,
		NodeSupervisor, NodeReport,
	}, third.nodes)
	require.Equal(t, 10, third.result.NodeVisits)

	checkpoint = latest(t, store, thread)
	require.Equal(t, CheckpointCompleted, checkpoint.Status)
	require.Empty(t, checkpoint.NextStep)
	require.True(t, checkpoint.State.PlanApproved)
	require.Nil(t, checkpoint.State.PendingInterrupt)
	require.Equal(t, []string{"build a model", "also check toxicity"}, checkpoint.State.HumanMessages())
	require.Equal(t, "## Report", checkpoint.State.LatestAgentText(NodeReport))

	// A new request on the same thread must be approved again.
	fourth := runTurn(ctx, o, TurnRequest{ThreadID: thread, Input: "now summarize the assay"})
	require.NoError(t, fourth.err)
	require.Equal(t, TurnSuspended, fourth.result.Status)
	require.False(t, latest(t, store, thread).State.PlanApproved)
}

func TestOrchestratorApprovalPhrase(t *testing.T) {
	c := newTestCrew()
	o, _ := newTestOrchestrator(t, c)
	ctx := context.Background()

	runTurn(ctx, o, TurnRequest{ThreadID: "thread_a", Input: "build a model"})
	turn := runTurn(ctx, o, TurnRequest{ThreadID: "thread_a", Input: "looks good, proceed"})
	require.NoError(t, turn.err)
	require.Equal(t, TurnCompleted, turn.result.Status)
	require.Equal(t, 1, c.count(NodeReport))
}

func TestOrchestratorSkipPlanning(t *testing.T) {
	c := newTestCrew()
	o, store := newTestOrchestrator(t, c, func(opts *OrchestratorOptions) {
		opts.Classifier = skipPlanning
	})

	turn := runTurn(context.Background(), o, TurnRequest{ThreadID: "thread_a", Input: "what is logP?"})
	require.NoError(t, turn.err)
	require.Equal(t, TurnCompleted, turn.result.Status)
	require.Equal(t, NodeSupervisor, turn.nodes[1])
	require.Equal(t, 0, c.count(NodePlanning))
	require.Equal(t, 1, c.count(NodeReport))
	require.Equal(t, CheckpointCompleted, latest(t, store, "thread_a").Status)
}

func TestOrchestratorRecursionLimit(t *testing.T) {
	c := newTestCrew()
	o, store := newTestOrchestrator(t, c, func(opts *OrchestratorOptions) {
		opts.Classifier = skipPlanning
		opts.RecursionLimit = 5
		opts.Supervisor = SupervisorFunc(func(ctx context.Context, state *WorkflowState) (*Delegation, error) {
			return &Delegation{Next: NodeResearch}, nil
		})
	})

	turn := runTurn(context.Background(), o, TurnRequest{ThreadID: "thread_loop", Input: "loop forever"})
	require.Error(t, turn.err)
	require.True(t, MatchesErrorType(turn.err, ErrorTypeRecursionExceeded))
	require.Equal(t, TurnFailed, turn.result.Status)
	require.Equal(t, 6, turn.result.NodeVisits)

	checkpoint := latest(t, store, "thread_loop")
	require.Equal(t, CheckpointFailed, checkpoint.Status)
	require.Equal(t, NodeSupervisor, checkpoint.NextStep)
	require.Contains(t, checkpoint.Error, ErrorTypeRecursionExceeded)
}

func TestOrchestratorFailureAndResume(t *testing.T) {
	c := newTestCrew()
	boom := errors.New("model server exploded")
	c.setFail(NodeResearch, func(n int) error {
		if n == 1 {
			return boom
		}
		return nil
	})
	o, store := newTestOrchestrator(t, c, func(opts *OrchestratorOptions) {
		opts.Classifier = skipPlanning
	})
	ctx := context.Background()

	turn := runTurn(ctx, o, TurnRequest{ThreadID: "thread_a", Input: "find papers"})
	require.ErrorIs(t, turn.err, boom)
	require.True(t, MatchesErrorType(turn.err, ErrorTypeCollaboratorFailure))
	require.Equal(t, TurnFailed, turn.result.Status)
	require.Equal(t, []string{NodeStart, NodeSupervisor}, turn.nodes)
	for _, event := range turn.events {
		_, isComplete := event.(*Complete)
		require.False(t, isComplete, "failed turns do not complete")
	}

	checkpoint := latest(t, store, "thread_a")
	require.Equal(t, CheckpointFailed, checkpoint.Status)
	require.Equal(t, NodeResearch, checkpoint.NextStep)
	require.Contains(t, checkpoint.Error, "model server exploded")

	resumed := runTurn(ctx, o, TurnRequest{ThreadID: "thread_a", Resume: true})
	require.NoError(t, resumed.err)
	require.Equal(t, TurnCompleted, resumed.result.Status)
	require.Equal(t, NodeResearch, resumed.nodes[0])
	require.Equal(t, 2, c.count(NodeResearch))
	require.Equal(t, []string{"find papers"}, resumed.result.State.HumanMessages())
}

func TestOrchestratorFailureBeforeCommit(t *testing.T) {
	c := newTestCrew()
	o, store := newTestOrchestrator(t, c, func(opts *OrchestratorOptions) {
		opts.Classifier = ClassifierFunc(func(ctx context.Context, text string) (Route, error) {
			return "", errors.New("classifier offline")
		})
	})
	turn := runTurn(context.Background(), o, TurnRequest{ThreadID: "thread_a", Input: "hello"})
	require.Error(t, turn.err)
	require.Equal(t, TurnFailed, turn.result.Status)

	checkpoint, err := store.GetLatest(context.Background(), "thread_a")
	require.NoError(t, err)
	require.Nil(t, checkpoint)
}

func TestOrchestratorInterruptError(t *testing.T) {
	c := newTestCrew()
	c.setFail(NodeData, func(n int) error {
		if n == 1 {
			return errors.New("human input required: which dataset?")
		}
		return nil
	})
	o, store := newTestOrchestrator(t, c, func(opts *OrchestratorOptions) {
		opts.Classifier = skipPlanning
	})
	ctx := context.Background()

	turn := runTurn(ctx, o, TurnRequest{ThreadID: "thread_a", Input: "train on the assay"})
	require.NoError(t, turn.err)
	require.Equal(t, TurnSuspended, turn.result.Status)
	require.True(t, turn.complete(t).Interrupted)
	require.Equal(t, InterruptSignal, turn.result.Interrupt.Type)
	require.Equal(t, NodeData, turn.result.Interrupt.Node)
	require.Contains(t, turn.result.Interrupt.Message, "which dataset?")

	checkpoint := latest(t, store, "thread_a")
	require.Equal(t, CheckpointInterrupted, checkpoint.Status)
	require.Equal(t, NodeData, checkpoint.NextStep)
	require.False(t, checkpoint.AwaitingHuman())
	require.True(t, checkpoint.Pending())

	empty := runTurn(ctx, o, TurnRequest{ThreadID: "thread_a", Input: " "})
	require.ErrorIs(t, empty.err, ErrEmptyInput)

	// the reply resumes in front of data_agent without an explicit resume flag
	resumed := runTurn(ctx, o, TurnRequest{ThreadID: "thread_a", Input: "use assay.csv"})
	require.NoError(t, resumed.err)
	require.Equal(t, TurnCompleted, resumed.result.Status)
	require.Equal(t, NodeData, resumed.nodes[0])
	require.Equal(t, []string{"train on the assay", "use assay.csv"}, resumed.result.State.HumanMessages())
	require.Equal(t, 1, c.count(NodeResearch))
	require.Equal(t, 2, c.count(NodeData))
}

func TestOrchestratorInterruptErrorApproved(t *testing.T) {
	c := newTestCrew()
	c.setFail(NodeResearch, func(n int) error {
		if n == 1 {
			return errors.New("interrupted: confirm the literature sources")
		}
		return nil
	})
	o, store := newTestOrchestrator(t, c, func(opts *OrchestratorOptions) {
		opts.Classifier = skipPlanning
	})
	ctx := context.Background()

	turn := runTurn(ctx, o, TurnRequest{ThreadID: "thread_a", Input: "train on the assay"})
	require.NoError(t, turn.err)
	require.Equal(t, TurnSuspended, turn.result.Status)
	require.Equal(t, NodeResearch, latest(t, store, "thread_a").NextStep)

	resumed := runTurn(ctx, o, TurnRequest{ThreadID: "thread_a", Input: ApproveToken, Resume: true})
	require.NoError(t, resumed.err)
	require.Equal(t, TurnCompleted, resumed.result.Status)
	require.Equal(t, []string{"train on the assay"}, resumed.result.State.HumanMessages())
	require.False(t, resumed.result.State.PlanApproved)
	require.Equal(t, 2, c.count(NodeResearch))
}

func TestOrchestratorRequestValidation(t *testing.T) {
	c := newTestCrew()
	o, store := newTestOrchestrator(t, c)
	ctx := context.Background()

	_, err := o.Run(ctx, TurnRequest{Input: "hello"}, nil)
	require.ErrorIs(t, err, ErrNoActiveThread)

	_, err = o.Run(ctx, TurnRequest{ThreadID: "thread_a", Input: "   "}, nil)
	require.ErrorIs(t, err, ErrEmptyInput)

	_, err = o.Run(ctx, TurnRequest{ThreadID: "thread_a", Resume: true}, nil)
	require.ErrorIs(t, err, ErrNothingToResume)
	require.Zero(t, store.Count("thread_a"))

	_, err = o.Run(ctx, TurnRequest{ThreadID: "thread_a", Input: "build a model"}, nil)
	require.NoError(t, err)
	before := latest(t, store, "thread_a")

	_, err = o.Run(ctx, TurnRequest{ThreadID: "thread_a", Input: "", Resume: true}, nil)
	require.ErrorIs(t, err, ErrEmptyInput)
	require.Equal(t, before.ID, latest(t, store, "thread_a").ID)
}

func TestOrchestratorSingleFlight(t *testing.T) {
	c := newTestCrew()
	entered := make(chan struct{})
	release := make(chan struct{})
	o, _ := newTestOrchestrator(t, c, func(opts *OrchestratorOptions) {
		opts.Agents[0] = NewAgentFunc(NodePlanning, func(ctx context.Context, state *WorkflowState) (*AgentUpdate, error) {
			entered <- struct{}{}
			<-release
			return &AgentUpdate{Messages: []Message{NewAgentMessage("", "plan")}}, nil
		})
	})
	ctx := context.Background()

	done := make(chan error, 1)
	go func() {
		_, err := o.Run(ctx, TurnRequest{ThreadID: "thread_a", Input: "build a model"}, nil)
		done <- err
	}()
	<-entered

	_, err := o.Run(ctx, TurnRequest{ThreadID: "thread_a", Input: "another"}, nil)
	require.ErrorIs(t, err, ErrTurnInFlight)
	require.True(t, MatchesErrorType(err, ErrorTypeTurnInFlight))

	close(release)
	require.NoError(t, <-done)

	// The thread is free again once the turn returns.
	go func() { <-entered }()
	_, err = o.Run(ctx, TurnRequest{ThreadID: "thread_a", Input: "approved"}, nil)
	require.NoError(t, err)
}

func TestOrchestratorStreamAbandon(t *testing.T) {
	c := newTestCrew()
	o, store := newTestOrchestrator(t, c)
	ctx := context.Background()

	var seen []StreamEvent
	for event, err := range o.Stream(ctx, TurnRequest{ThreadID: "thread_a", Input: "build a model"}) {
		require.NoError(t, err)
		seen = append(seen, event)
		break
	}
	require.Len(t, seen, 1)
	require.Equal(t, NodeStart, seen[0].(*Chunk).AgentName)
	require.Equal(t, 0, c.count(NodePlanning))

	checkpoint := latest(t, store, "thread_a")
	require.Equal(t, CheckpointRunning, checkpoint.Status)
	require.Equal(t, NodePlanning, checkpoint.NextStep)

	turn := runTurn(ctx, o, TurnRequest{ThreadID: "thread_a", Resume: true})
	require.NoError(t, turn.err)
	require.Equal(t, TurnSuspended, turn.result.Status)
	require.Equal(t, []string{NodePlanning}, turn.nodes)
}

func TestOrchestratorStreamError(t *testing.T) {
	c := newTestCrew()
	o, _ := newTestOrchestrator(t, c)

	var errs []error
	for event, err := range o.Stream(context.Background(), TurnRequest{ThreadID: "thread_a"}) {
		require.Nil(t, event)
		errs = append(errs, err)
	}
	require.Len(t, errs, 1)
	require.ErrorIs(t, errs[0], ErrEmptyInput)
}

func TestOrchestratorCanceledContext(t *testing.T) {
	c := newTestCrew()
	o, store := newTestOrchestrator(t, c)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	turn := runTurn(ctx, o, TurnRequest{ThreadID: "thread_a", Input: "build a model"})
	require.ErrorIs(t, turn.err, context.Canceled)
	require.True(t, MatchesErrorType(turn.err, ErrorTypeTimeout))
	require.Equal(t, TurnFailed, turn.result.Status)
	require.Zero(t, store.Count("thread_a"))
}

func TestOrchestratorRetry(t *testing.T) {
	flaky := func(n int) error {
		if n <= 2 {
			return retry.NewRecoverableError(errors.New("rate limited"))
		}
		return nil
	}

	t.Run("recoverable errors are retried", func(t *testing.T) {
		c := newTestCrew()
		c.setFail(NodeResearch, flaky)
		o, _ := newTestOrchestrator(t, c, func(opts *OrchestratorOptions) {
			opts.Classifier = skipPlanning
			opts.Retry = &RetryConfig{MaxRetries: 2, BaseDelay: time.Millisecond}
		})
		turn := runTurn(context.Background(), o, TurnRequest{ThreadID: "thread_a", Input: "go"})
		require.NoError(t, turn.err)
		require.Equal(t, 3, c.count(NodeResearch))
	})

	t.Run("node policy overrides the default", func(t *testing.T) {
		c := newTestCrew()
		c.setFail(NodeResearch, flaky)
		o, _ := newTestOrchestrator(t, c, func(opts *OrchestratorOptions) {
			opts.Classifier = skipPlanning
			opts.Retry = &RetryConfig{MaxRetries: 2, BaseDelay: time.Millisecond}
			opts.NodeRetry = map[string]*RetryConfig{NodeResearch: {MaxRetries: 0}}
		})
		turn := runTurn(context.Background(), o, TurnRequest{ThreadID: "thread_a", Input: "go"})
		require.Error(t, turn.err)
		require.Equal(t, 1, c.count(NodeResearch))
	})

	t.Run("unrecoverable errors are not retried", func(t *testing.T) {
		c := newTestCrew()
		c.setFail(NodeResearch, func(n int) error { return errors.New("bad request") })
		o, _ := newTestOrchestrator(t, c, func(opts *OrchestratorOptions) {
			opts.Classifier = skipPlanning
			opts.Retry = &RetryConfig{MaxRetries: 3, BaseDelay: time.Millisecond}
		})
		turn := runTurn(context.Background(), o, TurnRequest{ThreadID: "thread_a", Input: "go"})
		require.Error(t, turn.err)
		require.Equal(t, 1, c.count(NodeResearch))
	})
}

type fakeMemory struct {
	examples []EpisodicExample
	err      error
	queries  []string
}

func (m *fakeMemory) GetContext(ctx context.Context, text string, max int) (*EpisodicContext, error) {
	m.queries = append(m.queries, text)
	if m.err != nil {
		return nil, m.err
	}
	return &EpisodicContext{Examples: m.examples}, nil
}

func (m *fakeMemory) Extract(ctx context.Context, threadID string) (*ExtractionResult, error) {
	return &ExtractionResult{}, nil
}

func TestOrchestratorEpisodicMemory(t *testing.T) {
	t.Run("examples reach the planner", func(t *testing.T) {
		memory := &fakeMemory{examples: []EpisodicExample{{Request: "old", Plan: "1. do it"}}}
		o, _ := newTestOrchestrator(t, newTestCrew(), func(opts *OrchestratorOptions) {
			opts.EpisodicMemory = memory
		})
		turn := runTurn(context.Background(), o, TurnRequest{ThreadID: "thread_a", Input: "build a model", UseEpisodicMemory: true})
		require.NoError(t, turn.err)
		require.Equal(t, "Plan for: build a model (examples: 1)", turn.result.Interrupt.Plan)
		require.Equal(t, []string{"build a model"}, memory.queries)
	})

	t.Run("disabled per request", func(t *testing.T) {
		memory := &fakeMemory{}
		o, _ := newTestOrchestrator(t, newTestCrew(), func(opts *OrchestratorOptions) {
			opts.EpisodicMemory = memory
		})
		runTurn(context.Background(), o, TurnRequest{ThreadID: "thread_a", Input: "build a model"})
		require.Empty(t, memory.queries)
	})

	t.Run("retrieval errors are not fatal", func(t *testing.T) {
		memory := &fakeMemory{err: errors.New("index missing")}
		o, _ := newTestOrchestrator(t, newTestCrew(), func(opts *OrchestratorOptions) {
			opts.EpisodicMemory = memory
		})
		turn := runTurn(context.Background(), o, TurnRequest{ThreadID: "thread_a", Input: "build a model", UseEpisodicMemory: true})
		require.NoError(t, turn.err)
		require.Equal(t, "Plan for: build a model", turn.result.Interrupt.Plan)
	})
}

type recordingCallbacks struct {
	BaseTurnCallbacks
	mu       sync.Mutex
	nodes    []string
	statuses []TurnStatus
}

func (r *recordingCallbacks) AfterNode(ctx context.Context, event *NodeEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nodes = append(r.nodes, event.Node)
}

func (r *recordingCallbacks) AfterTurn(ctx context.Context, event *TurnEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.statuses = append(r.statuses, event.Status)
}

func TestOrchestratorCallbacksAndActivity(t *testing.T) {
	recorder := &recordingCallbacks{}
	metrics := NewMetrics(prometheus.NewRegistry())
	activity := NewFileActivityLogger(t.TempDir())
	o, _ := newTestOrchestrator(t, newTestCrew(), func(opts *OrchestratorOptions) {
		opts.Callbacks = NewCallbackChain(recorder, metrics)
		opts.ActivityLogger = activity
	})
	ctx := context.Background()

	runTurn(ctx, o, TurnRequest{ThreadID: "thread_a", Input: "build a model"})
	runTurn(ctx, o, TurnRequest{ThreadID: "thread_a", Input: ApproveToken})

	require.Equal(t, []TurnStatus{TurnSuspended, TurnCompleted}, recorder.statuses)
	require.Equal(t, []string{NodeStart, NodePlanning, NodeHumanChat}, recorder.nodes[:3])
	require.Equal(t, 1.0, testutil.ToFloat64(metrics.interrupts))
	require.Equal(t, 1.0, testutil.ToFloat64(metrics.turnsTotal.WithLabelValues(string(TurnCompleted))))
	require.Equal(t, 4.0, testutil.ToFloat64(metrics.nodeVisits.WithLabelValues(NodeSupervisor)))

	entries, err := activity.GetActivityHistory(ctx, "thread_a")
	require.NoError(t, err)
	require.Len(t, entries, len(recorder.nodes))
	require.Equal(t, NodeStart, entries[0].Node)
	require.Equal(t, string(RoutePlan), entries[0].Decision)
	for _, entry := range entries {
		require.True(t, strings.HasPrefix(entry.ID, "act_"))
	}
}
