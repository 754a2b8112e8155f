package crew

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/deepnoodle-ai/crew/retry"
)

// DefaultRecursionLimit bounds node visits per turn.
const DefaultRecursionLimit = 100

// JitterStrategy defines the jitter strategy for retry delays
type JitterStrategy string

const (
	JitterNone JitterStrategy = "NONE"
	JitterFull JitterStrategy = "FULL"
)

// RetryConfig configures retries of collaborator calls. Only errors that
// retry.IsRecoverable accepts are retried.
type RetryConfig struct {
	MaxRetries     int            `json:"max_retries,omitempty" yaml:"max_retries,omitempty"`
	BaseDelay      time.Duration  `json:"base_delay,omitempty" yaml:"base_delay,omitempty"`
	MaxDelay       time.Duration  `json:"max_delay,omitempty" yaml:"max_delay,omitempty"`
	BackoffRate    float64        `json:"backoff_rate,omitempty" yaml:"backoff_rate,omitempty"`
	JitterStrategy JitterStrategy `json:"jitter_strategy,omitempty" yaml:"jitter_strategy,omitempty"`
}

func (c *RetryConfig) options() []retry.Option {
	if c == nil {
		return []retry.Option{retry.WithMaxRetries(0)}
	}
	opts := []retry.Option{
		retry.WithMaxRetries(c.MaxRetries),
		retry.WithJitter(c.JitterStrategy == JitterFull),
	}
	if c.BaseDelay > 0 {
		opts = append(opts, retry.WithBaseWait(c.BaseDelay))
	}
	if c.MaxDelay > 0 {
		opts = append(opts, retry.WithMaxWait(c.MaxDelay))
	}
	if c.BackoffRate > 0 {
		opts = append(opts, retry.WithBackoffRate(c.BackoffRate))
	}
	return opts
}

// OrchestratorOptions configures a new orchestrator
type OrchestratorOptions struct {
	Store               CheckpointStore
	Graph               *Graph
	Agents              []Agent
	Supervisor          Supervisor
	Classifier          Classifier
	EpisodicMemory      EpisodicMemory
	MaxEpisodicExamples int
	RecursionLimit      int
	Retry               *RetryConfig
	NodeRetry           map[string]*RetryConfig
	Callbacks           TurnCallbacks
	ActivityLogger      ActivityLogger
	Logger              *slog.Logger
}

// Orchestrator drives turns through the workflow graph, committing a
// checkpoint after every node and streaming each node's output.
type Orchestrator struct {
	store          CheckpointStore
	graph          *Graph
	agents         map[string]Agent
	supervisor     Supervisor
	classifier     Classifier
	memory         EpisodicMemory
	maxExamples    int
	recursionLimit int
	retry          *RetryConfig
	nodeRetry      map[string]*RetryConfig
	callbacks      TurnCallbacks
	activityLogger ActivityLogger
	logger         *slog.Logger

	mutex    sync.Mutex
	inFlight map[string]struct{}
}

// NewOrchestrator validates the options and returns an orchestrator. Every
// node of the graph other than the start, end, review and supervisor nodes
// needs an agent of the same name.
func NewOrchestrator(opts OrchestratorOptions) (*Orchestrator, error) {
	if opts.Store == nil {
		return nil, fmt.Errorf("checkpoint store is required")
	}
	if opts.Supervisor == nil {
		return nil, fmt.Errorf("supervisor is required")
	}
	if opts.Graph == nil {
		opts.Graph = NewCrewGraph()
	}
	if opts.Classifier == nil {
		opts.Classifier = AlwaysPlan
	}
	if opts.MaxEpisodicExamples <= 0 {
		opts.MaxEpisodicExamples = 3
	}
	if opts.RecursionLimit <= 0 {
		opts.RecursionLimit = DefaultRecursionLimit
	}
	if opts.Callbacks == nil {
		opts.Callbacks = &BaseTurnCallbacks{}
	}
	if opts.ActivityLogger == nil {
		opts.ActivityLogger = NewNullActivityLogger()
	}
	if opts.Logger == nil {
		opts.Logger = discardLogger()
	}

	agents := make(map[string]Agent, len(opts.Agents))
	for _, agent := range opts.Agents {
		if agent == nil || agent.Name() == "" {
			return nil, fmt.Errorf("agent name required")
		}
		agents[agent.Name()] = agent
	}
	for _, name := range opts.Graph.NodeNames() {
		switch name {
		case NodeStart, NodeEnd, NodeHumanChat, NodeSupervisor:
			continue
		}
		if _, ok := agents[name]; !ok {
			return nil, fmt.Errorf("no agent for node %q", name)
		}
	}

	return &Orchestrator{
		store:          opts.Store,
		graph:          opts.Graph,
		agents:         agents,
		supervisor:     opts.Supervisor,
		classifier:     opts.Classifier,
		memory:         opts.EpisodicMemory,
		maxExamples:    opts.MaxEpisodicExamples,
		recursionLimit: opts.RecursionLimit,
		retry:          opts.Retry,
		nodeRetry:      opts.NodeRetry,
		callbacks:      opts.Callbacks,
		activityLogger: opts.ActivityLogger,
		logger:         opts.Logger,
		inFlight:       map[string]struct{}{},
	}, nil
}

// Graph returns the workflow graph.
func (o *Orchestrator) Graph() *Graph {
	return o.graph
}

// State returns the latest checkpoint of a thread, or nil if it has none.
func (o *Orchestrator) State(ctx context.Context, threadID string) (*Checkpoint, error) {
	checkpoint, err := o.store.GetLatest(ctx, threadID)
	if err != nil {
		return nil, wrapError(ErrorTypeStorageFailure, err, nil)
	}
	return checkpoint, nil
}

func (o *Orchestrator) acquire(threadID string) bool {
	o.mutex.Lock()
	defer o.mutex.Unlock()
	if _, ok := o.inFlight[threadID]; ok {
		return false
	}
	o.inFlight[threadID] = struct{}{}
	return true
}

func (o *Orchestrator) release(threadID string) {
	o.mutex.Lock()
	defer o.mutex.Unlock()
	delete(o.inFlight, threadID)
}

var errStreamStopped = errors.New("stream stopped by consumer")

// Stream runs a turn and yields its events in order. Breaking out of the
// loop abandons the turn before the next node runs. A turn error is yielded
// last with a nil event.
func (o *Orchestrator) Stream(ctx context.Context, req TurnRequest) iter.Seq2[StreamEvent, error] {
	return func(yield func(StreamEvent, error) bool) {
		_, err := o.Run(ctx, req, func(event StreamEvent) error {
			if !yield(event, nil) {
				return errStreamStopped
			}
			return nil
		})
		if err != nil && !errors.Is(err, errStreamStopped) {
			yield(nil, err)
		}
	}
}

// turn is the mutable state of one running turn.
type turn struct {
	req       TurnRequest
	logger    *slog.Logger
	state     *WorkflowState
	committed *Checkpoint
	// dirty is set once this turn has committed a checkpoint
	dirty       bool
	resumeInput *string
	visits      int
	handler     func(StreamEvent) error
}

// Run executes one turn, calling handler with each event in order. It
// returns when the turn completes, suspends for human input, fails, or is
// abandoned by handler returning an error or ctx ending. Suspension is not an
// error: the result's Status is TurnSuspended and Interrupt is set.
func (o *Orchestrator) Run(ctx context.Context, req TurnRequest, handler func(StreamEvent) error) (*TurnResult, error) {
	if strings.TrimSpace(req.ThreadID) == "" {
		return nil, ErrNoActiveThread
	}
	if handler == nil {
		handler = func(StreamEvent) error { return nil }
	}
	if !o.acquire(req.ThreadID) {
		return nil, ErrTurnInFlight
	}
	defer o.release(req.ThreadID)

	t := &turn{
		req:     req,
		logger:  o.logger.With("thread_id", req.ThreadID),
		handler: handler,
	}
	next, err := o.prepare(ctx, t)
	if err != nil {
		return nil, err
	}

	resuming := t.resumeInput != nil
	startTime := time.Now()
	o.callbacks.BeforeTurn(ctx, &TurnEvent{
		ThreadID:  req.ThreadID,
		Resume:    resuming,
		StartTime: startTime,
	})
	result, err := o.run(ctx, t, next)
	endTime := time.Now()
	o.callbacks.AfterTurn(ctx, &TurnEvent{
		ThreadID:   req.ThreadID,
		Resume:     resuming,
		Status:     result.Status,
		StartTime:  startTime,
		EndTime:    endTime,
		Duration:   endTime.Sub(startTime),
		NodeVisits: t.visits,
		Interrupt:  result.Interrupt,
		Error:      err,
	})
	return result, err
}

// prepare loads the thread and validates the request. It returns the node
// the turn starts at. Nothing is written here.
func (o *Orchestrator) prepare(ctx context.Context, t *turn) (string, error) {
	checkpoint, err := o.store.GetLatest(ctx, t.req.ThreadID)
	if err != nil {
		return "", wrapError(ErrorTypeStorageFailure, err, map[string]any{"thread_id": t.req.ThreadID})
	}
	t.committed = checkpoint

	if t.req.Resume || checkpoint.Pending() {
		if checkpoint == nil || checkpoint.NextStep == "" {
			return "", ErrNothingToResume
		}
		if _, ok := o.graph.Node(checkpoint.NextStep); !ok {
			return "", NewWorkflowError(ErrorTypeValidation,
				fmt.Sprintf("checkpoint resumes at unknown node %q", checkpoint.NextStep))
		}
		input := t.req.Input
		if checkpoint.Pending() && strings.TrimSpace(input) == "" {
			return "", ErrEmptyInput
		}
		t.state = checkpoint.State.Copy()
		t.state.PendingInterrupt = nil
		t.resumeInput = &input
		if checkpoint.Status == CheckpointFailed {
			t.logger.Info("resuming turn from failure",
				"next_step", checkpoint.NextStep,
				"original_error", checkpoint.Error)
		}
		return checkpoint.NextStep, nil
	}

	if strings.TrimSpace(t.req.Input) == "" {
		return "", ErrEmptyInput
	}
	if checkpoint != nil {
		t.state = checkpoint.State.Copy()
	} else {
		t.state = &WorkflowState{}
	}
	t.state.PlanApproved = false
	t.state.PendingInterrupt = nil
	t.state.Append(NewHumanMessage(t.req.Input, t.req.Files...))
	return NodeStart, nil
}

func (o *Orchestrator) run(ctx context.Context, t *turn, next string) (*TurnResult, error) {
	for next != NodeEnd {
		if err := ctx.Err(); err != nil {
			return o.abandon(t, ctx.Err())
		}
		t.visits++
		if t.visits > o.recursionLimit {
			err := &WorkflowError{
				Type:    ErrorTypeRecursionExceeded,
				Cause:   fmt.Sprintf("turn exceeded %d node visits", o.recursionLimit),
				Details: map[string]any{"next_step": next},
			}
			return o.fail(ctx, t, err)
		}

		node := next
		out, err := o.visit(ctx, t, node)
		if err != nil {
			if ctx.Err() != nil {
				return o.abandon(t, ctx.Err())
			}
			if IsInterruptError(err) {
				return o.suspend(ctx, t, node, &Interrupt{
					Type:    InterruptSignal,
					Message: err.Error(),
					Node:    node,
				})
			}
			return o.fail(ctx, t, wrapError(ErrorTypeCollaboratorFailure, err, map[string]any{"node": node}))
		}
		if out.interrupt != nil {
			return o.suspend(ctx, t, node, out.interrupt)
		}

		t.state.Append(out.messages...)
		next, err = o.graph.Next(node, RouteInput{State: t.state, Decision: out.decision})
		if err != nil {
			return o.fail(ctx, t, wrapError(ErrorTypeCollaboratorFailure, err, map[string]any{"node": node}))
		}

		checkpoint := &Checkpoint{
			ThreadID: t.req.ThreadID,
			State:    *t.state.Copy(),
			NextStep: next,
			Status:   CheckpointRunning,
		}
		if next == NodeEnd {
			checkpoint.NextStep = ""
			checkpoint.Status = CheckpointCompleted
		}
		if err := o.commit(ctx, t, checkpoint); err != nil {
			return &TurnResult{ThreadID: t.req.ThreadID, Status: TurnFailed, State: t.state, NodeVisits: t.visits, Err: err}, err
		}
		if err := t.handler(&Chunk{AgentName: node, Messages: out.messages}); err != nil {
			return o.abandon(t, err)
		}
	}

	if err := t.handler(&Complete{Interrupted: false}); err != nil {
		return o.abandon(t, err)
	}
	t.logger.Info("turn completed", "node_visits", t.visits)
	return &TurnResult{
		ThreadID:   t.req.ThreadID,
		Status:     TurnCompleted,
		State:      t.state,
		NodeVisits: t.visits,
	}, nil
}

func (o *Orchestrator) commit(ctx context.Context, t *turn, checkpoint *Checkpoint) error {
	checkpoint.ID = NewCheckpointID()
	checkpoint.CheckpointAt = time.Now().UTC().Round(0)
	if err := o.store.Put(ctx, checkpoint); err != nil {
		t.logger.Error("failed to save checkpoint", "error", err)
		return wrapError(ErrorTypeStorageFailure, err, map[string]any{"thread_id": t.req.ThreadID})
	}
	t.committed = checkpoint
	t.dirty = true
	return nil
}

func (o *Orchestrator) suspend(ctx context.Context, t *turn, node string, interrupt *Interrupt) (*TurnResult, error) {
	t.state.PendingInterrupt = interrupt
	checkpoint := &Checkpoint{
		ThreadID: t.req.ThreadID,
		State:    *t.state.Copy(),
		NextStep: node,
		Status:   CheckpointInterrupted,
	}
	if err := o.commit(ctx, t, checkpoint); err != nil {
		return &TurnResult{ThreadID: t.req.ThreadID, Status: TurnFailed, State: t.state, NodeVisits: t.visits, Err: err}, err
	}
	t.logger.Info("turn suspended for human input", "node", node, "interrupt_type", interrupt.Type)
	result := &TurnResult{
		ThreadID:   t.req.ThreadID,
		Status:     TurnSuspended,
		Interrupt:  interrupt,
		State:      t.state,
		NodeVisits: t.visits,
	}
	if err := t.handler(&Complete{Interrupted: true}); err != nil {
		return result, err
	}
	return result, nil
}

// fail re-puts the checkpoint this turn last committed, marked failed, so a
// later resume continues in front of the node that failed.
func (o *Orchestrator) fail(ctx context.Context, t *turn, err *WorkflowError) (*TurnResult, error) {
	t.logger.Error("turn failed", "error", err, "node_visits", t.visits)
	if t.dirty && t.committed != nil {
		failed := *t.committed
		failed.ID = NewCheckpointID()
		failed.Status = CheckpointFailed
		failed.Error = err.Error()
		failed.CheckpointAt = time.Now().UTC().Round(0)
		if putErr := o.store.Put(ctx, &failed); putErr != nil {
			t.logger.Error("failed to mark checkpoint failed", "error", putErr)
		}
	}
	return &TurnResult{
		ThreadID:   t.req.ThreadID,
		Status:     TurnFailed,
		State:      t.state,
		NodeVisits: t.visits,
		Err:        err,
	}, err
}

// abandon stops the turn without writing anything further.
func (o *Orchestrator) abandon(t *turn, cause error) (*TurnResult, error) {
	err := cause
	if errors.Is(cause, context.Canceled) || errors.Is(cause, context.DeadlineExceeded) {
		err = ClassifyError(cause)
	}
	t.logger.Warn("turn abandoned", "error", cause, "node_visits", t.visits)
	return &TurnResult{
		ThreadID:   t.req.ThreadID,
		Status:     TurnFailed,
		State:      t.state,
		NodeVisits: t.visits,
		Err:        err,
	}, err
}

// nodeOutput is what one node visit produced.
type nodeOutput struct {
	messages  []Message
	decision  string
	interrupt *Interrupt
}

// visit runs a node with callbacks and activity logging around it.
func (o *Orchestrator) visit(ctx context.Context, t *turn, node string) (*nodeOutput, error) {
	ctx = WithLogger(ctx, t.logger)
	ctx = WithThreadID(ctx, t.req.ThreadID)
	ctx = WithNode(ctx, node)

	startTime := time.Now()
	event := &NodeEvent{
		ThreadID:  t.req.ThreadID,
		Node:      node,
		Visit:     t.visits,
		StartTime: startTime,
	}
	o.callbacks.BeforeNode(ctx, event)

	out, err := o.runNode(ctx, t, node)
	endTime := time.Now()

	event.EndTime = endTime
	event.Duration = endTime.Sub(startTime)
	event.Error = err
	entry := &ActivityLogEntry{
		ID:        NewActivityID(),
		ThreadID:  t.req.ThreadID,
		Node:      node,
		Visit:     t.visits,
		StartTime: startTime,
		Duration:  event.Duration.Seconds(),
	}
	if out != nil {
		event.Decision = out.decision
		event.Messages = len(out.messages)
		entry.Decision = out.decision
		for _, msg := range out.messages {
			entry.Messages = append(entry.Messages, msg.Identifier())
		}
	}
	if err != nil {
		entry.Error = err.Error()
	}
	o.callbacks.AfterNode(ctx, event)
	if logErr := o.activityLogger.LogActivity(ctx, entry); logErr != nil {
		t.logger.Error("failed to log activity", "error", logErr)
	}
	t.logger.Debug("node visited", "node", node, "visit", t.visits, "duration", event.Duration)
	return out, err
}

func (o *Orchestrator) runNode(ctx context.Context, t *turn, node string) (*nodeOutput, error) {
	switch node {
	case NodeStart:
		return o.runStart(ctx, t)
	case NodeHumanChat:
		return o.runHumanChat(t)
	case NodeSupervisor:
		return o.runSupervisor(ctx, t)
	default:
		return o.runAgent(ctx, t, node)
	}
}

func (o *Orchestrator) runStart(ctx context.Context, t *turn) (*nodeOutput, error) {
	text := t.state.LatestUserText()
	route := RoutePlan
	if strings.TrimSpace(text) != "" {
		err := o.call(ctx, t, NodeStart, func() error {
			var err error
			route, err = o.classifier.Classify(ctx, text)
			return err
		})
		if err != nil {
			return nil, err
		}
	}
	decision := RoutePlan
	if RouteFromStart(route, text) == NodeSupervisor {
		decision = RouteSkip
	}
	t.logger.Info("request classified", "route", decision)
	return &nodeOutput{decision: string(decision)}, nil
}

// runHumanChat suspends for review, or applies the human's decision when the
// turn resumes here.
func (o *Orchestrator) runHumanChat(t *turn) (*nodeOutput, error) {
	if t.resumeInput == nil {
		return &nodeOutput{interrupt: &Interrupt{
			Type:    InterruptPlanReview,
			Plan:    t.state.LatestAgentText(NodePlanning),
			Message: PlanReviewInstructions,
			Node:    NodeHumanChat,
		}}, nil
	}
	input := *t.resumeInput
	t.resumeInput = nil
	if input == ApproveToken {
		t.state.PlanApproved = true
		t.logger.Info("plan approved")
		return &nodeOutput{}, nil
	}
	return &nodeOutput{messages: []Message{NewHumanMessage(input)}}, nil
}

func (o *Orchestrator) runSupervisor(ctx context.Context, t *turn) (*nodeOutput, error) {
	t.takeResumeInput()
	var delegation *Delegation
	err := o.call(ctx, t, NodeSupervisor, func() error {
		var err error
		delegation, err = o.supervisor.Delegate(ctx, t.state.Copy())
		return err
	})
	if err != nil {
		return nil, err
	}
	if delegation == nil {
		delegation = &Delegation{}
	}
	return &nodeOutput{
		messages: attribute(NodeSupervisor, delegation.Messages),
		decision: delegation.Next,
	}, nil
}

func (o *Orchestrator) runAgent(ctx context.Context, t *turn, node string) (*nodeOutput, error) {
	agent, ok := o.agents[node]
	if !ok {
		return nil, NewWorkflowError(ErrorTypeFatal, fmt.Sprintf("no agent for node %q", node))
	}
	t.takeResumeInput()
	if node == NodePlanning && t.req.UseEpisodicMemory && o.memory != nil {
		episodic, err := o.memory.GetContext(ctx, t.state.LatestUserText(), o.maxExamples)
		if err != nil {
			t.logger.Warn("failed to retrieve episodic context", "error", err)
		} else if episodic != nil {
			ctx = WithEpisodicContext(ctx, episodic)
		}
	}
	var update *AgentUpdate
	err := o.call(ctx, t, node, func() error {
		var err error
		update, err = agent.Invoke(ctx, t.state.Copy())
		return err
	})
	if err != nil {
		return nil, err
	}
	if update == nil {
		return &nodeOutput{}, nil
	}
	return &nodeOutput{messages: attribute(node, update.Messages)}, nil
}

// takeResumeInput appends the human's reply when a turn resumes in front of
// a node other than the review node. The approve token only continues.
func (t *turn) takeResumeInput() {
	if t.resumeInput == nil {
		return
	}
	input := *t.resumeInput
	t.resumeInput = nil
	if strings.TrimSpace(input) != "" && input != ApproveToken {
		t.state.Append(NewHumanMessage(input))
	}
}

// call runs a collaborator with the node's retry policy.
func (o *Orchestrator) call(ctx context.Context, t *turn, node string, fn func() error) error {
	cfg := o.retry
	if nodeCfg, ok := o.nodeRetry[node]; ok {
		cfg = nodeCfg
	}
	opts := append(cfg.options(), retry.WithOnRetry(func(attempt int, err error, wait time.Duration) {
		t.logger.Warn("retrying collaborator call",
			"node", node, "attempt", attempt, "wait", wait, "error", err)
	}))
	return retry.Do(ctx, fn, opts...)
}

// attribute fills in ids and agent names the collaborator left empty.
func attribute(node string, msgs []Message) []Message {
	out := make([]Message, len(msgs))
	for i, msg := range msgs {
		if msg.ID == "" {
			msg.ID = NewMessageID()
		}
		if msg.Role != RoleUser && msg.AgentName == "" {
			msg.AgentName = node
		}
		out[i] = msg.normalized()
	}
	return out
}
