package crew

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"
)

// WelcomeMessage is shown for a thread with no messages yet.
const WelcomeMessage = "Hello! I'm your **research crew**. My team includes:\n\n" +
	"- **Planning Agent**: Breaks your request into sub-tasks and asks you to review the plan.\n\n" +
	"- **Supervisor**: Tracks the plan and delegates each step.\n\n" +
	"- **Research Agent**: Retrieves relevant literature and data.\n\n" +
	"- **Data Agent**: Performs data manipulation, preprocessing, and analysis.\n\n" +
	"- **Prediction Agent**: Runs predictive models over prepared data.\n\n" +
	"- **Report Agent**: Summarizes the work and writes the final report.\n\n" +
	"**How can I assist you today?**"

// SessionOptions configures a Session.
type SessionOptions struct {
	Registry     *ThreadRegistry
	Orchestrator *Orchestrator
	// Attachments is optional; without it files cannot be attached.
	Attachments *AttachmentStore
	// EpisodicMemory is used by ExtractLearning.
	EpisodicMemory   EpisodicMemory
	EpisodicLearning bool
	Metrics          *Metrics
	Logger           *slog.Logger
	Now              func() time.Time
}

// ThreadView is what a UI shows for an activated thread.
type ThreadView struct {
	Thread           *Thread
	Entries          []Entry
	HasProgress      bool
	AwaitingApproval bool
	PendingPlan      string
}

// TurnOutcome is what a UI shows after a turn.
type TurnOutcome struct {
	Result           *TurnResult
	Blocks           []Block
	Progress         string
	Final            string
	AwaitingApproval bool
	PendingPlan      string
}

// Session holds the state of one user session: the active thread and the
// display dedup state of every thread it has shown.
type Session struct {
	registry     *ThreadRegistry
	orchestrator *Orchestrator
	attachments  *AttachmentStore
	memory       EpisodicMemory
	metrics      *Metrics
	logger       *slog.Logger
	now          func() time.Time

	mu       sync.Mutex
	activeID string
	episodic bool
	trackers map[string]*DedupTracker
}

// NewSession opens a session on the most recently created thread, creating a
// thread when none exist.
func NewSession(ctx context.Context, opts SessionOptions) (*Session, error) {
	if opts.Registry == nil {
		return nil, fmt.Errorf("registry required")
	}
	if opts.Orchestrator == nil {
		return nil, fmt.Errorf("orchestrator required")
	}
	if opts.Logger == nil {
		opts.Logger = discardLogger()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	s := &Session{
		registry:     opts.Registry,
		orchestrator: opts.Orchestrator,
		attachments:  opts.Attachments,
		memory:       opts.EpisodicMemory,
		metrics:      opts.Metrics,
		logger:       opts.Logger,
		now:          opts.Now,
		episodic:     opts.EpisodicLearning,
		trackers:     map[string]*DedupTracker{},
	}
	threads := s.registry.List(ctx)
	if len(threads) == 0 {
		if _, err := s.NewThread(ctx); err != nil {
			return nil, err
		}
		return s, nil
	}
	if _, err := s.Activate(ctx, threads[len(threads)-1].ID); err != nil {
		return nil, err
	}
	return s, nil
}

// ActiveThreadID returns the id of the active thread.
func (s *Session) ActiveThreadID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.activeID
}

// Threads lists the registered threads.
func (s *Session) Threads(ctx context.Context) []*Thread {
	return s.registry.List(ctx)
}

// NewThread creates a thread with the default title and activates it.
func (s *Session) NewThread(ctx context.Context) (*ThreadView, error) {
	thread, err := s.registry.Create(ctx, DefaultTitle(s.now()))
	if err != nil {
		return nil, err
	}
	return s.Activate(ctx, thread.ID)
}

// Activate makes a thread active and rebuilds its display from the latest
// checkpoint. A checkpoint that cannot be read shows as an empty thread.
func (s *Session) Activate(ctx context.Context, threadID string) (*ThreadView, error) {
	thread, err := s.registry.Get(ctx, threadID)
	if err != nil {
		return nil, err
	}
	view := &ThreadView{Thread: thread}
	checkpoint, err := s.orchestrator.State(ctx, threadID)
	if err != nil {
		s.logger.Error("failed to load thread state", "thread_id", threadID, "error", err)
		checkpoint = nil
	}

	tracker := NewDedupTracker()
	if checkpoint != nil && len(checkpoint.State.Messages) > 0 {
		msgs := checkpoint.State.Messages
		tracker.Rehydrate(msgs)
		view.Entries = Reconstruct(msgs)
		view.HasProgress = HasProgress(msgs)
		view.AwaitingApproval = checkpoint.Pending()
		if view.AwaitingApproval && checkpoint.State.PendingInterrupt != nil {
			view.PendingPlan = checkpoint.State.PendingInterrupt.Plan
		}
	} else {
		view.Entries = []Entry{{Role: EntryAssistant, Content: WelcomeMessage}}
	}

	s.mu.Lock()
	s.activeID = threadID
	s.trackers[threadID] = tracker
	s.mu.Unlock()
	return view, nil
}

// RenameThread changes a thread's title.
func (s *Session) RenameThread(ctx context.Context, threadID, title string) error {
	return s.registry.Rename(ctx, threadID, title)
}

// DeleteThread deletes a thread and its checkpoints. The last remaining
// thread cannot be deleted. Deleting the active thread activates the most
// recently created remaining thread.
func (s *Session) DeleteThread(ctx context.Context, threadID string) (*ThreadView, error) {
	threads := s.registry.List(ctx)
	found := false
	for _, thread := range threads {
		if thread.ID == threadID {
			found = true
			break
		}
	}
	if !found {
		return nil, ErrThreadNotFound
	}
	if len(threads) <= 1 {
		return nil, ErrLastThread
	}
	if err := s.registry.Delete(ctx, threadID); err != nil {
		return nil, err
	}
	if s.attachments != nil {
		if err := s.attachments.Clear(threadID); err != nil {
			s.logger.Error("failed to clear attachments", "thread_id", threadID, "error", err)
		}
	}

	s.mu.Lock()
	delete(s.trackers, threadID)
	wasActive := s.activeID == threadID
	activeID := s.activeID
	s.mu.Unlock()

	if !wasActive {
		return s.Activate(ctx, activeID)
	}
	remaining := s.registry.List(ctx)
	if len(remaining) == 0 {
		return s.NewThread(ctx)
	}
	return s.Activate(ctx, remaining[len(remaining)-1].ID)
}

// SetEpisodicLearning enables or disables example retrieval before planning.
func (s *Session) SetEpisodicLearning(enabled bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.episodic = enabled
}

func (s *Session) tracker(threadID string) *DedupTracker {
	s.mu.Lock()
	defer s.mu.Unlock()
	tracker, ok := s.trackers[threadID]
	if !ok {
		tracker = NewDedupTracker()
		s.trackers[threadID] = tracker
	}
	return tracker
}

// Send submits user input on the active thread. When the thread is waiting
// for plan review the input is treated as feedback on the plan. onBlock, if
// set, receives each display block as it is produced.
func (s *Session) Send(ctx context.Context, text string, onBlock func(Block)) (*TurnOutcome, error) {
	threadID := s.ActiveThreadID()
	if threadID == "" {
		return nil, ErrNoActiveThread
	}
	if strings.TrimSpace(text) == "" {
		return nil, ErrEmptyInput
	}
	checkpoint, err := s.orchestrator.State(ctx, threadID)
	if err != nil {
		return nil, err
	}
	if checkpoint == nil || len(checkpoint.State.HumanMessages()) == 0 {
		if err := s.registry.Rename(ctx, threadID, TitleFromMessage(text)); err != nil {
			s.logger.Error("failed to set thread title", "thread_id", threadID, "error", err)
		}
	}

	req := TurnRequest{ThreadID: threadID, Input: text}
	if checkpoint.Pending() {
		req.Resume = true
	} else if s.attachments != nil {
		req.Files = Paths(s.attachments.Files(threadID))
	}
	s.mu.Lock()
	req.UseEpisodicMemory = s.episodic
	s.mu.Unlock()
	return s.run(ctx, req, onBlock)
}

// Approve approves the plan the active thread is waiting on.
func (s *Session) Approve(ctx context.Context, onBlock func(Block)) (*TurnOutcome, error) {
	threadID := s.ActiveThreadID()
	if threadID == "" {
		return nil, ErrNoActiveThread
	}
	checkpoint, err := s.orchestrator.State(ctx, threadID)
	if err != nil {
		return nil, err
	}
	if !checkpoint.Pending() {
		return nil, ErrNothingToResume
	}
	return s.run(ctx, TurnRequest{ThreadID: threadID, Input: ApproveToken, Resume: true}, onBlock)
}

func (s *Session) run(ctx context.Context, req TurnRequest, onBlock func(Block)) (*TurnOutcome, error) {
	demux := NewDemultiplexer(DemuxOptions{
		Tracker: s.tracker(req.ThreadID),
		Metrics: s.metrics,
		Logger:  s.logger,
	})
	result, err := s.orchestrator.Run(ctx, req, func(event StreamEvent) error {
		for _, block := range demux.Process(event) {
			if onBlock != nil {
				onBlock(block)
			}
		}
		return nil
	})
	outcome := &TurnOutcome{
		Result:           result,
		Blocks:           demux.Blocks(),
		Progress:         demux.Progress(),
		Final:            demux.Final(),
		AwaitingApproval: demux.AwaitingApproval(),
		PendingPlan:      demux.PendingPlan(),
	}
	return outcome, err
}

// ExtractLearning asks episodic memory to learn from the active thread.
func (s *Session) ExtractLearning(ctx context.Context) (*ExtractionResult, error) {
	if s.memory == nil {
		return nil, fmt.Errorf("episodic memory not configured")
	}
	threadID := s.ActiveThreadID()
	if threadID == "" {
		return nil, ErrNoActiveThread
	}
	return s.memory.Extract(ctx, threadID)
}

// Attach copies a file into the data directory and attaches it to the active
// thread. It reports false when the same content was already attached.
func (s *Session) Attach(ctx context.Context, path string) (FileRecord, bool, error) {
	if s.attachments == nil {
		return FileRecord{}, false, fmt.Errorf("attachments not configured")
	}
	threadID := s.ActiveThreadID()
	if threadID == "" {
		return FileRecord{}, false, ErrNoActiveThread
	}
	return s.attachments.AddFile(threadID, path)
}

// Files returns the active thread's attachments.
func (s *Session) Files() []FileRecord {
	if s.attachments == nil {
		return nil
	}
	return s.attachments.Files(s.ActiveThreadID())
}

// ClearFiles detaches every file from the active thread.
func (s *Session) ClearFiles() error {
	if s.attachments == nil {
		return nil
	}
	return s.attachments.Clear(s.ActiveThreadID())
}
