package crew

// StreamEvent is one element of a turn's ordered output. It is either a
// *Chunk or a *Complete.
type StreamEvent interface {
	streamEvent()
}

// Chunk carries the messages a node produced, attributed to that node.
type Chunk struct {
	AgentName string    `json:"agent_name"`
	Messages  []Message `json:"messages"`
}

// Complete is the last event of a turn.
type Complete struct {
	Interrupted bool `json:"interrupted"`
}

func (*Chunk) streamEvent()    {}
func (*Complete) streamEvent() {}

// TurnRequest starts or resumes a turn on a thread.
type TurnRequest struct {
	ThreadID string
	// Input is the user message, or the human decision when resuming.
	Input string
	// Files are attachment paths for a new request. Agents see them appended
	// to the request; the displayed text does not include them.
	Files []string
	// Resume continues a suspended or failed turn instead of starting a new
	// one. A thread waiting in front of the review node is always resumed.
	Resume bool
	// UseEpisodicMemory enables example retrieval before planning.
	UseEpisodicMemory bool
}

// TurnStatus is how a turn ended.
type TurnStatus string

const (
	TurnCompleted TurnStatus = "completed"
	TurnSuspended TurnStatus = "suspended"
	TurnFailed    TurnStatus = "failed"
)

// TurnResult summarizes a finished turn.
type TurnResult struct {
	ThreadID   string
	Status     TurnStatus
	Interrupt  *Interrupt
	State      *WorkflowState
	NodeVisits int
	Err        error
}
