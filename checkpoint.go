package crew

import (
	"time"

	"go.jetify.com/typeid"
)

// CheckpointStatus records how the turn that wrote a checkpoint ended.
type CheckpointStatus string

const (
	CheckpointRunning     CheckpointStatus = "running"
	CheckpointInterrupted CheckpointStatus = "interrupted"
	CheckpointCompleted   CheckpointStatus = "completed"
	CheckpointFailed      CheckpointStatus = "failed"
)

// Checkpoint is a durable snapshot of a thread's workflow state. NextStep
// names the node execution stopped in front of, if any.
type Checkpoint struct {
	ID           string           `json:"id"`
	ThreadID     string           `json:"thread_id"`
	State        WorkflowState    `json:"state"`
	NextStep     string           `json:"next_step,omitempty"`
	Status       CheckpointStatus `json:"status"`
	Error        string           `json:"error,omitempty"`
	CheckpointAt time.Time        `json:"checkpoint_at"`
}

// NewCheckpointID returns a new checkpoint identifier.
func NewCheckpointID() string {
	id, err := typeid.WithPrefix("cp")
	if err != nil {
		panic(err)
	}
	return id.String()
}

// AwaitingHuman reports whether the checkpoint is suspended in front of the
// human review node.
func (c *Checkpoint) AwaitingHuman() bool {
	return c != nil && c.NextStep == NodeHumanChat
}

// Pending reports whether the thread's next turn continues a suspended one:
// either plan review or a node that raised an interrupt.
func (c *Checkpoint) Pending() bool {
	if c == nil {
		return false
	}
	return c.AwaitingHuman() || (c.Status == CheckpointInterrupted && c.NextStep != "")
}
