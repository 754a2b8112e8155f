package crew

// Interrupt types
const (
	InterruptPlanReview = "plan_review"
	InterruptSignal     = "interrupt"
)

// PlanReviewInstructions is shown to the human alongside a plan under review.
const PlanReviewInstructions = "Please review the plan above. You can:\n" +
	"1. Ask for changes or refinements\n" +
	"2. Approve the plan to proceed with execution"

// Interrupt is the payload surfaced to the caller when a turn suspends for
// human input.
type Interrupt struct {
	Type    string `json:"type"`
	Plan    string `json:"plan,omitempty"`
	Message string `json:"message"`
	Node    string `json:"node"`
}

// WorkflowState is the state owned by the orchestrator during a turn and
// persisted as part of a checkpoint between turns.
type WorkflowState struct {
	Messages         []Message  `json:"messages"`
	PlanApproved     bool       `json:"plan_approved"`
	PendingInterrupt *Interrupt `json:"pending_interrupt,omitempty"`
}

// Copy returns a deep copy of the state. Collaborators receive copies, so
// they cannot change history the orchestrator has not committed.
func (s *WorkflowState) Copy() *WorkflowState {
	if s == nil {
		return &WorkflowState{}
	}
	c := &WorkflowState{
		PlanApproved: s.PlanApproved,
	}
	if s.Messages != nil {
		c.Messages = make([]Message, len(s.Messages))
		for i, msg := range s.Messages {
			c.Messages[i] = msg.clone()
		}
	}
	if s.PendingInterrupt != nil {
		pending := *s.PendingInterrupt
		c.PendingInterrupt = &pending
	}
	return c
}

// Append adds messages to the end of the history. Payloads are normalized
// so the state equals what a checkpoint store reads back.
func (s *WorkflowState) Append(msgs ...Message) {
	for _, msg := range msgs {
		s.Messages = append(s.Messages, msg.normalized())
	}
}

// LatestUserPrompt returns the most recent human message with its attached
// file paths appended.
func (s *WorkflowState) LatestUserPrompt() string {
	for i := len(s.Messages) - 1; i >= 0; i-- {
		if s.Messages[i].IsHuman() {
			return s.Messages[i].Prompt()
		}
	}
	return ""
}

// LatestUserText returns the text of the most recent human message.
func (s *WorkflowState) LatestUserText() string {
	for i := len(s.Messages) - 1; i >= 0; i-- {
		if s.Messages[i].IsHuman() {
			return s.Messages[i].Text()
		}
	}
	return ""
}

// HumanMessages returns the text of every human message in order.
func (s *WorkflowState) HumanMessages() []string {
	var out []string
	for _, msg := range s.Messages {
		if msg.IsHuman() {
			if text := msg.Text(); text != "" {
				out = append(out, text)
			}
		}
	}
	return out
}

// LatestAgentText returns the text of the most recent message attributed to
// the named agent.
func (s *WorkflowState) LatestAgentText(agentName string) string {
	for i := len(s.Messages) - 1; i >= 0; i-- {
		msg := s.Messages[i]
		if msg.Role == RoleAgent && msg.AgentName == agentName {
			return msg.Text()
		}
	}
	return ""
}
