package agents

import (
	"context"
	"fmt"
	"strings"

	"github.com/deepnoodle-ai/crew"
)

// SequentialSupervisor delegates to each worker once per request, in order,
// and then hands over to the report agent. Work done before the latest human
// message does not count.
type SequentialSupervisor struct {
	Workers []string
}

func NewSequentialSupervisor(workers ...string) *SequentialSupervisor {
	if len(workers) == 0 {
		workers = crew.WorkerNodes
	}
	return &SequentialSupervisor{Workers: workers}
}

func (s *SequentialSupervisor) Delegate(ctx context.Context, state *crew.WorkflowState) (*crew.Delegation, error) {
	done := map[string]bool{}
	for i := len(state.Messages) - 1; i >= 0; i-- {
		msg := state.Messages[i]
		if msg.IsHuman() {
			break
		}
		done[msg.AgentName] = true
	}
	var completed, remaining []string
	for _, worker := range s.Workers {
		if done[worker] {
			completed = append(completed, worker)
		} else {
			remaining = append(remaining, worker)
		}
	}
	if len(remaining) == 0 {
		return &crew.Delegation{
			Messages: []crew.Message{crew.NewAgentMessage(crew.NodeSupervisor,
				fmt.Sprintf("✓ COMPLETED: %s\n\nAll steps are done. Handing over to the report agent.", strings.Join(completed, ", ")))},
		}, nil
	}
	var sb strings.Builder
	if len(completed) > 0 {
		fmt.Fprintf(&sb, "✓ COMPLETED: %s\n", strings.Join(completed, ", "))
	}
	fmt.Fprintf(&sb, "⏳ CURRENT: %s\n", remaining[0])
	if len(remaining) > 1 {
		fmt.Fprintf(&sb, "📋 REMAINING: %s\n", strings.Join(remaining[1:], ", "))
	}
	return &crew.Delegation{
		Messages: []crew.Message{crew.NewAgentMessage(crew.NodeSupervisor, strings.TrimSpace(sb.String()))},
		Next:     remaining[0],
	}, nil
}
