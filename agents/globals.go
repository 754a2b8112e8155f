// Package agents provides scripted and built-in collaborators for the crew
// orchestrator: agents, supervisors, classifiers and episodic memory.
package agents

import (
	"context"

	"github.com/deepnoodle-ai/crew"
	"github.com/deepnoodle-ai/crew/script"
)

// Script globals
const (
	GlobalRequest       = "request"
	GlobalMessages      = "messages"
	GlobalHumanMessages = "human_messages"
	GlobalPlan          = "plan"
	GlobalPlanApproved  = "plan_approved"
	GlobalExamples      = "examples"
	GlobalAgent         = "agent"
	GlobalWorkers       = "workers"
)

// GlobalNames lists every global a script may read.
var GlobalNames = []string{
	GlobalRequest,
	GlobalMessages,
	GlobalHumanMessages,
	GlobalPlan,
	GlobalPlanApproved,
	GlobalExamples,
	GlobalAgent,
	GlobalWorkers,
}

// NewEngine returns a Risor engine that declares GlobalNames.
func NewEngine() *script.RisorEngine {
	return script.NewRisorEngine(script.DefaultGlobals(GlobalNames...))
}

// stateGlobals exposes a workflow state to a script.
func stateGlobals(ctx context.Context, agent string, state *crew.WorkflowState) map[string]any {
	messages := make([]any, 0, len(state.Messages))
	for _, msg := range state.Messages {
		entry := map[string]any{
			"role":  string(msg.Role),
			"agent": msg.AgentName,
			"text":  msg.Text(),
		}
		if msg.ToolName != "" {
			entry["tool"] = msg.ToolName
		}
		messages = append(messages, entry)
	}
	examples := []any{}
	if episodic, ok := crew.EpisodicContextFromContext(ctx); ok && episodic != nil {
		for _, example := range episodic.Examples {
			examples = append(examples, map[string]any{
				"request": example.Request,
				"plan":    example.Plan,
			})
		}
	}
	humans := state.HumanMessages()
	if humans == nil {
		humans = []string{}
	}
	workers := make([]any, len(crew.WorkerNodes))
	for i, worker := range crew.WorkerNodes {
		workers[i] = worker
	}
	return map[string]any{
		GlobalRequest:       state.LatestUserPrompt(),
		GlobalMessages:      messages,
		GlobalHumanMessages: humans,
		GlobalPlan:          state.LatestAgentText(crew.NodePlanning),
		GlobalPlanApproved:  state.PlanApproved,
		GlobalExamples:      examples,
		GlobalAgent:         agent,
		GlobalWorkers:       workers,
	}
}
