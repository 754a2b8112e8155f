package agents

import (
	"context"
	"fmt"
	"strings"

	"github.com/deepnoodle-ai/crew"
)

// Builtin returns offline agents for every crew node. They produce
// deterministic text and tool calls so a crew can run without a model.
func Builtin() []crew.Agent {
	return []crew.Agent{
		crew.NewAgentFunc(crew.NodePlanning, planningAgent),
		crew.NewAgentFunc(crew.NodeResearch, toolAgent(crew.NodeResearch, "literature_search",
			"Found three relevant studies.", map[string]any{"papers": 3})),
		crew.NewAgentFunc(crew.NodeData, toolAgent(crew.NodeData, "python_repl",
			"Prepared the dataset.", "rows: 1200, columns: 14")),
		crew.NewAgentFunc(crew.NodePrediction, toolAgent(crew.NodePrediction, "train_model",
			"Trained a baseline model.", map[string]any{"auc": 0.87})),
		crew.NewAgentFunc(crew.NodeReport, reportAgent),
	}
}

func planningAgent(ctx context.Context, state *crew.WorkflowState) (*crew.AgentUpdate, error) {
	humans := state.HumanMessages()
	if len(humans) == 0 {
		return nil, fmt.Errorf("no request to plan")
	}
	var sb strings.Builder
	fmt.Fprintf(&sb, "Plan for: %s\n\n", humans[0])
	var files []string
	for _, msg := range state.Messages {
		if msg.IsHuman() {
			files = append(files, msg.Files()...)
		}
	}
	if len(files) > 0 {
		fmt.Fprintf(&sb, "Input files: %s\n\n", strings.Join(files, ", "))
	}
	if episodic, ok := crew.EpisodicContextFromContext(ctx); ok && len(episodic.Examples) > 0 {
		fmt.Fprintf(&sb, "Drawing on %d similar past request(s).\n\n", len(episodic.Examples))
	}
	sb.WriteString("1. research_agent: review the literature\n")
	sb.WriteString("2. data_agent: prepare the data\n")
	sb.WriteString("3. prediction_agent: train and evaluate a model\n")
	sb.WriteString("4. report_agent: summarize the findings")
	if len(humans) > 1 {
		sb.WriteString("\n\nRefinements:")
		for _, feedback := range humans[1:] {
			fmt.Fprintf(&sb, "\n- %s", feedback)
		}
	}
	return &crew.AgentUpdate{Messages: []crew.Message{crew.NewAgentMessage(crew.NodePlanning, sb.String())}}, nil
}

func toolAgent(name, tool, reply string, result any) func(context.Context, *crew.WorkflowState) (*crew.AgentUpdate, error) {
	return func(ctx context.Context, state *crew.WorkflowState) (*crew.AgentUpdate, error) {
		call := crew.ToolCall{
			ID:        crew.NewMessageID(),
			Name:      tool,
			Arguments: map[string]any{"query": state.LatestUserPrompt()},
		}
		return &crew.AgentUpdate{Messages: []crew.Message{
			crew.NewAgentMessage(name, "", call),
			crew.NewToolResultMessage(name, tool, call.ID, result),
			crew.NewAgentMessage(name, reply),
		}}, nil
	}
}

func reportAgent(ctx context.Context, state *crew.WorkflowState) (*crew.AgentUpdate, error) {
	var sb strings.Builder
	sb.WriteString("## Report\n")
	for _, worker := range crew.WorkerNodes {
		if text := state.LatestAgentText(worker); text != "" {
			fmt.Fprintf(&sb, "\n- %s: %s", worker, text)
		}
	}
	return &crew.AgentUpdate{Messages: []crew.Message{crew.NewAgentMessage(crew.NodeReport, sb.String())}}, nil
}
