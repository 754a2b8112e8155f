package agents

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/deepnoodle-ai/crew"
	"github.com/stretchr/testify/require"
)

func stateWith(msgs ...crew.Message) *crew.WorkflowState {
	state := &crew.WorkflowState{}
	state.Append(msgs...)
	return state
}

func TestScriptAgentReply(t *testing.T) {
	agent, err := NewScriptAgent(NewEngine(), crew.AgentConfig{
		Name:   crew.NodeResearch,
		Script: `"researching " + request`,
	})
	require.NoError(t, err)
	require.Equal(t, crew.NodeResearch, agent.Name())

	update, err := agent.Invoke(context.Background(), stateWith(crew.NewHumanMessage("solubility")))
	require.NoError(t, err)
	require.Len(t, update.Messages, 1)
	require.Equal(t, "researching solubility", update.Messages[0].Text())
	require.Equal(t, crew.NodeResearch, update.Messages[0].AgentName)
}

func TestScriptAgentToolCalls(t *testing.T) {
	agent, err := NewScriptAgent(NewEngine(), crew.AgentConfig{
		Name: crew.NodeData,
		Script: `{
			"reply": "loaded",
			"tool_calls": [{"name": "load_csv", "arguments": {"path": "data.csv"}, "result": "12 rows"}]
		}`,
	})
	require.NoError(t, err)

	update, err := agent.Invoke(context.Background(), stateWith(crew.NewHumanMessage("load it")))
	require.NoError(t, err)
	require.Len(t, update.Messages, 2)
	call := update.Messages[0]
	require.Equal(t, "loaded", call.Text())
	require.Len(t, call.ToolCalls, 1)
	require.Equal(t, "load_csv", call.ToolCalls[0].Name)
	require.Equal(t, map[string]any{"path": "data.csv"}, call.ToolCalls[0].Arguments)

	result := update.Messages[1]
	require.True(t, result.IsToolResult())
	require.Equal(t, call.ToolCalls[0].ID, result.ToolCallID)
	require.Equal(t, "12 rows", result.Text())
}

func TestReplyTemplateAgent(t *testing.T) {
	agent, err := NewScriptAgent(NewEngine(), crew.AgentConfig{
		Name:  crew.NodeReport,
		Reply: "Report on ${request} (${len(human_messages)} requests)",
	})
	require.NoError(t, err)
	update, err := agent.Invoke(context.Background(), stateWith(crew.NewHumanMessage("toxicity")))
	require.NoError(t, err)
	require.Equal(t, "Report on toxicity (1 requests)", update.Messages[0].Text())
}

func TestScriptAgentErrors(t *testing.T) {
	_, err := NewScriptAgent(NewEngine(), crew.AgentConfig{Name: "x"})
	require.ErrorContains(t, err, "needs a script or reply")

	_, err = NewScriptAgent(NewEngine(), crew.AgentConfig{Name: "x", Script: "nope("})
	require.Error(t, err)

	agent, err := NewScriptAgent(NewEngine(), crew.AgentConfig{Name: "x", Script: "42"})
	require.NoError(t, err)
	_, err = agent.Invoke(context.Background(), stateWith())
	require.ErrorContains(t, err, "unsupported script result")
}

func TestScriptSupervisor(t *testing.T) {
	supervisor, err := NewScriptSupervisor(NewEngine(), crew.AgentConfig{
		Script: `
			func decide() {
				if len(messages) < 3 {
					return {"next": workers[0], "reply": "⏳ CURRENT: " + workers[0]}
				}
				return {"next": ""}
			}
			decide()`,
	})
	require.NoError(t, err)

	delegation, err := supervisor.Delegate(context.Background(), stateWith(crew.NewHumanMessage("go")))
	require.NoError(t, err)
	require.Equal(t, crew.NodeResearch, delegation.Next)
	require.Len(t, delegation.Messages, 1)
	require.Equal(t, crew.NodeSupervisor, delegation.Messages[0].AgentName)

	delegation, err = supervisor.Delegate(context.Background(), stateWith(
		crew.NewHumanMessage("go"),
		crew.NewAgentMessage(crew.NodeSupervisor, "a"),
		crew.NewAgentMessage(crew.NodeResearch, "b"),
	))
	require.NoError(t, err)
	require.Empty(t, delegation.Next)
	require.Empty(t, delegation.Messages)
}

func TestSequentialSupervisor(t *testing.T) {
	supervisor := NewSequentialSupervisor()
	state := stateWith(crew.NewHumanMessage("build a model"))

	var visited []string
	for {
		delegation, err := supervisor.Delegate(context.Background(), state)
		require.NoError(t, err)
		state.Append(delegation.Messages...)
		if delegation.Next == "" {
			break
		}
		visited = append(visited, delegation.Next)
		state.Append(crew.NewAgentMessage(delegation.Next, "done"))
	}
	require.Equal(t, crew.WorkerNodes, visited)

	// a new request starts the round again
	state.Append(crew.NewHumanMessage("again"))
	delegation, err := supervisor.Delegate(context.Background(), state)
	require.NoError(t, err)
	require.Equal(t, crew.WorkerNodes[0], delegation.Next)
}

func TestScriptClassifier(t *testing.T) {
	classifier, err := NewScriptClassifier(NewEngine(), `
		func route() {
			if len(request) < 10 {
				return "skip"
			}
			return "PLAN"
		}
		route()`)
	require.NoError(t, err)

	route, err := classifier.Classify(context.Background(), "hi")
	require.NoError(t, err)
	require.Equal(t, crew.RouteSkip, route)

	route, err = classifier.Classify(context.Background(), "build a toxicity model")
	require.NoError(t, err)
	require.Equal(t, crew.RoutePlan, route)

	bad, err := NewScriptClassifier(NewEngine(), `"maybe"`)
	require.NoError(t, err)
	_, err = bad.Classify(context.Background(), "x")
	require.ErrorContains(t, err, "maybe")
}

func TestKeywordClassifier(t *testing.T) {
	tests := []struct {
		text string
		want crew.Route
	}{
		{"Hello!", crew.RouteSkip},
		{"what is a logP value?", crew.RouteSkip},
		{"build a model that predicts toxicity from the uploaded dataset", crew.RoutePlan},
		{"could you please compare every model we trained last month and explain why?", crew.RoutePlan},
	}
	for _, tt := range tests {
		route, err := KeywordClassifier{}.Classify(context.Background(), tt.text)
		require.NoError(t, err)
		require.Equal(t, tt.want, route, tt.text)
	}
}

func TestBuild(t *testing.T) {
	cfg := crew.DefaultConfig()
	cfg.Agents = []crew.AgentConfig{{Name: crew.NodeResearch, Reply: "custom research"}}
	cfg.RoutingScript = `"skip"`
	built, err := Build(cfg)
	require.NoError(t, err)
	require.Len(t, built.Agents, 5)
	require.IsType(t, &ScriptClassifier{}, built.Classifier)
	require.IsType(t, &SequentialSupervisor{}, built.Supervisor)

	_, err = crew.NewOrchestrator(crew.OrchestratorOptions{
		Store:      crew.NewMemoryCheckpointStore(1),
		Agents:     built.Agents,
		Supervisor: built.Supervisor,
		Classifier: built.Classifier,
	})
	require.NoError(t, err)
}

func TestBuildExprRouting(t *testing.T) {
	cfg := crew.DefaultConfig()
	cfg.RoutingEngine = crew.EngineExpr
	cfg.RoutingScript = `len(request) < 10 ? "skip" : "plan"`
	built, err := Build(cfg)
	require.NoError(t, err)

	route, err := built.Classifier.Classify(context.Background(), "hi there")
	require.NoError(t, err)
	require.Equal(t, crew.RouteSkip, route)

	route, err = built.Classifier.Classify(context.Background(), "train a toxicity model")
	require.NoError(t, err)
	require.Equal(t, crew.RoutePlan, route)

	cfg.RoutingScript = `len(request) <`
	_, err = Build(cfg)
	require.ErrorContains(t, err, "failed to compile routing script")
}

func TestFileMemory(t *testing.T) {
	ctx := context.Background()
	store := crew.NewMemoryCheckpointStore(1)
	path := filepath.Join(t.TempDir(), "episodes.json")
	memory, err := NewFileMemory(path, store)
	require.NoError(t, err)

	result, err := memory.Extract(ctx, "thread_a")
	require.NoError(t, err)
	require.Zero(t, result.Stored)

	state := stateWith(
		crew.NewHumanMessage("predict solubility of compounds"),
		crew.NewAgentMessage(crew.NodePlanning, "1. research\n2. model"),
	)
	require.NoError(t, store.Put(ctx, &crew.Checkpoint{ThreadID: "thread_a", State: *state}))
	result, err = memory.Extract(ctx, "thread_a")
	require.NoError(t, err)
	require.Zero(t, result.Stored, "unapproved plans are not learned")

	state.PlanApproved = true
	require.NoError(t, store.Put(ctx, &crew.Checkpoint{ThreadID: "thread_a", State: *state}))
	result, err = memory.Extract(ctx, "thread_a")
	require.NoError(t, err)
	require.Equal(t, 1, result.Stored)

	result, err = memory.Extract(ctx, "thread_a")
	require.NoError(t, err)
	require.Zero(t, result.Stored)

	reopened, err := NewFileMemory(path, store)
	require.NoError(t, err)
	require.Equal(t, 1, reopened.Len())

	episodic, err := reopened.GetContext(ctx, "predict toxicity of compounds", 3)
	require.NoError(t, err)
	require.NotNil(t, episodic)
	require.Len(t, episodic.Examples, 1)
	require.Contains(t, episodic.Prompt, "1. research")

	none, err := reopened.GetContext(ctx, "weather tomorrow", 3)
	require.NoError(t, err)
	require.Nil(t, none)
}
