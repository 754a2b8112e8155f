package agents

import (
	"context"
	"fmt"

	"github.com/deepnoodle-ai/crew"
	"github.com/deepnoodle-ai/crew/script"
)

// ScriptSupervisor runs a script as the supervisor. The script returns a map
// with "next", the worker to delegate to or "" when the work is done, and an
// optional "reply". A bare string is a reply that ends delegation.
type ScriptSupervisor struct {
	program *program
}

func NewScriptSupervisor(engine script.Compiler, cfg crew.AgentConfig) (*ScriptSupervisor, error) {
	cfg.Name = crew.NodeSupervisor
	p, err := compileProgram(engine, cfg)
	if err != nil {
		return nil, err
	}
	return &ScriptSupervisor{program: p}, nil
}

func (s *ScriptSupervisor) Delegate(ctx context.Context, state *crew.WorkflowState) (*crew.Delegation, error) {
	result, err := s.program.run(ctx, stateGlobals(ctx, crew.NodeSupervisor, state))
	if err != nil {
		return nil, fmt.Errorf("supervisor: %w", err)
	}
	delegation := &crew.Delegation{}
	if m, ok := result.(map[string]any); ok {
		next, _ := m["next"].(string)
		delegation.Next = next
		result = map[string]any{"reply": m["reply"]}
	}
	msgs, err := toMessages(crew.NodeSupervisor, result)
	if err != nil {
		return nil, fmt.Errorf("supervisor: %w", err)
	}
	delegation.Messages = msgs
	return delegation, nil
}
