package agents

import (
	"context"
	"fmt"

	"github.com/deepnoodle-ai/crew"
	"github.com/deepnoodle-ai/crew/script"
)

// program is either a compiled script or a reply template.
type program struct {
	code     script.Script
	template *script.Template
}

func compileProgram(engine script.Compiler, cfg crew.AgentConfig) (*program, error) {
	switch {
	case cfg.Script != "":
		code, err := engine.Compile(context.Background(), cfg.Script)
		if err != nil {
			return nil, fmt.Errorf("failed to compile script for %q: %w", cfg.Name, err)
		}
		return &program{code: code}, nil
	case cfg.Reply != "":
		template, err := script.NewTemplate(engine, cfg.Reply)
		if err != nil {
			return nil, fmt.Errorf("failed to compile reply for %q: %w", cfg.Name, err)
		}
		return &program{template: template}, nil
	}
	return nil, fmt.Errorf("agent %q needs a script or reply", cfg.Name)
}

func (p *program) run(ctx context.Context, globals map[string]any) (any, error) {
	if p.template != nil {
		return p.template.Eval(ctx, globals)
	}
	value, err := p.code.Evaluate(ctx, globals)
	if err != nil {
		return nil, err
	}
	return value.Value(), nil
}

// ScriptAgent runs a script as an agent. The script returns either the reply
// text or a map with "reply" and an optional "tool_calls" list whose entries
// carry "name", "arguments" and "result".
type ScriptAgent struct {
	name    string
	program *program
}

func NewScriptAgent(engine script.Compiler, cfg crew.AgentConfig) (*ScriptAgent, error) {
	if cfg.Name == "" {
		return nil, fmt.Errorf("agent name required")
	}
	p, err := compileProgram(engine, cfg)
	if err != nil {
		return nil, err
	}
	return &ScriptAgent{name: cfg.Name, program: p}, nil
}

func (a *ScriptAgent) Name() string {
	return a.name
}

func (a *ScriptAgent) Invoke(ctx context.Context, state *crew.WorkflowState) (*crew.AgentUpdate, error) {
	result, err := a.program.run(ctx, stateGlobals(ctx, a.name, state))
	if err != nil {
		return nil, fmt.Errorf("agent %s: %w", a.name, err)
	}
	msgs, err := toMessages(a.name, result)
	if err != nil {
		return nil, fmt.Errorf("agent %s: %w", a.name, err)
	}
	return &crew.AgentUpdate{Messages: msgs}, nil
}

// toMessages converts a script result into conversation messages.
func toMessages(agent string, result any) ([]crew.Message, error) {
	switch r := result.(type) {
	case nil:
		return nil, nil
	case string:
		if r == "" {
			return nil, nil
		}
		return []crew.Message{crew.NewAgentMessage(agent, r)}, nil
	case map[string]any:
		reply, _ := r["reply"].(string)
		rawCalls, _ := r["tool_calls"].([]any)
		var calls []crew.ToolCall
		var results []crew.Message
		for i, raw := range rawCalls {
			entry, ok := raw.(map[string]any)
			if !ok {
				return nil, fmt.Errorf("tool call %d is %T, not a map", i, raw)
			}
			name, _ := entry["name"].(string)
			if name == "" {
				return nil, fmt.Errorf("tool call %d has no name", i)
			}
			args, _ := entry["arguments"].(map[string]any)
			call := crew.ToolCall{ID: crew.NewMessageID(), Name: name, Arguments: args}
			calls = append(calls, call)
			if out, ok := entry["result"]; ok {
				results = append(results, crew.NewToolResultMessage(agent, name, call.ID, out))
			}
		}
		if reply == "" && len(calls) == 0 {
			return nil, nil
		}
		return append([]crew.Message{crew.NewAgentMessage(agent, reply, calls...)}, results...), nil
	default:
		return nil, fmt.Errorf("unsupported script result %T", result)
	}
}
