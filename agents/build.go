package agents

import (
	"github.com/deepnoodle-ai/crew"
	"github.com/deepnoodle-ai/crew/script"
)

// Crew is the set of collaborators an orchestrator is built from.
type Crew struct {
	Agents     []crew.Agent
	Supervisor crew.Supervisor
	Classifier crew.Classifier
}

// Build assembles the collaborators described by cfg. Configured agents
// replace the built-in agent of the same name.
func Build(cfg *crew.Config) (*Crew, error) {
	engine := NewEngine()
	byName := map[string]crew.Agent{}
	var order []string
	for _, agent := range Builtin() {
		byName[agent.Name()] = agent
		order = append(order, agent.Name())
	}
	for _, agentCfg := range cfg.Agents {
		agent, err := NewScriptAgent(engine, agentCfg)
		if err != nil {
			return nil, err
		}
		if _, ok := byName[agent.Name()]; !ok {
			order = append(order, agent.Name())
		}
		byName[agent.Name()] = agent
	}
	out := &Crew{}
	for _, name := range order {
		out.Agents = append(out.Agents, byName[name])
	}

	if cfg.Supervisor != nil {
		supervisor, err := NewScriptSupervisor(engine, *cfg.Supervisor)
		if err != nil {
			return nil, err
		}
		out.Supervisor = supervisor
	} else {
		out.Supervisor = NewSequentialSupervisor()
	}

	if cfg.RoutingScript != "" {
		var compiler script.Compiler = engine
		if cfg.RoutingEngine == crew.EngineExpr {
			compiler = script.NewExprEngine()
		}
		classifier, err := NewScriptClassifier(compiler, cfg.RoutingScript)
		if err != nil {
			return nil, err
		}
		out.Classifier = classifier
	} else {
		out.Classifier = KeywordClassifier{}
	}
	return out, nil
}
