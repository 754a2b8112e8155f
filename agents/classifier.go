package agents

import (
	"context"
	"fmt"
	"strings"

	"github.com/deepnoodle-ai/crew"
	"github.com/deepnoodle-ai/crew/script"
)

// ScriptClassifier routes requests with a script that sees the request and
// returns "plan" or "skip". Any other result is an error.
type ScriptClassifier struct {
	code script.Script
}

func NewScriptClassifier(engine script.Compiler, code string) (*ScriptClassifier, error) {
	compiled, err := engine.Compile(context.Background(), code)
	if err != nil {
		return nil, fmt.Errorf("failed to compile routing script: %w", err)
	}
	return &ScriptClassifier{code: compiled}, nil
}

func (c *ScriptClassifier) Classify(ctx context.Context, text string) (crew.Route, error) {
	value, err := c.code.Evaluate(ctx, map[string]any{GlobalRequest: text})
	if err != nil {
		return "", fmt.Errorf("routing script: %w", err)
	}
	switch route := crew.Route(strings.ToLower(strings.TrimSpace(value.String()))); route {
	case crew.RoutePlan, crew.RouteSkip:
		return route, nil
	default:
		return "", fmt.Errorf("routing script returned %q, want %q or %q", value.String(), crew.RoutePlan, crew.RouteSkip)
	}
}

// KeywordClassifier skips planning for short questions and greetings.
type KeywordClassifier struct {
	// MaxWords is the longest question that skips planning.
	MaxWords int
}

var greetings = []string{"hi", "hello", "hey", "thanks", "thank you"}

func (c KeywordClassifier) Classify(ctx context.Context, text string) (crew.Route, error) {
	normalized := strings.ToLower(strings.TrimSpace(text))
	for _, greeting := range greetings {
		if strings.TrimRight(normalized, "!. ") == greeting {
			return crew.RouteSkip, nil
		}
	}
	maxWords := c.MaxWords
	if maxWords <= 0 {
		maxWords = 8
	}
	if strings.HasSuffix(normalized, "?") && len(strings.Fields(normalized)) <= maxWords {
		return crew.RouteSkip, nil
	}
	return crew.RoutePlan, nil
}
