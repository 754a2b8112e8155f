package script

import (
	"context"
	"fmt"
	"regexp"
	"strings"
)

var templateExpr = regexp.MustCompile(`\$\{([^}]+)\}`)

// Template is text with embedded ${...} expressions.
type Template struct {
	raw      string
	literals []string
	codes    []Script
}

// NewTemplate compiles every expression in raw with engine.
func NewTemplate(engine Compiler, raw string) (*Template, error) {
	if strings.Count(raw, "${") > strings.Count(raw, "}") {
		return nil, fmt.Errorf("unclosed template expression in string: %q", raw)
	}
	t := &Template{raw: raw}
	lastEnd := 0
	for _, match := range templateExpr.FindAllStringSubmatchIndex(raw, -1) {
		expr := raw[match[2]:match[3]]
		code, err := engine.Compile(context.Background(), expr)
		if err != nil {
			return nil, fmt.Errorf("failed to compile template expression %q: %w", expr, err)
		}
		t.literals = append(t.literals, raw[lastEnd:match[0]])
		t.codes = append(t.codes, code)
		lastEnd = match[1]
	}
	t.literals = append(t.literals, raw[lastEnd:])
	return t, nil
}

// Eval renders the template. Literal text and expression results alternate.
func (t *Template) Eval(ctx context.Context, globals map[string]any) (string, error) {
	if len(t.codes) == 0 {
		return t.raw, nil
	}
	var sb strings.Builder
	for i, code := range t.codes {
		sb.WriteString(t.literals[i])
		result, err := code.Evaluate(ctx, globals)
		if err != nil {
			return "", fmt.Errorf("failed to evaluate template expression: %w", err)
		}
		sb.WriteString(result.String())
	}
	sb.WriteString(t.literals[len(t.literals)-1])
	return sb.String(), nil
}
