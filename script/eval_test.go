package script

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestTemplate(t *testing.T) {
	tests := []struct {
		name        string
		input       string
		globals     map[string]any
		wantErr     bool
		want        string
		errContains string
	}{
		{
			name:  "plain string without template variables",
			input: "Hello World",
			want:  "Hello World",
		},
		{
			name:    "string with single template variable",
			input:   "Plan for ${request}",
			globals: map[string]any{"request": "toxicity model"},
			want:    "Plan for toxicity model",
		},
		{
			name:    "string with multiple template variables",
			input:   "${len(messages)} messages, approved: ${plan_approved}. The answer is ${40 + 2}",
			globals: map[string]any{"messages": []string{"a", "b"}, "plan_approved": true},
			want:    "2 messages, approved: true. The answer is 42",
		},
		{
			name:  "adjacent expressions",
			input: "${1}${2}",
			want:  "12",
		},
		{
			name:  "list result",
			input: "Steps: ${['a', 'b']}",
			want:  "Steps: a\n\nb",
		},
		{
			name:        "invalid template syntax - unclosed brace",
			input:       "Hello ${request",
			wantErr:     true,
			errContains: "unclosed template expression",
		},
		{
			name:        "invalid expression inside template",
			input:       "Hello ${1 +}",
			wantErr:     true,
			errContains: "invalid expression",
		},
		{
			name:        "undefined variable",
			input:       "Hello ${undefined_var}",
			wantErr:     true,
			errContains: "undefined variable",
		},
	}

	engine := NewRisorEngine(DefaultGlobals("request", "messages", "plan_approved"))
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tmpl, err := NewTemplate(engine, tt.input)
			if tt.wantErr {
				require.Error(t, err)
				if tt.errContains != "" {
					require.Contains(t, err.Error(), tt.errContains)
				}
				return
			}
			require.NoError(t, err)
			got, err := tmpl.Eval(context.Background(), tt.globals)
			require.NoError(t, err)
			require.Equal(t, tt.want, got)
		})
	}
}

func TestScriptValues(t *testing.T) {
	engine := NewRisorEngine(DefaultGlobals("request"))
	ctx := context.Background()

	code, err := engine.Compile(ctx, `{"next": "research", "reply": "looking into " + request}`)
	require.NoError(t, err)
	value, err := code.Evaluate(ctx, map[string]any{"request": "solubility"})
	require.NoError(t, err)
	require.Equal(t, map[string]any{"next": "research", "reply": "looking into solubility"}, value.Value())
	require.True(t, value.IsTruthy())

	code, err = engine.Compile(ctx, `"false"`)
	require.NoError(t, err)
	value, err = code.Evaluate(ctx, nil)
	require.NoError(t, err)
	require.False(t, value.IsTruthy())
}

func TestUndeclaredGlobal(t *testing.T) {
	engine := NewRisorEngine(DefaultGlobals("request"))
	code, err := engine.Compile(context.Background(), `request`)
	require.NoError(t, err)
	_, err = code.Evaluate(context.Background(), map[string]any{"other": 1})
	require.ErrorContains(t, err, "undeclared script global")
}

func TestGlobalize(t *testing.T) {
	got := Globalize(map[string]any{
		"names": []string{"a"},
		"meta":  map[string]string{"k": "v"},
	})
	require.Equal(t, map[string]any{
		"names": []any{"a"},
		"meta":  map[string]any{"k": "v"},
	}, got)
}
