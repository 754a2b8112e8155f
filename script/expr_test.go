package script

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestExprEngine(t *testing.T) {
	engine := NewExprEngine()
	ctx := context.Background()

	tests := []struct {
		name    string
		code    string
		globals map[string]any
		want    string
		truthy  bool
	}{
		{
			name:    "routing rule",
			code:    `request endsWith "?" && len(request) < 40 ? "skip" : "plan"`,
			globals: map[string]any{"request": "what is logP?"},
			want:    "skip",
			truthy:  true,
		},
		{
			name:    "long request plans",
			code:    `request endsWith "?" && len(request) < 40 ? "skip" : "plan"`,
			globals: map[string]any{"request": "could you build and validate a solubility model for me?"},
			want:    "plan",
			truthy:  true,
		},
		{
			name:    "list globals",
			code:    `len(human_messages) > 1`,
			globals: map[string]any{"human_messages": []string{"a", "b"}},
			want:    "true",
			truthy:  true,
		},
		{
			name:   "undeclared variables are nil",
			code:   `missing`,
			want:   "",
			truthy: false,
		},
		{
			name:   "map result",
			code:   `{"next": "data_agent", "reply": "ok"}`,
			want:   "next: data_agent\n\nreply: ok",
			truthy: true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			compiled, err := engine.Compile(ctx, tt.code)
			require.NoError(t, err)
			value, err := compiled.Evaluate(ctx, tt.globals)
			require.NoError(t, err)
			require.Equal(t, tt.want, value.String())
			require.Equal(t, tt.truthy, value.IsTruthy())
		})
	}

	t.Run("syntax error", func(t *testing.T) {
		_, err := engine.Compile(ctx, `request +`)
		require.Error(t, err)
	})

	t.Run("runtime error", func(t *testing.T) {
		compiled, err := engine.Compile(ctx, `1 / n`)
		require.NoError(t, err)
		_, err = compiled.Evaluate(ctx, map[string]any{"n": "zero"})
		require.ErrorContains(t, err, "failed to evaluate expression")
	})
}
