package script

import (
	"context"
	"fmt"
	"reflect"
	"sort"
	"strings"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"
)

// ExprEngine compiles expr-lang expressions. Unlike Risor scripts they are
// single expressions without statements, suited to one-line routing rules.
type ExprEngine struct{}

func NewExprEngine() *ExprEngine {
	return &ExprEngine{}
}

func (e *ExprEngine) Compile(ctx context.Context, code string) (Script, error) {
	program, err := expr.Compile(strings.TrimSpace(code), expr.AllowUndefinedVariables())
	if err != nil {
		return nil, err
	}
	return &ExprScript{program: program}, nil
}

type ExprScript struct {
	program *vm.Program
}

func (s *ExprScript) Evaluate(ctx context.Context, globals map[string]any) (Value, error) {
	env := make(map[string]any, len(globals))
	for name, value := range globals {
		env[name] = Globalize(value)
	}
	out, err := expr.Run(s.program, env)
	if err != nil {
		return nil, fmt.Errorf("failed to evaluate expression: %w", err)
	}
	return &ExprValue{value: out}, nil
}

// ExprValue is the plain Go result of an expression.
type ExprValue struct {
	value any
}

func (v *ExprValue) Value() any {
	return v.value
}

func (v *ExprValue) IsTruthy() bool {
	switch value := v.value.(type) {
	case nil:
		return false
	case bool:
		return value
	case string:
		return value != ""
	case int:
		return value != 0
	case float64:
		return value != 0
	}
	rv := reflect.ValueOf(v.value)
	switch rv.Kind() {
	case reflect.Slice, reflect.Map:
		return rv.Len() > 0
	}
	return true
}

func (v *ExprValue) String() string {
	switch value := v.value.(type) {
	case nil:
		return ""
	case string:
		return value
	case []any:
		items := make([]string, len(value))
		for i, item := range value {
			items[i] = (&ExprValue{value: item}).String()
		}
		return strings.Join(items, "\n\n")
	case map[string]any:
		keys := make([]string, 0, len(value))
		for k := range value {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		items := make([]string, len(keys))
		for i, k := range keys {
			items[i] = fmt.Sprintf("%s: %s", k, (&ExprValue{value: value[k]}).String())
		}
		return strings.Join(items, "\n\n")
	default:
		return fmt.Sprint(value)
	}
}
