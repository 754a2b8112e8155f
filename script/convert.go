package script

import (
	"strings"

	"github.com/risor-io/risor/object"
)

// fromRisor unwraps a Risor result into plain Go values. Lists and sets
// become []any and maps become map[string]any so agents can read nested
// replies without importing Risor.
func fromRisor(obj object.Object) any {
	switch o := obj.(type) {
	case nil, *object.NilType:
		return nil
	case *object.List:
		return fromRisorItems(o.Value())
	case *object.Set:
		items := make([]object.Object, 0, len(o.Value()))
		for _, item := range o.Value() {
			items = append(items, item)
		}
		return fromRisorItems(items)
	case *object.Map:
		out := make(map[string]any, len(o.Value()))
		for key, value := range o.Value() {
			out[key] = fromRisor(value)
		}
		return out
	case *object.String, *object.Int, *object.Float, *object.Bool, *object.Time:
		return o.Interface()
	default:
		return obj.Inspect()
	}
}

func fromRisorItems(items []object.Object) []any {
	out := make([]any, len(items))
	for i, item := range items {
		out[i] = fromRisor(item)
	}
	return out
}

// risorTruthy treats the string "false" as false so routing scripts may
// return either a bool or its text.
func risorTruthy(obj object.Object) bool {
	switch o := obj.(type) {
	case *object.String:
		return o.Value() != "" && !strings.EqualFold(o.Value(), "false")
	case *object.Float:
		return o.Value() != 0
	case *object.List:
		return len(o.Value()) > 0
	case *object.Map:
		return len(o.Value()) > 0
	default:
		return obj.IsTruthy()
	}
}

// Globalize converts Go values into the shapes scripts can index: slices
// become []any and string maps become map[string]any, recursively.
func Globalize(value any) any {
	switch v := value.(type) {
	case []string:
		out := make([]any, len(v))
		for i, s := range v {
			out[i] = s
		}
		return out
	case []any:
		out := make([]any, len(v))
		for i, item := range v {
			out[i] = Globalize(item)
		}
		return out
	case []map[string]any:
		out := make([]any, len(v))
		for i, item := range v {
			out[i] = Globalize(item)
		}
		return out
	case map[string]string:
		out := make(map[string]any, len(v))
		for k, s := range v {
			out[k] = s
		}
		return out
	case map[string]any:
		out := make(map[string]any, len(v))
		for k, item := range v {
			out[k] = Globalize(item)
		}
		return out
	default:
		return value
	}
}
