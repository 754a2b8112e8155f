// Package script compiles the routing and agent programs a crew is
// configured with. Two engines are available: Risor for full programs and
// expr for single routing expressions.
package script

import "context"

// Compiler turns program source into a Script. Compilation happens once,
// when the crew graph is built, so syntax errors surface at startup.
type Compiler interface {
	Compile(ctx context.Context, code string) (Script, error)
}

// Script is a compiled program, evaluated once per routing decision or agent
// call.
type Script interface {
	Evaluate(ctx context.Context, globals map[string]any) (Value, error)
}

// Value is what a Script produced.
type Value interface {
	// Value is the result converted to plain Go values: maps, slices,
	// strings, bools and numbers.
	Value() any
	// String is the result as text. Routing reads a node name from it.
	String() string
	// IsTruthy follows the engine's own truthiness rules.
	IsTruthy() bool
}

var (
	_ Compiler = (*RisorEngine)(nil)
	_ Compiler = (*ExprEngine)(nil)
	_ Value    = (*RisorValue)(nil)
	_ Value    = (*ExprValue)(nil)
)
