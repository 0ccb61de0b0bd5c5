package oracle

import (
	"fmt"

	"github.com/google/cel-go/cel"
)

// DefaultGuard keeps the projected supply inside genesis ± volatile.
const DefaultGuard = `projected > genesis - volatile && projected < genesis + volatile`

// GuardInput is what a guard expression can see. Supply figures are in
// whole tokens.
type GuardInput struct {
	Supply    int64
	Projected int64
	Genesis   int64
	Volatile  int64
	DayOfYear uint32
	Extent    uint32
	Baseline  uint32
	Action    string
}

// Guard is a compiled CEL predicate over GuardInput that must hold before
// a reading is submitted.
type Guard struct {
	expr string
	prg  cel.Program
}

func NewGuard(expr string) (*Guard, error) {
	if expr == "" {
		expr = DefaultGuard
	}
	env, err := cel.NewEnv(
		cel.Variable("supply", cel.IntType),
		cel.Variable("projected", cel.IntType),
		cel.Variable("genesis", cel.IntType),
		cel.Variable("volatile", cel.IntType),
		cel.Variable("day_of_year", cel.IntType),
		cel.Variable("extent", cel.IntType),
		cel.Variable("baseline", cel.IntType),
		cel.Variable("action", cel.StringType),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create CEL environment: %w", err)
	}
	ast, issues := env.Compile(expr)
	if issues != nil && issues.Err() != nil {
		return nil, fmt.Errorf("guard: compile: %w", issues.Err())
	}
	if !ast.OutputType().IsExactType(cel.BoolType) {
		return nil, fmt.Errorf("guard: expression must be boolean, got %s", ast.OutputType())
	}
	prg, err := env.Program(ast, cel.CostLimit(10000))
	if err != nil {
		return nil, fmt.Errorf("guard: program: %w", err)
	}
	return &Guard{expr: expr, prg: prg}, nil
}

func (g *Guard) String() string { return g.expr }

// Allow evaluates the guard. Evaluation errors deny.
func (g *Guard) Allow(in GuardInput) (bool, error) {
	out, _, err := g.prg.Eval(map[string]any{
		"supply":      in.Supply,
		"projected":   in.Projected,
		"genesis":     in.Genesis,
		"volatile":    in.Volatile,
		"day_of_year": int64(in.DayOfYear),
		"extent":      int64(in.Extent),
		"baseline":    int64(in.Baseline),
		"action":      in.Action,
	})
	if err != nil {
		return false, fmt.Errorf("guard: eval: %w", err)
	}
	allowed, ok := out.Value().(bool)
	if !ok {
		return false, fmt.Errorf("guard: non-boolean result %v", out.Value())
	}
	return allowed, nil
}
