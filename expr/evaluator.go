// Package expr implements the engine's embedded expression language: a
// small dependency-free Pratt parser and tree-walking interpreter over
// literals, member/indexed access, arithmetic, comparisons, ternaries, a
// bound util namespace, and (for multi-statement scripts) assignment and
// for loops.
package expr

import (
	"fmt"
	"strings"
)

// CompiledExpression is a reusable parsed handle returned by Compile. Its
// zero value is not valid; obtain one from an Evaluator.
type CompiledExpression struct {
	Source string
	script bool
	prog   *program
}

// Evaluator holds a compiled-expression cache and the bound util namespace.
// The zero value is not ready for use; construct with NewEvaluator.
type Evaluator struct {
	cache *exprCache
	util  *utilNamespace
}

// NewEvaluator builds an Evaluator with the default cache size (512).
func NewEvaluator() *Evaluator {
	return NewEvaluatorWithCacheSize(DefaultCacheSize)
}

// NewEvaluatorWithCacheSize builds an Evaluator with a custom cache bound.
func NewEvaluatorWithCacheSize(max int) *Evaluator {
	return &Evaluator{cache: newExprCache(max), util: newUtilNamespace()}
}

// isScript detects a multi-statement program by the presence of a ';' or a
// 'for (' substring, per the expression subsystem's compile contract.
func isScript(source string) bool {
	return strings.Contains(source, ";") || strings.Contains(source, "for (")
}

// Compile parses source into a reusable handle. Single-expression forms are
// served from (and inserted into) the shared cache; script forms are parsed
// fresh every time and never cached.
func (e *Evaluator) Compile(source string) (*CompiledExpression, error) {
	script := isScript(source)
	if !script {
		if ce, ok := e.cache.get(source); ok {
			return ce, nil
		}
	}
	prog, err := parseProgram(source)
	if err != nil {
		return nil, fmt.Errorf("parse error: %w", err)
	}
	ce := &CompiledExpression{Source: source, script: script, prog: prog}
	if !script {
		e.cache.put(source, ce)
	}
	return ce, nil
}

// IsValid reports whether source parses, without evaluating it.
func (e *Evaluator) IsValid(source string) bool {
	_, err := parseProgram(source)
	return err == nil
}

// Evaluate compiles (or fetches) and runs source against vars, which backs
// plain identifier lookups; assignments inside a script form are local to
// this call and never write back into vars.
func (e *Evaluator) Evaluate(source string, vars map[string]any) (any, error) {
	ce, err := e.Compile(source)
	if err != nil {
		return nil, err
	}
	return e.Run(ce, vars)
}

// Run executes an already-compiled expression against vars.
func (e *Evaluator) Run(ce *CompiledExpression, vars map[string]any) (any, error) {
	sc := newScope(vars, e.util)
	v, err := run(ce.prog, sc)
	if err != nil {
		return nil, fmt.Errorf("evaluation error: %w", err)
	}
	return v, nil
}

// EvaluateBoolean evaluates source then applies the boolean coercion rule:
// null→false; booleans as-is; numbers truthy iff non-zero; strings truthy
// iff non-empty and not case-insensitive "false"; anything else non-null is
// truthy.
func (e *Evaluator) EvaluateBoolean(source string, vars map[string]any) (bool, error) {
	v, err := e.Evaluate(source, vars)
	if err != nil {
		return false, err
	}
	return coerceBool(v), nil
}

// EvaluateAs evaluates source and asserts the result's runtime type is T.
// A null result passes through as the zero value of T with no error.
func EvaluateAs[T any](e *Evaluator, source string, vars map[string]any) (T, error) {
	var zero T
	v, err := e.Evaluate(source, vars)
	if err != nil {
		return zero, err
	}
	if v == nil {
		return zero, nil
	}
	t, ok := v.(T)
	if !ok {
		return zero, fmt.Errorf("type mismatch: expected %T, got %T", zero, v)
	}
	return t, nil
}
