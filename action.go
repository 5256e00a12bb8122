package ruleflow

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"ruleflow/expr"
)

// ActionResult is either a success carrying an opaque payload or a failure
// carrying a message and optional cause, mirroring the §4.2 contract
// `execute(ctx) → ActionResult | ActionError`.
type ActionResult struct {
	Success bool
	Payload any
	Message string
	Cause   error
}

// ActionSuccess builds a successful result.
func ActionSuccess(payload any) ActionResult {
	return ActionResult{Success: true, Payload: payload}
}

// ActionFailure builds a failed result.
func ActionFailure(message string, cause error) ActionResult {
	return ActionResult{Message: message, Cause: cause}
}

// Action is one unit of work inside a rule.
type Action interface {
	Execute(ctx *ExecutionContext) (ActionResult, error)
	Type() string
	ActionID() string
}

// ActionProvider is a factory for actions of a given type tag.
type ActionProvider interface {
	Supports(typeTag string) bool
	CreateAction(def ActionDefinition) (Action, error)
	Priority() int
	ProviderName() string
}

// ActionRegistry holds registered providers and dispatches by descending
// priority, registration order breaking ties. Registration is rare
// (build-time); dispatch is the hot path and must be safe for concurrent
// callers once the build phase has finished. Sorting is lazy: a Register
// call invalidates the cached order, and the next CreateAction re-sorts.
type ActionRegistry struct {
	mu        sync.RWMutex
	providers []ActionProvider
	sorted    bool
}

// NewActionRegistry returns an empty registry.
func NewActionRegistry() *ActionRegistry {
	return &ActionRegistry{}
}

// Register adds a provider. Safe to call concurrently with other Register
// calls; must not be called concurrently with CreateAction.
func (r *ActionRegistry) Register(p ActionProvider) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.providers = append(r.providers, p)
	r.sorted = false
}

// dispatchOrder returns providers in descending-priority order, re-sorting
// only when a Register call has invalidated the cached order.
func (r *ActionRegistry) dispatchOrder() []ActionProvider {
	r.mu.RLock()
	if r.sorted {
		out := r.providers
		r.mu.RUnlock()
		return out
	}
	r.mu.RUnlock()

	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.sorted {
		sort.SliceStable(r.providers, func(i, j int) bool {
			return r.providers[i].Priority() > r.providers[j].Priority()
		})
		r.sorted = true
	}
	return r.providers
}

// CreateAction finds the first provider whose Supports(def.Type) is true, in
// dispatch order, and delegates to it.
func (r *ActionRegistry) CreateAction(def ActionDefinition) (Action, error) {
	for _, p := range r.dispatchOrder() {
		if p.Supports(def.Type) {
			a, err := p.CreateAction(def)
			if err != nil {
				return nil, &ActionCreationError{ActionID: def.ActionID, Type: def.Type, Cause: err}
			}
			return a, nil
		}
	}
	return nil, &ActionCreationError{
		ActionID: def.ActionID,
		Type:     def.Type,
		Cause:    fmt.Errorf("no provider supports action type %q", def.Type),
	}
}

// scriptAction evaluates a pre-compiled expression and returns its value as
// the action's success payload.
type scriptAction struct {
	actionID  string
	evaluator *expr.Evaluator
	compiled  *expr.CompiledExpression
}

func (a *scriptAction) Type() string     { return "SCRIPT" }
func (a *scriptAction) ActionID() string { return a.actionID }

func (a *scriptAction) Execute(ctx *ExecutionContext) (ActionResult, error) {
	v, err := a.evaluator.Run(a.compiled, ctx.Variables)
	if err != nil {
		actionErr := &ActionError{ActionID: a.actionID, Message: "script evaluation failed", Cause: err}
		return ActionFailure(actionErr.Message, err), actionErr
	}
	return ActionSuccess(v), nil
}

// ScriptActionProvider is the built-in provider for the "SCRIPT" action
// type: supports("SCRIPT"), priority 0. Creation validates config.expression
// is a non-empty string and compiles it once.
type ScriptActionProvider struct {
	evaluator *expr.Evaluator
}

// NewScriptActionProvider builds a provider sharing the executor's
// evaluator, so SCRIPT actions benefit from the same compiled-expression
// cache as conditions and transitions.
func NewScriptActionProvider(evaluator *expr.Evaluator) *ScriptActionProvider {
	return &ScriptActionProvider{evaluator: evaluator}
}

func (p *ScriptActionProvider) Supports(typeTag string) bool {
	return strings.EqualFold(typeTag, "SCRIPT")
}

func (p *ScriptActionProvider) Priority() int { return 0 }

func (p *ScriptActionProvider) ProviderName() string { return "builtin.script" }

func (p *ScriptActionProvider) CreateAction(def ActionDefinition) (Action, error) {
	raw, ok := def.Config["expression"]
	if !ok {
		return nil, fmt.Errorf("SCRIPT action %q requires config.expression", def.ActionID)
	}
	expression, ok := raw.(string)
	if !ok || strings.TrimSpace(expression) == "" {
		return nil, fmt.Errorf("SCRIPT action %q requires a non-empty string config.expression", def.ActionID)
	}
	compiled, err := p.evaluator.Compile(expression)
	if err != nil {
		return nil, fmt.Errorf("compiling expression for action %q: %w", def.ActionID, err)
	}
	return &scriptAction{actionID: def.ActionID, evaluator: p.evaluator, compiled: compiled}, nil
}
