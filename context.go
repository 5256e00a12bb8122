package ruleflow

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// StepType enumerates the kinds of events appended to an execution's trace.
type StepType string

const (
	StepRuleEntered        StepType = "RULE_ENTERED"
	StepRuleExited         StepType = "RULE_EXITED"
	StepActionStarted      StepType = "ACTION_STARTED"
	StepActionCompleted    StepType = "ACTION_COMPLETED"
	StepActionFailed       StepType = "ACTION_FAILED"
	StepTransitionEvaluated StepType = "TRANSITION_EVALUATED"
	StepErrorOccurred      StepType = "ERROR_OCCURRED"
)

// ExecutionStep is one append-only entry in an execution's trace.
type ExecutionStep struct {
	Type       StepType
	RuleID     string
	ActionID   string
	Timestamp  time.Time
	DurationMs int64
	Metadata   map[string]any
}

// ErrorInfo is the last error encountered during an execution, surfaced on
// the context's Error field so Go code (custom actions, the caller) can
// inspect it. The executor does not bind it into the expression variables,
// so transition guards and SCRIPT expressions do not see it.
type ErrorInfo struct {
	RuleID    string
	ActionID  string
	ErrorType string
	Message   string
	Cause     error
	Timestamp time.Time
}

// ToMap renders the error for injection into an expression context.
func (e *ErrorInfo) ToMap() map[string]any {
	if e == nil {
		return nil
	}
	return map[string]any{
		"ruleId":    e.RuleID,
		"actionId":  e.ActionID,
		"errorType": e.ErrorType,
		"message":   e.Message,
	}
}

// ExecutionContext is the mutable, single-threaded state carried through one
// execute call. It must not be shared across concurrent Execute invocations;
// distinct contexts may be executed concurrently against the same Executor.
type ExecutionContext struct {
	ID            string
	Variables     map[string]any
	Resources     map[string]any
	CurrentRuleID string
	Depth         int
	Error         *ErrorInfo
	History       []ExecutionStep
	TraceEnabled  bool
	trace         *Trace

	ctx context.Context
}

var _ context.Context = (*ExecutionContext)(nil)

// NewExecutionContext builds a context ready for one Execute call. variables
// is adopted directly (not copied) — callers that need isolation should pass
// a fresh map.
func NewExecutionContext(variables map[string]any) *ExecutionContext {
	if variables == nil {
		variables = make(map[string]any)
	}
	return &ExecutionContext{
		ID:        uuid.New().String(),
		Variables: variables,
		Resources: make(map[string]any),
		ctx:       context.Background(),
	}
}

// WithResources attaches host-provided, read-only resources and returns the
// same context for chaining.
func (c *ExecutionContext) WithResources(resources map[string]any) *ExecutionContext {
	c.Resources = resources
	return c
}

// WithTrace enables execution tracing and returns the same context.
func (c *ExecutionContext) WithTrace() *ExecutionContext {
	c.TraceEnabled = true
	return c
}

// Trace returns the accumulated trace, or nil if tracing was never enabled.
func (c *ExecutionContext) Trace() *Trace {
	return c.trace
}

// Get reads a variable by name.
func (c *ExecutionContext) Get(name string) (any, bool) {
	v, ok := c.Variables[name]
	return v, ok
}

// Set writes a variable by name.
func (c *ExecutionContext) Set(name string, value any) {
	c.Variables[name] = value
}

// Unset removes a variable, used to clean up the temporary binding created
// while evaluating an action's outputExpression.
func (c *ExecutionContext) Unset(name string) {
	delete(c.Variables, name)
}

// Snapshot returns a shallow copy of the variable map, safe to store in a
// trace snapshot without aliasing future mutations.
func (c *ExecutionContext) Snapshot() map[string]any {
	out := make(map[string]any, len(c.Variables))
	for k, v := range c.Variables {
		out[k] = v
	}
	return out
}

func (c *ExecutionContext) appendStep(step ExecutionStep) {
	c.History = append(c.History, step)
	if c.trace != nil {
		c.trace.record(step)
	}
}

// context.Context implementation — delegates to the embedded context so a
// timeout/cancellation set by the executor propagates to anything the
// context is passed into (logging, custom actions observing cancellation).

func (c *ExecutionContext) Deadline() (time.Time, bool) { return c.ctx.Deadline() }
func (c *ExecutionContext) Done() <-chan struct{}       { return c.ctx.Done() }
func (c *ExecutionContext) Err() error                  { return c.ctx.Err() }
func (c *ExecutionContext) Value(key any) any {
	if k, ok := key.(string); ok {
		if v, ok := c.Variables[k]; ok {
			return v
		}
	}
	return c.ctx.Value(key)
}

// withContext returns a shallow copy carrying a new embedded context, in the
// style of http.Request.WithContext.
func (c *ExecutionContext) withContext(ctx context.Context) *ExecutionContext {
	clone := *c
	clone.ctx = ctx
	return &clone
}
