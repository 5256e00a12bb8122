package ruleflow

import "fmt"

// ConfigurationError wraps a failure to parse or load a configuration
// document, preserving where the bytes came from.
type ConfigurationError struct {
	Source string // "json", "yaml", caller-supplied origin label
	Cause  error
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("configuration error (%s): %v", e.Source, e.Cause)
}

func (e *ConfigurationError) Unwrap() error { return e.Cause }

// ActionCreationError is raised when no provider can instantiate an action,
// or a provider rejects the definition it was asked to build.
type ActionCreationError struct {
	ActionID string
	Type     string
	Cause    error
}

func (e *ActionCreationError) Error() string {
	return fmt.Sprintf("cannot create action %q (type %q): %v", e.ActionID, e.Type, e.Cause)
}

func (e *ActionCreationError) Unwrap() error { return e.Cause }

// ActionError is a runtime action failure.
type ActionError struct {
	ActionID string
	Message  string
	Cause    error
}

func (e *ActionError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("action %q failed: %s: %v", e.ActionID, e.Message, e.Cause)
	}
	return fmt.Sprintf("action %q failed: %s", e.ActionID, e.Message)
}

func (e *ActionError) Unwrap() error { return e.Cause }

// ExpressionError is a compile or evaluation failure, carrying the offending
// expression text so a caller can surface it without re-deriving it.
type ExpressionError struct {
	Expression string
	Cause      error
}

func (e *ExpressionError) Error() string {
	return fmt.Sprintf("expression error in %q: %v", e.Expression, e.Cause)
}

func (e *ExpressionError) Unwrap() error { return e.Cause }

// RuleExecutionError is a terminal engine-level failure: depth exceeded,
// missing rule, an unrecoverable action error, or a failed transition
// evaluation. It always carries the rule id active when the failure occurred.
type RuleExecutionError struct {
	RuleID  string
	Message string
	Cause   error
}

func (e *RuleExecutionError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("rule %q: %s: %v", e.RuleID, e.Message, e.Cause)
	}
	return fmt.Sprintf("rule %q: %s", e.RuleID, e.Message)
}

func (e *RuleExecutionError) Unwrap() error { return e.Cause }

// TimeoutError signals the execution wall-clock deadline elapsed.
type TimeoutError struct {
	RuleID    string
	TimeoutMs int64
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("Execution timed out after %dms", e.TimeoutMs)
}

// BuildError wraps a failure to assemble an Executor — either the config
// failed validation, or the entry point is missing.
type BuildError struct {
	Result ValidationResult
	Cause  error
}

func (e *BuildError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("build failed: %v", e.Cause)
	}
	return fmt.Sprintf("build failed: %d validation error(s)", e.Result.ErrorCount())
}

func (e *BuildError) Unwrap() error { return e.Cause }

// toRuleExecutionError converts any error into a *RuleExecutionError,
// preserving one that's already typed.
func toRuleExecutionError(err error, ruleID string) *RuleExecutionError {
	if ree, ok := err.(*RuleExecutionError); ok {
		if ree.RuleID == "" {
			ree.RuleID = ruleID
		}
		return ree
	}
	return &RuleExecutionError{RuleID: ruleID, Message: err.Error(), Cause: err}
}
