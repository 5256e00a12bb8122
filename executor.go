package ruleflow

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"ruleflow/expr"
)

// ExecutionResult carries the outcome of one Execute call. The engine never
// surfaces exceptions to a caller of Execute; every path, including timeout
// and depth-exceeded, returns through this type.
type ExecutionResult struct {
	Success      bool
	FinalRuleID  string
	ErrorMessage string
	ElapsedMs    int64
	Context      *ExecutionContext
}

// Executor owns a validated configuration, the action registry, the
// expression evaluator, and the depth/timeout/default-error-rule limits
// derived from GlobalSettings. Build one with BuildExecutor.
type Executor struct {
	config           RuleEngineConfig
	registry         *ActionRegistry
	evaluator        *expr.Evaluator
	maxDepth         int
	timeoutMs        int64
	defaultErrorRule string
	logger           *slog.Logger

	inFlight sync.WaitGroup
}

// Shutdown waits for in-flight executions to finish, bounded by ctx.
func (ex *Executor) Shutdown(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		ex.inFlight.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Execute runs one traversal starting at the configured entry point,
// enforcing timeoutMs as a wall-clock bound over the whole call.
func (ex *Executor) Execute(ctx *ExecutionContext) ExecutionResult {
	start := time.Now()

	if strings.TrimSpace(ex.config.EntryPoint) == "" {
		return ExecutionResult{ErrorMessage: "no entry point configured", Context: ctx}
	}

	if ctx.TraceEnabled {
		ctx.trace = newTrace(ex.config.EntryPoint)
		ctx.trace.snapshot("initial-state", ctx.Snapshot())
	}

	deadline := time.Duration(ex.timeoutMs) * time.Millisecond
	runCtx, cancel := context.WithTimeout(ctx.ctx, deadline)
	defer cancel()
	ctx.ctx = runCtx

	var currentRule atomic.Value
	currentRule.Store(ex.config.EntryPoint)

	type outcome struct {
		ruleID string
		err    error
	}
	done := make(chan outcome, 1)

	// ctx is mutated in place, not cloned: the caller's ExecutionContext must
	// reflect every step/variable/error the traversal produces, even on the
	// timeout path below where the goroutine is abandoned mid-flight.
	ex.inFlight.Add(1)
	go func() {
		defer ex.inFlight.Done()
		ruleID, err := ex.traverse(ctx, &currentRule)
		done <- outcome{ruleID: ruleID, err: err}
	}()

	var result ExecutionResult
	select {
	case out := <-done:
		// The channel send happens-after every mutation traverse made to ctx,
		// so reading ctx here (including for the trace snapshot below) is safe.
		result = ExecutionResult{Success: out.err == nil, FinalRuleID: out.ruleID, Context: ctx}
		if out.err != nil {
			result.ErrorMessage = out.err.Error()
		}
		if ctx.TraceEnabled && ctx.trace != nil {
			ctx.trace.snapshot("final-state", ctx.Snapshot())
			ctx.trace.finish()
		}
	case <-runCtx.Done():
		// traverse is abandoned here, not killed — it may still be writing to
		// ctx when this branch runs, so nothing but the independently-owned
		// currentRule atomic is read on this path.
		finalRule, _ := currentRule.Load().(string)
		timeoutErr := &TimeoutError{RuleID: finalRule, TimeoutMs: ex.timeoutMs}
		result = ExecutionResult{FinalRuleID: finalRule, ErrorMessage: timeoutErr.Error(), Context: ctx}
	}

	result.ElapsedMs = time.Since(start).Milliseconds()
	return result
}

// traverse implements the rule traversal state machine from §4.4.2: advance
// rule to rule, executing actions then selecting a transition, until a
// terminal rule, an unrouted error, depth exhaustion, or cancellation.
func (ex *Executor) traverse(ctx *ExecutionContext, cur *atomic.Value) (string, error) {
	currentRule := ex.config.EntryPoint
	depth := 0

	for {
		if err := ctx.Err(); err != nil {
			return currentRule, err
		}
		if depth >= ex.maxDepth {
			return currentRule, &RuleExecutionError{RuleID: currentRule, Message: fmt.Sprintf("maxExecutionDepth (%d) exceeded", ex.maxDepth)}
		}
		rule, ok := ex.config.RuleByID(currentRule)
		if !ok {
			return currentRule, &RuleExecutionError{RuleID: currentRule, Message: "rule not found"}
		}

		depth++
		ctx.CurrentRuleID = currentRule
		ctx.Depth = depth
		cur.Store(currentRule)

		ctx.appendStep(ExecutionStep{Type: StepRuleEntered, RuleID: currentRule, Timestamp: time.Now()})
		ex.logger.InfoContext(ctx, fmt.Sprintf("entering rule %q (depth %d)", currentRule, depth))

		if err := ex.executeActions(ctx, rule); err != nil {
			ctx.appendStep(ExecutionStep{Type: StepErrorOccurred, RuleID: currentRule, Timestamp: time.Now()})
			if next, ok := ex.routeError(ctx, rule, err); ok {
				currentRule = next
				continue
			}
			return currentRule, toRuleExecutionError(err, currentRule)
		}

		ctx.appendStep(ExecutionStep{Type: StepRuleExited, RuleID: currentRule, Timestamp: time.Now()})

		if rule.Terminal {
			return currentRule, nil
		}

		next, err := ex.evaluateTransitions(ctx, rule)
		if err != nil {
			return currentRule, err
		}
		if next == "" {
			return currentRule, nil // halted: no transition fired, not a failure
		}
		currentRule = next
	}
}

// executeActions runs a rule's actions in configured order, per §4.4.3.
func (ex *Executor) executeActions(ctx *ExecutionContext, rule RuleDefinition) error {
	for _, actionDef := range rule.Actions {
		runIt := true
		if actionDef.Condition != "" {
			v, err := ex.evaluator.EvaluateBoolean(actionDef.Condition, ctx.Variables)
			if err != nil {
				ex.logger.WarnContext(ctx, fmt.Sprintf("action %q condition failed to evaluate, defaulting to true: %v", actionDef.ActionID, err))
				runIt = true
			} else {
				runIt = v
			}
		}
		if !runIt {
			continue
		}

		ctx.appendStep(ExecutionStep{Type: StepActionStarted, RuleID: rule.RuleID, ActionID: actionDef.ActionID, Timestamp: time.Now()})
		started := time.Now()

		action, err := ex.registry.CreateAction(actionDef)
		var result ActionResult
		if err == nil {
			result, err = action.Execute(ctx)
		}
		elapsed := time.Since(started).Milliseconds()

		if err != nil {
			ctx.appendStep(ExecutionStep{Type: StepActionFailed, RuleID: rule.RuleID, ActionID: actionDef.ActionID, Timestamp: time.Now(), DurationMs: elapsed})
			if actionDef.ContinueOnError {
				ex.logger.WarnContext(ctx, fmt.Sprintf("action %q failed, continuing (continueOnError): %v", actionDef.ActionID, err))
				continue
			}
			return toActionError(err, actionDef.ActionID)
		}

		ctx.appendStep(ExecutionStep{Type: StepActionCompleted, RuleID: rule.RuleID, ActionID: actionDef.ActionID, Timestamp: time.Now(), DurationMs: elapsed})

		if actionDef.OutputVariable != "" {
			if err := ex.bindOutput(ctx, actionDef, result.Payload); err != nil {
				if actionDef.ContinueOnError {
					ex.logger.WarnContext(ctx, fmt.Sprintf("action %q output binding failed, continuing (continueOnError): %v", actionDef.ActionID, err))
					continue
				}
				return err
			}
		}
	}
	return nil
}

var resultRefRe = regexp.MustCompile(`\bresult\b`)

// bindOutput implements the §4.4.3 step-5 temp-variable rewrite: a raw
// result is bound under a unique temporary name, outputExpression is
// evaluated with "result" rewritten to that name, and the temporary is
// unbound afterward even if the extractor fails — so no helper name leaks
// into the context.
func (ex *Executor) bindOutput(ctx *ExecutionContext, actionDef ActionDefinition, raw any) error {
	if actionDef.OutputExpression == "" {
		ctx.Set(actionDef.OutputVariable, raw)
		return nil
	}

	tempName := fmt.Sprintf("__result_%s", actionDef.ActionID)
	ctx.Set(tempName, raw)
	defer ctx.Unset(tempName)

	rewritten := resultRefRe.ReplaceAllString(actionDef.OutputExpression, tempName)
	v, err := ex.evaluator.Evaluate(rewritten, ctx.Variables)
	if err != nil {
		return &ExpressionError{Expression: actionDef.OutputExpression, Cause: err}
	}
	ctx.Set(actionDef.OutputVariable, v)
	return nil
}

// evaluateTransitions selects the first truthy transition in
// descending-priority order (ties by order of appearance), applies its
// contextTransform, and returns its targetRule, per §4.4.4.
func (ex *Executor) evaluateTransitions(ctx *ExecutionContext, rule RuleDefinition) (string, error) {
	ordered := make([]TransitionDefinition, len(rule.Transitions))
	copy(ordered, rule.Transitions)
	sort.SliceStable(ordered, func(i, j int) bool { return ordered[i].Priority > ordered[j].Priority })

	for _, tr := range ordered {
		result, err := ex.evaluator.EvaluateBoolean(tr.Condition, ctx.Variables)
		if err != nil {
			return "", &RuleExecutionError{
				RuleID:  rule.RuleID,
				Message: "Failed to evaluate transition condition",
				Cause:   &ExpressionError{Expression: tr.Condition, Cause: err},
			}
		}
		ctx.appendStep(ExecutionStep{
			Type:      StepTransitionEvaluated,
			RuleID:    rule.RuleID,
			Timestamp: time.Now(),
			Metadata:  map[string]any{"condition": tr.Condition, "result": result, "targetRule": tr.TargetRule},
		})
		if !result {
			continue
		}
		for target, source := range tr.ContextTransform {
			v, _ := ctx.Get(source)
			ctx.Set(target, v)
		}
		return tr.TargetRule, nil
	}
	return "", nil
}

// routeError implements §4.4.5: look up the failed action inside the
// current rule; prefer its onError.targetRule, then the global
// defaultErrorRule, else report no route (the error surfaces).
func (ex *Executor) routeError(ctx *ExecutionContext, rule RuleDefinition, failure error) (string, bool) {
	info := errorInfoFrom(failure, rule.RuleID)
	ctx.Error = info

	if info.ActionID != "" {
		if actionDef, ok := rule.ActionByID(info.ActionID); ok && actionDef.OnError != nil {
			return actionDef.OnError.TargetRule, true
		}
	}
	if ex.defaultErrorRule != "" {
		return ex.defaultErrorRule, true
	}
	return "", false
}

func errorInfoFrom(err error, ruleID string) *ErrorInfo {
	info := &ErrorInfo{RuleID: ruleID, Cause: err, Timestamp: time.Now(), Message: err.Error(), ErrorType: "RuleExecutionError"}
	switch e := err.(type) {
	case *ActionError:
		info.ActionID = e.ActionID
		info.ErrorType = "ActionError"
		info.Message = e.Message
	case *ActionCreationError:
		info.ActionID = e.ActionID
		info.ErrorType = "ActionCreationError"
	case *ExpressionError:
		info.ErrorType = "ExpressionError"
	}
	return info
}

func toActionError(err error, actionID string) error {
	switch err.(type) {
	case *ActionError, *ActionCreationError:
		return err
	}
	return &ActionError{ActionID: actionID, Message: err.Error(), Cause: err}
}
