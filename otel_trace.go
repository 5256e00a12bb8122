package ruleflow

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel/attribute"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
)

// spanRecorder mirrors rule and action steps onto in-process OpenTelemetry
// spans: RULE_ENTERED/RULE_EXITED open and end a rule span, ACTION_STARTED
// and ACTION_COMPLETED/ACTION_FAILED open and end an action span.
// TRANSITION_EVALUATED and ERROR_OCCURRED steps are not mirrored. Spans are
// created on a private sdktrace.TracerProvider built with no SpanProcessor
// and no exporter, and the provider is not exposed outside this type, so
// the ended spans are not delivered anywhere; ruleflow never talks to a
// collector.
type spanRecorder struct {
	mu       sync.Mutex
	tracer   trace.Tracer
	provider *sdktrace.TracerProvider
	open     map[string]trace.Span // keyed by rule id or rule id + "/" + action id
}

func newSpanRecorder() *spanRecorder {
	provider := sdktrace.NewTracerProvider()
	return &spanRecorder{
		tracer:   provider.Tracer("ruleflow"),
		provider: provider,
		open:     make(map[string]trace.Span),
	}
}

// shutdown releases the in-process tracer provider. Safe to call even though
// no exporter is attached; it exists so a long-lived host process doesn't
// accumulate tracer providers across many executions.
func (r *spanRecorder) shutdown(ctx context.Context) {
	_ = r.provider.Shutdown(ctx)
}

func (r *spanRecorder) onStep(step ExecutionStep) {
	r.mu.Lock()
	defer r.mu.Unlock()

	switch step.Type {
	case StepRuleEntered:
		_, span := r.tracer.Start(context.Background(), "rule:"+step.RuleID,
			trace.WithAttributes(attribute.String("ruleflow.rule_id", step.RuleID)))
		r.open[step.RuleID] = span
	case StepRuleExited:
		if span, ok := r.open[step.RuleID]; ok {
			span.End()
			delete(r.open, step.RuleID)
		}
	case StepActionStarted:
		key := step.RuleID + "/" + step.ActionID
		_, span := r.tracer.Start(context.Background(), "action:"+step.ActionID,
			trace.WithAttributes(
				attribute.String("ruleflow.rule_id", step.RuleID),
				attribute.String("ruleflow.action_id", step.ActionID),
			))
		r.open[key] = span
	case StepActionCompleted, StepActionFailed:
		key := step.RuleID + "/" + step.ActionID
		if span, ok := r.open[key]; ok {
			if step.Type == StepActionFailed {
				span.SetAttributes(attribute.Bool("ruleflow.failed", true))
			}
			span.End()
			delete(r.open, key)
		}
	}
}
