package ruleflow

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// Trace accrues every step emitted during one execution plus variable
// snapshots, and derives summaries as pure folds over the step log.
type Trace struct {
	EntryRule string
	Started   time.Time
	Ended     time.Time
	Steps     []ExecutionStep
	Snapshots map[string]map[string]any

	spanRecorder *spanRecorder
}

func newTrace(entryRule string) *Trace {
	return &Trace{
		EntryRule:    entryRule,
		Started:      time.Now(),
		Snapshots:    make(map[string]map[string]any),
		spanRecorder: newSpanRecorder(),
	}
}

func (t *Trace) record(step ExecutionStep) {
	t.Steps = append(t.Steps, step)
	if t.spanRecorder != nil {
		t.spanRecorder.onStep(step)
	}
}

func (t *Trace) snapshot(label string, vars map[string]any) {
	t.Snapshots[label] = vars
}

func (t *Trace) finish() {
	t.Ended = time.Now()
	if t.spanRecorder != nil {
		t.spanRecorder.shutdown(context.Background())
	}
}

// TotalDuration is the wall-clock span from trace creation to finish; it is
// zero until the trace has been finished.
func (t *Trace) TotalDuration() time.Duration {
	if t.Ended.IsZero() {
		return 0
	}
	return t.Ended.Sub(t.Started)
}

// RulesExecuted returns rule ids in first-occurrence order.
func (t *Trace) RulesExecuted() []string {
	return firstOccurrence(t.Steps, func(s ExecutionStep) (string, bool) {
		if s.Type == StepRuleEntered {
			return s.RuleID, true
		}
		return "", false
	})
}

// ActionsExecuted returns action ids in first-occurrence order.
func (t *Trace) ActionsExecuted() []string {
	return firstOccurrence(t.Steps, func(s ExecutionStep) (string, bool) {
		if s.Type == StepActionStarted {
			return s.ActionID, true
		}
		return "", false
	})
}

func firstOccurrence(steps []ExecutionStep, extract func(ExecutionStep) (string, bool)) []string {
	seen := make(map[string]bool)
	var out []string
	for _, s := range steps {
		id, ok := extract(s)
		if !ok || id == "" || seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	return out
}

// ActionDurations sums ACTION_COMPLETED/ACTION_FAILED durations per action id.
func (t *Trace) ActionDurations() map[string]int64 {
	out := make(map[string]int64)
	for _, s := range t.Steps {
		if s.Type == StepActionCompleted || s.Type == StepActionFailed {
			out[s.ActionID] += s.DurationMs
		}
	}
	return out
}

// TotalActionTime sums every recorded action duration.
func (t *Trace) TotalActionTime() int64 {
	var total int64
	for _, d := range t.ActionDurations() {
		total += d
	}
	return total
}

// FailedActionCount counts ACTION_FAILED steps.
func (t *Trace) FailedActionCount() int {
	count := 0
	for _, s := range t.Steps {
		if s.Type == StepActionFailed {
			count++
		}
	}
	return count
}

// Summary renders a human-readable text report. Purely presentational.
func (t *Trace) Summary() string {
	var b strings.Builder
	fmt.Fprintf(&b, "Execution trace (entry: %s)\n", t.EntryRule)
	fmt.Fprintf(&b, "  total duration: %s\n", t.TotalDuration())
	fmt.Fprintf(&b, "  rules executed: %s\n", strings.Join(t.RulesExecuted(), " -> "))
	fmt.Fprintf(&b, "  actions executed: %s\n", strings.Join(t.ActionsExecuted(), ", "))
	fmt.Fprintf(&b, "  total action time: %dms\n", t.TotalActionTime())
	fmt.Fprintf(&b, "  failed actions: %d\n", t.FailedActionCount())
	fmt.Fprintln(&b, "  steps:")
	for _, s := range t.Steps {
		fmt.Fprintf(&b, "    [%s] rule=%s action=%s duration=%dms\n", s.Type, s.RuleID, s.ActionID, s.DurationMs)
	}
	return b.String()
}

// Mermaid renders the rule traversal as a Mermaid state diagram.
func (t *Trace) Mermaid() string {
	var b strings.Builder
	b.WriteString("stateDiagram-v2\n")
	rules := t.RulesExecuted()
	if len(rules) == 0 {
		return b.String()
	}
	fmt.Fprintf(&b, "    [*] --> %s\n", rules[0])
	for i := 0; i+1 < len(rules); i++ {
		fmt.Fprintf(&b, "    %s --> %s\n", rules[i], rules[i+1])
	}
	fmt.Fprintf(&b, "    %s --> [*]\n", rules[len(rules)-1])
	return b.String()
}
