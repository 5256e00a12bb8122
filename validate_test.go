package ruleflow

import "testing"

func hasCode(result ValidationResult, code string) bool {
	for _, i := range result.Issues {
		if i.Code == code {
			return true
		}
	}
	return false
}

func validConfig() RuleEngineConfig {
	return RuleEngineConfig{
		EntryPoint: "start",
		Rules: []RuleDefinition{
			{
				RuleID: "start",
				Actions: []ActionDefinition{
					{ActionID: "a1", Type: "SCRIPT", Config: map[string]any{"expression": "1"}},
				},
				Transitions: []TransitionDefinition{
					{Condition: "true", TargetRule: "end"},
				},
			},
			{RuleID: "end", Terminal: true},
		},
	}
}

func TestDefaultValidatorAcceptsValidConfig(t *testing.T) {
	config := validConfig()
	result := DefaultValidator().Validate(&config)
	if !result.IsValid() {
		t.Fatalf("expected a valid config, got issues: %+v", result.Issues)
	}
}

func TestReferenceValidatorMissingEntryPoint(t *testing.T) {
	config := validConfig()
	config.EntryPoint = ""
	result := ReferenceValidator{}.Validate(&config)
	if !hasCode(result, "REF-002") {
		t.Fatalf("expected REF-002, got %+v", result.Issues)
	}
}

func TestReferenceValidatorUnknownEntryPoint(t *testing.T) {
	config := validConfig()
	config.EntryPoint = "nowhere"
	result := ReferenceValidator{}.Validate(&config)
	if !hasCode(result, "REF-003") {
		t.Fatalf("expected REF-003, got %+v", result.Issues)
	}
}

func TestReferenceValidatorUnknownTransitionTarget(t *testing.T) {
	config := validConfig()
	config.Rules[0].Transitions[0].TargetRule = "nowhere"
	result := ReferenceValidator{}.Validate(&config)
	if !hasCode(result, "REF-007") {
		t.Fatalf("expected REF-007, got %+v", result.Issues)
	}
}

func TestReferenceValidatorNonTerminalNoTransitionsWarns(t *testing.T) {
	config := validConfig()
	config.Rules[0].Transitions = nil
	result := ReferenceValidator{}.Validate(&config)
	if !hasCode(result, "REF-004") {
		t.Fatalf("expected REF-004 warning, got %+v", result.Issues)
	}
	if result.ErrorCount() != 0 {
		t.Fatalf("REF-004 should be a warning, not an error: %+v", result.Issues)
	}
}

func TestReachabilityValidatorWarnsOnUnreachableRule(t *testing.T) {
	config := validConfig()
	config.Rules = append(config.Rules, RuleDefinition{RuleID: "orphan", Terminal: true})
	result := ReachabilityValidator{}.Validate(&config)
	if !hasCode(result, "REACH-001") {
		t.Fatalf("expected REACH-001, got %+v", result.Issues)
	}
}

func TestCycleDetectorFindsCycle(t *testing.T) {
	config := RuleEngineConfig{
		EntryPoint: "a",
		Rules: []RuleDefinition{
			{RuleID: "a", Transitions: []TransitionDefinition{{Condition: "true", TargetRule: "b"}}},
			{RuleID: "b", Transitions: []TransitionDefinition{{Condition: "true", TargetRule: "a"}}},
		},
	}
	result := CycleDetector{}.Validate(&config)
	if !hasCode(result, "CYCLE-001") {
		t.Fatalf("expected CYCLE-001, got %+v", result.Issues)
	}
}

func TestDuplicateActionValidator(t *testing.T) {
	config := validConfig()
	config.Rules[0].Actions = append(config.Rules[0].Actions, ActionDefinition{ActionID: "a1", Type: "SCRIPT", Config: map[string]any{"expression": "2"}})
	result := DuplicateActionValidator{}.Validate(&config)
	if !hasCode(result, "DUP-001") {
		t.Fatalf("expected DUP-001, got %+v", result.Issues)
	}
}

func TestConditionalActionValidatorUnbalancedParens(t *testing.T) {
	config := validConfig()
	config.Rules[0].Actions[0].Condition = "(amount > 10"
	result := ConditionalActionValidator{}.Validate(&config)
	if !hasCode(result, "COND-001") {
		t.Fatalf("expected COND-001, got %+v", result.Issues)
	}
}

func TestConditionalActionValidatorLoneEquals(t *testing.T) {
	config := validConfig()
	config.Rules[0].Actions[0].Condition = "status = 1"
	result := ConditionalActionValidator{}.Validate(&config)
	if !hasCode(result, "COND-002") {
		t.Fatalf("expected COND-002, got %+v", result.Issues)
	}
}

func TestConditionalActionValidatorSkipsAbsentCondition(t *testing.T) {
	config := validConfig()
	config.Rules[0].Actions[0].Condition = ""
	result := ConditionalActionValidator{}.Validate(&config)
	if len(result.Issues) != 0 {
		t.Fatalf("expected no issues for an absent condition, got %+v", result.Issues)
	}
}

func TestCircularDependencyValidator(t *testing.T) {
	config := validConfig()
	config.Rules[0].Actions = []ActionDefinition{
		{ActionID: "a1", Type: "SCRIPT", Config: map[string]any{"expression": "1"}, OutputVariable: "x", OutputExpression: "y"},
		{ActionID: "a2", Type: "SCRIPT", Config: map[string]any{"expression": "1"}, OutputVariable: "y", OutputExpression: "x"},
	}
	result := CircularDependencyValidator{}.Validate(&config)
	if !hasCode(result, "CIRC-001") {
		t.Fatalf("expected CIRC-001, got %+v", result.Issues)
	}
}

// TestValidateIdempotent checks validate∘validate == validate on a cloned
// config: running the validator twice must not change its findings, since
// StructuralValidator's defaults.Set side effect is itself idempotent.
func TestValidateIdempotent(t *testing.T) {
	config := validConfig()
	first := DefaultValidator().Validate(&config)

	clone := config.Clone()
	second := DefaultValidator().Validate(&clone)

	if len(first.Issues) != len(second.Issues) {
		t.Fatalf("expected idempotent validation, got %d then %d issues", len(first.Issues), len(second.Issues))
	}
}

func TestCompositeValidatorShortCircuitsOnError(t *testing.T) {
	config := validConfig()
	config.EntryPoint = "nowhere" // passes StructuralValidator, triggers REF-003 from ReferenceValidator
	composite := NewCompositeValidator(true, StructuralValidator{}, ReferenceValidator{}, ReachabilityValidator{})
	result := composite.Validate(&config)
	if !hasCode(result, "REF-003") {
		t.Fatalf("expected REF-003, got %+v", result.Issues)
	}
	if hasCode(result, "REACH-001") {
		t.Fatal("expected short-circuit to prevent ReachabilityValidator from running")
	}
}

type panickyValidator struct{}

func (panickyValidator) Validate(config *RuleEngineConfig) ValidationResult {
	panic("boom")
}

func TestCompositeValidatorRecoversPanic(t *testing.T) {
	composite := NewCompositeValidator(false, panickyValidator{})
	config := validConfig()
	result := composite.Validate(&config)
	if !hasCode(result, "COMP-002") {
		t.Fatalf("expected a recovered panic to surface as COMP-002, got %+v", result.Issues)
	}
}
