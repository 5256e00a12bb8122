package ruleflow

import (
	"testing"

	"ruleflow/expr"
)

func TestActionRegistryDispatchOrder(t *testing.T) {
	reg := NewActionRegistry()
	reg.Register(&fakeProvider{name: "low", priority: 0, typeTag: "FAKE"})
	reg.Register(&fakeProvider{name: "high", priority: 10, typeTag: "FAKE"})
	reg.Register(&fakeProvider{name: "mid", priority: 5, typeTag: "FAKE"})

	a, err := reg.CreateAction(ActionDefinition{ActionID: "a1", Type: "FAKE"})
	if err != nil {
		t.Fatalf("CreateAction: %v", err)
	}
	fa, ok := a.(*fakeAction)
	if !ok {
		t.Fatalf("expected *fakeAction, got %T", a)
	}
	if fa.provider != "high" {
		t.Fatalf("expected highest-priority provider to win, got %q", fa.provider)
	}
}

func TestActionRegistryNoProvider(t *testing.T) {
	reg := NewActionRegistry()
	_, err := reg.CreateAction(ActionDefinition{ActionID: "a1", Type: "NOPE"})
	if err == nil {
		t.Fatal("expected an error when no provider supports the action type")
	}
	var creationErr *ActionCreationError
	if ce, ok := err.(*ActionCreationError); !ok {
		t.Fatalf("expected *ActionCreationError, got %T", err)
	} else {
		creationErr = ce
	}
	if creationErr.ActionID != "a1" {
		t.Fatalf("expected ActionID a1, got %q", creationErr.ActionID)
	}
}

func TestScriptActionProviderSupportsCaseInsensitive(t *testing.T) {
	p := NewScriptActionProvider(expr.NewEvaluator())
	for _, tag := range []string{"SCRIPT", "script", "Script"} {
		if !p.Supports(tag) {
			t.Errorf("expected Supports(%q) to be true", tag)
		}
	}
	if p.Supports("HTTP") {
		t.Error("expected Supports(\"HTTP\") to be false")
	}
}

func TestScriptActionExecute(t *testing.T) {
	p := NewScriptActionProvider(expr.NewEvaluator())
	action, err := p.CreateAction(ActionDefinition{
		ActionID: "compute",
		Type:     "SCRIPT",
		Config:   map[string]any{"expression": "amount * 2"},
	})
	if err != nil {
		t.Fatalf("CreateAction: %v", err)
	}

	ctx := NewExecutionContext(map[string]any{"amount": 21.0})
	result, err := action.Execute(ctx)
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if result.Payload != 42.0 {
		t.Fatalf("expected 42.0, got %v", result.Payload)
	}
}

func TestScriptActionProviderRejectsMissingExpression(t *testing.T) {
	p := NewScriptActionProvider(expr.NewEvaluator())
	if _, err := p.CreateAction(ActionDefinition{ActionID: "a1", Type: "SCRIPT", Config: map[string]any{}}); err == nil {
		t.Fatal("expected an error for a SCRIPT action missing config.expression")
	}
}

// fakeProvider/fakeAction let the dispatch-order test avoid depending on the
// expression engine.
type fakeProvider struct {
	name     string
	priority int
	typeTag  string
}

func (p *fakeProvider) Supports(typeTag string) bool { return typeTag == p.typeTag }
func (p *fakeProvider) Priority() int                { return p.priority }
func (p *fakeProvider) ProviderName() string         { return p.name }
func (p *fakeProvider) CreateAction(def ActionDefinition) (Action, error) {
	return &fakeAction{actionID: def.ActionID, provider: p.name}, nil
}

type fakeAction struct {
	actionID string
	provider string
}

func (a *fakeAction) Type() string     { return "FAKE" }
func (a *fakeAction) ActionID() string { return a.actionID }
func (a *fakeAction) Execute(ctx *ExecutionContext) (ActionResult, error) {
	return ActionSuccess(a.provider), nil
}
