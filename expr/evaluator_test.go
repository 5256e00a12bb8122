package expr

import "testing"

func mustEval(t *testing.T, e *Evaluator, src string, vars map[string]any) any {
	t.Helper()
	v, err := e.Evaluate(src, vars)
	if err != nil {
		t.Fatalf("evaluate %q: %v", src, err)
	}
	return v
}

func TestArithmeticAndComparison(t *testing.T) {
	e := NewEvaluator()
	vars := map[string]any{"amount": 150.0}

	if v := mustEval(t, e, "amount*0.9", vars); v != 135.0 {
		t.Fatalf("amount*0.9 = %v, want 135.0", v)
	}
	if v := mustEval(t, e, "amount>100", vars); v != true {
		t.Fatalf("amount>100 = %v, want true", v)
	}
	if v := mustEval(t, e, "!(amount>100)", vars); v != false {
		t.Fatalf("!(amount>100) = %v, want false", v)
	}
}

func TestTernaryAndMissingVariable(t *testing.T) {
	e := NewEvaluator()

	v := mustEval(t, e, "discountedAmount!=null?discountedAmount:amount", map[string]any{"amount": 50.0})
	if v != 50.0 {
		t.Fatalf("got %v, want 50.0", v)
	}

	v2 := mustEval(t, e, "discountedAmount!=null?discountedAmount:amount", map[string]any{
		"amount": 150.0, "discountedAmount": 135.0,
	})
	if v2 != 135.0 {
		t.Fatalf("got %v, want 135.0", v2)
	}
}

func TestStringConcat(t *testing.T) {
	e := NewEvaluator()
	v := mustEval(t, e, `"id-" + 5`, nil)
	if v != "id-5" {
		t.Fatalf("got %q, want %q", v, "id-5")
	}
}

func TestMemberAndIndexAccess(t *testing.T) {
	e := NewEvaluator()
	vars := map[string]any{
		"result": map[string]any{
			"data": map[string]any{
				"user": map[string]any{"id": "U1"},
			},
		},
		"items": []any{"a", "b", "c"},
	}
	if v := mustEval(t, e, "result.data.user.id", vars); v != "U1" {
		t.Fatalf("got %v, want U1", v)
	}
	if v := mustEval(t, e, "items[1]", vars); v != "b" {
		t.Fatalf("got %v, want b", v)
	}
}

func TestUtilRoundTo(t *testing.T) {
	e := NewEvaluator()
	v := mustEval(t, e, "util.roundTo((50)*1.1, 2)", nil)
	if v != 55.0 {
		t.Fatalf("got %v, want 55.0", v)
	}
	// idempotency
	v2 := mustEval(t, e, "util.roundTo(55.0, 2)", nil)
	if v2 != v {
		t.Fatalf("roundTo not idempotent: %v != %v", v, v2)
	}
}

func TestScriptAssignmentAndForLoop(t *testing.T) {
	e := NewEvaluator()
	vars := map[string]any{"items": []any{1.0, 2.0, 3.0}}
	v := mustEval(t, e, "total = 0; for (n : items) { total = total + n }; total", vars)
	if v != 6.0 {
		t.Fatalf("got %v, want 6.0", v)
	}
}

func TestEvaluateBooleanCoercion(t *testing.T) {
	e := NewEvaluator()
	cases := []struct {
		src  string
		want bool
	}{
		{"null", false},
		{"0", false},
		{"1", true},
		{`""`, false},
		{`"false"`, false},
		{`"FALSE"`, false},
		{`"anything"`, true},
	}
	for _, c := range cases {
		got, err := e.EvaluateBoolean(c.src, nil)
		if err != nil {
			t.Fatalf("evaluateBoolean(%q): %v", c.src, err)
		}
		if got != c.want {
			t.Fatalf("evaluateBoolean(%q) = %v, want %v", c.src, got, c.want)
		}
	}
}

func TestIsValid(t *testing.T) {
	e := NewEvaluator()
	if !e.IsValid("a.b.c") {
		t.Fatal("expected valid")
	}
	if e.IsValid("a.b.(") {
		t.Fatal("expected invalid")
	}
}

func TestIsScriptDetection(t *testing.T) {
	if isScript("a+b") {
		t.Fatal("simple expression should not be treated as a script")
	}
	if !isScript("a=1; a") {
		t.Fatal("semicolon-separated statements should be treated as a script")
	}
	if !isScript("for (x : xs) { x }") {
		t.Fatal("for loop should be treated as a script")
	}
}

func TestJSONRoundTrip(t *testing.T) {
	ns := newUtilNamespace()
	encoded, err := ns.call("toJson", []any{map[string]any{"a": 1.0, "b": []any{"x", "y"}}})
	if err != nil {
		t.Fatalf("toJson: %v", err)
	}
	decoded, err := ns.call("fromJson", []any{encoded})
	if err != nil {
		t.Fatalf("fromJson: %v", err)
	}
	m, ok := decoded.(map[string]any)
	if !ok {
		t.Fatalf("decoded value is %T, want map[string]any", decoded)
	}
	if m["a"] != 1.0 {
		t.Fatalf("round-tripped a = %v, want 1.0", m["a"])
	}
}

func TestNestedAssignmentDoesNotMutateCallerVariables(t *testing.T) {
	e := NewEvaluator()
	payload := map[string]any{"user": map[string]any{"id": "original"}}
	vars := map[string]any{
		"payload": payload,
		"items":   []any{map[string]any{"n": 1.0}},
	}

	if _, err := e.Evaluate(`payload.user.id = "mutated"; payload.user.id`, vars); err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	if got := payload["user"].(map[string]any)["id"]; got != "original" {
		t.Fatalf("script mutated the caller's map: user.id = %v, want \"original\"", got)
	}

	if _, err := e.Evaluate(`items[0].n = 99`, vars); err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	list := vars["items"].([]any)
	if got := list[0].(map[string]any)["n"]; got != 1.0 {
		t.Fatalf("script mutated the caller's slice: items[0].n = %v, want 1.0", got)
	}
}

func TestSumItems(t *testing.T) {
	e := NewEvaluator()
	vars := map[string]any{
		"cart": []any{
			map[string]any{"price": 10.0, "quantity": 2.0},
			map[string]any{"price": 5.0, "quantity": 1.0},
			map[string]any{"price": 3.0}, // missing quantity, skipped
		},
	}
	v := mustEval(t, e, "util.sumItems(cart)", vars)
	if v != 25.0 {
		t.Fatalf("got %v, want 25.0", v)
	}
}
