package ruleflow

import (
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
)

// Severity classifies a ValidationIssue.
type Severity string

const (
	SeverityError   Severity = "ERROR"
	SeverityWarning Severity = "WARNING"
	SeverityInfo    Severity = "INFO"
)

// ValidationIssue is one finding from a Validator.
type ValidationIssue struct {
	Severity Severity
	Code     string
	Message  string
	Context  string // typically a rule id, when the issue is rule-scoped
}

// ValidationResult is a multiset of issues. A configuration is valid iff it
// contains no ERROR-severity issue.
type ValidationResult struct {
	Issues []ValidationIssue
}

// Add appends issues to the result.
func (r *ValidationResult) Add(issues ...ValidationIssue) {
	r.Issues = append(r.Issues, issues...)
}

// Merge appends another result's issues onto this one.
func (r *ValidationResult) Merge(other ValidationResult) {
	r.Issues = append(r.Issues, other.Issues...)
}

// IsValid reports whether the result contains no ERROR-severity issue.
func (r ValidationResult) IsValid() bool {
	return r.ErrorCount() == 0
}

// ErrorCount counts ERROR-severity issues.
func (r ValidationResult) ErrorCount() int {
	n := 0
	for _, i := range r.Issues {
		if i.Severity == SeverityError {
			n++
		}
	}
	return n
}

// Errors returns only ERROR-severity issues.
func (r ValidationResult) Errors() []ValidationIssue {
	return r.filter(SeverityError)
}

// Warnings returns only WARNING-severity issues.
func (r ValidationResult) Warnings() []ValidationIssue {
	return r.filter(SeverityWarning)
}

func (r ValidationResult) filter(sev Severity) []ValidationIssue {
	var out []ValidationIssue
	for _, i := range r.Issues {
		if i.Severity == sev {
			out = append(out, i)
		}
	}
	return out
}

// Validator checks a configuration and reports findings without mutating
// traversal semantics (StructuralValidator is the one exception: it applies
// defaults.Set in place, by design — see DESIGN.md).
type Validator interface {
	Validate(config *RuleEngineConfig) ValidationResult
}

var structValidate = validator.New()

// StructuralValidator is the pre-pass ahead of the semantic/graph
// validators: it fills in GlobalSettings defaults via creasty/defaults, then
// checks `validate:"..."` struct tags via go-playground/validator. Findings
// surface as COMP-001.
type StructuralValidator struct{}

func (StructuralValidator) Validate(config *RuleEngineConfig) ValidationResult {
	var result ValidationResult
	if err := defaults.Set(config); err != nil {
		result.Add(ValidationIssue{Severity: SeverityError, Code: "COMP-001", Message: fmt.Sprintf("applying configuration defaults: %v", err)})
		return result
	}
	if err := structValidate.Struct(config); err != nil {
		if verrs, ok := err.(validator.ValidationErrors); ok {
			for _, fe := range verrs {
				result.Add(ValidationIssue{
					Severity: SeverityError,
					Code:     "COMP-001",
					Message:  fmt.Sprintf("%s failed %q validation", fe.Namespace(), fe.Tag()),
				})
			}
		} else {
			result.Add(ValidationIssue{Severity: SeverityError, Code: "COMP-001", Message: err.Error()})
		}
	}
	return result
}

// ReferenceValidator requires a non-empty entry point naming an existing
// rule, at least one rule, every transition's targetRule and every
// onError.targetRule to exist, defaultErrorRule (if set) to exist, and
// warns when a non-terminal rule has no transitions.
type ReferenceValidator struct{}

func (ReferenceValidator) Validate(config *RuleEngineConfig) ValidationResult {
	var result ValidationResult

	if len(config.Rules) == 0 {
		result.Add(ValidationIssue{Severity: SeverityError, Code: "REF-001", Message: "configuration defines no rules"})
	}

	if strings.TrimSpace(config.EntryPoint) == "" {
		result.Add(ValidationIssue{Severity: SeverityError, Code: "REF-002", Message: "entryPoint is required"})
	} else if _, ok := config.RuleByID(config.EntryPoint); !ok {
		result.Add(ValidationIssue{Severity: SeverityError, Code: "REF-003", Message: fmt.Sprintf("entryPoint %q does not name an existing rule", config.EntryPoint)})
	}

	for _, rule := range config.Rules {
		if !rule.Terminal && len(rule.Transitions) == 0 {
			result.Add(ValidationIssue{Severity: SeverityWarning, Code: "REF-004", Message: fmt.Sprintf("rule %q is non-terminal and has no transitions", rule.RuleID), Context: rule.RuleID})
		}
		for _, tr := range rule.Transitions {
			if strings.TrimSpace(tr.Condition) == "" {
				result.Add(ValidationIssue{Severity: SeverityError, Code: "REF-005", Message: fmt.Sprintf("rule %q has a transition with an empty condition", rule.RuleID), Context: rule.RuleID})
			}
			if strings.TrimSpace(tr.TargetRule) == "" {
				result.Add(ValidationIssue{Severity: SeverityError, Code: "REF-006", Message: fmt.Sprintf("rule %q has a transition with an empty targetRule", rule.RuleID), Context: rule.RuleID})
			} else if _, ok := config.RuleByID(tr.TargetRule); !ok {
				result.Add(ValidationIssue{Severity: SeverityError, Code: "REF-007", Message: fmt.Sprintf("rule %q has a transition targeting unknown rule %q", rule.RuleID, tr.TargetRule), Context: rule.RuleID})
			}
		}
		for _, a := range rule.Actions {
			if a.OnError == nil {
				continue
			}
			if _, ok := config.RuleByID(a.OnError.TargetRule); !ok {
				result.Add(ValidationIssue{
					Severity: SeverityError,
					Code:     "REF-008",
					Message:  fmt.Sprintf("action %q in rule %q has onError.targetRule %q which does not exist", a.ActionID, rule.RuleID, a.OnError.TargetRule),
					Context:  rule.RuleID,
				})
			}
		}
	}

	if d := config.GlobalSettings.DefaultErrorRule; d != "" {
		if _, ok := config.RuleByID(d); !ok {
			result.Add(ValidationIssue{Severity: SeverityError, Code: "REF-009", Message: fmt.Sprintf("defaultErrorRule %q does not name an existing rule", d)})
		}
	}

	return result
}

// ReachabilityValidator BFS-walks from the entry point over transition and
// onError edges (plus a virtual entry→defaultErrorRule edge) and warns on
// any rule not reached. Unreachability is never fatal.
type ReachabilityValidator struct{}

func (ReachabilityValidator) Validate(config *RuleEngineConfig) ValidationResult {
	var result ValidationResult
	if strings.TrimSpace(config.EntryPoint) == "" {
		return result // ReferenceValidator already reports a missing entry point
	}

	adj := make(map[string][]string)
	for _, rule := range config.Rules {
		for _, tr := range rule.Transitions {
			adj[rule.RuleID] = append(adj[rule.RuleID], tr.TargetRule)
		}
		for _, a := range rule.Actions {
			if a.OnError != nil {
				adj[rule.RuleID] = append(adj[rule.RuleID], a.OnError.TargetRule)
			}
		}
	}
	if d := config.GlobalSettings.DefaultErrorRule; d != "" {
		adj[config.EntryPoint] = append(adj[config.EntryPoint], d)
	}

	reached := bfsReachable(config.EntryPoint, adj)
	for _, rule := range config.Rules {
		if !reached[rule.RuleID] {
			result.Add(ValidationIssue{Severity: SeverityWarning, Code: "REACH-001", Message: fmt.Sprintf("rule %q is not reachable from the entry point", rule.RuleID), Context: rule.RuleID})
		}
	}
	return result
}

// CycleDetector reports, as a WARNING, the cycle closed by each back-edge
// found by a DFS over the transition graph, so a graph with any directed
// cycle yields at least one report; a cycle that only reuses already-explored
// rules is not listed separately. Cycles are sometimes intentional, relying
// on guard conditions to eventually break out.
type CycleDetector struct{}

func (CycleDetector) Validate(config *RuleEngineConfig) ValidationResult {
	var result ValidationResult
	order := make([]string, 0, len(config.Rules))
	adj := make(map[string][]string)
	for _, rule := range config.Rules {
		order = append(order, rule.RuleID)
		for _, tr := range rule.Transitions {
			adj[rule.RuleID] = append(adj[rule.RuleID], tr.TargetRule)
		}
	}
	for _, cycle := range findCycles(order, adj) {
		result.Add(ValidationIssue{Severity: SeverityWarning, Code: "CYCLE-001", Message: fmt.Sprintf("cycle detected: %s", strings.Join(cycle, " -> "))})
	}
	return result
}

// DuplicateActionValidator flags a duplicate actionId within one rule.
type DuplicateActionValidator struct{}

func (DuplicateActionValidator) Validate(config *RuleEngineConfig) ValidationResult {
	var result ValidationResult
	for _, rule := range config.Rules {
		seen := make(map[string]bool)
		for _, a := range rule.Actions {
			if seen[a.ActionID] {
				result.Add(ValidationIssue{Severity: SeverityError, Code: "DUP-001", Message: fmt.Sprintf("duplicate actionId %q in rule %q", a.ActionID, rule.RuleID), Context: rule.RuleID})
				continue
			}
			seen[a.ActionID] = true
		}
	}
	return result
}

// ConditionalActionValidator looks for common authoring mistakes in action
// conditions: unbalanced parentheses (ERROR), a lone '=' that isn't part of
// ==/!=/<=/>= (WARNING, likely meant as a comparison), and && mixed with ||
// with no parentheses to disambiguate precedence (WARNING). An absent
// condition (the common case) is not evaluated at all.
type ConditionalActionValidator struct{}

func (ConditionalActionValidator) Validate(config *RuleEngineConfig) ValidationResult {
	var result ValidationResult
	for _, rule := range config.Rules {
		for _, a := range rule.Actions {
			if a.Condition == "" {
				continue
			}
			cond := a.Condition
			if !balancedParens(cond) {
				result.Add(ValidationIssue{Severity: SeverityError, Code: "COND-001", Message: fmt.Sprintf("action %q in rule %q has unbalanced parentheses in its condition", a.ActionID, rule.RuleID), Context: rule.RuleID})
			}
			if hasLoneEquals(cond) {
				result.Add(ValidationIssue{Severity: SeverityWarning, Code: "COND-002", Message: fmt.Sprintf("action %q in rule %q has a single '=' in its condition, possibly meant as '=='", a.ActionID, rule.RuleID), Context: rule.RuleID})
			}
			if hasMixedLogicalWithoutParens(cond) {
				result.Add(ValidationIssue{Severity: SeverityWarning, Code: "COND-003", Message: fmt.Sprintf("action %q in rule %q mixes && and || without parentheses", a.ActionID, rule.RuleID), Context: rule.RuleID})
			}
		}
	}
	return result
}

func balancedParens(s string) bool {
	depth := 0
	for _, c := range s {
		switch c {
		case '(':
			depth++
		case ')':
			depth--
		}
		if depth < 0 {
			return false
		}
	}
	return depth == 0
}

func hasLoneEquals(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] != '=' {
			continue
		}
		prevIsOpChar := i > 0 && strings.ContainsRune("!<>=", rune(s[i-1]))
		nextIsEquals := i+1 < len(s) && s[i+1] == '='
		if !prevIsOpChar && !nextIsEquals {
			return true
		}
	}
	return false
}

func hasMixedLogicalWithoutParens(s string) bool {
	return strings.Contains(s, "&&") && strings.Contains(s, "||") && !strings.ContainsAny(s, "()")
}

// CircularDependencyValidator builds, per rule, a variable-dependency graph
// from each action's output variable to the variables its config ${...}
// placeholders and outputExpression reference, restricted to variables that
// are themselves produced within the same rule, and reports ERROR on any
// cycle among them.
type CircularDependencyValidator struct{}

var (
	placeholderRefRe = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)`)
	identRefRe       = regexp.MustCompile(`\b[A-Za-z_][A-Za-z0-9_]*\b`)
)

func (CircularDependencyValidator) Validate(config *RuleEngineConfig) ValidationResult {
	var result ValidationResult
	for _, rule := range config.Rules {
		outputs := make(map[string]bool)
		for _, a := range rule.Actions {
			if a.OutputVariable != "" {
				outputs[a.OutputVariable] = true
			}
		}

		adj := make(map[string][]string)
		order := make([]string, 0, len(rule.Actions))
		for _, a := range rule.Actions {
			if a.OutputVariable == "" {
				continue
			}
			refs := collectVariableRefs(a)
			var deps []string
			for ref := range refs {
				if ref != a.OutputVariable && outputs[ref] {
					deps = append(deps, ref)
				}
			}
			sort.Strings(deps)
			adj[a.OutputVariable] = deps
			order = append(order, a.OutputVariable)
		}

		for _, cycle := range findCycles(order, adj) {
			result.Add(ValidationIssue{
				Severity: SeverityError,
				Code:     "CIRC-001",
				Message:  fmt.Sprintf("circular variable dependency in rule %q: %s", rule.RuleID, strings.Join(cycle, " -> ")),
				Context:  rule.RuleID,
			})
		}
	}
	return result
}

func collectVariableRefs(a ActionDefinition) map[string]bool {
	refs := make(map[string]bool)
	collectPlaceholderRefs(a.Config, refs)
	if a.OutputExpression != "" {
		for _, m := range identRefRe.FindAllString(a.OutputExpression, -1) {
			switch m {
			case "result", "util", "true", "false", "null":
				continue
			}
			refs[m] = true
		}
	}
	return refs
}

func collectPlaceholderRefs(v any, refs map[string]bool) {
	switch t := v.(type) {
	case string:
		for _, m := range placeholderRefRe.FindAllStringSubmatch(t, -1) {
			refs[m[1]] = true
		}
	case map[string]any:
		for _, vv := range t {
			collectPlaceholderRefs(vv, refs)
		}
	case []any:
		for _, vv := range t {
			collectPlaceholderRefs(vv, refs)
		}
	}
}

// CompositeValidator runs its validators in registration order, merges
// their results, and optionally stops after the first one that emits any
// ERROR. Any validator that panics is converted into a COMP-002 ERROR
// instead of propagating, per the error-handling design.
type CompositeValidator struct {
	validators          []Validator
	shortCircuitOnError bool
}

// NewCompositeValidator composes validators in the given order.
func NewCompositeValidator(shortCircuitOnError bool, validators ...Validator) *CompositeValidator {
	return &CompositeValidator{validators: validators, shortCircuitOnError: shortCircuitOnError}
}

func (c *CompositeValidator) Validate(config *RuleEngineConfig) ValidationResult {
	var result ValidationResult
	for _, v := range c.validators {
		issues := safeValidate(v, config)
		result.Merge(issues)
		if c.shortCircuitOnError && issues.ErrorCount() > 0 {
			break
		}
	}
	return result
}

func safeValidate(v Validator, config *RuleEngineConfig) (result ValidationResult) {
	defer func() {
		if r := recover(); r != nil {
			result = ValidationResult{Issues: []ValidationIssue{{
				Severity: SeverityError,
				Code:     "COMP-002",
				Message:  fmt.Sprintf("validator panicked: %v", r),
			}}}
		}
	}()
	return v.Validate(config)
}

// DefaultValidator composes the structural pre-pass with the required chain
// (ReferenceValidator, ReachabilityValidator, CycleDetector) and the
// optional chain (DuplicateActionValidator, ConditionalActionValidator,
// CircularDependencyValidator), none of them short-circuiting.
func DefaultValidator() *CompositeValidator {
	return NewCompositeValidator(false,
		StructuralValidator{},
		ReferenceValidator{},
		ReachabilityValidator{},
		CycleDetector{},
		DuplicateActionValidator{},
		ConditionalActionValidator{},
		CircularDependencyValidator{},
	)
}
