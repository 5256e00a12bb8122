package ruleflow

// RuleEngineConfig is the parsed, in-memory form of a rule engine configuration
// document. It carries no behavior of its own — validators check it,
// BuildExecutor assembles an Executor from it.
type RuleEngineConfig struct {
	Version        string           `json:"version" yaml:"version"`
	EntryPoint     string           `json:"entryPoint" yaml:"entryPoint" validate:"required"`
	GlobalSettings GlobalSettings   `json:"globalSettings" yaml:"globalSettings"`
	Rules          []RuleDefinition `json:"rules" yaml:"rules" validate:"required,min=1,dive"`
}

// RuleByID returns the rule with the given id, or ok=false if none matches.
func (c *RuleEngineConfig) RuleByID(id string) (RuleDefinition, bool) {
	for _, r := range c.Rules {
		if r.RuleID == id {
			return r, true
		}
	}
	return RuleDefinition{}, false
}

// Clone returns a deep copy so validators (or repeated validation passes)
// never mutate the canonical configuration a caller holds onto.
func (c *RuleEngineConfig) Clone() RuleEngineConfig {
	clone := RuleEngineConfig{
		Version:        c.Version,
		EntryPoint:     c.EntryPoint,
		GlobalSettings: c.GlobalSettings,
		Rules:          make([]RuleDefinition, len(c.Rules)),
	}
	for i, r := range c.Rules {
		clone.Rules[i] = r.clone()
	}
	return clone
}

// GlobalSettings holds engine-wide limits. Defaults are applied via
// github.com/creasty/defaults before structural validation runs.
type GlobalSettings struct {
	MaxExecutionDepth int    `json:"maxExecutionDepth" yaml:"maxExecutionDepth" default:"50" validate:"gt=0"`
	// TimeoutMs is named after its unit for clarity in Go; the wire format
	// (spec's configuration documents) spells it "timeout", so the loader's
	// mapstructure decode carries an explicit alias.
	TimeoutMs        int64  `json:"timeoutMs" yaml:"timeoutMs" mapstructure:"timeout" default:"30000" validate:"gt=0"`
	DefaultErrorRule string `json:"defaultErrorRule" yaml:"defaultErrorRule"`
}

// RuleDefinition is a single named node in the rule graph.
type RuleDefinition struct {
	RuleID      string               `json:"ruleId" yaml:"ruleId" validate:"required"`
	Description string               `json:"description" yaml:"description"`
	Actions     []ActionDefinition   `json:"actions" yaml:"actions" validate:"dive"`
	Transitions []TransitionDefinition `json:"transitions" yaml:"transitions" validate:"dive"`
	Terminal    bool                 `json:"terminal" yaml:"terminal"`
}

func (r RuleDefinition) clone() RuleDefinition {
	clone := RuleDefinition{
		RuleID:      r.RuleID,
		Description: r.Description,
		Terminal:    r.Terminal,
		Actions:     make([]ActionDefinition, len(r.Actions)),
		Transitions: make([]TransitionDefinition, len(r.Transitions)),
	}
	for i, a := range r.Actions {
		clone.Actions[i] = a.clone()
	}
	for i, t := range r.Transitions {
		if t.ContextTransform != nil {
			ct := make(map[string]string, len(t.ContextTransform))
			for k, v := range t.ContextTransform {
				ct[k] = v
			}
			t.ContextTransform = ct
		}
		clone.Transitions[i] = t
	}
	return clone
}

// ActionByID returns the action with the given id within this rule.
func (r RuleDefinition) ActionByID(id string) (ActionDefinition, bool) {
	for _, a := range r.Actions {
		if a.ActionID == id {
			return a, true
		}
	}
	return ActionDefinition{}, false
}

// ErrorTarget describes where to route execution after an action fails.
type ErrorTarget struct {
	TargetRule string `json:"targetRule" yaml:"targetRule"`
}

// ActionDefinition is a single unit of work inside a rule.
type ActionDefinition struct {
	ActionID         string         `json:"actionId" yaml:"actionId" validate:"required"`
	Type             string         `json:"type" yaml:"type" validate:"required"`
	Config           map[string]any `json:"config" yaml:"config"`
	Condition        string         `json:"condition,omitempty" yaml:"condition,omitempty"`
	OutputVariable   string         `json:"outputVariable,omitempty" yaml:"outputVariable,omitempty"`
	OutputExpression string         `json:"outputExpression,omitempty" yaml:"outputExpression,omitempty"`
	ContinueOnError  bool           `json:"continueOnError,omitempty" yaml:"continueOnError,omitempty"`
	OnError          *ErrorTarget   `json:"onError,omitempty" yaml:"onError,omitempty"`
}

func (a ActionDefinition) clone() ActionDefinition {
	clone := a
	if a.Config != nil {
		clone.Config = deepCloneMap(a.Config)
	}
	if a.OnError != nil {
		target := *a.OnError
		clone.OnError = &target
	}
	return clone
}

func deepCloneMap(m map[string]any) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = deepCloneValue(v)
	}
	return out
}

func deepCloneValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		return deepCloneMap(t)
	case []any:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = deepCloneValue(e)
		}
		return out
	default:
		return v
	}
}

// TransitionDefinition is a guarded, directed edge to another rule.
type TransitionDefinition struct {
	Condition        string            `json:"condition" yaml:"condition" validate:"required"`
	TargetRule       string            `json:"targetRule" yaml:"targetRule" validate:"required"`
	Priority         int               `json:"priority,omitempty" yaml:"priority,omitempty"`
	ContextTransform map[string]string `json:"contextTransform,omitempty" yaml:"contextTransform,omitempty"`
	Terminal         bool              `json:"terminal,omitempty" yaml:"terminal,omitempty"`
}
