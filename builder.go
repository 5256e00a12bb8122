package ruleflow

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/creasty/defaults"

	"ruleflow/expr"
)

// BuildOptions controls BuildExecutor's startup behavior.
type BuildOptions struct {
	// ValidateOnStartup runs DefaultValidator over the configuration and
	// refuses to build an Executor if any ERROR-severity issue is found.
	ValidateOnStartup bool
	// IncludeBuiltInActions registers the built-in SCRIPT action provider.
	IncludeBuiltInActions bool
	// Logger receives traversal and action-lifecycle log lines. Defaults to
	// slog.Default() when nil.
	Logger *slog.Logger
}

// DefaultBuildOptions validates on startup and includes the SCRIPT provider,
// matching the behavior a caller gets by doing nothing special.
func DefaultBuildOptions() BuildOptions {
	return BuildOptions{ValidateOnStartup: true, IncludeBuiltInActions: true}
}

// BuildExecutor assembles an Executor from a configuration and a set of
// caller-supplied action providers, per §6. Validation failures and a
// missing entry point are both reported as *BuildError.
func BuildExecutor(config RuleEngineConfig, providers []ActionProvider, options BuildOptions) (*Executor, error) {
	if options.ValidateOnStartup {
		result := DefaultValidator().Validate(&config)
		if !result.IsValid() {
			return nil, &BuildError{Result: result}
		}
	} else if err := defaults.Set(&config); err != nil {
		return nil, &BuildError{Cause: fmt.Errorf("applying defaults: %w", err)}
	}

	if strings.TrimSpace(config.EntryPoint) == "" {
		return nil, &BuildError{Cause: fmt.Errorf("entryPoint is required")}
	}
	if _, ok := config.RuleByID(config.EntryPoint); !ok {
		return nil, &BuildError{Cause: fmt.Errorf("entryPoint %q does not name a configured rule", config.EntryPoint)}
	}

	evaluator := expr.NewEvaluator()

	registry := NewActionRegistry()
	if options.IncludeBuiltInActions {
		registry.Register(NewScriptActionProvider(evaluator))
	}
	for _, p := range providers {
		registry.Register(p)
	}

	logger := options.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Executor{
		config:           config,
		registry:         registry,
		evaluator:        evaluator,
		maxDepth:         config.GlobalSettings.MaxExecutionDepth,
		timeoutMs:        config.GlobalSettings.TimeoutMs,
		defaultErrorRule: config.GlobalSettings.DefaultErrorRule,
		logger:           logger,
	}, nil
}
