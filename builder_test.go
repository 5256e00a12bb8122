package ruleflow

import "testing"

func TestBuildExecutorRejectsInvalidConfig(t *testing.T) {
	config := RuleEngineConfig{} // no entry point, no rules
	_, err := BuildExecutor(config, nil, DefaultBuildOptions())
	if err == nil {
		t.Fatal("expected an error building an executor from an invalid config")
	}
	buildErr, ok := err.(*BuildError)
	if !ok {
		t.Fatalf("expected *BuildError, got %T", err)
	}
	if buildErr.Result.IsValid() {
		t.Fatal("expected a non-empty validation result on the BuildError")
	}
}

func TestBuildExecutorSucceeds(t *testing.T) {
	config := validConfig()
	executor, err := BuildExecutor(config, nil, DefaultBuildOptions())
	if err != nil {
		t.Fatalf("BuildExecutor: %v", err)
	}
	if executor.maxDepth != 50 {
		t.Fatalf("expected default maxExecutionDepth 50, got %d", executor.maxDepth)
	}
	if executor.timeoutMs != 30000 {
		t.Fatalf("expected default timeoutMs 30000, got %d", executor.timeoutMs)
	}
}

func TestBuildExecutorSkipValidation(t *testing.T) {
	config := validConfig()
	options := BuildOptions{ValidateOnStartup: false, IncludeBuiltInActions: true}
	executor, err := BuildExecutor(config, nil, options)
	if err != nil {
		t.Fatalf("BuildExecutor: %v", err)
	}
	if executor.maxDepth != 50 {
		t.Fatalf("expected defaults.Set to still fill maxExecutionDepth, got %d", executor.maxDepth)
	}
}

func TestBuildExecutorWithoutBuiltInActionsRejectsScript(t *testing.T) {
	config := validConfig()
	options := BuildOptions{ValidateOnStartup: true, IncludeBuiltInActions: false}
	executor, err := BuildExecutor(config, nil, options)
	if err != nil {
		t.Fatalf("BuildExecutor: %v", err)
	}
	if _, err := executor.registry.CreateAction(ActionDefinition{ActionID: "a1", Type: "SCRIPT"}); err == nil {
		t.Fatal("expected CreateAction to fail when the built-in SCRIPT provider was excluded")
	}
}
