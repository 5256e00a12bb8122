package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"ruleflow"
)

var (
	varsFile string
	trace    bool
)

var runCmd = &cobra.Command{
	Use:   "run [config-file]",
	Short: "Execute a rule engine configuration against a set of input variables",
	Args:  cobra.ExactArgs(1),
	RunE:  runRun,
}

func init() {
	runCmd.Flags().StringVar(&varsFile, "vars", "", "path to a JSON file of initial context variables")
	runCmd.Flags().BoolVar(&trace, "trace", false, "print the execution trace summary on completion")
}

func runRun(_ *cobra.Command, args []string) error {
	config, err := loadConfigFile(args[0])
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	executor, err := ruleflow.BuildExecutor(config, nil, ruleflow.DefaultBuildOptions())
	if err != nil {
		return fmt.Errorf("failed to build executor: %w", err)
	}

	variables, err := loadVariables(varsFile)
	if err != nil {
		return fmt.Errorf("failed to load vars: %w", err)
	}

	ctx := ruleflow.NewExecutionContext(variables)
	if trace {
		ctx = ctx.WithTrace()
	}

	result := executor.Execute(ctx)

	fmt.Printf("success: %t\n", result.Success)
	fmt.Printf("final rule: %s\n", result.FinalRuleID)
	fmt.Printf("elapsed: %dms\n", result.ElapsedMs)
	if result.ErrorMessage != "" {
		fmt.Printf("error: %s\n", result.ErrorMessage)
	}
	if trace && ctx.Trace() != nil {
		fmt.Println()
		fmt.Print(ctx.Trace().Summary())
	}
	if !result.Success {
		os.Exit(1)
	}
	return nil
}

func loadVariables(path string) (map[string]any, error) {
	if path == "" {
		return map[string]any{}, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var variables map[string]any
	if err := json.Unmarshal(data, &variables); err != nil {
		return nil, err
	}
	return variables, nil
}
