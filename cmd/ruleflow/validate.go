package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"ruleflow"
)

var validateCmd = &cobra.Command{
	Use:   "validate [config-file]",
	Short: "Validate a rule engine configuration file",
	Args:  cobra.ExactArgs(1),
	RunE:  runValidate,
}

func runValidate(_ *cobra.Command, args []string) error {
	config, err := loadConfigFile(args[0])
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	result := ruleflow.DefaultValidator().Validate(&config)
	for _, issue := range result.Issues {
		fmt.Printf("[%s] %s: %s", issue.Severity, issue.Code, issue.Message)
		if issue.Context != "" {
			fmt.Printf(" (%s)", issue.Context)
		}
		fmt.Println()
	}

	if !result.IsValid() {
		fmt.Printf("\n%d error(s), %d warning(s)\n", result.ErrorCount(), len(result.Warnings()))
		os.Exit(1)
	}
	fmt.Printf("\nconfiguration is valid (%d warning(s))\n", len(result.Warnings()))
	return nil
}

// loadConfigFile dispatches to LoadJSONFile or LoadYAMLFile based on the
// file extension.
func loadConfigFile(path string) (ruleflow.RuleEngineConfig, error) {
	if strings.HasSuffix(path, ".yaml") || strings.HasSuffix(path, ".yml") {
		return ruleflow.LoadYAMLFile(path)
	}
	return ruleflow.LoadJSONFile(path)
}
