package main

import (
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "ruleflow",
	Short: "ruleflow - declarative rule workflow engine",
	Long: `ruleflow loads a JSON or YAML rule engine configuration, validates it,
and executes it against a set of input variables.`,
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.AddCommand(validateCmd)
	rootCmd.AddCommand(runCmd)
}
