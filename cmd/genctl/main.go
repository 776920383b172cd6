// Package main implements genctl, the operator CLI for the generation service.
package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

var version = "1.0.0"

func main() {
	_ = godotenv.Load()

	rootCmd := &cobra.Command{
		Use:           "genctl",
		Short:         "Generation service CLI",
		Long:          `genctl manages provider credentials and runs one-off generations against the configured providers.`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.AddCommand(keyCmd())
	rootCmd.AddCommand(providersCmd())
	rootCmd.AddCommand(generateCmd())
	rootCmd.AddCommand(quotaCmd())
	rootCmd.AddCommand(tokenCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
