package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"genjobs/internal/admission"
)

func quotaCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "quota",
		Short: "Inspect and reset admission quotas",
	}
	cmd.AddCommand(quotaResetCmd())
	return cmd
}

func quotaResetCmd() *cobra.Command {
	var caller, class string

	cmd := &cobra.Command{
		Use:   "reset",
		Short: "Clear a caller's current admission window (requires REDIS_URL)",
		Long: `Clear a caller's current admission window in the shared Redis gate.

Examples:
  genctl quota reset --caller user-123
  genctl quota reset --caller user-123 --class deployment`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if caller == "" {
				return fmt.Errorf("--caller is required")
			}
			c := admission.Class(class)
			if c != admission.ClassAIGeneration && c != admission.ClassDeployment {
				return fmt.Errorf("unsupported class %q (aiGeneration or deployment)", class)
			}
			services, err := loadServices(cmd.Context(), "quota-reset")
			if err != nil {
				return err
			}
			defer services.Close()

			gate, ok := services.Gate.(*admission.RedisGate)
			if !ok {
				return fmt.Errorf("quota reset needs the shared gate; set REDIS_URL")
			}
			if err := gate.Reset(cmd.Context(), caller, c); err != nil {
				return fmt.Errorf("reset %s for %s: %w", c, caller, err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s window cleared for %s\n", c, caller)
			return nil
		},
	}
	cmd.Flags().StringVar(&caller, "caller", "", "caller id (token subject)")
	cmd.Flags().StringVar(&class, "class", string(admission.ClassAIGeneration), "quota class")
	return cmd
}
