package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/steveyegge/syncbridge/internal/ops"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Report the bridge's repository state (Ready, Uninitialized, ...)",
	RunE: func(cmd *cobra.Command, args []string) error {
		deps, err := buildDeps()
		if err != nil {
			return err
		}
		ctx, cancel := withTimeout()
		defer cancel()

		op := &ops.StatusOp{Deps: deps}
		out, err := op.Do(ctx, ops.StatusIn{})
		if err != nil {
			return err
		}

		if jsonOutput {
			printJSON(out)
			return nil
		}
		fmt.Printf("state: %s\n", out.State)
		fmt.Printf("project_root: %s\n", out.ProjectRoot)
		if out.RecommendedAction != "" {
			fmt.Printf("recommended_action: %s\n", out.RecommendedAction)
		}
		if out.Error != "" {
			fmt.Printf("error: %s\n", out.Error)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(statusCmd)
}
