package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/steveyegge/syncbridge/internal/ops"
)

var (
	resetTarget  string
	resetConfirm bool
)

var resetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Hard-reset the current branch to target and reconcile the EDB",
	RunE: func(cmd *cobra.Command, args []string) error {
		deps, err := buildDeps()
		if err != nil {
			return err
		}
		ctx, cancel := withTimeout()
		defer cancel()

		op := &ops.ResetOp{Deps: deps}
		out, err := op.Do(ctx, ops.ResetIn{Target: resetTarget, ConfirmDiscard: resetConfirm})
		if err != nil {
			return err
		}

		if jsonOutput {
			printJSON(out)
			return nil
		}
		fmt.Printf("new_head=%s\n", out.NewHead)
		for _, r := range out.SyncedCollections {
			fmt.Printf("synced: %s added=%d modified=%d deleted=%d\n", r.Collection, r.Added, r.Modified, r.Deleted)
		}
		return nil
	},
}

func init() {
	resetCmd.Flags().StringVar(&resetTarget, "target", "HEAD", "commit or ref to reset to")
	resetCmd.Flags().BoolVar(&resetConfirm, "confirm-discard", false, "confirm discarding local changes")
	rootCmd.AddCommand(resetCmd)
}
