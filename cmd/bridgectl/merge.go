package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/steveyegge/syncbridge/internal/merge"
	"github.com/steveyegge/syncbridge/internal/ops"
)

var (
	mergeSource string
	mergeTarget string
	mergeForce  bool
)

var previewMergeCmd = &cobra.Command{
	Use:   "preview-merge",
	Short: "Preview merging source into target without committing",
	RunE: func(cmd *cobra.Command, args []string) error {
		deps, err := buildDeps()
		if err != nil {
			return err
		}
		ctx, cancel := withTimeout()
		defer cancel()

		op := &ops.PreviewMergeOp{Deps: deps}
		out, err := op.Do(ctx, ops.PreviewMergeIn{Source: mergeSource, Target: mergeTarget, Force: mergeForce})
		if err != nil {
			return err
		}

		if jsonOutput {
			printJSON(out)
			return nil
		}
		printPreview(out)
		return nil
	},
}

func printPreview(out *merge.PreviewResult) {
	fmt.Printf("source=%s target=%s can_auto_merge=%v\n", out.Source, out.Target, out.CanAutoMerge)
	fmt.Printf("added=%d modified=%d deleted=%d\n", out.AddedCount, out.ModifiedCount, out.DeletedCount)
	for _, c := range out.Conflicts {
		fmt.Printf("conflict: id=%s collection=%s doc_id=%s suggested=%s\n", c.ConflictID, c.Collection, c.DocID, c.SuggestedResolution)
	}
}

var executeMergeCmd = &cobra.Command{
	Use:   "execute-merge",
	Short: "Execute a previously previewed merge, auto-resolving remaining conflicts",
	RunE: func(cmd *cobra.Command, args []string) error {
		deps, err := buildDeps()
		if err != nil {
			return err
		}
		ctx, cancel := withTimeout()
		defer cancel()

		previewOp := &ops.PreviewMergeOp{Deps: deps}
		preview, err := previewOp.Do(ctx, ops.PreviewMergeIn{Source: mergeSource, Target: mergeTarget, Force: mergeForce})
		if err != nil {
			return fmt.Errorf("preview: %w", err)
		}

		execOp := &ops.ExecuteMergeOp{Deps: deps}
		out, err := execOp.Do(ctx, ops.ExecuteMergeIn{
			Preview:              preview,
			AutoResolveRemaining: true,
			Force:                mergeForce,
		})
		if err != nil {
			return err
		}

		if jsonOutput {
			printJSON(out)
			return nil
		}
		fmt.Printf("committed=%v commit=%s unresolved=%d\n", out.Committed, out.CommitHash, out.UnresolvedCount)
		for _, r := range out.SyncedCollections {
			fmt.Printf("synced: %s added=%d modified=%d deleted=%d\n", r.Collection, r.Added, r.Modified, r.Deleted)
		}
		return nil
	},
}

func init() {
	for _, c := range []*cobra.Command{previewMergeCmd, executeMergeCmd} {
		c.Flags().StringVar(&mergeSource, "source", "", "source branch")
		c.Flags().StringVar(&mergeTarget, "target", "", "target branch (default: current branch)")
		c.Flags().BoolVar(&mergeForce, "force", false, "preview/execute even with a dirty working tree")
	}
	previewMergeCmd.MarkFlagRequired("source")
	executeMergeCmd.MarkFlagRequired("source")
	rootCmd.AddCommand(previewMergeCmd, executeMergeCmd)
}
