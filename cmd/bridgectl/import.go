package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/steveyegge/syncbridge/internal/importer"
	"github.com/steveyegge/syncbridge/internal/ops"
)

var (
	importSourcePattern string
	importTarget        string
	importDefaultStrat  string
)

func importFilter() []importer.SourceMapping {
	return []importer.SourceMapping{{SourcePattern: importSourcePattern, TargetCollection: importTarget}}
}

var previewImportCmd = &cobra.Command{
	Use:   "preview-import",
	Short: "Plan importing a source collection (or wildcard pattern) into a target collection",
	RunE: func(cmd *cobra.Command, args []string) error {
		deps, err := buildDeps()
		if err != nil {
			return err
		}
		ctx, cancel := withTimeout()
		defer cancel()

		op := &ops.PreviewImportOp{Deps: deps}
		plan, err := op.Do(ctx, ops.PreviewImportIn{Filter: importFilter()})
		if err != nil {
			return err
		}

		if jsonOutput {
			printJSON(plan)
			return nil
		}
		fmt.Printf("can_auto_import=%v added=%d modified=%d\n", plan.CanAutoImport, plan.AddedCount, plan.ModifiedCount)
		for _, c := range plan.Conflicts {
			fmt.Printf("conflict: id=%s doc_id=%s sources=%v suggested=%s\n", c.ConflictID, c.DocID, c.SourceCollections, c.SuggestedResolution)
		}
		return nil
	},
}

var executeImportCmd = &cobra.Command{
	Use:   "execute-import",
	Short: "Execute a previously planned import, applying the default resolution to any collisions",
	RunE: func(cmd *cobra.Command, args []string) error {
		deps, err := buildDeps()
		if err != nil {
			return err
		}
		ctx, cancel := withTimeout()
		defer cancel()

		filter := importFilter()
		previewOp := &ops.PreviewImportOp{Deps: deps}
		plan, err := previewOp.Do(ctx, ops.PreviewImportIn{Filter: filter})
		if err != nil {
			return fmt.Errorf("preview: %w", err)
		}

		execOp := &ops.ExecuteImportOp{Deps: deps}
		result, err := execOp.Do(ctx, ops.ExecuteImportIn{
			Filter:          filter,
			Plan:            plan,
			DefaultStrategy: importer.ParseResolution(importDefaultStrat),
		})
		if err != nil {
			return err
		}

		if jsonOutput {
			printJSON(result)
			return nil
		}
		fmt.Printf("written=%d skipped=%d namespaced=%d\n", result.Written, result.Skipped, result.Namespaced)
		return nil
	},
}

func init() {
	for _, c := range []*cobra.Command{previewImportCmd, executeImportCmd} {
		c.Flags().StringVar(&importSourcePattern, "source", "", "source collection name or wildcard pattern")
		c.Flags().StringVar(&importTarget, "target", "", "target collection name")
		c.MarkFlagRequired("source")
		c.MarkFlagRequired("target")
	}
	executeImportCmd.Flags().StringVar(&importDefaultStrat, "default-resolution", "namespace", "resolution applied to id collisions not explicitly overridden")
	rootCmd.AddCommand(previewImportCmd, executeImportCmd)
}
