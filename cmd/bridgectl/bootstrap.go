package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/steveyegge/syncbridge/internal/ops"
)

var (
	bootstrapVDB      bool
	bootstrapEDB      bool
	syncToManifest    bool
	createWorkBranch  bool
	workBranchName    string
)

var bootstrapCmd = &cobra.Command{
	Use:   "bootstrap",
	Short: "Initialize the bridge manifest and, optionally, run the first full sync",
	RunE: func(cmd *cobra.Command, args []string) error {
		deps, err := buildDeps()
		if err != nil {
			return err
		}
		ctx, cancel := withTimeout()
		defer cancel()

		op := &ops.BootstrapOp{Deps: deps}
		out, err := op.Do(ctx, ops.BootstrapOptions{
			BootstrapVDB:         bootstrapVDB,
			BootstrapEDB:         bootstrapEDB,
			SyncToManifestCommit: syncToManifest,
			CreateWorkBranch:     createWorkBranch,
			WorkBranchName:       workBranchName,
		})
		if err != nil {
			return err
		}

		if jsonOutput {
			printJSON(out)
			return nil
		}
		fmt.Printf("manifest_written: %v\n", out.ManifestWritten)
		for _, r := range out.SyncedCollections {
			fmt.Printf("synced: %s added=%d modified=%d deleted=%d\n", r.Collection, r.Added, r.Modified, r.Deleted)
		}
		return nil
	},
}

func init() {
	bootstrapCmd.Flags().BoolVar(&bootstrapVDB, "bootstrap-vdb", false, "accepted but not acted on: this command does not provision the VDB")
	bootstrapCmd.Flags().BoolVar(&bootstrapEDB, "bootstrap-edb", false, "run the initial full sync into the EDB")
	bootstrapCmd.Flags().BoolVar(&syncToManifest, "sync-to-manifest-commit", false, "rewrite the manifest to the VDB's current head even if one exists")
	bootstrapCmd.Flags().BoolVar(&createWorkBranch, "create-work-branch", false, "create a dedicated VDB work branch")
	bootstrapCmd.Flags().StringVar(&workBranchName, "work-branch-name", "", "name for the work branch (with --create-work-branch)")
	rootCmd.AddCommand(bootstrapCmd)
}
