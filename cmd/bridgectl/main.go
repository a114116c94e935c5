// Command bridgectl is a direct, in-process CLI over the bridge's
// operations package — no daemon, no RPC hop, the way a thin smoke-test
// harness calls straight into the teacher's storage layer. It exists for
// local operation and scripting, not as the bridge's primary surface
// (that's the RPC/tool surface in internal/ops); every subcommand just
// constructs an ops.Deps and invokes the matching Operation.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/steveyegge/syncbridge/internal/config"
	"github.com/steveyegge/syncbridge/internal/conflict"
	"github.com/steveyegge/syncbridge/internal/deletions"
	"github.com/steveyegge/syncbridge/internal/edb"
	"github.com/steveyegge/syncbridge/internal/lock"
	"github.com/steveyegge/syncbridge/internal/manifest"
	"github.com/steveyegge/syncbridge/internal/ops"
	"github.com/steveyegge/syncbridge/internal/projectroot"
	"github.com/steveyegge/syncbridge/internal/synclog"
	"github.com/steveyegge/syncbridge/internal/syncengine"
	"github.com/steveyegge/syncbridge/internal/syncstate"
	"github.com/steveyegge/syncbridge/internal/types"
	"github.com/steveyegge/syncbridge/internal/vdb"
)

var (
	configPath string
	jsonOutput bool
)

var rootCmd = &cobra.Command{
	Use:           "bridgectl",
	Short:         "Operate the VDB/EDB sync bridge directly, without a daemon",
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "path to config.yaml (default: none, env-only)")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "output machine-readable JSON")
}

// FatalError writes an error to stderr and exits 1, matching the
// bridge's --json convention: JSON callers get a structured error object
// on stdout instead of a stderr string.
func FatalError(err error) {
	if jsonOutput {
		printJSON(map[string]string{"error": err.Error()})
	} else {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	}
	os.Exit(1)
}

func printJSON(v any) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: marshal output: %v\n", err)
		os.Exit(1)
	}
	fmt.Println(string(data))
}

// buildDeps wires one ops.Deps per invocation, anchored at the detected
// (or configured) project root. EDB here is the in-process MemStore
// stand-in documented for local smoke runs; a real deployment wires an
// external vector-store client behind the same edb.Store interface.
func buildDeps() (*ops.Deps, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	if cfg.ProjectRoot == "" && cfg.AutoDetectRoot {
		root, err := projectroot.Detect()
		if err == nil {
			cfg.ProjectRoot = root
		}
	}
	if cfg.ProjectRoot == "" {
		wd, err := os.Getwd()
		if err != nil {
			return nil, fmt.Errorf("getwd: %w", err)
		}
		cfg.ProjectRoot = wd
	}
	if cfg.VDBRepositoryPath == "" {
		cfg.VDBRepositoryPath = cfg.ProjectRoot
	}

	driver := vdb.NewCLIDriver(cfg.VDBExecutable, cfg.VDBRepositoryPath, cfg.VDBCallTimeout)
	store := edb.NewMemStore()
	ss := syncstate.New(filepath.Join(cfg.ProjectRoot, ".bridge-sync-state.jsonl"))
	dt := deletions.New(filepath.Join(cfg.ProjectRoot, ".bridge-deletion-tracker.jsonl"))
	engine := syncengine.New(driver, store, ss, dt, types.DefaultChunkerConfig)
	engine.DocumentLog = synclog.NewDocumentLog(filepath.Join(cfg.ProjectRoot, ".bridge-document-sync-log.jsonl"))
	engine.OperationLog = synclog.NewOperationLog(filepath.Join(cfg.ProjectRoot, ".bridge-sync-operations.jsonl"))

	return &ops.Deps{
		Config:   cfg,
		VDB:      driver,
		EDB:      store,
		Engine:   engine,
		Analyzer: conflict.NewAnalyzer(driver),
		Manifest: manifest.New(cfg.ManifestPath()),
		Locks:    lock.NewRegistry(),
	}, nil
}

func callTimeout() time.Duration {
	return 5 * time.Minute
}

func main() {
	shutdown := setupTelemetry()
	defer func() { _ = shutdown(context.Background()) }()

	if err := rootCmd.Execute(); err != nil {
		FatalError(err)
	}
}

func withTimeout() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), callTimeout())
}
