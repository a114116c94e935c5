// Package projectroot detects the root of the enclosing source-control
// checkout so the manifest and sidecar state can be anchored there when
// PROJECT_ROOT is not set explicitly. Detection itself is an external
// collaborator per the bridge's scope (source-control integration is
// interface-only); this package only shells out to the already-installed
// `git` binary, the way the teacher locates its own repo root.
package projectroot

import (
	"fmt"
	"os/exec"
	"path/filepath"
	"strings"
)

// Detect returns the repository root for the directory the process is
// running in, worktree-aware. Returns an error if cwd is not inside a git
// checkout at all — callers fall back to the process's working directory.
func Detect() (string, error) {
	if IsWorktree() {
		return mainRepoRoot()
	}
	gitDir, err := gitDir()
	if err != nil {
		return "", err
	}
	return filepath.Dir(gitDir), nil
}

func gitDir() (string, error) {
	cmd := exec.Command("git", "rev-parse", "--git-dir")
	output, err := cmd.Output()
	if err != nil {
		return "", fmt.Errorf("not a git repository: %w", err)
	}
	return strings.TrimSpace(string(output)), nil
}

// IsWorktree reports whether cwd is a linked worktree rather than the main
// checkout, by comparing --git-dir and --git-common-dir.
func IsWorktree() bool {
	gitDir := noErr("--git-dir")
	if gitDir == "" {
		return false
	}
	commonDir := noErr("--git-common-dir")
	if commonDir == "" {
		return false
	}
	absGit, err1 := filepath.Abs(gitDir)
	absCommon, err2 := filepath.Abs(commonDir)
	if err1 != nil || err2 != nil {
		return false
	}
	return absGit != absCommon
}

func mainRepoRoot() (string, error) {
	commonDir := noErr("--git-common-dir")
	if commonDir == "" {
		return "", fmt.Errorf("unable to determine main repository root")
	}
	abs, err := filepath.Abs(commonDir)
	if err != nil {
		return "", fmt.Errorf("unable to determine main repository root: %w", err)
	}
	return filepath.Dir(abs), nil
}

func noErr(flag string) string {
	out, err := exec.Command("git", "rev-parse", flag).Output()
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(out))
}
