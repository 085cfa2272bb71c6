// Package git fetches remote recon targets by shelling out to the git CLI.
package git

import (
	"context"
	"fmt"
	"os/exec"
	"path"
	"strings"
)

// IsRemote reports whether target looks like a git URL rather than a
// local path.
func IsRemote(target string) bool {
	if strings.HasPrefix(target, "http://") || strings.HasPrefix(target, "https://") {
		return true
	}
	if strings.HasPrefix(target, "git@") || strings.HasPrefix(target, "ssh://") {
		return true
	}
	return strings.HasSuffix(target, ".git") && strings.Contains(target, ":")
}

// RepoName extracts a directory-friendly name from a git URL.
func RepoName(target string) string {
	name := strings.TrimSuffix(path.Base(target), ".git")
	if idx := strings.LastIndex(name, ":"); idx >= 0 {
		name = name[idx+1:]
	}
	if name == "" || name == "." || name == "/" {
		return "target"
	}
	return name
}

// CloneShallow clones target into dest with depth 1. The working tree is
// read-only input for the pipeline, so history is never needed.
func CloneShallow(ctx context.Context, target, dest string) error {
	cmd := exec.CommandContext(ctx, "git", "clone", "--depth", "1", "--single-branch", target, dest)
	out, err := cmd.CombinedOutput()
	if err != nil {
		return fmt.Errorf("git clone %s: %w: %s", target, err, strings.TrimSpace(string(out)))
	}
	return nil
}
