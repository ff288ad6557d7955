// Package vcs pushes run artifacts to a git remote. Pushing is
// best-effort: the pipeline logs failures and keeps going.
package vcs

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"
)

// Pusher records the given paths in version control.
type Pusher interface {
	Push(ctx context.Context, paths []string, message string) error
}

// Git implements Pusher by executing the git binary in Dir.
type Git struct {
	// Dir is the working tree root. Empty means the process cwd.
	Dir string
	// Remote and Branch default to origin and the current branch.
	Remote string
	Branch string
}

// NewGit returns a Pusher operating on the repository at dir.
func NewGit(dir string) *Git {
	return &Git{Dir: dir}
}

// Push stages paths, commits, and pushes. An empty commit (nothing
// changed since the last run) is treated as success.
func (g *Git) Push(ctx context.Context, paths []string, message string) error {
	if len(paths) == 0 {
		return fmt.Errorf("no paths to push")
	}
	if strings.TrimSpace(message) == "" {
		message = "update"
	}

	if out, err := g.run(ctx, append([]string{"add", "--"}, paths...)...); err != nil {
		return fmt.Errorf("git add: %w: %s", err, out)
	}

	if out, err := g.run(ctx, "commit", "-m", message); err != nil {
		if strings.Contains(out, "nothing to commit") {
			return nil
		}
		return fmt.Errorf("git commit: %w: %s", err, out)
	}

	pushArgs := []string{"push"}
	if g.Remote != "" {
		pushArgs = append(pushArgs, g.Remote)
		if g.Branch != "" {
			pushArgs = append(pushArgs, g.Branch)
		}
	}
	if out, err := g.run(ctx, pushArgs...); err != nil {
		return fmt.Errorf("git push: %w: %s", err, out)
	}
	return nil
}

func (g *Git) run(ctx context.Context, args ...string) (string, error) {
	cmd := exec.CommandContext(ctx, "git", args...)
	cmd.Dir = g.Dir
	var out bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &out
	err := cmd.Run()
	return strings.TrimSpace(out.String()), err
}

// Available reports whether the git binary is on PATH.
func Available() bool {
	_, err := exec.LookPath("git")
	return err == nil
}

// Noop is a Pusher that does nothing, used when version control is
// disabled.
type Noop struct{}

func (Noop) Push(context.Context, []string, string) error { return nil }
