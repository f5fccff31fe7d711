package sync

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
)

const gitCommitMessage = "sync: update viewing history export"

// GitDestination commits the export to a file in an existing local clone and
// pushes it to origin.
type GitDestination struct {
	repo   string
	file   string // relative to repo
	branch string
}

func NewGitDestination(repo, file, branch string) *GitDestination {
	return &GitDestination{repo: repo, file: file, branch: branch}
}

// Write replaces the file with data and pushes a commit. Unchanged content
// produces no commit.
func (d *GitDestination) Write(ctx context.Context, data []byte) error {
	if err := d.sync(ctx); err != nil {
		return err
	}
	if err := d.writeFile(data); err != nil {
		return err
	}
	changed, err := d.stage(ctx)
	if err != nil || !changed {
		return err
	}
	if _, err := d.git(ctx, "commit", "-m", gitCommitMessage); err != nil {
		return err
	}
	_, err = d.git(ctx, "push", "origin", d.branch)
	return err
}

// sync checks out the branch and fast-forwards it when origin has it.
func (d *GitDestination) sync(ctx context.Context) error {
	if _, err := d.git(ctx, "checkout", d.branch); err != nil {
		return err
	}
	if _, err := d.git(ctx, "ls-remote", "--exit-code", "--heads", "origin", d.branch); err != nil {
		return nil
	}
	_, err := d.git(ctx, "pull", "--ff-only", "origin", d.branch)
	return err
}

func (d *GitDestination) writeFile(data []byte) error {
	path := filepath.Join(d.repo, d.file)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("creating %s: %w", filepath.Dir(d.file), err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("writing %s: %w", d.file, err)
	}
	return nil
}

// stage adds the file and reports whether the index differs from HEAD.
func (d *GitDestination) stage(ctx context.Context) (bool, error) {
	if _, err := d.git(ctx, "add", "--", d.file); err != nil {
		return false, err
	}
	out, err := d.git(ctx, "status", "--porcelain", "--", d.file)
	if err != nil {
		return false, err
	}
	return out != "", nil
}

func (d *GitDestination) git(ctx context.Context, args ...string) (string, error) {
	var out bytes.Buffer
	cmd := exec.CommandContext(ctx, "git", args...)
	cmd.Dir = d.repo
	cmd.Stdout = &out
	cmd.Stderr = &out
	if err := cmd.Run(); err != nil {
		return "", fmt.Errorf("git %s: %w: %s", args[0], err, strings.TrimSpace(out.String()))
	}
	return strings.TrimSpace(out.String()), nil
}
