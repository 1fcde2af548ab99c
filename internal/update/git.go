package update

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"
)

// GitRefresher pulls the latest source with git. Fails closed: a missing
// .git directory (packaged deployments) reports "cannot update" instead of
// erroring.
type GitRefresher struct {
	dir     string
	timeout time.Duration
}

func NewGitRefresher(dir string) *GitRefresher {
	if strings.TrimSpace(dir) == "" {
		dir = "."
	}
	return &GitRefresher{dir: dir, timeout: 2 * time.Minute}
}

func (g *GitRefresher) Refresh(ctx context.Context) Result {
	if _, err := os.Stat(filepath.Join(g.dir, ".git")); err != nil {
		return Result{OK: false, Summary: "No .git directory; cannot perform git pull in packaged app."}
	}

	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, "git", "pull", "--rebase")
	cmd.Dir = g.dir
	out, err := cmd.CombinedOutput()
	raw := strings.TrimSpace(string(out))

	if err != nil {
		summary := lastLine(raw)
		if summary == "" {
			summary = "git pull failed: " + err.Error()
		}
		return Result{OK: false, Summary: summary, RawOutput: raw}
	}

	updated := !strings.Contains(raw, "Already up to date.")
	return Result{
		OK:        true,
		Updated:   updated,
		Summary:   lastLine(raw),
		RawOutput: raw,
	}
}

func lastLine(s string) string {
	lines := strings.Split(strings.TrimSpace(s), "\n")
	for i := len(lines) - 1; i >= 0; i-- {
		if l := strings.TrimSpace(lines[i]); l != "" {
			return l
		}
	}
	return ""
}
