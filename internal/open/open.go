// Package open executes resolved click actions: launching the default
// browser for a URL, or preparing an in-terminal PR diff via the gh CLI when
// the PR lives in the workspace's own repository.
package open

import (
	"fmt"
	"os/exec"
	"runtime"

	"agentdeck/internal/model"
)

// URL opens a URL in the platform browser. Best effort: TUI flows ignore
// the error, CLI flows report it.
func URL(url string) error {
	if url == "" {
		return fmt.Errorf("no URL to open")
	}
	var cmd *exec.Cmd
	switch runtime.GOOS {
	case "darwin":
		cmd = exec.Command("open", url)
	case "windows":
		cmd = exec.Command("rundll32", "url.dll,FileProtocolHandler", url)
	default:
		cmd = exec.Command("xdg-open", url)
	}
	return cmd.Start()
}

// PRDiffCmd returns a command that shows the PR's diff in the terminal.
// Pass the result to tea.ExecProcess — the dashboard resumes when the pager
// exits. localPath anchors gh to the workspace checkout.
func PRDiffCmd(pr *model.PullRequest, localPath string) *exec.Cmd {
	cmd := exec.Command("gh", "pr", "diff", fmt.Sprint(pr.Number))
	cmd.Dir = localPath
	return cmd
}

// GHAvailable reports whether the gh CLI is on PATH; without it the diff
// affordance falls back to the browser.
func GHAvailable() bool {
	_, err := exec.LookPath("gh")
	return err == nil
}
