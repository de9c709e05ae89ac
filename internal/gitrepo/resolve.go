// Package gitrepo derives the workspace's repository identity from its git
// origin remote. Resolution fails soft: anything short of a parseable origin
// URL yields nil, never a partial context.
package gitrepo

import (
	"os/exec"
	"regexp"
	"strings"

	"agentdeck/internal/model"
)

var (
	// scp-style remote: git@github.com:owner/repo.git
	sshPattern = regexp.MustCompile(`^[a-z0-9._-]+@([^:]+):([^/]+)/(.+)$`)
	// https://github.com/owner/repo.git (and plain http)
	httpPattern = regexp.MustCompile(`^https?://([^/]+)/([^/]+)/(.+)$`)
)

// Resolve returns the repository context for the workspace at dir, or nil
// when dir is not inside a git repository, has no origin remote, or the
// remote URL has an unsupported shape.
func Resolve(dir string) *model.RepoContext {
	root, err := repoRoot(dir)
	if err != nil {
		return nil
	}
	out, err := exec.Command("git", "-C", root, "remote", "get-url", "origin").Output()
	if err != nil {
		return nil
	}
	ctx := ParseRemoteURL(strings.TrimSpace(string(out)))
	if ctx == nil {
		return nil
	}
	ctx.LocalPath = root
	return ctx
}

// ParseRemoteURL extracts owner and name from a git remote URL. Supported
// shapes are the scp-style ssh form and http(s); anything else returns nil.
func ParseRemoteURL(url string) *model.RepoContext {
	for _, pat := range []*regexp.Regexp{sshPattern, httpPattern} {
		m := pat.FindStringSubmatch(url)
		if m == nil {
			continue
		}
		owner := m[2]
		// name is the whole remainder: nested paths stay intact, only a
		// trailing .git is stripped.
		name := strings.TrimSuffix(m[3], ".git")
		if owner == "" || name == "" {
			return nil
		}
		return &model.RepoContext{
			Name:     name,
			Owner:    owner,
			FullName: owner + "/" + name,
		}
	}
	return nil
}

// repoRoot returns the absolute path of the git repository containing dir.
func repoRoot(dir string) (string, error) {
	cmd := exec.Command("git", "rev-parse", "--show-toplevel")
	cmd.Dir = dir
	out, err := cmd.Output()
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(out)), nil
}
