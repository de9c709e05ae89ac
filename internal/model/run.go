package model

import (
	"fmt"
	"time"
)

// PullRequest holds the PR metadata attached to an agent run.
type PullRequest struct {
	Number       int    // GitHub PR number
	Title        string
	URL          string
	HeadSHA      string
	BaseSHA      string
	RepoFullName string // "owner/name" of the base repository
}

// AgentRun represents a remote agent run as reported by the service.
// The client never mutates a run, only re-fetches it.
type AgentRun struct {
	ID           int          `json:"id"`
	Status       string       `json:"status"`
	Summary      string       `json:"summary,omitempty"`
	CreatedAt    time.Time    `json:"created_at"`
	WebURL       string       `json:"web_url,omitempty"`
	SourceType   string       `json:"source_type,omitempty"`
	PullRequests []PRPayload  `json:"github_pull_requests,omitempty"`
	Repository   *RunRepoStub `json:"repository,omitempty"`
}

// RunRepoStub is the repository reference the service attaches to a run.
type RunRepoStub struct {
	Name string `json:"name"`
}

// PRPayload mirrors the service's GitHub-shaped PR payload.
type PRPayload struct {
	Number  int        `json:"number"`
	Title   string     `json:"title"`
	HTMLURL string     `json:"html_url"`
	Head    *CommitRef `json:"head,omitempty"`
	Base    *BaseRef   `json:"base,omitempty"`
}

// CommitRef is a commit pointer inside a PR payload.
type CommitRef struct {
	SHA string `json:"sha"`
}

// BaseRef is the base side of a PR payload.
type BaseRef struct {
	SHA  string   `json:"sha"`
	Repo *RepoRef `json:"repo,omitempty"`
}

// RepoRef names the repository a PR base belongs to.
type RepoRef struct {
	FullName string `json:"full_name"`
}

// FirstPR extracts the run's first pull request. Position 0 is treated as
// most recent; the service payload is not re-sorted. Entries missing a
// number or URL don't count as a PR at all.
func (r *AgentRun) FirstPR() *PullRequest {
	if len(r.PullRequests) == 0 {
		return nil
	}
	raw := r.PullRequests[0]
	if raw.Number == 0 || raw.HTMLURL == "" {
		return nil
	}
	pr := &PullRequest{
		Number: raw.Number,
		Title:  raw.Title,
		URL:    raw.HTMLURL,
	}
	if pr.Title == "" {
		pr.Title = fmt.Sprintf("PR #%d", raw.Number)
	}
	if raw.Head != nil {
		pr.HeadSHA = raw.Head.SHA
	}
	if raw.Base != nil {
		pr.BaseSHA = raw.Base.SHA
		if raw.Base.Repo != nil {
			pr.RepoFullName = raw.Base.Repo.FullName
		}
	}
	return pr
}

// PRCount returns how many pull requests the run carries, whether or not
// they are individually well-formed.
func (r *AgentRun) PRCount() int { return len(r.PullRequests) }

// Page is one page of a run listing.
type Page struct {
	Items   []AgentRun `json:"items"`
	Total   int        `json:"total"`
	Page    int        `json:"page"`
	PerPage int        `json:"per_page"`
}

// RepoContext identifies the workspace's origin repository.
type RepoContext struct {
	Name      string
	Owner     string
	FullName  string // "owner/name"
	LocalPath string
}
