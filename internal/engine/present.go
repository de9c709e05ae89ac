package engine

import (
	"fmt"
	"strings"
	"time"

	"agentdeck/internal/model"
)

// IconKind classifies the status glyph a surface should render.
type IconKind string

const (
	IconSuccess IconKind = "success"
	IconSpinner IconKind = "spinner"
	IconError   IconKind = "error"
	IconClock   IconKind = "clock"
	IconNeutral IconKind = "neutral"
)

// IconColor is the accent colour for the glyph; empty means uncoloured.
type IconColor string

const (
	ColorGreen  IconColor = "green"
	ColorBlue   IconColor = "blue"
	ColorRed    IconColor = "red"
	ColorYellow IconColor = "yellow"
	ColorNone   IconColor = ""
)

// Icon pairs a glyph kind with its colour.
type Icon struct {
	Kind  IconKind
	Color IconColor
}

// ActionKind is what clicking a run should do.
type ActionKind int

const (
	ActionNone ActionKind = iota
	ActionOpenURL
	ActionOpenPRDiff
)

// Action is a resolved click-through: the kind plus whatever data executing
// it needs. LocalPath is set only when the PR belongs to the workspace's own
// repository, allowing an in-terminal diff instead of a browser tab.
type Action struct {
	Kind      ActionKind
	PR        *model.PullRequest
	URL       string
	LocalPath string
}

// Record is the render-ready description of one agent run. Derived on every
// refresh, never persisted. A placeholder record is a UX signal, not a run:
// it carries no Run and no action.
type Record struct {
	Title       string
	Tooltip     string
	Description string
	Icon        Icon
	Action      ActionKind
	Run         *model.AgentRun
	Placeholder bool
}

// recordFor derives the presentation record for a run. Pure, no I/O.
func recordFor(run *model.AgentRun, repo *model.RepoContext, now time.Time) Record {
	return Record{
		Title:       runTitle(run),
		Tooltip:     runTooltip(run),
		Description: runDescription(run, now),
		Icon:        StatusIcon(run.Status),
		Action:      resolveAction(run, repo).Kind,
		Run:         run,
	}
}

func runTitle(run *model.AgentRun) string {
	if run.Summary != "" {
		return run.Summary
	}
	return fmt.Sprintf("Agent Run %d", run.ID)
}

func runDescription(run *model.AgentRun, now time.Time) string {
	parts := []string{}
	if run.Status != "" {
		parts = append(parts, run.Status)
	}
	parts = append(parts, RelativeTime(run.CreatedAt, now), PRSummary(run))
	if run.Repository != nil && run.Repository.Name != "" {
		parts = append(parts, run.Repository.Name)
	}
	return strings.Join(parts, " • ")
}

func runTooltip(run *model.AgentRun) string {
	summary := run.Summary
	if summary == "" {
		summary = "No summary available"
	}
	return fmt.Sprintf("ID: %d\nStatus: %s\nCreated: %s\nPRs: %d\n\n%s",
		run.ID, run.Status, run.CreatedAt.Local().Format(time.RFC1123), run.PRCount(), summary)
}

// RelativeTime renders elapsed time since createdAt in the coarsest unit
// that is at least one: days, then hours, then minutes. Never negative and
// never blank; the floor is "0m ago".
func RelativeTime(createdAt, now time.Time) string {
	elapsed := now.Sub(createdAt)
	if elapsed < 0 {
		elapsed = 0
	}
	if days := int(elapsed.Hours()) / 24; days >= 1 {
		return fmt.Sprintf("%dd ago", days)
	}
	if hours := int(elapsed.Hours()); hours >= 1 {
		return fmt.Sprintf("%dh ago", hours)
	}
	return fmt.Sprintf("%dm ago", int(elapsed.Minutes()))
}

// StatusIcon maps a run status to its icon. Matching is case-insensitive;
// unknown statuses get a neutral uncoloured icon.
func StatusIcon(status string) Icon {
	switch strings.ToLower(status) {
	case "complete", "completed":
		return Icon{IconSuccess, ColorGreen}
	case "running", "in_progress":
		return Icon{IconSpinner, ColorBlue}
	case "failed", "error":
		return Icon{IconError, ColorRed}
	case "pending", "queued":
		return Icon{IconClock, ColorYellow}
	default:
		return Icon{IconNeutral, ColorNone}
	}
}

// PRSummary condenses a run's pull requests to a short label.
func PRSummary(run *model.AgentRun) string {
	switch n := run.PRCount(); {
	case n == 0:
		return "No PRs"
	case n == 1:
		return fmt.Sprintf("PR #%d", run.PullRequests[0].Number)
	default:
		return fmt.Sprintf("%d PRs", n)
	}
}

// resolveAction applies the click-through priority: a usable PR wins over a
// bare web URL, both win over doing nothing.
func resolveAction(run *model.AgentRun, repo *model.RepoContext) Action {
	if pr := run.FirstPR(); pr != nil {
		a := Action{Kind: ActionOpenPRDiff, PR: pr, URL: pr.URL}
		if repo != nil && repo.FullName == pr.RepoFullName {
			a.LocalPath = repo.LocalPath
		}
		return a
	}
	if run.WebURL != "" {
		return Action{Kind: ActionOpenURL, URL: run.WebURL}
	}
	return Action{Kind: ActionNone}
}

// placeholderRecord is shown when a repository-filtered listing comes back
// empty, so the view distinguishes "nothing here" from "not fetched yet".
func placeholderRecord(repo *model.RepoContext) Record {
	return Record{
		Title:       "No agent runs for this repository",
		Description: repo.FullName,
		Icon:        Icon{IconNeutral, ColorNone},
		Action:      ActionNone,
		Placeholder: true,
	}
}
