package engine

import (
	"strings"
	"testing"
	"time"

	"agentdeck/internal/model"
)

func TestRelativeTime(t *testing.T) {
	now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name    string
		elapsed time.Duration
		want    string
	}{
		{"thirty seconds", 30 * time.Second, "0m ago"},
		{"five minutes", 5 * time.Minute, "5m ago"},
		{"fifty nine minutes", 59 * time.Minute, "59m ago"},
		{"ninety minutes", 90 * time.Minute, "1h ago"},
		{"twenty three hours", 23 * time.Hour, "23h ago"},
		{"twenty five hours", 25 * time.Hour, "1d ago"},
		{"ten days", 240 * time.Hour, "10d ago"},
		{"clock skew, created in the future", -2 * time.Minute, "0m ago"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := RelativeTime(now.Add(-tt.elapsed), now)
			if got != tt.want {
				t.Errorf("RelativeTime(-%v) = %q, want %q", tt.elapsed, got, tt.want)
			}
		})
	}
}

func TestStatusIcon(t *testing.T) {
	tests := []struct {
		status string
		kind   IconKind
		color  IconColor
	}{
		{"complete", IconSuccess, ColorGreen},
		{"Completed", IconSuccess, ColorGreen},
		{"running", IconSpinner, ColorBlue},
		{"IN_PROGRESS", IconSpinner, ColorBlue},
		{"failed", IconError, ColorRed},
		{"error", IconError, ColorRed},
		{"pending", IconClock, ColorYellow},
		{"queued", IconClock, ColorYellow},
		{"paused", IconNeutral, ColorNone},
		{"", IconNeutral, ColorNone},
	}
	for _, tt := range tests {
		got := StatusIcon(tt.status)
		if got.Kind != tt.kind || got.Color != tt.color {
			t.Errorf("StatusIcon(%q) = %v/%v, want %v/%v", tt.status, got.Kind, got.Color, tt.kind, tt.color)
		}
	}
}

func TestPRSummary(t *testing.T) {
	mkRun := func(numbers ...int) *model.AgentRun {
		run := &model.AgentRun{}
		for _, n := range numbers {
			run.PullRequests = append(run.PullRequests, model.PRPayload{
				Number: n, HTMLURL: "https://github.com/acme/widgets/pull/1",
			})
		}
		return run
	}

	if got := PRSummary(mkRun()); got != "No PRs" {
		t.Errorf("zero PRs: got %q", got)
	}
	if got := PRSummary(mkRun(742)); got != "PR #742" {
		t.Errorf("one PR: got %q", got)
	}
	if got := PRSummary(mkRun(1, 2, 3)); got != "3 PRs" {
		t.Errorf("three PRs: got %q", got)
	}
}

func TestResolveActionPriority(t *testing.T) {
	pr := model.PRPayload{Number: 7, HTMLURL: "https://github.com/acme/widgets/pull/7"}

	tests := []struct {
		name string
		run  model.AgentRun
		want ActionKind
	}{
		{"pr wins over web url", model.AgentRun{WebURL: "https://app.example.com/run/1", PullRequests: []model.PRPayload{pr}}, ActionOpenPRDiff},
		{"pr without web url", model.AgentRun{PullRequests: []model.PRPayload{pr}}, ActionOpenPRDiff},
		{"web url only", model.AgentRun{WebURL: "https://app.example.com/run/1"}, ActionOpenURL},
		{"nothing", model.AgentRun{}, ActionNone},
		{"malformed pr falls through to web url", model.AgentRun{WebURL: "https://app.example.com/run/1", PullRequests: []model.PRPayload{{Title: "no number or url"}}}, ActionOpenURL},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := resolveAction(&tt.run, nil)
			if got.Kind != tt.want {
				t.Errorf("got kind %v, want %v", got.Kind, tt.want)
			}
		})
	}
}

func TestResolveActionLocalPath(t *testing.T) {
	run := &model.AgentRun{PullRequests: []model.PRPayload{{
		Number:  7,
		HTMLURL: "https://github.com/acme/widgets/pull/7",
		Base:    &model.BaseRef{Repo: &model.RepoRef{FullName: "acme/widgets"}},
	}}}

	same := &model.RepoContext{FullName: "acme/widgets", LocalPath: "/home/dev/widgets"}
	if got := resolveAction(run, same); got.LocalPath != "/home/dev/widgets" {
		t.Errorf("same repo: LocalPath = %q, want the workspace path", got.LocalPath)
	}

	other := &model.RepoContext{FullName: "acme/gadgets", LocalPath: "/home/dev/gadgets"}
	if got := resolveAction(run, other); got.LocalPath != "" {
		t.Errorf("different repo: LocalPath = %q, want empty", got.LocalPath)
	}

	if got := resolveAction(run, nil); got.LocalPath != "" {
		t.Errorf("no repo context: LocalPath = %q, want empty", got.LocalPath)
	}
}

func TestRecordDerivation(t *testing.T) {
	now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	run := &model.AgentRun{
		ID:        1,
		Status:    "running",
		CreatedAt: now.Add(-5 * time.Minute),
	}

	rec := recordFor(run, nil, now)

	if rec.Title != "Agent Run 1" {
		t.Errorf("Title = %q, want %q", rec.Title, "Agent Run 1")
	}
	if !strings.Contains(rec.Description, "running • 5m ago • No PRs") {
		t.Errorf("Description = %q, want it to contain %q", rec.Description, "running • 5m ago • No PRs")
	}
	if rec.Icon.Kind != IconSpinner || rec.Icon.Color != ColorBlue {
		t.Errorf("Icon = %v, want spinner/blue", rec.Icon)
	}
	if rec.Action != ActionNone {
		t.Errorf("Action = %v, want ActionNone", rec.Action)
	}
}

func TestRecordUsesSummaryAndRepoName(t *testing.T) {
	now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	run := &model.AgentRun{
		ID:         2,
		Status:     "completed",
		Summary:    "Fix login flow",
		CreatedAt:  now.Add(-26 * time.Hour),
		Repository: &model.RunRepoStub{Name: "widgets"},
	}

	rec := recordFor(run, nil, now)

	if rec.Title != "Fix login flow" {
		t.Errorf("Title = %q", rec.Title)
	}
	if rec.Description != "completed • 1d ago • No PRs • widgets" {
		t.Errorf("Description = %q", rec.Description)
	}
	if !strings.Contains(rec.Tooltip, "ID: 2") || !strings.Contains(rec.Tooltip, "Fix login flow") {
		t.Errorf("Tooltip = %q", rec.Tooltip)
	}
}
