// Package engine reconciles remote agent-run state into render-ready
// records. It owns the only mutable client-side state: the last successful
// fetch and the repository context it was fetched under.
package engine

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"agentdeck/internal/api"
	"agentdeck/internal/model"
)

// listPage and listPerPage fix the single page the engine ever requests.
const (
	listPage    = 1
	listPerPage = 20
)

// Gateway is the remote service as the engine sees it.
type Gateway interface {
	List(ctx context.Context, page, perPage int, repoFilter string) (*model.Page, error)
	Create(ctx context.Context, prompt, runModel string, repoID int) (*model.AgentRun, error)
	Get(ctx context.Context, id int) (*model.AgentRun, error)
}

// Session answers the authenticated predicate.
type Session interface {
	IsAuthenticated() bool
}

// Resolver produces the current repository context, or nil.
type Resolver func() *model.RepoContext

// Engine holds the last good fetch and derives presentation records from it.
// Not safe for concurrent use; bubbletea's single event loop is the intended
// caller, and overlapping refreshes are accepted as last-write-wins.
type Engine struct {
	gw      Gateway
	session Session
	resolve Resolver
	now     func() time.Time
	logger  *slog.Logger

	lastRuns    []model.AgentRun
	lastRepo    *model.RepoContext
	lastRecords []Record
}

// New creates an engine. resolve may be nil (no repository filtering),
// logger may be nil.
func New(gw Gateway, session Session, resolve Resolver, logger *slog.Logger) *Engine {
	if resolve == nil {
		resolve = func() *model.RepoContext { return nil }
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{
		gw:      gw,
		session: session,
		resolve: resolve,
		now:     time.Now,
		logger:  logger,
	}
}

// Refresh re-resolves the repository context, fetches the current run list,
// and rebuilds the presentation records. On fetch failure the previous
// records are returned alongside the error: the view goes stale, never
// blank.
func (e *Engine) Refresh(ctx context.Context) ([]Record, error) {
	// Repository context is never cached across refreshes; a workspace
	// switch must take effect on the next tick.
	e.lastRepo = e.resolve()

	if !e.session.IsAuthenticated() {
		e.lastRecords = nil
		return nil, nil
	}

	filter := ""
	if e.lastRepo != nil {
		filter = e.lastRepo.FullName
	}

	page, err := e.gw.List(ctx, listPage, listPerPage, filter)
	if err != nil {
		e.logger.Warn("refresh failed, keeping previous list", "err", err)
		return e.lastRecords, err
	}

	// Server order is kept as-is; no client-side re-sort.
	e.lastRuns = page.Items

	if len(page.Items) == 0 && filter != "" {
		e.lastRecords = []Record{placeholderRecord(e.lastRepo)}
		return e.lastRecords, nil
	}

	now := e.now()
	records := make([]Record, len(e.lastRuns))
	for i := range e.lastRuns {
		records[i] = recordFor(&e.lastRuns[i], e.lastRepo, now)
	}
	e.lastRecords = records
	return records, nil
}

// Records returns the most recently built presentation list without
// fetching.
func (e *Engine) Records() []Record { return e.lastRecords }

// Runs returns the last successfully fetched run list.
func (e *Engine) Runs() []model.AgentRun { return e.lastRuns }

// RepoContext returns the repository context of the last refresh.
func (e *Engine) RepoContext() *model.RepoContext { return e.lastRepo }

// CreateRun validates and submits a new run, then refreshes the list so the
// new run shows up immediately. The created run is returned so the caller
// can offer an open-in-browser affordance. A failed create mutates nothing
// and triggers no refresh.
func (e *Engine) CreateRun(ctx context.Context, prompt, runModel string, repoID int) (*model.AgentRun, error) {
	if strings.TrimSpace(prompt) == "" {
		return nil, api.ErrEmptyPrompt
	}
	run, err := e.gw.Create(ctx, prompt, runModel, repoID)
	if err != nil {
		return nil, err
	}
	if _, rerr := e.Refresh(ctx); rerr != nil {
		// The run was created; a failed follow-up fetch only delays its
		// appearance until the next tick.
		e.logger.Warn("post-create refresh failed", "err", rerr)
	}
	return run, nil
}

// ResolveClick picks the click-through action for a run against the current
// repository context. The PR repository comparison is exact string equality
// on "owner/name".
func (e *Engine) ResolveClick(run *model.AgentRun) Action {
	return resolveAction(run, e.lastRepo)
}
