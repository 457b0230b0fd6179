// Package sync reconciles GitHub work items against the calendar store.
// At most one sync run executes at a time; overlapping triggers are
// rejected with a skipped outcome rather than queued.
package sync

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/ghcalsync/ghcalsync/internal/event"
	"github.com/ghcalsync/ghcalsync/internal/models"
)

// IssueSource yields the deduplicated, filtered issue set to sync.
type IssueSource interface {
	FetchAllIssues(ctx context.Context) ([]models.Issue, error)
}

// ProjectSource yields the items of the given project boards.
type ProjectSource interface {
	FetchItemsFromProjects(ctx context.Context, projectIDs []string) ([]models.ProjectItem, error)
}

// EventStore is the remote calendar the engine reconciles against.
type EventStore interface {
	IsAuthenticated() bool
	AuthURL() string
	FindEventBySourceID(ctx context.Context, sourceID string) (string, error)
	CreateEvent(ctx context.Context, draft models.EventDraft) (string, error)
	UpdateEvent(ctx context.Context, eventID string, draft models.EventDraft) error
}

// SelectionSource reports which project boards participate in project sync.
type SelectionSource interface {
	AllSelectedProjectIDs() ([]string, error)
}

// Syncer owns the single-flight guard and the statistics of the last
// completed run.
type Syncer struct {
	issues     IssueSource
	projects   ProjectSource
	store      EventStore
	selections SelectionSource
	log        *logrus.Entry

	// runMu is the single-flight guard: held for the duration of a run,
	// acquired with TryLock so concurrent triggers fail fast.
	runMu   sync.Mutex
	running atomic.Bool

	lastMu       sync.Mutex
	lastResult   *models.Result
	lastSyncTime *time.Time
}

// New creates a syncer.
func New(issues IssueSource, projects ProjectSource, store EventStore, selections SelectionSource) *Syncer {
	return &Syncer{
		issues:     issues,
		projects:   projects,
		store:      store,
		selections: selections,
		log:        logrus.WithField("component", "sync"),
	}
}

// SyncIssues fetches all configured issues and reconciles each against
// the calendar store.
func (s *Syncer) SyncIssues(ctx context.Context) models.Result {
	return s.run(ctx, "issues", s.issuePass)
}

// SyncProjects reconciles the items of every selected project board. An
// empty selection is a successful no-op, not an error.
func (s *Syncer) SyncProjects(ctx context.Context) models.Result {
	return s.run(ctx, "projects", s.projectPass)
}

// SyncAll runs the issue pass then the project pass as two individually
// guarded runs and returns both outcomes.
func (s *Syncer) SyncAll(ctx context.Context) (models.Result, models.Result) {
	s.log.Info("full sync triggered")
	issues := s.SyncIssues(ctx)
	projects := s.SyncProjects(ctx)
	return issues, projects
}

// run enforces the single-flight guard around one sync pass. The guard
// is released on every exit path; the authentication check happens
// after admission but before the run is marked in progress.
func (s *Syncer) run(ctx context.Context, kind string, pass func(ctx context.Context, stats *models.Stats) (string, error)) models.Result {
	log := s.log.WithField("kind", kind)

	if !s.runMu.TryLock() {
		log.Warn("sync already in progress, skipping")
		return models.Result{Status: models.StatusSkipped, Reason: "sync already in progress"}
	}
	defer s.runMu.Unlock()

	if !s.store.IsAuthenticated() {
		log.Error("not authenticated with calendar store, authorization required")
		return models.Result{
			Status:  models.StatusError,
			Reason:  "not authenticated with google calendar",
			AuthURL: s.store.AuthURL(),
		}
	}

	s.running.Store(true)
	defer s.running.Store(false)

	log.Info("sync started")
	start := time.Now()
	var stats models.Stats
	message, err := pass(ctx, &stats)
	stats.Duration = time.Since(start)
	completed := time.Now().UTC()

	var result models.Result
	if err != nil {
		log.WithError(err).Error("sync failed")
		result = models.Result{Status: models.StatusError, Reason: err.Error(), Stats: stats}
	} else {
		log.WithFields(logrus.Fields{
			"total":    stats.Total,
			"created":  stats.Created,
			"updated":  stats.Updated,
			"errors":   stats.Errors,
			"duration": stats.Duration,
		}).Info("sync completed")
		result = models.Result{
			Status:      models.StatusSuccess,
			Stats:       stats,
			Message:     message,
			CompletedAt: &completed,
		}
	}

	s.lastMu.Lock()
	s.lastResult = &result
	s.lastSyncTime = &completed
	s.lastMu.Unlock()

	return result
}

func (s *Syncer) issuePass(ctx context.Context, stats *models.Stats) (string, error) {
	issues, err := s.issues.FetchAllIssues(ctx)
	if err != nil {
		return "", fmt.Errorf("failed to fetch issues: %w", err)
	}
	stats.Total = len(issues)

	for _, issue := range issues {
		draft := event.MapIssue(issue)
		s.reconcile(ctx, draft, stats)
	}
	return "", nil
}

func (s *Syncer) projectPass(ctx context.Context, stats *models.Stats) (string, error) {
	projectIDs, err := s.selections.AllSelectedProjectIDs()
	if err != nil {
		return "", fmt.Errorf("failed to load project selections: %w", err)
	}
	if len(projectIDs) == 0 {
		s.log.Warn("no projects selected for syncing")
		return "no projects selected", nil
	}

	items, err := s.projects.FetchItemsFromProjects(ctx, projectIDs)
	if err != nil {
		return "", fmt.Errorf("failed to fetch project items: %w", err)
	}
	stats.Total = len(items)

	for _, item := range items {
		draft, err := event.MapProjectItem(item)
		if err != nil {
			s.log.WithError(err).WithField("item", item.ID).Error("failed to map project item")
			stats.Errors++
			continue
		}
		s.reconcile(ctx, draft, stats)
	}
	return "", nil
}

// reconcile upserts one draft by its idempotency key: an existing event
// with the same source item ID is updated, otherwise a new one is
// created. Failures are isolated to the draft and counted.
func (s *Syncer) reconcile(ctx context.Context, draft models.EventDraft, stats *models.Stats) {
	log := s.log.WithField("sourceItem", draft.SourceItemID)

	eventID, err := s.store.FindEventBySourceID(ctx, draft.SourceItemID)
	if err != nil {
		log.WithError(err).Error("failed to look up existing event")
		stats.Errors++
		return
	}

	if eventID != "" {
		if err := s.store.UpdateEvent(ctx, eventID, draft); err != nil {
			log.WithError(err).Error("failed to update event")
			stats.Errors++
			return
		}
		stats.Updated++
		return
	}

	if _, err := s.store.CreateEvent(ctx, draft); err != nil {
		log.WithError(err).Error("failed to create event")
		stats.Errors++
		return
	}
	stats.Created++
}

// Status is an advisory snapshot of the syncer. Readers may observe the
// previous run's frozen stats while a new run is in progress.
type Status struct {
	InProgress    bool           `json:"syncInProgress"`
	LastSyncTime  *time.Time     `json:"lastSyncTime"`
	LastResult    *models.Result `json:"lastSyncResult"`
	Authenticated bool           `json:"isAuthenticated"`
}

// Status reports the current sync state.
func (s *Syncer) Status() Status {
	s.lastMu.Lock()
	last := s.lastResult
	lastTime := s.lastSyncTime
	s.lastMu.Unlock()

	return Status{
		InProgress:    s.running.Load(),
		LastSyncTime:  lastTime,
		LastResult:    last,
		Authenticated: s.store.IsAuthenticated(),
	}
}
