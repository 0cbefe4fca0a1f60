// Package tracker coordinates the data core without owning business
// logic. It wires the config store, the record store, the snapshot cache,
// the refresh scheduler, the aggregation engine, and the notification hub
// into the operations the dashboard screens call.
//
// Ordering guarantee: the snapshot cache and the hub only see a
// collection after it was loaded or saved successfully, cache first,
// hub second. Consumers observing an event can therefore read a cache
// that is at least as new as the event.
package tracker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"feedtrack/internal/aggregate"
	"feedtrack/internal/config"
	"feedtrack/internal/hub"
	"feedtrack/internal/logging"
	"feedtrack/internal/record"
	"feedtrack/internal/scheduler"
	"feedtrack/internal/snapshot"
	"feedtrack/internal/store"
)

const (
	// ResourceKey is the files-map key for the live tracker document.
	ResourceKey = "tracker"

	// CacheID is the snapshot slot holding the tracker collection.
	CacheID = "feedback_tracker_data"
)

var (
	// ErrRefreshInProgress signals that a refresh is already running.
	// A no-op for the caller, not a failure.
	ErrRefreshInProgress = errors.New("refresh already in progress")

	// ErrNotLoaded is returned by mutations before any data is available.
	ErrNotLoaded = errors.New("no data loaded")

	// ErrUnknownRecord is returned when a status update names a record id
	// that is not in the current collection.
	ErrUnknownRecord = errors.New("unknown record id")
)

// Deps are the collaborators a Tracker wires together. All fields are
// required except Logger.
type Deps struct {
	Config    config.Store
	Store     *store.RecordStore
	Cache     *snapshot.Cache
	Refresher *scheduler.Refresher
	Hub       *hub.Hub
	Engine    *aggregate.Engine
	Logger    *slog.Logger
}

// Tracker is the coordinator for one tracked resource.
type Tracker struct {
	conf      config.Store
	store     *store.RecordStore
	cache     *snapshot.Cache
	refresher *scheduler.Refresher
	hub       *hub.Hub
	engine    *aggregate.Engine
	now       func() time.Time
	logger    *slog.Logger

	mu             sync.Mutex
	refreshing     bool
	initialized    bool
	coll           *record.Collection
	lastUpdate     time.Time
	fromSample     bool
	analyticsPaths []string
}

// New creates a Tracker from its collaborators.
func New(d Deps) *Tracker {
	logger := logging.Default(d.Logger)
	return &Tracker{
		conf:      d.Config,
		store:     d.Store,
		cache:     d.Cache,
		refresher: d.Refresher,
		hub:       d.Hub,
		engine:    d.Engine,
		now:       time.Now,
		logger:    logger.With("component", "tracker"),
	}
}

// EnsureInitialized brings the tracker to a usable state. If a cached
// snapshot exists it is served immediately (published with FromCache set)
// and a live load runs in the background; otherwise the first load runs
// synchronously. Safe to call more than once; later calls are no-ops.
func (t *Tracker) EnsureInitialized(ctx context.Context) error {
	t.mu.Lock()
	if t.initialized {
		t.mu.Unlock()
		return nil
	}
	t.mu.Unlock()

	if err := t.applyConfig(ctx); err != nil {
		return err
	}

	snap, err := t.cache.Load()
	if err != nil {
		t.logger.Warn("snapshot cache unavailable", "error", err)
	}
	if snap != nil {
		t.mu.Lock()
		t.coll = snap.Data
		t.lastUpdate = snap.LastUpdate
		t.initialized = true
		t.mu.Unlock()

		t.logger.Info("serving cached snapshot",
			"records", len(snap.Data.Errors),
			"lastUpdate", snap.LastUpdate,
		)
		t.hub.Publish(hub.NewEvent(len(snap.Data.Errors), true))

		go func() {
			if err := t.Refresh(context.Background()); err != nil && !errors.Is(err, ErrRefreshInProgress) {
				t.logger.Warn("background refresh after cached start failed", "error", err)
			}
		}()
		return nil
	}

	if err := t.Refresh(ctx); err != nil {
		return err
	}

	t.mu.Lock()
	t.initialized = true
	t.mu.Unlock()
	return nil
}

// applyConfig loads the configuration and pushes it into the store and
// the scheduler. A missing config yields empty path lists; the resulting
// "no candidate paths" error surfaces on the first load, not here.
func (t *Tracker) applyConfig(ctx context.Context) error {
	cfg, err := t.conf.Load(ctx)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if cfg == nil {
		t.logger.Warn("no configuration found")
		cfg = &config.Config{}
	}

	t.store.SetResource(cfg.FileName(ResourceKey))
	t.store.SetCandidates(cfg.DataPaths)

	t.mu.Lock()
	t.analyticsPaths = append([]string(nil), cfg.AnalyticsPaths...)
	t.mu.Unlock()

	if err := t.refresher.Configure(cfg.AutoRefreshSeconds, t.refreshTick); err != nil {
		return fmt.Errorf("configure auto-refresh: %w", err)
	}
	return nil
}

// refreshTick adapts Refresh for the scheduler: an overlapping tick is a
// benign no-op, not an error worth logging.
func (t *Tracker) refreshTick(ctx context.Context) error {
	err := t.Refresh(ctx)
	if errors.Is(err, ErrRefreshInProgress) {
		return nil
	}
	return err
}

// Refresh loads the collection from the shared medium and, on success,
// updates the snapshot cache and publishes a change event — in that
// order. Only one refresh runs at a time; an overlapping call returns
// ErrRefreshInProgress immediately.
//
// A malformed payload is served as deterministic sample data so the UI
// has something to render, but is never written to the cache: the cache
// holds only data that really came from the medium.
func (t *Tracker) Refresh(ctx context.Context) error {
	t.mu.Lock()
	if t.refreshing {
		t.mu.Unlock()
		return ErrRefreshInProgress
	}
	t.refreshing = true
	t.mu.Unlock()
	defer func() {
		t.mu.Lock()
		t.refreshing = false
		t.mu.Unlock()
	}()

	coll, err := t.store.Load(ctx)
	fromSample := false
	switch {
	case err == nil:
	case errors.Is(err, store.ErrBusy):
		return ErrRefreshInProgress
	case errors.Is(err, store.ErrMalformedData):
		t.logger.Warn("tracker data malformed, serving sample data", "error", err)
		coll = record.SampleCollection()
		fromSample = true
	default:
		return err
	}

	t.mu.Lock()
	t.coll = coll
	t.lastUpdate = t.now().UTC()
	t.fromSample = fromSample
	t.mu.Unlock()

	if !fromSample {
		if err := t.cache.Save(coll); err != nil {
			t.logger.Warn("failed to update snapshot cache", "error", err)
		}
	}
	t.hub.Publish(hub.NewEvent(len(coll.Errors), false))
	return nil
}

// Save persists the current collection back to the shared medium, then
// updates the cache and publishes.
func (t *Tracker) Save(ctx context.Context) error {
	t.mu.Lock()
	coll := t.coll
	t.mu.Unlock()
	if coll == nil {
		return ErrNotLoaded
	}

	if err := t.store.Save(ctx, coll); err != nil {
		return err
	}

	t.mu.Lock()
	t.lastUpdate = t.now().UTC()
	t.mu.Unlock()

	if err := t.cache.Save(coll); err != nil {
		t.logger.Warn("failed to update snapshot cache", "error", err)
	}
	t.hub.Publish(hub.NewEvent(len(coll.Errors), false))
	return nil
}

// UpdateStatus records feedback on one record and persists the whole
// collection.
func (t *Tracker) UpdateStatus(ctx context.Context, id, status, user, motive, comment string) error {
	t.mu.Lock()
	if t.coll == nil {
		t.mu.Unlock()
		return ErrNotLoaded
	}
	ok := t.coll.UpdateStatus(id, status, user, motive, comment, t.now())
	t.mu.Unlock()

	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownRecord, id)
	}
	return t.Save(ctx)
}

// Combined returns the aggregate for a period of the given length in
// days: the precomputed historical rollup (when one exists) with today's
// records folded in. An unreadable rollup degrades to a today-only
// summary rather than failing the request.
func (t *Tracker) Combined(ctx context.Context, days int) (*aggregate.Summary, error) {
	t.mu.Lock()
	paths := append([]string(nil), t.analyticsPaths...)
	coll := t.coll
	t.mu.Unlock()

	historical, err := t.engine.LoadSummary(ctx, paths, days)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		t.logger.Warn("historical summary unavailable", "days", days, "error", err)
		historical = nil
	}

	var today *record.Collection
	if coll != nil {
		date := t.now().Format(record.DateFormat)
		today = &record.Collection{Errors: coll.FilterByDate(date)}
	}

	return t.engine.Combine(historical, today), nil
}

// SetAutoRefresh reconfigures the refresh interval at runtime. The
// scheduler persists the new interval through its save hook.
func (t *Tracker) SetAutoRefresh(seconds int) error {
	return t.refresher.Configure(seconds, t.refreshTick)
}

// Records returns the current collection, nil before the first load.
func (t *Tracker) Records() *record.Collection {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.coll
}

// LastUpdate returns when the collection last changed.
func (t *Tracker) LastUpdate() time.Time {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.lastUpdate
}

// FromSample reports whether the current collection is placeholder data
// substituted after a decode failure.
func (t *Tracker) FromSample() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.fromSample
}

// CurrentPath returns the store's sticky path.
func (t *Tracker) CurrentPath() string {
	return t.store.CurrentPath()
}
