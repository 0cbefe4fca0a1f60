// Package store provides whole-collection access to a tracker resource on
// the shared medium.
//
// RecordStore layers two behaviors over the stateless resolver: a sticky
// path (the last location that worked is probed first on the next call) and
// a busy state machine that rejects overlapping operations instead of
// queuing them. Queuing behind a dead network share can stack up requests
// for minutes; an immediate ErrBusy lets the caller re-trigger later.
package store

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"feedtrack/internal/logging"
	"feedtrack/internal/record"
	"feedtrack/internal/resolve"
)

var (
	// ErrBusy is returned when a load or save is already in flight.
	// It signals "try again later", not a failure.
	ErrBusy = errors.New("operation already in progress")

	// ErrMalformedData is returned when the resource was read but its
	// payload does not decode as a record collection. Distinct from I/O
	// exhaustion so callers can substitute placeholder data instead of
	// retrying indefinitely.
	ErrMalformedData = errors.New("malformed record data")
)

// state is the store's operation state. At most one load/save runs at a
// time; the explicit enum (rather than a scattered boolean) keeps the
// invariant checkable in one place.
type state int

const (
	stateIdle state = iota
	stateLoading
)

// RecordStore reads and writes one named record collection through the
// resolver, remembering which candidate path last worked.
type RecordStore struct {
	resolver *resolve.Resolver
	name     string

	mu          sync.Mutex
	st          state
	candidates  []string
	currentPath string

	logger *slog.Logger
}

// New creates a RecordStore for the named resource over the given candidate
// paths. The candidate list is read-only after construction; SetCandidates
// replaces it wholesale on configuration reload.
func New(resolver *resolve.Resolver, candidates []string, name string, logger *slog.Logger) *RecordStore {
	logger = logging.Default(logger)
	return &RecordStore{
		resolver:   resolver,
		name:       name,
		candidates: append([]string(nil), candidates...),
		logger:     logger.With("component", "store", "resource", name),
	}
}

// SetCandidates replaces the candidate path list. The sticky path is kept
// only if it is still a candidate.
func (s *RecordStore) SetCandidates(candidates []string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.candidates = append([]string(nil), candidates...)
	if s.currentPath != "" && !contains(candidates, s.currentPath) {
		s.currentPath = ""
	}
}

// SetResource changes the resource file name for later operations. The
// sticky path is kept; a stale path simply fails over on the next call.
func (s *RecordStore) SetResource(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.name = name
}

// CurrentPath returns the sticky path, or "" if no path has succeeded yet.
func (s *RecordStore) CurrentPath() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.currentPath
}

// Load reads and decodes the collection, preferring the sticky path. On
// success the path that served the read becomes the new sticky path and the
// collection is normalized. Returns ErrBusy if another operation is in
// flight, ErrMalformedData if the payload does not decode.
func (s *RecordStore) Load(ctx context.Context) (*record.Collection, error) {
	order, name, release, err := s.acquire()
	if err != nil {
		return nil, err
	}
	defer release()

	start := time.Now()
	data, pathUsed, err := s.resolver.ReadFirst(ctx, order, name)
	if err != nil {
		return nil, err
	}

	coll, err := record.DecodeCollection(data)
	if err != nil {
		// The path itself worked, so keep it sticky; only the payload
		// is bad.
		s.setCurrent(pathUsed)
		return nil, fmt.Errorf("%w: %w", ErrMalformedData, err)
	}
	coll.Normalize()

	s.setCurrent(pathUsed)
	s.logger.Info("collection loaded",
		"path", pathUsed,
		"records", len(coll.Errors),
		"elapsed", time.Since(start),
	)
	return coll, nil
}

// Save encodes and writes the collection, preferring the sticky path. On
// success the path that accepted the write becomes the new sticky path.
func (s *RecordStore) Save(ctx context.Context, coll *record.Collection) error {
	order, name, release, err := s.acquire()
	if err != nil {
		return err
	}
	defer release()

	payload, err := coll.Encode()
	if err != nil {
		return err
	}

	pathUsed, err := s.resolver.WriteFirst(ctx, order, name, payload)
	if err != nil {
		return err
	}

	s.setCurrent(pathUsed)
	s.logger.Info("collection saved", "path", pathUsed, "records", len(coll.Errors))
	return nil
}

// Exists probes the candidate order for the resource without loading it.
func (s *RecordStore) Exists(ctx context.Context) bool {
	s.mu.Lock()
	order := s.searchOrder()
	name := s.name
	s.mu.Unlock()
	_, ok := s.resolver.Exists(ctx, order, name)
	return ok
}

// acquire transitions Idle -> Loading and snapshots the search order and
// resource name. The returned release func transitions back to Idle.
func (s *RecordStore) acquire() ([]string, string, func(), error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.st != stateIdle {
		return nil, "", nil, ErrBusy
	}
	s.st = stateLoading

	release := func() {
		s.mu.Lock()
		s.st = stateIdle
		s.mu.Unlock()
	}
	return s.searchOrder(), s.name, release, nil
}

// searchOrder builds [currentPath, candidates minus currentPath].
// Caller must hold mu.
func (s *RecordStore) searchOrder() []string {
	if s.currentPath == "" {
		return append([]string(nil), s.candidates...)
	}
	order := make([]string, 0, len(s.candidates)+1)
	order = append(order, s.currentPath)
	for _, p := range s.candidates {
		if p != s.currentPath {
			order = append(order, p)
		}
	}
	return order
}

func (s *RecordStore) setCurrent(path string) {
	s.mu.Lock()
	if s.currentPath != path {
		s.logger.Info("sticky path updated", "path", path)
	}
	s.currentPath = path
	s.mu.Unlock()
}

func contains(list []string, v string) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}
