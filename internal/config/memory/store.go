// Package memory provides an in-memory config.Store for tests.
package memory

import (
	"context"
	"sync"

	"feedtrack/internal/config"
)

// Store is an in-memory config.Store. Safe for concurrent use.
type Store struct {
	mu  sync.Mutex
	cfg *config.Config
}

var _ config.Store = (*Store)(nil)

// NewStore creates an empty in-memory config store.
func NewStore() *Store {
	return &Store{}
}

// NewStoreWith creates an in-memory store pre-seeded with cfg.
func NewStoreWith(cfg *config.Config) *Store {
	return &Store{cfg: cloneConfig(cfg)}
}

// Load returns a copy of the stored configuration, or nil if none set.
func (s *Store) Load(ctx context.Context) (*config.Config, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return cloneConfig(s.cfg), nil
}

// Save replaces the stored configuration.
func (s *Store) Save(ctx context.Context, cfg *config.Config) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cfg = cloneConfig(cfg)
	return nil
}

// PutAutoRefresh updates only the refresh interval.
func (s *Store) PutAutoRefresh(ctx context.Context, seconds int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cfg == nil {
		s.cfg = &config.Config{}
	}
	s.cfg.AutoRefreshSeconds = seconds
	return nil
}

func cloneConfig(cfg *config.Config) *config.Config {
	if cfg == nil {
		return nil
	}
	out := *cfg
	out.DataPaths = append([]string(nil), cfg.DataPaths...)
	out.AnalyticsPaths = append([]string(nil), cfg.AnalyticsPaths...)
	if cfg.Files != nil {
		out.Files = make(map[string]string, len(cfg.Files))
		for k, v := range cfg.Files {
			out.Files[k] = v
		}
	}
	return &out
}
