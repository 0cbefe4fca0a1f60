// Package config defines the runtime configuration surface.
//
// Configuration lives outside this core (an installer or admin tool writes
// it); the core only reads it, plus one writeback: the auto-refresh
// interval chosen in the UI. A missing config is not an error here — it
// surfaces downstream as an empty candidate path list.
package config

import "context"

// DefaultFileName is the tracker resource used when the files map has no
// entry for a resource key.
const DefaultFileName = "error_tracker.json"

// Config is the full runtime configuration.
type Config struct {
	// DataPaths are the candidate directories for the live tracker file,
	// in preference order.
	DataPaths []string `json:"data_paths"`

	// AnalyticsPaths are the candidate directories for the precomputed
	// historical summary files.
	AnalyticsPaths []string `json:"analytics_paths"`

	// Files maps resource keys to file names, overriding the default.
	Files map[string]string `json:"files,omitempty"`

	// AutoRefreshSeconds is the refresh period; <= 0 disables auto-refresh.
	AutoRefreshSeconds int `json:"auto_refresh"`
}

// FileName returns the file name for a resource key, falling back to
// DefaultFileName.
func (c *Config) FileName(resource string) string {
	if c != nil {
		if name, ok := c.Files[resource]; ok && name != "" {
			return name
		}
	}
	return DefaultFileName
}

// Store is the persistence interface for configuration.
type Store interface {
	// Load returns the configuration, or nil if none exists yet.
	Load(ctx context.Context) (*Config, error)

	// Save replaces the full configuration.
	Save(ctx context.Context, cfg *Config) error

	// PutAutoRefresh updates only the auto-refresh interval, creating an
	// otherwise-empty configuration if none exists.
	PutAutoRefresh(ctx context.Context, seconds int) error
}
