// Package data contains the Postgres repositories backing the queue, the
// output store and the snapshot reader.
package data

import "log/slog"

// RepoConfig holds shared construction options for repositories.
type RepoConfig struct {
	Logger       *slog.Logger
	TimeProvider TimeProvider
}

func (c RepoConfig) timeProvider() TimeProvider {
	if c.TimeProvider == nil {
		return &RealTimeProvider{}
	}
	return c.TimeProvider
}

func (c RepoConfig) logger() *slog.Logger {
	if c.Logger == nil {
		return slog.Default()
	}
	return c.Logger
}
