package domain

import "context"

// Target is a named source of data that can be backed up and restored.
type Target interface {
	// Name is the unique env name, also the storage namespace of its backups.
	Name() string
	Type() string
	Ping(ctx context.Context) error
	// Backup writes a fresh artifact into stagingDir and returns its path.
	Backup(ctx context.Context, stagingDir string) (string, error)
	Restore(ctx context.Context, artifactPath string) error
}
