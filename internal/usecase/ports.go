package usecase

import (
	"context"
	"time"
)

// Store is the storage provider as the use cases see it.
type Store interface {
	Name() string
	Key(env, filename string) string
	PostSave(ctx context.Context, env, artifactPath string) (string, error)
	AllTargetBackups(ctx context.Context, env string) ([]string, error)
	DownloadBackup(ctx context.Context, key string) (string, error)
	Clean(ctx context.Context, env, artifactPath string, policy RetentionPolicy) ([]string, error)
	Close() error
}

// StoreFactory opens a store that belongs to a single caller.
type StoreFactory func(ctx context.Context) (Store, error)

// Alerter delivers step failures to humans.
type Alerter interface {
	Notify(ctx context.Context, step, message string) int
}

type Recorder interface {
	ObserveSuccess(target string, at time.Time)
	ObserveFailure(target, step string)
	ObserveDeleted(target string, n int)
}
