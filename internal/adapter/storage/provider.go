package storage

import (
	"context"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/semmidev/warden/internal/domain"
	"github.com/semmidev/warden/internal/usecase"
)

// Options configure the behaviour shared by every backend.
type Options struct {
	// Prefix is prepended to every key: {prefix}/{env}/{filename}.
	Prefix     string
	StagingDir string
	Retry      RetryPolicy
	Logger     domain.Logger
	Clock      func() time.Time
}

// Provider implements upload, listing, download and retention cleanup once on
// top of any Backend.
type Provider struct {
	name       string
	backend    domain.Backend
	prefix     string
	stagingDir string
	retry      RetryPolicy
	logger     domain.Logger
	clock      func() time.Time
}

func NewProvider(name string, backend domain.Backend, opts Options) *Provider {
	if opts.Clock == nil {
		opts.Clock = time.Now
	}
	if opts.Retry.Attempts == 0 {
		opts.Retry = DefaultRetryPolicy()
	}
	return &Provider{
		name:       name,
		backend:    backend,
		prefix:     strings.Trim(opts.Prefix, "/"),
		stagingDir: opts.StagingDir,
		retry:      opts.Retry,
		logger:     opts.Logger,
		clock:      opts.Clock,
	}
}

func (p *Provider) Name() string { return p.name }

// Key returns the remote key of filename within the namespace of env.
func (p *Provider) Key(env, filename string) string {
	return path.Join(p.prefix, env, filename)
}

func (p *Provider) targetPrefix(env string) string {
	return path.Join(p.prefix, env) + "/"
}

// PostSave uploads artifactPath under {prefix}/{env}/{filename} and returns
// the key. Transport errors are retried according to the retry policy.
func (p *Provider) PostSave(ctx context.Context, env, artifactPath string) (string, error) {
	if _, err := os.Stat(artifactPath); err != nil {
		return "", fmt.Errorf("stat artifact: %w", err)
	}

	key := p.Key(env, filepath.Base(artifactPath))
	attempt := 0
	err := p.retry.Do(ctx, func() error {
		attempt++
		return p.backend.Upload(ctx, artifactPath, key)
	}, func(err error, wait time.Duration) {
		p.logger.Warnf("[%s] upload of %s failed (attempt %d), retrying in %s: %v", p.name, key, attempt, wait, err)
	})
	if err != nil {
		return "", fmt.Errorf("upload %s to %s failed after %d attempt(s): %w", key, p.name, attempt, err)
	}

	p.logger.Infof("[%s] uploaded %s", p.name, key)
	return key, nil
}

// AllTargetBackups lists every backup key of env, newest first.
func (p *Provider) AllTargetBackups(ctx context.Context, env string) ([]string, error) {
	prefix := p.targetPrefix(env)
	keys, err := p.backend.List(ctx, prefix)
	if err != nil {
		return nil, fmt.Errorf("list %s on %s: %w", prefix, p.name, err)
	}

	backups := keys[:0]
	for _, key := range keys {
		if strings.HasPrefix(key, prefix) && !strings.Contains(strings.TrimPrefix(key, prefix), "/") {
			backups = append(backups, key)
		}
	}
	usecase.SortNewestFirst(backups)
	return backups, nil
}

// DownloadBackup fetches key into the staging area and returns the local path.
func (p *Provider) DownloadBackup(ctx context.Context, key string) (string, error) {
	dir := filepath.Join(p.stagingDir, "download")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create download dir: %w", err)
	}

	localPath := filepath.Join(dir, path.Base(key))
	if err := p.backend.Download(ctx, key, localPath); err != nil {
		_ = os.Remove(localPath)
		return "", fmt.Errorf("download %s from %s: %w", key, p.name, err)
	}
	return localPath, nil
}

// Clean removes the local artifact and its siblings, then applies the
// retention policy to the remote listing of env. It returns deleted keys.
func (p *Provider) Clean(ctx context.Context, env, artifactPath string, policy usecase.RetentionPolicy) ([]string, error) {
	if err := removeStaged(artifactPath); err != nil {
		return nil, err
	}

	backups, err := p.AllTargetBackups(ctx, env)
	if err != nil {
		return nil, err
	}

	toDelete, err := usecase.Prune(backups, policy, p.clock().UTC())
	if err != nil {
		return nil, fmt.Errorf("retention for %s: %w", env, err)
	}
	if len(toDelete) == 0 {
		p.logger.Debugf("[%s] nothing to delete for %s (%d backups)", p.name, env, len(backups))
		return nil, nil
	}

	if err := p.backend.Delete(ctx, toDelete); err != nil {
		return nil, fmt.Errorf("delete %d backup(s) of %s from %s: %w", len(toDelete), env, p.name, err)
	}

	p.logger.Infof("[%s] deleted %d old backup(s) of %s", p.name, len(toDelete), env)
	return toDelete, nil
}

func (p *Provider) Close() error {
	return p.backend.Close()
}

// removeStaged deletes the artifact and every regular file next to it.
func removeStaged(artifactPath string) error {
	if err := os.Remove(artifactPath); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove local artifact: %w", err)
	}

	dir := filepath.Dir(artifactPath)
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("read staging dir: %w", err)
	}

	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		if err := os.Remove(filepath.Join(dir, entry.Name())); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("remove staged file %s: %w", entry.Name(), err)
		}
	}
	return nil
}
