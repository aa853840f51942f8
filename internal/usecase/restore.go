package usecase

import (
	"context"
	"fmt"
	"os"
	"path"
	"strings"

	"github.com/semmidev/warden/internal/domain"
)

// Restore lists and restores the remote backups of one target. The
// compressor and encryptor undo the suffixes the pipeline appended.
type Restore struct {
	target     domain.Target
	store      Store
	compressor domain.Compressor
	encryptor  domain.Encryptor
	logger     domain.Logger
}

func NewRestore(target domain.Target, store Store, compressor domain.Compressor, encryptor domain.Encryptor, logger domain.Logger) *Restore {
	return &Restore{
		target:     target,
		store:      store,
		compressor: compressor,
		encryptor:  encryptor,
		logger:     logger,
	}
}

// List returns the target's backup keys newest first. An empty listing is
// ErrNoBackups.
func (uc *Restore) List(ctx context.Context) ([]string, error) {
	keys, err := uc.store.AllTargetBackups(ctx, uc.target.Name())
	if err != nil {
		return nil, err
	}
	if len(keys) == 0 {
		return nil, fmt.Errorf("%w for %s on %s", domain.ErrNoBackups, uc.target.Name(), uc.store.Name())
	}
	return keys, nil
}

// Latest restores the newest backup and returns its key.
func (uc *Restore) Latest(ctx context.Context) (string, error) {
	keys, err := uc.List(ctx)
	if err != nil {
		return "", err
	}
	return keys[0], uc.restoreKey(ctx, keys[0])
}

// Named restores the backup whose key or file name equals name.
func (uc *Restore) Named(ctx context.Context, name string) (string, error) {
	keys, err := uc.List(ctx)
	if err != nil {
		return "", err
	}
	for _, key := range keys {
		if key == name || path.Base(key) == name {
			return key, uc.restoreKey(ctx, key)
		}
	}
	return "", fmt.Errorf("%w: %s for %s", domain.ErrBackupNotFound, name, uc.target.Name())
}

func (uc *Restore) restoreKey(ctx context.Context, key string) error {
	name := uc.target.Name()
	uc.logger.Infof("[%s] Downloading %s from %s...", name, key, uc.store.Name())

	local, err := uc.store.DownloadBackup(ctx, key)
	if err != nil {
		return err
	}

	staged := []string{local}
	defer func() {
		for _, p := range staged {
			_ = os.Remove(p)
		}
	}()

	if uc.encryptor != nil && strings.HasSuffix(local, uc.encryptor.Extension()) {
		out := strings.TrimSuffix(local, uc.encryptor.Extension())
		staged = append(staged, out)
		if err := uc.encryptor.Decrypt(local, out); err != nil {
			return fmt.Errorf("decrypt %s: %w", key, err)
		}
		local = out
	} else if strings.HasSuffix(local, ".age") {
		return fmt.Errorf("%s is encrypted but no age identity is configured", key)
	}

	if uc.compressor != nil && strings.HasSuffix(local, uc.compressor.Extension()) {
		out := strings.TrimSuffix(local, uc.compressor.Extension())
		staged = append(staged, out)
		if err := uc.compressor.Decompress(local, out); err != nil {
			return fmt.Errorf("decompress %s: %w", key, err)
		}
		local = out
	}

	uc.logger.Infof("[%s] Restoring %s...", name, path.Base(key))
	if err := uc.target.Restore(ctx, local); err != nil {
		return fmt.Errorf("restore %s: %w", key, err)
	}
	uc.logger.Infof("[%s] Restore of %s completed", name, path.Base(key))
	return nil
}
