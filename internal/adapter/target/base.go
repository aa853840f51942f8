package target

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/semmidev/warden/internal/config"
	"github.com/semmidev/warden/internal/domain"
)

type base struct {
	cfg    config.TargetConfig
	runner Runner
	now    func() time.Time
}

func newBase(cfg config.TargetConfig, runner Runner) base {
	return base{cfg: cfg, runner: runner, now: time.Now}
}

func (b base) Name() string { return b.cfg.Name }

func (b base) Type() string { return b.cfg.Type }

// outputPath names a new artifact inside stagingDir, creating the directory.
func (b base) outputPath(stagingDir, ext string) (string, error) {
	if err := os.MkdirAll(stagingDir, 0o755); err != nil {
		return "", fmt.Errorf("create staging dir: %w", err)
	}
	return filepath.Join(stagingDir, domain.NewBackupName(b.cfg.Name, b.cfg.Type, b.now())+ext), nil
}

// runInto runs c and removes the partial artifact at path when it fails.
func (b base) runInto(ctx context.Context, path string, c Command) error {
	if err := b.runner.Run(ctx, c); err != nil {
		_ = os.Remove(path)
		return err
	}
	return nil
}
