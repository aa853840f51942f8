package target

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/semmidev/warden/internal/config"
)

// File backs up a single regular file by copying it.
type File struct {
	base
}

func NewFile(cfg config.TargetConfig) *File {
	return &File{base: newBase(cfg, nil)}
}

func (f *File) Ping(ctx context.Context) error {
	info, err := os.Stat(f.cfg.Path)
	if err != nil {
		return fmt.Errorf("file target: %w", err)
	}
	if !info.Mode().IsRegular() {
		return fmt.Errorf("file target: %s is not a regular file", f.cfg.Path)
	}
	return nil
}

func (f *File) Backup(ctx context.Context, stagingDir string) (string, error) {
	outputPath, err := f.outputPath(stagingDir, filepath.Ext(f.cfg.Path))
	if err != nil {
		return "", err
	}
	if err := copyFile(f.cfg.Path, outputPath); err != nil {
		_ = os.Remove(outputPath)
		return "", err
	}
	return outputPath, nil
}

// Restore replaces the configured file. The copy lands next to it first and
// is renamed into place, so a failed restore leaves the original intact.
func (f *File) Restore(ctx context.Context, artifactPath string) error {
	tmp := f.cfg.Path + ".restore"
	if err := copyFile(artifactPath, tmp); err != nil {
		_ = os.Remove(tmp)
		return err
	}
	if err := os.Rename(tmp, f.cfg.Path); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("replace %s: %w", f.cfg.Path, err)
	}
	return nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("failed to open source file: %w", err)
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return fmt.Errorf("failed to create dest file: %w", err)
	}

	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return fmt.Errorf("failed to copy file: %w", err)
	}
	if err := out.Sync(); err != nil {
		out.Close()
		return fmt.Errorf("failed to sync file: %w", err)
	}
	return out.Close()
}
