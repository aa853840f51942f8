package target

import (
	"archive/tar"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/semmidev/warden/internal/config"
)

// Directory archives a directory tree into a tar file. Compression is left to
// the pipeline's compressor.
type Directory struct {
	base
}

func NewDirectory(cfg config.TargetConfig) *Directory {
	return &Directory{base: newBase(cfg, nil)}
}

func (d *Directory) Ping(ctx context.Context) error {
	info, err := os.Stat(d.cfg.Path)
	if err != nil {
		return fmt.Errorf("directory target: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("directory target: %s is not a directory", d.cfg.Path)
	}
	return nil
}

func (d *Directory) Backup(ctx context.Context, stagingDir string) (string, error) {
	outputPath, err := d.outputPath(stagingDir, ".tar")
	if err != nil {
		return "", err
	}
	if err := d.archive(ctx, outputPath); err != nil {
		_ = os.Remove(outputPath)
		return "", err
	}
	return outputPath, nil
}

func (d *Directory) archive(ctx context.Context, outputPath string) error {
	out, err := os.Create(outputPath)
	if err != nil {
		return fmt.Errorf("failed to create archive: %w", err)
	}
	defer out.Close()

	tw := tar.NewWriter(out)
	root := d.cfg.Path

	err = filepath.WalkDir(root, func(p string, entry fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}

		rel, err := filepath.Rel(root, p)
		if err != nil || rel == "." {
			return err
		}

		info, err := entry.Info()
		if err != nil {
			return err
		}

		var link string
		if info.Mode()&fs.ModeSymlink != 0 {
			if link, err = os.Readlink(p); err != nil {
				return err
			}
		}

		hdr, err := tar.FileInfoHeader(info, link)
		if err != nil {
			return err
		}
		hdr.Name = filepath.ToSlash(rel)
		if err := tw.WriteHeader(hdr); err != nil {
			return err
		}

		if !info.Mode().IsRegular() {
			return nil
		}
		f, err := os.Open(p)
		if err != nil {
			return err
		}
		defer f.Close()
		_, err = io.Copy(tw, f)
		return err
	})
	if err != nil {
		return fmt.Errorf("failed to archive %s: %w", root, err)
	}

	if err := tw.Close(); err != nil {
		return fmt.Errorf("failed to finish archive: %w", err)
	}
	return out.Sync()
}

// Restore extracts the archive over the configured directory. Existing files
// not present in the archive are left alone.
func (d *Directory) Restore(ctx context.Context, artifactPath string) error {
	in, err := os.Open(artifactPath)
	if err != nil {
		return fmt.Errorf("failed to open archive: %w", err)
	}
	defer in.Close()

	root := filepath.Clean(d.cfg.Path)
	if err := os.MkdirAll(root, 0o755); err != nil {
		return fmt.Errorf("create %s: %w", root, err)
	}

	tr := tar.NewReader(in)
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		hdr, err := tr.Next()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("failed to read archive: %w", err)
		}

		dest := filepath.Join(root, filepath.FromSlash(hdr.Name))
		if dest != root && !strings.HasPrefix(dest, root+string(os.PathSeparator)) {
			return fmt.Errorf("archive entry %q escapes %s", hdr.Name, root)
		}

		if err := extractEntry(tr, hdr, dest); err != nil {
			return fmt.Errorf("extract %s: %w", hdr.Name, err)
		}
	}
}

func extractEntry(tr *tar.Reader, hdr *tar.Header, dest string) error {
	mode := hdr.FileInfo().Mode()

	switch hdr.Typeflag {
	case tar.TypeDir:
		return os.MkdirAll(dest, mode.Perm()|0o700)
	case tar.TypeSymlink:
		if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
			return err
		}
		_ = os.Remove(dest)
		return os.Symlink(hdr.Linkname, dest)
	case tar.TypeReg:
		if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
			return err
		}
		f, err := os.OpenFile(dest, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, mode.Perm())
		if err != nil {
			return err
		}
		if _, err := io.Copy(f, tr); err != nil {
			f.Close()
			return err
		}
		return f.Close()
	default:
		return nil
	}
}
