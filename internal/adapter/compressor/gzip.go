package compressor

import (
	"compress/gzip"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// GzipCompressor implements domain.Compressor with gzip at best compression.
// Output is written next to the destination and renamed into place, so a
// failed run never leaves a truncated artifact behind.
type GzipCompressor struct {
	level int
}

func NewGzip() *GzipCompressor {
	return &GzipCompressor{level: gzip.BestCompression}
}

func (g *GzipCompressor) Extension() string { return ".gz" }

// Compress packs sourcePath into destPath. The gzip header records the dump's
// original file name and modification time.
func (g *GzipCompressor) Compress(sourcePath, destPath string) error {
	in, err := os.Open(sourcePath)
	if err != nil {
		return fmt.Errorf("compress %s: %w", sourcePath, err)
	}
	defer in.Close()

	info, err := in.Stat()
	if err != nil {
		return fmt.Errorf("compress %s: %w", sourcePath, err)
	}

	return writeAtomic(destPath, func(out io.Writer) error {
		zw, err := gzip.NewWriterLevel(out, g.level)
		if err != nil {
			return err
		}
		zw.Name = filepath.Base(sourcePath)
		zw.ModTime = info.ModTime()

		if _, err := io.Copy(zw, in); err != nil {
			_ = zw.Close()
			return err
		}
		return zw.Close()
	})
}

// Decompress unpacks sourcePath into destPath. A corrupt or truncated stream
// is an error and leaves destPath untouched.
func (g *GzipCompressor) Decompress(sourcePath, destPath string) error {
	in, err := os.Open(sourcePath)
	if err != nil {
		return fmt.Errorf("decompress %s: %w", sourcePath, err)
	}
	defer in.Close()

	zr, err := gzip.NewReader(in)
	if err != nil {
		return fmt.Errorf("decompress %s: not a gzip stream: %w", sourcePath, err)
	}
	defer zr.Close()

	return writeAtomic(destPath, func(out io.Writer) error {
		_, err := io.Copy(out, zr)
		return err
	})
}

// writeAtomic streams fill into a temp file beside path, syncs it and renames
// it over path. The temp file is removed on any error.
func writeAtomic(path string, fill func(io.Writer) error) (err error) {
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*")
	if err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	defer func() {
		if err != nil {
			_ = tmp.Close()
			_ = os.Remove(tmp.Name())
		}
	}()

	if err = fill(tmp); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	if err = tmp.Sync(); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	if err = tmp.Close(); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	if err = os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return nil
}
