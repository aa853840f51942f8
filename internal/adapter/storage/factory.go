package storage

import (
	"context"
	"fmt"
	"time"

	appconfig "github.com/semmidev/warden/internal/config"
	"github.com/semmidev/warden/internal/domain"
)

// Factory builds a fresh Provider on every call. Workers never share one:
// several SDK clients keep sessions that are not safe across goroutines.
type Factory struct {
	cfg        appconfig.ProviderConfig
	stagingDir string
	logger     domain.Logger
	clock      func() time.Time
}

func NewFactory(cfg appconfig.ProviderConfig, stagingDir string, logger domain.Logger) *Factory {
	return &Factory{cfg: cfg, stagingDir: stagingDir, logger: logger, clock: time.Now}
}

func (f *Factory) New(ctx context.Context) (*Provider, error) {
	backend, err := f.backend(ctx)
	if err != nil {
		return nil, fmt.Errorf("initialize %s provider: %w", f.cfg.Type, err)
	}

	return NewProvider(f.cfg.Type, backend, Options{
		Prefix:     f.cfg.Prefix,
		StagingDir: f.stagingDir,
		Retry: RetryPolicy{
			Attempts:        f.cfg.UploadAttempts,
			InitialInterval: f.cfg.UploadBackoff,
		},
		Logger: f.logger,
		Clock:  f.clock,
	}), nil
}

func (f *Factory) backend(ctx context.Context) (domain.Backend, error) {
	switch f.cfg.Type {
	case "local":
		return NewLocal(f.cfg.Local.Path)
	case "s3":
		return NewS3(ctx, &f.cfg.S3)
	case "gcs":
		return NewGCS(ctx, &f.cfg.GCS)
	case "azure":
		return NewAzure(&f.cfg.Azure)
	case "gdrive":
		return NewGDrive(ctx, &f.cfg.GDrive)
	default:
		return nil, fmt.Errorf("unknown provider type %q", f.cfg.Type)
	}
}
