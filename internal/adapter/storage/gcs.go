package storage

import (
	"context"
	"fmt"
	"io"
	"os"

	"google.golang.org/api/option"
	gcs "google.golang.org/api/storage/v1"

	appconfig "github.com/semmidev/warden/internal/config"
)

// GCSStorage stores backups in a Google Cloud Storage bucket through the JSON API.
type GCSStorage struct {
	service *gcs.Service
	bucket  string
}

// NewGCS authenticates with the service account file when given, otherwise
// with application default credentials. Extra client options are appended.
func NewGCS(ctx context.Context, cfg *appconfig.GCSConfig, extra ...option.ClientOption) (*GCSStorage, error) {
	var opts []option.ClientOption
	if cfg.CredentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(cfg.CredentialsFile))
	}
	opts = append(opts, extra...)

	service, err := gcs.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create storage service: %w", err)
	}

	return &GCSStorage{service: service, bucket: cfg.Bucket}, nil
}

func (g *GCSStorage) Upload(ctx context.Context, localPath string, key string) error {
	file, err := os.Open(localPath)
	if err != nil {
		return fmt.Errorf("failed to open file: %w", err)
	}
	defer file.Close()

	_, err = g.service.Objects.Insert(g.bucket, &gcs.Object{Name: key}).
		Media(file).
		Context(ctx).
		Do()
	if err != nil {
		return fmt.Errorf("failed to upload to gcs: %w", err)
	}

	return nil
}

func (g *GCSStorage) List(ctx context.Context, prefix string) ([]string, error) {
	var keys []string
	err := g.service.Objects.List(g.bucket).
		Prefix(prefix).
		Fields("nextPageToken", "items(name)").
		Pages(ctx, func(page *gcs.Objects) error {
			for _, obj := range page.Items {
				keys = append(keys, obj.Name)
			}
			return nil
		})
	if err != nil {
		return nil, fmt.Errorf("failed to list objects: %w", err)
	}

	return keys, nil
}

func (g *GCSStorage) Download(ctx context.Context, key, localPath string) error {
	resp, err := g.service.Objects.Get(g.bucket, key).Context(ctx).Download()
	if err != nil {
		return fmt.Errorf("failed to get object: %w", err)
	}
	defer resp.Body.Close()

	file, err := os.Create(localPath)
	if err != nil {
		return fmt.Errorf("failed to create file: %w", err)
	}
	if _, err := io.Copy(file, resp.Body); err != nil {
		file.Close()
		return fmt.Errorf("failed to download from gcs: %w", err)
	}
	return file.Close()
}

// Delete removes keys one request at a time; the JSON API has no batch delete
// in this client. The first failure aborts the rest.
func (g *GCSStorage) Delete(ctx context.Context, keys []string) error {
	for _, key := range keys {
		if err := g.service.Objects.Delete(g.bucket, key).Context(ctx).Do(); err != nil {
			return fmt.Errorf("failed to delete %s: %w", key, err)
		}
	}
	return nil
}

func (g *GCSStorage) Close() error { return nil }
