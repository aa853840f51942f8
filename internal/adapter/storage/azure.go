package storage

import (
	"context"
	"fmt"
	"os"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore/to"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob"

	appconfig "github.com/semmidev/warden/internal/config"
)

// AzureStorage stores backups as block blobs in one container.
type AzureStorage struct {
	client    *azblob.Client
	container string
}

func NewAzure(cfg *appconfig.AzureConfig) (*AzureStorage, error) {
	client, err := azblob.NewClientFromConnectionString(cfg.ConnectionString, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create azure blob client: %w", err)
	}

	return &AzureStorage{client: client, container: cfg.Container}, nil
}

func (a *AzureStorage) Upload(ctx context.Context, localPath string, key string) error {
	file, err := os.Open(localPath)
	if err != nil {
		return fmt.Errorf("failed to open file: %w", err)
	}
	defer file.Close()

	if _, err := a.client.UploadFile(ctx, a.container, key, file, nil); err != nil {
		return fmt.Errorf("failed to upload to azure: %w", err)
	}
	return nil
}

func (a *AzureStorage) List(ctx context.Context, prefix string) ([]string, error) {
	pager := a.client.NewListBlobsFlatPager(a.container, &azblob.ListBlobsFlatOptions{
		Prefix: to.Ptr(prefix),
	})

	var keys []string
	for pager.More() {
		page, err := pager.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to list blobs: %w", err)
		}
		for _, item := range page.Segment.BlobItems {
			if item.Name != nil {
				keys = append(keys, *item.Name)
			}
		}
	}

	return keys, nil
}

func (a *AzureStorage) Download(ctx context.Context, key, localPath string) error {
	file, err := os.Create(localPath)
	if err != nil {
		return fmt.Errorf("failed to create file: %w", err)
	}

	if _, err := a.client.DownloadFile(ctx, a.container, key, file, nil); err != nil {
		file.Close()
		return fmt.Errorf("failed to download from azure: %w", err)
	}
	return file.Close()
}

// Delete removes blobs one by one; the first failure aborts the rest.
func (a *AzureStorage) Delete(ctx context.Context, keys []string) error {
	for _, key := range keys {
		if _, err := a.client.DeleteBlob(ctx, a.container, key, nil); err != nil {
			return fmt.Errorf("failed to delete %s: %w", key, err)
		}
	}
	return nil
}

func (a *AzureStorage) Close() error { return nil }
