package storage

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/drive/v3"
	"google.golang.org/api/option"

	appconfig "github.com/semmidev/warden/internal/config"
)

// GDriveStorage keeps backups flat in one Drive folder. Drive has no paths,
// so the full key is used as the file name.
type GDriveStorage struct {
	service  *drive.Service
	folderID string
}

func NewGDrive(ctx context.Context, cfg *appconfig.GDriveConfig) (*GDriveStorage, error) {
	var opt option.ClientOption
	switch {
	case cfg.CredentialsFile != "":
		opt = option.WithCredentialsFile(cfg.CredentialsFile)
	default:
		ts, err := RefreshTokenSource(ctx, cfg.ClientSecretFile, cfg.RefreshToken)
		if err != nil {
			return nil, err
		}
		opt = option.WithTokenSource(ts)
	}

	service, err := drive.NewService(ctx, opt)
	if err != nil {
		return nil, fmt.Errorf("failed to create drive service: %w", err)
	}

	return &GDriveStorage{
		service:  service,
		folderID: cfg.FolderID,
	}, nil
}

// RefreshTokenSource builds a token source from an OAuth client secret and a
// refresh token obtained once with the auth helper.
func RefreshTokenSource(ctx context.Context, clientSecretFile, refreshToken string) (oauth2.TokenSource, error) {
	b, err := os.ReadFile(clientSecretFile)
	if err != nil {
		return nil, fmt.Errorf("unable to read client secret: %w", err)
	}

	cfg, err := google.ConfigFromJSON(b, drive.DriveFileScope)
	if err != nil {
		return nil, fmt.Errorf("unable to parse client secret: %w", err)
	}

	return cfg.TokenSource(ctx, &oauth2.Token{RefreshToken: refreshToken}), nil
}

func (g *GDriveStorage) Upload(ctx context.Context, localPath string, key string) error {
	file, err := os.Open(localPath)
	if err != nil {
		return fmt.Errorf("failed to open file: %w", err)
	}
	defer file.Close()

	fileMetadata := &drive.File{
		Name:    key,
		Parents: []string{g.folderID},
	}

	_, err = g.service.Files.Create(fileMetadata).
		Media(file).
		Context(ctx).
		Do()
	if err != nil {
		return fmt.Errorf("failed to upload to gdrive: %w", err)
	}

	return nil
}

func (g *GDriveStorage) List(ctx context.Context, prefix string) ([]string, error) {
	query := fmt.Sprintf("'%s' in parents and trashed=false and name contains '%s'",
		g.folderID, escapeQuery(prefix))

	var files []string
	err := g.service.Files.List().
		Q(query).
		Fields("nextPageToken", "files(id, name)").
		Pages(ctx, func(page *drive.FileList) error {
			for _, file := range page.Files {
				// "contains" matches anywhere in the name
				if strings.HasPrefix(file.Name, prefix) {
					files = append(files, file.Name)
				}
			}
			return nil
		})
	if err != nil {
		return nil, fmt.Errorf("failed to list files: %w", err)
	}

	return files, nil
}

func (g *GDriveStorage) Download(ctx context.Context, key, localPath string) error {
	id, err := g.findID(ctx, key)
	if err != nil {
		return err
	}

	resp, err := g.service.Files.Get(id).Context(ctx).Download()
	if err != nil {
		return fmt.Errorf("failed to download file: %w", err)
	}
	defer resp.Body.Close()

	file, err := os.Create(localPath)
	if err != nil {
		return fmt.Errorf("failed to create file: %w", err)
	}
	if _, err := io.Copy(file, resp.Body); err != nil {
		file.Close()
		return fmt.Errorf("failed to write file: %w", err)
	}
	return file.Close()
}

func (g *GDriveStorage) Delete(ctx context.Context, keys []string) error {
	for _, key := range keys {
		id, err := g.findID(ctx, key)
		if err != nil {
			return err
		}
		if err := g.service.Files.Delete(id).Context(ctx).Do(); err != nil {
			return fmt.Errorf("failed to delete file: %w", err)
		}
	}
	return nil
}

func (g *GDriveStorage) Close() error { return nil }

func (g *GDriveStorage) findID(ctx context.Context, key string) (string, error) {
	query := fmt.Sprintf("'%s' in parents and name='%s' and trashed=false", g.folderID, escapeQuery(key))

	fileList, err := g.service.Files.List().
		Q(query).
		Fields("files(id)").
		Context(ctx).
		Do()
	if err != nil {
		return "", fmt.Errorf("failed to find file: %w", err)
	}

	if len(fileList.Files) == 0 {
		return "", fmt.Errorf("file not found: %s", key)
	}
	return fileList.Files[0].Id, nil
}

func escapeQuery(s string) string {
	return strings.NewReplacer(`\`, `\\`, `'`, `\'`).Replace(s)
}
