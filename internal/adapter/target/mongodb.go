package target

import (
	"context"
	"fmt"
	"net/url"

	"github.com/semmidev/warden/internal/config"
)

// MongoDB dumps one database into a mongodump archive.
type MongoDB struct {
	base
}

func NewMongoDB(cfg config.TargetConfig, runner Runner) *MongoDB {
	if cfg.Port == 0 {
		cfg.Port = 27017
	}
	return &MongoDB{base: newBase(cfg, runner)}
}

func (m *MongoDB) uri() string {
	u := url.URL{
		Scheme: "mongodb",
		Host:   fmt.Sprintf("%s:%d", m.cfg.Host, m.cfg.Port),
		Path:   "/" + m.cfg.Database,
	}
	if m.cfg.Username != "" {
		u.User = url.UserPassword(m.cfg.Username, m.cfg.Password)
	}
	if m.cfg.AuthDatabase != "" {
		u.RawQuery = url.Values{"authSource": {m.cfg.AuthDatabase}}.Encode()
	}
	return u.String()
}

func (m *MongoDB) Ping(ctx context.Context) error {
	c := Command{Name: "mongosh", Args: []string{m.uri(), "--quiet", "--eval", "db.runCommand({ ping: 1 })"}}
	if err := m.runner.Run(ctx, c); err != nil {
		return fmt.Errorf("mongodb ping failed: %w", err)
	}
	return nil
}

func (m *MongoDB) Backup(ctx context.Context, stagingDir string) (string, error) {
	outputPath, err := m.outputPath(stagingDir, ".archive")
	if err != nil {
		return "", err
	}

	args := []string{
		fmt.Sprintf("--uri=%s", m.uri()),
		fmt.Sprintf("--archive=%s", outputPath),
	}
	if err := m.runInto(ctx, outputPath, Command{Name: "mongodump", Args: args}); err != nil {
		return "", err
	}
	return outputPath, nil
}

func (m *MongoDB) Restore(ctx context.Context, artifactPath string) error {
	args := []string{
		fmt.Sprintf("--uri=%s", m.uri()),
		fmt.Sprintf("--archive=%s", artifactPath),
		"--drop",
	}
	return m.runner.Run(ctx, Command{Name: "mongorestore", Args: args})
}
