package target

import (
	"context"
	"fmt"

	"github.com/semmidev/warden/internal/config"
)

// PostgreSQL dumps with pg_dump in custom format and restores with pg_restore.
type PostgreSQL struct {
	base
}

func NewPostgreSQL(cfg config.TargetConfig, runner Runner) *PostgreSQL {
	if cfg.Port == 0 {
		cfg.Port = 5432
	}
	return &PostgreSQL{base: newBase(cfg, runner)}
}

func (p *PostgreSQL) connArgs() []string {
	args := []string{
		fmt.Sprintf("--host=%s", p.cfg.Host),
		fmt.Sprintf("--port=%d", p.cfg.Port),
	}
	if p.cfg.Username != "" {
		args = append(args, fmt.Sprintf("--username=%s", p.cfg.Username))
	}
	return args
}

func (p *PostgreSQL) env() []string {
	env := []string{fmt.Sprintf("PGPASSWORD=%s", p.cfg.Password)}
	if p.cfg.SSLMode != "" {
		env = append(env, fmt.Sprintf("PGSSLMODE=%s", p.cfg.SSLMode))
	}
	return env
}

func (p *PostgreSQL) Ping(ctx context.Context) error {
	args := append(p.connArgs(), fmt.Sprintf("--dbname=%s", p.cfg.Database), "-c", "SELECT 1")
	if err := p.runner.Run(ctx, Command{Name: "psql", Args: args, Env: p.env()}); err != nil {
		return fmt.Errorf("postgresql ping failed: %w", err)
	}
	return nil
}

func (p *PostgreSQL) Backup(ctx context.Context, stagingDir string) (string, error) {
	outputPath, err := p.outputPath(stagingDir, ".dump")
	if err != nil {
		return "", err
	}

	args := append(p.connArgs(),
		"--format=custom",
		"--no-owner",
		fmt.Sprintf("--file=%s", outputPath),
		p.cfg.Database,
	)
	if err := p.runInto(ctx, outputPath, Command{Name: "pg_dump", Args: args, Env: p.env()}); err != nil {
		return "", err
	}
	return outputPath, nil
}

func (p *PostgreSQL) Restore(ctx context.Context, artifactPath string) error {
	args := append(p.connArgs(),
		"--clean",
		"--if-exists",
		"--no-owner",
		fmt.Sprintf("--dbname=%s", p.cfg.Database),
		artifactPath,
	)
	return p.runner.Run(ctx, Command{Name: "pg_restore", Args: args, Env: p.env()})
}
