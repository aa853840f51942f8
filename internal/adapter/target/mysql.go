package target

import (
	"context"
	"fmt"
	"os"

	"github.com/semmidev/warden/internal/config"
)

// MySQL covers MySQL and MariaDB. They differ only in the client binaries.
type MySQL struct {
	base
	dumpBin   string
	clientBin string
}

func NewMySQL(cfg config.TargetConfig, runner Runner) *MySQL {
	if cfg.Port == 0 {
		cfg.Port = 3306
	}
	m := &MySQL{base: newBase(cfg, runner), dumpBin: "mysqldump", clientBin: "mysql"}
	if cfg.Type == "mariadb" {
		m.dumpBin, m.clientBin = "mariadb-dump", "mariadb"
	}
	return m
}

func (m *MySQL) connArgs() []string {
	args := []string{
		fmt.Sprintf("--host=%s", m.cfg.Host),
		fmt.Sprintf("--port=%d", m.cfg.Port),
	}
	if m.cfg.Username != "" {
		args = append(args, fmt.Sprintf("--user=%s", m.cfg.Username))
	}
	return args
}

// The password goes through the environment so it never shows in ps output.
func (m *MySQL) env() []string {
	return []string{fmt.Sprintf("MYSQL_PWD=%s", m.cfg.Password)}
}

func (m *MySQL) Ping(ctx context.Context) error {
	args := append(m.connArgs(), "-e", "SELECT 1", m.cfg.Database)
	if err := m.runner.Run(ctx, Command{Name: m.clientBin, Args: args, Env: m.env()}); err != nil {
		return fmt.Errorf("%s ping failed: %w", m.cfg.Type, err)
	}
	return nil
}

func (m *MySQL) Backup(ctx context.Context, stagingDir string) (string, error) {
	outputPath, err := m.outputPath(stagingDir, ".sql")
	if err != nil {
		return "", err
	}

	args := append(m.connArgs(),
		"--single-transaction",
		"--quick",
		"--lock-tables=false",
		"--routines",
		"--triggers",
		"--events",
		fmt.Sprintf("--result-file=%s", outputPath),
		m.cfg.Database,
	)
	if err := m.runInto(ctx, outputPath, Command{Name: m.dumpBin, Args: args, Env: m.env()}); err != nil {
		return "", err
	}
	return outputPath, nil
}

func (m *MySQL) Restore(ctx context.Context, artifactPath string) error {
	dump, err := os.Open(artifactPath)
	if err != nil {
		return fmt.Errorf("open dump: %w", err)
	}
	defer dump.Close()

	args := append(m.connArgs(), m.cfg.Database)
	return m.runner.Run(ctx, Command{Name: m.clientBin, Args: args, Env: m.env(), Stdin: dump})
}
