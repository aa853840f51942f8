package target

import (
	"fmt"
	"time"

	"github.com/semmidev/warden/internal/config"
	"github.com/semmidev/warden/internal/domain"
)

// New builds the target described by cfg. Database targets shell out to the
// vendor tools, each call bounded by subprocessTimeout.
func New(cfg config.TargetConfig, subprocessTimeout time.Duration) (domain.Target, error) {
	runner := ExecRunner{Timeout: subprocessTimeout}

	switch cfg.Type {
	case "postgresql":
		return NewPostgreSQL(cfg, runner), nil
	case "mysql", "mariadb":
		return NewMySQL(cfg, runner), nil
	case "mongodb":
		return NewMongoDB(cfg, runner), nil
	case "file":
		return NewFile(cfg), nil
	case "directory":
		return NewDirectory(cfg), nil
	default:
		return nil, fmt.Errorf("unsupported target type %q for %s", cfg.Type, cfg.Name)
	}
}
