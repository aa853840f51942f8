package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/pflag"

	"github.com/semmidev/warden/internal/app"
	"github.com/semmidev/warden/internal/config"
	"github.com/semmidev/warden/internal/domain"
	"github.com/semmidev/warden/internal/infrastructure/logger"
)

type options struct {
	configPath         string
	single             bool
	target             string
	list               bool
	restoreLatest      bool
	restore            string
	debugDownload      string
	debugNotifications bool
	debugLoop          int
	gdriveAuth         string
}

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	var opts options
	flags := pflag.NewFlagSet("warden", pflag.ContinueOnError)
	flags.StringVar(&opts.configPath, "config", "configs/config.yaml", "path to config file")
	flags.BoolVar(&opts.single, "single", false, "run one backup of every target (or --target) and exit")
	flags.StringVar(&opts.target, "target", "", "target name for --single, --list and restores")
	flags.BoolVar(&opts.list, "list", false, "print the backups of --target, newest first")
	flags.BoolVar(&opts.restoreLatest, "restore-latest", false, "restore the newest backup of --target")
	flags.StringVar(&opts.restore, "restore", "", "restore the named backup file into --target")
	flags.StringVar(&opts.debugDownload, "debug-download", "", "download a backup file into the staging area")
	flags.BoolVar(&opts.debugNotifications, "debug-notifications", false, "send a test message to every channel")
	flags.IntVar(&opts.debugLoop, "debug-loop", 0, "stop the scheduling loop after N iterations")
	flags.StringVar(&opts.gdriveAuth, "gdrive-auth", "", "serve the Google Drive OAuth flow on this address")
	flags.String("log-level", "", "override app.log_level")

	if err := flags.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return app.ExitOK
		}
		return app.ExitFailure
	}

	cfg, err := config.Load(opts.configPath, flags)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: load config: %v\n", err)
		return app.ExitFailure
	}

	log, err := logger.New(cfg.App.LogLevel, cfg.App.LogFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: initialize logger: %v\n", err)
		return app.ExitFailure
	}
	defer log.Close()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if opts.gdriveAuth != "" {
		auth, err := app.NewDriveAuth(cfg.Provider.GDrive.ClientSecretFile, log.Named("oauth"))
		if err == nil {
			err = auth.Serve(ctx, opts.gdriveAuth, os.Stdout)
		}
		return report(log, err)
	}

	application, err := app.New(cfg, log)
	if err != nil {
		log.Errorf("Initialize app: %v", err)
		return app.ExitFailure
	}

	log.Infof("Starting %s", cfg.App.Name)

	switch {
	case opts.debugNotifications:
		return report(log, application.DebugNotifications(ctx, os.Stdout))
	case opts.debugDownload != "":
		return report(log, application.DebugDownload(ctx, opts.debugDownload, os.Stdout))
	case opts.list:
		if err := requireTarget(opts); err != nil {
			return report(log, err)
		}
		return report(log, application.List(ctx, opts.target, os.Stdout))
	case opts.restoreLatest || opts.restore != "":
		if err := requireTarget(opts); err != nil {
			return report(log, err)
		}
		if err := application.VerifyTarget(ctx, opts.target); err != nil {
			return report(log, err)
		}
		if opts.restoreLatest {
			return report(log, application.RestoreLatest(ctx, opts.target, os.Stdout))
		}
		return report(log, application.Restore(ctx, opts.target, opts.restore, os.Stdout))
	}

	if err := application.Verify(ctx); err != nil {
		log.Errorf("Startup check failed: %v", err)
		return app.ExitFailure
	}

	if opts.single {
		return report(log, application.RunSingle(ctx, opts.target))
	}
	return application.Run(ctx, opts.debugLoop)
}

func requireTarget(opts options) error {
	if opts.target == "" {
		return fmt.Errorf("%w: --target is required", domain.ErrTargetNotFound)
	}
	return nil
}

// report logs err and maps it to the process exit code.
func report(log *logger.Logger, err error) int {
	if err == nil {
		return app.ExitOK
	}

	fmt.Println(err)
	switch {
	case errors.Is(err, domain.ErrNoBackups), errors.Is(err, domain.ErrBackupNotFound):
		log.Warnf("%v", err)
		return app.ExitNoBackups
	default:
		log.Errorf("%v", err)
		return app.ExitFailure
	}
}
