package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"
	"time"

	"github.com/semmidev/warden/internal/adapter/compressor"
	"github.com/semmidev/warden/internal/adapter/encryptor"
	"github.com/semmidev/warden/internal/adapter/notifier"
	"github.com/semmidev/warden/internal/adapter/storage"
	"github.com/semmidev/warden/internal/adapter/target"
	"github.com/semmidev/warden/internal/config"
	"github.com/semmidev/warden/internal/domain"
	"github.com/semmidev/warden/internal/infrastructure/logger"
	"github.com/semmidev/warden/internal/infrastructure/metrics"
	"github.com/semmidev/warden/internal/infrastructure/scheduler"
	"github.com/semmidev/warden/internal/infrastructure/worker"
	"github.com/semmidev/warden/internal/usecase"
)

// Process exit codes.
const (
	ExitOK = 0
	// ExitFailure covers unknown targets and any other command error.
	ExitFailure   = 1
	ExitForced    = 1
	ExitNoBackups = 2
)

var (
	ErrBackupsFailed = errors.New("backups failed")
	ErrNoChannels    = errors.New("no notification channels configured")
)

type pipeline interface {
	Execute(ctx context.Context) error
}

type job struct {
	cfg      config.TargetConfig
	target   domain.Target
	schedule *scheduler.Schedule
	pipeline pipeline
}

type App struct {
	config     *config.Config
	logger     *logger.Logger
	jobs       []*job
	stores     *storage.Factory
	dispatcher *notifier.Dispatcher
	metrics    *metrics.Metrics
	metricsSrv *metrics.Server
	workers    *worker.Registry
	compressor domain.Compressor
	encryptor  *encryptor.AgeEncryptor
	clock      func() time.Time
}

// New wires every target, its schedule and its pipeline. It does not touch
// the network; call Verify before scheduling backups.
func New(cfg *config.Config, log *logger.Logger) (*App, error) {
	dispatcher, err := notifier.FromConfig(cfg, log.Named("notifier"))
	if err != nil {
		return nil, fmt.Errorf("failed to initialize notifications: %w", err)
	}

	a := &App{
		config:     cfg,
		logger:     log,
		stores:     storage.NewFactory(cfg.Provider, cfg.App.StagingPath, log.Named(cfg.Provider.Type)),
		dispatcher: dispatcher,
		metrics:    metrics.New(),
		clock:      time.Now,
	}
	a.workers = worker.NewRegistry(a.onPanic)

	if cfg.Backup.Compress {
		a.compressor = compressor.NewGzip()
	}
	if len(cfg.Backup.AgeRecipients) > 0 || cfg.Backup.AgeIdentityFile != "" {
		a.encryptor, err = encryptor.NewAge(cfg.Backup.AgeRecipients, cfg.Backup.AgeIdentityFile)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize encryption: %w", err)
		}
	}

	for _, tc := range cfg.Targets {
		j, err := a.newJob(tc)
		if err != nil {
			return nil, err
		}
		a.jobs = append(a.jobs, j)
	}

	if len(a.jobs) == 0 {
		return nil, fmt.Errorf("no targets configured")
	}

	return a, nil
}

func (a *App) newJob(tc config.TargetConfig) (*job, error) {
	tgt, err := target.New(tc, a.config.App.SubprocessTimeout)
	if err != nil {
		return nil, err
	}

	sched, err := scheduler.NewSchedule(tc.CronRule, func() time.Time { return a.clock() })
	if err != nil {
		return nil, fmt.Errorf("target %s: %w", tc.Name, err)
	}

	opts := usecase.BackupOptions{
		StagingDir: a.config.App.StagingPath,
		Policy:     tc.Retention(),
		DeleteOld:  a.config.Backup.DeleteOldBackups,
		Compressor: a.compressor,
	}
	if len(a.config.Backup.AgeRecipients) > 0 {
		opts.Encryptor = a.encryptor
	}

	return &job{
		cfg:      tc,
		target:   tgt,
		schedule: sched,
		pipeline: usecase.NewBackup(tgt, a.openStore, opts, a.logger.Named(tc.Name).With("type", tc.Type), a.dispatcher, a.metrics),
	}, nil
}

// onPanic counts and reports a worker that panicked like any other failed
// backup, so a crash is never silent.
func (a *App) onPanic(name string, rec interface{}) {
	a.logger.Errorf("Worker %s panicked: %v", name, rec)
	a.metrics.ObserveFailure(name, usecase.StepPanic)
	a.dispatcher.Notify(context.Background(), usecase.StepPanic,
		fmt.Sprintf("Backup worker for %s panicked: %v", name, rec))
}

func (a *App) openStore(ctx context.Context) (usecase.Store, error) {
	p, err := a.stores.New(ctx)
	if err != nil {
		return nil, err
	}
	return p, nil
}

// Verify checks that every target answers and the provider can be opened.
// Any failure aborts startup.
func (a *App) Verify(ctx context.Context) error {
	for _, j := range a.jobs {
		if err := a.ping(ctx, j); err != nil {
			return err
		}
	}
	return a.verifyStore(ctx)
}

// VerifyTarget is Verify limited to the named target, so a restore does not
// depend on unrelated targets being up.
func (a *App) VerifyTarget(ctx context.Context, name string) error {
	j, err := a.findJob(name)
	if err != nil {
		return err
	}
	if err := a.ping(ctx, j); err != nil {
		return err
	}
	return a.verifyStore(ctx)
}

func (a *App) ping(ctx context.Context, j *job) error {
	if err := j.target.Ping(ctx); err != nil {
		return fmt.Errorf("target %s unreachable: %w", j.cfg.Name, err)
	}
	a.logger.Infof("✓ Connected to %s (%s)", j.cfg.Name, j.cfg.Type)
	return nil
}

func (a *App) verifyStore(ctx context.Context) error {
	store, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	a.logger.Infof("✓ Storage provider %s ready", store.Name())
	return store.Close()
}

func (a *App) findJob(name string) (*job, error) {
	for _, j := range a.jobs {
		if j.cfg.Name == name {
			return j, nil
		}
	}
	return nil, fmt.Errorf("%w: %s", domain.ErrTargetNotFound, name)
}

// Run schedules backups until ctx is cancelled, or for maxIterations due
// checks when maxIterations is positive. In-flight workers then get the
// configured shutdown timeout to finish. It returns ExitOK when they all did
// and ExitForced otherwise.
func (a *App) Run(ctx context.Context, maxIterations int) int {
	a.startMetrics()
	defer a.stopMetrics()

	// Workers outlive ctx: a shutdown waits for them instead of killing them.
	workCtx, cancelWork := context.WithCancel(context.WithoutCancel(ctx))
	defer cancelWork()

	for _, j := range a.jobs {
		a.logger.Infof("Scheduled %s (%s): next backup at %s",
			j.cfg.Name, j.schedule.Rule(), j.schedule.NextBackupTime().Format(time.RFC3339))
	}
	a.logger.Infof("Application started with %d target(s), provider %s", len(a.jobs), a.config.Provider.Type)

	ticker := time.NewTicker(a.config.App.LoopInterval)
	defer ticker.Stop()

loop:
	for i := 0; maxIterations <= 0 || i < maxIterations; i++ {
		a.dispatchDue(workCtx)

		select {
		case <-ctx.Done():
			a.logger.Infof("Shutdown requested, no new backups will start")
			break loop
		case <-ticker.C:
		}
	}

	return a.drain()
}

func (a *App) dispatchDue(ctx context.Context) {
	for _, j := range a.jobs {
		if !j.schedule.IsDue() {
			continue
		}
		if a.workers.IsRunning(j.cfg.Name) {
			a.logger.Warnf("[%s] Previous backup still running, skipping this run", j.cfg.Name)
			continue
		}
		a.logger.Infof("=== Triggered scheduled backup for %s ===", j.cfg.Name)
		a.spawn(ctx, j)
	}
}

func (a *App) spawn(ctx context.Context, j *job) {
	a.workers.Go(j.cfg.Name, func() {
		a.metrics.WorkersRunning.Inc()
		defer a.metrics.WorkersRunning.Dec()
		_ = j.pipeline.Execute(ctx)
	})
}

func (a *App) drain() int {
	if running := a.workers.Running(); len(running) > 0 {
		a.logger.Infof("Waiting up to %s for %d worker(s): %s",
			a.config.App.ShutdownTimeout, len(running), strings.Join(running, ", "))
	}

	if stragglers := a.workers.Wait(a.config.App.ShutdownTimeout); len(stragglers) > 0 {
		a.logger.Errorf("Forced exit, abandoning worker(s): %s", strings.Join(stragglers, ", "))
		return ExitForced
	}

	a.logger.Infof("All workers finished")
	return ExitOK
}

// RunSingle backs up every target, or only the named one, and waits for all
// of them. Like Run, cancelling ctx does not interrupt a backup in flight.
func (a *App) RunSingle(ctx context.Context, name string) error {
	jobs := a.jobs
	if name != "" {
		j, err := a.findJob(name)
		if err != nil {
			return err
		}
		jobs = []*job{j}
	}

	workCtx := context.WithoutCancel(ctx)
	steps := make([]string, len(jobs))
	for i, j := range jobs {
		// Stays StepPanic unless Execute returns.
		steps[i] = usecase.StepPanic
		a.workers.Go(j.cfg.Name, func() {
			a.metrics.WorkersRunning.Inc()
			defer a.metrics.WorkersRunning.Dec()
			err := j.pipeline.Execute(workCtx)
			switch {
			case err == nil:
				steps[i] = ""
			case usecase.FailedStep(err) != "":
				steps[i] = usecase.FailedStep(err)
			default:
				steps[i] = "error"
			}
		})
	}
	a.workers.Wait(-1)

	var failed []string
	for i, step := range steps {
		if step != "" {
			failed = append(failed, fmt.Sprintf("%s (%s)", jobs[i].cfg.Name, step))
		}
	}
	if len(failed) > 0 {
		return fmt.Errorf("%w: %d of %d: %s", ErrBackupsFailed, len(failed), len(jobs), strings.Join(failed, ", "))
	}
	return nil
}

func (a *App) restorer(ctx context.Context, name string) (*usecase.Restore, func(), error) {
	j, err := a.findJob(name)
	if err != nil {
		return nil, nil, err
	}

	store, err := a.openStore(ctx)
	if err != nil {
		return nil, nil, err
	}

	var enc domain.Encryptor
	if a.encryptor != nil {
		enc = a.encryptor
	}
	uc := usecase.NewRestore(j.target, store, compressor.NewGzip(), enc, a.logger.Named(name))
	return uc, func() { _ = store.Close() }, nil
}

// List prints the backups of the named target, newest first.
func (a *App) List(ctx context.Context, name string, w io.Writer) error {
	uc, closeStore, err := a.restorer(ctx, name)
	if err != nil {
		return err
	}
	defer closeStore()

	keys, err := uc.List(ctx)
	if err != nil {
		return err
	}
	for _, key := range keys {
		fmt.Fprintln(w, key)
	}
	return nil
}

func (a *App) RestoreLatest(ctx context.Context, name string, w io.Writer) error {
	uc, closeStore, err := a.restorer(ctx, name)
	if err != nil {
		return err
	}
	defer closeStore()

	key, err := uc.Latest(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintf(w, "Restored %s into %s\n", key, name)
	return nil
}

func (a *App) Restore(ctx context.Context, name, file string, w io.Writer) error {
	uc, closeStore, err := a.restorer(ctx, name)
	if err != nil {
		return err
	}
	defer closeStore()

	key, err := uc.Named(ctx, file)
	if err != nil {
		return err
	}
	fmt.Fprintf(w, "Restored %s into %s\n", key, name)
	return nil
}

// DebugDownload fetches one backup into the staging area without restoring
// it. The owning target is the longest target name file starts with.
func (a *App) DebugDownload(ctx context.Context, file string, w io.Writer) error {
	base := path.Base(file)
	var owner *job
	for _, j := range a.jobs {
		if strings.HasPrefix(base, j.cfg.Name+"_") && (owner == nil || len(j.cfg.Name) > len(owner.cfg.Name)) {
			owner = j
		}
	}
	if owner == nil {
		return fmt.Errorf("%w: no target owns %s", domain.ErrTargetNotFound, file)
	}

	store, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	defer store.Close()

	keys, err := store.AllTargetBackups(ctx, owner.cfg.Name)
	if err != nil {
		return err
	}

	for _, key := range keys {
		if key == file || path.Base(key) == base {
			local, err := store.DownloadBackup(ctx, key)
			if err != nil {
				return err
			}
			fmt.Fprintf(w, "Downloaded %s to %s\n", key, local)
			return nil
		}
	}
	return fmt.Errorf("%w: %s", domain.ErrBackupNotFound, file)
}

// DebugNotifications sends a test message through every configured channel.
func (a *App) DebugNotifications(ctx context.Context, w io.Writer) error {
	channels := a.dispatcher.Channels()
	if len(channels) == 0 {
		return ErrNoChannels
	}

	delivered := a.dispatcher.Notify(ctx, "debug", fmt.Sprintf("Test notification from %s", a.config.App.Name))
	fmt.Fprintf(w, "Delivered to %d of %d channel(s): %s\n", delivered, len(channels), strings.Join(channels, ", "))
	if delivered < len(channels) {
		return fmt.Errorf("notification delivery failed on %d channel(s)", len(channels)-delivered)
	}
	return nil
}

func (a *App) startMetrics() {
	if a.config.App.MetricsAddr == "" {
		return
	}
	srv := metrics.NewServer(a.config.App.MetricsAddr, a.metrics)
	srv.Start(func(err error) {
		a.logger.Errorf("Metrics server error: %v", err)
	})
	a.metricsSrv = srv
	a.logger.Infof("Metrics listening on %s", a.config.App.MetricsAddr)
}

func (a *App) stopMetrics() {
	if a.metricsSrv == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := a.metricsSrv.Shutdown(ctx); err != nil {
		a.logger.Warnf("%v", err)
	}
}
