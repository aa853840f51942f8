package usecase

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/semmidev/warden/internal/domain"
)

// Pipeline steps, used as notification and metric labels.
const (
	StepProvider = "provider"
	StepBackup   = "backup"
	StepCompress = "compress"
	StepEncrypt  = "encrypt"
	StepUpload   = "upload"
	StepClean    = "clean"
	// StepPanic labels a backup worker that panicked instead of returning.
	StepPanic = "panic"
)

// StepError is returned by Backup.Execute when a pipeline step fails.
type StepError struct {
	Step string
	Err  error
}

func (e *StepError) Error() string { return fmt.Sprintf("%s: %v", e.Step, e.Err) }

func (e *StepError) Unwrap() error { return e.Err }

type BackupOptions struct {
	StagingDir string
	Policy     RetentionPolicy
	DeleteOld  bool
	// Compressor and Encryptor are optional.
	Compressor domain.Compressor
	Encryptor  domain.Encryptor
}

// Backup runs one target's pipeline: dump, compress, encrypt, upload and
// clean. A failed step is logged, counted and alerted, and ends the run.
type Backup struct {
	target   domain.Target
	stores   StoreFactory
	opts     BackupOptions
	logger   domain.Logger
	alerter  Alerter
	recorder Recorder
	now      func() time.Time
}

func NewBackup(
	target domain.Target,
	stores StoreFactory,
	opts BackupOptions,
	logger domain.Logger,
	alerter Alerter,
	recorder Recorder,
) *Backup {
	return &Backup{
		target:   target,
		stores:   stores,
		opts:     opts,
		logger:   logger,
		alerter:  alerter,
		recorder: recorder,
		now:      time.Now,
	}
}

func (uc *Backup) Execute(ctx context.Context) error {
	start := uc.now()
	name := uc.target.Name()
	stagingDir := filepath.Join(uc.opts.StagingDir, name)
	uc.logger.Infof("[%s] Starting backup...", name)

	store, err := uc.stores(ctx)
	if err != nil {
		return uc.fail(ctx, StepProvider, err, stagingDir)
	}
	defer func() {
		if err := store.Close(); err != nil {
			uc.logger.Warnf("[%s] Failed to close %s provider: %v", name, store.Name(), err)
		}
	}()

	artifact, err := uc.target.Backup(ctx, stagingDir)
	if err != nil {
		return uc.fail(ctx, StepBackup, err, stagingDir)
	}
	if info, err := os.Stat(artifact); err == nil {
		uc.logger.Infof("[%s] Backup created, size: %.2f MB", name, float64(info.Size())/(1024*1024))
	}

	if uc.opts.Compressor != nil {
		if artifact, err = uc.transform(artifact, uc.opts.Compressor.Extension(), uc.opts.Compressor.Compress); err != nil {
			return uc.fail(ctx, StepCompress, err, stagingDir)
		}
	}

	if uc.opts.Encryptor != nil {
		if artifact, err = uc.transform(artifact, uc.opts.Encryptor.Extension(), uc.opts.Encryptor.Encrypt); err != nil {
			return uc.fail(ctx, StepEncrypt, err, stagingDir)
		}
	}

	key, err := store.PostSave(ctx, name, artifact)
	if err != nil {
		return uc.fail(ctx, StepUpload, err, stagingDir)
	}

	if uc.opts.DeleteOld {
		deleted, err := store.Clean(ctx, name, artifact, uc.opts.Policy)
		if err != nil {
			return uc.fail(ctx, StepClean, err, stagingDir)
		}
		uc.recorder.ObserveDeleted(name, len(deleted))
	} else {
		discardStaging(stagingDir)
	}

	uc.recorder.ObserveSuccess(name, uc.now())
	uc.logger.Infof("[%s] Backup completed in %s: %s", name, uc.now().Sub(start).Round(time.Second), key)
	return nil
}

// transform writes artifact+ext with fn and drops the input on success.
func (uc *Backup) transform(artifact, ext string, fn func(src, dst string) error) (string, error) {
	out := artifact + ext
	if err := fn(artifact, out); err != nil {
		_ = os.Remove(out)
		return "", err
	}
	if err := os.Remove(artifact); err != nil {
		uc.logger.Warnf("[%s] Failed to remove intermediate %s: %v", uc.target.Name(), artifact, err)
	}
	return out, nil
}

func (uc *Backup) fail(ctx context.Context, step string, err error, stagingDir string) error {
	name := uc.target.Name()
	uc.logger.Errorf("[%s] %s step failed: %v", name, step, err)
	uc.recorder.ObserveFailure(name, step)

	// A shutdown must not swallow the alert for the step it interrupted.
	msg := fmt.Sprintf("Backup of %s (%s) failed at %s: %v", name, uc.target.Type(), step, err)
	uc.alerter.Notify(context.WithoutCancel(ctx), step, msg)

	discardStaging(stagingDir)
	return &StepError{Step: step, Err: err}
}

func discardStaging(dir string) {
	_ = os.RemoveAll(dir)
}

// FailedStep returns the pipeline step err came from, or "" when err is not
// a step failure.
func FailedStep(err error) string {
	var se *StepError
	if errors.As(err, &se) {
		return se.Step
	}
	return ""
}
