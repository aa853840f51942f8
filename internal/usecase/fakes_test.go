package usecase

import (
	"context"
	"errors"
	"os"
	"path"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/semmidev/warden/internal/domain"
)

type nopLogger struct{}

func (nopLogger) Debugf(string, ...interface{}) {}
func (nopLogger) Infof(string, ...interface{})  {}
func (nopLogger) Warnf(string, ...interface{})  {}
func (nopLogger) Errorf(string, ...interface{}) {}

type fakeTarget struct {
	name      string
	backupErr error
	restored  []string
	content   map[string]string
}

func (t *fakeTarget) Name() string                   { return t.name }
func (t *fakeTarget) Type() string                   { return "file" }
func (t *fakeTarget) Ping(ctx context.Context) error { return nil }

func (t *fakeTarget) Backup(ctx context.Context, stagingDir string) (string, error) {
	if t.backupErr != nil {
		return "", t.backupErr
	}
	if err := os.MkdirAll(stagingDir, 0o755); err != nil {
		return "", err
	}
	p := filepath.Join(stagingDir, domain.NewBackupName(t.name, "file", time.Now())+".txt")
	return p, os.WriteFile(p, []byte("payload"), 0o644)
}

func (t *fakeTarget) Restore(ctx context.Context, artifactPath string) error {
	data, err := os.ReadFile(artifactPath)
	if err != nil {
		return err
	}
	if t.content == nil {
		t.content = map[string]string{}
	}
	t.restored = append(t.restored, filepath.Base(artifactPath))
	t.content[filepath.Base(artifactPath)] = string(data)
	return nil
}

// suffixer is a Compressor and Encryptor that tags content instead of
// transforming it.
type suffixer struct {
	ext  string
	fail bool
}

func (s suffixer) Extension() string { return s.ext }

func (s suffixer) wrap(src, dst string) error {
	if s.fail {
		return errors.New(s.ext + " failed")
	}
	data, err := os.ReadFile(src)
	if err != nil {
		return err
	}
	return os.WriteFile(dst, append([]byte(s.ext+":"), data...), 0o644)
}

func (s suffixer) unwrap(src, dst string) error {
	data, err := os.ReadFile(src)
	if err != nil {
		return err
	}
	return os.WriteFile(dst, data[len(s.ext)+1:], 0o644)
}

func (s suffixer) Compress(src, dst string) error   { return s.wrap(src, dst) }
func (s suffixer) Decompress(src, dst string) error { return s.unwrap(src, dst) }
func (s suffixer) Encrypt(src, dst string) error    { return s.wrap(src, dst) }
func (s suffixer) Decrypt(src, dst string) error    { return s.unwrap(src, dst) }

type memoryStore struct {
	mu         sync.Mutex
	objects    map[string][]byte
	downloadTo string
	uploadErr  error
	cleanErr   error
	cleaned    int
	closed     int
}

func newMemoryStore(downloadTo string) *memoryStore {
	return &memoryStore{objects: map[string][]byte{}, downloadTo: downloadTo}
}

func (s *memoryStore) Name() string { return "memory" }

func (s *memoryStore) Key(env, filename string) string { return path.Join("bk", env, filename) }

func (s *memoryStore) PostSave(ctx context.Context, env, artifactPath string) (string, error) {
	if s.uploadErr != nil {
		return "", s.uploadErr
	}
	data, err := os.ReadFile(artifactPath)
	if err != nil {
		return "", err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	key := s.Key(env, filepath.Base(artifactPath))
	s.objects[key] = data
	return key, nil
}

func (s *memoryStore) AllTargetBackups(ctx context.Context, env string) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var keys []string
	for k := range s.objects {
		if path.Dir(k) == path.Join("bk", env) {
			keys = append(keys, k)
		}
	}
	sort.Sort(sort.Reverse(sort.StringSlice(keys)))
	return keys, nil
}

func (s *memoryStore) DownloadBackup(ctx context.Context, key string) (string, error) {
	s.mu.Lock()
	data, ok := s.objects[key]
	s.mu.Unlock()
	if !ok {
		return "", errors.New("no such key")
	}
	p := filepath.Join(s.downloadTo, path.Base(key))
	return p, os.WriteFile(p, data, 0o644)
}

func (s *memoryStore) Clean(ctx context.Context, env, artifactPath string, policy RetentionPolicy) ([]string, error) {
	if s.cleanErr != nil {
		return nil, s.cleanErr
	}
	_ = os.RemoveAll(filepath.Dir(artifactPath))
	s.cleaned++
	keys, _ := s.AllTargetBackups(ctx, env)
	doomed, err := Prune(keys, policy, time.Now().UTC())
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, k := range doomed {
		delete(s.objects, k)
	}
	return doomed, nil
}

func (s *memoryStore) Close() error {
	s.closed++
	return nil
}

type recordingAlerter struct {
	steps    []string
	messages []string
	ctxErr   error
}

func (a *recordingAlerter) Notify(ctx context.Context, step, message string) int {
	a.steps = append(a.steps, step)
	a.messages = append(a.messages, message)
	a.ctxErr = ctx.Err()
	return 1
}

type countingRecorder struct {
	successes int
	failures  map[string]int
	deleted   int
}

func newCountingRecorder() *countingRecorder {
	return &countingRecorder{failures: map[string]int{}}
}

func (r *countingRecorder) ObserveSuccess(target string, at time.Time) { r.successes++ }
func (r *countingRecorder) ObserveFailure(target, step string)         { r.failures[step]++ }
func (r *countingRecorder) ObserveDeleted(target string, n int)        { r.deleted += n }
