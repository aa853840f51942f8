package worker

import (
	"sort"
	"sync"
	"time"
)

// PanicHandler receives the name of a worker that panicked and the recovered value.
type PanicHandler func(name string, recovered interface{})

// Registry tracks named background workers so shutdown can wait on them.
type Registry struct {
	mu      sync.Mutex
	running map[string]int
	wg      sync.WaitGroup
	onPanic PanicHandler
}

func NewRegistry(onPanic PanicHandler) *Registry {
	return &Registry{
		running: make(map[string]int),
		onPanic: onPanic,
	}
}

// Go runs fn on its own goroutine under name. A panic in fn is recovered and
// reported, it never takes the process down.
func (r *Registry) Go(name string, fn func()) {
	r.mu.Lock()
	r.running[name]++
	r.mu.Unlock()

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		defer r.release(name)
		defer func() {
			if rec := recover(); rec != nil && r.onPanic != nil {
				r.onPanic(name, rec)
			}
		}()
		fn()
	}()
}

func (r *Registry) release(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.running[name]--
	if r.running[name] <= 0 {
		delete(r.running, name)
	}
}

// Running returns the sorted names of workers still in flight.
func (r *Registry) Running() []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	names := make([]string, 0, len(r.running))
	for name, n := range r.running {
		for i := 0; i < n; i++ {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names
}

// IsRunning reports whether a worker with this name is in flight.
func (r *Registry) IsRunning(name string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.running[name] > 0
}

// Wait blocks until every worker finished or timeout elapsed, and returns the
// names of the stragglers. A negative timeout waits forever.
func (r *Registry) Wait(timeout time.Duration) []string {
	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()

	if timeout < 0 {
		<-done
		return nil
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-done:
		return nil
	case <-timer.C:
		return r.Running()
	}
}
