// Package test holds fixtures shared by the package test suites.
package test

import (
	"fmt"
	"sync"

	"github.com/faasmesh/faasmesh/internal/messages"
	"github.com/faasmesh/faasmesh/internal/scheduler"
	"github.com/faasmesh/faasmesh/internal/state"
)

// DummyExecutor records the work it is handed instead of running anything.
type DummyExecutor struct {
	id    string
	owner scheduler.Owner

	mu            sync.Mutex
	executedIdxs  []int
	threadBatches [][]int
	flushed       bool
	finished      bool
}

func (e *DummyExecutor) Id() string { return e.id }

func (e *DummyExecutor) ExecuteFunction(idx int, req *messages.BatchExecuteRequest) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.executedIdxs = append(e.executedIdxs, idx)
}

func (e *DummyExecutor) BatchExecuteThreads(idxs []int, req *messages.BatchExecuteRequest) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.threadBatches = append(e.threadBatches, idxs)
}

func (e *DummyExecutor) Flush() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.flushed = true
}

func (e *DummyExecutor) Finish() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.finished = true
}

func (e *DummyExecutor) JobCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.executedIdxs) + len(e.threadBatches)
}

func (e *DummyExecutor) Flushed() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.flushed
}

func (e *DummyExecutor) Finished() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.finished
}

// DummyExecutorFactory hands out DummyExecutors and remembers every one it
// made.
type DummyExecutorFactory struct {
	mu      sync.Mutex
	created []*DummyExecutor
}

func (f *DummyExecutorFactory) NewExecutor(owner scheduler.Owner, msg *messages.Message) (scheduler.Executor, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	e := &DummyExecutor{
		id:    fmt.Sprintf("dummy-%d", len(f.created)),
		owner: owner,
	}
	f.created = append(f.created, e)
	return e, nil
}

func (f *DummyExecutorFactory) Created() []*DummyExecutor {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]*DummyExecutor{}, f.created...)
}

// SetUpScheduler wires a fresh scheduler to an in-process store and a dummy
// executor factory, mirroring what the daemon does at boot.
func SetUpScheduler(host string) (*scheduler.Scheduler, *DummyExecutorFactory, state.Store) {
	store := state.NewLocalStore()
	sched := scheduler.Init(host, store)

	factory := &DummyExecutorFactory{}
	scheduler.SetExecutorFactory(factory)

	sched.AddHostToGlobalSet(host)
	return sched, factory, store
}
