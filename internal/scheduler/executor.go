package scheduler

import (
	"sync"

	"github.com/faasmesh/faasmesh/internal/messages"
)

// Executor runs user functions for one function key. "Warm" executors are
// idle and parked for reuse; "executing" executors currently hold work. An
// executor handed more work than it has capacity for is expected to serialize
// the jobs internally.
type Executor interface {
	Id() string

	// ExecuteFunction runs the idx-th message of the batch.
	ExecuteFunction(idx int, req *messages.BatchExecuteRequest)

	// BatchExecuteThreads runs the given messages of a THREADS batch inside
	// the executor's restored snapshot.
	BatchExecuteThreads(idxs []int, req *messages.BatchExecuteRequest)

	// Flush drops any cached per-function state.
	Flush()

	// Finish tears the executor down for good.
	Finish()
}

// Owner is the narrow callback surface an executor gets to report back to the
// scheduler that created it. It deliberately omits the rest of the scheduler
// so the executor/scheduler reference cycle stays one-way.
type Owner interface {
	NotifyCallFinished(msg *messages.Message)
	NotifyExecutorFinished(exec Executor, msg *messages.Message)
	SetFunctionResult(msg *messages.Message) error
	SetThreadResult(msg *messages.Message, returnValue int32)
}

// ExecutorFactory supplies runtime-specific executors; different user
// runtimes plug in different factories.
type ExecutorFactory interface {
	NewExecutor(owner Owner, msg *messages.Message) (Executor, error)
}

var (
	factoryMutex    sync.RWMutex
	executorFactory ExecutorFactory
)

func SetExecutorFactory(f ExecutorFactory) {
	factoryMutex.Lock()
	defer factoryMutex.Unlock()
	executorFactory = f
}

func GetExecutorFactory() ExecutorFactory {
	factoryMutex.RLock()
	defer factoryMutex.RUnlock()
	return executorFactory
}
