package scheduler

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"math/rand"
	"runtime"
	"sync"
	"time"

	"github.com/faasmesh/faasmesh/internal/config"
	"github.com/faasmesh/faasmesh/internal/messages"
	"github.com/faasmesh/faasmesh/internal/metrics"
	"github.com/faasmesh/faasmesh/internal/snapshot"
	"github.com/faasmesh/faasmesh/internal/state"
	"github.com/faasmesh/faasmesh/internal/transport"
	"github.com/faasmesh/faasmesh/utils"
)

var NoMasterHostErr = errors.New("message has no master host")
var EmptySnapshotErr = errors.New("empty snapshot for distributed threads/processes")
var UnregisteredThreadErr = errors.New("awaiting unregistered thread")
var ChainedCallFailedErr = errors.New("chained call failed")

const DefaultResultTtlSec = 30
const DefaultStatusTtlSec = 300

func decrementAboveZero(input int32) int32 {
	if input <= 0 {
		return 0
	}
	return input - 1
}

// RecordedMessage pairs a message with the host it was placed on, for test
// inspection.
type RecordedMessage struct {
	Host string
	Msg  messages.Message
}

// Scheduler owns admission and placement for one host: it decides how much of
// a batch runs locally, forwards the surplus to peers, keeps the executor
// pool bookkeeping, and plumbs results back through the state store.
//
// A single readers-writer lock covers all scheduler state; placement runs
// entirely under the writer lock so every decision sees a consistent view.
type Scheduler struct {
	mu sync.RWMutex

	thisHost string
	store    state.Store

	resources          messages.HostResources
	warmExecutors      map[string][]Executor
	executingExecutors map[string][]Executor
	inFlightCounts     map[string]int32
	registeredHosts    map[string]map[string]bool
	threadResults      map[uint32]*threadPromise

	// test-mode records
	recordedMessagesAll    []messages.Message
	recordedMessagesLocal  []messages.Message
	recordedMessagesShared []RecordedMessage
}

var (
	schedInstance *Scheduler
	schedMutex    sync.Mutex
)

func usableCores() int32 {
	return int32(config.GetInt(config.USABLE_CORES, runtime.NumCPU()))
}

// Init constructs the process-wide scheduler. Call sites receive a borrowed
// handle from GetScheduler; ownership stays here until Shutdown.
func Init(thisHost string, store state.Store) *Scheduler {
	schedMutex.Lock()
	defer schedMutex.Unlock()

	schedInstance = &Scheduler{
		thisHost:           thisHost,
		store:              store,
		warmExecutors:      make(map[string][]Executor),
		executingExecutors: make(map[string][]Executor),
		inFlightCounts:     make(map[string]int32),
		registeredHosts:    make(map[string]map[string]bool),
		threadResults:      make(map[uint32]*threadPromise),
	}
	schedInstance.resources.Cores = usableCores()
	schedInstance.resources.Slots = schedInstance.resources.Cores
	return schedInstance
}

func GetScheduler() *Scheduler {
	schedMutex.Lock()
	defer schedMutex.Unlock()
	return schedInstance
}

func (s *Scheduler) ThisHost() string {
	return s.thisHost
}

func (s *Scheduler) Store() state.Store {
	return s.store
}

// ----------------------------------------
// Global host set
// ----------------------------------------

func (s *Scheduler) GetAvailableHosts() ([]string, error) {
	return s.store.SMembers(state.AvailableHostsKey)
}

func (s *Scheduler) AddHostToGlobalSet(host string) error {
	return s.store.SAdd(state.AvailableHostsKey, host)
}

func (s *Scheduler) RemoveHostFromGlobalSet(host string) error {
	return s.store.SRem(state.AvailableHostsKey, host)
}

// ----------------------------------------
// Placement
// ----------------------------------------

// CallFunction wraps a single message into a FUNCTIONS batch and schedules it.
func (s *Scheduler) CallFunction(msg *messages.Message, forceLocal bool) ([]string, error) {
	req := messages.BatchExecFactory(msg)
	return s.CallFunctions(req, forceLocal)
}

// CallFunctions admits a batch and returns, for every message, the host it
// was placed on. Admission failures happen before any side effects; transport
// errors while enlisting a peer surface to the caller, which may retry or
// fail the batch.
func (s *Scheduler) CallFunctions(req *messages.BatchExecuteRequest, forceLocal bool) ([]string, error) {
	nMessages := len(req.Messages)
	if nMessages == 0 {
		return nil, fmt.Errorf("empty batch request")
	}

	isThreads := req.Type == messages.THREADS
	executed := make([]string, nMessages)

	// All messages share user/function/master host
	firstMsg := &req.Messages[0]
	funcKey := messages.FuncKey(firstMsg)
	masterHost := firstMsg.MasterHost
	if masterHost == "" {
		log.Printf("Request %s has no master host", messages.FuncKeyWithId(firstMsg))
		return nil, NoMasterHostErr
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	var localIdxs []int
	if !forceLocal && masterHost != s.thisHost {
		// Not the master: hand the whole batch back to it. Happens only for
		// nested batch executions.
		log.Printf("Forwarding %d %s back to master %s", nMessages, funcKey, masterHost)

		c := NewFunctionCallClient(masterHost)
		defer c.Close()
		if err := c.ExecuteFunctions(req); err != nil {
			return nil, err
		}
		for i := range executed {
			executed[i] = masterHost
		}
		metrics.ForwardedCalls.Add(float64(nMessages))
	} else if forceLocal {
		for i := 0; i < nMessages; i++ {
			localIdxs = append(localIdxs, i)
			executed[i] = s.thisHost
		}
	} else {
		// We are the master and free to choose.

		// Threads and processes carry a snapshot that has to exist before we
		// can push it anywhere
		snapshotNeeded := req.Type == messages.THREADS || req.Type == messages.PROCESSES
		if snapshotNeeded {
			if firstMsg.SnapshotKey == "" {
				log.Printf("No snapshot provided for %s", funcKey)
				return nil, EmptySnapshotErr
			}
			if _, err := snapshot.GetRegistry().Get(firstMsg.SnapshotKey); err != nil {
				return nil, err
			}
		}

		// Fill from free local cores first
		available := s.resources.Cores - s.resources.FunctionsInFlight
		if available < 0 {
			available = 0
		}
		nLocally := int(available)
		if nLocally > nMessages {
			nLocally = nMessages
		}
		if nLocally > 0 {
			log.Printf("Executing %d/%d %s locally", nLocally, nMessages, funcKey)
			for i := 0; i < nLocally; i++ {
				localIdxs = append(localIdxs, i)
				executed[i] = s.thisHost
			}
		}

		// Distribute the remainder over hosts already registered for this
		// function
		offset := nLocally
		if offset < nMessages {
			for h := range s.registeredHosts[funcKey] {
				n, err := s.scheduleOnHost(h, req, executed, offset)
				if err != nil {
					return nil, err
				}
				offset += n
				if offset >= nMessages {
					break
				}
			}
		}

		// Then enlist unregistered hosts from the global set
		if offset < nMessages {
			allHosts, err := s.GetAvailableHosts()
			if err != nil {
				return nil, err
			}

			for _, h := range allHosts {
				if h == s.thisHost || s.registeredHosts[funcKey][h] {
					continue
				}

				n, err := s.scheduleOnHost(h, req, executed, offset)
				if err != nil {
					return nil, err
				}
				if n > 0 {
					log.Printf("Registering %s for %s", h, funcKey)
					if s.registeredHosts[funcKey] == nil {
						s.registeredHosts[funcKey] = make(map[string]bool)
					}
					s.registeredHosts[funcKey][h] = true
				}

				offset += n
				if offset >= nMessages {
					break
				}
			}
		}

		// No capacity left anywhere: overload the rest locally
		if offset < nMessages {
			log.Printf("Overloading %d/%d %s locally", nMessages-offset, nMessages, funcKey)
			metrics.OverloadedCalls.Add(float64(nMessages - offset))
			for ; offset < nMessages; offset++ {
				localIdxs = append(localIdxs, offset)
				executed[offset] = s.thisHost
			}
		}
	}

	if len(localIdxs) > 0 {
		// Register each local result so waiters can subscribe before the
		// work runs
		for _, i := range localIdxs {
			s.registerThread(req.Messages[i].Id)
		}

		s.inFlightCounts[funcKey] += int32(len(localIdxs))
		s.resources.FunctionsInFlight += int32(len(localIdxs))
		s.resources.UsedSlots = s.resources.FunctionsInFlight
		metrics.LocalCalls.Add(float64(len(localIdxs)))

		// Threads all share one executor; anything else gets an executor per
		// message
		if isThreads {
			var exec Executor
			if n := len(s.executingExecutors[funcKey]); n > 0 {
				exec = s.executingExecutors[funcKey][n-1]
			} else {
				var err error
				exec, err = s.claimExecutor(firstMsg)
				if err != nil {
					return nil, err
				}
			}
			exec.BatchExecuteThreads(localIdxs, req)
		} else {
			for _, i := range localIdxs {
				exec, err := s.claimExecutor(firstMsg)
				if err != nil {
					return nil, err
				}
				exec.ExecuteFunction(i, req)
			}
		}
	}

	if utils.IsTestMode() {
		for i := 0; i < nMessages; i++ {
			msg := req.Messages[i]
			s.recordedMessagesAll = append(s.recordedMessagesAll, msg)
			if executed[i] == "" || executed[i] == s.thisHost {
				s.recordedMessagesLocal = append(s.recordedMessagesLocal, msg)
			} else {
				s.recordedMessagesShared = append(s.recordedMessagesShared,
					RecordedMessage{Host: executed[i], Msg: msg})
			}
		}
	}

	return executed, nil
}

// scheduleOnHost sends as much of the batch as the host has capacity for,
// starting at offset, and returns how many messages it accepted.
func (s *Scheduler) scheduleOnHost(host string, req *messages.BatchExecuteRequest,
	records []string, offset int) (int, error) {
	firstMsg := &req.Messages[0]
	funcKey := messages.FuncKey(firstMsg)

	c := NewFunctionCallClient(host)
	defer c.Close()

	res, err := c.GetResources()
	if err != nil {
		return 0, err
	}

	available := int(res.Cores - res.FunctionsInFlight)
	if available <= 0 {
		log.Printf("Not scheduling %s on %s, no resources", funcKey, host)
		return 0, nil
	}

	remainder := len(req.Messages) - offset
	nOnThisHost := available
	if nOnThisHost > remainder {
		nOnThisHost = remainder
	}

	hostReq := &messages.BatchExecuteRequest{
		Type:         req.Type,
		SnapshotKey:  req.SnapshotKey,
		SnapshotSize: req.SnapshotSize,
	}
	for i := offset; i < offset+nOnThisHost; i++ {
		hostReq.Messages = append(hostReq.Messages, req.Messages[i])
		records[i] = host
	}

	// The snapshot has to land before any message referencing it
	if req.Type == messages.THREADS || req.Type == messages.PROCESSES {
		snap, err := snapshot.GetRegistry().Get(firstMsg.SnapshotKey)
		if err != nil {
			return 0, err
		}
		sc := snapshot.NewClient(host)
		if err := sc.PushSnapshot(firstMsg.SnapshotKey, snap); err != nil {
			return 0, err
		}
		sc.Close()
	}

	log.Printf("Sending %d/%d %s to %s", nOnThisHost, len(req.Messages), funcKey, host)
	if err := c.ExecuteFunctions(hostReq); err != nil {
		return 0, err
	}
	metrics.SharedCalls.Add(float64(nOnThisHost))

	return nOnThisHost, nil
}

// BroadcastSnapshotDelete removes a snapshot from every host registered for
// the function.
func (s *Scheduler) BroadcastSnapshotDelete(msg *messages.Message, snapshotKey string) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for h := range s.registeredHosts[messages.FuncKey(msg)] {
		c := snapshot.NewClient(h)
		if err := c.DeleteSnapshot(snapshotKey); err != nil {
			log.Printf("Failed to delete snapshot %s on %s: %v", snapshotKey, h, err)
		}
		c.Close()
	}
}

// ----------------------------------------
// Executor pool
// ----------------------------------------

// claimExecutor hands out an executor for the message's function: a warm one
// when available, a fresh one while below the core bound, otherwise a random
// executing one (overload). Callers hold the writer lock.
func (s *Scheduler) claimExecutor(msg *messages.Message) (Executor, error) {
	funcKey := messages.FuncKey(msg)
	nWarm := len(s.warmExecutors[funcKey])
	nExecuting := len(s.executingExecutors[funcKey])
	canScale := int32(nWarm+nExecuting) < s.resources.Cores

	if nWarm > 0 {
		log.Printf("Reusing warm executor for %s", funcKey)
		exec := s.warmExecutors[funcKey][nWarm-1]
		s.warmExecutors[funcKey] = s.warmExecutors[funcKey][:nWarm-1]
		s.executingExecutors[funcKey] = append(s.executingExecutors[funcKey], exec)
		return exec, nil
	}

	// A host with zero configured cores still needs one executor to overload
	if canScale || nExecuting == 0 {
		log.Printf("Scaling %s from %d -> %d", funcKey, nWarm+nExecuting, nWarm+nExecuting+1)
		factory := GetExecutorFactory()
		if factory == nil {
			return nil, fmt.Errorf("no executor factory registered")
		}
		exec, err := factory.NewExecutor(s, msg)
		if err != nil {
			return nil, err
		}
		s.executingExecutors[funcKey] = append(s.executingExecutors[funcKey], exec)
		s.resources.BoundExecutors++
		return exec, nil
	}

	idx := rand.Intn(nExecuting)
	log.Printf("No capacity for %s executors, overloading %d (%d executing)", funcKey, idx, nExecuting)
	return s.executingExecutors[funcKey][idx], nil
}

// ReturnExecutor parks an executor back in the warm set once its work is
// done.
func (s *Scheduler) ReturnExecutor(msg *messages.Message, exec Executor) {
	s.mu.Lock()
	defer s.mu.Unlock()

	funcKey := messages.FuncKey(msg)
	executing := s.executingExecutors[funcKey]
	for i, e := range executing {
		if e.Id() == exec.Id() {
			s.executingExecutors[funcKey] = append(executing[:i], executing[i+1:]...)
			break
		}
	}
	s.warmExecutors[funcKey] = append(s.warmExecutors[funcKey], exec)
}

// NotifyCallFinished is invoked once per completed message.
func (s *Scheduler) NotifyCallFinished(msg *messages.Message) {
	s.mu.Lock()
	defer s.mu.Unlock()

	funcKey := messages.FuncKey(msg)
	s.inFlightCounts[funcKey] = decrementAboveZero(s.inFlightCounts[funcKey])
	s.resources.FunctionsInFlight = decrementAboveZero(s.resources.FunctionsInFlight)
	s.resources.UsedSlots = s.resources.FunctionsInFlight
}

// NotifyExecutorFinished removes a finished executor from the pool. The last
// executor of a function on a non-master host also unregisters the host with
// the master.
func (s *Scheduler) NotifyExecutorFinished(exec Executor, msg *messages.Message) {
	s.mu.Lock()
	defer s.mu.Unlock()

	funcKey := messages.FuncKey(msg)
	for i, e := range s.warmExecutors[funcKey] {
		if e.Id() == exec.Id() {
			s.warmExecutors[funcKey] = append(s.warmExecutors[funcKey][:i], s.warmExecutors[funcKey][i+1:]...)
			break
		}
	}
	for i, e := range s.executingExecutors[funcKey] {
		if e.Id() == exec.Id() {
			s.executingExecutors[funcKey] = append(s.executingExecutors[funcKey][:i], s.executingExecutors[funcKey][i+1:]...)
			break
		}
	}

	remaining := len(s.warmExecutors[funcKey]) + len(s.executingExecutors[funcKey])
	if remaining == 0 && s.thisHost != msg.MasterHost {
		c := NewFunctionCallClient(msg.MasterHost)
		req := &messages.UnregisterRequest{Host: s.thisHost, Function: *msg}
		if err := c.Unregister(req); err != nil {
			log.Printf("Failed to unregister %s for %s: %v", s.thisHost, funcKey, err)
		}
		c.Close()
	}

	s.resources.BoundExecutors = decrementAboveZero(s.resources.BoundExecutors)
}

func (s *Scheduler) RemoveRegisteredHost(host string, msg *messages.Message) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.registeredHosts[messages.FuncKey(msg)], host)
}

func (s *Scheduler) GetFunctionRegisteredHosts(msg *messages.Message) []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var hosts []string
	for h := range s.registeredHosts[messages.FuncKey(msg)] {
		hosts = append(hosts, h)
	}
	return hosts
}

func (s *Scheduler) GetFunctionInFlightCount(msg *messages.Message) int32 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.inFlightCounts[messages.FuncKey(msg)]
}

func (s *Scheduler) GetFunctionExecutorCount(msg *messages.Message) int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	funcKey := messages.FuncKey(msg)
	return len(s.warmExecutors[funcKey]) + len(s.executingExecutors[funcKey])
}

// ----------------------------------------
// Resources
// ----------------------------------------

func (s *Scheduler) GetThisHostResources() messages.HostResources {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.resources
}

func (s *Scheduler) SetThisHostResources(res messages.HostResources) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.resources = res
}

func (s *Scheduler) GetHostResources(host string) (messages.HostResources, error) {
	c := NewFunctionCallClient(host)
	defer c.Close()
	return c.GetResources()
}

// ----------------------------------------
// Results
// ----------------------------------------

// SetFunctionResult publishes the result of a finished invocation: once onto
// the short-lived result queue the caller polls, once under the longer-lived
// status key.
func (s *Scheduler) SetFunctionResult(msg *messages.Message) error {
	msg.ExecutedHost = s.thisHost
	msg.FinishTimestamp = time.Now().UnixMilli()

	if msg.ResultKey == "" {
		return fmt.Errorf("result key empty, cannot publish result")
	}

	data, err := json.Marshal(msg)
	if err != nil {
		return err
	}

	if err := s.store.EnqueueBytes(msg.ResultKey, data); err != nil {
		return err
	}
	if err := s.store.Expire(msg.ResultKey, config.GetInt(config.RESULT_TTL, DefaultResultTtlSec)); err != nil {
		return err
	}

	if err := s.store.Set(msg.StatusKey, data); err != nil {
		return err
	}
	return s.store.Expire(msg.StatusKey, config.GetInt(config.STATUS_TTL, DefaultStatusTtlSec))
}

// GetFunctionResult reads the result for a message id. With a positive
// timeout it blocks and surfaces the timeout to the caller; otherwise an
// absent result yields a synthetic EMPTY message.
func (s *Scheduler) GetFunctionResult(messageId uint32, timeoutMs int) (*messages.Message, error) {
	if messageId == 0 {
		return nil, fmt.Errorf("must provide non-zero message id")
	}

	resultKey := messages.ResultKeyFromMessageId(messageId)
	isBlocking := timeoutMs > 0

	data, err := s.store.DequeueBytes(resultKey, timeoutMs)
	if err != nil {
		if errors.Is(err, state.NoResponseErr) {
			if isBlocking {
				return nil, transport.MessageTimeoutErr
			}
			return &messages.Message{Type: messages.EMPTY}, nil
		}
		return nil, err
	}

	var msg messages.Message
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}

// GetMessageStatus summarizes a call's state with a non-blocking read of its
// result. The read dequeues the result entry, so once that entry has been
// consumed the call reports RUNNING.
func (s *Scheduler) GetMessageStatus(messageId uint32) (string, error) {
	result, err := s.GetFunctionResult(messageId, 0)
	if err != nil {
		return "", err
	}

	if result.Type == messages.EMPTY {
		return "RUNNING", nil
	}
	if result.ReturnValue == 0 {
		return "SUCCESS: " + string(result.OutputData), nil
	}
	return "FAILED: " + string(result.OutputData), nil
}

// ----------------------------------------
// Thread results
// ----------------------------------------

func (s *Scheduler) registerThread(msgId uint32) {
	if _, ok := s.threadResults[msgId]; !ok {
		s.threadResults[msgId] = newThreadPromise()
	}
}

func (s *Scheduler) RegisterThread(msgId uint32) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.registerThread(msgId)
}

// SetThreadResult completes the promise locally when this host is the
// message's master, otherwise forwards the value to the master.
func (s *Scheduler) SetThreadResult(msg *messages.Message, returnValue int32) {
	if msg.MasterHost == s.thisHost {
		s.SetThreadResultLocally(msg.Id, returnValue)
		return
	}

	log.Printf("Sending thread result %d for %d to %s", returnValue, msg.Id, msg.MasterHost)
	c := NewFunctionCallClient(msg.MasterHost)
	defer c.Close()
	if err := c.SetThreadResult(msg.Id, returnValue); err != nil {
		log.Printf("Failed to send thread result for %d: %v", msg.Id, err)
	}
}

func (s *Scheduler) SetThreadResultLocally(msgId uint32, returnValue int32) {
	s.mu.Lock()
	promise, ok := s.threadResults[msgId]
	if !ok {
		promise = newThreadPromise()
		s.threadResults[msgId] = promise
	}
	s.mu.Unlock()

	promise.complete(returnValue)
}

func (s *Scheduler) AwaitThreadResult(msgId uint32) (int32, error) {
	s.mu.RLock()
	promise, ok := s.threadResults[msgId]
	s.mu.RUnlock()

	if !ok {
		log.Printf("Thread %d not registered on this host", msgId)
		return 0, UnregisteredThreadErr
	}
	return promise.await(), nil
}

// ----------------------------------------
// Flush
// ----------------------------------------

// BroadcastFlush asks every other live host to flush, then flushes locally.
func (s *Scheduler) BroadcastFlush() error {
	hosts, err := s.GetAvailableHosts()
	if err != nil {
		return err
	}

	for _, h := range hosts {
		if h == s.thisHost {
			continue
		}
		c := NewFunctionCallClient(h)
		if err := c.SendFlush(); err != nil {
			c.Close()
			return err
		}
		c.Close()
	}

	s.FlushLocally()
	return nil
}

// FlushLocally finalizes every warm executor and clears execution state.
// Readers observe either the pre-flush or the post-flush state, never a mix.
func (s *Scheduler) FlushLocally() {
	s.mu.Lock()
	defer s.mu.Unlock()

	log.Printf("Flushing host %s", s.thisHost)

	for _, execs := range s.warmExecutors {
		for _, e := range execs {
			e.Flush()
			e.Finish()
		}
	}

	s.warmExecutors = make(map[string][]Executor)
	s.executingExecutors = make(map[string][]Executor)
	s.inFlightCounts = make(map[string]int32)
	s.resources.BoundExecutors = 0
	s.resources.FunctionsInFlight = 0
	s.resources.UsedSlots = 0
}

// Reset restores the scheduler to its freshly initialized state (tests).
func (s *Scheduler) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, execs := range s.warmExecutors {
		for _, e := range execs {
			e.Finish()
		}
	}

	// Executing executors are assumed to be gone by now
	s.warmExecutors = make(map[string][]Executor)
	s.executingExecutors = make(map[string][]Executor)
	s.inFlightCounts = make(map[string]int32)
	s.registeredHosts = make(map[string]map[string]bool)
	s.threadResults = make(map[uint32]*threadPromise)

	cores := usableCores()
	s.resources = messages.HostResources{Cores: cores, Slots: cores}

	s.recordedMessagesAll = nil
	s.recordedMessagesLocal = nil
	s.recordedMessagesShared = nil
}

func (s *Scheduler) Shutdown() {
	s.Reset()
	if err := s.RemoveHostFromGlobalSet(s.thisHost); err != nil {
		log.Printf("Failed to remove %s from global host set: %v", s.thisHost, err)
	}
}

// ----------------------------------------
// Recorded messages (test mode)
// ----------------------------------------

func (s *Scheduler) ClearRecordedMessages() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.recordedMessagesAll = nil
	s.recordedMessagesLocal = nil
	s.recordedMessagesShared = nil
}

func (s *Scheduler) GetRecordedMessagesAll() []messages.Message {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]messages.Message{}, s.recordedMessagesAll...)
}

func (s *Scheduler) GetRecordedMessagesLocal() []messages.Message {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]messages.Message{}, s.recordedMessagesLocal...)
}

func (s *Scheduler) GetRecordedMessagesShared() []RecordedMessage {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]RecordedMessage{}, s.recordedMessagesShared...)
}
