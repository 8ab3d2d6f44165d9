package mpi

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/faasmesh/faasmesh/internal/config"
	"github.com/faasmesh/faasmesh/internal/messages"
	"github.com/faasmesh/faasmesh/internal/scheduler"
	"github.com/faasmesh/faasmesh/internal/state"
	"github.com/faasmesh/faasmesh/internal/transport"
	"golang.org/x/sync/errgroup"
)

const DefaultQueueSize = 10000
const DefaultAsyncWorkers = 4

// WorldState is the blob the creating rank publishes so joining ranks can
// reconstruct the world.
type WorldState struct {
	Size     int32  `json:"size"`
	User     string `json:"user"`
	Function string `json:"function"`
}

type queueKey struct {
	send int32
	recv int32
}

// World is one MPI communicator: a set of ranks spread over one or more
// hosts. Ranks on this host receive through in-memory queues; ranks elsewhere
// are reached through per-host transport endpoints, so same-host and
// cross-host messaging behave identically.
type World struct {
	id       int32
	size     int32
	thisHost string
	user     string
	function string
	creation time.Time

	store state.Store
	sched *scheduler.Scheduler

	mu        sync.RWMutex // guards rankHosts, windows, cartDims
	rankHosts map[int32]string
	windows   map[int32][]byte
	cartDims  []int

	queueMu     sync.Mutex
	localQueues map[queueKey]*messageQueue
	queueSize   int

	endpointMu sync.Mutex
	endpoints  map[string]*transport.MessageEndpointClient

	asyncMu       sync.Mutex
	nextRequestId int32
	asyncRequests map[int32]chan error
	asyncPool     *errgroup.Group
}

// NewWorld builds an empty world bound to the process scheduler and its state
// store. Create or InitialiseFromMsg must run before any communication.
func NewWorld() *World {
	sched := scheduler.GetScheduler()

	w := &World{
		sched:         sched,
		store:         sched.Store(),
		thisHost:      sched.ThisHost(),
		creation:      time.Now(),
		rankHosts:     make(map[int32]string),
		windows:       make(map[int32][]byte),
		localQueues:   make(map[queueKey]*messageQueue),
		queueSize:     config.GetInt(config.MPI_QUEUE_SIZE, DefaultQueueSize),
		endpoints:     make(map[string]*transport.MessageEndpointClient),
		asyncRequests: make(map[int32]chan error),
	}

	w.asyncPool = &errgroup.Group{}
	w.asyncPool.SetLimit(config.GetInt(config.MPI_ASYNC_WORKERS, DefaultAsyncWorkers))

	return w
}

// OverrideHost rebinds the world to a different host identity (tests only).
func (w *World) OverrideHost(host string) {
	w.thisHost = host
}

func (w *World) Id() int32        { return w.id }
func (w *World) Size() int32      { return w.size }
func (w *World) User() string     { return w.user }
func (w *World) Function() string { return w.function }

// WTime returns wall-clock seconds since the world was created.
func (w *World) WTime() float64 {
	return time.Since(w.creation).Seconds()
}

// Create sets up a new world with this process as rank zero and asks the
// scheduler to place the remaining ranks, possibly on other hosts. The
// resulting rank-to-host map is published through the state store so peer
// hosts can join.
func (w *World) Create(call *messages.Message, newId int32, newSize int32) error {
	w.id = newId
	w.size = newSize
	w.user = call.User
	w.function = call.Function

	w.mu.Lock()
	w.rankHosts[0] = w.thisHost
	w.mu.Unlock()

	// Synthesize a join message per remaining rank
	var joinMsgs []*messages.Message
	for rank := int32(1); rank < newSize; rank++ {
		m := messages.MessageFactory(call.User, call.Function)
		m.MasterHost = w.thisHost
		m.IsMpi = true
		m.MpiWorldId = newId
		m.MpiRank = rank
		m.MpiWorldSize = newSize
		joinMsgs = append(joinMsgs, m)
	}

	if len(joinMsgs) > 0 {
		req := messages.BatchExecFactory(joinMsgs...)
		executed, err := w.sched.CallFunctions(req, false)
		if err != nil {
			return fmt.Errorf("scheduling world %d ranks failed: %w", newId, err)
		}

		w.mu.Lock()
		for i, host := range executed {
			w.rankHosts[int32(i+1)] = host
		}
		w.mu.Unlock()
	}

	if err := w.pushToState(); err != nil {
		return err
	}

	w.openRemoteEndpoints()
	return nil
}

// InitialiseFromMsg joins an existing world from one of its placed rank
// messages, reading the rank map published by the creator.
func (w *World) InitialiseFromMsg(msg *messages.Message) error {
	w.id = msg.MpiWorldId

	ws, err := lookupWorldState(w.store, w.id)
	if err != nil {
		return err
	}
	w.size = ws.Size
	w.user = ws.User
	w.function = ws.Function

	w.mu.Lock()
	for rank := int32(0); rank < w.size; rank++ {
		host, err := w.store.Get(state.RankHostKey(w.id, rank))
		if err != nil {
			w.mu.Unlock()
			return err
		}
		if len(host) == 0 {
			w.mu.Unlock()
			return fmt.Errorf("no host registered for world %d rank %d", w.id, rank)
		}
		w.rankHosts[rank] = string(host)
	}
	w.mu.Unlock()

	w.openRemoteEndpoints()
	return nil
}

func (w *World) pushToState() error {
	ws := WorldState{Size: w.size, User: w.user, Function: w.function}
	data, err := json.Marshal(&ws)
	if err != nil {
		return err
	}
	if err := w.store.Set(state.WorldStateKey(w.id), data); err != nil {
		return err
	}

	w.mu.RLock()
	defer w.mu.RUnlock()
	for rank, host := range w.rankHosts {
		if err := w.store.Set(state.RankHostKey(w.id, rank), []byte(host)); err != nil {
			return err
		}
	}
	return nil
}

// openRemoteEndpoints dials every other host present in the rank map so the
// first send does not pay the connection cost.
func (w *World) openRemoteEndpoints() {
	w.mu.RLock()
	defer w.mu.RUnlock()

	for _, host := range w.rankHosts {
		if host == w.thisHost {
			continue
		}
		w.getEndpoint(host)
	}
}

func (w *World) getEndpoint(host string) *transport.MessageEndpointClient {
	w.endpointMu.Lock()
	defer w.endpointMu.Unlock()

	ep, ok := w.endpoints[host]
	if !ok {
		ep = transport.NewMessageEndpointClient(host, transport.MpiPort)
		w.endpoints[host] = ep
	}
	return ep
}

// GetHostForRank resolves the host a rank lives on, falling back to the state
// store for ranks this world instance has not seen yet.
func (w *World) GetHostForRank(rank int32) (string, error) {
	if rank < 0 || rank >= w.size {
		return "", fmt.Errorf("%w: rank %d of %d", InvalidRankErr, rank, w.size)
	}

	w.mu.RLock()
	host, ok := w.rankHosts[rank]
	w.mu.RUnlock()
	if ok {
		return host, nil
	}

	data, err := w.store.Get(state.RankHostKey(w.id, rank))
	if err != nil {
		return "", err
	}
	if len(data) == 0 {
		return "", fmt.Errorf("no host registered for world %d rank %d", w.id, rank)
	}

	w.mu.Lock()
	w.rankHosts[rank] = string(data)
	w.mu.Unlock()
	return string(data), nil
}

func (w *World) checkRankOnThisHost(rank int32) error {
	host, err := w.GetHostForRank(rank)
	if err != nil {
		return err
	}
	if host != w.thisHost {
		return fmt.Errorf("%w: rank %d lives on %s", NotLocalRankErr, rank, host)
	}
	return nil
}

// GetLocalQueue returns the in-memory queue for a (sender, receiver) pair.
// The receiver must live on this host; queues are created on first use.
func (w *World) GetLocalQueue(sendRank int32, recvRank int32) (*messageQueue, error) {
	if err := w.checkRankOnThisHost(recvRank); err != nil {
		return nil, err
	}
	return w.localQueue(sendRank, recvRank), nil
}

func (w *World) localQueue(sendRank int32, recvRank int32) *messageQueue {
	w.queueMu.Lock()
	defer w.queueMu.Unlock()

	key := queueKey{send: sendRank, recv: recvRank}
	q, ok := w.localQueues[key]
	if !ok {
		q = newMessageQueue(w.queueSize)
		w.localQueues[key] = q
	}
	return q
}

func (w *World) GetLocalQueueSize(sendRank int32, recvRank int32) int {
	return w.localQueue(sendRank, recvRank).size()
}

// EnqueueMessage routes a message received from another host onto the right
// local structure: RMA writes go straight into the window, everything else
// onto the pair queue.
func (w *World) EnqueueMessage(msg *messages.MPIMessage) error {
	if msg.MessageType == messages.RMA_WRITE {
		return w.synchronizeRmaWrite(msg)
	}
	w.localQueue(msg.Sender, msg.Destination).enqueue(msg)
	return nil
}

// ----------------------------------------
// Point-to-point
// ----------------------------------------

// Send delivers buffer to recvRank as a NORMAL message.
func (w *World) Send(sendRank int32, recvRank int32, buffer []byte, dt Datatype, count int32) error {
	return w.SendOfType(sendRank, recvRank, buffer, dt, count, messages.NORMAL)
}

// SendOfType delivers buffer with an explicit delivery tag, which collectives
// use to keep their traffic apart from point-to-point receives. Same-host
// destinations get the message queued directly; remote ones get it posted on
// the destination host's endpoint. Either way, for a fixed (sender, receiver)
// pair delivery follows send order.
func (w *World) SendOfType(sendRank int32, recvRank int32, buffer []byte, dt Datatype,
	count int32, msgType messages.MPIMessageType) error {
	if sendRank < 0 || sendRank >= w.size {
		return fmt.Errorf("%w: sender %d of %d", InvalidRankErr, sendRank, w.size)
	}
	if recvRank < 0 || recvRank >= w.size {
		return fmt.Errorf("%w: receiver %d of %d", InvalidRankErr, recvRank, w.size)
	}

	host, err := w.GetHostForRank(recvRank)
	if err != nil {
		return err
	}

	msg := &messages.MPIMessage{
		WorldId:     w.id,
		Sender:      sendRank,
		Destination: recvRank,
		Datatype:    int32(dt),
		Count:       count,
		MessageType: msgType,
	}
	if n := int(count) * dt.Size(); n > 0 {
		msg.Buffer = append([]byte{}, buffer[:n]...)
	}

	if host == w.thisHost {
		w.localQueue(sendRank, recvRank).enqueue(msg)
		return nil
	}
	return w.sendRemoteMessage(host, msg)
}

func (w *World) sendRemoteMessage(host string, msg *messages.MPIMessage) error {
	body, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	return w.getEndpoint(host).AsyncSend(WorldMessageCall, body)
}

// Recv blocks for the next NORMAL message on the (sendRank, recvRank) pair.
func (w *World) Recv(sendRank int32, recvRank int32, buffer []byte, dt Datatype,
	count int32, status *Status) error {
	return w.RecvOfType(sendRank, recvRank, buffer, dt, count, status, messages.NORMAL)
}

// RecvOfType pops the pair queue head into buffer. A head carrying a
// different delivery tag or datatype fails the receive without consuming the
// message. Fewer bytes than requested is not an error; status reports the
// actual size.
func (w *World) RecvOfType(sendRank int32, recvRank int32, buffer []byte, dt Datatype,
	count int32, status *Status, msgType messages.MPIMessageType) error {
	q, err := w.GetLocalQueue(sendRank, recvRank)
	if err != nil {
		return err
	}

	msg, ok := q.dequeueMatching(func(m *messages.MPIMessage) bool {
		return m.MessageType == msgType && Datatype(m.Datatype) == dt
	})
	if !ok {
		return fmt.Errorf("%w: got type %d datatype %d, expected type %d datatype %d",
			TypeMismatchErr, msg.MessageType, msg.Datatype, msgType, dt)
	}

	n := len(msg.Buffer)
	if max := int(count) * dt.Size(); n > max {
		n = max
	}
	copy(buffer[:n], msg.Buffer[:n])

	if status != nil {
		status.Source = msg.Sender
		status.Error = Success
		status.BytesSize = len(msg.Buffer)
	}
	return nil
}

// Probe fills status from the next message on the pair queue without
// consuming it.
func (w *World) Probe(sendRank int32, recvRank int32, status *Status) error {
	q, err := w.GetLocalQueue(sendRank, recvRank)
	if err != nil {
		return err
	}

	msg := q.peek()
	if status != nil {
		status.Source = msg.Sender
		status.Error = Success
		status.BytesSize = len(msg.Buffer)
	}
	return nil
}

// SendRecv concurrently sends this rank's buffer to destRank and receives
// from sourceRank, so neighbour shifts cannot deadlock.
func (w *World) SendRecv(sendBuffer []byte, sendCount int32, sendDt Datatype, destRank int32,
	recvBuffer []byte, recvCount int32, recvDt Datatype, sourceRank int32,
	myRank int32, status *Status) error {
	reqId, err := w.iSendOfType(myRank, destRank, sendBuffer, sendDt, sendCount, messages.SENDRECV)
	if err != nil {
		return err
	}
	if err := w.RecvOfType(sourceRank, myRank, recvBuffer, recvDt, recvCount, status, messages.SENDRECV); err != nil {
		return err
	}
	return w.AwaitAsyncRequest(reqId)
}

// ----------------------------------------
// Async send/recv
// ----------------------------------------

func (w *World) registerAsyncRequest(run func() error) int32 {
	w.asyncMu.Lock()
	w.nextRequestId++
	reqId := w.nextRequestId
	done := make(chan error, 1)
	w.asyncRequests[reqId] = done
	w.asyncMu.Unlock()

	w.asyncPool.Go(func() error {
		done <- run()
		return nil
	})
	return reqId
}

// ISend queues the send onto the world's worker pool and returns a request id
// to await.
func (w *World) ISend(sendRank int32, recvRank int32, buffer []byte, dt Datatype, count int32) (int32, error) {
	return w.iSendOfType(sendRank, recvRank, buffer, dt, count, messages.NORMAL)
}

func (w *World) iSendOfType(sendRank int32, recvRank int32, buffer []byte, dt Datatype,
	count int32, msgType messages.MPIMessageType) (int32, error) {
	if recvRank < 0 || recvRank >= w.size {
		return 0, fmt.Errorf("%w: receiver %d of %d", InvalidRankErr, recvRank, w.size)
	}
	return w.registerAsyncRequest(func() error {
		return w.SendOfType(sendRank, recvRank, buffer, dt, count, msgType)
	}), nil
}

// IRecv posts an asynchronous receive into buffer; the buffer is filled by
// the time AwaitAsyncRequest returns.
func (w *World) IRecv(sendRank int32, recvRank int32, buffer []byte, dt Datatype, count int32) (int32, error) {
	if sendRank < 0 || sendRank >= w.size {
		return 0, fmt.Errorf("%w: sender %d of %d", InvalidRankErr, sendRank, w.size)
	}
	return w.registerAsyncRequest(func() error {
		return w.Recv(sendRank, recvRank, buffer, dt, count, nil)
	}), nil
}

// AwaitAsyncRequest blocks until the request completes and releases its
// bookkeeping. Completion order across request ids is unspecified.
func (w *World) AwaitAsyncRequest(requestId int32) error {
	w.asyncMu.Lock()
	done, ok := w.asyncRequests[requestId]
	w.asyncMu.Unlock()
	if !ok {
		return fmt.Errorf("unknown async request %d", requestId)
	}

	err := <-done

	w.asyncMu.Lock()
	delete(w.asyncRequests, requestId)
	w.asyncMu.Unlock()
	return err
}

// ----------------------------------------
// Teardown
// ----------------------------------------

// Destroy closes all endpoints and drops per-world state. Safe to call more
// than once.
func (w *World) Destroy() {
	w.endpointMu.Lock()
	for host, ep := range w.endpoints {
		ep.Close()
		delete(w.endpoints, host)
	}
	w.endpointMu.Unlock()

	w.queueMu.Lock()
	w.localQueues = make(map[queueKey]*messageQueue)
	w.queueMu.Unlock()

	w.mu.Lock()
	w.rankHosts = make(map[int32]string)
	w.windows = make(map[int32][]byte)
	w.cartDims = nil
	w.mu.Unlock()
}

func getWorldState(store state.Store, worldId int32) (*WorldState, error) {
	data, err := store.Get(state.WorldStateKey(worldId))
	if err != nil {
		return nil, err
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: id %d", WorldNotFoundErr, worldId)
	}

	var ws WorldState
	if err := json.Unmarshal(data, &ws); err != nil {
		return nil, err
	}
	if ws.Size <= 0 {
		return nil, fmt.Errorf("world %d has invalid size %d", worldId, ws.Size)
	}
	return &ws, nil
}
