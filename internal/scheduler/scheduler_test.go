package scheduler_test

import (
	"errors"
	"sort"
	"testing"

	"github.com/faasmesh/faasmesh/internal/config"
	"github.com/faasmesh/faasmesh/internal/messages"
	"github.com/faasmesh/faasmesh/internal/scheduler"
	"github.com/faasmesh/faasmesh/internal/snapshot"
	"github.com/faasmesh/faasmesh/internal/test"
	"github.com/faasmesh/faasmesh/internal/transport"
	"github.com/faasmesh/faasmesh/utils"
	"github.com/spf13/viper"
)

const thisHost = "thisHost"
const otherHost = "otherHost"

func setUp(t *testing.T, cores int) (*scheduler.Scheduler, *test.DummyExecutorFactory) {
	viper.Set(config.USABLE_CORES, cores)
	utils.SetMockMode(true)
	utils.SetTestMode(true)
	scheduler.ClearMockRequests()
	snapshot.ClearMockSnapshotRequests()
	snapshot.GetRegistry().Clear()

	sched, factory, _ := test.SetUpScheduler(thisHost)

	t.Cleanup(func() {
		utils.SetMockMode(false)
		utils.SetTestMode(false)
		scheduler.ClearMockRequests()
		snapshot.GetRegistry().Clear()
	})
	return sched, factory
}

func batchOfSize(n int, master string) *messages.BatchExecuteRequest {
	var msgs []*messages.Message
	for i := 0; i < n; i++ {
		m := messages.MessageFactory("user", "func")
		m.MasterHost = master
		msgs = append(msgs, m)
	}
	return messages.BatchExecFactory(msgs...)
}

func TestLocalPlacement(t *testing.T) {
	sched, factory := setUp(t, 4)

	req := batchOfSize(2, thisHost)
	executed, err := sched.CallFunctions(req, false)
	utils.AssertNil(t, err)
	utils.AssertSliceEquals(t, []string{thisHost, thisHost}, executed)

	created := factory.Created()
	utils.AssertEquals(t, 2, len(created))
	utils.AssertEquals(t, int32(2), sched.GetFunctionInFlightCount(&req.Messages[0]))

	res := sched.GetThisHostResources()
	utils.AssertEquals(t, int32(2), res.BoundExecutors)
	utils.AssertEquals(t, int32(2), res.FunctionsInFlight)

	// every placed message was recorded as local
	utils.AssertEquals(t, 2, len(sched.GetRecordedMessagesAll()))
	utils.AssertEquals(t, 2, len(sched.GetRecordedMessagesLocal()))
	utils.AssertEquals(t, 0, len(sched.GetRecordedMessagesShared()))
}

func TestOverloadPlacement(t *testing.T) {
	sched, factory := setUp(t, 1)

	// no peers with capacity anywhere: all three messages overload locally
	req := batchOfSize(3, thisHost)
	executed, err := sched.CallFunctions(req, false)
	utils.AssertNil(t, err)
	utils.AssertSliceEquals(t, []string{thisHost, thisHost, thisHost}, executed)

	created := factory.Created()
	utils.AssertEquals(t, 1, len(created))
	utils.AssertEquals(t, 3, created[0].JobCount())

	res := sched.GetThisHostResources()
	utils.AssertTrue(t, res.BoundExecutors <= res.Cores)
}

func TestDistributeToPeers(t *testing.T) {
	sched, _ := setUp(t, 1)

	utils.AssertNil(t, sched.AddHostToGlobalSet(otherHost))
	scheduler.QueueResourceResponse(otherHost, messages.HostResources{Cores: 2})

	req := batchOfSize(3, thisHost)
	executed, err := sched.CallFunctions(req, false)
	utils.AssertNil(t, err)
	utils.AssertSliceEquals(t, []string{thisHost, otherHost, otherHost}, executed)

	batches := scheduler.GetBatchRequests()
	utils.AssertEquals(t, 1, len(batches))
	utils.AssertEquals(t, otherHost, batches[0].Host)
	utils.AssertEquals(t, 2, len(batches[0].Req.Messages))

	// the peer picked up work, so it is now registered for the function
	registered := sched.GetFunctionRegisteredHosts(&req.Messages[0])
	utils.AssertSliceEquals(t, []string{otherHost}, registered)

	// a second batch goes to it as a registered host straight away
	scheduler.QueueResourceResponse(otherHost, messages.HostResources{Cores: 1})
	req2 := batchOfSize(2, thisHost)
	executed, err = sched.CallFunctions(req2, false)
	utils.AssertNil(t, err)
	utils.AssertEquals(t, otherHost, executed[0])
}

func TestPeerWithoutCapacityIsSkipped(t *testing.T) {
	sched, factory := setUp(t, 1)

	utils.AssertNil(t, sched.AddHostToGlobalSet(otherHost))
	scheduler.QueueResourceResponse(otherHost, messages.HostResources{Cores: 2, FunctionsInFlight: 2})

	req := batchOfSize(2, thisHost)
	executed, err := sched.CallFunctions(req, false)
	utils.AssertNil(t, err)
	utils.AssertSliceEquals(t, []string{thisHost, thisHost}, executed)

	// the saturated peer was not registered
	utils.AssertEquals(t, 0, len(sched.GetFunctionRegisteredHosts(&req.Messages[0])))
	utils.AssertEquals(t, 1, len(factory.Created()))
}

func TestForwardToMaster(t *testing.T) {
	sched, factory := setUp(t, 4)

	req := batchOfSize(2, otherHost)
	executed, err := sched.CallFunctions(req, false)
	utils.AssertNil(t, err)
	utils.AssertSliceEquals(t, []string{otherHost, otherHost}, executed)

	batches := scheduler.GetBatchRequests()
	utils.AssertEquals(t, 1, len(batches))
	utils.AssertEquals(t, otherHost, batches[0].Host)
	utils.AssertEquals(t, 2, len(batches[0].Req.Messages))

	// forwarding leaves no local state behind
	utils.AssertEquals(t, 0, len(factory.Created()))
	utils.AssertEquals(t, int32(0), sched.GetThisHostResources().FunctionsInFlight)
}

func TestForceLocalIgnoresMaster(t *testing.T) {
	sched, factory := setUp(t, 4)

	req := batchOfSize(2, otherHost)
	executed, err := sched.CallFunctions(req, true)
	utils.AssertNil(t, err)
	utils.AssertSliceEquals(t, []string{thisHost, thisHost}, executed)
	utils.AssertEquals(t, 2, len(factory.Created()))
}

func TestAdmissionFailures(t *testing.T) {
	sched, _ := setUp(t, 4)

	// no master host
	req := batchOfSize(1, "")
	_, err := sched.CallFunctions(req, false)
	utils.AssertEquals(t, scheduler.NoMasterHostErr, err)

	// threads without a snapshot key
	req = batchOfSize(1, thisHost)
	req.Type = messages.THREADS
	_, err = sched.CallFunctions(req, false)
	utils.AssertEquals(t, scheduler.EmptySnapshotErr, err)

	// threads with a snapshot key nobody took
	req = batchOfSize(1, thisHost)
	req.Type = messages.THREADS
	req.SnapshotKey = "ghost"
	req.Messages[0].SnapshotKey = "ghost"
	_, err = sched.CallFunctions(req, false)
	utils.AssertTrue(t, errors.Is(err, snapshot.SnapshotNotFoundErr))

	// nothing was placed or claimed
	utils.AssertEquals(t, int32(0), sched.GetThisHostResources().FunctionsInFlight)
}

func TestThreadsShareOneExecutor(t *testing.T) {
	sched, factory := setUp(t, 4)

	utils.AssertNil(t, snapshot.GetRegistry().Take("snap", []byte{1, 2, 3}))

	req := batchOfSize(3, thisHost)
	req.Type = messages.THREADS
	req.SnapshotKey = "snap"
	for i := range req.Messages {
		req.Messages[i].SnapshotKey = "snap"
	}

	executed, err := sched.CallFunctions(req, false)
	utils.AssertNil(t, err)
	utils.AssertEquals(t, 3, len(executed))

	created := factory.Created()
	utils.AssertEquals(t, 1, len(created))
	utils.AssertEquals(t, 1, created[0].JobCount())
}

func TestThreadsPushSnapshotBeforeDispatch(t *testing.T) {
	sched, _ := setUp(t, 0)

	utils.AssertNil(t, sched.AddHostToGlobalSet(otherHost))
	scheduler.QueueResourceResponse(otherHost, messages.HostResources{Cores: 4})
	utils.AssertNil(t, snapshot.GetRegistry().Take("snap", []byte{9, 9}))

	req := batchOfSize(2, thisHost)
	req.Type = messages.THREADS
	req.SnapshotKey = "snap"
	for i := range req.Messages {
		req.Messages[i].SnapshotKey = "snap"
	}

	executed, err := sched.CallFunctions(req, false)
	utils.AssertNil(t, err)
	utils.AssertSliceEquals(t, []string{otherHost, otherHost}, executed)

	pushes := snapshot.GetSnapshotPushes()
	utils.AssertEquals(t, 1, len(pushes))
	utils.AssertEquals(t, otherHost, pushes[0].Host)
	utils.AssertEquals(t, "snap", pushes[0].Key)
}

func TestThreadResults(t *testing.T) {
	sched, _ := setUp(t, 4)

	msg := messages.MessageFactory("user", "func")
	msg.MasterHost = thisHost

	sched.RegisterThread(msg.Id)
	sched.SetThreadResult(msg, 42)

	rv, err := sched.AwaitThreadResult(msg.Id)
	utils.AssertNil(t, err)
	utils.AssertEquals(t, int32(42), rv)

	// a second await on a completed id returns immediately
	rv, err = sched.AwaitThreadResult(msg.Id)
	utils.AssertNil(t, err)
	utils.AssertEquals(t, int32(42), rv)

	// unknown ids fail
	_, err = sched.AwaitThreadResult(999999)
	utils.AssertEquals(t, scheduler.UnregisteredThreadErr, err)
}

func TestThreadResultForwardedToMaster(t *testing.T) {
	sched, _ := setUp(t, 4)

	msg := messages.MessageFactory("user", "func")
	msg.MasterHost = otherHost
	sched.SetThreadResult(msg, 7)

	results := scheduler.GetThreadResults()
	utils.AssertEquals(t, 1, len(results))
	utils.AssertEquals(t, otherHost, results[0].Host)
	utils.AssertEquals(t, msg.Id, results[0].MessageId)
	utils.AssertEquals(t, int32(7), results[0].ReturnValue)
}

func TestFunctionResult(t *testing.T) {
	sched, _ := setUp(t, 4)

	msg := messages.MessageFactory("user", "func")
	msg.MasterHost = thisHost
	msg.OutputData = []byte("all good")

	utils.AssertNil(t, sched.SetFunctionResult(msg))
	utils.AssertEquals(t, thisHost, msg.ExecutedHost)
	utils.AssertTrue(t, msg.FinishTimestamp > 0)

	result, err := sched.GetFunctionResult(msg.Id, 500)
	utils.AssertNil(t, err)
	utils.AssertEquals(t, msg.Id, result.Id)
	utils.AssertEquals(t, thisHost, result.ExecutedHost)
	utils.AssertEquals(t, "all good", string(result.OutputData))

	// the result queue is consumed; a non-blocking read now yields EMPTY
	result, err = sched.GetFunctionResult(msg.Id, 0)
	utils.AssertNil(t, err)
	utils.AssertEquals(t, messages.EMPTY, result.Type)

	// blocking reads time out when nothing arrives
	_, err = sched.GetFunctionResult(123456, 50)
	utils.AssertEquals(t, transport.MessageTimeoutErr, err)
}

func TestMessageStatus(t *testing.T) {
	sched, _ := setUp(t, 4)

	// nothing published yet
	status, err := sched.GetMessageStatus(4242)
	utils.AssertNil(t, err)
	utils.AssertEquals(t, "RUNNING", status)

	msg := messages.MessageFactory("user", "func")
	msg.MasterHost = thisHost
	msg.OutputData = []byte("boom")
	msg.ReturnValue = 1
	utils.AssertNil(t, sched.SetFunctionResult(msg))

	status, err = sched.GetMessageStatus(msg.Id)
	utils.AssertNil(t, err)
	utils.AssertEquals(t, "FAILED: boom", status)
}

func TestNotifyExecutorFinished(t *testing.T) {
	sched, factory := setUp(t, 4)

	// executed here on behalf of a remote master
	req := batchOfSize(1, otherHost)
	_, err := sched.CallFunctions(req, true)
	utils.AssertNil(t, err)

	created := factory.Created()
	utils.AssertEquals(t, 1, len(created))
	utils.AssertEquals(t, int32(1), sched.GetThisHostResources().BoundExecutors)

	sched.NotifyExecutorFinished(created[0], &req.Messages[0])
	utils.AssertEquals(t, int32(0), sched.GetThisHostResources().BoundExecutors)
	utils.AssertEquals(t, 0, sched.GetFunctionExecutorCount(&req.Messages[0]))

	// being the last executor for the function, we unregistered at the master
	unregisters := scheduler.GetUnregisterRequests()
	utils.AssertEquals(t, 1, len(unregisters))
	utils.AssertEquals(t, otherHost, unregisters[0].Host)
	utils.AssertEquals(t, thisHost, unregisters[0].Req.Host)

	// decrements saturate at zero
	sched.NotifyExecutorFinished(created[0], &req.Messages[0])
	utils.AssertEquals(t, int32(0), sched.GetThisHostResources().BoundExecutors)
}

func TestNotifyCallFinished(t *testing.T) {
	sched, _ := setUp(t, 4)

	req := batchOfSize(1, thisHost)
	_, err := sched.CallFunctions(req, false)
	utils.AssertNil(t, err)
	utils.AssertEquals(t, int32(1), sched.GetThisHostResources().FunctionsInFlight)

	sched.NotifyCallFinished(&req.Messages[0])
	utils.AssertEquals(t, int32(0), sched.GetThisHostResources().FunctionsInFlight)
	utils.AssertEquals(t, int32(0), sched.GetFunctionInFlightCount(&req.Messages[0]))

	sched.NotifyCallFinished(&req.Messages[0])
	utils.AssertEquals(t, int32(0), sched.GetFunctionInFlightCount(&req.Messages[0]))
}

func TestBroadcastFlush(t *testing.T) {
	sched, factory := setUp(t, 4)
	utils.AssertNil(t, sched.AddHostToGlobalSet(otherHost))

	// park a warm executor
	req := batchOfSize(1, thisHost)
	_, err := sched.CallFunctions(req, false)
	utils.AssertNil(t, err)
	created := factory.Created()
	utils.AssertEquals(t, 1, len(created))
	sched.ReturnExecutor(&req.Messages[0], created[0])

	utils.AssertNil(t, sched.BroadcastFlush())

	// every other live host was told to flush
	utils.AssertSliceEquals(t, []string{otherHost}, scheduler.GetFlushCalls())

	// the warm executor was finalized and the state cleared
	utils.AssertTrue(t, created[0].Flushed())
	utils.AssertTrue(t, created[0].Finished())
	res := sched.GetThisHostResources()
	utils.AssertEquals(t, int32(0), res.BoundExecutors)
	utils.AssertEquals(t, int32(0), res.FunctionsInFlight)
}

func TestExecGraph(t *testing.T) {
	sched, _ := setUp(t, 4)

	root := messages.MessageFactory("user", "func")
	childA := messages.MessageFactory("user", "func")
	childB := messages.MessageFactory("user", "func")
	grandchild := messages.MessageFactory("user", "func")
	for _, m := range []*messages.Message{root, childA, childB, grandchild} {
		m.MasterHost = thisHost
		utils.AssertNil(t, sched.SetFunctionResult(m))
	}

	utils.AssertNil(t, sched.LogChainedFunction(root.Id, childA.Id))
	utils.AssertNil(t, sched.LogChainedFunction(root.Id, childB.Id))
	utils.AssertNil(t, sched.LogChainedFunction(childA.Id, grandchild.Id))

	graph, err := sched.GetFunctionExecGraph(root.Id)
	utils.AssertNil(t, err)
	utils.AssertEquals(t, root.Id, graph.RootNode.Msg.Id)
	utils.AssertEquals(t, 2, len(graph.RootNode.Children))

	var childIds []uint32
	for _, c := range graph.RootNode.Children {
		childIds = append(childIds, c.Msg.Id)
		if c.Msg.Id == childA.Id {
			utils.AssertEquals(t, 1, len(c.Children))
			utils.AssertEquals(t, grandchild.Id, c.Children[0].Msg.Id)
		}
	}
	sort.Slice(childIds, func(i, j int) bool { return childIds[i] < childIds[j] })
	expected := []uint32{childA.Id, childB.Id}
	sort.Slice(expected, func(i, j int) bool { return expected[i] < expected[j] })
	utils.AssertSliceEquals(t, expected, childIds)
}

func TestReset(t *testing.T) {
	sched, _ := setUp(t, 4)

	req := batchOfSize(2, thisHost)
	_, err := sched.CallFunctions(req, false)
	utils.AssertNil(t, err)

	sched.Reset()
	res := sched.GetThisHostResources()
	utils.AssertEquals(t, int32(4), res.Cores)
	utils.AssertEquals(t, int32(0), res.BoundExecutors)
	utils.AssertEquals(t, int32(0), res.FunctionsInFlight)
	utils.AssertEquals(t, 0, len(sched.GetRecordedMessagesAll()))
}
