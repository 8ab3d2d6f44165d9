package mpi_test

import (
	"encoding/binary"
	"errors"
	"math"
	"sync"
	"testing"

	"github.com/faasmesh/faasmesh/internal/config"
	"github.com/faasmesh/faasmesh/internal/messages"
	"github.com/faasmesh/faasmesh/internal/mpi"
	"github.com/faasmesh/faasmesh/internal/test"
	"github.com/faasmesh/faasmesh/utils"
	"github.com/spf13/viper"
)

const thisHost = "thisHost"
const testUser = "mpi"
const testFunc = "hellompi"

func setUpWorldEnv(t *testing.T, cores int) {
	viper.Set(config.USABLE_CORES, cores)
	utils.SetMockMode(true)
	test.SetUpScheduler(thisHost)
	mpi.GetWorldRegistry().Clear()

	t.Cleanup(func() {
		utils.SetMockMode(false)
		mpi.GetWorldRegistry().Clear()
	})
}

func mpiMessageFactory(worldId int32, worldSize int32) *messages.Message {
	msg := messages.MessageFactory(testUser, testFunc)
	msg.MasterHost = thisHost
	msg.IsMpi = true
	msg.MpiWorldId = worldId
	msg.MpiWorldSize = worldSize
	return msg
}

func intsToBytes(values []int32) []byte {
	buf := make([]byte, len(values)*4)
	for i, v := range values {
		binary.LittleEndian.PutUint32(buf[i*4:], uint32(v))
	}
	return buf
}

func bytesToInts(buf []byte, n int) []int32 {
	values := make([]int32, n)
	for i := range values {
		values[i] = int32(binary.LittleEndian.Uint32(buf[i*4:]))
	}
	return values
}

func longsToBytes(values []int64) []byte {
	buf := make([]byte, len(values)*8)
	for i, v := range values {
		binary.LittleEndian.PutUint64(buf[i*8:], uint64(v))
	}
	return buf
}

func bytesToLongs(buf []byte, n int) []int64 {
	values := make([]int64, n)
	for i := range values {
		values[i] = int64(binary.LittleEndian.Uint64(buf[i*8:]))
	}
	return values
}

func doublesToBytes(values []float64) []byte {
	buf := make([]byte, len(values)*8)
	for i, v := range values {
		binary.LittleEndian.PutUint64(buf[i*8:], math.Float64bits(v))
	}
	return buf
}

func bytesToDoubles(buf []byte, n int) []float64 {
	values := make([]float64, n)
	for i := range values {
		values[i] = math.Float64frombits(binary.LittleEndian.Uint64(buf[i*8:]))
	}
	return values
}

func TestWorldCreation(t *testing.T) {
	setUpWorldEnv(t, 10)

	msg := mpiMessageFactory(1234, 5)
	world := mpi.NewWorld()
	utils.AssertNil(t, world.Create(msg, 1234, 5))
	defer world.Destroy()

	utils.AssertEquals(t, int32(1234), world.Id())
	utils.AssertEquals(t, int32(5), world.Size())
	utils.AssertEquals(t, testUser, world.User())
	utils.AssertEquals(t, testFunc, world.Function())

	// with enough local cores every rank lands here
	for rank := int32(0); rank < 5; rank++ {
		host, err := world.GetHostForRank(rank)
		utils.AssertNil(t, err)
		utils.AssertEquals(t, thisHost, host)
	}
}

func TestWorldLoadingFromMsg(t *testing.T) {
	setUpWorldEnv(t, 10)

	msg := mpiMessageFactory(1235, 3)
	world := mpi.NewWorld()
	utils.AssertNil(t, world.Create(msg, 1235, 3))
	defer world.Destroy()

	joinMsg := mpiMessageFactory(1235, 3)
	joinMsg.MpiRank = 1

	joined := mpi.NewWorld()
	utils.AssertNil(t, joined.InitialiseFromMsg(joinMsg))
	defer joined.Destroy()

	utils.AssertEquals(t, int32(1235), joined.Id())
	utils.AssertEquals(t, int32(3), joined.Size())
	utils.AssertEquals(t, testUser, joined.User())
	host, err := joined.GetHostForRank(2)
	utils.AssertNil(t, err)
	utils.AssertEquals(t, thisHost, host)
}

func TestSendRecvSameHost(t *testing.T) {
	setUpWorldEnv(t, 10)

	world := mpi.NewWorld()
	utils.AssertNil(t, world.Create(mpiMessageFactory(10, 2), 10, 2))
	defer world.Destroy()

	data := []int32{0, 1, 2}
	utils.AssertNil(t, world.Send(0, 1, intsToBytes(data), mpi.INT, 3))

	utils.AssertEquals(t, 1, world.GetLocalQueueSize(0, 1))
	utils.AssertEquals(t, 0, world.GetLocalQueueSize(1, 0))

	buffer := make([]byte, 12)
	var status mpi.Status
	utils.AssertNil(t, world.Recv(0, 1, buffer, mpi.INT, 3, &status))

	utils.AssertSliceEquals(t, data, bytesToInts(buffer, 3))
	utils.AssertEquals(t, int32(0), status.Source)
	utils.AssertEquals(t, mpi.Success, status.Error)
	utils.AssertEquals(t, 12, status.BytesSize)
	utils.AssertEquals(t, 0, world.GetLocalQueueSize(0, 1))
}

func TestSendToInvalidRank(t *testing.T) {
	setUpWorldEnv(t, 10)

	world := mpi.NewWorld()
	utils.AssertNil(t, world.Create(mpiMessageFactory(11, 2), 11, 2))
	defer world.Destroy()

	err := world.Send(0, 4, intsToBytes([]int32{1}), mpi.INT, 1)
	utils.AssertTrue(t, errors.Is(err, mpi.InvalidRankErr))
}

func TestRecvPartialData(t *testing.T) {
	setUpWorldEnv(t, 10)

	world := mpi.NewWorld()
	utils.AssertNil(t, world.Create(mpiMessageFactory(12, 3), 12, 3))
	defer world.Destroy()

	// send fewer values than the receiver asks for
	sent := []int32{0, 1, 2, 3}
	utils.AssertNil(t, world.Send(1, 2, intsToBytes(sent), mpi.INT, 4))

	buffer := make([]byte, (4+5)*4)
	var status mpi.Status
	utils.AssertNil(t, world.Recv(1, 2, buffer, mpi.INT, 4+5, &status))

	utils.AssertEquals(t, int32(1), status.Source)
	utils.AssertEquals(t, 16, status.BytesSize)
	utils.AssertSliceEquals(t, sent, bytesToInts(buffer, 4))
}

func TestTypeMismatchDoesNotConsume(t *testing.T) {
	setUpWorldEnv(t, 10)

	world := mpi.NewWorld()
	utils.AssertNil(t, world.Create(mpiMessageFactory(13, 2), 13, 2))
	defer world.Destroy()

	data := []int32{7, 8}
	utils.AssertNil(t, world.Send(0, 1, intsToBytes(data), mpi.INT, 2))

	buffer := make([]byte, 8)
	err := world.RecvOfType(0, 1, buffer, mpi.INT, 2, nil, messages.BCAST)
	utils.AssertTrue(t, errors.Is(err, mpi.TypeMismatchErr))
	utils.AssertEquals(t, 1, world.GetLocalQueueSize(0, 1))

	// the message is still there for a matching receive
	utils.AssertNil(t, world.Recv(0, 1, buffer, mpi.INT, 2, nil))
	utils.AssertSliceEquals(t, data, bytesToInts(buffer, 2))
}

func TestProbe(t *testing.T) {
	setUpWorldEnv(t, 10)

	world := mpi.NewWorld()
	utils.AssertNil(t, world.Create(mpiMessageFactory(14, 3), 14, 3))
	defer world.Destroy()

	data := []int32{0, 1, 2, 3, 4, 5, 6}
	utils.AssertNil(t, world.Send(1, 2, intsToBytes(data[:2]), mpi.INT, 2))
	utils.AssertNil(t, world.Send(1, 2, intsToBytes(data), mpi.INT, 7))

	// probing twice reports the same pending message both times
	var statusA1, statusA2, statusB mpi.Status
	utils.AssertNil(t, world.Probe(1, 2, &statusA1))
	utils.AssertNil(t, world.Probe(1, 2, &statusA2))
	utils.AssertEquals(t, 8, statusA1.BytesSize)
	utils.AssertEquals(t, 8, statusA2.BytesSize)
	utils.AssertEquals(t, int32(1), statusA1.Source)

	buffer := make([]byte, 8)
	utils.AssertNil(t, world.Recv(1, 2, buffer, mpi.INT, 2, nil))

	utils.AssertNil(t, world.Probe(1, 2, &statusB))
	utils.AssertEquals(t, 28, statusB.BytesSize)

	buffer = make([]byte, 28)
	utils.AssertNil(t, world.Recv(1, 2, buffer, mpi.INT, 7, nil))
}

func TestAsyncSendRecv(t *testing.T) {
	setUpWorldEnv(t, 10)

	world := mpi.NewWorld()
	utils.AssertNil(t, world.Create(mpiMessageFactory(15, 2), 15, 2))
	defer world.Destroy()

	data := []int32{4, 5, 6}
	sendId, err := world.ISend(0, 1, intsToBytes(data), mpi.INT, 3)
	utils.AssertNil(t, err)

	buffer := make([]byte, 12)
	recvId, err := world.IRecv(0, 1, buffer, mpi.INT, 3)
	utils.AssertNil(t, err)

	utils.AssertNil(t, world.AwaitAsyncRequest(sendId))
	utils.AssertNil(t, world.AwaitAsyncRequest(recvId))
	utils.AssertSliceEquals(t, data, bytesToInts(buffer, 3))
}

func TestRingSendRecv(t *testing.T) {
	setUpWorldEnv(t, 10)

	worldSize := int32(5)
	world := mpi.NewWorld()
	utils.AssertNil(t, world.Create(mpiMessageFactory(16, worldSize), 16, worldSize))
	defer world.Destroy()

	// every rank pushes its id right and receives its left neighbour's id
	received := make([]int32, worldSize)
	var wg sync.WaitGroup
	for rank := int32(0); rank < worldSize; rank++ {
		wg.Add(1)
		go func(rank int32) {
			defer wg.Done()

			right := (rank + 1) % worldSize
			left := (rank - 1 + worldSize) % worldSize

			sendBuf := intsToBytes([]int32{rank})
			recvBuf := make([]byte, 4)
			var status mpi.Status
			if err := world.SendRecv(sendBuf, 1, mpi.INT, right,
				recvBuf, 1, mpi.INT, left, rank, &status); err != nil {
				t.Error(err)
				return
			}
			received[rank] = bytesToInts(recvBuf, 1)[0]
		}(rank)
	}
	wg.Wait()

	for rank := int32(0); rank < worldSize; rank++ {
		left := (rank - 1 + worldSize) % worldSize
		utils.AssertEquals(t, left, received[rank])
	}
}

func TestBarrier(t *testing.T) {
	setUpWorldEnv(t, 10)

	worldSize := int32(4)
	world := mpi.NewWorld()
	utils.AssertNil(t, world.Create(mpiMessageFactory(17, worldSize), 17, worldSize))
	defer world.Destroy()

	var wg sync.WaitGroup
	for rank := int32(0); rank < worldSize; rank++ {
		wg.Add(1)
		go func(rank int32) {
			defer wg.Done()
			if err := world.Barrier(rank); err != nil {
				t.Error(err)
			}
		}(rank)
	}
	wg.Wait()
}

func TestBroadcast(t *testing.T) {
	setUpWorldEnv(t, 10)

	worldSize := int32(4)
	world := mpi.NewWorld()
	utils.AssertNil(t, world.Create(mpiMessageFactory(18, worldSize), 18, worldSize))
	defer world.Destroy()

	data := []int32{0, 1, 2}
	utils.AssertNil(t, world.Broadcast(2, intsToBytes(data), mpi.INT, 3))

	for rank := int32(0); rank < worldSize; rank++ {
		if rank == 2 {
			continue
		}
		buffer := make([]byte, 12)
		utils.AssertNil(t, world.RecvOfType(2, rank, buffer, mpi.INT, 3, nil, messages.BCAST))
		utils.AssertSliceEquals(t, data, bytesToInts(buffer, 3))
	}
}

func TestScatter(t *testing.T) {
	setUpWorldEnv(t, 10)

	worldSize := int32(4)
	world := mpi.NewWorld()
	utils.AssertNil(t, world.Create(mpiMessageFactory(19, worldSize), 19, worldSize))
	defer world.Destroy()

	nPerRank := int32(4)
	input := make([]int32, worldSize*nPerRank)
	for i := range input {
		input[i] = int32(i)
	}

	// root keeps its own slice
	rootBuf := make([]byte, nPerRank*4)
	utils.AssertNil(t, world.Scatter(2, 2, intsToBytes(input), mpi.INT, nPerRank,
		rootBuf, mpi.INT, nPerRank))
	utils.AssertSliceEquals(t, []int32{8, 9, 10, 11}, bytesToInts(rootBuf, 4))

	// other ranks receive theirs
	for _, rank := range []int32{0, 1, 3} {
		buf := make([]byte, nPerRank*4)
		utils.AssertNil(t, world.Scatter(2, rank, nil, mpi.INT, nPerRank,
			buf, mpi.INT, nPerRank))
		expected := input[rank*nPerRank : (rank+1)*nPerRank]
		utils.AssertSliceEquals(t, expected, bytesToInts(buf, 4))
	}
}

func TestGather(t *testing.T) {
	setUpWorldEnv(t, 10)

	worldSize := int32(4)
	world := mpi.NewWorld()
	utils.AssertNil(t, world.Create(mpiMessageFactory(20, worldSize), 20, worldSize))
	defer world.Destroy()

	nPerRank := int32(4)
	root := int32(1)

	// non-root ranks contribute first (sends never block locally)
	for rank := int32(0); rank < worldSize; rank++ {
		if rank == root {
			continue
		}
		slice := make([]int32, nPerRank)
		for i := range slice {
			slice[i] = rank*nPerRank + int32(i)
		}
		utils.AssertNil(t, world.Gather(rank, root, intsToBytes(slice), mpi.INT, nPerRank,
			nil, mpi.INT, nPerRank))
	}

	rootSlice := make([]int32, nPerRank)
	for i := range rootSlice {
		rootSlice[i] = root*nPerRank + int32(i)
	}
	gathered := make([]byte, worldSize*nPerRank*4)
	utils.AssertNil(t, world.Gather(root, root, intsToBytes(rootSlice), mpi.INT, nPerRank,
		gathered, mpi.INT, nPerRank))

	expected := make([]int32, worldSize*nPerRank)
	for i := range expected {
		expected[i] = int32(i)
	}
	utils.AssertSliceEquals(t, expected, bytesToInts(gathered, len(expected)))
}

func TestAllGather(t *testing.T) {
	setUpWorldEnv(t, 10)

	worldSize := int32(3)
	world := mpi.NewWorld()
	utils.AssertNil(t, world.Create(mpiMessageFactory(21, worldSize), 21, worldSize))
	defer world.Destroy()

	nPerRank := int32(2)
	expected := make([]int32, worldSize*nPerRank)
	for i := range expected {
		expected[i] = int32(i)
	}

	var wg sync.WaitGroup
	for rank := int32(0); rank < worldSize; rank++ {
		wg.Add(1)
		go func(rank int32) {
			defer wg.Done()

			slice := make([]int32, nPerRank)
			for i := range slice {
				slice[i] = rank*nPerRank + int32(i)
			}
			buf := make([]byte, worldSize*nPerRank*4)
			if err := world.AllGather(rank, intsToBytes(slice), mpi.INT, nPerRank,
				buf, mpi.INT, nPerRank); err != nil {
				t.Error(err)
				return
			}
			actual := bytesToInts(buf, len(expected))
			for i := range expected {
				if actual[i] != expected[i] {
					t.Errorf("rank %d: got %v, expected %v", rank, actual, expected)
					return
				}
			}
		}(rank)
	}
	wg.Wait()
}

func TestReduceMinDoubles(t *testing.T) {
	setUpWorldEnv(t, 10)

	worldSize := int32(5)
	root := int32(3)
	world := mpi.NewWorld()
	utils.AssertNil(t, world.Create(mpiMessageFactory(22, worldSize), 22, worldSize))
	defer world.Destroy()

	// every non-root rank contributes its values
	for rank := int32(0); rank < worldSize; rank++ {
		if rank == root {
			continue
		}
		base := 2.5 + float64(rank)
		contribution := []float64{base, base * 10, base * 100}
		utils.AssertNil(t, world.Reduce(rank, root, doublesToBytes(contribution), nil,
			mpi.DOUBLE, 3, mpi.MIN))
	}

	base := 2.5 + float64(root)
	rootContribution := []float64{base, base * 10, base * 100}
	result := make([]byte, 3*8)
	utils.AssertNil(t, world.Reduce(root, root, doublesToBytes(rootContribution), result,
		mpi.DOUBLE, 3, mpi.MIN))

	utils.AssertSliceEquals(t, []float64{2.5, 25.0, 250.0}, bytesToDoubles(result, 3))
}

func TestReduceInPlace(t *testing.T) {
	setUpWorldEnv(t, 10)

	worldSize := int32(3)
	world := mpi.NewWorld()
	utils.AssertNil(t, world.Create(mpiMessageFactory(23, worldSize), 23, worldSize))
	defer world.Destroy()

	for rank := int32(1); rank < worldSize; rank++ {
		utils.AssertNil(t, world.Reduce(rank, 0, intsToBytes([]int32{rank, rank}), nil,
			mpi.INT, 2, mpi.SUM))
	}

	buf := intsToBytes([]int32{0, 0})
	utils.AssertNil(t, world.Reduce(0, 0, buf, buf, mpi.INT, 2, mpi.SUM))
	utils.AssertSliceEquals(t, []int32{3, 3}, bytesToInts(buf, 2))
}

func TestAllReduce(t *testing.T) {
	setUpWorldEnv(t, 10)

	worldSize := int32(4)
	world := mpi.NewWorld()
	utils.AssertNil(t, world.Create(mpiMessageFactory(24, worldSize), 24, worldSize))
	defer world.Destroy()

	// sum of 0..3 elementwise offsets
	expected := []int32{6, 10}

	var wg sync.WaitGroup
	for rank := int32(0); rank < worldSize; rank++ {
		wg.Add(1)
		go func(rank int32) {
			defer wg.Done()

			buf := make([]byte, 8)
			if err := world.AllReduce(rank, intsToBytes([]int32{rank, rank + 1}), buf,
				mpi.INT, 2, mpi.SUM); err != nil {
				t.Error(err)
				return
			}
			actual := bytesToInts(buf, 2)
			if actual[0] != expected[0] || actual[1] != expected[1] {
				t.Errorf("rank %d: got %v, expected %v", rank, actual, expected)
			}
		}(rank)
	}
	wg.Wait()
}

func TestScan(t *testing.T) {
	setUpWorldEnv(t, 10)

	worldSize := int32(5)
	count := 3
	world := mpi.NewWorld()
	utils.AssertNil(t, world.Create(mpiMessageFactory(25, worldSize), 25, worldSize))
	defer world.Destroy()

	rankData := make([][]int32, worldSize)
	expected := make([][]int32, worldSize)
	for r := int32(0); r < worldSize; r++ {
		rankData[r] = make([]int32, count)
		expected[r] = make([]int32, count)
		for i := 0; i < count; i++ {
			rankData[r][i] = r*10 + int32(i)
			if r == 0 {
				expected[r][i] = rankData[r][i]
			} else {
				expected[r][i] = expected[r-1][i] + rankData[r][i]
			}
		}
	}

	// ranks run in order; each receives the prefix from its predecessor
	for r := int32(0); r < worldSize; r++ {
		result := make([]byte, count*4)
		utils.AssertNil(t, world.Scan(r, intsToBytes(rankData[r]), result,
			mpi.INT, int32(count), mpi.SUM))
		utils.AssertSliceEquals(t, expected[r], bytesToInts(result, count))
	}
}

func TestScanInPlace(t *testing.T) {
	setUpWorldEnv(t, 10)

	worldSize := int32(3)
	world := mpi.NewWorld()
	utils.AssertNil(t, world.Create(mpiMessageFactory(26, worldSize), 26, worldSize))
	defer world.Destroy()

	expected := []int32{0, 1, 3}
	for r := int32(0); r < worldSize; r++ {
		buf := intsToBytes([]int32{r})
		utils.AssertNil(t, world.Scan(r, buf, buf, mpi.INT, 1, mpi.SUM))
		utils.AssertEquals(t, expected[r], bytesToInts(buf, 1)[0])
	}
}

func TestAllToAll(t *testing.T) {
	setUpWorldEnv(t, 10)

	worldSize := int32(4)
	world := mpi.NewWorld()
	utils.AssertNil(t, world.Create(mpiMessageFactory(27, worldSize), 27, worldSize))
	defer world.Destroy()

	inputs := [][]int32{
		{0, 1, 2, 3, 4, 5, 6, 7},
		{10, 11, 12, 13, 14, 15, 16, 17},
		{20, 21, 22, 23, 24, 25, 26, 27},
		{30, 31, 32, 33, 34, 35, 36, 37},
	}
	expected := [][]int32{
		{0, 1, 10, 11, 20, 21, 30, 31},
		{2, 3, 12, 13, 22, 23, 32, 33},
		{4, 5, 14, 15, 24, 25, 34, 35},
		{6, 7, 16, 17, 26, 27, 36, 37},
	}

	var wg sync.WaitGroup
	for rank := int32(0); rank < worldSize; rank++ {
		wg.Add(1)
		go func(rank int32) {
			defer wg.Done()

			buf := make([]byte, 8*4)
			if err := world.AllToAll(rank, intsToBytes(inputs[rank]), mpi.INT, 2,
				buf, mpi.INT, 2); err != nil {
				t.Error(err)
				return
			}
			actual := bytesToInts(buf, 8)
			for i := range expected[rank] {
				if actual[i] != expected[rank][i] {
					t.Errorf("rank %d: got %v, expected %v", rank, actual, expected[rank])
					return
				}
			}
		}(rank)
	}
	wg.Wait()
}

func TestRmaLocal(t *testing.T) {
	setUpWorldEnv(t, 10)

	worldSize := int32(3)
	world := mpi.NewWorld()
	utils.AssertNil(t, world.Create(mpiMessageFactory(28, worldSize), 28, worldSize))
	defer world.Destroy()

	window := intsToBytes([]int32{0, 1, 2, 3})
	utils.AssertNil(t, world.CreateWindow(1, len(window), window))

	// one-sided read
	buf := make([]byte, 16)
	utils.AssertNil(t, world.RmaGet(1, mpi.INT, 4, buf, mpi.INT, 4))
	utils.AssertSliceEquals(t, []int32{0, 1, 2, 3}, bytesToInts(buf, 4))

	// one-sided write lands in the window memory itself
	putData := []int32{10, 11, 12, 13}
	utils.AssertNil(t, world.RmaPut(2, intsToBytes(putData), mpi.INT, 4, 1, mpi.INT, 4))
	utils.AssertSliceEquals(t, putData, bytesToInts(window, 4))
}

func TestWTime(t *testing.T) {
	setUpWorldEnv(t, 10)

	world := mpi.NewWorld()
	utils.AssertNil(t, world.Create(mpiMessageFactory(29, 2), 29, 2))
	defer world.Destroy()

	utils.AssertTrue(t, world.WTime() >= 0)
}
