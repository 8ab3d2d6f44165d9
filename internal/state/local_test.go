package state

import (
	"errors"
	"sort"
	"testing"
	"time"

	"github.com/faasmesh/faasmesh/utils"
)

func TestQueueFifoPerKey(t *testing.T) {
	store := NewLocalStore()

	utils.AssertNil(t, store.EnqueueBytes("q", []byte("a")))
	utils.AssertNil(t, store.EnqueueBytes("q", []byte("b")))
	utils.AssertNil(t, store.EnqueueBytes("other", []byte("x")))

	data, err := store.DequeueBytes("q", 0)
	utils.AssertNil(t, err)
	utils.AssertEquals(t, "a", string(data))

	data, err = store.DequeueBytes("q", 0)
	utils.AssertNil(t, err)
	utils.AssertEquals(t, "b", string(data))

	data, err = store.DequeueBytes("other", 0)
	utils.AssertNil(t, err)
	utils.AssertEquals(t, "x", string(data))
}

func TestDequeueEmpty(t *testing.T) {
	store := NewLocalStore()

	// non-blocking pop of an empty queue fails straight away
	_, err := store.DequeueBytes("empty", 0)
	utils.AssertTrue(t, errors.Is(err, NoResponseErr))

	// blocking pop gives up after the timeout
	start := time.Now()
	_, err = store.DequeueBytes("empty", 100)
	utils.AssertTrue(t, errors.Is(err, NoResponseErr))
	utils.AssertTrue(t, time.Since(start) >= 100*time.Millisecond)
}

func TestDequeueBlocksUntilEnqueue(t *testing.T) {
	store := NewLocalStore()

	go func() {
		time.Sleep(50 * time.Millisecond)
		store.EnqueueBytes("q", []byte("late"))
	}()

	data, err := store.DequeueBytes("q", 2000)
	utils.AssertNil(t, err)
	utils.AssertEquals(t, "late", string(data))
}

func TestKvRoundTrip(t *testing.T) {
	store := NewLocalStore()

	// missing keys read as empty
	data, err := store.Get("missing")
	utils.AssertNil(t, err)
	utils.AssertEquals(t, 0, len(data))

	utils.AssertNil(t, store.Set("k", []byte("v")))
	data, err = store.Get("k")
	utils.AssertNil(t, err)
	utils.AssertEquals(t, "v", string(data))
}

func TestExpire(t *testing.T) {
	store := NewLocalStore()

	utils.AssertNil(t, store.Set("k", []byte("v")))
	utils.AssertNil(t, store.Expire("k", 1))

	data, err := store.Get("k")
	utils.AssertNil(t, err)
	utils.AssertEquals(t, "v", string(data))

	time.Sleep(1100 * time.Millisecond)
	data, err = store.Get("k")
	utils.AssertNil(t, err)
	utils.AssertEquals(t, 0, len(data))
}

func TestSets(t *testing.T) {
	store := NewLocalStore()

	utils.AssertNil(t, store.SAdd("hosts", "a"))
	utils.AssertNil(t, store.SAdd("hosts", "b"))
	utils.AssertNil(t, store.SAdd("hosts", "b"))

	members, err := store.SMembers("hosts")
	utils.AssertNil(t, err)
	sort.Strings(members)
	utils.AssertSliceEquals(t, []string{"a", "b"}, members)

	utils.AssertNil(t, store.SRem("hosts", "a"))
	members, err = store.SMembers("hosts")
	utils.AssertNil(t, err)
	utils.AssertSliceEquals(t, []string{"b"}, members)
}
