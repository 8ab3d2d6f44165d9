package state

import (
	"errors"
	"fmt"
)

// Set holding every live host in the mesh.
const AvailableHostsKey = "available_hosts"

var NoResponseErr = errors.New("no response from state store")

// Store is the thin contract the scheduler and MPI layers need from the
// shared state service: byte queues with FIFO semantics per key, a plain
// key-value surface with TTLs, and string sets. No operation spans keys
// atomically and callers must not rely on cross-key transactions.
type Store interface {
	// EnqueueBytes appends data to the list stored under key.
	EnqueueBytes(key string, data []byte) error

	// DequeueBytes pops the oldest entry of the list under key. With a zero
	// timeout it returns NoResponseErr immediately when the list is empty;
	// otherwise it waits up to timeoutMs milliseconds before giving up with
	// NoResponseErr.
	DequeueBytes(key string, timeoutMs int) ([]byte, error)

	Set(key string, value []byte) error

	// Get returns nil (and no error) for a missing key.
	Get(key string) ([]byte, error)

	// Expire schedules key (and, for queues, its entries) for deletion after
	// ttlSec seconds.
	Expire(key string, ttlSec int) error

	SAdd(key string, member string) error
	SRem(key string, member string) error
	SMembers(key string) ([]string, error)

	Close()
}

func WorldStateKey(worldId int32) string {
	return fmt.Sprintf("mpi:worldstate:%d", worldId)
}

func RankHostKey(worldId int32, rank int32) string {
	return fmt.Sprintf("mpi:rankhost:%d:%d", worldId, rank)
}

func HostResourcesKey(host string) string {
	return fmt.Sprintf("resources:%s", host)
}
