package snapshot

import (
	"encoding/binary"
	"fmt"
	"log"
	"sync"

	"github.com/faasmesh/faasmesh/internal/transport"
	"github.com/faasmesh/faasmesh/utils"
)

const (
	PushSnapshotCall uint8 = iota + 1
	DeleteSnapshotCall
)

// Snapshot payloads travel as a length-prefixed flat encoding rather than a
// record body so the bulk bytes are never re-encoded:
// <4-byte key length><key><snapshot bytes>.

func encodePush(key string, data []byte) []byte {
	body := make([]byte, 4+len(key)+len(data))
	binary.BigEndian.PutUint32(body[:4], uint32(len(key)))
	copy(body[4:], key)
	copy(body[4+len(key):], data)
	return body
}

func decodePush(body []byte) (string, []byte, error) {
	if len(body) < 4 {
		return "", nil, fmt.Errorf("%w: truncated snapshot push", transport.TransportErr)
	}
	keyLen := int(binary.BigEndian.Uint32(body[:4]))
	if len(body) < 4+keyLen {
		return "", nil, fmt.Errorf("%w: truncated snapshot key", transport.TransportErr)
	}
	return string(body[4 : 4+keyLen]), body[4+keyLen:], nil
}

// Mock log used when mock mode is on: clients append here instead of hitting
// the network.
var (
	mockMutex       sync.Mutex
	snapshotPushes  []MockSnapshotPush
	snapshotDeletes []MockSnapshotDelete
)

type MockSnapshotPush struct {
	Host string
	Key  string
	Data *SnapshotData
}

type MockSnapshotDelete struct {
	Host string
	Key  string
}

func GetSnapshotPushes() []MockSnapshotPush {
	mockMutex.Lock()
	defer mockMutex.Unlock()
	return append([]MockSnapshotPush{}, snapshotPushes...)
}

func GetSnapshotDeletes() []MockSnapshotDelete {
	mockMutex.Lock()
	defer mockMutex.Unlock()
	return append([]MockSnapshotDelete{}, snapshotDeletes...)
}

func ClearMockSnapshotRequests() {
	mockMutex.Lock()
	defer mockMutex.Unlock()
	snapshotPushes = nil
	snapshotDeletes = nil
}

// Client pushes and deletes snapshots on one peer. Both operations are
// fire-and-forget.
type Client struct {
	host     string
	endpoint *transport.MessageEndpointClient
}

func NewClient(host string) *Client {
	return &Client{
		host:     host,
		endpoint: transport.NewMessageEndpointClient(host, transport.SnapshotPort),
	}
}

func (c *Client) PushSnapshot(key string, snap *SnapshotData) error {
	if utils.IsMockMode() {
		mockMutex.Lock()
		defer mockMutex.Unlock()
		snapshotPushes = append(snapshotPushes, MockSnapshotPush{Host: c.host, Key: key, Data: snap})
		return nil
	}

	log.Printf("Pushing snapshot %s to %s", key, c.host)
	return c.endpoint.AsyncSend(PushSnapshotCall, encodePush(key, snap.Data[:snap.Size]))
}

func (c *Client) DeleteSnapshot(key string) error {
	if utils.IsMockMode() {
		mockMutex.Lock()
		defer mockMutex.Unlock()
		snapshotDeletes = append(snapshotDeletes, MockSnapshotDelete{Host: c.host, Key: key})
		return nil
	}

	log.Printf("Deleting snapshot %s from %s", key, c.host)
	return c.endpoint.AsyncSend(DeleteSnapshotCall, []byte(key))
}

func (c *Client) Close() {
	c.endpoint.Close()
}
