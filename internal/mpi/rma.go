package mpi

import (
	"encoding/json"
	"fmt"

	"github.com/faasmesh/faasmesh/internal/messages"
)

// One-sided communication. A rank exposes a window over its memory; other
// ranks read and write it without the owner participating. Writes are
// unsynchronized: callers must make sure no reader races a remote put.

// CreateWindow registers buffer as the window of the given rank.
func (w *World) CreateWindow(winRank int32, winSize int, buffer []byte) error {
	if winRank < 0 || winRank >= w.size {
		return fmt.Errorf("%w: rank %d of %d", InvalidRankErr, winRank, w.size)
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	w.windows[winRank] = buffer[:winSize]
	return nil
}

// ReadWindow copies out the first n bytes of a rank's window.
func (w *World) ReadWindow(winRank int32, n int) ([]byte, error) {
	w.mu.RLock()
	defer w.mu.RUnlock()

	window, ok := w.windows[winRank]
	if !ok {
		return nil, fmt.Errorf("%w: rank %d", WindowNotFoundErr, winRank)
	}
	if n > len(window) {
		n = len(window)
	}
	return append([]byte{}, window[:n]...), nil
}

// RmaGet reads sendCount elements from the window of sendRank into
// recvBuffer. A remote window is fetched through a synchronous round-trip on
// the owning host's endpoint.
func (w *World) RmaGet(sendRank int32, sendType Datatype, sendCount int32,
	recvBuffer []byte, recvType Datatype, recvCount int32) error {
	host, err := w.GetHostForRank(sendRank)
	if err != nil {
		return err
	}

	n := int(sendCount) * sendType.Size()
	if host == w.thisHost {
		data, err := w.ReadWindow(sendRank, n)
		if err != nil {
			return err
		}
		copy(recvBuffer, data)
		return nil
	}

	req := &messages.MPIMessage{
		WorldId:     w.id,
		Sender:      sendRank,
		Destination: sendRank,
		Datatype:    int32(sendType),
		Count:       sendCount,
		MessageType: messages.RMA_READ,
	}
	body, err := json.Marshal(req)
	if err != nil {
		return err
	}

	reply, err := w.getEndpoint(host).SyncSend(RmaReadCall, body)
	if err != nil {
		return err
	}
	copy(recvBuffer, reply)
	return nil
}

// RmaPut writes sendBuffer into the window of recvRank. Remote windows
// receive the bytes through an RMA_WRITE message applied by the owning host.
func (w *World) RmaPut(sendRank int32, sendBuffer []byte, sendType Datatype, sendCount int32,
	recvRank int32, recvType Datatype, recvCount int32) error {
	host, err := w.GetHostForRank(recvRank)
	if err != nil {
		return err
	}

	n := int(sendCount) * sendType.Size()
	if host == w.thisHost {
		return w.writeWindow(recvRank, sendBuffer[:n])
	}

	msg := &messages.MPIMessage{
		WorldId:     w.id,
		Sender:      sendRank,
		Destination: recvRank,
		Datatype:    int32(sendType),
		Count:       sendCount,
		Buffer:      append([]byte{}, sendBuffer[:n]...),
		MessageType: messages.RMA_WRITE,
	}
	return w.sendRemoteMessage(host, msg)
}

func (w *World) writeWindow(winRank int32, data []byte) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	window, ok := w.windows[winRank]
	if !ok {
		return fmt.Errorf("%w: rank %d", WindowNotFoundErr, winRank)
	}
	copy(window, data)
	return nil
}

// synchronizeRmaWrite applies a remotely originated put to the local window.
func (w *World) synchronizeRmaWrite(msg *messages.MPIMessage) error {
	return w.writeWindow(msg.Destination, msg.Buffer)
}
