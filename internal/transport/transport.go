package transport

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

// Default service ports. Every endpoint owns a pair of sockets: the async
// socket on the port itself and the sync (request/reply) socket offset above
// it.
const (
	StatePort        = 8003
	FunctionCallPort = 8004
	SnapshotPort     = 8005
	MpiPort          = 8800

	ReplyPortOffset = 100
)

const DefaultTimeoutMs = 20000

// Frames larger than this are refused outright; snapshots are the largest
// legitimate payload and stay well below it.
const maxFrameSize = 1 << 30

var TransportErr = errors.New("transport error")
var MessageTimeoutErr = errors.New("transport message timed out")

// Every logical message on the wire is a two-frame sequence: a single-byte
// header carrying the call id, then the body. A frame is a 4-byte big-endian
// length followed by the payload. An empty header frame on the async socket
// signals server shutdown.

func writeFrame(w io.Writer, payload []byte) error {
	var lenBuf [4]byte
	binary.BigEndian.PutUint32(lenBuf[:], uint32(len(payload)))

	if _, err := w.Write(lenBuf[:]); err != nil {
		return fmt.Errorf("%w: %v", TransportErr, err)
	}
	if len(payload) > 0 {
		if _, err := w.Write(payload); err != nil {
			return fmt.Errorf("%w: %v", TransportErr, err)
		}
	}
	return nil
}

func readFrame(r io.Reader) ([]byte, error) {
	var lenBuf [4]byte
	if _, err := io.ReadFull(r, lenBuf[:]); err != nil {
		return nil, err
	}

	size := binary.BigEndian.Uint32(lenBuf[:])
	if size == 0 {
		return nil, nil
	}
	if size > maxFrameSize {
		return nil, fmt.Errorf("%w: oversized frame (%d bytes)", TransportErr, size)
	}

	payload := make([]byte, size)
	if _, err := io.ReadFull(r, payload); err != nil {
		return nil, err
	}
	return payload, nil
}
