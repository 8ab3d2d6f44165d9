package transport

import (
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/faasmesh/faasmesh/internal/config"
)

// MessageEndpointClient talks to one peer service over its async/sync socket
// pair. Connections are dialled lazily and reused; a sync call that times out
// discards its connection since the late reply would otherwise be read by the
// next request.
type MessageEndpointClient struct {
	Host      string
	asyncPort int
	syncPort  int
	timeout   time.Duration

	mu        sync.Mutex
	asyncConn net.Conn
	syncConn  net.Conn
}

func NewMessageEndpointClient(host string, asyncPort int) *MessageEndpointClient {
	timeoutMs := config.GetInt(config.TRANSPORT_TIMEOUT_MS, DefaultTimeoutMs)
	return NewMessageEndpointClientWithTimeout(host, asyncPort, timeoutMs)
}

func NewMessageEndpointClientWithTimeout(host string, asyncPort int, timeoutMs int) *MessageEndpointClient {
	return &MessageEndpointClient{
		Host:      host,
		asyncPort: asyncPort,
		syncPort:  asyncPort + ReplyPortOffset,
		timeout:   time.Duration(timeoutMs) * time.Millisecond,
	}
}

func (c *MessageEndpointClient) dial(port int) (net.Conn, error) {
	conn, err := net.DialTimeout("tcp", fmt.Sprintf("%s:%d", c.Host, port), c.timeout)
	if err != nil {
		return nil, fmt.Errorf("%w: dial %s:%d: %v", TransportErr, c.Host, port, err)
	}
	return conn, nil
}

// AsyncSend fires a header/body pair at the peer's async socket. Delivery is
// at-most-once and there is no acknowledgment.
func (c *MessageEndpointClient) AsyncSend(call uint8, body []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.asyncConn == nil {
		conn, err := c.dial(c.asyncPort)
		if err != nil {
			return err
		}
		c.asyncConn = conn
	}

	if err := c.sendPair(c.asyncConn, []byte{call}, body); err != nil {
		c.asyncConn.Close()
		c.asyncConn = nil
		return err
	}
	return nil
}

// SyncSend fires a header/body pair at the peer's sync socket and blocks for
// the single reply frame, up to the client timeout.
func (c *MessageEndpointClient) SyncSend(call uint8, body []byte) ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.syncConn == nil {
		conn, err := c.dial(c.syncPort)
		if err != nil {
			return nil, err
		}
		c.syncConn = conn
	}

	if err := c.sendPair(c.syncConn, []byte{call}, body); err != nil {
		c.syncConn.Close()
		c.syncConn = nil
		return nil, err
	}

	c.syncConn.SetReadDeadline(time.Now().Add(c.timeout))
	reply, err := readFrame(c.syncConn)
	if err != nil {
		// a late reply would desynchronise the connection, drop it
		c.syncConn.Close()
		c.syncConn = nil

		if netErr, ok := err.(net.Error); ok && netErr.Timeout() {
			return nil, MessageTimeoutErr
		}
		return nil, fmt.Errorf("%w: %v", TransportErr, err)
	}
	c.syncConn.SetReadDeadline(time.Time{})

	return reply, nil
}

func (c *MessageEndpointClient) sendPair(conn net.Conn, header []byte, body []byte) error {
	if err := writeFrame(conn, header); err != nil {
		return err
	}
	return writeFrame(conn, body)
}

// SendShutdown delivers the empty async header frame that tells a server to
// stop accepting work and drain.
func (c *MessageEndpointClient) SendShutdown() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.asyncConn == nil {
		conn, err := c.dial(c.asyncPort)
		if err != nil {
			return err
		}
		c.asyncConn = conn
	}
	return writeFrame(c.asyncConn, nil)
}

func (c *MessageEndpointClient) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.asyncConn != nil {
		c.asyncConn.Close()
		c.asyncConn = nil
	}
	if c.syncConn != nil {
		c.syncConn.Close()
		c.syncConn = nil
	}
}
