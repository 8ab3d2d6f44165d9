package transport

import (
	"errors"
	"fmt"
	"io"
	"log"
	"net"
	"sync"
	"sync/atomic"

	"github.com/faasmesh/faasmesh/internal/config"
	"golang.org/x/sync/errgroup"
)

// Handler dispatches received frame pairs by call id. DoSyncRecv returns the
// single reply body; returning an error refuses the message and drops the
// connection, which the client observes as a transport error.
type Handler interface {
	DoAsyncRecv(call uint8, body []byte)
	DoSyncRecv(call uint8, body []byte) ([]byte, error)
}

// MessageEndpointServer binds the async/sync socket pair of a service and
// feeds frames to its handler. Each connection is served by one worker so
// frames stay FIFO per sender per socket; the worker pool bounds how many
// connections are served at once.
type MessageEndpointServer struct {
	asyncPort int
	syncPort  int
	handler   Handler

	asyncListener net.Listener
	syncListener  net.Listener
	workers       *errgroup.Group
	accepting     sync.WaitGroup
	shutdown      int32
}

func NewMessageEndpointServer(asyncPort int, handler Handler) *MessageEndpointServer {
	return &MessageEndpointServer{
		asyncPort: asyncPort,
		syncPort:  asyncPort + ReplyPortOffset,
		handler:   handler,
	}
}

func (s *MessageEndpointServer) Start(bindAddr string) error {
	asyncLn, err := net.Listen("tcp", fmt.Sprintf("%s:%d", bindAddr, s.asyncPort))
	if err != nil {
		return fmt.Errorf("%w: bind %d: %v", TransportErr, s.asyncPort, err)
	}
	syncLn, err := net.Listen("tcp", fmt.Sprintf("%s:%d", bindAddr, s.syncPort))
	if err != nil {
		asyncLn.Close()
		return fmt.Errorf("%w: bind %d: %v", TransportErr, s.syncPort, err)
	}
	s.asyncListener = asyncLn
	s.syncListener = syncLn

	s.workers = &errgroup.Group{}
	s.workers.SetLimit(config.GetInt(config.TRANSPORT_WORKERS, 8))

	s.accepting.Add(2)
	go s.acceptLoop(asyncLn, false)
	go s.acceptLoop(syncLn, true)

	return nil
}

func (s *MessageEndpointServer) acceptLoop(ln net.Listener, isSync bool) {
	defer s.accepting.Done()

	for {
		conn, err := ln.Accept()
		if err != nil {
			// listener closed on shutdown
			return
		}

		s.workers.Go(func() error {
			s.serveConn(conn, isSync)
			return nil
		})
	}
}

func (s *MessageEndpointServer) serveConn(conn net.Conn, isSync bool) {
	defer conn.Close()

	for {
		header, err := readFrame(conn)
		if err != nil {
			if !errors.Is(err, io.EOF) {
				log.Printf("transport: dropping connection: %v", err)
			}
			return
		}

		if len(header) == 0 {
			if !isSync {
				// shutdown signal: stop accepting, let in-flight work drain
				s.closeListeners()
			}
			return
		}
		if len(header) != 1 {
			log.Printf("transport: malformed header frame (%d bytes)", len(header))
			return
		}

		body, err := readFrame(conn)
		if err != nil {
			log.Printf("transport: missing body frame: %v", err)
			return
		}

		call := header[0]
		if isSync {
			response, err := s.handler.DoSyncRecv(call, body)
			if err != nil {
				log.Printf("transport: refusing call %d: %v", call, err)
				return
			}
			if err := writeFrame(conn, response); err != nil {
				log.Printf("transport: failed to reply: %v", err)
				return
			}
		} else {
			s.handler.DoAsyncRecv(call, body)
		}
	}
}

func (s *MessageEndpointServer) closeListeners() {
	if atomic.CompareAndSwapInt32(&s.shutdown, 0, 1) {
		s.asyncListener.Close()
		s.syncListener.Close()
	}
}

// Stop closes both listeners and waits for in-flight frames to drain.
func (s *MessageEndpointServer) Stop() {
	s.closeListeners()
	s.accepting.Wait()
	s.workers.Wait()
}
