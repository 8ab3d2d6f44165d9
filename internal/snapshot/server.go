package snapshot

import (
	"fmt"
	"log"

	"github.com/faasmesh/faasmesh/internal/transport"
)

// Server receives pushed snapshots and delete requests from peers and applies
// them to the local registry.
type Server struct {
	endpoint *transport.MessageEndpointServer
	registry *Registry
}

func NewServer() *Server {
	s := &Server{registry: GetRegistry()}
	s.endpoint = transport.NewMessageEndpointServer(transport.SnapshotPort, s)
	return s
}

func (s *Server) Start(bindAddr string) error {
	return s.endpoint.Start(bindAddr)
}

func (s *Server) Stop() {
	s.endpoint.Stop()
}

func (s *Server) DoAsyncRecv(call uint8, body []byte) {
	switch call {
	case PushSnapshotCall:
		key, data, err := decodePush(body)
		if err != nil {
			log.Printf("Dropping malformed snapshot push: %v", err)
			return
		}
		if err := s.registry.Take(key, data); err != nil {
			log.Printf("Failed to store pushed snapshot %s: %v", key, err)
		}
	case DeleteSnapshotCall:
		s.registry.Delete(string(body))
	default:
		log.Printf("Unrecognized snapshot call %d", call)
	}
}

func (s *Server) DoSyncRecv(call uint8, body []byte) ([]byte, error) {
	return nil, fmt.Errorf("%w: snapshot server has no sync calls", transport.TransportErr)
}
