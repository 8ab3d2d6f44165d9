package mpi

import (
	"encoding/json"
	"fmt"
	"log"

	"github.com/faasmesh/faasmesh/internal/messages"
	"github.com/faasmesh/faasmesh/internal/metrics"
	"github.com/faasmesh/faasmesh/internal/scheduler"
	"github.com/faasmesh/faasmesh/internal/transport"
)

const (
	// Cross-host rank-to-rank traffic, fire-and-forget
	WorldMessageCall uint8 = iota + 1
	// Synchronous window read, replies with the window bytes
	RmaReadCall
)

func init() {
	// Let the function-call server hand inbound MPI traffic to us without a
	// package cycle
	scheduler.SetMpiMessageHandler(RouteMessage)
}

// RouteMessage lands a message from another host on the right local world.
func RouteMessage(msg *messages.MPIMessage) error {
	w, err := GetWorldRegistry().GetWorld(msg.WorldId)
	if err != nil {
		return err
	}
	metrics.MpiMessagesRouted.Inc()
	return w.EnqueueMessage(msg)
}

// Server is the MPI endpoint of this host: peers post rank-to-rank messages
// on its async socket and perform window reads on its sync socket.
type Server struct {
	endpoint *transport.MessageEndpointServer
}

func NewServer() *Server {
	s := &Server{}
	s.endpoint = transport.NewMessageEndpointServer(transport.MpiPort, s)
	return s
}

func (s *Server) Start(bindAddr string) error {
	return s.endpoint.Start(bindAddr)
}

func (s *Server) Stop() {
	s.endpoint.Stop()
}

func (s *Server) DoAsyncRecv(call uint8, body []byte) {
	if call != WorldMessageCall {
		log.Printf("Unrecognized MPI call %d", call)
		return
	}

	var msg messages.MPIMessage
	if err := json.Unmarshal(body, &msg); err != nil {
		log.Printf("Dropping malformed MPI message: %v", err)
		return
	}

	if err := RouteMessage(&msg); err != nil {
		log.Printf("Failed to route MPI message for world %d: %v", msg.WorldId, err)
	}
}

func (s *Server) DoSyncRecv(call uint8, body []byte) ([]byte, error) {
	if call != RmaReadCall {
		return nil, fmt.Errorf("%w: unknown MPI sync call %d", transport.TransportErr, call)
	}

	var msg messages.MPIMessage
	if err := json.Unmarshal(body, &msg); err != nil {
		return nil, err
	}

	w, err := GetWorldRegistry().GetWorld(msg.WorldId)
	if err != nil {
		return nil, err
	}

	n := int(msg.Count) * Datatype(msg.Datatype).Size()
	return w.ReadWindow(msg.Destination, n)
}
