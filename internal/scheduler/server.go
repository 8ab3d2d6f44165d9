package scheduler

import (
	"encoding/json"
	"fmt"
	"log"
	"sync"

	"github.com/faasmesh/faasmesh/internal/messages"
	"github.com/faasmesh/faasmesh/internal/transport"
)

// The MPI layer registers its routing function here so the function-call
// server can hand inbound world traffic over without the scheduler package
// depending on the MPI package.
var (
	mpiHandlerMutex   sync.RWMutex
	mpiMessageHandler func(*messages.MPIMessage) error
)

func SetMpiMessageHandler(handler func(*messages.MPIMessage) error) {
	mpiHandlerMutex.Lock()
	defer mpiHandlerMutex.Unlock()
	mpiMessageHandler = handler
}

// FunctionCallServer serves the function-call endpoint of this host. Every
// call is request/reply; all but GetResources answer with an empty body.
type FunctionCallServer struct {
	endpoint  *transport.MessageEndpointServer
	scheduler *Scheduler
}

func NewFunctionCallServer(scheduler *Scheduler) *FunctionCallServer {
	s := &FunctionCallServer{scheduler: scheduler}
	s.endpoint = transport.NewMessageEndpointServer(transport.FunctionCallPort, s)
	return s
}

func (s *FunctionCallServer) Start(bindAddr string) error {
	return s.endpoint.Start(bindAddr)
}

func (s *FunctionCallServer) Stop() {
	s.endpoint.Stop()
}

func (s *FunctionCallServer) DoAsyncRecv(call uint8, body []byte) {
	log.Printf("Function call server got unexpected async call %d", call)
}

func (s *FunctionCallServer) DoSyncRecv(call uint8, body []byte) ([]byte, error) {
	switch call {
	case ExecuteFunctionsCall:
		var req messages.BatchExecuteRequest
		if err := json.Unmarshal(body, &req); err != nil {
			return nil, err
		}
		if _, err := s.scheduler.CallFunctions(&req, true); err != nil {
			log.Printf("Failed to execute forwarded batch: %v", err)
		}
		return nil, nil

	case GetResourcesCall:
		res := s.scheduler.GetThisHostResources()
		return json.Marshal(res)

	case UnregisterCall:
		var req messages.UnregisterRequest
		if err := json.Unmarshal(body, &req); err != nil {
			return nil, err
		}
		log.Printf("Unregistering host %s for %s", req.Host, messages.FuncKey(&req.Function))
		s.scheduler.RemoveRegisteredHost(req.Host, &req.Function)
		return nil, nil

	case FlushCall:
		s.scheduler.FlushLocally()
		return nil, nil

	case SetThreadResultCall:
		var req messages.ThreadResultRequest
		if err := json.Unmarshal(body, &req); err != nil {
			return nil, err
		}
		s.scheduler.SetThreadResultLocally(req.MessageId, req.ReturnValue)
		return nil, nil

	case MpiMessageCall:
		var msg messages.MPIMessage
		if err := json.Unmarshal(body, &msg); err != nil {
			return nil, err
		}

		mpiHandlerMutex.RLock()
		handler := mpiMessageHandler
		mpiHandlerMutex.RUnlock()
		if handler == nil {
			return nil, fmt.Errorf("no MPI handler registered")
		}
		if err := handler(&msg); err != nil {
			log.Printf("Failed to route MPI message for world %d: %v", msg.WorldId, err)
		}
		return nil, nil

	case NoOpCall:
		return nil, nil

	default:
		return nil, fmt.Errorf("%w: unknown function call %d", transport.TransportErr, call)
	}
}
