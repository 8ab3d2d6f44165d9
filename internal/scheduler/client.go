package scheduler

import (
	"encoding/json"
	"fmt"
	"sync"

	"github.com/faasmesh/faasmesh/internal/messages"
	"github.com/faasmesh/faasmesh/internal/transport"
	"github.com/faasmesh/faasmesh/utils"
)

const (
	ExecuteFunctionsCall uint8 = iota + 1
	GetResourcesCall
	UnregisterCall
	FlushCall
	SetThreadResultCall
	MpiMessageCall
	NoOpCall
)

// Mock state: when mock mode is on, clients log their requests here instead
// of crossing the network, and GetResources answers from a per-host FIFO of
// queued responses.
var (
	mockMutex         sync.Mutex
	batchRequests     []MockBatchRequest
	resourceResponses map[string][]messages.HostResources
	flushCalls        []string
	unregisterReqs    []MockUnregisterRequest
	threadResults     []MockThreadResult
	mpiMessages       []MockMpiMessage
)

type MockBatchRequest struct {
	Host string
	Req  *messages.BatchExecuteRequest
}

type MockUnregisterRequest struct {
	Host string
	Req  *messages.UnregisterRequest
}

type MockThreadResult struct {
	Host        string
	MessageId   uint32
	ReturnValue int32
}

type MockMpiMessage struct {
	Host string
	Msg  *messages.MPIMessage
}

func QueueResourceResponse(host string, res messages.HostResources) {
	mockMutex.Lock()
	defer mockMutex.Unlock()
	if resourceResponses == nil {
		resourceResponses = make(map[string][]messages.HostResources)
	}
	resourceResponses[host] = append(resourceResponses[host], res)
}

func GetBatchRequests() []MockBatchRequest {
	mockMutex.Lock()
	defer mockMutex.Unlock()
	return append([]MockBatchRequest{}, batchRequests...)
}

func GetFlushCalls() []string {
	mockMutex.Lock()
	defer mockMutex.Unlock()
	return append([]string{}, flushCalls...)
}

func GetUnregisterRequests() []MockUnregisterRequest {
	mockMutex.Lock()
	defer mockMutex.Unlock()
	return append([]MockUnregisterRequest{}, unregisterReqs...)
}

func GetThreadResults() []MockThreadResult {
	mockMutex.Lock()
	defer mockMutex.Unlock()
	return append([]MockThreadResult{}, threadResults...)
}

func GetMpiMessages() []MockMpiMessage {
	mockMutex.Lock()
	defer mockMutex.Unlock()
	return append([]MockMpiMessage{}, mpiMessages...)
}

func ClearMockRequests() {
	mockMutex.Lock()
	defer mockMutex.Unlock()
	batchRequests = nil
	resourceResponses = nil
	flushCalls = nil
	unregisterReqs = nil
	threadResults = nil
	mpiMessages = nil
}

// FunctionCallClient drives the function-call service of one peer. All calls
// are request/reply with an empty reply except GetResources and NoOp.
type FunctionCallClient struct {
	host     string
	endpoint *transport.MessageEndpointClient
}

func NewFunctionCallClient(host string) *FunctionCallClient {
	return &FunctionCallClient{
		host:     host,
		endpoint: transport.NewMessageEndpointClient(host, transport.FunctionCallPort),
	}
}

func (c *FunctionCallClient) callEmpty(call uint8, payload interface{}) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	_, err = c.endpoint.SyncSend(call, body)
	return err
}

func (c *FunctionCallClient) ExecuteFunctions(req *messages.BatchExecuteRequest) error {
	if utils.IsMockMode() {
		mockMutex.Lock()
		defer mockMutex.Unlock()
		batchRequests = append(batchRequests, MockBatchRequest{Host: c.host, Req: req})
		return nil
	}
	return c.callEmpty(ExecuteFunctionsCall, req)
}

func (c *FunctionCallClient) GetResources() (messages.HostResources, error) {
	if utils.IsMockMode() {
		mockMutex.Lock()
		defer mockMutex.Unlock()
		queued := resourceResponses[c.host]
		if len(queued) == 0 {
			return messages.HostResources{}, nil
		}
		res := queued[0]
		resourceResponses[c.host] = queued[1:]
		return res, nil
	}

	var res messages.HostResources
	reply, err := c.endpoint.SyncSend(GetResourcesCall, nil)
	if err != nil {
		return res, err
	}
	if err := json.Unmarshal(reply, &res); err != nil {
		return res, fmt.Errorf("%w: bad resource reply: %v", transport.TransportErr, err)
	}
	return res, nil
}

func (c *FunctionCallClient) Unregister(req *messages.UnregisterRequest) error {
	if utils.IsMockMode() {
		mockMutex.Lock()
		defer mockMutex.Unlock()
		unregisterReqs = append(unregisterReqs, MockUnregisterRequest{Host: c.host, Req: req})
		return nil
	}
	return c.callEmpty(UnregisterCall, req)
}

func (c *FunctionCallClient) SendFlush() error {
	if utils.IsMockMode() {
		mockMutex.Lock()
		defer mockMutex.Unlock()
		flushCalls = append(flushCalls, c.host)
		return nil
	}
	_, err := c.endpoint.SyncSend(FlushCall, nil)
	return err
}

func (c *FunctionCallClient) SetThreadResult(messageId uint32, returnValue int32) error {
	if utils.IsMockMode() {
		mockMutex.Lock()
		defer mockMutex.Unlock()
		threadResults = append(threadResults,
			MockThreadResult{Host: c.host, MessageId: messageId, ReturnValue: returnValue})
		return nil
	}
	return c.callEmpty(SetThreadResultCall,
		&messages.ThreadResultRequest{MessageId: messageId, ReturnValue: returnValue})
}

func (c *FunctionCallClient) SendMpiMessage(msg *messages.MPIMessage) error {
	if utils.IsMockMode() {
		mockMutex.Lock()
		defer mockMutex.Unlock()
		mpiMessages = append(mpiMessages, MockMpiMessage{Host: c.host, Msg: msg})
		return nil
	}
	return c.callEmpty(MpiMessageCall, msg)
}

func (c *FunctionCallClient) NoOp() error {
	_, err := c.endpoint.SyncSend(NoOpCall, nil)
	return err
}

func (c *FunctionCallClient) Close() {
	c.endpoint.Close()
}
