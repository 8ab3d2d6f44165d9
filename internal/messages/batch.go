package messages

type BatchType int32

const (
	FUNCTIONS BatchType = iota
	THREADS
	PROCESSES
)

// BatchExecuteRequest groups messages for the same user/function/master host
// so they can be admitted and dispatched atomically.
type BatchExecuteRequest struct {
	Type         BatchType `json:"type"`
	SnapshotKey  string    `json:"snapshotKey,omitempty"`
	SnapshotSize int       `json:"snapshotSize,omitempty"`
	Messages     []Message `json:"messages"`
}

// BatchExecFactory wraps messages into a FUNCTIONS batch.
func BatchExecFactory(msgs ...*Message) *BatchExecuteRequest {
	req := &BatchExecuteRequest{Type: FUNCTIONS}
	for _, m := range msgs {
		req.Messages = append(req.Messages, *m)
	}
	return req
}

// HostResources is the capacity report a host exchanges with its peers.
type HostResources struct {
	Cores             int32 `json:"cores"`
	BoundExecutors    int32 `json:"boundExecutors"`
	FunctionsInFlight int32 `json:"functionsInFlight"`
	Slots             int32 `json:"slots"`
	UsedSlots         int32 `json:"usedSlots"`
}

// UnregisterRequest asks a master to drop a host from the registered set of a
// function.
type UnregisterRequest struct {
	Host     string  `json:"host"`
	Function Message `json:"function"`
}

// ThreadResultRequest carries a thread return value back to the master.
type ThreadResultRequest struct {
	MessageId   uint32 `json:"messageId"`
	ReturnValue int32  `json:"returnValue"`
}
