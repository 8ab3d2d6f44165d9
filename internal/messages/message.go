package messages

import (
	"fmt"
	"math/rand"
)

type MessageType int32

const (
	INVOKE MessageType = iota
	BIND
	FLUSH
	EMPTY
)

// Message is the unit of function invocation. Messages are plain values and
// are passed by copy between hosts.
type Message struct {
	Id           uint32      `json:"id"`
	User         string      `json:"user"`
	Function     string      `json:"function"`
	MasterHost   string      `json:"masterHost"`
	SnapshotKey  string      `json:"snapshotKey,omitempty"`
	SnapshotSize int         `json:"snapshotSize,omitempty"`
	IsMpi        bool        `json:"isMpi,omitempty"`
	MpiWorldId   int32       `json:"mpiWorldId,omitempty"`
	MpiRank      int32       `json:"mpiRank,omitempty"`
	MpiWorldSize int32       `json:"mpiWorldSize,omitempty"`
	ResultKey    string      `json:"resultKey"`
	StatusKey    string      `json:"statusKey"`
	InputData    []byte      `json:"inputData,omitempty"`
	Type         MessageType `json:"type"`

	// Filled in on completion
	OutputData      []byte `json:"outputData,omitempty"`
	ReturnValue     int32  `json:"returnValue"`
	ExecutedHost    string `json:"executedHost,omitempty"`
	FinishTimestamp int64  `json:"finishTimestamp,omitempty"`
}

// MessageFactory builds a message with a fresh id and the matching result and
// status keys. The master host is set by whichever component admits the
// message for scheduling.
func MessageFactory(user string, function string) *Message {
	id := rand.Uint32()
	if id == 0 {
		id = 1
	}

	return &Message{
		Id:        id,
		User:      user,
		Function:  function,
		ResultKey: ResultKeyFromMessageId(id),
		StatusKey: StatusKeyFromMessageId(id),
		Type:      INVOKE,
	}
}

func ResultKeyFromMessageId(id uint32) string {
	return fmt.Sprintf("result:%d", id)
}

func StatusKeyFromMessageId(id uint32) string {
	return fmt.Sprintf("status:%d", id)
}

// FuncKey identifies a function independently of any single call.
func FuncKey(msg *Message) string {
	return msg.User + "/" + msg.Function
}

func FuncKeyWithId(msg *Message) string {
	return fmt.Sprintf("%s/%s:%d", msg.User, msg.Function, msg.Id)
}
