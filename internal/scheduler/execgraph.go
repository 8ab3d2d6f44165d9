package scheduler

import (
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/faasmesh/faasmesh/internal/config"
	"github.com/faasmesh/faasmesh/internal/messages"
)

const chainedSetPrefix = "chained_"

func chainedKey(msgId uint32) string {
	return chainedSetPrefix + strconv.FormatUint(uint64(msgId), 10)
}

// ExecGraphNode is one call in an execution graph: the call's final message
// plus every call it chained.
type ExecGraphNode struct {
	Msg      messages.Message `json:"msg"`
	Children []ExecGraphNode  `json:"children,omitempty"`
}

type ExecGraph struct {
	RootNode ExecGraphNode `json:"rootNode"`
}

// LogChainedFunction records that a call spawned another.
func (s *Scheduler) LogChainedFunction(parentId uint32, chainedId uint32) error {
	key := chainedKey(parentId)
	if err := s.store.SAdd(key, strconv.FormatUint(uint64(chainedId), 10)); err != nil {
		return err
	}
	return s.store.Expire(key, config.GetInt(config.STATUS_TTL, DefaultStatusTtlSec))
}

func (s *Scheduler) GetChainedFunctions(msgId uint32) ([]uint32, error) {
	members, err := s.store.SMembers(chainedKey(msgId))
	if err != nil {
		return nil, err
	}

	chained := make([]uint32, 0, len(members))
	for _, m := range members {
		id, err := strconv.ParseUint(m, 10, 32)
		if err != nil {
			return nil, fmt.Errorf("%w: bad chained id %q", ChainedCallFailedErr, m)
		}
		chained = append(chained, uint32(id))
	}
	return chained, nil
}

// GetFunctionExecGraph walks the chained-call sets from the given root and
// assembles the tree of statuses.
func (s *Scheduler) GetFunctionExecGraph(rootId uint32) (*ExecGraph, error) {
	root, err := s.getExecGraphNode(rootId)
	if err != nil {
		return nil, err
	}
	return &ExecGraph{RootNode: *root}, nil
}

func (s *Scheduler) getExecGraphNode(msgId uint32) (*ExecGraphNode, error) {
	data, err := s.store.Get(messages.StatusKeyFromMessageId(msgId))
	if err != nil {
		return nil, err
	}

	var result messages.Message
	if len(data) > 0 {
		if err := json.Unmarshal(data, &result); err != nil {
			return nil, err
		}
	}

	chainedIds, err := s.GetChainedFunctions(msgId)
	if err != nil {
		return nil, err
	}

	node := &ExecGraphNode{Msg: result}
	for _, id := range chainedIds {
		child, err := s.getExecGraphNode(id)
		if err != nil {
			return nil, err
		}
		node.Children = append(node.Children, *child)
	}
	return node, nil
}
