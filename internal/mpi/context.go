package mpi

import (
	"math/rand"

	"github.com/faasmesh/faasmesh/internal/messages"
)

// Context tracks which world and rank the current executor thread is acting
// as. Rank and world id always come from the executing call, never from
// placeholders.
type Context struct {
	rank    int32
	worldId int32
}

// CreateWorld makes the calling thread rank zero of a fresh world sized from
// the message.
func (c *Context) CreateWorld(msg *messages.Message) (*World, error) {
	worldId := rand.Int31()
	if worldId == 0 {
		worldId = 1
	}

	w, err := GetWorldRegistry().CreateWorld(msg, worldId)
	if err != nil {
		return nil, err
	}

	c.worldId = worldId
	c.rank = 0
	return w, nil
}

// JoinWorld attaches the calling thread to the world the message was placed
// into.
func (c *Context) JoinWorld(msg *messages.Message) (*World, error) {
	w, err := GetWorldRegistry().GetOrInitialiseWorld(msg)
	if err != nil {
		return nil, err
	}

	c.worldId = msg.MpiWorldId
	c.rank = msg.MpiRank
	return w, nil
}

func (c *Context) Rank() int32 {
	return c.rank
}

func (c *Context) WorldId() int32 {
	return c.worldId
}
