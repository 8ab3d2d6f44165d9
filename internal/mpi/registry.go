package mpi

import (
	"fmt"
	"sync"

	"github.com/faasmesh/faasmesh/internal/cache"
	"github.com/faasmesh/faasmesh/internal/messages"
	"github.com/faasmesh/faasmesh/internal/state"
)

// WorldRegistry tracks every world instance living in this process, keyed by
// world id.
type WorldRegistry struct {
	mu     sync.Mutex
	worlds map[int32]*World
}

var worldRegistry *WorldRegistry
var worldRegistryOnce sync.Once

func GetWorldRegistry() *WorldRegistry {
	worldRegistryOnce.Do(func() {
		worldRegistry = &WorldRegistry{worlds: make(map[int32]*World)}
	})
	return worldRegistry
}

// CreateWorld builds a brand new world with the calling process as rank zero.
func (r *WorldRegistry) CreateWorld(msg *messages.Message, worldId int32) (*World, error) {
	r.mu.Lock()
	if _, ok := r.worlds[worldId]; ok {
		r.mu.Unlock()
		return nil, fmt.Errorf("world %d already exists on this host", worldId)
	}
	r.mu.Unlock()

	w := NewWorld()
	if err := w.Create(msg, worldId, msg.MpiWorldSize); err != nil {
		return nil, err
	}

	r.mu.Lock()
	r.worlds[worldId] = w
	r.mu.Unlock()
	return w, nil
}

// GetOrInitialiseWorld returns this host's instance of the message's world,
// joining it from published state on first sight.
func (r *WorldRegistry) GetOrInitialiseWorld(msg *messages.Message) (*World, error) {
	worldId := msg.MpiWorldId

	r.mu.Lock()
	if w, ok := r.worlds[worldId]; ok {
		r.mu.Unlock()
		return w, nil
	}
	r.mu.Unlock()

	w := NewWorld()
	if err := w.InitialiseFromMsg(msg); err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if existing, ok := r.worlds[worldId]; ok {
		// another thread joined first
		w.Destroy()
		return existing, nil
	}
	r.worlds[worldId] = w
	return w, nil
}

func (r *WorldRegistry) GetWorld(worldId int32) (*World, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	w, ok := r.worlds[worldId]
	if !ok {
		return nil, fmt.Errorf("%w: id %d", WorldNotFoundErr, worldId)
	}
	return w, nil
}

func (r *WorldRegistry) RemoveWorld(worldId int32) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.worlds, worldId)
}

func (r *WorldRegistry) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()

	for id, w := range r.worlds {
		w.Destroy()
		delete(r.worlds, id)
	}
}

// lookupWorldState reads a world's published state, answering repeat lookups
// from the local cache. World state never changes once published, so caching
// is safe.
func lookupWorldState(store state.Store, worldId int32) (*WorldState, error) {
	cacheKey := fmt.Sprintf("worldstate:%d", worldId)
	if v, found := cache.GetCacheInstance().Get(cacheKey); found {
		return v.(*WorldState), nil
	}

	ws, err := getWorldState(store, worldId)
	if err != nil {
		return nil, err
	}
	cache.GetCacheInstance().Set(cacheKey, ws, cache.DefaultExp)
	return ws, nil
}
