package registration

import (
	"encoding/json"
	"log"
	"time"

	"github.com/LK4D4/trylock"
	"github.com/faasmesh/faasmesh/internal/config"
	"github.com/faasmesh/faasmesh/internal/scheduler"
	"github.com/faasmesh/faasmesh/internal/state"
)

// Monitor periodically publishes this host's resource report so peers can
// read capacity without a round-trip to the host itself.
type Monitor struct {
	registry *Registry
	sched    *scheduler.Scheduler
	mu       trylock.Mutex
	stop     chan bool
}

func NewMonitor(registry *Registry, sched *scheduler.Scheduler) *Monitor {
	return &Monitor{
		registry: registry,
		sched:    sched,
		stop:     make(chan bool),
	}
}

func (m *Monitor) Start() {
	interval := time.Duration(config.GetInt(config.MONITORING_INTERVAL, 5)) * time.Second
	ticker := time.NewTicker(interval)

	go func() {
		for {
			select {
			case <-ticker.C:
				// a slow publication still in flight means we just skip this round
				if m.mu.TryLock() {
					m.publish()
					m.mu.Unlock()
				}
			case <-m.stop:
				ticker.Stop()
				return
			}
		}
	}()
}

func (m *Monitor) publish() {
	res := m.sched.GetThisHostResources()
	data, err := json.Marshal(&res)
	if err != nil {
		log.Printf("Could not marshal host resources: %v", err)
		return
	}

	store := m.sched.Store()
	key := state.HostResourcesKey(m.registry.Host)
	if err := store.Set(key, data); err != nil {
		log.Printf("Could not publish host resources: %v", err)
		return
	}
	ttl := config.GetInt(config.MONITORING_INTERVAL, 5) * 3
	if err := store.Expire(key, ttl); err != nil {
		log.Printf("Could not set TTL on host resources: %v", err)
	}
}

func (m *Monitor) Stop() {
	m.stop <- true
}
