package cache

import (
	"sync"
	"time"
)

var Instance *Cache

var lock = &sync.Mutex{}
var (
	DefaultExp      time.Duration = 60 * time.Second
	CleanupInterval time.Duration = 60 * time.Second
	Size                          = 100
)

// GetCacheInstance returns the process-wide cache, creating it on first use
// with whatever tuning the daemon set beforehand.
func GetCacheInstance() *Cache {
	lock.Lock()
	defer lock.Unlock()

	if Instance == nil {
		Instance = New(DefaultExp, CleanupInterval, Size)
	}
	return Instance
}
