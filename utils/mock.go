package utils

import "sync"

var (
	modeMutex sync.RWMutex
	testMode  = false
	mockMode  = false
)

// SetTestMode makes the scheduler record every message it places so tests can
// inspect placement decisions.
func SetTestMode(on bool) {
	modeMutex.Lock()
	defer modeMutex.Unlock()
	testMode = on
}

func IsTestMode() bool {
	modeMutex.RLock()
	defer modeMutex.RUnlock()
	return testMode
}

// SetMockMode diverts outbound transport clients into in-process logs instead
// of the network.
func SetMockMode(on bool) {
	modeMutex.Lock()
	defer modeMutex.Unlock()
	mockMode = on
}

func IsMockMode() bool {
	modeMutex.RLock()
	defer modeMutex.RUnlock()
	return mockMode
}
