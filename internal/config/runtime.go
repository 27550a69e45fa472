package config

import (
	"sync"
)

// RuntimeConfig stores configuration set at runtime via CLI flags.
// These values are not persisted to config files.
type RuntimeConfig struct {
	mu    sync.RWMutex
	debug bool
}

var globalRuntime = &RuntimeConfig{}

// SetDebug enables verbose logging across packages.
func SetDebug(debug bool) {
	globalRuntime.mu.Lock()
	defer globalRuntime.mu.Unlock()
	globalRuntime.debug = debug
}

// IsDebug returns whether verbose logging is enabled.
func IsDebug() bool {
	globalRuntime.mu.RLock()
	defer globalRuntime.mu.RUnlock()
	return globalRuntime.debug
}
