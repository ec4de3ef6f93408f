package config

import (
	"os"
	"strconv"
	"strings"
	"sync"
	"time"
)

// Manager is a key/value store of raw configuration overrides
type Manager struct {
	values map[string]interface{}
	mu     sync.RWMutex
}

// NewManager creates a new configuration manager
func NewManager() *Manager {
	return &Manager{
		values: make(map[string]interface{}),
	}
}

// Set sets a configuration value
func (m *Manager) Set(key string, value interface{}) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.values[key] = value
}

// Get gets a configuration value
func (m *Manager) Get(key string) (interface{}, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	value, exists := m.values[key]
	return value, exists
}

// GetString gets a string configuration value
func (m *Manager) GetString(key string, defaultValue ...string) string {
	if value, exists := m.Get(key); exists {
		if str, ok := value.(string); ok {
			return str
		}
	}

	if len(defaultValue) > 0 {
		return defaultValue[0]
	}
	return ""
}

// GetInt gets an integer configuration value
func (m *Manager) GetInt(key string, defaultValue ...int) int {
	if value, exists := m.Get(key); exists {
		switch v := value.(type) {
		case int:
			return v
		case int64:
			return int(v)
		case string:
			if i, err := strconv.Atoi(v); err == nil {
				return i
			}
		}
	}

	if len(defaultValue) > 0 {
		return defaultValue[0]
	}
	return 0
}

// GetDuration gets a duration configuration value. Strings are either Go
// durations ("750ms") or a plain number of seconds.
func (m *Manager) GetDuration(key string, defaultValue ...time.Duration) time.Duration {
	if value, exists := m.Get(key); exists {
		switch v := value.(type) {
		case time.Duration:
			return v
		case string:
			if d, err := time.ParseDuration(v); err == nil {
				return d
			}
			if secs, err := strconv.Atoi(v); err == nil {
				return time.Duration(secs) * time.Second
			}
		case int:
			return time.Duration(v) * time.Second
		}
	}

	if len(defaultValue) > 0 {
		return defaultValue[0]
	}
	return 0
}

// LoadFromEnv loads configuration from environment variables
func (m *Manager) LoadFromEnv(prefix string) {
	for _, env := range os.Environ() {
		parts := strings.SplitN(env, "=", 2)
		if len(parts) != 2 {
			continue
		}

		key := parts[0]
		value := parts[1]

		// Check if key has the prefix
		if prefix != "" && !strings.HasPrefix(key, prefix+"_") {
			continue
		}

		// Remove prefix
		if prefix != "" {
			key = strings.TrimPrefix(key, prefix+"_")
		}

		// Convert key to lowercase and replace underscores with dots
		key = strings.ToLower(key)
		key = strings.ReplaceAll(key, "_", ".")

		m.Set(key, value)
	}
}

// GetAll returns all configuration values
func (m *Manager) GetAll() map[string]interface{} {
	m.mu.RLock()
	defer m.mu.RUnlock()

	result := make(map[string]interface{}, len(m.values))
	for k, v := range m.values {
		result[k] = v
	}

	return result
}
