package logging

import (
	"sync"
	"time"
)

// DefaultMaxEntries bounds the entries kept per scope.
const DefaultMaxEntries = 1000

// LogEntry represents a single log record with structured data.
type LogEntry struct {
	Time       time.Time      `json:"time"`
	Level      string         `json:"level"` // "DEBUG", "INFO", "WARN", "ERROR"
	Message    string         `json:"message"`
	Attributes map[string]any `json:"attributes"` // Structured fields
}

// LogCollector provides thread-safe storage for captured logs, grouped by
// scope. A scope is normally a stage name.
type LogCollector struct {
	mu         sync.RWMutex
	logs       map[string][]LogEntry // scope -> log entries
	order      []string              // scopes in first-seen order
	maxEntries int
	dropped    map[string]int
}

// NewLogCollector creates a new LogCollector keeping at most
// DefaultMaxEntries entries per scope.
func NewLogCollector() *LogCollector {
	return NewLogCollectorWithLimit(DefaultMaxEntries)
}

// NewLogCollectorWithLimit creates a LogCollector that keeps the first max
// entries of each scope. A max of 0 or less keeps everything.
func NewLogCollectorWithLimit(max int) *LogCollector {
	return &LogCollector{
		logs:       make(map[string][]LogEntry),
		maxEntries: max,
		dropped:    make(map[string]int),
	}
}

// AddLog adds a log entry for the specified scope (thread-safe).
func (c *LogCollector) AddLog(scope string, entry LogEntry) {
	c.mu.Lock()
	defer c.mu.Unlock()

	logs, exists := c.logs[scope]
	if !exists {
		c.order = append(c.order, scope)
	}
	if c.maxEntries > 0 && len(logs) >= c.maxEntries {
		c.dropped[scope]++
		return
	}
	c.logs[scope] = append(logs, entry)
}

// GetLogs retrieves all log entries for a specific scope (thread-safe).
func (c *LogCollector) GetLogs(scope string) []LogEntry {
	c.mu.RLock()
	defer c.mu.RUnlock()

	// Return a copy to prevent external modification
	logs, exists := c.logs[scope]
	if !exists {
		return nil
	}

	result := make([]LogEntry, len(logs))
	copy(result, logs)
	return result
}

// GetAllLogs returns all logs grouped by scope (thread-safe).
// Returns a copy of the internal map to prevent external modification.
func (c *LogCollector) GetAllLogs() map[string][]LogEntry {
	c.mu.RLock()
	defer c.mu.RUnlock()

	result := make(map[string][]LogEntry, len(c.logs))
	for scope, logs := range c.logs {
		logsCopy := make([]LogEntry, len(logs))
		copy(logsCopy, logs)
		result[scope] = logsCopy
	}

	return result
}

// Scopes returns the scopes that have logged, in the order they first logged.
func (c *LogCollector) Scopes() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return append([]string(nil), c.order...)
}

// Dropped returns how many entries of scope were discarded once the limit
// was reached.
func (c *LogCollector) Dropped(scope string) int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.dropped[scope]
}

// Clear resets the log collector, removing all stored logs (thread-safe).
func (c *LogCollector) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.logs = make(map[string][]LogEntry)
	c.order = nil
	c.dropped = make(map[string]int)
}
