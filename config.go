package bridge

import "time"

// Defaults applied by NewExecutionContext when the corresponding
// ContextConfig field is zero.
const (
	// DefaultSharedBufferSize is the threshold below which synchronous
	// responses reuse the single shared slot. Responses above it always
	// get a fresh allocation.
	DefaultSharedBufferSize = 1024

	// DefaultMaxLogEntries caps captured guest print output per context.
	DefaultMaxLogEntries = 1000

	// DefaultMaxLogMessageSize truncates individual captured lines.
	DefaultMaxLogMessageSize = 4096

	// firstImportID is the initial dynamic-import id. Starting above zero
	// keeps zero free as an obvious "never issued" value in host logs.
	firstImportID = 10
)

// ContextConfig holds construction-time configuration for an
// ExecutionContext. The zero value is usable; defaults fill the gaps.
type ContextConfig struct {
	SharedBufferSize  int           // shared response slot size in bytes
	MaxLogEntries     int           // captured guest output cap
	MaxLogMessageSize int           // per-line truncation limit
	ExecutionTimeout  time.Duration // 0 disables the evaluation watchdog
	ModuleCacheDir    string        // non-empty enables the sqlite module cache
}

func (c ContextConfig) withDefaults() ContextConfig {
	if c.SharedBufferSize <= 0 {
		c.SharedBufferSize = DefaultSharedBufferSize
	}
	if c.MaxLogEntries <= 0 {
		c.MaxLogEntries = DefaultMaxLogEntries
	}
	if c.MaxLogMessageSize <= 0 {
		c.MaxLogMessageSize = DefaultMaxLogMessageSize
	}
	return c
}
