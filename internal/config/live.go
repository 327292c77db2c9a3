package config

import "sync/atomic"

// Live holds the current configuration. Readers always see a complete
// snapshot; a Watcher swaps in a new one when the file changes.
type Live struct {
	cur atomic.Pointer[Config]
}

// NewLive returns a Live holding cfg.
func NewLive(cfg *Config) *Live {
	l := &Live{}
	l.Set(cfg)
	return l
}

// Get returns the current snapshot. It must not be modified.
func (l *Live) Get() *Config { return l.cur.Load() }

// Set replaces the current snapshot.
func (l *Live) Set(cfg *Config) { l.cur.Store(cfg) }

// MaxShownInputLength returns the current output.max_shown_input_length.
func (l *Live) MaxShownInputLength() int {
	if cfg := l.Get(); cfg != nil {
		return cfg.Output.MaxShownInputLength
	}
	return 0
}
