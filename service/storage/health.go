package storage

import (
	"sync/atomic"

	"bizlink/logger"
)

// Health tracks whether the backing store is reachable. Adapters flip it on
// every write outcome; the gateway exposes it so degraded (live-only) mode is
// observable instead of silent.
type Health struct {
	degraded atomic.Bool
}

func NewHealth() *Health { return &Health{} }

func (h *Health) MarkDown(err error) {
	if h == nil {
		return
	}
	if h.degraded.CompareAndSwap(false, true) {
		logger.Warnf("[storage] store unreachable, running live-only: %v", err)
	}
}

func (h *Health) MarkUp() {
	if h == nil {
		return
	}
	if h.degraded.CompareAndSwap(true, false) {
		logger.Info("[storage] store reachable again")
	}
}

// Degraded reports live-only mode (writes failing or no store configured).
func (h *Health) Degraded() bool {
	if h == nil {
		return true
	}
	return h.degraded.Load()
}
