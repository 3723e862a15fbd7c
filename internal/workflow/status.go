package workflow

import (
	"sync"
	"time"

	"github.com/joescharf/pilot/internal/models"
)

// DetailWaiting is the detail shown before any workflow activity.
const DetailWaiting = "Waiting for instructions"

// StatusChannel is the single shared agent status slot. Writes overwrite
// unconditionally; nothing is queued and no history is kept.
type StatusChannel struct {
	mu   sync.RWMutex
	snap models.StatusSnapshot
	seq  uint64
	now  func() time.Time

	notifyMu  sync.Mutex
	delivered uint64
	nextID    int
	listeners map[int]func(models.StatusSnapshot)
}

// NewStatusChannel returns a channel holding idle / "Waiting for instructions".
func NewStatusChannel() *StatusChannel {
	c := &StatusChannel{
		now:       time.Now,
		listeners: make(map[int]func(models.StatusSnapshot)),
	}
	c.snap = models.StatusSnapshot{
		Status:    models.AgentStatusIdle,
		Detail:    DetailWaiting,
		UpdatedAt: c.now().UTC(),
	}
	return c
}

// Get returns the current value.
func (c *StatusChannel) Get() models.StatusSnapshot {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.snap
}

// Set overwrites the slot and notifies subscribers.
func (c *StatusChannel) Set(status models.AgentStatus, detail string) {
	c.notify(c.store(status, detail))
}

// Subscribe registers fn to receive the latest value after each write.
// Listeners run on the writer's goroutine and must not write to the channel.
func (c *StatusChannel) Subscribe(fn func(models.StatusSnapshot)) (unsubscribe func()) {
	c.notifyMu.Lock()
	id := c.nextID
	c.nextID++
	c.listeners[id] = fn
	c.notifyMu.Unlock()

	return func() {
		c.notifyMu.Lock()
		delete(c.listeners, id)
		c.notifyMu.Unlock()
	}
}

// store writes the slot and returns the write sequence for a later notify.
func (c *StatusChannel) store(status models.AgentStatus, detail string) uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.seq++
	c.snap = models.StatusSnapshot{
		Status:    status,
		Detail:    detail,
		UpdatedAt: c.now().UTC(),
	}
	return c.seq
}

// notify delivers the current value unless a later write was already delivered.
func (c *StatusChannel) notify(seq uint64) {
	c.notifyMu.Lock()
	defer c.notifyMu.Unlock()
	if seq <= c.delivered {
		return
	}
	c.mu.RLock()
	snap, latest := c.snap, c.seq
	c.mu.RUnlock()
	c.delivered = latest
	for _, fn := range c.listeners {
		fn(snap)
	}
}
