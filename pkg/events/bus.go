// Package events delivers run progress notifications.
//
// Publishing is fire-and-forget: a Bus never blocks the run loop for long
// and never reports delivery failures back to it.
package events

import (
	"sync"
	"sync/atomic"

	"github.com/entrhq/browserpilot/pkg/logging"
	"github.com/entrhq/browserpilot/pkg/types"
)

var debugLog *logging.Logger

func init() {
	var err error
	debugLog, err = logging.NewLogger("events")
	if err != nil {
		debugLog.Warnf("file logging unavailable: %v", err)
	}
}

// Bus receives progress notifications.
type Bus interface {
	Publish(event *types.Event)
}

// Nop discards every event.
type Nop struct{}

func (Nop) Publish(*types.Event) {}

// Multi fans an event out to several buses in order.
type Multi []Bus

func (m Multi) Publish(event *types.Event) {
	for _, bus := range m {
		if bus != nil {
			bus.Publish(event)
		}
	}
}

// DefaultBufferSize is the channel capacity given to each subscriber.
const DefaultBufferSize = 64

// Broadcaster fans events out to in-process subscribers. A subscriber whose
// buffer is full misses the event.
type Broadcaster struct {
	mu      sync.RWMutex
	subs    map[int]chan *types.Event
	nextID  int
	closed  bool
	dropped atomic.Int64
}

// NewBroadcaster creates an empty broadcaster.
func NewBroadcaster() *Broadcaster {
	return &Broadcaster{subs: make(map[int]chan *types.Event)}
}

// Subscribe registers a subscriber with the given buffer size (or
// DefaultBufferSize when size <= 0). The returned function unsubscribes and
// closes the channel; it is safe to call more than once.
func (b *Broadcaster) Subscribe(size int) (<-chan *types.Event, func()) {
	if size <= 0 {
		size = DefaultBufferSize
	}
	ch := make(chan *types.Event, size)

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		close(ch)
		return ch, func() {}
	}
	id := b.nextID
	b.nextID++
	b.subs[id] = ch

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			b.mu.Lock()
			defer b.mu.Unlock()
			if sub, ok := b.subs[id]; ok {
				delete(b.subs, id)
				close(sub)
			}
		})
	}
}

// Publish delivers event to every subscriber without blocking.
func (b *Broadcaster) Publish(event *types.Event) {
	if event == nil {
		return
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, ch := range b.subs {
		select {
		case ch <- event:
		default:
			b.dropped.Add(1)
			debugLog.Debugf("subscriber buffer full, dropping %s event", event.Type)
		}
	}
}

// Dropped returns how many deliveries were skipped because a subscriber
// was full.
func (b *Broadcaster) Dropped() int64 {
	return b.dropped.Load()
}

// Close closes every subscriber channel. Later subscriptions receive an
// already closed channel.
func (b *Broadcaster) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	for id, ch := range b.subs {
		delete(b.subs, id)
		close(ch)
	}
}
