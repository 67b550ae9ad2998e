package events

import (
	"context"
	"encoding/json"
	"sync"
	"sync/atomic"
	"time"

	backend "github.com/redis/go-redis/v9"

	"github.com/entrhq/browserpilot/pkg/types"
)

// DefaultChannel is the Redis pub/sub channel events are published on.
const DefaultChannel = "browserpilot:events"

const (
	defaultPublishTimeout = 2 * time.Second
	defaultQueueSize      = 256
)

// RedisPublisher publishes events as JSON on a Redis pub/sub channel. Events
// are queued and sent by a background goroutine, so Publish never waits on
// the network. Events that arrive while the queue is full are dropped.
// Failures are logged and otherwise ignored.
type RedisPublisher struct {
	client    *backend.Client
	channel   string
	timeout   time.Duration
	queueSize int

	mu      sync.RWMutex
	queue   chan redisMessage
	closed  bool
	done    chan struct{}
	dropped atomic.Int64
}

type redisMessage struct {
	eventType types.EventType
	payload   []byte
}

type RedisOption func(*RedisPublisher)

// WithChannel sets the pub/sub channel.
func WithChannel(channel string) RedisOption {
	return func(p *RedisPublisher) {
		if channel != "" {
			p.channel = channel
		}
	}
}

// WithPublishTimeout bounds each PUBLISH round trip.
func WithPublishTimeout(d time.Duration) RedisOption {
	return func(p *RedisPublisher) {
		if d > 0 {
			p.timeout = d
		}
	}
}

// WithQueueSize sets how many encoded events may wait for the sender.
func WithQueueSize(n int) RedisOption {
	return func(p *RedisPublisher) {
		if n > 0 {
			p.queueSize = n
		}
	}
}

// NewRedisPublisher connects to the Redis server at url
// (redis://[:password@]host:port/db).
func NewRedisPublisher(url string, opts ...RedisOption) (*RedisPublisher, error) {
	options, err := backend.ParseURL(url)
	if err != nil {
		return nil, err
	}
	return NewRedisPublisherFromClient(backend.NewClient(options), opts...), nil
}

// NewRedisPublisherFromClient creates a publisher from an existing client.
func NewRedisPublisherFromClient(client *backend.Client, opts ...RedisOption) *RedisPublisher {
	p := &RedisPublisher{
		client:    client,
		channel:   DefaultChannel,
		timeout:   defaultPublishTimeout,
		queueSize: defaultQueueSize,
		done:      make(chan struct{}),
	}
	for _, opt := range opts {
		opt(p)
	}
	p.queue = make(chan redisMessage, p.queueSize)
	go p.run()
	return p
}

// Channel returns the channel events are published on.
func (p *RedisPublisher) Channel() string {
	return p.channel
}

// Publish queues event for the sender goroutine without blocking.
func (p *RedisPublisher) Publish(event *types.Event) {
	if event == nil {
		return
	}
	payload, err := json.Marshal(event)
	if err != nil {
		debugLog.Warnf("failed to encode %s event: %v", event.Type, err)
		return
	}

	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return
	}
	select {
	case p.queue <- redisMessage{eventType: event.Type, payload: payload}:
	default:
		p.dropped.Add(1)
		debugLog.Debugf("redis queue full, dropping %s event", event.Type)
	}
}

// Dropped returns how many events were discarded because the queue was full.
func (p *RedisPublisher) Dropped() int64 {
	return p.dropped.Load()
}

func (p *RedisPublisher) run() {
	defer close(p.done)
	for msg := range p.queue {
		ctx, cancel := context.WithTimeout(context.Background(), p.timeout)
		if err := p.client.Publish(ctx, p.channel, msg.payload).Err(); err != nil {
			debugLog.Warnf("failed to publish %s event to %s: %v", msg.eventType, p.channel, err)
		}
		cancel()
	}
}

// Ping checks the connection.
func (p *RedisPublisher) Ping(ctx context.Context) error {
	return p.client.Ping(ctx).Err()
}

// Close sends what is still queued, then closes the underlying client.
// Events published after Close are ignored.
func (p *RedisPublisher) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	close(p.queue)
	p.mu.Unlock()

	<-p.done
	return p.client.Close()
}
