package hub

import (
	"context"
	"encoding/json"
	"sync"
	"sync/atomic"
	"time"

	"openhowl/logger"
)

// DefaultQueueSize bounds each subscriber's pending messages.
const DefaultQueueSize = 32

// Event is a server-originated message, e.g. a catalog change notice.
type Event struct {
	Type      string `json:"type"`
	Revision  int64  `json:"revision,omitempty"`
	Timestamp int64  `json:"timestamp"`
}

// EventCatalogChanged tells clients to refetch the sound list.
const EventCatalogChanged = "catalog_changed"

// Subscriber receives every published message on C. When the queue is full
// the oldest pending message is dropped to make room.
type Subscriber struct {
	send    chan []byte
	dropped atomic.Int64
}

// C is closed when the subscriber is removed or the hub stops.
func (s *Subscriber) C() <-chan []byte {
	return s.send
}

// Dropped counts messages discarded because the subscriber fell behind.
func (s *Subscriber) Dropped() int64 {
	return s.dropped.Load()
}

// offer never blocks. Callers hold the hub's read lock, so send is open.
func (s *Subscriber) offer(msg []byte) {
	for {
		select {
		case s.send <- msg:
			return
		default:
		}
		select {
		case <-s.send:
			s.dropped.Add(1)
		default:
		}
	}
}

const broadcastBuffer = 256

// Hub fans published messages out to all subscribers.
type Hub struct {
	queueSize   int
	mu          sync.RWMutex
	subscribers map[*Subscriber]struct{}
	broadcast   chan []byte
	done        chan struct{}
	stopOnce    sync.Once
	dropped     atomic.Int64
}

// New creates a Hub. Run must be started for messages to be delivered.
func New(queueSize int) *Hub {
	if queueSize <= 0 {
		queueSize = DefaultQueueSize
	}
	return &Hub{
		queueSize:   queueSize,
		subscribers: make(map[*Subscriber]struct{}),
		broadcast:   make(chan []byte, broadcastBuffer),
		done:        make(chan struct{}),
	}
}

// Run 启动 Hub 主循环，ctx 结束时关闭所有订阅
func (h *Hub) Run(ctx context.Context) {
	defer h.cleanup()
	for {
		select {
		case msg := <-h.broadcast:
			h.fanOut(msg)
		case <-ctx.Done():
			return
		case <-h.done:
			return
		}
	}
}

// Stop ends Run.
func (h *Hub) Stop() {
	h.stopOnce.Do(func() { close(h.done) })
}

// Subscribe registers a new subscriber. After the hub stopped, the returned
// subscriber's channel is already closed.
func (h *Hub) Subscribe() *Subscriber {
	s := &Subscriber{send: make(chan []byte, h.queueSize)}
	h.mu.Lock()
	defer h.mu.Unlock()
	select {
	case <-h.done:
		close(s.send)
		return s
	default:
	}
	h.subscribers[s] = struct{}{}
	logger.Debug("[Hub] subscriber added", logger.Int("subscribers", len(h.subscribers)))
	return s
}

// Unsubscribe removes s and closes its channel. Safe to call twice.
func (h *Hub) Unsubscribe(s *Subscriber) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.subscribers[s]; !ok {
		return
	}
	delete(h.subscribers, s)
	close(s.send)
	if n := s.Dropped(); n > 0 {
		logger.Warn("[Hub] subscriber removed after dropping messages", logger.Int64("dropped", n))
	}
}

// Publish queues msg for every subscriber, including the one that sent it.
// It never blocks: when the broadcast buffer is full, for example because
// Run is not running, msg is dropped and counted.
func (h *Hub) Publish(msg []byte) {
	select {
	case <-h.done:
		return
	default:
	}
	select {
	case h.broadcast <- msg:
	default:
		if n := h.dropped.Add(1); n == 1 || n%100 == 0 {
			logger.Warn("[Hub] broadcast buffer full, message dropped", logger.Int64("dropped", n))
		}
	}
}

// Dropped returns how many messages Publish discarded.
func (h *Hub) Dropped() int64 {
	return h.dropped.Load()
}

// PublishEvent stamps and publishes ev as JSON.
func (h *Hub) PublishEvent(ev Event) {
	if ev.Timestamp == 0 {
		ev.Timestamp = time.Now().UnixMilli()
	}
	data, err := json.Marshal(ev)
	if err != nil {
		logger.Warn("[Hub] failed to encode event", logger.ErrorField(err))
		return
	}
	h.Publish(data)
}

// Len returns the number of subscribers.
func (h *Hub) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subscribers)
}

func (h *Hub) fanOut(msg []byte) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for s := range h.subscribers {
		s.offer(msg)
	}
}

func (h *Hub) cleanup() {
	h.Stop()
	h.mu.Lock()
	defer h.mu.Unlock()
	for s := range h.subscribers {
		close(s.send)
	}
	h.subscribers = make(map[*Subscriber]struct{})
}
