package realtime

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/innkeeper-pms/innkeeper/internal/observability"
)

// ErrHubClosed is returned when connecting to a hub that has been shut down.
var ErrHubClosed = errors.New("realtime: hub closed")

const defaultSendBuffer = 32

// Hub is the registry of open connections owned by one server instance.
type Hub struct {
	logger     *slog.Logger
	metrics    *observability.Metrics
	now        func() time.Time
	sendBuffer int

	mu     sync.RWMutex
	conns  map[string]*Conn
	closed bool
}

// HubOption customises a Hub.
type HubOption func(*Hub)

// WithMetrics attaches Prometheus collectors.
func WithMetrics(m *observability.Metrics) HubOption {
	return func(h *Hub) { h.metrics = m }
}

// WithSendBuffer sets the per-connection queue length.
func WithSendBuffer(n int) HubOption {
	return func(h *Hub) {
		if n > 0 {
			h.sendBuffer = n
		}
	}
}

// WithClock overrides the timestamp source.
func WithClock(now func() time.Time) HubOption {
	return func(h *Hub) {
		if now != nil {
			h.now = now
		}
	}
}

// NewHub constructs an empty Hub.
func NewHub(logger *slog.Logger, opts ...HubOption) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	h := &Hub{
		logger:     logger,
		now:        time.Now,
		sendBuffer: defaultSendBuffer,
		conns:      make(map[string]*Conn),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Conn is one registered client. Its branch tag is set by the last auth message.
type Conn struct {
	id        string
	send      chan []byte
	done      chan struct{}
	closeOnce sync.Once

	mu       sync.RWMutex
	userID   int64
	branchID *int64
}

// ID returns the connection identifier.
func (c *Conn) ID() string { return c.id }

// Send exposes queued outbound messages.
func (c *Conn) Send() <-chan []byte { return c.send }

// Done is closed once the connection is removed from its hub.
func (c *Conn) Done() <-chan struct{} { return c.done }

// Identity returns the announced user and branch.
func (c *Conn) Identity() (userID int64, branchID *int64) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.userID, c.branchID
}

func (c *Conn) matches(branchID *int64) bool {
	if branchID == nil {
		return true
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.branchID != nil && *c.branchID == *branchID
}

// enqueue never blocks; false means the buffer is full.
func (c *Conn) enqueue(msg []byte) bool {
	select {
	case <-c.done:
		return false
	default:
	}
	select {
	case c.send <- msg:
		return true
	default:
		return false
	}
}

func (c *Conn) shutdown() {
	c.closeOnce.Do(func() { close(c.done) })
}

// Connect registers a new connection.
func (h *Hub) Connect() (*Conn, error) {
	c := &Conn{
		id:   uuid.NewString(),
		send: make(chan []byte, h.sendBuffer),
		done: make(chan struct{}),
	}
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return nil, ErrHubClosed
	}
	h.conns[c.id] = c
	total := len(h.conns)
	h.mu.Unlock()

	h.metrics.ConnectionOpened()
	h.logger.Debug("realtime connection opened", slog.String("conn_id", c.id), slog.Int("total", total))
	return c, nil
}

// Disconnect removes the connection. Calling it twice is harmless.
func (h *Hub) Disconnect(c *Conn) {
	if c == nil {
		return
	}
	h.mu.Lock()
	_, ok := h.conns[c.id]
	delete(h.conns, c.id)
	total := len(h.conns)
	h.mu.Unlock()

	c.shutdown()
	if ok {
		h.metrics.ConnectionClosed()
		h.logger.Debug("realtime connection closed", slog.String("conn_id", c.id), slog.Int("total", total))
	}
}

// Authenticate tags the connection with the announced user and branch. A nil
// branch leaves the connection on global broadcasts only.
func (h *Hub) Authenticate(c *Conn, userID int64, branchID *int64) {
	var branch *int64
	if branchID != nil {
		b := *branchID
		branch = &b
	}
	c.mu.Lock()
	c.userID = userID
	c.branchID = branch
	c.mu.Unlock()
}

// Broadcast queues the event on every open connection whose branch matches.
// A nil branchID reaches everyone. It returns the number of connections the
// message was queued on; connections with a full buffer are dropped.
func (h *Hub) Broadcast(ctx context.Context, name string, payload Payload, branchID *int64) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	msg, err := encodeEvent(name, payload, h.now())
	if err != nil {
		return 0, err
	}

	var slow []*Conn
	delivered := 0
	h.mu.RLock()
	for _, c := range h.conns {
		if !c.matches(branchID) {
			continue
		}
		if c.enqueue(msg) {
			delivered++
			continue
		}
		slow = append(slow, c)
	}
	h.mu.RUnlock()

	for _, c := range slow {
		h.logger.Warn("realtime send buffer full, dropping connection", slog.String("conn_id", c.id))
		h.metrics.ConnectionDropped()
		h.Disconnect(c)
	}
	h.metrics.Broadcast(string(payload.Type), delivered)
	return delivered, nil
}

// Notify implements Notifier by broadcasting a data_update for category.
func (h *Hub) Notify(ctx context.Context, category Category, branchID *int64) error {
	_, err := h.Broadcast(ctx, EventDataUpdate, Payload{Type: category}, branchID)
	return err
}

// Len returns the number of open connections.
func (h *Hub) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.conns)
}

// Close disconnects everyone and rejects new connections.
func (h *Hub) Close() {
	h.mu.Lock()
	h.closed = true
	conns := make([]*Conn, 0, len(h.conns))
	for _, c := range h.conns {
		conns = append(conns, c)
	}
	h.mu.Unlock()

	for _, c := range conns {
		h.Disconnect(c)
	}
}
