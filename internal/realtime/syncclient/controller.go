// Package syncclient keeps a client-side query cache approximately consistent
// with the server. It listens for realtime data_update events and, whether or
// not that channel is up, invalidates a fixed set of keys on an interval.
package syncclient

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/jonboulle/clockwork"

	"github.com/innkeeper-pms/innkeeper/internal/realtime"
)

// Defaults applied when Config leaves a field zero.
const (
	DefaultPollInterval      = 30 * time.Second
	DefaultReconnectDelay    = 3 * time.Second
	DefaultMaxReconnectDelay = 30 * time.Second
	// DefaultReadTimeout outlasts the server's 54s ping period.
	DefaultReadTimeout = 75 * time.Second
)

const writeWait = 10 * time.Second

var (
	ErrAlreadyStarted = errors.New("syncclient: already started")
	ErrClosed         = errors.New("syncclient: closed")
)

// Cache is the invalidation surface of the client query cache. Both methods
// must be idempotent; the cache de-duplicates refetches per key.
type Cache interface {
	Invalidate(keys ...string)
	InvalidateAll()
}

// Config configures a Controller.
type Config struct {
	// URL is the realtime endpoint, e.g. wss://pms.example.com/ws. Empty
	// disables push and leaves polling as the only mechanism.
	URL    string
	Header http.Header

	UserID   int64
	BranchID *int64

	PollInterval      time.Duration
	ReconnectDelay    time.Duration
	MaxReconnectDelay time.Duration
	// ReadTimeout drops a connection that delivers no message, ping or
	// pong for this long.
	ReadTimeout time.Duration

	Table    InvalidationTable
	PollKeys []string

	Dialer *websocket.Dialer
	Clock  clockwork.Clock
	Logger *slog.Logger

	// OnSync is called after a manual SyncNow completes.
	OnSync func(at time.Time)
}

// Controller runs the push listener and the poll timer for one session.
type Controller struct {
	cfg    Config
	cache  Cache
	clock  clockwork.Clock
	logger *slog.Logger

	connected atomic.Bool
	wg        sync.WaitGroup

	mu         sync.Mutex
	ctx        context.Context
	cancel     context.CancelFunc
	started    bool
	closed     bool
	interval   time.Duration
	pollCancel context.CancelFunc
	pollDone   chan struct{}
}

// New builds a Controller that invalidates cache.
func New(cfg Config, cache Cache) *Controller {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = DefaultPollInterval
	}
	if cfg.ReconnectDelay <= 0 {
		cfg.ReconnectDelay = DefaultReconnectDelay
	}
	if cfg.MaxReconnectDelay < cfg.ReconnectDelay {
		cfg.MaxReconnectDelay = max(DefaultMaxReconnectDelay, cfg.ReconnectDelay)
	}
	if cfg.ReadTimeout <= 0 {
		cfg.ReadTimeout = DefaultReadTimeout
	}
	if cfg.Table == nil {
		cfg.Table = DefaultTable()
	}
	if cfg.PollKeys == nil {
		cfg.PollKeys = DefaultPollKeys()
	}
	if cfg.Dialer == nil {
		cfg.Dialer = websocket.DefaultDialer
	}
	if cfg.Clock == nil {
		cfg.Clock = clockwork.NewRealClock()
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Controller{
		cfg:    cfg,
		cache:  cache,
		clock:  cfg.Clock,
		logger: cfg.Logger,
	}
}

// Start performs the initial sync and launches the poll timer and, if a URL
// is configured, the push listener. Both stop when ctx ends or Close is called.
func (c *Controller) Start(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrClosed
	}
	if c.started {
		return ErrAlreadyStarted
	}
	c.started = true
	c.ctx, c.cancel = context.WithCancel(ctx)

	c.cache.Invalidate(c.cfg.PollKeys...)
	c.startPollLocked(c.cfg.PollInterval)

	if c.cfg.URL != "" {
		c.wg.Add(1)
		go c.pushLoop(c.ctx)
	}
	return nil
}

// SyncNow stops the poll timer, invalidates the whole cache, reports the sync
// through OnSync and restarts polling. A positive interval replaces the current
// cadence.
func (c *Controller) SyncNow(interval time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrClosed
	}
	if !c.started {
		return errors.New("syncclient: not started")
	}
	c.stopPollLocked()
	c.cache.InvalidateAll()
	if c.cfg.OnSync != nil {
		c.cfg.OnSync(c.clock.Now())
	}
	if interval <= 0 {
		interval = c.interval
	}
	c.startPollLocked(interval)
	return nil
}

// Connected reports whether the push channel is currently open.
func (c *Controller) Connected() bool {
	return c.connected.Load()
}

// Close stops all timers and closes the live connection. It blocks until the
// background goroutines have exited.
func (c *Controller) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	if c.cancel != nil {
		c.cancel()
	}
	c.stopPollLocked()
	c.mu.Unlock()

	c.wg.Wait()
}

func (c *Controller) startPollLocked(interval time.Duration) {
	ctx, cancel := context.WithCancel(c.ctx)
	done := make(chan struct{})
	c.interval = interval
	c.pollCancel = cancel
	c.pollDone = done
	go c.pollLoop(ctx, interval, done)
}

func (c *Controller) stopPollLocked() {
	if c.pollCancel == nil {
		return
	}
	c.pollCancel()
	<-c.pollDone
	c.pollCancel = nil
	c.pollDone = nil
}

func (c *Controller) pollLoop(ctx context.Context, interval time.Duration, done chan<- struct{}) {
	defer close(done)
	ticker := c.clock.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.Chan():
			c.cache.Invalidate(c.cfg.PollKeys...)
		}
	}
}

func (c *Controller) pushLoop(ctx context.Context) {
	defer c.wg.Done()
	delay := c.cfg.ReconnectDelay
	for {
		established, err := c.listen(ctx)
		if ctx.Err() != nil {
			return
		}
		if established {
			delay = c.cfg.ReconnectDelay
		}
		c.logger.Warn("realtime channel unavailable, polling only until reconnect",
			slog.Any("error", err), slog.Duration("retry_in", delay))

		select {
		case <-ctx.Done():
			return
		case <-c.clock.After(delay):
		}
		if !established {
			delay = nextDelay(delay, c.cfg.MaxReconnectDelay)
		}
	}
}

func nextDelay(cur, ceiling time.Duration) time.Duration {
	return min(cur*2, ceiling)
}

// listen holds one connection open until it fails or ctx ends.
func (c *Controller) listen(ctx context.Context) (bool, error) {
	ws, _, err := c.cfg.Dialer.DialContext(ctx, c.cfg.URL, c.cfg.Header)
	if err != nil {
		return false, err
	}
	stop := context.AfterFunc(ctx, func() { _ = ws.Close() })
	defer func() {
		stop()
		c.connected.Store(false)
		_ = ws.Close()
	}()
	c.connected.Store(true)
	c.logger.Info("realtime channel connected", slog.String("url", c.cfg.URL))

	if c.cfg.UserID != 0 {
		auth := realtime.InboundMessage{Type: realtime.MessageAuth, UserID: c.cfg.UserID, BranchID: c.cfg.BranchID}
		if err := ws.WriteJSON(auth); err != nil {
			return true, err
		}
	}

	// socket deadlines run on wall time, not the injected clock
	extend := func() error {
		return ws.SetReadDeadline(time.Now().Add(c.cfg.ReadTimeout))
	}
	if err := extend(); err != nil {
		return true, err
	}
	ws.SetPongHandler(func(string) error { return extend() })
	ws.SetPingHandler(func(appData string) error {
		if err := extend(); err != nil {
			return err
		}
		err := ws.WriteControl(websocket.PongMessage, []byte(appData), time.Now().Add(writeWait))
		if errors.Is(err, websocket.ErrCloseSent) {
			return nil
		}
		return err
	})

	for {
		_, data, err := ws.ReadMessage()
		if err != nil {
			return true, err
		}
		if err := extend(); err != nil {
			return true, err
		}
		c.apply(data)
	}
}

func (c *Controller) apply(data []byte) {
	var ev realtime.Event
	if err := json.Unmarshal(data, &ev); err != nil {
		c.logger.Debug("realtime message decode", slog.Any("error", err))
		return
	}
	if ev.Event != realtime.EventDataUpdate {
		return
	}
	keys, ok := c.cfg.Table.Keys(ev.Data.Type)
	if !ok {
		c.cache.InvalidateAll()
		return
	}
	c.cache.Invalidate(keys...)
}
