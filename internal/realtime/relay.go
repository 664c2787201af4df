package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/redis/go-redis/v9"
)

// DefaultChannel is the Redis pub/sub channel used when none is configured.
const DefaultChannel = "innkeeper:realtime"

type envelope struct {
	Event    string  `json:"event"`
	Data     Payload `json:"data"`
	BranchID *int64  `json:"branchId,omitempty"`
}

// Relay carries broadcasts between processes through Redis pub/sub. Every API
// instance runs a Relay subscribed to the channel and feeds its local Hub;
// publishers (API handlers, the worker) only need Notify.
type Relay struct {
	client  *redis.Client
	channel string
	hub     *Hub
	logger  *slog.Logger

	ready     chan struct{}
	readyOnce sync.Once
}

// NewRelay constructs a Relay. hub may be nil for publish-only use.
func NewRelay(client *redis.Client, channel string, hub *Hub, logger *slog.Logger) *Relay {
	if channel == "" {
		channel = DefaultChannel
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Relay{
		client:  client,
		channel: channel,
		hub:     hub,
		logger:  logger,
		ready:   make(chan struct{}),
	}
}

// Publish sends an event to every subscribed instance.
func (r *Relay) Publish(ctx context.Context, name string, payload Payload, branchID *int64) error {
	data, err := json.Marshal(envelope{Event: name, Data: payload, BranchID: branchID})
	if err != nil {
		return err
	}
	if err := r.client.Publish(ctx, r.channel, data).Err(); err != nil {
		return fmt.Errorf("realtime: publish: %w", err)
	}
	return nil
}

// Notify implements Notifier.
func (r *Relay) Notify(ctx context.Context, category Category, branchID *int64) error {
	return r.Publish(ctx, EventDataUpdate, Payload{Type: category}, branchID)
}

// Ready is closed once the subscription is confirmed by Redis.
func (r *Relay) Ready() <-chan struct{} {
	return r.ready
}

// Run subscribes and forwards messages into the local Hub until ctx ends.
func (r *Relay) Run(ctx context.Context) error {
	if r.hub == nil {
		return errors.New("realtime: relay has no hub to deliver to")
	}
	sub := r.client.Subscribe(ctx, r.channel)
	defer func() {
		_ = sub.Close()
	}()
	if _, err := sub.Receive(ctx); err != nil {
		return fmt.Errorf("realtime: subscribe %s: %w", r.channel, err)
	}
	r.readyOnce.Do(func() { close(r.ready) })
	r.logger.Info("realtime relay subscribed", slog.String("channel", r.channel))

	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-ch:
			if !ok {
				return errors.New("realtime: relay subscription closed")
			}
			r.deliver(ctx, msg.Payload)
		}
	}
}

func (r *Relay) deliver(ctx context.Context, raw string) {
	var env envelope
	if err := json.Unmarshal([]byte(raw), &env); err != nil {
		r.logger.Warn("realtime relay decode", slog.Any("error", err))
		return
	}
	if _, err := r.hub.Broadcast(ctx, env.Event, env.Data, env.BranchID); err != nil {
		r.logger.Warn("realtime relay broadcast", slog.Any("error", err))
	}
}
