package bridge

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// Pusher is implemented by the notification aggregator. An envelope with no
// user ids fans out to every subscribed connection.
type Pusher interface {
	PushToUsers(ctx context.Context, userIDs, affectedTypes []string)
	PushToAll(ctx context.Context, affectedTypes []string)
}

// envelope is the wire format the surrounding application publishes when it
// mutates state that affects notification counts.
type envelope struct {
	UserIDs       []string `json:"user_ids"`
	AffectedTypes []string `json:"affected_types,omitempty"`
}

// RedisIngress listens on a Redis pub/sub channel for notification-change
// signals from the rest of the application and forwards them to the
// aggregator. It keeps this core decoupled from the application's own
// processes: they publish an envelope instead of importing the registry.
type RedisIngress struct {
	client  *redis.Client
	channel string
	pusher  Pusher
	logger  zerolog.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	mu     sync.RWMutex
	active bool
}

// NewRedisIngress creates an ingress subscribed to <prefix>notify.
func NewRedisIngress(client *redis.Client, prefix string, pusher Pusher, logger zerolog.Logger) *RedisIngress {
	ctx, cancel := context.WithCancel(context.Background())
	return &RedisIngress{
		client:  client,
		channel: prefix + "notify",
		pusher:  pusher,
		logger:  logger.With().Str("component", "notify-ingress").Logger(),
		ctx:     ctx,
		cancel:  cancel,
	}
}

// Start subscribes to the notify channel and begins relaying envelopes.
func (b *RedisIngress) Start() error {
	if err := b.client.Ping(b.ctx).Err(); err != nil {
		return err
	}

	sub := b.client.Subscribe(b.ctx, b.channel)

	// Wait for subscription confirmation.
	if _, err := sub.Receive(b.ctx); err != nil {
		return err
	}

	b.mu.Lock()
	b.active = true
	b.mu.Unlock()

	b.wg.Add(1)
	go b.listen(sub)

	b.logger.Info().Str("channel", b.channel).Msg("notify ingress started")
	return nil
}

// Stop unsubscribes and waits for the listener to exit.
func (b *RedisIngress) Stop() error {
	b.mu.Lock()
	b.active = false
	b.mu.Unlock()

	b.cancel()
	b.wg.Wait()
	return nil
}

// Available reports whether the ingress is subscribed.
func (b *RedisIngress) Available() bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.active
}

func (b *RedisIngress) listen(sub *redis.PubSub) {
	defer b.wg.Done()
	defer sub.Close()

	ch := sub.Channel()
	for {
		select {
		case msg, ok := <-ch:
			if !ok {
				return
			}
			b.handleMessage(msg)
		case <-b.ctx.Done():
			return
		}
	}
}

func (b *RedisIngress) handleMessage(msg *redis.Message) {
	var env envelope
	if err := json.Unmarshal([]byte(msg.Payload), &env); err != nil {
		b.logger.Error().Err(err).Msg("failed to decode notify envelope")
		return
	}

	b.logger.Debug().
		Int("users", len(env.UserIDs)).
		Strs("affected_types", env.AffectedTypes).
		Msg("notification change signal received")

	if len(env.UserIDs) == 0 {
		b.pusher.PushToAll(b.ctx, env.AffectedTypes)
		return
	}
	b.pusher.PushToUsers(b.ctx, env.UserIDs, env.AffectedTypes)
}
