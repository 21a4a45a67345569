package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
	"github.com/zatekoja/coursefeedback/backend/internal/domain/entities"
	"github.com/zatekoja/coursefeedback/backend/internal/domain/providers"
	redisclient "github.com/zatekoja/coursefeedback/backend/internal/infrastructure/clients/redis"
)

const subscriberBuffer = 100

// ErrBusClosed is returned by Subscribe after Close
var ErrBusClosed = errors.New("event bus closed")

// RedisEventBus carries feedback events over Redis Pub/Sub. Every
// subscription owns its own Redis subscription and forwarding goroutine.
type RedisEventBus struct {
	client *redis.Client

	mu     sync.Mutex
	subs   map[*redis.PubSub]struct{}
	closed bool
}

// NewRedisEventBus creates a new Redis-based event bus
func NewRedisEventBus(client *redisclient.Client) providers.EventBus {
	return &RedisEventBus{
		client: client.Client(),
		subs:   make(map[*redis.PubSub]struct{}),
	}
}

// Publish sends event to every current subscriber of channel
func (b *RedisEventBus) Publish(ctx context.Context, channel string, event *entities.FeedbackEvent) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal feedback event: %w", err)
	}

	receivers, err := b.client.Publish(ctx, channel, data).Result()
	if err != nil {
		return fmt.Errorf("failed to publish feedback event: %w", err)
	}

	log.Debug().
		Str("channel", channel).
		Str("event_type", string(event.Type)).
		Str("feedback_id", event.FeedbackID).
		Int64("receivers", receivers).
		Msg("published feedback event")
	return nil
}

// Subscribe returns events published on channel from now on. The
// subscription is confirmed by Redis before Subscribe returns. The channel
// closes when ctx is done or the bus is closed.
func (b *RedisEventBus) Subscribe(ctx context.Context, channel string) (<-chan *entities.FeedbackEvent, error) {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil, ErrBusClosed
	}
	pubsub := b.client.Subscribe(ctx, channel)
	b.subs[pubsub] = struct{}{}
	b.mu.Unlock()

	if _, err := pubsub.Receive(ctx); err != nil {
		b.release(pubsub)
		return nil, fmt.Errorf("failed to subscribe to %s: %w", channel, err)
	}

	out := make(chan *entities.FeedbackEvent, subscriberBuffer)
	go b.forward(ctx, channel, pubsub, out)

	log.Info().Str("channel", channel).Msg("subscribed to feedback events")
	return out, nil
}

func (b *RedisEventBus) forward(ctx context.Context, channel string, pubsub *redis.PubSub, out chan<- *entities.FeedbackEvent) {
	defer close(out)
	defer b.release(pubsub)

	messages := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-messages:
			if !ok {
				return
			}

			event, err := decodeEvent(msg.Payload)
			if err != nil {
				log.Warn().Err(err).Str("channel", channel).Msg("dropping malformed feedback event")
				continue
			}

			select {
			case out <- event:
			case <-ctx.Done():
				return
			}
		}
	}
}

func (b *RedisEventBus) release(pubsub *redis.PubSub) {
	b.mu.Lock()
	_, tracked := b.subs[pubsub]
	delete(b.subs, pubsub)
	b.mu.Unlock()

	if tracked {
		_ = pubsub.Close()
	}
}

// Close ends every subscription. Publish keeps working until the Redis
// client itself is closed.
func (b *RedisEventBus) Close() error {
	b.mu.Lock()
	b.closed = true
	subs := make([]*redis.PubSub, 0, len(b.subs))
	for pubsub := range b.subs {
		subs = append(subs, pubsub)
	}
	b.subs = make(map[*redis.PubSub]struct{})
	b.mu.Unlock()

	var errs []error
	for _, pubsub := range subs {
		if err := pubsub.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// decodeEvent parses a published payload. Events that name neither a record
// nor a course are useless to consumers and rejected.
func decodeEvent(payload string) (*entities.FeedbackEvent, error) {
	var event entities.FeedbackEvent
	if err := json.Unmarshal([]byte(payload), &event); err != nil {
		return nil, fmt.Errorf("invalid feedback event payload: %w", err)
	}
	if event.Type == "" {
		return nil, errors.New("feedback event has no type")
	}
	if event.FeedbackID == "" && event.CourseKey == "" {
		return nil, errors.New("feedback event names no feedback or course")
	}
	return &event, nil
}

// NoopEventBus discards every event. Used when Redis is not configured.
type NoopEventBus struct{}

// Publish implements EventBus
func (NoopEventBus) Publish(context.Context, string, *entities.FeedbackEvent) error { return nil }

// Subscribe returns a channel that closes with ctx
func (NoopEventBus) Subscribe(ctx context.Context, _ string) (<-chan *entities.FeedbackEvent, error) {
	ch := make(chan *entities.FeedbackEvent)
	go func() {
		<-ctx.Done()
		close(ch)
	}()
	return ch, nil
}

// Close implements EventBus
func (NoopEventBus) Close() error { return nil }
