package broadcast

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/printworks/jobtrack/internal/model"
)

const (
	// relayBaseBackoff is the first wait before resubscribing.
	relayBaseBackoff = time.Second
	// relayMaxBackoff caps the exponential backoff between resubscribes.
	relayMaxBackoff = time.Minute
)

var errSubscriptionClosed = errors.New("relay subscription closed")

// RedisRelay mirrors events between instances over a redis pub/sub channel.
// Outgoing events are queued and published by Run; a full queue drops the
// event rather than slowing the writer. The relay is attached to its broker
// only while subscribed.
type RedisRelay struct {
	redis   *redis.Client
	channel string
	origin  string
	broker  *Broker
	out     chan model.LifecycleEvent

	baseBackoff time.Duration
	maxBackoff  time.Duration
}

func NewRedisRelay(redisClient *redis.Client, channel, origin string, broker *Broker, buffer int) *RedisRelay {
	if buffer <= 0 {
		buffer = 256
	}
	return &RedisRelay{
		redis:   redisClient,
		channel: channel,
		origin:  origin,
		broker:  broker,
		out:     make(chan model.LifecycleEvent, buffer),

		baseBackoff: relayBaseBackoff,
		maxBackoff:  relayMaxBackoff,
	}
}

// Forward queues a locally published event for other instances.
func (r *RedisRelay) Forward(event model.LifecycleEvent) {
	if event.Origin == "" {
		event.Origin = r.origin
	}
	if event.Origin != r.origin {
		return
	}
	select {
	case r.out <- event:
	default:
		log.Printf("Relay queue full, event for job %s not forwarded", event.JobID)
	}
}

// Run publishes queued events and delivers remote ones until ctx is done or
// the subscription drops. It returns nil only on ctx cancellation.
func (r *RedisRelay) Run(ctx context.Context) error {
	pubsub := r.redis.Subscribe(ctx, r.channel)
	defer pubsub.Close()

	if _, err := pubsub.Receive(ctx); err != nil {
		return err
	}
	incoming := pubsub.Channel()

	r.broker.SetRelay(r)
	defer r.broker.SetRelay(nil)

	log.Printf("Event relay listening on %s as %s", r.channel, r.origin)
	for {
		select {
		case <-ctx.Done():
			return nil

		case event := <-r.out:
			data, err := json.Marshal(event)
			if err != nil {
				log.Printf("Failed to marshal event for relay: %v", err)
				continue
			}
			if err := r.redis.Publish(ctx, r.channel, data).Err(); err != nil {
				log.Printf("Failed to relay event for job %s: %v", event.JobID, err)
			}

		case msg, ok := <-incoming:
			if !ok {
				return errSubscriptionClosed
			}
			var event model.LifecycleEvent
			if err := json.Unmarshal([]byte(msg.Payload), &event); err != nil {
				log.Printf("Failed to decode relayed event: %v", err)
				continue
			}
			if event.Origin == r.origin {
				continue
			}
			r.broker.Deliver(event)
		}
	}
}

// RunWithReconnect keeps Run going with exponential backoff until ctx is
// done. A subscription that stayed up longer than the backoff cap resets
// the attempt count.
func (r *RedisRelay) RunWithReconnect(ctx context.Context) {
	for attempt := 0; ; attempt++ {
		started := time.Now()
		err := r.Run(ctx)
		if ctx.Err() != nil {
			return
		}
		if time.Since(started) > r.maxBackoff {
			attempt = 0
		}

		wait := r.baseBackoff
		for i := 0; i < attempt && wait < r.maxBackoff; i++ {
			wait *= 2
		}
		if wait > r.maxBackoff {
			wait = r.maxBackoff
		}
		log.Printf("Event relay disconnected (attempt %d): %v, reconnecting in %v", attempt+1, err, wait)

		select {
		case <-ctx.Done():
			return
		case <-time.After(wait):
		}
	}
}
