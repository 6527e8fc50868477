package broadcast

import (
	"context"
	"encoding/json"
	"os"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/printworks/jobtrack/internal/model"
)

func attached(b *Broker) bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.relay != nil
}

func fastRelay(client *redis.Client, b *Broker) *RedisRelay {
	r := NewRedisRelay(client, "jobtrack:test-events", "node-a", b, 4)
	r.baseBackoff = 5 * time.Millisecond
	r.maxBackoff = 20 * time.Millisecond
	return r
}

func TestRedisRelay_StaysDetachedWhileUnreachable(t *testing.T) {
	client := redis.NewClient(&redis.Options{Addr: "127.0.0.1:1", DialTimeout: 50 * time.Millisecond, MaxRetries: -1})
	defer client.Close()
	b := NewBroker(4)
	r := fastRelay(client, b)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		r.RunWithReconnect(ctx)
		close(done)
	}()

	time.Sleep(100 * time.Millisecond)
	assert.False(t, attached(b))

	// publishes while disconnected are not queued for the relay
	for i := 0; i < 10; i++ {
		b.Publish(event("a", int64(i+1)))
	}
	assert.Empty(t, r.out)

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("relay did not stop after cancel")
	}
}

func TestRedisRelay_AttachesWhileSubscribed(t *testing.T) {
	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		addr = "localhost:6379"
	}
	client := redis.NewClient(&redis.Options{Addr: addr, DB: 15})
	defer client.Close()
	pingCtx, pingCancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
	defer pingCancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		t.Skipf("redis not available at %s: %v", addr, err)
	}

	b := NewBroker(4)
	r := fastRelay(client, b)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go r.RunWithReconnect(ctx)

	require.Eventually(t, func() bool { return attached(b) }, time.Second, 10*time.Millisecond)

	sub := b.Subscribe(model.TopicAllJobs)
	defer sub.Close()

	foreign := event("x", 1)
	foreign.Origin = "node-b"
	data, err := json.Marshal(foreign)
	require.NoError(t, err)
	require.NoError(t, client.Publish(context.Background(), r.channel, data).Err())

	select {
	case got := <-sub.Events():
		assert.Equal(t, "x", got.JobID)
	case <-time.After(time.Second):
		t.Fatal("remote event not delivered")
	}

	cancel()
	require.Eventually(t, func() bool { return !attached(b) }, time.Second, 10*time.Millisecond)
}
