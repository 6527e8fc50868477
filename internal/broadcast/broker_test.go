package broadcast

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/printworks/jobtrack/internal/model"
)

func event(jobID string, version int64) model.LifecycleEvent {
	return model.LifecycleEvent{
		ID:        fmt.Sprintf("%s-%d", jobID, version),
		JobID:     jobID,
		NewStatus: model.StatusPrepressInProgress,
		Version:   version,
		Timestamp: time.Unix(version, 0),
	}
}

func TestBroker_GlobalAndJobTopics(t *testing.T) {
	b := NewBroker(8)
	all := b.Subscribe(model.TopicAllJobs)
	one := b.Subscribe(model.TopicJob("a"))

	b.Publish(event("a", 1))
	b.Publish(event("b", 1))

	assert.Len(t, all.Events(), 2)
	require.Len(t, one.Events(), 1)
	got := <-one.Events()
	assert.Equal(t, "a", got.JobID)
}

func TestBroker_PerJobOrder(t *testing.T) {
	b := NewBroker(1000)
	sub := b.Subscribe(model.TopicAllJobs)

	var wg sync.WaitGroup
	for _, id := range []string{"a", "b", "c"} {
		wg.Add(1)
		go func(id string) {
			defer wg.Done()
			for v := int64(1); v <= 100; v++ {
				b.Publish(event(id, v))
			}
		}(id)
	}
	wg.Wait()

	last := map[string]int64{}
	for i := 0; i < 300; i++ {
		e := <-sub.Events()
		assert.Greater(t, e.Version, last[e.JobID], "job %s out of order", e.JobID)
		last[e.JobID] = e.Version
	}
}

func TestBroker_SlowSubscriberDoesNotBlock(t *testing.T) {
	b := NewBroker(2)
	slow := b.Subscribe(model.TopicAllJobs)
	fast := b.Subscribe(model.TopicJob("a"))

	done := make(chan struct{})
	go func() {
		for i := int64(1); i <= 10; i++ {
			b.Publish(event("a", i))
			<-fast.Events()
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("publish blocked on a full subscriber")
	}

	assert.Equal(t, int64(8), slow.Dropped())
	assert.Equal(t, int64(8), b.Dropped())
	select {
	case <-slow.Gaps():
	default:
		t.Fatal("expected a gap signal")
	}
	// the oldest events are kept, the rest must be re-fetched
	assert.Equal(t, int64(1), (<-slow.Events()).Version)
	assert.Equal(t, int64(2), (<-slow.Events()).Version)
}

func TestBroker_Unsubscribe(t *testing.T) {
	b := NewBroker(4)
	sub := b.Subscribe(model.TopicAllJobs)
	assert.Equal(t, 1, b.Subscribers())

	sub.Close()
	sub.Close()
	assert.Equal(t, 0, b.Subscribers())

	_, ok := <-sub.Events()
	assert.False(t, ok)

	// publishing after everyone left is a no-op
	b.Publish(event("a", 1))
}

func TestBroker_CloseEndsSubscriptions(t *testing.T) {
	b := NewBroker(4)
	sub := b.Subscribe(model.TopicJob("a"))
	b.Close()

	_, ok := <-sub.Events()
	assert.False(t, ok)

	late := b.Subscribe(model.TopicAllJobs)
	_, ok = <-late.Events()
	assert.False(t, ok)
	b.Publish(event("a", 2))
}

type captureForwarder struct {
	mu     sync.Mutex
	events []model.LifecycleEvent
}

func (c *captureForwarder) Forward(e model.LifecycleEvent) {
	c.mu.Lock()
	c.events = append(c.events, e)
	c.mu.Unlock()
}

func TestBroker_RelayOnlySeesLocalPublishes(t *testing.T) {
	b := NewBroker(4)
	f := &captureForwarder{}
	b.SetRelay(f)
	sub := b.Subscribe(model.TopicAllJobs)

	b.Publish(event("a", 1))
	b.Deliver(event("b", 1))

	assert.Len(t, sub.Events(), 2)
	require.Len(t, f.events, 1)
	assert.Equal(t, "a", f.events[0].JobID)
}

func TestRedisRelay_ForwardSkipsForeignOrigin(t *testing.T) {
	r := NewRedisRelay(nil, "jobtrack:events", "node-a", NewBroker(4), 4)

	r.Forward(event("a", 1))
	foreign := event("b", 1)
	foreign.Origin = "node-b"
	r.Forward(foreign)

	require.Len(t, r.out, 1)
	got := <-r.out
	assert.Equal(t, "node-a", got.Origin)
}
