package publisher

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	kafka "github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type flakyWriter struct {
	mu       sync.Mutex
	failures int
	attempts int
	written  []kafka.Message
}

func (w *flakyWriter) WriteMessages(ctx context.Context, msgs ...kafka.Message) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.attempts++
	if w.attempts <= w.failures {
		return errors.New("broker unavailable")
	}
	w.written = append(w.written, msgs...)
	return nil
}

func (w *flakyWriter) Close() error { return nil }

func (w *flakyWriter) snapshot() (int, []kafka.Message) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.attempts, append([]kafka.Message(nil), w.written...)
}

func testPublisher(w MessageWriter, attempts int) *KafkaPublisher {
	return &KafkaPublisher{
		Writers:     map[string]MessageWriter{PaymentSettledTopic: w},
		RetryConfig: RetryConfig{MaxAttempts: attempts, BaseDelay: time.Millisecond, MaxDelay: 5 * time.Millisecond},
	}
}

func TestKafkaPublisher_RetriesUntilWritten(t *testing.T) {
	w := &flakyWriter{failures: 2}
	p := testPublisher(w, 5)

	ev := PaymentSettledEvent{PaymentID: 7, PaymentReference: "ref-7", Status: "COMPLETED"}
	require.NoError(t, p.Publish(context.Background(), PaymentSettledTopic, ev))

	attempts, written := w.snapshot()
	assert.Equal(t, 3, attempts)
	require.Len(t, written, 1)
	assert.Equal(t, "ref-7", string(written[0].Key))
	var got PaymentSettledEvent
	require.NoError(t, json.Unmarshal(written[0].Value, &got))
	assert.Equal(t, uint(7), got.PaymentID)
}

func TestKafkaPublisher_GivesUp(t *testing.T) {
	w := &flakyWriter{failures: 10}
	p := testPublisher(w, 3)

	err := p.Publish(context.Background(), PaymentSettledTopic, PaymentSettledEvent{PaymentReference: "ref-8"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "after 3 attempts")
	attempts, _ := w.snapshot()
	assert.Equal(t, 3, attempts)

	err = p.Publish(context.Background(), "unknown.topic", PaymentSettledEvent{})
	assert.Error(t, err)
}

func TestKafkaPublisher_StopsOnCancel(t *testing.T) {
	w := &flakyWriter{failures: 10}
	p := &KafkaPublisher{
		Writers:     map[string]MessageWriter{PaymentSettledTopic: w},
		RetryConfig: RetryConfig{MaxAttempts: 5, BaseDelay: time.Hour, MaxDelay: time.Hour},
	}
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	start := time.Now()
	err := p.Publish(ctx, PaymentSettledTopic, PaymentSettledEvent{})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Less(t, time.Since(start), time.Second)
}

func TestBackoffIsCapped(t *testing.T) {
	p := &KafkaPublisher{RetryConfig: RetryConfig{BaseDelay: 100 * time.Millisecond, MaxDelay: time.Second}}
	assert.Equal(t, 100*time.Millisecond, p.calculateBackoff(0))
	assert.Equal(t, 400*time.Millisecond, p.calculateBackoff(2))
	assert.Equal(t, time.Second, p.calculateBackoff(10))
}

type blockingPublisher struct {
	release chan struct{}
	mu      sync.Mutex
	refs    []string
}

func (b *blockingPublisher) Publish(ctx context.Context, topic string, message interface{}) error {
	<-b.release
	b.mu.Lock()
	defer b.mu.Unlock()
	b.refs = append(b.refs, message.(PaymentSettledEvent).PaymentReference)
	return nil
}

func TestAsyncPublisher_DoesNotWaitForBroker(t *testing.T) {
	inner := &blockingPublisher{release: make(chan struct{})}
	p := NewAsyncPublisher(inner, 2, time.Second)

	start := time.Now()
	require.NoError(t, p.Publish(context.Background(), PaymentSettledTopic, PaymentSettledEvent{PaymentReference: "a"}))
	require.NoError(t, p.Publish(context.Background(), PaymentSettledTopic, PaymentSettledEvent{PaymentReference: "b"}))
	assert.Less(t, time.Since(start), 500*time.Millisecond)

	close(inner.release)
	require.NoError(t, p.Close())
	assert.Equal(t, []string{"a", "b"}, inner.refs)

	assert.Error(t, p.Publish(context.Background(), PaymentSettledTopic, PaymentSettledEvent{}))
}

func TestAsyncPublisher_FullQueue(t *testing.T) {
	inner := &blockingPublisher{release: make(chan struct{})}
	p := NewAsyncPublisher(inner, 1, time.Second)

	// the worker holds at most one event while the queue holds another
	var full bool
	for i := 0; i < 5; i++ {
		if err := p.Publish(context.Background(), PaymentSettledTopic, PaymentSettledEvent{PaymentReference: "x"}); errors.Is(err, ErrQueueFull) {
			full = true
			break
		}
	}
	assert.True(t, full)
	close(inner.release)
	require.NoError(t, p.Close())
}
