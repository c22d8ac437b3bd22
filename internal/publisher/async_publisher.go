package publisher

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

var ErrQueueFull = errors.New("publish queue full")

type queuedEvent struct {
	topic   string
	message interface{}
}

// AsyncPublisher hands events to a background worker so a slow broker never
// holds up the request that produced them. Events are delivered in order.
type AsyncPublisher struct {
	inner   Publisher
	timeout time.Duration
	queue   chan queuedEvent

	mu     sync.RWMutex
	closed bool
	done   chan struct{}
}

// NewAsyncPublisher starts the worker. timeout bounds each delivery,
// retries included.
func NewAsyncPublisher(inner Publisher, buffer int, timeout time.Duration) *AsyncPublisher {
	if buffer <= 0 {
		buffer = 256
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	p := &AsyncPublisher{
		inner:   inner,
		timeout: timeout,
		queue:   make(chan queuedEvent, buffer),
		done:    make(chan struct{}),
	}
	go p.run()
	return p
}

// Publish enqueues without blocking. ctx is not used for delivery.
func (p *AsyncPublisher) Publish(ctx context.Context, topic string, message interface{}) error {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return errors.New("publisher closed")
	}
	select {
	case p.queue <- queuedEvent{topic: topic, message: message}:
		return nil
	default:
		return ErrQueueFull
	}
}

func (p *AsyncPublisher) run() {
	defer close(p.done)
	for ev := range p.queue {
		ctx, cancel := context.WithTimeout(context.Background(), p.timeout)
		if err := p.inner.Publish(ctx, ev.topic, ev.message); err != nil {
			logrus.WithField("topic", ev.topic).WithError(err).Error("[Publisher] event dropped")
		}
		cancel()
	}
}

// Close stops accepting events and waits for the queue to drain.
func (p *AsyncPublisher) Close() error {
	p.mu.Lock()
	if !p.closed {
		p.closed = true
		close(p.queue)
	}
	p.mu.Unlock()
	<-p.done
	return nil
}
