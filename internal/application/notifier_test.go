package application

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/RaikyD/storefront-orders/internal/domain"
)

// slowPublisher holds the first delivery until released so later events pile up behind it.
type slowPublisher struct {
	recordingPublisher
	gate    chan struct{}
	started chan struct{}
	once    sync.Once
	failOn  string
}

func (p *slowPublisher) PublishOrderEvent(ctx context.Context, ev domain.OrderEvent) error {
	p.once.Do(func() {
		close(p.started)
		<-p.gate
	})
	_ = p.recordingPublisher.PublishOrderEvent(ctx, ev)
	if ev.OrderNumber == p.failOn {
		return errors.New("broker unavailable")
	}
	return nil
}

func numbers(events []domain.OrderEvent) []string {
	out := make([]string, len(events))
	for i, ev := range events {
		out[i] = ev.OrderNumber
	}
	return out
}

func TestNotifierKeepsQueueOrder(t *testing.T) {
	pub := &slowPublisher{gate: make(chan struct{}), started: make(chan struct{}), failOn: "ORD-3"}
	n := newNotifier(pub)

	var want []string
	n.publish(domain.OrderEvent{OrderNumber: "ORD-0"})
	want = append(want, "ORD-0")
	select {
	case <-pub.started:
	case <-time.After(time.Second):
		t.Fatal("first event never reached the publisher")
	}
	for i := 1; i < 50; i++ {
		num := fmt.Sprintf("ORD-%d", i)
		n.publish(domain.OrderEvent{OrderNumber: num})
		want = append(want, num)
	}
	close(pub.gate)
	n.drain()

	pub.mu.Lock()
	got := numbers(pub.events)
	pub.mu.Unlock()
	assert.Equal(t, want, got)
}

func TestNotifierRestartsAfterIdle(t *testing.T) {
	pub := &recordingPublisher{}
	n := newNotifier(pub)

	n.publish(domain.OrderEvent{Type: domain.OrderEventCreated})
	n.drain()
	n.publish(domain.OrderEvent{Type: domain.OrderEventCancelled})
	n.drain()

	assert.Equal(t, []string{domain.OrderEventCreated, domain.OrderEventCancelled}, pub.types())
}

func TestNotifierWithoutPublisher(t *testing.T) {
	n := newNotifier(nil)
	n.publish(domain.OrderEvent{OrderNumber: "ORD-1"})
	n.drain()
}
