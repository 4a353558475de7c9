package application

import (
	"context"
	"sync"
	"time"

	"github.com/RaikyD/storefront-orders/internal/domain"
	"github.com/RaikyD/storefront-orders/internal/logger"
)

const publishTimeout = 5 * time.Second

// Publisher delivers committed order events to downstream consumers.
type Publisher interface {
	PublishOrderEvent(ctx context.Context, ev domain.OrderEvent) error
}

// notifier publishes in the background; callers never wait for delivery. Events leave in the
// order they were queued: at most one worker runs at a time and it exits once the queue is empty.
type notifier struct {
	pub Publisher

	mu      sync.Mutex
	queue   []domain.OrderEvent
	running bool
	wg      sync.WaitGroup
}

func newNotifier(pub Publisher) *notifier {
	return &notifier{pub: pub}
}

func (n *notifier) publish(ev domain.OrderEvent) {
	if n.pub == nil {
		return
	}
	n.mu.Lock()
	defer n.mu.Unlock()
	n.queue = append(n.queue, ev)
	if !n.running {
		n.running = true
		n.wg.Add(1)
		go n.run()
	}
}

func (n *notifier) run() {
	defer n.wg.Done()
	for {
		n.mu.Lock()
		if len(n.queue) == 0 {
			n.running = false
			n.mu.Unlock()
			return
		}
		ev := n.queue[0]
		n.queue = n.queue[1:]
		n.mu.Unlock()

		n.send(ev)
	}
}

func (n *notifier) send(ev domain.OrderEvent) {
	ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
	defer cancel()
	if err := n.pub.PublishOrderEvent(ctx, ev); err != nil {
		logger.Warn("order event publish failed", "order_number", ev.OrderNumber, "type", ev.Type, "err", err)
	}
}

// drain waits until every queued event has been handed to the publisher.
func (n *notifier) drain() {
	n.wg.Wait()
}
