package kafka

import (
	"context"
	"strings"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/RaikyD/storefront-orders/internal/application"
	"github.com/RaikyD/storefront-orders/internal/domain"
	"github.com/RaikyD/storefront-orders/internal/logger"
)

// signatureHeader carries the provider signature of a relayed webhook payload.
const signatureHeader = "stripe-signature"

type ConsumerConfig struct {
	Brokers string
	Topic   string
	GroupID string
	// MaxAttempts bounds retries of a transient failure before the message is skipped.
	MaxAttempts int
	Backoff     time.Duration
}

// EventHandler is satisfied by application.PaymentReconciler.
type EventHandler interface {
	HandleProviderEvent(ctx context.Context, payload []byte, signature string) (application.Outcome, error)
}

type messageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// StartConsumer reads relayed provider events and reconciles them one by one. Offsets are
// committed only after the reconciler has acknowledged the event.
func StartConsumer(ctx context.Context, h EventHandler, cfg ConsumerConfig) (*kafka.Reader, error) {
	brokers := strings.Split(cfg.Brokers, ",")

	r := kafka.NewReader(kafka.ReaderConfig{
		Brokers:         brokers,
		GroupID:         cfg.GroupID,
		Topic:           cfg.Topic,
		MinBytes:        1,
		MaxBytes:        10e6,
		CommitInterval:  0,
		StartOffset:     kafka.FirstOffset,
		ReadLagInterval: -1,
	})

	logger.Info("kafka consumer starting", "brokers", cfg.Brokers, "topic", cfg.Topic, "group", cfg.GroupID)

	go consume(ctx, r, h, cfg)
	return r, nil
}

func consume(ctx context.Context, r messageReader, h EventHandler, cfg ConsumerConfig) {
	defer r.Close()

	backoff := cfg.Backoff
	if backoff <= 0 {
		backoff = 300 * time.Millisecond
	}
	maxAttempts := cfg.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = 5
	}

	for {
		m, err := r.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			logger.Warn("kafka fetch error", "err", err)
			if !sleep(ctx, backoff) {
				return
			}
			continue
		}

		if !handle(ctx, h, m, maxAttempts, backoff) {
			return
		}

		if err := r.CommitMessages(ctx, m); err != nil {
			logger.Warn("kafka commit failed", "partition", m.Partition, "offset", m.Offset, "err", err)
		}
	}
}

// handle returns false only when ctx is done before the message was settled.
func handle(ctx context.Context, h EventHandler, m kafka.Message, maxAttempts int, backoff time.Duration) bool {
	signature := headerValue(m, signatureHeader)
	for attempt := 1; ; attempt++ {
		outcome, err := h.HandleProviderEvent(ctx, m.Value, signature)
		if err == nil {
			logger.Debug("provider event settled", "partition", m.Partition, "offset", m.Offset, "outcome", outcome)
			return true
		}
		if ctx.Err() != nil {
			return false
		}
		if domain.KindOf(err) != domain.KindTransient {
			// Redelivery cannot fix a bad signature or payload.
			logger.Warn("provider event dropped", "partition", m.Partition, "offset", m.Offset, "err", err)
			return true
		}
		if attempt >= maxAttempts {
			logger.Error("provider event skipped after retries", "partition", m.Partition, "offset", m.Offset,
				"attempts", attempt, "err", err)
			return true
		}
		logger.Warn("provider event failed, will retry", "attempt", attempt, "err", err)
		if !sleep(ctx, backoff*time.Duration(attempt)) {
			return false
		}
	}
}

func headerValue(m kafka.Message, key string) string {
	for _, h := range m.Headers {
		if strings.EqualFold(h.Key, key) {
			return string(h.Value)
		}
	}
	return ""
}

func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
