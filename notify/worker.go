package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"

	"github.com/streadway/amqp"
)

// Deliverer turns an email event into an outgoing email
type Deliverer interface {
	Deliver(ctx context.Context, event Event) error
}

// EmailWorker consumes email events from the broker and hands them to a Deliverer
type EmailWorker struct {
	connection AMQPConnection
	channel    AMQPChannel
	config     RabbitMQConfig
	deliverer  Deliverer
}

// NewEmailWorker connects to the broker for consuming
func NewEmailWorker(cfg RabbitMQConfig, deliverer Deliverer) (*EmailWorker, error) {
	return NewEmailWorkerWithDialer(cfg, RealAMQPDialer{}, deliverer)
}

// NewEmailWorkerWithDialer is NewEmailWorker with an injected dialer
func NewEmailWorkerWithDialer(cfg RabbitMQConfig, dialer AMQPDialer, deliverer Deliverer) (*EmailWorker, error) {
	conn, ch, err := openChannel(cfg, dialer)
	if err != nil {
		return nil, err
	}
	return &EmailWorker{connection: conn, channel: ch, config: cfg, deliverer: deliverer}, nil
}

// Run consumes both email queues until ctx is cancelled or the broker closes the deliveries
func (w *EmailWorker) Run(ctx context.Context) error {
	queues := map[string]Kind{
		w.config.VerificationQueue:  KindVerification,
		w.config.PasswordResetQueue: KindPasswordReset,
	}

	consumers := make(map[string]<-chan amqp.Delivery, len(queues))
	for queue := range queues {
		deliveries, err := w.channel.Consume(queue, "", false, false, false, false, nil)
		if err != nil {
			return fmt.Errorf("failed to consume %s: %w", queue, err)
		}
		consumers[queue] = deliveries
	}

	var wg sync.WaitGroup
	for queue, deliveries := range consumers {
		wg.Add(1)
		go func(queue string, kind Kind, deliveries <-chan amqp.Delivery) {
			defer wg.Done()
			for {
				select {
				case <-ctx.Done():
					return
				case d, ok := <-deliveries:
					if !ok {
						return
					}
					w.handle(ctx, queue, kind, d)
				}
			}
		}(queue, queues[queue], deliveries)
	}

	wg.Wait()
	return ctx.Err()
}

func (w *EmailWorker) handle(ctx context.Context, queue string, kind Kind, d amqp.Delivery) {
	var event Event
	if err := json.Unmarshal(d.Body, &event); err != nil {
		slog.Error("Discarding malformed email event", "queue", queue, "error", err)
		w.settle(d, false)
		return
	}
	if event.Kind == "" {
		event.Kind = kind
	}

	if err := w.deliverer.Deliver(ctx, event); err != nil {
		slog.Error("Email delivery failed", "queue", queue, "kind", event.Kind, "error", err)
		w.settle(d, false)
		return
	}
	w.settle(d, true)
}

// settle acks or rejects without requeue. Deliveries created outside a channel have no acknowledger.
func (w *EmailWorker) settle(d amqp.Delivery, ok bool) {
	if d.Acknowledger == nil {
		return
	}
	var err error
	if ok {
		err = d.Ack(false)
	} else {
		err = d.Nack(false, false)
	}
	if err != nil {
		slog.Error("Failed to settle delivery", "delivery_tag", d.DeliveryTag, "error", err)
	}
}

// Close closes the channel and connection
func (w *EmailWorker) Close() error {
	if w.channel != nil {
		w.channel.Close()
	}
	if w.connection != nil {
		return w.connection.Close()
	}
	return nil
}
