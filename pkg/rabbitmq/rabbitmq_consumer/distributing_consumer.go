package rabbitmq_consumer

import (
	"cian-monitor-service/pkg/rabbitmq/rabbitmq_common"
	"context"
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

// MessageHandler обрабатывает одно сообщение; ack/nack решает потребитель по возвращенной ошибке
type MessageHandler func(ctx context.Context, delivery amqp.Delivery) error

// DistributingConsumer раздает сообщения обработчикам в отдельных горутинах
type DistributingConsumer struct {
	base    *baseConsumer
	handler MessageHandler
	slots   chan struct{}
}

func NewDistributingConsumer(cfg ConsumerConfig, handler MessageHandler, connManager *rabbitmq_common.ConnectionManager) (*DistributingConsumer, error) {
	if handler == nil {
		return nil, fmt.Errorf("distributing consumer: message handler is required")
	}

	bc, err := newBaseConsumer(cfg, connManager)
	if err != nil {
		return nil, fmt.Errorf("distributing consumer: %w", err)
	}

	return &DistributingConsumer{
		base:    bc,
		handler: handler,
		slots:   make(chan struct{}, concurrency(cfg)),
	}, nil
}

func concurrency(cfg ConsumerConfig) int {
	switch {
	case cfg.MaxConcurrent > 0:
		return cfg.MaxConcurrent
	case cfg.PrefetchCount > 0:
		return cfg.PrefetchCount
	default:
		return 1
	}
}

// StartConsuming блокируется до отмены ctx (возвращает nil) или закрытия соединения (возвращает ошибку)
func (c *DistributingConsumer) StartConsuming(ctx context.Context) error {
	b := c.base
	if b.channel == nil || b.connection == nil || b.connection.IsClosed() {
		return fmt.Errorf("distributing consumer: not connected")
	}

	msgs, err := b.channel.Consume(b.config.QueueName, b.config.ConsumerTag, false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("distributing consumer: failed to consume from queue '%s': %w", b.config.QueueName, err)
	}
	b.Logger.Info("Waiting for messages", "queue", b.config.QueueName)

	notifyClose := b.connection.NotifyClose(make(chan *amqp.Error, 1))

	for {
		select {
		case <-ctx.Done():
			b.Logger.Info("Context cancelled, stopping consumer", "queue", b.config.QueueName)
			return nil

		case amqpErr := <-notifyClose:
			if amqpErr == nil {
				return fmt.Errorf("distributing consumer: connection closed")
			}
			b.Logger.Error(amqpErr, "Connection closed", "queue", b.config.QueueName)
			return amqpErr

		case d, ok := <-msgs:
			if !ok {
				b.Logger.Warn("Deliveries channel closed", "queue", b.config.QueueName)
				return fmt.Errorf("distributing consumer: deliveries channel closed")
			}

			select {
			case c.slots <- struct{}{}:
			case <-ctx.Done():
				// сообщение вернется в очередь после закрытия канала
				_ = d.Nack(false, true)
				return nil
			}

			b.wg.Add(1)
			go func(delivery amqp.Delivery) {
				defer b.wg.Done()
				defer func() { <-c.slots }()
				c.process(ctx, delivery)
			}(d)
		}
	}
}

func (c *DistributingConsumer) process(ctx context.Context, d amqp.Delivery) {
	b := c.base

	// обработка доводится до конца и при остановке потребителя
	err := c.handler(context.WithoutCancel(ctx), d)
	if err == nil {
		_ = d.Ack(false)
		b.Logger.Debug("Message acked", "delivery_tag", d.DeliveryTag)
		return
	}

	b.Logger.Error(err, "Handler failed", "delivery_tag", d.DeliveryTag)

	if !b.config.EnableRetryMechanism {
		_ = d.Nack(false, false)
		return
	}

	deaths := deathCount(d.Headers, b.config.QueueName)
	if deaths < int64(b.config.MaxRetries) {
		b.Logger.Info("Message sent to retry", "delivery_tag", d.DeliveryTag, "death_count", deaths)
		_ = d.Nack(false, false)
		return
	}

	pubErr := b.finalDlxPublisher.Publish(context.Background(), b.config.FinalDLQRoutingKey, amqp.Publishing{
		ContentType:  d.ContentType,
		Body:         d.Body,
		Headers:      d.Headers,
		Timestamp:    time.Now(),
		DeliveryMode: amqp.Persistent,
	})
	if pubErr != nil {
		b.Logger.Error(pubErr, "Failed to publish to final DLX, message stays in retry loop", "delivery_tag", d.DeliveryTag)
		_ = d.Nack(false, false)
		return
	}
	b.Logger.Warn("Max retries reached, message moved to final DLQ", "delivery_tag", d.DeliveryTag)
	_ = d.Ack(false)
}

func (c *DistributingConsumer) Close() error {
	return c.base.Close()
}
