package rabbitmq

import (
	"cian-monitor-service/internal/constants"
	"cian-monitor-service/internal/contextkeys"
	"cian-monitor-service/internal/contracts"
	"cian-monitor-service/internal/core/domain"
	"cian-monitor-service/internal/core/port"
	"context"
	"encoding/json"
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

const publishTimeout = 10 * time.Second

// AMQPPublisher - то, что адаптеру нужно от rabbitmq_producer.Publisher
type AMQPPublisher interface {
	Publish(ctx context.Context, routingKey string, msg amqp.Publishing) error
}

// FetchResultsPublisherAdapter отправляет FetchResultEvent слою бота
type FetchResultsPublisherAdapter struct {
	producer   AMQPPublisher
	routingKey string
}

func NewFetchResultsPublisherAdapter(producer AMQPPublisher, routingKey string) (*FetchResultsPublisherAdapter, error) {
	if producer == nil {
		return nil, fmt.Errorf("rabbitmq adapter: producer cannot be nil")
	}
	if routingKey == "" {
		return nil, fmt.Errorf("rabbitmq adapter: routingKey cannot be empty")
	}
	return &FetchResultsPublisherAdapter{producer: producer, routingKey: routingKey}, nil
}

func (a *FetchResultsPublisherAdapter) PublishFetchResult(ctx context.Context, event domain.FetchResultEvent) error {
	adapterLogger := contextkeys.LoggerFromContext(ctx).WithFields(port.Fields{
		"component":   "FetchResultsPublisherAdapter",
		"routing_key": a.routingKey,
		"event_id":    event.EventID.String(),
		"outcome":     string(event.Outcome),
	})

	body, err := json.Marshal(toFetchResultEventDTO(event))
	if err != nil {
		return fmt.Errorf("rabbitmq adapter: failed to marshal fetch result event: %w", err)
	}

	// Невалидное событие не отправляется
	if err := contracts.ValidateEvent(constants.EventTypeFetchResult, constants.EventVersionFetchResult, body); err != nil {
		adapterLogger.Error("Fetch result event does not match its schema", err, nil)
		return fmt.Errorf("rabbitmq adapter: invalid fetch result event: %w", err)
	}

	msg := amqp.Publishing{
		ContentType:  "application/json",
		Body:         body,
		DeliveryMode: amqp.Persistent,
		Timestamp:    time.Now(),
		MessageId:    event.EventID.String(),
		Headers: amqp.Table{
			constants.HeaderEventType:    constants.EventTypeFetchResult,
			constants.HeaderEventVersion: constants.EventVersionFetchResult,
		},
	}
	if traceID := contextkeys.TraceIDFromContext(ctx); traceID != "" {
		msg.Headers[constants.HeaderTraceID] = traceID
	}

	publishCtx, cancel := context.WithTimeout(ctx, publishTimeout)
	defer cancel()

	if err := a.producer.Publish(publishCtx, a.routingKey, msg); err != nil {
		adapterLogger.Error("Failed to publish fetch result event", err, nil)
		return fmt.Errorf("rabbitmq adapter: failed to publish fetch result event %s: %w", event.EventID, err)
	}

	adapterLogger.Debug("Fetch result event published", port.Fields{"listings": len(event.Listings)})
	return nil
}

// NoopFetchResultsPublisher используется, когда RabbitMQ выключен
type NoopFetchResultsPublisher struct{}

func (NoopFetchResultsPublisher) PublishFetchResult(ctx context.Context, event domain.FetchResultEvent) error {
	contextkeys.LoggerFromContext(ctx).Debug("Event publishing disabled, fetch result dropped", port.Fields{
		"event_id": event.EventID.String(),
	})
	return nil
}
