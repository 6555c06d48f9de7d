package rabbitmq

import (
	"cian-monitor-service/internal/constants"
	"cian-monitor-service/internal/contextkeys"
	"cian-monitor-service/internal/core/domain"
	"cian-monitor-service/internal/core/port"
	"cian-monitor-service/internal/core/port/usecases_port"
	"cian-monitor-service/pkg/rabbitmq/rabbitmq_common"
	"cian-monitor-service/pkg/rabbitmq/rabbitmq_consumer"
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
)

// FetchRequestsConsumerAdapter запускает циклы поиска по сообщениям из очереди
type FetchRequestsConsumerAdapter struct {
	consumer   *rabbitmq_consumer.DistributingConsumer
	runFetchUC usecases_port.RunFetchUseCase
	logger     port.LoggerPort
}

func NewFetchRequestsConsumerAdapter(
	consumerCfg rabbitmq_consumer.ConsumerConfig,
	runFetchUC usecases_port.RunFetchUseCase,
	logger port.LoggerPort,
	connManager *rabbitmq_common.ConnectionManager,
) (*FetchRequestsConsumerAdapter, error) {
	adapter := &FetchRequestsConsumerAdapter{
		runFetchUC: runFetchUC,
		logger:     logger,
	}

	pkgLogger := logger.WithFields(port.Fields{"component": "rabbitmq_distributing_consumer", "consumer_tag": consumerCfg.ConsumerTag})
	consumerCfg.Logger = NewPkgLoggerBridge(pkgLogger)

	consumer, err := rabbitmq_consumer.NewDistributingConsumer(consumerCfg, adapter.messageHandler, connManager)
	if err != nil {
		return nil, fmt.Errorf("failed to create RabbitMQ consumer for fetch requests: %w", err)
	}
	adapter.consumer = consumer
	return adapter, nil
}

func (a *FetchRequestsConsumerAdapter) messageHandler(ctx context.Context, d amqp.Delivery) error {
	traceID, ok := d.Headers[constants.HeaderTraceID].(string)
	if !ok || traceID == "" {
		traceID = uuid.New().String()
	}

	msgLogger := a.logger.WithFields(port.Fields{
		"trace_id":     traceID,
		"delivery_tag": d.DeliveryTag,
	})
	ctx = contextkeys.ContextWithLogger(ctx, msgLogger)
	ctx = contextkeys.ContextWithTraceID(ctx, traceID)

	req, mode, err := parseFetchRequest(d.Body)
	if err != nil {
		// повтор не поможет
		msgLogger.Error("Invalid fetch request, dropping message", err, nil)
		return nil
	}

	msgLogger.Info("Received fetch request", port.Fields{"user_id": req.UserID, "mode": string(mode)})

	result, err := a.runFetchUC.Execute(ctx, req.UserID, mode)
	if err != nil {
		if errors.Is(err, domain.ErrProviderUnavailable) {
			// пусть сообщение уйдет на отложенный повтор
			return err
		}
		msgLogger.Error("Fetch request failed", err, nil)
		return nil
	}
	if result.Blocked {
		msgLogger.Info("Fetch request blocked by admission gate", nil)
	}
	return nil
}

func parseFetchRequest(body []byte) (FetchRequestDTO, domain.FetchMode, error) {
	var req FetchRequestDTO
	if err := json.Unmarshal(body, &req); err != nil {
		return req, "", fmt.Errorf("unmarshal error: %w", err)
	}
	if req.UserID == "" {
		return req, "", domain.ErrInvalidUserID
	}
	mode, err := domain.ParseFetchMode(req.Mode)
	if err != nil {
		return req, "", err
	}
	return req, mode, nil
}

// Start реализует EventListenerPort
func (a *FetchRequestsConsumerAdapter) Start(ctx context.Context) error {
	return a.consumer.StartConsuming(ctx)
}

// Close реализует EventListenerPort
func (a *FetchRequestsConsumerAdapter) Close() error {
	return a.consumer.Close()
}
