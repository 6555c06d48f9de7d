package internal

import (
	"cian-monitor-service/internal/adapters/cianfetcher"
	logger_adapter "cian-monitor-service/internal/adapters/logger"
	postgres_adapter "cian-monitor-service/internal/adapters/postgres"
	rabbitmq_adapter "cian-monitor-service/internal/adapters/rabbitmq"
	redis_adapter "cian-monitor-service/internal/adapters/redis"
	"cian-monitor-service/internal/adapters/rest"
	"cian-monitor-service/internal/configs"
	"cian-monitor-service/internal/constants"
	"cian-monitor-service/internal/core/port"
	"cian-monitor-service/internal/core/usecase"
	fluentlogger "cian-monitor-service/pkg/fluent_logger"
	"cian-monitor-service/pkg/postgres"
	redisclient "cian-monitor-service/pkg/redis"
	"cian-monitor-service/pkg/rabbitmq/rabbitmq_common"
	"cian-monitor-service/pkg/rabbitmq/rabbitmq_consumer"
	"cian-monitor-service/pkg/rabbitmq/rabbitmq_producer"
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/fluent/fluent-logger-golang/fluent"
	goredis "github.com/go-redis/redis/v8"
	"github.com/jackc/pgx/v5/pgxpool"
)

const shutdownTimeout = 15 * time.Second

// App - структура приложения
type App struct {
	config        *configs.AppConfig
	dbPool        *pgxpool.Pool
	redisClient   *goredis.Client
	connManager   *rabbitmq_common.ConnectionManager
	eventProducer *rabbitmq_producer.Publisher
	fluentClient  *fluent.Fluent
	logger        port.LoggerPort

	server *rest.Server
	// nil, если RabbitMQ выключен
	fetchRequestsListener port.EventListenerPort
}

// NewApp - точка сборки: создает все зависимости и связывает их
func NewApp() (*App, error) {
	appConfig, err := configs.LoadConfig()
	if err != nil {
		return nil, fmt.Errorf("error loading application configuration: %w", err)
	}

	app := &App{config: appConfig}
	ok := false
	defer func() {
		if !ok {
			app.closeResources()
		}
	}()

	// --- 1. Логгеры ---
	if err := app.initLoggers(); err != nil {
		return nil, err
	}
	appLogger := app.logger.WithFields(port.Fields{"component": "app"})

	// --- 2. Хранилища ---
	initCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	app.dbPool, err = postgres.NewClient(initCtx, postgres.Config{
		DatabaseURL: appConfig.Database.URL,
		MaxConns:    int32(appConfig.Database.MaxConns),
	})
	if err != nil {
		appLogger.Error("Failed to connect to PostgreSQL", err, nil)
		return nil, fmt.Errorf("failed to connect to PostgreSQL: %w", err)
	}
	appLogger.Info("Successfully connected to PostgreSQL pool", nil)

	if err := postgres_adapter.EnsureSchema(initCtx, app.dbPool); err != nil {
		appLogger.Error("Failed to prepare database schema", err, nil)
		return nil, err
	}

	listingRepo, err := postgres_adapter.NewPostgresListingRepository(app.dbPool,
		postgres_adapter.WithSeenRetention(time.Duration(appConfig.Seen.RetentionDays)*24*time.Hour))
	if err != nil {
		return nil, err
	}
	sessionRepo, err := postgres_adapter.NewPostgresSessionRepository(app.dbPool)
	if err != nil {
		return nil, err
	}

	admissionStore, err := app.newAdmissionStore(initCtx)
	if err != nil {
		appLogger.Error("Failed to create admission store", err, port.Fields{"backend": appConfig.Admission.Backend})
		return nil, err
	}

	// --- 3. Провайдер ---
	fetcherCfg := cianfetcher.DefaultConfig()
	fetcherCfg.APIURL = appConfig.Provider.APIURL
	fetcherCfg.Origin = appConfig.Provider.Origin
	fetcherCfg.RegionID = appConfig.Provider.RegionID
	fetcherCfg.PublishPeriod = appConfig.Provider.PublishPeriod
	fetcherCfg.OfficeTypes = appConfig.Provider.OfficeTypes
	fetcherCfg.Timeout = appConfig.Provider.Timeout
	fetcherCfg.MaxRetries = appConfig.Provider.MaxRetries
	fetcherCfg.RetryDelay = appConfig.Provider.RetryDelay
	fetcherCfg.RequestsPerSecond = appConfig.Provider.RequestsPerSecond

	fetcher, err := cianfetcher.NewCianFetcherAdapter(fetcherCfg)
	if err != nil {
		appLogger.Error("Failed to create Cian fetcher", err, nil)
		return nil, err
	}

	// --- 4. События ---
	var eventsPublisher port.FetchEventsPublisherPort = rabbitmq_adapter.NoopFetchResultsPublisher{}
	if appConfig.RabbitMQ.Enabled {
		eventsPublisher, err = app.initRabbitMQPublisher()
		if err != nil {
			appLogger.Error("Failed to initialize RabbitMQ publisher", err, nil)
			return nil, err
		}
	}

	// --- 5. Сценарии ---
	gate := usecase.NewAdmissionGate(admissionStore, usecase.AdmissionGateConfig{
		Enabled:  appConfig.Admission.Enabled,
		Interval: appConfig.Admission.Interval,
		Location: appConfig.Admission.Location,
	})
	runFetchUC := usecase.NewRunFetchUseCase(gate, fetcher, listingRepo,
		usecase.WithSessionStore(sessionRepo),
		usecase.WithFetchEventsPublisher(eventsPublisher),
	)

	// --- 6. Входящие адаптеры ---
	handlers := rest.NewHandlers(
		runFetchUC,
		gate,
		usecase.NewGetListingsUseCase(listingRepo),
		usecase.NewCleanupListingsUseCase(listingRepo),
		usecase.NewGetStatisticsUseCase(listingRepo),
	)
	app.server = rest.NewServer(rest.ServerConfig{
		Port:           appConfig.HTTP.Port,
		AdminToken:     appConfig.HTTP.AdminToken,
		AllowedOrigins: appConfig.HTTP.AllowedOrigins,
		RequestTimeout: appConfig.HTTP.RequestTimeout,
	}, handlers, app.logger)

	if appConfig.RabbitMQ.Enabled {
		listener, err := app.initFetchRequestsListener(runFetchUC)
		if err != nil {
			appLogger.Error("Failed to create fetch requests listener", err, nil)
			return nil, err
		}
		app.fetchRequestsListener = listener
	}

	if appConfig.HTTP.AdminToken == "" {
		appLogger.Warn("ADMIN_TOKEN is empty, admin API is disabled", nil)
	}
	appLogger.Info("Application assembled", port.Fields{
		"admission_enabled":  appConfig.Admission.Enabled,
		"admission_backend":  appConfig.Admission.Backend,
		"admission_interval": appConfig.Admission.Interval.String(),
		"rabbitmq_enabled":   appConfig.RabbitMQ.Enabled,
	})

	ok = true
	return app, nil
}

func (a *App) initLoggers() error {
	var activeLoggers []port.LoggerPort

	stdoutLogger := logger_adapter.NewSlogAdapter(logger_adapter.SlogConfig{
		Level:    configs.ParseLogLevel(a.config.StdoutLogger.Level),
		IsJSON:   a.config.StdoutLogger.JSON,
		UseColor: !a.config.StdoutLogger.JSON,
	})
	activeLoggers = append(activeLoggers, stdoutLogger)

	if a.config.FluentBit.Enabled {
		client, err := fluentlogger.NewClient(fluentlogger.Config{
			Host:      a.config.FluentBit.Host,
			Port:      a.config.FluentBit.Port,
			TagPrefix: a.config.AppName,
			Async:     true,
		})
		if err != nil {
			stdoutLogger.Error("Failed to create fluentbit client", err, nil)
			return fmt.Errorf("failed to create fluentbit client: %w", err)
		}
		a.fluentClient = client

		fluentAdapter, err := logger_adapter.NewFluentLoggerAdapter(client, configs.ParseLogLevel(a.config.FluentBit.Level))
		if err != nil {
			stdoutLogger.Error("Failed to create fluentbit adapter", err, nil)
			return err
		}
		activeLoggers = append(activeLoggers, fluentAdapter)
	}

	multiLogger, err := logger_adapter.NewMultiloggerAdapter(activeLoggers...)
	if err != nil {
		return fmt.Errorf("failed to create multi-logger: %w", err)
	}

	a.logger = multiLogger.WithFields(port.Fields{"service_name": a.config.AppName})
	a.logger.Info("Logger system initialized", port.Fields{
		"active_loggers": len(activeLoggers),
		"fluent_enabled": a.config.FluentBit.Enabled,
	})
	return nil
}

func (a *App) newAdmissionStore(ctx context.Context) (port.AdmissionStorePort, error) {
	if a.config.Admission.Backend != configs.AdmissionBackendRedis {
		return postgres_adapter.NewPostgresAdmissionRepository(a.dbPool)
	}

	client, err := redisclient.NewClient(ctx, redisclient.Config{
		Addr:     a.config.Redis.Addr,
		Password: a.config.Redis.Password,
		DB:       a.config.Redis.DB,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}
	a.redisClient = client
	a.logger.Info("Admission records are kept in Redis", port.Fields{"addr": a.config.Redis.Addr})
	return redis_adapter.NewRedisAdmissionRepository(client)
}

func (a *App) initRabbitMQPublisher() (port.FetchEventsPublisherPort, error) {
	connBridge := rabbitmq_adapter.NewPkgLoggerBridge(a.logger.WithFields(port.Fields{"component": "rabbitmq_conn_manager"}))
	connManager, err := rabbitmq_common.NewConnectionManager(rabbitmq_common.Config{URL: a.config.RabbitMQ.URL}, connBridge)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection manager: %w", err)
	}
	a.connManager = connManager

	producer, err := rabbitmq_producer.NewPublisher(rabbitmq_producer.PublisherConfig{
		Config:                   rabbitmq_common.Config{URL: a.config.RabbitMQ.URL},
		ExchangeName:             constants.MainExchange,
		ExchangeType:             "direct",
		DurableExchange:          true,
		DeclareExchangeIfMissing: true,
		Logger:                   rabbitmq_adapter.NewPkgLoggerBridge(a.logger.WithFields(port.Fields{"component": "rabbitmq_producer"})),
	}, connManager)
	if err != nil {
		return nil, fmt.Errorf("failed to create event producer: %w", err)
	}
	a.eventProducer = producer

	return rabbitmq_adapter.NewFetchResultsPublisherAdapter(producer, constants.RoutingKeyFetchResults)
}

func (a *App) initFetchRequestsListener(runFetchUC *usecase.RunFetchUseCase) (*rabbitmq_adapter.FetchRequestsConsumerAdapter, error) {
	consumerCfg := rabbitmq_consumer.ConsumerConfig{
		Config:                 rabbitmq_common.Config{URL: a.config.RabbitMQ.URL},
		QueueName:              constants.QueueFetchRequests,
		DeclareQueue:           true,
		DurableQueue:           true,
		ExchangeNameForBind:    constants.MainExchange,
		DeclareExchangeForBind: true,
		ExchangeTypeForBind:    "direct",
		DurableExchangeForBind: true,
		RoutingKeyForBind:      constants.RoutingKeyFetchRequests,
		PrefetchCount:          a.config.RabbitMQ.Prefetch,
		ConsumerTag:            a.config.AppName + "-fetch-requests",

		EnableRetryMechanism: true,
		RetryExchange:        constants.RetryExchangeFetchRequests,
		RetryQueue:           constants.RetryQueueFetchRequests,
		RetryTTL:             constants.RetryTTLMs,
		FinalDLXExchange:     constants.FinalDLXExchange,
		FinalDLQ:             constants.FinalDLQ,
		FinalDLQRoutingKey:   constants.FinalDLQRoutingKey,
		MaxRetries:           constants.MaxFetchRequestRetries,
	}
	return rabbitmq_adapter.NewFetchRequestsConsumerAdapter(consumerCfg, runFetchUC, a.logger, a.connManager)
}

// Run запускает компоненты и блокируется до сигнала или отказа одного из них
func (a *App) Run() error {
	appCtx, cancelApp := context.WithCancel(context.Background())
	defer cancelApp()

	var wg sync.WaitGroup
	componentErrors := make(chan error, 2)

	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := a.server.Start(); err != nil {
			componentErrors <- fmt.Errorf("rest server: %w", err)
		}
	}()

	if a.fetchRequestsListener != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			listenerLogger := a.logger.WithFields(port.Fields{"listener_name": "Fetch Requests Listener"})
			listenerLogger.Info("Starting listener...", nil)
			if err := a.fetchRequestsListener.Start(appCtx); err != nil {
				listenerLogger.Error("Listener stopped with an unexpected error", err, nil)
				componentErrors <- fmt.Errorf("fetch requests listener: %w", err)
				return
			}
			listenerLogger.Info("Listener stopped gracefully due to context cancellation", nil)
		}()
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(quit)

	a.logger.Info("Application running. Waiting for signals...", nil)

	var runErr error
	select {
	case sig := <-quit:
		a.logger.Warn("Received signal, shutting down", port.Fields{"signal": sig.String()})
	case runErr = <-componentErrors:
		a.logger.Error("A critical component failed, shutting down", runErr, nil)
	}

	cancelApp()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := a.server.Stop(shutdownCtx); err != nil {
		a.logger.Error("Error stopping REST server", err, nil)
	}

	a.logger.Info("Waiting for background processes to finish...", nil)
	wg.Wait()

	a.closeResources()
	return runErr
}

// closeResources закрывает все, что успело открыться; порядок обратный созданию
func (a *App) closeResources() {
	logf := func(msg string, err error) {
		if a.logger != nil {
			a.logger.Error(msg, err, nil)
			return
		}
		log.Printf("App: %s: %v\n", msg, err)
	}

	if a.fetchRequestsListener != nil {
		if err := a.fetchRequestsListener.Close(); err != nil {
			logf("Error closing fetch requests listener", err)
		}
	}
	if a.eventProducer != nil {
		if err := a.eventProducer.Close(); err != nil {
			logf("Error closing event producer", err)
		}
	}
	if a.connManager != nil {
		if err := a.connManager.Close(); err != nil {
			logf("Error closing RabbitMQ connection manager", err)
		}
	}
	if a.redisClient != nil {
		if err := a.redisClient.Close(); err != nil {
			logf("Error closing Redis client", err)
		}
	}
	if a.dbPool != nil {
		a.dbPool.Close()
	}

	if a.logger != nil {
		a.logger.Info("Application shut down", nil)
	}
	if a.fluentClient != nil {
		if err := a.fluentClient.Close(); err != nil {
			log.Printf("App: Error closing fluent client: %v\n", err)
		}
	}
}
