package constants

const MainExchange = "cian_monitor_exchange"

// Имена очередей
const (
	QueueFetchRequests = "cian_fetch_requests"
)

// Ключи маршрутизации
const (
	RoutingKeyFetchRequests = "cian.fetch.requests"
	RoutingKeyFetchResults  = "notify.fetch.completed"
)

const (
	FinalDLXExchange   = "cian_fetch_requests_final_dlx"
	FinalDLQ           = "cian_fetch_requests_final_dlq"
	FinalDLQRoutingKey = "fetch_requests.dlq.key"
)

// Заголовки сообщений
const (
	HeaderTraceID      = "x-trace-id"
	HeaderEventType    = "x-event-type"
	HeaderEventVersion = "x-event-version"
)

// Отложенные повторы запросов на поиск
const (
	RetryExchangeFetchRequests = "cian_fetch_requests_retry_exchange"
	RetryQueueFetchRequests    = "cian_fetch_requests_retry_wait"
	RetryTTLMs                 = 30000
	MaxFetchRequestRetries     = 3
)

const (
	EventTypeFetchResult    = "FetchResultEvent"
	EventVersionFetchResult = "1.0.0"
)
