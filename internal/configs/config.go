package configs

import (
	"cian-monitor-service/internal/constants"
	"errors"
	"fmt"
	"io/fs"
	"log"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"
	_ "time/tzdata" // часовые пояса без системной tzdata в контейнере

	"github.com/joho/godotenv"
)

const (
	AdmissionBackendPostgres = "postgres"
	AdmissionBackendRedis    = "redis"
)

type DBConfig struct {
	URL      string
	MaxConns int
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

type RabbitMQConfig struct {
	Enabled bool
	URL     string
	// Сколько запросов на поиск обрабатывается одновременно
	Prefetch int
}

type StdoutLogConfig struct {
	Level string
	JSON  bool
}

type FluentBitConfig struct {
	Enabled bool
	Host    string
	Port    int
	Level   string
}

type HTTPConfig struct {
	Port           string
	AdminToken     string
	AllowedOrigins []string
	RequestTimeout time.Duration
}

type AdmissionConfig struct {
	Enabled  bool
	Backend  string
	Interval time.Duration
	Location *time.Location
}

type ProviderConfig struct {
	APIURL            string
	Origin            string
	RegionID          int
	PublishPeriod     int
	OfficeTypes       []int
	Timeout           time.Duration
	MaxRetries        int
	RetryDelay        time.Duration
	RequestsPerSecond float64
}

type SeenConfig struct {
	// 0 - хранить бессрочно
	RetentionDays int
}

// AppConfig хранит всю конфигурацию приложения
type AppConfig struct {
	AppName      string
	Database     DBConfig
	Redis        RedisConfig
	RabbitMQ     RabbitMQConfig
	FluentBit    FluentBitConfig
	StdoutLogger StdoutLogConfig
	HTTP         HTTPConfig
	Admission    AdmissionConfig
	Provider     ProviderConfig
	Seen         SeenConfig
}

// LoadConfig загружает конфигурацию из переменных окружения.
// Файл .env необязателен: переменные окружения процесса имеют приоритет.
func LoadConfig(envPath ...string) (*AppConfig, error) {
	var err error
	if len(envPath) > 0 {
		err = godotenv.Load(envPath...)
	} else {
		err = godotenv.Load()
	}
	if err != nil {
		if len(envPath) > 0 || !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("could not load .env file (path: %v): %w", envPath, err)
		}
		log.Printf("Info: .env file not found, using process environment only\n")
	}

	cfg := &AppConfig{}

	cfg.AppName = getEnvAsString("APP_NAME", "cian-monitor-service")

	cfg.Database.URL = os.Getenv("DATABASE_URL")
	if cfg.Database.URL == "" {
		return nil, fmt.Errorf("DATABASE_URL environment variable is required")
	}
	cfg.Database.MaxConns = getEnvAsInt("DATABASE_MAX_CONNS", 10)

	cfg.Admission.Enabled = getEnvAsBool("ADMISSION_ENABLED", true)
	cfg.Admission.Interval = getEnvAsDuration("ADMISSION_INTERVAL", 24*time.Hour)
	if cfg.Admission.Interval <= 0 {
		return nil, fmt.Errorf("ADMISSION_INTERVAL must be positive, got %s", cfg.Admission.Interval)
	}
	cfg.Admission.Backend = strings.ToLower(getEnvAsString("ADMISSION_BACKEND", AdmissionBackendPostgres))
	if cfg.Admission.Backend != AdmissionBackendPostgres && cfg.Admission.Backend != AdmissionBackendRedis {
		return nil, fmt.Errorf("ADMISSION_BACKEND must be %q or %q, got %q", AdmissionBackendPostgres, AdmissionBackendRedis, cfg.Admission.Backend)
	}
	tz := getEnvAsString("ADMISSION_TIMEZONE", "Europe/Moscow")
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return nil, fmt.Errorf("invalid ADMISSION_TIMEZONE %q: %w", tz, err)
	}
	cfg.Admission.Location = loc

	cfg.Redis.Addr = getEnvAsString("REDIS_ADDR", "localhost:6379")
	cfg.Redis.Password = getEnvAsString("REDIS_PASSWORD", "")
	cfg.Redis.DB = getEnvAsInt("REDIS_DB", 0)

	cfg.RabbitMQ.Enabled = getEnvAsBool("RABBITMQ_ENABLED", false)
	cfg.RabbitMQ.Prefetch = getEnvAsInt("RABBITMQ_PREFETCH", 4)
	if cfg.RabbitMQ.Enabled {
		cfg.RabbitMQ.URL = os.Getenv("RABBITMQ_URL")
		if cfg.RabbitMQ.URL == "" {
			return nil, fmt.Errorf("RABBITMQ_URL environment variable is required when RABBITMQ_ENABLED is true")
		}
	}

	cfg.FluentBit.Enabled = getEnvAsBool("FLUENTBIT_ENABLED", false)
	if cfg.FluentBit.Enabled {
		cfg.FluentBit.Host = os.Getenv("FLUENTBIT_HOST")
		if cfg.FluentBit.Host == "" {
			log.Println("WARNING: FLUENTBIT_ENABLED is true, but FLUENTBIT_HOST is not set. Disabling Fluent Bit.")
			cfg.FluentBit.Enabled = false
		}
		cfg.FluentBit.Port = getEnvAsInt("FLUENTBIT_PORT", 24224)
		cfg.FluentBit.Level = getEnvAsString("FLUENTBIT_LOG_LEVEL", "info")
	}

	cfg.StdoutLogger.Level = getEnvAsString("STDOUT_LOG_LEVEL", "debug")
	cfg.StdoutLogger.JSON = getEnvAsBool("STDOUT_LOG_JSON", false)

	cfg.HTTP.Port = getEnvAsString("HTTP_PORT", "8080")
	cfg.HTTP.AdminToken = os.Getenv("ADMIN_TOKEN")
	cfg.HTTP.AllowedOrigins = splitList(getEnvAsString("CORS_ALLOWED_ORIGINS", ""))
	cfg.HTTP.RequestTimeout = getEnvAsDuration("HTTP_REQUEST_TIMEOUT", 5*time.Minute)

	cfg.Provider.APIURL = getEnvAsString("CIAN_API_URL", constants.DefaultCianAPIURL)
	cfg.Provider.Origin = getEnvAsString("CIAN_ORIGIN", constants.DefaultCianOrigin)
	cfg.Provider.RegionID = getEnvAsInt("CIAN_REGION_ID", constants.DefaultCianRegionID)
	cfg.Provider.PublishPeriod = getEnvAsInt("CIAN_PUBLISH_PERIOD", constants.DefaultCianPublishPeriod)
	officeTypes, err := parseIntList(getEnvAsString("CIAN_OFFICE_TYPES", ""))
	if err != nil {
		return nil, fmt.Errorf("invalid CIAN_OFFICE_TYPES: %w", err)
	}
	if len(officeTypes) == 0 {
		officeTypes = append([]int(nil), constants.DefaultCianOfficeTypes...)
	}
	cfg.Provider.OfficeTypes = officeTypes
	cfg.Provider.Timeout = getEnvAsDuration("PROVIDER_TIMEOUT", 30*time.Second)
	cfg.Provider.MaxRetries = getEnvAsInt("PROVIDER_MAX_RETRIES", 3)
	cfg.Provider.RetryDelay = getEnvAsDuration("PROVIDER_RETRY_DELAY", 10*time.Second)
	cfg.Provider.RequestsPerSecond = getEnvAsFloat("PROVIDER_RPS", 0.2)

	cfg.Seen.RetentionDays = getEnvAsInt("SEEN_RETENTION_DAYS", 0)

	return cfg, nil
}

// ParseLogLevel переводит строку уровня в slog.Level, неизвестное значение дает info
func ParseLogLevel(levelStr string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(levelStr)) {
	case "debug":
		return slog.LevelDebug
	case "info", "":
		return slog.LevelInfo
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		log.Printf("Warning: Unknown log level '%s'. Defaulting to 'info'.", levelStr)
		return slog.LevelInfo
	}
}

func getEnvAsString(key string, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultValue
}

// getEnvAsInt возвращает значение по умолчанию, если переменная не разбирается как int
func getEnvAsInt(key string, defaultValue int) int {
	valueStr, exists := os.LookupEnv(key)
	if !exists {
		return defaultValue
	}
	valueInt, err := strconv.Atoi(strings.TrimSpace(valueStr))
	if err != nil {
		log.Printf("Warning: Environment variable %s (value: %s) could not be parsed as int: %v. Using default value: %d\n", key, valueStr, err, defaultValue)
		return defaultValue
	}
	return valueInt
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	valueStr, exists := os.LookupEnv(key)
	if !exists {
		return defaultValue
	}
	value, err := strconv.ParseFloat(strings.TrimSpace(valueStr), 64)
	if err != nil {
		log.Printf("Warning: Environment variable %s (value: %s) could not be parsed as float: %v. Using default value: %g\n", key, valueStr, err, defaultValue)
		return defaultValue
	}
	return value
}

func getEnvAsBool(key string, defaultValue bool) bool {
	valStr, exists := os.LookupEnv(key)
	if !exists {
		return defaultValue
	}
	valBool, err := strconv.ParseBool(strings.TrimSpace(valStr))
	if err != nil {
		log.Printf("Warning: Environment variable %s (value: %s) could not be parsed as bool: %v. Using default value: %t\n", key, valStr, err, defaultValue)
		return defaultValue
	}
	return valBool
}

// getEnvAsDuration принимает "90s", "24h" и т.п.; голое число считается секундами
func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valStr, exists := os.LookupEnv(key)
	if !exists {
		return defaultValue
	}
	valStr = strings.TrimSpace(valStr)
	if secs, err := strconv.Atoi(valStr); err == nil {
		return time.Duration(secs) * time.Second
	}
	d, err := time.ParseDuration(valStr)
	if err != nil {
		log.Printf("Warning: Environment variable %s (value: %s) could not be parsed as duration: %v. Using default value: %s\n", key, valStr, err, defaultValue)
		return defaultValue
	}
	return d
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func parseIntList(raw string) ([]int, error) {
	var out []int
	for _, part := range splitList(raw) {
		v, err := strconv.Atoi(part)
		if err != nil {
			return nil, fmt.Errorf("%q is not an integer", part)
		}
		out = append(out, v)
	}
	return out, nil
}
