package fluentlogger

import (
	"fmt"
	"time"

	"github.com/fluent/fluent-logger-golang/fluent"
)

// Config - параметры подключения к Fluent Bit
type Config struct {
	Host      string
	Port      int
	TagPrefix string // префикс тегов сервиса, например "cian-monitor"
	// Async не блокирует вызывающего при недоступном Fluent Bit
	Async bool
}

// NewClient создает клиент Fluent Bit.
// Соединение проверяется только при первой отправке записи.
func NewClient(cfg Config) (*fluent.Fluent, error) {
	if cfg.TagPrefix == "" {
		return nil, fmt.Errorf("fluent bit tag prefix is required")
	}
	if cfg.Host == "" {
		return nil, fmt.Errorf("fluent bit host is required")
	}

	client, err := fluent.New(fluent.Config{
		FluentHost:   cfg.Host,
		FluentPort:   cfg.Port,
		TagPrefix:    cfg.TagPrefix,
		Async:        cfg.Async,
		Timeout:      3 * time.Second,
		WriteTimeout: 3 * time.Second,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create fluent bit client: %w", err)
	}
	return client, nil
}
