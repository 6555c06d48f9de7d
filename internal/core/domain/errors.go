package domain

import "errors"

var (
	// ErrStorage - ошибка записи в хранилище
	ErrStorage = errors.New("storage error")
	// ErrProviderUnavailable - провайдер не ответил, ответил не 2xx или вернул некорректное тело
	ErrProviderUnavailable = errors.New("offers provider unavailable")
	// ErrRecordUnusable - из сырой записи нельзя извлечь идентификатор
	ErrRecordUnusable = errors.New("record unusable")

	ErrListingNotFound = errors.New("listing not found")
	ErrInvalidMode     = errors.New("invalid fetch mode")
	ErrInvalidUserID   = errors.New("invalid user id")
)
