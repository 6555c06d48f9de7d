package postgres

import (
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
)

func TestConcurrentCreate(t *testing.T) {
	assert.True(t, concurrentCreate(&pgconn.PgError{Code: "23505"}))
	assert.True(t, concurrentCreate(fmt.Errorf("exec: %w", &pgconn.PgError{Code: "42P07"})))
	assert.False(t, concurrentCreate(&pgconn.PgError{Code: "42601"}))
	assert.False(t, concurrentCreate(errors.New("connection refused")))
}
