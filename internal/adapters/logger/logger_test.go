package logger_adapter

import (
	"bytes"
	"cian-monitor-service/internal/core/port"
	"encoding/json"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type postedRecord struct {
	tag  string
	data map[string]interface{}
}

type recordingPoster struct {
	posts  []postedRecord
	closed bool
}

func (p *recordingPoster) Post(tag string, message interface{}) error {
	p.posts = append(p.posts, postedRecord{tag: tag, data: message.(map[string]interface{})})
	return nil
}

func (p *recordingPoster) Close() error {
	p.closed = true
	return nil
}

func TestSlogAdapter_JSONWithFields(t *testing.T) {
	var buf bytes.Buffer
	logger := NewSlogAdapter(SlogConfig{Writer: &buf, Level: slog.LevelDebug, IsJSON: true})

	logger.WithFields(port.Fields{"component": "AdmissionGate"}).
		Error("Failed to save admission record", errors.New("boom"), port.Fields{"user_id": "u1"})

	var line map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "ERROR", line["level"])
	assert.Equal(t, "Failed to save admission record", line["msg"])
	assert.Equal(t, "AdmissionGate", line["component"])
	assert.Equal(t, "u1", line["user_id"])
	assert.Equal(t, "boom", line["err"])
}

func TestSlogAdapter_RespectsLevel(t *testing.T) {
	var buf bytes.Buffer
	logger := NewSlogAdapter(SlogConfig{Writer: &buf, Level: slog.LevelWarn})

	logger.Debug("hidden", nil)
	logger.Info("hidden", nil)
	assert.Zero(t, buf.Len())

	logger.Warn("shown", nil)
	assert.Contains(t, buf.String(), "shown")
}

func TestFluentLoggerAdapter(t *testing.T) {
	poster := &recordingPoster{}
	adapter, err := NewFluentLoggerAdapter(poster, slog.LevelInfo)
	require.NoError(t, err)
	adapter.now = func() time.Time { return time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC) }

	child := adapter.WithFields(port.Fields{"use_case": "RunFetch"})
	child.Debug("dropped", nil)
	child.Info("Fetch cycle finished", port.Fields{"new_count": 2})
	child.Error("Offers provider call failed", errors.New("timeout"), nil)

	require.Len(t, poster.posts, 2)
	assert.Equal(t, "info", poster.posts[0].tag)
	assert.Equal(t, "RunFetch", poster.posts[0].data["use_case"])
	assert.Equal(t, 2, poster.posts[0].data["new_count"])
	assert.Equal(t, "2025-01-02T03:04:05Z", poster.posts[0].data["timestamp"])
	assert.Equal(t, "error", poster.posts[1].tag)
	assert.Equal(t, "timeout", poster.posts[1].data["error"])

	// родительский логгер не получает поля дочернего
	adapter.Warn("plain", nil)
	_, has := poster.posts[2].data["use_case"]
	assert.False(t, has)

	require.NoError(t, adapter.Close())
	assert.True(t, poster.closed)
}

func TestNewFluentLoggerAdapter_NilClient(t *testing.T) {
	_, err := NewFluentLoggerAdapter(nil, nil)
	assert.Error(t, err)
}

func TestMultiLogger(t *testing.T) {
	_, err := NewMultiloggerAdapter()
	assert.Error(t, err)

	p1, p2 := &recordingPoster{}, &recordingPoster{}
	a1, _ := NewFluentLoggerAdapter(p1, nil)
	a2, _ := NewFluentLoggerAdapter(p2, nil)

	single, err := NewMultiloggerAdapter(a1, nil)
	require.NoError(t, err)
	assert.Same(t, a1, single)

	multi, err := NewMultiloggerAdapter(a1, a2)
	require.NoError(t, err)
	multi.WithFields(port.Fields{"k": "v"}).Info("hello", nil)

	require.Len(t, p1.posts, 1)
	require.Len(t, p2.posts, 1)
	assert.Equal(t, "v", p2.posts[0].data["k"])
}
