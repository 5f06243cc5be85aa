package logger_test

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eduforge/taskq/pkg/logger"
	"github.com/eduforge/taskq/pkg/tenant"
)

func logLine(t *testing.T, buf *bytes.Buffer) map[string]any {
	t.Helper()
	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	return line
}

func TestNew_JSONWithStaticAttrs(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	log := logger.New(
		logger.WithOutput(&buf),
		logger.WithAttr(slog.String("service", "taskq-worker")),
	)
	log.Info("pool started", slog.Int("concurrency", 4))

	line := logLine(t, &buf)
	assert.Equal(t, "pool started", line["msg"])
	assert.Equal(t, "taskq-worker", line["service"])
	assert.EqualValues(t, 4, line["concurrency"])
}

func TestNew_LevelFilter(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	log := logger.New(logger.WithOutput(&buf), logger.WithLevel(slog.LevelWarn))
	log.Info("dropped")
	assert.Zero(t, buf.Len())

	log.Warn("kept")
	assert.NotZero(t, buf.Len())
}

func TestNew_TextFormat(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	log := logger.New(logger.WithOutput(&buf), logger.WithFormat(logger.FormatText))
	log.Info("hello")
	assert.Contains(t, buf.String(), "msg=hello")
}

func TestNew_InvalidFormatPanics(t *testing.T) {
	t.Parallel()

	assert.Panics(t, func() {
		logger.New(logger.WithFormat(logger.Format("xml")))
	})
}

func TestContextExtractors(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	log := logger.New(
		logger.WithOutput(&buf),
		logger.WithContextExtractors(tenant.LoggerExtractor()),
	)

	orgID := uuid.New()
	ctx := tenant.WithContext(context.Background(), tenant.New(orgID))
	log.InfoContext(ctx, "handler done")

	line := logLine(t, &buf)
	assert.Equal(t, orgID.String(), line["tenant_id"])

	// Without a tenant in context the attribute is absent.
	buf.Reset()
	log.InfoContext(context.Background(), "no tenant")
	line = logLine(t, &buf)
	assert.NotContains(t, line, "tenant_id")
}

func TestAttrHelpers(t *testing.T) {
	t.Parallel()

	assert.True(t, logger.Error(nil).Equal(slog.Attr{}))
	assert.True(t, logger.InvocationID(uuid.Nil).Equal(slog.Attr{}))
	assert.True(t, logger.TenantID(uuid.Nil).Equal(slog.Attr{}))

	id := uuid.New()
	assert.Equal(t, "invocation_id", logger.InvocationID(id).Key)
	assert.Equal(t, id.String(), logger.InvocationID(id).Value.String())
	assert.Equal(t, "task", logger.TaskName("report.generate").Key)
	assert.Equal(t, "queue", logger.Queue("reports").Key)
	assert.Equal(t, "attempt", logger.Attempt(2).Key)
}
