package logger

import (
	"log/slog"

	"github.com/google/uuid"
)

// Error creates an attribute for a single error under the key "error".
// Nil errors produce an empty Attr.
func Error(err error) slog.Attr {
	if err == nil {
		return slog.Attr{}
	}
	return slog.Any("error", err)
}

// TaskName records a task name under the key "task".
func TaskName(name string) slog.Attr {
	return slog.String("task", name)
}

// Queue records a queue name under the key "queue".
func Queue(name string) slog.Attr {
	return slog.String("queue", name)
}

// InvocationID records an invocation identifier under the key
// "invocation_id". A nil UUID produces an empty Attr.
func InvocationID(id uuid.UUID) slog.Attr {
	if id == uuid.Nil {
		return slog.Attr{}
	}
	return slog.String("invocation_id", id.String())
}

// TenantID records a tenant organization identifier under the key
// "tenant_id". A nil UUID produces an empty Attr.
func TenantID(id uuid.UUID) slog.Attr {
	if id == uuid.Nil {
		return slog.Attr{}
	}
	return slog.String("tenant_id", id.String())
}

// Attempt records an attempt counter under the key "attempt".
func Attempt(n int8) slog.Attr {
	return slog.Int("attempt", int(n))
}
