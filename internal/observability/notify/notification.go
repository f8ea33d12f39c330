package notify

import (
	"context"
	"log/slog"
	"time"
)

// Variant mirrors the visual weight of a user notification.
type Variant string

const (
	// VariantDefault is a passive notice: action successes and background failures.
	VariantDefault Variant = "default"
	// VariantDestructive reports a failed user action.
	VariantDestructive Variant = "destructive"
)

// Notification is a user-facing notice raised by the session coordinator.
type Notification struct {
	ID          string
	Title       string
	Description string
	Variant     Variant
	UserID      string
	OccurredAt  time.Time
}

// Sink describes a destination capable of consuming notifications.
type Sink interface {
	Send(ctx context.Context, n Notification) error
}

// SinkFunc adapts a function to the Sink interface (useful for tests).
type SinkFunc func(ctx context.Context, n Notification) error

// Send implements the Sink interface.
func (f SinkFunc) Send(ctx context.Context, n Notification) error {
	if f == nil {
		return nil
	}
	return f(ctx, n)
}

// LogSink writes notifications to a structured logger.
type LogSink struct {
	Logger *slog.Logger
}

// Send implements the Sink interface.
func (s LogSink) Send(ctx context.Context, n Notification) error {
	logger := s.Logger
	if logger == nil {
		logger = slog.Default()
	}
	level := slog.LevelInfo
	if n.Variant == VariantDestructive {
		level = slog.LevelWarn
	}
	logger.Log(ctx, level, "notification",
		"title", n.Title,
		"description", n.Description,
		"variant", string(n.Variant),
		"user_id", n.UserID,
	)
	return nil
}
