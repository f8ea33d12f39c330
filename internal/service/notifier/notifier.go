package notifier

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/alungalsinan/groot-scribe-studio/internal/observability/notify"
	"github.com/google/uuid"
)

// SinkRegistration pairs a sink implementation with a human-readable name for logging.
type SinkRegistration struct {
	Name string
	Sink notify.Sink
}

// Options configures the notifier service.
type Options struct {
	Logger *slog.Logger
	Sinks  []SinkRegistration
	// Now overrides the clock for tests.
	Now func() time.Time
}

// Service dispatches user notifications to all registered sinks.
type Service struct {
	logger *slog.Logger
	sinks  []SinkRegistration
	now    func() time.Time
}

// NewService constructs a notifier.
func NewService(opts Options) *Service {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default().With("component", "notifier")
	}

	var sinks []SinkRegistration
	for _, entry := range opts.Sinks {
		if entry.Sink == nil {
			continue
		}
		name := entry.Name
		if name == "" {
			name = "sink"
		}
		sinks = append(sinks, SinkRegistration{Name: name, Sink: entry.Sink})
	}

	now := opts.Now
	if now == nil {
		now = time.Now
	}

	return &Service{logger: logger, sinks: sinks, now: now}
}

// Notify fans the notification out to all sinks and waits for them.
// Sink failures are logged, never returned.
func (s *Service) Notify(ctx context.Context, n notify.Notification) {
	if len(s.sinks) == 0 {
		return
	}

	if n.ID == "" {
		n.ID = uuid.NewString()
	}
	if n.OccurredAt.IsZero() {
		n.OccurredAt = s.now()
	}
	if n.Variant == "" {
		n.Variant = notify.VariantDefault
	}

	var wg sync.WaitGroup
	for _, entry := range s.sinks {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := entry.Sink.Send(ctx, n); err != nil {
				s.logger.ErrorContext(ctx, "notification delivery error",
					"sink", entry.Name,
					"notification_id", n.ID,
					"title", n.Title,
					"error", err,
				)
			}
		}()
	}
	wg.Wait()
}

// Enabled reports whether the notifier has any active sinks.
func (s *Service) Enabled() bool {
	return len(s.sinks) > 0
}
