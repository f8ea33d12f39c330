package metrics

import (
	"time"

	obserrors "github.com/alungalsinan/groot-scribe-studio/internal/observability/errors"
	"github.com/alungalsinan/groot-scribe-studio/internal/observability/statsd"
)

// Result constants for metric tagging.
const (
	ResultSuccess     = "success"
	ResultError       = "error"
	ResultProvisioned = "provisioned"
	ResultDefaulted   = "defaulted"
	ResultStale       = "stale"
)

// AuthMetric describes an auth event or user action handled by the coordinator.
type AuthMetric struct {
	// Name is the event kind (SIGNED_IN, ...) or action (sign_in, sign_up, sign_out).
	Name     string
	Result   string
	Duration time.Duration
	Err      error
}

// EmitAuth emits standardised auth metrics.
func EmitAuth(sink statsd.Sink, in AuthMetric) {
	if sink == nil {
		return
	}

	tags := map[string]string{
		"name":   in.Name,
		"result": in.Result,
	}
	if in.Err != nil && in.Result == ResultError {
		if class := obserrors.Classify(in.Err); class != "" {
			tags["error_class"] = class
		}
	}

	sink.Count("auth.event", 1, tags)
	if in.Duration > 0 {
		sink.Timing("auth.duration", in.Duration, CloneTags(tags))
	}
}

// ResolutionMetric describes one settled profile or role lookup.
type ResolutionMetric struct {
	// Record is "profile" or "role".
	Record   string
	Result   string
	Duration time.Duration
	Err      error
}

// EmitResolution emits per-record resolution metrics.
func EmitResolution(sink statsd.Sink, in ResolutionMetric) {
	if sink == nil {
		return
	}

	tags := map[string]string{
		"record": in.Record,
		"result": in.Result,
	}
	if in.Err != nil {
		if class := obserrors.Classify(in.Err); class != "" {
			tags["error_class"] = class
		}
	}

	sink.Count("auth.resolution", 1, tags)
	if in.Duration > 0 {
		sink.Timing("auth.resolution.duration", in.Duration, CloneTags(tags))
	}
}

// CloneTags creates a shallow copy of a tag map.
func CloneTags(src map[string]string) map[string]string {
	if len(src) == 0 {
		return nil
	}
	out := make(map[string]string, len(src))
	for k, v := range src {
		out[k] = v
	}
	return out
}
