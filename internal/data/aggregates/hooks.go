package aggregates

import (
	"strings"
	"time"

	"github.com/yungbote/roadmap-backend/internal/observability"
)

// Hooks receives write outcomes from the topic aggregate. Names are the
// aggregate op ("topic.update_node"); status is "success" or an error code.
type Hooks interface {
	ObserveOperation(name, status string, dur time.Duration)
	IncConflict(name string)
	IncRetry(name string)
	// ObserveLockWait reports how long a writer waited for its roadmap's root lock.
	ObserveLockWait(name string, acquired bool, dur time.Duration)
}

type noopHooks struct{}

func (noopHooks) ObserveOperation(string, string, time.Duration) {}
func (noopHooks) IncConflict(string)                             {}
func (noopHooks) IncRetry(string)                                {}
func (noopHooks) ObserveLockWait(string, bool, time.Duration)    {}

type metricsHooks struct {
	m *observability.Metrics
}

// NewObservabilityHooks reports aggregate events to Prometheus. A nil metrics
// set yields hooks that drop everything.
func NewObservabilityHooks(metrics *observability.Metrics) Hooks {
	if metrics == nil {
		return noopHooks{}
	}
	return metricsHooks{m: metrics}
}

func (h metricsHooks) ObserveOperation(name, status string, dur time.Duration) {
	h.m.ObserveAggregateOperation(strings.TrimSpace(name), strings.TrimSpace(status), dur)
}

func (h metricsHooks) IncConflict(name string) {
	h.m.IncAggregateConflict(strings.TrimSpace(name))
}

func (h metricsHooks) IncRetry(name string) {
	h.m.IncAggregateRetry(strings.TrimSpace(name))
}

func (h metricsHooks) ObserveLockWait(name string, acquired bool, dur time.Duration) {
	h.m.ObserveRootLockWait(strings.TrimSpace(name), acquired, dur)
}
