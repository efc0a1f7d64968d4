// Package alerts decides when a derived value enters or leaves its critical state.
package alerts

import (
	"beacon/internal/metrics"
	"beacon/internal/models"
)

// Engine evaluates a derived value against the limit stored on its sample.
type Engine interface {
	// Evaluate updates s.Critical and reports whether it flipped.
	Evaluate(s *models.Sample, value int64) (critical, changed bool)
}

// Threshold is an edge-triggered Engine. A value above a positive limit is
// critical; removing the limit clears a critical sample once.
type Threshold struct{}

func NewThreshold() *Threshold { return &Threshold{} }

func (Threshold) Evaluate(s *models.Sample, value int64) (bool, bool) {
	if s.Limit > 0 {
		critical := value > s.Limit
		if critical == s.Critical {
			return critical, false
		}
		s.Critical = critical
		record(critical)
		return critical, true
	}

	if s.Critical {
		s.Critical = false
		record(false)
		return false, true
	}
	return false, false
}

func record(critical bool) {
	if critical {
		metrics.CriticalEvents.WithLabelValues("critical").Inc()
	} else {
		metrics.CriticalEvents.WithLabelValues("normal").Inc()
	}
}
