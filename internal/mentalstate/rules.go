package mentalstate

import (
	"github.com/jmarlin/focusd/internal/config"
	"github.com/jmarlin/focusd/internal/types"
)

// Metric names as they appear in normalized samples.
const (
	MetricEngagement = "engagement"
	MetricAttention  = "attention"
	MetricStress     = "stress"
	MetricRelaxation = "relaxation"
	MetricExcitement = "excitement"
	MetricInterest   = "interest"

	// Reduced headsets report a single stress-like channel.
	MetricCognitiveStress = "cognitiveStress"
)

// FullMetricRule classifies samples from headsets that report the complete
// performance-metric set (engagement, attention, stress, relaxation).
type FullMetricRule struct {
	Thresholds config.MetricThresholds
}

func (r *FullMetricRule) Name() string { return "full-metrics" }

func (r *FullMetricRule) Applies(s *types.MetricSample) bool {
	for _, m := range []string{MetricEngagement, MetricAttention, MetricStress, MetricRelaxation} {
		if _, ok := s.Get(m); !ok {
			return false
		}
	}
	return true
}

func (r *FullMetricRule) Classify(s *types.MetricSample) types.MentalState {
	eng, _ := s.Get(MetricEngagement)
	att, _ := s.Get(MetricAttention)
	str, _ := s.Get(MetricStress)

	t := r.Thresholds
	switch {
	case att > t.HighAttention && eng > t.HighEngagement && str < t.LowStress:
		return types.StateFocused
	case str > t.HighStress && att >= t.ModerateAttention:
		return types.StateStuck
	case eng < t.LowEngagement && att < t.LowAttention:
		return types.StateDistracted
	default:
		return types.StateUnknown
	}
}

// ReducedMetricRule classifies samples from two-channel headsets that only
// report attention and cognitive stress.
type ReducedMetricRule struct {
	Thresholds config.MetricThresholds
}

func (r *ReducedMetricRule) Name() string { return "reduced-metrics" }

func (r *ReducedMetricRule) Applies(s *types.MetricSample) bool {
	if _, ok := s.Get(MetricAttention); !ok {
		return false
	}
	_, ok := s.Get(MetricCognitiveStress)
	return ok
}

func (r *ReducedMetricRule) Classify(s *types.MetricSample) types.MentalState {
	att, _ := s.Get(MetricAttention)
	str, _ := s.Get(MetricCognitiveStress)

	t := r.Thresholds
	switch {
	case att > t.HighAttention && str < t.LowStress:
		return types.StateFocused
	case str > t.HighStress && att >= t.ModerateAttention:
		return types.StateStuck
	case att < t.LowAttention:
		return types.StateDistracted
	default:
		return types.StateUnknown
	}
}
