package mentalstate

import (
	"fmt"
	"time"

	"github.com/jmarlin/focusd/internal/types"
)

// shortNames maps the wire abbreviations in raw headset frames to the
// canonical metric names the rules use.
var shortNames = map[string]string{
	"eng": MetricEngagement,
	"exc": MetricExcitement,
	"str": MetricStress,
	"rel": MetricRelaxation,
	"int": MetricInterest,
	"foc": MetricAttention,

	"attention":       MetricAttention,
	"cognitiveStress": MetricCognitiveStress,
	"engagement":      MetricEngagement,
	"stress":          MetricStress,
	"relaxation":      MetricRelaxation,
	"excitement":      MetricExcitement,
	"interest":        MetricInterest,
}

// Full-headset array frames interleave isActive flags with values:
// [eng.isActive, eng, exc.isActive, exc, lex, str.isActive, str,
//  rel.isActive, rel, int.isActive, int, foc.isActive, foc]
var fullFrameLayout = []struct {
	index  int
	active int
	name   string
}{
	{1, 0, MetricEngagement},
	{3, 2, MetricExcitement},
	{6, 5, MetricStress},
	{8, 7, MetricRelaxation},
	{10, 9, MetricInterest},
	{12, 11, MetricAttention},
}

// ParseMetrics normalizes a raw performance-metric frame into a MetricSample.
// Accepts the two wire shapes headsets actually send: a map of (possibly
// abbreviated) metric names to values, or the positional array frame of a
// full headset. Metrics whose isActive flag is false are dropped, not zeroed.
func ParseMetrics(ts time.Time, raw any) (*types.MetricSample, error) {
	metrics := make(map[string]float64)

	switch v := raw.(type) {
	case map[string]any:
		for key, val := range v {
			name, ok := shortNames[key]
			if !ok {
				continue
			}
			f, ok := toFloat(val)
			if !ok {
				continue
			}
			metrics[name] = f
		}

	case []any:
		if len(v) == 4 {
			// Reduced two-channel frame: [att.isActive, att, cs.isActive, cs]
			if isTrue(v[0]) {
				if f, ok := toFloat(v[1]); ok {
					metrics[MetricAttention] = f
				}
			}
			if isTrue(v[2]) {
				if f, ok := toFloat(v[3]); ok {
					metrics[MetricCognitiveStress] = f
				}
			}
			break
		}
		if len(v) != 13 {
			return nil, fmt.Errorf("metric frame has %d entries, want 4 or 13", len(v))
		}
		for _, slot := range fullFrameLayout {
			if !isTrue(v[slot.active]) {
				continue
			}
			if f, ok := toFloat(v[slot.index]); ok {
				metrics[slot.name] = f
			}
		}

	default:
		return nil, fmt.Errorf("unsupported metric frame type %T", raw)
	}

	if len(metrics) == 0 {
		return nil, fmt.Errorf("metric frame carried no usable metrics")
	}
	return &types.MetricSample{Timestamp: ts, Metrics: metrics}, nil
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case int:
		return float64(n), true
	default:
		return 0, false
	}
}

func isTrue(v any) bool {
	b, ok := v.(bool)
	return ok && b
}
