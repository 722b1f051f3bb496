package mentalstate

import (
	"math"
	"testing"
	"time"

	"github.com/jmarlin/focusd/internal/config"
	"github.com/jmarlin/focusd/internal/types"
)

func newTestClassifier() *Classifier {
	return NewClassifier(config.Default())
}

func fullSample(eng, att, str, rel float64) *types.MetricSample {
	return &types.MetricSample{
		Timestamp: time.Now(),
		Metrics: map[string]float64{
			MetricEngagement: eng,
			MetricAttention:  att,
			MetricStress:     str,
			MetricRelaxation: rel,
		},
	}
}

func reducedSample(att, cs float64) *types.MetricSample {
	return &types.MetricSample{
		Timestamp: time.Now(),
		Metrics: map[string]float64{
			MetricAttention:       att,
			MetricCognitiveStress: cs,
		},
	}
}

func TestFullRuleClassification(t *testing.T) {
	c := newTestClassifier()

	cases := []struct {
		name   string
		sample *types.MetricSample
		want   types.MentalState
	}{
		{"focused", fullSample(0.7, 0.8, 0.2, 0.5), types.StateFocused},
		{"stuck", fullSample(0.6, 0.45, 0.7, 0.2), types.StateStuck},
		{"distracted", fullSample(0.3, 0.2, 0.3, 0.5), types.StateDistracted},
		{"ambiguous", fullSample(0.5, 0.45, 0.45, 0.5), types.StateUnknown},
		// Attentive but disengaged is not focused.
		{"disengaged", fullSample(0.2, 0.8, 0.2, 0.5), types.StateUnknown},
		// High stress but attention below moderate reads as distracted,
		// not stuck: you cannot be stuck on something you are not on.
		{"stressed but absent", fullSample(0.2, 0.1, 0.9, 0.2), types.StateDistracted},
	}
	for _, tc := range cases {
		if got := c.Classify(tc.sample); got != tc.want {
			t.Errorf("%s: got %s, want %s", tc.name, got, tc.want)
		}
	}
}

func TestReducedRuleClassification(t *testing.T) {
	c := newTestClassifier()

	cases := []struct {
		name   string
		sample *types.MetricSample
		want   types.MentalState
	}{
		{"focused", reducedSample(0.8, 0.2), types.StateFocused},
		{"stuck", reducedSample(0.5, 0.7), types.StateStuck},
		{"distracted", reducedSample(0.3, 0.3), types.StateDistracted},
		{"ambiguous", reducedSample(0.45, 0.45), types.StateUnknown},
	}
	for _, tc := range cases {
		if got := c.Classify(tc.sample); got != tc.want {
			t.Errorf("%s: got %s, want %s", tc.name, got, tc.want)
		}
	}
}

func TestFullSampleNotClassifiedByReducedRule(t *testing.T) {
	c := newTestClassifier()

	// A full sample with high stress and moderate attention must hit the
	// full rule's stuck branch, not fall through to the reduced rule.
	s := fullSample(0.6, 0.35, 0.8, 0.2)
	if got := c.Classify(s); got != types.StateStuck {
		t.Errorf("got %s, want stuck via full rule", got)
	}
}

func TestPartialSampleUnknown(t *testing.T) {
	c := newTestClassifier()

	s := &types.MetricSample{
		Timestamp: time.Now(),
		Metrics:   map[string]float64{MetricEngagement: 0.7},
	}
	if got := c.Classify(s); got != types.StateUnknown {
		t.Errorf("got %s, want unknown for partial sample", got)
	}
}

func TestNaNMetricTreatedAsAbsent(t *testing.T) {
	c := newTestClassifier()

	s := reducedSample(0.8, 0.2)
	s.Metrics[MetricCognitiveStress] = math.NaN()
	if got := c.Classify(s); got != types.StateUnknown {
		t.Errorf("got %s, want unknown when a required metric is NaN", got)
	}
}

func TestParseMetricsMap(t *testing.T) {
	raw := map[string]any{
		"eng": 0.6, "foc": 0.7, "str": 0.2, "rel": 0.5, "bogus": 0.9,
	}
	s, err := ParseMetrics(time.Now(), raw)
	if err != nil {
		t.Fatalf("ParseMetrics: %v", err)
	}
	if v, ok := s.Get(MetricAttention); !ok || v != 0.7 {
		t.Errorf("attention = %v, %v; want 0.7", v, ok)
	}
	if _, ok := s.Get("bogus"); ok {
		t.Error("unknown keys should be dropped")
	}
}

func TestParseMetricsFullFrame(t *testing.T) {
	frame := []any{
		true, 0.61, // eng
		true, 0.42, // exc
		0.5,        // lex, no isActive flag
		true, 0.33, // str
		false, 0.88, // rel inactive
		true, 0.5, // int
		true, 0.72, // foc
	}
	s, err := ParseMetrics(time.Now(), frame)
	if err != nil {
		t.Fatalf("ParseMetrics: %v", err)
	}
	if v, _ := s.Get(MetricAttention); v != 0.72 {
		t.Errorf("attention = %v, want 0.72", v)
	}
	if v, _ := s.Get(MetricStress); v != 0.33 {
		t.Errorf("stress = %v, want 0.33", v)
	}
	if _, ok := s.Get(MetricRelaxation); ok {
		t.Error("inactive relaxation should be absent")
	}
}

func TestParseMetricsReducedFrame(t *testing.T) {
	s, err := ParseMetrics(time.Now(), []any{true, 0.8, true, 0.3})
	if err != nil {
		t.Fatalf("ParseMetrics: %v", err)
	}
	if v, _ := s.Get(MetricAttention); v != 0.8 {
		t.Errorf("attention = %v, want 0.8", v)
	}
	if v, _ := s.Get(MetricCognitiveStress); v != 0.3 {
		t.Errorf("cognitiveStress = %v, want 0.3", v)
	}
}

func TestParseMetricsBadFrames(t *testing.T) {
	if _, err := ParseMetrics(time.Now(), []any{true, 0.5}); err == nil {
		t.Error("expected error for short frame")
	}
	if _, err := ParseMetrics(time.Now(), "met"); err == nil {
		t.Error("expected error for unsupported type")
	}
	if _, err := ParseMetrics(time.Now(), map[string]any{"zzz": 1.0}); err == nil {
		t.Error("expected error for frame with no usable metrics")
	}
}
