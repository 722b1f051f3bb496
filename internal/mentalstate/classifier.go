package mentalstate

import (
	"github.com/jmarlin/focusd/internal/config"
	"github.com/jmarlin/focusd/internal/logging"
	"github.com/jmarlin/focusd/internal/types"
)

// Rule classifies samples from one device class. Applies reports whether the
// sample carries the metrics this rule needs; Classify maps the sample to a
// discrete state. Classify is only called when Applies returned true.
type Rule interface {
	Name() string
	Applies(sample *types.MetricSample) bool
	Classify(sample *types.MetricSample) types.MentalState
}

// Classifier routes each sample to the first matching rule.
type Classifier struct {
	rules []Rule
}

// NewClassifier builds a classifier with the standard device-class rules.
// Rules are consulted in order, so the full-headset rule wins when a sample
// carries the complete metric set.
func NewClassifier(cfg config.Config) *Classifier {
	c := &Classifier{}
	c.Register(&ReducedMetricRule{Thresholds: cfg.ReducedThresholds})
	c.Register(&FullMetricRule{Thresholds: cfg.FullThresholds})
	return c
}

// Register adds a rule ahead of the existing ones, so more specific rules
// registered later take precedence.
func (c *Classifier) Register(r Rule) {
	c.rules = append([]Rule{r}, c.rules...)
	logging.Debug("mentalstate", "registered rule %s", r.Name())
}

// Classify maps a sample to a mental state. Samples no rule understands
// classify as unknown rather than erroring; a headset mid-reconnect sends
// partial frames.
func (c *Classifier) Classify(sample *types.MetricSample) types.MentalState {
	for _, r := range c.rules {
		if r.Applies(sample) {
			state := r.Classify(sample)
			logging.Debug("mentalstate", "%s -> %s", r.Name(), state)
			return state
		}
	}
	return types.StateUnknown
}
