package main

import (
	"time"

	"github.com/jmarlin/focusd/internal/config"
	"github.com/jmarlin/focusd/internal/eventlog"
	"github.com/jmarlin/focusd/internal/logging"
	"github.com/jmarlin/focusd/internal/mentalstate"
	"github.com/jmarlin/focusd/internal/orchestrator"
	"github.com/jmarlin/focusd/internal/tracker"
	"github.com/jmarlin/focusd/internal/types"
)

// funnel serializes every input onto one goroutine before it reaches the
// tracker, so inputs apply in arrival order no matter how many collector
// connections are feeding us. It also owns the idle-check ticker.
type funnel struct {
	cfg        config.Config
	tracker    *tracker.Tracker
	classifier *mentalstate.Classifier
	capture    *eventlog.Log
	orch       *orchestrator.Orchestrator

	jobs     chan func()
	stopChan chan struct{}
	done     chan struct{}
}

func newFunnel(cfg config.Config, tr *tracker.Tracker, cl *mentalstate.Classifier,
	capture *eventlog.Log, orch *orchestrator.Orchestrator) *funnel {
	return &funnel{
		cfg:        cfg,
		tracker:    tr,
		classifier: cl,
		capture:    capture,
		orch:       orch,
		jobs:       make(chan func(), 256),
		stopChan:   make(chan struct{}),
		done:       make(chan struct{}),
	}
}

func (f *funnel) Start() {
	go f.run()
}

func (f *funnel) Stop() {
	close(f.stopChan)
	<-f.done
}

func (f *funnel) run() {
	defer close(f.done)

	// Check for abandonment a few times per idle window.
	interval := f.cfg.IdleTimeout / 10
	if interval < time.Second {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-f.stopChan:
			return
		case job := <-f.jobs:
			job()
		case <-ticker.C:
			f.tracker.CheckIdle(time.Now())
		}
	}
}

func (f *funnel) enqueue(job func()) {
	select {
	case f.jobs <- job:
	default:
		logging.Info("funnel", "input queue full, dropping")
	}
}

func (f *funnel) Activity(ev *types.ActivityEvent) {
	f.capture.AppendActivity(ev)
	f.enqueue(func() { f.tracker.OnEvent(ev) })
}

func (f *funnel) Metrics(s *types.MetricSample) {
	f.capture.AppendMetrics(s)
	f.enqueue(func() {
		f.tracker.OnMentalState(f.classifier.Classify(s), s.Timestamp)
	})
}

func (f *funnel) Command(c *types.MentalCommand) {
	f.capture.AppendCommand(c)
	f.enqueue(func() { f.tracker.OnMentalCommand(c) })
}

func (f *funnel) Feedback(fb types.Feedback) {
	// Feedback goes straight to the orchestrator; it synchronizes itself
	// and must not queue behind a burst of activity events.
	f.orch.HandleFeedback(fb)
}

func (f *funnel) ExplicitTrigger(at time.Time) {
	f.enqueue(func() { f.tracker.TriggerNow(at) })
}
