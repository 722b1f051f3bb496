package tracker

import (
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/jmarlin/focusd/internal/config"
	"github.com/jmarlin/focusd/internal/logging"
	"github.com/jmarlin/focusd/internal/types"
)

// Tracker owns the focus session state machine. At most one session is live
// at a time; a session progresses tracking -> warned -> triggered -> closed
// and never moves backwards. All durations are computed from event
// timestamps, so polling frequency never changes what a session reports.
type Tracker struct {
	mu  sync.Mutex
	cfg config.Config

	current   *types.Session
	lastState types.MentalState

	onWarn    func(types.SessionSnapshot)
	onTrigger func(types.TriggerEvent)
	onClose   func(types.SessionSnapshot)
	onSwitch  func(old, new types.SessionSnapshot)
}

func New(cfg config.Config) *Tracker {
	return &Tracker{cfg: cfg, lastState: types.StateUnknown}
}

// OnWarn registers the warn-threshold callback. Called once per session.
func (t *Tracker) OnWarn(fn func(types.SessionSnapshot)) { t.onWarn = fn }

// OnTrigger registers the assistance-trigger callback. Called at most once
// per session regardless of how many threshold crossings or commands arrive.
func (t *Tracker) OnTrigger(fn func(types.TriggerEvent)) { t.onTrigger = fn }

// OnClose registers the session-close callback. Every session that starts
// eventually produces exactly one close.
func (t *Tracker) OnClose(fn func(types.SessionSnapshot)) { t.onClose = fn }

// OnSwitch registers the task-switch callback, fired after the old session's
// close with both the closed and the freshly opened session.
func (t *Tracker) OnSwitch(fn func(old, new types.SessionSnapshot)) { t.onSwitch = fn }

// signal is a deferred callback invocation, emitted after the lock drops so
// handlers can call back into the tracker.
type signal struct {
	warn      *types.SessionSnapshot
	trigger   *types.TriggerEvent
	closed    *types.SessionSnapshot
	switchOld *types.SessionSnapshot
	switchNew *types.SessionSnapshot
}

func (t *Tracker) emit(sigs []signal) {
	for _, s := range sigs {
		if s.closed != nil && t.onClose != nil {
			t.onClose(*s.closed)
		}
		if s.switchOld != nil && t.onSwitch != nil {
			t.onSwitch(*s.switchOld, *s.switchNew)
		}
		if s.warn != nil && t.onWarn != nil {
			t.onWarn(*s.warn)
		}
		if s.trigger != nil && t.onTrigger != nil {
			t.onTrigger(*s.trigger)
		}
	}
}

// OnEvent feeds one activity event through the state machine. Events with
// timestamps at or before the session's last seen time are discarded; the
// collector replays on reconnect.
func (t *Tracker) OnEvent(ev *types.ActivityEvent) {
	t.mu.Lock()
	var sigs []signal

	sig := ev.Signature()
	switch {
	case t.current == nil:
		t.startLocked(ev, sig)

	case ev.Timestamp.Before(t.current.LastSeenAt):
		logging.Debug("tracker", "stale event %s at %s, ignoring", sig, ev.Timestamp.Format(time.RFC3339))

	case t.current.Signature == sig:
		sigs = t.continueLocked(ev)

	default:
		// Task switch. The old session's clock stops at the moment the
		// new task appeared.
		sigs = append(sigs, t.closeLocked(ev.Timestamp, t.current.Outcome)...)
		t.startLocked(ev, sig)
		oldSnap := *sigs[len(sigs)-1].closed
		newSnap := t.current.Snapshot()
		sigs = append(sigs, signal{switchOld: &oldSnap, switchNew: &newSnap})
	}

	t.mu.Unlock()
	t.emit(sigs)
}

func (t *Tracker) startLocked(ev *types.ActivityEvent, sig string) {
	t.current = &types.Session{
		ID:          uuid.NewString(),
		Signature:   sig,
		AppName:     ev.AppName,
		WindowTitle: ev.WindowTitle,
		PageURL:     ev.PageURL,
		PageSnippet: ev.PageSnippet,
		State:       types.StateTracking,
		StartedAt:   ev.Timestamp,
		LastSeenAt:  ev.Timestamp,
		Outcome:     types.OutcomeNone,
	}
	logging.Info("tracker", "session %s started: %s", t.current.ID[:8], logging.Truncate(sig, 80))
}

func (t *Tracker) continueLocked(ev *types.ActivityEvent) []signal {
	s := t.current
	s.LastSeenAt = ev.Timestamp
	s.Duration = ev.Timestamp.Sub(s.StartedAt)
	// Titles drift within a signature (scroll position, unread counts);
	// keep the freshest one for prompts.
	s.WindowTitle = ev.WindowTitle
	if ev.PageURL != "" {
		s.PageURL = ev.PageURL
	}
	if ev.PageSnippet != "" {
		s.PageSnippet = ev.PageSnippet
	}
	return t.evaluateLocked(ev.Timestamp)
}

// evaluateLocked checks the duration thresholds. Crossing both in a single
// update emits warn then trigger, in that order, so every triggered session
// was warned first.
func (t *Tracker) evaluateLocked(now time.Time) []signal {
	s := t.current
	var sigs []signal

	if !s.Warned && s.Duration >= t.cfg.WarnThreshold {
		s.Warned = true
		s.State = types.StateWarned
		snap := s.Snapshot()
		sigs = append(sigs, signal{warn: &snap})
		logging.Info("tracker", "session %s warned at %s", s.ID[:8], s.Duration)
	}
	if !s.Triggered && s.Duration >= t.cfg.LongThreshold {
		sigs = append(sigs, t.triggerLocked(types.ReasonDuration, now)...)
	}
	return sigs
}

// triggerLocked marks the session triggered and builds the trigger event.
// A session that somehow reaches trigger without warning gets the warn
// signal first.
func (t *Tracker) triggerLocked(reason types.TriggerReason, now time.Time) []signal {
	s := t.current
	var sigs []signal

	if !s.Warned {
		s.Warned = true
		s.State = types.StateWarned
		snap := s.Snapshot()
		sigs = append(sigs, signal{warn: &snap})
	}
	s.Triggered = true
	s.State = types.StateTriggered
	snap := s.Snapshot()
	sigs = append(sigs, signal{trigger: &types.TriggerEvent{
		Session:   snap,
		State:     t.lastState,
		Reason:    reason,
		Timestamp: now,
	}})
	logging.Info("tracker", "session %s triggered (%s) after %s", s.ID[:8], reason, s.Duration)
	return sigs
}

func (t *Tracker) closeLocked(at time.Time, outcome types.Outcome) []signal {
	s := t.current
	if !at.Before(s.StartedAt) {
		s.Duration = at.Sub(s.StartedAt)
	}
	s.State = types.StateClosed
	s.Outcome = outcome
	snap := s.Snapshot()
	t.current = nil
	logging.Info("tracker", "session %s closed (%s) after %s", s.ID[:8], outcome, s.Duration)
	return []signal{{closed: &snap}}
}

// OnMentalState records an observation against the live session and updates
// the state attached to future triggers. Unknown states are still recorded;
// a run of unknowns is itself informative.
func (t *Tracker) OnMentalState(state types.MentalState, _ time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.lastState = state
	if t.current != nil {
		t.current.Observations = append(t.current.Observations, state)
	}
}

// OnMentalCommand triggers assistance on the trained command, regardless of
// how long the session has run. Ignored when no session is live, when the
// action or power does not match, or when the session already triggered.
func (t *Tracker) OnMentalCommand(cmd *types.MentalCommand) {
	t.mu.Lock()
	var sigs []signal
	switch {
	case t.current == nil || t.current.Triggered:
	case !strings.EqualFold(cmd.Action, t.cfg.MentalCommandTrigger):
	case cmd.Power < t.cfg.MentalCommandPowerThreshold:
		logging.Debug("tracker", "command %s below power threshold (%.2f)", cmd.Action, cmd.Power)
	default:
		sigs = t.triggerLocked(types.ReasonMentalCommand, cmd.Timestamp)
	}
	t.mu.Unlock()
	t.emit(sigs)
}

// TriggerNow forces assistance for the live session (user pressed the help
// hotkey). Idempotent like every other trigger path.
func (t *Tracker) TriggerNow(now time.Time) {
	t.mu.Lock()
	var sigs []signal
	if t.current != nil && !t.current.Triggered {
		sigs = t.triggerLocked(types.ReasonExplicit, now)
	}
	t.mu.Unlock()
	t.emit(sigs)
}

// CheckIdle closes the live session as abandoned when no activity has been
// seen for the idle timeout. The duration freezes at the last event, not at
// the moment the timeout fired.
func (t *Tracker) CheckIdle(now time.Time) {
	t.mu.Lock()
	var sigs []signal
	if t.current != nil && now.Sub(t.current.LastSeenAt) >= t.cfg.IdleTimeout {
		sigs = t.closeLocked(t.current.LastSeenAt, types.OutcomeAbandoned)
	}
	t.mu.Unlock()
	t.emit(sigs)
}

// ResolveCurrent records the assistance outcome on the live session so it is
// carried into the close. A session that already switched away is gone; the
// resolution is dropped and the caller's persisted record stands alone.
func (t *Tracker) ResolveCurrent(sessionID string, outcome types.Outcome) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.current == nil || t.current.ID != sessionID {
		return false
	}
	t.current.Outcome = outcome
	return true
}

// CloseCurrent force-closes the live session with the given outcome.
func (t *Tracker) CloseCurrent(now time.Time, outcome types.Outcome) {
	t.mu.Lock()
	var sigs []signal
	if t.current != nil {
		sigs = t.closeLocked(now, outcome)
	}
	t.mu.Unlock()
	t.emit(sigs)
}

// Current returns a snapshot of the live session, or nil.
func (t *Tracker) Current() *types.SessionSnapshot {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.current == nil {
		return nil
	}
	snap := t.current.Snapshot()
	return &snap
}
