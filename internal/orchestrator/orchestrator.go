package orchestrator

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/jmarlin/focusd/internal/agent"
	"github.com/jmarlin/focusd/internal/config"
	"github.com/jmarlin/focusd/internal/logging"
	"github.com/jmarlin/focusd/internal/types"
)

// SessionStore is the persistence the orchestrator needs.
type SessionStore interface {
	SaveSession(types.SessionSnapshot) error
	SaveTrigger(types.TriggerEvent) error
	SaveTurn(types.AssistanceTurn) error
	SetTurnFeedback(sessionID, feedback string) error
	RecentSessionsFor(signature string, limit int) ([]types.SessionSnapshot, error)
	RecentSessions(limit int) ([]types.SessionSnapshot, error)
	TurnsFor(sessionID string) ([]types.AssistanceTurn, error)
}

// SessionControl is the slice of the tracker the orchestrator talks back to.
type SessionControl interface {
	Current() *types.SessionSnapshot
	ResolveCurrent(sessionID string, outcome types.Outcome) bool
}

// Enricher adds application-specific context before the agent call.
type Enricher interface {
	Route(ctx context.Context, s *types.SessionSnapshot) types.EnrichedContext
}

// Orchestrator drives the multi-turn assistance loop. Triggers are consumed
// on a single goroutine so at most one agent call is in flight; the state
// machine never waits on the agent.
type Orchestrator struct {
	cfg      config.Config
	client   agent.Client
	enricher Enricher
	store    SessionStore
	control  SessionControl
	deliver  func(sessionID, message string)

	triggers chan types.TriggerEvent
	stopChan chan struct{}
	done     chan struct{}

	mu           sync.Mutex
	followUps    map[string]*time.Timer
	turns        map[string][]types.AssistanceTurn
	pendingText  map[string]string
	lastDelivery time.Time
}

func New(cfg config.Config, client agent.Client, enricher Enricher, store SessionStore, control SessionControl) *Orchestrator {
	return &Orchestrator{
		cfg:         cfg,
		client:      client,
		enricher:    enricher,
		store:       store,
		control:     control,
		deliver:     func(string, string) {},
		triggers:    make(chan types.TriggerEvent, 16),
		stopChan:    make(chan struct{}),
		done:        make(chan struct{}),
		followUps:   make(map[string]*time.Timer),
		turns:       make(map[string][]types.AssistanceTurn),
		pendingText: make(map[string]string),
	}
}

// OnDeliver registers where assistance messages go (the websocket push).
func (o *Orchestrator) OnDeliver(fn func(sessionID, message string)) {
	o.deliver = fn
}

// Start launches the trigger loop.
func (o *Orchestrator) Start() {
	go o.run()
	logging.Info("orchestrator", "started")
}

// Stop shuts the loop down and cancels outstanding follow-up timers.
func (o *Orchestrator) Stop() {
	close(o.stopChan)
	<-o.done

	o.mu.Lock()
	for id, timer := range o.followUps {
		timer.Stop()
		delete(o.followUps, id)
	}
	o.mu.Unlock()
	logging.Info("orchestrator", "stopped")
}

func (o *Orchestrator) run() {
	defer close(o.done)
	for {
		select {
		case <-o.stopChan:
			return
		case ev := <-o.triggers:
			o.process(ev)
		}
	}
}

// HandleTrigger enqueues a trigger. Never blocks the caller; if the queue is
// full the trigger is dropped, which only happens when the agent is wedged
// and a re-trigger would not help anyway.
func (o *Orchestrator) HandleTrigger(ev types.TriggerEvent) {
	select {
	case o.triggers <- ev:
	default:
		logging.Info("orchestrator", "trigger queue full, dropping %s for session %s", ev.Reason, ev.Session.ID)
	}
}

// HandleWarn records the warn crossing. Warns are a state transition, not a
// user-visible notification.
func (o *Orchestrator) HandleWarn(snap types.SessionSnapshot) {
	logging.Info("orchestrator", "session %s warned on %s", snap.ID, logging.Truncate(snap.Signature, 60))
}

// HandleClose finalizes a session: persist it, cancel its follow-up, drop
// its in-memory turn history.
func (o *Orchestrator) HandleClose(snap types.SessionSnapshot) {
	o.cancelFollowUp(snap.ID)

	o.mu.Lock()
	delete(o.turns, snap.ID)
	delete(o.pendingText, snap.ID)
	o.mu.Unlock()

	if err := o.store.SaveSession(snap); err != nil {
		logging.Warn("orchestrator", "persist session %s failed: %v", snap.ID, err)
	}
}

// cooldownExempt reports whether a trigger bypasses the delivery cooldown.
// Follow-ups are part of a conversation already underway; mental commands are
// a deliberate ask and always go through.
func cooldownExempt(r types.TriggerReason) bool {
	return r == types.ReasonFollowUp || r == types.ReasonMentalCommand
}

func (o *Orchestrator) process(ev types.TriggerEvent) {
	if !cooldownExempt(ev.Reason) && o.inCooldown(ev.Timestamp) {
		logging.Info("orchestrator", "suppressing %s trigger for %s, message delivered recently", ev.Reason, logging.Truncate(ev.Session.Signature, 60))
		return
	}

	if err := o.store.SaveTrigger(ev); err != nil {
		logging.Warn("orchestrator", "persist trigger failed: %v", err)
	}
	// Triggered sessions are worth having on disk before they close.
	if err := o.store.SaveSession(ev.Session); err != nil {
		logging.Warn("orchestrator", "persist session failed: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), o.cfg.AgentTimeout)
	defer cancel()

	enriched := o.enricher.Route(ctx, &ev.Session)

	o.mu.Lock()
	history := o.turns[ev.Session.ID]
	userText := o.pendingText[ev.Session.ID]
	delete(o.pendingText, ev.Session.ID)
	o.mu.Unlock()

	// A daemon restart empties the in-memory history; earlier turns for the
	// session are still on disk.
	if len(history) == 0 {
		if stored, err := o.store.TurnsFor(ev.Session.ID); err == nil && len(stored) > 0 {
			o.mu.Lock()
			o.turns[ev.Session.ID] = stored
			o.mu.Unlock()
			history = stored
		}
	}

	recent, err := o.store.RecentSessionsFor(ev.Session.Signature, o.cfg.RecentSessionLimit)
	if err != nil {
		logging.Debug("orchestrator", "recent sessions lookup failed: %v", err)
	}
	// First time on a task there is nothing signature-specific to cite;
	// fall back to what the user has been doing overall.
	var global []types.SessionSnapshot
	if summarizePast(recent, ev.Session.ID) == "" {
		if global, err = o.store.RecentSessions(o.cfg.RecentSessionLimit); err != nil {
			logging.Debug("orchestrator", "global recent sessions lookup failed: %v", err)
		}
	}

	prompt := buildPrompt(ev, enriched, recent, global, history, userText)

	resp, err := o.client.Complete(ctx, agent.Request{SessionID: ev.Session.ID, Prompt: prompt})
	fallbackUsed := false
	if err != nil {
		logging.Info("orchestrator", "agent call failed (%v), using fallback", err)
		resp = agent.Fallback(ev)
		fallbackUsed = true
	}

	turn := types.AssistanceTurn{
		ID:           uuid.NewString(),
		SessionID:    ev.Session.ID,
		Prompt:       prompt,
		Response:     resp.Message,
		ActionType:   resp.ActionType,
		FallbackUsed: fallbackUsed,
		Timestamp:    time.Now(),
	}
	if err := o.store.SaveTurn(turn); err != nil {
		logging.Warn("orchestrator", "persist turn failed: %v", err)
	}

	o.mu.Lock()
	o.turns[ev.Session.ID] = append(o.turns[ev.Session.ID], turn)
	o.mu.Unlock()

	if !resp.ShouldHelp {
		logging.Info("orchestrator", "agent declined to help session %s: %s", ev.Session.ID, resp.Reason)
		return
	}

	o.deliver(ev.Session.ID, resp.Message)

	o.mu.Lock()
	o.lastDelivery = time.Now()
	o.mu.Unlock()

	o.scheduleFollowUp(ev.Session.ID)
}

// inCooldown reports whether a trigger arrived too soon after the last
// delivered message.
func (o *Orchestrator) inCooldown(at time.Time) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return !o.lastDelivery.IsZero() && at.Sub(o.lastDelivery) < o.cfg.FeedbackCooldown
}

// scheduleFollowUp arms (or re-arms) the session's follow-up timer. When it
// fires, the session must still be the live one; a fire that raced a close
// or a task switch is discarded.
func (o *Orchestrator) scheduleFollowUp(sessionID string) {
	o.mu.Lock()
	defer o.mu.Unlock()

	if prev, ok := o.followUps[sessionID]; ok {
		prev.Stop()
	}
	o.followUps[sessionID] = time.AfterFunc(o.cfg.FollowUpInterval, func() {
		o.fireFollowUp(sessionID)
	})
}

func (o *Orchestrator) fireFollowUp(sessionID string) {
	o.mu.Lock()
	delete(o.followUps, sessionID)
	o.mu.Unlock()

	cur := o.control.Current()
	if cur == nil || cur.ID != sessionID || cur.State != types.StateTriggered {
		logging.Debug("orchestrator", "follow-up for %s no longer applies", sessionID)
		return
	}

	o.HandleTrigger(types.TriggerEvent{
		Session:   *cur,
		State:     lastObservation(cur),
		Reason:    types.ReasonFollowUp,
		Timestamp: time.Now(),
	})
}

func (o *Orchestrator) cancelFollowUp(sessionID string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if timer, ok := o.followUps[sessionID]; ok {
		timer.Stop()
		delete(o.followUps, sessionID)
	}
}

func lastObservation(s *types.SessionSnapshot) types.MentalState {
	if len(s.Observations) == 0 {
		return types.StateUnknown
	}
	return s.Observations[len(s.Observations)-1]
}

// recordFeedback attaches the user's reaction to the latest turn, both on
// disk and on the in-memory copy the next prompt is built from.
func (o *Orchestrator) recordFeedback(sessionID, feedback string) {
	if err := o.store.SetTurnFeedback(sessionID, feedback); err != nil {
		logging.Debug("orchestrator", "record feedback failed: %v", err)
	}
	o.mu.Lock()
	defer o.mu.Unlock()
	if turns := o.turns[sessionID]; len(turns) > 0 {
		turns[len(turns)-1].Feedback = feedback
	}
}

// HandleFeedback correlates the user's reaction with the session. Accept
// and dismiss resolve the loop; free text becomes the next turn's input.
func (o *Orchestrator) HandleFeedback(fb types.Feedback) {
	switch fb.Action {
	case types.FeedbackAccept:
		o.cancelFollowUp(fb.SessionID)
		o.recordFeedback(fb.SessionID, string(types.FeedbackAccept))
		if !o.control.ResolveCurrent(fb.SessionID, types.OutcomeHelped) {
			logging.Debug("orchestrator", "accept for session %s arrived after close", fb.SessionID)
		}

	case types.FeedbackDismiss:
		o.cancelFollowUp(fb.SessionID)
		o.recordFeedback(fb.SessionID, string(types.FeedbackDismiss))
		o.control.ResolveCurrent(fb.SessionID, types.OutcomeDismissed)

	case types.FeedbackText:
		o.recordFeedback(fb.SessionID, fb.Text)
		cur := o.control.Current()
		if cur == nil || cur.ID != fb.SessionID {
			logging.Info("orchestrator", "text feedback for %s arrived after close, recorded only", fb.SessionID)
			return
		}
		o.cancelFollowUp(fb.SessionID)
		o.mu.Lock()
		o.pendingText[fb.SessionID] = fb.Text
		o.mu.Unlock()
		o.HandleTrigger(types.TriggerEvent{
			Session:   *cur,
			State:     lastObservation(cur),
			Reason:    types.ReasonFollowUp,
			Timestamp: fb.Timestamp,
		})

	default:
		logging.Info("orchestrator", "unknown feedback action %q for session %s", fb.Action, fb.SessionID)
	}
}
