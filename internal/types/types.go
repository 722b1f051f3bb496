package types

import (
	"strings"
	"time"
	"unicode"
)

// ActivityEvent is a context update from the collector (window/app/title poll).
// Immutable once received.
type ActivityEvent struct {
	Timestamp   time.Time `json:"timestamp"`
	AppName     string    `json:"app_name"`
	WindowTitle string    `json:"window_title"`
	PageURL     string    `json:"page_url,omitempty"`
	PageSnippet string    `json:"page_snippet,omitempty"`
}

// Signature returns the normalized task signature for this event.
// Two events with the same signature are "the same task" for session purposes.
// Rule: lowercased app + "::" + key, where key is the page URL stripped of
// query/fragment when present, otherwise the lowercased, whitespace-collapsed
// window title truncated to 50 runes. Minor title noise (scroll position,
// unread counts) beyond 50 runes does not split a session.
func (e *ActivityEvent) Signature() string {
	app := strings.ToLower(strings.TrimSpace(e.AppName))
	key := normalizeTitle(e.WindowTitle)
	if e.PageURL != "" {
		key = stripURL(e.PageURL)
	}
	return app + "::" + key
}

func normalizeTitle(title string) string {
	fields := strings.Fields(strings.ToLower(title))
	s := strings.Join(fields, " ")
	runes := []rune(s)
	if len(runes) > 50 {
		runes = runes[:50]
	}
	return string(runes)
}

func stripURL(url string) string {
	if i := strings.IndexAny(url, "?#"); i >= 0 {
		url = url[:i]
	}
	return strings.TrimRightFunc(url, func(r rune) bool { return r == '/' || unicode.IsSpace(r) })
}

// MetricSample is one EEG-derived performance metric reading.
// Keys depend on the device class: full headsets send engagement, attention,
// stress, relaxation; reduced headsets send attention, cognitiveStress.
type MetricSample struct {
	Timestamp time.Time          `json:"timestamp"`
	Metrics   map[string]float64 `json:"metrics"`
}

// Get returns the named metric and whether it is present.
func (s *MetricSample) Get(name string) (float64, bool) {
	v, ok := s.Metrics[name]
	if !ok || v != v { // NaN counts as absent
		return 0, false
	}
	return v, true
}

// MentalCommand is a discrete trained-command detection from the headset.
type MentalCommand struct {
	Timestamp time.Time `json:"timestamp"`
	Action    string    `json:"action"`
	Power     float64   `json:"power"`
}

// MentalState is the discrete classification derived from a MetricSample.
type MentalState string

const (
	StateFocused    MentalState = "focused"
	StateStuck      MentalState = "stuck"
	StateDistracted MentalState = "distracted"
	StateUnknown    MentalState = "unknown"
)

// Outcome records how a session ended.
type Outcome string

const (
	OutcomeNone      Outcome = "none"      // closed without assistance
	OutcomeHelped    Outcome = "helped"    // user accepted assistance
	OutcomeDismissed Outcome = "dismissed" // user dismissed assistance
	OutcomeAbandoned Outcome = "abandoned" // inactivity timeout
)

// SessionState is where a session sits in the focus state machine.
// Values are ordered: a live session's state index never decreases.
type SessionState int

const (
	StateTracking SessionState = iota // accumulating, below warn threshold
	StateWarned                       // warn threshold crossed
	StateTriggered                    // long threshold crossed, assistance initiated
	StateClosed                       // terminal
)

func (s SessionState) String() string {
	switch s {
	case StateTracking:
		return "tracking"
	case StateWarned:
		return "warned"
	case StateTriggered:
		return "triggered"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// Session is one continuous period of attention on a single task signature.
// Owned and mutated exclusively by the tracker; everyone else gets Snapshots.
type Session struct {
	ID           string        `json:"id"`
	Signature    string        `json:"signature"`
	AppName      string        `json:"app_name"`
	WindowTitle  string        `json:"window_title"`
	PageURL      string        `json:"page_url,omitempty"`
	PageSnippet  string        `json:"page_snippet,omitempty"`
	State        SessionState  `json:"state"`
	StartedAt    time.Time     `json:"started_at"`
	LastSeenAt   time.Time     `json:"last_seen_at"`
	Duration     time.Duration `json:"duration"`
	Warned       bool          `json:"warned"`
	Triggered    bool          `json:"triggered"`
	Observations []MentalState `json:"observations,omitempty"`
	Outcome      Outcome       `json:"outcome"`
}

// Snapshot returns an immutable value copy for handing outside the tracker.
func (s *Session) Snapshot() SessionSnapshot {
	obs := make([]MentalState, len(s.Observations))
	copy(obs, s.Observations)
	return SessionSnapshot{
		ID:           s.ID,
		Signature:    s.Signature,
		AppName:      s.AppName,
		WindowTitle:  s.WindowTitle,
		PageURL:      s.PageURL,
		PageSnippet:  s.PageSnippet,
		State:        s.State,
		StartedAt:    s.StartedAt,
		LastSeenAt:   s.LastSeenAt,
		Duration:     s.Duration,
		Warned:       s.Warned,
		Triggered:    s.Triggered,
		Observations: obs,
		Outcome:      s.Outcome,
	}
}

// SessionSnapshot is a read-only copy of a Session.
type SessionSnapshot struct {
	ID           string        `json:"id"`
	Signature    string        `json:"signature"`
	AppName      string        `json:"app_name"`
	WindowTitle  string        `json:"window_title"`
	PageURL      string        `json:"page_url,omitempty"`
	PageSnippet  string        `json:"page_snippet,omitempty"`
	State        SessionState  `json:"state"`
	StartedAt    time.Time     `json:"started_at"`
	LastSeenAt   time.Time     `json:"last_seen_at"`
	Duration     time.Duration `json:"duration"`
	Warned       bool          `json:"warned"`
	Triggered    bool          `json:"triggered"`
	Observations []MentalState `json:"observations,omitempty"`
	Outcome      Outcome       `json:"outcome"`
}

// TriggerReason says why assistance was initiated.
type TriggerReason string

const (
	ReasonDuration      TriggerReason = "duration-threshold"
	ReasonMentalCommand TriggerReason = "mental-command"
	ReasonExplicit      TriggerReason = "explicit"
	ReasonFollowUp      TriggerReason = "follow-up"
)

// TriggerEvent initiates (or continues) the assistance loop for a session.
// Immutable.
type TriggerEvent struct {
	Session   SessionSnapshot `json:"session"`
	State     MentalState     `json:"mental_state"`
	Reason    TriggerReason   `json:"reason"`
	Timestamp time.Time       `json:"timestamp"`
}

// AssistanceTurn is one exchange in the multi-turn loop. Append-only.
type AssistanceTurn struct {
	ID           string    `json:"id"`
	SessionID    string    `json:"session_id"`
	Prompt       string    `json:"prompt"`
	Response     string    `json:"response"`
	ActionType   string    `json:"action_type,omitempty"`
	Feedback     string    `json:"feedback,omitempty"`
	FallbackUsed bool      `json:"fallback_used,omitempty"`
	Timestamp    time.Time `json:"timestamp"`
}

// FeedbackAction is what the user did with an assistance message.
type FeedbackAction string

const (
	FeedbackAccept  FeedbackAction = "accept"
	FeedbackDismiss FeedbackAction = "dismiss"
	FeedbackText    FeedbackAction = "text"
)

// Feedback is the out-of-band user response to an assistance turn.
type Feedback struct {
	SessionID string         `json:"session_id"`
	Action    FeedbackAction `json:"action"`
	Text      string         `json:"text,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
}

// EnrichedContext is what a context handler adds to the agent prompt.
type EnrichedContext struct {
	Category       string `json:"category"`
	HandlerName    string `json:"handler_name"`
	ExtraForPrompt string `json:"extra_for_prompt"`
}
