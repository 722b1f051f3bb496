package agent

import (
	"fmt"
	"time"

	"github.com/jmarlin/focusd/internal/types"
)

// Fallback composes a canned assistance message when the agent call fails
// or times out. The user still gets something useful at the moment they
// needed it; the turn is marked so history shows which replies were canned.
func Fallback(trigger types.TriggerEvent) *Response {
	minutes := int(trigger.Session.Duration.Round(time.Minute) / time.Minute)
	if minutes < 1 {
		minutes = 1
	}
	task := trigger.Session.WindowTitle
	if task == "" {
		task = trigger.Session.AppName
	}

	var msg string
	switch trigger.State {
	case types.StateStuck:
		msg = fmt.Sprintf(
			"You've been on %q for %d minutes and seem stuck. Try explaining the problem out loud, or step away for two minutes and come back.",
			task, minutes)
	case types.StateDistracted:
		msg = fmt.Sprintf(
			"You've been on %q for %d minutes with wandering attention. Close what you don't need and pick the one next step.",
			task, minutes)
	default:
		msg = fmt.Sprintf(
			"You've been on %q for %d minutes. Quick check: is this still the thing you meant to be doing?",
			task, minutes)
	}

	return &Response{
		ShouldHelp: true,
		Message:    msg,
		Reason:     "agent unavailable",
		ActionType: "nudge",
	}
}
