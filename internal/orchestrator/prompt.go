package orchestrator

import (
	"fmt"
	"strings"
	"time"

	"github.com/jmarlin/focusd/internal/types"
)

const responseInstructions = `Respond with a single JSON object:
{"should_help": bool, "message": "what to tell the user", "reason": "why", "action_type": "nudge|suggestion|question"}
Set should_help to false if interrupting would do more harm than good. Keep the message under three sentences.`

// buildPrompt assembles the agent prompt from the trigger, the enriched
// context, past sessions (same-task, or recent overall when the task is
// new), and the turns so far.
func buildPrompt(ev types.TriggerEvent, enriched types.EnrichedContext,
	recent, global []types.SessionSnapshot, history []types.AssistanceTurn, userText string) string {

	var b strings.Builder

	b.WriteString("You are a focus assistant watching over someone's shoulder, sparingly.\n\n")

	minutes := ev.Session.Duration.Round(time.Second)
	fmt.Fprintf(&b, "Current task (%s): %s\n", enriched.Category, ev.Session.Signature)
	fmt.Fprintf(&b, "Time on task: %s. Trigger: %s.\n", minutes, describeReason(ev.Reason))
	if ev.State != types.StateUnknown {
		fmt.Fprintf(&b, "EEG-derived mental state: %s.\n", ev.State)
	}
	if enriched.ExtraForPrompt != "" {
		fmt.Fprintf(&b, "\n%s\n", enriched.ExtraForPrompt)
	}

	if past := summarizePast(recent, ev.Session.ID); past != "" {
		fmt.Fprintf(&b, "\nHistory on this task:\n%s", past)
	} else if past := summarizePast(global, ev.Session.ID); past != "" {
		fmt.Fprintf(&b, "\nRecent sessions on other tasks:\n%s", past)
	}

	if len(history) > 0 {
		b.WriteString("\nEarlier in this session:\n")
		for _, turn := range history {
			fmt.Fprintf(&b, "- you said: %s\n", turn.Response)
			if turn.Feedback != "" {
				fmt.Fprintf(&b, "  they responded: %s\n", turn.Feedback)
			}
		}
	}

	if userText != "" {
		fmt.Fprintf(&b, "\nThe user just replied: %q\n", userText)
	}

	b.WriteString("\n")
	b.WriteString(responseInstructions)
	return b.String()
}

func describeReason(r types.TriggerReason) string {
	switch r {
	case types.ReasonDuration:
		return "they have been here past the long-session threshold"
	case types.ReasonMentalCommand:
		return "they deliberately signalled for help via the headset"
	case types.ReasonExplicit:
		return "they explicitly asked for help"
	case types.ReasonFollowUp:
		return "checking in after earlier assistance"
	default:
		return string(r)
	}
}

func summarizePast(recent []types.SessionSnapshot, currentID string) string {
	var b strings.Builder
	n := 0
	for _, s := range recent {
		if s.ID == currentID {
			continue
		}
		fmt.Fprintf(&b, "- %s for %s, outcome %s\n",
			s.StartedAt.Format("Jan 2 15:04"), s.Duration.Round(time.Second), s.Outcome)
		n++
		if n >= 5 {
			break
		}
	}
	if n == 0 {
		return ""
	}
	return b.String()
}
