package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/joho/godotenv"

	"github.com/jmarlin/focusd/internal/config"
	"github.com/jmarlin/focusd/internal/eventlog"
	"github.com/jmarlin/focusd/internal/mentalstate"
	"github.com/jmarlin/focusd/internal/tracker"
	"github.com/jmarlin/focusd/internal/types"
)

// focusd-replay runs a capture file back through the session state machine
// with the current thresholds, printing what would have happened. Change
// the thresholds in env or yaml and re-run to tune without a live headset.
func main() {
	configPath := flag.String("config", "focusd.yaml", "optional yaml config file")
	verbose := flag.Bool("v", false, "print every session, not just a summary")
	flag.Parse()

	if flag.NArg() != 1 {
		fmt.Fprintf(os.Stderr, "usage: focusd-replay [-config file] [-v] capture.jsonl\n")
		os.Exit(2)
	}

	godotenv.Load()
	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("[replay] config: %v", err)
	}

	entries, err := eventlog.ReadAll(flag.Arg(0))
	if err != nil {
		log.Fatalf("[replay] %v", err)
	}
	if len(entries) == 0 {
		log.Fatalf("[replay] capture is empty")
	}

	classifier := mentalstate.NewClassifier(cfg)
	tr := tracker.New(cfg)

	var (
		sessions  []types.SessionSnapshot
		warns     int
		triggers  []types.TriggerEvent
		lastStamp time.Time
	)
	tr.OnWarn(func(types.SessionSnapshot) { warns++ })
	tr.OnTrigger(func(ev types.TriggerEvent) { triggers = append(triggers, ev) })
	tr.OnClose(func(s types.SessionSnapshot) { sessions = append(sessions, s) })

	for _, e := range entries {
		switch e.Type {
		case eventlog.TypeActivity:
			if e.Activity != nil {
				tr.OnEvent(e.Activity)
			}
		case eventlog.TypeMetrics:
			if e.Metrics != nil {
				tr.OnMentalState(classifier.Classify(e.Metrics), e.Metrics.Timestamp)
			}
		case eventlog.TypeCommand:
			if e.Command != nil {
				tr.OnMentalCommand(e.Command)
			}
		}
		if e.Timestamp.After(lastStamp) {
			lastStamp = e.Timestamp
		}
		tr.CheckIdle(e.Timestamp)
	}
	tr.CloseCurrent(lastStamp, types.OutcomeNone)

	fmt.Printf("replayed %d entries: %d sessions, %d warns, %d triggers\n",
		len(entries), len(sessions), warns, len(triggers))

	if *verbose {
		for _, s := range sessions {
			fmt.Printf("  %s  %-40s  %8s  warned=%-5v triggered=%-5v outcome=%s\n",
				s.StartedAt.Format("15:04:05"), truncate(s.Signature, 40),
				s.Duration.Round(time.Second), s.Warned, s.Triggered, s.Outcome)
		}
		for _, ev := range triggers {
			fmt.Printf("  trigger %-20s at %s on %s (state %s)\n",
				ev.Reason, ev.Timestamp.Format("15:04:05"),
				truncate(ev.Session.Signature, 40), ev.State)
		}
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n-3] + "..."
}
