package store

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/jmarlin/focusd/internal/types"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "focusd.db"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func sampleSession(id, sig string, started time.Time) types.SessionSnapshot {
	return types.SessionSnapshot{
		ID:           id,
		Signature:    sig,
		AppName:      "Cursor",
		WindowTitle:  "tracker.go - focusd",
		StartedAt:    started,
		LastSeenAt:   started.Add(90 * time.Second),
		Duration:     90 * time.Second,
		Warned:       true,
		Observations: []types.MentalState{types.StateFocused, types.StateStuck},
		Outcome:      types.OutcomeNone,
	}
}

func TestSaveAndQuerySessions(t *testing.T) {
	s := openTestStore(t)
	base := time.Date(2026, 8, 24, 9, 0, 0, 0, time.UTC)

	if err := s.SaveSession(sampleSession("s1", "cursor::a.go", base)); err != nil {
		t.Fatal(err)
	}
	if err := s.SaveSession(sampleSession("s2", "cursor::b.go", base.Add(time.Hour))); err != nil {
		t.Fatal(err)
	}

	got, err := s.RecentSessions(10)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 {
		t.Fatalf("sessions = %d, want 2", len(got))
	}
	if got[0].ID != "s2" {
		t.Errorf("first session = %s, want newest first", got[0].ID)
	}
	if got[1].Duration != 90*time.Second {
		t.Errorf("duration = %v, want 90s", got[1].Duration)
	}
	if len(got[1].Observations) != 2 || got[1].Observations[1] != types.StateStuck {
		t.Errorf("observations = %v, want [focused stuck]", got[1].Observations)
	}
}

func TestSaveSessionUpsert(t *testing.T) {
	s := openTestStore(t)
	base := time.Date(2026, 8, 24, 9, 0, 0, 0, time.UTC)

	snap := sampleSession("s1", "cursor::a.go", base)
	if err := s.SaveSession(snap); err != nil {
		t.Fatal(err)
	}
	snap.Duration = 200 * time.Second
	snap.Triggered = true
	snap.Outcome = types.OutcomeHelped
	if err := s.SaveSession(snap); err != nil {
		t.Fatal(err)
	}

	got, err := s.RecentSessions(10)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 {
		t.Fatalf("sessions = %d, want 1 after upsert", len(got))
	}
	if !got[0].Triggered || got[0].Outcome != types.OutcomeHelped {
		t.Errorf("upsert lost fields: %+v", got[0])
	}
}

func TestRecentSessionsForSignature(t *testing.T) {
	s := openTestStore(t)
	base := time.Date(2026, 8, 24, 9, 0, 0, 0, time.UTC)

	s.SaveSession(sampleSession("s1", "cursor::a.go", base))
	s.SaveSession(sampleSession("s2", "firefox::docs", base.Add(time.Minute)))
	s.SaveSession(sampleSession("s3", "cursor::a.go", base.Add(2*time.Minute)))

	got, err := s.RecentSessionsFor("cursor::a.go", 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 {
		t.Fatalf("sessions = %d, want 2 for signature", len(got))
	}
	for _, snap := range got {
		if snap.Signature != "cursor::a.go" {
			t.Errorf("wrong signature in result: %s", snap.Signature)
		}
	}
}

func TestTurnsAndFeedback(t *testing.T) {
	s := openTestStore(t)
	base := time.Date(2026, 8, 24, 9, 0, 0, 0, time.UTC)

	s.SaveTurn(types.AssistanceTurn{
		ID: "t1", SessionID: "s1", Prompt: "p1", Response: "r1", Timestamp: base,
	})
	s.SaveTurn(types.AssistanceTurn{
		ID: "t2", SessionID: "s1", Prompt: "p2", Response: "r2",
		ActionType: "suggestion", FallbackUsed: true, Timestamp: base.Add(time.Minute),
	})

	if err := s.SetTurnFeedback("s1", "accept"); err != nil {
		t.Fatal(err)
	}

	turns, err := s.TurnsFor("s1")
	if err != nil {
		t.Fatal(err)
	}
	if len(turns) != 2 {
		t.Fatalf("turns = %d, want 2", len(turns))
	}
	if turns[0].Feedback != "" {
		t.Errorf("feedback landed on the wrong turn: %+v", turns[0])
	}
	if turns[1].Feedback != "accept" {
		t.Errorf("latest turn feedback = %q, want accept", turns[1].Feedback)
	}
	if !turns[1].FallbackUsed {
		t.Error("fallback flag lost")
	}
}

func TestSaveTrigger(t *testing.T) {
	s := openTestStore(t)

	err := s.SaveTrigger(types.TriggerEvent{
		Session:   types.SessionSnapshot{ID: "s1"},
		State:     types.StateStuck,
		Reason:    types.ReasonDuration,
		Timestamp: time.Now(),
	})
	if err != nil {
		t.Fatalf("SaveTrigger: %v", err)
	}
}
