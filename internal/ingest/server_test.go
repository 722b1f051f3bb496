package ingest

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/jmarlin/focusd/internal/types"
)

type fakeSink struct {
	mu        sync.Mutex
	activity  []*types.ActivityEvent
	metrics   []*types.MetricSample
	commands  []*types.MentalCommand
	feedback  []types.Feedback
	triggered int
}

func (f *fakeSink) Activity(ev *types.ActivityEvent) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.activity = append(f.activity, ev)
}

func (f *fakeSink) Metrics(s *types.MetricSample) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.metrics = append(f.metrics, s)
}

func (f *fakeSink) Command(c *types.MentalCommand) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.commands = append(f.commands, c)
}

func (f *fakeSink) Feedback(fb types.Feedback) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.feedback = append(f.feedback, fb)
}

func (f *fakeSink) ExplicitTrigger(time.Time) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.triggered++
}

func newTestServer(t *testing.T) (*Server, *fakeSink, *httptest.Server) {
	t.Helper()
	sink := &fakeSink{}
	s := NewServer("127.0.0.1:0", sink, func() any {
		return map[string]string{"state": "idle"}
	})
	ts := httptest.NewServer(s.srv.Handler)
	t.Cleanup(ts.Close)
	return s, sink, ts
}

func TestPostEvents(t *testing.T) {
	_, sink, ts := newTestServer(t)

	body := `{"type":"activity","app_name":"Cursor","window_title":"a.go"}`
	resp, err := http.Post(ts.URL+"/events", "application/json", strings.NewReader(body))
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusAccepted {
		t.Fatalf("status = %d, want 202", resp.StatusCode)
	}

	sink.mu.Lock()
	defer sink.mu.Unlock()
	if len(sink.activity) != 1 || sink.activity[0].AppName != "Cursor" {
		t.Errorf("activity = %+v", sink.activity)
	}
}

func TestPostEventsRejectsBadFrame(t *testing.T) {
	_, _, ts := newTestServer(t)

	resp, err := http.Post(ts.URL+"/events", "application/json", strings.NewReader(`{"type":"nope"}`))
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", resp.StatusCode)
	}
}

func TestPostFeedback(t *testing.T) {
	_, sink, ts := newTestServer(t)

	fb, _ := json.Marshal(map[string]string{"session_id": "s1", "action": "accept"})
	resp, err := http.Post(ts.URL+"/feedback", "application/json", bytes.NewReader(fb))
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusAccepted {
		t.Fatalf("status = %d, want 202", resp.StatusCode)
	}

	sink.mu.Lock()
	defer sink.mu.Unlock()
	if len(sink.feedback) != 1 || sink.feedback[0].Action != types.FeedbackAccept {
		t.Errorf("feedback = %+v", sink.feedback)
	}
	if sink.feedback[0].Timestamp.IsZero() {
		t.Error("feedback timestamp not stamped")
	}
}

func TestGetFeedbackPollFallback(t *testing.T) {
	s, _, ts := newTestServer(t)

	resp, err := http.Get(ts.URL + "/feedback")
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("status = %d, want 204 before any push", resp.StatusCode)
	}

	s.Push("s1", "take a breath")

	resp, err = http.Get(ts.URL + "/feedback")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	var got pushedMessage
	if err := json.NewDecoder(resp.Body).Decode(&got); err != nil {
		t.Fatal(err)
	}
	if got.SessionID != "s1" || got.Message != "take a breath" {
		t.Errorf("polled = %+v", got)
	}
}

func TestPostTrigger(t *testing.T) {
	_, sink, ts := newTestServer(t)

	resp, err := http.Post(ts.URL+"/trigger", "application/json", nil)
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()

	sink.mu.Lock()
	defer sink.mu.Unlock()
	if sink.triggered != 1 {
		t.Errorf("triggered = %d, want 1", sink.triggered)
	}
}

func TestStatus(t *testing.T) {
	_, _, ts := newTestServer(t)

	resp, err := http.Get(ts.URL + "/status")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()

	var got map[string]string
	if err := json.NewDecoder(resp.Body).Decode(&got); err != nil {
		t.Fatal(err)
	}
	if got["state"] != "idle" {
		t.Errorf("status = %v", got)
	}
}

func TestWebsocketRoundTrip(t *testing.T) {
	s, sink, ts := newTestServer(t)

	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatal(err)
	}
	defer conn.Close()

	// Stream a frame in.
	frame := `{"type":"command","action":"push","power":0.9}`
	if err := conn.WriteMessage(websocket.TextMessage, []byte(frame)); err != nil {
		t.Fatal(err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for {
		sink.mu.Lock()
		n := len(sink.commands)
		sink.mu.Unlock()
		if n == 1 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("command never reached the sink")
		}
		time.Sleep(10 * time.Millisecond)
	}

	// Push a message out.
	s.Push("s1", "take a breath")

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var got map[string]string
	if err := conn.ReadJSON(&got); err != nil {
		t.Fatal(err)
	}
	if got["type"] != "assistance" || got["message"] != "take a breath" {
		t.Errorf("pushed = %v", got)
	}
}

func TestWebsocketBadFrameGetsError(t *testing.T) {
	_, sink, ts := newTestServer(t)

	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatal(err)
	}
	defer conn.Close()

	if err := conn.WriteMessage(websocket.TextMessage, []byte(`garbage`)); err != nil {
		t.Fatal(err)
	}

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var got map[string]string
	if err := conn.ReadJSON(&got); err != nil {
		t.Fatal(err)
	}
	if got["type"] != "error" {
		t.Errorf("reply = %v, want error frame", got)
	}

	sink.mu.Lock()
	defer sink.mu.Unlock()
	if len(sink.activity)+len(sink.metrics)+len(sink.commands) != 0 {
		t.Error("bad frame reached the sink")
	}
}
