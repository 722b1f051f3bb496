package ingest

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/jmarlin/focusd/internal/logging"
	"github.com/jmarlin/focusd/internal/types"
)

// Sink receives decoded inputs from collectors. The daemon wires this to the
// event funnel so everything reaches the tracker on one goroutine.
type Sink interface {
	Activity(*types.ActivityEvent)
	Metrics(*types.MetricSample)
	Command(*types.MentalCommand)
	Feedback(types.Feedback)
	ExplicitTrigger(at time.Time)
}

// StatusFunc supplies the /status payload.
type StatusFunc func() any

// Server is the collector-facing surface: a websocket for streaming inputs
// and assistance push, plus plain HTTP for one-shot posts and status.
type Server struct {
	sink   Sink
	status StatusFunc
	srv    *http.Server

	upgrader websocket.Upgrader

	mu      sync.Mutex
	clients map[*wsClient]struct{}
	lastMsg *pushedMessage
}

// pushedMessage is the most recent assistance message, kept for clients that
// poll instead of holding a websocket open.
type pushedMessage struct {
	SessionID string    `json:"session_id"`
	Message   string    `json:"message"`
	PushedAt  time.Time `json:"pushed_at"`
}

type wsClient struct {
	mu   sync.Mutex
	conn *websocket.Conn
}

func (c *wsClient) send(v any) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
	return c.conn.WriteJSON(v)
}

func NewServer(addr string, sink Sink, status StatusFunc) *Server {
	s := &Server{
		sink:    sink,
		status:  status,
		clients: make(map[*wsClient]struct{}),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			// Collectors run on the same host; the daemon binds loopback.
			CheckOrigin: func(*http.Request) bool { return true },
		},
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/ws", s.handleWS)
	mux.HandleFunc("/events", s.handleEvents)
	mux.HandleFunc("/feedback", s.handleFeedback)
	mux.HandleFunc("/trigger", s.handleTrigger)
	mux.HandleFunc("/status", s.handleStatus)

	s.srv = &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

// Start begins serving. Returns once the listener is handed off; serve
// errors after startup are logged, not returned.
func (s *Server) Start() {
	go func() {
		logging.Info("ingest", "listening on %s", s.srv.Addr)
		if err := s.srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logging.Info("ingest", "server stopped: %v", err)
		}
	}()
}

// Stop drains connections and shuts the listener down.
func (s *Server) Stop(ctx context.Context) error {
	s.mu.Lock()
	for c := range s.clients {
		c.conn.Close()
	}
	s.clients = make(map[*wsClient]struct{})
	s.mu.Unlock()
	return s.srv.Shutdown(ctx)
}

// Push broadcasts an assistance message to every connected client. Clients
// that fail the write are dropped; the collector reconnects.
func (s *Server) Push(sessionID, message string) {
	payload := map[string]string{
		"type":       "assistance",
		"session_id": sessionID,
		"message":    message,
	}

	s.mu.Lock()
	s.lastMsg = &pushedMessage{SessionID: sessionID, Message: message, PushedAt: time.Now()}
	clients := make([]*wsClient, 0, len(s.clients))
	for c := range s.clients {
		clients = append(clients, c)
	}
	s.mu.Unlock()

	for _, c := range clients {
		if err := c.send(payload); err != nil {
			logging.Debug("ingest", "push failed, dropping client: %v", err)
			s.dropClient(c)
		}
	}
}

func (s *Server) dropClient(c *wsClient) {
	s.mu.Lock()
	delete(s.clients, c)
	s.mu.Unlock()
	c.conn.Close()
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		logging.Debug("ingest", "upgrade failed: %v", err)
		return
	}
	client := &wsClient{conn: conn}

	s.mu.Lock()
	s.clients[client] = struct{}{}
	n := len(s.clients)
	s.mu.Unlock()
	logging.Info("ingest", "collector connected (%d total)", n)

	defer func() {
		s.dropClient(client)
		logging.Info("ingest", "collector disconnected")
	}()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return
		}
		input, err := DecodeFrame(data, time.Now())
		if err != nil {
			logging.Debug("ingest", "bad frame: %v", err)
			client.send(map[string]string{"type": "error", "error": err.Error()})
			continue
		}
		s.dispatch(input)
	}
}

func (s *Server) dispatch(in *Input) {
	switch {
	case in.Activity != nil:
		s.sink.Activity(in.Activity)
	case in.Metrics != nil:
		s.sink.Metrics(in.Metrics)
	case in.Command != nil:
		s.sink.Command(in.Command)
	}
}

func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "POST only", http.StatusMethodNotAllowed)
		return
	}
	data, err := readBody(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	input, err := DecodeFrame(data, time.Now())
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	s.dispatch(input)
	w.WriteHeader(http.StatusAccepted)
}

func (s *Server) handleFeedback(w http.ResponseWriter, r *http.Request) {
	// GET is the poll fallback: the latest assistance message, if any.
	if r.Method == http.MethodGet {
		s.mu.Lock()
		last := s.lastMsg
		s.mu.Unlock()
		if last == nil {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(last)
		return
	}
	if r.Method != http.MethodPost {
		http.Error(w, "GET or POST only", http.StatusMethodNotAllowed)
		return
	}
	var fb types.Feedback
	data, err := readBody(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if err := json.Unmarshal(data, &fb); err != nil {
		http.Error(w, "malformed feedback", http.StatusBadRequest)
		return
	}
	if fb.SessionID == "" || fb.Action == "" {
		http.Error(w, "feedback needs session_id and action", http.StatusBadRequest)
		return
	}
	if fb.Timestamp.IsZero() {
		fb.Timestamp = time.Now()
	}
	s.sink.Feedback(fb)
	w.WriteHeader(http.StatusAccepted)
}

func (s *Server) handleTrigger(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "POST only", http.StatusMethodNotAllowed)
		return
	}
	s.sink.ExplicitTrigger(time.Now())
	w.WriteHeader(http.StatusAccepted)
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "GET only", http.StatusMethodNotAllowed)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(s.status())
}

func readBody(r *http.Request) ([]byte, error) {
	defer r.Body.Close()
	return io.ReadAll(io.LimitReader(r.Body, 64*1024))
}
