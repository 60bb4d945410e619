// Package web is the external surface: submit a target or a stop over
// HTTP, poll the status snapshot, or subscribe to the websocket status
// stream. Nothing here mutates controller state directly; commands go
// through the command channel and status reads are read-only snapshots.
package web

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/ranhaber/car-x/command"
	"github.com/ranhaber/car-x/control"
)

// statusPushInterval is the websocket broadcast cadence.
const statusPushInterval = 200 * time.Millisecond

// StatusFunc returns the current read-only status snapshot.
type StatusFunc func() control.Status

// Server serves the command and status API.
type Server struct {
	addr     string
	cmds     *command.Channel
	status   StatusFunc
	upgrader websocket.Upgrader

	mu      sync.Mutex
	clients map[string]*websocket.Conn
}

// NewServer creates the API server. addr is the listen address, e.g.
// ":5000".
func NewServer(addr string, cmds *command.Channel, status StatusFunc) *Server {
	return &Server{
		addr:   addr,
		cmds:   cmds,
		status: status,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		clients: make(map[string]*websocket.Conn),
	}
}

type targetRequest struct {
	X float64 `json:"x"` // meters relative to current origin
	Y float64 `json:"y"`
}

func (s *Server) handleTarget(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "POST only", http.StatusMethodNotAllowed)
		return
	}
	var req targetRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid JSON body", http.StatusBadRequest)
		return
	}
	// Commands arrive in meters; everything inside the car runs in cm.
	if err := s.cmds.SubmitTarget(req.X*100, req.Y*100); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	log.Printf("[web] target submitted (%.2f m, %.2f m)", req.X, req.Y)
	w.Header().Set("Content-Type", "application/json")
	w.Write([]byte(`{"ok":true}`))
}

func (s *Server) handleStop(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "POST only", http.StatusMethodNotAllowed)
		return
	}
	s.cmds.SubmitStop()
	log.Printf("[web] stop submitted")
	w.Header().Set("Content-Type", "application/json")
	w.Write([]byte(`{"ok":true}`))
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(s.status()); err != nil {
		log.Printf("[web] encoding status: %v", err)
	}
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("[web] websocket upgrade: %v", err)
		return
	}
	id := uuid.NewString()

	s.mu.Lock()
	s.clients[id] = conn
	s.mu.Unlock()

	// Reader loop exists only to observe the close.
	go func() {
		defer func() {
			s.mu.Lock()
			delete(s.clients, id)
			s.mu.Unlock()
			conn.Close()
		}()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()
}

// broadcast pushes the current status to every websocket client, dropping
// clients whose connection errors.
func (s *Server) broadcast() {
	payload, err := json.Marshal(s.status())
	if err != nil {
		return
	}
	s.mu.Lock()
	for id, conn := range s.clients {
		if err := conn.WriteMessage(websocket.TextMessage, payload); err != nil {
			delete(s.clients, id)
			conn.Close()
		}
	}
	s.mu.Unlock()
}

// Handler returns the HTTP routes, for tests and for embedding.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/target", s.handleTarget)
	mux.HandleFunc("/api/stop", s.handleStop)
	mux.HandleFunc("/api/status", s.handleStatus)
	mux.HandleFunc("/ws", s.handleWS)
	return mux
}

// Run serves until ctx is cancelled.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{Addr: s.addr, Handler: s.Handler()}

	go func() {
		ticker := time.NewTicker(statusPushInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.broadcast()
			}
		}
	}()

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	}()

	log.Printf("[web] listening on %s", s.addr)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}
