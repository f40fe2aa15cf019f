// Package web provides an HTTP status server for the kiosk daemon.
package web

import (
	"context"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/sweeney/feedback-kiosk/internal/status"
)

// DefaultPushInterval is how often /ws clients receive a status update.
const DefaultPushInterval = time.Second

const writeWait = 5 * time.Second

// Server serves the status page over HTTP.
type Server struct {
	httpServer *http.Server
	tracker    *status.Tracker
	interval   time.Duration
	upgrader   websocket.Upgrader

	done      chan struct{}
	closeOnce sync.Once
	wg        sync.WaitGroup
}

// New creates a Server that reads state from the given tracker. interval
// controls the websocket push rate; zero means DefaultPushInterval.
func New(addr string, tracker *status.Tracker, interval time.Duration) *Server {
	if interval <= 0 {
		interval = DefaultPushInterval
	}
	s := &Server{
		tracker:  tracker,
		interval: interval,
		done:     make(chan struct{}),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
		},
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/", s.handleIndex)
	mux.HandleFunc("/index.html", s.handleIndex)
	mux.HandleFunc("/index.json", s.handleJSON)
	mux.HandleFunc("/ws", s.handleWS)

	s.httpServer = &http.Server{
		Addr:    addr,
		Handler: mux,
	}
	return s
}

// Handler returns the server's request multiplexer.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// ListenAndServe starts listening. It blocks until the server is shut down.
func (s *Server) ListenAndServe() error {
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully shuts down the server and any websocket clients.
// Hijacked websocket connections are not tracked by http.Server, so they
// are stopped here explicitly.
func (s *Server) Shutdown(ctx context.Context) error {
	s.closeOnce.Do(func() { close(s.done) })
	err := s.httpServer.Shutdown(ctx)
	s.wg.Wait()
	return err
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" && r.URL.Path != "/index.html" {
		http.NotFound(w, r)
		return
	}
	snap := s.tracker.Snapshot()
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	renderHTML(w, snap)
}

func (s *Server) handleJSON(w http.ResponseWriter, r *http.Request) {
	snap := s.tracker.Snapshot()
	w.Header().Set("Content-Type", "application/json")
	w.Write(status.FormatJSON(snap))
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already written an HTTP error
		log.Printf("web: websocket upgrade: %v", err)
		return
	}

	s.wg.Add(1)
	defer s.wg.Done()
	defer conn.Close()

	// The browser never sends anything we act on; reading is only needed
	// to notice close frames.
	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	if !s.push(conn) {
		return
	}
	for {
		select {
		case <-ticker.C:
			if !s.push(conn) {
				return
			}
		case <-closed:
			return
		case <-s.done:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			conn.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseGoingAway, "shutting down"))
			return
		}
	}
}

func (s *Server) push(conn *websocket.Conn) bool {
	conn.SetWriteDeadline(time.Now().Add(writeWait))
	data := status.FormatStatusEvent(s.tracker.Snapshot(), "", "")
	if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
		return false
	}
	return true
}
