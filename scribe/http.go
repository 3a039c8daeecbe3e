package scribe

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sort"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
)

const (
	// Time allowed to write a message to the peer
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer
	pongWait = 60 * time.Second

	// Send pings to peer with this period (must be less than pongWait)
	pingPeriod = (pongWait * 9) / 10
)

type wsConnection struct {
	conn   *websocket.Conn
	send   chan []byte
	scribe *Scribe
}

func (s *Scribe) startHTTP(ctx context.Context) error {
	router := mux.NewRouter()

	// API routes
	router.HandleFunc("/api/transcripts", s.handleListTranscripts).Methods("GET")
	router.HandleFunc("/api/transcripts/{id}", s.handleGetTranscript).Methods("GET")
	router.HandleFunc("/ws", s.handleWebSocket)

	s.server = &http.Server{
		Addr:    s.config.HTTPAddr,
		Handler: router,
	}

	go func() {
		var err error
		if s.config.CertFile != "" {
			err = s.server.ListenAndServeTLS(s.config.CertFile, s.config.KeyFile)
		} else {
			err = s.server.ListenAndServe()
		}
		if err != http.ErrServerClosed {
			slog.Error("HTTP server error", "error", err)
		}
	}()

	slog.Info("Transcript API listening", "addr", s.config.HTTPAddr)

	<-ctx.Done()
	return s.server.Shutdown(context.Background())
}

// handleListTranscripts returns all recorded transcripts, most recent first.
func (s *Scribe) handleListTranscripts(w http.ResponseWriter, r *http.Request) {
	transcripts := make([]*Transcript, 0)
	s.transcripts.Range(func(key, value interface{}) bool {
		transcripts = append(transcripts, value.(*Transcript))
		return true
	})
	sort.Slice(transcripts, func(i, j int) bool {
		return transcripts[i].QueuedAt.After(transcripts[j].QueuedAt)
	})

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(transcripts); err != nil {
		slog.Error("Failed to encode transcript list", "error", err)
	}
}

// handleGetTranscript returns the full record for one transcript.
func (s *Scribe) handleGetTranscript(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	id := vars["id"]

	value, ok := s.transcripts.Load(id)
	if !ok {
		http.Error(w, "Transcript not found", http.StatusNotFound)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(value.(*Transcript)); err != nil {
		slog.Error("Failed to encode transcript",
			"error", err,
			"id", id)
	}
}

func (s *Scribe) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Error("WebSocket upgrade failed", "error", err)
		return
	}

	wsConn := &wsConnection{
		conn:   conn,
		send:   make(chan []byte, 256),
		scribe: s,
	}

	s.registerSubscriber(wsConn)

	go wsConn.writePump()
	go wsConn.readPump()
}

func (s *Scribe) registerSubscriber(wsConn *wsConnection) {
	s.subMu.Lock()
	defer s.subMu.Unlock()
	s.subscribers = append(s.subscribers, wsConn)
	slog.Debug("Live feed subscriber connected",
		"remoteAddr", wsConn.conn.RemoteAddr(),
		"subscribers", len(s.subscribers))
}

func (s *Scribe) unregisterSubscriber(wsConn *wsConnection) {
	s.subMu.Lock()
	defer s.subMu.Unlock()
	for i, conn := range s.subscribers {
		if conn == wsConn {
			s.subscribers = append(s.subscribers[:i], s.subscribers[i+1:]...)
			break
		}
	}
}

func (c *wsConnection) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			w, err := c.conn.NextWriter(websocket.TextMessage)
			if err != nil {
				return
			}
			w.Write(message)

			if err := w.Close(); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (c *wsConnection) readPump() {
	defer func() {
		c.scribe.unregisterSubscriber(c)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(512)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, _, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				slog.Error("WebSocket read error", "error", err)
			}
			break
		}
	}
}
