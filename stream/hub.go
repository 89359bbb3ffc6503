// Package stream broadcasts overlay frames and track snapshots to websocket
// viewers.
package stream

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/DaniruKun/steady-tracker/tracker"
)

const (
	writeWait  = 2 * time.Second
	bufferSize = 8
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// TrackView is the wire form of one live track.
type TrackView struct {
	ID    int64         `json:"id"`
	State tracker.State `json:"state"`
	X     float64       `json:"x"`
	Y     float64       `json:"y"`
}

// Message is sent to every viewer once per frame. Image is a JPEG and is
// base64 encoded on the wire.
type Message struct {
	Frame        int64           `json:"frame"`
	Degraded     bool            `json:"degraded"`
	Observations int             `json:"observations"`
	Tracks       []TrackView     `json:"tracks"`
	Events       []tracker.Event `json:"events,omitempty"`
	Image        []byte          `json:"image"`
}

func NewMessage(jpeg []byte, snap tracker.Snapshot) Message {
	views := make([]TrackView, 0, len(snap.Tracks))
	for _, t := range snap.Tracks {
		views = append(views, TrackView{ID: t.ID, State: t.State, X: t.Center.X, Y: t.Center.Y})
	}
	return Message{
		Frame:        snap.Frame,
		Degraded:     snap.Degraded,
		Observations: snap.Observations,
		Tracks:       views,
		Events:       snap.Events,
		Image:        jpeg,
	}
}

// Hub fans messages out to connected viewers. Publishing never blocks the
// frame loop: when viewers fall behind, messages are dropped.
type Hub struct {
	clients    map[*websocket.Conn]bool
	broadcast  chan []byte
	register   chan *websocket.Conn
	unregister chan *websocket.Conn
	done       chan struct{}
	mutex      sync.RWMutex
	log        zerolog.Logger
}

func NewHub(log zerolog.Logger) *Hub {
	return &Hub{
		clients:    make(map[*websocket.Conn]bool),
		broadcast:  make(chan []byte, bufferSize),
		register:   make(chan *websocket.Conn),
		unregister: make(chan *websocket.Conn),
		done:       make(chan struct{}),
		log:        log.With().Str("component", "stream").Logger(),
	}
}

// Run serves registrations and broadcasts until ctx is done, then closes all
// viewer connections.
func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)
	for {
		select {
		case <-ctx.Done():
			h.mutex.Lock()
			for client := range h.clients {
				client.Close()
				delete(h.clients, client)
			}
			h.mutex.Unlock()
			return

		case client := <-h.register:
			h.mutex.Lock()
			h.clients[client] = true
			n := len(h.clients)
			h.mutex.Unlock()
			h.log.Info().Int("clients", n).Msg("Client connected")

		case client := <-h.unregister:
			h.mutex.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				client.Close()
			}
			n := len(h.clients)
			h.mutex.Unlock()
			h.log.Info().Int("clients", n).Msg("Client disconnected")

		case message := <-h.broadcast:
			h.mutex.Lock()
			for client := range h.clients {
				client.SetWriteDeadline(time.Now().Add(writeWait))
				if err := client.WriteMessage(websocket.TextMessage, message); err != nil {
					h.log.Warn().Err(err).Msg("Error sending message")
					delete(h.clients, client)
					client.Close()
				}
			}
			h.mutex.Unlock()
		}
	}
}

// Publish queues a frame for all viewers, dropping it if the queue is full.
func (h *Hub) Publish(jpeg []byte, snap tracker.Snapshot) {
	payload, err := json.Marshal(NewMessage(jpeg, snap))
	if err != nil {
		h.log.Warn().Err(err).Int64("frame", snap.Frame).Msg("Failed to encode message")
		return
	}
	select {
	case h.broadcast <- payload:
	default:
		h.log.Debug().Int64("frame", snap.Frame).Msg("Viewers behind, frame dropped")
	}
}

// ClientCount returns the number of connected viewers.
func (h *Hub) ClientCount() int {
	h.mutex.RLock()
	defer h.mutex.RUnlock()
	return len(h.clients)
}

// ServeWS upgrades a viewer connection and keeps it registered until the
// viewer goes away.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn().Err(err).Msg("WebSocket upgrade error")
		return
	}

	select {
	case h.register <- conn:
	case <-h.done:
		conn.Close()
		return
	}

	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				h.log.Debug().Err(err).Msg("Viewer disconnected with error")
			}
			break
		}
	}

	select {
	case h.unregister <- conn:
	case <-h.done:
	}
}

// Serve exposes the hub at /ws on addr until ctx is done.
func Serve(ctx context.Context, addr string, hub *Hub) error {
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", hub.ServeWS)

	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	errCh := make(chan error, 1)
	go func() {
		hub.log.Info().Str("addr", addr).Msg("Streaming overlays")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}
