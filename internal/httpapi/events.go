package httpapi

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"

	"github.com/tonimelisma/onedrive-index/internal/gateway"
)

const (
	subscriberBuffer  = 16
	eventWriteTimeout = 5 * time.Second
)

// Hub fans invalidation events out to websocket subscribers. A subscriber
// that falls behind loses events rather than stalling the gateway.
type Hub struct {
	mu     sync.Mutex
	subs   map[chan gateway.Event]struct{}
	logger *slog.Logger
}

// NewHub creates an empty Hub.
func NewHub(logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.Default()
	}

	return &Hub{
		subs:   make(map[chan gateway.Event]struct{}),
		logger: logger,
	}
}

// Invalidated implements gateway.Listener. It never blocks.
func (h *Hub) Invalidated(e gateway.Event) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for ch := range h.subs {
		select {
		case ch <- e:
		default:
			h.logger.Debug("dropping event for slow subscriber", slog.String("op", e.Op))
		}
	}
}

// Subscribe registers a new subscriber. The returned cancel function must
// be called exactly once.
func (h *Hub) Subscribe() (<-chan gateway.Event, func()) {
	ch := make(chan gateway.Event, subscriberBuffer)

	h.mu.Lock()
	h.subs[ch] = struct{}{}
	h.mu.Unlock()

	return ch, func() {
		h.mu.Lock()
		delete(h.subs, ch)
		h.mu.Unlock()
	}
}

// Subscribers reports how many subscribers are connected.
func (h *Hub) Subscribers() int {
	h.mu.Lock()
	defer h.mu.Unlock()

	return len(h.subs)
}

// handleEvents upgrades to a websocket and writes one JSON message per
// invalidation until either side goes away. Client messages are ignored.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	if s.hub == nil {
		s.writeFailure(w, r, http.StatusNotFound, codeNotFound, "event stream is disabled")
		return
	}

	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		// Accept has already written the HTTP error.
		s.logger.Debug("websocket accept failed", slog.String("error", err.Error()))
		return
	}
	defer conn.CloseNow()

	events, cancel := s.hub.Subscribe()
	defer cancel()

	ctx := conn.CloseRead(r.Context())

	for {
		select {
		case <-ctx.Done():
			return
		case e := <-events:
			if err := s.writeEvent(ctx, conn, e); err != nil {
				if !errors.Is(err, context.Canceled) {
					s.logger.Debug("event stream closed", slog.String("error", err.Error()))
				}

				return
			}
		}
	}
}

func (s *Server) writeEvent(ctx context.Context, conn *websocket.Conn, e gateway.Event) error {
	ctx, cancel := context.WithTimeout(ctx, eventWriteTimeout)
	defer cancel()

	return wsjson.Write(ctx, conn, e)
}
