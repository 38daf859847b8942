package http

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"hr-testing-service/internal/domain"
)

// Subscriber hands out live notification feeds.
type Subscriber interface {
	Subscribe() (<-chan domain.Notification, func())
}

// WSHandler streams review notifications to dashboards over websockets.
type WSHandler struct {
	feed     Subscriber
	upgrader websocket.Upgrader
	logger   *slog.Logger
	ping     time.Duration
}

func NewWSHandler(feed Subscriber, logger *slog.Logger) *WSHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &WSHandler{
		feed: feed,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		logger: logger,
		ping:   30 * time.Second,
	}
}

type outboundMessage[T any] struct {
	Type    string `json:"type"`
	Payload T      `json:"payload"`
}

type subscribedPayload struct {
	Events []string `json:"events"`
}

// ServeWS upgrades the request and forwards every notification until the client goes away.
// Inbound frames are read only to notice the close.
func (h *WSHandler) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("ws upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	updates, cancel := h.feed.Subscribe()
	defer cancel()

	readerDone := make(chan struct{})
	go func() {
		defer close(readerDone)
		for {
			if _, _, err := conn.NextReader(); err != nil {
				return
			}
		}
	}()

	hello := outboundMessage[subscribedPayload]{
		Type:    "subscribed",
		Payload: subscribedPayload{Events: []string{domain.EventResultReviewed}},
	}
	if err := conn.WriteJSON(hello); err != nil {
		return
	}

	ticker := time.NewTicker(h.ping)
	defer ticker.Stop()

	for {
		select {
		case n, ok := <-updates:
			if !ok {
				return
			}
			if err := conn.WriteJSON(outboundMessage[domain.ResultReviewed]{Type: n.Event, Payload: n.Payload}); err != nil {
				h.logger.Debug("ws write error", "error", err)
				return
			}
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(5*time.Second)); err != nil {
				return
			}
		case <-readerDone:
			return
		case <-r.Context().Done():
			return
		}
	}
}
