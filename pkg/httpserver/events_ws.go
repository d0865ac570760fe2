package httpserver

import (
	"net/http"
	"time"

	json "github.com/goccy/go-json"
	"github.com/gorilla/websocket"
	"github.com/solvex/mev-shield/internal/events"
	"go.uber.org/zap"
)

const (
	feedBufferSize = 256
	feedWriteWait  = 10 * time.Second
	feedPingPeriod = 30 * time.Second
)

// EventFeed streams protection lifecycle events to websocket clients.
type EventFeed struct {
	bus      *events.Bus
	logger   *zap.Logger
	upgrader websocket.Upgrader
}

// NewEventFeed creates a new event feed backed by the given bus.
func NewEventFeed(bus *events.Bus, logger *zap.Logger) *EventFeed {
	return &EventFeed{
		bus:    bus,
		logger: logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
	}
}

// Handle upgrades the request and streams all published events until the
// client disconnects or the bus is closed.
func (f *EventFeed) Handle(w http.ResponseWriter, r *http.Request) {
	conn, err := f.upgrader.Upgrade(w, r, nil)
	if err != nil {
		f.logger.Warn("websocket-upgrade-failed", zap.Error(err))
		return
	}
	defer conn.Close()

	sub := f.bus.Subscribe(feedBufferSize)
	defer sub.Cancel()

	// Drain reads so close frames and ping responses are processed.
	go func() {
		for {
			_, _, err := conn.ReadMessage()
			if err != nil {
				sub.Cancel()
				return
			}
		}
	}()

	ticker := time.NewTicker(feedPingPeriod)
	defer ticker.Stop()

	for {
		select {
		case ev, ok := <-sub.C():
			if !ok {
				_ = conn.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
					time.Now().Add(feedWriteWait))
				return
			}
			payload, err := json.Marshal(ev)
			if err != nil {
				f.logger.Error("event-marshal-failed", zap.Error(err))
				continue
			}
			_ = conn.SetWriteDeadline(time.Now().Add(feedWriteWait))
			if err := conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				return
			}
		case <-ticker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(feedWriteWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
