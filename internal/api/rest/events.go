package rest

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/thornvale/offline-engine/internal/event"
)

// eventBuffer bounds how far a slow websocket client may lag before
// events are dropped (the bus itself never buffers).
const eventBuffer = 32

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// The engine binds to loopback; the UI webview has no stable origin.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// events upgrades the connection and streams sync lifecycle events until
// the client disconnects. Subscription starts at upgrade time; events
// published before it are not replayed.
func (s *Server) events(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", zap.Error(err))
		return
	}
	defer conn.Close()

	ch := make(chan event.Event, eventBuffer)
	id := s.engine.Subscribe(func(e event.Event) {
		select {
		case ch <- e:
		default:
			// Slow consumer; dropping beats blocking the publisher.
		}
	})
	defer s.engine.Unsubscribe(id)

	// Reader goroutine: detects client close.
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case <-done:
			return
		case e := <-ch:
			if err := conn.WriteJSON(e); err != nil {
				s.logger.Debug("websocket write failed", zap.Error(err))
				return
			}
		}
	}
}
