package rest

import (
	"time"

	"github.com/gofiber/contrib/websocket"
	"go.uber.org/zap"

	"github.com/spooky-finn/go-cryptomarkets-view/usecase"
)

const (
	wsBuffer       = 256
	wsWriteTimeout = 5 * time.Second
)

// wsHandler pushes every market view event to the client as JSON. The client first
// receives the current status, book and candles, then live events. Incoming messages
// are ignored; a read error ends the session.
func (s *FiberServer) wsHandler(c *websocket.Conn) {
	logger := s.logger.With(zap.String("remote", c.RemoteAddr().String()))

	events := make(chan usecase.Event, wsBuffer)
	unsubscribe := s.marketView.Subscribe(func(ev usecase.Event) {
		select {
		case events <- ev:
		default:
			logger.Warn("websocket client is lagging, event dropped", zap.String("type", string(ev.Type)))
		}
	})
	defer unsubscribe()

	for _, ev := range s.currentEvents() {
		if err := s.write(c, ev); err != nil {
			return
		}
	}

	readerDone := make(chan struct{})
	go func() {
		defer close(readerDone)
		for {
			if _, _, err := c.ReadMessage(); err != nil {
				return
			}
		}
	}()

	logger.Debug("websocket client connected")
	defer logger.Debug("websocket client disconnected")

	for {
		select {
		case <-s.closing:
			_ = c.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutdown"),
				time.Now().Add(wsWriteTimeout))
			return
		case <-readerDone:
			return
		case ev := <-events:
			if err := s.write(c, ev); err != nil {
				logger.Debug("websocket write failed", zap.Error(err))
				return
			}
		}
	}
}

func (s *FiberServer) write(c *websocket.Conn, ev usecase.Event) error {
	if err := c.SetWriteDeadline(time.Now().Add(wsWriteTimeout)); err != nil {
		return err
	}
	return c.WriteJSON(ev)
}

func (s *FiberServer) currentEvents() []usecase.Event {
	status, err := s.marketView.Status()
	if err != nil {
		return nil
	}

	events := []usecase.Event{{Type: usecase.EventStatusChanged, Market: status.Market, Status: status}}
	if book, err := s.marketView.GetOrderBook(0); err == nil {
		events = append(events, usecase.Event{Type: usecase.EventBookUpdated, Market: status.Market, Book: book})
	}
	if candles, err := s.marketView.GetCandleWindow(); err == nil {
		events = append(events, usecase.Event{Type: usecase.EventCandlesUpdated, Market: status.Market, Candles: candles})
	}
	return events
}
