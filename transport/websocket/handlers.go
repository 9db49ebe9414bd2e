package websocket

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	ws "nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"

	"github.com/rocketscienceinc/tictactoe-escrow/internal/entity"
)

// handleEvents upgrades the connection and streams every event with a sequence
// number above ?after= until the client goes away.
func (that *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	log := that.logger.With("method", "handleEvents")

	var after uint64
	if raw := r.URL.Query().Get("after"); raw != "" {
		var err error
		if after, err = strconv.ParseUint(raw, 10, 64); err != nil {
			http.Error(w, "bad after parameter", http.StatusBadRequest)
			return
		}
	}

	select {
	case that.slots <- struct{}{}:
		defer func() { <-that.slots }()
	default:
		log.Warn("subscriber limit reached", "limit", cap(that.slots))
		http.Error(w, "too many subscribers", http.StatusServiceUnavailable)
		return
	}

	conn, err := ws.Accept(w, r, &ws.AcceptOptions{
		OriginPatterns: that.OriginPatterns,
	})
	if err != nil {
		log.Error("failed to accept websocket", "error", err)
		return
	}
	defer conn.CloseNow()

	log.Info("WebSocket connection established", "after", after)

	// subscribers only listen; CloseRead cancels ctx once the client disconnects
	ctx := conn.CloseRead(r.Context())

	err = that.feed.Subscribe(ctx, after, func(event entity.Event) error {
		return that.send(ctx, conn, NewEventMessage(event))
	})

	switch {
	case err == nil, errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		_ = conn.Close(ws.StatusNormalClosure, "")
	case ws.CloseStatus(err) != -1:
		log.Debug("subscriber went away", "error", err)
	default:
		log.Error("event feed failed", "error", err)
		_ = that.send(ctx, conn, NewErrorMessage(err))
		_ = conn.Close(ws.StatusInternalError, "event feed failed")
	}
}

func (that *Server) send(ctx context.Context, conn *ws.Conn, msg Message) error {
	ctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()

	return wsjson.Write(ctx, conn, msg)
}
