package websocket

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/rocketscienceinc/tictactoe-escrow/internal/entity"
)

const (
	writeTimeout    = 5 * time.Second
	shutdownTimeout = 5 * time.Second
)

type eventFeed interface {
	Subscribe(ctx context.Context, afterSeq uint64, fn func(entity.Event) error) error
}

// Server pushes contract events to WebSocket subscribers.
type Server struct {
	logger *slog.Logger
	feed   eventFeed
	slots  chan struct{}

	// OriginPatterns are the cross-origin hosts allowed to subscribe.
	OriginPatterns []string
}

// New returns a server that admits at most maxSubscribers concurrent subscribers.
func New(logger *slog.Logger, feed eventFeed, maxSubscribers int) *Server {
	return &Server{
		logger: logger.With("component", "websocket"),
		feed:   feed,
		slots:  make(chan struct{}, maxSubscribers),
	}
}

func (that *Server) Routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /ws/events", that.handleEvents)
	return mux
}

// Start - starts WebSocket server.
func (that *Server) Start(ctx context.Context, port string) error {
	srv := &http.Server{
		Addr:              ":" + port,
		Handler:           that.Routes(),
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       30 * time.Second,
		BaseContext: func(_ net.Listener) context.Context {
			return ctx
		},
	}

	go func() {
		<-ctx.Done()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		if err := srv.Shutdown(shutdownCtx); err != nil {
			that.logger.Error("failed to shut down server", "error", err)
		}
	}()

	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("failed to start server: %w", err)
	}

	return nil
}
