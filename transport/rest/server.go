package rest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"net/http"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"

	"github.com/rocketscienceinc/tictactoe-escrow/internal/entity"
	"github.com/rocketscienceinc/tictactoe-escrow/internal/usecase"
)

const (
	requestIDHeader = "X-Request-ID"
	shutdownTimeout = 5 * time.Second
)

type gameUseCase interface {
	Contract(ctx context.Context) (*entity.Contract, error)
	Balance(ctx context.Context, addr common.Address) (*big.Int, error)
	Fund(ctx context.Context, to common.Address, amount *big.Int) (*big.Int, error)
	Nonce(ctx context.Context, addr common.Address) (uint64, error)
	UseNonce(ctx context.Context, caller common.Address, nonce uint64) error

	CreateGame(ctx context.Context, caller common.Address) (*usecase.Receipt, error)
	GetGame(ctx context.Context, id uint64) (*entity.Game, error)
	JoinGame(ctx context.Context, caller common.Address, id uint64, stake *big.Int) (*usecase.Receipt, error)
	MakeTurn(ctx context.Context, caller common.Address, id uint64, cell int) (*usecase.Receipt, error)
	Resign(ctx context.Context, caller common.Address, id uint64) (*usecase.Receipt, error)
	ClaimTimeout(ctx context.Context, caller common.Address, id uint64) (*usecase.Receipt, error)
	Settle(ctx context.Context, caller common.Address, id uint64) (*usecase.Receipt, error)

	Events(ctx context.Context, fromSeq uint64, limit int64) ([]entity.Event, error)
	GameEvents(ctx context.Context, id uint64) ([]entity.Event, error)
}

type Server struct {
	logger   *slog.Logger
	game     gameUseCase
	contract common.Address
}

// New returns the HTTP API of the contract at address contract. The address is
// part of every signed message.
func New(logger *slog.Logger, game gameUseCase, contract common.Address) *Server {
	return &Server{
		logger:   logger.With("component", "rest"),
		game:     game,
		contract: contract,
	}
}

func (that *Server) Routes() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /ping", NewPingHandler().PingHandler)

	mux.HandleFunc("GET /contract", that.handleContract)
	mux.HandleFunc("GET /balances/{address}", that.handleBalance)
	mux.HandleFunc("GET /nonces/{address}", that.handleNonce)
	mux.HandleFunc("POST /faucet", that.handleFaucet)

	mux.HandleFunc("POST /games", that.handleCreateGame)
	mux.HandleFunc("GET /games/{id}", that.handleGetGame)
	mux.HandleFunc("POST /games/{id}/join", that.handleJoinGame)
	mux.HandleFunc("POST /games/{id}/move", that.handleMakeTurn)
	mux.HandleFunc("POST /games/{id}/resign", that.handleResign)
	mux.HandleFunc("POST /games/{id}/timeout", that.handleClaimTimeout)
	mux.HandleFunc("POST /games/{id}/settle", that.handleSettle)

	mux.HandleFunc("GET /events", that.handleEvents)
	mux.HandleFunc("GET /games/{id}/events", that.handleGameEvents)

	return that.withRequestID(mux)
}

// Start serves the API until ctx is cancelled.
func (that *Server) Start(ctx context.Context, port string) error {
	srv := &http.Server{
		Addr:         ":" + port,
		Handler:      that.Routes(),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  30 * time.Second,
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

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (that *statusRecorder) WriteHeader(status int) {
	that.status = status
	that.ResponseWriter.WriteHeader(status)
}

// withRequestID tags every request with an id and logs it once it is served.
func (that *Server) withRequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(requestIDHeader)
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set(requestIDHeader, id)

		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		start := time.Now()

		next.ServeHTTP(rec, r)

		that.logger.Debug("request served",
			"request_id", id,
			"method", r.Method,
			"path", r.URL.Path,
			"status", rec.status,
			"duration", time.Since(start),
		)
	})
}
