package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/math"

	"github.com/rocketscienceinc/tictactoe-escrow/internal/config"
	"github.com/rocketscienceinc/tictactoe-escrow/internal/entity"
	"github.com/rocketscienceinc/tictactoe-escrow/internal/repository"
	"github.com/rocketscienceinc/tictactoe-escrow/internal/repository/storage"
	"github.com/rocketscienceinc/tictactoe-escrow/internal/usecase"
	"github.com/rocketscienceinc/tictactoe-escrow/transport/rest"
	"github.com/rocketscienceinc/tictactoe-escrow/transport/websocket"
)

var (
	ErrAddrNotFound     = errors.New("redis address string is empty")
	ErrDeployerNotFound = errors.New("neither contract.deployer nor contract.deployer-key is set")
)

// RunApp - runs the application.
func RunApp(logger *slog.Logger, conf *config.Config) error {
	log := logger.With("component", "app")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigs
		log.Info("Received signal, shutting down", "signal", sig)
		cancel()
	}()

	redisAddrString := conf.Redis.GetRedisAddr()
	if redisAddrString == "" {
		return ErrAddrNotFound
	}

	redisStorage, err := storage.NewRedisStorage(ctx, redisAddrString, conf.Redis.Password, conf.Redis.DB)
	if err != nil {
		return fmt.Errorf("could not connect to redis storage: %w", err)
	}

	defer func() {
		if err = redisStorage.Close(); err != nil {
			log.Error("could not close redis storage", "error", err)
		}
	}()

	// every subscriber blocks one connection, so tailing gets a pool of its own
	tailStorage, err := storage.NewRedisStorage(ctx, redisAddrString, conf.Redis.Password, conf.Redis.DB,
		storage.WithPoolSize(conf.MaxSubscribers))
	if err != nil {
		return fmt.Errorf("could not connect to redis storage: %w", err)
	}

	defer func() {
		if err = tailStorage.Close(); err != nil {
			log.Error("could not close redis storage", "error", err)
		}
	}()

	stateRepo := repository.NewStateRepository(redisStorage.Connection)
	eventRepo := repository.NewEventRepository(redisStorage.Connection, repository.WithTailClient(tailStorage.Connection))
	gameManager := usecase.NewGameManager(logger, stateRepo, eventRepo, usecase.WithFaucet(conf.Ledger.Faucet))

	contract, err := deployOrLoad(ctx, gameManager, conf.Contract, conf.Ledger)
	if err != nil {
		return err
	}

	log.Info("Contract ready",
		"address", contract.Address.Hex(),
		"fee_recipient", contract.FeeRecipient.String(),
		"fee_basis_points", contract.FeeBasisPoints,
	)

	// run HTTP server
	httpErrCh := make(chan error, 1)
	go func() {
		log.Info("Starting HTTP server", "port", conf.HTTPPort)
		restServer := rest.New(logger, gameManager, contract.Address)
		if httpErr := restServer.Start(ctx, conf.HTTPPort); httpErr != nil {
			log.Error("HTTP server error", "error", httpErr)
			httpErrCh <- httpErr
		}
	}()

	// run Websocket server
	wsErrCh := make(chan error, 1)
	go func() {
		log.Info("Starting WebSocket server", "port", conf.SocketPort)
		wsServer := websocket.New(logger, gameManager, conf.MaxSubscribers)
		if wsErr := wsServer.Start(ctx, conf.SocketPort); wsErr != nil {
			log.Error("WebSocket server error", "error", wsErr)
			wsErrCh <- wsErr
		}
	}()

	select {
	case err = <-httpErrCh:
		return fmt.Errorf("HTTP server error: %w", err)
	case err = <-wsErrCh:
		return fmt.Errorf("WebSocket server error: %w", err)
	case <-ctx.Done():
		log.Info("Application context canceled, shutting down")
		return nil
	}
}

// deployOrLoad attaches to contract.address, or deploys a fresh contract when it
// is empty. Genesis allocations are only credited on a fresh deployment.
func deployOrLoad(ctx context.Context, manager *usecase.GameManager, conf config.Contract, ledger config.Ledger) (*entity.Contract, error) {
	if conf.Address != "" {
		if !common.IsHexAddress(conf.Address) {
			return nil, fmt.Errorf("contract.address %q is not an address", conf.Address)
		}
		return manager.Load(ctx, common.HexToAddress(conf.Address))
	}

	deployer, ok, err := usecase.ResolveAddress(conf.Deployer, conf.DeployerKey)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve deployer: %w", err)
	}
	if !ok {
		return nil, ErrDeployerNotFound
	}

	feeRecipient, err := usecase.ResolveFeeRecipient(conf.FeeRecipient, conf.FeeRecipientKey)
	if err != nil {
		return nil, err
	}

	genesis, err := genesisAccounts(ledger.Genesis)
	if err != nil {
		return nil, err
	}

	contract, err := manager.Deploy(ctx, usecase.DeployParams{
		Deployer:       deployer,
		FeeRecipient:   feeRecipient,
		FeeBasisPoints: conf.FeeBasisPoints,
		MoveTimeout:    moveTimeoutSeconds(conf.MoveTimeout),
		Genesis:        genesis,
	})
	if err != nil {
		return nil, fmt.Errorf("could not deploy contract: %w", err)
	}

	return contract, nil
}

func genesisAccounts(allocations []config.Allocation) ([]entity.Account, error) {
	accounts := make([]entity.Account, 0, len(allocations))

	for _, alloc := range allocations {
		if !common.IsHexAddress(alloc.Address) {
			return nil, fmt.Errorf("genesis address %q is not an address", alloc.Address)
		}

		balance, ok := math.ParseBig256(alloc.Balance)
		if !ok || balance.Sign() < 0 {
			return nil, fmt.Errorf("genesis balance %q of %s is not a valid amount", alloc.Balance, alloc.Address)
		}

		accounts = append(accounts, entity.Account{
			Address: common.HexToAddress(alloc.Address),
			Balance: balance,
		})
	}

	return accounts, nil
}

// moveTimeoutSeconds converts a validated timeout; anything below a second disables it.
func moveTimeoutSeconds(timeout time.Duration) uint64 {
	if timeout < time.Second {
		return 0
	}

	return uint64(timeout / time.Second)
}
