package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/rocketscienceinc/tictactoe-escrow/internal/apperror"
	"github.com/rocketscienceinc/tictactoe-escrow/internal/entity"
)

var _ GameUseCase = (*GameManager)(nil)

type Option func(*GameManager)

// WithClock replaces the wall clock used for block timestamps.
func WithClock(clock func() time.Time) Option {
	return func(that *GameManager) {
		that.clock = clock
	}
}

// WithFaucet allows Fund to mint balances.
func WithFaucet(enabled bool) Option {
	return func(that *GameManager) {
		that.faucet = enabled
	}
}

// DeployParams are fixed for the lifetime of a contract.
type DeployParams struct {
	Deployer       common.Address
	FeeRecipient   entity.FeeRecipient
	FeeBasisPoints uint16
	MoveTimeout    uint64
	Genesis        []entity.Account
}

// GameManager runs transactions against a single deployed contract. Transactions
// are serialized in process and committed atomically by the state repository.
type GameManager struct {
	logger *slog.Logger
	state  stateRepo
	events eventRepo
	clock  func() time.Time
	faucet bool

	mu       sync.Mutex
	contract common.Address
}

func NewGameManager(logger *slog.Logger, state stateRepo, events eventRepo, opts ...Option) *GameManager {
	manager := &GameManager{
		logger: logger.With("component", "game_manager"),
		state:  state,
		events: events,
		clock:  time.Now,
	}

	for _, opt := range opts {
		opt(manager)
	}

	return manager
}

// Deploy creates a new contract, credits the genesis allocations and binds the
// manager to it.
func (that *GameManager) Deploy(ctx context.Context, params DeployParams) (*entity.Contract, error) {
	log := that.logger.With("method", "Deploy")

	that.mu.Lock()
	defer that.mu.Unlock()

	now := that.now()

	contract, err := entity.NewContract(params.Deployer, params.FeeRecipient, params.FeeBasisPoints, params.MoveTimeout, now)
	if err != nil {
		return nil, fmt.Errorf("invalid contract parameters: %w", err)
	}

	contract, err = that.state.Deploy(ctx, contract, now)
	if err != nil {
		return nil, fmt.Errorf("failed to deploy contract: %w", err)
	}

	that.contract = contract.Address

	if len(params.Genesis) > 0 {
		if _, err = that.state.Transact(ctx, contract.Address, 0, func(st *entity.Snapshot) error {
			for _, account := range params.Genesis {
				if err := st.Ledger.Mint(account.Address, account.Balance); err != nil {
					return fmt.Errorf("failed to credit %s: %w", account.Address.Hex(), err)
				}
			}
			return nil
		}); err != nil {
			return nil, fmt.Errorf("failed to apply genesis allocations: %w", err)
		}
	}

	log.Info("contract deployed",
		"address", contract.Address.Hex(),
		"deployer", contract.Deployer.Hex(),
		"fee_recipient", contract.FeeRecipient.String(),
		"fee_recipient_set", contract.FeeRecipient.IsSet(),
		"fee_basis_points", contract.FeeBasisPoints,
		"genesis_accounts", len(params.Genesis),
	)

	return contract, nil
}

// Load binds the manager to an already deployed contract.
func (that *GameManager) Load(ctx context.Context, addr common.Address) (*entity.Contract, error) {
	contract, err := that.state.GetContract(ctx, addr)
	if err != nil {
		return nil, fmt.Errorf("failed to load contract: %w", err)
	}

	that.mu.Lock()
	that.contract = contract.Address
	that.mu.Unlock()

	that.logger.Info("contract loaded",
		"address", contract.Address.Hex(),
		"fee_recipient", contract.FeeRecipient.String(),
		"games", contract.GameCount,
	)

	return contract, nil
}

func (that *GameManager) Contract(ctx context.Context) (*entity.Contract, error) {
	addr, err := that.address()
	if err != nil {
		return nil, err
	}

	return that.state.GetContract(ctx, addr)
}

func (that *GameManager) Balance(ctx context.Context, addr common.Address) (*big.Int, error) {
	balance, err := that.state.GetBalance(ctx, addr)
	if err != nil {
		return nil, fmt.Errorf("failed to get balance: %w", err)
	}

	return balance, nil
}

// Fund mints amount to the account and returns its new balance.
func (that *GameManager) Fund(ctx context.Context, to common.Address, amount *big.Int) (*big.Int, error) {
	if !that.faucet {
		return nil, apperror.ErrFaucetDisabled
	}

	var balance *big.Int

	if _, err := that.transact(ctx, 0, func(st *entity.Snapshot) error {
		if err := st.Ledger.Mint(to, amount); err != nil {
			return err
		}

		var err error
		balance, err = st.Ledger.Balance(to)
		return err
	}); err != nil {
		return nil, fmt.Errorf("failed to fund account: %w", err)
	}

	that.logger.Debug("account funded", "address", to.Hex(), "amount", amount.String())

	return balance, nil
}

func (that *GameManager) Nonce(ctx context.Context, addr common.Address) (uint64, error) {
	nonce, err := that.state.GetNonce(ctx, addr)
	if err != nil {
		return 0, fmt.Errorf("failed to get nonce: %w", err)
	}

	return nonce, nil
}

// UseNonce spends the caller's current nonce. A signed request is admitted only
// after its nonce is spent, and the nonce stays spent when the request then fails.
func (that *GameManager) UseNonce(ctx context.Context, caller common.Address, nonce uint64) error {
	if err := that.state.UseNonce(ctx, caller, nonce); err != nil {
		that.logger.Debug("nonce rejected", "caller", caller.Hex(), "nonce", nonce, "error", err)
		return fmt.Errorf("failed to use nonce: %w", err)
	}

	return nil
}

func (that *GameManager) CreateGame(ctx context.Context, caller common.Address) (*Receipt, error) {
	if caller == (common.Address{}) {
		return nil, apperror.ErrZeroAddressSender
	}

	receipt, err := that.transact(ctx, 0, func(st *entity.Snapshot) error {
		now := that.now()

		st.Game = entity.NewGame(st.Contract.NextGameID(), st.Contract.Address, caller, now)
		st.Emit(entity.NewEvent(entity.EventGameCreated, st.Contract.Address, st.Game.ID, now, entity.GameCreated{
			Creator: caller,
		}))

		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create game: %w", err)
	}

	that.logger.Info("game created", "gameID", receipt.Game.ID, "creator", caller.Hex())

	return receipt, nil
}

func (that *GameManager) GetGame(ctx context.Context, id uint64) (*entity.Game, error) {
	addr, err := that.address()
	if err != nil {
		return nil, err
	}

	game, err := that.state.GetGame(ctx, addr, id)
	if err != nil {
		return nil, fmt.Errorf("failed to get game: %w", err)
	}

	return game, nil
}

// JoinGame seats the caller and moves the stake from the caller's balance into escrow.
func (that *GameManager) JoinGame(ctx context.Context, caller common.Address, id uint64, stake *big.Int) (*Receipt, error) {
	receipt, err := that.transact(ctx, id, func(st *entity.Snapshot) error {
		now := that.now()

		if err := st.Game.Join(caller, stake, now); err != nil {
			return err
		}

		if err := st.Ledger.Transfer(caller, st.Contract.Address, stake); err != nil {
			return err
		}

		st.Emit(entity.NewEvent(entity.EventPlayerJoined, st.Contract.Address, id, now, entity.PlayerJoined{
			Player: caller,
			Stake:  stake,
		}))

		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to join game: %w", err)
	}

	that.logger.Info("player joined", "gameID", id, "player", caller.Hex(), "status", receipt.Game.Status)

	return receipt, nil
}

// MakeTurn applies a move. A move that ends the game settles it in the same transaction.
func (that *GameManager) MakeTurn(ctx context.Context, caller common.Address, id uint64, cell int) (*Receipt, error) {
	receipt, err := that.transact(ctx, id, func(st *entity.Snapshot) error {
		now := that.now()

		if err := st.Game.MakeTurn(caller, cell, now); err != nil {
			return err
		}

		st.Emit(entity.NewEvent(entity.EventMoveMade, st.Contract.Address, id, now, entity.MoveMade{
			Player:    caller,
			CellIndex: cell,
		}))

		if st.Game.IsTerminal() {
			return settle(st, now)
		}

		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to make turn: %w", err)
	}

	that.logResult(receipt.Game)

	return receipt, nil
}

// Resign concedes an active game to the opponent, or cancels a game the caller is
// still waiting in alone.
func (that *GameManager) Resign(ctx context.Context, caller common.Address, id uint64) (*Receipt, error) {
	receipt, err := that.transact(ctx, id, func(st *entity.Snapshot) error {
		now := that.now()

		if err := st.Game.Resign(caller, now); err != nil {
			return err
		}

		st.Emit(entity.NewEvent(entity.EventPlayerResigned, st.Contract.Address, id, now, entity.PlayerResigned{
			Player: caller,
		}))

		return settle(st, now)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to resign: %w", err)
	}

	that.logResult(receipt.Game)

	return receipt, nil
}

// ClaimTimeout awards the game to the caller when the opponent let the move timeout expire.
func (that *GameManager) ClaimTimeout(ctx context.Context, caller common.Address, id uint64) (*Receipt, error) {
	receipt, err := that.transact(ctx, id, func(st *entity.Snapshot) error {
		now := that.now()
		timedOut := st.Game.PlayerOf(st.Game.Turn)

		if err := st.Game.ClaimTimeout(caller, now, st.Contract.MoveTimeout); err != nil {
			return err
		}

		st.Emit(entity.NewEvent(entity.EventTimeoutClaimed, st.Contract.Address, id, now, entity.TimeoutClaimed{
			Claimant: caller,
			TimedOut: timedOut,
		}))

		return settle(st, now)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to claim timeout: %w", err)
	}

	that.logResult(receipt.Game)

	return receipt, nil
}

// Settle retriggers the settlement of a game. Games are settled by the transaction
// that finishes them, so this only succeeds for a finished game that was never paid out.
func (that *GameManager) Settle(ctx context.Context, caller common.Address, id uint64) (*Receipt, error) {
	receipt, err := that.transact(ctx, id, func(st *entity.Snapshot) error {
		return settle(st, that.now())
	})
	if err != nil {
		that.logger.Debug("settlement rejected", "gameID", id, "caller", caller.Hex(), "error", err)
		return nil, fmt.Errorf("failed to settle game: %w", err)
	}

	that.logResult(receipt.Game)

	return receipt, nil
}

func (that *GameManager) Events(ctx context.Context, fromSeq uint64, limit int64) ([]entity.Event, error) {
	addr, err := that.address()
	if err != nil {
		return nil, err
	}

	return that.events.List(ctx, addr, fromSeq, limit)
}

func (that *GameManager) GameEvents(ctx context.Context, id uint64) ([]entity.Event, error) {
	addr, err := that.address()
	if err != nil {
		return nil, err
	}

	if _, err = that.state.GetGame(ctx, addr, id); err != nil {
		return nil, err
	}

	return that.events.ListByGame(ctx, addr, id)
}

// Subscribe streams events with a sequence number above afterSeq until ctx is done.
func (that *GameManager) Subscribe(ctx context.Context, afterSeq uint64, fn func(entity.Event) error) error {
	addr, err := that.address()
	if err != nil {
		return err
	}

	return that.events.Tail(ctx, addr, afterSeq, fn)
}

func (that *GameManager) transact(ctx context.Context, gameID uint64, fn func(st *entity.Snapshot) error) (*Receipt, error) {
	that.mu.Lock()
	defer that.mu.Unlock()

	if that.contract == (common.Address{}) {
		return nil, apperror.ErrContractNotFound
	}

	st, err := that.state.Transact(ctx, that.contract, gameID, fn)
	if err != nil {
		return nil, err
	}

	return &Receipt{
		Game:   st.Game,
		Events: st.Events(),
	}, nil
}

func (that *GameManager) address() (common.Address, error) {
	that.mu.Lock()
	defer that.mu.Unlock()

	if that.contract == (common.Address{}) {
		return common.Address{}, apperror.ErrContractNotFound
	}

	return that.contract, nil
}

func (that *GameManager) now() uint64 {
	return uint64(that.clock().Unix())
}

func (that *GameManager) logResult(game *entity.Game) {
	if game == nil || !game.IsSettled() {
		return
	}

	that.logger.Info("game settled",
		"gameID", game.ID,
		"result", game.Result,
		"winner", game.Winner().Hex(),
	)
}

// settle pays out the snapshot's game and records the GameSettled event.
func settle(st *entity.Snapshot, now uint64) error {
	settlement, err := st.Contract.Settle(st.Game, st.Ledger)
	if err != nil {
		return err
	}

	st.Emit(entity.NewEvent(entity.EventGameSettled, st.Contract.Address, st.Game.ID, now, settlement))

	return nil
}
