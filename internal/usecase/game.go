package usecase

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"github.com/rocketscienceinc/tictactoe-escrow/internal/entity"
)

// GameUseCase is the transaction surface of one deployed contract.
type GameUseCase interface {
	Contract(ctx context.Context) (*entity.Contract, error)
	Balance(ctx context.Context, addr common.Address) (*big.Int, error)
	Fund(ctx context.Context, to common.Address, amount *big.Int) (*big.Int, error)
	Nonce(ctx context.Context, addr common.Address) (uint64, error)
	UseNonce(ctx context.Context, caller common.Address, nonce uint64) error

	CreateGame(ctx context.Context, caller common.Address) (*Receipt, error)
	GetGame(ctx context.Context, id uint64) (*entity.Game, error)
	JoinGame(ctx context.Context, caller common.Address, id uint64, stake *big.Int) (*Receipt, error)
	MakeTurn(ctx context.Context, caller common.Address, id uint64, cell int) (*Receipt, error)
	Resign(ctx context.Context, caller common.Address, id uint64) (*Receipt, error)
	ClaimTimeout(ctx context.Context, caller common.Address, id uint64) (*Receipt, error)
	Settle(ctx context.Context, caller common.Address, id uint64) (*Receipt, error)

	Events(ctx context.Context, fromSeq uint64, limit int64) ([]entity.Event, error)
	GameEvents(ctx context.Context, id uint64) ([]entity.Event, error)
	Subscribe(ctx context.Context, afterSeq uint64, fn func(entity.Event) error) error
}

// Receipt is what a committed transaction produced.
type Receipt struct {
	Game   *entity.Game   `json:"game"`
	Events []entity.Event `json:"events"`
}

type stateRepo interface {
	Deploy(ctx context.Context, contract *entity.Contract, now uint64) (*entity.Contract, error)
	Transact(ctx context.Context, contract common.Address, gameID uint64, fn func(st *entity.Snapshot) error) (*entity.Snapshot, error)

	GetContract(ctx context.Context, addr common.Address) (*entity.Contract, error)
	GetGame(ctx context.Context, contract common.Address, id uint64) (*entity.Game, error)
	GetBalance(ctx context.Context, addr common.Address) (*big.Int, error)

	GetNonce(ctx context.Context, addr common.Address) (uint64, error)
	UseNonce(ctx context.Context, addr common.Address, nonce uint64) error
}

type eventRepo interface {
	List(ctx context.Context, contract common.Address, fromSeq uint64, limit int64) ([]entity.Event, error)
	ListByGame(ctx context.Context, contract common.Address, gameID uint64) ([]entity.Event, error)
	Tail(ctx context.Context, contract common.Address, afterSeq uint64, fn func(entity.Event) error) error
}
