package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/math"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/redis/go-redis/v9"

	"github.com/rocketscienceinc/tictactoe-escrow/internal/apperror"
	"github.com/rocketscienceinc/tictactoe-escrow/internal/entity"
)

// maxTxAttempts bounds how often a transaction is re-run after losing a WATCH race.
const maxTxAttempts = 8

type StateRepository interface {
	Deploy(ctx context.Context, contract *entity.Contract, now uint64) (*entity.Contract, error)
	Transact(ctx context.Context, contract common.Address, gameID uint64, fn func(st *entity.Snapshot) error) (*entity.Snapshot, error)

	GetContract(ctx context.Context, addr common.Address) (*entity.Contract, error)
	GetGame(ctx context.Context, contract common.Address, id uint64) (*entity.Game, error)
	GetBalance(ctx context.Context, addr common.Address) (*big.Int, error)

	GetNonce(ctx context.Context, addr common.Address) (uint64, error)
	UseNonce(ctx context.Context, addr common.Address, nonce uint64) error
}

type reader interface {
	Get(ctx context.Context, key string) *redis.StringCmd
	HGet(ctx context.Context, key, field string) *redis.StringCmd
}

type dbState struct {
	client *redis.Client
}

func NewStateRepository(client *redis.Client) StateRepository {
	return &dbState{
		client: client,
	}
}

// Deploy assigns the contract its address from the deployer's nonce and stores it
// together with the ContractDeployed event.
func (that *dbState) Deploy(ctx context.Context, contract *entity.Contract, now uint64) (*entity.Contract, error) {
	deployed := *contract

	txf := func(tx *redis.Tx) error {
		nonce, err := getNonce(ctx, tx, deployed.Deployer)
		if err != nil {
			return err
		}

		deployed.Address = crypto.CreateAddress(deployed.Deployer, nonce)
		deployed.EventCount = 0

		st := &entity.Snapshot{Contract: &deployed}
		st.Emit(entity.NewEvent(entity.EventContractDeployed, deployed.Address, 0, now, entity.ContractDeployed{
			Deployer:       deployed.Deployer,
			FeeRecipient:   deployed.FeeRecipient,
			FeeBasisPoints: deployed.FeeBasisPoints,
			MoveTimeout:    deployed.MoveTimeout,
		}))

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.HIncrBy(ctx, noncesKey, deployed.Deployer.Hex(), 1)
			return write(ctx, pipe, st)
		})
		return err
	}

	if err := that.watch(ctx, txf, noncesKey); err != nil {
		return nil, fmt.Errorf("failed to deploy contract: %w", err)
	}

	return &deployed, nil
}

// Transact runs fn against a snapshot of the contract, the game (when gameID is
// not zero) and the ledger. The snapshot is written back in one MULTI/EXEC only
// when fn returns nil; a concurrent write to any watched key re-runs fn.
func (that *dbState) Transact(ctx context.Context, contract common.Address, gameID uint64, fn func(st *entity.Snapshot) error) (*entity.Snapshot, error) {
	keys := []string{contractKey(contract), balancesKey}
	if gameID != 0 {
		keys = append(keys, gameKey(contract, gameID))
	}

	var st *entity.Snapshot

	txf := func(tx *redis.Tx) error {
		c, err := getContract(ctx, tx, contract)
		if err != nil {
			return err
		}

		st = &entity.Snapshot{
			Contract: c,
			Ledger: entity.NewLedger(func(addr common.Address) (*big.Int, error) {
				return getBalance(ctx, tx, addr)
			}),
		}

		if gameID != 0 {
			if st.Game, err = getGame(ctx, tx, contract, gameID); err != nil {
				return err
			}
		}

		if err = fn(st); err != nil {
			return err
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			return write(ctx, pipe, st)
		})
		return err
	}

	if err := that.watch(ctx, txf, keys...); err != nil {
		return nil, err
	}

	return st, nil
}

func (that *dbState) GetContract(ctx context.Context, addr common.Address) (*entity.Contract, error) {
	return getContract(ctx, that.client, addr)
}

func (that *dbState) GetGame(ctx context.Context, contract common.Address, id uint64) (*entity.Game, error) {
	return getGame(ctx, that.client, contract, id)
}

func (that *dbState) GetBalance(ctx context.Context, addr common.Address) (*big.Int, error) {
	return getBalance(ctx, that.client, addr)
}

func (that *dbState) GetNonce(ctx context.Context, addr common.Address) (uint64, error) {
	return getNonce(ctx, that.client, addr)
}

// UseNonce increments the account nonce if it still equals nonce. Deployments
// draw from the same counter.
func (that *dbState) UseNonce(ctx context.Context, addr common.Address, nonce uint64) error {
	txf := func(tx *redis.Tx) error {
		current, err := getNonce(ctx, tx, addr)
		if err != nil {
			return err
		}

		if current != nonce {
			return fmt.Errorf("%w: %s is at %d, got %d", apperror.ErrNonceMismatch, addr.Hex(), current, nonce)
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.HIncrBy(ctx, noncesKey, addr.Hex(), 1)
			return nil
		})
		return err
	}

	return that.watch(ctx, txf, noncesKey)
}

func (that *dbState) watch(ctx context.Context, txf func(tx *redis.Tx) error, keys ...string) error {
	for attempt := 0; attempt < maxTxAttempts; attempt++ {
		err := that.client.Watch(ctx, txf, keys...)
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		return err
	}

	return apperror.ErrConflict
}

func write(ctx context.Context, pipe redis.Pipeliner, st *entity.Snapshot) error {
	events := st.Sequence()

	contractJSON, err := json.Marshal(st.Contract)
	if err != nil {
		return fmt.Errorf("could not marshal contract: %w", err)
	}
	pipe.Set(ctx, contractKey(st.Contract.Address), contractJSON, 0)

	if st.Game != nil {
		gameJSON, err := json.Marshal(st.Game)
		if err != nil {
			return fmt.Errorf("could not marshal game: %w", err)
		}
		pipe.Set(ctx, gameKey(st.Contract.Address, st.Game.ID), gameJSON, 0)
	}

	if st.Ledger != nil {
		for addr, amount := range st.Ledger.Dirty() {
			pipe.HSet(ctx, balancesKey, addr.Hex(), amount.String())
		}
	}

	for _, event := range events {
		eventJSON, err := json.Marshal(event)
		if err != nil {
			return fmt.Errorf("could not marshal event: %w", err)
		}

		pipe.XAdd(ctx, &redis.XAddArgs{
			Stream: eventsKey(event.Contract),
			ID:     streamID(event.Seq),
			Values: map[string]any{eventField: eventJSON},
		})

		if event.GameID != 0 {
			pipe.XAdd(ctx, &redis.XAddArgs{
				Stream: gameEventsKey(event.Contract, event.GameID),
				ID:     streamID(event.Seq),
				Values: map[string]any{eventField: eventJSON},
			})
		}
	}

	return nil
}

func getContract(ctx context.Context, r reader, addr common.Address) (*entity.Contract, error) {
	response, err := r.Get(ctx, contractKey(addr)).Result()
	if errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("%w: %s", apperror.ErrContractNotFound, addr.Hex())
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get contract: %w", err)
	}

	var contract entity.Contract
	if err = json.Unmarshal([]byte(response), &contract); err != nil {
		return nil, fmt.Errorf("failed to unmarshal contract: %w", err)
	}

	return &contract, nil
}

func getGame(ctx context.Context, r reader, contract common.Address, id uint64) (*entity.Game, error) {
	response, err := r.Get(ctx, gameKey(contract, id)).Result()
	if errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("%w: id %d", apperror.ErrGameNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get game: %w", err)
	}

	var game entity.Game
	if err = json.Unmarshal([]byte(response), &game); err != nil {
		return nil, fmt.Errorf("failed to unmarshal game: %w", err)
	}

	return &game, nil
}

func getBalance(ctx context.Context, r reader, addr common.Address) (*big.Int, error) {
	response, err := r.HGet(ctx, balancesKey, addr.Hex()).Result()
	if errors.Is(err, redis.Nil) {
		return new(big.Int), nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get balance: %w", err)
	}

	amount, ok := math.ParseBig256(response)
	if !ok {
		return nil, fmt.Errorf("corrupt balance %q for %s", response, addr.Hex())
	}

	return amount, nil
}

func getNonce(ctx context.Context, r reader, addr common.Address) (uint64, error) {
	nonce, err := r.HGet(ctx, noncesKey, addr.Hex()).Uint64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to read nonce of %s: %w", addr.Hex(), err)
	}

	return nonce, nil
}
