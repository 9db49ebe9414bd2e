package usecase

import (
	"context"
	"encoding/json"
	"fmt"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/rocketscienceinc/tictactoe-escrow/internal/apperror"
	"github.com/rocketscienceinc/tictactoe-escrow/internal/entity"
)

// memStore keeps committed state as JSON so a failed transaction can never leak
// mutations into it.
type memStore struct {
	mu sync.Mutex

	nonces    map[common.Address]uint64
	contracts map[common.Address][]byte
	games     map[string][]byte
	balances  map[common.Address]*big.Int
	events    []entity.Event
}

func newMemStore() *memStore {
	return &memStore{
		nonces:    make(map[common.Address]uint64),
		contracts: make(map[common.Address][]byte),
		games:     make(map[string][]byte),
		balances:  make(map[common.Address]*big.Int),
	}
}

func memGameKey(contract common.Address, id uint64) string {
	return fmt.Sprintf("%s/%d", contract.Hex(), id)
}

func (that *memStore) Deploy(_ context.Context, contract *entity.Contract, now uint64) (*entity.Contract, error) {
	that.mu.Lock()
	defer that.mu.Unlock()

	deployed := *contract
	deployed.Address = crypto.CreateAddress(deployed.Deployer, that.nonces[deployed.Deployer])
	that.nonces[deployed.Deployer]++

	st := &entity.Snapshot{Contract: &deployed}
	st.Emit(entity.NewEvent(entity.EventContractDeployed, deployed.Address, 0, now, entity.ContractDeployed{
		Deployer:       deployed.Deployer,
		FeeRecipient:   deployed.FeeRecipient,
		FeeBasisPoints: deployed.FeeBasisPoints,
		MoveTimeout:    deployed.MoveTimeout,
	}))

	that.commit(st)

	return &deployed, nil
}

func (that *memStore) Transact(_ context.Context, contract common.Address, gameID uint64, fn func(st *entity.Snapshot) error) (*entity.Snapshot, error) {
	that.mu.Lock()
	defer that.mu.Unlock()

	c, err := that.contract(contract)
	if err != nil {
		return nil, err
	}

	st := &entity.Snapshot{
		Contract: c,
		Ledger: entity.NewLedger(func(addr common.Address) (*big.Int, error) {
			return that.balance(addr), nil
		}),
	}

	if gameID != 0 {
		if st.Game, err = that.game(contract, gameID); err != nil {
			return nil, err
		}
	}

	if err = fn(st); err != nil {
		return nil, err
	}

	that.commit(st)

	return st, nil
}

func (that *memStore) GetContract(_ context.Context, addr common.Address) (*entity.Contract, error) {
	that.mu.Lock()
	defer that.mu.Unlock()

	return that.contract(addr)
}

func (that *memStore) GetGame(_ context.Context, contract common.Address, id uint64) (*entity.Game, error) {
	that.mu.Lock()
	defer that.mu.Unlock()

	return that.game(contract, id)
}

func (that *memStore) GetBalance(_ context.Context, addr common.Address) (*big.Int, error) {
	that.mu.Lock()
	defer that.mu.Unlock()

	return that.balance(addr), nil
}

func (that *memStore) GetNonce(_ context.Context, addr common.Address) (uint64, error) {
	that.mu.Lock()
	defer that.mu.Unlock()

	return that.nonces[addr], nil
}

func (that *memStore) UseNonce(_ context.Context, addr common.Address, nonce uint64) error {
	that.mu.Lock()
	defer that.mu.Unlock()

	if that.nonces[addr] != nonce {
		return fmt.Errorf("%w: %s is at %d, got %d", apperror.ErrNonceMismatch, addr.Hex(), that.nonces[addr], nonce)
	}

	that.nonces[addr]++
	return nil
}

func (that *memStore) List(_ context.Context, contract common.Address, fromSeq uint64, limit int64) ([]entity.Event, error) {
	that.mu.Lock()
	defer that.mu.Unlock()

	var out []entity.Event
	for _, event := range that.events {
		if event.Contract != contract || event.Seq < fromSeq {
			continue
		}
		if limit > 0 && int64(len(out)) == limit {
			break
		}
		out = append(out, event)
	}

	return out, nil
}

func (that *memStore) ListByGame(_ context.Context, contract common.Address, gameID uint64) ([]entity.Event, error) {
	that.mu.Lock()
	defer that.mu.Unlock()

	var out []entity.Event
	for _, event := range that.events {
		if event.Contract == contract && event.GameID == gameID {
			out = append(out, event)
		}
	}

	return out, nil
}

func (that *memStore) Tail(ctx context.Context, contract common.Address, afterSeq uint64, fn func(entity.Event) error) error {
	events, _ := that.List(ctx, contract, afterSeq+1, 0)

	for _, event := range events {
		if err := fn(event); err != nil {
			return err
		}
	}

	<-ctx.Done()
	return ctx.Err()
}

func (that *memStore) commit(st *entity.Snapshot) {
	events := st.Sequence()

	that.contracts[st.Contract.Address] = mustJSON(st.Contract)

	if st.Game != nil {
		that.games[memGameKey(st.Contract.Address, st.Game.ID)] = mustJSON(st.Game)
	}

	if st.Ledger != nil {
		for addr, amount := range st.Ledger.Dirty() {
			that.balances[addr] = amount
		}
	}

	that.events = append(that.events, events...)
}

func (that *memStore) contract(addr common.Address) (*entity.Contract, error) {
	data, ok := that.contracts[addr]
	if !ok {
		return nil, apperror.ErrContractNotFound
	}

	var contract entity.Contract
	mustUnmarshal(data, &contract)
	return &contract, nil
}

func (that *memStore) game(contract common.Address, id uint64) (*entity.Game, error) {
	data, ok := that.games[memGameKey(contract, id)]
	if !ok {
		return nil, apperror.ErrGameNotFound
	}

	var game entity.Game
	mustUnmarshal(data, &game)
	return &game, nil
}

func (that *memStore) balance(addr common.Address) *big.Int {
	if b, ok := that.balances[addr]; ok {
		return new(big.Int).Set(b)
	}
	return new(big.Int)
}

func mustJSON(v any) []byte {
	data, err := json.Marshal(v)
	if err != nil {
		panic(err)
	}
	return data
}

func mustUnmarshal(data []byte, v any) {
	if err := json.Unmarshal(data, v); err != nil {
		panic(err)
	}
}
