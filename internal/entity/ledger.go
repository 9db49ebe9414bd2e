package entity

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"github.com/rocketscienceinc/tictactoe-escrow/internal/apperror"
)

// BalanceLoader reads a committed balance. Missing accounts have a zero balance.
type BalanceLoader func(addr common.Address) (*big.Int, error)

// Ledger is the transaction-local view of account balances. Balances are read
// through the loader on first use; Dirty lists what has to be written back.
type Ledger struct {
	load     BalanceLoader
	balances map[common.Address]*big.Int
	dirty    map[common.Address]struct{}
}

func NewLedger(load BalanceLoader) *Ledger {
	if load == nil {
		load = func(common.Address) (*big.Int, error) { return new(big.Int), nil }
	}

	return &Ledger{
		load:     load,
		balances: make(map[common.Address]*big.Int),
		dirty:    make(map[common.Address]struct{}),
	}
}

func (that *Ledger) Balance(addr common.Address) (*big.Int, error) {
	if b, ok := that.balances[addr]; ok {
		return new(big.Int).Set(b), nil
	}

	b, err := that.load(addr)
	if err != nil {
		return nil, fmt.Errorf("failed to load balance of %s: %w", addr.Hex(), err)
	}
	if b == nil {
		b = new(big.Int)
	}

	that.balances[addr] = b
	return new(big.Int).Set(b), nil
}

// Mint credits new funds to addr.
func (that *Ledger) Mint(to common.Address, amount *big.Int) error {
	if to == (common.Address{}) {
		return apperror.ErrZeroAddressTransfer
	}

	if amount.Sign() < 0 {
		return apperror.ErrNegativeAmount
	}

	current, err := that.Balance(to)
	if err != nil {
		return err
	}

	that.set(to, current.Add(current, amount))
	return nil
}

// Transfer moves amount between accounts. Nothing changes when it fails.
func (that *Ledger) Transfer(from, to common.Address, amount *big.Int) error {
	if to == (common.Address{}) {
		return apperror.ErrZeroAddressTransfer
	}

	if amount.Sign() < 0 {
		return apperror.ErrNegativeAmount
	}

	fromBalance, err := that.Balance(from)
	if err != nil {
		return err
	}

	toBalance, err := that.Balance(to)
	if err != nil {
		return err
	}

	if fromBalance.Cmp(amount) < 0 {
		return fmt.Errorf("%w: %s has %s, needs %s", apperror.ErrInsufficientFunds, from.Hex(), fromBalance, amount)
	}

	if from == to {
		return nil
	}

	that.set(from, fromBalance.Sub(fromBalance, amount))
	that.set(to, toBalance.Add(toBalance, amount))

	return nil
}

// Dirty returns the balances changed in this transaction.
func (that *Ledger) Dirty() map[common.Address]*big.Int {
	out := make(map[common.Address]*big.Int, len(that.dirty))
	for addr := range that.dirty {
		out[addr] = new(big.Int).Set(that.balances[addr])
	}
	return out
}

func (that *Ledger) set(addr common.Address, amount *big.Int) {
	that.balances[addr] = amount
	that.dirty[addr] = struct{}{}
}
