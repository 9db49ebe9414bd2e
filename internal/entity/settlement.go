package entity

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"github.com/rocketscienceinc/tictactoe-escrow/internal/apperror"
)

const (
	PayoutWinner = "winner"
	PayoutFee    = "fee"
	PayoutRefund = "refund"
)

type Transfer struct {
	To     common.Address `json:"to"`
	Amount *big.Int       `json:"amount"`
	Reason string         `json:"reason"`
}

// Settlement is the record of how a game's pool was paid out.
type Settlement struct {
	GameID       uint64         `json:"game_id"`
	Outcome      Status         `json:"outcome"`
	Winner       common.Address `json:"winner"`
	FeeRecipient FeeRecipient   `json:"fee_recipient"`
	Pool         *big.Int       `json:"pool"`
	Transfers    []Transfer     `json:"transfers"`
}

// Total sums every transfer of the settlement.
func (that *Settlement) Total() *big.Int {
	total := new(big.Int)
	for _, t := range that.Transfers {
		total.Add(total, t.Amount)
	}
	return total
}

// Settle pays out a game that reached a terminal status and moves it to Settled.
// It is the only code that takes funds out of escrow.
func (that *Contract) Settle(game *Game, ledger *Ledger) (*Settlement, error) {
	if game.IsSettled() {
		return nil, apperror.ErrAlreadySettled
	}

	if !game.IsTerminal() {
		return nil, fmt.Errorf("%w: status %s", apperror.ErrGameNotFinished, game.Status)
	}

	pool := new(big.Int).Set(game.Escrow)
	settlement := &Settlement{
		GameID:       game.ID,
		Outcome:      game.Status,
		Winner:       game.Winner(),
		FeeRecipient: that.FeeRecipient,
		Pool:         pool,
	}

	switch game.Status {
	case StatusWonByX, StatusWonByO:
		fee := that.Fee(pool)
		if recipient, ok := that.FeeRecipient.Address(); ok && fee.Sign() > 0 {
			settlement.add(recipient, fee, PayoutFee)
		}
		settlement.add(settlement.Winner, new(big.Int).Sub(pool, fee), PayoutWinner)
	case StatusDraw:
		for _, player := range game.Players {
			settlement.add(player, game.Stake, PayoutRefund)
		}
	case StatusCancelled:
		for _, player := range game.Players {
			if player != (common.Address{}) {
				settlement.add(player, game.Stake, PayoutRefund)
			}
		}
	}

	if settlement.Total().Cmp(pool) != 0 {
		return nil, fmt.Errorf("settlement of game %d pays %s out of a pool of %s", game.ID, settlement.Total(), pool)
	}

	for _, t := range settlement.Transfers {
		if err := ledger.Transfer(that.Address, t.To, t.Amount); err != nil {
			return nil, fmt.Errorf("failed to pay %s to %s: %w", t.Reason, t.To.Hex(), err)
		}
	}

	game.Result = game.Status
	game.Status = StatusSettled
	game.Escrow = new(big.Int)
	game.Settlement = settlement

	return settlement, nil
}

func (that *Settlement) add(to common.Address, amount *big.Int, reason string) {
	if amount.Sign() == 0 {
		return
	}

	that.Transfers = append(that.Transfers, Transfer{
		To:     to,
		Amount: new(big.Int).Set(amount),
		Reason: reason,
	})
}
