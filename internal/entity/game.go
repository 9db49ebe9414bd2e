package entity

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"github.com/rocketscienceinc/tictactoe-escrow/internal/apperror"
)

// Cell is the content of one board square.
type Cell uint8

const (
	Empty Cell = iota
	PlayerX
	PlayerO
)

func (c Cell) String() string {
	switch c {
	case PlayerX:
		return "X"
	case PlayerO:
		return "O"
	default:
		return "-"
	}
}

// Opponent returns the other mark. Empty stays Empty.
func (c Cell) Opponent() Cell {
	switch c {
	case PlayerX:
		return PlayerO
	case PlayerO:
		return PlayerX
	default:
		return Empty
	}
}

type Status string

const (
	StatusAwaitingPlayers Status = "awaiting_players"
	StatusActive          Status = "active"
	StatusWonByX          Status = "won_by_x"
	StatusWonByO          Status = "won_by_o"
	StatusDraw            Status = "draw"
	StatusCancelled       Status = "cancelled"
	StatusSettled         Status = "settled"
)

const BoardSize = 9

// WinCombos lists the winning lines in evaluation order: rows, columns, diagonals.
var WinCombos = [8][3]int{
	{0, 1, 2},
	{3, 4, 5},
	{6, 7, 8},
	{0, 3, 6},
	{1, 4, 7},
	{2, 5, 8},
	{0, 4, 8},
	{2, 4, 6},
}

// Game is one playthrough hosted by a contract. Players[0] plays X, Players[1] plays O.
type Game struct {
	ID         uint64            `json:"id"`
	Contract   common.Address    `json:"contract"`
	Creator    common.Address    `json:"creator"`
	Players    [2]common.Address `json:"players"`
	Board      [BoardSize]Cell   `json:"board"`
	Turn       Cell              `json:"turn"`
	Stake      *big.Int          `json:"stake"`
	Escrow     *big.Int          `json:"escrow"`
	Status     Status            `json:"status"`
	Result     Status            `json:"result,omitempty"`
	Moves      uint8             `json:"moves"`
	CreatedAt  uint64            `json:"created_at"`
	LastMoveAt uint64            `json:"last_move_at"`
	Settlement *Settlement       `json:"settlement,omitempty"`
}

func NewGame(id uint64, contract, creator common.Address, now uint64) *Game {
	return &Game{
		ID:         id,
		Contract:   contract,
		Creator:    creator,
		Turn:       Empty,
		Stake:      new(big.Int),
		Escrow:     new(big.Int),
		Status:     StatusAwaitingPlayers,
		CreatedAt:  now,
		LastMoveAt: now,
	}
}

// MarkOf returns the mark the address plays with, or Empty if it is not seated.
func (that *Game) MarkOf(addr common.Address) Cell {
	if addr == (common.Address{}) {
		return Empty
	}

	switch addr {
	case that.Players[0]:
		return PlayerX
	case that.Players[1]:
		return PlayerO
	default:
		return Empty
	}
}

// PlayerOf returns the address seated with the given mark.
func (that *Game) PlayerOf(mark Cell) common.Address {
	switch mark {
	case PlayerX:
		return that.Players[0]
	case PlayerO:
		return that.Players[1]
	default:
		return common.Address{}
	}
}

func (that *Game) seated() int {
	n := 0
	for _, p := range that.Players {
		if p != (common.Address{}) {
			n++
		}
	}
	return n
}

// Join seats the player and escrows the stake. The ledger transfer is done by the caller.
func (that *Game) Join(player common.Address, stake *big.Int, now uint64) error {
	if player == (common.Address{}) {
		return apperror.ErrZeroAddressSender
	}

	if that.Status != StatusAwaitingPlayers {
		return apperror.ErrGameNotJoinable
	}

	if that.MarkOf(player) != Empty {
		return apperror.ErrAlreadyJoined
	}

	if stake == nil || stake.Sign() <= 0 {
		return apperror.ErrZeroStake
	}

	if that.seated() == 1 && stake.Cmp(that.Stake) != 0 {
		return fmt.Errorf("%w: want %s, got %s", apperror.ErrStakeMismatch, that.Stake, stake)
	}

	if that.seated() == 0 {
		that.Players[0] = player
		that.Stake = new(big.Int).Set(stake)
	} else {
		that.Players[1] = player
	}

	that.Escrow = new(big.Int).Add(that.Escrow, stake)

	if that.seated() == 2 {
		that.Status = StatusActive
		that.Turn = PlayerX
		that.LastMoveAt = now
	}

	return nil
}

// MakeTurn applies one move. All checks run before anything is mutated.
func (that *Game) MakeTurn(player common.Address, cell int, now uint64) error {
	mark := that.MarkOf(player)
	if mark == Empty {
		return apperror.ErrNotAPlayer
	}

	if err := that.ConfirmActiveState(); err != nil {
		return err
	}

	if that.Turn != mark {
		return apperror.ErrNotYourTurn
	}

	if cell < 0 || cell >= BoardSize {
		return fmt.Errorf("%w: got %d", apperror.ErrCellOutOfRange, cell)
	}

	if that.Board[cell] != Empty {
		return apperror.ErrCellOccupied
	}

	that.Board[cell] = mark
	that.Moves++
	that.Turn = mark.Opponent()
	that.LastMoveAt = now

	that.UpdateGameState()

	return nil
}

// DetermineGameResult returns the terminal status the board implies, or "" while
// the game can continue.
func (that *Game) DetermineGameResult() Status {
	for _, combo := range WinCombos {
		a, b, c := that.Board[combo[0]], that.Board[combo[1]], that.Board[combo[2]]
		if a != Empty && a == b && b == c {
			return wonBy(a)
		}
	}

	// the game will continue until all the squares are full
	for _, cell := range that.Board {
		if cell == Empty {
			return ""
		}
	}

	return StatusDraw
}

func (that *Game) UpdateGameState() {
	switch result := that.DetermineGameResult(); result {
	case StatusWonByX, StatusWonByO, StatusDraw:
		that.Status = result
		that.Turn = Empty
	default:
		that.Status = StatusActive
	}
}

// Resign ends an active game in favour of the opponent. A lone player of a game
// that never started cancels it instead.
func (that *Game) Resign(player common.Address, now uint64) error {
	mark := that.MarkOf(player)
	if mark == Empty {
		return apperror.ErrNotAPlayer
	}

	switch that.Status {
	case StatusActive:
		that.Status = wonBy(mark.Opponent())
	case StatusAwaitingPlayers:
		that.Status = StatusCancelled
	default:
		return apperror.ErrGameNotActive
	}

	that.Turn = Empty
	that.LastMoveAt = now

	return nil
}

// ClaimTimeout lets the player who is waiting win when the opponent has not moved
// for longer than timeout seconds.
func (that *Game) ClaimTimeout(player common.Address, now, timeout uint64) error {
	mark := that.MarkOf(player)
	if mark == Empty {
		return apperror.ErrNotAPlayer
	}

	if err := that.ConfirmActiveState(); err != nil {
		return err
	}

	if timeout == 0 {
		return apperror.ErrTimeoutDisabled
	}

	if that.Turn == mark {
		return apperror.ErrNotTimeoutClaimant
	}

	if now <= that.LastMoveAt+timeout {
		return apperror.ErrTimeoutNotReached
	}

	that.Status = wonBy(mark)
	that.Turn = Empty
	that.LastMoveAt = now

	return nil
}

// Winner returns the winning address, or the zero address when there is none.
func (that *Game) Winner() common.Address {
	outcome := that.Status
	if outcome == StatusSettled {
		outcome = that.Result
	}

	switch outcome {
	case StatusWonByX:
		return that.PlayerOf(PlayerX)
	case StatusWonByO:
		return that.PlayerOf(PlayerO)
	default:
		return common.Address{}
	}
}

func (that *Game) IsAwaitingPlayers() bool {
	return that.Status == StatusAwaitingPlayers
}

func (that *Game) IsActive() bool {
	return that.Status == StatusActive
}

func (that *Game) IsSettled() bool {
	return that.Status == StatusSettled
}

// IsTerminal reports whether the game finished and still waits for settlement.
func (that *Game) IsTerminal() bool {
	switch that.Status {
	case StatusWonByX, StatusWonByO, StatusDraw, StatusCancelled:
		return true
	default:
		return false
	}
}

func (that *Game) ConfirmActiveState() error {
	switch {
	case that.IsActive():
		return nil
	case that.IsSettled():
		return apperror.ErrAlreadySettled
	default:
		return fmt.Errorf("%w: status %s", apperror.ErrGameNotActive, that.Status)
	}
}

func wonBy(mark Cell) Status {
	if mark == PlayerX {
		return StatusWonByX
	}
	return StatusWonByO
}
