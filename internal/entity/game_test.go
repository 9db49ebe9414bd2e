package entity

import (
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rocketscienceinc/tictactoe-escrow/internal/apperror"
)

var (
	contractAddr = common.HexToAddress("0xc0ffee0000000000000000000000000000000001")
	alice        = common.HexToAddress("0x00000000000000000000000000000000000a11ce")
	bob          = common.HexToAddress("0x0000000000000000000000000000000000000b0b")
	carol        = common.HexToAddress("0x00000000000000000000000000000000000ca201")
)

func activeGame(t *testing.T) *Game {
	t.Helper()

	game := NewGame(1, contractAddr, alice, 100)
	require.NoError(t, game.Join(alice, big.NewInt(10), 100))
	require.NoError(t, game.Join(bob, big.NewInt(10), 101))

	return game
}

func play(t *testing.T, game *Game, cells ...int) {
	t.Helper()

	for i, cell := range cells {
		player := alice
		if i%2 == 1 {
			player = bob
		}
		require.NoError(t, game.MakeTurn(player, cell, 200+uint64(i)))
	}
}

func TestGameStatusMethods(t *testing.T) {
	t.Run("IsActive returns true when game status is active", func(t *testing.T) {
		// Given: a game with StatusActive
		game := &Game{Status: StatusActive}

		// Then: it should be active and not terminal
		assert.True(t, game.IsActive())
		assert.False(t, game.IsTerminal())
	})

	t.Run("IsTerminal returns true for every finished but unsettled status", func(t *testing.T) {
		for _, status := range []Status{StatusWonByX, StatusWonByO, StatusDraw, StatusCancelled} {
			game := &Game{Status: status}
			assert.True(t, game.IsTerminal(), status)
		}
	})

	t.Run("IsSettled is not terminal", func(t *testing.T) {
		// Given: a settled game
		game := &Game{Status: StatusSettled}

		// Then: it must not be settled again
		assert.True(t, game.IsSettled())
		assert.False(t, game.IsTerminal())
	})
}

func TestGame_ConfirmActiveState(t *testing.T) {
	t.Run("Returns nil when game is active", func(t *testing.T) {
		game := &Game{Status: StatusActive}
		assert.NoError(t, game.ConfirmActiveState())
	})

	t.Run("Returns ErrGameNotActive while awaiting players", func(t *testing.T) {
		game := &Game{Status: StatusAwaitingPlayers}
		assert.ErrorIs(t, game.ConfirmActiveState(), apperror.ErrGameNotActive)
	})

	t.Run("Returns ErrAlreadySettled when game is settled", func(t *testing.T) {
		game := &Game{Status: StatusSettled}

		err := game.ConfirmActiveState()

		assert.ErrorIs(t, err, apperror.ErrAlreadySettled)
		assert.ErrorIs(t, err, apperror.ErrInvalidState)
	})
}

func TestGame_Join(t *testing.T) {
	t.Run("First joiner becomes X and the game keeps waiting", func(t *testing.T) {
		// Given: a fresh game
		game := NewGame(1, contractAddr, alice, 100)

		// When: alice joins with a stake of 10
		err := game.Join(alice, big.NewInt(10), 100)

		// Then: she is seated as X and her stake is escrowed
		require.NoError(t, err)
		assert.Equal(t, PlayerX, game.MarkOf(alice))
		assert.Equal(t, StatusAwaitingPlayers, game.Status)
		assert.Equal(t, int64(10), game.Escrow.Int64())
		assert.Equal(t, Empty, game.Turn)
	})

	t.Run("Second joiner activates the game with X to move", func(t *testing.T) {
		game := activeGame(t)

		assert.Equal(t, StatusActive, game.Status)
		assert.Equal(t, PlayerX, game.Turn)
		assert.Equal(t, PlayerO, game.MarkOf(bob))
		assert.Equal(t, int64(20), game.Escrow.Int64())
		assert.Equal(t, int64(10), game.Stake.Int64())
	})

	t.Run("Rejects a player joining twice", func(t *testing.T) {
		game := NewGame(1, contractAddr, alice, 100)
		require.NoError(t, game.Join(alice, big.NewInt(10), 100))

		err := game.Join(alice, big.NewInt(10), 100)

		require.ErrorIs(t, err, apperror.ErrAlreadyJoined)
		assert.Equal(t, int64(10), game.Escrow.Int64())
	})

	t.Run("Rejects unequal stakes without touching the game", func(t *testing.T) {
		game := NewGame(1, contractAddr, alice, 100)
		require.NoError(t, game.Join(alice, big.NewInt(10), 100))
		before := *game

		err := game.Join(bob, big.NewInt(11), 101)

		require.ErrorIs(t, err, apperror.ErrStakeMismatch)
		assert.Equal(t, before, *game)
	})

	t.Run("Rejects a zero stake", func(t *testing.T) {
		game := NewGame(1, contractAddr, alice, 100)

		err := game.Join(alice, big.NewInt(0), 100)

		require.ErrorIs(t, err, apperror.ErrZeroStake)
		assert.ErrorIs(t, err, apperror.ErrInvalidInput)
	})

	t.Run("Rejects a third player", func(t *testing.T) {
		game := activeGame(t)

		err := game.Join(carol, big.NewInt(10), 102)

		require.ErrorIs(t, err, apperror.ErrGameNotJoinable)
	})
}

func TestGame_DetermineGameResult(t *testing.T) {
	t.Run("Every winning line is detected for both marks", func(t *testing.T) {
		for _, combo := range WinCombos {
			for _, mark := range []Cell{PlayerX, PlayerO} {
				game := &Game{}
				for _, idx := range combo {
					game.Board[idx] = mark
				}

				assert.Equal(t, wonBy(mark), game.DetermineGameResult(), combo)
			}
		}
	})

	t.Run("Returns StatusDraw for a full board without a line", func(t *testing.T) {
		game := &Game{
			Board: [9]Cell{
				PlayerX, PlayerO, PlayerX,
				PlayerX, PlayerO, PlayerO,
				PlayerO, PlayerX, PlayerX,
			},
		}

		assert.Equal(t, StatusDraw, game.DetermineGameResult())
	})

	t.Run("Returns empty status while the game can continue", func(t *testing.T) {
		game := &Game{
			Board: [9]Cell{
				PlayerX, PlayerO, Empty,
				Empty, PlayerX, Empty,
				Empty, Empty, PlayerO,
			},
		}

		assert.Equal(t, Status(""), game.DetermineGameResult())
	})

	t.Run("Matches a direct enumeration of lines for every board", func(t *testing.T) {
		// Given: all 3^9 boards
		for n := 0; n < 19683; n++ {
			game := &Game{}
			v := n
			for i := range game.Board {
				game.Board[i] = Cell(v % 3)
				v /= 3
			}

			// When: enumerating the lines by hand
			var want Status
			for _, combo := range WinCombos {
				a := game.Board[combo[0]]
				if a != Empty && a == game.Board[combo[1]] && a == game.Board[combo[2]] {
					want = wonBy(a)
					break
				}
			}
			if want == "" {
				want = StatusDraw
				for _, c := range game.Board {
					if c == Empty {
						want = ""
						break
					}
				}
			}

			// Then: DetermineGameResult agrees
			require.Equal(t, want, game.DetermineGameResult(), game.Board)
		}
	})
}

func TestGame_MakeTurn(t *testing.T) {
	t.Run("Successful turn marks the cell and flips the turn", func(t *testing.T) {
		// Given: an active game
		game := activeGame(t)

		// When: X plays the center
		err := game.MakeTurn(alice, 4, 300)

		// Then: the cell holds X and it is O's turn
		require.NoError(t, err)
		assert.Equal(t, PlayerX, game.Board[4])
		assert.Equal(t, PlayerO, game.Turn)
		assert.Equal(t, uint8(1), game.Moves)
		assert.Equal(t, uint64(300), game.LastMoveAt)
	})

	t.Run("Turn always belongs to the player who did not just move", func(t *testing.T) {
		game := activeGame(t)

		for i, cell := range []int{0, 4, 8, 2, 6} {
			player := alice
			if i%2 == 1 {
				player = bob
			}
			require.NoError(t, game.MakeTurn(player, cell, 300))
			if game.IsActive() {
				assert.Equal(t, game.MarkOf(player).Opponent(), game.Turn)
			}
		}
	})

	t.Run("Error on playing out of turn leaves the game unchanged", func(t *testing.T) {
		// Given: an active game where it is X's turn
		game := activeGame(t)
		before := *game

		// When: O tries to move
		err := game.MakeTurn(bob, 1, 300)

		// Then: ErrNotYourTurn and no change
		require.ErrorIs(t, err, apperror.ErrNotYourTurn)
		assert.Equal(t, before, *game)
	})

	t.Run("Error on cell already occupied", func(t *testing.T) {
		game := activeGame(t)
		require.NoError(t, game.MakeTurn(alice, 0, 300))
		before := *game

		err := game.MakeTurn(bob, 0, 301)

		require.ErrorIs(t, err, apperror.ErrCellOccupied)
		assert.Equal(t, before, *game)
	})

	t.Run("Error on invalid cell index", func(t *testing.T) {
		game := activeGame(t)

		assert.ErrorIs(t, game.MakeTurn(alice, 9, 300), apperror.ErrCellOutOfRange)
		assert.ErrorIs(t, game.MakeTurn(alice, -1, 300), apperror.ErrCellOutOfRange)
	})

	t.Run("Error when caller is not a player", func(t *testing.T) {
		game := activeGame(t)

		err := game.MakeTurn(carol, 0, 300)

		require.ErrorIs(t, err, apperror.ErrNotAPlayer)
		assert.ErrorIs(t, err, apperror.ErrUnauthorized)
	})

	t.Run("Error when the game has not started", func(t *testing.T) {
		game := NewGame(1, contractAddr, alice, 100)
		require.NoError(t, game.Join(alice, big.NewInt(10), 100))

		err := game.MakeTurn(alice, 0, 300)

		require.ErrorIs(t, err, apperror.ErrGameNotActive)
	})

	t.Run("Three in a row ends the game with X as winner", func(t *testing.T) {
		game := activeGame(t)

		play(t, game, 0, 3, 1, 4, 2)

		assert.Equal(t, StatusWonByX, game.Status)
		assert.Equal(t, alice, game.Winner())
		assert.Equal(t, Empty, game.Turn)
		assert.ErrorIs(t, game.MakeTurn(bob, 5, 400), apperror.ErrGameNotActive)
	})

	t.Run("Full board without a line is a draw", func(t *testing.T) {
		game := activeGame(t)

		play(t, game, 0, 1, 2, 4, 3, 5, 7, 6, 8)

		assert.Equal(t, StatusDraw, game.Status)
		assert.Equal(t, common.Address{}, game.Winner())
	})
}

func TestGame_Resign(t *testing.T) {
	t.Run("Resigning an active game hands the win to the opponent", func(t *testing.T) {
		game := activeGame(t)

		require.NoError(t, game.Resign(alice, 300))

		assert.Equal(t, StatusWonByO, game.Status)
		assert.Equal(t, bob, game.Winner())
	})

	t.Run("Lone player cancels a waiting game", func(t *testing.T) {
		game := NewGame(1, contractAddr, alice, 100)
		require.NoError(t, game.Join(alice, big.NewInt(10), 100))

		require.NoError(t, game.Resign(alice, 300))

		assert.Equal(t, StatusCancelled, game.Status)
	})

	t.Run("Outsider cannot resign", func(t *testing.T) {
		game := activeGame(t)
		assert.ErrorIs(t, game.Resign(carol, 300), apperror.ErrNotAPlayer)
	})
}

func TestGame_ClaimTimeout(t *testing.T) {
	t.Run("Waiting player wins after the timeout", func(t *testing.T) {
		// Given: X to move since 101
		game := activeGame(t)

		// When: O claims after the timeout passed
		err := game.ClaimTimeout(bob, 200, 60)

		// Then: O wins
		require.NoError(t, err)
		assert.Equal(t, StatusWonByO, game.Status)
	})

	t.Run("Cannot claim before the timeout", func(t *testing.T) {
		game := activeGame(t)
		assert.ErrorIs(t, game.ClaimTimeout(bob, 161, 60), apperror.ErrTimeoutNotReached)
	})

	t.Run("Player to move cannot claim", func(t *testing.T) {
		game := activeGame(t)
		assert.ErrorIs(t, game.ClaimTimeout(alice, 500, 60), apperror.ErrNotTimeoutClaimant)
	})

	t.Run("Disabled timeout", func(t *testing.T) {
		game := activeGame(t)
		assert.ErrorIs(t, game.ClaimTimeout(bob, 500, 0), apperror.ErrTimeoutDisabled)
	})
}
