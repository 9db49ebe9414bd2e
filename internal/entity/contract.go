package entity

import (
	"encoding/json"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"github.com/rocketscienceinc/tictactoe-escrow/internal/apperror"
)

// MaxFeeBasisPoints is 100%.
const MaxFeeBasisPoints = 10_000

// FeeRecipient is an optional account. The zero value means no fee recipient is
// configured; it is stored on chain as the zero address.
type FeeRecipient struct {
	addr common.Address
	set  bool
}

func NoFeeRecipient() FeeRecipient {
	return FeeRecipient{}
}

// FeeRecipientOf wraps addr. The zero address resolves to no recipient.
func FeeRecipientOf(addr common.Address) FeeRecipient {
	if addr == (common.Address{}) {
		return FeeRecipient{}
	}
	return FeeRecipient{addr: addr, set: true}
}

func (f FeeRecipient) Address() (common.Address, bool) {
	return f.addr, f.set
}

func (f FeeRecipient) IsSet() bool {
	return f.set
}

// String returns the hex address, the zero address when unset.
func (f FeeRecipient) String() string {
	return f.addr.Hex()
}

func (f FeeRecipient) MarshalJSON() ([]byte, error) {
	return json.Marshal(f.addr)
}

func (f *FeeRecipient) UnmarshalJSON(data []byte) error {
	var addr common.Address
	if err := json.Unmarshal(data, &addr); err != nil {
		return fmt.Errorf("failed to unmarshal fee recipient: %w", err)
	}
	*f = FeeRecipientOf(addr)
	return nil
}

// Contract is the deployed arena. Everything but the counters is fixed at deploy time.
type Contract struct {
	Address        common.Address `json:"address"`
	Deployer       common.Address `json:"deployer"`
	FeeRecipient   FeeRecipient   `json:"fee_recipient"`
	FeeBasisPoints uint16         `json:"fee_basis_points"`
	MoveTimeout    uint64         `json:"move_timeout"`
	DeployedAt     uint64         `json:"deployed_at"`
	GameCount      uint64         `json:"game_count"`
	EventCount     uint64         `json:"event_count"`
}

func NewContract(deployer common.Address, feeRecipient FeeRecipient, feeBps uint16, moveTimeout, now uint64) (*Contract, error) {
	if deployer == (common.Address{}) {
		return nil, apperror.ErrZeroAddressSender
	}

	if feeBps > MaxFeeBasisPoints {
		return nil, fmt.Errorf("%w: got %d", apperror.ErrInvalidFee, feeBps)
	}

	return &Contract{
		Deployer:       deployer,
		FeeRecipient:   feeRecipient,
		FeeBasisPoints: feeBps,
		MoveTimeout:    moveTimeout,
		DeployedAt:     now,
	}, nil
}

// NextGameID allocates the next sequential game id. Ids start at 1.
func (that *Contract) NextGameID() uint64 {
	that.GameCount++
	return that.GameCount
}

// Fee returns the fee recipient's cut of a winning pool, zero without a recipient.
func (that *Contract) Fee(pool *big.Int) *big.Int {
	if !that.FeeRecipient.IsSet() || that.FeeBasisPoints == 0 {
		return new(big.Int)
	}

	fee := new(big.Int).Mul(pool, big.NewInt(int64(that.FeeBasisPoints)))
	return fee.Quo(fee, big.NewInt(MaxFeeBasisPoints))
}
