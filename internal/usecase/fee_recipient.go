package usecase

import (
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/rocketscienceinc/tictactoe-escrow/internal/apperror"
	"github.com/rocketscienceinc/tictactoe-escrow/internal/entity"
)

// ResolveFeeRecipient decides who receives the fee of every won game. An explicit
// address wins over a private key; with neither there is no fee recipient and
// winners take the whole pool. The zero address also means no recipient.
func ResolveFeeRecipient(address, privateKey string) (entity.FeeRecipient, error) {
	addr, ok, err := ResolveAddress(address, privateKey)
	if err != nil {
		return entity.NoFeeRecipient(), fmt.Errorf("failed to resolve fee recipient: %w", err)
	}

	if !ok {
		return entity.NoFeeRecipient(), nil
	}

	return entity.FeeRecipientOf(addr), nil
}

// ResolveAddress returns address when it is set, otherwise the address owning
// privateKey. ok is false when both are empty.
func ResolveAddress(address, privateKey string) (common.Address, bool, error) {
	address = strings.TrimSpace(address)
	privateKey = strings.TrimSpace(privateKey)

	switch {
	case address != "":
		if !common.IsHexAddress(address) {
			return common.Address{}, false, fmt.Errorf("%w: %q is not an address", apperror.ErrInvalidInput, address)
		}
		return common.HexToAddress(address), true, nil
	case privateKey != "":
		key, err := crypto.HexToECDSA(strings.TrimPrefix(privateKey, "0x"))
		if err != nil {
			return common.Address{}, false, fmt.Errorf("%w: bad private key: %w", apperror.ErrInvalidInput, err)
		}
		return crypto.PubkeyToAddress(key.PublicKey), true, nil
	default:
		return common.Address{}, false, nil
	}
}
