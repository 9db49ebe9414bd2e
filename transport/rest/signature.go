package rest

import (
	"crypto/ecdsa"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/rocketscienceinc/tictactoe-escrow/internal/apperror"
)

const (
	actionCreate  = "create"
	actionJoin    = "join"
	actionMove    = "move"
	actionResign  = "resign"
	actionTimeout = "timeout"
	actionSettle  = "settle"
)

// signedRequest is embedded in every mutating request body. Nonce is the
// sender's account nonce; each one authorizes a single request.
type signedRequest struct {
	From      string `json:"from"`
	Nonce     uint64 `json:"nonce"`
	Signature string `json:"signature"`
}

// SigningMessage is the text a caller signs to authorize action on a game. Game
// creation uses id 0.
func SigningMessage(contract common.Address, action string, gameID uint64, arg string, nonce uint64) string {
	return fmt.Sprintf("tictactoe:%s:%s:%d:%s:%d", contract.Hex(), action, gameID, arg, nonce)
}

// Sign produces a personal_sign signature of message, V in {27, 28}.
func Sign(message string, key *ecdsa.PrivateKey) (string, error) {
	sig, err := crypto.Sign(textHash(message), key)
	if err != nil {
		return "", fmt.Errorf("failed to sign message: %w", err)
	}

	sig[crypto.RecoveryIDOffset] += 27

	return hexutil.Encode(sig), nil
}

// RecoverSender returns the account that produced signature over message.
func RecoverSender(message, signature string) (common.Address, error) {
	sig, err := hexutil.Decode(strings.TrimSpace(signature))
	if err != nil {
		return common.Address{}, fmt.Errorf("%w: %w", apperror.ErrInvalidSignature, err)
	}

	if len(sig) != crypto.SignatureLength {
		return common.Address{}, fmt.Errorf("%w: want %d bytes, got %d", apperror.ErrInvalidSignature, crypto.SignatureLength, len(sig))
	}

	if sig[crypto.RecoveryIDOffset] >= 27 {
		sig[crypto.RecoveryIDOffset] -= 27
	}

	pub, err := crypto.SigToPub(textHash(message), sig)
	if err != nil {
		return common.Address{}, fmt.Errorf("%w: %w", apperror.ErrInvalidSignature, err)
	}

	return crypto.PubkeyToAddress(*pub), nil
}

// message is what req must have been signed over.
func (that signedRequest) message(contract common.Address, action string, gameID uint64, arg string) string {
	return SigningMessage(contract, action, gameID, arg, that.Nonce)
}

// verify checks that req was signed by its From account.
func (that signedRequest) verify(message string) (common.Address, error) {
	if !common.IsHexAddress(that.From) {
		return common.Address{}, fmt.Errorf("%w: from %q is not an address", apperror.ErrInvalidInput, that.From)
	}
	from := common.HexToAddress(that.From)

	signer, err := RecoverSender(message, that.Signature)
	if err != nil {
		return common.Address{}, err
	}

	if signer != from {
		return common.Address{}, fmt.Errorf("%w: signed by %s", apperror.ErrInvalidSignature, signer.Hex())
	}

	return from, nil
}

// textHash is the EIP-191 personal message hash.
func textHash(message string) []byte {
	prefix := fmt.Sprintf("\x19Ethereum Signed Message:\n%d", len(message))
	return crypto.Keccak256([]byte(prefix), []byte(message))
}
