package entity

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

type Account struct {
	Address common.Address `json:"address"`
	Balance *big.Int       `json:"balance"`
}
