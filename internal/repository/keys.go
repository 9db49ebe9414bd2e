package repository

import (
	"strconv"

	"github.com/ethereum/go-ethereum/common"
)

const (
	balancesKey = "ledger:balances"
	noncesKey   = "ledger:nonces"
)

func contractKey(addr common.Address) string {
	return "contract:" + addr.Hex()
}

func gameKey(contract common.Address, id uint64) string {
	return contractKey(contract) + ":game:" + strconv.FormatUint(id, 10)
}

func eventsKey(contract common.Address) string {
	return contractKey(contract) + ":events"
}

func gameEventsKey(contract common.Address, id uint64) string {
	return gameKey(contract, id) + ":events"
}

// streamID maps an event sequence number onto a Redis stream entry id.
func streamID(seq uint64) string {
	return strconv.FormatUint(seq, 10) + "-0"
}
