package entity

import (
	"encoding/json"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

type EventType string

const (
	EventContractDeployed EventType = "ContractDeployed"
	EventGameCreated      EventType = "GameCreated"
	EventPlayerJoined     EventType = "PlayerJoined"
	EventMoveMade         EventType = "MoveMade"
	EventPlayerResigned   EventType = "PlayerResigned"
	EventTimeoutClaimed   EventType = "TimeoutClaimed"
	EventGameSettled      EventType = "GameSettled"
)

// Event is one entry of a contract's append-only log. Seq is assigned on commit.
type Event struct {
	Seq      uint64          `json:"seq"`
	Type     EventType       `json:"type"`
	Contract common.Address  `json:"contract"`
	GameID   uint64          `json:"game_id,omitempty"`
	Time     uint64          `json:"time"`
	Payload  json.RawMessage `json:"payload"`
}

// Decode unmarshals the payload into v.
func (that Event) Decode(v any) error {
	if err := json.Unmarshal(that.Payload, v); err != nil {
		return fmt.Errorf("failed to decode %s payload: %w", that.Type, err)
	}
	return nil
}

type ContractDeployed struct {
	Deployer       common.Address `json:"deployer"`
	FeeRecipient   FeeRecipient   `json:"fee_recipient"`
	FeeBasisPoints uint16         `json:"fee_basis_points"`
	MoveTimeout    uint64         `json:"move_timeout"`
}

type GameCreated struct {
	Creator common.Address `json:"creator"`
}

type PlayerJoined struct {
	Player common.Address `json:"player"`
	Stake  *big.Int       `json:"stake"`
}

type MoveMade struct {
	Player    common.Address `json:"player"`
	CellIndex int            `json:"cell_index"`
}

type PlayerResigned struct {
	Player common.Address `json:"player"`
}

type TimeoutClaimed struct {
	Claimant common.Address `json:"claimant"`
	TimedOut common.Address `json:"timed_out"`
}

// NewEvent builds an unsequenced event. Payloads are plain structs, so marshalling
// cannot fail.
func NewEvent(typ EventType, contract common.Address, gameID, now uint64, payload any) Event {
	data, err := json.Marshal(payload)
	if err != nil {
		panic(fmt.Errorf("failed to marshal %s payload: %w", typ, err))
	}

	return Event{
		Type:     typ,
		Contract: contract,
		GameID:   gameID,
		Time:     now,
		Payload:  data,
	}
}
