package models

import (
	"math/big"
	"time"
)

// Receipt statuses.
const (
	StatusSuccess  = "success"
	StatusReverted = "reverted"
)

// Event names emitted by the lottery contract.
const (
	EventDeployed     = "Deployed"
	EventEntered      = "Entered"
	EventWinnerPicked = "WinnerPicked"
)

// Event is a log entry produced by a successful transaction.
type Event struct {
	Name   string   `json:"name"`
	Player Address  `json:"player"`
	Amount *big.Int `json:"amount,omitempty"`
	Index  int      `json:"index,omitempty"`
}

// Receipt records one host transaction and its outcome. Reverted
// transactions carry a reason and no events.
type Receipt struct {
	TxID        string    `json:"txId"`
	Contract    Address   `json:"contract"`
	From        Address   `json:"from"`
	Method      string    `json:"method"`
	Value       *big.Int  `json:"value"`
	BlockNumber uint64    `json:"blockNumber"`
	Timestamp   time.Time `json:"timestamp"`
	Status      string    `json:"status"`
	Reason      string    `json:"reason,omitempty"`
	Events      []Event   `json:"events,omitempty"`
}
