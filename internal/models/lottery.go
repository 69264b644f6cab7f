package models

import (
	"math/big"
	"time"
)

// BlockContext carries the public, per-transaction inputs the host exposes
// to a running contract. PrevRandao plays the role of the block difficulty
// value, so anything derived from it is replayable by anyone who saw the block.
type BlockContext struct {
	Number     uint64    `json:"number"`
	Timestamp  time.Time `json:"timestamp"`
	PrevRandao [32]byte  `json:"prevRandao"`
}

// Call describes a single invocation of a contract operation.
type Call struct {
	Caller Address      `json:"caller"`
	Value  *big.Int     `json:"value"`
	Block  BlockContext `json:"block"`
}

// WinnerResult stores the outcome of a single winner selection,
// linking the winner to the amount paid out.
type WinnerResult struct {
	Winner Address  `json:"winner"`
	Index  int      `json:"index"`
	Amount *big.Int `json:"amount"`
}
