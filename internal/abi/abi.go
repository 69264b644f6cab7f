// Package abi produces the interface description of the lottery contract:
// the build artifact a deployment tool consumes to know which operations
// exist and how to address them.
package abi

import (
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/crypto/sha3"
)

// ContractName is the artifact name of the lottery.
const ContractName = "Lottery"

// State mutability values.
const (
	Payable    = "payable"
	NonPayable = "nonpayable"
	View       = "view"
)

// ErrUnknownSelector is returned by Lookup for a selector no entry has.
var ErrUnknownSelector = errors.New("unknown selector")

// Param is one input or output of an entry.
type Param struct {
	Name string `json:"name"`
	Type string `json:"type"`
}

// Entry describes one operation.
type Entry struct {
	Type            string  `json:"type"`
	Name            string  `json:"name,omitempty"`
	Inputs          []Param `json:"inputs"`
	Outputs         []Param `json:"outputs,omitempty"`
	StateMutability string  `json:"stateMutability"`
	Selector        string  `json:"selector,omitempty"`
}

// Signature is the canonical "name(type,...)" form of a function entry.
func (e Entry) Signature() string {
	types := make([]string, len(e.Inputs))
	for i, p := range e.Inputs {
		types[i] = p.Type
	}
	return e.Name + "(" + strings.Join(types, ",") + ")"
}

// Artifact is the compiled output for one contract.
type Artifact struct {
	ContractName string  `json:"contractName"`
	ABI          []Entry `json:"abi"`
}

// Selector returns the first four bytes of keccak256(signature), hex encoded
// with a 0x prefix.
func Selector(signature string) string {
	h := sha3.NewLegacyKeccak256()
	h.Write([]byte(signature))
	return "0x" + hex.EncodeToString(h.Sum(nil)[:4])
}

func function(name, mutability string, outputs ...Param) Entry {
	e := Entry{
		Type:            "function",
		Name:            name,
		Inputs:          []Param{},
		Outputs:         outputs,
		StateMutability: mutability,
	}
	e.Selector = Selector(e.Signature())
	return e
}

// Describe returns the lottery's interface description.
func Describe() Artifact {
	return Artifact{
		ContractName: ContractName,
		ABI: []Entry{
			{Type: "constructor", Inputs: []Param{}, StateMutability: NonPayable},
			function("enter", Payable),
			function("getPlayers", View, Param{Name: "", Type: "address[]"}),
			function("manager", View, Param{Name: "", Type: "address"}),
			function("pickWinner", NonPayable),
		},
	}
}

// Lookup finds the function entry for a 0x-prefixed selector.
func (a Artifact) Lookup(selector string) (Entry, error) {
	for _, e := range a.ABI {
		if e.Selector != "" && strings.EqualFold(e.Selector, selector) {
			return e, nil
		}
	}
	return Entry{}, fmt.Errorf("%w: %s", ErrUnknownSelector, selector)
}

// JSON renders the artifact as indented JSON.
func (a Artifact) JSON() ([]byte, error) {
	return json.MarshalIndent(a, "", "  ")
}
