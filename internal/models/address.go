package models

import (
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
)

// AddressLength is the size in bytes of an account identity.
const AddressLength = 20

// ErrInvalidAddress is returned when a string cannot be parsed as an Address.
var ErrInvalidAddress = errors.New("invalid address")

// Address identifies an account: a participant, a manager, or a deployed contract.
type Address [AddressLength]byte

// ZeroAddress is the empty identity. It is never a valid caller.
var ZeroAddress Address

// ParseAddress decodes a 0x-prefixed (or bare) 40 character hex string.
func ParseAddress(s string) (Address, error) {
	var a Address
	s = strings.TrimPrefix(strings.TrimPrefix(s, "0x"), "0X")
	if len(s) != 2*AddressLength {
		return a, fmt.Errorf("%w: %q has length %d", ErrInvalidAddress, s, len(s))
	}
	if _, err := hex.Decode(a[:], []byte(s)); err != nil {
		return a, fmt.Errorf("%w: %v", ErrInvalidAddress, err)
	}
	return a, nil
}

// MustParseAddress is ParseAddress for constants and tests.
func MustParseAddress(s string) Address {
	a, err := ParseAddress(s)
	if err != nil {
		panic(err)
	}
	return a
}

// BytesToAddress keeps the last AddressLength bytes of b.
func BytesToAddress(b []byte) Address {
	var a Address
	if len(b) > AddressLength {
		b = b[len(b)-AddressLength:]
	}
	copy(a[AddressLength-len(b):], b)
	return a
}

func (a Address) String() string {
	return "0x" + hex.EncodeToString(a[:])
}

// IsZero reports whether a is the zero address.
func (a Address) IsZero() bool {
	return a == ZeroAddress
}

// Word returns the address left-padded to a 32 byte word.
func (a Address) Word() [32]byte {
	var w [32]byte
	copy(w[32-AddressLength:], a[:])
	return w
}

func (a Address) MarshalText() ([]byte, error) {
	return []byte(a.String()), nil
}

func (a *Address) UnmarshalText(text []byte) error {
	parsed, err := ParseAddress(string(text))
	if err != nil {
		return err
	}
	*a = parsed
	return nil
}
