// Package entropy provides the seed sources a lottery draws its winner
// index from.
//
// The default source, BlockHash, hashes public block data together with the
// participant list. Anyone can replay it, and whoever produces blocks can
// bias it. It is fine for tests and demos and unsuitable when real money is
// at stake against adversarial block producers.
package entropy

import (
	"crypto/rand"
	"encoding/binary"
	"errors"
	"fmt"
	"math/big"
	randv2 "math/rand/v2"
	"sync"

	"golang.org/x/crypto/sha3"

	"poolwager/internal/models"
	"poolwager/internal/randutil"
)

// Source names accepted by Named.
const (
	NameBlockHash = "blockhash"
	NameCrypto    = "crypto"
	NameSeeded    = "seeded"
)

// ErrUnknownSource is returned by Named for an unsupported source name.
var ErrUnknownSource = errors.New("unknown entropy source")

// Source derives a non-negative seed for a draw over players.
type Source interface {
	Seed(block models.BlockContext, players []models.Address) (*big.Int, error)
}

// SourceFunc adapts a function to Source.
type SourceFunc func(block models.BlockContext, players []models.Address) (*big.Int, error)

func (f SourceFunc) Seed(block models.BlockContext, players []models.Address) (*big.Int, error) {
	return f(block, players)
}

// BlockHash is keccak256(prevrandao ++ timestamp ++ players), every field
// packed as a 32 byte big-endian word.
type BlockHash struct{}

func (BlockHash) Seed(block models.BlockContext, players []models.Address) (*big.Int, error) {
	h := sha3.NewLegacyKeccak256()
	h.Write(block.PrevRandao[:])

	var ts [32]byte
	binary.BigEndian.PutUint64(ts[24:], uint64(block.Timestamp.Unix()))
	h.Write(ts[:])

	for _, p := range players {
		w := p.Word()
		h.Write(w[:])
	}
	return new(big.Int).SetBytes(h.Sum(nil)), nil
}

// Crypto draws 256 fresh bits from crypto/rand on every call. Draws are
// not replayable.
type Crypto struct{}

func (Crypto) Seed(models.BlockContext, []models.Address) (*big.Int, error) {
	var b [32]byte
	if _, err := rand.Read(b[:]); err != nil {
		return nil, fmt.Errorf("read crypto entropy: %w", err)
	}
	return new(big.Int).SetBytes(b[:]), nil
}

// Seeded yields a reproducible sequence of seeds from a fixed int64 seed.
type Seeded struct {
	mu  sync.Mutex
	rng *randv2.Rand
}

// NewSeeded creates a Seeded source.
func NewSeeded(seed int64) *Seeded {
	return &Seeded{rng: randutil.New(seed)}
}

func (s *Seeded) Seed(models.BlockContext, []models.Address) (*big.Int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return new(big.Int).SetUint64(s.rng.Uint64()), nil
}

// Fixed always returns the same seed. Tests use it to pin the winner index.
func Fixed(v int64) Source {
	return SourceFunc(func(models.BlockContext, []models.Address) (*big.Int, error) {
		return big.NewInt(v), nil
	})
}

// BlockDerived reports whether s draws only on public block data.
func BlockDerived(s Source) bool {
	_, ok := s.(BlockHash)
	return ok
}

// Named returns the source registered under name. seed is only used by
// the seeded source.
func Named(name string, seed int64) (Source, error) {
	switch name {
	case "", NameBlockHash:
		return BlockHash{}, nil
	case NameCrypto:
		return Crypto{}, nil
	case NameSeeded:
		return NewSeeded(seed), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownSource, name)
	}
}
