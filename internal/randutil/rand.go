package randutil

import (
	"encoding/binary"
	rand "math/rand/v2"

	"golang.org/x/crypto/sha3"
)

// New returns a *rand.Rand seeded deterministically from seed. Account
// provisioning and the seeded entropy source both go through here so a
// given seed always yields the same identities and the same winners.
// The ChaCha8 key is the Keccak-256 of the big-endian seed.
func New(seed int64) *rand.Rand {
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], uint64(seed))
	h := sha3.NewLegacyKeccak256()
	h.Write(buf[:])
	var key [32]byte
	copy(key[:], h.Sum(nil))
	return rand.New(rand.NewChaCha8(key))
}

// Bytes fills a fresh n byte slice from r.
func Bytes(r *rand.Rand, n int) []byte {
	b := make([]byte, 0, n+8)
	for len(b) < n {
		b = binary.LittleEndian.AppendUint64(b, r.Uint64())
	}
	return b[:n]
}
