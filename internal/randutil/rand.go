// Package randutil builds math/rand/v2 sources for card dealing.
package randutil

import (
	crand "crypto/rand"
	"encoding/binary"
	rand "math/rand/v2"
)

const (
	goldenRatio64 = 0x9e3779b97f4a7c15
)

// New returns a *rand.Rand seeded deterministically from the provided int64.
// Sessions configured with the same seed deal the same sequence of hands.
func New(seed int64) *rand.Rand {
	u := uint64(seed)
	return rand.New(rand.NewPCG(mix(u), mix(u+goldenRatio64)))
}

// NewSecure returns a *rand.Rand backed by a ChaCha8 stream keyed from
// crypto/rand. Used for live sessions where deals must not be predictable.
func NewSecure() *rand.Rand {
	var key [32]byte
	if _, err := crand.Read(key[:]); err != nil {
		// crypto/rand only fails on a broken platform; fall back to a PCG
		// seeded from the runtime source rather than dealing from zeros.
		return rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}
	return rand.New(rand.NewChaCha8(key))
}

// For returns a deterministic source when seed is non-zero and a secure one otherwise.
func For(seed int64) *rand.Rand {
	if seed != 0 {
		return New(seed)
	}
	return NewSecure()
}

// SeedFromBytes folds an arbitrary byte string (e.g. a session name) into a seed.
func SeedFromBytes(b []byte) int64 {
	var acc uint64 = goldenRatio64
	for len(b) >= 8 {
		acc = mix(acc ^ binary.LittleEndian.Uint64(b[:8]))
		b = b[8:]
	}
	for _, c := range b {
		acc = mix(acc ^ uint64(c))
	}
	return int64(acc)
}

func mix(x uint64) uint64 {
	x ^= x >> 30
	x *= 0xbf58476d1ce4e5b9
	x ^= x >> 27
	x *= 0x94d049bb133111eb
	x ^= x >> 31
	return x
}
