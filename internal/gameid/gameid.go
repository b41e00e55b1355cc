// Package gameid generates time-sortable identifiers for sessions, players
// and hands. An id is an optional type prefix followed by a UUIDv7 encoded as
// 26 characters of Crockford base32, e.g. "hand_01j9z3c4m8q7r2x5t6v0w1y2za".
package gameid

import (
	"crypto/rand"
	"encoding/base32"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/coder/quartz"
)

// Base32 alphabet used by TypeID (Crockford's base32)
const alphabet = "0123456789abcdefghjkmnpqrstvwxyz"

const encodedLen = 26

// Well-known prefixes.
const (
	PrefixSession = "sess"
	PrefixPlayer  = "ply"
	PrefixHand    = "hand"
	PrefixConn    = "conn"
)

var encoding = base32.NewEncoding(alphabet).WithPadding(base32.NoPadding)

// RandSource interface for dependency injection of randomness
type RandSource interface {
	IntN(n int) int
}

// Generator produces ids from a clock and a source of randomness. It is safe
// for concurrent use.
type Generator struct {
	mu         sync.Mutex
	randSource RandSource
	clock      quartz.Clock
}

// NewGenerator creates a generator. A nil RandSource uses crypto/rand and a
// nil clock uses the real wall clock.
func NewGenerator(randSource RandSource, clock quartz.Clock) *Generator {
	if clock == nil {
		clock = quartz.NewReal()
	}
	return &Generator{randSource: randSource, clock: clock}
}

var defaultGenerator = NewGenerator(nil, nil)

// New returns a new id with the given prefix using the default generator.
func New(prefix string) string {
	return defaultGenerator.New(prefix)
}

// New returns a new id with the given prefix. An empty prefix yields the bare
// 26-character form.
func (g *Generator) New(prefix string) string {
	g.mu.Lock()
	uuid := g.uuidV7(g.clock.Now())
	g.mu.Unlock()

	suffix := strings.ToLower(encoding.EncodeToString(uuid[:]))
	if prefix == "" {
		return suffix
	}
	return prefix + "_" + suffix
}

func (g *Generator) uuidV7(now time.Time) [16]byte {
	var uuid [16]byte

	// 48-bit big-endian millisecond timestamp keeps ids sortable by creation time.
	ms := now.UnixMilli()
	for i := 0; i < 6; i++ {
		uuid[i] = byte(ms >> (40 - 8*i))
	}

	if g.randSource != nil {
		for i := 6; i < 16; i++ {
			uuid[i] = byte(g.randSource.IntN(256))
		}
	} else if _, err := rand.Read(uuid[6:]); err != nil {
		panic("gameid: failed to read random bytes: " + err.Error())
	}

	uuid[6] = (uuid[6] & 0x0f) | 0x70 // version 7
	uuid[8] = (uuid[8] & 0x3f) | 0x80 // RFC 4122 variant
	return uuid
}

// Parse splits an id into its prefix and encoded suffix and validates the suffix.
func Parse(id string) (prefix, suffix string, err error) {
	suffix = id
	if i := strings.LastIndexByte(id, '_'); i >= 0 {
		prefix, suffix = id[:i], id[i+1:]
		if prefix == "" {
			return "", "", fmt.Errorf("gameid: empty prefix in %q", id)
		}
	}
	if err := validateSuffix(suffix); err != nil {
		return "", "", err
	}
	return prefix, suffix, nil
}

// Validate checks that id is well formed and, when want is non-empty, that it
// carries the expected prefix.
func Validate(id, want string) error {
	prefix, _, err := Parse(id)
	if err != nil {
		return err
	}
	if want != "" && prefix != want {
		return fmt.Errorf("gameid: expected prefix %q, got %q", want, prefix)
	}
	return nil
}

func validateSuffix(s string) error {
	if len(s) != encodedLen {
		return fmt.Errorf("gameid: id must be exactly %d characters, got %d", encodedLen, len(s))
	}
	for i, char := range s {
		if !strings.ContainsRune(alphabet, char) {
			return fmt.Errorf("gameid: invalid character %c at position %d", char, i)
		}
	}
	return nil
}
