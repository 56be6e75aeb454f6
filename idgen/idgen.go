// Package idgen generates the short identifiers used as redirect page names
// and the run identifiers attached to checker logs.
//
// Page names are lowercase base-36 strings. Uniqueness against an existing
// set of names is the caller's job; Unique wraps a Generator with a retry
// loop driven by a membership test.
package idgen

import (
	"crypto/rand"
	"math/big"

	"github.com/google/uuid"
)

// Alphabet is the base-36 alphabet used for page names.
const Alphabet = "0123456789abcdefghijklmnopqrstuvwxyz"

// Generator produces identifiers.
type Generator func() string

// Base36 returns a Generator whose IDs have a length drawn uniformly from
// [minLen, maxLen]. If maxLen < minLen, minLen is used for both bounds.
func Base36(minLen, maxLen int) Generator {
	if maxLen < minLen {
		maxLen = minLen
	}
	span := int64(maxLen - minLen + 1)
	return func() string {
		n := minLen
		if span > 1 {
			r, err := rand.Int(rand.Reader, big.NewInt(span))
			if err != nil {
				panic("idgen: crypto/rand failed: " + err.Error())
			}
			n += int(r.Int64())
		}
		return randomBase36(n)
	}
}

// Suffixed wraps a Generator and appends a fixed suffix to every ID.
// Page names are Suffixed(Base36(5, 7), ".html").
func Suffixed(gen Generator, suffix string) Generator {
	return func() string {
		return gen() + suffix
	}
}

// Unique calls gen until it yields an ID for which taken reports false.
// There is no retry bound: with the page-name namespace (~36^6) a collision
// run long enough to matter does not happen in practice.
func Unique(gen Generator, taken func(string) bool) string {
	for {
		id := gen()
		if !taken(id) {
			return id
		}
	}
}

// UUIDv7 returns a Generator that produces RFC 9562 UUID v7 strings.
// Used for check run IDs so log lines sort by time.
func UUIDv7() Generator {
	return func() string {
		return uuid.Must(uuid.NewV7()).String()
	}
}

// RunID produces a time-sortable identifier for one checker invocation.
var RunID Generator = UUIDv7()

func randomBase36(length int) string {
	if length <= 0 {
		return ""
	}
	buf := make([]byte, length)
	if _, err := rand.Read(buf); err != nil {
		panic("idgen: crypto/rand failed: " + err.Error())
	}
	for i := range buf {
		buf[i] = Alphabet[int(buf[i])%len(Alphabet)]
	}
	return string(buf)
}
