// Package idgen mints lexicographically sortable identifiers and timestamps.
//
// IDs are 26-character Crockford base32 strings: a 48-bit millisecond
// timestamp prefix followed by 80 bits of randomness. IDs minted within the
// same millisecond increment the random suffix monotonically, so string
// order always matches mint order.
package idgen

import (
	"crypto/rand"
	"sync"
	"time"
)

const alphabet = "0123456789ABCDEFGHJKMNPQRSTVWXYZ"

var (
	mu       sync.Mutex
	lastMs   int64
	lastRand [10]byte
)

// New returns a fresh 26-character sortable ID.
func New() string {
	mu.Lock()
	defer mu.Unlock()

	ms := time.Now().UnixMilli()
	if ms > lastMs {
		lastMs = ms
		mustRead(lastRand[:])
	} else {
		// Same millisecond (or clock regression): bump the random suffix.
		// Overflow rolls over to the next millisecond with fresh entropy.
		if !increment(&lastRand) {
			lastMs++
			mustRead(lastRand[:])
		}
		ms = lastMs
	}
	return encode(ms, lastRand)
}

// Now returns the current UTC time formatted so that lexical order matches
// chronological order, with millisecond precision.
func Now() string {
	return Format(time.Now())
}

// Format renders t in the store's canonical sortable form.
func Format(t time.Time) string {
	return t.UTC().Format("2006-01-02T15:04:05.000Z")
}

// Parse is the inverse of Format.
func Parse(s string) (time.Time, error) {
	return time.Parse("2006-01-02T15:04:05.000Z", s)
}

func mustRead(b []byte) {
	if _, err := rand.Read(b); err != nil {
		// crypto/rand never fails on supported platforms
		panic("idgen: entropy source failed: " + err.Error())
	}
}

// increment adds one to the big-endian random suffix. Returns false on
// carry out of the top byte.
func increment(b *[10]byte) bool {
	for i := len(b) - 1; i >= 0; i-- {
		b[i]++
		if b[i] != 0 {
			return true
		}
	}
	return false
}

func encode(ms int64, entropy [10]byte) string {
	var out [26]byte

	// 48-bit timestamp -> 10 characters
	t := uint64(ms)
	for i := 9; i >= 0; i-- {
		out[i] = alphabet[t&0x1f]
		t >>= 5
	}

	// 80-bit entropy -> 16 characters, 40 bits at a time
	hi := uint64(entropy[0])<<32 | uint64(entropy[1])<<24 | uint64(entropy[2])<<16 |
		uint64(entropy[3])<<8 | uint64(entropy[4])
	lo := uint64(entropy[5])<<32 | uint64(entropy[6])<<24 | uint64(entropy[7])<<16 |
		uint64(entropy[8])<<8 | uint64(entropy[9])
	for i := 17; i >= 10; i-- {
		out[i] = alphabet[hi&0x1f]
		hi >>= 5
	}
	for i := 25; i >= 18; i-- {
		out[i] = alphabet[lo&0x1f]
		lo >>= 5
	}
	return string(out[:])
}
