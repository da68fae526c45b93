// Package id provides unique ID generation for docchat.
//
// IDs are ULIDs: lexicographically sortable, 26 characters, safe for
// use as primary keys and log correlation tokens.
package id

import (
	"crypto/rand"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

// Generator produces unique IDs.
type Generator interface {
	// Generate creates a new unique ID.
	Generate() string
}

// ulidGenerator generates ULIDs from a single monotonic entropy source.
type ulidGenerator struct {
	mu      sync.Mutex
	entropy *ulid.MonotonicEntropy
}

// NewULIDGenerator creates a ULID generator.
func NewULIDGenerator() Generator {
	return &ulidGenerator{
		entropy: ulid.Monotonic(rand.Reader, 0),
	}
}

// Generate creates a new ULID string.
func (g *ulidGenerator) Generate() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return ulid.MustNew(ulid.Timestamp(time.Now()), g.entropy).String()
}

var (
	defaultGen Generator
	initOnce   sync.Once
)

// NewULID generates a ULID using the package default generator.
func NewULID() string {
	initOnce.Do(func() {
		defaultGen = NewULIDGenerator()
	})
	return defaultGen.Generate()
}
