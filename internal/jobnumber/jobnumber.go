// Package jobnumber produces human-facing repair job numbers of the form
// REP-YYYYMMDD-NNNN. The 4-digit suffix is random, so numbers are not
// globally unique on their own; the persistence layer enforces uniqueness
// and callers retry on collision (see engine.CreateJob).
package jobnumber

import (
	"fmt"
	"math/rand"
	"sync"
	"time"
)

// Prefix is the fixed leading tag of every generated number.
const Prefix = "REP"

// Generator issues job numbers. Safe for concurrent use.
type Generator struct {
	mu  sync.Mutex
	rng *rand.Rand
	now func() time.Time
}

// NewGenerator creates a generator seeded from the wall clock.
func NewGenerator() *Generator {
	return &Generator{
		rng: rand.New(rand.NewSource(time.Now().UnixNano())),
		now: time.Now,
	}
}

// Generate returns a new job number, e.g. "REP-20260901-0042".
func (g *Generator) Generate() string {
	g.mu.Lock()
	defer g.mu.Unlock()

	date := g.now().Format("20060102")
	return fmt.Sprintf("%s-%s-%04d", Prefix, date, g.rng.Intn(10000))
}
