// Package namegen generates human-friendly two-token process identifiers
// (e.g. "happy-yalow"), as required by spec.md §6. Collisions are avoided by
// appending a short suffix derived from a UUID, the same tie-breaking
// technique the teacher repo uses for workflow IDs (see
// runtime/agent/runtime/run_id.go) — uuid.NewString for global uniqueness,
// trimmed down since a full UUID would defeat the "human friendly" goal.
package namegen

import (
	"fmt"
	"math/rand"
	"strings"
	"sync"

	"github.com/google/uuid"
)

var adjectives = []string{
	"happy", "brave", "calm", "eager", "gentle", "jolly", "keen", "lively",
	"proud", "quiet", "swift", "witty", "zealous", "bold", "bright", "crisp",
	"daring", "earnest", "fierce", "humble", "mellow", "nimble", "playful",
	"rustic", "sunny", "tidy", "vivid", "warm", "young", "zesty",
}

var nouns = []string{
	"yalow", "curie", "turing", "hopper", "lovelace", "noether", "darwin",
	"feynman", "euler", "galois", "tesla", "franklin", "einstein", "hawking",
	"babbage", "shannon", "knuth", "dijkstra", "ritchie", "torvalds", "wozniak",
	"ada", "grace", "margaret", "rosalind", "mae", "carl", "alan", "marie",
}

var rng = struct {
	mu sync.Mutex
	r  *rand.Rand
}{r: rand.New(rand.NewSource(1))}

// New returns a fresh two-token name such as "happy-yalow". Names are drawn
// pseudo-randomly from fixed word lists; callers that need guaranteed global
// uniqueness should use NewUnique instead.
func New() string {
	rng.mu.Lock()
	a := adjectives[rng.r.Intn(len(adjectives))]
	n := nouns[rng.r.Intn(len(nouns))]
	rng.mu.Unlock()
	return a + "-" + n
}

// NewUnique returns a two-token name with a short collision-breaking suffix
// derived from a UUID. Used for process IDs (spec.md §6), which must be
// globally unique within a running platform even though the word lists are
// finite.
func NewUnique() string {
	suffix := strings.SplitN(uuid.NewString(), "-", 2)[0]
	return fmt.Sprintf("%s-%s", New(), suffix)
}
