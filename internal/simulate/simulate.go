// Package simulate generates synthetic FRC matches for exercising the
// predict pipeline.
package simulate

import (
	"encoding/binary"
	"math/rand/v2"
	"strconv"
	"sync"

	"github.com/google/uuid"

	"github.com/Billy-Davies-2/frc-line-service/internal/valuation"
)

// Ranges for generated team inputs
const (
	TeamsPerAlliance = 3
	MinRank          = 1
	MaxRank          = 8
	MinEPA           = -10.0
	MaxEPA           = 50.0
	MaxTeamNumber    = 9999
)

// Match is one synthetic match
type Match struct {
	ID   string                `json:"matchId"`
	Red  []valuation.TeamInput `json:"red"`
	Blue []valuation.TeamInput `json:"blue"`
}

// Generator produces synthetic matches. Two generators built from the same
// seed yield the same sequence, match ids included. Safe for concurrent use.
type Generator struct {
	mu  sync.Mutex
	src *rand.ChaCha8
	rng *rand.Rand
}

// NewGenerator returns a generator seeded with seed
func NewGenerator(seed uint64) *Generator {
	var key [32]byte
	binary.LittleEndian.PutUint64(key[:8], seed)

	src := rand.NewChaCha8(key)
	return &Generator{src: src, rng: rand.New(src)}
}

// NewRandomGenerator returns a generator with an unpredictable seed
func NewRandomGenerator() *Generator {
	return NewGenerator(rand.Uint64())
}

// Match generates one match with TeamsPerAlliance teams per side. Team
// numbers are unique within the match.
func (g *Generator) Match() Match {
	g.mu.Lock()
	defer g.mu.Unlock()

	id, err := uuid.NewRandomFromReader(g.src)
	if err != nil {
		// ChaCha8 reads never fail
		panic(err)
	}

	used := make(map[int]bool, 2*TeamsPerAlliance)
	return Match{
		ID:   id.String(),
		Red:  g.alliance(used),
		Blue: g.alliance(used),
	}
}

// Matches generates n matches
func (g *Generator) Matches(n int) []Match {
	out := make([]Match, 0, n)
	for i := 0; i < n; i++ {
		out = append(out, g.Match())
	}
	return out
}

func (g *Generator) alliance(used map[int]bool) []valuation.TeamInput {
	teams := make([]valuation.TeamInput, 0, TeamsPerAlliance)
	for len(teams) < TeamsPerAlliance {
		number := 1 + g.rng.IntN(MaxTeamNumber)
		if used[number] {
			continue
		}
		used[number] = true

		teams = append(teams, valuation.Team(
			strconv.Itoa(number),
			MinRank+g.rng.IntN(MaxRank-MinRank+1),
			valuation.Round1(MinEPA+g.rng.Float64()*(MaxEPA-MinEPA)),
			valuation.Round2(g.rng.Float64()),
		))
	}
	return teams
}
