// Package deck builds speaker decks: the ordered queue of roles that
// will speak for the remainder of a phase. Member slots are allocated
// by quota and shuffled; the coordinator is interleaved at fixed
// spacing so pacing checks happen regardless of the shuffle outcome.
package deck

import (
	"math/rand"

	"github.com/councild/councild/internal/council"
)

// coordinatorSpacing is how many consecutive member turns pass before
// the coordinator is interleaved for a pacing check.
const coordinatorSpacing = 2

// Build produces a speaker deck for one phase. Each member appears as
// many times as its quota allows, in an order drawn from rng; the
// coordinator is inserted after every two member entries but never
// after the last one. When forceCoordinatorFirst is set an extra
// coordinator entry leads the deck so the upcoming step is declared
// before any member speaks.
//
// The shuffle makes the exact order non-deterministic by design; rng is
// injected so tests can pin it.
func Build(phase council.PhaseDef, forceCoordinatorFirst bool, rng *rand.Rand) []council.Role {
	members := memberSlots(phase)
	shuffle(members, rng)

	out := make([]council.Role, 0, len(members)+len(members)/coordinatorSpacing+1)
	if forceCoordinatorFirst {
		out = append(out, council.Coordinator)
	}
	for i, m := range members {
		out = append(out, m)
		if (i+1)%coordinatorSpacing == 0 && i < len(members)-1 {
			out = append(out, council.Coordinator)
		}
	}
	return out
}

// ExtensionRound produces one shuffled pass of every phase participant,
// coordinator included. Used by the phase-level extend-discussion
// operation, which appends a full extra round to the existing deck.
func ExtensionRound(phase council.PhaseDef, rng *rand.Rand) []council.Role {
	out := make([]council.Role, 0, len(phase.Participants)+1)
	out = append(out, council.Coordinator)
	out = append(out, phase.Participants...)
	shuffle(out, rng)
	return out
}

// memberSlots expands the phase's member quotas into a flat multiset.
func memberSlots(phase council.PhaseDef) []council.Role {
	var slots []council.Role
	for _, r := range phase.Participants {
		if r.IsCoordinator() {
			continue
		}
		for i := 0; i < phase.Quota(r); i++ {
			slots = append(slots, r)
		}
	}
	return slots
}

// shuffle is an in-place Fisher–Yates shuffle.
func shuffle(roles []council.Role, rng *rand.Rand) {
	for i := len(roles) - 1; i > 0; i-- {
		j := rng.Intn(i + 1)
		roles[i], roles[j] = roles[j], roles[i]
	}
}
