package deck

import (
	"math/rand"
	"testing"

	"github.com/councild/councild/internal/council"
)

func countRoles(deck []council.Role) map[council.Role]int {
	out := make(map[council.Role]int)
	for _, r := range deck {
		out[r]++
	}
	return out
}

func TestBuildLengthAndComposition(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	phase := council.PhaseFor(council.ModeDefine, 1)

	members := 0
	for _, r := range council.MemberRoles() {
		members += phase.Quota(r)
	}

	d := Build(phase, false, rng)
	want := members + (members-1)/2
	if len(d) != want {
		t.Fatalf("deck len = %d, want %d", len(d), want)
	}

	counts := countRoles(d)
	for _, r := range council.MemberRoles() {
		if counts[r] != phase.Quota(r) {
			t.Errorf("%s appears %d times, want quota %d", r, counts[r], phase.Quota(r))
		}
	}
	if counts[council.Coordinator] != want-members {
		t.Errorf("coordinator appears %d times, want %d", counts[council.Coordinator], want-members)
	}
}

func TestBuildCoordinatorFirst(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	phase := council.PhaseFor(council.ModeDefine, 1)

	plain := Build(phase, false, rng)
	forced := Build(phase, true, rng)

	if plain[0].IsCoordinator() {
		t.Error("unforced deck should open with a member")
	}
	if !forced[0].IsCoordinator() {
		t.Error("forced deck should open with the coordinator")
	}
	if len(forced) != len(plain)+1 {
		t.Errorf("forced len = %d, plain len = %d, want +1", len(forced), len(plain))
	}
}

func TestBuildCoordinatorSpacing(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	phase := council.PhaseFor(council.ModeFree, 1)

	d := Build(phase, false, rng)

	// Never two coordinators adjacent, never a trailing coordinator.
	for i := 1; i < len(d); i++ {
		if d[i].IsCoordinator() && d[i-1].IsCoordinator() {
			t.Fatalf("adjacent coordinators at %d: %v", i, d)
		}
	}
	if d[len(d)-1].IsCoordinator() {
		t.Fatalf("trailing coordinator: %v", d)
	}

	// At most two member turns pass between coordinator checks.
	streak := 0
	for _, r := range d {
		if r.IsCoordinator() {
			streak = 0
			continue
		}
		streak++
		if streak > coordinatorSpacing {
			t.Fatalf("member streak %d exceeds spacing %d: %v", streak, coordinatorSpacing, d)
		}
	}
}

func TestBuildGeneratePhaseUsesCreationRole(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	phase := council.PhaseFor(council.ModeDevelop, 4)

	counts := countRoles(Build(phase, false, rng))
	creator := council.CreationRole(council.ModeDevelop)
	if counts[creator] != 7 {
		t.Errorf("creation role %s appears %d times, want 7", creator, counts[creator])
	}
	if counts[council.ConstructiveCritic] != 1 {
		t.Errorf("critic appears %d times, want 1", counts[council.ConstructiveCritic])
	}
}

func TestBuildRefineModeFoldsCriticQuota(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	phase := council.PhaseFor(council.ModeRefine, 4)

	// In refine mode the critic authors the draft; the review turn
	// folds into its writing quota rather than vanishing.
	counts := countRoles(Build(phase, false, rng))
	if counts[council.ConstructiveCritic] != 8 {
		t.Errorf("critic appears %d times, want 8", counts[council.ConstructiveCritic])
	}
}

func TestBuildDeterministicWithSeed(t *testing.T) {
	phase := council.PhaseFor(council.ModeDefine, 1)

	a := Build(phase, false, rand.New(rand.NewSource(99)))
	b := Build(phase, false, rand.New(rand.NewSource(99)))
	if len(a) != len(b) {
		t.Fatalf("lengths differ: %d vs %d", len(a), len(b))
	}
	for i := range a {
		if a[i] != b[i] {
			t.Fatalf("decks diverge at %d: %v vs %v", i, a, b)
		}
	}
}

func TestExtensionRound(t *testing.T) {
	rng := rand.New(rand.NewSource(5))
	phase := council.PhaseFor(council.ModeDefine, 2)

	round := ExtensionRound(phase, rng)
	if len(round) != len(phase.Participants)+1 {
		t.Fatalf("round len = %d, want %d", len(round), len(phase.Participants)+1)
	}

	counts := countRoles(round)
	if counts[council.Coordinator] != 1 {
		t.Errorf("coordinator appears %d times, want 1", counts[council.Coordinator])
	}
	for _, r := range phase.Participants {
		if counts[r] != 1 {
			t.Errorf("%s appears %d times, want 1", r, counts[r])
		}
	}
}
