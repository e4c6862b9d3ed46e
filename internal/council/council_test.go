package council

import "testing"

func TestModeValid(t *testing.T) {
	for _, m := range []Mode{ModeFree, ModeDefine, ModeDevelop, ModeStructure, ModeGenerate, ModeRefine} {
		if !m.Valid() {
			t.Errorf("%q should be valid", m)
		}
	}
	if Mode("vibes").Valid() {
		t.Error("unknown mode accepted")
	}
	if Mode("").Valid() {
		t.Error("empty mode should not be valid; callers default it explicitly")
	}
}

func TestRolesRegistry(t *testing.T) {
	if len(Roles) != len(MemberRoles())+1 {
		t.Fatalf("registry has %d roles, want %d members + coordinator", len(Roles), len(MemberRoles()))
	}
	for r, cfg := range Roles {
		if !r.Valid() {
			t.Errorf("%q not valid", r)
		}
		if cfg.Name == "" || cfg.SystemPrompt == "" || cfg.Focus == "" {
			t.Errorf("%q config incomplete: %+v", r, cfg)
		}
	}
	if !Coordinator.IsCoordinator() {
		t.Error("coordinator not recognized")
	}
	for _, r := range MemberRoles() {
		if r.IsCoordinator() {
			t.Errorf("%q claims to be coordinator", r)
		}
	}
	if Operator.Valid() {
		t.Error("operator is not a speaking role")
	}
}

func TestPhasesProgram(t *testing.T) {
	if len(Phases) != 5 {
		t.Fatalf("program has %d phases, want 5", len(Phases))
	}
	for i, p := range Phases {
		if p.Number != i+1 {
			t.Errorf("phase %d numbered %d", i+1, p.Number)
		}
		if p.Number != 4 && len(p.TurnQuotas) != len(MemberRoles()) {
			t.Errorf("phase %d has quotas for %d roles", p.Number, len(p.TurnQuotas))
		}
		if p.Number != 4 {
			total := 0
			for _, q := range p.TurnQuotas {
				total += q
			}
			if total != p.TotalTurns {
				t.Errorf("phase %d quotas sum to %d, target %d", p.Number, total, p.TotalTurns)
			}
		}
		if len(p.Steps) == 0 {
			t.Errorf("phase %d has no steps", p.Number)
		}
	}
}

func TestStepLookup(t *testing.T) {
	p := Phases[0]
	if s, ok := p.Step("1-2"); !ok || s.Name != "Session Goal (What)" {
		t.Errorf("Step(1-2) = %+v, %v", s, ok)
	}
	if _, ok := p.Step("9-9"); ok {
		t.Error("unknown step found")
	}
}

func TestQuotaFallback(t *testing.T) {
	// Free mode defines no explicit quotas: even split of the target.
	q := FreeModePhase.Quota(InnovationCatalyst)
	want := FreeModePhase.TotalTurns / len(FreeModePhase.Participants)
	if q != want {
		t.Errorf("fallback quota = %d, want %d", q, want)
	}
}

func TestPhaseFor(t *testing.T) {
	if p := PhaseFor(ModeFree, 3); p.Name != FreeModePhase.Name {
		t.Errorf("free mode phase = %q", p.Name)
	}

	if p := PhaseFor(ModeDefine, 2); p.Number != 2 {
		t.Errorf("phase = %d, want 2", p.Number)
	}

	// Out-of-range clamps to the first phase.
	if p := PhaseFor(ModeDefine, 99); p.Number != 1 {
		t.Errorf("clamped phase = %d, want 1", p.Number)
	}
	if p := PhaseFor(ModeDefine, 0); p.Number != 1 {
		t.Errorf("clamped phase = %d, want 1", p.Number)
	}
}

func TestPhaseFourQuotasPerMode(t *testing.T) {
	tests := []struct {
		mode    Mode
		creator Role
	}{
		{ModeDefine, LogicalConsistencyChecker},
		{ModeStructure, LogicalConsistencyChecker},
		{ModeDevelop, InnovationCatalyst},
		{ModeGenerate, ConstraintChecker},
		{ModeRefine, ConstructiveCritic},
	}
	for _, tt := range tests {
		t.Run(string(tt.mode), func(t *testing.T) {
			if got := CreationRole(tt.mode); got != tt.creator {
				t.Fatalf("CreationRole = %q, want %q", got, tt.creator)
			}

			p := PhaseFor(tt.mode, 4)
			if tt.mode == ModeRefine {
				// The critic both writes and reviews.
				if p.TurnQuotas[ConstructiveCritic] != 8 {
					t.Errorf("refine critic quota = %d, want 8", p.TurnQuotas[ConstructiveCritic])
				}
			} else {
				if p.TurnQuotas[tt.creator] != 7 {
					t.Errorf("creator quota = %d, want 7", p.TurnQuotas[tt.creator])
				}
				if p.TurnQuotas[ConstructiveCritic] != 1 {
					t.Errorf("critic quota = %d, want 1", p.TurnQuotas[ConstructiveCritic])
				}
			}
		})
	}
}

func TestPhaseForDoesNotMutateProgram(t *testing.T) {
	_ = PhaseFor(ModeDevelop, 4)
	if Phases[3].TurnQuotas != nil {
		t.Error("PhaseFor leaked mode quotas into the shared program")
	}
}

func TestArtifactName(t *testing.T) {
	if got := ArtifactName(1); got != "Project Charter" {
		t.Errorf("ArtifactName(1) = %q", got)
	}
	if got := ArtifactName(5); got != "Deliverable Package" {
		t.Errorf("ArtifactName(5) = %q", got)
	}
	if got := ArtifactName(99); got != "Deliverable" {
		t.Errorf("ArtifactName(99) = %q", got)
	}
}

func TestTotalPhases(t *testing.T) {
	if TotalPhases(ModeFree) != 1 {
		t.Error("free mode should run one phase")
	}
	if TotalPhases(ModeDefine) != 5 {
		t.Error("structured modes run five phases")
	}
}
