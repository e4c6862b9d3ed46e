package council

// Mode selects the council's overall working style. Free mode runs a
// single open-ended phase; the others run the five structured phases.
type Mode string

const (
	ModeFree      Mode = "free"
	ModeDefine    Mode = "define"
	ModeDevelop   Mode = "develop"
	ModeStructure Mode = "structure"
	ModeGenerate  Mode = "generate"
	ModeRefine    Mode = "refine"
)

// Valid reports whether m is a known mode. The empty string is accepted
// and treated as free mode by callers.
func (m Mode) Valid() bool {
	switch m {
	case ModeFree, ModeDefine, ModeDevelop, ModeStructure, ModeGenerate, ModeRefine:
		return true
	}
	return false
}

// StepDef is one sub-step of a phase, declared and closed by the
// coordinator at runtime.
type StepDef struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
}

// PhaseDef is an immutable phase definition. TotalTurns is a scheduling
// target, not a hard limit: actual step budgets come from the
// coordinator's estimates during the debate.
type PhaseDef struct {
	Number          int          `json:"phase"`
	Name            string       `json:"name"`
	Purpose         string       `json:"purpose"`
	DiscussionStyle string       `json:"discussion_style"`
	TotalTurns      int          `json:"total_turns"`
	TurnQuotas      map[Role]int `json:"turn_quotas,omitempty"`
	Steps           []StepDef    `json:"steps,omitempty"`
	Participants    []Role       `json:"participants"`
}

// Step returns the step definition with the given id, if present.
func (p *PhaseDef) Step(id string) (StepDef, bool) {
	for _, s := range p.Steps {
		if s.ID == id {
			return s, true
		}
	}
	return StepDef{}, false
}

// Quota returns the member's turn quota for this phase. When the phase
// defines no explicit quota for the role, the fallback is an even split
// of the phase's turn target across all participants.
func (p *PhaseDef) Quota(r Role) int {
	if q, ok := p.TurnQuotas[r]; ok {
		return q
	}
	if len(p.Participants) == 0 {
		return 0
	}
	return p.TotalTurns / len(p.Participants)
}

var allMembers = MemberRoles()

// Phases is the structured five-phase program: Define, Develop,
// Structure, Generate, Refine. Phase numbers are 1-based and monotonic.
var Phases = []PhaseDef{
	{
		Number:          1,
		Name:            "Define",
		Purpose:         "Establish the overall purpose, the session goal, and the objective and subjective context",
		DiscussionStyle: "Questioning and information gathering; assumptions are surfaced and confirmed",
		TotalTurns:      11,
		TurnQuotas: map[Role]int{
			FuturePotentialSeeker:     2,
			ConstraintChecker:         2,
			LogicalConsistencyChecker: 3,
			UserValueAdvocate:         2,
			InnovationCatalyst:        1,
			ConstructiveCritic:        1,
		},
		Steps: []StepDef{
			{ID: "1-1", Name: "Overall Purpose (Why)", Description: "The long-term vision this project serves"},
			{ID: "1-2", Name: "Session Goal (What)", Description: "The concrete deliverable this session will produce"},
			{ID: "1-3", Name: "Objective Information", Description: "Collected facts, data, and market context"},
			{ID: "1-4", Name: "Subjective Information", Description: "Stakeholder intentions, values, and concerns"},
			{ID: "1-5", Name: "Constraints", Description: "Budget, deadline, and resource limits"},
		},
		Participants: allMembers,
	},
	{
		Number:          2,
		Name:            "Develop",
		Purpose:         "Expand the possibility space through brainstorming and structured frameworks",
		DiscussionStyle: "Divergent; quantity over quality, criticism deferred",
		TotalTurns:      11,
		TurnQuotas: map[Role]int{
			FuturePotentialSeeker:     3,
			ConstraintChecker:         1,
			LogicalConsistencyChecker: 1,
			UserValueAdvocate:         2,
			InnovationCatalyst:        3,
			ConstructiveCritic:        1,
		},
		Steps: []StepDef{
			{ID: "2-1", Name: "Possibility List", Description: "Every idea raised during brainstorming"},
			{ID: "2-2", Name: "Expanded Perspectives", Description: "New angles gained by applying frameworks such as SWOT or 5W1H"},
			{ID: "2-3", Name: "Promising Hypotheses", Description: "The most promising ideas with background, content, and expected outcome"},
		},
		Participants: allMembers,
	},
	{
		Number:          3,
		Name:            "Structure",
		Purpose:         "Decide direction against explicit criteria and design the deliverable's skeleton",
		DiscussionStyle: "Convergent; evaluate, decide, and record the reasoning",
		TotalTurns:      11,
		TurnQuotas: map[Role]int{
			FuturePotentialSeeker:     2,
			ConstraintChecker:         2,
			LogicalConsistencyChecker: 3,
			UserValueAdvocate:         1,
			InnovationCatalyst:        1,
			ConstructiveCritic:        2,
		},
		Steps: []StepDef{
			{ID: "3-1", Name: "Evaluation Criteria", Description: "The axes used to choose between hypotheses"},
			{ID: "3-2", Name: "Decision", Description: "The selected direction and why it won"},
			{ID: "3-3", Name: "Deliverable Skeleton", Description: "Chapter, heading, and section structure of the final deliverable"},
		},
		Participants: allMembers,
	},
	{
		Number:          4,
		Name:            "Generate",
		Purpose:         "Write the draft body following the agreed skeleton",
		DiscussionStyle: "Focused solo authorship; the mode's creation role writes, others stay silent",
		TotalTurns:      8,
		// Quotas for this phase depend on the session mode: the creation
		// role writes nearly every turn. See QuotasFor.
		Steps: []StepDef{
			{ID: "4-1", Name: "Draft Body", Description: "A complete first pass written along the skeleton"},
			{ID: "4-2", Name: "Examples and Data", Description: "Supporting examples and data added for persuasiveness"},
		},
		Participants: allMembers,
	},
	{
		Number:          5,
		Name:            "Refine",
		Purpose:         "Verify, correct, and package the final deliverable",
		DiscussionStyle: "Review; every role checks its own quality dimension",
		TotalTurns:      11,
		TurnQuotas: map[Role]int{
			FuturePotentialSeeker:     2,
			ConstraintChecker:         2,
			LogicalConsistencyChecker: 2,
			UserValueAdvocate:         2,
			InnovationCatalyst:        1,
			ConstructiveCritic:        2,
		},
		Steps: []StepDef{
			{ID: "5-1", Name: "Verification Log", Description: "Checks for gaps and contradictions with the fixes applied"},
			{ID: "5-2", Name: "Final Deliverable", Description: "The reviewed, corrected, ready-to-deliver result"},
			{ID: "5-3", Name: "Appendix", Description: "All intermediate artifacts produced along the way"},
		},
		Participants: allMembers,
	},
}

// FreeModePhase is the single open-ended phase used by free mode. It
// has no predefined steps: the coordinator declares them ad hoc.
var FreeModePhase = PhaseDef{
	Number:          1,
	Name:            "Free Discussion",
	Purpose:         "Let the council debate the theme without a fixed program",
	DiscussionStyle: "Open; the coordinator shapes steps as the discussion demands",
	TotalTurns:      12,
	Participants:    allMembers,
}

// artifactNames maps a structured phase number to the artifact that
// phase produces in the living plan document.
var artifactNames = []string{
	"Project Charter",
	"Hypothesis Sheet",
	"Outline",
	"Draft",
	"Deliverable Package",
}

// ArtifactName returns the display name of the artifact phase n works
// toward. Unknown phases fall back to a generic label.
func ArtifactName(n int) string {
	if n >= 1 && n <= len(artifactNames) {
		return artifactNames[n-1]
	}
	return "Deliverable"
}

// TotalPhases returns how many phases the mode runs.
func TotalPhases(m Mode) int {
	if m == ModeFree {
		return 1
	}
	return len(Phases)
}

// PhaseFor returns the phase definition for the mode and 1-based phase
// number. Out-of-range numbers clamp to the first phase, matching the
// forgiving behavior of session restore.
func PhaseFor(m Mode, n int) PhaseDef {
	if m == ModeFree {
		return FreeModePhase
	}
	if n < 1 || n > len(Phases) {
		n = 1
	}
	p := Phases[n-1]
	if p.Number == 4 {
		// Generate phase: the creation role for this mode writes almost
		// every member turn.
		p.TurnQuotas = QuotasFor(m)
	}
	return p
}

// CreationRole returns the member that authors the draft in the
// Generate phase for the given mode.
func CreationRole(m Mode) Role {
	switch m {
	case ModeDefine, ModeStructure:
		return LogicalConsistencyChecker
	case ModeDevelop:
		return InnovationCatalyst
	case ModeGenerate:
		return ConstraintChecker
	case ModeRefine:
		return ConstructiveCritic
	default:
		return FuturePotentialSeeker
	}
}

// QuotasFor builds the Generate-phase quota table for a mode: the
// creation role gets seven writing turns, one reviewer closes. In
// refine mode the critic is also the author, so the review turn folds
// into the writing quota.
func QuotasFor(m Mode) map[Role]int {
	q := map[Role]int{CreationRole(m): 7}
	q[ConstructiveCritic]++
	return q
}
