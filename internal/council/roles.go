// Package council defines the static composition of a debate council:
// the participating roles, the ordered phases with their sub-steps and
// turn quotas, and the session modes that select between them. All of
// this is immutable configuration loaded once at startup; the engine
// never mutates it.
package council

// Role identifies a speaking participant in the council.
type Role string

// Coordinator is the privileged role that manages pacing, declares
// steps, and owns the marker protocol. Everyone else is a member.
const Coordinator Role = "facilitator"

// Member roles.
const (
	FuturePotentialSeeker     Role = "futurePotentialSeeker"
	ConstraintChecker         Role = "constraintChecker"
	LogicalConsistencyChecker Role = "logicalConsistencyChecker"
	UserValueAdvocate         Role = "userValueAdvocate"
	InnovationCatalyst        Role = "innovationCatalyst"
	ConstructiveCritic        Role = "constructiveCritic"
)

// Operator identifies the human operator in transcripts. It is never a
// deck entry and has no generation persona.
const Operator Role = "user"

// IsCoordinator reports whether r is the coordinator role.
func (r Role) IsCoordinator() bool { return r == Coordinator }

// Valid reports whether r is a known role.
func (r Role) Valid() bool {
	_, ok := Roles[r]
	return ok
}

// RoleConfig describes a role's presentation and voice.
type RoleConfig struct {
	Name         string
	Emoji        string
	Focus        string // the quality dimension this role defends
	Persona      string
	SystemPrompt string
}

// Roles is the registry of all participants. The system prompts are
// deliberately short: persona detail lives with the operator, not in
// code.
var Roles = map[Role]RoleConfig{
	Coordinator: {
		Name:    "Facilitator",
		Emoji:   "🎯",
		Focus:   "Pacing and consensus",
		Persona: "Chairs the council: declares steps, watches for drift, and maintains the plan document.",
		SystemPrompt: "You are the Facilitator. You manage pacing only and never argue " +
			"the substance. Declare steps, check for topic drift, and keep the plan " +
			"document current using the council marker protocol.",
	},
	FuturePotentialSeeker: {
		Name:    "Future Potential Seeker",
		Emoji:   "🔭",
		Focus:   "Purpose and long-term value",
		Persona: "Optimist who keeps asking what the project could become.",
		SystemPrompt: "You are the Future Potential Seeker. Explore what this theme could " +
			"grow into and keep the discussion anchored to its original purpose.",
	},
	ConstraintChecker: {
		Name:    "Constraint Checker",
		Emoji:   "📏",
		Focus:   "Feasibility and resources",
		Persona: "Pragmatist who prices every idea in time, money, and people.",
		SystemPrompt: "You are the Constraint Checker. Estimate resources, flag what is " +
			"not feasible, and propose leaner alternatives.",
	},
	LogicalConsistencyChecker: {
		Name:    "Logical Consistency Checker",
		Emoji:   "🧮",
		Focus:   "Accuracy and coherence",
		Persona: "Careful analyst who states assumptions and asks for confirmation.",
		SystemPrompt: "You are the Logical Consistency Checker. Test claims for evidence " +
			"and internal consistency; state assumptions explicitly before building on them.",
	},
	UserValueAdvocate: {
		Name:    "User Value Advocate",
		Emoji:   "🤝",
		Focus:   "Value to the end user",
		Persona: "Speaks for the people the deliverable is for.",
		SystemPrompt: "You are the User Value Advocate. Judge every proposal by what it " +
			"gives the end user, and say so plainly.",
	},
	InnovationCatalyst: {
		Name:    "Innovation Catalyst",
		Emoji:   "⚡",
		Focus:   "Novelty and differentiation",
		Persona: "Pushes past the first obvious answer.",
		SystemPrompt: "You are the Innovation Catalyst. Offer angles nobody has raised " +
			"yet and combine earlier ideas into new ones.",
	},
	ConstructiveCritic: {
		Name:    "Constructive Critic",
		Emoji:   "🛡️",
		Focus:   "Risk and reliability",
		Persona: "Finds the failure modes, then helps fix them.",
		SystemPrompt: "You are the Constructive Critic. Name concrete risks in the current " +
			"direction and pair each with a workable mitigation.",
	},
}

// MemberRoles returns every non-coordinator role in a stable order.
func MemberRoles() []Role {
	return []Role{
		FuturePotentialSeeker,
		ConstraintChecker,
		LogicalConsistencyChecker,
		UserValueAdvocate,
		InnovationCatalyst,
		ConstructiveCritic,
	}
}
