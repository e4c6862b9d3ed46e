package engine

import (
	"fmt"
	"strings"

	"github.com/councild/councild/internal/council"
	"github.com/councild/councild/internal/llm"
	"github.com/councild/councild/internal/protocol"
	"github.com/councild/councild/internal/session"
)

// historyWindow is how many recent turns the prompt carries. Older
// context is expected to live in the plan and memo documents.
const historyWindow = 12

// driftCheckAfter is the member-turn streak after which the coordinator
// is nudged to check for topic drift.
const driftCheckAfter = 2

// coordinatorProtocol is appended to the coordinator's system prompt so
// it knows the marker grammar the detector parses.
var coordinatorProtocol = strings.Join([]string{
	"Control the debate with these markers, each on its own line:",
	protocol.TokenStepStart + " Step <id>: <name> / Estimate: <n> turns " + protocol.TokenStepStart,
	protocol.TokenStepCompleted,
	protocol.TokenStepExtension + " (state how many additional turns you need)",
	protocol.TokenPhaseCompleted + " Phase <current phase number> " + protocol.TokenPhaseCompleted,
	protocol.TokenPlanUpdate + " <full replacement plan document> " + protocol.TokenPlanUpdate,
	protocol.TokenMemoUpdate + " <notes to append> " + protocol.TokenMemoUpdate,
	protocol.TokenUserQuestion + " <question for the human operator> " + protocol.TokenUserQuestion,
}, "\n")

// memberProtocol tells members the one marker available to them.
var memberProtocol = "If you genuinely need the human operator's input, write " +
	protocol.TokenUserQuestion + " <your question> " + protocol.TokenUserQuestion +
	" on its own line. Otherwise use no markers."

// buildPrompt assembles the generation request for one turn: the role's
// persona as system instruction and the session facts as prompt.
// instruction is an optional one-shot operator directive for this turn.
func buildPrompt(s *session.Session, phase council.PhaseDef, role council.Role, instruction string) llm.Request {
	cfg := council.Roles[role]

	var system strings.Builder
	system.WriteString(cfg.SystemPrompt)
	system.WriteString("\n\n")
	if role.IsCoordinator() {
		system.WriteString(coordinatorProtocol)
	} else {
		system.WriteString(memberProtocol)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Theme: %s\n", s.Theme)
	fmt.Fprintf(&b, "Phase %d of %d: %s. %s\n", s.Phase, s.TotalPhases, phase.Name, phase.Purpose)
	fmt.Fprintf(&b, "Discussion style: %s\n", phase.DiscussionStyle)
	fmt.Fprintf(&b, "Target artifact: %s\n", council.ArtifactName(s.Phase))
	if s.OutputMode == session.OutputDocumentation {
		b.WriteString("Output mode: documentation; deliverables are documents, not code.\n")
	} else {
		b.WriteString("Output mode: implementation; deliverables assume working software.\n")
	}

	if len(phase.Steps) > 0 {
		b.WriteString("Phase steps:\n")
		for _, st := range phase.Steps {
			fmt.Fprintf(&b, "  %s %s: %s\n", st.ID, st.Name, st.Description)
		}
	}

	if st := s.CurrentStep; st != nil {
		fmt.Fprintf(&b, "Current step: %s %s (%d of %d member turns used)\n",
			st.ID, st.Name, st.ActualTurns, st.EstimatedTurns)
		if role.IsCoordinator() && s.StepBudgetExhausted() {
			if st.Extended {
				b.WriteString("The extended budget for this step is used up. Close the step now.\n")
			} else {
				b.WriteString("The step budget is used up. Close the step, or request an extension if more discussion is essential.\n")
			}
		}
	} else if role.IsCoordinator() {
		b.WriteString("No step is in progress. Declare the next step before the members continue.\n")
	}

	if role.IsCoordinator() && s.SinceCoordinator >= driftCheckAfter {
		fmt.Fprintf(&b, "%d member turns have passed since your last check; verify the discussion has not drifted off the step.\n",
			s.SinceCoordinator)
	}

	if s.Plan != "" {
		fmt.Fprintf(&b, "\nPlan document:\n%s\n", s.Plan)
	}
	if s.Memo != "" {
		fmt.Fprintf(&b, "\nDebate notes:\n%s\n", s.Memo)
	}

	if instruction != "" {
		fmt.Fprintf(&b, "\nOperator instruction for this turn:\n%s\n", instruction)
	}

	if len(s.History) > 0 {
		b.WriteString("\nRecent turns:\n")
		start := len(s.History) - historyWindow
		if start < 0 {
			start = 0
		}
		for _, turn := range s.History[start:] {
			fmt.Fprintf(&b, "[%s] %s\n", speakerName(turn.Role), turn.Text)
		}
	}

	fmt.Fprintf(&b, "\nYou are %s. Give your next contribution.\n", cfg.Name)

	return llm.Request{System: system.String(), Prompt: b.String()}
}

func speakerName(r council.Role) string {
	if r == council.Operator {
		return "Operator"
	}
	if cfg, ok := council.Roles[r]; ok {
		return cfg.Name
	}
	return string(r)
}
