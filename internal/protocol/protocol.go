// Package protocol extracts control signals from free-form generated
// text. The coordinator embeds markers (delimiter tokens) in its
// responses to drive the debate state machine; members use only the
// user-question marker.
//
// Extraction is deliberately lax. The generation provider's output
// format is not contractually guaranteed, and demanding exact structure
// would stall the state machine on harmless formatting drift. Presence
// of a token is enough to emit its signal; structured fields inside the
// token are parsed best-effort and fall back to defaults. The one
// exception is the phase-completion marker, which must name the current
// phase number exactly: a completion claim for some other phase is
// ignored and logged, never applied.
package protocol

import (
	"log/slog"
	"regexp"
	"strconv"
	"strings"
)

// Marker tokens. Each token delimits (or introduces) one signal kind.
const (
	TokenStepStart      = "---STEP_START---"
	TokenStepCompleted  = "---STEP_COMPLETED---"
	TokenStepExtension  = "---STEP_EXTENSION_NEEDED---"
	TokenPhaseCompleted = "---PHASE_COMPLETED---"
	TokenPlanUpdate     = "---PLAN_UPDATE---"
	TokenMemoUpdate     = "---MEMO_UPDATE---"
	TokenUserQuestion   = "---USER_QUESTION---"
)

// Defaults applied when a token is present but its structured fields
// cannot be parsed.
const (
	// DefaultEstimatedTurns is the step turn budget assumed when the
	// coordinator declares a step without a parsable estimate.
	DefaultEstimatedTurns = 8

	// DefaultExtensionTurns is the proposed extension size assumed when
	// the coordinator requests one without a parsable turn count.
	DefaultExtensionTurns = 3
)

// Signal is a control instruction extracted from generated text.
// Concrete types: StepStart, StepCompleted, StepExtensionNeeded,
// PhaseCompleted, PlanUpdate, MemoUpdate, UserQuestion.
type Signal interface {
	signal()
}

// StepStart declares a new step. ID and Name are empty when the text
// did not carry them in a recognizable form; the caller fills them from
// session state.
type StepStart struct {
	ID             string
	Name           string
	EstimatedTurns int
}

// StepCompleted closes the current step.
type StepCompleted struct{}

// StepExtensionNeeded proposes extending the current step's budget.
// The proposal needs explicit user approval before it takes effect.
type StepExtensionNeeded struct {
	AdditionalTurns int
}

// PhaseCompleted declares the current phase finished. Only emitted when
// the marker payload names the current phase number exactly.
type PhaseCompleted struct{}

// PlanUpdate replaces the living plan document.
type PlanUpdate struct {
	Text string
}

// MemoUpdate appends to the accumulated debate notes.
type MemoUpdate struct {
	Text string
}

// UserQuestion asks the human operator something and pauses for their
// answer.
type UserQuestion struct {
	Text string
}

func (StepStart) signal()           {}
func (StepCompleted) signal()       {}
func (StepExtensionNeeded) signal() {}
func (PhaseCompleted) signal()      {}
func (PlanUpdate) signal()          {}
func (MemoUpdate) signal()          {}
func (UserQuestion) signal()        {}

var (
	// "Step 1-1", "step F-2"; letters allowed in the major part.
	stepIDRe = regexp.MustCompile(`(?i)Step\s*([a-zA-Z0-9]+-[0-9]+)`)
	// Name after a colon following the step id: "Step 1-1: Overall Purpose".
	stepNameRe = regexp.MustCompile(`(?i)Step\s*[a-zA-Z0-9]+-[0-9]+\s*[:：]\s*([^\n]+)`)
	// "Estimate: 10", "10 turns", "estimated 10".
	estimateRe = regexp.MustCompile(`(?i)(?:Estimate[d]?|Turns?)\D{0,20}?(\d+)`)
	// "3 additional turns", "extend by 3 turns", "additional: 3".
	extensionRe = regexp.MustCompile(`(?i)(\d+)\s*(?:additional|more|extra)\s*turns?|(?:additional|extend|extra)\D{0,20}?(\d+)`)
	// Decoration stripped from extracted step names.
	nameDecorRe = regexp.MustCompile(`\*\*|【.*?】`)
)

// Detector scans generated text for marker tokens. It is stateless and
// safe for concurrent use; the logger records malformed or misdirected
// markers that are absorbed rather than surfaced.
type Detector struct {
	log *slog.Logger
}

// New creates a detector. A nil logger falls back to slog.Default.
func New(log *slog.Logger) *Detector {
	if log == nil {
		log = slog.Default()
	}
	return &Detector{log: log}
}

// Detect extracts every signal present in text. currentPhase is needed
// only to validate phase-completion markers. The result order is fixed
// (step start, step completed, extension, phase, plan, memo, question),
// which is also the order the state machine applies them in.
func (d *Detector) Detect(text string, currentPhase int) []Signal {
	var out []Signal

	if s, ok := d.detectStepStart(text); ok {
		out = append(out, s)
	}
	if strings.Contains(text, TokenStepCompleted) {
		out = append(out, StepCompleted{})
	}
	if s, ok := d.detectExtension(text); ok {
		out = append(out, s)
	}
	if d.detectPhaseCompleted(text, currentPhase) {
		out = append(out, PhaseCompleted{})
	}
	if body, ok := spanned(text, TokenPlanUpdate); ok {
		out = append(out, PlanUpdate{Text: body})
	}
	if body, ok := spanned(text, TokenMemoUpdate); ok {
		out = append(out, MemoUpdate{Text: body})
	}
	if s, ok := d.detectUserQuestion(text); ok {
		out = append(out, s)
	}

	return out
}

func (d *Detector) detectStepStart(text string) (StepStart, bool) {
	if !strings.Contains(text, TokenStepStart) {
		return StepStart{}, false
	}

	// The token alone is sufficient; every field is best-effort.
	s := StepStart{EstimatedTurns: DefaultEstimatedTurns}

	if m := stepIDRe.FindStringSubmatch(text); m != nil {
		s.ID = m[1]
	}
	if m := stepNameRe.FindStringSubmatch(text); m != nil {
		s.Name = strings.TrimSpace(nameDecorRe.ReplaceAllString(m[1], ""))
	}
	if m := estimateRe.FindStringSubmatch(text); m != nil {
		if n, err := strconv.Atoi(m[1]); err == nil && n > 0 {
			s.EstimatedTurns = n
		}
	}

	if s.ID == "" || s.Name == "" {
		d.log.Debug("step start marker with partial fields, falling back to session state",
			"id", s.ID, "name", s.Name, "estimated_turns", s.EstimatedTurns)
	}
	return s, true
}

func (d *Detector) detectExtension(text string) (StepExtensionNeeded, bool) {
	if !strings.Contains(text, TokenStepExtension) {
		return StepExtensionNeeded{}, false
	}

	s := StepExtensionNeeded{AdditionalTurns: DefaultExtensionTurns}
	if m := extensionRe.FindStringSubmatch(text); m != nil {
		raw := m[1]
		if raw == "" {
			raw = m[2]
		}
		if n, err := strconv.Atoi(raw); err == nil && n > 0 {
			s.AdditionalTurns = n
		}
	}
	return s, true
}

// detectPhaseCompleted is the strict one: the payload between the two
// tokens must name the current phase. A marker for any other phase is
// the model confusing itself about where it is, and acting on it would
// skip or repeat phases.
func (d *Detector) detectPhaseCompleted(text string, currentPhase int) bool {
	if !strings.Contains(text, TokenPhaseCompleted) {
		return false
	}

	re := regexp.MustCompile(
		regexp.QuoteMeta(TokenPhaseCompleted) +
			`\s*Phase\s*` + strconv.Itoa(currentPhase) + `\s*(?:complete[d]?)?\s*` +
			regexp.QuoteMeta(TokenPhaseCompleted))
	if re.MatchString(text) {
		return true
	}

	d.log.Warn("phase completion marker does not match current phase, ignoring",
		"current_phase", currentPhase)
	return false
}

// detectUserQuestion recognizes two forms: the spanned form with the
// token on both sides of the question, and a trailing form where a
// single token introduces it and everything after is the question. The
// trailing form is a leniency fallback for models that forget the
// closing token.
func (d *Detector) detectUserQuestion(text string) (UserQuestion, bool) {
	if body, ok := spanned(text, TokenUserQuestion); ok {
		return UserQuestion{Text: body}, true
	}

	idx := strings.Index(text, TokenUserQuestion)
	if idx < 0 {
		return UserQuestion{}, false
	}
	rest := strings.TrimSpace(text[idx+len(TokenUserQuestion):])
	if rest == "" {
		d.log.Debug("user question marker with empty body, dropping")
		return UserQuestion{}, false
	}
	return UserQuestion{Text: rest}, true
}

// spanned extracts the trimmed text between the first two occurrences
// of token. Returns false when fewer than two occurrences exist.
func spanned(text, token string) (string, bool) {
	first := strings.Index(text, token)
	if first < 0 {
		return "", false
	}
	rest := text[first+len(token):]
	second := strings.Index(rest, token)
	if second < 0 {
		return "", false
	}
	return strings.TrimSpace(rest[:second]), true
}
