// Package session holds the mutable state of one debate and the rules
// for changing it. A Session is a pure state machine: it validates
// transitions and keeps its own invariants, but never talks to the
// generation provider, the event bus, or disk. The engine drives it.
package session

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/councild/councild/internal/council"
)

// ErrNotFound is returned by repositories for unknown session ids.
var ErrNotFound = errors.New("session not found")

// Status is the session lifecycle state.
type Status string

const (
	// StatusActive means turns can be executed.
	StatusActive Status = "active"

	// StatusAwaitingInput means a participant asked the human operator a
	// question and the debate is paused until it is answered.
	StatusAwaitingInput Status = "awaiting_input"

	// StatusCompleted means the final phase has been closed out.
	StatusCompleted Status = "completed"
)

// Output modes steer what kind of deliverable the council works toward.
const (
	OutputImplementation = "implementation"
	OutputDocumentation  = "documentation"
)

// Turn is one utterance in the debate transcript.
type Turn struct {
	Role      council.Role `json:"role"`
	Text      string       `json:"text"`
	Timestamp time.Time    `json:"timestamp"`
}

// StepState tracks the step currently being worked, as declared by the
// coordinator. ActualTurns counts member turns only; coordinator pacing
// turns do not consume the step budget.
type StepState struct {
	ID             string `json:"id"`
	Name           string `json:"name"`
	EstimatedTurns int    `json:"estimated_turns"`
	ActualTurns    int    `json:"actual_turns"`
	Extended       bool   `json:"extended"`
}

// Session is the full mutable state of one debate. All fields are
// exported for snapshot serialization; mutate only through the methods
// so the invariants hold.
type Session struct {
	ID          string       `json:"id"`
	Theme       string       `json:"theme"`
	Mode        council.Mode `json:"mode"`
	OutputMode  string       `json:"output_mode"`
	Status      Status       `json:"status"`
	Phase       int          `json:"phase"`
	TotalPhases int          `json:"total_phases"`

	// CurrentTurn counts executed turns, monotonically. Operator answers
	// are transcript entries, not executed turns, and do not count.
	CurrentTurn int `json:"current_turn"`

	// Deck is the remaining speaker queue for the current phase, front
	// at index 0.
	Deck []council.Role `json:"deck"`

	History []Turn `json:"history"`

	// Plan is the living plan document, replaced wholesale by plan
	// updates. Memo accumulates debate notes append-only.
	Plan string `json:"plan"`
	Memo string `json:"memo"`

	CurrentStep *StepState `json:"current_step,omitempty"`

	// PhaseComplete is set when the coordinator explicitly closes the
	// current phase. It is the only path to phase advancement.
	PhaseComplete bool `json:"phase_complete"`

	// AwaitingExtension is set while a proposed step extension waits for
	// the operator's judgment.
	AwaitingExtension      bool `json:"awaiting_extension"`
	ProposedExtensionTurns int  `json:"proposed_extension_turns,omitempty"`

	// PendingQuestion is the unanswered question to the operator, empty
	// when none is outstanding.
	PendingQuestion string `json:"pending_question,omitempty"`

	// SinceCoordinator counts member turns since the coordinator last
	// spoke. Advisory pacing input only, it never blocks a turn.
	SinceCoordinator int `json:"since_coordinator"`

	// ExtensionCount counts phase-level extend-discussion overrides
	// across the session's lifetime.
	ExtensionCount int `json:"extension_count"`

	// AutoProgress marks the session for background advancement by an
	// external driver; the engine itself never acts on it.
	AutoProgress bool `json:"auto_progress"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// New creates an active session at phase 1 with an empty deck. The
// caller builds and sets the initial deck.
func New(theme string, mode council.Mode) *Session {
	now := time.Now().UTC()
	return &Session{
		ID:           uuid.NewString(),
		Theme:        theme,
		Mode:         mode,
		OutputMode:   OutputImplementation,
		Status:       StatusActive,
		Phase:        1,
		TotalPhases:  council.TotalPhases(mode),
		AutoProgress: true,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
}

// PhaseDef returns the definition of the session's current phase.
func (s *Session) PhaseDef() council.PhaseDef {
	return council.PhaseFor(s.Mode, s.Phase)
}

// PeekSpeaker returns the next speaker without consuming it. ok is
// false when the deck is empty.
func (s *Session) PeekSpeaker() (council.Role, bool) {
	if len(s.Deck) == 0 {
		return "", false
	}
	return s.Deck[0], true
}

// PopSpeaker consumes the front of the deck. Call only after the turn
// it was peeked for has actually been produced.
func (s *Session) PopSpeaker() (council.Role, bool) {
	r, ok := s.PeekSpeaker()
	if !ok {
		return "", false
	}
	s.Deck = s.Deck[1:]
	s.touch()
	return r, true
}

// SetDeck replaces the speaker deck.
func (s *Session) SetDeck(deck []council.Role) {
	s.Deck = deck
	s.touch()
}

// AppendDeck appends roles to the back of the deck.
func (s *Session) AppendDeck(roles []council.Role) {
	s.Deck = append(s.Deck, roles...)
	s.touch()
}

// AppendHistory records a transcript entry and updates the turn and
// pacing counters. Coordinator and operator entries reset the pacing
// counter; only member turns consume the current step's budget.
func (s *Session) AppendHistory(role council.Role, text string) {
	s.History = append(s.History, Turn{Role: role, Text: text, Timestamp: time.Now().UTC()})
	switch {
	case role == council.Operator:
		// Operator answers relay through the coordinator, so the pacing
		// counter resets without an executed turn being counted.
		s.SinceCoordinator = 0
	case role.IsCoordinator():
		s.CurrentTurn++
		s.SinceCoordinator = 0
	default:
		s.CurrentTurn++
		s.SinceCoordinator++
		if s.CurrentStep != nil {
			s.CurrentStep.ActualTurns++
		}
	}
	s.touch()
}

// BeginStep opens a new step, discarding any previous step state. The
// extension guard resets with it: a fresh step may be extended once.
func (s *Session) BeginStep(id, name string, estimatedTurns int) {
	s.CurrentStep = &StepState{ID: id, Name: name, EstimatedTurns: estimatedTurns}
	s.AwaitingExtension = false
	s.ProposedExtensionTurns = 0
	s.touch()
}

// CompleteStep closes the current step. Closing with no step open is a
// no-op so a stray completion marker cannot wedge the session.
func (s *Session) CompleteStep() {
	s.CurrentStep = nil
	s.AwaitingExtension = false
	s.ProposedExtensionTurns = 0
	s.touch()
}

// ProposeExtension records the coordinator's request for more step
// turns, pending the operator's judgment. A step that was already
// extended once cannot ask again.
func (s *Session) ProposeExtension(additionalTurns int) error {
	if s.CurrentStep == nil {
		return errors.New("no step in progress")
	}
	if s.CurrentStep.Extended {
		return errors.New("step already extended once")
	}
	if additionalTurns <= 0 {
		return fmt.Errorf("invalid extension size %d", additionalTurns)
	}
	s.AwaitingExtension = true
	s.ProposedExtensionTurns = additionalTurns
	s.touch()
	return nil
}

// ApproveExtension applies the pending extension to the current step's
// budget and marks the step extended, closing the door on a second one.
func (s *Session) ApproveExtension() error {
	if !s.AwaitingExtension {
		return errors.New("no extension pending")
	}
	if s.CurrentStep == nil {
		return errors.New("no step in progress")
	}
	s.CurrentStep.EstimatedTurns += s.ProposedExtensionTurns
	s.CurrentStep.Extended = true
	s.AwaitingExtension = false
	s.ProposedExtensionTurns = 0
	s.touch()
	return nil
}

// DeclineExtension discards the pending extension. The step keeps its
// original budget and stays eligible for one future extension.
func (s *Session) DeclineExtension() error {
	if !s.AwaitingExtension {
		return errors.New("no extension pending")
	}
	s.AwaitingExtension = false
	s.ProposedExtensionTurns = 0
	s.touch()
	return nil
}

// MarkPhaseComplete records the coordinator's explicit phase closure
// and empties the deck; no further turns run until the operator
// advances the phase.
func (s *Session) MarkPhaseComplete() {
	s.PhaseComplete = true
	s.Deck = nil
	s.CurrentStep = nil
	s.AwaitingExtension = false
	s.ProposedExtensionTurns = 0
	s.touch()
}

// AdvancePhase moves to the next phase, or completes the session when
// the current phase was the last. The caller builds the new deck.
func (s *Session) AdvancePhase() error {
	if s.Status == StatusCompleted {
		return errors.New("session already completed")
	}
	s.PhaseComplete = false
	s.CurrentStep = nil
	s.AwaitingExtension = false
	s.ProposedExtensionTurns = 0
	s.SinceCoordinator = 0
	if s.Phase >= s.TotalPhases {
		s.Status = StatusCompleted
		s.Deck = nil
	} else {
		s.Phase++
	}
	s.touch()
	return nil
}

// ExtendDiscussion reopens a closed phase and appends an extra round of
// speakers, counting the override.
func (s *Session) ExtendDiscussion(roles []council.Role) {
	s.PhaseComplete = false
	s.ExtensionCount++
	s.Deck = append(s.Deck, roles...)
	s.touch()
}

// AskOperator pauses the session on an unanswered question.
func (s *Session) AskOperator(question string) {
	s.PendingQuestion = question
	s.Status = StatusAwaitingInput
	s.touch()
}

// AnswerOperator resumes an input-paused session. The answer itself is
// recorded in history by the caller.
func (s *Session) AnswerOperator() error {
	if s.Status != StatusAwaitingInput {
		return errors.New("no question pending")
	}
	s.PendingQuestion = ""
	s.Status = StatusActive
	s.touch()
	return nil
}

// UpdatePlan replaces the living plan document.
func (s *Session) UpdatePlan(text string) {
	s.Plan = text
	s.touch()
}

// AppendMemo appends a note block to the accumulated memo.
func (s *Session) AppendMemo(text string) {
	if s.Memo != "" {
		s.Memo += "\n\n"
	}
	s.Memo += text
	s.touch()
}

// StepBudgetExhausted reports whether the current step has used up its
// (possibly extended) budget of member turns.
func (s *Session) StepBudgetExhausted() bool {
	return s.CurrentStep != nil && s.CurrentStep.ActualTurns >= s.CurrentStep.EstimatedTurns
}

// Clone returns a deep copy safe to hand out for reads while the
// original keeps mutating under the engine's lock.
func (s *Session) Clone() *Session {
	out := *s
	out.Deck = append([]council.Role(nil), s.Deck...)
	out.History = append([]Turn(nil), s.History...)
	if s.CurrentStep != nil {
		step := *s.CurrentStep
		out.CurrentStep = &step
	}
	return &out
}

func (s *Session) touch() {
	s.UpdatedAt = time.Now().UTC()
}
