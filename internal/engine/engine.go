// Package engine drives debates: it owns the sessions, executes turns
// against the generation provider, applies protocol signals to the
// session state machine, and fans out persistence and events. All
// mutations are serialized per process; the generation call itself runs
// outside the lock with the session marked in flight.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"strings"
	"sync"
	"time"

	"github.com/councild/councild/internal/archive"
	"github.com/councild/councild/internal/council"
	"github.com/councild/councild/internal/deck"
	"github.com/councild/councild/internal/events"
	"github.com/councild/councild/internal/llm"
	"github.com/councild/councild/internal/protocol"
	"github.com/councild/councild/internal/session"
	"github.com/councild/councild/internal/snapshot"
)

var (
	// ErrUpstream wraps generation provider failures. The session state
	// is untouched when this is returned; the turn can be retried.
	ErrUpstream = errors.New("generation provider failed")

	// ErrComplete means the session has finished and takes no turns.
	ErrComplete = errors.New("session is completed")

	// ErrBusy means a turn for this session is already in flight.
	ErrBusy = errors.New("turn already in progress")

	// ErrPhaseComplete means the phase is closed and the operator must
	// advance before more turns run.
	ErrPhaseComplete = errors.New("phase complete, advance required")

	// ErrAwaitingInput means an operator question is unanswered and the
	// next turn must carry the answer.
	ErrAwaitingInput = errors.New("awaiting operator answer")
)

// Engine orchestrates all debate sessions in the process.
type Engine struct {
	repo  session.Repository
	gen   llm.Generator
	det   *protocol.Detector
	bus   *events.Bus
	saver *snapshot.Saver
	arch  *archive.Store
	log   *slog.Logger

	mu       sync.Mutex
	rng      *rand.Rand
	inflight map[string]bool
}

// Option configures an Engine.
type Option func(*Engine)

// WithBus attaches the observability bus.
func WithBus(b *events.Bus) Option { return func(e *Engine) { e.bus = b } }

// WithSaver attaches the snapshot saver. The engine schedules a save
// after every state change.
func WithSaver(s *snapshot.Saver) Option { return func(e *Engine) { e.saver = s } }

// AttachSaver wires the snapshot saver after construction. The saver
// needs the engine's Dump, so the two cannot be built in one shot.
func (e *Engine) AttachSaver(s *snapshot.Saver) { e.saver = s }

// WithArchive attaches the durable transcript store.
func WithArchive(a *archive.Store) Option { return func(e *Engine) { e.arch = a } }

// WithRand injects the random source used for deck shuffles.
func WithRand(r *rand.Rand) Option { return func(e *Engine) { e.rng = r } }

// New creates an engine over the given repository and generator. A nil
// logger falls back to slog.Default.
func New(repo session.Repository, gen llm.Generator, log *slog.Logger, opts ...Option) *Engine {
	if log == nil {
		log = slog.Default()
	}
	e := &Engine{
		repo:     repo,
		gen:      gen,
		det:      protocol.New(log),
		log:      log,
		rng:      rand.New(rand.NewSource(time.Now().UnixNano())),
		inflight: make(map[string]bool),
	}
	for _, o := range opts {
		o(e)
	}
	return e
}

// StartRequest describes a new debate.
type StartRequest struct {
	Theme string       `json:"theme"`
	Mode  council.Mode `json:"mode,omitempty"`

	// OutputMode steers deliverables toward implementation or
	// documentation; empty defaults to implementation.
	OutputMode string `json:"output_mode,omitempty"`

	// StartPhase skips ahead to a later phase of the program. Out of
	// range or zero starts at phase 1.
	StartPhase int `json:"start_phase,omitempty"`
}

// Start creates a new session for the theme and builds the opening
// deck. The coordinator leads so the first step gets declared before
// any member speaks.
func (e *Engine) Start(req StartRequest) (*session.Session, error) {
	theme := strings.TrimSpace(req.Theme)
	if theme == "" {
		return nil, errors.New("theme is required")
	}
	mode := req.Mode
	if mode == "" {
		mode = council.ModeFree
	}
	if !mode.Valid() {
		return nil, fmt.Errorf("unknown mode %q", mode)
	}
	switch req.OutputMode {
	case "", session.OutputImplementation, session.OutputDocumentation:
	default:
		return nil, fmt.Errorf("unknown output mode %q", req.OutputMode)
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	s := session.New(theme, mode)
	if req.OutputMode != "" {
		s.OutputMode = req.OutputMode
	}
	if req.StartPhase >= 1 && req.StartPhase <= s.TotalPhases {
		s.Phase = req.StartPhase
	}
	s.SetDeck(deck.Build(s.PhaseDef(), true, e.rng))
	e.repo.Put(s)

	e.log.Info("session started", "session_id", s.ID, "mode", mode, "phase", s.Phase, "deck_len", len(s.Deck))
	e.publish(events.KindSessionStarted, map[string]any{
		"session_id": s.ID, "theme": theme, "mode": string(mode), "deck_len": len(s.Deck),
	})
	e.scheduleSave()
	return s.Clone(), nil
}

// Get returns a read-only copy of the session.
func (e *Engine) Get(id string) (*session.Session, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	s, err := e.repo.Get(id)
	if err != nil {
		return nil, err
	}
	return s.Clone(), nil
}

// List returns read-only copies of every session, oldest first.
func (e *Engine) List() []*session.Session {
	e.mu.Lock()
	defer e.mu.Unlock()
	all := e.repo.List()
	out := make([]*session.Session, len(all))
	for i, s := range all {
		out[i] = s.Clone()
	}
	return out
}

// TurnRequest drives one turn of a session.
type TurnRequest struct {
	SessionID string `json:"session_id"`

	// Answer is the operator's reply, required when the session is
	// paused on a question.
	Answer string `json:"answer,omitempty"`

	// PhaseInstruction is a one-shot operator directive threaded into
	// this turn's prompt only; it is not recorded on the session.
	PhaseInstruction string `json:"phase_instruction,omitempty"`
}

// TurnResult reports what one executed turn did.
type TurnResult struct {
	SessionID   string         `json:"session_id"`
	Role        council.Role   `json:"role"`
	Text        string         `json:"text"`
	Phase       int            `json:"phase"`
	CurrentTurn int            `json:"current_turn"`
	Status      session.Status `json:"status"`
	DeckLen     int            `json:"deck_len"`

	DeckRefilled       bool               `json:"deck_refilled,omitempty"`
	StepStarted        *session.StepState `json:"step_started,omitempty"`
	StepCompleted      bool               `json:"step_completed,omitempty"`
	ExtensionRequested int                `json:"extension_requested,omitempty"`
	PhaseCompleted     bool               `json:"phase_completed,omitempty"`
	PlanUpdate         string             `json:"plan_update,omitempty"`
	MemoUpdate         string             `json:"memo_update,omitempty"`
	UserQuestion       string             `json:"user_question,omitempty"`
}

// ExecuteTurn runs one turn of the debate. The speaker is peeked, the
// prompt built, and only after the provider answers is the turn
// committed: deck popped, counters advanced, signals applied. A failed
// generation leaves the session exactly as it was.
func (e *Engine) ExecuteTurn(ctx context.Context, req TurnRequest) (*TurnResult, error) {
	id := req.SessionID

	e.mu.Lock()
	s, err := e.repo.Get(id)
	if err != nil {
		e.mu.Unlock()
		return nil, err
	}
	if e.inflight[id] {
		e.mu.Unlock()
		return nil, ErrBusy
	}
	if s.Status == session.StatusCompleted {
		e.mu.Unlock()
		return nil, ErrComplete
	}
	if s.PhaseComplete {
		e.mu.Unlock()
		return nil, ErrPhaseComplete
	}

	if s.Status == session.StatusAwaitingInput {
		if strings.TrimSpace(req.Answer) == "" {
			e.mu.Unlock()
			return nil, ErrAwaitingInput
		}
		s.AppendHistory(council.Operator, req.Answer)
		if err := s.AnswerOperator(); err != nil {
			e.mu.Unlock()
			return nil, err
		}
	}

	result := &TurnResult{SessionID: s.ID}

	// An empty deck never stalls the debate: one coordinator turn is
	// dealt so it can declare the next step and rebuild the queue.
	if len(s.Deck) == 0 {
		s.SetDeck([]council.Role{council.Coordinator})
		result.DeckRefilled = true
	}

	role, _ := s.PeekSpeaker()
	phase := s.PhaseDef()
	genReq := buildPrompt(s, phase, role, req.PhaseInstruction)

	e.inflight[id] = true
	e.publish(events.KindTurnStart, map[string]any{
		"session_id": s.ID, "role": string(role), "phase": s.Phase,
	})
	e.publish(events.KindLLMCall, map[string]any{
		"session_id": s.ID, "role": string(role), "prompt_bytes": len(genReq.Prompt),
	})
	e.mu.Unlock()

	text, genErr := e.gen.Generate(ctx, genReq)

	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.inflight, id)

	if genErr != nil {
		e.log.Error("turn generation failed", "session_id", s.ID, "role", role, "error", genErr)
		return nil, fmt.Errorf("%w: %v", ErrUpstream, genErr)
	}

	// Commit point: only now does the turn consume deck and budget.
	s.PopSpeaker()
	s.AppendHistory(role, text)

	result.Role = role
	result.Text = text
	e.applySignals(s, role, text, result)

	result.Phase = s.Phase
	result.CurrentTurn = s.CurrentTurn
	result.Status = s.Status
	result.DeckLen = len(s.Deck)

	e.archiveTurn(s, role, text)
	e.publish(events.KindTurnComplete, map[string]any{
		"session_id": s.ID, "role": string(role), "phase": s.Phase,
		"deck_len": len(s.Deck), "response_bytes": len(text),
	})
	e.scheduleSave()
	return result, nil
}

// applySignals runs the protocol markers against the state machine.
// Control markers are only honored from the coordinator; members can
// only raise operator questions.
func (e *Engine) applySignals(s *session.Session, role council.Role, text string, result *TurnResult) {
	for _, sig := range e.det.Detect(text, s.Phase) {
		switch sig := sig.(type) {
		case protocol.StepStart:
			if !role.IsCoordinator() {
				continue
			}
			id, name := e.resolveStep(s, sig)
			s.BeginStep(id, name, sig.EstimatedTurns)
			// A fresh step gets a fresh member queue. The coordinator is
			// already mid-turn, so it does not lead this deck.
			s.SetDeck(deck.Build(s.PhaseDef(), false, e.rng))
			step := *s.CurrentStep
			result.StepStarted = &step
			e.log.Info("step started", "session_id", s.ID, "step", id, "estimated_turns", sig.EstimatedTurns)
			e.publish(events.KindStepStart, map[string]any{
				"session_id": s.ID, "step_id": id, "step_name": name,
				"estimated_turns": sig.EstimatedTurns,
			})

		case protocol.StepCompleted:
			if !role.IsCoordinator() {
				continue
			}
			var stepID string
			if s.CurrentStep != nil {
				stepID = s.CurrentStep.ID
			}
			s.CompleteStep()
			// Drain the queue so the next turn refills with a lone
			// coordinator to declare what comes next.
			s.SetDeck(nil)
			result.StepCompleted = true
			e.log.Info("step completed", "session_id", s.ID, "step", stepID)
			e.publish(events.KindStepCompleted, map[string]any{
				"session_id": s.ID, "step_id": stepID,
			})

		case protocol.StepExtensionNeeded:
			if !role.IsCoordinator() {
				continue
			}
			if err := s.ProposeExtension(sig.AdditionalTurns); err != nil {
				e.log.Warn("extension request refused", "session_id", s.ID, "error", err)
				continue
			}
			result.ExtensionRequested = sig.AdditionalTurns
			e.publish(events.KindExtensionRequested, map[string]any{
				"session_id": s.ID, "step_id": s.CurrentStep.ID,
				"additional_turns": sig.AdditionalTurns,
			})

		case protocol.PhaseCompleted:
			if !role.IsCoordinator() {
				continue
			}
			s.MarkPhaseComplete()
			result.PhaseCompleted = true
			e.log.Info("phase completed", "session_id", s.ID, "phase", s.Phase)
			e.publish(events.KindPhaseCompleted, map[string]any{
				"session_id": s.ID, "phase": s.Phase,
			})

		case protocol.PlanUpdate:
			if !role.IsCoordinator() {
				continue
			}
			s.UpdatePlan(sig.Text)
			result.PlanUpdate = sig.Text

		case protocol.MemoUpdate:
			if !role.IsCoordinator() {
				continue
			}
			s.AppendMemo(sig.Text)
			result.MemoUpdate = sig.Text

		case protocol.UserQuestion:
			s.AskOperator(sig.Text)
			result.UserQuestion = sig.Text
			e.publish(events.KindUserQuestion, map[string]any{
				"session_id": s.ID, "role": string(role),
			})
		}
	}
}

// resolveStep fills in a step declaration's missing id or name. A
// marker with no parsable id restates the step already in progress;
// with no step in progress it opens the first program step, or an ad
// hoc F-1 in free mode.
func (e *Engine) resolveStep(s *session.Session, sig protocol.StepStart) (string, string) {
	phase := s.PhaseDef()

	if sig.ID != "" {
		if def, ok := phase.Step(sig.ID); ok {
			name := sig.Name
			if name == "" {
				name = def.Name
			}
			return sig.ID, name
		}
		// Ad hoc step outside the program; take it as declared.
		name := sig.Name
		if name == "" {
			name = "Open Discussion"
		}
		return sig.ID, name
	}

	if s.CurrentStep != nil {
		name := sig.Name
		if name == "" {
			name = s.CurrentStep.Name
		}
		return s.CurrentStep.ID, name
	}

	if len(phase.Steps) == 0 {
		name := sig.Name
		if name == "" {
			name = "Open Discussion"
		}
		return "F-1", name
	}

	first := phase.Steps[0]
	name := sig.Name
	if name == "" {
		name = first.Name
	}
	return first.ID, name
}

// AdvancePhase moves the session to its next phase with a fresh
// coordinator-led deck, or completes it after the final phase.
func (e *Engine) AdvancePhase(id string) (*session.Session, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	s, err := e.repo.Get(id)
	if err != nil {
		return nil, err
	}
	if e.inflight[id] {
		return nil, ErrBusy
	}
	if err := s.AdvancePhase(); err != nil {
		return nil, err
	}
	if s.Status != session.StatusCompleted {
		s.SetDeck(deck.Build(s.PhaseDef(), true, e.rng))
	}

	e.log.Info("phase advanced", "session_id", s.ID, "phase", s.Phase, "status", s.Status)
	e.publish(events.KindPhaseAdvanced, map[string]any{
		"session_id": s.ID, "phase": s.Phase,
		"completed": s.Status == session.StatusCompleted,
	})
	e.scheduleSave()
	return s.Clone(), nil
}

// JudgeStepExtension applies the operator's verdict on a pending step
// extension.
func (e *Engine) JudgeStepExtension(id string, approved bool) (*session.Session, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	s, err := e.repo.Get(id)
	if err != nil {
		return nil, err
	}

	if approved {
		err = s.ApproveExtension()
	} else {
		err = s.DeclineExtension()
	}
	if err != nil {
		return nil, err
	}

	e.log.Info("extension judged", "session_id", s.ID, "approved", approved)
	e.scheduleSave()
	return s.Clone(), nil
}

// ExtendDiscussion appends one shuffled full round of participants to
// the current deck, lengthening the phase without restarting it.
func (e *Engine) ExtendDiscussion(id string) (*session.Session, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	s, err := e.repo.Get(id)
	if err != nil {
		return nil, err
	}
	if s.Status == session.StatusCompleted {
		return nil, ErrComplete
	}

	round := deck.ExtensionRound(s.PhaseDef(), e.rng)
	s.ExtendDiscussion(round)

	e.log.Info("discussion extended", "session_id", s.ID, "added_turns", len(round))
	e.publish(events.KindDiscussionExtended, map[string]any{
		"session_id": s.ID, "phase": s.Phase, "added_turns": len(round),
	})
	e.scheduleSave()
	return s.Clone(), nil
}

// RestoreRequest rebuilds a session from an external transcript, e.g.
// one the client kept after the server lost its snapshot.
type RestoreRequest struct {
	Theme   string         `json:"theme"`
	Mode    council.Mode   `json:"mode"`
	Phase   int            `json:"phase"`
	Plan    string         `json:"plan"`
	Memo    string         `json:"memo"`
	History []session.Turn `json:"history"`

	// ArchiveSessionID, when set and History is empty, replays the
	// transcript from the durable archive instead.
	ArchiveSessionID string `json:"archive_session_id,omitempty"`
}

// Restore creates a new active session seeded from the supplied state.
// The deck is rebuilt coordinator-first so the debate re-anchors itself
// before members continue.
func (e *Engine) Restore(req RestoreRequest) (*session.Session, error) {
	if strings.TrimSpace(req.Theme) == "" {
		return nil, errors.New("theme is required")
	}
	mode := req.Mode
	if mode == "" {
		mode = council.ModeFree
	}
	if !mode.Valid() {
		return nil, fmt.Errorf("unknown mode %q", mode)
	}

	history := req.History
	if len(history) == 0 && req.ArchiveSessionID != "" {
		if e.arch == nil {
			return nil, errors.New("no archive configured")
		}
		replayed, err := e.arch.Replay(req.ArchiveSessionID)
		if err != nil {
			return nil, fmt.Errorf("replaying archive: %w", err)
		}
		if len(replayed) == 0 {
			return nil, fmt.Errorf("no archived transcript for %s", req.ArchiveSessionID)
		}
		history = replayed
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	s := session.New(req.Theme, mode)
	if req.Phase >= 1 && req.Phase <= s.TotalPhases {
		s.Phase = req.Phase
	}
	s.History = history
	s.Plan = req.Plan
	s.Memo = req.Memo
	s.SetDeck(deck.Build(s.PhaseDef(), true, e.rng))
	e.repo.Put(s)

	e.log.Info("session restored", "session_id", s.ID, "phase", s.Phase, "turns", len(history))
	e.publish(events.KindSessionStarted, map[string]any{
		"session_id": s.ID, "theme": s.Theme, "mode": string(mode),
		"deck_len": len(s.Deck), "restored": true,
	})
	e.scheduleSave()
	return s.Clone(), nil
}

// Seed loads previously snapshotted sessions into the repository.
// Called once at startup before the server accepts requests.
func (e *Engine) Seed(sessions []*session.Session) {
	e.mu.Lock()
	defer e.mu.Unlock()
	for _, s := range sessions {
		e.repo.Put(s)
	}
	if len(sessions) > 0 {
		e.log.Info("sessions loaded from snapshot", "count", len(sessions))
	}
}

// Dump serializes every session for the snapshot saver. Runs under the
// engine lock so the written state is internally consistent.
func (e *Engine) Dump() ([]byte, int, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	all := e.repo.List()
	data, err := snapshot.Encode(all)
	return data, len(all), err
}

func (e *Engine) archiveTurn(s *session.Session, role council.Role, text string) {
	if e.arch == nil {
		return
	}
	turn := s.History[len(s.History)-1]
	if err := e.arch.Append(s.ID, s.Phase, turn); err != nil {
		// Archive loss is an audit gap, not a debate failure.
		e.log.Error("archiving turn failed", "session_id", s.ID, "role", role, "error", err)
	}
}

func (e *Engine) scheduleSave() {
	if e.saver != nil {
		e.saver.Schedule()
	}
}

func (e *Engine) publish(kind string, data map[string]any) {
	e.bus.Publish(events.Event{
		Timestamp: time.Now(),
		Source:    events.SourceEngine,
		Kind:      kind,
		Data:      data,
	})
}
