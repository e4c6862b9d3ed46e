package session

import (
	"encoding/json"
	"testing"

	"github.com/councild/councild/internal/council"
)

func TestNewSession(t *testing.T) {
	s := New("launch plan", council.ModeDefine)
	if s.ID == "" {
		t.Fatal("missing id")
	}
	if s.Status != StatusActive {
		t.Errorf("Status = %q, want active", s.Status)
	}
	if s.Phase != 1 {
		t.Errorf("Phase = %d, want 1", s.Phase)
	}
	if s.TotalPhases != 5 {
		t.Errorf("TotalPhases = %d, want 5", s.TotalPhases)
	}

	if s.OutputMode != OutputImplementation {
		t.Errorf("OutputMode = %q, want implementation default", s.OutputMode)
	}
	if !s.AutoProgress {
		t.Error("AutoProgress should default on")
	}
	if s.CurrentTurn != 0 || s.ExtensionCount != 0 {
		t.Errorf("counters = %d/%d, want 0/0", s.CurrentTurn, s.ExtensionCount)
	}

	free := New("open talk", council.ModeFree)
	if free.TotalPhases != 1 {
		t.Errorf("free TotalPhases = %d, want 1", free.TotalPhases)
	}
}

func TestDeckPeekPop(t *testing.T) {
	s := New("t", council.ModeFree)
	if _, ok := s.PeekSpeaker(); ok {
		t.Fatal("peek on empty deck should fail")
	}

	s.SetDeck([]council.Role{council.Coordinator, council.InnovationCatalyst})
	r, ok := s.PeekSpeaker()
	if !ok || r != council.Coordinator {
		t.Fatalf("peek = %q, %v", r, ok)
	}
	// Peek must not consume.
	if len(s.Deck) != 2 {
		t.Fatalf("deck len = %d after peek, want 2", len(s.Deck))
	}

	r, ok = s.PopSpeaker()
	if !ok || r != council.Coordinator {
		t.Fatalf("pop = %q, %v", r, ok)
	}
	if len(s.Deck) != 1 {
		t.Fatalf("deck len = %d after pop, want 1", len(s.Deck))
	}
}

func TestAppendHistoryCounters(t *testing.T) {
	s := New("t", council.ModeDefine)
	s.BeginStep("1-1", "Overall Purpose", 4)

	s.AppendHistory(council.FuturePotentialSeeker, "a")
	s.AppendHistory(council.ConstraintChecker, "b")
	if s.CurrentStep.ActualTurns != 2 {
		t.Errorf("ActualTurns = %d, want 2", s.CurrentStep.ActualTurns)
	}
	if s.SinceCoordinator != 2 {
		t.Errorf("SinceCoordinator = %d, want 2", s.SinceCoordinator)
	}

	// Coordinator turns reset pacing but never consume step budget.
	s.AppendHistory(council.Coordinator, "pace check")
	if s.CurrentStep.ActualTurns != 2 {
		t.Errorf("ActualTurns = %d after coordinator turn, want 2", s.CurrentStep.ActualTurns)
	}
	if s.SinceCoordinator != 0 {
		t.Errorf("SinceCoordinator = %d after coordinator turn, want 0", s.SinceCoordinator)
	}
	if s.CurrentTurn != 3 {
		t.Errorf("CurrentTurn = %d, want 3", s.CurrentTurn)
	}

	// Operator answers are transcript entries only: no step budget, no
	// executed-turn count, pacing reset like a coordinator turn.
	s.AppendHistory(council.FuturePotentialSeeker, "c")
	s.AppendHistory(council.Operator, "the budget is fixed")
	if s.CurrentStep.ActualTurns != 3 {
		t.Errorf("ActualTurns = %d after operator entry, want 3", s.CurrentStep.ActualTurns)
	}
	if s.CurrentTurn != 4 {
		t.Errorf("CurrentTurn = %d after operator entry, want 4", s.CurrentTurn)
	}
	if s.SinceCoordinator != 0 {
		t.Errorf("SinceCoordinator = %d after operator entry, want 0", s.SinceCoordinator)
	}

	if len(s.History) != 5 {
		t.Errorf("history len = %d, want 5", len(s.History))
	}
}

func TestStepLifecycle(t *testing.T) {
	s := New("t", council.ModeDefine)
	s.BeginStep("1-1", "Overall Purpose", 2)

	s.AppendHistory(council.FuturePotentialSeeker, "a")
	if s.StepBudgetExhausted() {
		t.Fatal("budget exhausted after 1 of 2 turns")
	}
	s.AppendHistory(council.ConstraintChecker, "b")
	if !s.StepBudgetExhausted() {
		t.Fatal("budget should be exhausted after 2 of 2 turns")
	}

	s.CompleteStep()
	if s.CurrentStep != nil {
		t.Fatal("CompleteStep should clear step state")
	}
	if s.StepBudgetExhausted() {
		t.Fatal("no step, nothing to exhaust")
	}

	// A new step starts with a fresh counter and extension guard.
	s.BeginStep("1-2", "Session Goal", 3)
	if s.CurrentStep.ActualTurns != 0 || s.CurrentStep.Extended {
		t.Fatalf("fresh step state = %+v", s.CurrentStep)
	}
}

func TestExtensionOncePerStep(t *testing.T) {
	s := New("t", council.ModeDefine)

	if err := s.ProposeExtension(3); err == nil {
		t.Fatal("propose with no step should fail")
	}

	s.BeginStep("1-1", "Overall Purpose", 4)
	if err := s.ProposeExtension(3); err != nil {
		t.Fatalf("propose: %v", err)
	}
	if !s.AwaitingExtension {
		t.Fatal("AwaitingExtension not set")
	}

	if err := s.ApproveExtension(); err != nil {
		t.Fatalf("approve: %v", err)
	}
	if s.CurrentStep.EstimatedTurns != 7 {
		t.Errorf("EstimatedTurns = %d, want 7", s.CurrentStep.EstimatedTurns)
	}
	if !s.CurrentStep.Extended {
		t.Fatal("Extended not set")
	}

	// Second extension of the same step is refused.
	if err := s.ProposeExtension(3); err == nil {
		t.Fatal("second extension should be refused")
	}

	// A new step is eligible again.
	s.BeginStep("1-2", "Session Goal", 4)
	if err := s.ProposeExtension(2); err != nil {
		t.Fatalf("propose on fresh step: %v", err)
	}
	if err := s.DeclineExtension(); err != nil {
		t.Fatalf("decline: %v", err)
	}
	if s.CurrentStep.EstimatedTurns != 4 {
		t.Errorf("declined extension changed budget: %d", s.CurrentStep.EstimatedTurns)
	}
	// Declining does not burn the one allowed extension.
	if err := s.ProposeExtension(2); err != nil {
		t.Fatalf("re-propose after decline: %v", err)
	}
}

func TestApproveWithoutPending(t *testing.T) {
	s := New("t", council.ModeDefine)
	if err := s.ApproveExtension(); err == nil {
		t.Fatal("approve with nothing pending should fail")
	}
	if err := s.DeclineExtension(); err == nil {
		t.Fatal("decline with nothing pending should fail")
	}
}

func TestMarkPhaseCompleteAndAdvance(t *testing.T) {
	s := New("t", council.ModeDefine)
	s.SetDeck([]council.Role{council.InnovationCatalyst})
	s.BeginStep("1-5", "Constraints", 2)

	s.MarkPhaseComplete()
	if !s.PhaseComplete {
		t.Fatal("PhaseComplete not set")
	}
	if len(s.Deck) != 0 || s.CurrentStep != nil {
		t.Fatal("phase completion should clear deck and step")
	}

	if err := s.AdvancePhase(); err != nil {
		t.Fatalf("advance: %v", err)
	}
	if s.Phase != 2 || s.PhaseComplete {
		t.Errorf("after advance: phase %d, complete %v", s.Phase, s.PhaseComplete)
	}
}

func TestAdvancePastFinalPhaseCompletes(t *testing.T) {
	s := New("t", council.ModeFree)
	if err := s.AdvancePhase(); err != nil {
		t.Fatalf("advance: %v", err)
	}
	if s.Status != StatusCompleted {
		t.Errorf("Status = %q, want completed", s.Status)
	}
	if err := s.AdvancePhase(); err == nil {
		t.Fatal("advancing a completed session should fail")
	}
}

func TestExtendDiscussion(t *testing.T) {
	s := New("t", council.ModeDefine)
	s.SetDeck([]council.Role{council.InnovationCatalyst})
	s.MarkPhaseComplete()

	s.ExtendDiscussion([]council.Role{council.Coordinator, council.ConstraintChecker})
	if s.PhaseComplete {
		t.Error("extension should reopen the phase")
	}
	if len(s.Deck) != 2 {
		t.Errorf("deck len = %d, want 2", len(s.Deck))
	}
	if s.ExtensionCount != 1 {
		t.Errorf("ExtensionCount = %d, want 1", s.ExtensionCount)
	}

	s.ExtendDiscussion([]council.Role{council.Coordinator})
	if s.ExtensionCount != 2 {
		t.Errorf("ExtensionCount = %d, want 2", s.ExtensionCount)
	}
}

func TestOperatorQuestionPause(t *testing.T) {
	s := New("t", council.ModeFree)
	s.AskOperator("which market first?")
	if s.Status != StatusAwaitingInput {
		t.Errorf("Status = %q, want awaiting_input", s.Status)
	}
	if err := s.AnswerOperator(); err != nil {
		t.Fatalf("answer: %v", err)
	}
	if s.Status != StatusActive || s.PendingQuestion != "" {
		t.Errorf("after answer: status %q, question %q", s.Status, s.PendingQuestion)
	}
	if err := s.AnswerOperator(); err == nil {
		t.Fatal("answering with no question should fail")
	}
}

func TestPlanAndMemo(t *testing.T) {
	s := New("t", council.ModeFree)
	s.UpdatePlan("v1")
	s.UpdatePlan("v2")
	if s.Plan != "v2" {
		t.Errorf("Plan = %q, want full replacement", s.Plan)
	}

	s.AppendMemo("first")
	s.AppendMemo("second")
	if s.Memo != "first\n\nsecond" {
		t.Errorf("Memo = %q", s.Memo)
	}
}

func TestSessionJSONRoundTrip(t *testing.T) {
	s := New("launch plan", council.ModeDevelop)
	s.SetDeck([]council.Role{council.Coordinator, council.InnovationCatalyst})
	s.BeginStep("2-1", "Possibility List", 6)
	s.AppendHistory(council.InnovationCatalyst, "what about a marketplace?")
	s.UpdatePlan("# Hypothesis Sheet")
	if err := s.ProposeExtension(2); err != nil {
		t.Fatalf("propose: %v", err)
	}

	raw, err := json.Marshal(s)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var got Session
	if err := json.Unmarshal(raw, &got); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}

	if got.ID != s.ID || got.Phase != s.Phase || got.Plan != s.Plan {
		t.Errorf("round trip mismatch: %+v", got)
	}
	if got.CurrentTurn != s.CurrentTurn || got.OutputMode != s.OutputMode || got.AutoProgress != s.AutoProgress {
		t.Errorf("counters/mode lost: %+v", got)
	}
	if len(got.Deck) != 2 || got.Deck[0] != council.Coordinator {
		t.Errorf("deck = %v", got.Deck)
	}
	if got.CurrentStep == nil || got.CurrentStep.ID != "2-1" || got.CurrentStep.ActualTurns != 1 {
		t.Errorf("step = %+v", got.CurrentStep)
	}
	if !got.AwaitingExtension || got.ProposedExtensionTurns != 2 {
		t.Errorf("extension state = %v/%d", got.AwaitingExtension, got.ProposedExtensionTurns)
	}
}

func TestMemoryRepository(t *testing.T) {
	repo := NewMemoryRepository()
	if _, err := repo.Get("nope"); err != ErrNotFound {
		t.Fatalf("Get unknown = %v, want ErrNotFound", err)
	}

	a := New("a", council.ModeFree)
	b := New("b", council.ModeFree)
	repo.Put(a)
	repo.Put(b)

	got, err := repo.Get(a.ID)
	if err != nil || got != a {
		t.Fatalf("Get = %v, %v", got, err)
	}

	all := repo.List()
	if len(all) != 2 {
		t.Fatalf("List len = %d, want 2", len(all))
	}

	repo.Delete(a.ID)
	if _, err := repo.Get(a.ID); err != ErrNotFound {
		t.Fatalf("Get after delete = %v, want ErrNotFound", err)
	}
}
