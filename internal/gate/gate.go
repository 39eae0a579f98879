package gate

import (
	"sync"

	"go.uber.org/zap"

	"github.com/agentharness/harness/internal/harnesserr"
	"github.com/agentharness/harness/internal/logging"
	"github.com/agentharness/harness/internal/store"
)

// Decision is the outcome of an admission check. A rejected Decision
// carries the harnesserr.Code the operation surface should surface, plus
// structured Detail (offending slot/command, pending phase, max allowed
// identifier, ...).
type Decision struct {
	Admitted bool
	Code     harnesserr.Code
	Message  string
	Detail   map[string]any
}

func admit() *Decision { return &Decision{Admitted: true} }

func reject(code harnesserr.Code, message string, detail map[string]any) *Decision {
	return &Decision{Admitted: false, Code: code, Message: message, Detail: detail}
}

// Gate holds no state of its own beyond a serializing mutex; all
// persistent phase/plan bookkeeping lives in the Durable Store so it
// survives restarts.
type Gate struct {
	store *store.Store
	mu    sync.Mutex
}

// New creates a Gate backed by st.
func New(st *store.Store) *Gate {
	return &Gate{store: st}
}

// AdmitStartSession applies the three admission barriers of §4.F to a
// proposed StartSession call for projectRoot. Commands that do not match
// a recognized family (execute/plan/verify) are always admitted — the
// gate only constrains the phase/plan state machine, not arbitrary
// sessions.
func (g *Gate) AdmitStartSession(projectRoot, command string) (*Decision, error) {
	family, phase, plan, ok := Classify(command)
	if !ok {
		return admit(), nil
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	state, err := g.store.GetOrchestrationState(projectRoot)
	if err != nil {
		return nil, err
	}

	switch family {
	case FamilyExecute:
		return g.admitExecute(projectRoot, phase, plan, state)
	case FamilyPlan:
		return g.admitPlan(projectRoot, phase, state)
	case FamilyVerify:
		return admit(), nil
	default:
		return admit(), nil
	}
}

func (g *Gate) admitExecute(projectRoot string, phase, plan int, state *store.OrchestrationState) (*Decision, error) {
	running, err := g.store.ListSessions(store.FilterRunning)
	if err != nil {
		return nil, err
	}
	for _, sess := range running {
		if sess.WorkingDir != projectRoot {
			continue
		}
		if fam, _, _, ok := Classify(sess.CurrentCommand); ok && fam == FamilyExecute {
			return reject(harnesserr.CodeExecutionLimit, "an execute is already running for this project", map[string]any{
				"slot":    sess.Slot,
				"command": sess.CurrentCommand,
			}), nil
		}
	}

	if state.PendingVerifyPhase != nil {
		maxExecutePhase := *state.PendingVerifyPhase + 1
		if phase > maxExecutePhase {
			return reject(harnesserr.CodeVerifyGate, "phase exceeds the pending verify gate", map[string]any{
				"pendingVerifyPhase": *state.PendingVerifyPhase,
				"maxExecutePhase":    maxExecutePhase,
			}), nil
		}
	}

	if err := g.store.UpsertPlan(&store.Plan{
		ProjectRoot: projectRoot, Phase: phase, Plan: plan, Status: store.PlanExecuting,
	}); err != nil {
		return nil, err
	}

	// Advances only the in-flight marker; highestExecutedPhase is raised by
	// OnExecuteSessionTerminal once the execute session actually completes.
	state.HighestExecutingPhase = phase
	state.HighestExecutingPlan = plan
	if err := g.store.UpsertOrchestrationState(state); err != nil {
		return nil, err
	}

	return admit(), nil
}

func (g *Gate) admitPlan(projectRoot string, phase int, state *store.OrchestrationState) (*Decision, error) {
	plans, err := g.store.ListPlans(projectRoot)
	if err != nil {
		return nil, err
	}

	nextPlan := 1
	for _, p := range plans {
		if p.Phase == phase && p.Plan >= nextPlan {
			nextPlan = p.Plan + 1
		}
	}

	execPhase, execPlan := state.HighestExecutingPhase, state.HighestExecutingPlan
	maxIdentifierPhase, maxIdentifierPlan := execPhase, execPlan+2

	admitted := phase < execPhase ||
		(phase == execPhase && nextPlan <= execPlan+2) ||
		(phase == execPhase+1 && nextPlan <= 2)

	if !admitted {
		return reject(harnesserr.CodePlanningLimit, "planning is too far ahead of the executing plan", map[string]any{
			"maxAllowedPhase": maxIdentifierPhase,
			"maxAllowedPlan":  maxIdentifierPlan,
		}), nil
	}

	if err := g.store.UpsertPlan(&store.Plan{
		ProjectRoot: projectRoot, Phase: phase, Plan: nextPlan, Status: store.PlanPlanned,
	}); err != nil {
		return nil, err
	}
	if phase > state.HighestPlannedPhase {
		state.HighestPlannedPhase = phase
		if err := g.store.UpsertOrchestrationState(state); err != nil {
			return nil, err
		}
	}

	return admit(), nil
}

// SetExecutionState overwrites the coordinator-reported progress for a
// project root. With forceReset, every plan row is cleared first. A large
// downgrade (new value ≥2 below the previous) is logged but still
// applied — the coordinator is the source of truth.
func (g *Gate) SetExecutionState(projectRoot string, highestExecutedPhase int, highestExecutingPhase, highestExecutingPlan *int, forceReset bool) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	state, err := g.store.GetOrchestrationState(projectRoot)
	if err != nil {
		return err
	}

	if highestExecutedPhase <= state.HighestExecutedPhase-2 {
		logging.Named("gate").Warn("large downgrade to highestExecutedPhase applied",
			zap.Int("previous", state.HighestExecutedPhase), zap.Int("new", highestExecutedPhase))
	}

	if forceReset {
		if err := g.store.ClearAllPlans(projectRoot); err != nil {
			return err
		}
		state = &store.OrchestrationState{ProjectRoot: projectRoot}
	}

	state.HighestExecutedPhase = highestExecutedPhase
	if highestExecutingPhase != nil {
		state.HighestExecutingPhase = *highestExecutingPhase
	}
	if highestExecutingPlan != nil {
		state.HighestExecutingPlan = *highestExecutingPlan
	}

	return g.store.UpsertOrchestrationState(state)
}

// MarkPhaseVerified marks every plan of phase `verified` and, if it was
// the pending verify phase, clears the gate. ClearSeq is bumped so the
// Project Scanner can distinguish a fresh clear from a stale re-scan per
// the monotonicity rule resolved for the scanner.
func (g *Gate) MarkPhaseVerified(projectRoot string, phase int) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if err := g.store.MarkPhasePlansVerified(projectRoot, phase); err != nil {
		return err
	}

	state, err := g.store.GetOrchestrationState(projectRoot)
	if err != nil {
		return err
	}
	if state.PendingVerifyPhase != nil && *state.PendingVerifyPhase == phase {
		state.PendingVerifyPhase = nil
		state.ClearSeq++
		return g.store.UpsertOrchestrationState(state)
	}
	return nil
}

// OnExecuteSessionTerminal is called by the owning daemon when a session
// classified as an execute reaches a terminal state; it advances
// highestExecutedPhase monotonically.
func (g *Gate) OnExecuteSessionTerminal(projectRoot string, phase int, succeeded bool) error {
	if !succeeded {
		return nil
	}
	g.mu.Lock()
	defer g.mu.Unlock()

	state, err := g.store.GetOrchestrationState(projectRoot)
	if err != nil {
		return err
	}
	if phase > state.HighestExecutedPhase {
		state.HighestExecutedPhase = phase
		return g.store.UpsertOrchestrationState(state)
	}
	return nil
}
