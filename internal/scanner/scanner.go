// Package scanner implements the Project Scanner (§4.G): it walks a
// project root's on-disk phase/plan layout and reconciles the Orchestration
// Gate's persisted state with what is actually on disk.
package scanner

import (
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/agentharness/harness/internal/store"
)

var phaseDirRe = regexp.MustCompile(`^(\d+)-(.+)$`)
var planFileRe = regexp.MustCompile(`^(\d+)-(\d+)-PLAN\.md$`)

const verifiedStatusPhrase = "## Status: VERIFIED"

// Result is the outcome of a Sync.
type Result struct {
	Plans                 []store.Plan
	HighestPlannedPhase   int
	HighestExecutedPhase  int
	HighestVerifiedPhase  int
	PendingVerifyPhase    *int
	MaxPlanPhase          int
	MaxExecutePhase       *int // nil means unbounded
}

// Scanner walks project roots and upserts discovered plans into the
// store.
type Scanner struct {
	store *store.Store
}

// New creates a Scanner backed by st.
func New(st *store.Store) *Scanner {
	return &Scanner{store: st}
}

// Sync walks projectRoot, upserts every discovered plan, and returns the
// derived state plus the limits the coordinator is allowed to plan/execute
// within.
func (s *Scanner) Sync(projectRoot string) (*Result, error) {
	discovered, err := walk(projectRoot)
	if err != nil {
		return nil, err
	}
	sort.Slice(discovered, func(i, j int) bool {
		if discovered[i].Phase != discovered[j].Phase {
			return discovered[i].Phase < discovered[j].Phase
		}
		return discovered[i].Plan < discovered[j].Plan
	})

	for _, p := range discovered {
		plan := p
		plan.ProjectRoot = projectRoot
		if err := s.store.UpsertPlan(&plan); err != nil {
			return nil, err
		}
	}

	result := &Result{Plans: discovered}
	byPhase := make(map[int][]store.Plan)
	for _, p := range discovered {
		byPhase[p.Phase] = append(byPhase[p.Phase], p)
		if p.Phase > result.HighestPlannedPhase {
			result.HighestPlannedPhase = p.Phase
		}
		if (p.Status == store.PlanExecuted || p.Status == store.PlanVerified) && p.Phase > result.HighestExecutedPhase {
			result.HighestExecutedPhase = p.Phase
		}
		if p.Status == store.PlanVerified && p.Phase > result.HighestVerifiedPhase {
			result.HighestVerifiedPhase = p.Phase
		}
	}

	phases := make([]int, 0, len(byPhase))
	for phase := range byPhase {
		phases = append(phases, phase)
	}
	sort.Ints(phases)

	var candidatePendingVerify *int
	for _, phase := range phases {
		plans := byPhase[phase]
		allExecuted := true
		anyVerified := false
		for _, p := range plans {
			if p.Status != store.PlanExecuted && p.Status != store.PlanVerified {
				allExecuted = false
			}
			if p.Status == store.PlanVerified {
				anyVerified = true
			}
		}
		if allExecuted && !anyVerified {
			ph := phase
			candidatePendingVerify = &ph
			break
		}
	}

	state, err := s.store.GetOrchestrationState(projectRoot)
	if err != nil {
		return nil, err
	}

	// Monotone respect for an explicit MarkPhaseVerified clear: only adopt
	// the scanner's candidate if it differs from the phase most recently
	// cleared, or if the state has no cleared-phase memory at all. ClearSeq
	// being nonzero with PendingVerifyPhase nil means a clear has happened;
	// we trust it unless this scan finds a genuine regression (a plan for
	// that phase moved back out of `executed`), which can't happen since a
	// regression would simply not match "allExecuted" above and produce no
	// candidate for that phase at all.
	if state.PendingVerifyPhase == nil && state.ClearSeq > 0 {
		result.PendingVerifyPhase = nil
	} else {
		result.PendingVerifyPhase = candidatePendingVerify
	}

	state.HighestPlannedPhase = result.HighestPlannedPhase
	state.HighestExecutedPhase = result.HighestExecutedPhase
	state.PendingVerifyPhase = result.PendingVerifyPhase
	if err := s.store.UpsertOrchestrationState(state); err != nil {
		return nil, err
	}

	result.MaxPlanPhase = result.HighestExecutedPhase + 2
	if result.HighestExecutedPhase == 0 {
		result.MaxPlanPhase = 2
	}
	if result.PendingVerifyPhase != nil {
		max := *result.PendingVerifyPhase + 1
		result.MaxExecutePhase = &max
	}

	return result, nil
}

// walk discovers every (phase, plan) unit under projectRoot.
func walk(projectRoot string) ([]store.Plan, error) {
	entries, err := os.ReadDir(projectRoot)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var plans []store.Plan
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		m := phaseDirRe.FindStringSubmatch(entry.Name())
		if m == nil {
			continue
		}
		phase, err := strconv.Atoi(m[1])
		if err != nil {
			continue
		}

		phaseDir := filepath.Join(projectRoot, entry.Name())
		phaseVerified := fileExists(filepath.Join(phaseDir, "VERIFICATION.md"))

		phaseEntries, err := os.ReadDir(phaseDir)
		if err != nil {
			continue
		}
		for _, pe := range phaseEntries {
			pm := planFileRe.FindStringSubmatch(pe.Name())
			if pm == nil {
				continue
			}
			plan, err := strconv.Atoi(pm[2])
			if err != nil {
				continue
			}

			summaryPath := filepath.Join(phaseDir, strings.TrimSuffix(pe.Name(), "-PLAN.md")+"-SUMMARY.md")
			status := store.PlanPlanned
			if data, err := os.ReadFile(summaryPath); err == nil {
				status = store.PlanExecuted
				if phaseVerified || strings.Contains(string(data), verifiedStatusPhrase) {
					status = store.PlanVerified
				}
			}

			plans = append(plans, store.Plan{
				Phase:  phase,
				Plan:   plan,
				Path:   filepath.Join(phaseDir, pe.Name()),
				Status: status,
			})
		}
	}
	return plans, nil
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
