package scanner

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/agentharness/harness/internal/store"
)

func newTestScanner(t *testing.T) (*Scanner, *store.Store) {
	t.Helper()
	st, err := store.Open(":memory:")
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { st.Close() })
	return New(st), st
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir for %s: %v", path, err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}

func TestSyncDerivesPlanStatusesAndPendingVerify(t *testing.T) {
	root := t.TempDir()

	writeFile(t, filepath.Join(root, "01-setup", "01-01-PLAN.md"), "# plan")
	writeFile(t, filepath.Join(root, "01-setup", "01-01-SUMMARY.md"), "done\n## Status: VERIFIED\n")

	writeFile(t, filepath.Join(root, "02-build", "02-01-PLAN.md"), "# plan")
	writeFile(t, filepath.Join(root, "02-build", "02-01-SUMMARY.md"), "done, not yet verified\n")

	writeFile(t, filepath.Join(root, "03-ship", "03-01-PLAN.md"), "# plan")

	sc, _ := newTestScanner(t)
	result, err := sc.Sync(root)
	if err != nil {
		t.Fatalf("Sync: %v", err)
	}

	if len(result.Plans) != 3 {
		t.Fatalf("expected 3 discovered plans, got %d", len(result.Plans))
	}
	if result.HighestPlannedPhase != 3 {
		t.Fatalf("expected highestPlannedPhase 3, got %d", result.HighestPlannedPhase)
	}
	if result.HighestExecutedPhase != 2 {
		t.Fatalf("expected highestExecutedPhase 2, got %d", result.HighestExecutedPhase)
	}
	if result.HighestVerifiedPhase != 1 {
		t.Fatalf("expected highestVerifiedPhase 1, got %d", result.HighestVerifiedPhase)
	}
	if result.PendingVerifyPhase == nil || *result.PendingVerifyPhase != 2 {
		t.Fatalf("expected pendingVerifyPhase 2, got %v", result.PendingVerifyPhase)
	}
	if result.MaxPlanPhase != 4 {
		t.Fatalf("expected maxPlanPhase 4, got %d", result.MaxPlanPhase)
	}
	if result.MaxExecutePhase == nil || *result.MaxExecutePhase != 3 {
		t.Fatalf("expected maxExecutePhase 3, got %v", result.MaxExecutePhase)
	}
}

func TestSyncRespectsExplicitClearOverStaleRescan(t *testing.T) {
	root := t.TempDir()

	writeFile(t, filepath.Join(root, "01-setup", "01-01-PLAN.md"), "# plan")
	writeFile(t, filepath.Join(root, "01-setup", "01-01-SUMMARY.md"), "done\n")

	sc, st := newTestScanner(t)

	if _, err := sc.Sync(root); err != nil {
		t.Fatalf("first sync: %v", err)
	}

	// Simulate MarkPhaseVerified having cleared phase 1 already.
	if err := st.MarkPhasePlansVerified(root, 1); err != nil {
		t.Fatalf("mark verified: %v", err)
	}
	state, err := st.GetOrchestrationState(root)
	if err != nil {
		t.Fatalf("get state: %v", err)
	}
	state.PendingVerifyPhase = nil
	state.ClearSeq = 1
	if err := st.UpsertOrchestrationState(state); err != nil {
		t.Fatalf("upsert state: %v", err)
	}

	result, err := sc.Sync(root)
	if err != nil {
		t.Fatalf("second sync: %v", err)
	}
	if result.PendingVerifyPhase != nil {
		t.Fatalf("expected explicit clear to stick, got %v", result.PendingVerifyPhase)
	}
}

func TestSyncOnMissingRootReturnsEmpty(t *testing.T) {
	sc, _ := newTestScanner(t)
	result, err := sc.Sync(filepath.Join(os.TempDir(), "does-not-exist-harness-test"))
	if err != nil {
		t.Fatalf("Sync on missing root: %v", err)
	}
	if len(result.Plans) != 0 {
		t.Fatalf("expected no plans, got %d", len(result.Plans))
	}
	if result.MaxPlanPhase != 2 {
		t.Fatalf("expected default maxPlanPhase 2, got %d", result.MaxPlanPhase)
	}
}
