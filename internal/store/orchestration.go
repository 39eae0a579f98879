package store

import (
	"database/sql"
	"errors"
	"fmt"
)

// GetOrchestrationState returns the per-project-root state row, creating
// (in memory only, not persisted) a zero-valued one if the project root
// has never been seen.
func (s *Store) GetOrchestrationState(projectRoot string) (*OrchestrationState, error) {
	var st OrchestrationState
	err := s.db.Get(&st, `SELECT * FROM orchestration_state WHERE project_root = ?`, projectRoot)
	if errors.Is(err, sql.ErrNoRows) {
		return &OrchestrationState{ProjectRoot: projectRoot}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("store: get orchestration state for %s: %w", projectRoot, err)
	}
	return &st, nil
}

// UpsertOrchestrationState writes the full state row for a project root.
func (s *Store) UpsertOrchestrationState(st *OrchestrationState) error {
	_, err := s.db.NamedExec(`
		INSERT INTO orchestration_state
			(project_root, highest_planned_phase, highest_executed_phase, highest_executing_phase, highest_executing_plan, pending_verify_phase, clear_seq)
		VALUES
			(:project_root, :highest_planned_phase, :highest_executed_phase, :highest_executing_phase, :highest_executing_plan, :pending_verify_phase, :clear_seq)
		ON CONFLICT(project_root) DO UPDATE SET
			highest_planned_phase = excluded.highest_planned_phase,
			highest_executed_phase = excluded.highest_executed_phase,
			highest_executing_phase = excluded.highest_executing_phase,
			highest_executing_plan = excluded.highest_executing_plan,
			pending_verify_phase = excluded.pending_verify_phase,
			clear_seq = excluded.clear_seq
	`, st)
	if err != nil {
		return fmt.Errorf("store: upsert orchestration state for %s: %w", st.ProjectRoot, err)
	}
	return nil
}

// ClearAllPlans deletes every plan row for a project root, used by
// SetExecutionState's forceReset path.
func (s *Store) ClearAllPlans(projectRoot string) error {
	_, err := s.db.Exec(`DELETE FROM plans WHERE project_root = ?`, projectRoot)
	if err != nil {
		return fmt.Errorf("store: clear plans for %s: %w", projectRoot, err)
	}
	return nil
}

// UpsertPlan inserts or updates a single (projectRoot, phase, plan) row.
func (s *Store) UpsertPlan(p *Plan) error {
	_, err := s.db.NamedExec(`
		INSERT INTO plans (project_root, phase, plan, path, status)
		VALUES (:project_root, :phase, :plan, :path, :status)
		ON CONFLICT(project_root, phase, plan) DO UPDATE SET
			path = excluded.path,
			status = excluded.status
	`, p)
	if err != nil {
		return fmt.Errorf("store: upsert plan %s %d-%d: %w", p.ProjectRoot, p.Phase, p.Plan, err)
	}
	return nil
}

// ListPlans returns every plan for a project root, sorted by (phase, plan).
func (s *Store) ListPlans(projectRoot string) ([]Plan, error) {
	var plans []Plan
	err := s.db.Select(&plans,
		`SELECT * FROM plans WHERE project_root = ? ORDER BY phase ASC, plan ASC`, projectRoot)
	if err != nil {
		return nil, fmt.Errorf("store: list plans for %s: %w", projectRoot, err)
	}
	return plans, nil
}

// GetPlan returns a single plan row, or nil if absent.
func (s *Store) GetPlan(projectRoot string, phase, plan int) (*Plan, error) {
	var p Plan
	err := s.db.Get(&p,
		`SELECT * FROM plans WHERE project_root = ? AND phase = ? AND plan = ?`,
		projectRoot, phase, plan)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("store: get plan %s %d-%d: %w", projectRoot, phase, plan, err)
	}
	return &p, nil
}

// SetPlanStatus updates a single plan's status.
func (s *Store) SetPlanStatus(projectRoot string, phase, plan int, status PlanStatus) error {
	_, err := s.db.Exec(
		`UPDATE plans SET status = ? WHERE project_root = ? AND phase = ? AND plan = ?`,
		status, projectRoot, phase, plan)
	if err != nil {
		return fmt.Errorf("store: set plan status %s %d-%d: %w", projectRoot, phase, plan, err)
	}
	return nil
}

// MarkPhasePlansVerified marks every plan of the given phase `verified`.
func (s *Store) MarkPhasePlansVerified(projectRoot string, phase int) error {
	_, err := s.db.Exec(
		`UPDATE plans SET status = ? WHERE project_root = ? AND phase = ?`,
		PlanVerified, projectRoot, phase)
	if err != nil {
		return fmt.Errorf("store: mark phase %d verified for %s: %w", phase, projectRoot, err)
	}
	return nil
}
