package operationsurface

import (
	"net/http"
	"time"

	"github.com/agentharness/harness/internal/protocoldir"
	"github.com/agentharness/harness/internal/store"
)

type syncProjectStateRequest struct {
	ProjectRoot string `json:"projectRoot"`
}

func (srv *Server) handleSyncProjectState(w http.ResponseWriter, r *http.Request) {
	var req syncProjectStateRequest
	if err := readJSON(r, &req); err != nil || req.ProjectRoot == "" {
		writeBadRequest(w, "projectRoot is required")
		return
	}

	result, err := srv.deps.Scanner.Sync(req.ProjectRoot)
	if err != nil {
		writeAppError(w, err)
		return
	}

	plans := make([]map[string]any, 0, len(result.Plans))
	graph := protocoldir.DependencyGraph{Timestamp: time.Now().UTC()}
	for _, p := range result.Plans {
		plans = append(plans, map[string]any{
			"phase":  p.Phase,
			"plan":   p.Plan,
			"path":   p.Path,
			"status": p.Status,
		})

		switch p.Status {
		case store.PlanExecuted, store.PlanVerified:
			graph.Completed = append(graph.Completed, p.Path)
		case store.PlanExecuting:
			graph.Running = append(graph.Running, p.Path)
		case store.PlanPlanned:
			graph.Available = append(graph.Available, p.Path)
		default:
			graph.Blocked = append(graph.Blocked, p.Path)
		}
		graph.Plans = append(graph.Plans, p.Path)
	}
	_ = protocoldir.New(req.ProjectRoot).WriteDependencyGraph(graph)

	resp := map[string]any{
		"plans":                plans,
		"highestPlannedPhase":  result.HighestPlannedPhase,
		"highestExecutedPhase": result.HighestExecutedPhase,
		"highestVerifiedPhase": result.HighestVerifiedPhase,
		"maxPlanPhase":         result.MaxPlanPhase,
	}
	if result.PendingVerifyPhase != nil {
		resp["pendingVerifyPhase"] = *result.PendingVerifyPhase
	}
	if result.MaxExecutePhase != nil {
		resp["maxExecutePhase"] = *result.MaxExecutePhase
	}
	writeOK(w, resp)
}

type setExecutionStateRequest struct {
	ProjectRoot           string `json:"projectRoot"`
	HighestExecutedPhase  int    `json:"highestExecutedPhase"`
	HighestExecutingPhase *int   `json:"highestExecutingPhase"`
	HighestExecutingPlan  *int   `json:"highestExecutingPlan"`
	ForceReset            bool   `json:"forceReset"`
}

func (srv *Server) handleSetExecutionState(w http.ResponseWriter, r *http.Request) {
	var req setExecutionStateRequest
	if err := readJSON(r, &req); err != nil || req.ProjectRoot == "" {
		writeBadRequest(w, "projectRoot is required")
		return
	}

	if err := srv.deps.Gate.SetExecutionState(req.ProjectRoot, req.HighestExecutedPhase, req.HighestExecutingPhase, req.HighestExecutingPlan, req.ForceReset); err != nil {
		writeAppError(w, err)
		return
	}
	writeOK(w, nil)
}

type markPhaseVerifiedRequest struct {
	ProjectRoot string `json:"projectRoot"`
	Phase       int    `json:"phase"`
}

func (srv *Server) handleMarkPhaseVerified(w http.ResponseWriter, r *http.Request) {
	var req markPhaseVerifiedRequest
	if err := readJSON(r, &req); err != nil || req.ProjectRoot == "" {
		writeBadRequest(w, "projectRoot is required")
		return
	}

	if err := srv.deps.Gate.MarkPhaseVerified(req.ProjectRoot, req.Phase); err != nil {
		writeAppError(w, err)
		return
	}
	writeOK(w, nil)
}
