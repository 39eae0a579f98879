package operationsurface

import (
	"encoding/json"
	"net/http"

	"go.uber.org/zap"

	"github.com/agentharness/harness/internal/harnesserr"
	"github.com/agentharness/harness/internal/logging"
)

type errorResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
	Code    string `json:"code,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		logging.Named("operationsurface").Warn("failed to encode json response", zap.Int("status", status), zap.Error(err))
	}
}

func writeOK(w http.ResponseWriter, data map[string]any) {
	if data == nil {
		data = map[string]any{}
	}
	data["success"] = true
	writeJSON(w, http.StatusOK, data)
}

// writeAppError maps an internal error to an HTTP status and a typed
// error envelope, unwrapping a *harnesserr.Error for its Code when
// present.
func writeAppError(w http.ResponseWriter, err error) {
	herr, ok := harnesserr.As(err)
	if !ok {
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: err.Error()})
		return
	}
	writeJSON(w, statusForCode(herr.Code), errorResponse{Error: herr.Message, Code: string(herr.Code)})
}

func statusForCode(code harnesserr.Code) int {
	switch code {
	case harnesserr.CodeSessionNotFound, harnesserr.CodeMessageNotFound:
		return http.StatusNotFound
	case harnesserr.CodeInvalidJSON, harnesserr.CodeInvalidResponseType, harnesserr.CodeInvalidArgument, harnesserr.CodeCheckpointMalformed:
		return http.StatusBadRequest
	case harnesserr.CodeSessionAlreadyEnded, harnesserr.CodeSessionNotActive, harnesserr.CodeMessageExpired:
		return http.StatusConflict
	case harnesserr.CodeSlotsExhausted, harnesserr.CodeSpawnInProgress, harnesserr.CodeExecutionLimit, harnesserr.CodeVerifyGate, harnesserr.CodePlanningLimit:
		return http.StatusTooManyRequests
	case harnesserr.CodeMessageTimeout:
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

func writeBadRequest(w http.ResponseWriter, message string) {
	writeJSON(w, http.StatusBadRequest, errorResponse{Error: message})
}

func readJSON(r *http.Request, v any) error {
	defer r.Body.Close()
	dec := json.NewDecoder(r.Body)
	return dec.Decode(v)
}
