package operationsurface

import (
	"net/http"

	"github.com/agentharness/harness/internal/buildinfo"
)

// handleVersion reports the daemon's build metadata so a coordinator can
// confirm it is talking to a compatible harnessd before issuing requests
// that depend on a particular operation set.
func (srv *Server) handleVersion(w http.ResponseWriter, r *http.Request) {
	info := buildinfo.Current()
	writeOK(w, map[string]any{
		"version":    info.Version,
		"commitHash": info.CommitHash,
		"buildDate":  info.BuildDate,
	})
}
