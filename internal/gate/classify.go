// Package gate implements the Orchestration Gate (§4.F): the persistent
// phase/plan state machine that decides whether a new command is
// admissible.
package gate

import (
	"regexp"
	"strconv"
)

// Family is the command family recognized by command classification.
type Family string

const (
	FamilyExecute Family = "execute"
	FamilyPlan    Family = "plan"
	FamilyVerify  Family = "verify"
	FamilyOther   Family = ""
)

var (
	executeRe = regexp.MustCompile(`(?i)\bexecute\b.*?(\d+)-(\d+)-PLAN\.md`)
	planRe    = regexp.MustCompile(`(?i)\bplan\b\D*?(\d+)\b`)
	verifyRe  = regexp.MustCompile(`(?i)\bverify\b\D*?(\d+)\b`)
)

// Classify extracts the command family and phase/plan from a coordinator
// command string. Execute commands derive both phase and plan from the
// referenced plan file path; plan and verify commands take a phase number
// only (plan is 0 in those cases). ok is false when the command matches no
// recognized family, in which case it is not subject to gate admission.
func Classify(command string) (family Family, phase, plan int, ok bool) {
	if m := executeRe.FindStringSubmatch(command); m != nil {
		phase, _ = strconv.Atoi(m[1])
		plan, _ = strconv.Atoi(m[2])
		return FamilyExecute, phase, plan, true
	}
	if m := verifyRe.FindStringSubmatch(command); m != nil {
		phase, _ = strconv.Atoi(m[1])
		return FamilyVerify, phase, 0, true
	}
	if m := planRe.FindStringSubmatch(command); m != nil {
		phase, _ = strconv.Atoi(m[1])
		return FamilyPlan, phase, 0, true
	}
	return FamilyOther, 0, 0, false
}
