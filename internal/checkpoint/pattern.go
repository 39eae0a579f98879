package checkpoint

import (
	"regexp"
	"strings"

	"github.com/agentharness/harness/internal/store"
)

var (
	checkpointRe = regexp.MustCompile(`(?i)CHECKPOINT:\s*(.*)`)

	completionPhrases = []string{
		"verification passed",
		"planning complete",
		"execution complete",
		"phase ",
	}
)

// findBanner scans text for a banner block `═══ … CHECKPOINT: … ═══ … ═══`
// or a stand-alone `CHECKPOINT:` line, returning the surrounding ±5/+15
// lines of context.
func findBanner(text string) (string, bool) {
	lines := strings.Split(text, "\n")
	for i, line := range lines {
		if checkpointRe.MatchString(line) {
			start := i - 5
			if start < 0 {
				start = 0
			}
			end := i + 15
			if end > len(lines) {
				end = len(lines)
			}
			return strings.Join(lines[start:end], "\n"), true
		}
	}
	return "", false
}

// parseBanner classifies a banner block's checkpoint type from keywords
// and extracts typed fields per §4.E. If nothing recognizable is found it
// still returns a best-effort type with a "unable to parse" fallback.
func parseBanner(banner string) (store.CheckpointType, map[string]any, string) {
	lower := strings.ToLower(banner)

	switch {
	case strings.Contains(lower, "human-verify") || strings.Contains(lower, "human verify"):
		return store.CheckpointHumanVerify, parseHumanVerify(banner), "approved"
	case strings.Contains(lower, "decision"):
		return store.CheckpointDecision, parseDecision(banner), "select an option"
	case strings.Contains(lower, "human-action") || strings.Contains(lower, "human action"):
		return store.CheckpointHumanAction, parseHumanAction(banner), "done"
	case isCompletionBanner(lower):
		return store.CheckpointCompletion, parseCompletion(banner), ""
	default:
		return store.CheckpointError, map[string]any{
			"note": "unable to parse checkpoint banner",
			"raw":  banner,
		}, ""
	}
}

func isCompletionBanner(lower string) bool {
	for _, p := range completionPhrases {
		if strings.Contains(lower, p) {
			return true
		}
	}
	return false
}

func parseHumanVerify(banner string) map[string]any {
	fields := map[string]any{}
	if v := extractField(banner, "What was built"); v != "" {
		fields["whatBuilt"] = v
	}
	fields["howToVerify"] = extractList(banner, "How to verify")
	return fields
}

func parseDecision(banner string) map[string]any {
	fields := map[string]any{}
	if v := extractField(banner, "Decision"); v != "" {
		fields["decision"] = v
	}
	if v := extractField(banner, "Context"); v != "" {
		fields["context"] = v
	}
	fields["options"] = extractOptions(banner)
	return fields
}

func parseHumanAction(banner string) map[string]any {
	fields := map[string]any{}
	if v := extractField(banner, "Action"); v != "" {
		fields["action"] = v
	}
	if v := extractField(banner, "Instructions"); v != "" {
		fields["instructions"] = v
	}
	return fields
}

func parseCompletion(banner string) map[string]any {
	lower := strings.ToLower(banner)
	fields := map[string]any{}
	if v := extractField(banner, "Workflow"); v != "" {
		fields["workflow"] = v
	}

	status := "success"
	switch {
	case strings.Contains(lower, "failed"):
		status = "failed"
	case strings.Contains(lower, "partial"):
		status = "partial"
	}
	fields["status"] = status

	if v := extractField(banner, "Summary"); v != "" {
		fields["summary"] = v
	}
	if v := extractField(banner, "Next command"); v != "" {
		fields["nextCommand"] = v
	}
	return fields
}

// extractField finds "<label>: value" (case-insensitive) on its own line.
func extractField(banner, label string) string {
	re := regexp.MustCompile(`(?i)` + regexp.QuoteMeta(label) + `:\s*(.+)`)
	m := re.FindStringSubmatch(banner)
	if len(m) < 2 {
		return ""
	}
	return strings.TrimSpace(m[1])
}

// extractList finds a "<label>:" line and collects subsequent "- item"
// bullet lines until a blank line or another label.
func extractList(banner, label string) []string {
	lines := strings.Split(banner, "\n")
	var out []string
	collecting := false
	labelRe := regexp.MustCompile(`(?i)^\s*` + regexp.QuoteMeta(label) + `\s*:?\s*$`)
	for _, line := range lines {
		if labelRe.MatchString(line) {
			collecting = true
			continue
		}
		if collecting {
			trimmed := strings.TrimSpace(line)
			if trimmed == "" {
				break
			}
			if strings.HasPrefix(trimmed, "-") {
				out = append(out, strings.TrimSpace(strings.TrimPrefix(trimmed, "-")))
				continue
			}
			break
		}
	}
	return out
}

// extractOptions parses "- id: name (pros: ..., cons: ...)" style option
// lines into typed entries. Every matching line of the banner is taken;
// no "Options:" label is looked for.
func extractOptions(banner string) []map[string]string {
	lines := strings.Split(banner, "\n")
	optRe := regexp.MustCompile(`^\s*-\s*([\w-]+):\s*([^(]+)(?:\(pros:\s*([^;]*);?\s*cons:\s*([^)]*)\))?`)
	var out []map[string]string
	for _, line := range lines {
		m := optRe.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		out = append(out, map[string]string{
			"id":   strings.TrimSpace(m[1]),
			"name": strings.TrimSpace(m[2]),
			"pros": strings.TrimSpace(m[3]),
			"cons": strings.TrimSpace(m[4]),
		})
	}
	return out
}
