package stream

import (
	"fmt"
	"regexp"
	"strings"
)

// Body-shaping thresholds for tool_result display.
const (
	// shortBodyLines is the line count under which a body is shown verbatim.
	shortBodyLines = 10

	// headTailLines is how many leading and trailing lines survive elision.
	headTailLines = 5
)

// todosAckPrefix is the fixed acknowledgment the TodoWrite tool returns.
// Suppressed entirely unless the result carries an error flag.
const todosAckPrefix = "Todos have been modified successfully"

var (
	// commitHashPattern matches the "[branch abc1234]" line of git commit output.
	commitHashPattern = regexp.MustCompile(`\[[^\s\]]+ ([0-9a-f]{7,40})\]`)

	// commitStatPattern matches the "N files changed, X insertions(+), Y deletions(-)" line.
	commitStatPattern = regexp.MustCompile(`(\d+) files? changed(?:, (\d+) insertions?\(\+\))?(?:, (\d+) deletions?\(-\))?`)

	// severityPattern selects the lines kept when filtering a long error body.
	severityPattern = regexp.MustCompile(`(?i)\b(error|fatal|panic)\b`)
)

// ShapeToolResultBody applies the display policy for a tool_result body:
//   - the todos-modified acknowledgment is dropped (unless isError)
//   - short bodies pass through verbatim
//   - long commit summaries compress to a one-line digest
//   - long error bodies keep only severity lines plus surrounding context
//   - anything else long shows head and tail with an omission marker
//
// Returns "" when the body should not be displayed at all.
func ShapeToolResultBody(body string, isError bool) string {
	body = strings.TrimRight(body, "\n")
	if body == "" {
		return ""
	}
	if !isError && strings.HasPrefix(strings.TrimSpace(body), todosAckPrefix) {
		return ""
	}

	lines := strings.Split(body, "\n")
	if len(lines) <= shortBodyLines {
		return body
	}

	if digest, ok := commitDigest(body); ok {
		return digest
	}
	if isError {
		if filtered := filterSeverityLines(lines); filtered != "" {
			return filtered
		}
	}
	return elide(lines)
}

// commitDigest compresses a version-control commit summary into
// "<shorthash>: N files changed (+a/-d)".
func commitDigest(body string) (string, bool) {
	hashMatch := commitHashPattern.FindStringSubmatch(body)
	statMatch := commitStatPattern.FindStringSubmatch(body)
	if hashMatch == nil || statMatch == nil {
		return "", false
	}
	hash := hashMatch[1]
	if len(hash) > 7 {
		hash = hash[:7]
	}
	added, deleted := "0", "0"
	if statMatch[2] != "" {
		added = statMatch[2]
	}
	if statMatch[3] != "" {
		deleted = statMatch[3]
	}
	return fmt.Sprintf("%s: %s files changed (+%s/-%s)", hash, statMatch[1], added, deleted), true
}

// filterSeverityLines keeps lines matching ERROR/FATAL/panic markers plus one
// line of context on each side, dropping the verbose remainder.
func filterSeverityLines(lines []string) string {
	keep := make([]bool, len(lines))
	found := false
	for i, line := range lines {
		if !severityPattern.MatchString(line) {
			continue
		}
		found = true
		keep[i] = true
		if i > 0 {
			keep[i-1] = true
		}
		if i < len(lines)-1 {
			keep[i+1] = true
		}
	}
	if !found {
		return ""
	}
	var out []string
	for i, line := range lines {
		if keep[i] {
			out = append(out, line)
		}
	}
	return strings.Join(out, "\n")
}

// elide shows the first and last headTailLines lines with an explicit count
// of what was dropped.
func elide(lines []string) string {
	omitted := len(lines) - 2*headTailLines
	var out []string
	out = append(out, lines[:headTailLines]...)
	out = append(out, fmt.Sprintf("... (%d lines omitted) ...", omitted))
	out = append(out, lines[len(lines)-headTailLines:]...)
	return strings.Join(out, "\n")
}
