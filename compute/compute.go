// Package compute talks to the remote compute backend that executions fan
// work out to. Cancellation scans execution logs for compute task tokens and
// asks the backend to cancel each one.
package compute

import (
	"context"
	"regexp"
)

// Canceller cancels a remote compute task by its token
type Canceller interface {
	CancelTask(ctx context.Context, token string) error
}

// taskTokenPattern matches compute task references in execution log text.
// Task workers log lines like "submitted compute task 3f2a...c9 to backend".
var taskTokenPattern = regexp.MustCompile(`compute task ([0-9a-f]{32})`)

// ScanTokens extracts compute task tokens from execution log lines,
// deduplicated in first-seen order.
func ScanTokens(lines []string) []string {
	var tokens []string
	seen := make(map[string]bool)

	for _, line := range lines {
		for _, match := range taskTokenPattern.FindAllStringSubmatch(line, -1) {
			token := match[1]
			if seen[token] {
				continue
			}
			seen[token] = true
			tokens = append(tokens, token)
		}
	}

	return tokens
}
