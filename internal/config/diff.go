package config

import (
	"strings"

	"github.com/google/go-cmp/cmp"
)

// diffRules returns a line diff between two rule files, or "" when they
// differ only in blank lines, comments or trailing whitespace.
func diffRules(previous, current []byte) string {
	return cmp.Diff(ruleLines(previous), ruleLines(current))
}

func ruleLines(data []byte) []string {
	var lines []string
	for _, line := range strings.Split(string(data), "\n") {
		line = strings.TrimRight(line, " \t\r")
		if trimmed := strings.TrimSpace(line); trimmed == "" || strings.HasPrefix(trimmed, "#") {
			continue
		}
		lines = append(lines, line)
	}
	return lines
}
