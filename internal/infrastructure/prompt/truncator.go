package prompt

import (
	"fmt"
	"strings"
)

// aggressionConfig is one row of the progressive-truncation table.
type aggressionConfig struct {
	maxLines        int
	sampleLines     int
	maxCharsPerLine int
	middleSample    bool
}

// aggressionLevels are tried in order; Build returns at the first level
// whose formatted history fits the token budget (Open Question: "return at
// the first aggression level that fits", not always escalate to the most
// aggressive).
var aggressionLevels = []aggressionConfig{
	{maxLines: 20, sampleLines: 3, maxCharsPerLine: 100, middleSample: true},
	{maxLines: 10, sampleLines: 2, maxCharsPerLine: 80, middleSample: true},
	{maxLines: 6, sampleLines: 1, maxCharsPerLine: 60, middleSample: false},
}

// pathExtensions are suffixes that mark a line as carrying a filesystem
// path worth preserving whole.
var pathExtensions = []string{
	".go", ".py", ".js", ".ts", ".json", ".yaml", ".yml",
	".md", ".txt", ".sh", ".toml", ".cfg", ".ini", ".log",
}

// uiFormattingTokens mark an observation as pre-formatted for a human
// (box-drawing tables, tree listings) — these are never truncated, since
// chopping them mid-structure produces nonsense rather than a preview.
var uiFormattingTokens = []string{"├", "└", "│", "─", "┌", "┐", "┘", "┴", "┬", "┼"}

// truncateObservation applies one aggression level's rule to a single
// observation string. If the observation already fits (line count and
// per-line length both within bound), it is returned unchanged.
func truncateObservation(obs string, cfg aggressionConfig) string {
	if hasUIFormattingTokens(obs) {
		return obs
	}

	lines := strings.Split(obs, "\n")
	if len(lines) <= cfg.maxLines && allLinesWithin(lines, cfg.maxCharsPerLine) {
		return obs
	}

	sample := cfg.sampleLines
	if sample > len(lines) {
		sample = len(lines)
	}

	head := truncateLines(lines[:sample], cfg.maxCharsPerLine)
	tailStart := len(lines) - sample
	if tailStart < sample {
		tailStart = sample
	}
	tail := truncateLines(lines[tailStart:], cfg.maxCharsPerLine)

	var b strings.Builder
	b.WriteString(strings.Join(head, "\n"))

	if cfg.middleSample && tailStart > sample {
		midStart := sample + (tailStart-sample)/2
		midEnd := midStart + sample
		if midEnd > tailStart {
			midEnd = tailStart
		}
		elidedBefore := midStart - sample
		b.WriteString(fmt.Sprintf("\n… [%d lines truncated] …\n", elidedBefore))
		if midStart < midEnd {
			mid := truncateLines(lines[midStart:midEnd], cfg.maxCharsPerLine)
			b.WriteString(strings.Join(mid, "\n"))
		}
		elidedAfter := tailStart - midEnd
		b.WriteString(fmt.Sprintf("\n… [%d lines truncated] …\n", elidedAfter))
	} else {
		elided := tailStart - sample
		b.WriteString(fmt.Sprintf("\n… [%d lines truncated] …\n", elided))
	}

	b.WriteString(strings.Join(tail, "\n"))
	return b.String()
}

func allLinesWithin(lines []string, maxChars int) bool {
	for _, l := range lines {
		if len(l) > maxChars {
			return false
		}
	}
	return true
}

func truncateLines(lines []string, maxChars int) []string {
	out := make([]string, len(lines))
	for i, l := range lines {
		out[i] = truncateLine(l, maxChars)
	}
	return out
}

// truncateLine shortens a single line to maxChars, except that a line
// carrying a filesystem-path-like token is replaced by that token, kept
// whole, when the token itself fits; the rest of the line is dropped.
func truncateLine(line string, maxChars int) string {
	if len(line) <= maxChars {
		return line
	}
	if path, ok := pathToken(line); ok && len(path) <= maxChars {
		return path
	}
	return line[:maxChars] + "…"
}

// pathToken returns the first whitespace-delimited token in line that
// contains a path separator or ends in a known extension; a leading "•" or
// "-" bullet is stripped before the search.
func pathToken(line string) (string, bool) {
	trimmed := strings.TrimSpace(line)
	if strings.HasPrefix(trimmed, "•") || strings.HasPrefix(trimmed, "-") {
		trimmed = strings.TrimSpace(strings.TrimLeft(trimmed, "•- "))
	}
	fields := strings.Fields(trimmed)
	for _, f := range fields {
		if strings.Contains(f, "/") {
			return f, true
		}
		for _, ext := range pathExtensions {
			if strings.HasSuffix(f, ext) {
				return f, true
			}
		}
	}
	return "", false
}

func hasUIFormattingTokens(s string) bool {
	for _, tok := range uiFormattingTokens {
		if strings.Contains(s, tok) {
			return true
		}
	}
	return false
}
