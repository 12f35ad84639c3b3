// Package funnel implements the Observation Funnel: the 3-layer
// size-management pipeline (spill / trailer / director) that keeps large
// tool outputs from destroying the LLM's context window.
package funnel

import (
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/reactorctl/reactor/internal/domain/entity"
	"go.uber.org/zap"
)

const (
	// LineThreshold and CharThreshold are the funnel's trigger condition:
	// an output past EITHER bound is spilled. Exactly at the bound, the
	// funnel does not engage.
	LineThreshold = 50
	CharThreshold = 2000

	headLines = 10
	tailLines = 5
)

// searchLikeTools name tools whose plain-text output lines (grep-style
// "path:line:text" matches, or find-style one-path-per-line) get counted
// into match/file totals rather than just lines-and-chars.
var searchLikeTools = map[string]bool{
	"content_search":     true,
	"sourcegraph_search": true,
	"find_files":         true,
}

// Funnel spills oversized tool output to a run-scoped scratch directory
// and returns a compact observation string plus its receipt metadata.
type Funnel struct {
	scratchDir string
	logger     *zap.Logger
}

// New creates a Funnel rooted at scratchDir. The directory is created
// lazily on first spill.
func New(scratchDir string, logger *zap.Logger) *Funnel {
	return &Funnel{scratchDir: scratchDir, logger: logger}
}

// Engaged reports whether raw would trigger the funnel, without doing any
// I/O — used by the dispatcher to decide whether to call Process at all.
func Engaged(raw string) bool {
	lines := countLines(raw)
	return lines > LineThreshold || len(raw) > CharThreshold
}

func countLines(s string) int {
	if s == "" {
		return 0
	}
	return strings.Count(s, "\n") + 1
}

// Process runs the 3-layer pipeline for one tool's raw textual output.
// Small outputs (Engaged == false) should not be passed here; callers are
// expected to check Engaged first and bypass the funnel entirely.
func (f *Funnel) Process(toolName, raw string) (observation string, summary *entity.ObservationSummary, err error) {
	lines := countLines(raw)
	chars := len(raw)

	savedPath, err := f.spill(toolName, raw)
	if err != nil {
		return "", nil, fmt.Errorf("spill output: %w", err)
	}

	sum := &entity.ObservationSummary{
		TotalLines:        lines,
		TotalChars:        chars,
		StatusFlag:        "large_output",
		FullOutputSavedTo: savedPath,
	}

	if searchLikeTools[toolName] {
		if matches, files := CountMatches(raw); matches > 0 {
			sum.TotalMatches = matches
			sum.FilesWithMatches = files
		}
	}

	preview := trailer(raw)

	director := fmt.Sprintf(
		"📊 LARGE OUTPUT DETECTED: Total: %d lines, %d chars", lines, chars)
	if sum.TotalMatches > 0 {
		director += fmt.Sprintf("; Matches: %d; Files: %d", sum.TotalMatches, sum.FilesWithMatches)
	}
	director += fmt.Sprintf("; Full output saved to: %s\nPreview (head/tail):\n%s", savedPath, preview)

	f.logger.Info("observation funnel engaged",
		zap.String("tool", toolName),
		zap.Int("lines", lines),
		zap.Int("chars", chars),
		zap.String("saved_to", savedPath),
	)

	return director, sum, nil
}

// spill writes raw to <scratchDir>/<tool>_<timestamp>_<md5-prefix>.txt and
// returns its absolute path.
func (f *Funnel) spill(toolName, raw string) (string, error) {
	if err := os.MkdirAll(f.scratchDir, 0o755); err != nil {
		return "", err
	}

	sum := md5.Sum([]byte(raw))
	prefix := hex.EncodeToString(sum[:])[:8]
	name := fmt.Sprintf("%s_%d_%s.txt", sanitizeToolName(toolName), time.Now().UnixNano(), prefix)
	path := filepath.Join(f.scratchDir, name)

	if err := os.WriteFile(path, []byte(raw), 0o644); err != nil {
		return "", err
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return path, nil
	}
	return abs, nil
}

func sanitizeToolName(name string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '_', r == '-':
			return r
		default:
			return '_'
		}
	}, name)
}

// trailer builds Layer 2: first headLines + elision marker + last tailLines.
func trailer(raw string) string {
	all := strings.Split(raw, "\n")
	if len(all) <= headLines+tailLines {
		return raw
	}

	head := all[:headLines]
	tail := all[len(all)-tailLines:]
	elided := len(all) - headLines - tailLines

	var b strings.Builder
	b.WriteString(strings.Join(head, "\n"))
	b.WriteString(fmt.Sprintf("\n… [%d lines truncated] …\n", elided))
	b.WriteString(strings.Join(tail, "\n"))
	return b.String()
}

// grepMatchLine matches one line of `grep -n`/`grep -rn` output: a file
// path, the 1-based line number, and the matched text, colon-separated.
var grepMatchLine = regexp.MustCompile(`^(.+?):\d+:`)

// CountMatches parses raw as the plain-text output the search-like builtin
// tools actually produce — grep's "path:line:text" per matching line, or
// find's one file path per line — and returns the number of matching lines
// (or files, for find output) plus the number of distinct files among
// them. Returns (0, 0) for the tools' own "no matches"/"no files" sentinel
// strings or any other text with no recognizable lines.
func CountMatches(raw string) (matches, files int) {
	if raw == "" || raw == "No matches found" || raw == "No files found" {
		return 0, 0
	}

	seen := make(map[string]bool)
	lines := strings.Split(strings.TrimRight(raw, "\n"), "\n")
	for _, line := range lines {
		if line == "" {
			continue
		}
		matches++
		if m := grepMatchLine.FindStringSubmatch(line); m != nil {
			seen[m[1]] = true
		} else {
			seen[line] = true
		}
	}
	return matches, len(seen)
}
