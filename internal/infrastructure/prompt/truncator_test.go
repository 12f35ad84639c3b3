package prompt

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTruncateObservationFitsAsIs(t *testing.T) {
	obs := "line one\nline two\nline three"
	got := truncateObservation(obs, aggressionLevels[0])
	assert.Equal(t, obs, got)
}

func TestTruncateObservationBuildsHeadMiddleTail(t *testing.T) {
	lines := make([]string, 40)
	for i := range lines {
		lines[i] = "x"
	}
	obs := strings.Join(lines, "\n")

	got := truncateObservation(obs, aggressionLevels[0])
	assert.Contains(t, got, "lines truncated")
	assert.True(t, strings.Count(got, "lines truncated") >= 1)
}

func TestTruncateObservationLevel2HasNoMiddleSample(t *testing.T) {
	lines := make([]string, 40)
	for i := range lines {
		lines[i] = "x"
	}
	obs := strings.Join(lines, "\n")

	got := truncateObservation(obs, aggressionLevels[2])
	assert.Equal(t, 1, strings.Count(got, "lines truncated"))
}

func TestTruncateObservationNeverTruncatesUIFormatting(t *testing.T) {
	obs := strings.Repeat("├── file.go\n", 100)
	got := truncateObservation(obs, aggressionLevels[2])
	assert.Equal(t, obs, got)
}

func TestTruncateLinePreservesPathToken(t *testing.T) {
	line := "found match in internal/domain/entity/very/deeply/nested/path/file.go at column 1"
	got := truncateLine(line, 60)
	assert.Equal(t, "internal/domain/entity/very/deeply/nested/path/file.go", got)
}

func TestTruncateLineFallsBackToHardCut(t *testing.T) {
	line := strings.Repeat("a", 200)
	got := truncateLine(line, 50)
	assert.True(t, len([]rune(got)) <= 51)
}
