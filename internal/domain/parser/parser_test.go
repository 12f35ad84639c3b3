package parser

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseStrictJSON(t *testing.T) {
	text := `Thought: I should read the file now.
Intent: read_file
Action: {"tool_name": "read_file", "parameters": {"filename": "a.txt"}}`

	r := Parse(text)
	require.Equal(t, "read_file", r.Action.ToolName)
	assert.Equal(t, "a.txt", r.Action.Parameters["filename"])
	assert.Equal(t, "read_file", r.Intent)
	assert.False(t, r.IsFinish)
}

func TestParsePythonLiteralFallback(t *testing.T) {
	text := "Thought: x\nAction: {tool_name: read_file, parameters: {filename: 'a'}}"

	r := Parse(text)
	require.Equal(t, "read_file", r.Action.ToolName)
	assert.Equal(t, "a", r.Action.Parameters["filename"])
}

func TestParseFinishDetected(t *testing.T) {
	text := `Thought: done
Action: {"tool_name": "finish", "parameters": {}, "reason": "created and verified hello.txt"}`

	r := Parse(text)
	assert.True(t, r.IsFinish)
	assert.Equal(t, "created and verified hello.txt", r.Action.Reason)
}

func TestParseTotalityOnGarbage(t *testing.T) {
	r := Parse("this is not a structured response at all")
	require.Equal(t, "error", r.Action.ToolName)
	assert.NotNil(t, r.Action.Parameters)
}

func TestParseKeyScrapeWithScriptContent(t *testing.T) {
	text := "Action: {\"tool_name\": \"run_script\", \"parameters\": {\"script_content\": \"print(1)\nprint(2)\", \"lang\": \"python\"}}"

	r := Parse(text)
	require.Equal(t, "run_script", r.Action.ToolName)
}

func TestParseSplitRegexFallback(t *testing.T) {
	text := `garbled preamble "tool_name": "list_dir" some noise "parameters": {"path": "."}`

	r := Parse(text)
	require.Equal(t, "list_dir", r.Action.ToolName)
	assert.Equal(t, ".", r.Action.Parameters["path"])
}
