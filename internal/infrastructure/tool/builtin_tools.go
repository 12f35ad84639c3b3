// Package tool holds the minimal built-in Tool implementations the
// Registry & Descriptor Loading collaborator (spec §4.5) registers:
// enough for the Agent Controller to actually drive a goal to completion,
// not a general-purpose tool catalog (that is explicitly out of scope —
// see SPEC_FULL.md's DOMAIN STACK note on individual tool implementations).
package tool

import (
	"context"
	"fmt"
	"strings"

	domaintool "github.com/reactorctl/reactor/internal/domain/tool"
	"github.com/reactorctl/reactor/internal/infrastructure/sandbox"
	"github.com/reactorctl/reactor/internal/infrastructure/workspace"
	"go.uber.org/zap"
)

// Result and Kind are re-exported for callers that only import this
// package.
type Result = domaintool.Result
type Kind = domaintool.Kind

// resolvePath validates path against root before any tool touches the
// filesystem or shells out to a path-taking command.
func resolvePath(root, path string, op workspace.Op) (string, error) {
	if path == "" {
		path = "."
	}
	return workspace.Validate(root, path, op)
}

// ShellTool runs an arbitrary shell command under the process sandbox.
// Dispatch never routes "finish" here — the Controller intercepts it —
// but every other action ultimately either calls this tool directly or is
// backed by the same sandbox.
type ShellTool struct {
	sandbox   *sandbox.ProcessSandbox
	workspace string
	logger    *zap.Logger
}

func NewShellTool(sb *sandbox.ProcessSandbox, workspaceRoot string, logger *zap.Logger) *ShellTool {
	return &ShellTool{sandbox: sb, workspace: workspaceRoot, logger: logger}
}

func (t *ShellTool) Name() string          { return "shell" }
func (t *ShellTool) Version() string       { return "" }
func (t *ShellTool) Kind() domaintool.Kind { return domaintool.KindExecute }

func (t *ShellTool) Description() string {
	return `Execute a shell command in a sandboxed environment confined to the workspace.
Commands run with a per-call timeout (default 60s, return code 124 on a shell-level
timeout wrapper, -1 if the sandbox itself kills the process). Avoid interactive or
long-running commands (top, watch, tail -f). Prefer simple, targeted commands.`
}

func (t *ShellTool) Schema() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"command": map[string]interface{}{
				"type":        "string",
				"description": "The shell command to execute",
			},
			"work_dir": map[string]interface{}{
				"type":        "string",
				"description": "Optional working directory, relative to the workspace root",
			},
		},
		"required": []string{"command"},
	}
}

func (t *ShellTool) Execute(ctx context.Context, args map[string]interface{}) (*Result, error) {
	command, ok := args["command"].(string)
	if !ok || command == "" {
		return &Result{Success: false, Error: "command is required"}, fmt.Errorf("command is required")
	}

	if workDir, ok := args["work_dir"].(string); ok && workDir != "" {
		resolved, err := resolvePath(t.workspace, workDir, workspace.OpExec)
		if err != nil {
			return &Result{Success: false, Error: err.Error()}, nil
		}
		if err := t.sandbox.SetWorkDir(resolved); err != nil {
			return &Result{Success: false, Error: err.Error()}, nil
		}
	}

	t.logger.Info("executing shell command", zap.String("command", command))

	result, err := t.sandbox.ExecuteShell(ctx, command)
	if err != nil {
		res := &Result{Success: false}
		if result != nil && result.Killed {
			res.Error = "Execution timed out"
			res.Output = result.Stderr
			res.Metadata = shellMetadata(result)
		} else if result != nil {
			res.Error = result.Stderr
			if res.Error == "" {
				res.Error = err.Error()
			}
			res.Output = result.Stderr
			res.Metadata = shellMetadata(result)
		} else {
			res.Error = err.Error()
		}
		return res, nil
	}

	output := result.Stdout
	if result.Stderr != "" {
		output += "\n[stderr]\n" + result.Stderr
	}
	output += fmt.Sprintf("\n(%dms, return_code: %d, success: %t)",
		result.Duration.Milliseconds(), result.ExitCode, result.ExitCode == 0)

	return &Result{
		Output:   output,
		Success:  result.ExitCode == 0,
		Metadata: shellMetadata(result),
	}, nil
}

func shellMetadata(r *sandbox.Result) map[string]interface{} {
	return map[string]interface{}{
		"exit_code": r.ExitCode,
		"duration":  r.Duration.String(),
		"killed":    r.Killed,
	}
}

// ReadFileTool reads a file, optionally restricted to a line range.
type ReadFileTool struct {
	sandbox   *sandbox.ProcessSandbox
	workspace string
	logger    *zap.Logger
}

func NewReadFileTool(sb *sandbox.ProcessSandbox, workspaceRoot string, logger *zap.Logger) *ReadFileTool {
	return &ReadFileTool{sandbox: sb, workspace: workspaceRoot, logger: logger}
}

func (t *ReadFileTool) Name() string          { return "read_file" }
func (t *ReadFileTool) Version() string       { return "" }
func (t *ReadFileTool) Kind() domaintool.Kind { return domaintool.KindRead }

func (t *ReadFileTool) Description() string {
	return "Read the contents of a file within the workspace. Supports an optional line range."
}

func (t *ReadFileTool) Schema() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"path":       map[string]interface{}{"type": "string", "description": "Path to the file to read, relative to the workspace root"},
			"start_line": map[string]interface{}{"type": "integer", "description": "Optional starting line number (1-indexed)"},
			"end_line":   map[string]interface{}{"type": "integer", "description": "Optional ending line number (1-indexed)"},
		},
		"required": []string{"path"},
	}
}

func (t *ReadFileTool) Execute(ctx context.Context, args map[string]interface{}) (*Result, error) {
	path, ok := args["path"].(string)
	if !ok || path == "" {
		return &Result{Success: false, Error: "path is required"}, fmt.Errorf("path is required")
	}
	resolved, err := resolvePath(t.workspace, path, workspace.OpRead)
	if err != nil {
		return &Result{Success: false, Error: err.Error()}, nil
	}

	var cmd string
	startLine, hasStart := args["start_line"].(float64)
	endLine, hasEnd := args["end_line"].(float64)

	switch {
	case hasStart && hasEnd:
		cmd = fmt.Sprintf("sed -n '%d,%dp' '%s'", int(startLine), int(endLine), resolved)
	case hasStart:
		cmd = fmt.Sprintf("tail -n +%d '%s'", int(startLine), resolved)
	default:
		cmd = fmt.Sprintf("cat '%s'", resolved)
	}

	result, err := t.sandbox.ExecuteShell(ctx, cmd)
	if err != nil {
		errMsg := err.Error()
		if result != nil {
			errMsg = result.Stderr
		}
		return &Result{Success: false, Error: errMsg}, nil
	}

	return &Result{
		Output:   result.Stdout,
		Success:  true,
		Metadata: map[string]interface{}{"path": resolved},
	}, nil
}

// WriteFileTool creates or overwrites a file within the workspace.
type WriteFileTool struct {
	sandbox   *sandbox.ProcessSandbox
	workspace string
	logger    *zap.Logger
}

func NewWriteFileTool(sb *sandbox.ProcessSandbox, workspaceRoot string, logger *zap.Logger) *WriteFileTool {
	return &WriteFileTool{sandbox: sb, workspace: workspaceRoot, logger: logger}
}

func (t *WriteFileTool) Name() string          { return "write_file" }
func (t *WriteFileTool) Version() string       { return "" }
func (t *WriteFileTool) Kind() domaintool.Kind { return domaintool.KindEdit }

func (t *WriteFileTool) Description() string {
	return "Write content to a file within the workspace, creating it if needed or overwriting it if it exists."
}

func (t *WriteFileTool) Schema() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"path":    map[string]interface{}{"type": "string", "description": "Path to the file to write, relative to the workspace root"},
			"content": map[string]interface{}{"type": "string", "description": "The content to write"},
		},
		"required": []string{"path", "content"},
	}
}

func (t *WriteFileTool) Execute(ctx context.Context, args map[string]interface{}) (*Result, error) {
	path, ok := args["path"].(string)
	if !ok || path == "" {
		return &Result{Success: false, Error: "path is required"}, fmt.Errorf("path is required")
	}
	content, ok := args["content"].(string)
	if !ok {
		return &Result{Success: false, Error: "content is required"}, fmt.Errorf("content is required")
	}
	resolved, err := resolvePath(t.workspace, path, workspace.OpWrite)
	if err != nil {
		return &Result{Success: false, Error: err.Error()}, nil
	}

	quoted := "'" + strings.ReplaceAll(content, "'", `'\''`) + "'"
	cmd := fmt.Sprintf("printf '%%s' %s > '%s'", quoted, resolved)

	result, err := t.sandbox.ExecuteShell(ctx, cmd)
	if err != nil {
		errMsg := err.Error()
		if result != nil {
			errMsg = result.Stderr
		}
		return &Result{Success: false, Error: errMsg}, nil
	}

	return &Result{
		Output:  fmt.Sprintf("Successfully wrote to %s", resolved),
		Success: true,
		Metadata: map[string]interface{}{
			"path":          resolved,
			"bytes_written": len(content),
		},
	}, nil
}

// ListDirTool lists a directory's contents, optionally recursively.
type ListDirTool struct {
	sandbox   *sandbox.ProcessSandbox
	workspace string
	logger    *zap.Logger
}

func NewListDirTool(sb *sandbox.ProcessSandbox, workspaceRoot string, logger *zap.Logger) *ListDirTool {
	return &ListDirTool{sandbox: sb, workspace: workspaceRoot, logger: logger}
}

func (t *ListDirTool) Name() string          { return "list_dir" }
func (t *ListDirTool) Version() string       { return "" }
func (t *ListDirTool) Kind() domaintool.Kind { return domaintool.KindRead }

func (t *ListDirTool) Description() string {
	return "List a directory's contents within the workspace, optionally recursively."
}

func (t *ListDirTool) Schema() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"path":      map[string]interface{}{"type": "string", "description": "Directory path, relative to the workspace root"},
			"recursive": map[string]interface{}{"type": "boolean", "description": "Whether to list recursively"},
		},
		"required": []string{"path"},
	}
}

func (t *ListDirTool) Execute(ctx context.Context, args map[string]interface{}) (*Result, error) {
	path, _ := args["path"].(string)
	resolved, err := resolvePath(t.workspace, path, workspace.OpRead)
	if err != nil {
		return &Result{Success: false, Error: err.Error()}, nil
	}
	recursive, _ := args["recursive"].(bool)

	var cmd string
	if recursive {
		cmd = fmt.Sprintf("find '%s' -maxdepth 3 \\( -type f -o -type d \\) | head -100", resolved)
	} else {
		cmd = fmt.Sprintf("ls -la '%s'", resolved)
	}

	result, err := t.sandbox.ExecuteShell(ctx, cmd)
	if err != nil {
		errMsg := err.Error()
		if result != nil {
			errMsg = result.Stderr
		}
		return &Result{Success: false, Error: errMsg}, nil
	}

	return &Result{
		Output:   result.Stdout,
		Success:  true,
		Metadata: map[string]interface{}{"path": resolved},
	}, nil
}

// ContentSearchTool greps for a pattern within the workspace. Its payload
// is a newline-delimited grep listing — the search-like tool the
// Observation Funnel additionally counts matches/files for when it gets
// spilled (funnel.searchLikeTools keys on "content_search").
type ContentSearchTool struct {
	sandbox   *sandbox.ProcessSandbox
	workspace string
	logger    *zap.Logger
}

func NewContentSearchTool(sb *sandbox.ProcessSandbox, workspaceRoot string, logger *zap.Logger) *ContentSearchTool {
	return &ContentSearchTool{sandbox: sb, workspace: workspaceRoot, logger: logger}
}

func (t *ContentSearchTool) Name() string          { return "content_search" }
func (t *ContentSearchTool) Version() string       { return "" }
func (t *ContentSearchTool) Kind() domaintool.Kind { return domaintool.KindSearch }

func (t *ContentSearchTool) Description() string {
	return "Search file contents for a pattern within the workspace using grep. Supports regular expressions."
}

func (t *ContentSearchTool) Schema() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"pattern":   map[string]interface{}{"type": "string", "description": "The pattern to search for"},
			"path":      map[string]interface{}{"type": "string", "description": "File or directory to search in, relative to the workspace root"},
			"recursive": map[string]interface{}{"type": "boolean", "description": "Search recursively in directories"},
		},
		"required": []string{"pattern", "path"},
	}
}

func (t *ContentSearchTool) Execute(ctx context.Context, args map[string]interface{}) (*Result, error) {
	pattern, ok := args["pattern"].(string)
	if !ok || pattern == "" {
		return &Result{Success: false, Error: "pattern is required"}, fmt.Errorf("pattern is required")
	}
	path, _ := args["path"].(string)
	resolved, err := resolvePath(t.workspace, path, workspace.OpRead)
	if err != nil {
		return &Result{Success: false, Error: err.Error()}, nil
	}
	recursive, _ := args["recursive"].(bool)

	var cmd string
	if recursive {
		cmd = fmt.Sprintf("grep -rn -- '%s' '%s' | head -1000", pattern, resolved)
	} else {
		cmd = fmt.Sprintf("grep -n -- '%s' '%s' | head -1000", pattern, resolved)
	}

	result, err := t.sandbox.ExecuteShell(ctx, cmd)
	if err != nil && (result == nil || result.ExitCode != 1) {
		errMsg := err.Error()
		if result != nil {
			errMsg = result.Stderr
		}
		return &Result{Success: false, Error: errMsg}, nil
	}
	if result == nil {
		return &Result{Success: false, Error: "no result from sandbox"}, nil
	}

	output := result.Stdout
	if output == "" {
		output = "No matches found"
	}

	return &Result{
		Output:  output,
		Success: true,
		Metadata: map[string]interface{}{
			"pattern": pattern,
			"path":    resolved,
		},
	}, nil
}

// FindFilesTool locates files by name pattern within the workspace.
type FindFilesTool struct {
	sandbox   *sandbox.ProcessSandbox
	workspace string
	logger    *zap.Logger
}

func NewFindFilesTool(sb *sandbox.ProcessSandbox, workspaceRoot string, logger *zap.Logger) *FindFilesTool {
	return &FindFilesTool{sandbox: sb, workspace: workspaceRoot, logger: logger}
}

func (t *FindFilesTool) Name() string          { return "find_files" }
func (t *FindFilesTool) Version() string       { return "" }
func (t *FindFilesTool) Kind() domaintool.Kind { return domaintool.KindSearch }

func (t *FindFilesTool) Description() string {
	return "Find files by name glob within the workspace."
}

func (t *FindFilesTool) Schema() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"pattern": map[string]interface{}{"type": "string", "description": "Glob pattern, e.g. '*.go'"},
			"path":    map[string]interface{}{"type": "string", "description": "Directory to search under, relative to the workspace root", "default": "."},
		},
		"required": []string{"pattern"},
	}
}

func (t *FindFilesTool) Execute(ctx context.Context, args map[string]interface{}) (*Result, error) {
	pattern, ok := args["pattern"].(string)
	if !ok || pattern == "" {
		return &Result{Success: false, Error: "pattern is required"}, fmt.Errorf("pattern is required")
	}
	path, _ := args["path"].(string)
	resolved, err := resolvePath(t.workspace, path, workspace.OpRead)
	if err != nil {
		return &Result{Success: false, Error: err.Error()}, nil
	}

	cmd := fmt.Sprintf("find '%s' -type f -name '%s' | head -1000", resolved, pattern)

	result, err := t.sandbox.ExecuteShell(ctx, cmd)
	if err != nil {
		errMsg := err.Error()
		if result != nil {
			errMsg = result.Stderr
		}
		return &Result{Success: false, Error: errMsg}, nil
	}

	output := strings.TrimRight(result.Stdout, "\n")
	if output == "" {
		output = "No files found"
	}

	return &Result{
		Output:  output,
		Success: true,
		Metadata: map[string]interface{}{
			"pattern": pattern,
			"path":    resolved,
		},
	}, nil
}
