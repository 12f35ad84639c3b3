package tool

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/reactorctl/reactor/internal/infrastructure/funnel"
	"github.com/reactorctl/reactor/internal/infrastructure/sandbox"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// newTestSandbox builds a ProcessSandbox from sandbox.DefaultConfig (its
// allowed-binary list included), as application.New does, with the work
// and temp dirs under t.TempDir() and a 5s timeout.
func newTestSandbox(t *testing.T) (*sandbox.ProcessSandbox, string) {
	t.Helper()
	root := t.TempDir()
	cfg := sandbox.DefaultConfig()
	cfg.WorkDir = root
	cfg.TempDir = t.TempDir()
	cfg.Timeout = 5 * time.Second
	sb, err := sandbox.NewProcessSandbox(cfg, zap.NewNop())
	require.NoError(t, err)
	return sb, root
}

func TestShellTool_Execute(t *testing.T) {
	sb, root := newTestSandbox(t)
	tool := NewShellTool(sb, root, zap.NewNop())

	result, err := tool.Execute(context.Background(), map[string]interface{}{"command": "echo hello"})
	require.NoError(t, err)
	require.True(t, result.Success)
	require.Contains(t, result.Output, "hello")
}

func TestShellTool_MissingCommand(t *testing.T) {
	sb, root := newTestSandbox(t)
	tool := NewShellTool(sb, root, zap.NewNop())

	result, err := tool.Execute(context.Background(), map[string]interface{}{})
	require.Error(t, err)
	require.False(t, result.Success)
}

func TestReadFileTool_Execute(t *testing.T) {
	sb, root := newTestSandbox(t)
	require.NoError(t, os.WriteFile(filepath.Join(root, "greeting.txt"), []byte("line one\nline two\n"), 0o644))
	tool := NewReadFileTool(sb, root, zap.NewNop())

	result, err := tool.Execute(context.Background(), map[string]interface{}{"path": "greeting.txt"})
	require.NoError(t, err)
	require.True(t, result.Success)
	require.Equal(t, "line one\nline two\n", result.Output)
}

func TestReadFileTool_LineRange(t *testing.T) {
	sb, root := newTestSandbox(t)
	require.NoError(t, os.WriteFile(filepath.Join(root, "lines.txt"), []byte("a\nb\nc\nd\n"), 0o644))
	tool := NewReadFileTool(sb, root, zap.NewNop())

	result, err := tool.Execute(context.Background(), map[string]interface{}{
		"path":       "lines.txt",
		"start_line": float64(2),
		"end_line":   float64(3),
	})
	require.NoError(t, err)
	require.True(t, result.Success)
	require.Equal(t, "b\nc\n", result.Output)
}

func TestReadFileTool_RejectsPathEscape(t *testing.T) {
	sb, root := newTestSandbox(t)
	tool := NewReadFileTool(sb, root, zap.NewNop())

	result, err := tool.Execute(context.Background(), map[string]interface{}{"path": "../../etc/passwd"})
	require.NoError(t, err)
	require.False(t, result.Success)
	require.NotEmpty(t, result.Error)
}

func TestWriteFileTool_Execute(t *testing.T) {
	sb, root := newTestSandbox(t)
	tool := NewWriteFileTool(sb, root, zap.NewNop())

	result, err := tool.Execute(context.Background(), map[string]interface{}{
		"path":    "out.txt",
		"content": "hello world",
	})
	require.NoError(t, err)
	require.True(t, result.Success)

	content, err := os.ReadFile(filepath.Join(root, "out.txt"))
	require.NoError(t, err)
	require.Equal(t, "hello world", string(content))
}

func TestWriteFileTool_RejectsPathEscape(t *testing.T) {
	sb, root := newTestSandbox(t)
	tool := NewWriteFileTool(sb, root, zap.NewNop())

	result, err := tool.Execute(context.Background(), map[string]interface{}{
		"path":    "../escape.txt",
		"content": "nope",
	})
	require.NoError(t, err)
	require.False(t, result.Success)
	_, statErr := os.Stat(filepath.Join(filepath.Dir(root), "escape.txt"))
	require.True(t, os.IsNotExist(statErr))
}

func TestListDirTool_Execute(t *testing.T) {
	sb, root := newTestSandbox(t)
	require.NoError(t, os.WriteFile(filepath.Join(root, "a.txt"), []byte("x"), 0o644))
	require.NoError(t, os.Mkdir(filepath.Join(root, "sub"), 0o755))
	tool := NewListDirTool(sb, root, zap.NewNop())

	result, err := tool.Execute(context.Background(), map[string]interface{}{"path": "."})
	require.NoError(t, err)
	require.True(t, result.Success)
	require.Contains(t, result.Output, "a.txt")
	require.Contains(t, result.Output, "sub")
}

func TestListDirTool_Recursive(t *testing.T) {
	sb, root := newTestSandbox(t)
	require.NoError(t, os.Mkdir(filepath.Join(root, "sub"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(root, "sub", "nested.txt"), []byte("x"), 0o644))
	tool := NewListDirTool(sb, root, zap.NewNop())

	result, err := tool.Execute(context.Background(), map[string]interface{}{"path": ".", "recursive": true})
	require.NoError(t, err)
	require.True(t, result.Success)
	require.Contains(t, result.Output, "nested.txt")
}

func TestContentSearchTool_Execute(t *testing.T) {
	sb, root := newTestSandbox(t)
	require.NoError(t, os.WriteFile(filepath.Join(root, "app.log"), []byte("INFO start\nERROR boom\nINFO stop\n"), 0o644))
	tool := NewContentSearchTool(sb, root, zap.NewNop())

	result, err := tool.Execute(context.Background(), map[string]interface{}{
		"pattern": "ERROR",
		"path":    "app.log",
	})
	require.NoError(t, err)
	require.True(t, result.Success)
	require.Contains(t, result.Output, "ERROR boom")

	matches, files := funnel.CountMatches(result.Output)
	require.Equal(t, 1, matches)
	require.Equal(t, 1, files)
}

func TestContentSearchTool_NoMatches(t *testing.T) {
	sb, root := newTestSandbox(t)
	require.NoError(t, os.WriteFile(filepath.Join(root, "app.log"), []byte("INFO start\n"), 0o644))
	tool := NewContentSearchTool(sb, root, zap.NewNop())

	result, err := tool.Execute(context.Background(), map[string]interface{}{
		"pattern": "ERROR",
		"path":    "app.log",
	})
	require.NoError(t, err)
	require.True(t, result.Success)
	require.Equal(t, "No matches found", result.Output)

	matches, files := funnel.CountMatches(result.Output)
	require.Equal(t, 0, matches)
	require.Equal(t, 0, files)
}

func TestContentSearchTool_RecursiveAcrossFiles(t *testing.T) {
	sb, root := newTestSandbox(t)
	require.NoError(t, os.Mkdir(filepath.Join(root, "sub"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(root, "a.log"), []byte("ERROR one\n"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(root, "sub", "b.log"), []byte("ERROR two\nERROR three\n"), 0o644))
	tool := NewContentSearchTool(sb, root, zap.NewNop())

	result, err := tool.Execute(context.Background(), map[string]interface{}{
		"pattern":   "ERROR",
		"path":      ".",
		"recursive": true,
	})
	require.NoError(t, err)
	require.True(t, result.Success)

	matches, files := funnel.CountMatches(result.Output)
	require.Equal(t, 3, matches)
	require.Equal(t, 2, files)
}

func TestFindFilesTool_Execute(t *testing.T) {
	sb, root := newTestSandbox(t)
	require.NoError(t, os.WriteFile(filepath.Join(root, "one.go"), []byte("package x"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(root, "two.go"), []byte("package x"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(root, "three.txt"), []byte("not go"), 0o644))
	tool := NewFindFilesTool(sb, root, zap.NewNop())

	result, err := tool.Execute(context.Background(), map[string]interface{}{
		"pattern": "*.go",
		"path":    ".",
	})
	require.NoError(t, err)
	require.True(t, result.Success)
	require.Contains(t, result.Output, "one.go")
	require.Contains(t, result.Output, "two.go")
	require.NotContains(t, result.Output, "three.txt")

	matches, files := funnel.CountMatches(result.Output)
	require.Equal(t, 2, matches)
	require.Equal(t, 2, files)
}

func TestFindFilesTool_NoMatches(t *testing.T) {
	sb, root := newTestSandbox(t)
	tool := NewFindFilesTool(sb, root, zap.NewNop())

	result, err := tool.Execute(context.Background(), map[string]interface{}{
		"pattern": "*.nonexistent",
		"path":    ".",
	})
	require.NoError(t, err)
	require.True(t, result.Success)
	require.Equal(t, "No files found", result.Output)
}

func TestFindFilesTool_RejectsPathEscape(t *testing.T) {
	sb, root := newTestSandbox(t)
	tool := NewFindFilesTool(sb, root, zap.NewNop())

	result, err := tool.Execute(context.Background(), map[string]interface{}{
		"pattern": "*",
		"path":    "../../",
	})
	require.NoError(t, err)
	require.False(t, result.Success)
}
