package tool

import (
	domaintool "github.com/reactorctl/reactor/internal/domain/tool"
	"github.com/reactorctl/reactor/internal/infrastructure/sandbox"
	"go.uber.org/zap"
)

// RegisterDeps aggregates the dependencies the built-in tool set needs.
type RegisterDeps struct {
	Registry  domaintool.Registry
	Logger    *zap.Logger
	Sandbox   *sandbox.ProcessSandbox
	Workspace string // workspace root every tool confines paths to
}

// RegisterBuiltinTools registers the minimal tool set the Agent
// Controller needs to drive a goal to completion: shell execution plus
// the file/search primitives named in spec.md's canonical intent
// vocabulary (read_file, write_file, list_files, search_codebase). This
// is the only tool-registration entry point in the module.
func RegisterBuiltinTools(deps RegisterDeps) int {
	tools := []domaintool.Tool{
		NewShellTool(deps.Sandbox, deps.Workspace, deps.Logger),
		NewReadFileTool(deps.Sandbox, deps.Workspace, deps.Logger),
		NewWriteFileTool(deps.Sandbox, deps.Workspace, deps.Logger),
		NewListDirTool(deps.Sandbox, deps.Workspace, deps.Logger),
		NewContentSearchTool(deps.Sandbox, deps.Workspace, deps.Logger),
		NewFindFilesTool(deps.Sandbox, deps.Workspace, deps.Logger),
	}

	registered := 0
	for _, t := range tools {
		if err := deps.Registry.Register(t); err != nil {
			deps.Logger.Warn("failed to register tool", zap.String("tool", t.Name()), zap.Error(err))
			continue
		}
		deps.Logger.Info("registered tool", zap.String("tool", t.Name()))
		registered++
	}

	deps.Logger.Info("tool layer initialized", zap.Int("total_registered", registered))
	return registered
}
