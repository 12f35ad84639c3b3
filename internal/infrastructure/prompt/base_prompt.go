package prompt

import (
	"fmt"
	"os"
	"os/exec"
	"runtime"
	"time"
)

// RuntimeBlockOptions holds the facts that go into the prompt's runtime
// environment section.
type RuntimeBlockOptions struct {
	ModelName string // current model identifier
	Workspace string // workspace root the run is confined to
}

// BuildRuntimeBlock renders the runtime environment section of the system
// prompt: purely factual (OS, time, model, workspace), no behavioral
// directives — those live in the fixed ReAct instructions the Builder
// assembles around this block.
func BuildRuntimeBlock(opts RuntimeBlockOptions) string {
	hostname, _ := os.Hostname()
	user := os.Getenv("USER")
	if user == "" {
		user = "unknown"
	}
	homeDir, _ := os.UserHomeDir()
	now := time.Now().Format("2006-01-02 15:04:05 MST")

	modelInfo := "unknown"
	if opts.ModelName != "" {
		modelInfo = opts.ModelName
	}

	workspace := homeDir
	if opts.Workspace != "" {
		workspace = opts.Workspace
	}

	pythonInfo := "not available"
	if p := os.Getenv("REACTOR_PYTHON"); p != "" {
		pythonInfo = p
	} else if _, err := exec.LookPath("python3"); err == nil {
		pythonInfo = "python3"
	}

	return fmt.Sprintf(`## Runtime environment

- OS: %s/%s | Host: %s
- User: %s | HOME: %s
- Time: %s
- Model: %s
- Shell: bash | Python: %s

## Workspace

Working directory: %s
All file and shell operations are confined to this directory; paths are
canonicalized and boundary-checked before every operation.`,
		runtime.GOOS, runtime.GOARCH, hostname,
		user, homeDir, now,
		modelInfo,
		pythonInfo,
		workspace)
}
