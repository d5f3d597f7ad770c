// Package tool provides concrete tool.Tool implementations the gateway
// registers into an actor's ContextManager: a sandboxed shell tool and the
// canonical ema_reply tool (spec §4.1, §6).
package tool

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/Reynold-degenracy/EverMemoryArchive/internal/core/message"
	coretool "github.com/Reynold-degenracy/EverMemoryArchive/internal/core/tool"
	"github.com/Reynold-degenracy/EverMemoryArchive/internal/infrastructure/sandbox"
)

// ShellTool executes shell commands inside a sandbox.ProcessSandbox.
type ShellTool struct {
	sandbox *sandbox.ProcessSandbox
	logger  *zap.Logger
}

// NewShellTool builds a ShellTool over an already-configured sandbox.
func NewShellTool(sb *sandbox.ProcessSandbox, logger *zap.Logger) *ShellTool {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ShellTool{sandbox: sb, logger: logger}
}

var _ coretool.Tool = (*ShellTool)(nil)

func (t *ShellTool) Name() string { return "shell" }

func (t *ShellTool) Description() string {
	return "Execute a shell command in a sandboxed working directory. " +
		"Commands have a 30-second timeout; a command that runs longer is killed and the call fails with a timeout error."
}

func (t *ShellTool) Parameters() coretool.Parameters {
	return coretool.Parameters{
		Properties: []coretool.Property{
			{Name: "command", Schema: map[string]any{"type": "string", "description": "the shell command to run"}},
			{Name: "work_dir", Schema: map[string]any{"type": "string", "description": "optional working directory"}},
		},
		Required: []string{"command"},
	}
}

func (t *ShellTool) Execute(ctx context.Context, args map[string]any) (message.ToolResult, error) {
	command, _ := args["command"].(string)
	if command == "" {
		return message.ToolResult{Success: false, Error: "command is required"}, nil
	}

	if workDir, ok := args["work_dir"].(string); ok && workDir != "" {
		if err := t.sandbox.SetWorkDir(workDir); err != nil {
			return message.ToolResult{Success: false, Error: err.Error()}, nil
		}
	}

	t.logger.Info("executing shell command", zap.String("command", command))

	result, err := t.sandbox.ExecuteShell(ctx, command)
	if err != nil {
		return message.ToolResult{Success: false, Error: err.Error()}, nil
	}

	output := result.Stdout
	if result.Stderr != "" {
		output += "\n[stderr]\n" + result.Stderr
	}
	if result.ExitCode != 0 {
		return message.ToolResult{
			Success: false,
			Error:   fmt.Sprintf("exit code %d\n%s", result.ExitCode, output),
		}, nil
	}

	return message.ToolResult{Success: true, Content: output}, nil
}
