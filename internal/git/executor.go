package git

import (
	"bytes"
	"os/exec"
	"strings"

	"streakkeeper/internal/errors"
)

// CommandExecutor runs a prepared command and returns its trimmed stdout.
type CommandExecutor interface {
	ExecuteWithOutput(cmd *exec.Cmd) (string, error)
}

// ExecExecutor delegates to os/exec.
type ExecExecutor struct{}

func NewExecExecutor() *ExecExecutor {
	return &ExecExecutor{}
}

// ExecuteWithOutput implements CommandExecutor.ExecuteWithOutput
func (e *ExecExecutor) ExecuteWithOutput(cmd *exec.Cmd) (string, error) {
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		var args []string
		if len(cmd.Args) > 1 {
			args = cmd.Args[1:]
		}
		operation := "git"
		if sub := subcommand(args); sub != "" {
			operation = sub
		}

		output := strings.TrimSpace(stderr.String())
		if output == "" {
			output = strings.TrimSpace(stdout.String())
		}
		return "", errors.NewGitError(operation, args, err, output)
	}

	return strings.TrimSpace(stdout.String()), nil
}

// subcommand skips leading "-C <dir>" style global options.
func subcommand(args []string) string {
	for i := 0; i < len(args); i++ {
		if args[i] == "-C" || args[i] == "-c" {
			i++
			continue
		}
		if strings.HasPrefix(args[i], "-") {
			continue
		}
		return args[i]
	}
	return ""
}
