// Package remote runs shell snippets on the device through the system ssh client.
package remote

import (
	"context"
	"strings"
	"time"
)

// Sentinel exit codes for failures that happen on this side of the connection.
const (
	ExitStartFailed = -1
	ExitTimeout     = -2
	ExitCanceled    = -3
	ExitUnexpected  = -9
)

// Result is the outcome of one remote command. Stdout and Stderr hold
// whatever the process wrote; on timeout or cancellation Stdout is empty and
// Stderr carries the local reason.
type Result struct {
	Success  bool          `json:"success"`
	ExitCode int           `json:"exit_code"`
	Stdout   string        `json:"stdout"`
	Stderr   string        `json:"stderr"`
	Duration time.Duration `json:"duration"`
}

// Runner executes remote commands. Implementations must be safe for concurrent use.
type Runner interface {
	Run(ctx context.Context, command string, timeout time.Duration) Result
	RunWithInput(ctx context.Context, command, stdin string, timeout time.Duration) Result
}

func failure(code int, reason string) Result {
	return Result{ExitCode: code, Stderr: reason}
}

// Quote wraps s in double quotes for interpolation into a remote shell
// snippet, escaping the characters the shell still interprets inside them.
func Quote(s string) string {
	return `"` + quoteReplacer.Replace(s) + `"`
}

var quoteReplacer = strings.NewReplacer(
	`\`, `\\`,
	`"`, `\"`,
	`$`, `\$`,
	"`", "\\`",
)
