// Package agent builds agent command lines and runs them synchronously.
package agent

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"syscall"
	"time"

	"github.com/msageha/vibe/internal/logging"
	"github.com/msageha/vibe/internal/model"
)

// Tokens expanded inside descriptor args.
const (
	TokenPrompt     = "{prompt}"
	TokenPromptFile = "{prompt_file}"
	TokenAgent      = "{agent}"
)

// exitNotStarted is reported when the agent binary could not be started.
const exitNotStarted = 127

// Descriptor is one agent kind: its name, binary and argument template.
type Descriptor struct {
	Name    string
	Command string
	Args    []string
}

// FromConfig builds descriptors for the given names from the configured agent table.
func FromConfig(cfg model.Config, names []string) (map[string]Descriptor, error) {
	out := make(map[string]Descriptor, len(names))
	for _, name := range names {
		ac, ok := cfg.Agents[name]
		if !ok {
			return nil, fmt.Errorf("%w: %q", model.ErrUnknownAgent, name)
		}
		out[name] = Descriptor{Name: name, Command: ac.Command, Args: ac.Args}
	}
	return out, nil
}

// Request carries one rendered task to an agent.
type Request struct {
	Prompt     string   // rendered task text
	PromptPath string   // absolute path of the persisted prompt
	Prefix     []string // sandbox wrapper, may be empty
}

// Invocation is the captured outcome of one agent run. A non-zero ExitCode
// is a normal outcome, not an error.
type Invocation struct {
	Argv     []string
	ExitCode int
	Stdout   string
	Stderr   string
	Duration time.Duration
}

// Argv returns prefix + command + expanded args.
func (d Descriptor) Argv(req Request) []string {
	r := strings.NewReplacer(
		TokenPrompt, req.Prompt,
		TokenPromptFile, req.PromptPath,
		TokenAgent, d.Name,
	)
	argv := make([]string, 0, len(req.Prefix)+1+len(d.Args))
	argv = append(argv, req.Prefix...)
	argv = append(argv, d.Command)
	for _, a := range d.Args {
		argv = append(argv, r.Replace(a))
	}
	return argv
}

// Executor runs one descriptor.
type Executor struct {
	desc   Descriptor
	logger *logging.Logger
}

// NewExecutor returns an Executor for desc. A nil logger discards output.
func NewExecutor(desc Descriptor, logger *logging.Logger) *Executor {
	if logger == nil {
		logger = logging.Discard()
	}
	return &Executor{desc: desc, logger: logger.With("agent_executor")}
}

func (e *Executor) Name() string { return e.desc.Name }

// Invoke runs the agent to completion. There is no timeout; only ctx
// cancellation stops a running agent.
func (e *Executor) Invoke(ctx context.Context, req Request) Invocation {
	argv := e.desc.Argv(req)
	inv := Invocation{Argv: argv}

	e.logger.Debugf("exec_start agent=%s argc=%d", e.desc.Name, len(argv))
	start := time.Now()

	cmd := exec.CommandContext(ctx, argv[0], argv[1:]...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	inv.Duration = time.Since(start)
	inv.Stdout = stdout.String()
	inv.Stderr = stderr.String()
	inv.ExitCode = exitCode(cmd, err)

	if err != nil && cmd.ProcessState == nil {
		// never started: surface the reason where the attempt log will show it
		if inv.Stderr != "" && !strings.HasSuffix(inv.Stderr, "\n") {
			inv.Stderr += "\n"
		}
		inv.Stderr += err.Error() + "\n"
		e.logger.Errorf("exec_start_failed agent=%s error=%v", e.desc.Name, err)
	}

	e.logger.Debugf("exec_end agent=%s exit=%d duration=%s", e.desc.Name, inv.ExitCode, inv.Duration.Round(time.Millisecond))
	return inv
}

func exitCode(cmd *exec.Cmd, err error) int {
	if cmd != nil && cmd.ProcessState != nil {
		code := cmd.ProcessState.ExitCode()
		if code == -1 {
			// killed by a signal: report it the way a shell would
			if ws, ok := cmd.ProcessState.Sys().(syscall.WaitStatus); ok && ws.Signaled() {
				return 128 + int(ws.Signal())
			}
			return 1
		}
		return code
	}
	var exitErr *exec.ExitError
	if err != nil && errors.As(err, &exitErr) {
		return exitErr.ExitCode()
	}
	if err != nil {
		return exitNotStarted
	}
	return 0
}
