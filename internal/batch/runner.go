// Package batch drives the fallback controller over a list of input files.
package batch

import (
	"context"
	"errors"
	"fmt"

	"github.com/msageha/vibe/internal/console"
	"github.com/msageha/vibe/internal/events"
	"github.com/msageha/vibe/internal/fallback"
	"github.com/msageha/vibe/internal/input"
	"github.com/msageha/vibe/internal/logging"
	"github.com/msageha/vibe/internal/model"
	"github.com/msageha/vibe/internal/record"
	"github.com/msageha/vibe/internal/task"
)

// ExitError ends a run with a specific process exit code. The failure has
// already been reported on the console when it is returned.
type ExitError struct {
	Code int
	Err  error
}

func (e *ExitError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("exit %d", e.Code)
	}
	return e.Err.Error()
}

func (e *ExitError) Unwrap() error { return e.Err }

// ExitCode maps err to a process exit code.
func ExitCode(err error) int {
	if err == nil {
		return model.ExitOK
	}
	var ee *ExitError
	if errors.As(err, &ee) {
		return ee.Code
	}
	return 1
}

// Summary counts files by outcome. Skipped files count as succeeded.
type Summary struct {
	Succeeded int
	Failed    int
}

// FileResult is the outcome for one input file.
type FileResult struct {
	File     input.File
	Skipped  bool
	Dispatch fallback.Result
}

type Options struct {
	Template   *task.Template
	Writer     *record.Writer
	Controller *fallback.Controller
	Reporter   *console.Reporter
	Journal    *events.Journal
	Logger     *logging.Logger
	ForceRerun bool
	SampleRun  bool
}

type Runner struct {
	tmpl       *task.Template
	writer     *record.Writer
	ctrl       *fallback.Controller
	reporter   *console.Reporter
	journal    *events.Journal
	logger     *logging.Logger
	forceRerun bool
	sampleRun  bool
	summary    Summary
	started    bool
}

func New(opts Options) *Runner {
	logger := opts.Logger
	if logger == nil {
		logger = logging.Discard()
	}
	r := &Runner{
		tmpl:       opts.Template,
		writer:     opts.Writer,
		ctrl:       opts.Controller,
		reporter:   opts.Reporter,
		journal:    opts.Journal,
		logger:     logger.With("batch"),
		forceRerun: opts.ForceRerun,
		sampleRun:  opts.SampleRun,
	}
	r.ctrl.Notify = r.onEvent
	return r
}

func (r *Runner) Summary() Summary { return r.summary }

// Run processes files in order, stopping on the first fatal or exhausted file
// or after one file in sample mode, then prints the summary.
func (r *Runner) Run(ctx context.Context, files []input.File) error {
	err := r.ProcessAll(ctx, files)
	r.Finish()
	return err
}

// ProcessAll is Run without the closing summary.
func (r *Runner) ProcessAll(ctx context.Context, files []input.File) error {
	r.begin(len(files))
	for _, f := range files {
		if _, err := r.Process(ctx, f); err != nil {
			return err
		}
		if r.sampleRun {
			r.logger.Infof("sample_run stop after=%s", f.Name)
			break
		}
	}
	return nil
}

func (r *Runner) begin(n int) {
	if r.started {
		return
	}
	r.started = true
	r.record(events.TypeRunStart, "", "", map[string]any{
		"files":  n,
		"agents": r.ctrl.Queue(),
	})
}

// Finish prints the summary and closes the journal entry for the run.
func (r *Runner) Finish() {
	r.reporter.Summary(r.summary.Succeeded, r.summary.Failed)
	r.record(events.TypeRunEnd, "", "", map[string]any{
		"succeeded": r.summary.Succeeded,
		"failed":    r.summary.Failed,
	})
}

// Process handles one file: skip when its output exists, otherwise render and
// persist the prompt and dispatch it. Any returned error ends the run.
func (r *Runner) Process(ctx context.Context, f input.File) (FileResult, error) {
	res := FileResult{File: f}
	if err := ctx.Err(); err != nil {
		return res, r.interrupted(err)
	}

	if !r.forceRerun && r.writer.HasOutput(f) {
		res.Skipped = true
		r.summary.Succeeded++
		r.reporter.Skipping(f.Rel)
		r.record(events.TypeFileSkipped, f.Name, "", nil)
		r.logger.Debugf("skip file=%s output=%s", f.Name, r.writer.OutputPath(f))
		return res, nil
	}

	prompt := r.tmpl.Render(f.Name, f.Rel)
	promptPath, err := r.writer.WritePrompt(f, prompt)
	if err != nil {
		r.summary.Failed++
		r.reporter.Errorf("%v", err)
		return res, &ExitError{Code: 1, Err: err}
	}

	dres, err := r.ctrl.Dispatch(ctx, fallback.Job{File: f, Prompt: prompt, PromptPath: promptPath})
	res.Dispatch = dres
	if err != nil {
		if ctx.Err() != nil {
			return res, r.interrupted(ctx.Err())
		}
		r.summary.Failed++
		r.reporter.Errorf("%v", err)
		return res, &ExitError{Code: 1, Err: err}
	}

	switch dres.Status {
	case fallback.StatusSucceeded:
		r.summary.Succeeded++
		return res, nil

	case fallback.StatusFatal:
		r.summary.Failed++
		r.reporter.Fatal(dres.Agent, f.Name, dres.ExitCode, dres.LogPath)
		return res, &ExitError{
			Code: dres.ExitCode,
			Err:  fmt.Errorf("agent %q failed for %q (exit %d)", dres.Agent, f.Name, dres.ExitCode),
		}

	default:
		r.summary.Failed++
		agentName, logPath := "unknown", "unknown"
		if last, ok := dres.LastAttempt(); ok {
			agentName, logPath = last.Agent, last.LogPath
		}
		r.reporter.Exhausted(f.Name, agentName, logPath)
		return res, &ExitError{
			Code: model.ExitRateLimited,
			Err:  fmt.Errorf("all agents rate limited for %q", f.Name),
		}
	}
}

func (r *Runner) interrupted(cause error) error {
	r.reporter.Errorf("interrupted")
	return &ExitError{Code: model.ExitInterrupted, Err: cause}
}

func (r *Runner) onEvent(ev fallback.Event) {
	switch ev.Kind {
	case fallback.EventAttemptStart:
		r.reporter.Trying(ev.Agent, ev.File.Rel)
		r.record(events.TypeAttempt, ev.File.Name, ev.Agent, nil)
	case fallback.EventRateLimited:
		r.reporter.RateLimited(ev.Agent, ev.File.Rel, ev.LogPath)
		r.record(events.TypeRateLimited, ev.File.Name, ev.Agent, map[string]any{
			"exit_code": ev.ExitCode, "log": ev.LogPath,
		})
	case fallback.EventSucceeded:
		r.reporter.Succeeded(ev.Agent, ev.File.Rel, ev.Path)
		r.record(events.TypeSucceeded, ev.File.Name, ev.Agent, map[string]any{
			"log": ev.LogPath, "output": ev.Path,
		})
	case fallback.EventFatal:
		r.record(events.TypeFatal, ev.File.Name, ev.Agent, map[string]any{
			"exit_code": ev.ExitCode, "log": ev.LogPath,
		})
	case fallback.EventExhausted:
		r.record(events.TypeExhausted, ev.File.Name, ev.Agent, map[string]any{
			"log": ev.LogPath,
		})
	}
}

func (r *Runner) record(eventType, file, agentName string, details map[string]any) {
	if err := r.journal.Record(eventType, file, agentName, details); err != nil {
		r.logger.Warnf("journal_write_failed event=%s error=%v", eventType, err)
	}
}
