package fallback

import (
	"context"
	"fmt"
	"time"

	"github.com/msageha/vibe/internal/agent"
	"github.com/msageha/vibe/internal/input"
	"github.com/msageha/vibe/internal/logging"
)

// Invoker runs one agent. agent.Executor is the production implementation.
type Invoker interface {
	Invoke(ctx context.Context, req agent.Request) agent.Invocation
}

// Recorder persists attempt logs and output artifacts.
type Recorder interface {
	WriteAttemptLog(agentName string, file input.File, inv agent.Invocation) (string, error)
	WriteOutput(file input.File, stdout string) (string, error)
}

// Status is the per-file result of Dispatch.
type Status int

const (
	StatusSucceeded Status = iota
	StatusFatal
	StatusExhausted
)

func (s Status) String() string {
	switch s {
	case StatusSucceeded:
		return "succeeded"
	case StatusFatal:
		return "fatal"
	case StatusExhausted:
		return "exhausted"
	default:
		return "unknown"
	}
}

// Attempt records one failed invocation for error reporting.
type Attempt struct {
	Agent       string
	LogPath     string
	ExitCode    int
	RateLimited bool
	Duration    time.Duration
}

// Job is one rendered task for one input file.
type Job struct {
	File       input.File
	Prompt     string
	PromptPath string
}

// Result is the outcome of dispatching a Job.
type Result struct {
	Status     Status
	Agent      string // agent that succeeded or failed fatally
	ExitCode   int
	LogPath    string // log of the deciding attempt
	OutputPath string
	Attempts   []Attempt
}

// LastAttempt returns the most recent failed attempt, if any.
func (r Result) LastAttempt() (Attempt, bool) {
	if len(r.Attempts) == 0 {
		return Attempt{}, false
	}
	return r.Attempts[len(r.Attempts)-1], true
}

// EventKind labels a controller notification.
type EventKind string

const (
	EventAttemptStart EventKind = "attempt_start"
	EventRateLimited  EventKind = "rate_limited"
	EventSucceeded    EventKind = "succeeded"
	EventFatal        EventKind = "fatal"
	EventExhausted    EventKind = "exhausted"
)

// Event is emitted to the Notify hook as dispatch progresses.
type Event struct {
	Kind     EventKind
	Agent    string
	File     input.File
	ExitCode int
	LogPath  string
	Path     string // output artifact on success
}

// Controller owns the agent queue for a whole run.
type Controller struct {
	queue      *Queue
	invokers   map[string]Invoker
	classifier Classifier
	recorder   Recorder
	prefix     []string
	logger     *logging.Logger

	// Notify, when set, receives every Event synchronously.
	Notify func(Event)
}

// Options configures a Controller.
type Options struct {
	Queue      *Queue
	Invokers   map[string]Invoker
	Classifier Classifier
	Recorder   Recorder
	Prefix     []string
	Logger     *logging.Logger
}

// NewController checks that every queued agent has an invoker.
func NewController(opts Options) (*Controller, error) {
	if opts.Queue == nil {
		return nil, ErrEmptyQueue
	}
	if opts.Recorder == nil {
		return nil, fmt.Errorf("recorder is required")
	}
	for _, name := range opts.Queue.Names() {
		if _, ok := opts.Invokers[name]; !ok {
			return nil, fmt.Errorf("no invoker for agent %q", name)
		}
	}
	logger := opts.Logger
	if logger == nil {
		logger = logging.Discard()
	}
	return &Controller{
		queue:      opts.Queue,
		invokers:   opts.Invokers,
		classifier: opts.Classifier,
		recorder:   opts.Recorder,
		prefix:     opts.Prefix,
		logger:     logger.With("fallback"),
	}, nil
}

// Queue returns the current rotation order.
func (c *Controller) Queue() []string { return c.queue.Names() }

// Dispatch tries agents from the front of the queue until one succeeds, one
// fails without a rate-limit signature, or every agent has been rate-limited
// once for this file. A returned error means logs or output could not be
// written, or ctx was cancelled.
func (c *Controller) Dispatch(ctx context.Context, job Job) (Result, error) {
	var res Result
	req := agent.Request{Prompt: job.Prompt, PromptPath: job.PromptPath, Prefix: c.prefix}

	for tries := c.queue.Len(); tries > 0; tries-- {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		name := c.queue.Front()
		c.emit(Event{Kind: EventAttemptStart, Agent: name, File: job.File})
		c.logger.Infof("attempt_start agent=%s file=%s", name, job.File.Name)

		inv := c.invokers[name].Invoke(ctx, req)

		logPath, err := c.recorder.WriteAttemptLog(name, job.File, inv)
		if err != nil {
			return res, fmt.Errorf("write attempt log for %s: %w", name, err)
		}
		if err := ctx.Err(); err != nil {
			return res, err
		}

		o := Outcome{ExitCode: inv.ExitCode}
		if inv.ExitCode != 0 {
			o.RateLimited = c.classifier.RateLimited(inv.Stdout, inv.Stderr)
		}
		action := c.queue.Apply(o)
		c.logger.Debugf("transition agent=%s exit=%d rate_limited=%v action=%s queue=%v",
			name, inv.ExitCode, o.RateLimited, action, c.queue.Names())

		switch action {
		case ActionSucceed:
			outPath, err := c.recorder.WriteOutput(job.File, inv.Stdout)
			if err != nil {
				return res, fmt.Errorf("write output for %s: %w", job.File.Name, err)
			}
			res.Status = StatusSucceeded
			res.Agent = name
			res.LogPath = logPath
			res.OutputPath = outPath
			c.emit(Event{Kind: EventSucceeded, Agent: name, File: job.File, LogPath: logPath, Path: outPath})
			c.logger.Infof("succeeded agent=%s file=%s output=%s", name, job.File.Name, outPath)
			return res, nil

		case ActionRotate:
			res.Attempts = append(res.Attempts, Attempt{
				Agent: name, LogPath: logPath, ExitCode: inv.ExitCode, RateLimited: true, Duration: inv.Duration,
			})
			c.emit(Event{Kind: EventRateLimited, Agent: name, File: job.File, ExitCode: inv.ExitCode, LogPath: logPath})
			c.logger.Warnf("rate_limited agent=%s file=%s exit=%d", name, job.File.Name, inv.ExitCode)

		default:
			res.Attempts = append(res.Attempts, Attempt{
				Agent: name, LogPath: logPath, ExitCode: inv.ExitCode, Duration: inv.Duration,
			})
			res.Status = StatusFatal
			res.Agent = name
			res.ExitCode = inv.ExitCode
			res.LogPath = logPath
			c.emit(Event{Kind: EventFatal, Agent: name, File: job.File, ExitCode: inv.ExitCode, LogPath: logPath})
			c.logger.Errorf("fatal agent=%s file=%s exit=%d", name, job.File.Name, inv.ExitCode)
			return res, nil
		}
	}

	res.Status = StatusExhausted
	if last, ok := res.LastAttempt(); ok {
		res.Agent = last.Agent
		res.ExitCode = last.ExitCode
		res.LogPath = last.LogPath
	}
	c.emit(Event{Kind: EventExhausted, Agent: res.Agent, File: job.File, ExitCode: res.ExitCode, LogPath: res.LogPath})
	c.logger.Errorf("exhausted file=%s attempts=%d", job.File.Name, len(res.Attempts))
	return res, nil
}

func (c *Controller) emit(ev Event) {
	if c.Notify != nil {
		c.Notify(ev)
	}
}
