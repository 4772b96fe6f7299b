package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/msageha/vibe/internal/agent"
	"github.com/msageha/vibe/internal/batch"
	"github.com/msageha/vibe/internal/console"
	"github.com/msageha/vibe/internal/events"
	"github.com/msageha/vibe/internal/fallback"
	"github.com/msageha/vibe/internal/input"
	"github.com/msageha/vibe/internal/lock"
	"github.com/msageha/vibe/internal/logging"
	"github.com/msageha/vibe/internal/model"
	"github.com/msageha/vibe/internal/record"
	"github.com/msageha/vibe/internal/sandbox"
	"github.com/msageha/vibe/internal/task"
	"github.com/msageha/vibe/internal/watch"
)

const version = "1.0.0"

type options struct {
	input      string
	task       string
	outputDir  string
	agents     string
	agentsSet  bool
	configPath string
	logLevel   string
	sampleRun  bool
	forceRerun bool
	bwrap      bool
	watch      bool
	help       bool
	version    bool
}

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, stdout, stderr io.Writer) int {
	opts, err := parseArgs(args)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n\n", err)
		printUsage(stderr)
		return model.ExitConfig
	}
	if opts.help {
		printUsage(stdout)
		return model.ExitOK
	}
	if opts.version {
		fmt.Fprintf(stdout, "vibe %s\n", version)
		return model.ExitOK
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return execute(ctx, opts, stdout, stderr)
}

func parseArgs(args []string) (options, error) {
	opts := options{
		input:     "input",
		task:      "TASK.md",
		outputDir: "output",
	}
	inputSet := false

	for i := 0; i < len(args); i++ {
		arg := args[i]
		if !strings.HasPrefix(arg, "--") || arg == "--" {
			if arg == "-h" {
				opts.help = true
				continue
			}
			if arg == "--" || (strings.HasPrefix(arg, "-") && arg != "-") {
				return opts, fmt.Errorf("unknown flag: %s", arg)
			}
			if inputSet {
				return opts, fmt.Errorf("unexpected argument: %s", arg)
			}
			opts.input = arg
			inputSet = true
			continue
		}

		name, inline, hasInline := strings.Cut(arg, "=")
		value := func() (string, error) {
			if hasInline {
				return inline, nil
			}
			if i+1 >= len(args) {
				return "", fmt.Errorf("%s requires a value", name)
			}
			i++
			return args[i], nil
		}
		flag := func(dst *bool) error {
			if hasInline {
				return fmt.Errorf("%s does not take a value", name)
			}
			*dst = true
			return nil
		}

		var err error
		switch name {
		case "--task", "--prompt", "--prompts":
			opts.task, err = value()
		case "--output-dir":
			opts.outputDir, err = value()
		case "--agents":
			opts.agents, err = value()
			opts.agentsSet = true
		case "--config":
			opts.configPath, err = value()
		case "--log-level":
			opts.logLevel, err = value()
		case "--sample-run":
			err = flag(&opts.sampleRun)
		case "--force-rerun":
			err = flag(&opts.forceRerun)
		case "--bwrap":
			err = flag(&opts.bwrap)
		case "--watch":
			err = flag(&opts.watch)
		case "--help":
			err = flag(&opts.help)
		case "--version":
			err = flag(&opts.version)
		default:
			return opts, fmt.Errorf("unknown flag: %s", name)
		}
		if err != nil {
			return opts, err
		}
	}

	if opts.task == "" {
		return opts, errors.New("--task must not be empty")
	}
	if opts.outputDir == "" {
		return opts, errors.New("--output-dir must not be empty")
	}
	if opts.input == "" {
		return opts, errors.New("input path must not be empty")
	}
	return opts, nil
}

func loadConfig(path string) (model.Config, error) {
	if path != "" {
		return model.LoadConfig(path)
	}
	return model.LoadConfigOrDefault(model.DefaultConfigFile)
}

// execute validates the configuration, then runs the batch (and watch loop).
// Every configuration check happens before the output directory is touched.
func execute(ctx context.Context, opts options, stdout, stderr io.Writer) int {
	reporter := console.New(stdout, stderr)

	tmpl, err := task.Load(opts.task)
	if err != nil {
		reporter.Errorf("%v", err)
		return model.ExitConfig
	}

	cfg, err := loadConfig(opts.configPath)
	if err != nil {
		reporter.Errorf("load config: %v", err)
		return model.ExitConfig
	}

	level := cfg.Logging.Level
	if opts.logLevel != "" {
		level = opts.logLevel
	}
	if _, err := logging.LookupLevel(level); err != nil {
		reporter.Errorf("%v", err)
		return model.ExitConfig
	}
	logger := logging.New(stderr, level, "vibe")

	order := model.DefaultAgentOrder
	if opts.agentsSet {
		order = model.SplitList(opts.agents)
	}
	names, err := cfg.ResolveAgents(order)
	if err != nil {
		reporter.Errorf("%v", err)
		return model.ExitConfig
	}
	if len(names) == 0 {
		reporter.Errorf("no agents given")
		return model.ExitConfig
	}

	sb := sandbox.Builder{
		Enabled:       opts.bwrap,
		Tool:          cfg.Sandbox.Tool,
		ReadOnlyPaths: append(append([]string(nil), cfg.Sandbox.ReadOnlyPaths...), cfg.Sandbox.ExtraROPaths...),
		ShareNetwork:  *cfg.Sandbox.ShareNetwork,
	}
	if _, err := sb.Check(); err != nil {
		reporter.Errorf("%v", err)
		return model.ExitConfig
	}

	files, err := input.List(opts.input, opts.bwrap)
	if err != nil {
		reporter.Errorf("%v", err)
		return model.ExitConfig
	}
	info, err := os.Stat(opts.input)
	if err != nil {
		reporter.Errorf("stat input path: %v", err)
		return model.ExitConfig
	}
	inputDir := opts.input
	if !info.IsDir() {
		inputDir = filepath.Dir(opts.input)
	}

	if opts.watch {
		if !info.IsDir() {
			reporter.Errorf("--watch requires a directory input, got %s", opts.input)
			return model.ExitConfig
		}
		if opts.sampleRun {
			reporter.Errorf("--watch cannot be combined with --sample-run")
			return model.ExitConfig
		}
	} else if len(files) == 0 {
		reporter.Errorf("no input files found in %s", opts.input)
		return model.ExitNoInput
	}

	if err := os.MkdirAll(opts.outputDir, 0755); err != nil {
		reporter.Errorf("create output directory: %v", err)
		return 1
	}
	fl := lock.NewFileLock(filepath.Join(opts.outputDir, lock.FileName))
	if err := fl.TryLock(); err != nil {
		reporter.Errorf("%v", err)
		return model.ExitConfig
	}
	defer fl.Unlock()

	writer := record.NewWriter(opts.outputDir, cfg.Output.Extension)
	if err := writer.Prepare(); err != nil {
		reporter.Errorf("%v", err)
		return 1
	}

	journal, err := events.Open(filepath.Join(writer.LogsDir(), events.FileName), events.DefaultMaxSize)
	if err != nil {
		reporter.Errorf("%v", err)
		return 1
	}
	defer journal.Close()

	prefix, err := sb.Prefix(inputDir, opts.outputDir)
	if err != nil {
		reporter.Errorf("%v", err)
		return 1
	}
	if len(prefix) > 0 {
		logger.Debugf("sandbox prefix=%v", prefix)
	}

	descs, err := agent.FromConfig(cfg, names)
	if err != nil {
		reporter.Errorf("%v", err)
		return model.ExitConfig
	}
	invokers := make(map[string]fallback.Invoker, len(descs))
	for name, d := range descs {
		invokers[name] = agent.NewExecutor(d, logger)
	}
	queue, err := fallback.NewQueue(names)
	if err != nil {
		reporter.Errorf("%v", err)
		return model.ExitConfig
	}
	ctrl, err := fallback.NewController(fallback.Options{
		Queue:      queue,
		Invokers:   invokers,
		Classifier: fallback.NewClassifier(cfg.RateLimit.Patterns),
		Recorder:   writer,
		Prefix:     prefix,
		Logger:     logger,
	})
	if err != nil {
		reporter.Errorf("%v", err)
		return model.ExitConfig
	}

	runner := batch.New(batch.Options{
		Template:   tmpl,
		Writer:     writer,
		Controller: ctrl,
		Reporter:   reporter,
		Journal:    journal,
		Logger:     logger,
		ForceRerun: opts.forceRerun,
		SampleRun:  opts.sampleRun,
	})
	logger.Infof("run_start files=%d agents=%v output=%s", len(files), names, opts.outputDir)

	if !opts.watch {
		return batch.ExitCode(runner.Run(ctx, files))
	}
	return runWatch(ctx, runner, reporter, logger, files, opts, cfg)
}

func runWatch(ctx context.Context, runner *batch.Runner, reporter *console.Reporter, logger *logging.Logger,
	files []input.File, opts options, cfg model.Config) int {
	if err := runner.ProcessAll(ctx, files); err != nil {
		runner.Finish()
		return batch.ExitCode(err)
	}

	outAbs, err := filepath.Abs(opts.outputDir)
	if err != nil {
		runner.Finish()
		reporter.Errorf("resolve output dir: %v", err)
		return 1
	}

	known := make([]string, len(files))
	for i, f := range files {
		known[i] = f.Path
	}

	reporter.Watching(opts.input)
	w := watch.New(watch.Options{
		Dir:       opts.input,
		Known:     known,
		Debounce:  time.Duration(cfg.Watch.DebounceMs) * time.Millisecond,
		Sandboxed: opts.bwrap,
		Logger:    logger,
		Process: func(ctx context.Context, f input.File) error {
			// artifacts written into a shared input/output directory are not inputs
			if filepath.Dir(f.Path) == outAbs {
				return nil
			}
			_, err := runner.Process(ctx, f)
			return err
		},
	})
	err = w.Run(ctx)
	runner.Finish()
	if err != nil {
		var ee *batch.ExitError
		if !errors.As(err, &ee) {
			reporter.Errorf("%v", err)
		}
		return batch.ExitCode(err)
	}
	return model.ExitOK
}

func printUsage(w io.Writer) {
	fmt.Fprintln(w, `Usage: vibe [input] [options]

Run the task template against every file in input (default: input), trying
agents in order and rotating to the next one when an agent is rate limited.

Options:
  --task, --prompt, --prompts FILE  task template (default: TASK.md)
  --output-dir DIR                  output directory (default: output)
  --agents a,b,c                    agent rotation order (default: claude,codex,gemini)
  --config FILE                     YAML config (default: vibe.yaml if present)
  --log-level LEVEL                 debug, info, warn or error (default: warn)
  --sample-run                      stop after the first file
  --force-rerun                     reprocess files whose output already exists
  --bwrap                           run agents inside a bubblewrap sandbox
  --watch                           keep processing files added to the input directory
  --version                         print the version
  --help                            show this help

Exit codes:
  0 success, 1 no input files, 2 configuration error,
  3 all agents rate limited, 130 interrupted,
  otherwise the exit code of the failing agent.`)
}
