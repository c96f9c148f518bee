// Package runner supervises a single engine execution: argument
// construction, spawn, incremental output streaming, wall-clock timeout and
// cleanup. The engine's behavior is opaque; the supervisor only interprets
// its exit code and relays its output.
package runner

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os/exec"
	"path/filepath"
	"regexp"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/fabrictools/rulescan/core/errors"
	"github.com/fabrictools/rulescan/internal/fileutil"
	"github.com/fabrictools/rulescan/internal/logging"
	"github.com/fabrictools/rulescan/internal/sink"
	"github.com/fabrictools/rulescan/internal/validation"
)

// DefaultTimeout is the wall-clock limit applied to an engine run when the
// request does not carry its own.
const DefaultTimeout = 5 * time.Minute

// TempRulePrefix names temporary single-rule files. A rules path matching
// the pattern is exempt from the existence check, since the supervisor may
// be asked to schedule a run against a file its caller is about to create.
const TempRulePrefix = "rulescan-rule-"

var tempRulePattern = regexp.MustCompile(`^rulescan-rule-.+\.json$`)

// maxCapturedLines caps the per-stream lines kept in the result.
const maxCapturedLines = 10000

// scannerBufferSize is the per-line limit for engine output.
const scannerBufferSize = 1024 * 1024

// Request describes one engine run.
type Request struct {
	// EnginePath is the absolute path of the engine executable.
	EnginePath string
	// TargetPath is the fabric item directory or file to analyze.
	TargetPath string
	// RulesPath is the rules document handed to the engine.
	RulesPath string
	// Formats selects the engine's report formats (engine-defined syntax).
	Formats string
	// SingleRule marks a run against a temporary one-rule document.
	SingleRule bool
	// Cleanup, if set, is invoked exactly once after the run ends,
	// regardless of how it ends.
	Cleanup func()
	// Timeout overrides DefaultTimeout when positive.
	Timeout time.Duration
}

// Result describes a finished (or killed) engine run.
type Result struct {
	RunID    string
	ExitCode int
	Success  bool
	Output   []string
	Errors   []string
	Duration time.Duration
}

// Supervisor runs the engine and streams its output into a sink.
type Supervisor struct {
	sink *sink.Sink
}

// New creates a supervisor writing into s.
func New(s *sink.Sink) *Supervisor {
	return &Supervisor{sink: s}
}

// IsTempRuleFile reports whether name (a base file name) matches the
// temporary single-rule naming scheme.
func IsTempRuleFile(name string) bool {
	return tempRulePattern.MatchString(name)
}

// validate checks the request before anything is spawned.
func (s *Supervisor) validate(req *Request) error {
	if !fileutil.Exists(req.EnginePath) {
		return errors.NewNotFound("engine executable", req.EnginePath)
	}

	target, err := validation.ValidatePath(req.TargetPath, "")
	if err != nil {
		return errors.NewValidation("target", err.Error())
	}
	if !fileutil.Exists(target) && !fileutil.DirExists(target) {
		return errors.NewNotFound("target", target)
	}
	req.TargetPath = target

	rules, err := validation.ValidatePath(req.RulesPath, "")
	if err != nil {
		return errors.NewValidation("rules", err.Error())
	}
	if err := validation.ValidateExtension(rules, []string{".json"}); err != nil {
		return errors.NewValidation("rules", err.Error())
	}
	if !fileutil.Exists(rules) && !IsTempRuleFile(filepath.Base(rules)) {
		return errors.NewNotFound("rules file", rules)
	}
	req.RulesPath = rules

	return nil
}

// buildArgs assembles the engine's argument vector.
func buildArgs(req *Request) []string {
	args := []string{
		"-fabricitem", req.TargetPath,
		"-rules", req.RulesPath,
	}
	if formats := validation.SanitizeArgument(req.Formats); formats != "" {
		args = append(args, "-formats", formats)
	}
	return args
}

// Run executes the engine described by req and blocks until it finishes or
// times out. The cleanup hook fires exactly once on every exit path. A
// nonzero exit yields a Result plus a RunError whose summary never carries
// raw engine stderr.
func (s *Supervisor) Run(ctx context.Context, req Request) (*Result, error) {
	runID := uuid.NewString()

	var cleanupOnce sync.Once
	cleanup := func() {
		if req.Cleanup != nil {
			cleanupOnce.Do(req.Cleanup)
		}
	}
	defer cleanup()

	if err := s.validate(&req); err != nil {
		return nil, err
	}

	timeout := req.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	// Single-rule runs are captured in the result and surfaced by the
	// caller afterwards; nothing reaches the sink while the engine runs.
	emit := s.sink.WriteLine
	if req.SingleRule {
		emit = func(string, sink.Stream, string) {}
	}

	cmd := exec.CommandContext(runCtx, req.EnginePath, buildArgs(&req)...)
	// The engine resolves its data directory relative to its own location.
	cmd.Dir = filepath.Dir(req.EnginePath)

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("attaching stdout: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, fmt.Errorf("attaching stderr: %w", err)
	}

	start := time.Now()
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("starting engine: %w", err)
	}
	logging.RunEvent("spawned", runID, 0, 0, "target", req.TargetPath)
	emit(runID, sink.StreamStatus, "engine run started")

	result := &Result{RunID: runID}
	var wg sync.WaitGroup
	var mu sync.Mutex
	wg.Add(2)
	go func() {
		defer wg.Done()
		consume(emit, runID, sink.StreamStdout, stdout, &mu, &result.Output)
	}()
	go func() {
		defer wg.Done()
		consume(emit, runID, sink.StreamStderr, stderr, &mu, &result.Errors)
	}()

	wg.Wait()
	waitErr := cmd.Wait()
	result.Duration = time.Since(start)

	if runCtx.Err() == context.DeadlineExceeded {
		result.ExitCode = -1
		cleanup()
		logging.RunEvent("timed_out", runID, result.ExitCode, result.Duration)
		emit(runID, sink.StreamStatus, "engine run timed out")
		return result, errors.Wrapf(errors.ErrTimeout, "engine run exceeded %s", timeout)
	}

	if waitErr != nil {
		exitErr, ok := waitErr.(*exec.ExitError)
		if !ok {
			return result, fmt.Errorf("waiting for engine: %w", waitErr)
		}
		result.ExitCode = exitErr.ExitCode()
		cleanup()
		logging.RunEvent("finished", runID, result.ExitCode, result.Duration)
		emit(runID, sink.StreamStatus, "engine run failed")
		return result, errors.NewRun(result.ExitCode,
			fmt.Sprintf("engine exited with code %d", result.ExitCode))
	}

	result.Success = true
	cleanup()
	logging.RunEvent("finished", runID, 0, result.Duration)
	emit(runID, sink.StreamStatus, "engine run completed")
	return result, nil
}

// consume forwards one process stream through emit line by line, keeping a
// capped copy in lines.
func consume(emit func(string, sink.Stream, string), runID string, stream sink.Stream, r io.Reader, mu *sync.Mutex, lines *[]string) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), scannerBufferSize)
	for scanner.Scan() {
		line := scanner.Text()
		emit(runID, stream, line)
		mu.Lock()
		if len(*lines) < maxCapturedLines {
			*lines = append(*lines, line)
		}
		mu.Unlock()
	}
}
