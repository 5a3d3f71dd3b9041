package whisper

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"

	"go.uber.org/zap"
)

// Default candidate names tried after the configured binary. The old
// "whisper" name still ships in some distributions but only prints a
// deprecation notice and exits non-zero on recent builds.
var defaultCandidates = []string{"whisper-cli", "whisper"}

// CLIEngine runs a whisper.cpp command-line binary as a subprocess and
// parses the files it writes next to the output prefix.
type CLIEngine struct {
	Candidates []string
	Logger     *zap.Logger

	// lookPath is swapped in tests.
	lookPath func(string) (string, error)
}

func NewCLIEngine(preferredBin string, logger *zap.Logger) *CLIEngine {
	if logger == nil {
		logger = zap.NewNop()
	}

	candidates := make([]string, 0, len(defaultCandidates)+1)
	if strings.TrimSpace(preferredBin) != "" {
		candidates = append(candidates, strings.TrimSpace(preferredBin))
	}
	for _, name := range defaultCandidates {
		if !containsString(candidates, name) {
			candidates = append(candidates, name)
		}
	}

	return &CLIEngine{Candidates: candidates, Logger: logger, lookPath: exec.LookPath}
}

type runOutcome struct {
	bin      string
	cmdline  string
	stdout   string
	stderr   string
	exitCode int
}

func (e *CLIEngine) Transcribe(ctx context.Context, req Request) (*Result, error) {
	if strings.TrimSpace(req.AudioPath) == "" {
		return nil, errors.New("audio path is required")
	}
	if strings.TrimSpace(req.ModelPath) == "" {
		return nil, errors.New("model path is required")
	}

	outDir, err := os.MkdirTemp("", "whisperd-out-")
	if err != nil {
		return nil, fmt.Errorf("create output directory: %w", err)
	}
	defer func() {
		if err := os.RemoveAll(outDir); err != nil {
			e.log().Warn("failed to remove output directory", zap.String("dir", outDir), zap.Error(err))
		}
	}()

	outPrefix := filepath.Join(outDir, "out")
	args := e.buildArgs(req, outPrefix)

	outcome, err := e.runCandidates(ctx, args)
	if err != nil {
		return nil, err
	}

	result, err := loadOutputs(outPrefix, req.WordTimestamps)
	if err != nil {
		var missing *MissingOutputError
		if errors.As(err, &missing) {
			missing.StdoutTail = tail(outcome.stdout)
			missing.StderrTail = tail(outcome.stderr)
		}
		return nil, err
	}

	result.UsedBin = outcome.bin
	return result, nil
}

func (e *CLIEngine) buildArgs(req Request, outPrefix string) []string {
	args := []string{
		"-m", req.ModelPath,
		"-f", req.AudioPath,
		"-oj", "-osrt",
		"-of", outPrefix,
		"-t", strconv.Itoa(req.Threads),
		"-bs", strconv.Itoa(req.BeamSize),
	}
	lang := strings.TrimSpace(strings.ToLower(req.Language))
	if lang != "" && lang != "auto" {
		args = append(args, "-l", lang)
	}
	if req.Translate {
		args = append(args, "-tr")
	}
	if req.WordTimestamps {
		args = append(args, "-owts")
	}
	return args
}

// runCandidates tries each candidate binary in order. A candidate is
// skipped when its executable cannot be found, or when it exits non-zero
// while complaining about deprecation; the first candidate that actually
// runs settles the outcome.
func (e *CLIEngine) runCandidates(ctx context.Context, args []string) (runOutcome, error) {
	lookPath := e.lookPath
	if lookPath == nil {
		lookPath = exec.LookPath
	}

	var last *runOutcome
	for _, candidate := range e.Candidates {
		resolved, err := lookPath(candidate)
		if err != nil {
			e.log().Debug("candidate binary not found", zap.String("bin", candidate))
			continue
		}

		outcome := e.runOnce(ctx, resolved, candidate, args)
		last = &outcome

		if outcome.exitCode != 0 && mentionsDeprecation(outcome.stdout, outcome.stderr) {
			e.log().Warn("candidate binary is deprecated, trying next", zap.String("bin", candidate))
			continue
		}
		break
	}

	if last == nil {
		return runOutcome{}, &BinaryNotFoundError{Tried: e.Candidates}
	}

	if last.exitCode != 0 {
		return runOutcome{}, &ExitError{
			ExitCode:   last.exitCode,
			StdoutTail: tail(last.stdout),
			StderrTail: tail(last.stderr),
			Cmd:        last.cmdline,
			UsedBin:    last.bin,
			Tried:      e.Candidates,
			Hint:       classifyFailure(last.stderr),
		}
	}

	return *last, nil
}

func (e *CLIEngine) runOnce(ctx context.Context, executable, name string, args []string) runOutcome {
	cmd := exec.CommandContext(ctx, executable, args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	e.log().Debug("running whisper binary", zap.String("bin", executable), zap.Strings("args", args))
	err := cmd.Run()

	outcome := runOutcome{
		bin:     name,
		cmdline: executable + " " + strings.Join(args, " "),
		stdout:  stdout.String(),
		stderr:  stderr.String(),
	}
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			outcome.exitCode = exitErr.ExitCode()
		} else {
			outcome.exitCode = -1
			outcome.stderr = outcome.stderr + "\n" + err.Error()
		}
	}
	return outcome
}

func (e *CLIEngine) log() *zap.Logger {
	if e.Logger == nil {
		return zap.NewNop()
	}
	return e.Logger
}

func mentionsDeprecation(stdout, stderr string) bool {
	combined := strings.ToLower(stdout + stderr)
	return strings.Contains(combined, "deprecated")
}

// classifyFailure turns well-known stderr patterns into actionable hints.
func classifyFailure(stderr string) string {
	value := strings.ToLower(strings.TrimSpace(stderr))
	if value == "" {
		return ""
	}

	sharedLibPatterns := []string{
		"error while loading shared libraries",
		"cannot open shared object file",
		"dyld: library not loaded",
		"image not found",
	}
	for _, pattern := range sharedLibPatterns {
		if strings.Contains(value, pattern) {
			return "whisper binary is missing required shared libraries; rebuild whisper-cli with BUILD_SHARED_LIBS=OFF or fix the library path"
		}
	}

	if strings.Contains(value, "illegal instruction") {
		return "whisper binary crashed with an illegal CPU instruction; use a build matching this CPU's instruction set"
	}

	return ""
}

func containsString(values []string, target string) bool {
	for _, v := range values {
		if v == target {
			return true
		}
	}
	return false
}
