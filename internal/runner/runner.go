// Package runner executes the external command-line tools the auditor relies
// on (pdftoppm, pdfinfo, pdfimages, tesseract).
package runner

import (
	"bytes"
	"context"
	"os/exec"
	"strings"
	"sync"
	"time"

	"github.com/adverant/nexus/extraction-auditor/internal/logging"
)

// Runner lets us stub external commands in tests.
type Runner interface {
	Run(ctx context.Context, name string, args ...string) (stdout, stderr []byte, err error)
}

// ExecRunner runs commands with os/exec
type ExecRunner struct {
	logger *logging.Logger
}

// NewExecRunner creates a runner that logs through logger (nil gets a default)
func NewExecRunner(logger *logging.Logger) *ExecRunner {
	if logger == nil {
		logger = logging.NewLogger("Runner")
	}
	return &ExecRunner{logger: logger}
}

// Run executes name with args and returns its captured output
func (r *ExecRunner) Run(ctx context.Context, name string, args ...string) ([]byte, []byte, error) {
	start := time.Now()
	r.logger.Debug("running command", "cmd_line", strings.Join(append([]string{name}, args...), " "))

	cmd := exec.CommandContext(ctx, name, args...)
	var out, errb bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &errb

	err := cmd.Run()
	dur := time.Since(start)

	if err != nil {
		r.logger.Error("exec failed",
			"cmd", name,
			"duration_ms", dur.Milliseconds(),
			"error", err,
			"stderr", Truncate(errb.String(), 8<<10),
		)
	} else {
		r.logger.Debug("exec ok",
			"cmd", name,
			"duration_ms", dur.Milliseconds(),
			"stdout_bytes", out.Len(),
		)
	}

	return out.Bytes(), errb.Bytes(), err
}

// Available reports whether name resolves on PATH
func Available(name string) bool {
	_, err := exec.LookPath(name)
	return err == nil
}

// Truncate caps s at max bytes
func Truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max] + "...(truncated)"
}

// Call is one recorded invocation of a Stub
type Call struct {
	Name string
	Args []string
}

// Stub is a scripted Runner for tests. Responses are keyed by command name.
type Stub struct {
	Stdout map[string][]byte
	Errs   map[string]error
	Calls  []Call
	// Hook runs before the response is returned; it may write output files.
	Hook func(name string, args []string) error

	mu sync.Mutex
}

// Run records the call and returns the scripted output for name
func (s *Stub) Run(ctx context.Context, name string, args ...string) ([]byte, []byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.Calls = append(s.Calls, Call{Name: name, Args: args})
	if s.Hook != nil {
		if err := s.Hook(name, args); err != nil {
			return nil, []byte(err.Error()), err
		}
	}
	if err := s.Errs[name]; err != nil {
		return nil, []byte(err.Error()), err
	}
	return s.Stdout[name], nil, nil
}
