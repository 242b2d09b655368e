// Package sandbox runs short data-analysis scripts in an isolated python
// subprocess. An execution is a pure function of the script and its input
// dataset: no network, no environment passthrough, no access to the host
// filesystem outside a per-invocation scratch directory, and a hard
// wall-clock timeout enforced by killing the whole process group.
package sandbox

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/atelierlabs/concierge/internal/logging"
	"github.com/atelierlabs/concierge/pkg/domain"
)

// DefaultTimeout bounds one execution's wall clock.
const DefaultTimeout = 30 * time.Second

// Input is the dataset handed to a script. The CSV is copied into the
// scratch directory so the script never sees a host path.
type Input struct {
	DataPath string
	Columns  []string
}

// Output is a successful execution's result.
type Output struct {
	Tables []domain.Table
	Stdout string
}

// Executor runs scripts through the configured interpreter.
type Executor struct {
	interpreter string
	timeout     time.Duration
	logger      *slog.Logger
}

// Option configures the Executor.
type Option func(*Executor)

// WithInterpreter overrides the python binary.
func WithInterpreter(bin string) Option {
	return func(e *Executor) {
		if bin != "" {
			e.interpreter = bin
		}
	}
}

// WithTimeout overrides the wall-clock budget.
func WithTimeout(d time.Duration) Option {
	return func(e *Executor) {
		if d > 0 {
			e.timeout = d
		}
	}
}

// WithLogger configures a logger.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Executor) {
		e.logger = logger
	}
}

// New creates an Executor.
func New(opts ...Option) *Executor {
	e := &Executor{
		interpreter: "python3",
		timeout:     DefaultTimeout,
		logger:      logging.NewNop(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Execute runs one script against the input. The policy check happens
// before anything touches the filesystem; a violating script is never
// started. On timeout the process group is killed and
// domain.ErrExecTimeout is returned.
func (e *Executor) Execute(ctx context.Context, code string, input Input) (*Output, error) {
	if err := CheckPolicy(code); err != nil {
		return nil, err
	}

	scratch, err := os.MkdirTemp("", "concierge-sandbox-")
	if err != nil {
		return nil, fmt.Errorf("create scratch dir: %w", err)
	}
	defer os.RemoveAll(scratch)

	if input.DataPath != "" {
		if err := copyFile(input.DataPath, filepath.Join(scratch, "data.csv")); err != nil {
			return nil, fmt.Errorf("stage input data: %w", err)
		}
	}

	script := buildPreamble(input) + "\n" + code + "\n"
	if err := os.WriteFile(filepath.Join(scratch, "script.py"), []byte(script), 0o600); err != nil {
		return nil, fmt.Errorf("write script: %w", err)
	}

	cctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	cmd := exec.CommandContext(cctx, e.interpreter, "-I", "script.py")
	cmd.Dir = scratch
	// No environment passthrough: the script sees only PATH and a HOME
	// inside the scratch dir.
	cmd.Env = []string{"PATH=/usr/local/bin:/usr/bin:/bin", "HOME=" + scratch}
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	cmd.Cancel = func() error {
		return syscall.Kill(-cmd.Process.Pid, syscall.SIGKILL)
	}
	cmd.WaitDelay = time.Second

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	start := time.Now()
	runErr := cmd.Run()
	elapsed := time.Since(start)

	if cctx.Err() == context.DeadlineExceeded {
		e.logger.Warn("sandbox execution timed out", "elapsed", elapsed)
		return nil, fmt.Errorf("%w after %s", domain.ErrExecTimeout, e.timeout)
	}
	if runErr != nil {
		detail := strings.TrimSpace(stderr.String())
		if len(detail) > 400 {
			detail = detail[:400]
		}
		return nil, fmt.Errorf("script failed: %v: %s", runErr, detail)
	}

	out := stdout.String()
	if err := checkOutput(out, scratch); err != nil {
		return nil, err
	}

	tables, rest := parseTables(out)
	e.logger.Debug("sandbox execution finished", "elapsed", elapsed, "tables", len(tables))
	return &Output{Tables: tables, Stdout: rest}, nil
}

// parseTables extracts the JSON table lines emitted by the helper
// preamble. Non-table lines are kept as plain stdout.
func parseTables(out string) ([]domain.Table, string) {
	var tables []domain.Table
	var rest []string
	for _, line := range strings.Split(out, "\n") {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, "{") {
			var t domain.Table
			if err := json.Unmarshal([]byte(trimmed), &t); err == nil && t.Name != "" && len(t.Columns) > 0 {
				tables = append(tables, t)
				continue
			}
		}
		if trimmed != "" {
			rest = append(rest, trimmed)
		}
	}
	return tables, strings.Join(rest, "\n")
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o600)
	if err != nil {
		return err
	}
	defer out.Close()

	_, err = io.Copy(out, in)
	return err
}
