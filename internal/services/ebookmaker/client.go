package ebookmaker

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"ebookconverter/internal/services"
)

var commandContext = exec.CommandContext

// StdinJobsArg tells the engine to read its job list from stdin.
const StdinJobsArg = "-"

// RunOptions are the per-invocation engine flags.
type RunOptions struct {
	Verbosity int
	Validate  bool
	Notify    bool
}

// Result captures one engine invocation.
type Result struct {
	Args     []string
	ExitCode int
	Stdout   []byte
	Stderr   []byte
	Duration time.Duration
}

// Succeeded reports a zero exit code.
func (r Result) Succeeded() bool { return r.ExitCode == 0 }

// Runner runs the engine on a serialized job batch.
type Runner interface {
	Run(ctx context.Context, payload []byte, opts RunOptions) (Result, error)
}

// Option configures the CLI client.
type Option func(*CLI)

// WithBinary overrides the default binary name.
func WithBinary(binary string) Option {
	return func(c *CLI) {
		if binary != "" {
			c.binary = binary
		}
	}
}

// WithExtensionPackage names the writer extension package passed to the engine.
func WithExtensionPackage(pkg string) Option {
	return func(c *CLI) {
		c.extensionPackage = strings.TrimSpace(pkg)
	}
}

// WithTimeout bounds each invocation. Zero means no limit.
func WithTimeout(timeout time.Duration) Option {
	return func(c *CLI) {
		if timeout > 0 {
			c.timeout = timeout
		}
	}
}

// CLI wraps the ebookmaker executable.
type CLI struct {
	binary           string
	extensionPackage string
	timeout          time.Duration
}

// NewCLI constructs a CLI client using defaults.
func NewCLI(opts ...Option) *CLI {
	cli := &CLI{binary: "ebookmaker"}
	for _, opt := range opts {
		opt(cli)
	}
	return cli
}

// Binary returns the configured executable.
func (c *CLI) Binary() string { return c.binary }

// Args builds the engine argument list, excluding the binary itself.
func (c *CLI) Args(opts RunOptions) []string {
	var args []string
	if opts.Verbosity > 0 {
		args = append(args, "-"+strings.Repeat("v", opts.Verbosity))
	}
	if c.extensionPackage != "" {
		args = append(args, "--extension-package", c.extensionPackage)
	}
	if opts.Validate {
		args = append(args, "--validate")
	}
	if opts.Notify {
		args = append(args, "--notify")
	}
	return append(args, "--jobs", StdinJobsArg)
}

// Run starts the engine, feeds payload on stdin and waits for it to exit.
func (c *CLI) Run(ctx context.Context, payload []byte, opts RunOptions) (Result, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	args := c.Args(opts)
	result := Result{Args: append([]string{c.binary}, args...)}
	cmd := commandContext(ctx, c.binary, args...) //nolint:gosec

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return result, fmt.Errorf("stdin pipe: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return result, fmt.Errorf("stdout pipe: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return result, fmt.Errorf("stderr pipe: %w", err)
	}

	start := time.Now()
	if err := cmd.Start(); err != nil {
		return result, services.Wrap(services.ErrExternalTool, "dispatch", "start ebookmaker", c.binary, err)
	}

	var outBuf, errBuf bytes.Buffer
	var g errgroup.Group
	g.Go(func() error {
		defer stdin.Close()
		if _, err := stdin.Write(payload); err != nil && !isClosedPipe(err) {
			return fmt.Errorf("write jobs: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		_, err := io.Copy(&outBuf, stdout)
		return err
	})
	g.Go(func() error {
		_, err := io.Copy(&errBuf, stderr)
		return err
	})
	ioErr := g.Wait()
	waitErr := cmd.Wait()
	result.Duration = time.Since(start)
	result.Stdout = outBuf.Bytes()
	result.Stderr = errBuf.Bytes()

	if ctxErr := ctx.Err(); ctxErr != nil {
		result.ExitCode = -1
		if errors.Is(ctxErr, context.DeadlineExceeded) {
			return result, services.Wrap(services.ErrTimeout, "dispatch", "run ebookmaker", fmt.Sprintf("exceeded %s", c.timeout), ctxErr)
		}
		return result, ctxErr
	}

	var exitErr *exec.ExitError
	switch {
	case waitErr == nil:
		result.ExitCode = 0
	case errors.As(waitErr, &exitErr):
		result.ExitCode = exitErr.ExitCode()
	default:
		return result, services.Wrap(services.ErrExternalTool, "dispatch", "wait ebookmaker", c.binary, waitErr)
	}
	if ioErr != nil {
		return result, services.Wrap(services.ErrExternalTool, "dispatch", "exchange with ebookmaker", c.binary, ioErr)
	}
	return result, nil
}

func isClosedPipe(err error) bool {
	return errors.Is(err, syscall.EPIPE) || errors.Is(err, os.ErrClosed)
}

var _ Runner = (*CLI)(nil)
