package ib

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/afero"
	"github.com/tdewolff/minify/v2"
	"github.com/tdewolff/minify/v2/css"
)

// MinifyResult describes one minifier run.
type MinifyResult struct {
	Mode     string
	Command  []string // external mode only
	Dir      string   // external mode only
	ExitCode int      // -1 when the process never ran or was killed
	Stderr   string
	Duration time.Duration
	Err      error
}

func (r *MinifyResult) OK() bool {
	return r.Err == nil
}

// Minify turns the concatenated file into the minified file. It returns a nil
// result when Minifier.Mode is "none". A failed run is returned as a
// *MinifierError unless Minifier.AllowFailure is set, in which case it is only
// logged and the result carries the error.
func (c *Config) Minify(ctx context.Context) (*MinifyResult, error) {
	if err := c.Validate(); err != nil {
		return nil, err
	}

	if c.Minifier.Mode == MinifierModeNone {
		return nil, nil
	}

	input := c.ConcatenatedPath()
	output := c.MinifiedPath()

	info, err := c.FS.Stat(input)
	if err != nil {
		kind := InputUnreadable
		if errors.Is(err, fs.ErrNotExist) {
			kind = InputMissing
		}
		return nil, &InputError{Path: input, Kind: kind, Err: err}
	}
	if info.Size() == 0 {
		if c.Minifier.AllowFailure {
			c.Logger.Errorf("skipping minification: %v", ErrEmptyConcatenation)
			return nil, nil
		}
		return nil, ErrEmptyConcatenation
	}

	var result *MinifyResult
	switch c.Minifier.Mode {
	case MinifierModeBuiltin:
		result = c.minifyBuiltin(input, output)
	default:
		result = c.minifyExternal(ctx, input, output)
	}

	if result.OK() {
		c.Logger.Infof("minified %s into %s (%s, took %v)", input, output, result.Mode, result.Duration)
		return result, nil
	}

	minErr := &MinifierError{Result: result}
	if c.Minifier.AllowFailure {
		c.Logger.Errorf("%v (continuing, minifier failures are allowed)", minErr)
		return result, nil
	}
	return result, minErr
}

func (c *Config) minifyBuiltin(input, output string) *MinifyResult {
	result := &MinifyResult{Mode: MinifierModeBuiltin}
	start := time.Now()
	defer func() { result.Duration = time.Since(start) }()

	content, err := afero.ReadFile(c.FS, input)
	if err != nil {
		result.Err = fmt.Errorf("error reading concatenated CSS: %w", err)
		return result
	}

	m := minify.New()
	m.AddFunc(cssMediaType, css.Minify)
	minified, err := m.Bytes(cssMediaType, content)
	if err != nil {
		result.Err = fmt.Errorf("error minifying CSS: %w", err)
		return result
	}

	if err := writeFileAtomic(c.FS, output, minified); err != nil {
		result.Err = &OutputError{Path: output, Err: err}
		return result
	}

	return result
}

// minifyExternal runs "<command> --input <input> --output <output>" from JSDir
// and waits for it. Paths handed to the process are absolute since its working
// directory is not ours.
func (c *Config) minifyExternal(ctx context.Context, input, output string) *MinifyResult {
	jsDir := c.getCleanDirs().JS
	result := &MinifyResult{Mode: MinifierModeExternal, Dir: jsDir, ExitCode: -1}

	absInput, err := filepath.Abs(input)
	if err != nil {
		result.Err = fmt.Errorf("error resolving input path: %w", err)
		return result
	}
	absOutput, err := filepath.Abs(output)
	if err != nil {
		result.Err = fmt.Errorf("error resolving output path: %w", err)
		return result
	}

	name := c.Minifier.Command[0]
	if strings.ContainsRune(name, filepath.Separator) && !filepath.IsAbs(name) {
		if name, err = filepath.Abs(name); err != nil {
			result.Err = fmt.Errorf("error resolving minifier path: %w", err)
			return result
		}
	}
	args := make([]string, 0, len(c.Minifier.Command)+3)
	args = append(args, c.Minifier.Command[1:]...)
	args = append(args, "--input", absInput, "--output", absOutput)
	result.Command = append([]string{name}, args...)

	// The output check below must only ever see what this run wrote.
	if err := c.FS.Remove(output); err != nil && !errors.Is(err, fs.ErrNotExist) {
		result.Err = &OutputError{Path: output, Err: err}
		return result
	}

	var stderr bytes.Buffer
	runErr := runScoped(ctx, c.Minifier.Timeout, func(ctx context.Context) (*os.ProcessState, error) {
		cmd := exec.CommandContext(ctx, name, args...)
		cmd.Dir = jsDir
		cmd.WaitDelay = minifierWaitDelay
		cmd.Stdout = os.Stdout
		cmd.Stderr = &stderr
		start := time.Now()
		err := cmd.Run()
		result.Duration = time.Since(start)
		return cmd.ProcessState, err
	}, func(state *os.ProcessState) {
		if state != nil {
			result.ExitCode = state.ExitCode()
		}
	})
	result.Stderr = stderr.String()
	if runErr != nil {
		result.Err = runErr
		return result
	}

	// A zero exit status is not proof of output.
	info, err := c.FS.Stat(output)
	if err != nil {
		result.Err = fmt.Errorf("minifier exited cleanly but %s is unreadable: %w", output, err)
		return result
	}
	if info.Size() == 0 {
		result.Err = fmt.Errorf("minifier exited cleanly but %s is empty", output)
	}
	return result
}

// runScoped runs fn under a context that is cancelled when fn returns, bounded
// by timeout when it is positive, and always reports the process state to
// release before returning.
func runScoped(
	ctx context.Context,
	timeout time.Duration,
	fn func(context.Context) (*os.ProcessState, error),
	release func(*os.ProcessState),
) error {
	var cancel context.CancelFunc
	if timeout > 0 {
		ctx, cancel = context.WithTimeout(ctx, timeout)
	} else {
		ctx, cancel = context.WithCancel(ctx)
	}
	defer cancel()

	state, err := fn(ctx)
	release(state)

	if err == nil {
		return nil
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return fmt.Errorf("minifier did not finish: %w", ctxErr)
	}
	return err
}
