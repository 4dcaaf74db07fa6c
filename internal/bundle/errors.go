package ib

import (
	"errors"
	"fmt"
	"strings"
)

// ErrEmptyConcatenation is returned when there is nothing to minify.
var ErrEmptyConcatenation = errors.New("concatenated CSS is empty")

type ConfigError struct {
	Field string
	Msg   string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("invalid config (%s): %s", e.Field, e.Msg)
}

type InputErrorKind string

const (
	InputMissing    InputErrorKind = "missing"
	InputUnreadable InputErrorKind = "unreadable"
	InputEncoding   InputErrorKind = "encoding"
)

// InputError aborts a build before anything is written.
type InputError struct {
	Path string
	Kind InputErrorKind
	Err  error
}

func (e *InputError) Error() string {
	return fmt.Sprintf("error reading input %s (%s): %v", e.Path, e.Kind, e.Err)
}

func (e *InputError) Unwrap() error { return e.Err }

type OutputError struct {
	Path string
	Err  error
}

func (e *OutputError) Error() string {
	return fmt.Sprintf("error writing output %s: %v", e.Path, e.Err)
}

func (e *OutputError) Unwrap() error { return e.Err }

// MinifierError reports a minifier run that did not succeed.
type MinifierError struct {
	Result *MinifyResult
}

func (e *MinifierError) Error() string {
	r := e.Result
	var sb strings.Builder
	sb.WriteString("error running minifier")
	if len(r.Command) > 0 {
		sb.WriteString(" ")
		sb.WriteString(strings.Join(r.Command, " "))
	}
	if r.ExitCode > 0 {
		fmt.Fprintf(&sb, " (exit status %d)", r.ExitCode)
	}
	if r.Err != nil {
		fmt.Fprintf(&sb, ": %v", r.Err)
	}
	if stderr := strings.TrimSpace(r.Stderr); stderr != "" {
		sb.WriteString(": ")
		sb.WriteString(stderr)
	}
	return sb.String()
}

func (e *MinifierError) Unwrap() error { return e.Result.Err }
