// Package escape turns strings into systemd unit name fragments.
package escape

import (
	"bytes"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"unicode/utf8"

	"github.com/coreos/go-systemd/v22/unit"
)

// DefaultCommand is looked up in $PATH unless configured otherwise.
const DefaultCommand = "systemd-escape"

// Escaper escapes a string into the character set allowed in systemd unit
// names, the way `systemd-escape <s>` does.
type Escaper interface {
	Escape(s string) (string, error)
}

// Func adapts an ordinary function to the Escaper interface.
type Func func(s string) (string, error)

func (f Func) Escape(s string) (string, error) {
	return f(s)
}

// RunError means systemd-escape could not be run at all.
type RunError struct {
	Path  string
	Input string
	Err   error
}

func (e *RunError) Error() string {
	return fmt.Sprintf("failed to run %s for %q: %v", e.Path, e.Input, e.Err)
}

func (e *RunError) Unwrap() error {
	return e.Err
}

// ExitError means systemd-escape ran but did not succeed.
type ExitError struct {
	Path     string
	Input    string
	ExitCode int
	Stderr   string
	Err      error
}

func (e *ExitError) Error() string {
	msg := fmt.Sprintf("%s failed for %q with exit code %d", e.Path, e.Input, e.ExitCode)
	if e.Stderr != "" {
		msg += ": " + e.Stderr
	}
	return msg
}

func (e *ExitError) Unwrap() error {
	return e.Err
}

// EncodingError means the output of systemd-escape is not UTF-8.
type EncodingError struct {
	Path   string
	Input  string
	Output []byte
}

func (e *EncodingError) Error() string {
	return fmt.Sprintf("failed to convert %s output for %q to a UTF-8 string", e.Path, e.Input)
}

// Command escapes by running the systemd-escape binary.
type Command struct {
	// Path of systemd-escape, DefaultCommand if empty
	Path string
}

func (c Command) path() string {
	if c.Path == "" {
		return DefaultCommand
	}
	return c.Path
}

func (c Command) Escape(s string) (string, error) {
	path := c.path()

	var stdout, stderr bytes.Buffer
	cmd := exec.Command(path, s)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return "", &ExitError{
				Path:     path,
				Input:    s,
				ExitCode: exitErr.ExitCode(),
				Stderr:   strings.TrimSpace(stderr.String()),
				Err:      err,
			}
		}
		return "", &RunError{Path: path, Input: s, Err: err}
	}

	out := stdout.Bytes()
	// systemd-escape terminates its output with a single newline
	if n := len(out); n > 0 && out[n-1] == '\n' {
		out = out[:n-1]
	}
	if !utf8.Valid(out) {
		return "", &EncodingError{Path: path, Input: s, Output: out}
	}
	return string(out), nil
}

// Builtin escapes in-process. It matches systemd-escape without options.
type Builtin struct{}

func (Builtin) Escape(s string) (string, error) {
	return unit.UnitNameEscape(s), nil
}
