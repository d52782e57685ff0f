// Copyright 2018 GRAIL, Inc.  All rights reserved.
// Use of this source code is governed by the Apache-2.0
// license that can be found in the LICENSE file.

// Package delegate runs the external toolkits (bedtools, samtools, ...) that
// do the genome-scale work.  Callers describe an invocation as a Command and
// hand it to a Runner; nothing outside this package knows how processes are
// spawned, so tests can substitute FakeRunner.
package delegate

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"strings"

	"github.com/grailbio/base/errors"
	"github.com/grailbio/base/log"
)

// Command describes one external process invocation.
type Command struct {
	// Name is the executable, looked up in $PATH.
	Name string
	// Args are the arguments, not including Name.
	Args []string
	// Stdin, if nonempty, is a file whose contents are fed to the process.
	Stdin string
	// Stdout, if nonempty, is a file that receives the process's standard
	// output.  It is created or truncated before the process starts.
	Stdout string
}

// String returns the command in shell-like notation, for logs and errors.
func (c Command) String() string {
	var b strings.Builder
	b.WriteString(c.Name)
	for _, a := range c.Args {
		b.WriteByte(' ')
		b.WriteString(a)
	}
	if c.Stdin != "" {
		b.WriteString(" < ")
		b.WriteString(c.Stdin)
	}
	if c.Stdout != "" {
		b.WriteString(" > ")
		b.WriteString(c.Stdout)
	}
	return b.String()
}

// Runner executes Commands.  Implementations must be safe for concurrent use.
type Runner interface {
	// Run executes cmd and waits for it to exit.  A nonzero exit status is
	// reported as an error.
	Run(ctx context.Context, cmd Command) error
	// Output is like Run, but returns the process's standard output.
	// cmd.Stdout is ignored.
	Output(ctx context.Context, cmd Command) ([]byte, error)
}

// maxStderrTail bounds how much of a failing process's stderr is copied into
// the returned error.
const maxStderrTail = 512

// ExecRunner runs commands as local child processes.
type ExecRunner struct{}

// Run implements Runner.
func (ExecRunner) Run(ctx context.Context, cmd Command) error {
	_, err := run(ctx, cmd, false)
	return err
}

// Output implements Runner.
func (ExecRunner) Output(ctx context.Context, cmd Command) ([]byte, error) {
	cmd.Stdout = ""
	return run(ctx, cmd, true)
}

func run(ctx context.Context, cmd Command, capture bool) (out []byte, err error) {
	log.Debug.Printf("delegate: %s", cmd)
	c := exec.CommandContext(ctx, cmd.Name, cmd.Args...)
	var stderr, stdout bytes.Buffer
	c.Stderr = &stderr
	if cmd.Stdin != "" {
		var in *os.File
		if in, err = os.Open(cmd.Stdin); err != nil {
			return nil, errors.E(err, "open stdin for", cmd.Name)
		}
		defer in.Close() // nolint: errcheck
		c.Stdin = in
	}
	switch {
	case capture:
		c.Stdout = &stdout
	case cmd.Stdout != "":
		var f *os.File
		if f, err = os.Create(cmd.Stdout); err != nil {
			return nil, errors.E(err, "create stdout for", cmd.Name)
		}
		defer func() {
			if cerr := f.Close(); cerr != nil && err == nil {
				err = errors.E(cerr, "close", cmd.Stdout)
			}
		}()
		c.Stdout = f
	}
	if err = c.Run(); err != nil {
		return nil, &ExitError{Command: cmd, Err: err, Stderr: tail(stderr.Bytes())}
	}
	return stdout.Bytes(), nil
}

func tail(b []byte) string {
	b = bytes.TrimSpace(b)
	if len(b) > maxStderrTail {
		b = b[len(b)-maxStderrTail:]
	}
	return string(b)
}

// ExitError reports a command that could not be started or exited with a
// nonzero status.
type ExitError struct {
	Command Command
	// Err is the underlying error from the process library.
	Err error
	// Stderr holds the last part of the process's standard error.
	Stderr string
}

// ExitCode returns the process exit status, or -1 if the process did not
// run to completion.
func (e *ExitError) ExitCode() int {
	if ee, ok := e.Err.(*exec.ExitError); ok {
		return ee.ExitCode()
	}
	return -1
}

func (e *ExitError) Error() string {
	msg := fmt.Sprintf("%s: %v", e.Command, e.Err)
	if e.Stderr != "" {
		msg += ": " + e.Stderr
	}
	return msg
}
