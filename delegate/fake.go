// Copyright 2018 GRAIL, Inc.  All rights reserved.
// Use of this source code is governed by the Apache-2.0
// license that can be found in the LICENSE file.

package delegate

import (
	"context"
	"io/ioutil"
	"sync"
)

// FakeRunner is a Runner for tests.  It records every command and lets the
// test decide what each one produces.  It is safe for concurrent use.
type FakeRunner struct {
	// Handler, if set, is called for every command.  The returned bytes are
	// written to cmd.Stdout (Run) or returned (Output).  A non-nil error is
	// returned to the caller as-is, emulating a failed process.
	Handler func(cmd Command) ([]byte, error)

	mu       sync.Mutex
	commands []Command
}

// Commands returns the commands seen so far, in call order.
func (r *FakeRunner) Commands() []Command {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Command(nil), r.commands...)
}

func (r *FakeRunner) handle(cmd Command) ([]byte, error) {
	r.mu.Lock()
	r.commands = append(r.commands, cmd)
	r.mu.Unlock()
	if r.Handler == nil {
		return nil, nil
	}
	return r.Handler(cmd)
}

// Run implements Runner.
func (r *FakeRunner) Run(ctx context.Context, cmd Command) error {
	out, err := r.handle(cmd)
	if err != nil {
		return err
	}
	if cmd.Stdout != "" {
		return ioutil.WriteFile(cmd.Stdout, out, 0644)
	}
	return nil
}

// Output implements Runner.
func (r *FakeRunner) Output(ctx context.Context, cmd Command) ([]byte, error) {
	cmd.Stdout = ""
	return r.handle(cmd)
}
