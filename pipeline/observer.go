// Copyright 2018 GRAIL, Inc.  All rights reserved.
// Use of this source code is governed by the Apache-2.0
// license that can be found in the LICENSE file.

package pipeline

// Event describes one state transition of a file task.
type Event struct {
	// Path is the input file.
	Path  string
	State State
	// Step counts the transitions of this task so far, starting at 0 for
	// Queued.  Steps is the value Step reaches at Cleanup.
	Step, Steps int
	// Err is set on the Failed transition.
	Err error
}

// Observer receives task transitions, for progress display.  Observe is called
// concurrently from worker goroutines, in no particular order across files,
// and must not block.  Observers have no influence on task results.
type Observer interface {
	Observe(Event)
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(Event)

// Observe implements Observer.
func (f ObserverFunc) Observe(e Event) { f(e) }

type nopObserver struct{}

func (nopObserver) Observe(Event) {}
