// Copyright 2018 GRAIL, Inc.  All rights reserved.
// Use of this source code is governed by the Apache-2.0
// license that can be found in the LICENSE file.

package pipeline

import (
	"context"
	"fmt"

	"github.com/grailbio/base/errors"
	"github.com/grailbio/base/file"
	"github.com/grailbio/base/log"
	"github.com/grailbio/base/traverse"
	"github.com/grailbio/fragnorm/delegate"
	"github.com/grailbio/fragnorm/interval"
	"github.com/grailbio/fragnorm/qc"
)

// TaskResult is the terminal status of one file task.
type TaskResult struct {
	Input string
	// State is Completed or Failed.
	State State
	// Output is the coverage track; set only when State is Completed.
	Output string
	// Err describes the failing stage when State is Failed.
	Err error
}

// Orchestrator runs the included files through the per-format pipeline on a
// fixed pool of workers.  Tasks share nothing but read-only configuration: a
// failing task is reported and does not affect any other.
type Orchestrator struct {
	opts     *Opts
	pipeline filePipeline
	observer Observer
}

// NewOrchestrator creates an orchestrator for files of opts.Format, all
// downsampled to target.  order is required for BED input and ignored for
// BAM.  observer may be nil.
func NewOrchestrator(opts *Opts, runner delegate.Runner, order *interval.ChromOrder, target int64, observer Observer) *Orchestrator {
	var p filePipeline
	switch opts.Format {
	case BAM:
		p = newBAMPipeline(opts, runner, target)
	default:
		p = newBEDPipeline(opts, runner, order, target)
	}
	if observer == nil {
		observer = nopObserver{}
	}
	return &Orchestrator{opts: opts, pipeline: p, observer: observer}
}

// Prepare creates the inputs shared by all tasks.  It must be called once
// before Run.
func (o *Orchestrator) Prepare(ctx context.Context) error {
	return o.pipeline.prepare(ctx)
}

// Run processes the inputs, opts.Workers() at a time, and returns one result
// per input, in input order.  Task failures are reported in the results, not
// as an error.
func (o *Orchestrator) Run(ctx context.Context, inputs []qc.Input) []TaskResult {
	steps := len(o.pipeline.stages()) + 1
	for _, in := range inputs {
		o.observer.Observe(Event{Path: in.Path, State: Queued, Steps: steps})
	}
	results := make([]TaskResult, len(inputs))
	workers := o.opts.Workers()
	log.Debug.Printf("processing %d files with %d workers", len(inputs), workers)
	_ = traverse.Limit(workers).Each(len(inputs), func(i int) error {
		results[i] = o.runTask(ctx, inputs[i], steps)
		return nil
	})
	return results
}

func (o *Orchestrator) transition(t *task, s State, steps int) {
	t.state = s
	if s != Queued && !s.Terminal() {
		t.step++
	}
	log.Debug.Printf("%s: %s", t.input.Path, s)
	o.observer.Observe(Event{Path: t.input.Path, State: s, Step: t.step, Steps: steps, Err: t.err})
}

func (o *Orchestrator) runTask(ctx context.Context, in qc.Input, steps int) TaskResult {
	t := o.pipeline.newTask(in)
	for _, s := range o.pipeline.stages() {
		o.transition(t, s.state, steps)
		if err := s.run(ctx, t); err != nil {
			t.err = errors.E(err, fmt.Sprintf("%s: %s failed", in.Path, s.state))
			break
		}
	}
	o.transition(t, Cleanup, steps)
	o.cleanup(ctx, t)
	if t.err != nil {
		o.transition(t, Failed, steps)
		log.Error.Printf("%v", t.err)
		return TaskResult{Input: in.Path, State: Failed, Err: t.err}
	}
	o.transition(t, Completed, steps)
	log.Printf("Wrote %s", t.output)
	return TaskResult{Input: in.Path, State: Completed, Output: t.output}
}

// cleanup removes the task's intermediates unless they are kept, and a partial
// track left by a failed task.  Removal errors are ignored.
func (o *Orchestrator) cleanup(ctx context.Context, t *task) {
	var remove []string
	if !o.opts.KeepIntermediates() {
		remove = append(remove, t.intermediates...)
	}
	if t.err != nil {
		remove = append(remove, t.output)
	}
	for _, path := range remove {
		if err := file.Remove(ctx, path); err == nil {
			log.Debug.Printf("removed %s", path)
		}
	}
}
