// Copyright 2018 GRAIL, Inc.  All rights reserved.
// Use of this source code is governed by the Apache-2.0
// license that can be found in the LICENSE file.

package pipeline

import (
	"context"

	"github.com/grailbio/fragnorm/downsample"
	"github.com/grailbio/fragnorm/interval"
	"github.com/grailbio/fragnorm/qc"
)

// task is the state of one file moving through the pipeline.  It is owned by
// the worker running it.
type task struct {
	input qc.Input
	names namer
	state State
	step  int

	// sample and records carry the BED sample from Sampling to LocalWrite.
	sample  downsample.Sample
	records []interval.Record

	// intermediates are removed at Cleanup unless they are kept.
	intermediates []string
	// output is the final coverage track.
	output string
	err    error
}

// stage is one step of a file pipeline.
type stage struct {
	state State
	run   func(ctx context.Context, t *task) error
}

// filePipeline is the per-format part of file processing.  Exactly one
// implementation is chosen per run.
type filePipeline interface {
	// prepare runs once, before any file task starts.  An error is fatal to
	// the run.
	prepare(ctx context.Context) error
	// newTask sets up the artifact names of a task.
	newTask(in qc.Input) *task
	// stages lists the stages every task goes through before Cleanup.
	stages() []stage
}
