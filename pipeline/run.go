// Copyright 2018 GRAIL, Inc.  All rights reserved.
// Use of this source code is governed by the Apache-2.0
// license that can be found in the LICENSE file.

package pipeline

import (
	"context"

	"github.com/grailbio/base/errors"
	"github.com/grailbio/base/log"
	"github.com/grailbio/base/traverse"
	"github.com/grailbio/fragnorm/delegate"
	"github.com/grailbio/fragnorm/depth"
	"github.com/grailbio/fragnorm/interval"
	"github.com/grailbio/fragnorm/qc"
)

// Summary is the outcome of a run that got past QC.
type Summary struct {
	QC      qc.Result
	Results []TaskResult
}

// Completed returns the number of tasks that produced a track.
func (s Summary) Completed() int {
	n := 0
	for _, r := range s.Results {
		if r.State == Completed {
			n++
		}
	}
	return n
}

// Env holds the collaborators of a run.
type Env struct {
	// Runner executes external tools.  Required.
	Runner delegate.Runner
	// Observer, if set, receives task transitions.
	Observer Observer
}

func (o *Opts) counter(runner delegate.Runner) depth.Counter {
	switch {
	case o.Format == BED:
		return depth.FragmentCounter{}
	case o.NativeCount:
		return depth.NativeAlignmentCounter{}
	default:
		return depth.AlignmentCounter{Runner: runner}
	}
}

// Measure returns the depth of every input, in input order.  Files are
// measured concurrently; the first failure is returned.
func Measure(ctx context.Context, opts *Opts, counter depth.Counter, paths []string) ([]qc.Input, error) {
	inputs := make([]qc.Input, len(paths))
	err := traverse.Limit(opts.Workers()).Each(len(paths), func(i int) error {
		n, err := counter.Count(ctx, paths[i])
		if err != nil {
			return err
		}
		inputs[i] = qc.Input{Path: paths[i], Depth: n}
		log.Debug.Printf("%s: depth %d", paths[i], n)
		return nil
	})
	return inputs, err
}

// Run downsamples the given files to a common depth and computes their
// coverage tracks.
//
// Errors returned by Run are fatal to the run: no input files, or inputs
// whose artifacts would share a path (errors.Invalid); an unreadable
// chromosome-sizes file; a failed depth measurement (errors.Unavailable for
// samtools); no file passing QC (errors.Precondition); or a failure to build
// the shared genome bins.  Per file failures are only reported in
// Summary.Results.  When QC fails, no file task runs.
func Run(ctx context.Context, opts *Opts, paths []string, env Env) (Summary, error) {
	if len(paths) == 0 {
		return Summary{}, errors.E(errors.Invalid, "no input files")
	}
	if err := opts.Validate(); err != nil {
		return Summary{}, err
	}
	if err := checkArtifactNames(opts, paths); err != nil {
		return Summary{}, err
	}
	var order *interval.ChromOrder
	if opts.Format == BED {
		var err error
		if order, err = interval.NewChromOrderFromPath(opts.ChromSizesPath); err != nil {
			return Summary{}, err
		}
	}
	inputs, err := Measure(ctx, opts, opts.counter(env.Runner), paths)
	if err != nil {
		return Summary{}, err
	}
	result, err := qc.Filter(inputs, opts.ExcludeSD)
	result.Log()
	if opts.QCReportPath != "" {
		if rerr := result.WriteTSVToPath(ctx, opts.QCReportPath); rerr != nil {
			log.Error.Printf("%v", rerr)
		}
	}
	if err != nil {
		return Summary{QC: result}, err
	}
	orch := NewOrchestrator(opts, env.Runner, order, result.Target, env.Observer)
	if err = orch.Prepare(ctx); err != nil {
		return Summary{QC: result}, err
	}
	return Summary{QC: result, Results: orch.Run(ctx, result.Included)}, nil
}
