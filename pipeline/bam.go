// Copyright 2018 GRAIL, Inc.  All rights reserved.
// Use of this source code is governed by the Apache-2.0
// license that can be found in the LICENSE file.

package pipeline

import (
	"context"
	"strconv"

	"github.com/grailbio/base/log"
	"github.com/grailbio/fragnorm/delegate"
	"github.com/grailbio/fragnorm/depth"
	"github.com/grailbio/fragnorm/downsample"
	"github.com/grailbio/fragnorm/qc"
)

// bamPipeline subsamples a BAM with samtools, keeping each usable read with
// probability target/depth, and hands the result to bamCoverage.  Unlike the
// BED path the number of reads kept is only target in expectation.
type bamPipeline struct {
	opts   *Opts
	runner delegate.Runner
	target int64
}

func newBAMPipeline(opts *Opts, runner delegate.Runner, target int64) *bamPipeline {
	return &bamPipeline{opts: opts, runner: runner, target: target}
}

func (p *bamPipeline) prepare(ctx context.Context) error { return nil }

func (p *bamPipeline) newTask(in qc.Input) *task {
	n := newNamer(in.Path, p.opts.OutDir, p.opts.BinSize)
	return &task{
		input: in,
		names: n,
		intermediates: []string{
			n.DownsampledBAM(),
			n.DownsampledBAMIndex(),
			n.DownsampledBAMAltIndex(),
		},
		output: n.Track(),
	}
}

func (p *bamPipeline) stages() []stage {
	return []stage{
		{Sampling, p.sample},
		{NormalizeOrder, p.index},
		{TrackEncode, p.coverage},
	}
}

func (p *bamPipeline) subsampleSeed() int64 {
	if p.opts.Seed != 0 {
		return p.opts.Seed
	}
	return downsample.DefaultSubsampleSeed
}

func (p *bamPipeline) sample(ctx context.Context, t *task) error {
	fraction := downsample.Fraction(p.target, t.input.Depth)
	args := []string{"view", "-b"}
	if arg, ok := downsample.SubsampleArg(p.subsampleSeed(), fraction); ok {
		args = append(args, "-s", arg)
	}
	args = append(args, depth.FilterArgs()...)
	args = append(args, t.input.Path)
	log.Debug.Printf("%s: keeping fraction %g of %d reads", t.input.Path, fraction, t.input.Depth)
	return p.runner.Run(ctx, delegate.Command{
		Name:   depth.Samtools,
		Args:   args,
		Stdout: t.names.DownsampledBAM(),
	})
}

func (p *bamPipeline) index(ctx context.Context, t *task) error {
	return p.runner.Run(ctx, delegate.Command{
		Name: depth.Samtools,
		Args: []string{"index", t.names.DownsampledBAM()},
	})
}

func (p *bamPipeline) coverage(ctx context.Context, t *task) error {
	args := []string{
		"-p", "1",
		"-b", t.names.DownsampledBAM(),
		"--binSize", strconv.Itoa(p.opts.BinSize),
		"--normalizeUsing", "None",
		"-o", t.output,
	}
	if p.opts.BlacklistPath != "" {
		args = append(args, "--blackListFileName", p.opts.BlacklistPath)
	}
	return p.runner.Run(ctx, delegate.Command{Name: bamCoverage, Args: args})
}
