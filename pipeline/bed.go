// Copyright 2018 GRAIL, Inc.  All rights reserved.
// Use of this source code is governed by the Apache-2.0
// license that can be found in the LICENSE file.

package pipeline

import (
	"bufio"
	"context"
	"strconv"

	"github.com/grailbio/base/errors"
	"github.com/grailbio/base/file"
	"github.com/grailbio/base/log"
	"github.com/grailbio/fragnorm/delegate"
	"github.com/grailbio/fragnorm/downsample"
	"github.com/grailbio/fragnorm/interval"
	"github.com/grailbio/fragnorm/qc"
)

// bedPipeline reservoir-samples a fragment BED to exactly the target depth,
// writes it in chromosome order, and turns it into a binned coverage track
// with bedtools and bedGraphToBigWig.
type bedPipeline struct {
	opts   *Opts
	runner delegate.Runner
	order  *interval.ChromOrder
	target int64
	bins   string
}

func newBEDPipeline(opts *Opts, runner delegate.Runner, order *interval.ChromOrder, target int64) *bedPipeline {
	return &bedPipeline{
		opts:   opts,
		runner: runner,
		order:  order,
		target: target,
		bins:   binsPath(opts.OutDir, opts.BinSize),
	}
}

// prepare creates the genome bin file, unless a non-empty one already exists.
func (p *bedPipeline) prepare(ctx context.Context) error {
	if info, err := file.Stat(ctx, p.bins); err == nil && info.Size() > 0 {
		log.Debug.Printf("reusing bins %s", p.bins)
		return nil
	}
	err := p.runner.Run(ctx, delegate.Command{
		Name:   bedtools,
		Args:   []string{"makewindows", "-g", p.opts.ChromSizesPath, "-w", strconv.Itoa(p.opts.BinSize)},
		Stdout: p.bins,
	})
	if err != nil {
		return errors.E(err, "make genome bins")
	}
	info, err := file.Stat(ctx, p.bins)
	if err != nil {
		return errors.E(err, "make genome bins")
	}
	if info.Size() == 0 {
		return errors.E(errors.Invalid, "bedtools makewindows produced an empty bins file", p.bins)
	}
	return nil
}

func (p *bedPipeline) newTask(in qc.Input) *task {
	n := newNamer(in.Path, p.opts.OutDir, p.opts.BinSize)
	return &task{
		input: in,
		names: n,
		intermediates: []string{
			n.DownsampledBED(),
			n.SortedBED(),
			n.BinCounts(),
			n.BEDGraph(),
			n.SortedBEDGraph(),
		},
		output: n.Track(),
	}
}

func (p *bedPipeline) stages() []stage {
	return []stage{
		{Sampling, p.sample},
		{LocalWrite, p.write},
		{NormalizeOrder, p.sort},
		{CoverageCompute, p.coverage},
		{TrackEncode, p.encode},
	}
}

func (p *bedPipeline) sample(ctx context.Context, t *task) error {
	random := downsample.NewRand(p.opts.Seed, t.input.Path)
	s, err := downsample.ReservoirFromPath(ctx, t.input.Path, int(p.target), random)
	if err != nil {
		return err
	}
	records := make([]interval.Record, len(s.Lines))
	for i, line := range s.Lines {
		records[i] = interval.NewRecord(line)
	}
	t.sample = s
	t.records = interval.FilterAndSort(records, p.order)
	if dropped := len(records) - len(t.records); dropped > 0 {
		log.Debug.Printf("%s: dropped %d sampled records on unlisted chromosomes", t.input.Path, dropped)
	}
	return nil
}

func (p *bedPipeline) write(ctx context.Context, t *task) error {
	path := t.names.DownsampledBED()
	out, err := file.Create(ctx, path)
	if err != nil {
		return errors.E(err, "create", path)
	}
	w := bufio.NewWriter(out.Writer(ctx))
	if t.sample.HasHeader {
		w.WriteString(t.sample.Header)
		w.WriteByte('\n')
	}
	for _, r := range t.records {
		w.WriteString(r.Line)
		w.WriteByte('\n')
	}
	if err = w.Flush(); err != nil {
		_ = out.Close(ctx)
		return errors.E(err, "write", path)
	}
	// The sample is no longer needed; release it before the long delegated
	// stages.
	t.sample, t.records = downsample.Sample{}, nil
	return out.Close(ctx)
}

func (p *bedPipeline) sort(ctx context.Context, t *task) error {
	return p.runner.Run(ctx, delegate.Command{
		Name:   bedtools,
		Args:   []string{"sort", "-faidx", p.opts.ChromSizesPath, "-i", t.names.DownsampledBED()},
		Stdout: t.names.SortedBED(),
	})
}

func (p *bedPipeline) coverage(ctx context.Context, t *task) error {
	return p.runner.Run(ctx, delegate.Command{
		Name:   bedtools,
		Args:   []string{"coverage", "-a", p.bins, "-b", t.names.SortedBED(), "-counts"},
		Stdout: t.names.BinCounts(),
	})
}

func (p *bedPipeline) encode(ctx context.Context, t *task) error {
	if err := interval.WriteBEDGraph(ctx, t.names.BinCounts(), t.names.BEDGraph()); err != nil {
		return err
	}
	err := p.runner.Run(ctx, delegate.Command{
		Name:   coreutilsSort,
		Args:   []string{"--parallel=1", "-k1,1", "-k2,2n", t.names.BEDGraph()},
		Stdout: t.names.SortedBEDGraph(),
	})
	if err != nil {
		return err
	}
	return p.runner.Run(ctx, delegate.Command{
		Name: bedGraphToBigWig,
		Args: []string{t.names.SortedBEDGraph(), p.opts.ChromSizesPath, t.output},
	})
}
