// Copyright 2018 GRAIL, Inc.  All rights reserved.
// Use of this source code is governed by the Apache-2.0
// license that can be found in the LICENSE file.

/*
bio-fragnorm downsamples a batch of fragment BED or paired-end BAM files to a
common depth and computes a binned coverage track (bigWig) for each.

Files whose depth is more than -exclude-sd standard deviations below the batch
mean are excluded; the remaining files are downsampled to the smallest
remaining depth.  Coverage is computed by bedtools and bedGraphToBigWig for BED
input, and by deepTools bamCoverage for BAM input.
*/
package main

import (
	stdlog "log"
	"os"

	"github.com/grailbio/base/cmdutil"
	"github.com/grailbio/base/errors"
	"github.com/grailbio/base/log"
	"github.com/grailbio/base/vcontext"
	"github.com/grailbio/fragnorm/delegate"
	"github.com/grailbio/fragnorm/pipeline"
	"v.io/x/lib/cmdline"
)

// Exit statuses of fatal errors.  Usage errors exit with cmdline's status 2.
const (
	exitFailure      = 1
	exitNoneIncluded = 3
	exitUnavailable  = 4
)

// exitCode maps a fatal run error to the process exit status.
func exitCode(err error) cmdline.ErrExitCode {
	switch {
	case errors.Is(errors.Precondition, err):
		return exitNoneIncluded
	case errors.Is(errors.Unavailable, err):
		return exitUnavailable
	}
	return exitFailure
}

func newCmdRoot() *cmdline.Command {
	cmd := &cmdline.Command{
		Name:     "bio-fragnorm",
		Short:    "Equalize the depth of fragment files and compute coverage tracks",
		ArgsName: "file...",
		LookPath: false,
	}
	opts := pipeline.DefaultOpts
	var (
		format   string
		progress bool
	)
	cmd.Flags.StringVar(&format, "input-type", opts.Format.String(), "Input file type: bed (fragment BED, optionally gzipped) or bam")
	cmd.Flags.StringVar(&opts.ChromSizesPath, "chrom-sizes", "", "Chromosome sizes file; required for bed input")
	cmd.Flags.StringVar(&opts.BlacklistPath, "blacklist", "", "BED of regions excluded from coverage; bam input only")
	cmd.Flags.Float64Var(&opts.ExcludeSD, "exclude-sd", opts.ExcludeSD, "Exclude files whose depth is more than this many standard deviations below the mean")
	cmd.Flags.BoolVar(&opts.KeepIntervalIntermediates, "keep-bedgraph", false, "Keep the downsampled BED, bin counts and bedGraph files")
	cmd.Flags.BoolVar(&opts.KeepAlignmentIntermediates, "keep-tmp-bam", false, "Keep the downsampled BAM and its index")
	cmd.Flags.IntVar(&opts.Parallelism, "threads", 0, "Number of files processed concurrently; 0 = runtime.NumCPU()")
	cmd.Flags.IntVar(&opts.BinSize, "bin-size", opts.BinSize, "Coverage bin width, in bases")
	cmd.Flags.Int64Var(&opts.Seed, "seed", 0, "Random seed; 0 samples differently on every run")
	cmd.Flags.StringVar(&opts.OutDir, "out-dir", "", "Output directory; by default outputs are written next to each input")
	cmd.Flags.BoolVar(&opts.NativeCount, "native-count", false, "Count BAM reads in-process instead of with samtools")
	cmd.Flags.StringVar(&opts.QCReportPath, "qc-report", "", "If set, write the QC statistics and per-file status as TSV to this path")
	cmd.Flags.BoolVar(&progress, "progress", false, "Show a progress bar per file on stderr")

	cmd.Runner = cmdutil.RunnerFunc(func(env *cmdline.Env, argv []string) error {
		if len(argv) == 0 {
			return env.UsageErrorf("no input files")
		}
		var err error
		if opts.Format, err = pipeline.ParseFormat(format); err != nil {
			return env.UsageErrorf("%v", err)
		}
		if err = opts.Validate(); err != nil {
			return env.UsageErrorf("%v", err)
		}
		return run(&opts, argv, progress)
	})
	return cmd
}

func run(opts *pipeline.Opts, paths []string, showProgress bool) error {
	if err := delegate.CheckTools(opts.Tools()...); err != nil {
		log.Error.Printf("%v", err)
		return exitCode(err)
	}
	env := pipeline.Env{Runner: delegate.ExecRunner{}}
	var bars *progress
	if showProgress {
		bars = newProgress(os.Stderr)
		env.Observer = bars
	}
	s, err := pipeline.Run(vcontext.Background(), opts, paths, env)
	if bars != nil {
		bars.Wait()
	}
	if err != nil {
		log.Error.Printf("%v", err)
		return exitCode(err)
	}
	completed := s.Completed()
	log.Printf("%d of %d files completed, %d failed, %d excluded by QC",
		completed, len(s.Results), len(s.Results)-completed, len(s.QC.Excluded))
	for _, r := range s.Results {
		if r.State == pipeline.Failed {
			log.Printf("failed: %s: %v", r.Input, r.Err)
		}
	}
	return nil
}

func main() {
	stdlog.SetFlags(stdlog.Ldate | stdlog.Ltime | stdlog.Lmicroseconds | stdlog.Lshortfile)
	cmdline.HideGlobalFlagsExcept()
	cmdline.Main(newCmdRoot())
}
