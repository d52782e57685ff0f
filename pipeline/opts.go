// Copyright 2018 GRAIL, Inc.  All rights reserved.
// Use of this source code is governed by the Apache-2.0
// license that can be found in the LICENSE file.

package pipeline

import (
	"fmt"
	"runtime"
	"strings"

	"github.com/grailbio/base/errors"
	"github.com/grailbio/fragnorm/depth"
	"github.com/grailbio/fragnorm/qc"
)

// Format selects the kind of input files.  All inputs of a run share one
// format.
type Format int

const (
	// BED inputs are fragment BED files (optionally gzipped) with a header line.
	BED Format = iota
	// BAM inputs are paired-end alignment files.
	BAM
)

// ParseFormat parses "bed" or "bam", case-insensitively.
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(s) {
	case "bed":
		return BED, nil
	case "bam":
		return BAM, nil
	}
	return BED, errors.E(errors.Invalid, fmt.Sprintf("unknown input type %q; want bed or bam", s))
}

func (f Format) String() string {
	switch f {
	case BED:
		return "bed"
	case BAM:
		return "bam"
	}
	return fmt.Sprintf("Format(%d)", int(f))
}

// External executables, by format.
const (
	bedtools         = "bedtools"
	coreutilsSort    = "sort"
	bedGraphToBigWig = "bedGraphToBigWig"
	bamCoverage      = "bamCoverage"
)

// Tools lists the executables a run with the given options invokes.
func (o *Opts) Tools() []string {
	switch o.Format {
	case BED:
		return []string{bedtools, coreutilsSort, bedGraphToBigWig}
	case BAM:
		return []string{depth.Samtools, bamCoverage}
	}
	return nil
}

// Opts configures a run.  It is built once, usually from command-line flags,
// and passed by pointer; nothing modifies it afterwards.
type Opts struct {
	Format Format
	// ChromSizesPath is the chromosome-sizes file.  Required for BED input.
	ChromSizesPath string
	// BlacklistPath is an optional BED of regions excluded from coverage.
	// Only used for BAM input.
	BlacklistPath string
	// ExcludeSD is the QC threshold: inputs with depth below
	// mean - ExcludeSD*sd are excluded.
	ExcludeSD float64
	// KeepIntervalIntermediates keeps the downsampled BED, sorted BED, bin
	// counts and bedGraph files of BED inputs.
	KeepIntervalIntermediates bool
	// KeepAlignmentIntermediates keeps the downsampled BAM and its index.
	KeepAlignmentIntermediates bool
	// Parallelism is the number of files processed concurrently.  0 means
	// runtime.NumCPU().
	Parallelism int
	// BinSize is the coverage bin width, in bases.
	BinSize int
	// Seed makes sampling reproducible when nonzero.
	Seed int64
	// OutDir receives all outputs.  Empty means next to each input.
	OutDir string
	// NativeCount counts BAM reads in-process instead of through samtools.
	NativeCount bool
	// QCReportPath, if set, receives a TSV summary of the QC step.
	QCReportPath string
}

// DefaultOpts holds the default values of Opts.
var DefaultOpts = Opts{
	Format:    BED,
	ExcludeSD: qc.DefaultExcludeSD,
	BinSize:   50,
}

// Workers returns the number of concurrent file tasks.
func (o *Opts) Workers() int {
	if o.Parallelism > 0 {
		return o.Parallelism
	}
	return runtime.NumCPU()
}

// KeepIntermediates reports whether intermediates of the configured format are
// left on disk.
func (o *Opts) KeepIntermediates() bool {
	if o.Format == BAM {
		return o.KeepAlignmentIntermediates
	}
	return o.KeepIntervalIntermediates
}

// Validate checks option combinations.
func (o *Opts) Validate() error {
	switch o.Format {
	case BED:
		if o.ChromSizesPath == "" {
			return errors.E(errors.Invalid, "a chromosome sizes file is required for bed input")
		}
	case BAM:
	default:
		return errors.E(errors.Invalid, fmt.Sprintf("unknown format %v", o.Format))
	}
	if o.BinSize <= 0 {
		return errors.E(errors.Invalid, fmt.Sprintf("bin size must be positive, got %d", o.BinSize))
	}
	if o.Parallelism < 0 {
		return errors.E(errors.Invalid, fmt.Sprintf("parallelism must be >= 0, got %d", o.Parallelism))
	}
	return nil
}
