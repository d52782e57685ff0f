// Copyright 2018 GRAIL, Inc.  All rights reserved.
// Use of this source code is governed by the Apache-2.0
// license that can be found in the LICENSE file.

// Package qc excludes inputs whose depth is an outlier on the low side and
// picks the common depth every remaining input is downsampled to.
package qc

import (
	"fmt"
	"math"

	"github.com/grailbio/base/errors"
	"gonum.org/v1/gonum/stat"
)

// DefaultExcludeSD is the default number of standard deviations below the mean
// at which an input is excluded.
const DefaultExcludeSD = 1.5

// Status is an input's QC verdict.
type Status int

const (
	// Included inputs are downsampled and processed.
	Included Status = iota
	// Excluded inputs are reported and skipped.
	Excluded
)

func (s Status) String() string {
	switch s {
	case Included:
		return "included"
	case Excluded:
		return "excluded"
	}
	return fmt.Sprintf("Status(%d)", int(s))
}

// Input is one input file with its measured depth.  Status is set by Filter
// and not changed afterwards.
type Input struct {
	Path   string
	Depth  int64
	Status Status
}

// Result holds the QC statistics and the partition of the inputs.
type Result struct {
	// Mean and StdDev are over all input depths; StdDev is the population
	// standard deviation (divisor n).
	Mean, StdDev float64
	// Cutoff is max(0, Mean - k*StdDev).  Inputs with depth >= Cutoff are
	// included.
	Cutoff float64
	// Included and Excluded preserve the input order.
	Included, Excluded []Input
	// Target is the minimum depth among the included inputs.
	Target int64
}

// Filter computes the QC statistics for the given inputs and partitions them.
// k is the exclusion threshold in standard deviations.  It fails with an
// errors.Invalid error when there are no inputs, and with an
// errors.Precondition error when no input passes the cutoff.
func Filter(inputs []Input, k float64) (Result, error) {
	if len(inputs) == 0 {
		return Result{}, errors.E(errors.Invalid, "qc.Filter: no inputs")
	}
	depths := make([]float64, len(inputs))
	for i, in := range inputs {
		depths[i] = float64(in.Depth)
	}
	r := Result{}
	r.Mean, r.StdDev = stat.PopMeanStdDev(depths, nil)
	r.Cutoff = math.Max(0, r.Mean-k*r.StdDev)
	for _, in := range inputs {
		if float64(in.Depth) >= r.Cutoff {
			in.Status = Included
			r.Included = append(r.Included, in)
			if len(r.Included) == 1 || in.Depth < r.Target {
				r.Target = in.Depth
			}
		} else {
			in.Status = Excluded
			r.Excluded = append(r.Excluded, in)
		}
	}
	if len(r.Included) == 0 {
		return r, errors.E(errors.Precondition,
			fmt.Sprintf("no input passes the QC cutoff %g (mean %g, sd %g)", r.Cutoff, r.Mean, r.StdDev))
	}
	return r, nil
}
