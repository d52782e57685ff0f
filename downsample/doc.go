// Copyright 2018 GRAIL, Inc.  All rights reserved.
// Use of this source code is governed by the Apache-2.0
// license that can be found in the LICENSE file.

// Package downsample reduces an input file to a target depth.
//
// Fragment BED files are reduced by reservoir sampling, which yields exactly
// min(target, m) records.  BAM files are reduced by samtools' per-read
// probabilistic subsampling, for which this package computes the retention
// fraction; the number of reads kept is only target in expectation.
package downsample
