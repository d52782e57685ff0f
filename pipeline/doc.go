// Copyright 2018 GRAIL, Inc.  All rights reserved.
// Use of this source code is governed by the Apache-2.0
// license that can be found in the LICENSE file.

// Package pipeline equalizes sequencing depth across a batch of fragment BED
// or BAM files.
//
// A run measures every input's depth, excludes inputs whose depth falls more
// than Opts.ExcludeSD standard deviations below the mean, and downsamples the
// rest to the smallest remaining depth.  Each downsampled file is then turned
// into a binned coverage track by external tools.  Files are processed
// independently on a fixed pool of workers; one file's failure never affects
// another.
package pipeline
