// Copyright 2018 GRAIL, Inc.  All rights reserved.
// Use of this source code is governed by the Apache-2.0
// license that can be found in the LICENSE file.

package pipeline

import "fmt"

// State is the position of a file task in its lifecycle:
//
//	Queued -> Sampling -> LocalWrite -> NormalizeOrder -> CoverageCompute
//	  -> TrackEncode -> Cleanup -> Completed | Failed
//
// BAM tasks skip LocalWrite and CoverageCompute: samtools writes the sample
// and bamCoverage both counts and encodes.  A failing stage jumps straight to
// Cleanup, then Failed.
type State int

const (
	Queued State = iota
	Sampling
	LocalWrite
	NormalizeOrder
	CoverageCompute
	TrackEncode
	Cleanup
	Completed
	Failed
)

var stateNames = [...]string{
	Queued:          "queued",
	Sampling:        "sampling",
	LocalWrite:      "writing",
	NormalizeOrder:  "sorting",
	CoverageCompute: "counting",
	TrackEncode:     "encoding",
	Cleanup:         "cleanup",
	Completed:       "completed",
	Failed:          "failed",
}

func (s State) String() string {
	if s >= 0 && int(s) < len(stateNames) {
		return stateNames[s]
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// Terminal reports whether s is Completed or Failed.
func (s State) Terminal() bool {
	return s == Completed || s == Failed
}
