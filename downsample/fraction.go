// Copyright 2018 GRAIL, Inc.  All rights reserved.
// Use of this source code is governed by the Apache-2.0
// license that can be found in the LICENSE file.

package downsample

import (
	"strconv"
	"strings"
)

// DefaultSubsampleSeed is the integer part of the samtools "-s" argument used
// when no seed is configured.
const DefaultSubsampleSeed = 42

// Fraction returns the probability with which each read of a file of the
// given depth must be kept to reach target reads in expectation, capped at 1.
// A file with no reads keeps everything.
func Fraction(target, depth int64) float64 {
	if depth <= 0 || target >= depth {
		return 1
	}
	if target <= 0 {
		return 0
	}
	return float64(target) / float64(depth)
}

// minFractionDigits are the fractional digits passed for a zero fraction.
// samtools treats an all-zero fractional part as "keep everything", so the
// smallest retention probability it can parse stands in for zero.
const minFractionDigits = "000000001"

// SubsampleArg builds the samtools "view -s" argument SEED.FRAC for the given
// fraction: the integer part seeds the sampler and the fractional digits are
// the retention probability, written exactly.  ok is false when fraction >= 1,
// in which case no subsampling option should be passed at all; samtools would
// otherwise read "42.1000" as a fraction of 0.1.
func SubsampleArg(seed int64, fraction float64) (arg string, ok bool) {
	if fraction >= 1 {
		return "", false
	}
	var digits string
	if fraction > 0 {
		s := strconv.FormatFloat(fraction, 'f', -1, 64)
		digits = s[strings.IndexByte(s, '.')+1:]
	}
	if strings.Trim(digits, "0") == "" {
		digits = minFractionDigits
	}
	if seed < 0 {
		seed = -seed
	}
	return strconv.FormatInt(seed, 10) + "." + digits, true
}
