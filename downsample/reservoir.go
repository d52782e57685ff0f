// Copyright 2018 GRAIL, Inc.  All rights reserved.
// Use of this source code is governed by the Apache-2.0
// license that can be found in the LICENSE file.

package downsample

import (
	"bufio"
	"bytes"
	"context"
	"io"
	"math/rand"

	"github.com/grailbio/fragnorm/interval"
	"github.com/pkg/errors"
)

// Sample is the result of reservoir-sampling a fragment file.
type Sample struct {
	// Header is the first line of the file, kept verbatim.  It never takes
	// part in sampling.
	Header string
	// HasHeader is false only for an empty file.
	HasHeader bool
	// Lines are the sampled data lines, in reservoir order.
	Lines []string
	// Seen is the number of data lines read.
	Seen int64
}

// Reservoir draws a uniformly random subset of exactly min(target, m) lines
// from a stream of m data lines, in a single pass, using Algorithm R.  The
// first line of the stream is a header and is excluded; blank lines are
// skipped.
func Reservoir(r io.Reader, target int, random *rand.Rand) (Sample, error) {
	if target < 0 {
		return Sample{}, errors.Errorf("negative sample size %d", target)
	}
	scanner := bufio.NewScanner(r)
	scanner.Buffer(nil, interval.MaxLineLen)
	s := Sample{}
	if scanner.Scan() {
		s.Header = scanner.Text()
		s.HasHeader = true
	}
	s.Lines = make([]string, 0, target)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(bytes.TrimSpace(line)) == 0 {
			continue
		}
		i := s.Seen
		s.Seen++
		if i < int64(target) {
			s.Lines = append(s.Lines, string(line))
			continue
		}
		if j := random.Int63n(i + 1); j < int64(target) {
			s.Lines[j] = string(line)
		}
	}
	if err := scanner.Err(); err != nil {
		return Sample{}, errors.Wrap(err, "error reading fragments")
	}
	return s, nil
}

// ReservoirFromPath opens a (possibly gzipped) fragment file and runs
// Reservoir on it.
func ReservoirFromPath(ctx context.Context, path string, target int, random *rand.Rand) (s Sample, err error) {
	in, err := interval.OpenText(ctx, path)
	if err != nil {
		return Sample{}, errors.Wrapf(err, "error opening %s", path)
	}
	defer func() {
		if cerr := in.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}()
	if s, err = Reservoir(in, target, random); err != nil {
		return Sample{}, errors.Wrap(err, path)
	}
	return s, nil
}
