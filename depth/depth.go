// Copyright 2018 GRAIL, Inc.  All rights reserved.
// Use of this source code is governed by the Apache-2.0
// license that can be found in the LICENSE file.

// Package depth measures the usable depth of an input file: the number of
// fragments in a fragment BED, or the number of properly paired, primary,
// mapped reads in a BAM.
package depth

import (
	"bufio"
	"bytes"
	"context"
	"io"
	"strconv"

	"github.com/grailbio/base/errors"
	"github.com/grailbio/base/file"
	"github.com/grailbio/base/log"
	"github.com/grailbio/fragnorm/delegate"
	"github.com/grailbio/fragnorm/interval"
	"github.com/grailbio/hts/bam"
	"github.com/grailbio/hts/sam"
)

// Counter measures the depth of one input file.
type Counter interface {
	Count(ctx context.Context, path string) (int64, error)
}

// RequiredFlags must all be set for a read to count toward depth.
const RequiredFlags = sam.ProperPair

// ExcludedFlags must all be clear for a read to count toward depth.
const ExcludedFlags = sam.Secondary | sam.Unmapped

// Usable reports whether a read with the given flags is properly paired,
// primary and mapped.
func Usable(f sam.Flags) bool {
	return f&RequiredFlags == RequiredFlags && f&ExcludedFlags == 0
}

// FilterArgs expresses the Usable predicate in samtools flag syntax,
// "-f 2 -F 260".
func FilterArgs() []string {
	return []string{
		"-f", strconv.Itoa(int(RequiredFlags)),
		"-F", strconv.Itoa(int(ExcludedFlags)),
	}
}

// Samtools is the executable used for delegated alignment counting and
// subsampling.
const Samtools = "samtools"

// FragmentCounter counts fragments in a (possibly gzipped) BED file.
type FragmentCounter struct{}

// Count implements Counter.  The first line is always treated as a header and
// skipped, even if it holds a record; blank lines are not counted.
func (FragmentCounter) Count(ctx context.Context, path string) (n int64, err error) {
	in, err := interval.OpenText(ctx, path)
	if err != nil {
		return 0, errors.E(err, "open", path)
	}
	defer func() {
		if cerr := in.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}()
	if n, err = CountFragments(in); err != nil {
		return 0, errors.E(err, "count fragments", path)
	}
	return n, nil
}

// CountFragments counts the non-blank lines of r after the first line.
func CountFragments(r io.Reader) (int64, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(nil, interval.MaxLineLen)
	var n int64
	for lineIdx := 0; scanner.Scan(); lineIdx++ {
		if lineIdx == 0 {
			continue
		}
		if len(bytes.TrimSpace(scanner.Bytes())) > 0 {
			n++
		}
	}
	return n, scanner.Err()
}

// AlignmentCounter counts usable reads by running "samtools view -c" with the
// Usable filter.
type AlignmentCounter struct {
	Runner delegate.Runner
}

// Count implements Counter.  A failed invocation is an error; output that does
// not parse as an unsigned integer counts as zero.
func (c AlignmentCounter) Count(ctx context.Context, path string) (int64, error) {
	args := append([]string{"view", "-c"}, FilterArgs()...)
	args = append(args, path)
	out, err := c.Runner.Output(ctx, delegate.Command{Name: Samtools, Args: args})
	if err != nil {
		return 0, errors.E(errors.Unavailable, err, "count reads", path)
	}
	n, err := strconv.ParseUint(string(bytes.TrimSpace(out)), 10, 63)
	if err != nil {
		log.Error.Printf("%s: unparsable read count %q, using 0", path, bytes.TrimSpace(out))
		return 0, nil
	}
	return int64(n), nil
}

// NativeAlignmentCounter reads the BAM in-process and applies Usable to every
// record.  It needs no external tool.
type NativeAlignmentCounter struct {
	// Parallelism is the number of BGZF decompression goroutines; 0 means 1.
	Parallelism int
}

// Count implements Counter.
func (c NativeAlignmentCounter) Count(ctx context.Context, path string) (n int64, err error) {
	in, err := file.Open(ctx, path)
	if err != nil {
		return 0, errors.E(err, "open", path)
	}
	defer func() {
		if cerr := in.Close(ctx); cerr != nil && err == nil {
			err = cerr
		}
	}()
	parallelism := c.Parallelism
	if parallelism <= 0 {
		parallelism = 1
	}
	r, err := bam.NewReader(in.Reader(ctx), parallelism)
	if err != nil {
		return 0, errors.E(err, "read BAM header", path)
	}
	defer func() {
		if cerr := r.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}()
	for {
		rec, rerr := r.Read()
		if rerr == io.EOF {
			break
		}
		if rerr != nil {
			return 0, errors.E(rerr, "read BAM record", path)
		}
		if Usable(rec.Flags) {
			n++
		}
		sam.PutInFreePool(rec)
	}
	return n, nil
}
