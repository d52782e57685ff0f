// Copyright 2018 GRAIL, Inc.  All rights reserved.
// Use of this source code is governed by the Apache-2.0
// license that can be found in the LICENSE file.

package interval

import (
	"bufio"
	"io"

	"github.com/grailbio/base/errors"
	"github.com/grailbio/base/file"
	"github.com/grailbio/base/vcontext"
)

// getTokens identifies up to the first len(tokens) tokens from curLine,
// returning the number of tokens saved.  Any (group of) characters <= ' ' is
// treated as a delimiter.
func getTokens(tokens [][]byte, curLine []byte) int {
	posEnd := 0
	lineLen := len(curLine)
	for tokenIdx := range tokens {
		pos := posEnd
		for ; pos != lineLen; pos++ {
			if curLine[pos] > ' ' {
				break
			}
		}
		if pos == lineLen {
			return tokenIdx
		}
		posEnd = pos
		for ; posEnd != lineLen; posEnd++ {
			if curLine[posEnd] <= ' ' {
				break
			}
		}
		tokens[tokenIdx] = curLine[pos:posEnd]
	}
	return len(tokens)
}

// ChromOrder maps a chromosome name to its rank in a chromosome-sizes file.
// It is immutable once built, so it can be shared across goroutines without
// locking.
type ChromOrder struct {
	ranks map[string]int
}

// NewChromOrder reads a chromosome-sizes stream: one chromosome per line,
// whitespace-separated fields, name first.  Blank lines are skipped and do not
// consume a rank.  Remaining fields (usually the length) are ignored here;
// they are consumed by the external tools.  If a name appears more than once,
// the last rank wins.
func NewChromOrder(r io.Reader) (*ChromOrder, error) {
	o := &ChromOrder{ranks: make(map[string]int)}
	var tokens [1][]byte
	scanner := bufio.NewScanner(r)
	rank := 0
	for scanner.Scan() {
		if getTokens(tokens[:], scanner.Bytes()) == 0 {
			continue
		}
		o.ranks[string(tokens[0])] = rank
		rank++
	}
	if err := scanner.Err(); err != nil {
		return nil, errors.E(err, "interval.NewChromOrder")
	}
	return o, nil
}

// NewChromOrderFromPath is a wrapper for NewChromOrder that takes a path
// instead of an io.Reader.
func NewChromOrderFromPath(path string) (o *ChromOrder, err error) {
	ctx := vcontext.Background()
	var in file.File
	if in, err = file.Open(ctx, path); err != nil {
		return nil, errors.E(err, "open chromosome sizes", path)
	}
	defer func() {
		if cerr := in.Close(ctx); cerr != nil && err == nil {
			err = cerr
		}
	}()
	if o, err = NewChromOrder(in.Reader(ctx)); err != nil {
		return nil, errors.E(err, path)
	}
	return o, nil
}

// Rank returns the 0-based rank of the named chromosome.  ok is false if the
// chromosome is not listed.
func (o *ChromOrder) Rank(name string) (rank int, ok bool) {
	rank, ok = o.ranks[name]
	return
}

// Contains reports whether the chromosome is listed.
func (o *ChromOrder) Contains(name string) bool {
	_, ok := o.ranks[name]
	return ok
}

// Len returns the number of distinct chromosome names.
func (o *ChromOrder) Len() int { return len(o.ranks) }
