// Copyright 2018 GRAIL, Inc.  All rights reserved.
// Use of this source code is governed by the Apache-2.0
// license that can be found in the LICENSE file.

package interval

import (
	"sort"
	"strconv"
	"strings"
)

// Record is one data line of a fragment BED file.  The chromosome token and
// start coordinate are parsed on first use; the line itself is never
// modified.
type Record struct {
	// Line is the record text, without the trailing newline.
	Line string

	parsed bool
	chrom  string
	start  uint32
}

// NewRecord wraps a data line.
func NewRecord(line string) Record {
	return Record{Line: line}
}

func (r *Record) parse() {
	if r.parsed {
		return
	}
	r.parsed = true
	rest := r.Line
	if i := strings.IndexByte(rest, '\t'); i >= 0 {
		r.chrom = rest[:i]
		rest = rest[i+1:]
	} else {
		r.chrom = rest
		return
	}
	if i := strings.IndexByte(rest, '\t'); i >= 0 {
		rest = rest[:i]
	}
	// An unparsable start sorts as position 0.
	if v, err := strconv.ParseUint(rest, 10, 32); err == nil {
		r.start = uint32(v)
	}
}

// Chrom returns the leading (tab-delimited) token of the line.
func (r *Record) Chrom() string {
	r.parse()
	return r.chrom
}

// Start returns the second column parsed as an unsigned 32-bit integer, or 0
// if it is missing or malformed.
func (r *Record) Start() uint32 {
	r.parse()
	return r.start
}

// FilterAndSort drops records whose chromosome is not in order, then sorts the
// rest by (chromosome rank, start).  Records that compare equal keep their
// input order.  The returned slice shares storage with records.
func FilterAndSort(records []Record, order *ChromOrder) []Record {
	kept := records[:0]
	for i := range records {
		if order.Contains(records[i].Chrom()) {
			kept = append(kept, records[i])
		}
	}
	sort.SliceStable(kept, func(i, j int) bool {
		ri, _ := order.Rank(kept[i].Chrom())
		rj, _ := order.Rank(kept[j].Chrom())
		if ri != rj {
			return ri < rj
		}
		return kept[i].Start() < kept[j].Start()
	})
	return kept
}
