// Copyright 2018 GRAIL, Inc.  All rights reserved.
// Use of this source code is governed by the Apache-2.0
// license that can be found in the LICENSE file.

package qc

import (
	"context"
	"io"
	"strconv"

	"github.com/grailbio/base/errors"
	"github.com/grailbio/base/file"
	"github.com/grailbio/base/log"
	"github.com/grailbio/base/tsv"
)

func formatFloat(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}

// Log writes the QC statistics and the excluded inputs to the log.
func (r Result) Log() {
	log.Printf("QC: mean=%s sd=%s cutoff=%s target=%d included=%d excluded=%d",
		formatFloat(r.Mean), formatFloat(r.StdDev), formatFloat(r.Cutoff), r.Target,
		len(r.Included), len(r.Excluded))
	if len(r.Excluded) > 0 {
		log.Printf("Excluded inputs with low depth:")
		for _, in := range r.Excluded {
			log.Printf("  %s => %d", in.Path, in.Depth)
		}
	}
}

// WriteTSV writes the QC summary as a TSV.  Comment lines carry the
// statistics; each input gets one "path depth status" row, included first.
func (r Result) WriteTSV(w io.Writer) (err error) {
	tw := tsv.NewWriter(w)
	for _, kv := range [][2]string{
		{"mean", formatFloat(r.Mean)},
		{"sd", formatFloat(r.StdDev)},
		{"cutoff", formatFloat(r.Cutoff)},
		{"target", strconv.FormatInt(r.Target, 10)},
	} {
		tw.WriteString("#" + kv[0])
		tw.WriteString(kv[1])
		if err = tw.EndLine(); err != nil {
			return
		}
	}
	tw.WriteString("path\tdepth\tstatus")
	if err = tw.EndLine(); err != nil {
		return
	}
	for _, group := range [][]Input{r.Included, r.Excluded} {
		for _, in := range group {
			tw.WriteString(in.Path)
			tw.WriteString(strconv.FormatInt(in.Depth, 10))
			tw.WriteString(in.Status.String())
			if err = tw.EndLine(); err != nil {
				return
			}
		}
	}
	return tw.Flush()
}

// WriteTSVToPath writes the WriteTSV output to a new file.
func (r Result) WriteTSVToPath(ctx context.Context, path string) error {
	out, err := file.Create(ctx, path)
	if err != nil {
		return errors.E(err, "create QC report", path)
	}
	if err = r.WriteTSV(out.Writer(ctx)); err != nil {
		_ = out.Close(ctx)
		return errors.E(err, "write QC report", path)
	}
	return out.Close(ctx)
}
