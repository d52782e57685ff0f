// Copyright 2018 GRAIL, Inc.  All rights reserved.
// Use of this source code is governed by the Apache-2.0
// license that can be found in the LICENSE file.

package interval

import (
	"bufio"
	"context"
	"io"

	"github.com/grailbio/base/errors"
	"github.com/grailbio/base/file"
	"github.com/grailbio/base/fileio"
	"github.com/klauspost/compress/gzip"
)

// MaxLineLen bounds the length of a single line of a text interval file.
const MaxLineLen = 1 << 20

type textReader struct {
	io.Reader
	ctx context.Context
	f   file.File
	gz  *gzip.Reader
}

func (r *textReader) Close() error {
	e := errors.Once{}
	if r.gz != nil {
		e.Set(r.gz.Close())
	}
	e.Set(r.f.Close(r.ctx))
	return e.Err()
}

// OpenText opens a text interval file for reading.  Files whose name marks
// them as gzip-compressed are decompressed transparently.
func OpenText(ctx context.Context, path string) (io.ReadCloser, error) {
	f, err := file.Open(ctx, path)
	if err != nil {
		return nil, err
	}
	r := &textReader{Reader: f.Reader(ctx), ctx: ctx, f: f}
	if fileio.DetermineType(path) == fileio.Gzip {
		if r.gz, err = gzip.NewReader(r.Reader); err != nil {
			_ = f.Close(ctx)
			return nil, errors.E(err, "gzip", path)
		}
		r.Reader = r.gz
	}
	return r, nil
}

// bedGraphColumns is the number of leading columns kept by ProjectBEDGraph:
// chrom, start, end, count.
const bedGraphColumns = 4

// ProjectBEDGraph copies the first four whitespace-delimited columns of every
// non-blank line of r to w, tab separated.  Missing columns are written as
// empty fields.  It turns the output of a per-bin counting tool into bedGraph.
func ProjectBEDGraph(r io.Reader, w io.Writer) error {
	var tokens [bedGraphColumns][]byte
	scanner := bufio.NewScanner(r)
	scanner.Buffer(nil, MaxLineLen)
	bw := bufio.NewWriter(w)
	for scanner.Scan() {
		n := getTokens(tokens[:], scanner.Bytes())
		if n == 0 {
			continue
		}
		for i := 0; i < bedGraphColumns; i++ {
			if i > 0 {
				bw.WriteByte('\t')
			}
			if i < n {
				bw.Write(tokens[i])
			}
		}
		if err := bw.WriteByte('\n'); err != nil {
			return err
		}
	}
	if err := scanner.Err(); err != nil {
		return err
	}
	return bw.Flush()
}

// WriteBEDGraph runs ProjectBEDGraph from srcPath into a new file at dstPath.
func WriteBEDGraph(ctx context.Context, srcPath, dstPath string) (err error) {
	in, err := OpenText(ctx, srcPath)
	if err != nil {
		return errors.E(err, "open", srcPath)
	}
	defer func() {
		if cerr := in.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}()
	out, err := file.Create(ctx, dstPath)
	if err != nil {
		return errors.E(err, "create", dstPath)
	}
	if err = ProjectBEDGraph(in, out.Writer(ctx)); err != nil {
		_ = out.Close(ctx)
		return errors.E(err, "write", dstPath)
	}
	return out.Close(ctx)
}
