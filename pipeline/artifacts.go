// Copyright 2018 GRAIL, Inc.  All rights reserved.
// Use of this source code is governed by the Apache-2.0
// license that can be found in the LICENSE file.

package pipeline

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/grailbio/base/errors"
)

// namer derives output paths from an input path.  Names depend only on the
// input's base name and the output directory; checkArtifactNames rejects
// inputs whose names would collide.
type namer struct {
	dir string
	// name is the input's base name; stem is name without its last extension.
	name, stem string
	bin        int
}

func newNamer(input, outDir string, binSize int) namer {
	dir := outDir
	if dir == "" {
		dir = filepath.Dir(input)
	}
	name := filepath.Base(input)
	return namer{
		dir:  dir,
		name: name,
		stem: strings.TrimSuffix(name, filepath.Ext(name)),
		bin:  binSize,
	}
}

func (n namer) fromStem(suffix string) string { return filepath.Join(n.dir, n.stem+suffix) }
func (n namer) fromName(suffix string) string { return filepath.Join(n.dir, n.name+suffix) }
func (n namer) binned(suffix string) string {
	return n.fromName(fmt.Sprintf("_%dbp%s", n.bin, suffix))
}

// Track is the final coverage track, <name>_<bin>bp.bw.
func (n namer) Track() string { return n.binned(".bw") }

// BED intermediates.
func (n namer) DownsampledBED() string      { return n.fromStem("_downsampled.bed") }
func (n namer) SortedBED() string           { return n.fromStem("_downsampled_sorted.bed") }
func (n namer) BinCounts() string           { return n.binned("_counts.bed") }
func (n namer) BEDGraph() string            { return n.binned(".bedGraph") }
func (n namer) SortedBEDGraph() string      { return n.binned("_sorted.bedGraph") }
func (n namer) DownsampledBAM() string      { return n.fromName("_downsampled.bam") }
func (n namer) DownsampledBAMIndex() string { return n.DownsampledBAM() + ".bai" }

// DownsampledBAMAltIndex is the index name some samtools versions write,
// with .bam replaced by .bai.
func (n namer) DownsampledBAMAltIndex() string { return n.fromName("_downsampled.bai") }

// binsPath is the genome bin file shared by all BED tasks of a run.
func binsPath(outDir string, binSize int) string {
	if outDir == "" {
		outDir = "."
	}
	return filepath.Join(outDir, fmt.Sprintf("genome_%dbp_bins.bed", binSize))
}

// written returns every path a task of the given format may write.
func (n namer) written(f Format) []string {
	if f == BAM {
		return []string{n.Track(), n.DownsampledBAM(), n.DownsampledBAMIndex(), n.DownsampledBAMAltIndex()}
	}
	return []string{n.Track(), n.DownsampledBED(), n.SortedBED(), n.BinCounts(), n.BEDGraph(), n.SortedBEDGraph()}
}

// checkArtifactNames fails with errors.Invalid if two inputs would write the
// same artifact, e.g. the same base name from two directories with OutDir set,
// or one input listed twice.
func checkArtifactNames(opts *Opts, paths []string) error {
	owner := make(map[string]string)
	for _, path := range paths {
		for _, name := range newNamer(path, opts.OutDir, opts.BinSize).written(opts.Format) {
			name = filepath.Clean(name)
			if prev, ok := owner[name]; ok && prev != path {
				return errors.E(errors.Invalid, fmt.Sprintf("inputs %s and %s both write %s", prev, path, name))
			} else if ok {
				return errors.E(errors.Invalid, fmt.Sprintf("input %s is listed more than once", path))
			}
			owner[name] = path
		}
	}
	return nil
}
