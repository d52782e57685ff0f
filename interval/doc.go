// Copyright 2018 GRAIL, Inc.  All rights reserved.
// Use of this source code is governed by the Apache-2.0
// license that can be found in the LICENSE file.

/*Package interval handles the text side of fragment BED files: chromosome
  ordering loaded from a chromosome-sizes file, lazily parsed records, the
  deterministic (rank, start) ordering applied before writing a downsampled
  file, and the column projection that turns per-bin counts into bedGraph.
*/
package interval
