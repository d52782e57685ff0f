// Copyright 2018 GRAIL, Inc.  All rights reserved.
// Use of this source code is governed by the Apache-2.0
// license that can be found in the LICENSE file.

package downsample

import (
	"math/rand"
	"path/filepath"
	"time"

	farm "github.com/dgryski/go-farm"
)

// NewRand returns the random source used to sample one file.  With seed == 0
// the source is seeded from the clock, so every run differs.  Otherwise the
// seed is mixed with a hash of the file's base name: the result depends only
// on (seed, name), not on which worker picks the file up or when.
func NewRand(seed int64, path string) *rand.Rand {
	if seed == 0 {
		return rand.New(rand.NewSource(time.Now().UnixNano() ^ int64(farm.Hash64([]byte(path)))))
	}
	return rand.New(rand.NewSource(int64(farm.Hash64WithSeed([]byte(filepath.Base(path)), uint64(seed)))))
}
