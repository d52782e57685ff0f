// Copyright 2018 GRAIL, Inc.  All rights reserved.
// Use of this source code is governed by the Apache-2.0
// license that can be found in the LICENSE file.

package main

import (
	"io"
	"path/filepath"
	"sync"

	"github.com/grailbio/fragnorm/pipeline"
	"github.com/vbauerster/mpb/v8"
	"github.com/vbauerster/mpb/v8/decor"
)

// progress renders one bar per file task.  It implements pipeline.Observer.
type progress struct {
	p *mpb.Progress

	mu   sync.Mutex
	bars map[string]*mpb.Bar

	// smu guards states.  It is taken by decorators on the render goroutine,
	// so it is never held across an mpb call.
	smu    sync.Mutex
	states map[string]pipeline.State
}

func newProgress(w io.Writer) *progress {
	return &progress{
		p:      mpb.New(mpb.WithWidth(30), mpb.WithOutput(w)),
		bars:   make(map[string]*mpb.Bar),
		states: make(map[string]pipeline.State),
	}
}

func (pr *progress) state(path string) string {
	pr.smu.Lock()
	defer pr.smu.Unlock()
	return pr.states[path].String()
}

// Observe implements pipeline.Observer.
func (pr *progress) Observe(e pipeline.Event) {
	pr.smu.Lock()
	pr.states[e.Path] = e.State
	pr.smu.Unlock()

	pr.mu.Lock()
	bar, ok := pr.bars[e.Path]
	if !ok {
		name := filepath.Base(e.Path)
		bar = pr.p.AddBar(int64(e.Steps),
			mpb.PrependDecorators(
				decor.Name(name, decor.WCSyncSpaceR),
				decor.Any(func(decor.Statistics) string { return pr.state(e.Path) }, decor.WCSyncSpaceR),
			),
			mpb.AppendDecorators(decor.CountersNoUnit("%d / %d", decor.WCSyncWidth)),
		)
		pr.bars[e.Path] = bar
	}
	pr.mu.Unlock()

	switch e.State {
	case pipeline.Completed:
		bar.SetTotal(-1, true)
	case pipeline.Failed:
		bar.Abort(false)
	default:
		bar.SetCurrent(int64(e.Step))
	}
}

// Wait blocks until every bar is rendered in its final state.
func (pr *progress) Wait() {
	pr.mu.Lock()
	var open []*mpb.Bar
	pr.smu.Lock()
	for path, bar := range pr.bars {
		if !pr.states[path].Terminal() {
			open = append(open, bar)
		}
	}
	pr.smu.Unlock()
	pr.mu.Unlock()
	for _, bar := range open {
		bar.Abort(false)
	}
	pr.p.Wait()
}
