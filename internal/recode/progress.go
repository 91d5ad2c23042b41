// ///////////////////////////////////////////////////////////////////////////
//
// # recode - Latin-1 to UTF-8 table repair
//
// Copyright (C) 2023 - 2026, pgEdge (https://www.pgedge.com/)
//
// This software is released under the PostgreSQL License:
// https://opensource.org/license/postgresql
//
// ///////////////////////////////////////////////////////////////////////////

package recode

import (
	"io"

	"github.com/vbauerster/mpb/v8"
	"github.com/vbauerster/mpb/v8/decor"
)

// progress counts scanned rows against the planner estimate. The zero value
// and a nil pointer are both silent.
type progress struct {
	p     *mpb.Progress
	bar   *mpb.Bar
	total int64
	seen  int64
}

func newProgress(out io.Writer, estimate int64) *progress {
	p := mpb.New(mpb.WithOutput(out))
	bar := p.AddBar(estimate,
		mpb.BarRemoveOnComplete(),
		mpb.PrependDecorators(
			decor.Name("Scanning rows:"),
			decor.CountersNoUnit(" %d / %d"),
		),
		mpb.AppendDecorators(
			decor.Elapsed(decor.ET_STYLE_GO),
			decor.Name(" | "),
			decor.OnComplete(decor.AverageETA(decor.ET_STYLE_GO), "done"),
		),
	)
	return &progress{p: p, bar: bar, total: estimate}
}

func (pr *progress) add(n int) {
	if pr == nil || pr.bar == nil {
		return
	}
	pr.seen += int64(n)
	// Estimates go stale; grow the total rather than complete early.
	if pr.seen >= pr.total {
		pr.total = pr.seen + 1
		pr.bar.SetTotal(pr.total, false)
	}
	pr.bar.IncrBy(n)
}

// finish completes the bar at whatever count was reached.
func (pr *progress) finish() {
	if pr == nil || pr.bar == nil {
		return
	}
	pr.bar.SetTotal(-1, true)
	pr.p.Wait()
}

// abort drops the bar without waiting for it to fill.
func (pr *progress) abort() {
	if pr == nil || pr.bar == nil {
		return
	}
	pr.bar.Abort(true)
	pr.p.Wait()
}
