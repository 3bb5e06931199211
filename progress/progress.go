// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

// Package progress renders scan progress for interactive use.
package progress

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/mattn/go-isatty"

	"github.com/gogpu/flakehunt"
)

const barWidth = 30

// Bar reports scan progress as a single redrawn terminal line. When the
// writer is not a terminal it falls back to an occasional plain line, so
// piped output stays readable.
type Bar struct {
	w   io.Writer
	tty bool

	lastLen int
	lastPct int
}

var _ flakehunt.Reporter = (*Bar)(nil)

// New creates a Bar writing to w. Terminal detection only triggers for
// *os.File writers.
func New(w io.Writer) *Bar {
	b := &Bar{w: w, lastPct: -1}
	if f, ok := w.(*os.File); ok {
		b.tty = isatty.IsTerminal(f.Fd())
	}
	return b
}

// Progress draws the state after one more action was verified clean.
func (b *Bar) Progress(completed, total int, label string) {
	if total <= 0 {
		return
	}
	pct := completed * 100 / total

	if !b.tty {
		// Piped output: one line per 10% step.
		if pct/10 == b.lastPct/10 && b.lastPct >= 0 {
			b.lastPct = pct
			return
		}
		b.lastPct = pct
		fmt.Fprintf(b.w, "scan %3d%% (%d/%d)\n", pct, completed, total)
		return
	}

	line := fmt.Sprintf("\r[%s] %3d%% (%d/%d) %s",
		bar(completed, total), pct, completed, total, label)
	if pad := b.lastLen - len(line); pad > 0 {
		line += strings.Repeat(" ", pad)
	}
	b.lastLen = len(line)
	fmt.Fprint(b.w, line)
}

// Done finishes the progress line so the verdict starts on a fresh one.
func (b *Bar) Done(flakehunt.Verdict) {
	if b.tty && b.lastLen > 0 {
		fmt.Fprintln(b.w)
		b.lastLen = 0
	}
}

// OpenProgress returns a callback suitable for replay.OpenOptions. It
// shares the Bar's writer and redraw state, so the loading line is
// overwritten by the first scan update.
func (b *Bar) OpenProgress() func(float64) {
	return func(fraction float64) {
		pct := int(fraction * 100)
		if pct < 0 {
			pct = 0
		} else if pct > 100 {
			pct = 100
		}
		if !b.tty {
			if pct/25 == b.lastPct/25 && b.lastPct >= 0 {
				b.lastPct = pct
				return
			}
			b.lastPct = pct
			fmt.Fprintf(b.w, "loading capture %3d%%\n", pct)
			return
		}
		line := fmt.Sprintf("\rloading capture %3d%%", pct)
		if pad := b.lastLen - len(line); pad > 0 {
			line += strings.Repeat(" ", pad)
		}
		b.lastLen = len(line)
		fmt.Fprint(b.w, line)
	}
}

// bar renders the fill portion, with a ">" head while unfinished.
func bar(completed, total int) string {
	fill := completed * barWidth / total
	switch {
	case fill >= barWidth:
		return strings.Repeat("=", barWidth)
	case fill > 0:
		return strings.Repeat("=", fill-1) + ">" + strings.Repeat(" ", barWidth-fill)
	default:
		return strings.Repeat(" ", barWidth)
	}
}
