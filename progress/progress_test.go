// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package progress

import (
	"bytes"
	"strings"
	"testing"

	"github.com/gogpu/flakehunt"
)

func TestPipedOutputSteps(t *testing.T) {
	var buf bytes.Buffer
	b := New(&buf)
	for i := 1; i <= 20; i++ {
		b.Progress(i, 20, "Dispatch(1, 1, 1)")
	}
	b.Done(flakehunt.Verdict{State: flakehunt.Clean})

	lines := strings.Split(strings.TrimRight(buf.String(), "\n"), "\n")
	// 5%..100% in 10% buckets: 5, 10, 20, ..., 100.
	if len(lines) != 11 {
		t.Fatalf("got %d lines, want 11:\n%s", len(lines), buf.String())
	}
	if !strings.Contains(lines[0], "5%") || !strings.Contains(lines[0], "(1/20)") {
		t.Errorf("first line = %q", lines[0])
	}
	if !strings.Contains(lines[10], "100%") {
		t.Errorf("last line = %q", lines[10])
	}
	for _, line := range lines {
		if strings.Contains(line, "\r") {
			t.Errorf("piped output contains carriage return: %q", line)
		}
	}
}

func TestTerminalRedraw(t *testing.T) {
	var buf bytes.Buffer
	b := New(&buf)
	b.tty = true

	b.Progress(1, 4, "Draw(3)")
	b.Progress(2, 4, "Dispatch(8, 1, 1)")
	b.Done(flakehunt.Verdict{State: flakehunt.Clean})

	out := buf.String()
	if got := strings.Count(out, "\r"); got != 2 {
		t.Errorf("got %d redraws, want 2", got)
	}
	if !strings.Contains(out, "25% (1/4) Draw(3)") {
		t.Errorf("missing first frame in %q", out)
	}
	if !strings.Contains(out, "50% (2/4) Dispatch(8, 1, 1)") {
		t.Errorf("missing second frame in %q", out)
	}
	if !strings.HasSuffix(out, "\n") {
		t.Errorf("Done did not terminate the line: %q", out)
	}
}

func TestShorterFramePadsPrevious(t *testing.T) {
	var buf bytes.Buffer
	b := New(&buf)
	b.tty = true

	b.Progress(1, 4, "a very long marker label")
	long := b.lastLen
	b.Progress(2, 4, "x")
	if b.lastLen < long {
		t.Errorf("frame shrank from %d to %d, leftover text would remain", long, b.lastLen)
	}
}

func TestBarFill(t *testing.T) {
	if got := bar(0, 10); strings.ContainsAny(got, "=>") {
		t.Errorf("empty bar = %q", got)
	}
	if got := bar(10, 10); got != strings.Repeat("=", barWidth) {
		t.Errorf("full bar = %q", got)
	}
	half := bar(5, 10)
	if len(half) != barWidth || !strings.Contains(half, ">") {
		t.Errorf("half bar = %q", half)
	}
}

func TestOpenProgress(t *testing.T) {
	var buf bytes.Buffer
	b := New(&buf)
	fn := b.OpenProgress()
	fn(0)
	fn(0.5)
	fn(1)

	lines := strings.Split(strings.TrimRight(buf.String(), "\n"), "\n")
	if len(lines) != 3 {
		t.Fatalf("got %d lines, want 3:\n%s", len(lines), buf.String())
	}
	if !strings.Contains(lines[2], "100%") {
		t.Errorf("final line = %q", lines[2])
	}
}

func TestZeroTotalIgnored(t *testing.T) {
	var buf bytes.Buffer
	b := New(&buf)
	b.Progress(0, 0, "")
	if buf.Len() != 0 {
		t.Errorf("output for empty scan: %q", buf.String())
	}
}
