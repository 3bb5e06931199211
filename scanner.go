// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package flakehunt

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/gogpu/flakehunt/replay"
)

// ScanState is the terminal state of a scan.
type ScanState int

const (
	// Clean means every checked action produced identical fingerprints
	// across both replays.
	Clean ScanState = iota

	// DiscrepancyFound means one action's output diverged between two
	// replays. This is a successful outcome, not an error: the scan
	// achieved its purpose.
	DiscrepancyFound
)

// String returns the state name.
func (s ScanState) String() string {
	switch s {
	case Clean:
		return "Clean"
	case DiscrepancyFound:
		return "DiscrepancyFound"
	default:
		return fmt.Sprintf("Unknown(%d)", int(s))
	}
}

// Verdict is the terminal outcome of a scan.
type Verdict struct {
	// State is Clean or DiscrepancyFound.
	State ScanState

	// EventID is the diverging action's event, set when State is
	// DiscrepancyFound.
	EventID uint32

	// Key identifies the diverging surface, set when State is
	// DiscrepancyFound.
	Key ResourceKey
}

// Reporter receives scan progress and the final verdict. It is a
// display capability with no effect on the scan's outcome; any
// implementation that tolerates per-action call frequency will do.
type Reporter interface {
	// Progress is called once per checked action, after the action
	// passed its comparison.
	Progress(completed, total int, label string)

	// Done receives the terminal verdict.
	Done(v Verdict)
}

// nopReporter discards all events. Used when the caller passes nil.
type nopReporter struct{}

func (nopReporter) Progress(int, int, string) {}
func (nopReporter) Done(Verdict)              {}

// Scanner drives the double-fingerprint comparison across a frame.
//
// For each draw or dispatch action in capture order, the scanner
// fingerprints the action's outputs twice, each time re-positioning the
// controller so the GPU work is genuinely re-executed rather than read
// from stale state. The first key whose digests differ terminates the
// scan. Later actions may diverge too; reporting the first divergence in
// timeline order is the designed behavior, not an optimization.
//
// The comparison covers only keys present in the first fingerprint map.
// A resource bound only during the second replay is therefore invisible
// to the scan, a known blind spot, preserved deliberately. Keys are
// compared in enumeration order (color targets, depth, then per-stage
// read-write resources), so when several surfaces diverge at one action
// the reported key is the first in that order, stable across runs.
//
// A Scanner is single-use and NOT safe for concurrent use; it owns its
// controller exclusively for the duration of Run.
type Scanner struct {
	ctrl replay.Controller
	rep  Reporter

	// dumpDir, when set, receives the raw bytes of both replays of the
	// diverging surface for offline diffing.
	dumpDir string
}

// ScannerOption configures a Scanner.
type ScannerOption func(*Scanner)

// WithDumpDir makes the scanner write the diverging surface's raw bytes
// from both replays into dir ("event<e>_<key>_a.bin" / "_b.bin") when a
// discrepancy is found. Dump failures are logged, never fatal.
func WithDumpDir(dir string) ScannerOption {
	return func(s *Scanner) { s.dumpDir = dir }
}

// NewScanner creates a scanner over ctrl. A nil reporter discards
// progress and the verdict notification; Run's return values carry the
// same information.
func NewScanner(ctrl replay.Controller, rep Reporter, opts ...ScannerOption) *Scanner {
	s := &Scanner{ctrl: ctrl, rep: rep}
	if s.rep == nil {
		s.rep = nopReporter{}
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Run scans the frame and returns the verdict.
//
// An empty action sequence is immediately Clean with zero progress
// events. An action with no fingerprintable outputs contributes no keys
// and trivially matches. Errors (positioning or readback failures) abort
// the run; they are never retried.
func (s *Scanner) Run() (Verdict, error) {
	var checks []replay.Action
	for _, action := range s.ctrl.Actions() {
		if action.IsReplayable() {
			checks = append(checks, action)
		}
	}

	log := Logger()
	log.Info("scan started", "actions", len(checks))

	for i, action := range checks {
		first, keys, rawA, err := fingerprint(s.ctrl, action.EventID, s.dumpDir != "")
		if err != nil {
			return Verdict{}, err
		}
		second, _, rawB, err := fingerprint(s.ctrl, action.EventID, s.dumpDir != "")
		if err != nil {
			return Verdict{}, err
		}

		for _, key := range keys {
			if second[key] == first[key] {
				continue
			}
			v := Verdict{State: DiscrepancyFound, EventID: action.EventID, Key: key}
			log.Info("scan finished",
				"state", v.State, "event", v.EventID, "resource", key.String())
			s.dump(v, rawA[key], rawB[key])
			s.rep.Done(v)
			return v, nil
		}

		s.rep.Progress(i+1, len(checks), action.Name)
	}

	v := Verdict{State: Clean}
	log.Info("scan finished", "state", v.State)
	s.rep.Done(v)
	return v, nil
}

// dump writes both replays' bytes of the diverging surface to dumpDir.
func (s *Scanner) dump(v Verdict, a, b []byte) {
	if s.dumpDir == "" {
		return
	}
	base := fmt.Sprintf("event%d_res%d_mip%d_slice%d",
		v.EventID, v.Key.Resource, v.Key.Subresource.FirstMip, v.Key.Subresource.FirstSlice)
	for suffix, data := range map[string][]byte{"a": a, "b": b} {
		name := filepath.Join(s.dumpDir, base+"_"+suffix+".bin")
		if err := os.WriteFile(name, data, 0o644); err != nil {
			Logger().Warn("divergence dump failed", "file", name, "error", err)
		}
	}
}
