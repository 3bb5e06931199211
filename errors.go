// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package flakehunt

import (
	"errors"
	"fmt"
)

// ErrSetup wraps every failure to obtain or position a usable replay
// controller: unreadable capture, unreachable host, replay unsupported.
// A setup failure means the scan never started.
var ErrSetup = errors.New("flakehunt: replay setup failed")

// PositionError reports a SetFrameEvent failure mid-scan: the controller
// could not re-position replay at the action's event. Like ReadbackError
// it is fatal to the run and never retried.
type PositionError struct {
	// EventID is the event the controller failed to position at.
	EventID uint32

	// Err is the underlying controller error.
	Err error
}

func (e *PositionError) Error() string {
	return fmt.Sprintf("flakehunt: position at event %d: %v", e.EventID, e.Err)
}

func (e *PositionError) Unwrap() error { return e.Err }

// ReadbackError reports a resource readback that failed mid-scan. It is
// fatal to the scan run and never retried: a silently retried readback
// could mask or fabricate the very nondeterminism being measured.
type ReadbackError struct {
	// EventID is the event being fingerprinted when the readback failed.
	EventID uint32

	// Key identifies the surface whose readback failed.
	Key ResourceKey

	// Err is the underlying controller error.
	Err error
}

func (e *ReadbackError) Error() string {
	return fmt.Sprintf("flakehunt: readback failed at event %d, %s: %v",
		e.EventID, e.Key, e.Err)
}

func (e *ReadbackError) Unwrap() error { return e.Err }
