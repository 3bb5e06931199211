// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package replay

import (
	"errors"
	"sync/atomic"
)

// ErrNotInitialized is returned by Open when Initialize has not been
// called or its release function has already run.
var ErrNotInitialized = errors.New("replay: not initialized")

// ErrAlreadyInitialized is returned by a second Initialize call that
// overlaps an active one.
var ErrAlreadyInitialized = errors.New("replay: already initialized")

// initialized tracks the process-wide replay lifecycle.
var initialized atomic.Bool

// Initialize performs process-wide replay setup and returns a release
// function that must run before process exit. The pair scopes every
// controller's lifetime:
//
//	release, err := replay.Initialize()
//	if err != nil { ... }
//	defer release()
//
// Controllers must not be opened before Initialize or after release.
// Initialize may be called again after release has run.
func Initialize() (release func(), err error) {
	if !initialized.CompareAndSwap(false, true) {
		return nil, ErrAlreadyInitialized
	}
	return func() { initialized.Store(false) }, nil
}

// checkInitialized returns ErrNotInitialized outside an
// Initialize/release scope. Called by Open.
func checkInitialized() error {
	if !initialized.Load() {
		return ErrNotInitialized
	}
	return nil
}
