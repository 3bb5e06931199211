// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package replay

import (
	"fmt"
	"sort"
	"sync"
)

// OpenOptions carries everything an opener may need. Openers ignore fields
// that do not apply to them.
type OpenOptions struct {
	// Path is the capture file to open (local) or to upload (remote).
	Path string

	// Host is the replay daemon address, for remote openers.
	Host string

	// OpenProgress, when non-nil, receives open/upload progress in the
	// range [0, 1]. Advisory only.
	OpenProgress func(progress float64)
}

// Opener creates a Controller from open options.
// Openers are registered via Register and invoked by Open.
type Opener func(opts OpenOptions) (Controller, error)

// Registry state - protected by mutex for thread-safe access.
var (
	registryMu sync.RWMutex
	openers    = make(map[string]Opener)
)

// Register registers a controller opener under the given name.
// This is typically called from init() in implementation packages,
// following the database/sql driver pattern:
//
//	func init() {
//	    replay.Register("local", func(opts replay.OpenOptions) (replay.Controller, error) {
//	        return Open(opts.Path, WithOpenProgress(opts.OpenProgress))
//	    })
//	}
//
// Register panics if opener is nil or the name is already taken, so that
// duplicate registrations are caught during program initialization.
func Register(name string, opener Opener) {
	registryMu.Lock()
	defer registryMu.Unlock()

	if opener == nil {
		panic("replay: Register opener is nil")
	}
	if _, dup := openers[name]; dup {
		panic("replay: Register called twice for " + name)
	}
	openers[name] = opener
}

// Open creates a Controller using the opener registered under name.
// It fails with ErrNotInitialized outside an Initialize/release scope.
func Open(name string, opts OpenOptions) (Controller, error) {
	if err := checkInitialized(); err != nil {
		return nil, err
	}

	registryMu.RLock()
	opener, ok := openers[name]
	registryMu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("replay: unknown controller %q (registered: %v)", name, Registered())
	}
	return opener(opts)
}

// Registered returns the names of all registered openers, sorted.
func Registered() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()

	names := make([]string, 0, len(openers))
	for name := range openers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
