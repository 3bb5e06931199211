// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package flakehunt

import (
	"crypto/sha1"
	"encoding/hex"
	"fmt"

	"github.com/gogpu/flakehunt/replay"
)

// SubresourceDesc identifies a mip level / array slice pair within a
// texture. Buffers always use the zero value. It is a value type with no
// identity beyond its fields.
type SubresourceDesc struct {
	FirstMip   uint32
	FirstSlice uint32
}

// ResourceKey uniquely identifies one fingerprintable surface: a texture
// subresource, or a whole buffer with a zero SubresourceDesc. Equality is
// structural, so ResourceKey is usable as a map key. The same resource
// bound at two different subresource offsets yields two distinct keys.
type ResourceKey struct {
	Resource    replay.ResourceID
	Subresource SubresourceDesc
}

// String formats the key for verdicts and logs.
func (k ResourceKey) String() string {
	return fmt.Sprintf("resource %d (mip %d, slice %d)",
		k.Resource, k.Subresource.FirstMip, k.Subresource.FirstSlice)
}

// DigestSize is the size of a content digest in bytes.
const DigestSize = sha1.Size

// Digest is a fixed-size content digest of a resource's raw bytes at one
// point in replay. SHA-1 is a change-detection signature here, not a
// security boundary; collision resistance at that strength is sufficient.
type Digest [DigestSize]byte

// String returns the digest as lowercase hex.
func (d Digest) String() string { return hex.EncodeToString(d[:]) }

// ComputeDigest digests raw resource bytes.
func ComputeDigest(data []byte) Digest { return Digest(sha1.Sum(data)) }

// FingerprintMap maps each fingerprintable surface of one action to its
// content digest. A map is built fresh per fingerprinting call and never
// mutated afterwards; it does not outlive a single action's check.
// Null-resource bindings never appear as keys.
type FingerprintMap map[ResourceKey]Digest
