// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package replay

// ResourceID is an opaque handle to a GPU resource within a capture.
// IDs are assigned by the capturing side and are stable across replays
// of the same capture. The zero value is the null resource.
type ResourceID uint64

// NullResource is the zero value, representing an unbound slot.
const NullResource ResourceID = 0

// Null reports whether the ID is the null-resource sentinel.
func (id ResourceID) Null() bool { return id == NullResource }

// ResourceKind distinguishes how a bound resource is read back.
type ResourceKind uint8

const (
	// KindBuffer is a linear buffer; readback covers the whole buffer.
	KindBuffer ResourceKind = iota

	// KindTexture is a mipped, possibly layered texture; readback covers
	// one mip/slice subresource.
	KindTexture
)

// ShaderStage identifies one pipeline stage for binding queries.
type ShaderStage uint8

// Pipeline stages, in binding-enumeration order.
const (
	StageVertex ShaderStage = iota
	StageFragment
	StageCompute

	// StageCount is the number of stages; loop bound for per-stage queries.
	StageCount
)

// String returns the lowercase stage name.
func (s ShaderStage) String() string {
	switch s {
	case StageVertex:
		return "vertex"
	case StageFragment:
		return "fragment"
	case StageCompute:
		return "compute"
	default:
		return "unknown"
	}
}

// ActionFlags classifies an action in the frame timeline.
type ActionFlags uint32

const (
	// FlagDrawcall marks a rasterization draw.
	FlagDrawcall ActionFlags = 1 << 0

	// FlagDispatch marks a compute dispatch.
	FlagDispatch ActionFlags = 1 << 1
)

// Action is one entry in the capture-ordered action sequence. Actions are
// read-only to consumers; the Controller owns them.
type Action struct {
	// EventID is the action's position in the frame's linear timeline.
	EventID uint32

	// Flags classifies the action. State-only and debug-marker actions
	// have no flags set.
	Flags ActionFlags

	// Name is the action's debug label, for progress display.
	Name string
}

// IsReplayable reports whether the action performs GPU work that can be
// checked for determinism (a draw or a dispatch).
func (a Action) IsReplayable() bool {
	return a.Flags&(FlagDrawcall|FlagDispatch) != 0
}

// BoundResource describes one resource binding of the current pipeline
// state: a color target, the depth target, or a per-stage read-write
// resource.
type BoundResource struct {
	// Resource is the bound resource, or NullResource for an empty slot.
	Resource ResourceID

	// Kind selects the readback path (whole buffer vs. one subresource).
	Kind ResourceKind

	// FirstMip and FirstSlice address the bound subresource for textures.
	// Both are zero for buffers.
	FirstMip   uint32
	FirstSlice uint32
}

// Controller is a positioned cursor over an opened capture's replay state.
//
// A Controller is NOT safe for concurrent use. The scan owns it for the
// duration of a run and drives it strictly sequentially: SetFrameEvent
// followed by the binding queries and readbacks for that event.
type Controller interface {
	// Actions returns the flattened, capture-ordered sequence of leaf
	// actions. The slice is immutable for the lifetime of the Controller.
	Actions() []Action

	// SetFrameEvent re-positions replay at the given event, re-executing
	// the frame up to and including it. Calling it twice with the same
	// event forces a genuinely independent re-execution of the same work.
	SetFrameEvent(eventID uint32) error

	// ColorTargets returns the color output targets bound at the current
	// event, in attachment order. Unbound slots have a null Resource.
	ColorTargets() []BoundResource

	// DepthTarget returns the bound depth target, if any.
	DepthTarget() (BoundResource, bool)

	// ReadWriteResources returns the read-write resources (storage
	// buffers, writable surfaces) bound to the given stage at the
	// current event.
	ReadWriteResources(stage ShaderStage) []BoundResource

	// TextureData reads back the raw bytes of one texture subresource.
	TextureData(id ResourceID, mip, slice uint32) ([]byte, error)

	// BufferData reads back raw buffer bytes. A length of zero means
	// "through the end of the buffer".
	BufferData(id ResourceID, offset, length uint64) ([]byte, error)

	// Close releases the controller and all replay state it owns.
	Close() error
}
