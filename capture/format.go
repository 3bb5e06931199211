// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package capture

// FormatVersion is the manifest version this package reads and writes.
const FormatVersion = 1

// Manifest is the frame description stored as manifest.json.
type Manifest struct {
	Version   int        `json:"version"`
	Label     string     `json:"label,omitempty"`
	Resources []Resource `json:"resources"`
	Pipelines []Pipeline `json:"pipelines"`
	Actions   []Action   `json:"actions"`
}

// ResourceKind distinguishes buffers from textures in the resource table.
type ResourceKind string

const (
	ResourceBuffer  ResourceKind = "buffer"
	ResourceTexture ResourceKind = "texture"
)

// TextureFormat names a texture's pixel format. The set is restricted to
// formats replay can both render to and copy out byte-exactly.
type TextureFormat string

const (
	FormatRGBA8Unorm TextureFormat = "rgba8unorm"
	FormatBGRA8Unorm TextureFormat = "bgra8unorm"
	FormatR32Float   TextureFormat = "r32float"
)

// BytesPerPixel returns the pixel size of the format, or false for an
// unknown format.
func (f TextureFormat) BytesPerPixel() (uint32, bool) {
	switch f {
	case FormatRGBA8Unorm, FormatBGRA8Unorm, FormatR32Float:
		return 4, true
	default:
		return 0, false
	}
}

// Resource is one entry of the capture's resource table. IDs are assigned
// by the capturing side; 0 is reserved as the null resource.
type Resource struct {
	ID    uint64       `json:"id"`
	Kind  ResourceKind `json:"kind"`
	Label string       `json:"label,omitempty"`

	// Size is the byte size, for buffers.
	Size uint64 `json:"size,omitempty"`

	// Texture geometry. ArrayLayers and MipLevels default to 1.
	Width       uint32        `json:"width,omitempty"`
	Height      uint32        `json:"height,omitempty"`
	Format      TextureFormat `json:"format,omitempty"`
	MipLevels   uint32        `json:"mip_levels,omitempty"`
	ArrayLayers uint32        `json:"array_layers,omitempty"`

	// Data names the data/ entry holding the resource's initial
	// contents. Empty means zero-filled.
	Data string `json:"data,omitempty"`
}

// MipDims returns the dimensions of one mip level.
func (r Resource) MipDims(mip uint32) (w, h uint32) {
	w, h = r.Width>>mip, r.Height>>mip
	if w == 0 {
		w = 1
	}
	if h == 0 {
		h = 1
	}
	return w, h
}

// SubresourceSize returns the byte size of one mip/slice subresource.
func (r Resource) SubresourceSize(mip uint32) uint64 {
	bpp, ok := r.Format.BytesPerPixel()
	if !ok {
		return 0
	}
	w, h := r.MipDims(mip)
	return uint64(w) * uint64(h) * uint64(bpp)
}

// BindingAccess describes how a pipeline binding accesses its buffer.
type BindingAccess string

const (
	AccessUniform         BindingAccess = "uniform"
	AccessReadOnlyStorage BindingAccess = "read-only-storage"
	AccessStorage         BindingAccess = "storage"
)

// Binding maps one shader binding index to a buffer resource.
type Binding struct {
	Binding  uint32        `json:"binding"`
	Resource uint64        `json:"resource"`
	Access   BindingAccess `json:"access"`
}

// LoadOp selects whether a render target keeps or clears its previous
// contents when a draw's render pass begins.
type LoadOp string

const (
	LoadOpClear LoadOp = "clear"
	LoadOpLoad  LoadOp = "load"
)

// Target describes one render-target attachment of a render pipeline.
type Target struct {
	Resource   uint64 `json:"resource"`
	FirstMip   uint32 `json:"first_mip,omitempty"`
	FirstSlice uint32 `json:"first_slice,omitempty"`
	Load       LoadOp `json:"load,omitempty"`
}

// PipelineKind distinguishes compute from render pipelines.
type PipelineKind string

const (
	PipelineCompute PipelineKind = "compute"
	PipelineRender  PipelineKind = "render"
)

// VertexAttribute describes one vertex shader input.
type VertexAttribute struct {
	// Format is one of float32, float32x2, float32x3, float32x4.
	Format   string `json:"format"`
	Offset   uint64 `json:"offset"`
	Location uint32 `json:"location"`
}

// Pipeline describes one pipeline state object used by the frame's
// actions. Compute pipelines use Shader/EntryPoint; render pipelines use
// the vertex/fragment pair plus target and vertex-input descriptions.
type Pipeline struct {
	Name string       `json:"name"`
	Kind PipelineKind `json:"kind"`

	// Compute.
	Shader     string `json:"shader,omitempty"`
	EntryPoint string `json:"entry_point,omitempty"`

	// Render.
	VertexShader     string            `json:"vertex_shader,omitempty"`
	VertexEntry      string            `json:"vertex_entry,omitempty"`
	FragmentShader   string            `json:"fragment_shader,omitempty"`
	FragmentEntry    string            `json:"fragment_entry,omitempty"`
	VertexBuffer     uint64            `json:"vertex_buffer,omitempty"`
	VertexStride     uint64            `json:"vertex_stride,omitempty"`
	VertexAttributes []VertexAttribute `json:"vertex_attributes,omitempty"`
	ColorTargets     []Target          `json:"color_targets,omitempty"`

	// Bindings is the pipeline's bind group (group 0).
	Bindings []Binding `json:"bindings,omitempty"`
}

// ActionKind classifies a captured action.
type ActionKind string

const (
	ActionDraw     ActionKind = "draw"
	ActionDispatch ActionKind = "dispatch"
	ActionMarker   ActionKind = "marker"
)

// Action is one entry of the frame's linear action timeline.
type Action struct {
	EventID uint32     `json:"event_id"`
	Kind    ActionKind `json:"kind"`
	Name    string     `json:"name,omitempty"`

	// Pipeline names the pipeline state the action runs with. Markers
	// have none.
	Pipeline string `json:"pipeline,omitempty"`

	// Workgroups is the dispatch grid, for dispatches.
	Workgroups [3]uint32 `json:"workgroups,omitempty"`

	// Draw parameters.
	VertexCount   uint32 `json:"vertex_count,omitempty"`
	InstanceCount uint32 `json:"instance_count,omitempty"`
}

// Capture is a fully loaded, validated container.
type Capture struct {
	Manifest Manifest

	// Shaders maps shader names to WGSL source.
	Shaders map[string]string

	// Data maps data-entry names to raw initial contents.
	Data map[string][]byte
}

// Resource returns the resource table entry for id.
func (c *Capture) Resource(id uint64) (Resource, bool) {
	for _, r := range c.Manifest.Resources {
		if r.ID == id {
			return r, true
		}
	}
	return Resource{}, false
}

// Pipeline returns the pipeline with the given name.
func (c *Capture) Pipeline(name string) (Pipeline, bool) {
	for _, p := range c.Manifest.Pipelines {
		if p.Name == name {
			return p, true
		}
	}
	return Pipeline{}, false
}
