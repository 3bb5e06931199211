// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package wgpureplay

import (
	"bytes"
	"math"
	"path/filepath"
	"slices"
	"testing"

	"github.com/gogpu/gputypes"

	"github.com/gogpu/flakehunt"
	"github.com/gogpu/flakehunt/capture"
	"github.com/gogpu/flakehunt/replay"
)

const doubleWGSL = `
@group(0) @binding(0) var<storage, read_write> data: array<u32>;

@compute @workgroup_size(64)
fn main(@builtin(global_invocation_id) gid: vec3<u32>) {
    if (gid.x < 4u) {
        data[gid.x] = data[gid.x] * 2u;
    }
}
`

const fillWGSL = `
@vertex
fn vs_main(@location(0) pos: vec2<f32>) -> @builtin(position) vec4<f32> {
    return vec4<f32>(pos, 0.0, 1.0);
}

@fragment
fn fs_main() -> @location(0) vec4<f32> {
    return vec4<f32>(1.0, 0.0, 0.0, 1.0);
}
`

// dispatchCapture is a one-dispatch frame doubling a four-element
// storage buffer.
func dispatchCapture() *capture.Capture {
	return &capture.Capture{
		Manifest: capture.Manifest{
			Version: capture.FormatVersion,
			Resources: []capture.Resource{
				{ID: 1, Kind: capture.ResourceBuffer, Label: "values", Size: 16, Data: "values"},
			},
			Pipelines: []capture.Pipeline{
				{
					Name:       "double",
					Kind:       capture.PipelineCompute,
					Shader:     "double",
					EntryPoint: "main",
					Bindings: []capture.Binding{
						{Binding: 0, Resource: 1, Access: capture.AccessStorage},
					},
				},
			},
			Actions: []capture.Action{
				{EventID: 1, Kind: capture.ActionDispatch, Pipeline: "double", Workgroups: [3]uint32{1, 1, 1}},
			},
		},
		Shaders: map[string]string{"double": doubleWGSL},
		Data:    map[string][]byte{"values": {1, 0, 0, 0, 2, 0, 0, 0, 3, 0, 0, 0, 4, 0, 0, 0}},
	}
}

// drawCapture is a one-draw frame filling a 4x4 target with solid red
// via a screen-covering triangle.
func drawCapture() *capture.Capture {
	return &capture.Capture{
		Manifest: capture.Manifest{
			Version: capture.FormatVersion,
			Resources: []capture.Resource{
				{ID: 1, Kind: capture.ResourceTexture, Label: "target", Width: 4, Height: 4, Format: capture.FormatRGBA8Unorm},
				{ID: 2, Kind: capture.ResourceBuffer, Label: "tri", Size: 24, Data: "tri"},
			},
			Pipelines: []capture.Pipeline{
				{
					Name:           "fill",
					Kind:           capture.PipelineRender,
					VertexShader:   "fill",
					VertexEntry:    "vs_main",
					FragmentShader: "fill",
					FragmentEntry:  "fs_main",
					VertexBuffer:   2,
					VertexStride:   8,
					VertexAttributes: []capture.VertexAttribute{
						{Format: "float32x2", Offset: 0, Location: 0},
					},
					ColorTargets: []capture.Target{
						{Resource: 1, Load: capture.LoadOpClear},
					},
				},
			},
			Actions: []capture.Action{
				{EventID: 1, Kind: capture.ActionDraw, Pipeline: "fill", VertexCount: 3, InstanceCount: 1},
			},
		},
		Shaders: map[string]string{"fill": fillWGSL},
		Data:    map[string][]byte{"tri": triangleVertices()},
	}
}

// triangleVertices returns three float32x2 positions covering clip space.
func triangleVertices() []byte {
	floats := []float32{-1, -3, 3, 1, -1, 1}
	buf := make([]byte, 0, len(floats)*4)
	for _, f := range floats {
		bits := math.Float32bits(f)
		buf = append(buf, byte(bits), byte(bits>>8), byte(bits>>16), byte(bits>>24))
	}
	return buf
}

// openCapture saves the capture to disk and opens it on a real GPU,
// skipping the test when no adapter is available.
func openCapture(t *testing.T, c *capture.Capture) *Controller {
	t.Helper()
	name := filepath.Join(t.TempDir(), "frame.fhc")
	if err := c.Save(name); err != nil {
		t.Fatalf("Save: %v", err)
	}
	ctrl, err := Open(replay.OpenOptions{Path: name})
	if err != nil {
		t.Skipf("GPU not available: %v", err)
	}
	t.Cleanup(func() { ctrl.Close() })
	return ctrl
}

func TestDriverRegistered(t *testing.T) {
	if !slices.Contains(replay.Registered(), DriverName) {
		t.Fatalf("Registered() = %v, want to contain %q", replay.Registered(), DriverName)
	}
}

func TestActionFlags(t *testing.T) {
	tests := []struct {
		kind capture.ActionKind
		want replay.ActionFlags
	}{
		{capture.ActionDraw, replay.FlagDrawcall},
		{capture.ActionDispatch, replay.FlagDispatch},
		{capture.ActionMarker, 0},
	}
	for _, tt := range tests {
		if got := actionFlags(tt.kind); got != tt.want {
			t.Errorf("actionFlags(%q) = %v, want %v", tt.kind, got, tt.want)
		}
	}
}

func TestActionName(t *testing.T) {
	named := capture.Action{Kind: capture.ActionDraw, Name: "Shadow pass"}
	if got := actionName(named); got != "Shadow pass" {
		t.Errorf("actionName = %q, want captured name", got)
	}
	draw := capture.Action{Kind: capture.ActionDraw, VertexCount: 6}
	if got := actionName(draw); got != "Draw(6)" {
		t.Errorf("actionName = %q, want %q", got, "Draw(6)")
	}
	dispatch := capture.Action{Kind: capture.ActionDispatch, Workgroups: [3]uint32{8, 4, 1}}
	if got := actionName(dispatch); got != "Dispatch(8, 4, 1)" {
		t.Errorf("actionName = %q, want %q", got, "Dispatch(8, 4, 1)")
	}
}

func TestBufferUsageDerivation(t *testing.T) {
	c := &Controller{cap: drawCapture()}
	usage := c.bufferUsage(2)
	if usage&gputypes.BufferUsageVertex == 0 {
		t.Errorf("vertex buffer usage missing, got %v", usage)
	}

	c = &Controller{cap: dispatchCapture()}
	usage = c.bufferUsage(1)
	if usage&gputypes.BufferUsageStorage == 0 {
		t.Errorf("storage buffer usage missing, got %v", usage)
	}
}

func TestUnsupportedFormats(t *testing.T) {
	if _, err := textureFormat("r64float"); err == nil {
		t.Error("textureFormat accepted an unknown format")
	}
	if _, err := vertexFormat("uint8x2"); err == nil {
		t.Error("vertexFormat accepted an unknown format")
	}
}

func TestReplayDispatchDeterministic(t *testing.T) {
	ctrl := openCapture(t, dispatchCapture())

	actions := ctrl.Actions()
	if len(actions) != 1 || !actions[0].IsReplayable() {
		t.Fatalf("Actions() = %+v", actions)
	}

	if err := ctrl.SetFrameEvent(1); err != nil {
		t.Fatalf("SetFrameEvent: %v", err)
	}
	rw := ctrl.ReadWriteResources(replay.StageCompute)
	if len(rw) != 1 || rw[0].Resource != 1 {
		t.Fatalf("ReadWriteResources = %+v", rw)
	}

	first, err := ctrl.BufferData(1, 0, 0)
	if err != nil {
		t.Fatalf("BufferData: %v", err)
	}
	want := []byte{2, 0, 0, 0, 4, 0, 0, 0, 6, 0, 0, 0, 8, 0, 0, 0}
	if !bytes.Equal(first, want) {
		t.Fatalf("BufferData = %v, want %v", first, want)
	}

	// A second replay of the same event must start from the initial
	// contents again, not from the doubled values.
	if err := ctrl.SetFrameEvent(1); err != nil {
		t.Fatalf("SetFrameEvent(repeat): %v", err)
	}
	second, err := ctrl.BufferData(1, 0, 0)
	if err != nil {
		t.Fatalf("BufferData(repeat): %v", err)
	}
	if !bytes.Equal(first, second) {
		t.Fatalf("replays diverged: %v vs %v", first, second)
	}
}

func TestReplayDrawDeterministic(t *testing.T) {
	ctrl := openCapture(t, drawCapture())

	if err := ctrl.SetFrameEvent(1); err != nil {
		t.Fatalf("SetFrameEvent: %v", err)
	}
	targets := ctrl.ColorTargets()
	if len(targets) != 1 || targets[0].Resource != 1 {
		t.Fatalf("ColorTargets = %+v", targets)
	}

	first, err := ctrl.TextureData(1, 0, 0)
	if err != nil {
		t.Fatalf("TextureData: %v", err)
	}
	if len(first) != 4*4*4 {
		t.Fatalf("TextureData returned %d bytes, want %d", len(first), 4*4*4)
	}
	if first[0] != 0xFF || first[3] != 0xFF {
		t.Errorf("first pixel = %v, want opaque red", first[:4])
	}

	if err := ctrl.SetFrameEvent(1); err != nil {
		t.Fatalf("SetFrameEvent(repeat): %v", err)
	}
	second, err := ctrl.TextureData(1, 0, 0)
	if err != nil {
		t.Fatalf("TextureData(repeat): %v", err)
	}
	if !bytes.Equal(first, second) {
		t.Fatal("replays of the same draw diverged")
	}
}

func TestScanCleanCapture(t *testing.T) {
	ctrl := openCapture(t, dispatchCapture())

	scanner := flakehunt.NewScanner(ctrl, nil)
	verdict, err := scanner.Run()
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if verdict.State != flakehunt.Clean {
		t.Fatalf("verdict = %+v, want clean", verdict)
	}
}

func TestSetFrameEventUnknown(t *testing.T) {
	ctrl := openCapture(t, dispatchCapture())
	if err := ctrl.SetFrameEvent(99); err == nil {
		t.Fatal("SetFrameEvent accepted an unknown event")
	}
}
