// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package capture

import (
	"archive/zip"
	"bytes"
	"errors"
	"path/filepath"
	"testing"
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

// testCapture builds a small but complete capture: one storage buffer and
// one compute dispatch doubling it.
func testCapture() *Capture {
	return &Capture{
		Manifest: Manifest{
			Version: FormatVersion,
			Label:   "double",
			Resources: []Resource{
				{ID: 1, Kind: ResourceBuffer, Label: "values", Size: 16, Data: "values"},
			},
			Pipelines: []Pipeline{
				{
					Name:       "double",
					Kind:       PipelineCompute,
					Shader:     "double",
					EntryPoint: "main",
					Bindings: []Binding{
						{Binding: 0, Resource: 1, Access: AccessStorage},
					},
				},
			},
			Actions: []Action{
				{EventID: 1, Kind: ActionDispatch, Name: "Dispatch(1,1,1)", Pipeline: "double", Workgroups: [3]uint32{1, 1, 1}},
			},
		},
		Shaders: map[string]string{"double": doubleWGSL},
		Data:    map[string][]byte{"values": {1, 0, 0, 0, 2, 0, 0, 0, 3, 0, 0, 0, 4, 0, 0, 0}},
	}
}

func roundTrip(t *testing.T, c *Capture) *Capture {
	t.Helper()
	var buf bytes.Buffer
	if err := c.WriteTo(&buf); err != nil {
		t.Fatalf("WriteTo: %v", err)
	}
	got, err := NewReader(bytes.NewReader(buf.Bytes()), int64(buf.Len()))
	if err != nil {
		t.Fatalf("NewReader: %v", err)
	}
	return got
}

func TestRoundTrip(t *testing.T) {
	c := testCapture()
	got := roundTrip(t, c)

	if got.Manifest.Label != "double" {
		t.Errorf("label = %q, want %q", got.Manifest.Label, "double")
	}
	if len(got.Manifest.Resources) != 1 || got.Manifest.Resources[0].ID != 1 {
		t.Fatalf("resources = %+v", got.Manifest.Resources)
	}
	if got.Shaders["double"] != doubleWGSL {
		t.Errorf("shader source did not survive the round trip")
	}
	if !bytes.Equal(got.Data["values"], c.Data["values"]) {
		t.Errorf("data = %v, want %v", got.Data["values"], c.Data["values"])
	}
	if len(got.Manifest.Actions) != 1 || got.Manifest.Actions[0].Kind != ActionDispatch {
		t.Fatalf("actions = %+v", got.Manifest.Actions)
	}
}

func TestSaveLoad(t *testing.T) {
	name := filepath.Join(t.TempDir(), "double.fhc")
	if err := testCapture().Save(name); err != nil {
		t.Fatalf("Save: %v", err)
	}
	got, err := Load(name)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if _, ok := got.Pipeline("double"); !ok {
		t.Errorf("pipeline %q missing after Load", "double")
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.fhc")); err == nil {
		t.Fatal("Load succeeded on a missing file")
	}
}

func TestTextureDefaults(t *testing.T) {
	c := testCapture()
	c.Manifest.Resources = append(c.Manifest.Resources, Resource{
		ID: 2, Kind: ResourceTexture, Width: 8, Height: 8, Format: FormatRGBA8Unorm,
	})
	got := roundTrip(t, c)

	r, ok := got.Resource(2)
	if !ok {
		t.Fatal("texture resource missing")
	}
	if r.MipLevels != 1 || r.ArrayLayers != 1 {
		t.Errorf("defaults = (%d mips, %d layers), want (1, 1)", r.MipLevels, r.ArrayLayers)
	}
}

func TestVersionMismatch(t *testing.T) {
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	ew, err := zw.Create("manifest.json")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := ew.Write([]byte(`{"version": 9}`)); err != nil {
		t.Fatal(err)
	}
	if err := zw.Close(); err != nil {
		t.Fatal(err)
	}

	if _, err := NewReader(bytes.NewReader(buf.Bytes()), int64(buf.Len())); !errors.Is(err, ErrVersion) {
		t.Fatalf("err = %v, want %v", err, ErrVersion)
	}
}

func TestMissingManifest(t *testing.T) {
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	if err := zw.Close(); err != nil {
		t.Fatal(err)
	}

	if _, err := NewReader(bytes.NewReader(buf.Bytes()), int64(buf.Len())); !errors.Is(err, ErrNoManifest) {
		t.Fatalf("err = %v, want %v", err, ErrNoManifest)
	}
}

func TestValidateRejects(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Capture)
		want   error
	}{
		{
			name: "duplicate resource id",
			mutate: func(c *Capture) {
				c.Manifest.Resources = append(c.Manifest.Resources, c.Manifest.Resources[0])
			},
			want: ErrInvalid,
		},
		{
			name: "null resource id",
			mutate: func(c *Capture) {
				c.Manifest.Resources[0].ID = 0
			},
			want: ErrInvalid,
		},
		{
			name: "data size mismatch",
			mutate: func(c *Capture) {
				c.Data["values"] = c.Data["values"][:8]
			},
			want: ErrInvalid,
		},
		{
			name: "dangling data entry",
			mutate: func(c *Capture) {
				c.Manifest.Resources[0].Data = "missing"
			},
			want: ErrInvalid,
		},
		{
			name: "unknown shader",
			mutate: func(c *Capture) {
				c.Manifest.Pipelines[0].Shader = "missing"
			},
			want: ErrInvalid,
		},
		{
			name: "unknown binding resource",
			mutate: func(c *Capture) {
				c.Manifest.Pipelines[0].Bindings[0].Resource = 99
			},
			want: ErrInvalid,
		},
		{
			name: "unknown pipeline",
			mutate: func(c *Capture) {
				c.Manifest.Actions[0].Pipeline = "missing"
			},
			want: ErrInvalid,
		},
		{
			name: "events out of order",
			mutate: func(c *Capture) {
				c.Manifest.Actions = append(c.Manifest.Actions, c.Manifest.Actions[0])
			},
			want: ErrInvalid,
		},
		{
			name: "dispatch of render pipeline",
			mutate: func(c *Capture) {
				c.Manifest.Pipelines[0].Kind = PipelineRender
			},
			want: ErrInvalid,
		},
		{
			name: "broken shader",
			mutate: func(c *Capture) {
				c.Shaders["double"] = "fn main( {"
			},
			want: ErrShader,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := testCapture()
			tt.mutate(c)

			var buf bytes.Buffer
			if err := c.WriteTo(&buf); err != nil {
				t.Fatalf("WriteTo: %v", err)
			}
			_, err := NewReader(bytes.NewReader(buf.Bytes()), int64(buf.Len()))
			if !errors.Is(err, tt.want) {
				t.Fatalf("err = %v, want %v", err, tt.want)
			}
		})
	}
}
