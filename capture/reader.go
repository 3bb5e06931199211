// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package capture

import (
	"archive/zip"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"

	"github.com/gogpu/naga"
)

// Container entry names.
const (
	manifestName = "manifest.json"
	shaderDir    = "shaders/"
	dataDir      = "data/"
)

// Reader errors.
var (
	// ErrNoManifest is returned when the archive has no manifest.json.
	ErrNoManifest = errors.New("capture: missing manifest.json")

	// ErrVersion is returned for manifest versions this package cannot read.
	ErrVersion = errors.New("capture: unsupported format version")

	// ErrInvalid wraps every structural validation failure: duplicate or
	// null resource IDs, dangling references, size mismatches.
	ErrInvalid = errors.New("capture: invalid capture")

	// ErrShader wraps shader sources that fail to compile.
	ErrShader = errors.New("capture: shader does not compile")
)

// Load opens and fully validates a capture file.
func Load(name string) (*Capture, error) {
	zr, err := zip.OpenReader(name)
	if err != nil {
		return nil, fmt.Errorf("capture: open %s: %w", name, err)
	}
	defer zr.Close()

	return read(&zr.Reader)
}

// NewReader reads a capture from an in-memory or seekable source.
func NewReader(r io.ReaderAt, size int64) (*Capture, error) {
	zr, err := zip.NewReader(r, size)
	if err != nil {
		return nil, fmt.Errorf("capture: read archive: %w", err)
	}
	return read(zr)
}

func read(zr *zip.Reader) (*Capture, error) {
	c := &Capture{
		Shaders: make(map[string]string),
		Data:    make(map[string][]byte),
	}

	var sawManifest bool
	for _, f := range zr.File {
		data, err := readEntry(f)
		if err != nil {
			return nil, err
		}

		switch {
		case f.Name == manifestName:
			sawManifest = true
			if err := json.Unmarshal(data, &c.Manifest); err != nil {
				return nil, fmt.Errorf("capture: parse manifest: %w", err)
			}
		case strings.HasPrefix(f.Name, shaderDir):
			name := strings.TrimSuffix(path.Base(f.Name), ".wgsl")
			c.Shaders[name] = string(data)
		case strings.HasPrefix(f.Name, dataDir):
			name := strings.TrimSuffix(path.Base(f.Name), ".bin")
			c.Data[name] = data
		}
	}
	if !sawManifest {
		return nil, ErrNoManifest
	}
	if c.Manifest.Version != FormatVersion {
		return nil, fmt.Errorf("%w: %d", ErrVersion, c.Manifest.Version)
	}

	if err := c.validate(); err != nil {
		return nil, err
	}
	return c, nil
}

func readEntry(f *zip.File) ([]byte, error) {
	rc, err := f.Open()
	if err != nil {
		return nil, fmt.Errorf("capture: open entry %s: %w", f.Name, err)
	}
	defer rc.Close()

	data, err := io.ReadAll(rc)
	if err != nil {
		return nil, fmt.Errorf("capture: read entry %s: %w", f.Name, err)
	}
	return data, nil
}

// validate checks the manifest's internal consistency and compiles every
// shader so a malformed capture fails at load, not mid-scan.
func (c *Capture) validate() error {
	seen := make(map[uint64]bool, len(c.Manifest.Resources))
	for i := range c.Manifest.Resources {
		r := &c.Manifest.Resources[i]
		if r.ID == 0 {
			return fmt.Errorf("%w: resource ID 0 is reserved", ErrInvalid)
		}
		if seen[r.ID] {
			return fmt.Errorf("%w: duplicate resource ID %d", ErrInvalid, r.ID)
		}
		seen[r.ID] = true

		switch r.Kind {
		case ResourceBuffer:
			if r.Size == 0 {
				return fmt.Errorf("%w: buffer %d has zero size", ErrInvalid, r.ID)
			}
			if err := c.checkData(r.Data, r.Size, r.ID); err != nil {
				return err
			}
		case ResourceTexture:
			if _, ok := r.Format.BytesPerPixel(); !ok {
				return fmt.Errorf("%w: texture %d has unknown format %q", ErrInvalid, r.ID, r.Format)
			}
			if r.Width == 0 || r.Height == 0 {
				return fmt.Errorf("%w: texture %d has zero dimensions", ErrInvalid, r.ID)
			}
			if r.MipLevels == 0 {
				r.MipLevels = 1
			}
			if r.ArrayLayers == 0 {
				r.ArrayLayers = 1
			}
			if err := c.checkData(r.Data, c.textureDataSize(*r), r.ID); err != nil {
				return err
			}
		default:
			return fmt.Errorf("%w: resource %d has unknown kind %q", ErrInvalid, r.ID, r.Kind)
		}
	}

	pipelines := make(map[string]*Pipeline, len(c.Manifest.Pipelines))
	for i := range c.Manifest.Pipelines {
		p := &c.Manifest.Pipelines[i]
		if p.Name == "" {
			return fmt.Errorf("%w: unnamed pipeline", ErrInvalid)
		}
		if pipelines[p.Name] != nil {
			return fmt.Errorf("%w: duplicate pipeline %q", ErrInvalid, p.Name)
		}
		pipelines[p.Name] = p
		if err := c.validatePipeline(p, seen); err != nil {
			return err
		}
	}

	var lastEvent uint32
	for _, a := range c.Manifest.Actions {
		if a.EventID <= lastEvent {
			return fmt.Errorf("%w: event %d out of order", ErrInvalid, a.EventID)
		}
		lastEvent = a.EventID

		switch a.Kind {
		case ActionMarker:
			continue
		case ActionDraw, ActionDispatch:
			p, ok := pipelines[a.Pipeline]
			if !ok {
				return fmt.Errorf("%w: event %d references unknown pipeline %q", ErrInvalid, a.EventID, a.Pipeline)
			}
			if a.Kind == ActionDispatch && p.Kind != PipelineCompute {
				return fmt.Errorf("%w: event %d dispatches render pipeline %q", ErrInvalid, a.EventID, a.Pipeline)
			}
			if a.Kind == ActionDraw && p.Kind != PipelineRender {
				return fmt.Errorf("%w: event %d draws with compute pipeline %q", ErrInvalid, a.EventID, a.Pipeline)
			}
		default:
			return fmt.Errorf("%w: event %d has unknown kind %q", ErrInvalid, a.EventID, a.Kind)
		}
	}

	for name, src := range c.Shaders {
		if _, err := naga.Compile(src); err != nil {
			return fmt.Errorf("%w: %s: %v", ErrShader, name, err)
		}
	}
	return nil
}

func (c *Capture) validatePipeline(p *Pipeline, resources map[uint64]bool) error {
	checkShader := func(name string) error {
		if _, ok := c.Shaders[name]; !ok {
			return fmt.Errorf("%w: pipeline %q references unknown shader %q", ErrInvalid, p.Name, name)
		}
		return nil
	}
	checkResource := func(id uint64, what string) error {
		if id != 0 && !resources[id] {
			return fmt.Errorf("%w: pipeline %q %s references unknown resource %d", ErrInvalid, p.Name, what, id)
		}
		return nil
	}

	switch p.Kind {
	case PipelineCompute:
		if err := checkShader(p.Shader); err != nil {
			return err
		}
	case PipelineRender:
		if err := checkShader(p.VertexShader); err != nil {
			return err
		}
		if err := checkShader(p.FragmentShader); err != nil {
			return err
		}
		if len(p.ColorTargets) == 0 {
			return fmt.Errorf("%w: render pipeline %q has no targets", ErrInvalid, p.Name)
		}
		for _, t := range p.ColorTargets {
			if err := c.checkTarget(p, t); err != nil {
				return err
			}
		}
		if err := checkResource(p.VertexBuffer, "vertex buffer"); err != nil {
			return err
		}
	default:
		return fmt.Errorf("%w: pipeline %q has unknown kind %q", ErrInvalid, p.Name, p.Kind)
	}

	for _, b := range p.Bindings {
		if b.Resource == 0 {
			return fmt.Errorf("%w: pipeline %q binding %d has no resource", ErrInvalid, p.Name, b.Binding)
		}
		if err := checkResource(b.Resource, "binding"); err != nil {
			return err
		}
		r, _ := c.Resource(b.Resource)
		if r.Kind != ResourceBuffer {
			return fmt.Errorf("%w: pipeline %q binding %d is not a buffer", ErrInvalid, p.Name, b.Binding)
		}
		switch b.Access {
		case AccessUniform, AccessReadOnlyStorage, AccessStorage:
		default:
			return fmt.Errorf("%w: pipeline %q binding %d has unknown access %q", ErrInvalid, p.Name, b.Binding, b.Access)
		}
	}
	return nil
}

func (c *Capture) checkTarget(p *Pipeline, t Target) error {
	r, ok := c.Resource(t.Resource)
	if !ok {
		return fmt.Errorf("%w: pipeline %q targets unknown resource %d", ErrInvalid, p.Name, t.Resource)
	}
	if r.Kind != ResourceTexture {
		return fmt.Errorf("%w: pipeline %q targets non-texture resource %d", ErrInvalid, p.Name, t.Resource)
	}
	if t.FirstMip >= r.MipLevels || t.FirstSlice >= r.ArrayLayers {
		return fmt.Errorf("%w: pipeline %q target %d subresource (%d,%d) out of range", ErrInvalid, p.Name, t.Resource, t.FirstMip, t.FirstSlice)
	}
	switch t.Load {
	case "", LoadOpClear, LoadOpLoad:
	default:
		return fmt.Errorf("%w: pipeline %q target %d has unknown load op %q", ErrInvalid, p.Name, t.Resource, t.Load)
	}
	return nil
}

// checkData verifies a data entry exists and matches the expected size.
func (c *Capture) checkData(name string, want uint64, id uint64) error {
	if name == "" {
		return nil
	}
	data, ok := c.Data[name]
	if !ok {
		return fmt.Errorf("%w: resource %d references unknown data entry %q", ErrInvalid, id, name)
	}
	if uint64(len(data)) != want {
		return fmt.Errorf("%w: resource %d data is %d bytes, want %d", ErrInvalid, id, len(data), want)
	}
	return nil
}

// textureDataSize is the byte size of a texture's full initial contents:
// all slices of mip 0. Lower mips are generated by replay only if a
// pipeline samples them, which the restricted format never requires.
func (c *Capture) textureDataSize(r Resource) uint64 {
	return r.SubresourceSize(0) * uint64(r.ArrayLayers)
}
