// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package wgpureplay

import (
	"errors"
	"fmt"
	"sync"

	"github.com/gogpu/wgpu/hal"

	"github.com/gogpu/flakehunt"
	"github.com/gogpu/flakehunt/capture"
	"github.com/gogpu/flakehunt/replay"
)

// DriverName is the name this package registers with the replay registry.
const DriverName = "local"

func init() {
	replay.Register(DriverName, func(opts replay.OpenOptions) (replay.Controller, error) {
		return Open(opts)
	})
}

var errClosed = errors.New("wgpureplay: controller closed")

// Controller replays a loaded capture on a local GPU. It implements
// replay.Controller. Methods are safe for use from one goroutine at a
// time, which matches how the scanner drives a controller.
type Controller struct {
	mu  sync.Mutex
	cap *capture.Capture
	dev *gpuDevice

	modules   map[string]hal.ShaderModule
	resources map[replay.ResourceID]*gpuResource
	order     []replay.ResourceID
	pipelines map[string]*gpuPipeline
	actions   []replay.Action

	// cur is the capture action the controller is positioned at, nil
	// until the first SetFrameEvent.
	cur    *capture.Action
	closed bool
}

var _ replay.Controller = (*Controller)(nil)

// Open loads the capture at opts.Path, acquires a GPU device, and builds
// every resource and pipeline the capture describes. Setup failures wrap
// flakehunt.ErrSetup.
func Open(opts replay.OpenOptions) (*Controller, error) {
	progress := opts.OpenProgress
	if progress == nil {
		progress = func(float64) {}
	}

	capt, err := capture.Load(opts.Path)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", flakehunt.ErrSetup, err)
	}
	progress(0.1)

	dev, err := acquireDevice()
	if err != nil {
		return nil, fmt.Errorf("%w: %w", flakehunt.ErrSetup, err)
	}

	c := &Controller{
		cap:       capt,
		dev:       dev,
		modules:   make(map[string]hal.ShaderModule),
		resources: make(map[replay.ResourceID]*gpuResource),
		pipelines: make(map[string]*gpuPipeline),
	}
	if err := c.build(progress); err != nil {
		c.destroy()
		return nil, fmt.Errorf("%w: %w", flakehunt.ErrSetup, err)
	}
	progress(1)

	flakehunt.Logger().Debug("wgpureplay: capture opened",
		"path", opts.Path,
		"actions", len(c.actions),
		"resources", len(c.resources))
	return c, nil
}

// Actions returns the capture's action timeline in event order.
func (c *Controller) Actions() []replay.Action {
	out := make([]replay.Action, len(c.actions))
	copy(out, c.actions)
	return out
}

// SetFrameEvent positions the controller at eventID by re-uploading all
// initial resource contents and re-executing the timeline from the start
// through that event. Re-running the full prefix from identical inputs is
// what makes repeated replays of one event comparable.
func (c *Controller) SetFrameEvent(eventID uint32) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return errClosed
	}

	var target *capture.Action
	for i := range c.cap.Manifest.Actions {
		if c.cap.Manifest.Actions[i].EventID == eventID {
			target = &c.cap.Manifest.Actions[i]
			break
		}
	}
	if target == nil {
		return fmt.Errorf("wgpureplay: no action at event %d", eventID)
	}

	c.cur = nil
	if err := c.reset(); err != nil {
		return fmt.Errorf("wgpureplay: reset for event %d: %w", eventID, err)
	}
	if err := c.execute(eventID); err != nil {
		return fmt.Errorf("wgpureplay: replay to event %d: %w", eventID, err)
	}
	c.cur = target
	return nil
}

// ColorTargets returns the color attachments bound at the current event.
func (c *Controller) ColorTargets() []replay.BoundResource {
	c.mu.Lock()
	defer c.mu.Unlock()

	p := c.currentPipeline()
	if p == nil || p.desc.Kind != capture.PipelineRender {
		return nil
	}
	out := make([]replay.BoundResource, len(p.desc.ColorTargets))
	for i, t := range p.desc.ColorTargets {
		out[i] = replay.BoundResource{
			Resource:   replay.ResourceID(t.Resource),
			Kind:       replay.KindTexture,
			FirstMip:   t.FirstMip,
			FirstSlice: t.FirstSlice,
		}
	}
	return out
}

// DepthTarget reports the bound depth attachment. Captures replayed by
// this driver carry no depth attachments, so it always reports none.
func (c *Controller) DepthTarget() (replay.BoundResource, bool) {
	return replay.BoundResource{}, false
}

// ReadWriteResources returns the writable shader bindings of the current
// event for one stage. Storage buffers of a dispatch are reported on the
// compute stage; storage buffers of a draw on the fragment stage, where
// render pipelines make them visible.
func (c *Controller) ReadWriteResources(stage replay.ShaderStage) []replay.BoundResource {
	c.mu.Lock()
	defer c.mu.Unlock()

	p := c.currentPipeline()
	if p == nil {
		return nil
	}
	switch p.desc.Kind {
	case capture.PipelineCompute:
		if stage != replay.StageCompute {
			return nil
		}
	case capture.PipelineRender:
		if stage != replay.StageFragment {
			return nil
		}
	}

	var out []replay.BoundResource
	for _, b := range p.desc.Bindings {
		if b.Access != capture.AccessStorage {
			continue
		}
		out = append(out, replay.BoundResource{
			Resource: replay.ResourceID(b.Resource),
			Kind:     replay.KindBuffer,
		})
	}
	return out
}

// TextureData reads back one texture subresource as raw bytes.
func (c *Controller) TextureData(id replay.ResourceID, mip, slice uint32) ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil, errClosed
	}

	res, ok := c.resources[id]
	if !ok || res.texture == nil {
		return nil, fmt.Errorf("wgpureplay: no texture with id %d", id)
	}
	if mip >= res.desc.MipLevels || slice >= res.desc.ArrayLayers {
		return nil, fmt.Errorf("wgpureplay: texture %d has no subresource (mip %d, slice %d)", id, mip, slice)
	}
	return c.readTexture(res, mip, slice)
}

// BufferData reads back a byte range of one buffer. A length of zero
// means the rest of the buffer from offset.
func (c *Controller) BufferData(id replay.ResourceID, offset, length uint64) ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil, errClosed
	}

	res, ok := c.resources[id]
	if !ok || res.buffer == nil {
		return nil, fmt.Errorf("wgpureplay: no buffer with id %d", id)
	}
	if offset > res.desc.Size {
		return nil, fmt.Errorf("wgpureplay: offset %d past end of buffer %d", offset, id)
	}
	if length == 0 {
		length = res.desc.Size - offset
	}
	if offset+length > res.desc.Size {
		return nil, fmt.Errorf("wgpureplay: range [%d, %d) past end of buffer %d", offset, offset+length, id)
	}
	if length == 0 {
		return nil, nil
	}
	return c.readBuffer(res, offset, length)
}

// Close releases all GPU state. It is safe to call more than once.
func (c *Controller) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true
	c.destroy()
	return nil
}

// currentPipeline returns the pipeline of the positioned action, or nil
// when unpositioned or positioned at a marker.
func (c *Controller) currentPipeline() *gpuPipeline {
	if c.cur == nil || c.cur.Pipeline == "" {
		return nil
	}
	return c.pipelines[c.cur.Pipeline]
}
