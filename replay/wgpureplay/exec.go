// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package wgpureplay

import (
	"fmt"
	"sort"
	"time"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"

	"github.com/gogpu/flakehunt/capture"
	"github.com/gogpu/flakehunt/replay"
)

const gpuTimeout = 5 * time.Second

// gpuResource pairs a capture resource with its GPU object. curUsage
// tracks the texture's last known usage so passes and copies can insert
// the layout barriers Vulkan requires.
type gpuResource struct {
	desc capture.Resource

	// init is the full-size initial contents, zero padded.
	init []byte

	buffer   hal.Buffer
	texture  hal.Texture
	views    map[[2]uint32]hal.TextureView
	curUsage gputypes.TextureUsage
}

// gpuPipeline is the compiled form of one capture pipeline. bindGroup is
// nil for pipelines with no bindings.
type gpuPipeline struct {
	desc *capture.Pipeline

	bgl       hal.BindGroupLayout
	layout    hal.PipelineLayout
	bindGroup hal.BindGroup
	compute   hal.ComputePipeline
	render    hal.RenderPipeline
}

// build creates every shader module, resource, and pipeline the capture
// describes. progress receives fractions in (0.1, 1).
func (c *Controller) build(progress func(float64)) error {
	names := make([]string, 0, len(c.cap.Shaders))
	for name := range c.cap.Shaders {
		names = append(names, name)
	}
	sort.Strings(names)

	steps := len(names) + len(c.cap.Manifest.Resources) + len(c.cap.Manifest.Pipelines)
	done := 0
	step := func() {
		done++
		progress(0.1 + 0.9*float64(done)/float64(steps+1))
	}

	for _, name := range names {
		module, err := c.dev.device.CreateShaderModule(&hal.ShaderModuleDescriptor{
			Label:  name,
			Source: hal.ShaderSource{WGSL: c.cap.Shaders[name]},
		})
		if err != nil {
			return fmt.Errorf("create shader %s: %w", name, err)
		}
		c.modules[name] = module
		step()
	}

	for i := range c.cap.Manifest.Resources {
		if err := c.createResource(c.cap.Manifest.Resources[i]); err != nil {
			return err
		}
		step()
	}
	for i := range c.cap.Manifest.Pipelines {
		if err := c.createPipeline(&c.cap.Manifest.Pipelines[i]); err != nil {
			return err
		}
		step()
	}

	c.actions = make([]replay.Action, 0, len(c.cap.Manifest.Actions))
	for _, a := range c.cap.Manifest.Actions {
		c.actions = append(c.actions, replay.Action{
			EventID: a.EventID,
			Flags:   actionFlags(a.Kind),
			Name:    actionName(a),
		})
	}
	return nil
}

func actionFlags(kind capture.ActionKind) replay.ActionFlags {
	switch kind {
	case capture.ActionDraw:
		return replay.FlagDrawcall
	case capture.ActionDispatch:
		return replay.FlagDispatch
	default:
		return 0
	}
}

func actionName(a capture.Action) string {
	if a.Name != "" {
		return a.Name
	}
	switch a.Kind {
	case capture.ActionDraw:
		return fmt.Sprintf("Draw(%d)", a.VertexCount)
	case capture.ActionDispatch:
		return fmt.Sprintf("Dispatch(%d, %d, %d)", a.Workgroups[0], a.Workgroups[1], a.Workgroups[2])
	default:
		return string(a.Kind)
	}
}

func (c *Controller) createResource(desc capture.Resource) error {
	res := &gpuResource{desc: desc}

	switch desc.Kind {
	case capture.ResourceBuffer:
		res.init = make([]byte, desc.Size)
		copy(res.init, c.cap.Data[desc.Data])

		buf, err := c.dev.device.CreateBuffer(&hal.BufferDescriptor{
			Label: desc.Label,
			Size:  desc.Size,
			Usage: c.bufferUsage(desc.ID),
		})
		if err != nil {
			return fmt.Errorf("create buffer %d: %w", desc.ID, err)
		}
		res.buffer = buf

	case capture.ResourceTexture:
		format, err := textureFormat(desc.Format)
		if err != nil {
			return fmt.Errorf("texture %d: %w", desc.ID, err)
		}
		tex, err := c.dev.device.CreateTexture(&hal.TextureDescriptor{
			Label:         desc.Label,
			Size:          hal.Extent3D{Width: desc.Width, Height: desc.Height, DepthOrArrayLayers: desc.ArrayLayers},
			MipLevelCount: desc.MipLevels,
			SampleCount:   1,
			Dimension:     gputypes.TextureDimension2D,
			Format:        format,
			Usage: gputypes.TextureUsageRenderAttachment |
				gputypes.TextureUsageCopySrc |
				gputypes.TextureUsageCopyDst,
		})
		if err != nil {
			return fmt.Errorf("create texture %d: %w", desc.ID, err)
		}
		res.texture = tex
		res.init = c.cap.Data[desc.Data]
		res.views = make(map[[2]uint32]hal.TextureView)
	}

	id := replay.ResourceID(desc.ID)
	c.resources[id] = res
	c.order = append(c.order, id)
	return nil
}

// bufferUsage derives a buffer's usage flags from every pipeline that
// references it, plus the copy usages replay itself needs.
func (c *Controller) bufferUsage(id uint64) gputypes.BufferUsage {
	usage := gputypes.BufferUsageCopySrc | gputypes.BufferUsageCopyDst
	for i := range c.cap.Manifest.Pipelines {
		p := &c.cap.Manifest.Pipelines[i]
		if p.VertexBuffer == id {
			usage |= gputypes.BufferUsageVertex
		}
		for _, b := range p.Bindings {
			if b.Resource != id {
				continue
			}
			if b.Access == capture.AccessUniform {
				usage |= gputypes.BufferUsageUniform
			} else {
				usage |= gputypes.BufferUsageStorage
			}
		}
	}
	return usage
}

func (c *Controller) createPipeline(desc *capture.Pipeline) error {
	p := &gpuPipeline{desc: desc}

	visibility := gputypes.ShaderStageCompute
	if desc.Kind == capture.PipelineRender {
		visibility = gputypes.ShaderStageVertex | gputypes.ShaderStageFragment
	}
	entries := make([]gputypes.BindGroupLayoutEntry, 0, len(desc.Bindings))
	for _, b := range desc.Bindings {
		entries = append(entries, gputypes.BindGroupLayoutEntry{
			Binding:    b.Binding,
			Visibility: visibility,
			Buffer:     &gputypes.BufferBindingLayout{Type: bindingType(b.Access)},
		})
	}

	bgl, err := c.dev.device.CreateBindGroupLayout(&hal.BindGroupLayoutDescriptor{
		Label:   desc.Name + "_layout",
		Entries: entries,
	})
	if err != nil {
		return fmt.Errorf("pipeline %s: create bind group layout: %w", desc.Name, err)
	}
	p.bgl = bgl

	layout, err := c.dev.device.CreatePipelineLayout(&hal.PipelineLayoutDescriptor{
		Label:            desc.Name + "_pipe_layout",
		BindGroupLayouts: []hal.BindGroupLayout{bgl},
	})
	if err != nil {
		return fmt.Errorf("pipeline %s: create pipeline layout: %w", desc.Name, err)
	}
	p.layout = layout

	if len(desc.Bindings) > 0 {
		bgEntries := make([]gputypes.BindGroupEntry, 0, len(desc.Bindings))
		for _, b := range desc.Bindings {
			res := c.resources[replay.ResourceID(b.Resource)]
			bgEntries = append(bgEntries, gputypes.BindGroupEntry{
				Binding: b.Binding,
				Resource: gputypes.BufferBinding{
					Buffer: res.buffer.NativeHandle(),
					Offset: 0,
					Size:   0, // whole buffer
				},
			})
		}
		bg, err := c.dev.device.CreateBindGroup(&hal.BindGroupDescriptor{
			Label:   desc.Name + "_bind",
			Layout:  bgl,
			Entries: bgEntries,
		})
		if err != nil {
			return fmt.Errorf("pipeline %s: create bind group: %w", desc.Name, err)
		}
		p.bindGroup = bg
	}

	switch desc.Kind {
	case capture.PipelineCompute:
		pipe, err := c.dev.device.CreateComputePipeline(&hal.ComputePipelineDescriptor{
			Label:  desc.Name,
			Layout: layout,
			Compute: hal.ComputeState{
				Module:     c.modules[desc.Shader],
				EntryPoint: entryPoint(desc.EntryPoint, "main"),
			},
		})
		if err != nil {
			return fmt.Errorf("pipeline %s: create compute pipeline: %w", desc.Name, err)
		}
		p.compute = pipe

	case capture.PipelineRender:
		targets := make([]gputypes.ColorTargetState, len(desc.ColorTargets))
		for i, t := range desc.ColorTargets {
			res := c.resources[replay.ResourceID(t.Resource)]
			format, err := textureFormat(res.desc.Format)
			if err != nil {
				return fmt.Errorf("pipeline %s: %w", desc.Name, err)
			}
			targets[i] = gputypes.ColorTargetState{
				Format:    format,
				WriteMask: gputypes.ColorWriteMaskAll,
			}
		}

		var buffers []gputypes.VertexBufferLayout
		if desc.VertexBuffer != 0 {
			attrs := make([]gputypes.VertexAttribute, len(desc.VertexAttributes))
			for i, a := range desc.VertexAttributes {
				format, err := vertexFormat(a.Format)
				if err != nil {
					return fmt.Errorf("pipeline %s: %w", desc.Name, err)
				}
				attrs[i] = gputypes.VertexAttribute{
					Format:         format,
					Offset:         a.Offset,
					ShaderLocation: a.Location,
				}
			}
			buffers = []gputypes.VertexBufferLayout{{
				ArrayStride: desc.VertexStride,
				StepMode:    gputypes.VertexStepModeVertex,
				Attributes:  attrs,
			}}
		}

		pipe, err := c.dev.device.CreateRenderPipeline(&hal.RenderPipelineDescriptor{
			Label:  desc.Name,
			Layout: layout,
			Vertex: hal.VertexState{
				Module:     c.modules[desc.VertexShader],
				EntryPoint: entryPoint(desc.VertexEntry, "vs_main"),
				Buffers:    buffers,
			},
			Fragment: &hal.FragmentState{
				Module:     c.modules[desc.FragmentShader],
				EntryPoint: entryPoint(desc.FragmentEntry, "fs_main"),
				Targets:    targets,
			},
			Primitive: gputypes.PrimitiveState{
				Topology: gputypes.PrimitiveTopologyTriangleList,
				CullMode: gputypes.CullModeNone,
			},
			Multisample: gputypes.MultisampleState{Count: 1, Mask: 0xFFFFFFFF},
		})
		if err != nil {
			return fmt.Errorf("pipeline %s: create render pipeline: %w", desc.Name, err)
		}
		p.render = pipe
	}

	c.pipelines[desc.Name] = p
	return nil
}

func entryPoint(name, fallback string) string {
	if name != "" {
		return name
	}
	return fallback
}

// reset re-uploads the initial contents of every resource, in creation
// order. Textures get all mips written so readback of an untouched
// subresource is deterministic rather than whatever the driver left
// behind.
func (c *Controller) reset() error {
	for _, id := range c.order {
		res := c.resources[id]
		if res.buffer != nil {
			c.dev.queue.WriteBuffer(res.buffer, 0, res.init)
			continue
		}

		bpp, _ := res.desc.Format.BytesPerPixel()
		for mip := uint32(0); mip < res.desc.MipLevels; mip++ {
			w, h := res.desc.MipDims(mip)
			data := make([]byte, uint64(w)*uint64(h)*uint64(bpp)*uint64(res.desc.ArrayLayers))
			if mip == 0 {
				copy(data, res.init)
			}
			c.dev.queue.WriteTexture(
				&hal.ImageCopyTexture{Texture: res.texture, MipLevel: mip},
				data,
				&hal.ImageDataLayout{Offset: 0, BytesPerRow: w * bpp, RowsPerImage: h},
				&hal.Extent3D{Width: w, Height: h, DepthOrArrayLayers: res.desc.ArrayLayers},
			)
		}
		res.curUsage = gputypes.TextureUsageCopyDst
	}
	return nil
}

// execute encodes and submits every replayable action up to and including
// eventID.
func (c *Controller) execute(eventID uint32) error {
	encoder, err := c.dev.device.CreateCommandEncoder(&hal.CommandEncoderDescriptor{
		Label: "replay_encoder",
	})
	if err != nil {
		return fmt.Errorf("create command encoder: %w", err)
	}
	if err := encoder.BeginEncoding("replay"); err != nil {
		return fmt.Errorf("begin encoding: %w", err)
	}

	for i := range c.cap.Manifest.Actions {
		a := &c.cap.Manifest.Actions[i]
		if a.EventID > eventID {
			break
		}
		switch a.Kind {
		case capture.ActionDispatch:
			c.encodeDispatch(encoder, a)
		case capture.ActionDraw:
			if err := c.encodeDraw(encoder, a); err != nil {
				encoder.DiscardEncoding()
				return err
			}
		}
	}

	return c.submit(encoder)
}

func (c *Controller) encodeDispatch(encoder hal.CommandEncoder, a *capture.Action) {
	p := c.pipelines[a.Pipeline]
	pass := encoder.BeginComputePass(&hal.ComputePassDescriptor{Label: a.Pipeline})
	pass.SetPipeline(p.compute)
	if p.bindGroup != nil {
		pass.SetBindGroup(0, p.bindGroup, nil)
	}
	pass.Dispatch(a.Workgroups[0], a.Workgroups[1], a.Workgroups[2])
	pass.End()
}

func (c *Controller) encodeDraw(encoder hal.CommandEncoder, a *capture.Action) error {
	p := c.pipelines[a.Pipeline]

	atts := make([]hal.RenderPassColorAttachment, len(p.desc.ColorTargets))
	for i, t := range p.desc.ColorTargets {
		res := c.resources[replay.ResourceID(t.Resource)]
		c.transition(encoder, res, gputypes.TextureUsageRenderAttachment)

		view, err := c.view(res, t.FirstMip, t.FirstSlice)
		if err != nil {
			return err
		}
		load := gputypes.LoadOpClear
		if t.Load == capture.LoadOpLoad {
			load = gputypes.LoadOpLoad
		}
		atts[i] = hal.RenderPassColorAttachment{
			View:       view,
			LoadOp:     load,
			StoreOp:    gputypes.StoreOpStore,
			ClearValue: gputypes.Color{R: 0, G: 0, B: 0, A: 0},
		}
	}

	rp := encoder.BeginRenderPass(&hal.RenderPassDescriptor{
		Label:            a.Pipeline,
		ColorAttachments: atts,
	})
	rp.SetPipeline(p.render)
	if p.bindGroup != nil {
		rp.SetBindGroup(0, p.bindGroup, nil)
	}
	if p.desc.VertexBuffer != 0 {
		rp.SetVertexBuffer(0, c.resources[replay.ResourceID(p.desc.VertexBuffer)].buffer, 0)
	}
	instances := a.InstanceCount
	if instances == 0 {
		instances = 1
	}
	rp.Draw(a.VertexCount, instances, 0, 0)
	rp.End()
	return nil
}

// transition inserts a usage barrier when the texture's tracked usage
// differs from what the next operation needs.
func (c *Controller) transition(encoder hal.CommandEncoder, res *gpuResource, usage gputypes.TextureUsage) {
	if res.curUsage == usage {
		return
	}
	encoder.TransitionTextures([]hal.TextureBarrier{{
		Texture: res.texture,
		Usage: hal.TextureUsageTransition{
			OldUsage: res.curUsage,
			NewUsage: usage,
		},
	}})
	res.curUsage = usage
}

// view returns a cached single-subresource view of a texture.
func (c *Controller) view(res *gpuResource, mip, slice uint32) (hal.TextureView, error) {
	key := [2]uint32{mip, slice}
	if v, ok := res.views[key]; ok {
		return v, nil
	}
	v, err := c.dev.device.CreateTextureView(res.texture, &hal.TextureViewDescriptor{
		Label:           fmt.Sprintf("%s_mip%d_slice%d", res.desc.Label, mip, slice),
		Format:          gputypes.TextureFormatUndefined,
		Dimension:       gputypes.TextureViewDimension2D,
		Aspect:          gputypes.TextureAspectAll,
		BaseMipLevel:    mip,
		MipLevelCount:   1,
		BaseArrayLayer:  slice,
		ArrayLayerCount: 1,
	})
	if err != nil {
		return nil, fmt.Errorf("create view of texture %d: %w", res.desc.ID, err)
	}
	res.views[key] = v
	return v, nil
}

// submit finalizes the encoder, submits, and blocks until the GPU is
// done.
func (c *Controller) submit(encoder hal.CommandEncoder) error {
	cmdBuf, err := encoder.EndEncoding()
	if err != nil {
		return fmt.Errorf("end encoding: %w", err)
	}
	defer c.dev.device.FreeCommandBuffer(cmdBuf)

	fence, err := c.dev.device.CreateFence()
	if err != nil {
		return fmt.Errorf("create fence: %w", err)
	}
	defer c.dev.device.DestroyFence(fence)

	if err := c.dev.queue.Submit([]hal.CommandBuffer{cmdBuf}, fence, 1); err != nil {
		return fmt.Errorf("submit: %w", err)
	}
	fenceOK, err := c.dev.device.Wait(fence, 1, gpuTimeout)
	if err != nil {
		return fmt.Errorf("wait for GPU: %w", err)
	}
	if !fenceOK {
		return fmt.Errorf("wait for GPU: timeout after %v", gpuTimeout)
	}
	return nil
}

// readTexture copies one subresource into a staging buffer and reads it
// back.
func (c *Controller) readTexture(res *gpuResource, mip, slice uint32) ([]byte, error) {
	bpp, _ := res.desc.Format.BytesPerPixel()
	w, h := res.desc.MipDims(mip)
	size := uint64(w) * uint64(h) * uint64(bpp)

	encoder, err := c.dev.device.CreateCommandEncoder(&hal.CommandEncoderDescriptor{
		Label: "readback_encoder",
	})
	if err != nil {
		return nil, fmt.Errorf("create command encoder: %w", err)
	}
	if err := encoder.BeginEncoding("readback"); err != nil {
		return nil, fmt.Errorf("begin encoding: %w", err)
	}

	c.transition(encoder, res, gputypes.TextureUsageCopySrc)

	staging, err := c.dev.device.CreateBuffer(&hal.BufferDescriptor{
		Label: "readback_staging",
		Size:  size,
		Usage: gputypes.BufferUsageMapRead | gputypes.BufferUsageCopyDst,
	})
	if err != nil {
		encoder.DiscardEncoding()
		return nil, fmt.Errorf("create staging buffer: %w", err)
	}
	defer c.dev.device.DestroyBuffer(staging)

	encoder.CopyTextureToBuffer(res.texture, staging, []hal.BufferTextureCopy{{
		BufferLayout: hal.ImageDataLayout{Offset: 0, BytesPerRow: w * bpp, RowsPerImage: h},
		TextureBase: hal.ImageCopyTexture{
			Texture:  res.texture,
			MipLevel: mip,
			Origin:   hal.Origin3D{X: 0, Y: 0, Z: slice},
		},
		Size: hal.Extent3D{Width: w, Height: h, DepthOrArrayLayers: 1},
	}})

	if err := c.submit(encoder); err != nil {
		return nil, err
	}

	data := make([]byte, size)
	if err := c.dev.queue.ReadBuffer(staging, 0, data); err != nil {
		return nil, fmt.Errorf("readback: %w", err)
	}
	return data, nil
}

// readBuffer copies a byte range into a staging buffer and reads it back.
func (c *Controller) readBuffer(res *gpuResource, offset, length uint64) ([]byte, error) {
	encoder, err := c.dev.device.CreateCommandEncoder(&hal.CommandEncoderDescriptor{
		Label: "readback_encoder",
	})
	if err != nil {
		return nil, fmt.Errorf("create command encoder: %w", err)
	}
	if err := encoder.BeginEncoding("readback"); err != nil {
		return nil, fmt.Errorf("begin encoding: %w", err)
	}

	staging, err := c.dev.device.CreateBuffer(&hal.BufferDescriptor{
		Label: "readback_staging",
		Size:  length,
		Usage: gputypes.BufferUsageMapRead | gputypes.BufferUsageCopyDst,
	})
	if err != nil {
		encoder.DiscardEncoding()
		return nil, fmt.Errorf("create staging buffer: %w", err)
	}
	defer c.dev.device.DestroyBuffer(staging)

	encoder.CopyBufferToBuffer(res.buffer, staging, []hal.BufferCopy{{
		SrcOffset: offset,
		DstOffset: 0,
		Size:      length,
	}})

	if err := c.submit(encoder); err != nil {
		return nil, err
	}

	data := make([]byte, length)
	if err := c.dev.queue.ReadBuffer(staging, 0, data); err != nil {
		return nil, fmt.Errorf("readback: %w", err)
	}
	return data, nil
}

// destroy releases all GPU objects. Pipelines go first, then resources,
// then shader modules.
func (c *Controller) destroy() {
	device := c.dev.device
	for _, p := range c.pipelines {
		if p.compute != nil {
			device.DestroyComputePipeline(p.compute)
		}
		if p.render != nil {
			device.DestroyRenderPipeline(p.render)
		}
		if p.bindGroup != nil {
			device.DestroyBindGroup(p.bindGroup)
		}
		if p.layout != nil {
			device.DestroyPipelineLayout(p.layout)
		}
		if p.bgl != nil {
			device.DestroyBindGroupLayout(p.bgl)
		}
	}
	c.pipelines = nil

	for _, res := range c.resources {
		for _, v := range res.views {
			device.DestroyTextureView(v)
		}
		if res.texture != nil {
			device.DestroyTexture(res.texture)
		}
		if res.buffer != nil {
			device.DestroyBuffer(res.buffer)
		}
	}
	c.resources = nil
	c.order = nil

	for _, m := range c.modules {
		device.DestroyShaderModule(m)
	}
	c.modules = nil

	c.dev.close()
}
