// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package flakehunt

import (
	"fmt"

	"github.com/gogpu/flakehunt/replay"
)

// Fingerprint positions the controller at the action's event and digests
// every GPU-visible output of the pipeline state bound there.
//
// Enumeration order is fixed: all bound color targets, then the depth
// target, then each stage's read-write resources in stage order. Bindings
// with a null resource are skipped silently. Texture bindings are read at
// their bound first mip/slice; buffer bindings are read whole and keyed
// with a zero subresource.
//
// Fingerprint's only side effect is advancing the controller's event
// position. Calling it twice in immediate succession yields identical maps
// unless the GPU work itself is nondeterministic, which is exactly the
// condition under investigation.
func Fingerprint(ctrl replay.Controller, eventID uint32) (FingerprintMap, error) {
	m, _, _, err := fingerprint(ctrl, eventID, false)
	return m, err
}

// fingerprint is the implementation behind Fingerprint. It also returns
// the map's keys in enumeration order, so comparisons can report a stable
// key when more than one surface diverges. When keepData is set it
// additionally returns the raw bytes per key, for divergence dumps.
func fingerprint(ctrl replay.Controller, eventID uint32, keepData bool) (FingerprintMap, []ResourceKey, map[ResourceKey][]byte, error) {
	if err := ctrl.SetFrameEvent(eventID); err != nil {
		return nil, nil, nil, &PositionError{EventID: eventID, Err: err}
	}

	prints := make(FingerprintMap)
	var keys []ResourceKey
	var raw map[ResourceKey][]byte
	if keepData {
		raw = make(map[ResourceKey][]byte)
	}

	add := func(bound replay.BoundResource) error {
		if bound.Resource.Null() {
			return nil
		}

		var key ResourceKey
		var data []byte
		var err error
		switch bound.Kind {
		case replay.KindTexture:
			key = ResourceKey{
				Resource: bound.Resource,
				Subresource: SubresourceDesc{
					FirstMip:   bound.FirstMip,
					FirstSlice: bound.FirstSlice,
				},
			}
			data, err = ctrl.TextureData(bound.Resource, bound.FirstMip, bound.FirstSlice)
		case replay.KindBuffer:
			key = ResourceKey{Resource: bound.Resource}
			data, err = ctrl.BufferData(bound.Resource, 0, 0)
		default:
			return fmt.Errorf("flakehunt: unknown resource kind %d for resource %d", bound.Kind, bound.Resource)
		}
		if err != nil {
			return &ReadbackError{EventID: eventID, Key: key, Err: err}
		}

		if _, dup := prints[key]; !dup {
			keys = append(keys, key)
		}
		prints[key] = ComputeDigest(data)
		if keepData {
			raw[key] = data
		}
		return nil
	}

	for _, bound := range ctrl.ColorTargets() {
		if err := add(bound); err != nil {
			return nil, nil, nil, err
		}
	}
	if depth, ok := ctrl.DepthTarget(); ok {
		if err := add(depth); err != nil {
			return nil, nil, nil, err
		}
	}
	for stage := replay.ShaderStage(0); stage < replay.StageCount; stage++ {
		for _, bound := range ctrl.ReadWriteResources(stage) {
			if err := add(bound); err != nil {
				return nil, nil, nil, err
			}
		}
	}

	Logger().Debug("fingerprinted event", "event", eventID, "surfaces", len(prints))
	return prints, keys, raw, nil
}
