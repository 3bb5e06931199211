// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package remote

import "github.com/gogpu/flakehunt/replay"

// DefaultPort is used when a host string carries no port.
const DefaultPort = "39920"

// Method names. The session protocol is: upload chunks, open, then any
// number of query calls, then close.
const (
	methodUpload        = "replay.upload"
	methodOpen          = "replay.open"
	methodActions       = "replay.actions"
	methodSetFrameEvent = "replay.setFrameEvent"
	methodColorTargets  = "replay.colorTargets"
	methodDepthTarget   = "replay.depthTarget"
	methodRWResources   = "replay.rwResources"
	methodTextureData   = "replay.textureData"
	methodBufferData    = "replay.bufferData"
	methodClose         = "replay.close"

	// notifyProgress is sent by the server while opening a capture.
	notifyProgress = "replay.progress"
)

// uploadChunkSize is the capture upload granularity.
const uploadChunkSize = 1 << 20

type uploadParams struct {
	// Data is a capture file chunk; encoding/json transports it base64.
	Data []byte `json:"data"`
}

type openResult struct {
	Actions []wireAction `json:"actions"`
}

type wireAction struct {
	EventID uint32 `json:"eventId"`
	Flags   uint32 `json:"flags"`
	Name    string `json:"name,omitempty"`
}

type eventParams struct {
	EventID uint32 `json:"eventId"`
}

type stageParams struct {
	Stage uint32 `json:"stage"`
}

type wireBound struct {
	Resource   uint64 `json:"resource"`
	Kind       string `json:"kind"`
	FirstMip   uint32 `json:"firstMip,omitempty"`
	FirstSlice uint32 `json:"firstSlice,omitempty"`
}

type boundsResult struct {
	Bound []wireBound `json:"bound,omitempty"`
}

type depthResult struct {
	Bound *wireBound `json:"bound,omitempty"`
}

type textureDataParams struct {
	Resource uint64 `json:"resource"`
	Mip      uint32 `json:"mip"`
	Slice    uint32 `json:"slice"`
}

type bufferDataParams struct {
	Resource uint64 `json:"resource"`
	Offset   uint64 `json:"offset"`
	Length   uint64 `json:"length"`
}

type dataResult struct {
	Data []byte `json:"data"`
}

type progressParams struct {
	Fraction float64 `json:"fraction"`
}

func toWireBound(b replay.BoundResource) wireBound {
	kind := "buffer"
	if b.Kind == replay.KindTexture {
		kind = "texture"
	}
	return wireBound{
		Resource:   uint64(b.Resource),
		Kind:       kind,
		FirstMip:   b.FirstMip,
		FirstSlice: b.FirstSlice,
	}
}

func fromWireBound(w wireBound) replay.BoundResource {
	kind := replay.KindBuffer
	if w.Kind == "texture" {
		kind = replay.KindTexture
	}
	return replay.BoundResource{
		Resource:   replay.ResourceID(w.Resource),
		Kind:       kind,
		FirstMip:   w.FirstMip,
		FirstSlice: w.FirstSlice,
	}
}
