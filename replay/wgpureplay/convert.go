// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package wgpureplay

import (
	"fmt"

	"github.com/gogpu/gputypes"

	"github.com/gogpu/flakehunt/capture"
)

func textureFormat(f capture.TextureFormat) (gputypes.TextureFormat, error) {
	switch f {
	case capture.FormatRGBA8Unorm:
		return gputypes.TextureFormatRGBA8Unorm, nil
	case capture.FormatBGRA8Unorm:
		return gputypes.TextureFormatBGRA8Unorm, nil
	case capture.FormatR32Float:
		return gputypes.TextureFormatR32Float, nil
	default:
		return gputypes.TextureFormatUndefined, fmt.Errorf("unsupported texture format %q", f)
	}
}

func vertexFormat(name string) (gputypes.VertexFormat, error) {
	switch name {
	case "float32":
		return gputypes.VertexFormatFloat32, nil
	case "float32x2":
		return gputypes.VertexFormatFloat32x2, nil
	case "float32x3":
		return gputypes.VertexFormatFloat32x3, nil
	case "float32x4":
		return gputypes.VertexFormatFloat32x4, nil
	default:
		var zero gputypes.VertexFormat
		return zero, fmt.Errorf("unsupported vertex format %q", name)
	}
}

func bindingType(access capture.BindingAccess) gputypes.BufferBindingType {
	switch access {
	case capture.AccessUniform:
		return gputypes.BufferBindingTypeUniform
	case capture.AccessReadOnlyStorage:
		return gputypes.BufferBindingTypeReadOnlyStorage
	default:
		return gputypes.BufferBindingTypeStorage
	}
}
