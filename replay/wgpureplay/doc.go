// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

// Package wgpureplay replays frame captures on a local GPU through the
// wgpu hardware abstraction layer.
//
// The package registers itself as the "local" replay driver. Opening a
// capture builds every resource and pipeline it describes up front;
// positioning at a frame event then re-uploads all initial contents and
// re-executes the action timeline from the start, so each replay of the
// same event starts from identical inputs.
//
// By default a standalone Vulkan device is created on first open. An
// application that already owns a device can share it with
// SetDeviceProvider before opening captures.
package wgpureplay
