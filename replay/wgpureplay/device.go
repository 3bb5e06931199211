// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package wgpureplay

import (
	"fmt"
	"sync"

	"github.com/gogpu/gpucontext"
	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"

	// Import Vulkan backend so it registers via init().
	_ "github.com/gogpu/wgpu/hal/vulkan"

	"github.com/gogpu/flakehunt"
)

// gpuDevice bundles a HAL device with its queue. When owned is false the
// device came from an external provider and must not be destroyed.
type gpuDevice struct {
	instance hal.Instance
	device   hal.Device
	queue    hal.Queue
	owned    bool
}

var sharedDevice struct {
	mu     sync.Mutex
	device hal.Device
	queue  hal.Queue
}

// SetDeviceProvider switches replay onto a GPU device owned by the host
// application instead of creating a standalone Vulkan device. The
// provider must expose HalDevice() any and HalQueue() any returning
// hal.Device and hal.Queue. It affects controllers opened after the call.
func SetDeviceProvider(provider gpucontext.DeviceProvider) error {
	type halProvider interface {
		HalDevice() any
		HalQueue() any
	}
	hp, ok := provider.(halProvider)
	if !ok {
		return fmt.Errorf("wgpureplay: provider does not expose HAL types")
	}
	device, ok := hp.HalDevice().(hal.Device)
	if !ok || device == nil {
		return fmt.Errorf("wgpureplay: provider HalDevice is not hal.Device")
	}
	queue, ok := hp.HalQueue().(hal.Queue)
	if !ok || queue == nil {
		return fmt.Errorf("wgpureplay: provider HalQueue is not hal.Queue")
	}

	sharedDevice.mu.Lock()
	sharedDevice.device = device
	sharedDevice.queue = queue
	sharedDevice.mu.Unlock()

	flakehunt.Logger().Debug("wgpureplay: using shared GPU device")
	return nil
}

// acquireDevice returns the shared device if a provider was set, or
// creates a standalone Vulkan device.
func acquireDevice() (*gpuDevice, error) {
	sharedDevice.mu.Lock()
	device, queue := sharedDevice.device, sharedDevice.queue
	sharedDevice.mu.Unlock()
	if device != nil {
		return &gpuDevice{device: device, queue: queue}, nil
	}
	return openStandalone()
}

func openStandalone() (*gpuDevice, error) {
	backend, ok := hal.GetBackend(gputypes.BackendVulkan)
	if !ok {
		return nil, fmt.Errorf("wgpureplay: vulkan backend not available")
	}
	instance, err := backend.CreateInstance(&hal.InstanceDescriptor{Flags: 0})
	if err != nil {
		return nil, fmt.Errorf("wgpureplay: create instance: %w", err)
	}

	adapters := instance.EnumerateAdapters(nil)
	if len(adapters) == 0 {
		instance.Destroy()
		return nil, fmt.Errorf("wgpureplay: no GPU adapters found")
	}

	var selected *hal.ExposedAdapter
	for i := range adapters {
		if adapters[i].Info.DeviceType == gputypes.DeviceTypeDiscreteGPU ||
			adapters[i].Info.DeviceType == gputypes.DeviceTypeIntegratedGPU {
			selected = &adapters[i]
			break
		}
	}
	if selected == nil {
		selected = &adapters[0]
	}

	openDev, err := selected.Adapter.Open(gputypes.Features(0), gputypes.DefaultLimits())
	if err != nil {
		instance.Destroy()
		return nil, fmt.Errorf("wgpureplay: open device: %w", err)
	}

	flakehunt.Logger().Info("wgpureplay: GPU initialized", "adapter", selected.Info.Name)
	return &gpuDevice{
		instance: instance,
		device:   openDev.Device,
		queue:    openDev.Queue,
		owned:    true,
	}, nil
}

func (d *gpuDevice) close() {
	if !d.owned {
		return
	}
	if d.device != nil {
		d.device.Destroy()
		d.device = nil
	}
	if d.instance != nil {
		d.instance.Destroy()
		d.instance = nil
	}
}
