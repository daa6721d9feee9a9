//go:build windows

// Copyright 2025 The Weft Authors. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package webgpu provides the WebGPU device runtime for GPU-backed
// transfers.
//
// WebGPU is a cross-platform graphics and compute API. The runtime maps
// Weft device memory onto wgpu buffers and performs leaf copies with
// buffer-to-buffer command encoders on the adapter queue.
//
// Example:
//
//	rt, err := webgpu.NewRuntime()
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer rt.Release()
//
//	devA, _ := webgpu.NewDevice(rt, webgpu.DeviceOptions{Ordinal: 0})
//	devB, _ := webgpu.NewDevice(rt, webgpu.DeviceOptions{Ordinal: 1})
package webgpu

import (
	internalwebgpu "github.com/weft-ml/weft/internal/backend/webgpu"
	"github.com/weft-ml/weft/transfer"
)

// Kind is the device kind string WebGPU devices register under.
const Kind = internalwebgpu.Kind

// Runtime owns the WebGPU instance, adapter, device and queue.
type Runtime = internalwebgpu.Runtime

// Device is a logical accelerator on a WebGPU runtime.
type Device = internalwebgpu.Device

// DeviceOptions configures one logical WebGPU device.
type DeviceOptions = internalwebgpu.DeviceOptions

// Memory is a region of GPU memory backed by a wgpu buffer.
type Memory = internalwebgpu.Memory

// TransferManager implements the transfer-manager collaborator for the
// WebGPU runtime.
type TransferManager = internalwebgpu.TransferManager

// NewRuntime initializes WebGPU. Call Release when done.
var NewRuntime = internalwebgpu.NewRuntime

// NewDevice creates a logical device on a runtime.
var NewDevice = internalwebgpu.NewDevice

// NewTransferManager creates a transfer manager for WebGPU devices.
var NewTransferManager = internalwebgpu.NewTransferManager

// DefaultContext returns a transfer context wired to the WebGPU runtime.
func DefaultContext() *transfer.Context {
	return internalwebgpu.DefaultContext()
}
