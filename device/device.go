// Copyright 2025 The Weft Authors. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package device exposes the runtime collaborator interfaces the Weft
// transfer engine issues work through: device memory regions, command
// streams, synchronization events, and the bounded substream pool.
//
// Implementations:
//   - backend/sim: in-process simulated devices (always available)
//   - backend/webgpu: GPU devices via WebGPU
package device

import (
	"github.com/weft-ml/weft/internal/device"
)

// Memory is a region of device memory.
type Memory = device.Memory

// Event is a synchronization token recorded on exactly one stream.
type Event = device.Event

// Stream is an ordered, asynchronous queue of device operations.
type Stream = device.Stream

// Device is an addressable accelerator. Identity is compared by name.
type Device = device.Device

// Platform reports whether the device subsystem has been initialized.
type Platform = device.Platform

// SubstreamPool manages a bounded set of auxiliary streams attached to a
// master stream.
type SubstreamPool = device.SubstreamPool

// PoolStats is a snapshot of substream pool activity.
type PoolStats = device.PoolStats

// NewSubstreamPool creates a pool that lazily creates up to max streams
// with factory.
func NewSubstreamPool(max int, factory func() (Stream, error)) (*SubstreamPool, error) {
	return device.NewSubstreamPool(max, factory)
}
