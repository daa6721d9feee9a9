// Copyright 2025 The Weft Authors. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package sim provides the in-process simulated device runtime.
//
// Simulated devices are always available: device memory lives in
// fixed-capacity host arenas and command streams are goroutine-backed
// FIFOs with real cross-stream wait semantics. The test suite and the
// demo CLI run on this runtime.
//
// Example:
//
//	cluster, err := sim.NewCluster(sim.ClusterOptions{
//	    Devices: 2,
//	    Config:  transfer.DefaultConfig(),
//	})
package sim

import (
	internalsim "github.com/weft-ml/weft/internal/backend/sim"
	"github.com/weft-ml/weft/transfer"
)

// Kind is the device kind string simulated devices register under.
const Kind = internalsim.Kind

// Device is a simulated accelerator.
type Device = internalsim.Device

// Options configures one simulated device.
type Options = internalsim.Options

// Platform tracks simulated devices and subsystem initialization.
type Platform = internalsim.Platform

// ClusterOptions configures NewCluster.
type ClusterOptions = internalsim.ClusterOptions

// Memory is a region of simulated device memory.
type Memory = internalsim.Memory

// Stream is a simulated command stream.
type Stream = internalsim.Stream

// Event is a one-shot synchronization token.
type Event = internalsim.Event

// TransferManager implements the transfer-manager collaborator for the
// sim runtime.
type TransferManager = internalsim.TransferManager

// NewDevice creates a standalone simulated device.
var NewDevice = internalsim.NewDevice

// NewPlatform creates an uninitialized platform.
var NewPlatform = internalsim.NewPlatform

// NewCluster creates and initializes a platform with simulated devices
// and registers the device-to-device copy function for the SIM kind.
var NewCluster = internalsim.NewCluster

// NewTransferManager creates a transfer manager for sim devices.
var NewTransferManager = internalsim.NewTransferManager

// DefaultContext returns a transfer context wired to the sim runtime.
func DefaultContext() *transfer.Context {
	return internalsim.DefaultContext()
}
