// Copyright 2025 The Weft Authors. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package transfer provides the public API of the Weft asynchronous
// cross-device buffer transfer engine.
//
// The engine moves a shaped device buffer from one accelerator to another
// over the device interconnect. The copy is asynchronous: AsyncCopy
// returns once all commands are enqueued, and the completion callback
// fires exactly once when the transfer completes or fails. There is no
// synchronous status.
//
// Example:
//
//	cluster, _ := sim.NewCluster(sim.ClusterOptions{Devices: 2, Config: transfer.DefaultConfig()})
//	eng := transfer.New(cluster, transfer.DefaultConfig())
//	eng.AsyncCopy(devA, devB, ctxA, ctxB, transfer.AllocAttrs{}, transfer.AllocAttrs{},
//	    src, dst, 0, func(err error) { ... })
package transfer

import (
	"github.com/weft-ml/weft/internal/transfer"
)

// Engine orchestrates device-to-device copies.
type Engine = transfer.Engine

// Config carries the engine settings fixed at construction time.
type Config = transfer.Config

// DoneFn receives the outcome of a transfer. It fires exactly once.
type DoneFn = transfer.DoneFn

// Context carries the per-device collaborators of a transfer endpoint.
type Context = transfer.Context

// Manager is the transfer-manager collaborator of a device runtime.
type Manager = transfer.Manager

// AllocAttrs carries allocator attributes for one transfer endpoint.
type AllocAttrs = transfer.AllocAttrs

// CopyFn performs one device-to-device copy.
type CopyFn = transfer.CopyFn

// Sentinel error kinds; classify callback errors with errors.Is.
var (
	ErrPrecondition  = transfer.ErrPrecondition
	ErrTypeMismatch  = transfer.ErrTypeMismatch
	ErrShapeMismatch = transfer.ErrShapeMismatch
	ErrAllocation    = transfer.ErrAllocation
	ErrInternal      = transfer.ErrInternal
	ErrEventInit     = transfer.ErrEventInit
)

// New creates a transfer engine for the given platform.
var New = transfer.New

// DefaultConfig returns the default engine settings.
var DefaultConfig = transfer.DefaultConfig

// RegisterCopy registers a copy function for a (source kind, destination
// kind) device pair.
var RegisterCopy = transfer.RegisterCopy

// Copy dispatches a transfer to the registered copy function for the
// devices' kinds.
var Copy = transfer.Copy
