// Copyright 2025 The Weft Authors. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

package tensor

import (
	"github.com/weft-ml/weft/internal/buffer"
	"github.com/weft-ml/weft/internal/shape"
)

// Physical describes the on-device representation of a buffer: a leaf
// array or a tuple of sub-shapes. Tuple nodes occupy device memory
// themselves, holding the index table of member addresses.
type Physical = shape.Physical

// Index addresses a node inside a physical shape tree.
type Index = shape.Index

// RepresentationFn computes the physical on-device shape for a logical
// shape and element type.
type RepresentationFn = shape.RepresentationFn

// ShapedBuffer is a tree-structured on-device allocation addressed by
// shape-index paths.
type ShapedBuffer = buffer.ShapedBuffer

// Leaf pairs a shape index with the device memory backing it.
type Leaf = buffer.Leaf

// NewLeaf creates a leaf physical shape for an array of dtype elements.
var NewLeaf = shape.NewLeaf

// NewTuple creates a tuple physical shape from member shapes.
var NewTuple = shape.NewTuple

// DefaultRepresentation lays a logical shape out as a single dense leaf.
var DefaultRepresentation = shape.DefaultRepresentation
