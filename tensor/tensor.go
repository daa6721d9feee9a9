// Copyright 2025 The Weft Authors. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package tensor provides the public API for device tensors in the Weft
// transfer engine.
//
// A Tensor pairs logical dtype/shape metadata with at most one shaped
// device buffer. Tensors are reference counted: an in-flight transfer
// holds a reference from enqueue until its completion callback fires, so
// the backing memory cannot be freed under an asynchronous copy.
//
// Example:
//
//	src := tensor.New(tensor.Float32, tensor.Shape{1024})
//	dst := tensor.New(tensor.Float32, tensor.Shape{1024}) // unallocated
package tensor

import (
	"github.com/weft-ml/weft/internal/shape"
	"github.com/weft-ml/weft/internal/tensor"
)

// DataType represents the element type of a tensor.
type DataType = shape.DataType

// Element type constants.
const (
	Float32 DataType = shape.Float32
	Float64 DataType = shape.Float64
	Int32   DataType = shape.Int32
	Int64   DataType = shape.Int64
	Uint8   DataType = shape.Uint8
	Bool    DataType = shape.Bool
)

// Shape represents the logical dimensions of a tensor.
// Example: Shape{2, 3, 4} represents a 3D tensor with dimensions 2×3×4.
type Shape = shape.Shape

// Tensor is a logical array backed by at most one shaped device buffer.
type Tensor = tensor.Tensor

// New creates an unallocated tensor with the given element type and
// logical dimensions.
func New(dtype DataType, dims Shape) *Tensor {
	return tensor.New(dtype, dims)
}
