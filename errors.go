// Copyright 2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package graphs

import "github.com/pkg/errors"

// Error kinds reported by this module. They are used as sentinels, wrapped with
// context about the offending values -- check with errors.Is.
//
// Functions that build computation graphs (package gcn and readout) follow the
// GoMLX convention of throwing errors with panic ("exceptions"); those panics
// carry errors wrapping the same sentinels, and the host-level APIs
// (Classifier.Forward and friends) recover them back into returned errors.
var (
	// ErrShapeMismatch is reported when tensors disagree on dimensions or
	// dtypes: node features with different feature dimensionality within one
	// batch, inputs that don't match a layer's weights, malformed edge
	// tensors.
	ErrShapeMismatch = errors.New("shape mismatch")

	// ErrEmptyBatch is reported when an operation requires at least one graph
	// and got none.
	ErrEmptyBatch = errors.New("empty batch")

	// ErrDegenerateGraph is reported when a zero-node graph reaches an
	// operation that is undefined for it, e.g. a mean readout.
	ErrDegenerateGraph = errors.New("degenerate graph with zero nodes")

	// ErrIndexOutOfBounds is reported when an edge endpoint falls outside the
	// valid node id range of its graph. It indicates a corrupted GraphRecord
	// or a bug in batch assembly.
	ErrIndexOutOfBounds = errors.New("edge endpoint out of bounds")
)
