// Copyright 2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package graphs implements disjoint-union batching of small graphs for GoMLX.
//
// A GraphRecord holds one immutable graph: its edge list and its typed feature
// slots (node features, optional edge features, optional per-node labels). A
// Batch is the disjoint union of an ordered sequence of GraphRecords: node
// features concatenated, edges re-indexed by per-graph offsets, and segment
// bookkeeping recording where each original graph lives. Because batching
// never creates edges between originally-distinct graphs, message passing over
// the batch behaves exactly as if each graph were processed alone -- see the
// gcn package for the graph convolution and the readout package for reducing
// per-node states back to one vector per graph.
//
// Unbatch inverts the assembly, recovering the original ordered records.
package graphs

import (
	"github.com/gomlx/gomlx/pkg/core/tensors"
	"github.com/gomlx/gopjrt/dtypes"
	"github.com/pkg/errors"
)

// GraphRecord is one immutable graph: a directed edge list over n local nodes
// (ids in [0, n)) plus typed feature slots. Node features are required and
// define the node count; edge features and per-node labels are optional.
//
// Records are validated at construction and must not be mutated afterwards --
// accessors return internal slices and tensors for efficiency, and callers
// must treat them as read-only.
type GraphRecord struct {
	numNodes                 int
	edgeSources, edgeTargets []int32

	nodeFeatures *tensors.Tensor // (float)[numNodes, featureDim]
	edgeFeatures *tensors.Tensor // (float)[numEdges, edgeFeatureDim] or nil
	nodeLabels   *tensors.Tensor // (Int32)[numNodes] or nil
}

// Option configures optional feature slots of a GraphRecord at construction.
type Option func(*GraphRecord) error

// WithEdgeFeatures attaches a (float)[numEdges, edgeFeatureDim] feature matrix
// to the record. Its dtype must match the node features'.
func WithEdgeFeatures(edgeFeatures *tensors.Tensor) Option {
	return func(r *GraphRecord) error {
		if edgeFeatures == nil {
			return nil
		}
		shape := edgeFeatures.Shape()
		if shape.Rank() != 2 || shape.Dimensions[0] != len(r.edgeSources) {
			return errors.WithMessagef(ErrShapeMismatch,
				"edge features must be shaped [numEdges=%d, edgeFeatureDim], got %s",
				len(r.edgeSources), shape)
		}
		if shape.DType != r.nodeFeatures.DType() {
			return errors.WithMessagef(ErrShapeMismatch,
				"edge features dtype %s differs from node features dtype %s",
				shape.DType, r.nodeFeatures.DType())
		}
		r.edgeFeatures = edgeFeatures
		return nil
	}
}

// WithNodeLabels attaches an (Int32)[numNodes] per-node label vector to the
// record.
func WithNodeLabels(nodeLabels *tensors.Tensor) Option {
	return func(r *GraphRecord) error {
		if nodeLabels == nil {
			return nil
		}
		shape := nodeLabels.Shape()
		if shape.Rank() != 1 || shape.Dimensions[0] != r.numNodes {
			return errors.WithMessagef(ErrShapeMismatch,
				"node labels must be shaped [numNodes=%d], got %s", r.numNodes, shape)
		}
		if shape.DType != dtypes.Int32 {
			return errors.WithMessagef(ErrShapeMismatch,
				"node labels must be Int32, got %s", shape.DType)
		}
		r.nodeLabels = nodeLabels
		return nil
	}
}

// New creates a GraphRecord from its node feature matrix, shaped
// (Float32|Float64)[numNodes, featureDim], and a directed edge list given as
// parallel source/target columns of local node ids.
//
// Every endpoint must be in [0, numNodes) -- a violation returns
// ErrIndexOutOfBounds. Zero nodes and zero edges are both valid.
func New(nodeFeatures *tensors.Tensor, edgeSources, edgeTargets []int32, opts ...Option) (*GraphRecord, error) {
	if nodeFeatures == nil {
		return nil, errors.WithMessage(ErrShapeMismatch, "node features are required, got nil")
	}
	shape := nodeFeatures.Shape()
	if shape.Rank() != 2 {
		return nil, errors.WithMessagef(ErrShapeMismatch,
			"node features must be shaped [numNodes, featureDim], got %s", shape)
	}
	if shape.DType != dtypes.Float32 && shape.DType != dtypes.Float64 {
		return nil, errors.WithMessagef(ErrShapeMismatch,
			"node features must be Float32 or Float64, got %s", shape.DType)
	}
	if len(edgeSources) != len(edgeTargets) {
		return nil, errors.WithMessagef(ErrShapeMismatch,
			"edge list columns disagree: %d sources, %d targets",
			len(edgeSources), len(edgeTargets))
	}
	numNodes := shape.Dimensions[0]
	for ii := range edgeSources {
		src, dst := edgeSources[ii], edgeTargets[ii]
		if src < 0 || int(src) >= numNodes || dst < 0 || int(dst) >= numNodes {
			return nil, errors.WithMessagef(ErrIndexOutOfBounds,
				"edge #%d is (%d, %d), valid node ids are [0, %d)", ii, src, dst, numNodes)
		}
	}
	r := &GraphRecord{
		numNodes:     numNodes,
		edgeSources:  edgeSources,
		edgeTargets:  edgeTargets,
		nodeFeatures: nodeFeatures,
	}
	for _, opt := range opts {
		if err := opt(r); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// MustNew is like New but panics on error.
func MustNew(nodeFeatures *tensors.Tensor, edgeSources, edgeTargets []int32, opts ...Option) *GraphRecord {
	r, err := New(nodeFeatures, edgeSources, edgeTargets, opts...)
	if err != nil {
		panic(err)
	}
	return r
}

// NumNodes returns the number of nodes of the graph.
func (r *GraphRecord) NumNodes() int { return r.numNodes }

// NumEdges returns the number of directed edges of the graph.
func (r *GraphRecord) NumEdges() int { return len(r.edgeSources) }

// FeatureDim returns the node feature dimensionality.
func (r *GraphRecord) FeatureDim() int { return r.nodeFeatures.Shape().Dimensions[1] }

// DType returns the dtype of the node (and edge) features.
func (r *GraphRecord) DType() dtypes.DType { return r.nodeFeatures.DType() }

// EdgeSources returns the source column of the edge list. Read-only.
func (r *GraphRecord) EdgeSources() []int32 { return r.edgeSources }

// EdgeTargets returns the target column of the edge list. Read-only.
func (r *GraphRecord) EdgeTargets() []int32 { return r.edgeTargets }

// NodeFeatures returns the (float)[numNodes, featureDim] feature matrix. Read-only.
func (r *GraphRecord) NodeFeatures() *tensors.Tensor { return r.nodeFeatures }

// EdgeFeatures returns the optional edge feature matrix, or nil. Read-only.
func (r *GraphRecord) EdgeFeatures() *tensors.Tensor { return r.edgeFeatures }

// NodeLabels returns the optional per-node labels, or nil. Read-only.
func (r *GraphRecord) NodeLabels() *tensors.Tensor { return r.nodeLabels }
