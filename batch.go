// Copyright 2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package graphs

import (
	"fmt"

	"github.com/gomlx/gomlx/pkg/core/tensors"
	"github.com/gomlx/gopjrt/dtypes"
	"github.com/pkg/errors"
	"golang.org/x/exp/constraints"
)

// Batch is the disjoint union of an ordered sequence of GraphRecords.
//
// Node feature rows are concatenated in input order, so graph i owns the
// contiguous node range [NodeOffsets()[i], NodeOffsets()[i]+NumNodesPerGraph()[i]).
// Edge endpoints are re-indexed into the global range [0, TotalNodes()); no
// edge ever crosses a graph boundary, which is what lets the convolution in
// package gcn treat the batch as independent graphs.
//
// The edge list and per-graph edge counts always refer to the records' own
// edges: self-loop augmentation for normalization is an internal detail of the
// convolution layer and is never materialized in a Batch. This keeps
// Unbatch an exact inverse of Assemble.
//
// A Batch is constructed fresh per minibatch by Assemble, consumed by the
// model's forward pass and then discarded. It is read-only after construction.
type Batch struct {
	numGraphs          int
	numNodesPerGraph   []int
	numEdgesPerGraph   []int
	nodeOffsets        []int32
	totalNodes         int
	totalEdges         int
	featureDim         int
	dtype              dtypes.DType
	nodes              *tensors.Tensor // (dtype)[totalNodes, featureDim]
	edgeSources        *tensors.Tensor // (Int32)[totalEdges, 1], global ids
	edgeTargets        *tensors.Tensor // (Int32)[totalEdges, 1], global ids
	segmentIDs         *tensors.Tensor // (Int32)[totalNodes, 1], node -> graph position
	segmentCounts      *tensors.Tensor // (Int32)[numGraphs, 1]
	edgeFeatures       *tensors.Tensor // (dtype)[totalEdges, edgeFeatureDim] or nil
	nodeLabels         *tensors.Tensor // (Int32)[totalNodes] or nil
}

// prefixSum returns the exclusive prefix sum of counts: out[i] = Σ_{k<i} counts[k].
func prefixSum[T constraints.Integer](counts []T) []T {
	offsets := make([]T, len(counts))
	var total T
	for ii, count := range counts {
		offsets[ii] = total
		total += count
	}
	return offsets
}

// appendFlat appends the flat data of t to dst. The tensor dtype must
// correspond to T.
func appendFlat[T dtypes.Supported](dst []T, t *tensors.Tensor) ([]T, error) {
	err := tensors.ConstFlatData(t, func(flat []T) {
		dst = append(dst, flat...)
	})
	if err != nil {
		return nil, errors.WithMessagef(err, "accessing flat data of tensor shaped %s", t.Shape())
	}
	return dst, nil
}

// concatTensors concatenates the rows of the given per-record tensors into one
// (T)[totalRows, cols...] tensor, preserving record order.
func concatTensors[T dtypes.Supported](parts []*tensors.Tensor, dimensions ...int) (*tensors.Tensor, error) {
	size := 1
	for _, dim := range dimensions {
		size *= dim
	}
	flat := make([]T, 0, size)
	var err error
	for _, part := range parts {
		flat, err = appendFlat(flat, part)
		if err != nil {
			return nil, err
		}
	}
	return tensors.FromFlatDataAndDimensions(flat, dimensions...), nil
}

// Assemble combines an ordered sequence of GraphRecords into one Batch.
//
// All records must share the node feature dimensionality and dtype; if any
// record carries edge features (or node labels), all of them must, with
// matching dimensions. Violations return ErrShapeMismatch; an empty sequence
// returns ErrEmptyBatch. Assemble validates everything before building, so no
// partially-assembled Batch is ever returned.
//
// Input order is preserved: position i of every per-graph sequence
// (NumNodesPerGraph, NumEdgesPerGraph, NodeOffsets and readout rows
// downstream) refers to records[i].
func Assemble(records []*GraphRecord) (*Batch, error) {
	if len(records) == 0 {
		return nil, errors.WithMessage(ErrEmptyBatch, "Assemble requires at least one graph")
	}

	// Validation pass: fail fast, before any offset is computed.
	first := records[0]
	featureDim := first.FeatureDim()
	dtype := first.DType()
	edgeFeatureDim := -1
	if first.EdgeFeatures() != nil {
		edgeFeatureDim = first.EdgeFeatures().Shape().Dimensions[1]
	}
	hasNodeLabels := first.NodeLabels() != nil
	for ii, r := range records {
		if r.FeatureDim() != featureDim || r.DType() != dtype {
			return nil, errors.WithMessagef(ErrShapeMismatch,
				"records[%d] node features are (%s)[_, %d], batch requires (%s)[_, %d]",
				ii, r.DType(), r.FeatureDim(), dtype, featureDim)
		}
		if (r.EdgeFeatures() != nil) != (edgeFeatureDim >= 0) {
			return nil, errors.WithMessagef(ErrShapeMismatch,
				"records[%d] disagrees on edge features: either all records carry them or none", ii)
		}
		if r.EdgeFeatures() != nil && r.EdgeFeatures().Shape().Dimensions[1] != edgeFeatureDim {
			return nil, errors.WithMessagef(ErrShapeMismatch,
				"records[%d] edge feature dim is %d, batch requires %d",
				ii, r.EdgeFeatures().Shape().Dimensions[1], edgeFeatureDim)
		}
		if (r.NodeLabels() != nil) != hasNodeLabels {
			return nil, errors.WithMessagef(ErrShapeMismatch,
				"records[%d] disagrees on node labels: either all records carry them or none", ii)
		}
		// Endpoints were checked at record construction; re-check so a
		// corrupted record never reaches the offsets computation.
		numNodes := int32(r.NumNodes())
		for jj := range r.EdgeSources() {
			src, dst := r.EdgeSources()[jj], r.EdgeTargets()[jj]
			if src < 0 || src >= numNodes || dst < 0 || dst >= numNodes {
				return nil, errors.WithMessagef(ErrIndexOutOfBounds,
					"records[%d] edge #%d is (%d, %d), valid node ids are [0, %d)",
					ii, jj, src, dst, numNodes)
			}
		}
	}

	b := &Batch{
		numGraphs:        len(records),
		numNodesPerGraph: make([]int, len(records)),
		numEdgesPerGraph: make([]int, len(records)),
		featureDim:       featureDim,
		dtype:            dtype,
	}
	nodeCounts := make([]int32, len(records))
	for ii, r := range records {
		b.numNodesPerGraph[ii] = r.NumNodes()
		b.numEdgesPerGraph[ii] = r.NumEdges()
		nodeCounts[ii] = int32(r.NumNodes())
		b.totalNodes += r.NumNodes()
		b.totalEdges += r.NumEdges()
	}
	b.nodeOffsets = prefixSum(nodeCounts)

	// Edge list, re-indexed to global node ids.
	globalSources := make([]int32, 0, b.totalEdges)
	globalTargets := make([]int32, 0, b.totalEdges)
	segmentIDs := make([]int32, 0, b.totalNodes)
	for ii, r := range records {
		offset := b.nodeOffsets[ii]
		for jj := range r.EdgeSources() {
			globalSources = append(globalSources, r.EdgeSources()[jj]+offset)
			globalTargets = append(globalTargets, r.EdgeTargets()[jj]+offset)
		}
		for range r.NumNodes() {
			segmentIDs = append(segmentIDs, int32(ii))
		}
	}
	b.edgeSources = tensors.FromFlatDataAndDimensions(globalSources, b.totalEdges, 1)
	b.edgeTargets = tensors.FromFlatDataAndDimensions(globalTargets, b.totalEdges, 1)
	b.segmentIDs = tensors.FromFlatDataAndDimensions(segmentIDs, b.totalNodes, 1)
	b.segmentCounts = tensors.FromFlatDataAndDimensions(nodeCounts, b.numGraphs, 1)

	// Concatenated feature slots.
	nodeParts := make([]*tensors.Tensor, len(records))
	for ii, r := range records {
		nodeParts[ii] = r.NodeFeatures()
	}
	var err error
	switch dtype {
	case dtypes.Float32:
		b.nodes, err = concatTensors[float32](nodeParts, b.totalNodes, featureDim)
	case dtypes.Float64:
		b.nodes, err = concatTensors[float64](nodeParts, b.totalNodes, featureDim)
	}
	if err != nil {
		return nil, err
	}
	if edgeFeatureDim >= 0 {
		edgeParts := make([]*tensors.Tensor, len(records))
		for ii, r := range records {
			edgeParts[ii] = r.EdgeFeatures()
		}
		switch dtype {
		case dtypes.Float32:
			b.edgeFeatures, err = concatTensors[float32](edgeParts, b.totalEdges, edgeFeatureDim)
		case dtypes.Float64:
			b.edgeFeatures, err = concatTensors[float64](edgeParts, b.totalEdges, edgeFeatureDim)
		}
		if err != nil {
			return nil, err
		}
	}
	if hasNodeLabels {
		labelParts := make([]*tensors.Tensor, len(records))
		for ii, r := range records {
			labelParts[ii] = r.NodeLabels()
		}
		b.nodeLabels, err = concatTensors[int32](labelParts, b.totalNodes)
		if err != nil {
			return nil, err
		}
	}
	return b, nil
}

// MustAssemble is like Assemble but panics on error.
func MustAssemble(records []*GraphRecord) *Batch {
	b, err := Assemble(records)
	if err != nil {
		panic(err)
	}
	return b
}

// NumGraphs returns the number of graphs in the batch.
func (b *Batch) NumGraphs() int { return b.numGraphs }

// TotalNodes returns the summed node count over all graphs.
func (b *Batch) TotalNodes() int { return b.totalNodes }

// TotalEdges returns the summed edge count over all graphs.
func (b *Batch) TotalEdges() int { return b.totalEdges }

// FeatureDim returns the node feature dimensionality.
func (b *Batch) FeatureDim() int { return b.featureDim }

// DType returns the dtype of the node (and edge) features.
func (b *Batch) DType() dtypes.DType { return b.dtype }

// NumNodesPerGraph returns each original graph's node count, in input order.
// Read-only.
func (b *Batch) NumNodesPerGraph() []int { return b.numNodesPerGraph }

// NumEdgesPerGraph returns each original graph's edge count, in input order.
// Read-only.
func (b *Batch) NumEdgesPerGraph() []int { return b.numEdgesPerGraph }

// NodeOffsets returns the exclusive prefix sum of node counts: graph i owns
// the global node ids [NodeOffsets()[i], NodeOffsets()[i]+NumNodesPerGraph()[i]).
// Read-only.
func (b *Batch) NodeOffsets() []int32 { return b.nodeOffsets }

// Nodes returns the concatenated (dtype)[TotalNodes, FeatureDim] node feature
// matrix. Read-only.
func (b *Batch) Nodes() *tensors.Tensor { return b.nodes }

// EdgeSources returns the (Int32)[TotalEdges, 1] source column of the global
// edge list. Read-only.
func (b *Batch) EdgeSources() *tensors.Tensor { return b.edgeSources }

// EdgeTargets returns the (Int32)[TotalEdges, 1] target column of the global
// edge list. Read-only.
func (b *Batch) EdgeTargets() *tensors.Tensor { return b.edgeTargets }

// SegmentIDs returns the (Int32)[TotalNodes, 1] mapping of each global node id
// to the position of its graph in the batch. Read-only.
func (b *Batch) SegmentIDs() *tensors.Tensor { return b.segmentIDs }

// SegmentCounts returns the (Int32)[NumGraphs, 1] per-graph node counts, the
// shape-carrying companion of SegmentIDs used by the readout. Read-only.
func (b *Batch) SegmentCounts() *tensors.Tensor { return b.segmentCounts }

// EdgeFeatures returns the concatenated edge feature matrix, or nil if the
// records carried none. Read-only.
func (b *Batch) EdgeFeatures() *tensors.Tensor { return b.edgeFeatures }

// NodeLabels returns the concatenated (Int32)[TotalNodes] per-node labels, or
// nil if the records carried none. Read-only.
func (b *Batch) NodeLabels() *tensors.Tensor { return b.nodeLabels }

// String implements fmt.Stringer.
func (b *Batch) String() string {
	return fmt.Sprintf("Batch{graphs=%d, nodes=%d, edges=%d, featureDim=%d, dtype=%s}",
		b.numGraphs, b.totalNodes, b.totalEdges, b.featureDim, b.dtype)
}
