// Copyright 2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package graphs

import (
	"github.com/gomlx/gomlx/pkg/core/tensors"
	"github.com/gomlx/gopjrt/dtypes"
)

// sliceRows copies rows [startRow, startRow+numRows) of t into a fresh tensor
// shaped dimensions. rowSize is the flat size of one row.
func sliceRows[T dtypes.Supported](t *tensors.Tensor, startRow, numRows, rowSize int, dimensions ...int) (*tensors.Tensor, error) {
	flat := make([]T, numRows*rowSize)
	err := tensors.ConstFlatData(t, func(data []T) {
		copy(flat, data[startRow*rowSize:(startRow+numRows)*rowSize])
	})
	if err != nil {
		return nil, err
	}
	return tensors.FromFlatDataAndDimensions(flat, dimensions...), nil
}

func (b *Batch) sliceFloatRows(t *tensors.Tensor, startRow, numRows, rowSize int, dimensions ...int) (*tensors.Tensor, error) {
	if b.dtype == dtypes.Float64 {
		return sliceRows[float64](t, startRow, numRows, rowSize, dimensions...)
	}
	return sliceRows[float32](t, startRow, numRows, rowSize, dimensions...)
}

// Unbatch reconstructs the ordered sequence of GraphRecords the Batch was
// assembled from. It is a pure read of the Batch: feature rows are copied out
// per segment, and each graph's span of the global edge list is re-localized
// back to [0, numNodes) by subtracting the graph's offset.
//
// Round-trip guarantee: for any records, Unbatch(Assemble(records)) returns
// graphs with the same node counts, the same edge lists and equal feature
// values, in the original order. Self-loops inserted by the convolution for
// normalization are never part of a Batch, so they never show up here.
func (b *Batch) Unbatch() ([]*GraphRecord, error) {
	records := make([]*GraphRecord, b.numGraphs)
	edgeOffsets := prefixSum(b.numEdgesPerGraph)
	// The flat data is only valid inside the access functions, so copy it out.
	edgeSources := make([]int32, b.totalEdges)
	edgeTargets := make([]int32, b.totalEdges)
	err := tensors.ConstFlatData(b.edgeSources, func(flat []int32) {
		copy(edgeSources, flat)
	})
	if err != nil {
		return nil, err
	}
	err = tensors.ConstFlatData(b.edgeTargets, func(flat []int32) {
		copy(edgeTargets, flat)
	})
	if err != nil {
		return nil, err
	}

	for ii := range b.numGraphs {
		numNodes := b.numNodesPerGraph[ii]
		numEdges := b.numEdgesPerGraph[ii]
		nodeOffset := b.nodeOffsets[ii]
		edgeOffset := edgeOffsets[ii]

		nodeFeatures, err := b.sliceFloatRows(b.nodes, int(nodeOffset), numNodes, b.featureDim, numNodes, b.featureDim)
		if err != nil {
			return nil, err
		}
		localSources := make([]int32, numEdges)
		localTargets := make([]int32, numEdges)
		for jj := range numEdges {
			localSources[jj] = edgeSources[edgeOffset+jj] - nodeOffset
			localTargets[jj] = edgeTargets[edgeOffset+jj] - nodeOffset
		}

		var opts []Option
		if b.edgeFeatures != nil {
			edgeFeatureDim := b.edgeFeatures.Shape().Dimensions[1]
			edgeFeatures, err := b.sliceFloatRows(b.edgeFeatures, edgeOffset, numEdges, edgeFeatureDim, numEdges, edgeFeatureDim)
			if err != nil {
				return nil, err
			}
			opts = append(opts, WithEdgeFeatures(edgeFeatures))
		}
		if b.nodeLabels != nil {
			nodeLabels, err := sliceRows[int32](b.nodeLabels, int(nodeOffset), numNodes, 1, numNodes)
			if err != nil {
				return nil, err
			}
			opts = append(opts, WithNodeLabels(nodeLabels))
		}
		records[ii], err = New(nodeFeatures, localSources, localTargets, opts...)
		if err != nil {
			return nil, err
		}
	}
	return records, nil
}
