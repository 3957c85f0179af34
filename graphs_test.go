// Copyright 2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package graphs

import (
	"testing"

	"github.com/gomlx/gomlx/pkg/core/tensors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// triangle returns a 3-node record with edges 0->1, 1->2, 2->0.
func triangle(t *testing.T) *GraphRecord {
	nodes := tensors.FromValue([][]float32{{1, 0}, {0, 1}, {1, 1}})
	r, err := New(nodes, []int32{0, 1, 2}, []int32{1, 2, 0})
	require.NoError(t, err)
	return r
}

func TestNewGraphRecord(t *testing.T) {
	r := triangle(t)
	assert.Equal(t, 3, r.NumNodes())
	assert.Equal(t, 3, r.NumEdges())
	assert.Equal(t, 2, r.FeatureDim())
	assert.Nil(t, r.EdgeFeatures())
	assert.Nil(t, r.NodeLabels())

	// Zero nodes and zero edges are both valid.
	empty, err := New(tensors.FromFlatDataAndDimensions([]float32{}, 0, 2), nil, nil)
	require.NoError(t, err)
	assert.Equal(t, 0, empty.NumNodes())
	assert.Equal(t, 0, empty.NumEdges())
}

func TestNewGraphRecordValidation(t *testing.T) {
	nodes := tensors.FromValue([][]float32{{1, 0}, {0, 1}})

	t.Run("nil features", func(t *testing.T) {
		_, err := New(nil, nil, nil)
		require.ErrorIs(t, err, ErrShapeMismatch)
	})
	t.Run("rank-1 features", func(t *testing.T) {
		_, err := New(tensors.FromValue([]float32{1, 2, 3}), nil, nil)
		require.ErrorIs(t, err, ErrShapeMismatch)
	})
	t.Run("integer features", func(t *testing.T) {
		_, err := New(tensors.FromValue([][]int32{{1}, {2}}), nil, nil)
		require.ErrorIs(t, err, ErrShapeMismatch)
	})
	t.Run("ragged edge columns", func(t *testing.T) {
		_, err := New(nodes, []int32{0, 1}, []int32{1})
		require.ErrorIs(t, err, ErrShapeMismatch)
	})
	t.Run("endpoint out of range", func(t *testing.T) {
		_, err := New(nodes, []int32{0}, []int32{2})
		require.ErrorIs(t, err, ErrIndexOutOfBounds)
		_, err = New(nodes, []int32{-1}, []int32{0})
		require.ErrorIs(t, err, ErrIndexOutOfBounds)
	})
}

func TestGraphRecordOptions(t *testing.T) {
	nodes := tensors.FromValue([][]float32{{1, 0}, {0, 1}})

	t.Run("edge features", func(t *testing.T) {
		edgeFeatures := tensors.FromValue([][]float32{{0.5}, {1.5}})
		r, err := New(nodes, []int32{0, 1}, []int32{1, 0}, WithEdgeFeatures(edgeFeatures))
		require.NoError(t, err)
		require.NotNil(t, r.EdgeFeatures())
		assert.Equal(t, []int{2, 1}, r.EdgeFeatures().Shape().Dimensions)
	})
	t.Run("edge features row mismatch", func(t *testing.T) {
		edgeFeatures := tensors.FromValue([][]float32{{0.5}})
		_, err := New(nodes, []int32{0, 1}, []int32{1, 0}, WithEdgeFeatures(edgeFeatures))
		require.ErrorIs(t, err, ErrShapeMismatch)
	})
	t.Run("edge features dtype mismatch", func(t *testing.T) {
		edgeFeatures := tensors.FromValue([][]float64{{0.5}, {1.5}})
		_, err := New(nodes, []int32{0, 1}, []int32{1, 0}, WithEdgeFeatures(edgeFeatures))
		require.ErrorIs(t, err, ErrShapeMismatch)
	})
	t.Run("node labels", func(t *testing.T) {
		labels := tensors.FromValue([]int32{7, 9})
		r, err := New(nodes, nil, nil, WithNodeLabels(labels))
		require.NoError(t, err)
		require.NotNil(t, r.NodeLabels())
	})
	t.Run("node labels wrong length", func(t *testing.T) {
		labels := tensors.FromValue([]int32{7})
		_, err := New(nodes, nil, nil, WithNodeLabels(labels))
		require.ErrorIs(t, err, ErrShapeMismatch)
	})
	t.Run("node labels wrong dtype", func(t *testing.T) {
		labels := tensors.FromValue([]int64{7, 9})
		_, err := New(nodes, nil, nil, WithNodeLabels(labels))
		require.ErrorIs(t, err, ErrShapeMismatch)
	})
}

func TestMustNewPanics(t *testing.T) {
	require.Panics(t, func() {
		MustNew(tensors.FromValue([]float32{1}), nil, nil)
	})
}
