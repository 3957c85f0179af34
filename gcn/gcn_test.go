// Copyright 2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package gcn_test

import (
	"testing"

	"github.com/gomlx/exceptions"
	. "github.com/gomlx/gomlx/pkg/core/graph"
	"github.com/gomlx/gomlx/pkg/core/tensors"
	"github.com/gomlx/gomlx/pkg/ml/context"
	"github.com/gomlx/graphs"
	"github.com/gomlx/graphs/gcn"
	"github.com/gomlx/graphs/graphtest"
	"github.com/stretchr/testify/require"
)

// identityCtx returns a context with the "conv" scope variables fixed to
// weights=[[1]] and biases=[0], so the linear projection is the identity on
// 1-dim features.
func identityCtx(t *testing.T) *context.Context {
	ctx := context.New().Checked(false)
	convCtx := ctx.In("conv")
	convCtx.VariableWithValue("weights", [][]float32{{1}})
	convCtx.VariableWithValue("biases", []float32{0})
	return ctx
}

// runConv executes one convolution to 1-dim outputs over the given inputs,
// using the variables of ctx's "conv" scope.
func runConv(t *testing.T, ctx *context.Context, selfLoops bool,
	x [][]float32, sources, targets []int32) *tensors.Tensor {
	backend := graphtest.BuildTestBackend()
	exec, err := context.NewExec(backend, ctx,
		func(ctx *context.Context, x, sources, targets *Node) *Node {
			return gcn.New(ctx.In("conv"), x, sources, targets, 1).
				WithSelfLoops(selfLoops).Done()
		})
	require.NoError(t, err)
	numEdges := len(sources)
	output, err := exec.Exec1(
		tensors.FromValue(x),
		tensors.FromFlatDataAndDimensions(sources, numEdges, 1),
		tensors.FromFlatDataAndDimensions(targets, numEdges, 1))
	require.NoError(t, err)
	return output
}

func TestSingleNodeSelfLoop(t *testing.T) {
	// One node with a self-loop: its degree is 1, so after normalization the
	// output is exactly the projected input, whether the loop comes from the
	// edge list or from the layer's own augmentation.
	ctx := identityCtx(t)
	got := runConv(t, ctx, false, [][]float32{{3}}, []int32{0}, []int32{0})
	require.True(t, tensors.FromValue([][]float32{{3}}).InDelta(got, 1e-5),
		"got %s", got.GoStr())

	got = runConv(t, ctx, true, [][]float32{{3}}, []int32{0}, []int32{0})
	require.True(t, tensors.FromValue([][]float32{{3}}).InDelta(got, 1e-5),
		"got %s", got.GoStr())
}

func TestEdgelessNodeWithLoopAugmentation(t *testing.T) {
	// A node with no edges of its own, batched with an ordinary graph: with
	// self-loop augmentation its degree is 1 and its output row is exactly
	// its projected features.
	lone := graphs.MustNew(tensors.FromValue([][]float32{{5}}), nil, nil)
	other := graphs.MustNew(tensors.FromValue([][]float32{{1}, {2}}),
		[]int32{0, 1}, []int32{1, 0})
	batch := graphs.MustAssemble([]*graphs.GraphRecord{lone, other})

	ctx := identityCtx(t)
	backend := graphtest.BuildTestBackend()
	exec, err := context.NewExec(backend, ctx,
		func(ctx *context.Context, x, sources, targets *Node) *Node {
			return gcn.New(ctx.In("conv"), x, sources, targets, 1).
				WithSelfLoops(true).Done()
		})
	require.NoError(t, err)
	got, err := exec.Exec1(batch.Nodes(), batch.EdgeSources(), batch.EdgeTargets())
	require.NoError(t, err)

	var rows []float32
	require.NoError(t, tensors.ConstFlatData(got, func(flat []float32) {
		rows = append(rows, flat...)
	}))
	require.Len(t, rows, 3)
	require.InDelta(t, 5.0, rows[0], 1e-5)
}

func TestSymmetricNormalization(t *testing.T) {
	// Two nodes joined by a bidirected edge, no self-loops: each node has
	// degree 2, so each receives the other's projection divided by 2.
	ctx := identityCtx(t)
	got := runConv(t, ctx, false, [][]float32{{1}, {2}},
		[]int32{0, 1}, []int32{1, 0})
	require.True(t, tensors.FromValue([][]float32{{1}, {0.5}}).InDelta(got, 1e-5),
		"got %s", got.GoStr())
}

func TestIsolatedNodes(t *testing.T) {
	// Without self-loops, nodes that no edge targets aggregate nothing and
	// get zero output rows; division by the isolated node's zero degree must
	// not poison anything.
	ctx := identityCtx(t)
	got := runConv(t, ctx, false, [][]float32{{1}, {2}, {3}},
		[]int32{0}, []int32{1})
	require.True(t, tensors.FromValue([][]float32{{0}, {1}, {0}}).InDelta(got, 1e-5),
		"got %s", got.GoStr())
}

func TestBatchingDoesNotMixGraphs(t *testing.T) {
	// Convolving the disjoint-union batch must equal convolving each graph
	// alone: batching creates no cross-graph edges.
	g0 := graphs.MustNew(tensors.FromValue([][]float32{{1}, {2}, {3}}),
		[]int32{0, 1, 2}, []int32{1, 2, 0})
	g1 := graphs.MustNew(tensors.FromValue([][]float32{{4}, {5}}),
		[]int32{0, 1}, []int32{1, 0})
	batch := graphs.MustAssemble([]*graphs.GraphRecord{g0, g1})

	ctx := identityCtx(t)
	backend := graphtest.BuildTestBackend()
	exec, err := context.NewExec(backend, ctx,
		func(ctx *context.Context, x, sources, targets *Node) *Node {
			return gcn.New(ctx.In("conv"), x, sources, targets, 1).Done()
		})
	require.NoError(t, err)

	batched, err := exec.Exec1(batch.Nodes(), batch.EdgeSources(), batch.EdgeTargets())
	require.NoError(t, err)
	alone0, err := exec.Exec1(g0.NodeFeatures(),
		tensors.FromFlatDataAndDimensions(g0.EdgeSources(), g0.NumEdges(), 1),
		tensors.FromFlatDataAndDimensions(g0.EdgeTargets(), g0.NumEdges(), 1))
	require.NoError(t, err)
	alone1, err := exec.Exec1(g1.NodeFeatures(),
		tensors.FromFlatDataAndDimensions(g1.EdgeSources(), g1.NumEdges(), 1),
		tensors.FromFlatDataAndDimensions(g1.EdgeTargets(), g1.NumEdges(), 1))
	require.NoError(t, err)

	var batchedRows, aloneRows []float32
	require.NoError(t, tensors.ConstFlatData(batched, func(flat []float32) {
		batchedRows = append(batchedRows, flat...)
	}))
	for _, alone := range []*tensors.Tensor{alone0, alone1} {
		require.NoError(t, tensors.ConstFlatData(alone, func(flat []float32) {
			aloneRows = append(aloneRows, flat...)
		}))
	}
	require.InDeltaSlice(t, aloneRows, batchedRows, 1e-5)
}

func TestConfigChecks(t *testing.T) {
	backend := graphtest.BuildTestBackend()
	ctx := context.New()
	for _, test := range []struct {
		name    string
		graphFn func(ctx *context.Context, g *Graph) *Node
	}{
		{"rank-1 x", func(ctx *context.Context, g *Graph) *Node {
			x := Const(g, []float32{1, 2})
			edges := Const(g, [][]int32{{0}})
			return gcn.New(ctx, x, edges, edges, 1).Done()
		}},
		{"float edge columns", func(ctx *context.Context, g *Graph) *Node {
			x := Const(g, [][]float32{{1}})
			edges := Const(g, [][]float32{{0}})
			return gcn.New(ctx, x, edges, edges, 1).Done()
		}},
		{"ragged edge columns", func(ctx *context.Context, g *Graph) *Node {
			x := Const(g, [][]float32{{1}})
			sources := Const(g, [][]int32{{0}})
			targets := Const(g, [][]int32{{0}, {0}})
			return gcn.New(ctx, x, sources, targets, 1).Done()
		}},
	} {
		t.Run(test.name, func(t *testing.T) {
			err := exceptions.TryCatch[error](func() {
				g := NewGraph(backend, test.name)
				_ = test.graphFn(ctx, g)
			})
			require.ErrorIs(t, err, graphs.ErrShapeMismatch)
		})
	}

	t.Run("bad output dim", func(t *testing.T) {
		require.Panics(t, func() {
			g := NewGraph(backend, "bad output dim")
			x := Const(g, [][]float32{{1}})
			edges := Const(g, [][]int32{{0}})
			gcn.New(ctx, x, edges, edges, 0)
		})
	})
}
