// Copyright 2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package readout reduces per-node feature vectors of a batched graph back to
// one vector per original graph, using the batch's segment bookkeeping.
//
// The reduction is a closed policy value (Mean, Sum or Max) selected
// explicitly by the caller -- the aggregation semantics is a pure function of
// the segment, independent of how the per-node features were computed.
package readout

import (
	"strings"

	"github.com/gomlx/exceptions"
	"github.com/gomlx/gomlx/pkg/core/graph"
	"github.com/gomlx/gomlx/pkg/core/shapes"
	"github.com/gomlx/graphs"
	"github.com/pkg/errors"
)

// Rule selects how a graph's node vectors are reduced to a single vector.
type Rule int

const (
	// Mean averages the node vectors of each graph. It is the default rule
	// and is undefined for zero-node graphs (see CheckSegments).
	Mean Rule = iota

	// Sum adds the node vectors of each graph. A zero-node graph reduces to
	// the zero vector.
	Sum

	// Max takes the elementwise maximum over the node vectors of each graph.
	// Like Mean, it is undefined for zero-node graphs.
	Max
)

// String implements fmt.Stringer.
func (r Rule) String() string {
	switch r {
	case Mean:
		return "mean"
	case Sum:
		return "sum"
	case Max:
		return "max"
	}
	return "invalid"
}

// RuleFromName converts a rule name ("mean", "sum" or "max", case-insensitive)
// to its Rule value.
func RuleFromName(name string) (Rule, error) {
	switch strings.ToLower(name) {
	case "mean":
		return Mean, nil
	case "sum":
		return Sum, nil
	case "max":
		return Max, nil
	}
	return Mean, errors.Errorf("unknown readout rule %q, valid values are mean, sum and max", name)
}

// CheckSegments reports whether the rule is defined for the given per-graph
// node counts. Mean and Max are undefined for a zero-node graph and return
// ErrDegenerateGraph; Sum accepts any segment sizes.
//
// This is a host-side check: graph node counts are only knowable before the
// computation graph executes, so callers (e.g. gcn.Classifier.Forward) run it
// per batch before executing a readout.
func (r Rule) CheckSegments(numNodesPerGraph []int) error {
	if r == Sum {
		return nil
	}
	for ii, numNodes := range numNodesPerGraph {
		if numNodes == 0 {
			return errors.WithMessagef(graphs.ErrDegenerateGraph,
				"%s readout of graph %d with zero nodes", r, ii)
		}
	}
	return nil
}

// Apply reduces the (float)[totalNodes, dim] node feature matrix h to one row
// per graph, returning a (float)[numGraphs, dim] matrix.
//
// segmentIDs is the (int)[totalNodes, 1] mapping of node row to graph
// position and counts the (int)[numGraphs, 1] per-graph node counts, both as
// produced by graphs.Assemble (Batch.SegmentIDs and Batch.SegmentCounts).
// The number of graphs is taken from counts' shape.
//
// Row i of the output reduces exactly the rows of h whose segment id is i --
// the contiguous range assigned to graph i -- under the given rule. Division
// by zero never happens: Mean guards the divisor, and zero-count segments are
// expected to be rejected beforehand via Rule.CheckSegments.
//
// Apply builds graph operations, so it follows the GoMLX convention of
// throwing (panicking with) errors: malformed inputs throw an error wrapping
// graphs.ErrShapeMismatch.
func Apply(h, segmentIDs, counts *graph.Node, rule Rule) *graph.Node {
	g := h.Graph()
	dtype := h.DType()
	if h.Rank() != 2 {
		panic(errors.WithMessagef(graphs.ErrShapeMismatch,
			"readout requires h shaped [totalNodes, dim], got %s", h.Shape()))
	}
	if segmentIDs.Rank() != 2 || segmentIDs.Shape().Dimensions[1] != 1 ||
		segmentIDs.Shape().Dimensions[0] != h.Shape().Dimensions[0] ||
		!segmentIDs.DType().IsInt() {
		panic(errors.WithMessagef(graphs.ErrShapeMismatch,
			"readout requires segmentIDs shaped (int)[totalNodes=%d, 1], got %s",
			h.Shape().Dimensions[0], segmentIDs.Shape()))
	}
	if counts.Rank() != 2 || counts.Shape().Dimensions[1] != 1 || !counts.DType().IsInt() {
		panic(errors.WithMessagef(graphs.ErrShapeMismatch,
			"readout requires counts shaped (int)[numGraphs, 1], got %s", counts.Shape()))
	}
	numGraphs := counts.Shape().Dimensions[0]
	dim := h.Shape().Dimensions[1]

	switch rule {
	case Sum:
		return graph.Scatter(segmentIDs, h, shapes.Make(dtype, numGraphs, dim), false, false)
	case Mean:
		summed := graph.Scatter(segmentIDs, h, shapes.Make(dtype, numGraphs, dim), false, false)
		// MaxScalar guards against division by zero on empty segments; those
		// are rejected by CheckSegments before execution.
		divisor := graph.MaxScalar(graph.ConvertDType(counts, dtype), 1)
		return graph.Div(summed, divisor)
	case Max:
		lowest := graph.BroadcastToDims(graph.Infinity(g, dtype, -1), numGraphs, dim)
		return graph.ScatterMax(lowest, segmentIDs, h, false, false)
	}
	exceptions.Panicf("invalid readout rule %d, valid values are Mean, Sum and Max", rule)
	return nil
}
