// Copyright 2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package gcn implements a graph convolution layer and a small graph
// classifier over batches assembled by the graphs package.
//
// The convolution transforms node features with a linear projection followed
// by symmetric degree-normalized neighbor aggregation. It operates on the
// batched (disjoint-union) edge list, and since that list never connects
// nodes of different graphs, the result is identical to convolving each graph
// alone.
package gcn

import (
	"github.com/gomlx/exceptions"
	. "github.com/gomlx/gomlx/pkg/core/graph"
	"github.com/gomlx/gomlx/pkg/core/shapes"
	"github.com/gomlx/gomlx/pkg/ml/context"
	"github.com/gomlx/graphs"
	"github.com/pkg/errors"
)

const (
	// ParamSelfLoops is the context hyperparameter defining whether
	// convolutions add a self-loop per node to the adjacency used for
	// aggregation. The default is true.
	//
	// The loops exist only inside the convolution: they are never added to a
	// graphs.Batch and never reported in edge counts.
	ParamSelfLoops = "gcn_self_loops"

	// ParamUseBias is the context hyperparameter defining whether the linear
	// projection adds a bias term. The default is true.
	ParamUseBias = "gcn_use_bias"
)

// Config is created by New and configures one graph convolution layer. Call
// Done to add the layer's operations to the graph and get the output node
// states.
type Config struct {
	ctx              *context.Context
	x                *Node
	sources, targets *Node
	outputDim        int
	selfLoops        bool
	useBias          bool
}

// New creates the configuration of a graph convolution over the node feature
// matrix x, shaped (float)[numNodes, inputDim], and the batched edge list
// given as (int)[numEdges, 1] (or [numEdges]) source and target columns of
// global node ids -- as produced by graphs.Assemble.
//
// The layer projects node features to outputDim and aggregates them over
// edges with symmetric normalization: the contribution of an edge (u, v) to
// node v is X'[u] / sqrt(deg(u)·deg(v)), where deg counts a node's incident
// edges (a self-loop counts once). Nodes with no incoming edges get a zero
// output row.
//
// The projection's weights and biases are context variables ("weights" and
// "biases") in the current scope, created on first use -- scope the context
// (ctx.In("conv_0"), ...) to keep stacked layers separate.
//
// Defaults are read from the context hyperparameters (ParamSelfLoops,
// ParamUseBias) and can be overridden with the Config's methods. New throws
// (panics with) an error wrapping graphs.ErrShapeMismatch on malformed
// inputs, per the GoMLX graph-building convention.
func New(ctx *context.Context, x, sources, targets *Node, outputDim int) *Config {
	if x.Rank() != 2 {
		panic(errors.WithMessagef(graphs.ErrShapeMismatch,
			"gcn: x must be shaped [numNodes, inputDim], got %s", x.Shape()))
	}
	if outputDim <= 0 {
		exceptions.Panicf("gcn: outputDim must be > 0, got %d", outputDim)
	}
	for _, edgeColumn := range []*Node{sources, targets} {
		if !edgeColumn.DType().IsInt() ||
			(edgeColumn.Rank() != 1 && edgeColumn.Rank() != 2) ||
			(edgeColumn.Rank() == 2 && edgeColumn.Shape().Dimensions[1] != 1) {
			panic(errors.WithMessagef(graphs.ErrShapeMismatch,
				"gcn: edge columns must be shaped (int)[numEdges, 1] or (int)[numEdges], got %s",
				edgeColumn.Shape()))
		}
	}
	if !sources.Shape().Equal(targets.Shape()) {
		panic(errors.WithMessagef(graphs.ErrShapeMismatch,
			"gcn: edge columns disagree: sources=%s, targets=%s",
			sources.Shape(), targets.Shape()))
	}
	return &Config{
		ctx:       ctx,
		x:         x,
		sources:   sources,
		targets:   targets,
		outputDim: outputDim,
		selfLoops: context.GetParamOr(ctx, ParamSelfLoops, true),
		useBias:   context.GetParamOr(ctx, ParamUseBias, true),
	}
}

// WithSelfLoops overrides ParamSelfLoops for this layer.
func (c *Config) WithSelfLoops(selfLoops bool) *Config {
	c.selfLoops = selfLoops
	return c
}

// WithBias overrides ParamUseBias for this layer.
func (c *Config) WithBias(useBias bool) *Config {
	c.useBias = useBias
	return c
}

// Done adds the configured convolution to the graph and returns the new node
// states, shaped (float)[numNodes, outputDim].
func (c *Config) Done() *Node {
	g := c.x.Graph()
	dtype := c.x.DType()
	numNodes := c.x.Shape().Dimensions[0]
	inputDim := c.x.Shape().Dimensions[1]

	// Linear projection X' = X·W + b.
	weightsVar := c.ctx.VariableWithShape("weights", shapes.Make(dtype, inputDim, c.outputDim))
	projected := Dot(c.x, weightsVar.ValueGraph(g))
	if c.useBias {
		biasVar := c.ctx.VariableWithShape("biases", shapes.Make(dtype, c.outputDim))
		projected = Add(projected, ExpandLeftToRank(biasVar.ValueGraph(g), projected.Rank()))
	}

	sources, targets := c.sources, c.targets
	if sources.Rank() == 1 {
		sources = InsertAxes(sources, -1)
		targets = InsertAxes(targets, -1)
	}
	if c.selfLoops {
		loops := Iota(g, shapes.Make(sources.DType(), numNodes, 1), 0)
		if sources.Shape().Dimensions[0] == 0 {
			sources, targets = loops, loops
		} else {
			sources = Concatenate([]*Node{sources, loops}, 0)
			targets = Concatenate([]*Node{targets, loops}, 0)
		}
	}
	numMessages := sources.Shape().Dimensions[0]
	if numMessages == 0 {
		// No edges and no self-loops: every node aggregates nothing.
		return Zeros(g, shapes.Make(dtype, numNodes, c.outputDim))
	}

	// Incident-edge degree per node. A self-loop contributes once: it is
	// counted at its target and masked out at its source.
	degreeShape := shapes.Make(dtype, numNodes, 1)
	ones := Ones(g, shapes.Make(dtype, numMessages, 1))
	notLoop := ConvertDType(NotEqual(sources, targets), dtype)
	degree := Add(
		Scatter(targets, ones, degreeShape, false, false),
		Scatter(sources, notLoop, degreeShape, false, false))

	// Isolated nodes have degree 0; the guard keeps Rsqrt finite and their
	// output rows are zero anyway since no message targets them.
	invSqrtDegree := Rsqrt(MaxScalar(degree, 1))

	coefficients := Mul(Gather(invSqrtDegree, sources), Gather(invSqrtDegree, targets))
	messages := Mul(Gather(projected, sources), coefficients)
	return Scatter(targets, messages, shapes.Make(dtype, numNodes, c.outputDim), false, false)
}
