// Copyright 2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package gcn

import (
	"sync"

	"github.com/gomlx/exceptions"
	"github.com/gomlx/gomlx/backends"
	. "github.com/gomlx/gomlx/pkg/core/graph"
	"github.com/gomlx/gomlx/pkg/core/tensors"
	"github.com/gomlx/gomlx/pkg/ml/context"
	"github.com/gomlx/gomlx/pkg/ml/layers/activations"
	"github.com/gomlx/graphs"
	"github.com/gomlx/graphs/readout"
	"github.com/pkg/errors"
)

const (
	// ParamHiddenDim is the context hyperparameter defining the hidden state
	// dimension between the classifier's two convolutions. The default is 16.
	ParamHiddenDim = "gcn_hidden_dim"

	// ParamReadout is the context hyperparameter selecting the readout rule,
	// one of "mean", "sum" or "max". The default is "mean".
	ParamReadout = "gcn_readout"
)

// Classifier predicts one class per graph: two stacked graph convolutions
// with a rectified-linear activation in between, followed by a segmented
// readout of the per-node class scores.
//
// All execution state is explicit: the backend, the context owning the
// variables and the configuration are fixed at construction -- there is no
// ambient device or trainer state. The model's variables are shared read-only
// by every node and graph during a forward pass; only an external optimizer
// mutates them, between passes.
type Classifier struct {
	backend    backends.Backend
	ctx        *context.Context
	inputDim   int
	hiddenDim  int
	numClasses int
	selfLoops  bool
	reduce     readout.Rule

	execOnce sync.Once
	exec     *context.Exec
	execErr  error
}

// NewClassifier creates a graph classifier mapping graphs with inputDim node
// features to numClasses logits.
//
// The hidden dimension, readout rule and self-loop policy default to the
// context hyperparameters (ParamHiddenDim, ParamReadout, ParamSelfLoops) and
// can be overridden with the With* methods, before the first use.
func NewClassifier(backend backends.Backend, ctx *context.Context, inputDim, numClasses int) *Classifier {
	if inputDim <= 0 || numClasses <= 0 {
		exceptions.Panicf("gcn: inputDim and numClasses must be > 0, got %d and %d",
			inputDim, numClasses)
	}
	reduce := readout.Mean
	if name := context.GetParamOr(ctx, ParamReadout, "mean"); name != "mean" {
		var err error
		reduce, err = readout.RuleFromName(name)
		if err != nil {
			panic(errors.WithMessagef(err, "invalid context hyperparameter %q", ParamReadout))
		}
	}
	return &Classifier{
		backend:    backend,
		ctx:        ctx,
		inputDim:   inputDim,
		hiddenDim:  context.GetParamOr(ctx, ParamHiddenDim, 16),
		numClasses: numClasses,
		selfLoops:  context.GetParamOr(ctx, ParamSelfLoops, true),
		reduce:     reduce,
	}
}

// WithHiddenDim overrides ParamHiddenDim. Must be called before the first use.
func (c *Classifier) WithHiddenDim(hiddenDim int) *Classifier {
	c.hiddenDim = hiddenDim
	return c
}

// WithReadout overrides ParamReadout. Must be called before the first use.
func (c *Classifier) WithReadout(rule readout.Rule) *Classifier {
	c.reduce = rule
	return c
}

// WithSelfLoops overrides ParamSelfLoops. Must be called before the first use.
func (c *Classifier) WithSelfLoops(selfLoops bool) *Classifier {
	c.selfLoops = selfLoops
	return c
}

// Readout returns the configured readout rule.
func (c *Classifier) Readout() readout.Rule { return c.reduce }

// BuildGraph builds the forward computation: x shaped
// (float)[totalNodes, inputDim], the batched edge columns shaped
// (Int32)[totalEdges, 1], segments shaped (Int32)[totalNodes, 1] and counts
// shaped (Int32)[numGraphs, 1] -- the tensors of a graphs.Batch. It returns
// the (float)[numGraphs, numClasses] logits.
func (c *Classifier) BuildGraph(ctx *context.Context, x, sources, targets, segments, counts *Node) *Node {
	hidden := New(ctx.In("conv_0"), x, sources, targets, c.hiddenDim).
		WithSelfLoops(c.selfLoops).Done()
	hidden = activations.Relu(hidden)
	scores := New(ctx.In("conv_1"), hidden, sources, targets, c.numClasses).
		WithSelfLoops(c.selfLoops).Done()
	return readout.Apply(scores, segments, counts, c.reduce)
}

// ModelGraph is a model graph function in the shape expected by
// train.NewTrainer. It expects the five input tensors yielded per minibatch
// (node features, edge sources, edge targets, segment ids, segment counts)
// and returns the logits as its only output.
func (c *Classifier) ModelGraph(ctx *context.Context, spec any, inputs []*Node) []*Node {
	_ = spec
	if len(inputs) != 5 {
		exceptions.Panicf("gcn: Classifier.ModelGraph expects 5 inputs "+
			"(node features, edge sources, edge targets, segment ids, segment counts), got %d",
			len(inputs))
	}
	return []*Node{c.BuildGraph(ctx, inputs[0], inputs[1], inputs[2], inputs[3], inputs[4])}
}

// Forward assembles the records into a batch and returns the
// (float)[numGraphs, numClasses] logits.
//
// It performs the host-side validations (empty batch, feature dimension,
// degenerate graphs under the configured readout) before executing, so the
// error kinds of package graphs are reported without touching the backend.
func (c *Classifier) Forward(records []*graphs.GraphRecord) (*tensors.Tensor, error) {
	batch, err := graphs.Assemble(records)
	if err != nil {
		return nil, err
	}
	return c.ForwardBatch(batch)
}

// ForwardBatch is like Forward for an already assembled batch.
//
// The compiled computation is cached per batch shape: calling it repeatedly
// with the same (totalNodes, totalEdges, numGraphs) combination reuses the
// compiled program.
func (c *Classifier) ForwardBatch(batch *graphs.Batch) (*tensors.Tensor, error) {
	if batch.FeatureDim() != c.inputDim {
		return nil, errors.WithMessagef(graphs.ErrShapeMismatch,
			"batch has %d node features, classifier expects %d", batch.FeatureDim(), c.inputDim)
	}
	if err := c.reduce.CheckSegments(batch.NumNodesPerGraph()); err != nil {
		return nil, err
	}
	c.execOnce.Do(func() {
		c.exec, c.execErr = context.NewExec(c.backend, c.ctx,
			func(ctx *context.Context, x, sources, targets, segments, counts *Node) *Node {
				return c.BuildGraph(ctx, x, sources, targets, segments, counts)
			})
	})
	if c.execErr != nil {
		return nil, c.execErr
	}
	return c.exec.Exec1(
		batch.Nodes(), batch.EdgeSources(), batch.EdgeTargets(),
		batch.SegmentIDs(), batch.SegmentCounts())
}
