// Copyright 2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package motifs provides a small synthetic graph classification dataset:
// each sample is either a cycle (class 0) or a star (class 1) with a random
// number of nodes, and the task is to tell the two motifs apart from the
// graph structure alone.
//
// It implements train.Dataset, yielding one assembled graphs.Batch per step:
// the five batch tensors (node features, edge sources, edge targets, segment
// ids, segment counts) as inputs, and the per-graph class as labels, shaped
// (Int32)[batchSize, 1].
package motifs

import (
	"fmt"
	"io"
	"math/rand/v2"

	"github.com/dustin/go-humanize"
	"github.com/gomlx/exceptions"
	"github.com/gomlx/gomlx/pkg/core/tensors"
	"github.com/gomlx/gomlx/pkg/ml/train"
	"github.com/gomlx/graphs"
	"github.com/pkg/errors"
	"k8s.io/klog/v2"
)

// NumClasses of the dataset: cycle and star.
const NumClasses = 2

// Class labels.
const (
	ClassCycle = int32(0)
	ClassStar  = int32(1)
)

// Dataset yields minibatches of random cycle and star graphs.
// It is not safe for concurrent use.
type Dataset struct {
	name       string
	rng        *rand.Rand
	featureDim int
	batchSize  int
	minNodes   int
	maxNodes   int
	noise      float64
	infinite   bool
	numBatches int
	taken      int
}

// New creates a motifs dataset with node features of dimension featureDim.
//
// By default it yields batches of 32 graphs with 4 to 12 nodes each, runs for
// 100 batches per epoch and uses a fixed seed, so two datasets created with
// the same configuration yield the same data.
func New(featureDim int) *Dataset {
	if featureDim <= 0 {
		exceptions.Panicf("motifs: featureDim must be > 0, got %d", featureDim)
	}
	return &Dataset{
		name:       "motifs",
		rng:        rand.New(rand.NewPCG(42, 42)),
		featureDim: featureDim,
		batchSize:  32,
		minNodes:   4,
		maxNodes:   12,
		noise:      0.1,
		numBatches: 100,
	}
}

// WithName sets the dataset name reported to the training loop.
func (ds *Dataset) WithName(name string) *Dataset {
	ds.name = name
	return ds
}

// WithBatchSize sets the number of graphs per yielded batch.
func (ds *Dataset) WithBatchSize(batchSize int) *Dataset {
	if batchSize <= 0 {
		exceptions.Panicf("motifs: batch size must be > 0, got %d", batchSize)
	}
	ds.batchSize = batchSize
	return ds
}

// WithSeed reseeds the dataset's random generator.
func (ds *Dataset) WithSeed(seed uint64) *Dataset {
	ds.rng = rand.New(rand.NewPCG(seed, seed))
	return ds
}

// WithNodeRange sets the inclusive range of nodes per sampled graph.
// Both bounds must be at least 3, so that both motifs are well formed.
func (ds *Dataset) WithNodeRange(minNodes, maxNodes int) *Dataset {
	if minNodes < 3 || maxNodes < minNodes {
		exceptions.Panicf("motifs: invalid node range [%d, %d]", minNodes, maxNodes)
	}
	ds.minNodes = minNodes
	ds.maxNodes = maxNodes
	return ds
}

// WithNumBatches sets how many batches make one epoch, after which Yield
// returns io.EOF until Reset. It is ignored by infinite datasets.
func (ds *Dataset) WithNumBatches(numBatches int) *Dataset {
	if numBatches <= 0 {
		exceptions.Panicf("motifs: number of batches must be > 0, got %d", numBatches)
	}
	ds.numBatches = numBatches
	return ds
}

// Infinite makes the dataset loop indefinitely, for use with Loop.RunSteps.
func (ds *Dataset) Infinite() *Dataset {
	ds.infinite = true
	return ds
}

// Name implements train.Dataset.
func (ds *Dataset) Name() string { return ds.name }

// Reset implements train.Dataset, restarting the current epoch.
func (ds *Dataset) Reset() { ds.taken = 0 }

// String implements fmt.Stringer.
func (ds *Dataset) String() string {
	epoch := fmt.Sprintf("%s batches of %s graphs per epoch",
		humanize.Comma(int64(ds.numBatches)), humanize.Comma(int64(ds.batchSize)))
	if ds.infinite {
		epoch = fmt.Sprintf("infinite stream of batches of %s graphs",
			humanize.Comma(int64(ds.batchSize)))
	}
	return fmt.Sprintf("%s: %s, %d to %d nodes each, %d features per node",
		ds.name, epoch, ds.minNodes, ds.maxNodes, ds.featureDim)
}

// Yield implements train.Dataset. The spec is always nil.
func (ds *Dataset) Yield() (spec any, inputs, labels []*tensors.Tensor, err error) {
	if !ds.infinite && ds.taken >= ds.numBatches {
		return nil, nil, nil, io.EOF
	}
	ds.taken++

	records := make([]*graphs.GraphRecord, 0, ds.batchSize)
	classes := make([]int32, 0, ds.batchSize)
	for range ds.batchSize {
		record, class := ds.sample()
		records = append(records, record)
		classes = append(classes, class)
	}
	batch, err := graphs.Assemble(records)
	if err != nil {
		return nil, nil, nil, errors.WithMessage(err, "failed to assemble motifs batch")
	}
	klog.V(2).Infof("motifs: yielded batch #%d with %d nodes and %d edges",
		ds.taken, batch.TotalNodes(), batch.TotalEdges())
	inputs = []*tensors.Tensor{
		batch.Nodes(), batch.EdgeSources(), batch.EdgeTargets(),
		batch.SegmentIDs(), batch.SegmentCounts(),
	}
	labels = []*tensors.Tensor{tensors.FromFlatDataAndDimensions(classes, ds.batchSize, 1)}
	return nil, inputs, labels, nil
}

// sample draws one random motif graph and its class.
func (ds *Dataset) sample() (*graphs.GraphRecord, int32) {
	numNodes := ds.minNodes + ds.rng.IntN(ds.maxNodes-ds.minNodes+1)
	class := int32(ds.rng.IntN(NumClasses))
	var sources, targets []int32
	switch class {
	case ClassCycle:
		sources, targets = cycleEdges(numNodes)
	case ClassStar:
		sources, targets = starEdges(numNodes)
	}

	// Features carry the local degree plus noise, so the classes are
	// separable but not trivially so.
	degrees := make([]float32, numNodes)
	for _, target := range targets {
		degrees[target]++
	}
	features := make([]float32, 0, numNodes*ds.featureDim)
	for _, degree := range degrees {
		for range ds.featureDim {
			features = append(features, degree+float32(ds.rng.NormFloat64()*ds.noise))
		}
	}
	nodes := tensors.FromFlatDataAndDimensions(features, numNodes, ds.featureDim)
	return graphs.MustNew(nodes, sources, targets), class
}

// cycleEdges returns the edge columns of a bidirected n-cycle.
func cycleEdges(n int) (sources, targets []int32) {
	sources = make([]int32, 0, 2*n)
	targets = make([]int32, 0, 2*n)
	for ii := range n {
		next := int32((ii + 1) % n)
		sources = append(sources, int32(ii), next)
		targets = append(targets, next, int32(ii))
	}
	return
}

// starEdges returns the edge columns of a bidirected n-star, node 0 at the
// center.
func starEdges(n int) (sources, targets []int32) {
	sources = make([]int32, 0, 2*(n-1))
	targets = make([]int32, 0, 2*(n-1))
	for ii := 1; ii < n; ii++ {
		sources = append(sources, 0, int32(ii))
		targets = append(targets, int32(ii), 0)
	}
	return
}

var _ train.Dataset = (*Dataset)(nil)
