// Copyright 2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package graphtest holds test utilities for the packages of this module
// that execute computation graphs.
package graphtest

import (
	"fmt"
	"sync"
	"testing"

	"github.com/gomlx/gomlx/backends"
	_ "github.com/gomlx/gomlx/backends/simplego"
	"github.com/gomlx/gomlx/pkg/core/graph"
	"github.com/gomlx/gomlx/pkg/core/tensors"
	"github.com/gomlx/gomlx/pkg/support/xslices"
	"github.com/stretchr/testify/require"
	"k8s.io/klog/v2"
)

var (
	backendOnce   sync.Once
	cachedBackend backends.Backend
)

// BuildTestBackend returns the backend used by the module's tests: the
// pure-Go backend by default, overridable with the GOMLX_BACKEND environment
// variable.
func BuildTestBackend() backends.Backend {
	backendOnce.Do(func() {
		backends.DefaultConfig = "go"
		var err error
		cachedBackend, err = backends.New()
		if err != nil {
			klog.Fatalf("Failed to create test backend: %+v", err)
		}
	})
	return cachedBackend
}

// TestGraphFn should build its own inputs, and return both inputs and outputs.
type TestGraphFn func(g *graph.Graph) (inputs, outputs []*graph.Node)

// RunTestGraphFn tests a graph building function graphFn by executing it and
// comparing its output(s) to the values in want, reporting back any errors
// in t.
//
// delta is the margin of value on the difference of output and want values
// that are acceptable. Values of delta <= 0 means only exact equality is
// accepted.
func RunTestGraphFn(t *testing.T, testName string, graphFn TestGraphFn, want []any, delta float64) {
	t.Run(testName, func(t *testing.T) {
		backend := BuildTestBackend()
		wantTensors := xslices.Map(want, func(value any) *tensors.Tensor {
			return tensors.FromAnyValue(value)
		})

		var numInputs int
		wrapperFn := func(g *graph.Graph) []*graph.Node {
			inputs, outputs := graphFn(g)
			numInputs = len(inputs)
			return append(inputs, outputs...)
		}
		exec := graph.MustNewExec(backend, wrapperFn)
		inputsAndOutputs, err := exec.Exec()
		require.NoErrorf(t, err, "%s: failed to execute graph", testName)
		inputs := inputsAndOutputs[:numInputs]
		outputs := inputsAndOutputs[numInputs:]

		fmt.Printf("\n%s:\n", testName)
		for ii, input := range inputs {
			fmt.Printf("\tInput %d: %s\n", ii, input.GoStr())
		}
		if numInputs > 0 {
			fmt.Printf("\t======\n")
		}
		for ii, output := range outputs {
			fmt.Printf("\tOutput %d: %s\n", ii, output.GoStr())
		}
		require.Equalf(t, len(want), len(outputs),
			"%s: number of wanted results different from number of outputs", testName)
		for ii, output := range outputs {
			require.Truef(t, wantTensors[ii].InDelta(output, delta),
				"%s: output #%d doesn't match wanted value %v", testName, ii, want[ii])
		}
	})
}
