// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package synthetic implements a train.Dataset of random standard-normal feature vectors, with no labels.
//
// It is used to exercise models end-to-end (forward, loss, optimizer step) without any real data.
package synthetic

import (
	"math/rand/v2"

	"github.com/pkg/errors"

	"github.com/gomlx/gomlx/pkg/core/tensors"
	"github.com/gomlx/gomlx/pkg/ml/train"
)

// Dataset yields batches of float32 values shaped `[batchSize, numFeatures]`, sampled from N(0, 1).
// It is infinite, and Reset restarts the same sequence of batches.
type Dataset struct {
	name                   string
	batchSize, numFeatures int
	seed                   uint64
	rng                    *rand.Rand
}

var _ train.Dataset = (*Dataset)(nil)

// New creates a synthetic Dataset. The same seed always yields the same sequence of batches.
func New(name string, batchSize, numFeatures int, seed uint64) (*Dataset, error) {
	if batchSize < 1 || numFeatures < 1 {
		return nil, errors.Errorf("synthetic dataset %q: batchSize (%d) and numFeatures (%d) must be >= 1",
			name, batchSize, numFeatures)
	}
	ds := &Dataset{
		name:        name,
		batchSize:   batchSize,
		numFeatures: numFeatures,
		seed:        seed,
	}
	ds.Reset()
	return ds, nil
}

// Name implements train.Dataset.
func (ds *Dataset) Name() string { return ds.name }

// BatchSize of the yielded inputs.
func (ds *Dataset) BatchSize() int { return ds.batchSize }

// NumFeatures of the yielded inputs.
func (ds *Dataset) NumFeatures() int { return ds.numFeatures }

// Reset implements train.Dataset, and restarts the sequence of batches.
func (ds *Dataset) Reset() {
	ds.rng = rand.New(rand.NewPCG(ds.seed, ds.seed^0x9e3779b97f4a7c15))
}

// Batch returns the next batch of inputs.
func (ds *Dataset) Batch() *tensors.Tensor {
	flat := make([]float32, ds.batchSize*ds.numFeatures)
	for ii := range flat {
		flat[ii] = float32(ds.rng.NormFloat64())
	}
	return tensors.FromFlatDataAndDimensions(flat, ds.batchSize, ds.numFeatures)
}

// Yield implements train.Dataset. It never ends and yields no labels.
func (ds *Dataset) Yield() (spec any, inputs, labels []*tensors.Tensor, err error) {
	inputs = []*tensors.Tensor{ds.Batch()}
	return
}
