// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package fcresnet

import (
	"fmt"
	"strings"

	"github.com/pkg/errors"

	. "github.com/gomlx/gomlx/pkg/core/graph"
	"github.com/gomlx/gomlx/pkg/ml/context"
	"github.com/gomlx/gomlx/pkg/ml/layers"
	"github.com/gomlx/gomlx/pkg/ml/layers/activations"
	"github.com/gomlx/gomlx/pkg/ml/layers/batchnorm"
	. "github.com/gomlx/gomlx/pkg/support/exceptions"
)

// BlockType selects the residual block used in every stage of the network.
type BlockType int

const (
	// BlockBasic is the two dense layers residual block.
	BlockBasic BlockType = iota

	// BlockBottleneck is the three dense layers residual block.
	BlockBottleneck
)

var blockTypeNames = []string{"basic", "bottleneck"}

// String implements fmt.Stringer.
func (b BlockType) String() string {
	if b < 0 || int(b) >= len(blockTypeNames) {
		return fmt.Sprintf("BlockType(%d)", int(b))
	}
	return blockTypeNames[b]
}

// NumDenseLayers returns the number of dense layers in one block of this type.
func (b BlockType) NumDenseLayers() int {
	switch b {
	case BlockBasic:
		return 2
	case BlockBottleneck:
		return 3
	default:
		return 0
	}
}

// BlockTypeValues returns all valid block types.
func BlockTypeValues() []BlockType {
	return []BlockType{BlockBasic, BlockBottleneck}
}

// BlockTypeString converts a block name ("basic" or "bottleneck") to its BlockType.
// The match is case-insensitive.
func BlockTypeString(name string) (BlockType, error) {
	lower := strings.ToLower(strings.TrimSpace(name))
	for ii, n := range blockTypeNames {
		if n == lower {
			return BlockType(ii), nil
		}
	}
	return BlockBasic, errors.Errorf("unknown block type %q: valid values are %v", name, blockTypeNames)
}

const (
	// BatchNormMomentum is the momentum of the moving averages kept by the batch normalization layers.
	// It corresponds to a PyTorch momentum of 0.1.
	BatchNormMomentum = 0.9

	// BatchNormEpsilon is added to the variance by the batch normalization layers.
	BatchNormEpsilon = 1e-5
)

// BasicBlock applies the two layers residual block to x, shaped `[batch_size, features]`:
//
//	h = relu(bn1(dense1(x)))
//	h = relu(bn2(dense2(h)))
//	y = relu(x + h)
//
// The batch normalizations are only applied if batchNorm is true.
// The output has the same shape as x.
func BasicBlock(ctx *context.Context, x *Node, batchNorm bool) *Node {
	checkBlockInput("BasicBlock", ctx, x, batchNorm)
	features := x.Shape().Dimensions[1]
	residual := x
	for ii := range BlockBasic.NumDenseLayers() {
		layerCtx := ctx.Inf("dense_%d", ii)
		x = layers.Dense(layerCtx, x, true, features)
		if batchNorm {
			x = normalize(layerCtx, x)
		}
		x = activations.Relu(x)
	}
	return activations.Relu(Add(residual, x))
}

// BottleneckBlock applies the three layers residual block to x, shaped `[batch_size, features]`:
//
//	h = act(bn1(dense1(x)))
//	h = act(bn2(dense2(h)))
//	h = bn3(dense3(h))
//	y = act(h + x)
//
// The batch normalizations are only applied if batchNorm is true.
// The output has the same shape as x.
func BottleneckBlock(ctx *context.Context, x *Node, activation activations.Type, batchNorm bool) *Node {
	checkBlockInput("BottleneckBlock", ctx, x, batchNorm)
	features := x.Shape().Dimensions[1]
	residual := x
	numLayers := BlockBottleneck.NumDenseLayers()
	for ii := range numLayers {
		layerCtx := ctx.Inf("dense_%d", ii)
		x = layers.Dense(layerCtx, x, true, features)
		if batchNorm {
			x = normalize(layerCtx, x)
		}
		if ii < numLayers-1 {
			x = activations.Apply(activation, x)
		}
	}
	return activations.Apply(activation, Add(x, residual))
}

// applyBlock dispatches to the block function of the given type.
func applyBlock(ctx *context.Context, blockType BlockType, x *Node, activation activations.Type, batchNorm bool) *Node {
	switch blockType {
	case BlockBasic:
		return BasicBlock(ctx, x, batchNorm)
	case BlockBottleneck:
		return BottleneckBlock(ctx, x, activation, batchNorm)
	default:
		Panicf("fcresnet: invalid block type %d: valid values are %v", blockType, BlockTypeValues())
	}
	return nil
}

func normalize(ctx *context.Context, x *Node) *Node {
	return batchnorm.New(ctx, x, -1).
		Momentum(BatchNormMomentum).
		Epsilon(BatchNormEpsilon).
		Done()
}

// checkBlockInput panics if x is not shaped `[batch_size, features]`, or if batch normalization
// is requested while training with a single example.
func checkBlockInput(blockName string, ctx *context.Context, x *Node, batchNorm bool) {
	if x.Rank() != 2 {
		Panicf("fcresnet.%s: input must be shaped [batch_size, features], got %s", blockName, x.Shape())
	}
	if batchNorm && ctx.IsTraining(x.Graph()) && x.Shape().Dimensions[0] < 2 {
		Panicf("fcresnet.%s: batch normalization requires more than 1 example per batch during training, got shape %s",
			blockName, x.Shape())
	}
}
