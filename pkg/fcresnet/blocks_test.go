// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package fcresnet

import (
	"testing"

	. "github.com/gomlx/gomlx/pkg/core/graph"
	"github.com/gomlx/gomlx/pkg/core/graph/graphtest"
	"github.com/gomlx/gomlx/pkg/ml/context"
	"github.com/gomlx/gomlx/pkg/ml/context/initializers"
	"github.com/gomlx/gomlx/pkg/ml/layers/activations"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	_ "github.com/gomlx/gomlx/backends/default"
)

func TestBlockType(t *testing.T) {
	for _, blockType := range BlockTypeValues() {
		parsed, err := BlockTypeString(blockType.String())
		require.NoError(t, err)
		assert.Equal(t, blockType, parsed)
	}
	parsed, err := BlockTypeString(" Bottleneck")
	require.NoError(t, err)
	assert.Equal(t, BlockBottleneck, parsed)

	_, err = BlockTypeString("wide")
	require.Error(t, err)
	assert.Equal(t, "BlockType(7)", BlockType(7).String())
	assert.Equal(t, 2, BlockBasic.NumDenseLayers())
	assert.Equal(t, 3, BlockBottleneck.NumDenseLayers())
}

var blockTestInput = [][]float32{
	{1, -2, 3, -4},
	{-0.5, 0.5, 0, 2},
	{0, 0, -1, 1},
}

var blockTestInputRelu = [][]float32{
	{1, 0, 3, 0},
	{0, 0.5, 0, 2},
	{0, 0, 0, 1},
}

// With all weights and biases zeroed, the residual branch is 0 and both blocks reduce to act(x).
func TestBlocksWithZeroWeights(t *testing.T) {
	backend := graphtest.BuildTestBackend()
	for _, batchNorm := range []bool{false, true} {
		ctx := context.New().WithInitializer(initializers.Zero)
		outputs := context.MustExecOnceN(backend, ctx, func(ctx *context.Context, g *Graph) []*Node {
			x := Const(g, blockTestInput)
			basic := BasicBlock(ctx.In("basic"), x, batchNorm)
			bottleneck := BottleneckBlock(ctx.In("bottleneck"), x, activations.TypeRelu, batchNorm)
			return []*Node{basic, bottleneck}
		})
		require.Len(t, outputs, 2)
		assert.Equalf(t, blockTestInputRelu, outputs[0].Value(), "BasicBlock(batchNorm=%v)", batchNorm)
		assert.Equalf(t, blockTestInputRelu, outputs[1].Value(), "BottleneckBlock(batchNorm=%v)", batchNorm)
	}
}

func TestBlocksKeepShape(t *testing.T) {
	backend := graphtest.BuildTestBackend()
	ctx := context.New()
	ctx.RngStateFromSeed(42)
	outputs := context.MustExecOnceN(backend, ctx, func(ctx *context.Context, g *Graph) []*Node {
		ctx.SetTraining(g, true)
		x := Const(g, blockTestInput)
		basic := BasicBlock(ctx.In("basic"), x, true)
		bottleneck := BottleneckBlock(ctx.In("bottleneck"), x, activations.TypeSwish, true)
		return []*Node{basic, bottleneck}
	})
	for _, output := range outputs {
		assert.Equal(t, []int{3, 4}, output.Shape().Dimensions)
	}

	// Variables: one dense layer and one batch normalization per block layer.
	for _, scope := range []string{"/basic/dense_0", "/basic/dense_1", "/bottleneck/dense_2"} {
		assert.NotNilf(t, ctx.GetVariableByScopeAndName(scope+"/dense", "weights"), "scope %q", scope)
		assert.NotNilf(t, ctx.GetVariableByScopeAndName(scope+"/batch_normalization", "scale"), "scope %q", scope)
	}
	assert.Nil(t, ctx.GetVariableByScopeAndName("/basic/dense_2/dense", "weights"))
}

func TestBlocksInvalidInputs(t *testing.T) {
	backend := graphtest.BuildTestBackend()

	// Rank-3 input.
	_, err := context.ExecOnceN(backend, context.New(), func(ctx *context.Context, g *Graph) []*Node {
		x := Zeros(g, shapeF32(2, 3, 4))
		return []*Node{BasicBlock(ctx, x, false)}
	})
	require.Error(t, err)

	// Batch normalization while training on a single example.
	_, err = context.ExecOnceN(backend, context.New(), func(ctx *context.Context, g *Graph) []*Node {
		ctx.SetTraining(g, true)
		x := Zeros(g, shapeF32(1, 4))
		return []*Node{BottleneckBlock(ctx, x, activations.TypeRelu, true)}
	})
	require.Error(t, err)

	// A single example is fine for inference.
	_, err = context.ExecOnceN(backend, context.New(), func(ctx *context.Context, g *Graph) []*Node {
		x := Zeros(g, shapeF32(1, 4))
		return []*Node{BottleneckBlock(ctx, x, activations.TypeRelu, true)}
	})
	require.NoError(t, err)
}
