// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package fcresnet implements FC-ResNet: a residual network built out of dense (fully-connected) layers instead
// of convolutions, for tabular or vector inputs.
//
// The network is organized in stages, following the ResNet recipe. Each stage stacks a number of residual blocks
// (BasicBlock or BottleneckBlock) of a fixed width, and a linear "changer" projection maps the width of one stage
// to the width of the next:
//
//	x -> act(dense_in(x)) -> [stage_0 blocks] -> changer_0 -> [stage_1 blocks] -> ... -> [stage_n blocks] -> dense_out
//
// E.g.: build a network with bottleneck blocks as part of a model function:
//
//	func MyModel(ctx *context.Context, spec any, inputs []*Node) []*Node {
//		logits := fcresnet.New(ctx.In("fcresnet"), inputs[0]).
//			Block(fcresnet.BlockBottleneck).
//			Layers(3, 4, 6, 3).
//			BatchNorm(true).
//			Done()
//		return []*Node{logits}
//	}
//
// The conventional configurations (fc_resnet18 to fc_resnet152) are available as Architecture values, see
// FCResNet18 and ByName.
package fcresnet

import (
	"slices"
	"strconv"
	"strings"

	"github.com/pkg/errors"

	. "github.com/gomlx/gomlx/pkg/core/graph"
	"github.com/gomlx/gomlx/pkg/ml/context"
	"github.com/gomlx/gomlx/pkg/ml/layers"
	"github.com/gomlx/gomlx/pkg/ml/layers/activations"
	. "github.com/gomlx/gomlx/pkg/support/exceptions"
)

const (
	// ParamBlock is the hyperparameter that defines the default block type: "basic" or "bottleneck".
	// The default is "basic".
	ParamBlock = "fcresnet_block"

	// ParamLayers is the hyperparameter that defines the default number of blocks per stage.
	// The default is []int{1, 2, 3, 4}.
	ParamLayers = "fcresnet_layers"

	// ParamFeatures is the hyperparameter that defines the default width of each stage.
	// The default is []int{128, 128, 256, 512}.
	ParamFeatures = "fcresnet_features"

	// ParamBatchNorm is the hyperparameter that defines whether to use batch normalization after each dense
	// layer of the blocks.
	// It can be a bool, or a string "true" or "false", so it can be registered in a root context as "" (unset)
	// and set from the command line. An unset value ("" or missing) keeps the default: false for New and
	// the architecture's own setting for FromContext.
	ParamBatchNorm = "fcresnet_batch_norm"

	// ParamOutputDim is the hyperparameter that defines the default output dimension.
	// The default is 20.
	ParamOutputDim = "fcresnet_output_dim"
)

var (
	// DefaultLayers is the number of blocks per stage used if none is configured.
	DefaultLayers = []int{1, 2, 3, 4}

	// DefaultFeatures is the width of each stage used if none is configured.
	DefaultFeatures = []int{128, 128, 256, 512}
)

const (
	// DefaultInputDim is the number of input features of the conventional architectures.
	DefaultInputDim = 116

	// DefaultOutputDim is the number of outputs of the conventional architectures.
	DefaultOutputDim = 20
)

// Config for an FC-ResNet. Create it with New, configure it with its methods and call Done to build the network.
type Config struct {
	ctx        *context.Context
	input      *Node
	blockType  BlockType
	layers     []int
	features   []int
	activation activations.Type
	batchNorm  bool
	outputDim  int
}

// New creates the configuration of an FC-ResNet applied to input, shaped `[batch_size, input_features]`.
// Call Done to build the network and get its output, shaped `[batch_size, output_dim]`.
//
// Defaults can be given by the context hyperparameters ParamBlock, ParamLayers, ParamFeatures, ParamBatchNorm,
// ParamOutputDim and activations.ParamActivation. Otherwise, it uses basic blocks, DefaultLayers,
// DefaultFeatures, no batch normalization, "relu" and DefaultOutputDim.
func New(ctx *context.Context, input *Node) *Config {
	c := &Config{
		ctx:        ctx,
		input:      input,
		layers:     slices.Clone(context.GetParamOr(ctx, ParamLayers, DefaultLayers)),
		features:   slices.Clone(context.GetParamOr(ctx, ParamFeatures, DefaultFeatures)),
		activation: activations.FromName(context.GetParamOr(ctx, activations.ParamActivation, "relu")),
		outputDim:  context.GetParamOr(ctx, ParamOutputDim, DefaultOutputDim),
	}
	batchNorm, found, err := batchNormFromContext(ctx)
	if err != nil {
		Panicf("fcresnet: %v", err)
	}
	if found {
		c.batchNorm = batchNorm
	}
	blockName := context.GetParamOr(ctx, ParamBlock, BlockBasic.String())
	blockType, err := BlockTypeString(blockName)
	if err != nil {
		Panicf("fcresnet: invalid value for hyperparameter %q: %v", ParamBlock, err)
	}
	c.blockType = blockType
	return c
}

// batchNormFromContext reads ParamBatchNorm. found is false if it is not set, or set to "".
func batchNormFromContext(ctx *context.Context) (batchNorm, found bool, err error) {
	value, found := ctx.GetParam(ParamBatchNorm)
	if !found || value == nil {
		return false, false, nil
	}
	switch v := value.(type) {
	case bool:
		return v, true, nil
	case string:
		if strings.TrimSpace(v) == "" {
			return false, false, nil
		}
		batchNorm, err = strconv.ParseBool(strings.TrimSpace(v))
		if err != nil {
			return false, false, errors.Errorf("hyperparameter %q must be true, false or empty, got %q",
				ParamBatchNorm, v)
		}
		return batchNorm, true, nil
	}
	return false, false, errors.Errorf("hyperparameter %q must be a bool or a string, got %T(%v)",
		ParamBatchNorm, value, value)
}

// Block sets the type of residual block used in all stages.
func (c *Config) Block(blockType BlockType) *Config {
	c.blockType = blockType
	return c
}

// Layers sets the number of blocks in each stage. It must have the same length as Features.
func (c *Config) Layers(numBlocks ...int) *Config {
	c.layers = slices.Clone(numBlocks)
	return c
}

// Features sets the width of each stage. It must have the same length as Layers.
func (c *Config) Features(widths ...int) *Config {
	c.features = slices.Clone(widths)
	return c
}

// Activation used after the input projection and inside the bottleneck blocks.
// Basic blocks always use relu.
func (c *Config) Activation(activation activations.Type) *Config {
	c.activation = activation
	return c
}

// BatchNorm sets whether blocks apply batch normalization after each of their dense layers.
func (c *Config) BatchNorm(useBatchNorm bool) *Config {
	c.batchNorm = useBatchNorm
	return c
}

// OutputDim sets the dimension of the output.
func (c *Config) OutputDim(outputDim int) *Config {
	c.outputDim = outputDim
	return c
}

// Validate returns an error if the configuration can't be built.
func (c *Config) Validate() error {
	if c.input != nil && c.input.Rank() != 2 {
		return errors.Errorf("fcresnet: input must be shaped [batch_size, input_features], got %s", c.input.Shape())
	}
	return validateStages(c.blockType, c.layers, c.features, c.outputDim)
}

func validateStages(blockType BlockType, numBlocks, widths []int, outputDim int) error {
	if blockType.NumDenseLayers() == 0 {
		return errors.Errorf("fcresnet: invalid block type %s", blockType)
	}
	if len(numBlocks) == 0 {
		return errors.New("fcresnet: at least one stage must be configured")
	}
	if len(numBlocks) != len(widths) {
		return errors.Errorf("fcresnet: number of stages in layers (%v) and features (%v) don't match",
			numBlocks, widths)
	}
	for ii, n := range numBlocks {
		if n < 1 {
			return errors.Errorf("fcresnet: stage #%d must have at least 1 block, got layers=%v", ii, numBlocks)
		}
		if widths[ii] < 1 {
			return errors.Errorf("fcresnet: stage #%d must have a width >= 1, got features=%v", ii, widths)
		}
	}
	if outputDim < 1 {
		return errors.Errorf("fcresnet: output dimension must be >= 1, got %d", outputDim)
	}
	return nil
}

// Done builds the FC-ResNet and returns its output, shaped `[batch_size, output_dim]`.
// It panics if the configuration is invalid, see Validate.
func (c *Config) Done() *Node {
	if err := c.Validate(); err != nil {
		panic(err)
	}
	ctx := c.ctx
	x := c.input
	batchSize := x.Shape().Dimensions[0]

	x = layers.Dense(ctx.In("input"), x, true, c.features[0])
	x = activations.Apply(c.activation, x)

	lastStage := len(c.layers) - 1
	for stage, numBlocks := range c.layers {
		stageCtx := ctx.Inf("stage_%d", stage)
		for block := range numBlocks {
			x = applyBlock(stageCtx.Inf("block_%d", block), c.blockType, x, c.activation, c.batchNorm)
		}
		if stage < lastStage {
			x = layers.Dense(ctx.Inf("changer_%d", stage), x, true, c.features[stage+1])
		}
	}

	x = layers.Dense(ctx.In("output"), x, true, c.outputDim)
	x.AssertDims(batchSize, c.outputDim)
	return x
}
