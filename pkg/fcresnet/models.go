// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package fcresnet

import (
	"fmt"
	"slices"

	"github.com/pkg/errors"

	. "github.com/gomlx/gomlx/pkg/core/graph"
	"github.com/gomlx/gomlx/pkg/ml/context"
	"github.com/gomlx/gomlx/pkg/ml/layers/activations"
	"github.com/gomlx/gomlx/pkg/ml/train"
	. "github.com/gomlx/gomlx/pkg/support/exceptions"
	"github.com/gomlx/gomlx/pkg/support/xslices"
)

// ParamModel is the hyperparameter with the name of the architecture selected by FromContext.
// The default is "fc_resnet18".
const ParamModel = "fcresnet_model"

// Architecture is a complete, named, FC-ResNet configuration.
//
// It can be used directly as a train.ModelFn with Architecture.ModelGraph.
type Architecture struct {
	Name       string
	Block      BlockType
	Layers     []int
	Features   []int
	BatchNorm  bool
	Activation activations.Type
	InputDim   int
	OutputDim  int
}

func newConventional(name string, block BlockType, numBlocks []int, batchNorm bool) *Architecture {
	return &Architecture{
		Name:       name,
		Block:      block,
		Layers:     numBlocks,
		Features:   slices.Clone(DefaultFeatures),
		BatchNorm:  batchNorm,
		Activation: activations.TypeRelu,
		InputDim:   DefaultInputDim,
		OutputDim:  DefaultOutputDim,
	}
}

// FCResNet18 uses basic blocks with 2, 2, 2, 2 blocks per stage and batch normalization.
func FCResNet18() *Architecture {
	return newConventional("fc_resnet18", BlockBasic, []int{2, 2, 2, 2}, true)
}

// FCResNet34 uses basic blocks with 3, 4, 6, 3 blocks per stage.
func FCResNet34() *Architecture {
	return newConventional("fc_resnet34", BlockBasic, []int{3, 4, 6, 3}, false)
}

// FCResNet50 uses bottleneck blocks with 3, 4, 6, 3 blocks per stage.
func FCResNet50() *Architecture {
	return newConventional("fc_resnet50", BlockBottleneck, []int{3, 4, 6, 3}, false)
}

// FCResNet101 uses bottleneck blocks with 3, 4, 23, 3 blocks per stage.
func FCResNet101() *Architecture {
	return newConventional("fc_resnet101", BlockBottleneck, []int{3, 4, 23, 3}, false)
}

// FCResNet152 uses bottleneck blocks with 3, 8, 36, 3 blocks per stage.
func FCResNet152() *Architecture {
	return newConventional("fc_resnet152", BlockBottleneck, []int{3, 8, 36, 3}, false)
}

// KnownArchitectures maps the conventional architecture names to their constructors.
var KnownArchitectures = map[string]func() *Architecture{
	"fc_resnet18":  FCResNet18,
	"fc_resnet34":  FCResNet34,
	"fc_resnet50":  FCResNet50,
	"fc_resnet101": FCResNet101,
	"fc_resnet152": FCResNet152,
}

// ByName returns a new Architecture for one of the KnownArchitectures.
func ByName(name string) (*Architecture, error) {
	constructor, found := KnownArchitectures[name]
	if !found {
		return nil, errors.Errorf("unknown FC-ResNet architecture %q: valid values are %v",
			name, xslices.SortedKeys(KnownArchitectures))
	}
	return constructor(), nil
}

// FromContext returns the architecture named by the hyperparameter ParamModel (default "fc_resnet18").
// If the hyperparameter ParamBatchNorm is set (and not ""), it overrides the architecture's batch normalization
// setting.
func FromContext(ctx *context.Context) (*Architecture, error) {
	arch, err := ByName(context.GetParamOr(ctx, ParamModel, "fc_resnet18"))
	if err != nil {
		return nil, err
	}
	batchNorm, found, err := batchNormFromContext(ctx)
	if err != nil {
		return nil, err
	}
	if found {
		arch.BatchNorm = batchNorm
	}
	return arch, nil
}

// Clone returns a deep copy of the architecture.
func (a *Architecture) Clone() *Architecture {
	a2 := *a
	a2.Layers = slices.Clone(a.Layers)
	a2.Features = slices.Clone(a.Features)
	return &a2
}

// WithBatchNorm returns a copy of the architecture with batch normalization turned on or off.
func (a *Architecture) WithBatchNorm(batchNorm bool) *Architecture {
	a2 := a.Clone()
	a2.BatchNorm = batchNorm
	return a2
}

// String implements fmt.Stringer.
func (a *Architecture) String() string {
	bn := ""
	if a.BatchNorm {
		bn = ", batch norm"
	}
	return fmt.Sprintf("%s(%s blocks, layers=%v, features=%v, %d->%d%s)",
		a.Name, a.Block, a.Layers, a.Features, a.InputDim, a.OutputDim, bn)
}

// Validate returns an error if the architecture is not buildable.
func (a *Architecture) Validate() error {
	if a.InputDim < 1 {
		return errors.Errorf("fcresnet: input dimension must be >= 1, got %d", a.InputDim)
	}
	return errors.WithMessagef(validateStages(a.Block, a.Layers, a.Features, a.OutputDim),
		"architecture %q", a.Name)
}

// Apply builds the network on x, shaped `[batch_size, InputDim]`, and returns its output shaped
// `[batch_size, OutputDim]`.
func (a *Architecture) Apply(ctx *context.Context, x *Node) *Node {
	if x.Rank() != 2 || x.Shape().Dimensions[1] != a.InputDim {
		Panicf("fcresnet: %s expects input shaped [batch_size, %d], got %s", a.Name, a.InputDim, x.Shape())
	}
	return New(ctx, x).
		Block(a.Block).
		Layers(a.Layers...).
		Features(a.Features...).
		Activation(a.Activation).
		BatchNorm(a.BatchNorm).
		OutputDim(a.OutputDim).
		Done()
}

// ModelGraph implements train.ModelFn: inputs[0] is shaped `[batch_size, InputDim]`, and it returns one
// output shaped `[batch_size, OutputDim]`.
func (a *Architecture) ModelGraph(ctx *context.Context, _ any, inputs []*Node) []*Node {
	if len(inputs) != 1 {
		Panicf("fcresnet: %s takes exactly one input, got %d", a.Name, len(inputs))
	}
	return []*Node{a.Apply(ctx, inputs[0])}
}

// Assert ModelGraph is a train.ModelFn.
var _ train.ModelFn = (*Architecture)(nil).ModelGraph
