// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package main

import (
	"math"

	"github.com/gomlx/gomlx/backends"
	. "github.com/gomlx/gomlx/pkg/core/graph"
	"github.com/gomlx/gomlx/pkg/core/tensors"
	"github.com/gomlx/gomlx/pkg/ml/context"
	"github.com/gomlx/gomlx/pkg/ml/train"
	"github.com/gomlx/gomlx/pkg/ml/train/optimizers"
	"github.com/gomlx/gomlx/ui/commandline"
	"github.com/pkg/errors"
	"k8s.io/klog/v2"

	"github.com/gomlx/fcresnet/internal/synthetic"
	"github.com/gomlx/fcresnet/pkg/fcresnet"
	"github.com/gomlx/fcresnet/ui/report"
)

// smokeConfig holds the program options of a smoke test. Model hyperparameters are read from the context.
type smokeConfig struct {
	BatchSize, Steps int
	Seed             int64
	ProgressBar      bool
}

// meanOutputLoss is the illustrative loss: the mean of all the model outputs. There are no labels.
func meanOutputLoss(_, predictions []*Node) *Node {
	return ReduceAllMean(predictions[0])
}

// runSmokeTest builds the architecture selected in ctx and checks it end-to-end on random inputs: forward pass,
// gradients of the loss and a few optimizer steps.
//
// Model variables are created under the "model" scope of ctx.
func runSmokeTest(ctx *context.Context, backend backends.Backend, cfg smokeConfig) (*report.SmokeResult, error) {
	arch, err := fcresnet.FromContext(ctx)
	if err != nil {
		return nil, err
	}
	if err = arch.Validate(); err != nil {
		return nil, err
	}
	if cfg.Steps < 0 {
		return nil, errors.Errorf("number of steps must be >= 0, got %d", cfg.Steps)
	}
	if arch.BatchNorm && cfg.BatchSize < 2 {
		return nil, errors.Errorf("%s uses batch normalization, it requires a batch size >= 2 for training, got %d",
			arch.Name, cfg.BatchSize)
	}
	ds, err := synthetic.New("fcresnet_smoke", cfg.BatchSize, arch.InputDim, uint64(cfg.Seed))
	if err != nil {
		return nil, err
	}
	ctx.RngStateFromSeed(cfg.Seed)
	modelCtx := ctx.In("model")
	input := ds.Batch()
	result := &report.SmokeResult{
		Architecture:  arch,
		InputShape:    input.Shape().Dimensions,
		NumTrainSteps: cfg.Steps,
	}

	// Forward pass in training mode: creates the variables and checks the gradients of the loss.
	var gradNames []string
	outputs, err := context.ExecOnceN(backend, modelCtx, func(ctx *context.Context, x *Node) []*Node {
		g := x.Graph()
		ctx.SetTraining(g, true)
		predictions := arch.ModelGraph(ctx, nil, []*Node{x})
		loss := meanOutputLoss(nil, predictions)
		ctx.EnumerateVariables(func(v *context.Variable) {
			if v.Trainable && v.InUseByGraph(g) {
				gradNames = append(gradNames, v.ScopeAndName())
			}
		})
		grads := ctx.BuildTrainableVariablesGradientsGraph(loss)
		results := []*Node{predictions[0]}
		for _, grad := range grads {
			results = append(results, ReduceAllMax(Abs(grad)))
		}
		return results
	}, input)
	if err != nil {
		return nil, errors.WithMessagef(err, "forward pass and gradients of %s", arch)
	}
	result.OutputShape = outputs[0].Shape().Dimensions
	if len(result.OutputShape) != 2 || result.OutputShape[0] != cfg.BatchSize || result.OutputShape[1] != arch.OutputDim {
		return nil, errors.Errorf("%s: expected output shape [%d, %d], got %v",
			arch.Name, cfg.BatchSize, arch.OutputDim, result.OutputShape)
	}
	result.NumGradients = len(outputs) - 1
	if result.NumGradients == 0 {
		return nil, errors.Errorf("%s has no trainable variables", arch.Name)
	}
	for ii, maxAbs := range outputs[1:] {
		v := float64(tensors.ToScalar[float32](maxAbs))
		if math.IsNaN(v) || math.IsInf(v, 0) {
			name := "?"
			if ii < len(gradNames) {
				name = gradNames[ii]
			}
			return nil, errors.Errorf("gradient of variable %s is not finite", name)
		}
		result.MaxAbsGradient = max(result.MaxAbsGradient, v)
	}
	klog.V(1).Infof("%d gradients checked, max |gradient|=%g", result.NumGradients, result.MaxAbsGradient)

	// evalLoss runs the model in inference mode, so batch normalization uses its moving averages.
	evalLoss := func() (float64, error) {
		loss, err := context.ExecOnce(backend, modelCtx.Reuse(), func(ctx *context.Context, x *Node) *Node {
			ctx.SetTraining(x.Graph(), false)
			return meanOutputLoss(nil, arch.ModelGraph(ctx, nil, []*Node{x}))
		}, input)
		if err != nil {
			return 0, err
		}
		return float64(tensors.ToScalar[float32](loss)), nil
	}
	if result.LossBefore, err = evalLoss(); err != nil {
		return nil, errors.WithMessagef(err, "loss before training %s", arch)
	}
	klog.V(1).Infof("loss before %d train steps: %g", cfg.Steps, result.LossBefore)

	if cfg.Steps > 0 {
		trainer := train.NewTrainer(backend, modelCtx.Reuse(), arch.ModelGraph, meanOutputLoss,
			optimizers.FromContext(modelCtx),
			nil, nil) // trainMetrics, evalMetrics
		loop := train.NewLoop(trainer)
		if cfg.ProgressBar {
			commandline.AttachProgressBar(loop)
		}
		metrics, err := loop.RunSteps(ds, cfg.Steps)
		if err != nil {
			return nil, errors.WithMessagef(err, "training %s for %d steps", arch, cfg.Steps)
		}
		if len(metrics) > 0 {
			result.TrainLoss = float64(tensors.ToScalar[float32](metrics[0]))
		}
	}

	if result.LossAfter, err = evalLoss(); err != nil {
		return nil, errors.WithMessagef(err, "loss after training %s", arch)
	}
	klog.V(1).Infof("loss after %d train steps: %g", cfg.Steps, result.LossAfter)
	return result, nil
}
