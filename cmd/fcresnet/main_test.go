// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package main

import (
	"fmt"
	"testing"

	"github.com/gomlx/gomlx/pkg/core/graph/graphtest"
	"github.com/gomlx/gomlx/pkg/ml/context"
	"github.com/gomlx/gomlx/pkg/ml/train/optimizers"
	"github.com/gomlx/gomlx/ui/commandline"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gomlx/fcresnet/pkg/fcresnet"
)

func TestRunSmokeTest(t *testing.T) {
	backend := graphtest.BuildTestBackend()
	models := []string{"fc_resnet18", "fc_resnet34", "fc_resnet50"}
	if testing.Short() {
		models = models[:1]
	}
	for _, model := range models {
		for _, batchNorm := range []bool{false, true} {
			t.Run(fmt.Sprintf("%s/bn=%v", model, batchNorm), func(t *testing.T) {
				ctx := createDefaultContext()
				ctx.SetParams(map[string]any{
					fcresnet.ParamModel:     model,
					fcresnet.ParamBatchNorm: batchNorm,
				})
				result, err := runSmokeTest(ctx, backend, smokeConfig{BatchSize: 3, Steps: 1, Seed: 42})
				require.NoError(t, err)
				assert.Equal(t, model, result.Architecture.Name)
				assert.Equal(t, batchNorm, result.Architecture.BatchNorm)
				assert.Equal(t, []int{3, 116}, result.InputShape)
				assert.Equal(t, []int{3, 20}, result.OutputShape)
				assert.Greater(t, result.NumGradients, 0)
				assert.Greater(t, result.MaxAbsGradient, 0.0)
				// One Adam step changes the weights, hence the loss on the same input.
				assert.NotEqual(t, result.LossBefore, result.LossAfter)

				// Variables live under the "model" scope.
				assert.NotNil(t, ctx.GetVariableByScopeAndName("/model/input/dense", "weights"))
				assert.NotNil(t, ctx.GetVariableByScopeAndName("/model/output/dense", "biases"))
			})
		}
	}
}

func TestRunSmokeTestNoSteps(t *testing.T) {
	backend := graphtest.BuildTestBackend()
	ctx := createDefaultContext()
	result, err := runSmokeTest(ctx, backend, smokeConfig{BatchSize: 2, Steps: 0, Seed: 7})
	require.NoError(t, err)
	assert.Equal(t, result.LossBefore, result.LossAfter)
	assert.Zero(t, result.TrainLoss)
}

func TestRunSmokeTestErrors(t *testing.T) {
	backend := graphtest.BuildTestBackend()

	// fc_resnet18 uses batch normalization, which can't train on a single example.
	_, err := runSmokeTest(createDefaultContext(), backend, smokeConfig{BatchSize: 1, Steps: 1})
	require.Error(t, err)

	// Without batch normalization a single example is fine.
	ctx := createDefaultContext()
	ctx.SetParam(fcresnet.ParamBatchNorm, false)
	_, err = runSmokeTest(ctx, backend, smokeConfig{BatchSize: 1, Steps: 1})
	require.NoError(t, err)

	ctx = createDefaultContext()
	ctx.SetParam(fcresnet.ParamModel, "fc_resnet200")
	_, err = runSmokeTest(ctx, backend, smokeConfig{BatchSize: 3, Steps: 1})
	require.Error(t, err)

	_, err = runSmokeTest(createDefaultContext(), backend, smokeConfig{BatchSize: 3, Steps: -1})
	require.Error(t, err)

	_, err = runSmokeTest(context.New(), backend, smokeConfig{BatchSize: 0, Steps: 1})
	require.Error(t, err)
}

// TestContextSettings checks the hyperparameters can be set from the command line, as main does with -set.
func TestContextSettings(t *testing.T) {
	testCases := []struct {
		settings      string
		wantModel     string
		wantBatchNorm bool
	}{
		{"", "fc_resnet18", true},
		{"fcresnet_model=fc_resnet34", "fc_resnet34", false},
		{"fcresnet_batch_norm=false", "fc_resnet18", false},
		{"fcresnet_model=fc_resnet50;fcresnet_batch_norm=true;learning_rate=1e-2", "fc_resnet50", true},
		{"fcresnet_model=fc_resnet101;fcresnet_batch_norm=", "fc_resnet101", false},
	}
	for _, tc := range testCases {
		t.Run(tc.settings, func(t *testing.T) {
			ctx := createDefaultContext()
			_, err := commandline.ParseContextSettings(ctx, tc.settings)
			require.NoError(t, err)
			arch, err := fcresnet.FromContext(ctx)
			require.NoError(t, err)
			assert.Equal(t, tc.wantModel, arch.Name)
			assert.Equal(t, tc.wantBatchNorm, arch.BatchNorm)
		})
	}

	ctx := createDefaultContext()
	paramsSet, err := commandline.ParseContextSettings(ctx, "fcresnet_batch_norm=true;learning_rate=1e-2")
	require.NoError(t, err)
	assert.Equal(t, []string{fcresnet.ParamBatchNorm, optimizers.ParamLearningRate}, paramsSet)
	assert.Equal(t, 1e-2, context.GetParamOr(ctx, optimizers.ParamLearningRate, 0.0))

	// The value is still validated when the model is built.
	ctx = createDefaultContext()
	_, err = commandline.ParseContextSettings(ctx, "fcresnet_batch_norm=sometimes")
	require.NoError(t, err)
	_, err = fcresnet.FromContext(ctx)
	require.Error(t, err)
}

// TestRunSmokeTestFromSettings runs the smoke test with batch normalization toggled by a command-line setting.
func TestRunSmokeTestFromSettings(t *testing.T) {
	backend := graphtest.BuildTestBackend()
	ctx := createDefaultContext()
	_, err := commandline.ParseContextSettings(ctx, "fcresnet_model=fc_resnet18;fcresnet_batch_norm=false")
	require.NoError(t, err)
	result, err := runSmokeTest(ctx, backend, smokeConfig{BatchSize: 1, Steps: 1, Seed: 3})
	require.NoError(t, err)
	assert.False(t, result.Architecture.BatchNorm)
	assert.Equal(t, []int{1, 20}, result.OutputShape)
}
