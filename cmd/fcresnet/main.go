// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// fcresnet builds one of the fully-connected ResNet architectures and smoke-tests it on random data:
// a forward pass, the gradients of the mean of the outputs, and a few Adam steps.
//
// Example:
//
//	go run ./cmd/fcresnet -model=fc_resnet50 -batch=8 -steps=3 -set="fcresnet_batch_norm=true;learning_rate=1e-2"
package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/gomlx/gomlx/backends"
	"github.com/gomlx/gomlx/pkg/ml/context"
	"github.com/gomlx/gomlx/pkg/ml/train/optimizers"
	"github.com/gomlx/gomlx/ui/commandline"
	"github.com/janpfeifer/must"
	"k8s.io/klog/v2"

	"github.com/gomlx/fcresnet/pkg/fcresnet"
	"github.com/gomlx/fcresnet/ui/report"

	_ "github.com/gomlx/gomlx/backends/default"
)

var (
	flagModel     = flag.String("model", "fc_resnet18", "Architecture to smoke-test: fc_resnet18, fc_resnet34, fc_resnet50, fc_resnet101 or fc_resnet152.")
	flagBatch     = flag.Int("batch", 3, "Batch size of the random inputs. Must be >= 2 if batch normalization is enabled.")
	flagSteps     = flag.Int("steps", 1, "Number of optimizer steps to take.")
	flagSeed      = flag.Int64("seed", 42, "Seed for the random inputs and the variables initialization.")
	flagVerbosity = flag.Int("verbosity", 1, "Level of verbosity, the higher the more verbose.")
)

// createDefaultContext sets the context with default hyperparameters.
func createDefaultContext() *context.Context {
	ctx := context.New()
	ctx.SetParams(map[string]any{
		fcresnet.ParamModel: "fc_resnet18",

		// "" keeps the batch normalization setting of the selected model; "true" or "false" overrides it.
		fcresnet.ParamBatchNorm: "",

		optimizers.ParamOptimizer:    "adam",
		optimizers.ParamLearningRate: 1e-3,
	})
	return ctx
}

func main() {
	ctx := createDefaultContext()
	settings := commandline.CreateContextSettingsFlag(ctx, "")
	klog.InitFlags(nil)
	flag.Parse()

	// -set has the last word on the model.
	ctx.SetParam(fcresnet.ParamModel, *flagModel)
	paramsSet := must.M1(commandline.ParseContextSettings(ctx, *settings))
	if *flagVerbosity >= 2 {
		fmt.Println(commandline.SprintModifiedContextSettings(ctx, paramsSet))
	}

	backend := backends.MustNew()
	if *flagVerbosity >= 1 {
		fmt.Printf("Backend %q:\t%s\n", backend.Name(), backend.Description())
	}
	arch, err := fcresnet.FromContext(ctx)
	if err != nil {
		klog.Fatalf("Failed to select model: %+v", err)
	}
	if *flagVerbosity >= 1 {
		fmt.Println(report.ArchitectureTable(arch))
	}

	result, err := runSmokeTest(ctx, backend, smokeConfig{
		BatchSize:   *flagBatch,
		Steps:       *flagSteps,
		Seed:        *flagSeed,
		ProgressBar: *flagVerbosity >= 1,
	})
	if err != nil {
		klog.Fatalf("Smoke test of %s failed: %+v", arch, err)
	}
	must.M(report.WriteSmokeResult(os.Stdout, result))
}
