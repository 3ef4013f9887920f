// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package fcresnet

// StageInfo describes one stage of an Architecture.
type StageInfo struct {
	// Index of the stage, starting at 0.
	Index int

	// NumBlocks in the stage and their Width.
	NumBlocks, Width int

	// NumDenseLayers in all blocks of the stage, not including the changer.
	NumDenseLayers int

	// ChangerTo is the width the changer projects to, or 0 for the last stage, which has no changer.
	ChangerTo int

	// NumParameters is the number of trainable scalars of the stage, including its changer.
	NumParameters int
}

// denseParams is the number of parameters of a dense layer with bias.
func denseParams(in, out int) int {
	return in*out + out
}

// Batch normalization learns a scale and an offset per feature, and keeps a moving mean, a moving variance
// and an averaging weight, also per feature.
const (
	batchNormTrainablePerFeature  = 2
	batchNormStatisticsPerFeature = 3
)

// Stages returns the description of each stage of the architecture.
// It returns nil if the architecture is not valid, see Validate.
func (a *Architecture) Stages() []StageInfo {
	if a.Validate() != nil {
		return nil
	}
	stages := make([]StageInfo, len(a.Layers))
	denseLayersPerBlock := a.Block.NumDenseLayers()
	for ii, numBlocks := range a.Layers {
		width := a.Features[ii]
		info := StageInfo{
			Index:          ii,
			NumBlocks:      numBlocks,
			Width:          width,
			NumDenseLayers: numBlocks * denseLayersPerBlock,
		}
		perLayer := denseParams(width, width)
		if a.BatchNorm {
			perLayer += batchNormTrainablePerFeature * width
		}
		info.NumParameters = info.NumDenseLayers * perLayer
		if ii < len(a.Layers)-1 {
			info.ChangerTo = a.Features[ii+1]
			info.NumParameters += denseParams(width, info.ChangerTo)
		}
		stages[ii] = info
	}
	return stages
}

// NumParameters returns the number of trainable scalars of the architecture: weights and biases of all dense
// layers plus the learned scale and offset of the batch normalizations, if enabled.
// It returns 0 if the architecture is not valid.
func (a *Architecture) NumParameters() int {
	if a.Validate() != nil {
		return 0
	}
	total := denseParams(a.InputDim, a.Features[0])
	for _, stage := range a.Stages() {
		total += stage.NumParameters
	}
	total += denseParams(a.Features[len(a.Features)-1], a.OutputDim)
	return total
}

// NumStatistics returns the number of non-trainable scalars kept by the batch normalization layers: 0 if batch
// normalization is disabled or the architecture is not valid.
func (a *Architecture) NumStatistics() int {
	if !a.BatchNorm || a.Validate() != nil {
		return 0
	}
	total := 0
	for _, stage := range a.Stages() {
		total += stage.NumDenseLayers * stage.Width * batchNormStatisticsPerFeature
	}
	return total
}

// NumDenseLayers returns the total number of dense layers, including input, changers and output projections.
// It returns 0 if the architecture is not valid.
func (a *Architecture) NumDenseLayers() int {
	if a.Validate() != nil {
		return 0
	}
	total := 2 + len(a.Layers) - 1
	for _, stage := range a.Stages() {
		total += stage.NumDenseLayers
	}
	return total
}

// Depth returns the conventional ResNet depth of the architecture: the dense layers in the blocks plus the
// input and output projections. The changers are not counted, so FCResNet50().Depth() is 50.
//
// It returns 0 if the architecture is not valid.
func (a *Architecture) Depth() int {
	if a.Validate() != nil {
		return 0
	}
	depth := 2
	for _, stage := range a.Stages() {
		depth += stage.NumDenseLayers
	}
	return depth
}
