// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package report renders FC-ResNet architectures and smoke-test results for the command line.
package report

import (
	"fmt"
	"io"
	"strconv"

	"github.com/charmbracelet/lipgloss"
	lgtable "github.com/charmbracelet/lipgloss/table"
	humanize "github.com/dustin/go-humanize"

	"github.com/gomlx/fcresnet/pkg/fcresnet"
)

var (
	normalStyle       = lipgloss.NewStyle().Padding(0, 1)
	rightAlignedStyle = lipgloss.NewStyle().Align(lipgloss.Right).Padding(0, 1)
	headerStyle       = lipgloss.NewStyle().Bold(true).Padding(0, 1)
	titleStyle        = lipgloss.NewStyle().Bold(true)
	tableBorderColor  = "#705090"
)

func newTable() *lgtable.Table {
	return lgtable.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(lipgloss.NewStyle().Foreground(lipgloss.Color(tableBorderColor))).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == lgtable.HeaderRow {
				return headerStyle
			}
			if col == 0 {
				return normalStyle
			}
			return rightAlignedStyle
		})
}

// ArchitectureTable returns a table with one row per stage of arch, plus the input and output projections.
// For an invalid architecture it returns only the validation error.
func ArchitectureTable(arch *fcresnet.Architecture) string {
	if err := arch.Validate(); err != nil {
		return titleStyle.Render(fmt.Sprintf("%s: invalid architecture: %v", arch.Name, err))
	}
	table := newTable().Headers("Layer", "Blocks", "Width", "Dense layers", "Parameters")
	table.Row("input", "-", fmt.Sprintf("%d->%d", arch.InputDim, arch.Features[0]), "1",
		humanize.Comma(int64(arch.InputDim*arch.Features[0]+arch.Features[0])))
	for _, stage := range arch.Stages() {
		width := strconv.Itoa(stage.Width)
		denseLayers := strconv.Itoa(stage.NumDenseLayers)
		if stage.ChangerTo > 0 {
			width = fmt.Sprintf("%d->%d", stage.Width, stage.ChangerTo)
			denseLayers = fmt.Sprintf("%d+1", stage.NumDenseLayers)
		}
		table.Row(fmt.Sprintf("stage_%d (%s)", stage.Index, arch.Block),
			strconv.Itoa(stage.NumBlocks), width, denseLayers, humanize.Comma(int64(stage.NumParameters)))
	}
	lastWidth := arch.Features[len(arch.Features)-1]
	table.Row("output", "-", fmt.Sprintf("%d->%d", lastWidth, arch.OutputDim), "1",
		humanize.Comma(int64(lastWidth*arch.OutputDim+arch.OutputDim)))

	bn := "off"
	if arch.BatchNorm {
		bn = "on"
	}
	title := titleStyle.Render(fmt.Sprintf("%s: depth %d, batch normalization %s, activation %s",
		arch.Name, arch.Depth(), bn, arch.Activation))
	footer := fmt.Sprintf("Trainable parameters: %s", humanize.Comma(int64(arch.NumParameters())))
	if stats := arch.NumStatistics(); stats > 0 {
		footer += fmt.Sprintf(" (+%s batch normalization statistics)", humanize.Comma(int64(stats)))
	}
	return lipgloss.JoinVertical(lipgloss.Left, title, table.String(), footer)
}

// SmokeResult holds the outcome of a smoke test: forward pass, loss and optimizer steps.
type SmokeResult struct {
	Architecture *fcresnet.Architecture

	// InputShape and OutputShape of the forward pass.
	InputShape, OutputShape []int

	// NumTrainSteps taken by the optimizer.
	NumTrainSteps int

	// LossBefore and LossAfter the train steps, both evaluated on the same input in inference mode.
	LossBefore, LossAfter float64

	// TrainLoss is the batch loss reported by the last train step.
	TrainLoss float64

	// NumGradients is the number of trainable variables checked for finite gradients.
	NumGradients int

	// MaxAbsGradient is the largest absolute gradient value across all trainable variables.
	MaxAbsGradient float64
}

// WriteSmokeResult prints a table with the smoke test results to w.
func WriteSmokeResult(w io.Writer, result *SmokeResult) error {
	table := newTable().Headers("Check", "Value")
	table.Row("Input shape", fmt.Sprint(result.InputShape))
	table.Row("Output shape", fmt.Sprint(result.OutputShape))
	table.Row("Gradients checked", humanize.Comma(int64(result.NumGradients)))
	table.Row("Max |gradient|", humanize.FtoaWithDigits(result.MaxAbsGradient, 6))
	table.Row("Train steps", humanize.Comma(int64(result.NumTrainSteps)))
	table.Row("Loss before", humanize.FtoaWithDigits(result.LossBefore, 6))
	table.Row("Loss after", humanize.FtoaWithDigits(result.LossAfter, 6))
	table.Row("Last train step loss", humanize.FtoaWithDigits(result.TrainLoss, 6))
	_, err := fmt.Fprintln(w, table.String())
	return err
}
