/*
NAME
  diagnostics.go

DESCRIPTION
  diagnostics.go implements an optional stream.Sink that records
  per-frame quality, bitrate, and change-percentage samples and
  renders them as a PNG chart, mirroring the turbidity-over-time
  diagnostics cmd/rv/probe.go derives with gonum for its own metric.

AUTHORS
  screencast contributors

LICENSE
  See repository root.
*/

package main

import (
	"image/color"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"

	"github.com/parleyhub/screencast/stream"
)

// diagnosticsSink accumulates a StreamingStats/EncodedFrame sample per
// processed frame for later rendering. It is not safe for concurrent
// use, matching stream.Engine's single-producer contract.
type diagnosticsSink struct {
	quality      plotter.XYs
	bitrateMbps  plotter.XYs
	changePct    plotter.XYs
	frameCounter float64
}

func newDiagnosticsSink(expectedFrames int) *diagnosticsSink {
	return &diagnosticsSink{
		quality:     make(plotter.XYs, 0, expectedFrames),
		bitrateMbps: make(plotter.XYs, 0, expectedFrames),
		changePct:   make(plotter.XYs, 0, expectedFrames),
	}
}

// FrameReady records the quality used for the just-encoded frame.
func (d *diagnosticsSink) FrameReady(f stream.EncodedFrame) {
	d.quality = append(d.quality, plotter.XY{X: float64(f.FrameNumber), Y: float64(f.QualityUsed)})
}

// StatsUpdated records the session bitrate and smoothed change
// percentage at the time of the update.
func (d *diagnosticsSink) StatsUpdated(st stream.StreamingStats) {
	d.frameCounter++
	d.bitrateMbps = append(d.bitrateMbps, plotter.XY{X: d.frameCounter, Y: st.CurrentBitrateMbps})
	d.changePct = append(d.changePct, plotter.XY{X: d.frameCounter, Y: st.AverageChangePercent})
}

// render writes a three-series PNG chart to path: quality against
// frame number, and bitrate and average change-percent against the
// count of emitted frames.
func (d *diagnosticsSink) render(path string) error {
	p := plot.New()
	p.Title.Text = "screencast session diagnostics"
	p.X.Label.Text = "frame"
	p.Y.Label.Text = "value"

	qualityLine, err := plotter.NewLine(d.quality)
	if err != nil {
		return err
	}
	qualityLine.Color = color.RGBA{R: 0x20, G: 0x80, B: 0xd0, A: 0xff}

	bitrateLine, err := plotter.NewLine(d.bitrateMbps)
	if err != nil {
		return err
	}
	bitrateLine.Color = color.RGBA{R: 0xd0, G: 0x50, B: 0x20, A: 0xff}

	changeLine, err := plotter.NewLine(d.changePct)
	if err != nil {
		return err
	}
	changeLine.Color = color.RGBA{R: 0x30, G: 0xa0, B: 0x40, A: 0xff}

	p.Add(qualityLine, bitrateLine, changeLine)
	p.Legend.Add("quality", qualityLine)
	p.Legend.Add("bitrate (mbps)", bitrateLine)
	p.Legend.Add("avg change %", changeLine)

	return p.Save(8*vg.Inch, 4*vg.Inch, path)
}
