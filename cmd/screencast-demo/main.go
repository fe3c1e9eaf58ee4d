/*
DESCRIPTION
  screencast-demo drives the streaming engine against a synthetic
  sequence of frames and reports the resulting statistics. It exists
  to exercise stream.Engine end-to-end without requiring a real
  capture device or network transport.

AUTHORS
  screencast contributors

LICENSE
  See repository root.
*/

// Package main is a demo driver for the streaming engine.
package main

import (
	"flag"
	"fmt"
	"io"
	"os"

	"github.com/ausocean/utils/logging"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/parleyhub/screencast/delta"
	"github.com/parleyhub/screencast/stream"
	"github.com/parleyhub/screencast/stream/config"
)

const (
	logPath      = "screencast-demo.log"
	logMaxSize   = 10 // MB.
	logMaxBackup = 3
	logMaxAge    = 28 // Days.
)

func main() {
	width := flag.Int("width", 640, "synthetic frame width")
	height := flag.Int("height", 480, "synthetic frame height")
	frames := flag.Int("frames", 300, "number of synthetic frames to drive through the engine")
	viewers := flag.Int("viewers", 1, "simulated viewer count")
	keyFrameInterval := flag.Int("key-frame-interval", 300, "forced keyframe interval")
	diagnostics := flag.String("diagnostics", "", "if set, write a quality/bitrate/change-percent PNG to this path")
	verbosity := flag.Int("verbosity", int(logging.Info), "log verbosity (0=Debug .. 4=Fatal)")
	flag.Parse()

	fileLog := &lumberjack.Logger{
		Filename:   logPath,
		MaxSize:    logMaxSize,
		MaxBackups: logMaxBackup,
		MaxAge:     logMaxAge,
	}
	log := logging.New(int8(*verbosity), io.MultiWriter(fileLog, os.Stderr), false)
	log.Info("starting screencast-demo", "frames", *frames, "width", *width, "height", *height)

	var diag *diagnosticsSink
	var sink stream.Sink
	if *diagnostics != "" {
		diag = newDiagnosticsSink(*frames)
		sink = diag
	}

	cfg := config.Config{
		Logger:             log,
		MaxWidth:           uint(*width),
		MaxHeight:          uint(*height),
		BaseQuality:        70,
		MinQuality:         20,
		MaxQuality:         95,
		MinChangeThreshold: 0.1,
		KeyFrameInterval:   uint(*keyFrameInterval),
		BlockSize:          16,
		TargetBitrateMbps:  4,
		MaxBitrateMbps:     8,
		MinBitrateMbps:     0.5,
		TargetFPS:          30,
		BufferPoolSize:     8,
	}
	if err := (&cfg).Validate(); err != nil {
		log.Fatal("invalid configuration", "error", err.Error())
	}

	engine := stream.New(cfg, sink)
	engine.Start()
	defer engine.Dispose()

	engine.SetViewerCount(*viewers)

	src := newSyntheticSource(*width, *height)
	for i := uint64(0); i < uint64(*frames); i++ {
		f := src.next(i)
		out, ok := engine.ProcessFrame(f, i)
		if !ok {
			continue
		}
		log.Debug("frame encoded", "frame", out.FrameNumber, "bytes", len(out.Data), "quality", out.QualityUsed, "key_frame", out.IsKeyFrame)
	}

	st := engine.Stats()
	fmt.Printf("frames processed=%d skipped=%d errors=%d total_bytes=%d bitrate_mbps=%.3f avg_change_pct=%.2f\n",
		st.FramesProcessed, st.FramesSkipped, st.EncodingErrors, st.TotalBytesSent, st.CurrentBitrateMbps, st.AverageChangePercent)

	if diag != nil {
		if err := diag.render(*diagnostics); err != nil {
			log.Error("could not render diagnostics", "error", err.Error())
		} else {
			log.Info("wrote diagnostics", "path", *diagnostics)
		}
	}
}

// syntheticSource produces deterministic packed-RGB frames containing
// a moving square, so downstream delta/motion classification has
// genuine changed regions to react to.
type syntheticSource struct {
	width, height, stride int
	boxSize                int
}

func newSyntheticSource(w, h int) *syntheticSource {
	return &syntheticSource{width: w, height: h, stride: w * 3, boxSize: 32}
}

func (s *syntheticSource) next(frameNumber uint64) delta.Frame {
	pix := make([]byte, s.stride*s.height)
	for i := range pix {
		pix[i] = 40 // dim grey background.
	}

	// Move a square around the frame's border (right, down, left, up)
	// so successive frames differ by a moving, bounded region.
	travelX := s.width - s.boxSize
	travelY := s.height - s.boxSize
	period := uint64(2 * (travelX + travelY))
	if period == 0 {
		period = 1
	}
	pos := int(frameNumber % period)
	x, y := bouncePosition(pos, travelX, travelY)

	for dy := 0; dy < s.boxSize && y+dy < s.height; dy++ {
		row := (y + dy) * s.stride
		for dx := 0; dx < s.boxSize && x+dx < s.width; dx++ {
			p := row + (x+dx)*3
			pix[p], pix[p+1], pix[p+2] = 220, 80, 80
		}
	}

	return delta.Frame{Width: s.width, Height: s.height, Stride: s.stride, Pix: pix}
}

// bouncePosition maps a linear position along a closed loop of length
// 2*(travelX+travelY) onto (x, y) box-top-left coordinates: right along
// the top, down the right side, left along the bottom, up the left side.
func bouncePosition(pos, travelX, travelY int) (int, int) {
	total := travelX + travelY
	if total == 0 {
		return 0, 0
	}
	if pos < total {
		if pos < travelX {
			return pos, 0
		}
		return travelX, pos - travelX
	}
	pos -= total
	if pos < travelX {
		return travelX - pos, travelY
	}
	return 0, travelY - (pos - travelX)
}
