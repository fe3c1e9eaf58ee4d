/*
NAME
  stream.go

DESCRIPTION
  Implements the streaming engine (C5): the orchestrator that invokes
  the delta encoder, queries the network adapter, invokes the smart
  compressor, maintains streaming statistics, and emits encoded frames
  to an injected Sink.

AUTHORS
  screencast contributors

LICENSE
  See repository root.
*/

// Package stream provides the streaming engine that orchestrates the
// buffer pool, delta encoder, network adapter, and smart compressor
// into a single per-frame pipeline.
package stream

import (
	"io"
	"sync"
	"time"

	"github.com/ausocean/utils/logging"

	"github.com/parleyhub/screencast/compress"
	"github.com/parleyhub/screencast/delta"
	"github.com/parleyhub/screencast/netadapt"
	"github.com/parleyhub/screencast/pool"
	"github.com/parleyhub/screencast/stream/config"
)

// changeEMAAlpha is the exponential-smoothing weight of the average
// change percentage, spec §4.5 step 8. The session bitrate is not
// smoothed: it is total bits sent over elapsed session time.
const changeEMAAlpha = 0.1

// EncodedFrame is the value emitted by the engine per successfully
// encoded frame, per spec §3.
type EncodedFrame struct {
	Data          []byte
	Width, Height int // dimensions of Data's decoded image: the full frame, or the regional crop.
	OffsetX       int // pixel offset of Data within the original frame; zero unless the regional path fired.
	OffsetY       int

	FrameNumber      uint64
	IsKeyFrame       bool
	QualityUsed      int
	ChangePercentage float32
	EncodingTimeMs   float64
}

// StreamingStats is the accumulator updated on every successfully
// encoded frame, per spec §3.
type StreamingStats struct {
	FramesProcessed     uint64
	FramesSkipped       uint64
	TotalBytesSent       uint64
	LastFrameSizeBytes   uint64
	LastEncodingTimeMs   float64
	CurrentBitrateMbps   float64
	AverageChangePercent float64
	EncodingErrors       uint64
}

// Sink receives the engine's two observer notifications, per spec §4.5
// Design Notes §9: an injected interface in place of ambient event
// hooks.
type Sink interface {
	FrameReady(EncodedFrame)
	StatsUpdated(StreamingStats)
}

// noopSink discards both notifications; used when no Sink is supplied.
type noopSink struct{}

func (noopSink) FrameReady(EncodedFrame)      {}
func (noopSink) StatsUpdated(StreamingStats) {}

// Engine is the streaming engine. It is a single-producer pipeline:
// ProcessFrame must not be called concurrently with itself, but the
// control operations (RecordNetworkFeedback, SetViewerCount,
// RequestKeyFrame) may be called from another goroutine at any time.
type Engine struct {
	cfg    config.Config
	logger logging.Logger
	sink   Sink

	pool      *pool.Pool
	delta     *delta.Encoder
	netadapt  *netadapt.Adapter
	compress  *compress.Compressor

	mu        sync.Mutex // guards stats and session timing against concurrent control-op reads.
	stats     StreamingStats
	haveAvg   bool
	sessionStart time.Time
	running   bool
	disposed  bool
}

// New constructs an Engine with all four owned components, threading
// cfg.Logger into the delta encoder and the compressor as revid.New
// threads its config's Logger into its pipeline stages. The pool and
// the network adapter take no logger.
func New(cfg config.Config, sink Sink) *Engine {
	if cfg.Logger == nil {
		cfg.Logger = logging.New(logging.Error, io.Discard, true)
	}
	if sink == nil {
		sink = noopSink{}
	}
	cfg.Validate()

	p := pool.New(int(cfg.MaxWidth), int(cfg.MaxHeight), int(cfg.BufferPoolSize))
	de := delta.NewEncoder(delta.Config{
		BlockSize:        int(cfg.BlockSize),
		KeyFrameInterval: int(cfg.KeyFrameInterval),
	}, cfg.Logger)
	na := netadapt.New(netadapt.Config{
		BaseQuality:    int(cfg.BaseQuality),
		MinQuality:     int(cfg.MinQuality),
		MaxQuality:     int(cfg.MaxQuality),
		MaxBitrateMbps: cfg.MaxBitrateMbps,
	})
	cp := compress.New(compress.Config{
		MinQuality: int(cfg.MinQuality),
		MaxQuality: int(cfg.MaxQuality),
	}, compress.Options{AllowRegional: cfg.AllowRegionalEncode}, p, cfg.Logger)

	return &Engine{
		cfg:      cfg,
		logger:   cfg.Logger,
		sink:     sink,
		pool:     p,
		delta:    de,
		netadapt: na,
		compress: cp,
	}
}

// Start resets stats and starts the session timer.
func (e *Engine) Start() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.stats = StreamingStats{}
	e.haveAvg = false
	e.sessionStart = time.Now()
	e.running = true
	e.logger.Info("streaming engine started")
}

// Stop stops the session timer. The engine may be Start()ed again.
func (e *Engine) Stop() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.running = false
	e.logger.Info("streaming engine stopped")
}

// Dispose stops the engine and releases the owned buffer pool. A
// disposed Engine rejects further ProcessFrame calls.
func (e *Engine) Dispose() {
	e.mu.Lock()
	e.running = false
	e.disposed = true
	e.mu.Unlock()
	e.pool.Dispose()
	e.logger.Info("streaming engine disposed")
}

// ProcessFrame implements spec §4.5's nine-step per-frame contract.
// It returns the encoded frame and true, or false if the frame was
// skipped, rejected, or failed to encode.
func (e *Engine) ProcessFrame(f delta.Frame, frameNumber uint64) (EncodedFrame, bool) {
	e.mu.Lock()
	disposed := e.disposed
	e.mu.Unlock()
	if disposed {
		return EncodedFrame{}, false
	}

	start := time.Now()

	d, err := e.delta.ComputeDelta(f, frameNumber)
	if err != nil {
		e.logger.Warning("delta computation failed", "frame", frameNumber, "error", err.Error())
		e.mu.Lock()
		e.stats.EncodingErrors++
		e.mu.Unlock()
		return EncodedFrame{}, false
	}

	if frameNumber > 0 && float64(d.ChangePercentage) < e.cfg.MinChangeThreshold {
		e.mu.Lock()
		e.stats.FramesSkipped++
		e.mu.Unlock()
		return EncodedFrame{}, false
	}

	e.mu.Lock()
	currentBitrate := e.stats.CurrentBitrateMbps
	e.mu.Unlock()
	quality := e.netadapt.OptimalQuality(float64(d.ChangePercentage), d.IsHighMotion, currentBitrate)

	bytes, region := e.compress.Encode(f, d, int(quality))
	if len(bytes) == 0 {
		e.mu.Lock()
		e.stats.EncodingErrors++
		e.mu.Unlock()
		return EncodedFrame{}, false
	}

	elapsedMs := float64(time.Since(start)) / float64(time.Millisecond)

	e.mu.Lock()
	e.stats.FramesProcessed++
	e.stats.TotalBytesSent += uint64(len(bytes))
	e.stats.LastFrameSizeBytes = uint64(len(bytes))
	e.stats.LastEncodingTimeMs = elapsedMs
	if !e.haveAvg {
		e.stats.AverageChangePercent = float64(d.ChangePercentage)
		e.haveAvg = true
	} else {
		e.stats.AverageChangePercent = (1-changeEMAAlpha)*e.stats.AverageChangePercent + changeEMAAlpha*float64(d.ChangePercentage)
	}
	elapsedSessionMs := float64(time.Since(e.sessionStart)) / float64(time.Millisecond)
	if elapsedSessionMs > 0 {
		e.stats.CurrentBitrateMbps = (float64(e.stats.TotalBytesSent) * 8) / (elapsedSessionMs * 1000)
	}
	statsSnapshot := e.stats
	e.mu.Unlock()

	e.sink.StatsUpdated(statsSnapshot)

	out := EncodedFrame{
		Data:             bytes,
		Width:            region.Width,
		Height:           region.Height,
		OffsetX:          region.OffsetX,
		OffsetY:          region.OffsetY,
		FrameNumber:      frameNumber,
		IsKeyFrame:       d.IsKeyFrame,
		QualityUsed:      int(quality),
		ChangePercentage: d.ChangePercentage,
		EncodingTimeMs:   elapsedMs,
	}
	e.sink.FrameReady(out)

	return out, true
}

// RecordNetworkFeedback forwards to the network adapter, per spec
// §4.5's control operations.
func (e *Engine) RecordNetworkFeedback(latencyMs float64, wasDropped bool) {
	e.netadapt.RecordFeedback(latencyMs, wasDropped)
}

// SetViewerCount forwards to the network adapter.
func (e *Engine) SetViewerCount(n int) {
	e.netadapt.SetViewerCount(n)
}

// RequestKeyFrame forwards to the delta encoder.
func (e *Engine) RequestKeyFrame() {
	e.delta.RequestKeyFrame()
}

// Stats returns a snapshot of the current streaming statistics.
func (e *Engine) Stats() StreamingStats {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.stats
}
