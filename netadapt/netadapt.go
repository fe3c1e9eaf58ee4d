/*
NAME
  netadapt.go

DESCRIPTION
  Implements the network adapter (C4): rolling latency/drop statistics,
  a network-safe quality ceiling, ±5-per-transition smoothing gated to
  once per 1000ms of wall time, and viewer fan-out scaling.

AUTHORS
  screencast contributors

LICENSE
  See repository root.
*/

// Package netadapt derives a network-safe encode quality from rolling
// latency and drop feedback, smoothing transitions and scaling down for
// large viewer counts.
package netadapt

import (
	"sync"
	"time"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// Bounds and constants, per spec §4.4.
const (
	historyCap = 30

	smoothingWindow = 1000 * time.Millisecond
	maxQualityStep  = 5

	dropRateHighThreshold = 0.10
	dropRateHighPenalty   = 20
	dropRateLowThreshold  = 0.05
	dropRateLowPenalty    = 10

	avgLatencyHighThreshold = 200
	avgLatencyHighPenalty   = 15
	avgLatencyMidThreshold  = 100
	avgLatencyMidPenalty    = 5
	avgLatencyLowThreshold  = 50
	avgLatencyLowBonus      = 10
	avgLatencyLowDropRate   = 0.02

	bitrateSaturationRatio = 0.9
	bitrateSaturationPenalty = 10

	viewerScaleThreshold = 5
	viewerScaleFactor    = 2

	contentHighMotionPenalty = 15
	contentLowChangeBonus    = 10
	contentLowChangeThreshold = 2

	consecutiveDropLimit   = 3
	consecutiveDropPenalty = 10
)

// Config holds the subset of stream/config.Config the network adapter
// needs. Duplicated here, as in delta.Config, to keep netadapt a leaf
// package per spec §2's dependency order.
type Config struct {
	BaseQuality, MinQuality, MaxQuality int
	MaxBitrateMbps                      float64
}

// Adapter is the network adapter. Its feedback and viewer-count
// mutators are safe for concurrent use from a different goroutine than
// the one driving OptimalQuality, per spec §5.
type Adapter struct {
	mu  sync.Mutex
	cfg Config

	latencyHistory []float64
	dropHistory    []bool

	viewerCount        int
	currentBitrateMbps float64
	consecutiveDrops    int

	currentQuality       float64
	haveQuality          bool
	lastQualityChangeTime time.Time
}

// New returns a new Adapter. Quality bounds are clamped and reordered
// if misconfigured, per spec §7's InvalidConfig handling.
func New(cfg Config) *Adapter {
	if cfg.MinQuality <= 0 {
		cfg.MinQuality = 1
	}
	if cfg.MaxQuality <= 0 || cfg.MaxQuality > 100 {
		cfg.MaxQuality = 100
	}
	if cfg.MinQuality > cfg.MaxQuality {
		cfg.MinQuality, cfg.MaxQuality = cfg.MaxQuality, cfg.MinQuality
	}
	if cfg.BaseQuality < cfg.MinQuality {
		cfg.BaseQuality = cfg.MinQuality
	}
	if cfg.BaseQuality > cfg.MaxQuality {
		cfg.BaseQuality = cfg.MaxQuality
	}
	return &Adapter{cfg: cfg, viewerCount: 1}
}

// RecordFeedback appends to the bounded latency/drop FIFOs (cap 30,
// oldest dropped) and applies the consecutive-drop emergency cut of
// spec §4.4.
func (a *Adapter) RecordFeedback(latencyMs float64, dropped bool) {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.latencyHistory = pushBounded(a.latencyHistory, latencyMs, historyCap)
	a.dropHistory = pushBoundedBool(a.dropHistory, dropped, historyCap)

	if dropped {
		a.consecutiveDrops++
		if a.consecutiveDrops > consecutiveDropLimit {
			q := a.initQualityLocked() - consecutiveDropPenalty
			if q < float64(a.cfg.MinQuality) {
				q = float64(a.cfg.MinQuality)
			}
			a.currentQuality = q
			a.haveQuality = true
			a.lastQualityChangeTime = time.Time{} // restart the transition timer.
		}
	} else {
		a.consecutiveDrops = 0
	}
}

// SetViewerCount clamps n to >=1 and records it.
func (a *Adapter) SetViewerCount(n int) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if n < 1 {
		n = 1
	}
	a.viewerCount = n
}

// OptimalQuality implements spec §4.4's full decision: within the
// 1000ms smoothing window it returns the current smoothed quality with
// only a content adjustment applied; once the window elapses it
// recomputes the network-derived ceiling, applies viewer scaling,
// steps current_quality toward it by at most ±5, and applies the
// content adjustment on top.
func (a *Adapter) OptimalQuality(changePercent float64, isHighMotion bool, currentBitrateMbps float64) uint8 {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.currentBitrateMbps = currentBitrateMbps
	content := a.contentAdjustment(changePercent, isHighMotion)

	if a.haveQuality && time.Since(a.lastQualityChangeTime) < smoothingWindow {
		q := a.clamp(a.currentQuality + content)
		return uint8(q)
	}

	networkQuality := a.clamp(float64(a.cfg.BaseQuality) +
		a.dropRatePenalty() +
		a.latencyAdjustment() +
		a.bitrateAdjustment())

	viewerAdjusted := networkQuality
	if a.viewerCount > viewerScaleThreshold {
		viewerAdjusted -= viewerScaleFactor * float64(a.viewerCount-viewerScaleThreshold)
		if viewerAdjusted < float64(a.cfg.MinQuality) {
			viewerAdjusted = float64(a.cfg.MinQuality)
		}
	}

	base := a.initQualityLocked()
	stepped := a.clamp(stepToward(base, viewerAdjusted, maxQualityStep))

	// current_quality persists only the smoothed, content-free value;
	// the content adjustment affects the returned quality but must not
	// be folded into the state step 7 steps toward next time, or it
	// compounds across slow-path calls and the fast path double-counts
	// it.
	a.currentQuality = stepped
	a.haveQuality = true
	a.lastQualityChangeTime = time.Now()
	return uint8(a.clamp(stepped + content))
}

// initQualityLocked returns the adapter's current smoothed quality,
// seeding it from base_quality on first use rather than from zero (to
// avoid the cold-start bias the spec's design notes warn against).
// Callers must hold a.mu.
func (a *Adapter) initQualityLocked() float64 {
	if !a.haveQuality {
		a.currentQuality = float64(a.cfg.BaseQuality)
	}
	return a.currentQuality
}

// contentAdjustment implements the "-15 for high motion; +10 for
// change<2%" adjustment shared by the fast and slow paths.
func (a *Adapter) contentAdjustment(changePercent float64, isHighMotion bool) float64 {
	switch {
	case isHighMotion:
		return -contentHighMotionPenalty
	case changePercent < contentLowChangeThreshold:
		return contentLowChangeBonus
	}
	return 0
}

// dropRatePenalty computes the drop-rate step of spec §4.4 step 2.
func (a *Adapter) dropRatePenalty() float64 {
	rate := a.dropRate()
	switch {
	case rate > dropRateHighThreshold:
		return -dropRateHighPenalty
	case rate > dropRateLowThreshold:
		return -dropRateLowPenalty
	}
	return 0
}

// latencyAdjustment computes the average-latency step of spec §4.4
// step 3.
func (a *Adapter) latencyAdjustment() float64 {
	avg := a.averageLatency()
	rate := a.dropRate()
	switch {
	case avg > avgLatencyHighThreshold:
		return -avgLatencyHighPenalty
	case avg > avgLatencyMidThreshold:
		return -avgLatencyMidPenalty
	case avg < avgLatencyLowThreshold && rate < avgLatencyLowDropRate:
		return avgLatencyLowBonus
	}
	return 0
}

// bitrateAdjustment computes the saturation step of spec §4.4 step 4.
func (a *Adapter) bitrateAdjustment() float64 {
	if a.cfg.MaxBitrateMbps > 0 && a.currentBitrateMbps > bitrateSaturationRatio*a.cfg.MaxBitrateMbps {
		return -bitrateSaturationPenalty
	}
	return 0
}

// dropRate returns count(true)/len(drop_history), or 0 if empty.
func (a *Adapter) dropRate() float64 {
	if len(a.dropHistory) == 0 {
		return 0
	}
	drops := make([]float64, len(a.dropHistory))
	for i, d := range a.dropHistory {
		if d {
			drops[i] = 1
		}
	}
	return floats.Sum(drops) / float64(len(a.dropHistory))
}

// averageLatency returns the mean of latency_history, or 0 if empty.
func (a *Adapter) averageLatency() float64 {
	if len(a.latencyHistory) == 0 {
		return 0
	}
	return stat.Mean(a.latencyHistory, nil)
}

// clamp bounds q to [min_quality, max_quality].
func (a *Adapter) clamp(q float64) float64 {
	if q < float64(a.cfg.MinQuality) {
		return float64(a.cfg.MinQuality)
	}
	if q > float64(a.cfg.MaxQuality) {
		return float64(a.cfg.MaxQuality)
	}
	return q
}

// stepToward moves from toward target by at most maxStep.
func stepToward(from, target, maxStep float64) float64 {
	d := target - from
	if d > maxStep {
		d = maxStep
	}
	if d < -maxStep {
		d = -maxStep
	}
	return from + d
}

// pushBounded appends v to h, dropping the oldest entry once len(h)
// reaches cap.
func pushBounded(h []float64, v float64, cap int) []float64 {
	h = append(h, v)
	if len(h) > cap {
		h = h[len(h)-cap:]
	}
	return h
}

func pushBoundedBool(h []bool, v bool, cap int) []bool {
	h = append(h, v)
	if len(h) > cap {
		h = h[len(h)-cap:]
	}
	return h
}
