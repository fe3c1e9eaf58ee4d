/*
NAME
  delta.go

DESCRIPTION
  Implements the delta encoder (C2): cheap block-checksum change
  detection between successive frames, keyframe scheduling, bounding
  box and changed-region extraction, and motion-history tracking.

AUTHORS
  screencast contributors

LICENSE
  See repository root.
*/

// Package delta detects changed screen regions between successive
// frames using subsampled per-block FNV-1a checksums, and decides
// when a full keyframe is required.
package delta

import (
	"io"
	"sync"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/stat"

	"github.com/ausocean/utils/logging"
)

// Defaults, per spec §3.
const (
	DefaultBlockSize         = 16
	DefaultKeyFrameInterval  = 300
	DefaultSubsampleStride   = 2
	changeHistoryCap         = 10
	highMotionMinSamples     = 3
	highMotionMeanThreshold  = 15
)

// FNV-1a 32-bit constants, per the spec's glossary.
const (
	fnvOffsetBasis uint32 = 0x811C9DC5
	fnvPrime       uint32 = 0x01000193
)

// ErrFrameAccess is returned when the frame's pixel buffer cannot cover
// its declared stride x height.
var ErrFrameAccess = errors.New("delta: frame buffer too short for stride*height")

// Frame is a captured raster in 24-bit packed RGB, as described in
// spec §6.
type Frame struct {
	Width, Height int
	Stride        int
	Pix           []byte
}

// Rect is an axis-aligned pixel rectangle, half-open on Max.
type Rect struct {
	MinX, MinY, MaxX, MaxY int
}

// Empty reports whether r covers no area.
func (r Rect) Empty() bool { return r.MaxX <= r.MinX || r.MaxY <= r.MinY }

// Result is the per-frame output of ComputeDelta, per spec §3.
type Result struct {
	IsKeyFrame       bool
	ChangePercentage float32
	IsHighMotion     bool
	BoundingBox      Rect
	ChangedRegions   []Rect
}

// Config holds the subset of stream/config.Config that the delta
// encoder needs. It is duplicated here (rather than importing
// stream/config) to keep delta a leaf package, per the component
// dependency order in spec §2.
type Config struct {
	BlockSize         int
	KeyFrameInterval  int
	SubsampleStride   int // Pixel stride used when subsampling a block for checksums; spec §9 Open Question 2.
}

// Encoder is the delta encoder. It is not safe for concurrent use by
// multiple goroutines across frames; per spec §5 the pipeline is
// single-producer and Encoder retains cross-frame state.
type Encoder struct {
	mu     sync.Mutex // guards RequestKeyFrame/Reset racing with ComputeDelta from a control-plane goroutine.
	cfg    Config
	logger logging.Logger

	blocksX, blocksY int
	checksums        [2][]uint32 // double-buffered: current write target, and the previous frame's data.
	cur              int         // index into checksums of the buffer ComputeDelta is about to write.
	haveChecksums     bool
	prevWidth, prevHeight int

	framesSinceKeyFrame int
	forceKeyFrame       bool
	firstFrame          bool

	changeHistory []float32
}

// NewEncoder returns a new Encoder. logger may be nil, in which case a
// no-op logger is used.
func NewEncoder(cfg Config, logger logging.Logger) *Encoder {
	if cfg.BlockSize <= 0 {
		cfg.BlockSize = DefaultBlockSize
	}
	if cfg.KeyFrameInterval <= 0 {
		cfg.KeyFrameInterval = DefaultKeyFrameInterval
	}
	if cfg.SubsampleStride <= 0 {
		cfg.SubsampleStride = DefaultSubsampleStride
	}
	if logger == nil {
		logger = logging.New(logging.Error, io.Discard, true)
	}
	return &Encoder{cfg: cfg, logger: logger, firstFrame: true}
}

// RequestKeyFrame forces the next ComputeDelta call to emit a keyframe.
func (e *Encoder) RequestKeyFrame() {
	e.mu.Lock()
	e.forceKeyFrame = true
	e.mu.Unlock()
}

// Reset drops all previous-frame state and history, as if Encoder were
// newly constructed.
func (e *Encoder) Reset() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.checksums[0] = nil
	e.checksums[1] = nil
	e.cur = 0
	e.haveChecksums = false
	e.prevWidth, e.prevHeight = 0, 0
	e.framesSinceKeyFrame = 0
	e.forceKeyFrame = false
	e.firstFrame = true
	e.changeHistory = nil
}

// ComputeDelta computes the Result for frame, per spec §4.2. frameNumber
// is informational only (the caller's monotonic counter); Encoder keeps
// its own internal cross-frame state.
func (e *Encoder) ComputeDelta(f Frame, frameNumber uint64) (Result, error) {
	if f.Stride < 3*f.Width || len(f.Pix) < f.Stride*f.Height {
		return Result{}, errors.Wrapf(ErrFrameAccess, "frame %d: stride=%d height=%d len(pix)=%d", frameNumber, f.Stride, f.Height, len(f.Pix))
	}

	e.mu.Lock()
	force := e.forceKeyFrame
	e.forceKeyFrame = false
	e.mu.Unlock()

	blocksX := ceilDiv(f.Width, e.cfg.BlockSize)
	blocksY := ceilDiv(f.Height, e.cfg.BlockSize)

	needKeyFrame := force ||
		e.firstFrame ||
		f.Width != e.prevWidth || f.Height != e.prevHeight ||
		e.framesSinceKeyFrame >= e.cfg.KeyFrameInterval

	cur := make([]uint32, blocksX*blocksY)
	e.computeChecksums(f, blocksX, blocksY, cur)

	var res Result
	if needKeyFrame {
		e.logger.Debug("emitting keyframe", "frame", frameNumber, "forced", force, "firstFrame", e.firstFrame)
		res = Result{
			IsKeyFrame:       true,
			ChangePercentage: 100,
			BoundingBox:      Rect{0, 0, f.Width, f.Height},
		}
		res.ChangedRegions = []Rect{res.BoundingBox}
		e.framesSinceKeyFrame = 0
	} else {
		prev := e.checksums[1-e.cur]
		changed := make([]bool, blocksX*blocksY)
		changedCount := 0
		bbox := Rect{MinX: blocksX * e.cfg.BlockSize, MinY: blocksY * e.cfg.BlockSize, MaxX: -1, MaxY: -1}
		for by := 0; by < blocksY; by++ {
			for bx := 0; bx < blocksX; bx++ {
				idx := by*blocksX + bx
				isChanged := len(prev) < len(cur) || prev[idx] != cur[idx]
				if !isChanged {
					continue
				}
				changed[idx] = true
				changedCount++
				x0, y0 := bx*e.cfg.BlockSize, by*e.cfg.BlockSize
				x1, y1 := min(x0+e.cfg.BlockSize, f.Width), min(y0+e.cfg.BlockSize, f.Height)
				if x0 < bbox.MinX {
					bbox.MinX = x0
				}
				if y0 < bbox.MinY {
					bbox.MinY = y0
				}
				if x1 > bbox.MaxX {
					bbox.MaxX = x1
				}
				if y1 > bbox.MaxY {
					bbox.MaxY = y1
				}
			}
		}
		if changedCount == 0 {
			bbox = Rect{}
		}
		res = Result{
			IsKeyFrame:       false,
			ChangePercentage: 100 * float32(changedCount) / float32(blocksX*blocksY),
			BoundingBox:      bbox,
			ChangedRegions:   mergeRegions(changed, blocksX, blocksY, e.cfg.BlockSize, f.Width, f.Height),
		}
	}
	// Counts every frame, keyframes included, so a keyframe is emitted
	// every KeyFrameInterval frames.
	e.framesSinceKeyFrame++

	e.checksums[e.cur] = cur
	e.cur = 1 - e.cur
	e.blocksX, e.blocksY = blocksX, blocksY
	e.haveChecksums = true
	e.prevWidth, e.prevHeight = f.Width, f.Height
	e.firstFrame = false

	e.pushHistory(res.ChangePercentage)
	res.IsHighMotion = e.isHighMotion()

	return res, nil
}

// computeChecksums fills out (len blocksX*blocksY) with a subsampled
// FNV-1a hash per block.
func (e *Encoder) computeChecksums(f Frame, blocksX, blocksY int, out []uint32) {
	stride := e.cfg.SubsampleStride
	for by := 0; by < blocksY; by++ {
		y0, y1 := by*e.cfg.BlockSize, min(by*e.cfg.BlockSize+e.cfg.BlockSize, f.Height)
		for bx := 0; bx < blocksX; bx++ {
			x0, x1 := bx*e.cfg.BlockSize, min(bx*e.cfg.BlockSize+e.cfg.BlockSize, f.Width)
			h := fnvOffsetBasis
			for y := y0; y < y1; y += stride {
				row := y * f.Stride
				for x := x0; x < x1; x += stride {
					p := row + x*3
					h = (h ^ uint32(f.Pix[p])) * fnvPrime
					h = (h ^ uint32(f.Pix[p+1])) * fnvPrime
					h = (h ^ uint32(f.Pix[p+2])) * fnvPrime
				}
			}
			out[by*blocksX+bx] = h
		}
	}
}

// pushHistory appends pct to the bounded change-history FIFO, dropping
// the oldest sample once at capacity.
func (e *Encoder) pushHistory(pct float32) {
	e.changeHistory = append(e.changeHistory, pct)
	if len(e.changeHistory) > changeHistoryCap {
		e.changeHistory = e.changeHistory[len(e.changeHistory)-changeHistoryCap:]
	}
}

// isHighMotion reports whether the rolling mean change percentage over
// the last >=3 frames exceeds the high-motion threshold.
func (e *Encoder) isHighMotion() bool {
	if len(e.changeHistory) < highMotionMinSamples {
		return false
	}
	xs := make([]float64, len(e.changeHistory))
	for i, v := range e.changeHistory {
		xs[i] = float64(v)
	}
	return stat.Mean(xs, nil) > highMotionMeanThreshold
}

// mergeRegions implements the greedy rectangular merge of spec §4.2
// step 7: row-major scan, expand right then down, mark visited, clip to
// the frame bounds.
func mergeRegions(changed []bool, blocksX, blocksY, blockSize, w, h int) []Rect {
	visited := make([]bool, len(changed))
	var regions []Rect
	for by := 0; by < blocksY; by++ {
		for bx := 0; bx < blocksX; bx++ {
			idx := by*blocksX + bx
			if !changed[idx] || visited[idx] {
				continue
			}
			width := 1
			for bx+width < blocksX {
				i := by*blocksX + bx + width
				if !changed[i] || visited[i] {
					break
				}
				width++
			}
			height := 1
		outer:
			for by+height < blocksY {
				for dx := 0; dx < width; dx++ {
					i := (by+height)*blocksX + bx + dx
					if !changed[i] || visited[i] {
						break outer
					}
				}
				height++
			}
			for dy := 0; dy < height; dy++ {
				for dx := 0; dx < width; dx++ {
					visited[(by+dy)*blocksX+bx+dx] = true
				}
			}
			regions = append(regions, Rect{
				MinX: bx * blockSize,
				MinY: by * blockSize,
				MaxX: min(bx*blockSize+width*blockSize, w),
				MaxY: min(by*blockSize+height*blockSize, h),
			})
		}
	}
	return regions
}

func ceilDiv(a, b int) int { return (a + b - 1) / b }

func min(a, b int) int {
	if a < b {
		return a
	}
	return b
}
