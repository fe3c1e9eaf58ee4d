/*
NAME
  compress.go

DESCRIPTION
  Implements the smart compressor (C3): per-frame JPEG-style quality
  selection from content signals, memoized at five-unit granularity,
  with an optional cropped regional-delta encode path.

AUTHORS
  screencast contributors

LICENSE
  See repository root.
*/

// Package compress selects a per-frame encode quality from delta-encoder
// signals and produces a still-image byte stream for that frame.
package compress

import (
	"image"
	"image/color"
	"image/jpeg"
	"io"

	"github.com/ausocean/utils/logging"
	"github.com/parleyhub/screencast/delta"
	"github.com/parleyhub/screencast/pool"
)

// Quality adjustment deltas, per spec §4.3.
const (
	highMotionPenalty   = 20
	lowChangeBonus       = 15
	lowChangeThreshold   = 5
	keyFrameBonus        = 10
	regionalMaxRegions   = 10
	regionalMaxAreaRatio = 0.7

	qualityGranularity = 5
	memoMinQuality      = 30
	memoMaxQuality      = 95
)

// Options configures optional compressor behavior.
type Options struct {
	// AllowRegional permits the compressor to crop to the delta
	// bounding box and encode only that sub-image when spec §4.3's
	// conditions hold. This is an optimization permitted, not
	// required, by the spec; output still carries the same
	// byte-stream contract, with the crop offset in metadata.
	AllowRegional bool
}

// Region describes a cropped regional encode, returned alongside the
// encoded bytes when the regional path was taken.
type Region struct {
	OffsetX, OffsetY int
	Width, Height    int
}

// Config holds the quality bounds the compressor clamps to.
type Config struct {
	MinQuality, MaxQuality int
}

// Compressor is the smart compressor. It borrows and returns a scratch
// stream from pool on every Encode call, including error paths.
type Compressor struct {
	cfg     Config
	opts    Options
	pool    *pool.Pool
	logger  logging.Logger
	jpegAvailable bool
}

// New returns a new Compressor. logger may be nil.
func New(cfg Config, opts Options, p *pool.Pool, logger logging.Logger) *Compressor {
	if cfg.MinQuality <= 0 {
		cfg.MinQuality = 1
	}
	if cfg.MaxQuality <= 0 || cfg.MaxQuality > 100 {
		cfg.MaxQuality = 100
	}
	if cfg.MinQuality > cfg.MaxQuality {
		cfg.MinQuality, cfg.MaxQuality = cfg.MaxQuality, cfg.MinQuality
	}
	if logger == nil {
		logger = logging.New(logging.Error, io.Discard, true)
	}
	return &Compressor{cfg: cfg, opts: opts, pool: p, logger: logger, jpegAvailable: true}
}

// SetJPEGAvailable toggles whether a JPEG-capable encoder backend is
// considered present. It exists so callers (and tests) can exercise the
// EncoderUnavailable fallback path of spec §7; a real deployment always
// has the standard library image/jpeg encoder available, so this
// defaults to true.
func (c *Compressor) SetJPEGAvailable(ok bool) { c.jpegAvailable = ok }

// SelectQuality applies the content-aware adjustment of spec §4.3 to
// requestedQuality, clamping to [MinQuality, MaxQuality] after each
// adjustment in turn (not just once at the end), so a high-motion
// keyframe floors at MinQuality before the keyframe bonus lifts it back
// off the floor.
func (c *Compressor) SelectQuality(requested int, d delta.Result) int {
	q := requested
	switch {
	case d.IsHighMotion:
		q -= highMotionPenalty
	case d.ChangePercentage < lowChangeThreshold:
		q += lowChangeBonus
	}
	q = c.clamp(q)
	if d.IsKeyFrame {
		q += keyFrameBonus
		q = c.clamp(q)
	}
	return q
}

// clamp bounds q to [MinQuality, MaxQuality].
func (c *Compressor) clamp(q int) int {
	if q < c.cfg.MinQuality {
		return c.cfg.MinQuality
	}
	if q > c.cfg.MaxQuality {
		return c.cfg.MaxQuality
	}
	return q
}

// Encode encodes frame at a quality derived from requestedQuality and
// delta, returning the encoded byte stream and the region it covers
// within the original frame (the full frame, offset zero, unless the
// regional path fired). On unrecoverable encoder failure it returns a
// nil slice and the zero Region (the caller increments its own error
// counter; Encode itself never fails the pipeline).
func (c *Compressor) Encode(f delta.Frame, d delta.Result, requestedQuality int) ([]byte, Region) {
	quality := c.SelectQuality(requestedQuality, d)
	memoQuality := roundTo5(quality, memoMinQuality, memoMaxQuality)

	scratch := c.pool.RentStream()
	defer c.pool.ReturnStream(scratch)

	if !c.jpegAvailable {
		c.logger.Warning("no jpeg encoder available, using default quality")
		memoQuality = roundTo5(c.cfg.MaxQuality, memoMinQuality, memoMaxQuality)
	}

	img, region, ok := c.selectSourceImage(f, d)
	if !ok {
		return nil, Region{}
	}

	if err := jpeg.Encode(scratch, img, &jpeg.Options{Quality: memoQuality}); err != nil {
		c.logger.Error("jpeg encode failed", "error", err.Error())
		return nil, Region{}
	}

	out := make([]byte, len(scratch.Bytes()))
	copy(out, scratch.Bytes())
	return out, region
}

// selectSourceImage decides between the full-frame path and, when
// permitted and the spec §4.3 conditions hold, the cropped regional
// path. It returns the image to encode and the region it covers within
// the original frame (offset zero, full dimensions, for the full-frame
// path).
func (c *Compressor) selectSourceImage(f delta.Frame, d delta.Result) (image.Image, Region, bool) {
	if f.Width <= 0 || f.Height <= 0 || len(f.Pix) < f.Stride*f.Height {
		return nil, Region{}, false
	}

	full := &frameImage{f: f}
	fullRegion := Region{Width: f.Width, Height: f.Height}

	if !c.opts.AllowRegional || !d.IsHighMotion || d.BoundingBox.Empty() {
		return full, fullRegion, true
	}
	n := len(d.ChangedRegions)
	area := (d.BoundingBox.MaxX - d.BoundingBox.MinX) * (d.BoundingBox.MaxY - d.BoundingBox.MinY)
	if n < 1 || n >= regionalMaxRegions || float64(area) > regionalMaxAreaRatio*float64(f.Width*f.Height) {
		return full, fullRegion, true
	}

	b := d.BoundingBox
	region := Region{OffsetX: b.MinX, OffsetY: b.MinY, Width: b.MaxX - b.MinX, Height: b.MaxY - b.MinY}
	return &croppedImage{f: f, region: region}, region, true
}

// roundTo5 rounds q to the nearest multiple of 5, clamped to [lo, hi].
// This bounds the number of distinct jpeg.Options values the encoder
// sees across a session, per spec §4.3 "memoized at five-unit
// granularity".
func roundTo5(q, lo, hi int) int {
	r := ((q + qualityGranularity/2) / qualityGranularity) * qualityGranularity
	if r < lo {
		r = lo
	}
	if r > hi {
		r = hi
	}
	return r
}

// frameImage adapts a delta.Frame (packed 24-bit RGB) to image.Image
// without copying pixel data.
type frameImage struct{ f delta.Frame }

func (fi *frameImage) ColorModel() color.Model { return color.RGBAModel }
func (fi *frameImage) Bounds() image.Rectangle {
	return image.Rect(0, 0, fi.f.Width, fi.f.Height)
}
func (fi *frameImage) At(x, y int) color.Color {
	p := y*fi.f.Stride + x*3
	return color.RGBA{fi.f.Pix[p], fi.f.Pix[p+1], fi.f.Pix[p+2], 0xff}
}

// croppedImage adapts a sub-rectangle of a delta.Frame to image.Image,
// for the optional regional encode path.
type croppedImage struct {
	f      delta.Frame
	region Region
}

func (ci *croppedImage) ColorModel() color.Model { return color.RGBAModel }
func (ci *croppedImage) Bounds() image.Rectangle {
	return image.Rect(0, 0, ci.region.Width, ci.region.Height)
}
func (ci *croppedImage) At(x, y int) color.Color {
	p := (y+ci.region.OffsetY)*ci.f.Stride + (x+ci.region.OffsetX)*3
	return color.RGBA{ci.f.Pix[p], ci.f.Pix[p+1], ci.f.Pix[p+2], 0xff}
}
