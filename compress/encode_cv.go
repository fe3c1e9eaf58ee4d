//go:build withcv

/*
DESCRIPTION
  encode_cv.go provides an alternate JPEG-encode backend using gocv, in
  place of the standard library image/jpeg path, behind the same
  Compressor contract. This mirrors the teacher's withcv-gated filters
  (filter/diff.go, filter/motion.go), which swap in a gocv-backed
  algorithm behind the same interface when built with -tags withcv.

AUTHORS
  screencast contributors

LICENSE
  See repository root.
*/

package compress

import (
	"gocv.io/x/gocv"

	"github.com/parleyhub/screencast/delta"
)

// EncodeCV encodes frame using gocv's IMEncodeWithParams instead of the
// standard library image/jpeg path. It is the "hardware/accelerated
// backend replaces the compressor" hook referenced in spec §1. It uses
// the same quality selection as Encode, but always encodes the full
// frame, returns no Region, does not borrow a pool scratch stream, and
// ignores SetJPEGAvailable.
func (c *Compressor) EncodeCV(f delta.Frame, d delta.Result, requestedQuality int) []byte {
	quality := c.SelectQuality(requestedQuality, d)
	memoQuality := roundTo5(quality, memoMinQuality, memoMaxQuality)

	if f.Width <= 0 || f.Height <= 0 || len(f.Pix) < f.Stride*f.Height {
		return nil
	}

	mat, err := gocv.NewMatFromBytes(f.Height, f.Width, gocv.MatTypeCV8UC3, rgbToBGR(f))
	if err != nil {
		c.logger.Error("gocv mat construction failed", "error", err.Error())
		return nil
	}
	defer mat.Close()

	buf, err := gocv.IMEncodeWithParams(gocv.JPEGFileExt, mat, []int{gocv.IMWriteJpegQuality, memoQuality})
	if err != nil {
		c.logger.Error("gocv jpeg encode failed", "error", err.Error())
		return nil
	}
	defer buf.Close()

	out := make([]byte, len(buf.GetBytes()))
	copy(out, buf.GetBytes())
	return out
}

// rgbToBGR converts frame's packed RGB rows (respecting stride) into a
// tightly packed BGR buffer, the channel order gocv/OpenCV expects.
func rgbToBGR(f delta.Frame) []byte {
	out := make([]byte, f.Width*f.Height*3)
	for y := 0; y < f.Height; y++ {
		srcRow := y * f.Stride
		dstRow := y * f.Width * 3
		for x := 0; x < f.Width; x++ {
			sp := srcRow + x*3
			dp := dstRow + x*3
			out[dp], out[dp+1], out[dp+2] = f.Pix[sp+2], f.Pix[sp+1], f.Pix[sp]
		}
	}
	return out
}
