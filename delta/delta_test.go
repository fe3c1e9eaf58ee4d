package delta

import (
	"testing"
)

func solidFrame(w, h, stride int, v byte) Frame {
	pix := make([]byte, stride*h)
	for i := range pix {
		pix[i] = v
	}
	return Frame{Width: w, Height: h, Stride: stride, Pix: pix}
}

func TestS1AllBlackStreamSkipsAfterKeyFrame(t *testing.T) {
	e := NewEncoder(Config{}, nil)
	f := solidFrame(640, 480, 640*3, 0)

	for i := uint64(0); i < 5; i++ {
		res, err := e.ComputeDelta(f, i)
		if err != nil {
			t.Fatalf("frame %d: %v", i, err)
		}
		if i == 0 {
			if !res.IsKeyFrame || res.ChangePercentage != 100 {
				t.Fatalf("frame 0: want keyframe at 100%%, got %+v", res)
			}
			continue
		}
		if res.IsKeyFrame {
			t.Fatalf("frame %d: unexpected keyframe", i)
		}
		if res.ChangePercentage != 0 {
			t.Fatalf("frame %d: want 0%% change on identical frame, got %v", i, res.ChangePercentage)
		}
	}
}

func TestS2SingleBlockFlicker(t *testing.T) {
	e := NewEncoder(Config{BlockSize: 16}, nil)
	w, h, stride := 640, 480, 640*3
	f0 := solidFrame(w, h, stride, 0)

	if _, err := e.ComputeDelta(f0, 0); err != nil {
		t.Fatal(err)
	}

	f1 := solidFrame(w, h, stride, 0)
	for y := 0; y < 16; y++ {
		for x := 0; x < 16; x++ {
			p := y*stride + x*3
			f1.Pix[p], f1.Pix[p+1], f1.Pix[p+2] = 255, 255, 255
		}
	}

	res, err := e.ComputeDelta(f1, 1)
	if err != nil {
		t.Fatal(err)
	}
	if res.IsKeyFrame {
		t.Fatal("frame 1 should not be a keyframe")
	}
	wantPct := float32(100.0 / (40.0 * 30.0))
	if diff := res.ChangePercentage - wantPct; diff > 0.01 || diff < -0.01 {
		t.Fatalf("got change pct %v, want ~%v", res.ChangePercentage, wantPct)
	}
	if len(res.ChangedRegions) != 1 {
		t.Fatalf("want a single changed region, got %d", len(res.ChangedRegions))
	}
	want := Rect{0, 0, 16, 16}
	if res.BoundingBox != want {
		t.Fatalf("got bbox %+v, want %+v", res.BoundingBox, want)
	}
	if res.ChangedRegions[0] != want {
		t.Fatalf("got region %+v, want %+v", res.ChangedRegions[0], want)
	}
}

func TestS3ForcedKeyFrameInterval(t *testing.T) {
	e := NewEncoder(Config{BlockSize: 16, KeyFrameInterval: 3}, nil)
	w, h, stride := 64, 64, 64*3

	for i := uint64(0); i < 10; i++ {
		f := solidFrame(w, h, stride, byte(i*7)) // changing content every frame.
		res, err := e.ComputeDelta(f, i)
		if err != nil {
			t.Fatal(err)
		}
		wantKey := i%3 == 0
		if res.IsKeyFrame != wantKey {
			t.Fatalf("frame %d: got keyframe=%v, want %v", i, res.IsKeyFrame, wantKey)
		}
	}
}

func TestS4MotionClassification(t *testing.T) {
	e := NewEncoder(Config{BlockSize: 16}, nil)
	w, h, stride := 160, 160, 160*3 // 10x10 blocks = 100 blocks.

	f := solidFrame(w, h, stride, 0)
	e.ComputeDelta(f, 0) // keyframe.

	var lastHighMotion bool
	for i := uint64(1); i <= 10; i++ {
		next := solidFrame(w, h, stride, 0)
		// Change 20 of 100 blocks (20%) by varying content per frame so
		// checksums differ from the previous frame.
		for b := 0; b < 20; b++ {
			by, bx := b/10, b%10
			for y := by * 16; y < by*16+16; y++ {
				for x := bx * 16; x < bx*16+16; x++ {
					p := y*stride + x*3
					next.Pix[p] = byte(i * 13)
				}
			}
		}
		res, err := e.ComputeDelta(next, i)
		if err != nil {
			t.Fatal(err)
		}
		lastHighMotion = res.IsHighMotion
		if i == 4 && !res.IsHighMotion {
			t.Fatal("want is_high_motion=true by frame 4 of sustained 20% change")
		}
		f = next
		_ = f
	}
	if !lastHighMotion {
		t.Fatal("want is_high_motion=true after sustained 20% change")
	}
}

func TestInvariantChangePercentageRange(t *testing.T) {
	e := NewEncoder(Config{BlockSize: 16}, nil)
	w, h, stride := 64, 64, 64*3
	f0 := solidFrame(w, h, stride, 0)
	e.ComputeDelta(f0, 0)

	f1 := solidFrame(w, h, stride, 1)
	res, err := e.ComputeDelta(f1, 1)
	if err != nil {
		t.Fatal(err)
	}
	if res.ChangePercentage < 0 || res.ChangePercentage > 100 {
		t.Fatalf("change percentage out of range: %v", res.ChangePercentage)
	}
}

func TestInvariantRegionsNonOverlappingWithinBoundingBox(t *testing.T) {
	e := NewEncoder(Config{BlockSize: 16}, nil)
	w, h, stride := 160, 160, 160*3
	f0 := solidFrame(w, h, stride, 0)
	e.ComputeDelta(f0, 0)

	f1 := solidFrame(w, h, stride, 0)
	// Two disjoint changed blocks, far apart, to force >1 region.
	setBlock := func(f Frame, bx, by int, v byte) {
		for y := by * 16; y < by*16+16; y++ {
			for x := bx * 16; x < bx*16+16; x++ {
				p := y*stride + x*3
				f.Pix[p] = v
			}
		}
	}
	setBlock(f1, 0, 0, 255)
	setBlock(f1, 9, 9, 255)

	res, err := e.ComputeDelta(f1, 1)
	if err != nil {
		t.Fatal(err)
	}
	for i, a := range res.ChangedRegions {
		if a.MinX < res.BoundingBox.MinX || a.MinY < res.BoundingBox.MinY ||
			a.MaxX > res.BoundingBox.MaxX || a.MaxY > res.BoundingBox.MaxY {
			t.Fatalf("region %d %+v escapes bounding box %+v", i, a, res.BoundingBox)
		}
		for j, b := range res.ChangedRegions {
			if i == j {
				continue
			}
			if overlaps(a, b) {
				t.Fatalf("regions %d and %d overlap: %+v, %+v", i, j, a, b)
			}
		}
	}
}

func overlaps(a, b Rect) bool {
	return a.MinX < b.MaxX && b.MinX < a.MaxX && a.MinY < b.MaxY && b.MinY < a.MaxY
}

func TestFrameAccessErrorLeavesStateUnchanged(t *testing.T) {
	e := NewEncoder(Config{}, nil)
	good := solidFrame(64, 64, 64*3, 0)
	if _, err := e.ComputeDelta(good, 0); err != nil {
		t.Fatal(err)
	}

	bad := Frame{Width: 64, Height: 64, Stride: 64 * 3, Pix: make([]byte, 10)}
	if _, err := e.ComputeDelta(bad, 1); err == nil {
		t.Fatal("want error for undersized pixel buffer")
	}

	// Previous-frame state should be untouched: an identical frame to
	// `good` should still read as a (near-)zero-change delta.
	res, err := e.ComputeDelta(good, 2)
	if err != nil {
		t.Fatal(err)
	}
	if res.IsKeyFrame {
		t.Fatal("state should not have reset to needing a keyframe")
	}
}

func TestRequestKeyFrameAndReset(t *testing.T) {
	e := NewEncoder(Config{}, nil)
	f := solidFrame(64, 64, 64*3, 0)
	e.ComputeDelta(f, 0)

	e.RequestKeyFrame()
	res, err := e.ComputeDelta(f, 1)
	if err != nil {
		t.Fatal(err)
	}
	if !res.IsKeyFrame {
		t.Fatal("want forced keyframe")
	}

	e.Reset()
	res, err = e.ComputeDelta(f, 2)
	if err != nil {
		t.Fatal(err)
	}
	if !res.IsKeyFrame {
		t.Fatal("want keyframe immediately after Reset")
	}
}
