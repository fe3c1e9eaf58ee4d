package stream

import (
	"testing"

	"github.com/parleyhub/screencast/delta"
	"github.com/parleyhub/screencast/stream/config"
)

type recordingSink struct {
	events []string
	frames []EncodedFrame
	stats  []StreamingStats
}

func (s *recordingSink) FrameReady(f EncodedFrame) {
	s.events = append(s.events, "frame")
	s.frames = append(s.frames, f)
}

func (s *recordingSink) StatsUpdated(st StreamingStats) {
	s.events = append(s.events, "stats")
	s.stats = append(s.stats, st)
}

func solidFrame(w, h, stride int, v byte) delta.Frame {
	pix := make([]byte, stride*h)
	for i := range pix {
		pix[i] = v
	}
	return delta.Frame{Width: w, Height: h, Stride: stride, Pix: pix}
}

func testConfig() config.Config {
	return config.Config{
		MaxWidth: 640, MaxHeight: 480,
		BaseQuality: 70, MinQuality: 1, MaxQuality: 100,
		MinChangeThreshold: 0.1,
		KeyFrameInterval:   300,
		BlockSize:          16,
		MaxBitrateMbps:     8,
		BufferPoolSize:     4,
	}
}

func TestS1AllBlackStreamSkipsAfterKeyFrame(t *testing.T) {
	sink := &recordingSink{}
	e := New(testConfig(), sink)
	e.Start()

	f := solidFrame(640, 480, 640*3, 0)
	for i := uint64(0); i < 5; i++ {
		out, ok := e.ProcessFrame(f, i)
		if i == 0 {
			if !ok || !out.IsKeyFrame {
				t.Fatalf("frame 0: want emitted keyframe, got ok=%v out=%+v", ok, out)
			}
			continue
		}
		if ok {
			t.Fatalf("frame %d: want skipped, got emitted %+v", i, out)
		}
	}

	st := e.Stats()
	if st.FramesProcessed != 1 || st.FramesSkipped != 4 {
		t.Fatalf("got processed=%d skipped=%d, want 1/4", st.FramesProcessed, st.FramesSkipped)
	}
}

func TestStatsUpdatedFiresBeforeFrameReady(t *testing.T) {
	sink := &recordingSink{}
	e := New(testConfig(), sink)
	e.Start()

	f := solidFrame(64, 64, 64*3, 0)
	if _, ok := e.ProcessFrame(f, 0); !ok {
		t.Fatal("expected keyframe to be emitted")
	}

	if len(sink.events) != 2 || sink.events[0] != "stats" || sink.events[1] != "frame" {
		t.Fatalf("got event order %v, want [stats frame]", sink.events)
	}
}

func TestFrameNumbersStrictlyMonotonicAcrossSkips(t *testing.T) {
	sink := &recordingSink{}
	cfg := testConfig()
	cfg.MinChangeThreshold = 0.05 // S2's raised threshold, so the single-block flicker clears it.
	e := New(cfg, sink)
	e.Start()

	w, h, stride := 160, 160, 160*3
	f := solidFrame(w, h, stride, 0)
	e.ProcessFrame(f, 0) // keyframe, emitted.
	e.ProcessFrame(f, 1) // identical content, below threshold, skipped.

	f2 := solidFrame(w, h, stride, 0)
	for y := 0; y < 16; y++ {
		for x := 0; x < 16; x++ {
			p := y*stride + x*3
			f2.Pix[p], f2.Pix[p+1], f2.Pix[p+2] = 255, 255, 255
		}
	}
	out, ok := e.ProcessFrame(f2, 2)
	if !ok {
		t.Fatal("expected frame 2 to be emitted with lowered threshold")
	}
	if out.FrameNumber != 2 {
		t.Fatalf("got frame_number %d, want 2", out.FrameNumber)
	}

	var last uint64
	for i, fr := range sink.frames {
		if i > 0 && fr.FrameNumber <= last {
			t.Fatalf("frame numbers not strictly increasing: %v", sink.frames)
		}
		last = fr.FrameNumber
	}
}

func TestS3ForcedKeyFrameInterval(t *testing.T) {
	sink := &recordingSink{}
	cfg := testConfig()
	cfg.KeyFrameInterval = 3
	e := New(cfg, sink)
	e.Start()

	w, h, stride := 64, 64, 64*3
	for i := uint64(0); i < 10; i++ {
		f := solidFrame(w, h, stride, byte(i*7))
		out, ok := e.ProcessFrame(f, i)
		if !ok {
			t.Fatalf("frame %d: expected emission (content changes every frame)", i)
		}
		wantKey := i%3 == 0
		if out.IsKeyFrame != wantKey {
			t.Fatalf("frame %d: got keyframe=%v, want %v", i, out.IsKeyFrame, wantKey)
		}
	}
}

func TestPoolAccountingBalancedAfterQuiescence(t *testing.T) {
	e := New(testConfig(), nil)
	e.Start()

	f := solidFrame(640, 480, 640*3, 0)
	for i := uint64(0); i < 5; i++ {
		e.ProcessFrame(f, i)
	}

	st := e.pool.Stats()
	if st.TotalRented != st.TotalReturned {
		t.Fatalf("got rented=%d returned=%d, want equal after quiescence", st.TotalRented, st.TotalReturned)
	}
}

func TestDisposeRejectsFurtherFrames(t *testing.T) {
	e := New(testConfig(), nil)
	e.Start()
	e.Dispose()

	f := solidFrame(64, 64, 64*3, 0)
	if _, ok := e.ProcessFrame(f, 0); ok {
		t.Fatal("expected ProcessFrame to reject after Dispose")
	}
}

func TestControlOperationsForwardToComponents(t *testing.T) {
	e := New(testConfig(), nil)
	e.Start()

	e.SetViewerCount(10)
	e.RecordNetworkFeedback(50, false)
	e.RequestKeyFrame()

	f := solidFrame(64, 64, 64*3, 0)
	out, ok := e.ProcessFrame(f, 0)
	if !ok || !out.IsKeyFrame {
		t.Fatal("expected a forced keyframe after RequestKeyFrame")
	}
}

func TestEncodedFrameCarriesFullFrameDimensionsAndZeroOffset(t *testing.T) {
	e := New(testConfig(), nil)
	e.Start()

	f := solidFrame(64, 48, 64*3, 0)
	out, ok := e.ProcessFrame(f, 0)
	if !ok {
		t.Fatal("expected keyframe emission")
	}
	if out.Width != 64 || out.Height != 48 || out.OffsetX != 0 || out.OffsetY != 0 {
		t.Fatalf("got %+v, want full-frame dimensions 64x48 at zero offset", out)
	}
}

func TestNilSinkDoesNotPanic(t *testing.T) {
	e := New(testConfig(), nil)
	e.Start()
	f := solidFrame(64, 64, 64*3, 0)
	if _, ok := e.ProcessFrame(f, 0); !ok {
		t.Fatal("expected keyframe emission with nil sink")
	}
}
