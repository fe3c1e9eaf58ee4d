/*
NAME
  pool.go

DESCRIPTION
  pool.go implements the buffer pool component (C1) of the streaming
  core: tiered, reusable byte/short/bitmap/stream buffers sized to
  eliminate steady-state allocation once the pipeline reaches a
  steady frame rate.

AUTHORS
  screencast contributors

LICENSE
  See repository root.
*/

// Package pool provides fixed-capacity, multi-producer/multi-consumer
// buffer pools keyed by size class, used by the smart compressor to
// avoid per-frame allocation of its encode scratch stream.
package pool

import (
	"sync/atomic"
)

// Canonical tier sizes. Rent requests are routed to the smallest fitting
// tier and always receive a buffer at the tier's canonical capacity,
// never the exact requested size (the large tier is the one exception,
// since it is sized from the configured frame dimensions).
const (
	SmallBufferSize  = 8 * 1024   // 8 KiB scratch, e.g. small headers.
	MediumBufferSize = 256 * 1024 // 256 KiB scratch, e.g. compressed regions.
	ShortBufferLen   = 960        // PCM-style sample count per short buffer.

	// BytesPerPixel is the packed-pixel width used to size the large and
	// bitmap tiers from configured frame dimensions.
	BytesPerPixel = 4
)

// Default multiples applied to the configured PoolSize to obtain each
// tier's hard upper bound, per spec §3.
const (
	smallCapMultiple  = 4
	mediumCapMultiple = 4
	largeCapMultiple  = 2
	shortCapMultiple  = 4
	bitmapCapMultiple = 2
	streamCapMultiple = 2
)

// Stats is a snapshot of pool-wide and per-tier activity: the
// observability surface required by spec §4.1.
type Stats struct {
	TotalRented       uint64
	TotalReturned     uint64
	AllocationsAvoided uint64

	SmallPopulation  int
	MediumPopulation int
	LargePopulation  int
	ShortPopulation  int
	BitmapPopulation int
	StreamPopulation int
}

// Pool is a tiered set of reusable buffers. All rent/return operations
// are safe for concurrent use by multiple goroutines. Pool never fails:
// a rent that misses its tier (or occurs after Dispose) degrades to a
// fresh, unpooled allocation.
type Pool struct {
	largeSize  int // max(MediumBufferSize, maxWidth*maxHeight*BytesPerPixel)
	bitmapSize int // maxWidth*maxHeight*3 (packed RGB frame buffer size)

	small  chan []byte
	medium chan []byte
	large  chan []byte
	short  chan []int16
	bitmap chan []byte
	stream chan *Stream

	disposed atomic.Bool

	rented   atomic.Uint64
	returned atomic.Uint64
	hits     atomic.Uint64
}

// New returns a new Pool sized for frames up to maxWidth x maxHeight.
// poolSize is the nominal element count per tier (spec's
// buffer_pool_size); each tier's hard cap is a small multiple of it.
func New(maxWidth, maxHeight, poolSize int) *Pool {
	if poolSize <= 0 {
		poolSize = 1
	}
	large := maxWidth * maxHeight * BytesPerPixel
	if large < MediumBufferSize {
		large = MediumBufferSize
	}
	p := &Pool{
		largeSize:  large,
		bitmapSize: maxWidth * maxHeight * 3,
		small:      make(chan []byte, poolSize*smallCapMultiple),
		medium:     make(chan []byte, poolSize*mediumCapMultiple),
		large:      make(chan []byte, poolSize*largeCapMultiple),
		short:      make(chan []int16, poolSize*shortCapMultiple),
		bitmap:     make(chan []byte, poolSize*bitmapCapMultiple),
		stream:     make(chan *Stream, poolSize*streamCapMultiple),
	}
	return p
}

// RentBuffer returns a byte buffer with capacity at least minSize,
// routed to the smallest tier that fits. The returned slice's contents
// are not cleared; callers must not rely on residual data.
func (p *Pool) RentBuffer(minSize int) []byte {
	p.rented.Add(1)
	switch {
	case minSize <= SmallBufferSize:
		if b, ok := p.tryTake(p.small); ok {
			p.hits.Add(1)
			return b
		}
		return make([]byte, 0, SmallBufferSize)
	case minSize <= MediumBufferSize:
		if b, ok := p.tryTake(p.medium); ok {
			p.hits.Add(1)
			return b
		}
		return make([]byte, 0, MediumBufferSize)
	default:
		size := p.largeSize
		if minSize > size {
			size = minSize
		}
		if size == p.largeSize {
			if b, ok := p.tryTake(p.large); ok {
				p.hits.Add(1)
				return b
			}
		}
		return make([]byte, 0, size)
	}
}

// ReturnBuffer returns b to its tier if its capacity exactly matches a
// canonical tier size and that tier is below its cap; otherwise the
// buffer is silently discarded.
func (p *Pool) ReturnBuffer(b []byte) {
	if b == nil || p.disposed.Load() {
		return
	}
	p.returned.Add(1)
	b = b[:0]
	switch cap(b) {
	case SmallBufferSize:
		p.tryPut(p.small, b)
	case MediumBufferSize:
		p.tryPut(p.medium, b)
	case p.largeSize:
		p.tryPut(p.large, b)
	}
}

// RentShortBuffer returns an int16 buffer with length at least minLen,
// zeroed.
func (p *Pool) RentShortBuffer(minLen int) []int16 {
	p.rented.Add(1)
	if minLen <= ShortBufferLen {
		if b, ok := p.tryTakeShort(); ok {
			p.hits.Add(1)
			return b
		}
		return make([]int16, ShortBufferLen)
	}
	return make([]int16, minLen)
}

// ReturnShortBuffer zeroes s and returns it to the short tier if its
// length exactly matches the canonical size and the tier is below cap.
func (p *Pool) ReturnShortBuffer(s []int16) {
	if s == nil || p.disposed.Load() || len(s) != ShortBufferLen {
		return
	}
	p.returned.Add(1)
	for i := range s {
		s[i] = 0
	}
	select {
	case p.short <- s:
	default:
	}
}

// Bitmap is a scoped handle over a pooled pixel buffer. Callers that
// obtain one via RentBitmap must call Release when done; Release
// returns the backing buffer to the pool and is idempotent.
type Bitmap struct {
	Width, Height int
	Pix           []byte
	pool          *Pool
	released      bool
}

// Release returns the bitmap's backing buffer to the pool. Calls after
// the first are no-ops; a force-release for callers that aren't using
// a defer-scoped lifetime.
func (bm *Bitmap) Release() {
	if bm == nil || bm.released {
		return
	}
	bm.released = true
	bm.pool.ReturnBitmap(bm.Pix)
}

// RentBitmap returns a Bitmap handle with a pixel buffer large enough
// for w x h packed-RGB pixels.
func (p *Pool) RentBitmap(w, h int) *Bitmap {
	p.rented.Add(1)
	need := w * h * 3
	if need <= p.bitmapSize {
		if b, ok := p.tryTake(p.bitmap); ok {
			p.hits.Add(1)
			return &Bitmap{Width: w, Height: h, Pix: b[:need], pool: p}
		}
		b := make([]byte, p.bitmapSize)
		return &Bitmap{Width: w, Height: h, Pix: b[:need], pool: p}
	}
	return &Bitmap{Width: w, Height: h, Pix: make([]byte, need), pool: p}
}

// ReturnBitmap is the non-scoped equivalent of Bitmap.Release.
func (p *Pool) ReturnBitmap(pix []byte) {
	if pix == nil || p.disposed.Load() || cap(pix) != p.bitmapSize {
		return
	}
	p.returned.Add(1)
	p.tryPut(p.bitmap, pix[:cap(pix)])
}

// Stream is a growable byte sink used as JPEG encode scratch space. It
// must be reset (Reset, per spec §5) before every encode.
type Stream struct {
	buf []byte
}

// Reset truncates the stream to zero length without releasing its
// backing array, per the "reset before every encode" contract.
func (s *Stream) Reset() { s.buf = s.buf[:0] }

// Write implements io.Writer.
func (s *Stream) Write(p []byte) (int, error) {
	s.buf = append(s.buf, p...)
	return len(p), nil
}

// Bytes returns the stream's current contents.
func (s *Stream) Bytes() []byte { return s.buf }

// RentStream returns a Stream ready for writing (reset to length 0).
func (p *Pool) RentStream() *Stream {
	p.rented.Add(1)
	select {
	case s := <-p.stream:
		p.hits.Add(1)
		s.Reset()
		return s
	default:
		return &Stream{buf: make([]byte, 0, MediumBufferSize)}
	}
}

// ReturnStream returns s to the stream tier if the tier is below cap.
func (p *Pool) ReturnStream(s *Stream) {
	if s == nil || p.disposed.Load() {
		return
	}
	p.returned.Add(1)
	s.Reset()
	select {
	case p.stream <- s:
	default:
	}
}

// Stats returns a snapshot of rent/return/hit counters and current
// per-tier populations.
func (p *Pool) Stats() Stats {
	return Stats{
		TotalRented:        p.rented.Load(),
		TotalReturned:      p.returned.Load(),
		AllocationsAvoided: p.hits.Load(),
		SmallPopulation:    len(p.small),
		MediumPopulation:   len(p.medium),
		LargePopulation:    len(p.large),
		ShortPopulation:    len(p.short),
		BitmapPopulation:   len(p.bitmap),
		StreamPopulation:   len(p.stream),
	}
}

// Dispose drains every tier and marks the pool disposed. It is
// idempotent. Any rent after Dispose degrades to a direct, unpooled
// allocation; any return after Dispose is silently discarded.
func (p *Pool) Dispose() {
	if !p.disposed.CompareAndSwap(false, true) {
		return
	}
	drainBytes(p.small)
	drainBytes(p.medium)
	drainBytes(p.large)
	drainBytes(p.bitmap)
	drainShorts(p.short)
	for {
		select {
		case <-p.stream:
		default:
			return
		}
	}
}

func (p *Pool) tryTake(ch chan []byte) ([]byte, bool) {
	select {
	case b := <-ch:
		return b, true
	default:
		return nil, false
	}
}

func (p *Pool) tryPut(ch chan []byte, b []byte) {
	select {
	case ch <- b:
	default:
	}
}

func (p *Pool) tryTakeShort() ([]int16, bool) {
	select {
	case b := <-p.short:
		return b, true
	default:
		return nil, false
	}
}

func drainBytes(ch chan []byte) {
	for {
		select {
		case <-ch:
		default:
			return
		}
	}
}

func drainShorts(ch chan []int16) {
	for {
		select {
		case <-ch:
		default:
			return
		}
	}
}
