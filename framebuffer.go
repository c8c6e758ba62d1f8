package rfb

import (
	"fmt"
	"sync"
)

// rect is a dirtied or requested rectangle, in pixel coordinates.
type rect struct {
	x, y, w, h uint16
}

// Framebuffer owns the single shared raster backing an RFBServer. It
// is never reallocated after construction. Callers obtain mutable or
// read-only views via GetArea / GetReadonlyArea; a mutable view
// queues a dirty rectangle as a side effect.
//
// GetArea, GetReadonlyArea, AddUpdateRequest and drainUpdate acquire
// mu for their full duration, including the drain-and-encode phase of
// drainUpdate, so that a renderer
// goroutine's mutation never races the encoder's read of the backing
// buffer.
type Framebuffer struct {
	mu sync.Mutex

	width, height uint16
	depth         Depth
	bpp           int
	buf           []byte
	pending       []rect
}

// NewFramebuffer allocates a zero-filled width×height buffer at the
// given depth. Buffer byte count is width*height*bytesPerPixel(depth).
func NewFramebuffer(width, height uint16, depth Depth) *Framebuffer {
	bpp := depth.BytesPerPixel()
	return &Framebuffer{
		width:  width,
		height: height,
		depth:  depth,
		bpp:    bpp,
		buf:    make([]byte, int(width)*int(height)*bpp),
	}
}

// Width returns the fixed framebuffer width in pixels.
func (f *Framebuffer) Width() uint16 { return f.width }

// Height returns the fixed framebuffer height in pixels.
func (f *Framebuffer) Height() uint16 { return f.height }

// Depth returns the configured pixel depth.
func (f *Framebuffer) Depth() Depth { return f.depth }

func (f *Framebuffer) rowOffset(y, x uint16) int {
	return (int(y)*int(f.width) + int(x)) * f.bpp
}

func (f *Framebuffer) checkBounds(x1, y1, x2, y2 uint16) error {
	if x1 > x2 || y1 > y2 {
		return fmt.Errorf("%w: x1=%d x2=%d y1=%d y2=%d", ErrBadRectangle, x1, x2, y1, y2)
	}
	if x2 > f.width || y2 > f.height {
		return fmt.Errorf("%w: rect (%d,%d)-(%d,%d) exceeds framebuffer %dx%d",
			ErrBadRectangle, x1, y1, x2, y2, f.width, f.height)
	}
	return nil
}

// Box is a mutable rectangular view: one []byte row-slice per
// scanline in [y1,y2), each aliasing the live framebuffer so writes
// are visible immediately. The slices are only valid until the next
// call that might reallocate the backing buffer; this Framebuffer
// never reallocates, so a Box remains valid for the server's lifetime.
type Box [][]byte

// BoxReadOnly is the read-only counterpart of Box.
type BoxReadOnly [][]byte

// GetArea returns a mutable view over [x1,x2)×[y1,y2) and queues that
// rectangle as a pending update. Panics (precondition violation) if
// the rectangle is malformed or out of bounds.
func (f *Framebuffer) GetArea(x1, y1, x2, y2 uint16) Box {
	f.mu.Lock()
	defer f.mu.Unlock()

	if err := f.checkBounds(x1, y1, x2, y2); err != nil {
		panic(err)
	}
	box := make(Box, 0, int(y2-y1))
	rowBytes := int(x2-x1) * f.bpp
	for y := y1; y < y2; y++ {
		off := f.rowOffset(y, x1)
		box = append(box, f.buf[off:off+rowBytes])
	}
	f.addUpdateRequestLocked(x1, y1, x2-x1, y2-y1)
	return box
}

// GetReadonlyArea returns a read-only view over [x1,x2)×[y1,y2)
// without recording a dirty rectangle.
func (f *Framebuffer) GetReadonlyArea(x1, y1, x2, y2 uint16) BoxReadOnly {
	f.mu.Lock()
	defer f.mu.Unlock()

	if err := f.checkBounds(x1, y1, x2, y2); err != nil {
		panic(err)
	}
	box := make(BoxReadOnly, 0, int(y2-y1))
	rowBytes := int(x2-x1) * f.bpp
	for y := y1; y < y2; y++ {
		off := f.rowOffset(y, x1)
		box = append(box, f.buf[off:off+rowBytes:off+rowBytes])
	}
	return box
}

// AddUpdateRequest explicitly marks a rectangle dirty, used for
// client-originated FramebufferUpdateRequest messages.
func (f *Framebuffer) AddUpdateRequest(x, y, w, h uint16) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.addUpdateRequestLocked(x, y, w, h)
}

func (f *Framebuffer) addUpdateRequestLocked(x, y, w, h uint16) {
	f.pending = append(f.pending, rect{x: x, y: y, w: w, h: h})
}

// drainUpdate pops every pending rectangle in LIFO order (most
// recently added first) and returns the FrameBufferUpdate message
// body. The framebuffer mutex is held for the entire drain+encode so
// no mutation can race the byte copy.
func (f *Framebuffer) drainUpdate() (buf []byte, nRects int) {
	f.mu.Lock()
	defer f.mu.Unlock()

	rects := f.pending
	f.pending = nil

	return encodeFramebufferUpdate(rects, f.width, f.bpp, f.buf), len(rects)
}
