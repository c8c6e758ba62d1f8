package rfb

import "bytes"

// encodeFramebufferUpdate serializes rects (the drained pending-update
// set, in insertion order) into a single FrameBufferUpdate message
// body: header, then per-rectangle header plus RAW pixel bytes. The
// rectangles are written last element first, i.e. most-recently-added
// first.
//
// Each of the h rows emits exactly its own w*bpp-byte span, walking
// the backing buffer one scanline at a time — the stride between rows
// is the full framebuffer width, not the (possibly narrower)
// rectangle width, so row N+1 must seek forward by fbWidth*bpp rather
// than by rowBytes.
func encodeFramebufferUpdate(rects []rect, fbWidth uint16, bpp int, buf []byte) []byte {
	out := new(bytes.Buffer)
	out.WriteByte(0) // message-type: FrameBufferUpdate
	out.WriteByte(0) // padding
	writeBE(out, uint16(len(rects)))

	for i := len(rects) - 1; i >= 0; i-- {
		u := rects[i]
		writeBE(out, u.x)
		writeBE(out, u.y)
		writeBE(out, u.w)
		writeBE(out, u.h)
		writeBE(out, encodingRaw)

		rowBytes := int(u.w) * bpp
		stride := int(fbWidth) * bpp
		for row := uint16(0); row < u.h; row++ {
			off := (int(u.y)+int(row))*stride + int(u.x)*bpp
			out.Write(buf[off : off+rowBytes])
		}
	}
	return out.Bytes()
}
