package rfb

// Depth is the pixel depth of the framebuffer, in bits per pixel.
type Depth uint8

// Supported pixel depths. RFB 3.3 does not constrain this, but this
// server only ever advertises true-colour RGB(X) formats at these
// widths.
const (
	Depth8  Depth = 8
	Depth16 Depth = 16
	Depth32 Depth = 32
)

// BytesPerPixel returns the number of bytes that one pixel occupies
// on the wire and in the framebuffer at this depth.
func (d Depth) BytesPerPixel() int {
	return int(d) / 8
}

func (d Depth) valid() bool {
	switch d {
	case Depth8, Depth16, Depth32:
		return true
	default:
		return false
	}
}

// PixelFormat is the 16-byte RFB PixelFormat structure sent as part of
// ServerInit. This server always advertises true-colour, max=255 on
// every channel, zero shifts.
type PixelFormat struct {
	BitsPerPixel uint8
	Depth        uint8
	BigEndian    uint8 // flag: 0 or 1
	TrueColour   uint8 // flag: 0 or 1
	RedMax       uint16
	GreenMax     uint16
	BlueMax      uint16
	RedShift     uint8
	GreenShift   uint8
	BlueShift    uint8
	// pad[3] is implicit in encode/decode; not represented here.
}

// defaultPixelFormat returns the fixed RGBX true-colour format used
// for the given depth: max=255 on every channel at every depth (not
// reduced for 8 or 16 bpp), zero shifts, little role for colour math since RAW pixels
// are written channel-packed without per-client remapping.
func defaultPixelFormat(depth Depth) PixelFormat {
	return PixelFormat{
		BitsPerPixel: uint8(depth),
		Depth:        uint8(depth),
		BigEndian:    0,
		TrueColour:   1,
		RedMax:       255,
		GreenMax:     255,
		BlueMax:      255,
		RedShift:     0,
		GreenShift:   0,
		BlueShift:    0,
	}
}
