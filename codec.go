package rfb

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
)

// Protocol version string this server speaks (RFC 6143 §7.1.1). This
// server supports only 3.3: no 3.7/3.8 security-type negotiation.
const protocolVersion = "RFB 003.003\n"

// Authentication schemes announced during the security handshake.
const (
	authFailed = uint32(0)
	authNone   = uint32(1)
)

// Server-to-client message types.
const (
	msgFramebufferUpdate = uint8(0)
	msgBell              = uint8(2)
	msgServerCutText     = uint8(3)
)

// Client-to-server message types (RFC 6143 §7.5), dispatched on the
// leading byte of every client message.
const (
	cmdSetPixelFormat           = uint8(0)
	cmdFixColourMapEntries      = uint8(1)
	cmdSetEncodings             = uint8(2)
	cmdFramebufferUpdateRequest = uint8(3)
	cmdKeyEvent                 = uint8(4)
	cmdPointerEvent             = uint8(5)
	cmdClientCutText            = uint8(6)
)

// encodingRaw is the only encoding this server ever emits.
const encodingRaw = int32(0)

// maxClientCutTextLength bounds an incoming ClientCutText's declared
// length before any buffer is allocated for it. 1MiB comfortably
// covers any real clipboard payload; a client declaring more is
// treated as malformed rather than trusted to allocate against.
const maxClientCutTextLength = 1 << 20

// defaultServerName is sent in ServerInit when none is configured.
const defaultServerName = "Test RFB Service"

func writeBE(buf *bytes.Buffer, v interface{}) {
	// encode/binary.Write never fails for the fixed-width types used
	// throughout this codec, so errors are not surfaced to callers.
	_ = binary.Write(buf, binary.BigEndian, v)
}

// encodeAuthNone writes the 4-byte "no authentication" announcement.
func encodeAuthNone() []byte {
	buf := new(bytes.Buffer)
	writeBE(buf, authNone)
	return buf.Bytes()
}

// encodeAuthFailed writes the scheme=0 announcement followed by the
// u32 reason length and the UTF-8 reason text (RFC 6143 §7.1.2).
func encodeAuthFailed(reason string) []byte {
	buf := new(bytes.Buffer)
	writeBE(buf, authFailed)
	writeBE(buf, uint32(len(reason)))
	buf.WriteString(reason)
	return buf.Bytes()
}

// encodeServerInit writes the 24-byte fixed ServerInit header (RFC
// 6143 §7.3.2) plus the variable-length name. width/height/pf are
// written field-by-field in network byte order; no struct blitting.
func encodeServerInit(width, height uint16, pf PixelFormat, name string) []byte {
	buf := new(bytes.Buffer)
	writeBE(buf, width)
	writeBE(buf, height)
	writeBE(buf, pf.BitsPerPixel)
	writeBE(buf, pf.Depth)
	writeBE(buf, pf.BigEndian)
	writeBE(buf, pf.TrueColour)
	writeBE(buf, pf.RedMax)
	writeBE(buf, pf.GreenMax)
	writeBE(buf, pf.BlueMax)
	writeBE(buf, pf.RedShift)
	writeBE(buf, pf.GreenShift)
	writeBE(buf, pf.BlueShift)
	buf.Write([]byte{0, 0, 0}) // pad[3]
	writeBE(buf, uint32(len(name)))
	buf.WriteString(name)
	return buf.Bytes()
}

// DecodeServerInit parses a ServerInit message body (as produced by
// encodeServerInit) back into its fields. It exists for round-trip
// tests and for tooling that validates recorded wire captures; the
// server itself never needs to decode its own ServerInit.
func DecodeServerInit(r io.Reader) (width, height uint16, pf PixelFormat, name string, err error) {
	fields := []interface{}{
		&width, &height,
		&pf.BitsPerPixel, &pf.Depth, &pf.BigEndian, &pf.TrueColour,
		&pf.RedMax, &pf.GreenMax, &pf.BlueMax,
		&pf.RedShift, &pf.GreenShift, &pf.BlueShift,
	}
	for _, f := range fields {
		if err = binary.Read(r, binary.BigEndian, f); err != nil {
			return 0, 0, PixelFormat{}, "", fmt.Errorf("decode ServerInit: %w", err)
		}
	}
	var pad [3]byte
	if _, err = io.ReadFull(r, pad[:]); err != nil {
		return 0, 0, PixelFormat{}, "", fmt.Errorf("decode ServerInit padding: %w", err)
	}
	var nameLen uint32
	if err = binary.Read(r, binary.BigEndian, &nameLen); err != nil {
		return 0, 0, PixelFormat{}, "", fmt.Errorf("decode ServerInit name length: %w", err)
	}
	nameBytes := make([]byte, nameLen)
	if _, err = io.ReadFull(r, nameBytes); err != nil {
		return 0, 0, PixelFormat{}, "", fmt.Errorf("decode ServerInit name: %w", err)
	}
	return width, height, pf, string(nameBytes), nil
}

// encodeBell writes the single-byte Bell message.
func encodeBell() []byte {
	return []byte{msgBell}
}

// encodeServerCutText writes ServerCutText (RFC 6143 §7.6.4) with its
// u32 length prefix, unconditionally — the wire format requires it on
// every message, never just some.
func encodeServerCutText(text string) []byte {
	buf := new(bytes.Buffer)
	writeBE(buf, msgServerCutText)
	buf.Write([]byte{0, 0, 0}) // pad[3]
	writeBE(buf, uint32(len(text)))
	buf.WriteString(text)
	return buf.Bytes()
}

// clientMessageFixedLen returns the number of bytes (beyond the
// leading type byte already consumed) that a fixed-length client
// message requires, and whether that message type is fixed-length at
// all. Variable-length messages (SetEncodings, ClientCutText) are
// handled separately by their own readers.
func clientMessageFixedLen(msgType uint8) (n int, fixed bool) {
	switch msgType {
	case cmdSetPixelFormat:
		return 19, true // 3 pad + 16 byte PixelFormat
	case cmdFramebufferUpdateRequest:
		return 9, true // incremental flag + x,y,w,h
	case cmdKeyEvent:
		return 7, true // down-flag + 2 pad + key
	case cmdPointerEvent:
		return 5, true // button-mask + x,y
	default:
		return 0, false
	}
}
