package rfb

import "errors"

// ErrBadRectangle is the panic value (wrapped with context) used when
// GetArea/GetReadonlyArea receive a malformed or out-of-bounds
// rectangle. This is a programming-error class: it is never recovered
// internally and propagates out of the call.
var ErrBadRectangle = errors.New("rfb: invalid rectangle")

// ErrClipboardTooLong is the panic value used by SendClipboardText
// when text exceeds the u32 length field used on the wire.
var ErrClipboardTooLong = errors.New("rfb: clipboard text exceeds uint32 length")

// errProtocolVersion, errShortMessage, and errOverlongCutText are
// per-connection errors: they terminate only the connection that
// produced them, logged and never propagated to the RFBServer facade.
var (
	errProtocolVersion = errors.New("rfb: unsupported client protocol version")
	errShortMessage    = errors.New("rfb: client message shorter than required")
	errOverlongCutText = errors.New("rfb: ClientCutText length exceeds buffer")
)
