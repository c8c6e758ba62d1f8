package rfb

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
	"net"

	"github.com/rs/zerolog"
)

// connState is the explicit, enum-tagged state for one connection's
// handshake and dispatch sequence: ProtocolVersion handshake, then
// ClientInit, then steady-state message dispatch, per RFC 6143 §7.
type connState int

const (
	stateAwaitingVersion connState = iota
	stateAwaitingInit
	stateDispatching
	stateClosed
)

// Conn is one accepted client's connection record. It owns the
// socket, its registration on the server's broadcast bus, and its
// current handshake/dispatch phase.
type Conn struct {
	id    connID
	srv   *RFBServer
	nc    net.Conn
	br    *bufio.Reader
	bw    *bufio.Writer
	sub   *subscriber
	log   zerolog.Logger
	state connState

	format PixelFormat
}

func newConn(srv *RFBServer, nc net.Conn, sub *subscriber) *Conn {
	return &Conn{
		id:     sub.id,
		srv:    srv,
		nc:     nc,
		br:     bufio.NewReader(nc),
		bw:     bufio.NewWriter(nc),
		sub:    sub,
		log:    connLogger(srv.log, sub.id, nc.RemoteAddr().String()),
		state:  stateAwaitingVersion,
		format: defaultPixelFormat(srv.fb.Depth()),
	}
}

// readExact reads exactly len(buf) bytes, returning errShortMessage
// (wrapped) on a short read so callers can close just this connection
// rather than let a malformed client message wedge the server.
func (c *Conn) readExact(buf []byte) error {
	if _, err := io.ReadFull(c.br, buf); err != nil {
		return fmt.Errorf("%w: %v", errShortMessage, err)
	}
	return nil
}

func (c *Conn) write(b []byte) error {
	_, err := c.bw.Write(b)
	return err
}

func (c *Conn) flush() error {
	return c.bw.Flush()
}

// serve drives this connection through V -> A -> D -> closed. Before
// returning it closes the socket and removes this connection from the
// broadcast bus, so no broadcast can reach its outbox once that closes.
func (c *Conn) serve() {
	// pump closes the connection as soon as the bus signals a
	// close-all-except takeover (a non-shared ClientInit from another
	// client), independent of whatever the read loop below is blocked on.
	go func() {
		<-c.sub.closeCh
		c.nc.Close()
	}()

	// writer drains the outbox registered with the broadcast bus onto
	// the socket. Runs for the connection's whole lifetime.
	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		for buf := range c.sub.outbox {
			if _, err := c.nc.Write(buf); err != nil {
				return
			}
		}
	}()

	if err := c.runHandshakeAndDispatch(); err != nil {
		c.log.Debug().Err(err).Msg("connection closed")
	}

	c.state = stateClosed
	c.nc.Close()
	c.srv.bus.remove(c.id)
	close(c.sub.outbox)
	<-writerDone
}

func (c *Conn) runHandshakeAndDispatch() error {
	if err := c.awaitVersion(); err != nil {
		return err
	}
	c.state = stateAwaitingInit

	if err := c.awaitInit(); err != nil {
		return err
	}
	c.state = stateDispatching

	if err := c.sendServerInit(); err != nil {
		return err
	}

	for {
		if err := c.dispatchOne(); err != nil {
			return err
		}
	}
}

// awaitVersion implements state V: send the server version string,
// then require the client to echo exactly "RFB 003.003\n". Any other
// response gets scheme=0 plus a reason and the connection closes.
func (c *Conn) awaitVersion() error {
	if err := c.write([]byte(protocolVersion)); err != nil {
		return err
	}
	if err := c.flush(); err != nil {
		return err
	}

	var buf [12]byte
	if err := c.readExact(buf[:]); err != nil {
		return err
	}
	if string(buf[:]) != protocolVersion {
		const reason = "Unsupported version, only 3.3 is supported"
		c.write(encodeAuthFailed(reason))
		c.flush()
		c.srv.metrics.protocolErrorTotal.WithLabelValues("bad_version").Inc()
		return fmt.Errorf("%w: got %q", errProtocolVersion, buf[:])
	}

	if err := c.write(encodeAuthNone()); err != nil {
		return err
	}
	return c.flush()
}

// awaitInit implements state A: read the 1-byte shared-flag. A
// non-shared request triggers close-all-except on the bus (this
// session is the survivor).
func (c *Conn) awaitInit() error {
	var buf [1]byte
	if err := c.readExact(buf[:]); err != nil {
		return err
	}
	shared := buf[0] != 0
	if !shared {
		c.log.Info().Msg("exclusive session requested; closing other sessions")
		c.srv.bus.closeAllExcept(c.id)
	}
	return nil
}

func (c *Conn) sendServerInit() error {
	msg := encodeServerInit(c.srv.fb.Width(), c.srv.fb.Height(), c.format, c.srv.name)
	if err := c.write(msg); err != nil {
		return err
	}
	return c.flush()
}

// dispatchOne reads one client message header byte and routes it per
// RFC 6143 §7.5's message-type table. Buffers shorter than the fixed
// length for their opcode close the connection.
func (c *Conn) dispatchOne() error {
	var msgType [1]byte
	if err := c.readExact(msgType[:]); err != nil {
		return err
	}

	switch msgType[0] {
	case cmdSetPixelFormat:
		return c.handleSetPixelFormat()
	case cmdFixColourMapEntries:
		return c.handleFixColourMapEntries()
	case cmdSetEncodings:
		return c.handleSetEncodings()
	case cmdFramebufferUpdateRequest:
		return c.handleUpdateRequest()
	case cmdKeyEvent:
		return c.handleKeyEvent()
	case cmdPointerEvent:
		return c.handlePointerEvent()
	case cmdClientCutText:
		return c.handleClientCutText()
	default:
		c.srv.metrics.protocolErrorTotal.WithLabelValues("unknown_message").Inc()
		return fmt.Errorf("%w: unknown message type %d", errShortMessage, msgType[0])
	}
}

// handleSetPixelFormat (RFC 6143 §7.5.1) is accepted and ignored: this
// server's pixel format is fixed at construction time.
func (c *Conn) handleSetPixelFormat() error {
	n, _ := clientMessageFixedLen(cmdSetPixelFormat)
	buf := make([]byte, n)
	return c.readExact(buf)
}

// handleFixColourMapEntries is accepted and ignored.
func (c *Conn) handleFixColourMapEntries() error {
	var head [5]byte // 1 pad + first-colour(2) + number-of-colours(2)
	if err := c.readExact(head[:]); err != nil {
		return err
	}
	count := binary.BigEndian.Uint16(head[3:5])
	rest := make([]byte, int(count)*6)
	return c.readExact(rest)
}

// handleSetEncodings is accepted and ignored: only RAW is supported.
func (c *Conn) handleSetEncodings() error {
	var head [3]byte // 1 pad + number-of-encodings(2)
	if err := c.readExact(head[:]); err != nil {
		return err
	}
	count := binary.BigEndian.Uint16(head[1:3])
	rest := make([]byte, int(count)*4)
	return c.readExact(rest)
}

// handleUpdateRequest (RFC 6143 §7.5.3, FramebufferUpdateRequest)
// enqueues the requested rectangle and immediately drains the pending
// set via Update().
func (c *Conn) handleUpdateRequest() error {
	n, _ := clientMessageFixedLen(cmdFramebufferUpdateRequest)
	buf := make([]byte, n)
	if err := c.readExact(buf); err != nil {
		return err
	}
	x := binary.BigEndian.Uint16(buf[1:3])
	y := binary.BigEndian.Uint16(buf[3:5])
	w := binary.BigEndian.Uint16(buf[5:7])
	h := binary.BigEndian.Uint16(buf[7:9])
	if int(x)+int(w) > int(c.srv.fb.Width()) || int(y)+int(h) > int(c.srv.fb.Height()) {
		c.srv.metrics.protocolErrorTotal.WithLabelValues("bad_update_request").Inc()
		return fmt.Errorf("rfb: update request (%d,%d %dx%d) exceeds framebuffer %dx%d",
			x, y, w, h, c.srv.fb.Width(), c.srv.fb.Height())
	}

	c.srv.fb.AddUpdateRequest(x, y, w, h)
	c.srv.Update()
	return nil
}

// handleKeyEvent reads a KeyEvent and emits the registered callback.
func (c *Conn) handleKeyEvent() error {
	n, _ := clientMessageFixedLen(cmdKeyEvent)
	buf := make([]byte, n)
	if err := c.readExact(buf); err != nil {
		return err
	}
	down := buf[0] != 0
	key := binary.BigEndian.Uint32(buf[3:7])
	c.srv.emitKeyEvent(down, key)
	return nil
}

// handlePointerEvent reads a PointerEvent and emits the registered
// callback.
func (c *Conn) handlePointerEvent() error {
	n, _ := clientMessageFixedLen(cmdPointerEvent)
	buf := make([]byte, n)
	if err := c.readExact(buf); err != nil {
		return err
	}
	mask := ButtonMask(buf[0])
	x := binary.BigEndian.Uint16(buf[1:3])
	y := binary.BigEndian.Uint16(buf[3:5])
	c.srv.emitPointerEvent(mask, x, y)
	return nil
}

// handleClientCutText reads the u32 length at offset 4 of the
// message body, then that many bytes of text, closing the connection
// if the declared length exceeds maxClientCutTextLength or would
// overrun the message. The length comes straight off the wire from an
// untrusted client, so it is bounds-checked before it ever reaches
// make([]byte, ...); an unchecked length lets one client request a
// multi-gigabyte allocation before a single byte of text is read.
func (c *Conn) handleClientCutText() error {
	var head [7]byte // 3 pad + length(4)
	if err := c.readExact(head[:]); err != nil {
		return err
	}
	length := binary.BigEndian.Uint32(head[3:7])
	if length > maxClientCutTextLength {
		c.srv.metrics.protocolErrorTotal.WithLabelValues("overlong_cuttext").Inc()
		return fmt.Errorf("%w: declared length %d exceeds %d", errOverlongCutText, length, maxClientCutTextLength)
	}

	text := make([]byte, length)
	if err := c.readExact(text); err != nil {
		c.srv.metrics.protocolErrorTotal.WithLabelValues("overlong_cuttext").Inc()
		return fmt.Errorf("%w: %v", errOverlongCutText, err)
	}
	c.srv.emitClipboardText(string(text))
	return nil
}
