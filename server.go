package rfb

import (
	"fmt"
	"math"
	"net"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
)

// RFBServer is the single public facade: one shared framebuffer, a
// broadcast bus fanning server-originated messages out to every
// connected client, and callback registration for client-originated
// input/clipboard events.
type RFBServer struct {
	fb   *Framebuffer
	bus  *bus
	name string

	log        zerolog.Logger
	registerer prometheus.Registerer
	metrics    *serverMetrics

	mu       sync.Mutex
	listener net.Listener
	closed   bool
	wg       sync.WaitGroup

	cbMu        sync.Mutex
	keyCB       func(down bool, key uint32)
	pointerCB   func(buttons ButtonMask, x, y uint16)
	clipboardCB func(text string)
}

// NewServer constructs an RFBServer with a fixed width, height, and
// pixel depth. The framebuffer is zero-filled and never reallocated
// for the server's lifetime.
func NewServer(width, height uint16, depth Depth, opts ...Option) *RFBServer {
	if !depth.valid() {
		panic(fmt.Errorf("rfb: unsupported depth %d", depth))
	}
	s := &RFBServer{
		fb:   NewFramebuffer(width, height, depth),
		bus:  newBus(),
		name: defaultServerName,
		log:  defaultLogger(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.registerer == nil {
		s.registerer = prometheus.NewRegistry()
	}
	s.metrics = newServerMetrics(s.registerer)
	return s
}

// Width returns the framebuffer's fixed width in pixels.
func (s *RFBServer) Width() uint16 { return s.fb.Width() }

// Height returns the framebuffer's fixed height in pixels.
func (s *RFBServer) Height() uint16 { return s.fb.Height() }

// GetArea returns a mutable view over the given rectangle and queues
// it as a pending update.
func (s *RFBServer) GetArea(x1, y1, x2, y2 uint16) Box {
	return s.fb.GetArea(x1, y1, x2, y2)
}

// GetReadonlyArea returns a read-only view over the given rectangle
// without affecting the pending-update set.
func (s *RFBServer) GetReadonlyArea(x1, y1, x2, y2 uint16) BoxReadOnly {
	return s.fb.GetReadonlyArea(x1, y1, x2, y2)
}

// Update drains every pending rectangle into one FrameBufferUpdate
// message (RFC 6143 §7.6.1) and broadcasts it to all connected
// clients. Idempotent on an empty pending set: emits n_rects=0.
func (s *RFBServer) Update() {
	buf, n := s.fb.drainUpdate()
	s.metrics.updatesBroadcast.Inc()
	s.metrics.updateRectsTotal.Add(float64(n))
	s.metrics.bytesBroadcast.Add(float64(len(buf)))
	s.bus.broadcast(buf)
}

// SendClipboardText broadcasts a ServerCutText message to every
// connected client. Panics (fail-fast) if text is longer than a
// uint32 can express.
func (s *RFBServer) SendClipboardText(text string) {
	if len(text) > math.MaxUint32 {
		panic(ErrClipboardTooLong)
	}
	buf := encodeServerCutText(text)
	s.metrics.bytesBroadcast.Add(float64(len(buf)))
	s.bus.broadcast(buf)
}

// SendBell broadcasts a single-byte Bell message to every connected
// client.
func (s *RFBServer) SendBell() {
	buf := encodeBell()
	s.metrics.bytesBroadcast.Add(float64(len(buf)))
	s.bus.broadcast(buf)
}

// OnKeyEvent registers the callback invoked for every client KeyEvent
// message. Only one callback is kept; a later call replaces an
// earlier one.
func (s *RFBServer) OnKeyEvent(cb func(down bool, key uint32)) {
	s.cbMu.Lock()
	defer s.cbMu.Unlock()
	s.keyCB = cb
}

// OnPointerEvent registers the callback invoked for every client
// PointerEvent message.
func (s *RFBServer) OnPointerEvent(cb func(buttons ButtonMask, x, y uint16)) {
	s.cbMu.Lock()
	defer s.cbMu.Unlock()
	s.pointerCB = cb
}

// OnClientClipboardText registers the callback invoked for every
// client ClientCutText message.
func (s *RFBServer) OnClientClipboardText(cb func(text string)) {
	s.cbMu.Lock()
	defer s.cbMu.Unlock()
	s.clipboardCB = cb
}

func (s *RFBServer) emitKeyEvent(down bool, key uint32) {
	s.cbMu.Lock()
	cb := s.keyCB
	s.cbMu.Unlock()
	if cb != nil {
		cb(down, key)
	}
}

func (s *RFBServer) emitPointerEvent(buttons ButtonMask, x, y uint16) {
	s.cbMu.Lock()
	cb := s.pointerCB
	s.cbMu.Unlock()
	if cb != nil {
		cb(buttons, x, y)
	}
}

func (s *RFBServer) emitClipboardText(text string) {
	s.cbMu.Lock()
	cb := s.clipboardCB
	s.cbMu.Unlock()
	if cb != nil {
		cb(text)
	}
}

// Listen opens a TCP listener on port and serves connections until
// Close is called or the listener errors.
func (s *RFBServer) Listen(port uint16) error {
	ln, err := net.Listen("tcp", fmt.Sprintf(":%d", port))
	if err != nil {
		return err
	}
	return s.Serve(ln)
}

// Serve accepts connections from ln until Close is called or Accept
// errors. Each accepted connection is handled on its own goroutine;
// there is no shared per-connection state outside the framebuffer and
// the broadcast bus, both already synchronized.
func (s *RFBServer) Serve(ln net.Listener) error {
	s.mu.Lock()
	s.listener = ln
	s.mu.Unlock()

	for {
		nc, err := ln.Accept()
		if err != nil {
			s.mu.Lock()
			closed := s.closed
			s.mu.Unlock()
			if closed {
				return nil
			}
			return err
		}

		s.metrics.connectionsTotal.Inc()
		s.metrics.connectionsActive.Inc()
		sub := s.bus.register()
		conn := newConn(s, nc, sub)
		conn.log.Info().Msg("client connected")

		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			defer s.metrics.connectionsActive.Dec()
			defer s.bus.remove(sub.id)
			conn.serve()
			conn.log.Info().Msg("client disconnected")
		}()
	}
}

// Close stops accepting new connections, closes every live
// connection, and waits for their goroutines to finish.
func (s *RFBServer) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	ln := s.listener
	s.mu.Unlock()

	var err error
	if ln != nil {
		err = ln.Close()
	}
	s.bus.closeAllExcept(0) // 0 is never a valid connID; closes everyone.
	s.wg.Wait()
	return err
}
