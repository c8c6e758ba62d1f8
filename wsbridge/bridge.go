// Package wsbridge adapts an RFB server's TCP transport onto
// WebSocket, so browser-based viewers (noVNC-style) can speak RFB
// framed inside binary WebSocket messages. This mirrors the
// RFB/VNC-over-WebSocket bridges retrieved alongside this project's
// teacher (angrycub/websockify, rcarmo/go-rdp's html5 bridge): rather
// than teaching rfb.Conn about WebSocket framing, Bridge presents a
// plain net.Listener whose Accept returns net.Conn values backed by a
// WebSocket, so RFBServer.Serve needs no changes at all.
package wsbridge

import (
	"bytes"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
)

// Bridge is a net.Listener satisfied by upgrading incoming HTTP
// requests on Path to WebSocket connections. Accept blocks until a
// client completes the WebSocket handshake.
type Bridge struct {
	Path     string
	upgrader websocket.Upgrader

	addr   net.Addr
	connCh chan net.Conn
	server *http.Server
	ln     net.Listener
}

// New creates a Bridge that will accept WebSocket upgrades at path
// once Listen is called.
func New(path string) *Bridge {
	return &Bridge{
		Path: path,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		connCh: make(chan net.Conn),
	}
}

// Listen starts an HTTP server on addr (e.g. ":6080") and returns the
// Bridge itself as a net.Listener suitable for rfb.RFBServer.Serve.
func (b *Bridge) Listen(addr string) (net.Listener, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("wsbridge: listen %s: %w", addr, err)
	}
	b.ln = ln
	b.addr = ln.Addr()

	mux := http.NewServeMux()
	mux.HandleFunc(b.Path, b.handleUpgrade)
	b.server = &http.Server{Handler: mux}

	go b.server.Serve(ln) //nolint:errcheck // surfaced via Accept's closed-listener error

	return b, nil
}

func (b *Bridge) handleUpgrade(w http.ResponseWriter, r *http.Request) {
	wsc, err := b.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	b.connCh <- newConn(wsc)
}

// Accept implements net.Listener.
func (b *Bridge) Accept() (net.Conn, error) {
	c, ok := <-b.connCh
	if !ok {
		return nil, fmt.Errorf("wsbridge: listener closed")
	}
	return c, nil
}

// Close implements net.Listener: stops the HTTP server and the
// underlying TCP listener.
func (b *Bridge) Close() error {
	close(b.connCh)
	if b.server != nil {
		return b.server.Close()
	}
	return nil
}

// Addr implements net.Listener.
func (b *Bridge) Addr() net.Addr { return b.addr }

// conn adapts a *websocket.Conn to net.Conn: every Write becomes one
// binary WebSocket message, and Read drains ReadMessage results
// through an internal buffer so callers can read any number of bytes
// at a time regardless of WebSocket message boundaries.
type conn struct {
	ws  *websocket.Conn
	buf bytes.Buffer
}

func newConn(ws *websocket.Conn) *conn {
	return &conn{ws: ws}
}

func (c *conn) Read(p []byte) (int, error) {
	for c.buf.Len() == 0 {
		_, data, err := c.ws.ReadMessage()
		if err != nil {
			return 0, err
		}
		c.buf.Write(data)
	}
	return c.buf.Read(p)
}

func (c *conn) Write(p []byte) (int, error) {
	if err := c.ws.WriteMessage(websocket.BinaryMessage, p); err != nil {
		return 0, err
	}
	return len(p), nil
}

func (c *conn) Close() error          { return c.ws.Close() }
func (c *conn) LocalAddr() net.Addr   { return c.ws.LocalAddr() }
func (c *conn) RemoteAddr() net.Addr  { return c.ws.RemoteAddr() }

func (c *conn) SetDeadline(t time.Time) error {
	_ = c.ws.SetReadDeadline(t)
	return c.ws.SetWriteDeadline(t)
}

func (c *conn) SetReadDeadline(t time.Time) error  { return c.ws.SetReadDeadline(t) }
func (c *conn) SetWriteDeadline(t time.Time) error { return c.ws.SetWriteDeadline(t) }
