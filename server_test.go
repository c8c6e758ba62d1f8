package rfb

import (
	"encoding/binary"
	"io"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func startTestServer(t *testing.T, width, height uint16) (*RFBServer, string) {
	t.Helper()
	srv := NewServer(width, height, Depth32)

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	go srv.Serve(ln)
	t.Cleanup(func() { srv.Close() })

	return srv, ln.Addr().String()
}

// clientHandshake performs the ProtocolVersion/security/ClientInit
// exchange (RFC 6143 §7.1, §7.3.1) and returns the raw connection
// positioned right after ServerInit, ready for message dispatch.
func clientHandshake(t *testing.T, addr string, shared byte) net.Conn {
	t.Helper()
	c, err := net.DialTimeout("tcp", addr, time.Second)
	require.NoError(t, err)

	var ver [12]byte
	_, err = io.ReadFull(c, ver[:])
	require.NoError(t, err)
	require.Equal(t, protocolVersion, string(ver[:]))

	_, err = c.Write([]byte(protocolVersion))
	require.NoError(t, err)

	var auth [4]byte
	_, err = io.ReadFull(c, auth[:])
	require.NoError(t, err)
	require.Equal(t, uint32(1), binary.BigEndian.Uint32(auth[:]))

	_, err = c.Write([]byte{shared})
	require.NoError(t, err)

	var fixedInit [24]byte
	_, err = io.ReadFull(c, fixedInit[:])
	require.NoError(t, err)
	nameLen := binary.BigEndian.Uint32(fixedInit[20:24])
	name := make([]byte, nameLen)
	_, err = io.ReadFull(c, name)
	require.NoError(t, err)
	require.Equal(t, defaultServerName, string(name))

	return c
}

func TestScenario_VersionNegotiationSuccess(t *testing.T) {
	_, addr := startTestServer(t, 1280, 720)
	c := clientHandshake(t, addr, 1)
	defer c.Close()
}

func TestScenario_VersionNegotiationFailure(t *testing.T) {
	_, addr := startTestServer(t, 1280, 720)

	c, err := net.DialTimeout("tcp", addr, time.Second)
	require.NoError(t, err)
	defer c.Close()

	var ver [12]byte
	_, err = io.ReadFull(c, ver[:])
	require.NoError(t, err)

	_, err = c.Write([]byte("RFB 003.007\n"))
	require.NoError(t, err)

	var head [8]byte
	_, err = io.ReadFull(c, head[:])
	require.NoError(t, err)
	assert.Equal(t, uint32(0), binary.BigEndian.Uint32(head[0:4]))
	reasonLen := binary.BigEndian.Uint32(head[4:8])

	reason := make([]byte, reasonLen)
	_, err = io.ReadFull(c, reason)
	require.NoError(t, err)
	assert.Equal(t, "Unsupported version, only 3.3 is supported", string(reason))

	// connection should now be closed by the server.
	_, err = c.Read(make([]byte, 1))
	assert.Error(t, err)
}

func TestScenario_ExclusiveSessionTakeover(t *testing.T) {
	_, addr := startTestServer(t, 1280, 720)

	a := clientHandshake(t, addr, 1) // shared
	defer a.Close()
	b := clientHandshake(t, addr, 0) // exclusive
	defer b.Close()

	a.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, err := a.Read(make([]byte, 1))
	assert.Error(t, err, "client A's socket should have been closed by B's exclusive takeover")
}

func TestScenario_FramebufferUpdateRequest(t *testing.T) {
	srv, addr := startTestServer(t, 1280, 720)
	c := clientHandshake(t, addr, 1)
	defer c.Close()

	_ = srv.GetReadonlyArea(0, 0, 10, 10) // read-only: queues no rect of its own

	req := make([]byte, 10)
	req[0] = cmdFramebufferUpdateRequest
	req[1] = 0 // non-incremental
	binary.BigEndian.PutUint16(req[2:4], 0)
	binary.BigEndian.PutUint16(req[4:6], 0)
	binary.BigEndian.PutUint16(req[6:8], 10)
	binary.BigEndian.PutUint16(req[8:10], 10)
	_, err := c.Write(req)
	require.NoError(t, err)

	c.SetReadDeadline(time.Now().Add(2 * time.Second))
	var header [4]byte
	_, err = io.ReadFull(c, header[:])
	require.NoError(t, err)
	assert.Equal(t, msgFramebufferUpdate, header[0])
	nRects := binary.BigEndian.Uint16(header[2:4])
	assert.Equal(t, uint16(1), nRects)

	var rectHeader [12]byte
	_, err = io.ReadFull(c, rectHeader[:])
	require.NoError(t, err)
	assert.Equal(t, uint16(0), binary.BigEndian.Uint16(rectHeader[0:2]))
	assert.Equal(t, uint16(0), binary.BigEndian.Uint16(rectHeader[2:4]))
	assert.Equal(t, uint16(10), binary.BigEndian.Uint16(rectHeader[4:6]))
	assert.Equal(t, uint16(10), binary.BigEndian.Uint16(rectHeader[6:8]))
	assert.Equal(t, int32(0), int32(binary.BigEndian.Uint32(rectHeader[8:12])))

	pixels := make([]byte, 100*4)
	_, err = io.ReadFull(c, pixels)
	require.NoError(t, err)
}

func TestScenario_KeyEventDispatch(t *testing.T) {
	srv, addr := startTestServer(t, 1280, 720)
	c := clientHandshake(t, addr, 1)
	defer c.Close()

	type event struct {
		down bool
		key  uint32
	}
	events := make(chan event, 1)
	srv.OnKeyEvent(func(down bool, key uint32) {
		events <- event{down, key}
	})

	msg := []byte{cmdKeyEvent, 1, 0, 0, 0, 0, 0, 0x61}
	_, err := c.Write(msg)
	require.NoError(t, err)

	select {
	case e := <-events:
		assert.True(t, e.down)
		assert.Equal(t, uint32(0x61), e.key)
	case <-time.After(2 * time.Second):
		t.Fatal("key event callback was not invoked")
	}
}

func TestScenario_BellBroadcast(t *testing.T) {
	srv, addr := startTestServer(t, 1280, 720)
	a := clientHandshake(t, addr, 1)
	defer a.Close()
	b := clientHandshake(t, addr, 1)
	defer b.Close()

	srv.SendBell()

	for _, c := range []net.Conn{a, b} {
		c.SetReadDeadline(time.Now().Add(2 * time.Second))
		var b [1]byte
		_, err := io.ReadFull(c, b[:])
		require.NoError(t, err)
		assert.Equal(t, msgBell, b[0])
	}
}

func TestScenario_ClipboardRoundTrip(t *testing.T) {
	srv, addr := startTestServer(t, 1280, 720)
	c := clientHandshake(t, addr, 1)
	defer c.Close()

	texts := make(chan string, 1)
	srv.OnClientClipboardText(func(text string) { texts <- text })

	text := "hello clipboard"
	msg := make([]byte, 8+len(text))
	msg[0] = cmdClientCutText
	binary.BigEndian.PutUint32(msg[4:8], uint32(len(text)))
	copy(msg[8:], text)
	_, err := c.Write(msg)
	require.NoError(t, err)

	select {
	case got := <-texts:
		assert.Equal(t, text, got)
	case <-time.After(2 * time.Second):
		t.Fatal("clipboard callback was not invoked")
	}

	srv.SendClipboardText("server says hi")
	c.SetReadDeadline(time.Now().Add(2 * time.Second))
	var head [8]byte
	_, err = io.ReadFull(c, head[:])
	require.NoError(t, err)
	assert.Equal(t, msgServerCutText, head[0])
	length := binary.BigEndian.Uint32(head[4:8])
	body := make([]byte, length)
	_, err = io.ReadFull(c, body)
	require.NoError(t, err)
	assert.Equal(t, "server says hi", string(body))
}
