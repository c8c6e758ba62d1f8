package rfb

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestServerInit_RoundTrip(t *testing.T) {
	pf := defaultPixelFormat(Depth32)
	msg := encodeServerInit(1280, 720, pf, "Test RFB Service")

	width, height, gotPF, name, err := DecodeServerInit(bytes.NewReader(msg))
	require.NoError(t, err)

	assert.Equal(t, uint16(1280), width)
	assert.Equal(t, uint16(720), height)
	assert.Equal(t, pf, gotPF)
	assert.Equal(t, "Test RFB Service", name)
}

func TestEncodeServerCutText_IncludesLengthPrefix(t *testing.T) {
	buf := encodeServerCutText("hello")

	assert.Equal(t, msgServerCutText, buf[0])
	assert.Equal(t, []byte{0, 0, 0}, buf[1:4]) // padding
	length := uint32(buf[4])<<24 | uint32(buf[5])<<16 | uint32(buf[6])<<8 | uint32(buf[7])
	assert.Equal(t, uint32(5), length)
	assert.Equal(t, "hello", string(buf[8:]))
}

func TestEncodeAuthFailed_CarriesReason(t *testing.T) {
	buf := encodeAuthFailed("Unsupported version, only 3.3 is supported")

	scheme := uint32(buf[0])<<24 | uint32(buf[1])<<16 | uint32(buf[2])<<8 | uint32(buf[3])
	assert.Equal(t, uint32(0), scheme)

	reasonLen := uint32(buf[4])<<24 | uint32(buf[5])<<16 | uint32(buf[6])<<8 | uint32(buf[7])
	assert.Equal(t, "Unsupported version, only 3.3 is supported", string(buf[8:8+reasonLen]))
}

func TestEncodeBell_IsSingleByte(t *testing.T) {
	assert.Equal(t, []byte{msgBell}, encodeBell())
}

func TestClientMessageFixedLen(t *testing.T) {
	cases := []struct {
		msgType uint8
		want    int
	}{
		{cmdSetPixelFormat, 19},
		{cmdFramebufferUpdateRequest, 9},
		{cmdKeyEvent, 7},
		{cmdPointerEvent, 5},
	}
	for _, c := range cases {
		n, fixed := clientMessageFixedLen(c.msgType)
		assert.True(t, fixed)
		assert.Equal(t, c.want, n)
	}

	_, fixed := clientMessageFixedLen(cmdSetEncodings)
	assert.False(t, fixed)
}
