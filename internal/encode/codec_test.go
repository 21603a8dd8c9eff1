package encode

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCodecRoundTripSmall(t *testing.T) {
	c, err := NewCodec(1)
	require.NoError(t, err)
	defer c.Close()

	v := []byte("hello")
	h, blob := c.Encode(v)
	assert.Equal(t, Sum(v), h)
	assert.Equal(t, byte(EncodingRaw), blob[0], "values under InlineThreshold must stay RAW")

	got, err := c.Decode(blob)
	require.NoError(t, err)
	assert.Equal(t, v, got)
}

func TestCodecRoundTripLargeCompressible(t *testing.T) {
	c, err := NewCodec(1)
	require.NoError(t, err)
	defer c.Close()

	v := bytes.Repeat([]byte{0x41}, 1000)
	h, blob := c.Encode(v)
	assert.Equal(t, Sum(v), h)
	assert.Equal(t, byte(EncodingZstd), blob[0])
	assert.Less(t, len(blob), len(v), "repeated bytes must compress smaller than input")

	got, err := c.Decode(blob)
	require.NoError(t, err)
	assert.Equal(t, v, got)
}

func TestCodecLevelZeroForcesRaw(t *testing.T) {
	c, err := NewCodec(0)
	require.NoError(t, err)
	defer c.Close()

	v := bytes.Repeat([]byte{0x41}, 100000)
	_, blob := c.Encode(v)
	assert.Equal(t, byte(EncodingRaw), blob[0])
}

func TestCodecDecodeMalformedZstd(t *testing.T) {
	c, err := NewCodec(1)
	require.NoError(t, err)
	defer c.Close()

	blob := append([]byte{byte(EncodingZstd)}, []byte{0xff, 0xff, 0xff}...)
	_, err = c.Decode(blob)
	assert.Error(t, err)
}

func TestCodecDecodeUnknownTag(t *testing.T) {
	c, err := NewCodec(1)
	require.NoError(t, err)
	defer c.Close()

	_, err = c.Decode([]byte{0x7f, 1, 2, 3})
	assert.Error(t, err)
}

func TestHashDeterministic(t *testing.T) {
	v := []byte("hello")
	assert.Equal(t, Sum(v), Sum(v))
	assert.NotEqual(t, Sum(v), Sum([]byte("hellp")))
}

func TestHashIsZero(t *testing.T) {
	var h Hash
	assert.True(t, h.IsZero())
	h[0] = 1
	assert.False(t, h.IsZero())
}
