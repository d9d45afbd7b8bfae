package rtp

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestH264DepacketizerReassemblesFUA(t *testing.T) {
	d := &H264Depacketizer{}

	const indicator = 0x7C // NRI=3, type=28 (FU-A)
	const innerType = 0x05

	start := append([]byte{indicator, 0x80 | innerType}, []byte("AAAA")...)
	middle := append([]byte{indicator, innerType}, []byte("BBBB")...)
	end := append([]byte{indicator, 0x40 | innerType}, []byte("CCCC")...)

	nal, err := d.Unmarshal(start)
	require.NoError(t, err)
	assert.Nil(t, nal)

	nal, err = d.Unmarshal(middle)
	require.NoError(t, err)
	assert.Nil(t, nal)

	nal, err = d.Unmarshal(end)
	require.NoError(t, err)
	require.NotNil(t, nal)

	expectedHeader := byte(indicator&0xE0) | innerType
	assert.Equal(t, expectedHeader, nal[0])
	assert.Equal(t, "AAAABBBBCCCC", string(nal[1:]))
}

func TestH264DepacketizerIgnoresFragmentsWithoutStart(t *testing.T) {
	d := &H264Depacketizer{}
	middle := []byte{0x7C, 0x05, 'x', 'y'}
	nal, err := d.Unmarshal(middle)
	require.NoError(t, err)
	assert.Nil(t, nal)
}

func TestH264DepacketizerPassesThroughSingleNALU(t *testing.T) {
	d := &H264Depacketizer{}
	payload := []byte{0x67, 0x42, 0xe0, 0x1f}
	nal, err := d.Unmarshal(payload)
	require.NoError(t, err)
	assert.Equal(t, payload, nal)
}

func TestUnmarshalSTAPSplitsNALUs(t *testing.T) {
	nalu1 := []byte{0x67, 0x01, 0x02}
	nalu2 := []byte{0x68, 0x03}

	payload := []byte{0x18} // STAP-A indicator
	payload = append(payload, 0x00, byte(len(nalu1)))
	payload = append(payload, nalu1...)
	payload = append(payload, 0x00, byte(len(nalu2)))
	payload = append(payload, nalu2...)

	out, err := UnmarshalSTAP(payload)
	require.NoError(t, err)
	require.Len(t, out, 2)
	assert.Equal(t, nalu1, out[0])
	assert.Equal(t, nalu2, out[1])
}
