package webrtc

import (
	"testing"

	"github.com/pion/sdp/v3"
	"github.com/stretchr/testify/assert"
)

func TestParseSSRCGroupExtractsPrimaryAndRTX(t *testing.T) {
	m := &sdp.MediaDescription{
		Attributes: []sdp.Attribute{
			{Key: "ssrc", Value: "1111 cname:abc"},
			{Key: "ssrc", Value: "2222 cname:abc"},
			{Key: "ssrc-group", Value: "FID 1111 2222"},
		},
	}
	primary, rtx := parseSSRCGroup(m)
	assert.Equal(t, uint32(1111), primary)
	assert.Equal(t, uint32(2222), rtx)
}

func TestParseSSRCGroupNoRTXGroup(t *testing.T) {
	m := &sdp.MediaDescription{
		Attributes: []sdp.Attribute{
			{Key: "ssrc", Value: "4242 cname:abc"},
		},
	}
	primary, rtx := parseSSRCGroup(m)
	assert.Equal(t, uint32(4242), primary)
	assert.Zero(t, rtx)
}

func TestParseRTXPayloadTypeReadsApt(t *testing.T) {
	m := &sdp.MediaDescription{
		Attributes: []sdp.Attribute{
			{Key: "rtpmap", Value: "96 VP8/90000"},
			{Key: "rtpmap", Value: "97 rtx/90000"},
			{Key: "fmtp", Value: "97 apt=96"},
		},
	}
	assert.Equal(t, uint8(96), parseRTXPayloadType(m))
}

func TestParseRTXPayloadTypeAbsent(t *testing.T) {
	m := &sdp.MediaDescription{
		Attributes: []sdp.Attribute{
			{Key: "rtpmap", Value: "96 VP8/90000"},
		},
	}
	assert.Zero(t, parseRTXPayloadType(m))
}
