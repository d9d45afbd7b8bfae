package dcep

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestChannelOpenRoundTrip(t *testing.T) {
	c := ChannelOpen{
		ChannelType:          ChannelReliable,
		Priority:             1,
		ReliabilityParameter: 0,
		Label:                []byte("chat"),
		Protocol:             []byte(""),
	}
	raw, err := c.Marshal()
	require.NoError(t, err)

	var got ChannelOpen
	require.NoError(t, got.Unmarshal(raw))
	assert.Equal(t, c.ChannelType, got.ChannelType)
	assert.Equal(t, c.Priority, got.Priority)
	assert.Equal(t, c.ReliabilityParameter, got.ReliabilityParameter)
	assert.Equal(t, c.Label, got.Label)
}

func TestChannelOpenUnorderedFlag(t *testing.T) {
	assert.False(t, ChannelReliable.Unordered())
	assert.True(t, ChannelReliableUnordered.Unordered())
	assert.True(t, ChannelPartialReliableRexmitUnordered.Unordered())
}

func TestChannelOpenRejectsLengthMismatch(t *testing.T) {
	c := ChannelOpen{Label: []byte("label"), Protocol: []byte("proto")}
	raw, err := c.Marshal()
	require.NoError(t, err)

	truncated := raw[:len(raw)-1]
	var got ChannelOpen
	assert.Error(t, got.Unmarshal(truncated))
}

func TestChannelAckRoundTrip(t *testing.T) {
	raw, err := ChannelAck{}.Marshal()
	require.NoError(t, err)
	assert.Equal(t, []byte{byte(TypeAck)}, raw)

	var got ChannelAck
	assert.NoError(t, got.Unmarshal(raw))
}

func TestParseDispatchesByType(t *testing.T) {
	open := ChannelOpen{ChannelType: ChannelReliable, Label: []byte("a"), Protocol: []byte("b")}
	openRaw, err := open.Marshal()
	require.NoError(t, err)

	msg, err := Parse(openRaw)
	require.NoError(t, err)
	_, ok := msg.(*ChannelOpen)
	assert.True(t, ok)

	ackRaw, err := ChannelAck{}.Marshal()
	require.NoError(t, err)
	msg, err = Parse(ackRaw)
	require.NoError(t, err)
	_, ok = msg.(*ChannelAck)
	assert.True(t, ok)
}

func TestParseRejectsUnknownType(t *testing.T) {
	_, err := Parse([]byte{0xFF})
	assert.Error(t, err)
}

func TestParseRejectsEmptyMessage(t *testing.T) {
	_, err := Parse(nil)
	assert.Error(t, err)
}

func TestMessageTypeString(t *testing.T) {
	assert.Equal(t, "DATA_CHANNEL_OPEN", TypeOpen.String())
	assert.Equal(t, "DATA_CHANNEL_ACK", TypeAck.String())
}
