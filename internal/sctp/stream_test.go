package sctp

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStream(id uint16) *Stream {
	return &Stream{
		streamIdentifier: id,
		readNotifier:     make(chan struct{}, 1),
		closeCh:          make(chan struct{}),
	}
}

func TestStreamHandleDataReassemblesFragments(t *testing.T) {
	s := newTestStream(1)

	s.handleData(DataChunk{StreamIdentifier: 1, PayloadType: PayloadTypeWebRTCBinary, UserData: []byte("hel"), Beginning: true})
	s.handleData(DataChunk{StreamIdentifier: 1, PayloadType: PayloadTypeWebRTCBinary, UserData: []byte("lo")})
	s.handleData(DataChunk{StreamIdentifier: 1, PayloadType: PayloadTypeWebRTCBinary, UserData: []byte(" world"), Ending: true})

	buf := make([]byte, 64)
	n, ppi, err := s.ReadSCTP(buf)
	require.NoError(t, err)
	assert.Equal(t, "hello world", string(buf[:n]))
	assert.Equal(t, PayloadTypeWebRTCBinary, ppi)
}

func TestStreamHandleDataDeliversSuccessiveMessagesInOrder(t *testing.T) {
	s := newTestStream(1)

	s.handleData(DataChunk{UserData: []byte("first"), Beginning: true, Ending: true, PayloadType: PayloadTypeWebRTCBinary})
	s.handleData(DataChunk{UserData: []byte("second"), Beginning: true, Ending: true, PayloadType: PayloadTypeWebRTCBinary})

	buf := make([]byte, 64)
	n, _, err := s.ReadSCTP(buf)
	require.NoError(t, err)
	assert.Equal(t, "first", string(buf[:n]))

	n, _, err = s.ReadSCTP(buf)
	require.NoError(t, err)
	assert.Equal(t, "second", string(buf[:n]))
}

func TestStreamPacketizeFragmentsAboveMTU(t *testing.T) {
	s := newTestStream(5)
	payload := make([]byte, defaultMTU+10)
	for i := range payload {
		payload[i] = byte(i)
	}

	chunks := s.packetize(payload, PayloadTypeWebRTCBinary)
	require.Len(t, chunks, 2)
	assert.True(t, chunks[0].Beginning)
	assert.False(t, chunks[0].Ending)
	assert.False(t, chunks[1].Beginning)
	assert.True(t, chunks[1].Ending)
	assert.Len(t, chunks[0].UserData, defaultMTU)
	assert.Len(t, chunks[1].UserData, 10)
}

func TestStreamPacketizeEmptyMessageIsSingleChunk(t *testing.T) {
	s := newTestStream(5)
	chunks := s.packetize(nil, PayloadTypeWebRTCBinaryEmpty)
	require.Len(t, chunks, 1)
	assert.True(t, chunks[0].Beginning)
	assert.True(t, chunks[0].Ending)
	assert.Empty(t, chunks[0].UserData)
}

func TestStreamCloseIsIdempotentAndUnblocksReaders(t *testing.T) {
	a := NewAssociation(Config{IsClient: true, Send: noopSend})
	s := a.newStreamLocked(7)

	done := make(chan error, 1)
	go func() {
		buf := make([]byte, 16)
		_, _, err := s.ReadSCTP(buf)
		done <- err
	}()

	require.NoError(t, s.Close())
	require.NoError(t, s.Close()) // second call must not panic or block

	assert.ErrorIs(t, <-done, errStreamClosed)
}

func TestStreamRemoteResetUnblocksReaders(t *testing.T) {
	s := newTestStream(2)

	done := make(chan error, 1)
	go func() {
		buf := make([]byte, 16)
		_, _, err := s.ReadSCTP(buf)
		done <- err
	}()

	s.remoteReset()
	assert.ErrorIs(t, <-done, errStreamClosed)
}
