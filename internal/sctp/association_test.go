package sctp

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func noopSend([]byte) error { return nil }

// packetWithData builds one raw SCTP packet carrying a single
// single-chunk DATA message, as a peer association/stream would send it.
func packetWithData(t *testing.T, tsn uint32, streamID uint16, unordered bool, payload string) []byte {
	t.Helper()
	raw, err := MarshalPacket(Header{SourcePort: 5000, DestinationPort: 5000, VerificationTag: 1}, []Chunk{DataChunk{
		TSN:                  tsn,
		StreamIdentifier:     streamID,
		StreamSequenceNumber: 0,
		PayloadType:          PayloadTypeWebRTCBinary,
		UserData:             []byte(payload),
		Beginning:            true,
		Ending:               true,
		Unordered:            unordered,
	}})
	require.NoError(t, err)
	return raw
}

// acceptStreamWithTimeout fails the test instead of hanging forever if
// the association never pushes a stream onto its accept channel.
func acceptStreamWithTimeout(t *testing.T, a *Association) *Stream {
	t.Helper()
	type result struct {
		s   *Stream
		err error
	}
	ch := make(chan result, 1)
	go func() {
		s, err := a.AcceptStream()
		ch <- result{s, err}
	}()
	select {
	case r := <-ch:
		require.NoError(t, r.err)
		return r.s
	case <-time.After(2 * time.Second):
		t.Fatal("AcceptStream did not return a stream in time")
		return nil
	}
}

func TestAssociationDeliversOrderedStreamInSequence(t *testing.T) {
	a := NewAssociation(Config{IsClient: true, Send: noopSend})
	// Pre-seed the bootstrap TSN baseline so the first chunk processed
	// isn't (incorrectly) treated as already contiguous: handleDataLocked
	// otherwise takes whichever chunk arrives first as the new baseline.
	a.peerTSNSeen = true
	a.peerCumulativeTSN = 100

	const streamID = 1
	// Arrival order is shuffled; TSN order is the true send order.
	require.NoError(t, a.HandleInbound(packetWithData(t, 103, streamID, false, "two")))
	require.NoError(t, a.HandleInbound(packetWithData(t, 101, streamID, false, "zero")))
	require.NoError(t, a.HandleInbound(packetWithData(t, 102, streamID, false, "one")))

	stream := acceptStreamWithTimeout(t, a)
	assert.Equal(t, uint16(streamID), stream.StreamIdentifier())

	var got []string
	for i := 0; i < 3; i++ {
		buf := make([]byte, 64)
		n, _, err := stream.ReadSCTP(buf)
		require.NoError(t, err)
		got = append(got, string(buf[:n]))
	}
	assert.Equal(t, []string{"zero", "one", "two"}, got)
}

func TestAssociationDeliversUnorderedStreamAsMultiset(t *testing.T) {
	a := NewAssociation(Config{IsClient: true, Send: noopSend})
	a.peerTSNSeen = true
	a.peerCumulativeTSN = 200

	const streamID = 3
	sent := []string{"alpha", "beta", "gamma"}
	arrival := []uint32{203, 201, 202} // out of order on the wire

	for i, tsn := range arrival {
		// index into sent by the TSN's offset from the base so the
		// multiset sent matches the multiset delivered regardless of order.
		payload := sent[tsn-201]
		require.NoError(t, a.HandleInbound(packetWithData(t, tsn, streamID, true, payload)))
		_ = i
	}

	stream := acceptStreamWithTimeout(t, a)

	var got []string
	for i := 0; i < len(sent); i++ {
		buf := make([]byte, 64)
		n, _, err := stream.ReadSCTP(buf)
		require.NoError(t, err)
		got = append(got, string(buf[:n]))
	}
	assert.ElementsMatch(t, sent, got)
}

func TestAssociationHandleInboundIgnoresMalformedPacket(t *testing.T) {
	a := NewAssociation(Config{IsClient: true, Send: noopSend})
	assert.NoError(t, a.HandleInbound([]byte{0x01, 0x02}))
}

func TestAssociationStartOnlySendsInitAsClient(t *testing.T) {
	var sent [][]byte
	a := NewAssociation(Config{IsClient: true, Send: func(b []byte) error {
		sent = append(sent, b)
		return nil
	}})
	require.NoError(t, a.Start())
	assert.Equal(t, StateCookieWait, a.State())
	require.Len(t, sent, 1)

	_, chunks, err := ParsePacket(sent[0])
	require.NoError(t, err)
	require.Len(t, chunks, 1)
	assert.Equal(t, ctInit, chunkType(chunks[0]))
}

func TestAssociationStartIsNoopForServer(t *testing.T) {
	called := false
	a := NewAssociation(Config{IsClient: false, Send: func([]byte) error {
		called = true
		return nil
	}})
	require.NoError(t, a.Start())
	assert.False(t, called)
	assert.Equal(t, StateClosed, a.State())
}
