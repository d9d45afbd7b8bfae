package webrtc

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// wireTrickleICE makes each side forward every locally gathered candidate
// to the other as soon as it's found, the way a signaling channel would.
func wireTrickleICE(t *testing.T, a, b *PeerConnection) {
	t.Helper()
	a.OnICECandidate(func(c *ICECandidate) {
		if c == nil {
			return
		}
		_ = b.AddICECandidate(c.ToICECandidateInit())
	})
	b.OnICECandidate(func(c *ICECandidate) {
		if c == nil {
			return
		}
		_ = a.AddICECandidate(c.ToICECandidateInit())
	})
}

func waitForCondition(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("condition not met within timeout")
}

// TestPeerConnectionDataChannelLoopback pairs two PeerConnections over
// the host's real network stack, drives a full offer/answer exchange
// with trickled ICE candidates, and proves the wired ICE->DTLS->SCTP
// stack carries application bytes in both directions before tearing
// both ends down.
func TestPeerConnectionDataChannelLoopback(t *testing.T) {
	offerer, err := NewPeerConnection(Configuration{})
	require.NoError(t, err)
	defer offerer.Close()

	answerer, err := NewPeerConnection(Configuration{})
	require.NoError(t, err)
	defer answerer.Close()

	wireTrickleICE(t, offerer, answerer)

	var answererChannel *DataChannel
	answerer.OnDataChannel(func(dc *DataChannel) {
		answererChannel = dc
	})

	offererChannel, err := offerer.CreateDataChannel("chat", nil)
	require.NoError(t, err)

	offer, err := offerer.CreateOffer()
	require.NoError(t, err)
	require.NoError(t, offerer.SetLocalDescription(offer))
	require.NoError(t, answerer.SetRemoteDescription(offer))

	answer, err := answerer.CreateAnswer()
	require.NoError(t, err)
	require.NoError(t, answerer.SetLocalDescription(answer))
	require.NoError(t, offerer.SetRemoteDescription(answer))

	waitForCondition(t, 10*time.Second, func() bool {
		return offerer.ConnectionState() == PeerConnectionStateConnected &&
			answerer.ConnectionState() == PeerConnectionStateConnected
	})

	waitForCondition(t, 10*time.Second, func() bool {
		return answererChannel != nil
	})

	offererReceived := make(chan DataChannelMessage, 1)
	offererChannel.OnMessage(func(m DataChannelMessage) {
		offererReceived <- m
	})
	answererReceived := make(chan DataChannelMessage, 1)
	answererChannel.OnMessage(func(m DataChannelMessage) {
		answererReceived <- m
	})

	waitForCondition(t, 10*time.Second, func() bool {
		return offererChannel.ReadyState() == DataChannelStateOpen &&
			answererChannel.ReadyState() == DataChannelStateOpen
	})

	require.NoError(t, offererChannel.Send([]byte("hello from offerer")))
	require.NoError(t, answererChannel.Send([]byte("hello from answerer")))

	select {
	case m := <-answererReceived:
		assert.Equal(t, "hello from offerer", string(m.Data))
		assert.False(t, m.IsString)
	case <-time.After(5 * time.Second):
		t.Fatal("answerer never received the offerer's message")
	}

	select {
	case m := <-offererReceived:
		assert.Equal(t, "hello from answerer", string(m.Data))
		assert.False(t, m.IsString)
	case <-time.After(5 * time.Second):
		t.Fatal("offerer never received the answerer's message")
	}

	require.NoError(t, offererChannel.Close())
	require.NoError(t, answerer.Close())
	require.NoError(t, offerer.Close())
}
