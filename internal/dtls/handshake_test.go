package dtls

import (
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	vcrypto "github.com/vela-rtc/webrtc/internal/crypto"
)

func TestHandshakeEstablishesMatchingExportedKeyingMaterial(t *testing.T) {
	clientCert, err := vcrypto.GenerateSelfSigned()
	require.NoError(t, err)
	serverCert, err := vcrypto.GenerateSelfSigned()
	require.NoError(t, err)

	clientPipe, serverPipe := net.Pipe()

	client := NewConn(clientPipe, Config{
		Role:            RoleClient,
		Certificate:     clientCert,
		PeerFingerprint: serverCert.Fingerprint(),
	})
	server := NewConn(serverPipe, Config{
		Role:            RoleServer,
		Certificate:     serverCert,
		PeerFingerprint: clientCert.Fingerprint(),
	})

	clientErr := make(chan error, 1)
	serverErr := make(chan error, 1)
	go func() { clientErr <- client.Handshake() }()
	go func() { serverErr <- server.Handshake() }()

	require.NoError(t, <-clientErr)
	require.NoError(t, <-serverErr)

	require.NotEmpty(t, client.ExportedSRTPKeyingMaterial)
	assert.Equal(t, client.ExportedSRTPKeyingMaterial, server.ExportedSRTPKeyingMaterial)
	assert.Equal(t, serverCert.X509Cert.Raw, client.PeerCertificate.Raw)
	assert.Equal(t, clientCert.X509Cert.Raw, server.PeerCertificate.Raw)
}

func TestHandshakeFailsOnFingerprintMismatch(t *testing.T) {
	clientCert, err := vcrypto.GenerateSelfSigned()
	require.NoError(t, err)
	serverCert, err := vcrypto.GenerateSelfSigned()
	require.NoError(t, err)

	clientPipe, serverPipe := net.Pipe()

	badFingerprint := serverCert.Fingerprint()
	badFingerprint = "00:" + badFingerprint[3:] // corrupt a single byte

	client := NewConn(clientPipe, Config{
		Role:            RoleClient,
		Certificate:     clientCert,
		PeerFingerprint: badFingerprint,
	})
	server := NewConn(serverPipe, Config{
		Role:            RoleServer,
		Certificate:     serverCert,
		PeerFingerprint: clientCert.Fingerprint(),
	})

	clientErr := make(chan error, 1)
	go func() { clientErr <- client.Handshake() }()
	go func() { _ = server.Handshake() }()

	select {
	case err := <-clientErr:
		assert.ErrorIs(t, err, ErrFingerprintMismatch)
	case <-time.After(5 * time.Second):
		t.Fatal("handshake did not fail within the expected fingerprint check window")
	}

	// Unblock the server's blocked read so its goroutine doesn't leak
	// past the test: the client returned before sending its own
	// Certificate/ClientKeyExchange flight, so the server is waiting on
	// a read that will now never arrive.
	_ = serverPipe.Close()
}
