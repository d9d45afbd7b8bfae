package webrtc

import (
	"sync"
	"time"

	"github.com/google/uuid"
	icrypto "github.com/vela-rtc/webrtc/internal/crypto"
)

// Certificate represents a DTLS identity, generated (ECDSA P-256,
// self-signed) or supplied by the caller via Configuration.Certificates.
// Generation is treated as an async factory; the owning PeerConnection
// awaits it once, rather than lazily generating on first handshake.
type Certificate struct {
	id         string
	expires    time.Time
	cert       *icrypto.SelfSignedCert
	fingerprint string
}

// Expires reports the certificate's NotAfter time.
func (c *Certificate) Expires() time.Time { return c.expires }

// GetFingerprints returns the SHA-256 fingerprint string as bound into
// SDP's a=fingerprint attribute.
func (c *Certificate) GetFingerprints() []DTLSFingerprint {
	return []DTLSFingerprint{{Algorithm: "sha-256", Value: c.fingerprint}}
}

// DTLSFingerprint is one a=fingerprint line's payload.
type DTLSFingerprint struct {
	Algorithm string
	Value     string
}

// certificateCache is a process-wide cache keyed by the certificate's
// unique id; lifecycle is still tied to the owning PeerConnection,
// which is the only holder of the id.
var (
	certificateCacheMu sync.Mutex
	certificateCache    = map[string]*Certificate{}
)

// generateCertificate is the async-shaped factory invoked once from
// NewPeerConnection / createOffer.
func generateCertificate() (*Certificate, error) {
	sc, err := icrypto.GenerateSelfSigned()
	if err != nil {
		return nil, errUnknown(err)
	}
	c := &Certificate{
		id:          uuid.NewString(),
		expires:     sc.X509Cert.NotAfter,
		cert:        sc,
		fingerprint: sc.Fingerprint(),
	}
	certificateCacheMu.Lock()
	certificateCache[c.id] = c
	certificateCacheMu.Unlock()
	return c, nil
}
