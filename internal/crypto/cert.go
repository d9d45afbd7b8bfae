package crypto

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/sha256"
	"crypto/x509"
	"crypto/x509/pkix"
	"fmt"
	"math/big"
	"strings"
	"time"
)

// SelfSignedCert is a generated ECDSA P-256 certificate and its
// matching private key, used by the DTLS transport as the local
// identity and bound into SDP as a fingerprint attribute.
type SelfSignedCert struct {
	PrivateKey *ecdsa.PrivateKey
	X509Cert   *x509.Certificate
	DER        []byte
}

// defaultCertValidity is the validity window used when none is
// specified; it matches pion/webrtc's own certificate.go default.
const defaultCertValidity = 365 * 24 * time.Hour

// GenerateSelfSigned creates a new self-signed ECDSA P-256 certificate
// with SHA-256 signature, suitable as a DTLS identity, using
// crypto/x509's conformant encoder rather than a hand-rolled ASN.1
// writer.
func GenerateSelfSigned() (*SelfSignedCert, error) {
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("crypto: generate ecdsa key: %w", err)
	}

	serialNumberLimit := new(big.Int).Lsh(big.NewInt(1), 128)
	serialNumber, err := rand.Int(rand.Reader, serialNumberLimit)
	if err != nil {
		return nil, fmt.Errorf("crypto: generate serial number: %w", err)
	}

	now := time.Now()
	tpl := &x509.Certificate{
		SerialNumber:          serialNumber,
		Subject:               pkix.Name{CommonName: "WebRTC"},
		NotBefore:             now.Add(-time.Hour),
		NotAfter:              now.Add(defaultCertValidity),
		KeyUsage:              x509.KeyUsageDigitalSignature | x509.KeyUsageCertSign,
		BasicConstraintsValid: true,
		IsCA:                  true,
		SignatureAlgorithm:    x509.ECDSAWithSHA256,
	}

	der, err := x509.CreateCertificate(rand.Reader, tpl, tpl, &key.PublicKey, key)
	if err != nil {
		return nil, fmt.Errorf("crypto: create certificate: %w", err)
	}

	parsed, err := x509.ParseCertificate(der)
	if err != nil {
		return nil, fmt.Errorf("crypto: parse certificate: %w", err)
	}

	return &SelfSignedCert{PrivateKey: key, X509Cert: parsed, DER: der}, nil
}

// Fingerprint returns the SHA-256 fingerprint of the certificate's DER
// encoding, formatted as SDP expects it: colon-separated uppercase hex
// octets (`a=fingerprint:sha-256 XX:XX:...`).
func (c *SelfSignedCert) Fingerprint() string {
	sum := sha256.Sum256(c.DER)
	parts := make([]string, len(sum))
	for i, b := range sum {
		parts[i] = fmt.Sprintf("%02X", b)
	}
	return strings.Join(parts, ":")
}

// VerifyFingerprint reports whether der's SHA-256 fingerprint matches
// the one carried in SDP (formatted as Fingerprint produces). A
// mismatch is fatal to the DTLS handshake.3.
func VerifyFingerprint(der []byte, fingerprint string) bool {
	sum := sha256.Sum256(der)
	parts := make([]string, len(sum))
	for i, b := range sum {
		parts[i] = fmt.Sprintf("%02X", b)
	}
	return strings.EqualFold(strings.Join(parts, ":"), fingerprint)
}
