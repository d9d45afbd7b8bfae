package dtls

import (
	"crypto/ecdh"
	"crypto/ecdsa"
	"crypto/rand"
	"crypto/sha256"
	"crypto/x509"
	"errors"
	"fmt"
	"io"
	"net"
	"time"

	vcrypto "github.com/vela-rtc/webrtc/internal/crypto"
)

// flightTimeout implements RFC 6347's recommended retransmission
// schedule: 1s initial, doubling, capped at 60s, giving up after 6
// retries.
const (
	initialFlightTimeout = 1 * time.Second
	maxFlightTimeout     = 60 * time.Second
	maxFlightRetries     = 6
)

// Role is the DTLS handshake role, bound to the ICE controlling role
// via SDP a=setup per the session controller.
type Role int

// Roles.
const (
	RoleClient Role = iota
	RoleServer
)

// ErrFingerprintMismatch is fatal to the handshake.3.
var ErrFingerprintMismatch = errors.New("dtls: peer certificate fingerprint mismatch")

// Conn drives one DTLS 1.2 handshake and, once established, the
// record layer over it. The handshake runs synchronously inside
// Handshake as a straight-line sequence of flights (handshakeClient or
// handshakeServer); there is no separate state enum or step function.
type Conn struct {
	netConn net.Conn
	role    Role

	localCert  *vcrypto.SelfSignedCert
	peerFingerprint string

	clientRandom, serverRandom Random
	transcript                 []byte // concatenated raw handshake messages, in send/receive order

	messageSeq uint16
	reassembler *Reassembler

	epoch       uint16
	readCipher  *CipherState
	writeCipher *CipherState

	masterSecret []byte

	// ExportedSRTPKeyingMaterial is populated after a successful
	// handshake.
	ExportedSRTPKeyingMaterial []byte

	PeerCertificate *x509.Certificate
}

// Config configures a Conn.
type Config struct {
	Role            Role
	Certificate     *vcrypto.SelfSignedCert
	PeerFingerprint string // expected "XX:XX:..." colon-hex value from remote SDP's a=fingerprint (algorithm prefix stripped)
}

// NewConn wraps netConn (typically a mux.Endpoint presenting the
// content-type 20-63 demultiplexed stream) with a DTLS handshake
// driver.
func NewConn(netConn net.Conn, cfg Config) *Conn {
	return &Conn{
		netConn:         netConn,
		role:            cfg.Role,
		localCert:       cfg.Certificate,
		peerFingerprint: cfg.PeerFingerprint,
		reassembler:     NewReassembler(),
	}
}

// Handshake runs the full client or server flight sequence to completion, or returns an error if retries are exhausted or
// the peer's fingerprint doesn't match.
func (c *Conn) Handshake() error {
	if c.role == RoleClient {
		return c.handshakeClient()
	}
	return c.handshakeServer()
}

// Write seals p as a single application_data record and sends it over
// the underlying connection. Used to tunnel SCTP packets once the
// handshake has established a write cipher.
func (c *Conn) Write(p []byte) (int, error) {
	if c.writeCipher == nil {
		return 0, fmt.Errorf("dtls: write before handshake completes")
	}
	if _, err := c.netConn.Write(c.writeCipher.EncryptRecord(ContentTypeApplicationData, p)); err != nil {
		return 0, err
	}
	return len(p), nil
}

// Read blocks for the next application_data record, decrypts it, and
// copies its payload into p. Any ContentTypeAlert record is surfaced
// as io.EOF.
func (c *Conn) Read(p []byte) (int, error) {
	if c.readCipher == nil {
		return 0, fmt.Errorf("dtls: read before handshake completes")
	}
	for {
		raw, err := c.readRecord()
		if err != nil {
			return 0, err
		}
		records, err := SplitRecords(raw)
		if err != nil {
			return 0, err
		}
		for _, rec := range records {
			header, err := unmarshalRecordHeader(rec)
			if err != nil {
				return 0, err
			}
			payload := rec[13:]
			if header.Type == ContentTypeAlert {
				return 0, io.EOF
			}
			if header.Type != ContentTypeApplicationData {
				continue
			}
			plain, err := c.readCipher.DecryptRecord(header, payload)
			if err != nil {
				return 0, fmt.Errorf("dtls: %w", errBadRecordMAC)
			}
			return copy(p, plain), nil
		}
	}
}

// ecdheKeyPair generates the ephemeral P-256 key pair used for
// ECDHE_ECDSA key agreement.
func ecdheKeyPair() (*ecdh.PrivateKey, error) {
	return ecdh.P256().GenerateKey(rand.Reader)
}

func randomBytes() Random {
	var entropy [28]byte
	_, _ = rand.Read(entropy[:])
	return newRandom(time.Now(), entropy[:])
}

func (c *Conn) appendTranscript(raw []byte) {
	c.transcript = append(c.transcript, raw...)
}

func (c *Conn) transcriptHash() []byte {
	sum := sha256.Sum256(c.transcript)
	return sum[:]
}

func (c *Conn) nextMessageSeq() uint16 {
	seq := c.messageSeq
	c.messageSeq++
	return seq
}

// sendFlight writes one or more logical handshake messages as a unit
// and retransmits the whole flight on timeout.
func (c *Conn) sendFlight(messages [][]byte, awaitType ContentType) ([]byte, error) {
	timeout := initialFlightTimeout
	for attempt := 0; attempt <= maxFlightRetries; attempt++ {
		for _, msg := range messages {
			rec := RecordHeader{Type: ContentTypeHandshake, Epoch: c.epoch, Length: uint16(len(msg))}
			if c.writeCipher != nil {
				if _, err := c.netConn.Write(c.writeCipher.EncryptRecord(ContentTypeHandshake, msg)); err != nil {
					return nil, err
				}
			} else if _, err := c.netConn.Write(append(rec.marshal(), msg...)); err != nil {
				return nil, err
			}
		}

		_ = c.netConn.SetReadDeadline(time.Now().Add(timeout))
		raw, err := c.readRecord()
		if err == nil {
			return raw, nil
		}
		if !isTimeout(err) {
			return nil, err
		}
		timeout *= 2
		if timeout > maxFlightTimeout {
			timeout = maxFlightTimeout
		}
	}
	return nil, fmt.Errorf("dtls: flight exhausted retries")
}

func isTimeout(err error) bool {
	var ne net.Error
	if errors.As(err, &ne) {
		return ne.Timeout()
	}
	return false
}

func (c *Conn) readRecord() ([]byte, error) {
	buf := make([]byte, 4096)
	n, err := c.netConn.Read(buf)
	if err != nil {
		return nil, err
	}
	return buf[:n], nil
}

// readHandshakeMessage reads raw wire records until a fully
// reassembled handshake message of one of wantTypes is produced.
func (c *Conn) readHandshakeMessage(raw []byte, wantTypes ...HandshakeType) (*HandshakeMessage, error) {
	records, err := SplitRecords(raw)
	if err != nil {
		return nil, err
	}
	for _, rec := range records {
		header, err := unmarshalRecordHeader(rec)
		if err != nil {
			return nil, err
		}
		payload := rec[13:]
		if c.readCipher != nil && header.Type == ContentTypeApplicationData {
			payload, err = c.readCipher.DecryptRecord(header, payload)
			if err != nil {
				return nil, fmt.Errorf("dtls: %w", errBadRecordMAC)
			}
		}
		if header.Type != ContentTypeHandshake {
			continue
		}
		msg, err := c.reassembler.Add(payload)
		if err != nil || msg == nil {
			continue
		}
		for _, want := range wantTypes {
			if msg.Header.Type == want {
				return msg, nil
			}
		}
	}
	return nil, fmt.Errorf("dtls: expected handshake message not found in flight")
}

var errBadRecordMAC = errors.New("bad_record_mac")

// verifyFinished recomputes verify_data and compares it to the peer's
// Finished message.
func (c *Conn) verifyFinished(label string, finished Finished) bool {
	expected := vcrypto.PRF12(c.masterSecret, append([]byte(label), c.transcriptHash()...), 12)
	var got [12]byte
	copy(got[:], expected)
	return got == finished.VerifyData
}

func (c *Conn) makeFinished(label string) Finished {
	var f Finished
	data := vcrypto.PRF12(c.masterSecret, append([]byte(label), c.transcriptHash()...), 12)
	copy(f.VerifyData[:], data)
	return f
}

// deriveSharedSecret performs the ECDHE key agreement.
func deriveSharedSecret(priv *ecdh.PrivateKey, peerPub []byte) ([]byte, error) {
	pub, err := ecdh.P256().NewPublicKey(peerPub)
	if err != nil {
		return nil, err
	}
	return priv.ECDH(pub)
}

// signTranscript signs the ECDHE params with the certificate's ECDSA
// private key (RFC 5246 §7.4.3 digitally-signed struct, hash SHA-256).
func signTranscript(key *ecdsaPrivateKeyAlias, clientRandom, serverRandom Random, curve uint16, pub []byte) ([]byte, error) {
	h := sha256.New()
	h.Write(clientRandom[:])
	h.Write(serverRandom[:])
	h.Write([]byte{3, byte(curve >> 8), byte(curve), byte(len(pub))})
	h.Write(pub)
	return ecdsa.SignASN1(rand.Reader, (*ecdsa.PrivateKey)(key), h.Sum(nil))
}

type ecdsaPrivateKeyAlias = ecdsa.PrivateKey

func verifyTranscriptSignature(pub *ecdsa.PublicKey, clientRandom, serverRandom Random, curve uint16, ecdhePub []byte, sig []byte) bool {
	h := sha256.New()
	h.Write(clientRandom[:])
	h.Write(serverRandom[:])
	h.Write([]byte{3, byte(curve >> 8), byte(curve), byte(len(ecdhePub))})
	h.Write(ecdhePub)
	return ecdsa.VerifyASN1(pub, h.Sum(nil), sig)
}

// ecPointUncompressed returns the uncompressed point encoding
// (0x04||X||Y) of an ecdh public key, the wire format DTLS uses for
// ECPoint (RFC 8422 §5.4).
func ecPointUncompressed(pub *ecdh.PublicKey) []byte {
	return pub.Bytes()
}
