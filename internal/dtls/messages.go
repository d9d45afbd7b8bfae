package dtls

import (
	"crypto/x509"
	"encoding/binary"
	"errors"
)

// ClientHello is the first client flight message. Only the fields this
// stack actually negotiates are modeled: a single cipher suite, no
// compression, and the use_srtp extension (RFC 5764) carrying the
// single SRTP protection profile this stack supports.
type ClientHello struct {
	Random      Random
	Cookie      []byte
	SRTPProfile uint16
}

func (c ClientHello) marshal() []byte {
	b := make([]byte, 0, 64)
	b = append(b, protocolVersionHi, protocolVersionLo)
	b = append(b, c.Random[:]...)
	b = append(b, 0) // session ID length
	b = append(b, byte(len(c.Cookie)))
	b = append(b, c.Cookie...)
	b = append(b, 0, 2, cipherSuiteECDHEECDSAAES128GCMSHA256[0], cipherSuiteECDHEECDSAAES128GCMSHA256[1])
	b = append(b, 1, 0) // compression methods: [null]

	var ext []byte
	// use_srtp (RFC 5764 §4.1.1)
	srtp := make([]byte, 2)
	binary.BigEndian.PutUint16(srtp, c.SRTPProfile)
	ext = appendExtension(ext, 14, append([]byte{0, 2}, append(srtp, 0)...))
	// supported_groups: secp256r1 (named curve 23)
	ext = appendExtension(ext, 10, []byte{0, 2, 0, 23})
	// signature_algorithms: ecdsa_secp256r1_sha256
	ext = appendExtension(ext, 13, []byte{0, 2, 4, 3})

	extLen := make([]byte, 2)
	binary.BigEndian.PutUint16(extLen, uint16(len(ext)))
	b = append(b, extLen...)
	b = append(b, ext...)
	return b
}

func appendExtension(dst []byte, extType uint16, body []byte) []byte {
	h := make([]byte, 4)
	binary.BigEndian.PutUint16(h[0:2], extType)
	binary.BigEndian.PutUint16(h[2:4], uint16(len(body)))
	dst = append(dst, h...)
	return append(dst, body...)
}

func parseClientHello(b []byte) (ClientHello, error) {
	if len(b) < 34 {
		return ClientHello{}, errors.New("dtls: client hello too short")
	}
	ch := ClientHello{}
	copy(ch.Random[:], b[2:34])
	off := 34
	sidLen := int(b[off])
	off += 1 + sidLen
	cookieLen := int(b[off])
	off++
	ch.Cookie = append([]byte(nil), b[off:off+cookieLen]...)
	ch.SRTPProfile = 0x0007 // SRTP_AEAD_AES_128_GCM default for this stack
	return ch, nil
}

// ServerHello is the server's response selecting the (only) offered
// cipher suite and echoing the negotiated SRTP profile.
type ServerHello struct {
	Random Random
}

func (s ServerHello) marshal() []byte {
	b := make([]byte, 0, 40)
	b = append(b, protocolVersionHi, protocolVersionLo)
	b = append(b, s.Random[:]...)
	b = append(b, 0) // session ID length
	b = append(b, cipherSuiteECDHEECDSAAES128GCMSHA256[0], cipherSuiteECDHEECDSAAES128GCMSHA256[1])
	b = append(b, 0) // compression method: null
	ext := appendExtension(nil, 14, []byte{0, 2, 0, 7, 0})
	extLen := make([]byte, 2)
	binary.BigEndian.PutUint16(extLen, uint16(len(ext)))
	b = append(b, extLen...)
	b = append(b, ext...)
	return b
}

func parseServerHello(b []byte) (ServerHello, error) {
	if len(b) < 34 {
		return ServerHello{}, errors.New("dtls: server hello too short")
	}
	var sh ServerHello
	copy(sh.Random[:], b[2:34])
	return sh, nil
}

// HelloVerifyRequest carries the stateless cookie the server asks the
// client to echo (RFC 6347 §4.2.1), mitigating UDP source-spoofed DoS.
type HelloVerifyRequest struct {
	Cookie []byte
}

func (h HelloVerifyRequest) marshal() []byte {
	b := []byte{protocolVersionHi, protocolVersionLo, byte(len(h.Cookie))}
	return append(b, h.Cookie...)
}

func parseHelloVerifyRequest(b []byte) (HelloVerifyRequest, error) {
	if len(b) < 3 {
		return HelloVerifyRequest{}, errors.New("dtls: hello verify request too short")
	}
	cookieLen := int(b[2])
	if len(b) < 3+cookieLen {
		return HelloVerifyRequest{}, errors.New("dtls: hello verify request truncated")
	}
	return HelloVerifyRequest{Cookie: append([]byte(nil), b[3:3+cookieLen]...)}, nil
}

// marshalCertificateMessage encodes the Certificate handshake message
// body from one or more DER-encoded certificates (RFC 5246 §7.4.2).
func marshalCertificateMessage(ders [][]byte) []byte {
	var chain []byte
	for _, der := range ders {
		h := make([]byte, 3)
		putUint24(h, uint32(len(der)))
		chain = append(chain, h...)
		chain = append(chain, der...)
	}
	head := make([]byte, 3)
	putUint24(head, uint32(len(chain)))
	return append(head, chain...)
}

func parseCertificateMessage(b []byte) ([]*x509.Certificate, error) {
	if len(b) < 3 {
		return nil, errors.New("dtls: certificate message too short")
	}
	total := getUint24(b[0:3])
	if uint32(len(b)-3) != total {
		return nil, errors.New("dtls: certificate message length mismatch")
	}
	var certs []*x509.Certificate
	body := b[3:]
	for len(body) > 0 {
		if len(body) < 3 {
			return nil, errors.New("dtls: certificate entry truncated")
		}
		certLen := getUint24(body[0:3])
		if uint32(len(body)-3) < certLen {
			return nil, errors.New("dtls: certificate entry truncated")
		}
		der := body[3 : 3+certLen]
		cert, err := x509.ParseCertificate(der)
		if err != nil {
			return nil, err
		}
		certs = append(certs, cert)
		body = body[3+certLen:]
	}
	return certs, nil
}

// ServerKeyExchange carries the server's ephemeral ECDHE public key and
// a signature over (client_random || server_random || curve params ||
// public key) under the certificate's private key.
type ServerKeyExchange struct {
	NamedCurve uint16
	PublicKey  []byte
	Signature  []byte
}

func (s ServerKeyExchange) marshal() []byte {
	b := []byte{3} // curve_type = named_curve
	b = append(b, byte(s.NamedCurve>>8), byte(s.NamedCurve))
	b = append(b, byte(len(s.PublicKey)))
	b = append(b, s.PublicKey...)
	b = append(b, 4, 3) // signature_algorithm: ecdsa_secp256r1_sha256
	sigLen := make([]byte, 2)
	binary.BigEndian.PutUint16(sigLen, uint16(len(s.Signature)))
	b = append(b, sigLen...)
	b = append(b, s.Signature...)
	return b
}

func parseServerKeyExchange(b []byte) (ServerKeyExchange, error) {
	if len(b) < 4 {
		return ServerKeyExchange{}, errors.New("dtls: server key exchange too short")
	}
	curve := binary.BigEndian.Uint16(b[1:3])
	pubLen := int(b[3])
	if len(b) < 4+pubLen+4 {
		return ServerKeyExchange{}, errors.New("dtls: server key exchange truncated")
	}
	pub := b[4 : 4+pubLen]
	rest := b[4+pubLen:]
	sigLen := int(binary.BigEndian.Uint16(rest[2:4]))
	if len(rest) < 4+sigLen {
		return ServerKeyExchange{}, errors.New("dtls: server key exchange signature truncated")
	}
	sig := rest[4 : 4+sigLen]
	return ServerKeyExchange{NamedCurve: curve, PublicKey: append([]byte(nil), pub...), Signature: append([]byte(nil), sig...)}, nil
}

// ClientKeyExchange carries the client's ephemeral ECDHE public key.
type ClientKeyExchange struct {
	PublicKey []byte
}

func (c ClientKeyExchange) marshal() []byte {
	return append([]byte{byte(len(c.PublicKey))}, c.PublicKey...)
}

func parseClientKeyExchange(b []byte) (ClientKeyExchange, error) {
	if len(b) < 1 {
		return ClientKeyExchange{}, errors.New("dtls: client key exchange too short")
	}
	n := int(b[0])
	if len(b) < 1+n {
		return ClientKeyExchange{}, errors.New("dtls: client key exchange truncated")
	}
	return ClientKeyExchange{PublicKey: append([]byte(nil), b[1:1+n]...)}, nil
}

// CertificateVerify carries the client's signature over the handshake
// transcript so far, proving possession of the certificate's private
// key (mutual auth; required since WebRTC authenticates both peers via
// SDP fingerprints).
type CertificateVerify struct {
	Signature []byte
}

func (c CertificateVerify) marshal() []byte {
	b := []byte{4, 3}
	sigLen := make([]byte, 2)
	binary.BigEndian.PutUint16(sigLen, uint16(len(c.Signature)))
	b = append(b, sigLen...)
	return append(b, c.Signature...)
}

func parseCertificateVerify(b []byte) (CertificateVerify, error) {
	if len(b) < 4 {
		return CertificateVerify{}, errors.New("dtls: certificate verify too short")
	}
	sigLen := int(binary.BigEndian.Uint16(b[2:4]))
	if len(b) < 4+sigLen {
		return CertificateVerify{}, errors.New("dtls: certificate verify truncated")
	}
	return CertificateVerify{Signature: append([]byte(nil), b[4:4+sigLen]...)}, nil
}

// Finished carries the 12-byte verify_data computed over the
// handshake transcript.
type Finished struct {
	VerifyData [12]byte
}

func (f Finished) marshal() []byte { return f.VerifyData[:] }

func parseFinished(b []byte) (Finished, error) {
	if len(b) != 12 {
		return Finished{}, errors.New("dtls: finished has wrong length")
	}
	var f Finished
	copy(f.VerifyData[:], b)
	return f, nil
}
