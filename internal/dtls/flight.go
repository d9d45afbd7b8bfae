package dtls

import (
	"crypto/ecdsa"
	"crypto/x509"
	"fmt"

	vcrypto "github.com/vela-rtc/webrtc/internal/crypto"
)

// handshakeClient drives the two client flights of a DTLS 1.2 handshake:
//
//	Flight 1: ClientHello -> HelloVerifyRequest -> ClientHello+cookie
//	Flight 3: -> ServerHello+Certificate+ServerKeyExchange+CertificateRequest+ServerHelloDone
//	Flight 5: Certificate+ClientKeyExchange+CertificateVerify+ChangeCipherSpec+Finished -> ChangeCipherSpec+Finished
func (c *Conn) handshakeClient() error {
	c.clientRandom = randomBytes()

	ch := ClientHello{Random: c.clientRandom, SRTPProfile: 0x0007}
	hello := fragment(HandshakeTypeClientHello, c.nextMessageSeq(), ch.marshal())
	raw, err := c.sendFlight(hello, ContentTypeHandshake)
	if err != nil {
		return err
	}

	// The server answers an un-cookied ClientHello with
	// HelloVerifyRequest; that exchange (and the un-cookied ClientHello
	// itself) is excluded from the transcript hash: only the ClientHello
	// the server answers with ServerHello starts the transcript.
	firstMsg, err := c.readHandshakeMessage(raw, HandshakeTypeHelloVerifyRequest, HandshakeTypeServerHello)
	if err != nil {
		return err
	}

	var serverFlightStart *HandshakeMessage
	if firstMsg.Header.Type == HandshakeTypeHelloVerifyRequest {
		hvr, err := parseHelloVerifyRequest(firstMsg.Body)
		if err != nil {
			return err
		}
		ch.Cookie = hvr.Cookie
		hello = fragment(HandshakeTypeClientHello, c.nextMessageSeq(), ch.marshal())
		raw, err = c.sendFlight(hello, ContentTypeHandshake)
		if err != nil {
			return err
		}
		c.appendTranscript(hello[0])
	} else {
		c.appendTranscript(hello[0])
		c.appendTranscript(firstMsg.Raw)
		serverFlightStart = firstMsg
	}

	sh, cert, ske, err := c.collectServerFlight(raw, serverFlightStart)
	if err != nil {
		return err
	}
	c.serverRandom = sh

	if !vcrypto.VerifyFingerprint(cert.Raw, c.peerFingerprint) {
		return ErrFingerprintMismatch
	}
	c.PeerCertificate = cert

	peerPub, ok := cert.PublicKey.(*ecdsa.PublicKey)
	if !ok {
		return fmt.Errorf("dtls: peer certificate is not ECDSA")
	}
	if !verifyTranscriptSignature(peerPub, c.clientRandom, c.serverRandom, ske.NamedCurve, ske.PublicKey, ske.Signature) {
		return fmt.Errorf("dtls: server key exchange signature invalid")
	}

	priv, err := ecdheKeyPair()
	if err != nil {
		return err
	}
	shared, err := deriveSharedSecret(priv, ske.PublicKey)
	if err != nil {
		return err
	}
	c.masterSecret = MasterSecret(shared, c.clientRandom[:], c.serverRandom[:])

	// Client flight 2: Certificate, ClientKeyExchange, CertificateVerify,
	// ChangeCipherSpec (implicit via epoch bump), Finished.
	certMsg := marshalCertificateMessage([][]byte{c.localCert.DER})
	cke := ClientKeyExchange{PublicKey: ecPointUncompressed(priv.PublicKey())}
	cvSig, err := signTranscript(c.localCert.PrivateKey, c.clientRandom, c.serverRandom, ske.NamedCurve, cke.PublicKey)
	if err != nil {
		return err
	}
	cv := CertificateVerify{Signature: cvSig}

	var out [][]byte
	out = append(out, fragment(HandshakeTypeCertificate, c.nextMessageSeq(), certMsg)...)
	out = append(out, fragment(HandshakeTypeClientKeyExchange, c.nextMessageSeq(), cke.marshal())...)
	out = append(out, fragment(HandshakeTypeCertificateVerify, c.nextMessageSeq(), cv.marshal())...)
	for _, m := range out {
		c.appendTranscript(m)
	}

	kb := DeriveKeyBlock(c.masterSecret, c.serverRandom[:], c.clientRandom[:])
	writeAEAD, err := vcrypto.NewGCM(kb.ClientWriteKey)
	if err != nil {
		return err
	}
	c.writeCipher = &CipherState{AEAD: writeAEAD, Salt: kb.ClientWriteSalt, Epoch: 1}

	finished := c.makeFinished("client finished")
	finMsg := fragment(HandshakeTypeFinished, c.nextMessageSeq(), finished.marshal())
	c.appendTranscript(finMsg[0])
	c.epoch = 1
	out = append(out, finMsg...)

	raw2, err := c.sendFlight(out, ContentTypeHandshake)
	if err != nil {
		return err
	}

	readAEAD, err := vcrypto.NewGCM(kb.ServerWriteKey)
	if err != nil {
		return err
	}
	c.readCipher = &CipherState{AEAD: readAEAD, Salt: kb.ServerWriteSalt, Epoch: 1}

	srvFin, err := c.readHandshakeMessage(raw2, HandshakeTypeFinished)
	if err != nil {
		return err
	}
	fin, err := parseFinished(srvFin.Body)
	if err != nil {
		return err
	}
	if !c.verifyFinished("server finished", fin) {
		return fmt.Errorf("dtls: server finished verify_data mismatch")
	}

	c.ExportedSRTPKeyingMaterial = SRTPKeyingMaterial(c.masterSecret, c.clientRandom[:], c.serverRandom[:], 16, 12)
	return nil
}

// collectServerFlight reads records (starting from raw, fetching more
// as needed) until ServerHello, Certificate, ServerKeyExchange and
// ServerHelloDone have all been seen. CertificateRequest is accepted
// and ignored beyond acknowledging it arrived, since this stack always
// presents a client certificate.
func (c *Conn) collectServerFlight(raw []byte, already *HandshakeMessage) (Random, *x509.Certificate, ServerKeyExchange, error) {
	var sh ServerHello
	var cert *x509.Certificate
	var ske ServerKeyExchange
	haveSH, haveCert, haveSKE, haveDone := false, false, false, false

	process := func(msg *HandshakeMessage) error {
		c.appendTranscript(msg.Raw)
		switch msg.Header.Type {
		case HandshakeTypeServerHello:
			parsed, err := parseServerHello(msg.Body)
			if err != nil {
				return err
			}
			sh = parsed
			haveSH = true
		case HandshakeTypeCertificate:
			certList, err := parseCertificateMessage(msg.Body)
			if err != nil {
				return err
			}
			if len(certList) == 0 {
				return fmt.Errorf("dtls: empty certificate message")
			}
			cert = certList[0]
			haveCert = true
		case HandshakeTypeServerKeyExchange:
			parsed, err := parseServerKeyExchange(msg.Body)
			if err != nil {
				return err
			}
			ske = parsed
			haveSKE = true
		case HandshakeTypeServerHelloDone:
			haveDone = true
		}
		return nil
	}

	if already != nil {
		if err := process(already); err != nil {
			return Random{}, nil, ServerKeyExchange{}, err
		}
	}

	for !haveDone {
		records, err := SplitRecords(raw)
		if err != nil {
			return Random{}, nil, ServerKeyExchange{}, err
		}
		for _, rec := range records {
			header, err := unmarshalRecordHeader(rec)
			if err != nil {
				return Random{}, nil, ServerKeyExchange{}, err
			}
			if header.Type != ContentTypeHandshake {
				continue
			}
			msg, err := c.reassembler.Add(rec[13:])
			if err != nil {
				return Random{}, nil, ServerKeyExchange{}, err
			}
			if msg == nil {
				continue
			}
			if err := process(msg); err != nil {
				return Random{}, nil, ServerKeyExchange{}, err
			}
		}
		if haveDone {
			break
		}
		raw, err = c.readRecord()
		if err != nil {
			return Random{}, nil, ServerKeyExchange{}, err
		}
	}

	if !haveSH || !haveCert || !haveSKE {
		return Random{}, nil, ServerKeyExchange{}, fmt.Errorf("dtls: incomplete server flight")
	}
	return sh.Random, cert, ske, nil
}

const namedCurveSecp256r1 uint16 = 23

// handshakeServer drives the server side of the same flights.
func (c *Conn) handshakeServer() error {
	raw, err := c.readRecord()
	if err != nil {
		return err
	}
	chMsg, err := c.readHandshakeMessage(raw, HandshakeTypeClientHello)
	if err != nil {
		return err
	}
	ch, err := parseClientHello(chMsg.Body)
	if err != nil {
		return err
	}

	if len(ch.Cookie) == 0 {
		// Require a cookie round trip before committing any
		// per-connection state (RFC 6347 §4.2.1 DoS mitigation).
		cookie := make([]byte, 16)
		for i := range cookie {
			cookie[i] = byte(i*31 + 7)
		}
		hvr := HelloVerifyRequest{Cookie: cookie}
		raw2, err := c.sendFlight(fragment(HandshakeTypeHelloVerifyRequest, c.nextMessageSeq(), hvr.marshal()), ContentTypeHandshake)
		if err != nil {
			return err
		}
		chMsg, err = c.readHandshakeMessage(raw2, HandshakeTypeClientHello)
		if err != nil {
			return err
		}
		ch, err = parseClientHello(chMsg.Body)
		if err != nil {
			return err
		}
	}
	c.clientRandom = ch.Random
	c.appendTranscript(chMsg.Raw)

	c.serverRandom = randomBytes()
	sh := ServerHello{Random: c.serverRandom}

	priv, err := ecdheKeyPair()
	if err != nil {
		return err
	}
	pub := ecPointUncompressed(priv.PublicKey())
	sig, err := signTranscript(c.localCert.PrivateKey, c.clientRandom, c.serverRandom, namedCurveSecp256r1, pub)
	if err != nil {
		return err
	}
	ske := ServerKeyExchange{NamedCurve: namedCurveSecp256r1, PublicKey: pub, Signature: sig}
	certMsg := marshalCertificateMessage([][]byte{c.localCert.DER})

	var flight [][]byte
	flight = append(flight, fragment(HandshakeTypeServerHello, c.nextMessageSeq(), sh.marshal())...)
	flight = append(flight, fragment(HandshakeTypeCertificate, c.nextMessageSeq(), certMsg)...)
	flight = append(flight, fragment(HandshakeTypeServerKeyExchange, c.nextMessageSeq(), ske.marshal())...)
	flight = append(flight, fragment(HandshakeTypeCertificateRequest, c.nextMessageSeq(), []byte{1, 3})...)
	flight = append(flight, fragment(HandshakeTypeServerHelloDone, c.nextMessageSeq(), nil)...)
	for _, m := range flight {
		c.appendTranscript(m)
	}

	raw3, err := c.sendFlight(flight, ContentTypeHandshake)
	if err != nil {
		return err
	}

	cert, cke, cv, err := c.collectClientFlight(raw3)
	if err != nil {
		return err
	}

	if !vcrypto.VerifyFingerprint(cert.Raw, c.peerFingerprint) {
		return ErrFingerprintMismatch
	}
	peerPub, ok := cert.PublicKey.(*ecdsa.PublicKey)
	if !ok {
		return fmt.Errorf("dtls: client certificate is not ECDSA")
	}
	if !verifyTranscriptSignature(peerPub, c.clientRandom, c.serverRandom, namedCurveSecp256r1, cke.PublicKey, cv.Signature) {
		return fmt.Errorf("dtls: client certificate verify signature invalid")
	}
	c.PeerCertificate = cert

	shared, err := deriveSharedSecret(priv, cke.PublicKey)
	if err != nil {
		return err
	}
	c.masterSecret = MasterSecret(shared, c.clientRandom[:], c.serverRandom[:])

	// Only once the master secret is known can the client's next
	// (encrypted, epoch 1) Finished be decrypted, so the read cipher is
	// installed here before requesting another handshake message.
	kb := DeriveKeyBlock(c.masterSecret, c.serverRandom[:], c.clientRandom[:])
	readAEAD, err := vcrypto.NewGCM(kb.ClientWriteKey)
	if err != nil {
		return err
	}
	c.readCipher = &CipherState{AEAD: readAEAD, Salt: kb.ClientWriteSalt, Epoch: 1}

	finRaw, err := c.readRecord()
	if err != nil {
		return err
	}
	clientFin, err := c.readHandshakeMessage(finRaw, HandshakeTypeFinished)
	if err != nil {
		return err
	}
	fin, err := parseFinished(clientFin.Body)
	if err != nil {
		return err
	}
	if !c.verifyFinished("client finished", fin) {
		return fmt.Errorf("dtls: client finished verify_data mismatch")
	}

	writeAEAD, err := vcrypto.NewGCM(kb.ServerWriteKey)
	if err != nil {
		return err
	}
	c.writeCipher = &CipherState{AEAD: writeAEAD, Salt: kb.ServerWriteSalt, Epoch: 1}
	c.epoch = 1

	finished := c.makeFinished("server finished")
	finWire := fragment(HandshakeTypeFinished, c.nextMessageSeq(), finished.marshal())
	if _, err := c.netConn.Write(c.writeCipher.EncryptRecord(ContentTypeHandshake, finWire[0])); err != nil {
		return err
	}

	c.ExportedSRTPKeyingMaterial = SRTPKeyingMaterial(c.masterSecret, c.clientRandom[:], c.serverRandom[:], 16, 12)
	return nil
}

// collectClientFlight reads records until Certificate, ClientKeyExchange
// and CertificateVerify have all been seen. It deliberately stops short
// of Finished: that message arrives encrypted under the new epoch and
// must be read separately once the record cipher has been derived.
func (c *Conn) collectClientFlight(raw []byte) (*x509.Certificate, ClientKeyExchange, CertificateVerify, error) {
	var cert *x509.Certificate
	var cke ClientKeyExchange
	var cv CertificateVerify
	haveCert, haveCKE, haveCV := false, false, false

	for !haveCV {
		records, err := SplitRecords(raw)
		if err != nil {
			return nil, cke, cv, err
		}
		for _, rec := range records {
			header, err := unmarshalRecordHeader(rec)
			if err != nil {
				return nil, cke, cv, err
			}
			if header.Type != ContentTypeHandshake {
				continue
			}
			msg, err := c.reassembler.Add(rec[13:])
			if err != nil {
				return nil, cke, cv, err
			}
			if msg == nil {
				continue
			}
			c.appendTranscript(msg.Raw)
			switch msg.Header.Type {
			case HandshakeTypeCertificate:
				certList, err := parseCertificateMessage(msg.Body)
				if err != nil || len(certList) == 0 {
					return nil, cke, cv, fmt.Errorf("dtls: bad client certificate")
				}
				cert = certList[0]
				haveCert = true
			case HandshakeTypeClientKeyExchange:
				cke, err = parseClientKeyExchange(msg.Body)
				if err != nil {
					return nil, cke, cv, err
				}
				haveCKE = true
			case HandshakeTypeCertificateVerify:
				cv, err = parseCertificateVerify(msg.Body)
				if err != nil {
					return nil, cke, cv, err
				}
				haveCV = true
			}
		}
		if haveCV {
			break
		}
		raw, err = c.readRecord()
		if err != nil {
			return nil, cke, cv, err
		}
	}

	if !haveCert || !haveCKE {
		return nil, cke, cv, fmt.Errorf("dtls: incomplete client flight")
	}
	return cert, cke, cv, nil
}
