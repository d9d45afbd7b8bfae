package dtls

import (
	vcrypto "github.com/vela-rtc/webrtc/internal/crypto"
)

// MasterSecret derives the 48-byte master secret from the ECDHE shared
// secret and both randoms (RFC 5246 §8.1).
func MasterSecret(preMasterSecret, clientRandom, serverRandom []byte) []byte {
	seed := append(append([]byte{}, clientRandom...), serverRandom...)
	return vcrypto.PRF12(preMasterSecret, seed, 48)
}

// gcmKeyLen and gcmSaltLen size the record-layer key block for this
// stack's single AES-128-GCM suite: two 16-byte write keys and two
// 4-byte implicit IVs (RFC 5288 §3 GCM record layer with implicit
// nonce).
const (
	gcmKeyLen  = 16
	gcmSaltLen = 4
)

// KeyBlock holds the derived per-direction record-layer key material
// for the AES-128-GCM suite.
type KeyBlock struct {
	ClientWriteKey  []byte
	ServerWriteKey  []byte
	ClientWriteSalt [4]byte
	ServerWriteSalt [4]byte
}

// DeriveKeyBlock implements "key_block = PRF(master_secret,
// \"key expansion\", server_random || client_random)", sized for the
// AES-128-GCM suite (2 keys + 2 salts).
func DeriveKeyBlock(masterSecret, serverRandom, clientRandom []byte) KeyBlock {
	seed := append(append([]byte{}, serverRandom...), clientRandom...)
	length := 2*gcmKeyLen + 2*gcmSaltLen
	block := vcrypto.PRF12(masterSecret, seed, length)

	var kb KeyBlock
	off := 0
	kb.ClientWriteKey = block[off : off+gcmKeyLen]
	off += gcmKeyLen
	kb.ServerWriteKey = block[off : off+gcmKeyLen]
	off += gcmKeyLen
	copy(kb.ClientWriteSalt[:], block[off:off+gcmSaltLen])
	off += gcmSaltLen
	copy(kb.ServerWriteSalt[:], block[off:off+gcmSaltLen])
	return kb
}

// SRTPKeyingMaterial implements the RFC 5705 exporter:
// PRF(master_secret, "EXTRACTOR-dtls_srtp", client_random ||
// server_random)[0 .. 2*(keyLen+saltLen)]. keyLen/saltLen depend on
// the negotiated SRTP protection profile; this stack's default
// SRTP_AEAD_AES_128_GCM profile uses a 16-byte key and 12-byte salt.
func SRTPKeyingMaterial(masterSecret, clientRandom, serverRandom []byte, keyLen, saltLen int) []byte {
	label := []byte("EXTRACTOR-dtls_srtp")
	seed := append(append(append([]byte{}, label...), clientRandom...), serverRandom...)
	return vcrypto.PRF12(masterSecret, seed, 2*(keyLen+saltLen))
}

// SRTPKeys splits exported keying material into the four client/server
// key/salt values SRTP contexts need (RFC 5764 §4.2 ordering: client
// write key, server write key, client write salt, server write salt).
type SRTPKeys struct {
	ClientWriteKey, ServerWriteKey   []byte
	ClientWriteSalt, ServerWriteSalt []byte
}

// SplitSRTPKeys slices exported keying material per RFC 5764 §4.2.
func SplitSRTPKeys(material []byte, keyLen, saltLen int) SRTPKeys {
	off := 0
	clientKey := material[off : off+keyLen]
	off += keyLen
	serverKey := material[off : off+keyLen]
	off += keyLen
	clientSalt := material[off : off+saltLen]
	off += saltLen
	serverSalt := material[off : off+saltLen]
	return SRTPKeys{
		ClientWriteKey:  clientKey,
		ServerWriteKey:  serverKey,
		ClientWriteSalt: clientSalt,
		ServerWriteSalt: serverSalt,
	}
}
