package dtls

import (
	"crypto/hmac"
	"crypto/sha256"

	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// referencePHash reimplements RFC 5246 §5's P_hash independently of
// internal/crypto.PHash, against crypto/hmac and crypto/sha256
// directly, so the comparison below is a real external check rather
// than a second call into the code under test.
func referencePHash(secret, seed []byte, length int) []byte {
	out := make([]byte, 0, length)
	a := hmacSum(secret, seed)
	for len(out) < length {
		out = append(out, hmacSum(secret, append(append([]byte{}, a...), seed...))...)
		a = hmacSum(secret, a)
	}
	return out[:length]
}

func hmacSum(key, data []byte) []byte {
	mac := hmac.New(sha256.New, key)
	mac.Write(data)
	return mac.Sum(nil)
}

// referenceExporter reimplements the RFC 5705 keying-material exporter
// formula used by SRTPKeyingMaterial: PRF(master_secret,
// "EXTRACTOR-dtls_srtp", client_random||server_random).
func referenceExporter(masterSecret, clientRandom, serverRandom []byte, length int) []byte {
	seed := append(append(append([]byte{}, []byte("EXTRACTOR-dtls_srtp")...), clientRandom...), serverRandom...)
	return referencePHash(masterSecret, seed, length)
}

func TestSRTPKeyingMaterialMatchesRFC5705Formula(t *testing.T) {
	masterSecret := make([]byte, 48)
	for i := range masterSecret {
		masterSecret[i] = byte(i)
	}
	clientRandom := make([]byte, 32)
	for i := range clientRandom {
		clientRandom[i] = byte(0x40 + i)
	}
	serverRandom := make([]byte, 32)
	for i := range serverRandom {
		serverRandom[i] = byte(0x80 + i)
	}

	got := SRTPKeyingMaterial(masterSecret, clientRandom, serverRandom, 16, 12)
	want := referenceExporter(masterSecret, clientRandom, serverRandom, 2*(16+12))

	require.Len(t, got, 60)
	assert.Equal(t, want, got)
}

func TestSRTPKeyingMaterialIsDeterministic(t *testing.T) {
	masterSecret := []byte("0123456789012345678901234567890123456789012345")
	clientRandom := []byte("client-random-client-random!!!!")
	serverRandom := []byte("server-random-server-random!!!!")

	first := SRTPKeyingMaterial(masterSecret, clientRandom, serverRandom, 16, 12)
	second := SRTPKeyingMaterial(masterSecret, clientRandom, serverRandom, 16, 12)
	assert.Equal(t, first, second)

	swapped := SRTPKeyingMaterial(masterSecret, serverRandom, clientRandom, 16, 12)
	assert.NotEqual(t, first, swapped)
}

func TestSplitSRTPKeysOrdering(t *testing.T) {
	material := make([]byte, 2*(16+12))
	for i := range material {
		material[i] = byte(i)
	}

	keys := SplitSRTPKeys(material, 16, 12)
	assert.Equal(t, material[0:16], keys.ClientWriteKey)
	assert.Equal(t, material[16:32], keys.ServerWriteKey)
	assert.Equal(t, material[32:44], keys.ClientWriteSalt)
	assert.Equal(t, material[44:56], keys.ServerWriteSalt)
}

func TestMasterSecretAndKeyBlockAreDeterministicAndDistinct(t *testing.T) {
	preMaster := []byte("shared-ecdhe-secret-shared-ecdhe!!")
	clientRandom := make([]byte, 32)
	serverRandom := make([]byte, 32)
	for i := range clientRandom {
		clientRandom[i] = byte(i)
		serverRandom[i] = byte(31 - i)
	}

	ms1 := MasterSecret(preMaster, clientRandom, serverRandom)
	ms2 := MasterSecret(preMaster, clientRandom, serverRandom)
	require.Len(t, ms1, 48)
	assert.Equal(t, ms1, ms2)

	kb := DeriveKeyBlock(ms1, serverRandom, clientRandom)
	assert.Len(t, kb.ClientWriteKey, 16)
	assert.Len(t, kb.ServerWriteKey, 16)
	assert.NotEqual(t, kb.ClientWriteKey, kb.ServerWriteKey)
}
