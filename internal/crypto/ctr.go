package crypto

import (
	"crypto/aes"
	"crypto/cipher"
)

// CounterMode wraps AES in CTR mode as used by SRTP's AES-CM cipher:
// a keystream generator XORed with plaintext, with no authentication
// of its own (SRTP layers HMAC-SHA1 on top in the non-GCM profile).
type CounterMode struct {
	block cipher.Block
}

// NewCounterMode constructs an AES-CM keystream generator from a raw key.
func NewCounterMode(key []byte) (*CounterMode, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	return &CounterMode{block: block}, nil
}

// XORKeyStream XORs src with the AES-CTR keystream seeded by iv
// (16 bytes), writing the result to dst. dst and src may overlap
// exactly as with crypto/cipher.Stream.
func (c *CounterMode) XORKeyStream(dst, src, iv []byte) {
	stream := cipher.NewCTR(c.block, iv)
	stream.XORKeyStream(dst, src)
}

// BlockSize returns the underlying block cipher's block size (16 for AES).
func (c *CounterMode) BlockSize() int { return c.block.BlockSize() }
