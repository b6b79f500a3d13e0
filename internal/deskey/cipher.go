package deskey

import (
	"bytes"
	"crypto/aes"
	"crypto/cipher"
	"crypto/des" //nolint:staticcheck // DESFire legacy key types require DES/3DES.
	"fmt"
)

// NewBlock builds the stdlib block cipher for a session key of the given
// type. A DES key (8 bytes) is used as single DES; a 2TDEA key (16 bytes)
// is expanded to the 3DES EDE2 form (K1||K2||K1); see NormalizeTDEAKey.
func NewBlock(t KeyType, key []byte) (cipher.Block, error) {
	if len(key) != t.SessionKeyLength() && !(t == DES && len(key) == 8) {
		return nil, fmt.Errorf("deskey: %s key must be %d bytes, got %d", t, t.SessionKeyLength(), len(key))
	}
	switch t {
	case DES:
		return des.NewCipher(key)
	case TwoTDEA:
		return des.NewTripleDESCipher(NormalizeTDEAKey(key))
	case ThreeTDEA:
		return des.NewTripleDESCipher(key)
	case AES:
		return aes.NewCipher(key)
	default:
		return nil, fmt.Errorf("deskey: unknown key type %v", t)
	}
}

// NormalizeTDEAKey expands a 16-byte 2TDEA key (K1||K2) into the 24-byte
// EDE2 form (K1||K2||K1) crypto/des.NewTripleDESCipher expects.
func NormalizeTDEAKey(key16 []byte) []byte {
	out := make([]byte, 24)
	copy(out, key16)
	copy(out[16:], key16[:8])
	return out
}

// CollapseSessionKey re-collapses a derived 3DES session key so that, if
// its two 8-byte halves happen to be equal, the output also reports equal
// halves — this is the signal downstream DESFire code uses to detect that
// single-DES is effectively in force even though the session key slot is
// nominally 2TDEA-shaped. See spec §4.A "DES <-> 2TDEA normalisation".
func CollapseSessionKey(sessionKey []byte) []byte {
	if len(sessionKey) != 16 {
		return sessionKey
	}
	if bytes.Equal(sessionKey[:8], sessionKey[8:]) {
		out := make([]byte, 16)
		copy(out, sessionKey[:8])
		copy(out[8:], sessionKey[:8])
		return out
	}
	return sessionKey
}

// EncryptCBC CBC-encrypts data (which must already be block aligned) with
// the given key/IV. Used by EV1/EV2 and AES paths (see channel package for
// the d40 ECB-with-XOR-chaining variant).
func EncryptCBC(t KeyType, key, iv, data []byte) ([]byte, error) {
	block, err := NewBlock(t, key)
	if err != nil {
		return nil, err
	}
	bs := block.BlockSize()
	if len(data)%bs != 0 {
		return nil, fmt.Errorf("deskey: CBC encrypt: data not block aligned (%d bytes, block %d)", len(data), bs)
	}
	out := make([]byte, len(data))
	cipher.NewCBCEncrypter(block, iv).CryptBlocks(out, data)
	return out, nil
}

// DecryptCBC is the inverse of EncryptCBC.
func DecryptCBC(t KeyType, key, iv, data []byte) ([]byte, error) {
	block, err := NewBlock(t, key)
	if err != nil {
		return nil, err
	}
	bs := block.BlockSize()
	if len(data)%bs != 0 {
		return nil, fmt.Errorf("deskey: CBC decrypt: data not block aligned (%d bytes, block %d)", len(data), bs)
	}
	out := make([]byte, len(data))
	cipher.NewCBCDecrypter(block, iv).CryptBlocks(out, data)
	return out, nil
}

// EncryptECBBlock encrypts exactly one block in ECB mode (used for d40's
// block cipher primitive and for EV2's session-IV derivation).
func EncryptECBBlock(t KeyType, key, blockIn []byte) ([]byte, error) {
	block, err := NewBlock(t, key)
	if err != nil {
		return nil, err
	}
	bs := block.BlockSize()
	if len(blockIn) != bs {
		return nil, fmt.Errorf("deskey: ECB input must be %d bytes, got %d", bs, len(blockIn))
	}
	out := make([]byte, bs)
	block.Encrypt(out, blockIn)
	return out, nil
}

// DecryptECBBlock decrypts exactly one block in ECB mode.
func DecryptECBBlock(t KeyType, key, blockIn []byte) ([]byte, error) {
	block, err := NewBlock(t, key)
	if err != nil {
		return nil, err
	}
	bs := block.BlockSize()
	if len(blockIn) != bs {
		return nil, fmt.Errorf("deskey: ECB input must be %d bytes, got %d", bs, len(blockIn))
	}
	out := make([]byte, bs)
	block.Decrypt(out, blockIn)
	return out, nil
}

// XorBlock writes a^b into dst, truncated to the shorter of a, b.
func XorBlock(dst, a, b []byte) {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	for i := 0; i < n; i++ {
		dst[i] = a[i] ^ b[i]
	}
}

// Zero overwrites a byte slice with zeros in place. Callers are responsible
// for zeroising key material and intermediate nonces after use (spec §9);
// the language runtime gives no implicit guarantee.
func Zero(b []byte) {
	for i := range b {
		b[i] = 0
	}
}
