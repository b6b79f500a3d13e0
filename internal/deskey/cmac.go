package deskey

import "crypto/cipher"

// CMAC computes a NIST SP 800-38B CMAC over msg using the session key's
// native block cipher. For AES this is the standard construction; the same
// subkey derivation and XOR-then-encrypt chaining applies unchanged when the
// underlying block is DES/3DES (an 8-byte-block CMAC), which is what the
// legacy EV1 3DES/2TDEA channel uses in place of AES-CMAC.
func CMAC(t KeyType, key, msg []byte) ([]byte, error) {
	block, err := NewBlock(t, key)
	if err != nil {
		return nil, err
	}
	return cmacWithBlock(block, msg), nil
}

// CMACSubkeys derives the (K1, K2) CMAC subkeys for the session key per
// NIST SP 800-38B, generalised to whatever block size the key type uses.
func CMACSubkeys(t KeyType, sessionKey []byte) (k1, k2 []byte, err error) {
	block, err := NewBlock(t, sessionKey)
	if err != nil {
		return nil, nil, err
	}
	k1, k2 = generateCMACSubkeys(block)
	return k1, k2, nil
}

func cmacWithBlock(block cipher.Block, msg []byte) []byte {
	bs := block.BlockSize()
	k1, k2 := generateCMACSubkeys(block)

	n := (len(msg) + bs - 1) / bs
	if n == 0 {
		n = 1
	}
	lastComplete := len(msg) != 0 && len(msg)%bs == 0

	last := make([]byte, bs)
	if lastComplete {
		copy(last, msg[(n-1)*bs:])
		XorBlock(last, last, k1)
	} else {
		remain := len(msg) - (n-1)*bs
		if remain > 0 {
			copy(last, msg[(n-1)*bs:])
		}
		last[remain] = 0x80
		XorBlock(last, last, k2)
	}

	x := make([]byte, bs)
	y := make([]byte, bs)
	for i := 0; i < n-1; i++ {
		start := i * bs
		XorBlock(y, x, msg[start:start+bs])
		block.Encrypt(x, y)
	}
	XorBlock(y, x, last)
	block.Encrypt(x, y)
	return x
}

// generateCMACSubkeys implements the SP 800-38B L/K1/K2 subkey derivation
// for an arbitrary block size, using the block-size-appropriate Rb constant:
// 0x1B for 64-bit blocks (DES/2TDEA/3TDEA), 0x87 for 128-bit blocks (AES).
func generateCMACSubkeys(block cipher.Block) (k1, k2 []byte) {
	bs := block.BlockSize()
	var rb byte = 0x87
	if bs == 8 {
		rb = 0x1B
	}
	zero := make([]byte, bs)
	L := make([]byte, bs)
	block.Encrypt(L, zero)

	k1 = make([]byte, bs)
	leftShift1(k1, L)
	if (L[0] & 0x80) != 0 {
		k1[bs-1] ^= rb
	}

	k2 = make([]byte, bs)
	leftShift1(k2, k1)
	if (k1[0] & 0x80) != 0 {
		k2[bs-1] ^= rb
	}
	return k1, k2
}

func leftShift1(dst, src []byte) {
	var carry byte
	for i := len(src) - 1; i >= 0; i-- {
		b := src[i]
		dst[i] = (b << 1) | carry
		carry = (b >> 7) & 1
	}
}

// TruncateOddBytes extracts the 8 truncated CMAC bytes DESFire appends to
// MAC-protected commands/responses: every odd-indexed byte (1,3,5,...) of
// the full CMAC, per the MIFARE DESFire EV1/EV2 truncation rule.
func TruncateOddBytes(fullMAC []byte) []byte {
	out := make([]byte, len(fullMAC)/2)
	for i := range out {
		out[i] = fullMAC[1+i*2]
	}
	return out
}
