package deskey

import "errors"

// PadISO9797M2 pads data to a multiple of blockSize using ISO/IEC 9797-1
// padding method 2: append 0x80 then zero bytes. DESFire always applies
// this before CBC-encrypting a command/response payload in EV1/EV2 mode.
func PadISO9797M2(data []byte, blockSize int) []byte {
	padLen := blockSize - (len(data) % blockSize)
	out := make([]byte, len(data)+padLen)
	copy(out, data)
	out[len(data)] = 0x80
	return out
}

// UnpadISO9797M2 strips ISO/IEC 9797-1 method-2 padding, returning an error
// if the padding is malformed (used to detect decryption under the wrong
// key/IV as an Integrity failure upstream).
func UnpadISO9797M2(data []byte) ([]byte, error) {
	idx := len(data) - 1
	for idx >= 0 && data[idx] == 0x00 {
		idx--
	}
	if idx < 0 || data[idx] != 0x80 {
		return nil, errors.New("deskey: bad ISO 9797-1 method 2 padding")
	}
	return data[:idx], nil
}
