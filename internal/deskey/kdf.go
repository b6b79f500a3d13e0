package deskey

import "fmt"

// KDFAN10922 implements the NXP AN10922 key-diversification construction:
// CMAC(masterKey, 0x01 || input || 0x00...), where the 0x00 bytes pad the
// message to a whole number of the type's blocks, cut or extended to the
// key type's key length (KeyLength). input must be at most 31 bytes (spec
// §4.A), leaving room for the leading type byte AN10922 prescribes.
//
// Gallagher's card-specific KDF input derivation is deliberately not
// implemented here: per spec §9 Open Question (ii), it was commented out
// in the source this spec was distilled from and is only honoured when a
// concrete Gallagher input is supplied by the caller as kdfInput.
func KDFAN10922(t KeyType, masterKey, kdfInput []byte) ([]byte, error) {
	if len(kdfInput) > 31 {
		return nil, fmt.Errorf("deskey: AN10922 input must be <=31 bytes, got %d", len(kdfInput))
	}
	bs := t.BlockSize()

	msg := make([]byte, 0, bs*2)
	msg = append(msg, 0x01)
	msg = append(msg, kdfInput...)
	for len(msg)%bs != 0 || len(msg) == 0 {
		msg = append(msg, 0x00)
	}

	full, err := CMAC(t, masterKey, msg)
	if err != nil {
		return nil, err
	}

	derived := make([]byte, t.KeyLength())
	switch t {
	case DES:
		copy(derived, full[:8])
	case TwoTDEA:
		copy(derived, full[:16])
	case ThreeTDEA:
		// 3DES CMAC block is 8 bytes; derive a second block keyed off the
		// first so a full 24-byte key can be produced when needed by
		// callers working directly with 3TDEA master keys.
		copy(derived, full)
		second, err := CMAC(t, masterKey, append(append([]byte{}, msg...), full...))
		if err != nil {
			return nil, err
		}
		copy(derived[8:], second[:8])
		if len(derived) > 16 {
			copy(derived[16:], full[:len(derived)-16])
		}
	case AES:
		copy(derived, full)
	}
	return derived, nil
}
