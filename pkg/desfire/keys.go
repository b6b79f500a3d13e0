package desfire

import (
	"context"
	"fmt"

	"github.com/go-desfire/desfire/internal/deskey"
	"github.com/go-desfire/desfire/pkg/desfire/channel"
	"github.com/go-desfire/desfire/pkg/desfire/wire"
)

// GetKeySettings returns the selected application's key-settings byte and
// number-of-keys byte (the same encoding CreateApplication wrote).
func (c *Context) GetKeySettings(ctx context.Context) (settings byte, numKeys byte, err error) {
	data, err := c.exchange(ctx, "GetKeySettings", wire.InsGetKeySettings, nil, channel.Plain)
	if err != nil {
		return 0, 0, err
	}
	if len(data) != 2 {
		return 0, 0, newErr(KindCardExchange, "GetKeySettings", fmt.Errorf("expected 2 bytes, got %d", len(data)))
	}
	return data[0], data[1], nil
}

// GetKeyVersion returns the version byte last stored for keyNum by
// ChangeKey.
func (c *Context) GetKeyVersion(ctx context.Context, keyNum byte) (byte, error) {
	data, err := c.exchange(ctx, "GetKeyVersion", wire.InsGetKeyVersion, []byte{keyNum}, channel.Plain)
	if err != nil {
		return 0, err
	}
	if len(data) != 1 {
		return 0, newErr(KindCardExchange, "GetKeyVersion", fmt.Errorf("expected 1 byte, got %d", len(data)))
	}
	return data[0], nil
}

// ChangeKeySettings updates the application's key-settings byte. Must be
// authenticated with the application master key.
func (c *Context) ChangeKeySettings(ctx context.Context, settings byte) error {
	_, err := c.exchange(ctx, "ChangeKeySettings", wire.InsChangeKeySettings, []byte{settings}, channel.Encrypted)
	return err
}

// ChangeKey implements spec §4.F's ChangeKey: current key slot authNum
// (the authenticated key) changes keyNum to newKey/newVersion. If keyNum
// != authNum, newKey is first XORed with the old key (the shorter one
// zero-extended to the longer one's length) so the PICC can reconstruct
// it, and a second CRC over the bare
// (undiversified) new key material is appended so the PICC can verify the
// key it recovers. After a self-key-change the session is cleared (the
// PICC's own session is no longer valid against the new key).
func (c *Context) ChangeKey(ctx context.Context, keyNum byte, newKey []byte, newKeyType deskey.KeyType, version byte, oldKey []byte) error {
	if len(newKey) != newKeyType.KeyLength() {
		return invalidArg("ChangeKey", "new key length %d does not match %s", len(newKey), newKeyType)
	}
	sameSlot := keyNum == c.KeyNum

	keyMaterial := append([]byte{}, newKey...)
	if !sameSlot {
		if oldKey == nil {
			return invalidArg("ChangeKey", "cross-slot ChangeKey requires oldKey for XOR diversification")
		}
		keyMaterial = xorDiversify(newKey, oldKey)
	}

	header := keyNum
	if keyNum == 0 && isMasterKeyAlgoTagged(c) {
		header |= masterKeyAlgoTag(newKeyType)
	}

	body := append([]byte{}, keyMaterial...)
	if newKeyType == deskey.AES {
		body = append(body, version)
	}

	var payload []byte
	if c.SecureChannel() == channel.D40 {
		// Legacy d40 covers only the key material with CRC16; when
		// diversifying across slots a second CRC16 over the bare new key
		// is appended (spec §4.F).
		crcNew := wire.LE2(deskey.CRC16ISO14443A(keyMaterial))
		payload = append(append([]byte{header}, body...), crcNew...)
		if !sameSlot {
			payload = append(payload, wire.LE2(deskey.CRC16ISO14443A(newKey))...)
		}
	} else {
		// The primary CRC32 always covers the whole command (spec §4.F:
		// "EV1/EV2 -> CRC32 over INS || key_no_byte || payload"). Cross-slot
		// changes additionally append a CRC32 over the bare new key material
		// (undiversified) so the PICC can verify the key it reconstructs
		// after undoing the XOR, matching the d40 branch's doubled CRC above.
		crcInput := append([]byte{wire.InsChangeKey, header}, body...)
		crcCmd := deskey.CRC32DESFire(crcInput)
		payload = append(append([]byte{header}, body...), wire.LE4(crcCmd)...)
		if !sameSlot {
			newKeyBody := append([]byte{}, newKey...)
			if newKeyType == deskey.AES {
				newKeyBody = append(newKeyBody, version)
			}
			crcNew := deskey.CRC32DESFire(newKeyBody)
			payload = append(payload, wire.LE4(crcNew)...)
		}
	}

	_, err := c.exchange(ctx, "ChangeKey", wire.InsChangeKey, payload, channel.Encrypted)
	if err != nil {
		return err
	}
	if sameSlot {
		c.ClearSession()
	}
	return nil
}

// ChangeKeySame is the supplemented same-slot convenience (spec §9: the
// original implementation special-cases this because the response carries
// no CMAC once the key that authenticated the session has just changed).
// It builds the secure-messaging APDU itself and bypasses the normal
// Unwrap, since Unwrap would reject a status-only response as an integrity
// failure.
func (c *Context) ChangeKeySame(ctx context.Context, newKey []byte, newKeyType deskey.KeyType, version byte) error {
	if len(newKey) != newKeyType.KeyLength() {
		return invalidArg("ChangeKeySame", "new key length %d does not match %s", len(newKey), newKeyType)
	}
	if !c.IsAuthenticated() {
		return invalidArg("ChangeKeySame", "no authenticated session")
	}

	body := append([]byte{}, newKey...)
	if newKeyType == deskey.AES {
		body = append(body, version)
	}

	wrapped, err := c.chState.Wrap(wire.InsChangeKey, body, channel.Encrypted)
	if err != nil {
		return newErr(KindApduEncode, "ChangeKeySame", err)
	}
	payload := append([]byte{c.KeyNum}, wrapped...)

	status, _, err := c.engine.RoundTrip(ctx, wire.InsChangeKey, payload, false)
	c.ClearSession()
	if err != nil {
		return newErr(KindTransport, "ChangeKeySame", err)
	}
	if !status.IsNonError() {
		return &Error{Kind: KindApduFail, Status: byte(status), Op: "ChangeKeySame"}
	}
	return nil
}

// xorDiversify XORs newKey against oldKey, both padded out to the longer
// of the two (2TDEA length, 16 bytes, is the common case per spec §4.F).
func xorDiversify(newKey, oldKey []byte) []byte {
	n := len(newKey)
	if len(oldKey) > n {
		n = len(oldKey)
	}
	out := make([]byte, n)
	for i := 0; i < n; i++ {
		var a, b byte
		if i < len(newKey) {
			a = newKey[i]
		}
		if i < len(oldKey) {
			b = oldKey[i]
		}
		out[i] = a ^ b
	}
	return out
}

// isMasterKeyAlgoTagged reports whether keyNum 0 is the PICC master key
// slot (app not selected, or the master application 000000) where the
// upper bits of the key-number byte additionally select the algorithm
// (spec §4.F).
func isMasterKeyAlgoTagged(c *Context) bool {
	return !c.appSelected
}

func masterKeyAlgoTag(t deskey.KeyType) byte {
	switch t {
	case deskey.ThreeTDEA:
		return 0x40
	case deskey.AES:
		return 0x80
	default:
		return 0x00
	}
}
