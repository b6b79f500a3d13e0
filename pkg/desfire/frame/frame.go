// Package frame implements the two DESFire wire framings (spec §4.B):
// the native one-byte-INS frame with a trailing status byte, and the
// ISO 7816-4 APDU wrapper (CLA=0x90) with a trailing SW1SW2. Both share the
// same logical status vocabulary, exposed uniformly as wire.Status.
package frame

import (
	"fmt"

	"github.com/go-desfire/desfire/pkg/desfire/wire"
)

// CommandSet selects which wire framing a Context uses.
type CommandSet int

const (
	// Native sends a raw [INS || payload] frame and expects
	// [status_byte || data...] back.
	Native CommandSet = iota
	// NativeISO sends native framing; the exchange engine handles it
	// exactly like Native, with the same wire bytes and the same
	// transport primitive (ExchangeRaw).
	NativeISO
	// ISO wraps every command in a CLA=0x90 APDU and expects SW1SW2 back.
	ISO
)

// EncodeNative builds a native frame: INS followed by the payload.
func EncodeNative(ins byte, payload []byte) []byte {
	out := make([]byte, 0, 1+len(payload))
	out = append(out, ins)
	out = append(out, payload...)
	return out
}

// DecodeNative splits a native response into its normalised status and
// data. resp must include the leading status byte (as exchange_raw
// returns it per spec §6).
func DecodeNative(resp []byte) (status wire.Status, data []byte, err error) {
	if len(resp) < 1 {
		return 0, nil, fmt.Errorf("frame: empty native response")
	}
	return wire.StatusFromNativeByte(resp[0]), resp[1:], nil
}

// EncodeISO wraps a DESFire command in an ISO 7816-4 APDU: CLA=0x90,
// INS=ins, P1=P2=0, Lc=|payload|, payload, Le=0x00.
func EncodeISO(ins byte, payload []byte) ([]byte, error) {
	if len(payload) > 255 {
		return nil, fmt.Errorf("frame: ISO payload too long (%d bytes)", len(payload))
	}
	out := make([]byte, 0, 5+len(payload)+1)
	out = append(out, wire.ISOWrapCLA, ins, 0x00, 0x00, byte(len(payload)))
	out = append(out, payload...)
	out = append(out, 0x00)
	return out, nil
}

// DecodeISO normalises an ISO exchange_apdu result (response body plus the
// already-separated SW) into a wire.Status and the response data.
func DecodeISO(data []byte, sw uint16) (status wire.Status, out []byte, err error) {
	st, ok := wire.StatusFromISO(sw)
	if !ok {
		return 0, nil, fmt.Errorf("frame: unrecognised SW=%04X", sw)
	}
	return st, data, nil
}
