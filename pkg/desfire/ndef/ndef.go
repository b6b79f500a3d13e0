// Package ndef provides the ISO 7816-4 SELECT/READ BINARY/UPDATE BINARY
// helpers for the NFC Forum NDEF application that coexists with the
// DESFire application structure on NTAG 424 DNA-class tags (spec §9
// supplemented feature). Selecting the NDEF application or a file within
// it invalidates any active DESFire secure session: callers that need
// both must either NDEF-select first and authenticate after, or
// authenticate first and use WriteData/ReadData instead.
package ndef

import (
	"context"
	"encoding/hex"
	"fmt"

	"github.com/go-desfire/desfire/pkg/desfire/transport"
)

const (
	// FileCapabilityContainer is the ISO 7816 Capability Container file ID.
	FileCapabilityContainer uint16 = 0xE103
	// FileNDEF is the NDEF message file ID.
	FileNDEF uint16 = 0xE104

	ndefAppAID = "D2760000850101"

	maxUpdateChunk = 0xFF
)

// swOK reports whether sw is the ISO 7816 "normal processing" status word.
func swOK(sw uint16) bool {
	return sw == 0x9000
}

// SWError reports a non-9000 status word from an NDEF container command.
type SWError struct {
	Ins byte
	SW  uint16
}

func (e *SWError) Error() string {
	return fmt.Sprintf("ndef: command 0x%02X failed, sw=0x%04X", e.Ins, e.SW)
}

// SelectApp selects the NFC Forum NDEF application (AID D2760000850101).
// This invalidates any DESFire secure session.
func SelectApp(ctx context.Context, card transport.Card) error {
	aid, err := hex.DecodeString(ndefAppAID)
	if err != nil {
		return fmt.Errorf("ndef: decode AID: %w", err)
	}
	apdu := append([]byte{0x00, 0xA4, 0x04, 0x00, byte(len(aid))}, aid...)
	apdu = append(apdu, 0x00)
	_, sw, err := card.ExchangeAPDU(ctx, apdu, false)
	if err != nil {
		return err
	}
	if !swOK(sw) {
		return &SWError{Ins: 0xA4, SW: sw}
	}
	return nil
}

// SelectFile selects a file by its 16-bit ID (FileCapabilityContainer or
// FileNDEF) using ISO 7816 SELECT FILE. This invalidates any DESFire
// secure session.
func SelectFile(ctx context.Context, card transport.Card, fileID uint16) error {
	apdu := []byte{0x00, 0xA4, 0x00, 0x0C, 0x02, byte(fileID >> 8), byte(fileID)}
	_, sw, err := card.ExchangeAPDU(ctx, apdu, false)
	if err != nil {
		return err
	}
	if !swOK(sw) {
		return &SWError{Ins: 0xA4, SW: sw}
	}
	return nil
}

// ReadBinary reads length bytes starting at offset from the currently
// selected file, chunked to maxUpdateChunk bytes per APDU.
func ReadBinary(ctx context.Context, card transport.Card, offset uint16, length int) ([]byte, error) {
	out := make([]byte, 0, length)
	for len(out) < length {
		chunk := length - len(out)
		if chunk > maxUpdateChunk {
			chunk = maxUpdateChunk
		}
		off := offset + uint16(len(out))
		apdu := []byte{0x00, 0xB0, byte(off >> 8), byte(off), byte(chunk)}
		resp, sw, err := card.ExchangeAPDU(ctx, apdu, false)
		if err != nil {
			return nil, err
		}
		if !swOK(sw) {
			return nil, &SWError{Ins: 0xB0, SW: sw}
		}
		out = append(out, resp...)
	}
	return out, nil
}

// WriteBinary writes data starting at offset into the currently selected
// file, chunked to maxUpdateChunk bytes per APDU (ISO 7816 UPDATE BINARY,
// INS 0xD6).
func WriteBinary(ctx context.Context, card transport.Card, offset uint16, data []byte) error {
	written := 0
	for written < len(data) {
		chunk := len(data) - written
		if chunk > maxUpdateChunk {
			chunk = maxUpdateChunk
		}
		off := offset + uint16(written)
		apdu := make([]byte, 0, 5+chunk)
		apdu = append(apdu, 0x00, 0xD6, byte(off>>8), byte(off), byte(chunk))
		apdu = append(apdu, data[written:written+chunk]...)

		_, sw, err := card.ExchangeAPDU(ctx, apdu, false)
		if err != nil {
			return err
		}
		if !swOK(sw) {
			return &SWError{Ins: 0xD6, SW: sw}
		}
		written += chunk
	}
	return nil
}

// ReadMessage selects the NDEF application and file, then reads the
// 2-byte NLEN header followed by the NDEF message it describes.
func ReadMessage(ctx context.Context, card transport.Card) ([]byte, error) {
	if err := SelectApp(ctx, card); err != nil {
		return nil, err
	}
	if err := SelectFile(ctx, card, FileNDEF); err != nil {
		return nil, err
	}
	nlenBytes, err := ReadBinary(ctx, card, 0, 2)
	if err != nil {
		return nil, err
	}
	nlen := int(nlenBytes[0])<<8 | int(nlenBytes[1])
	return ReadBinary(ctx, card, 2, nlen)
}

// WriteMessage selects the NDEF application and file, then writes the
// NLEN header and the message body.
func WriteMessage(ctx context.Context, card transport.Card, message []byte) error {
	if len(message) > 0xFFFF {
		return fmt.Errorf("ndef: message too long (%d bytes)", len(message))
	}
	if err := SelectApp(ctx, card); err != nil {
		return err
	}
	if err := SelectFile(ctx, card, FileNDEF); err != nil {
		return err
	}
	nlen := uint16(len(message))
	if err := WriteBinary(ctx, card, 0, []byte{byte(nlen >> 8), byte(nlen)}); err != nil {
		return err
	}
	return WriteBinary(ctx, card, 2, message)
}
