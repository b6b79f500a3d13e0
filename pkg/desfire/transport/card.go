// Package transport defines the RF transport boundary the DESFire core
// consumes (spec §1, §6): low-level ISO 14443-A half-duplex exchange and
// field activation are external collaborators, never reimplemented here.
package transport

import "context"

// Card is the transport primitive the exchange engine calls. Implementers
// own field activation timing and the physical half-duplex exchange; the
// core only ever calls these two methods.
type Card interface {
	// ExchangeAPDU performs an ISO 7816-4 transceive: data is a complete
	// APDU, the return is the response body (without SW1SW2) and the
	// 16-bit status word. activateField requests the field be dropped and
	// re-powered (with settle delay) before this exchange; false keeps the
	// field continuously energised for an in-session command.
	ExchangeAPDU(ctx context.Context, data []byte, activateField bool) (resp []byte, sw uint16, err error)

	// ExchangeRaw performs a native DESFire half-duplex exchange: data is
	// [INS || payload], the return is [status_byte || data...] exactly as
	// the PICC answered.
	ExchangeRaw(ctx context.Context, data []byte, activateField bool) (resp []byte, err error)
}
