// Package exchange implements the DESFire command exchange engine
// (spec §4.C): TX/RX frame chaining for payloads exceeding a single
// PCD->PICC frame, and split-by-size response assembly for commands that
// return a sequence of fixed-stride records.
package exchange

import (
	"context"
	"fmt"

	"github.com/go-desfire/desfire/pkg/desfire/channel"
	"github.com/go-desfire/desfire/pkg/desfire/frame"
	"github.com/go-desfire/desfire/pkg/desfire/transport"
	"github.com/go-desfire/desfire/pkg/desfire/wire"
	"github.com/rs/zerolog"
)

// Flags controls one Engine.Exchange call (spec §4.C).
type Flags struct {
	// ActivateField requests the field be dropped and re-powered before
	// the first frame of this exchange.
	ActivateField bool
	// EnableChaining drives RX chaining to completion; false returns the
	// first fragment verbatim and lets the caller issue further bare
	// ADDITIONAL_FRAME exchanges itself.
	EnableChaining bool
}

// Engine drives one command's TX chaining, RX chaining, and secure-channel
// wrap/unwrap around a transport.Card.
type Engine struct {
	Card       transport.Card
	CommandSet frame.CommandSet
	Log        zerolog.Logger
}

// Fail is the engine's own error type for a non-success status (spec §7
// ApduFail); it carries the offending status for the caller/classifier.
type Fail struct {
	Status wire.Status
}

func (e *Fail) Error() string {
	return fmt.Sprintf("exchange: command failed with status %s (0x%02X)", e.Status, byte(e.Status))
}

// Exchange wraps payload through codec, performs TX chaining (splitting at
// wire.MaxPCDToPICCPayload), performs RX chaining while the engine is
// instructed to (Flags.EnableChaining) and status keeps reporting
// ADDITIONAL_FRAME, then unwraps the reassembled response. Wrap sees the
// pre-chaining payload; Unwrap sees the post-reassembly response, per
// spec §4.C point 4.
func (e *Engine) Exchange(ctx context.Context, ins byte, payload []byte, mode channel.CommMode, codec *channel.State, flags Flags) ([]byte, wire.Status, error) {
	wrapped, err := codec.Wrap(ins, payload, mode)
	if err != nil {
		return nil, 0, fmt.Errorf("exchange: wrap: %w", err)
	}

	status, firstResp, err := e.txChain(ctx, ins, wrapped, flags.ActivateField)
	if err != nil {
		return nil, 0, err
	}
	if !status.IsNonError() {
		return nil, status, &Fail{Status: status}
	}

	assembled := firstResp
	if flags.EnableChaining {
		var rest []byte
		status, rest, err = e.rxChain(ctx, status)
		if err != nil {
			return nil, 0, err
		}
		assembled = append(assembled, rest...)
	}

	out, err := codec.Unwrap(ins, assembled, mode, status)
	if err != nil {
		return nil, status, fmt.Errorf("exchange: unwrap: %w", err)
	}
	return out, status, nil
}

// ExchangeSplit is Exchange followed by re-blocking the flat decoded
// response into fixed-stride records (spec §4.C point 3: GetDFNames and
// similar commands that return a sequence of variable-length records).
// Secure-channel decoding operates on the flat stream; the result is then
// re-blocked with JoinBlocks'/SplitBlocks' stride.
func (e *Engine) ExchangeSplit(ctx context.Context, ins byte, payload []byte, mode channel.CommMode, codec *channel.State, flags Flags, stride int) ([]Block, wire.Status, error) {
	flat, status, err := e.Exchange(ctx, ins, payload, mode, codec, flags)
	if err != nil {
		return nil, status, err
	}
	blocks, err := SplitBlocks(flat, stride)
	if err != nil {
		return nil, status, err
	}
	return blocks, status, nil
}

// RoundTrip performs exactly one framing round trip without touching the
// secure channel at all: no Wrap on the way out, no Unwrap on the way
// back. It exists for the handful of commands whose response breaks the
// normal secure-messaging contract (spec §4.F ChangeKeySame: a self
// key-change response carries no CMAC because the session the CMAC would
// be keyed on no longer exists once the command succeeds).
func (e *Engine) RoundTrip(ctx context.Context, ins byte, payload []byte, activateField bool) (wire.Status, []byte, error) {
	return e.roundTrip(ctx, ins, payload, activateField)
}

// txChain sends wrapped in chunks of at most wire.MaxPCDToPICCPayload
// bytes: the first chunk carries ins, subsequent chunks carry
// InsAdditionalFrame (spec §4.C point 1). Each chunk is an independent
// framing round trip; the PICC is expected to answer ADDITIONAL_FRAME
// until the last chunk.
func (e *Engine) txChain(ctx context.Context, ins byte, wrapped []byte, activateField bool) (wire.Status, []byte, error) {
	chunks := chunkPayload(wrapped, wire.MaxPCDToPICCPayload)
	if len(chunks) == 0 {
		chunks = [][]byte{nil}
	}

	var status wire.Status
	var resp []byte
	for i, chunk := range chunks {
		chunkIns := ins
		if i > 0 {
			chunkIns = wire.InsAdditionalFrame
		}
		actField := activateField && i == 0

		var err error
		status, resp, err = e.roundTrip(ctx, chunkIns, chunk, actField)
		if err != nil {
			return 0, nil, err
		}

		last := i == len(chunks)-1
		if !last && !status.Continues() {
			e.Log.Warn().
				Int("chunk", i).
				Int("total_chunks", len(chunks)).
				Str("status", status.String()).
				Msg("TX chaining: PICC terminated early")
			return status, resp, nil
		}
	}
	return status, resp, nil
}

// rxChain issues bare ADDITIONAL_FRAME requests and accumulates response
// bytes while status keeps reporting ADDITIONAL_FRAME (spec §4.C point 2).
func (e *Engine) rxChain(ctx context.Context, status wire.Status) (wire.Status, []byte, error) {
	var acc []byte
	for status.Continues() {
		st, resp, err := e.roundTrip(ctx, wire.InsAdditionalFrame, nil, false)
		if err != nil {
			return 0, nil, err
		}
		acc = append(acc, resp...)
		status = st
	}
	if !status.IsNonError() {
		return status, acc, &Fail{Status: status}
	}
	return status, acc, nil
}

// roundTrip performs exactly one framing round trip using the Engine's
// configured CommandSet.
func (e *Engine) roundTrip(ctx context.Context, ins byte, payload []byte, activateField bool) (wire.Status, []byte, error) {
	switch e.CommandSet {
	case frame.ISO:
		apdu, err := frame.EncodeISO(ins, payload)
		if err != nil {
			return 0, nil, err
		}
		respData, sw, err := e.Card.ExchangeAPDU(ctx, apdu, activateField)
		if err != nil {
			return 0, nil, fmt.Errorf("exchange: transport: %w", err)
		}
		status, data, err := frame.DecodeISO(respData, sw)
		if err != nil {
			return 0, nil, err
		}
		return status, data, nil
	default: // Native, NativeISO
		req := frame.EncodeNative(ins, payload)
		resp, err := e.Card.ExchangeRaw(ctx, req, activateField)
		if err != nil {
			return 0, nil, fmt.Errorf("exchange: transport: %w", err)
		}
		status, data, err := frame.DecodeNative(resp)
		if err != nil {
			return 0, nil, err
		}
		return status, data, nil
	}
}

// chunkPayload splits data into chunks of at most size bytes each.
func chunkPayload(data []byte, size int) [][]byte {
	if len(data) == 0 {
		return nil
	}
	var chunks [][]byte
	for off := 0; off < len(data); off += size {
		end := off + size
		if end > len(data) {
			end = len(data)
		}
		chunks = append(chunks, data[off:end])
	}
	return chunks
}
