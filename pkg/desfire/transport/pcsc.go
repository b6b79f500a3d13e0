package transport

import (
	"context"
	"fmt"
	"time"

	"github.com/ebfe/scard"
)

// fieldSettleDelay is the RF field settle time after a field drop/re-power
// cycle (spec §5: "drops and re-powers the field with a 50 ms settle
// delay").
const fieldSettleDelay = 50 * time.Millisecond

// PCSC wraps a PC/SC card connection as a Card, grounded on the teacher's
// Connection type (pcsc.go) but generalised to the transport.Card
// interface's two primitives instead of a single raw Transmit.
type PCSC struct {
	ctx       *scard.Context
	card      *scard.Card
	reader    string
	readerIdx int
}

// ConnectPCSC establishes a PC/SC connection to the reader at readerIndex.
func ConnectPCSC(readerIndex int) (*PCSC, error) {
	ctx, err := scard.EstablishContext()
	if err != nil {
		return nil, fmt.Errorf("transport: EstablishContext: %w", err)
	}

	readers, err := ctx.ListReaders()
	if err != nil || len(readers) == 0 {
		ctx.Release()
		return nil, fmt.Errorf("transport: no readers found: %v", err)
	}
	if readerIndex < 0 || readerIndex >= len(readers) {
		ctx.Release()
		return nil, fmt.Errorf("transport: reader index out of range (0..%d)", len(readers)-1)
	}

	reader := readers[readerIndex]
	card, err := ctx.Connect(reader, scard.ShareShared, scard.ProtocolAny)
	if err != nil {
		ctx.Release()
		return nil, fmt.Errorf("transport: connect: %w", err)
	}

	return &PCSC{ctx: ctx, card: card, reader: reader, readerIdx: readerIndex}, nil
}

// Close disconnects the card and releases the PC/SC context.
func (p *PCSC) Close() {
	if p == nil {
		return
	}
	if p.card != nil {
		_ = p.card.Disconnect(scard.LeaveCard)
	}
	if p.ctx != nil {
		_ = p.ctx.Release()
	}
}

// Reader returns the PC/SC reader name this connection is bound to.
func (p *PCSC) Reader() string { return p.reader }

func (p *PCSC) activate(ctx context.Context) error {
	if err := p.card.Disconnect(scard.ResetCard); err != nil {
		return fmt.Errorf("transport: reset: %w", err)
	}
	card, err := p.ctx.Connect(p.reader, scard.ShareShared, scard.ProtocolAny)
	if err != nil {
		return fmt.Errorf("transport: reconnect: %w", err)
	}
	p.card = card

	t := time.NewTimer(fieldSettleDelay)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
	}
	return nil
}

func (p *PCSC) transmit(apdu []byte) ([]byte, error) {
	return p.card.Transmit(apdu)
}

// ExchangeAPDU implements Card.
func (p *PCSC) ExchangeAPDU(ctx context.Context, data []byte, activateField bool) ([]byte, uint16, error) {
	if activateField {
		if err := p.activate(ctx); err != nil {
			return nil, 0, err
		}
	}
	resp, err := p.transmit(data)
	if err != nil {
		return nil, 0, fmt.Errorf("transport: transmit: %w", err)
	}
	if len(resp) < 2 {
		return nil, 0, fmt.Errorf("transport: short response: %d bytes", len(resp))
	}
	sw := uint16(resp[len(resp)-2])<<8 | uint16(resp[len(resp)-1])
	return resp[:len(resp)-2], sw, nil
}

// ExchangeRaw implements Card. PC/SC readers that expose native DESFire
// framing still transceive through the same Transmit primitive; callers
// supply data already shaped as [INS || payload] and receive
// [status_byte || data...] back unmodified.
func (p *PCSC) ExchangeRaw(ctx context.Context, data []byte, activateField bool) ([]byte, error) {
	if activateField {
		if err := p.activate(ctx); err != nil {
			return nil, err
		}
	}
	resp, err := p.transmit(data)
	if err != nil {
		return nil, fmt.Errorf("transport: transmit: %w", err)
	}
	return resp, nil
}
