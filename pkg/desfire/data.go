package desfire

import (
	"context"

	"github.com/go-desfire/desfire/pkg/desfire/channel"
	"github.com/go-desfire/desfire/pkg/desfire/wire"
)

// ReadData reads length bytes starting at offset from a standard or backup
// data file, under the given comm mode (spec §4.F, scenario S5).
func (c *Context) ReadData(ctx context.Context, fileNo byte, offset, length uint32, mode channel.CommMode) ([]byte, error) {
	if offset > wire.MaxLE3 || length > wire.MaxLE3 {
		return nil, invalidArg("ReadData", "offset/length exceed the 24-bit wire range")
	}
	payload := append([]byte{fileNo}, wire.LE3(offset)...)
	payload = append(payload, wire.LE3(length)...)
	return c.exchange(ctx, "ReadData", wire.InsReadData, payload, mode)
}

// WriteData writes data starting at offset into a standard or backup data
// file. For backup files the write is only durable after
// CommitTransaction.
func (c *Context) WriteData(ctx context.Context, fileNo byte, offset uint32, data []byte, mode channel.CommMode) error {
	if offset > wire.MaxLE3 || uint32(len(data)) > wire.MaxLE3 {
		return invalidArg("WriteData", "offset/length exceed the 24-bit wire range")
	}
	payload := append([]byte{fileNo}, wire.LE3(offset)...)
	payload = append(payload, wire.LE3(uint32(len(data)))...)
	payload = append(payload, data...)
	_, err := c.exchange(ctx, "WriteData", wire.InsWriteData, payload, mode)
	return err
}
