package desfire

import (
	"context"

	"github.com/go-desfire/desfire/pkg/desfire/channel"
	"github.com/go-desfire/desfire/pkg/desfire/wire"
)

// WriteRecord appends data as a new record (linear) or overwrites the
// oldest one once full (cyclic), starting at the given intra-record
// offset.
func (c *Context) WriteRecord(ctx context.Context, fileNo byte, offset uint32, data []byte, mode channel.CommMode) error {
	if offset > wire.MaxLE3 || uint32(len(data)) > wire.MaxLE3 {
		return invalidArg("WriteRecord", "offset/length exceed the 24-bit wire range")
	}
	payload := append([]byte{fileNo}, wire.LE3(offset)...)
	payload = append(payload, wire.LE3(uint32(len(data)))...)
	payload = append(payload, data...)
	_, err := c.exchange(ctx, "WriteRecord", wire.InsWriteRecord, payload, mode)
	return err
}

// UpdateRecord overwrites the intra-record bytes of an already-written
// record (recordNo, 0 the newest) without appending a new one (spec §4.F).
func (c *Context) UpdateRecord(ctx context.Context, fileNo byte, recordNo, offset uint32, data []byte, mode channel.CommMode) error {
	if recordNo > wire.MaxLE3 || offset > wire.MaxLE3 || uint32(len(data)) > wire.MaxLE3 {
		return invalidArg("UpdateRecord", "recordNo/offset/length exceed the 24-bit wire range")
	}
	payload := append([]byte{fileNo}, wire.LE3(recordNo)...)
	payload = append(payload, wire.LE3(offset)...)
	payload = append(payload, wire.LE3(uint32(len(data)))...)
	payload = append(payload, data...)
	_, err := c.exchange(ctx, "UpdateRecord", wire.InsUpdateRecord, payload, mode)
	return err
}

// ReadRecords reads recordCount records of recordSize bytes each, starting
// recordOffset records back from the most recently written one (offset 0
// is the newest record). Records come back reblocked to recordSize.
func (c *Context) ReadRecords(ctx context.Context, fileNo byte, recordOffset, recordCount, recordSize uint32, mode channel.CommMode) ([][]byte, error) {
	if recordOffset > wire.MaxLE3 || recordCount > wire.MaxLE3 {
		return nil, invalidArg("ReadRecords", "recordOffset/recordCount exceed the 24-bit wire range")
	}
	payload := append([]byte{fileNo}, wire.LE3(recordOffset)...)
	payload = append(payload, wire.LE3(recordCount)...)
	blocks, err := c.exchangeSplit(ctx, "ReadRecords", wire.InsReadRecords, payload, mode, int(recordSize))
	if err != nil {
		return nil, err
	}
	out := make([][]byte, len(blocks))
	for i, b := range blocks {
		out[i] = []byte(b)
	}
	return out, nil
}

// ClearRecordFile discards every record in a linear or cyclic record file.
func (c *Context) ClearRecordFile(ctx context.Context, fileNo byte) error {
	_, err := c.exchange(ctx, "ClearRecordFile", wire.InsClearRecordFile, []byte{fileNo}, channel.Plain)
	return err
}
