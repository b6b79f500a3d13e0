package desfire

import (
	"context"
	"fmt"

	"github.com/go-desfire/desfire/internal/deskey"
	"github.com/go-desfire/desfire/pkg/desfire/channel"
	"github.com/go-desfire/desfire/pkg/desfire/wire"
)

// keyTypeBits encodes the upper two bits of CreateApplication's key-count
// byte (00 DES/3DES, 01 3K3DES, 10 AES) per the on-card application key
// algorithm tag.
func keyTypeBits(t deskey.KeyType) byte {
	switch t {
	case deskey.ThreeTDEA:
		return 0x40
	case deskey.AES:
		return 0x80
	default:
		return 0x00
	}
}

// CreateApplication creates a new application with the given AID, key
// settings byte and number of keys (1-14), using keyType for all its keys.
func (c *Context) CreateApplication(ctx context.Context, aid uint32, keySettings byte, numKeys byte, keyType deskey.KeyType) error {
	if numKeys == 0 || numKeys > 14 {
		return invalidArg("CreateApplication", "numKeys must be 1-14, got %d", numKeys)
	}
	payload := append(wire.AIDUintToByte(aid), keySettings, numKeys|keyTypeBits(keyType))
	_, err := c.exchange(ctx, "CreateApplication", wire.InsCreateApplication, payload, channel.Plain)
	return err
}

// DeleteApplication removes an application and all its files/keys.
func (c *Context) DeleteApplication(ctx context.Context, aid uint32) error {
	_, err := c.exchange(ctx, "DeleteApplication", wire.InsDeleteApplication, wire.AIDUintToByte(aid), channel.Plain)
	return err
}

// GetAIDList returns every application ID present on the PICC, split at
// the native 3-byte AID stride after TX/RX chaining reassembles the
// response (spec §8 scenario S3).
func (c *Context) GetAIDList(ctx context.Context) ([]uint32, error) {
	data, err := c.exchange(ctx, "GetAIDList", wire.InsGetApplicationIDs, nil, channel.Plain)
	if err != nil {
		return nil, err
	}
	if len(data)%3 != 0 {
		return nil, newErr(KindCardExchange, "GetAIDList", fmt.Errorf("response length %d not a multiple of 3", len(data)))
	}
	aids := make([]uint32, 0, len(data)/3)
	for off := 0; off < len(data); off += 3 {
		aids = append(aids, wire.AIDByteToUint(data[off:off+3]))
	}
	return aids, nil
}

// GetDFList returns the GetDFNames response cut into consecutive 24-byte
// blocks, split-by-size=24 per command (spec §4.C point 3 / §4.F). The
// blocks are not parsed into per-application DF name records.
func (c *Context) GetDFList(ctx context.Context) ([][]byte, error) {
	blocks, err := c.exchangeSplit(ctx, "GetDFList", wire.InsGetDFNames, nil, channel.Plain, 24)
	if err != nil {
		return nil, err
	}
	out := make([][]byte, len(blocks))
	for i, b := range blocks {
		out[i] = []byte(b)
	}
	return out, nil
}
