package auth

import (
	"bytes"
	"context"
	"testing"

	"github.com/go-desfire/desfire/internal/deskey"
	"github.com/go-desfire/desfire/pkg/desfire/channel"
	"github.com/go-desfire/desfire/pkg/desfire/exchange"
	"github.com/go-desfire/desfire/pkg/desfire/frame"
	"github.com/go-desfire/desfire/pkg/desfire/wire"
	"github.com/stretchr/testify/require"
)

// scriptedCard answers ExchangeRaw with the next queued native response;
// ExchangeAPDU is unused by the EV1/EV2 tests below.
type scriptedCard struct {
	responses [][]byte
	calls     [][]byte
}

func (c *scriptedCard) ExchangeRaw(ctx context.Context, data []byte, activateField bool) ([]byte, error) {
	c.calls = append(c.calls, data)
	resp := c.responses[0]
	c.responses = c.responses[1:]
	return resp, nil
}

func (c *scriptedCard) ExchangeAPDU(ctx context.Context, data []byte, activateField bool) ([]byte, uint16, error) {
	panic("not used")
}

var zeroKey16 = make([]byte, 16)

var fixedRndA = []byte{
	0x01, 0x02, 0x03, 0x04, 0x05, 0x06, 0x07, 0x08,
	0x09, 0x10, 0x11, 0x12, 0x13, 0x14, 0x15, 0x16,
}

// TestAuthenticateEV1AESZeroKeySessionKey is scenario S1: zero key, fixed
// RndA, simulated RndB = 0; the derived session_key_enc must equal the
// literal hex the spec gives.
func TestAuthenticateEV1AESZeroKeySessionKey(t *testing.T) {
	t.Parallel()

	rndB := make([]byte, 16)
	zeroIV := make([]byte, 16)

	rndBEnc, err := deskey.EncryptCBC(deskey.AES, zeroKey16, zeroIV, rndB)
	require.NoError(t, err)

	rndARot := deskey.RotateLeft1(fixedRndA)
	// The PICC's second response is enc(RndA' rotated again): it receives
	// RndA (after decrypting our frame), rotates it and echoes enc(ROL8(RndA)).
	rndARotEnc, err := deskey.EncryptCBC(deskey.AES, zeroKey16, zeroIV, rndARot)
	require.NoError(t, err)

	card := &scriptedCard{responses: [][]byte{
		append([]byte{byte(wire.StatusAdditionalFrame)}, rndBEnc...),
		append([]byte{byte(wire.StatusOperationOK)}, rndARotEnc...),
	}}
	eng := &exchange.Engine{Card: card, CommandSet: frame.Native}

	res, err := Authenticate(context.Background(), Params{
		Engine:  eng,
		Channel: channel.EV1,
		KeyType: deskey.AES,
		Key:     zeroKey16,
		KeyNum:  0,
		Rand:    FixedRandSource{Value: fixedRndA},
	})
	require.NoError(t, err)

	want := []byte{0x01, 0x02, 0x03, 0x04, 0x00, 0x00, 0x00, 0x00, 0x13, 0x14, 0x15, 0x16, 0x00, 0x00, 0x00, 0x00}
	require.Equal(t, want, res.SessionKeyEnc)
	require.Equal(t, want, res.SessionKeyMac)
	require.Equal(t, channel.EV1, res.Kind)
}

// TestAuthenticateEV2FirstAuthZeroKey is scenario S2: after a first-auth
// handshake with fixed RndA and simulated RndB = 0, cmd_cntr must be 0 and
// TI must equal the first 4 bytes of the decrypted 32-byte blob.
func TestAuthenticateEV2FirstAuthZeroKey(t *testing.T) {
	t.Parallel()

	rndB := make([]byte, 16)
	zeroIV := make([]byte, 16)

	rndBEnc, err := deskey.EncryptCBC(deskey.AES, zeroKey16, zeroIV, rndB)
	require.NoError(t, err)

	ti := []byte{0xDE, 0xAD, 0xBE, 0xEF}
	rndARot := deskey.RotateLeft1(fixedRndA)
	pic := make([]byte, 6)
	pcd := make([]byte, 6)
	blob := append(append(append(append([]byte{}, ti...), rndARot...), pic...), pcd...)
	require.Len(t, blob, 32)

	blobEnc, err := deskey.EncryptCBC(deskey.AES, zeroKey16, zeroIV, blob)
	require.NoError(t, err)

	card := &scriptedCard{responses: [][]byte{
		append([]byte{byte(wire.StatusAdditionalFrame)}, rndBEnc...),
		append([]byte{byte(wire.StatusOperationOK)}, blobEnc...),
	}}
	eng := &exchange.Engine{Card: card, CommandSet: frame.Native}

	res, err := Authenticate(context.Background(), Params{
		Engine:    eng,
		Channel:   channel.EV2,
		KeyType:   deskey.AES,
		Key:       zeroKey16,
		KeyNum:    0,
		Rand:      FixedRandSource{Value: fixedRndA},
		FirstAuth: true,
	})
	require.NoError(t, err)

	require.Equal(t, uint16(0), res.CmdCtr)
	require.True(t, bytes.Equal(ti, res.TI[:]))
	require.Len(t, res.SessionKeyEnc, 16)
	require.Len(t, res.SessionKeyMac, 16)
	require.NotEqual(t, res.SessionKeyEnc, res.SessionKeyMac)
}

// TestAuthenticateEV1RndAMismatchFails asserts a corrupted final response
// is rejected rather than silently accepted.
func TestAuthenticateEV1RndAMismatchFails(t *testing.T) {
	t.Parallel()

	rndB := make([]byte, 16)
	zeroIV := make([]byte, 16)
	rndBEnc, err := deskey.EncryptCBC(deskey.AES, zeroKey16, zeroIV, rndB)
	require.NoError(t, err)

	garbage := make([]byte, 16)
	garbage[0] = 0xFF
	garbageEnc, err := deskey.EncryptCBC(deskey.AES, zeroKey16, zeroIV, garbage)
	require.NoError(t, err)

	card := &scriptedCard{responses: [][]byte{
		append([]byte{byte(wire.StatusAdditionalFrame)}, rndBEnc...),
		append([]byte{byte(wire.StatusOperationOK)}, garbageEnc...),
	}}
	eng := &exchange.Engine{Card: card, CommandSet: frame.Native}

	_, err = Authenticate(context.Background(), Params{
		Engine:  eng,
		Channel: channel.EV1,
		KeyType: deskey.AES,
		Key:     zeroKey16,
		KeyNum:  0,
		Rand:    FixedRandSource{Value: fixedRndA},
	})
	require.Error(t, err)
}
