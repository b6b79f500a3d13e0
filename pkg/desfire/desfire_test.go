package desfire

import (
	"context"
	"testing"

	"github.com/go-desfire/desfire/internal/deskey"
	"github.com/go-desfire/desfire/pkg/desfire/channel"
	"github.com/go-desfire/desfire/pkg/desfire/frame"
	"github.com/go-desfire/desfire/pkg/desfire/wire"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

// fakeCard is a scripted transport.Card test double, mirroring the one in
// package exchange: each ExchangeRaw call pops the next queued response.
type fakeCard struct {
	rawResponses [][]byte
	rawCalls     [][]byte
}

func (f *fakeCard) ExchangeRaw(ctx context.Context, data []byte, activateField bool) ([]byte, error) {
	f.rawCalls = append(f.rawCalls, data)
	if len(f.rawResponses) == 0 {
		return nil, context.DeadlineExceeded
	}
	resp := f.rawResponses[0]
	f.rawResponses = f.rawResponses[1:]
	return resp, nil
}

func (f *fakeCard) ExchangeAPDU(ctx context.Context, data []byte, activateField bool) ([]byte, uint16, error) {
	panic("not used")
}

func newTestContext(card *fakeCard) *Context {
	return NewContext(card, frame.Native, zerolog.Nop())
}

// TestClearSessionZeroesState is spec §8 invariant 1: after ClearSession
// the Context reports unauthenticated and the secure-channel kind resets.
func TestClearSessionZeroesState(t *testing.T) {
	t.Parallel()

	c := newTestContext(&fakeCard{})
	c.chState = channel.State{Kind: channel.EV2, CmdCtr: 7}
	require.True(t, c.IsAuthenticated())

	c.ClearSession()
	require.False(t, c.IsAuthenticated())
	require.Equal(t, channel.None, c.SecureChannel())
}

// TestSelectApplicationClearsSession covers spec §3: selecting an AID
// always tears down any prior secure session, authenticated or not.
func TestSelectApplicationClearsSession(t *testing.T) {
	t.Parallel()

	card := &fakeCard{rawResponses: [][]byte{
		{byte(wire.StatusOperationOK)},
	}}
	c := newTestContext(card)
	c.chState = channel.State{Kind: channel.EV1}

	err := c.SelectApplication(context.Background(), 0x112233)
	require.NoError(t, err)
	require.False(t, c.IsAuthenticated())
	require.True(t, c.AppSelected())
}

// TestGetAIDListParsesAllEntries is scenario S3 at the command-surface
// layer: a chained native response is reassembled and split into 3-byte
// AIDs.
func TestGetAIDListParsesAllEntries(t *testing.T) {
	t.Parallel()

	full := []byte{
		0x01, 0x00, 0x00,
		0x02, 0x00, 0x00,
		0x03, 0x00, 0x00,
	}
	card := &fakeCard{rawResponses: [][]byte{
		append([]byte{byte(wire.StatusOperationOK)}, full...),
	}}
	c := newTestContext(card)

	aids, err := c.GetAIDList(context.Background())
	require.NoError(t, err)
	require.Equal(t, []uint32{1, 2, 3}, aids)
}

// TestReadWriteDataPlainRoundTrip is a simplified scenario S5 (Plain comm
// mode, no crypto involved): WriteData then ReadData against a scripted
// card that simply acknowledges both.
func TestReadWriteDataPlainRoundTrip(t *testing.T) {
	t.Parallel()

	payload := []byte("hello desfire")
	card := &fakeCard{rawResponses: [][]byte{
		{byte(wire.StatusOperationOK)},
		append([]byte{byte(wire.StatusOperationOK)}, payload...),
	}}
	c := newTestContext(card)

	err := c.WriteData(context.Background(), 1, 0, payload, channel.Plain)
	require.NoError(t, err)

	got, err := c.ReadData(context.Background(), 1, 0, uint32(len(payload)), channel.Plain)
	require.NoError(t, err)
	require.Equal(t, payload, got)
}

// TestExchangeClassifiesApduFail covers spec §7: a PICC status other than
// OPERATION_OK/ADDITIONAL_FRAME surfaces as KindApduFail carrying the raw
// status byte.
func TestExchangeClassifiesApduFail(t *testing.T) {
	t.Parallel()

	card := &fakeCard{rawResponses: [][]byte{
		{byte(wire.StatusPermissionDenied)},
	}}
	c := newTestContext(card)

	_, err := c.GetFreeMem(context.Background())
	require.Error(t, err)
	var derr *Error
	require.ErrorAs(t, err, &derr)
	require.Equal(t, KindApduFail, derr.Kind)
	require.Equal(t, byte(wire.StatusPermissionDenied), derr.Status)
}

// TestExchangeClassifiesTransportFailureAndClearsSession covers spec §5
// "Cancellation / timeouts": a transport error clears any live session.
func TestExchangeClassifiesTransportFailureAndClearsSession(t *testing.T) {
	t.Parallel()

	card := &fakeCard{} // no scripted responses -> ExchangeRaw errors
	c := newTestContext(card)
	c.chState = channel.State{
		Kind:          channel.EV1,
		KeyType:       deskey.AES,
		SessionKeyEnc: make([]byte, 16),
		SessionKeyMac: make([]byte, 16),
	}

	_, err := c.GetFreeMem(context.Background())
	require.Error(t, err)
	var derr *Error
	require.ErrorAs(t, err, &derr)
	require.Equal(t, KindTransport, derr.Kind)
	require.False(t, c.IsAuthenticated())
}

func TestAccessRightsEncodeDecodeRoundTrip(t *testing.T) {
	t.Parallel()

	rights := AccessRights{Read: 0x1, Write: 0x2, ReadWrite: 0xE, ChangeAccess: 0xF}
	got := decodeAccessRights(rights.Encode())
	require.Equal(t, rights, got)
}

func TestCommModeByteRoundTrip(t *testing.T) {
	t.Parallel()

	for _, m := range []channel.CommMode{channel.Plain, channel.MAC, channel.Encrypted} {
		require.Equal(t, m, commModeFromByte(commModeByte(m)))
	}
}

func TestXorDiversify(t *testing.T) {
	t.Parallel()

	newKey := []byte{0xFF, 0x00, 0xAA}
	oldKey := []byte{0x0F, 0xF0, 0x55}
	got := xorDiversify(newKey, oldKey)
	require.Equal(t, []byte{0xF0, 0xF0, 0xFF}, got)
}

func TestMasterKeyAlgoTag(t *testing.T) {
	t.Parallel()

	require.Equal(t, byte(0x00), masterKeyAlgoTag(deskey.DES))
	require.Equal(t, byte(0x40), masterKeyAlgoTag(deskey.ThreeTDEA))
	require.Equal(t, byte(0x80), masterKeyAlgoTag(deskey.AES))
}

// TestChangeKeySameClearsSession covers scenario S4: a self (same-slot)
// ChangeKey invalidates the session that authenticated it.
func TestChangeKeySameClearsSession(t *testing.T) {
	t.Parallel()

	card := &fakeCard{rawResponses: [][]byte{
		{byte(wire.StatusOperationOK)},
	}}
	c := newTestContext(card)
	c.KeyNum = 0
	c.KeyType = deskey.AES
	c.Key = make([]byte, 16)
	c.chState = channel.State{
		Kind:          channel.EV2,
		KeyType:       deskey.AES,
		SessionKeyEnc: make([]byte, 16),
		SessionKeyMac: make([]byte, 16),
		TI:            [4]byte{0x01, 0x02, 0x03, 0x04},
	}

	newKey := make([]byte, 16)
	newKey[0] = 0x01
	err := c.ChangeKeySame(context.Background(), newKey, deskey.AES, 1)
	require.NoError(t, err)
	require.False(t, c.IsAuthenticated())
}
