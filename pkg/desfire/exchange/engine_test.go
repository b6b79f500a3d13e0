package exchange

import (
	"context"
	"testing"

	"github.com/go-desfire/desfire/pkg/desfire/channel"
	"github.com/go-desfire/desfire/pkg/desfire/frame"
	"github.com/go-desfire/desfire/pkg/desfire/wire"
	"github.com/stretchr/testify/require"
)

// fakeCard is a scripted transport.Card test double: each call to
// ExchangeRaw/ExchangeAPDU pops the next scripted response.
type fakeCard struct {
	rawResponses [][]byte
	isoResponses []isoResp
	rawCalls     [][]byte
	isoCalls     [][]byte
}

type isoResp struct {
	data []byte
	sw   uint16
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
	f.isoCalls = append(f.isoCalls, data)
	if len(f.isoResponses) == 0 {
		return nil, 0, context.DeadlineExceeded
	}
	r := f.isoResponses[0]
	f.isoResponses = f.isoResponses[1:]
	return r.data, r.sw, nil
}

// TestRXChainingGetAIDList is scenario S3: a native GetAIDList response
// carrying 30 3-byte AIDs (90 bytes) arrives across several ADDITIONAL_FRAME
// fragments; the engine must reassemble all 90 bytes.
func TestRXChainingGetAIDList(t *testing.T) {
	t.Parallel()

	full := make([]byte, 90)
	for i := range full {
		full[i] = byte(i)
	}

	// First fragment carries <=59 bytes plus status AF, second fragment
	// carries the remainder plus OPERATION_OK.
	frag1 := full[:59]
	frag2 := full[59:]

	card := &fakeCard{
		rawResponses: [][]byte{
			append([]byte{byte(wire.StatusAdditionalFrame)}, frag1...),
			append([]byte{byte(wire.StatusOperationOK)}, frag2...),
		},
	}

	eng := &Engine{Card: card, CommandSet: frame.Native}
	codec := &channel.State{Kind: channel.None}

	data, status, err := eng.Exchange(context.Background(), 0x6A, nil, channel.Plain, codec, Flags{EnableChaining: true})
	require.NoError(t, err)
	require.Equal(t, wire.StatusOperationOK, status)
	require.Equal(t, full, data)
	require.Len(t, card.rawCalls, 2)
	require.Equal(t, byte(wire.InsAdditionalFrame), card.rawCalls[1][0])
}

func TestTXChainingSplitsLargePayload(t *testing.T) {
	t.Parallel()

	payload := make([]byte, wire.MaxPCDToPICCPayload*2+5)
	for i := range payload {
		payload[i] = byte(i)
	}

	card := &fakeCard{
		rawResponses: [][]byte{
			{byte(wire.StatusAdditionalFrame)},
			{byte(wire.StatusAdditionalFrame)},
			{byte(wire.StatusOperationOK)},
		},
	}
	eng := &Engine{Card: card, CommandSet: frame.Native}
	codec := &channel.State{Kind: channel.None}

	_, status, err := eng.Exchange(context.Background(), 0x3D, payload, channel.Plain, codec, Flags{EnableChaining: true})
	require.NoError(t, err)
	require.Equal(t, wire.StatusOperationOK, status)
	require.Len(t, card.rawCalls, 3)
	require.Equal(t, byte(0x3D), card.rawCalls[0][0])
	require.Equal(t, byte(wire.InsAdditionalFrame), card.rawCalls[1][0])
	require.Equal(t, byte(wire.InsAdditionalFrame), card.rawCalls[2][0])
}

func TestExchangeFailStatusPropagates(t *testing.T) {
	t.Parallel()

	card := &fakeCard{
		rawResponses: [][]byte{
			{byte(wire.StatusPermissionDenied)},
		},
	}
	eng := &Engine{Card: card, CommandSet: frame.Native}
	codec := &channel.State{Kind: channel.None}

	_, status, err := eng.Exchange(context.Background(), 0xBD, nil, channel.Plain, codec, Flags{EnableChaining: true})
	require.Error(t, err)
	require.Equal(t, wire.StatusPermissionDenied, status)
	var fail *Fail
	require.ErrorAs(t, err, &fail)
}

func TestExchangeSplitReblocks(t *testing.T) {
	t.Parallel()

	names := []byte("ABCDEFGHIJ") // 10 bytes, stride 4 -> 3 blocks
	card := &fakeCard{
		rawResponses: [][]byte{
			append([]byte{byte(wire.StatusOperationOK)}, names...),
		},
	}
	eng := &Engine{Card: card, CommandSet: frame.Native}
	codec := &channel.State{Kind: channel.None}

	blocks, status, err := eng.ExchangeSplit(context.Background(), 0x6D, nil, channel.Plain, codec, Flags{EnableChaining: true}, 4)
	require.NoError(t, err)
	require.Equal(t, wire.StatusOperationOK, status)
	require.Len(t, blocks, 3)
	joined, err := JoinBlocks(blocks, 4)
	require.NoError(t, err)
	require.Equal(t, names, joined)
}
