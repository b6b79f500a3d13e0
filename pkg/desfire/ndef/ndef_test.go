package ndef

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

type fakeAPDUCard struct {
	responses [][]byte
	sws       []uint16
	calls     [][]byte
}

func (f *fakeAPDUCard) ExchangeAPDU(ctx context.Context, data []byte, activateField bool) ([]byte, uint16, error) {
	f.calls = append(f.calls, data)
	resp := f.responses[0]
	sw := f.sws[0]
	f.responses = f.responses[1:]
	f.sws = f.sws[1:]
	return resp, sw, nil
}

func (f *fakeAPDUCard) ExchangeRaw(ctx context.Context, data []byte, activateField bool) ([]byte, error) {
	panic("not used")
}

func TestBuildAndParseURIMessageRoundTrip(t *testing.T) {
	t.Parallel()

	msg, err := BuildURIMessage("https://example.com/tag")
	require.NoError(t, err)

	got, err := ParseURIRecord(msg)
	require.NoError(t, err)
	require.Equal(t, "https://example.com/tag", got)
}

func TestWriteThenReadMessageRoundTrip(t *testing.T) {
	t.Parallel()

	msg, err := BuildURIMessage("http://example.com")
	require.NoError(t, err)

	card := &fakeAPDUCard{
		responses: [][]byte{nil, nil, nil, nil},
		sws:       []uint16{0x9000, 0x9000, 0x9000, 0x9000},
	}

	err = WriteMessage(context.Background(), card, msg[2:])
	require.NoError(t, err)

	card.responses = [][]byte{nil, nil, msg[:2], msg[2:]}
	card.sws = []uint16{0x9000, 0x9000, 0x9000, 0x9000}

	got, err := ReadMessage(context.Background(), card)
	require.NoError(t, err)
	require.Equal(t, msg[2:], got)
}

func TestSelectFileReportsSWError(t *testing.T) {
	t.Parallel()

	card := &fakeAPDUCard{responses: [][]byte{nil}, sws: []uint16{0x6A82}}
	err := SelectFile(context.Background(), card, FileNDEF)
	require.Error(t, err)
	var swErr *SWError
	require.ErrorAs(t, err, &swErr)
	require.Equal(t, uint16(0x6A82), swErr.SW)
}
