package exchange

import (
	"bytes"
	"testing"
)

func TestJoinSplitBlocksRoundTrip(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name   string
		data   []byte
		stride int
	}{
		{"empty", nil, 24},
		{"exact-multiple", bytes.Repeat([]byte{0xAB}, 48), 24},
		{"remainder", bytes.Repeat([]byte{0xCD}, 50), 24},
		{"stride-two", []byte{1, 2, 3, 4, 5}, 2},
	}

	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			blocks, err := SplitBlocks(tc.data, tc.stride)
			if err != nil {
				t.Fatalf("SplitBlocks: %v", err)
			}
			got, err := JoinBlocks(blocks, tc.stride)
			if err != nil {
				t.Fatalf("JoinBlocks: %v", err)
			}
			if !bytes.Equal(got, tc.data) && !(len(got) == 0 && len(tc.data) == 0) {
				t.Errorf("round trip mismatch: got %x want %x", got, tc.data)
			}
		})
	}
}

func TestSplitBlocksRejectsSmallStride(t *testing.T) {
	t.Parallel()
	if _, err := SplitBlocks([]byte{1, 2, 3}, 1); err == nil {
		t.Errorf("expected error for stride < 2")
	}
}
