package deskey

import (
	"bytes"
	"testing"
)

func TestNormalizeTDEAKey(t *testing.T) {
	t.Parallel()
	k16 := bytes.Repeat([]byte{0x01}, 8)
	k16 = append(k16, bytes.Repeat([]byte{0x02}, 8)...)
	got := NormalizeTDEAKey(k16)
	if len(got) != 24 {
		t.Fatalf("expected 24 bytes, got %d", len(got))
	}
	if !bytes.Equal(got[:8], got[16:]) {
		t.Errorf("K1 not duplicated into K3 slot: %x", got)
	}
}

func TestCollapseSessionKey(t *testing.T) {
	t.Parallel()

	equalHalves := make([]byte, 16)
	copy(equalHalves, bytes.Repeat([]byte{0xAA}, 8))
	copy(equalHalves[8:], bytes.Repeat([]byte{0xAA}, 8))
	collapsed := CollapseSessionKey(equalHalves)
	if !bytes.Equal(collapsed[:8], collapsed[8:]) {
		t.Errorf("expected halves to stay equal after collapse")
	}

	unequal := make([]byte, 16)
	copy(unequal, bytes.Repeat([]byte{0xAA}, 8))
	copy(unequal[8:], bytes.Repeat([]byte{0xBB}, 8))
	out := CollapseSessionKey(unequal)
	if !bytes.Equal(out, unequal) {
		t.Errorf("expected unequal-halves key to pass through unchanged")
	}
}

func TestEncryptDecryptCBCRoundTrip(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name string
		kt   KeyType
		key  []byte
	}{
		{"AES", AES, bytes.Repeat([]byte{0x00}, 16)},
		{"3TDEA", ThreeTDEA, bytes.Repeat([]byte{0x01}, 24)},
		{"2TDEA", TwoTDEA, bytes.Repeat([]byte{0x02}, 16)},
		{"DES", DES, bytes.Repeat([]byte{0x03}, 8)},
	}

	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			bs := tc.kt.BlockSize()
			iv := make([]byte, bs)
			plain := bytes.Repeat([]byte{0x42}, bs*2)

			enc, err := EncryptCBC(tc.kt, tc.key, iv, plain)
			if err != nil {
				t.Fatalf("encrypt: %v", err)
			}
			dec, err := DecryptCBC(tc.kt, tc.key, iv, enc)
			if err != nil {
				t.Fatalf("decrypt: %v", err)
			}
			if !bytes.Equal(dec, plain) {
				t.Errorf("round trip mismatch: got %x want %x", dec, plain)
			}
		})
	}
}

func TestTruncateOddBytes(t *testing.T) {
	t.Parallel()
	full := []byte{0, 1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12, 13, 14, 15}
	got := TruncateOddBytes(full)
	want := []byte{1, 3, 5, 7, 9, 11, 13, 15}
	if !bytes.Equal(got, want) {
		t.Errorf("TruncateOddBytes() = %x, want %x", got, want)
	}
}

func TestRotateLeftRight(t *testing.T) {
	t.Parallel()
	in := []byte{1, 2, 3, 4}
	rol := RotateLeft1(in)
	if !bytes.Equal(rol, []byte{2, 3, 4, 1}) {
		t.Errorf("RotateLeft1() = %v", rol)
	}
	ror := RotateRight1(rol)
	if !bytes.Equal(ror, in) {
		t.Errorf("RotateRight1(RotateLeft1(x)) != x: got %v", ror)
	}
}

func TestCRC16ISO14443AKnownVector(t *testing.T) {
	t.Parallel()
	// Empty-input CRC is the init value itself.
	if got := CRC16ISO14443A(nil); got != 0x6363 {
		t.Errorf("CRC16ISO14443A(nil) = %04X, want 6363", got)
	}
}
