package deskey

// RotateLeft1 left-rotates a byte slice by one byte: RndB' = ROL8(RndB).
func RotateLeft1(in []byte) []byte {
	out := make([]byte, len(in))
	if len(in) == 0 {
		return out
	}
	copy(out, in[1:])
	out[len(in)-1] = in[0]
	return out
}

// RotateRight1 is the inverse of RotateLeft1, used to recover RndA from the
// PICC's rotated echo RndA'.
func RotateRight1(in []byte) []byte {
	out := make([]byte, len(in))
	if len(in) == 0 {
		return out
	}
	out[0] = in[len(in)-1]
	copy(out[1:], in[:len(in)-1])
	return out
}
