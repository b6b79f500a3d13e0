package channel

import (
	"bytes"
	"encoding/binary"

	"github.com/go-desfire/desfire/internal/deskey"
)

// wrapEV1 implements the EV1 CMAC-discipline wrap contract (spec §4.D):
// every command's CMAC input is INS||payload regardless of comm mode; MAC
// mode appends the truncated 8-byte CMAC, Encrypted mode absorbs it
// silently and instead protects the payload with CRC32+CBC using the IV
// chained across commands in the session.
func (s *State) wrapEV1(ins byte, payload []byte, mode CommMode) ([]byte, error) {
	macInput := concat([]byte{ins}, payload)
	mac8, err := cmacTrunc(s.KeyType, s.SessionKeyMac, macInput)
	if err != nil {
		return nil, err
	}

	switch mode {
	case Plain:
		return payload, nil
	case MAC:
		return concat(payload, mac8), nil
	case Encrypted:
		crc := deskey.CRC32DESFire(payload)
		var crcBytes [4]byte
		binary.LittleEndian.PutUint32(crcBytes[:], crc)
		withCRC := concat(payload, crcBytes[:])
		padded := deskey.PadISO9797M2(withCRC, s.KeyType.BlockSize())
		enc, err := deskey.EncryptCBC(s.KeyType, s.SessionKeyEnc, s.IV, padded)
		if err != nil {
			return nil, err
		}
		s.IV = lastBlock(enc, s.KeyType.BlockSize())
		return enc, nil
	default:
		return payload, nil
	}
}

func (s *State) unwrapEV1(ins byte, resp []byte, mode CommMode) ([]byte, error) {
	bs := s.KeyType.BlockSize()
	switch mode {
	case Plain:
		macInput := concat([]byte{ins}, resp)
		if _, err := cmacTrunc(s.KeyType, s.SessionKeyMac, macInput); err != nil {
			return nil, err
		}
		return resp, nil
	case MAC:
		if len(resp) < 8 {
			return nil, ErrIntegrity
		}
		data, mac := resp[:len(resp)-8], resp[len(resp)-8:]
		want, err := cmacTrunc(s.KeyType, s.SessionKeyMac, concat([]byte{ins}, data))
		if err != nil {
			return nil, err
		}
		if !bytes.Equal(mac, want) {
			return nil, ErrIntegrity
		}
		return data, nil
	case Encrypted:
		if len(resp) == 0 || len(resp)%bs != 0 {
			return nil, ErrIntegrity
		}
		dec, err := deskey.DecryptCBC(s.KeyType, s.SessionKeyEnc, s.IV, resp)
		if err != nil {
			return nil, err
		}
		s.IV = lastBlock(resp, bs)
		plain, err := deskey.UnpadISO9797M2(dec)
		if err != nil {
			return nil, ErrIntegrity
		}
		if len(plain) < 4 {
			return nil, ErrIntegrity
		}
		data, crcBytes := plain[:len(plain)-4], plain[len(plain)-4:]
		gotCRC := binary.LittleEndian.Uint32(crcBytes)
		if deskey.CRC32DESFire(data) != gotCRC {
			return nil, ErrIntegrity
		}
		if _, err := cmacTrunc(s.KeyType, s.SessionKeyMac, concat([]byte{ins}, data)); err != nil {
			return nil, err
		}
		return data, nil
	default:
		return resp, nil
	}
}
