package channel

import (
	"bytes"

	"github.com/go-desfire/desfire/internal/deskey"
)

// wrapD40 implements the legacy d40 wrap contract (spec §4.D):
// Plain is passed through, MAC appends the 4-byte d40 MAC (macD40), and
// Encrypted mode appends a CRC16 then CBC-encrypts with the running IV,
// carried across commands.
func (s *State) wrapD40(ins byte, payload []byte, mode CommMode) ([]byte, error) {
	switch mode {
	case Plain:
		return payload, nil
	case MAC:
		mac, err := s.macD40(ins, payload)
		if err != nil {
			return nil, err
		}
		return concat(payload, mac), nil
	case Encrypted:
		crc := deskey.CRC16ISO14443A(payload)
		withCRC := append(append([]byte{}, payload...), byte(crc), byte(crc>>8))
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

func (s *State) unwrapD40(ins byte, resp []byte, mode CommMode) ([]byte, error) {
	bs := s.KeyType.BlockSize()
	switch mode {
	case Plain:
		return resp, nil
	case MAC:
		if len(resp) < 4 {
			return nil, ErrIntegrity
		}
		data, mac := resp[:len(resp)-4], resp[len(resp)-4:]
		want, err := s.macD40(ins, data)
		if err != nil {
			return nil, err
		}
		if !bytes.Equal(mac, want) {
			return nil, ErrIntegrity
		}
		return data, nil
	case Encrypted:
		if len(resp)%bs != 0 || len(resp) == 0 {
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
		if len(plain) < 2 {
			return nil, ErrIntegrity
		}
		data, crcBytes := plain[:len(plain)-2], plain[len(plain)-2:]
		gotCRC := uint16(crcBytes[0]) | uint16(crcBytes[1])<<8
		if deskey.CRC16ISO14443A(data) != gotCRC {
			return nil, ErrIntegrity
		}
		return data, nil
	default:
		return resp, nil
	}
}

// macD40 computes the 4-byte truncated DES-CBC-MAC over INS||payload: the
// session key CBC-encrypts the padded message and the first four bytes of
// the final block are the MAC (legacy MIFARE convention, spec §4.A/§4.D).
func (s *State) macD40(ins byte, payload []byte) ([]byte, error) {
	bs := s.KeyType.BlockSize()
	msg := deskey.PadISO9797M2(concat([]byte{ins}, payload), bs)
	zeroIV := make([]byte, bs)
	enc, err := deskey.EncryptCBC(s.KeyType, s.SessionKeyEnc, zeroIV, msg)
	if err != nil {
		return nil, err
	}
	last := lastBlock(enc, bs)
	return last[:4], nil
}

func lastBlock(data []byte, bs int) []byte {
	if len(data) < bs {
		return data
	}
	return data[len(data)-bs:]
}
