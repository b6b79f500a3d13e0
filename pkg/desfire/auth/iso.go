package auth

import (
	"bytes"
	"context"
	"fmt"

	"github.com/go-desfire/desfire/internal/deskey"
	"github.com/go-desfire/desfire/pkg/desfire/channel"
)

// ISO 7816-4 security command bytes (spec §4.E.2): these are standard
// smartcard commands, not DESFire native instructions, so they bypass the
// frame/exchange codec entirely and go straight to the transport.
const (
	isoCLA                  = 0x00
	insGetChallenge         = 0x84
	insExternalAuthenticate = 0x82
	insInternalAuthenticate = 0x88
)

// isoAlgorithmTag returns the P1 key-reference algorithm tag (spec §4.E.2):
// 0x02 DES/2TDEA, 0x04 3TDEA, 0x09 AES.
func isoAlgorithmTag(kt deskey.KeyType) (byte, error) {
	switch kt {
	case deskey.DES, deskey.TwoTDEA:
		return 0x02, nil
	case deskey.ThreeTDEA:
		return 0x04, nil
	case deskey.AES:
		return 0x09, nil
	default:
		return 0, stepErr(301, fmt.Sprintf("no ISO algorithm tag for key type %v", kt), nil)
	}
}

// authenticateISO implements spec §4.E.2: GET_CHALLENGE retrieves enc(RndB),
// EXTERNAL_AUTHENTICATE sends enc(RndA||RndB'), INTERNAL_AUTHENTICATE
// retrieves enc(RndA') for verification. The challenge-response arithmetic
// (rotate, decrypt/encrypt direction, session-key derivation) is identical
// to the EV1 flow; only the APDU framing differs.
func authenticateISO(ctx context.Context, p Params) (*Result, error) {
	p2, err := isoP2(p)
	if err != nil {
		return nil, stepErr(300, "building P2", err)
	}
	p1, err := isoAlgorithmTag(p.KeyType)
	if err != nil {
		return nil, err
	}

	bs := p.KeyType.BlockSize()

	challengeAPDU := isoAPDU(isoCLA, insGetChallenge, 0x00, 0x00, nil, bs)
	respData, sw, err := p.Engine.Card.ExchangeAPDU(ctx, challengeAPDU, false)
	if err != nil {
		return nil, stepErr(301, "GET_CHALLENGE transport", err)
	}
	if sw != 0x9000 || len(respData) != bs {
		return nil, stepErr(301, fmt.Sprintf("GET_CHALLENGE failed, sw=%04X", sw), nil)
	}
	rndB, err := decryptChallenge(channel.EV1, p.KeyType, p.Key, respData)
	if err != nil {
		return nil, stepErr(302, "decrypting RndB", err)
	}

	rndA, err := p.Rand.RndA(bs)
	if err != nil {
		return nil, stepErr(303, "generating RndA", err)
	}
	rndBRot := deskey.RotateLeft1(rndB)
	rndAB := append(append([]byte{}, rndA...), rndBRot...)
	rndABEnc, err := encryptChallenge(channel.EV1, p.KeyType, p.Key, rndAB)
	if err != nil {
		return nil, stepErr(304, "encrypting RndA||RndB'", err)
	}

	extAuthAPDU := isoAPDU(isoCLA, insExternalAuthenticate, p1, p2, rndABEnc, 0)
	_, sw, err = p.Engine.Card.ExchangeAPDU(ctx, extAuthAPDU, false)
	if err != nil {
		return nil, stepErr(305, "EXTERNAL_AUTHENTICATE transport", err)
	}
	if sw != 0x9000 {
		return nil, stepErr(305, fmt.Sprintf("EXTERNAL_AUTHENTICATE failed, sw=%04X", sw), nil)
	}

	intAuthAPDU := isoAPDU(isoCLA, insInternalAuthenticate, p1, p2, rndA, bs)
	respData, sw, err = p.Engine.Card.ExchangeAPDU(ctx, intAuthAPDU, false)
	if err != nil {
		return nil, stepErr(306, "INTERNAL_AUTHENTICATE transport", err)
	}
	if sw != 0x9000 || len(respData) != bs {
		return nil, stepErr(306, fmt.Sprintf("INTERNAL_AUTHENTICATE failed, sw=%04X", sw), nil)
	}

	rndARotRecv, err := decryptChallenge(channel.EV1, p.KeyType, p.Key, respData)
	if err != nil {
		return nil, stepErr(307, "decrypting RndA'", err)
	}
	rndACheck := deskey.RotateRight1(rndARotRecv)
	if !bytes.Equal(rndACheck, rndA) {
		return nil, stepErr(308, "RndA mismatch: authentication failed", nil)
	}

	sessionKey := deriveEV1SessionKey(p.KeyType, rndA, rndB)

	deskey.Zero(rndA)
	deskey.Zero(rndB)
	deskey.Zero(rndBRot)
	deskey.Zero(rndAB)
	deskey.Zero(rndARotRecv)
	deskey.Zero(rndACheck)

	return &Result{Kind: p.Channel, SessionKeyEnc: sessionKey, SessionKeyMac: sessionKey}, nil
}

// isoP2 builds the ISO authenticate P2 byte (spec §4.E.2): bit 7 set when
// an application (not the PICC master) is selected, low bits the key slot.
func isoP2(p Params) (byte, error) {
	if p.KeyNum > 0x3F {
		return 0, fmt.Errorf("auth: key number %d out of range for ISO P2", p.KeyNum)
	}
	p2 := p.KeyNum
	if p.AppLevel {
		p2 |= 0x80
	}
	return p2, nil
}

// isoAPDU assembles a raw ISO 7816-4 command APDU. le == 0 omits Le
// entirely (used for EXTERNAL_AUTHENTICATE, a no-response-data command);
// le > 0 requests exactly that many bytes back.
func isoAPDU(cla, ins, p1, p2 byte, data []byte, le int) []byte {
	out := []byte{cla, ins, p1, p2}
	if len(data) > 0 {
		out = append(out, byte(len(data)))
		out = append(out, data...)
	}
	if le > 0 {
		out = append(out, byte(le))
	}
	return out
}
