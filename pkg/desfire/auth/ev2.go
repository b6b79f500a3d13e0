package auth

import (
	"bytes"
	"context"

	"github.com/go-desfire/desfire/internal/deskey"
	"github.com/go-desfire/desfire/pkg/desfire/channel"
	"github.com/go-desfire/desfire/pkg/desfire/exchange"
	"github.com/go-desfire/desfire/pkg/desfire/wire"
)

// authenticateEV2 implements spec §4.E.3: always AES-128 over 16-byte
// blocks, dispatched to AUTHENTICATE_EV2_FIRST (0x71) or
// AUTHENTICATE_EV2_NON_FIRST (0x77) per p.FirstAuth. First-auth installs a
// new TI and resets cmd_cntr; non-first preserves both.
func authenticateEV2(ctx context.Context, p Params) (*Result, error) {
	subcmd := byte(wire.InsAuthenticateEV2NonFirst)
	firstPayload := []byte{p.KeyNum}
	if p.FirstAuth {
		subcmd = wire.InsAuthenticateEV2First
		firstPayload = []byte{p.KeyNum, 0x00}
	}

	none := &channel.State{Kind: channel.None}
	const bs = 16

	resp, status, err := p.Engine.Exchange(ctx, subcmd, firstPayload, channel.Plain, none, exchange.Flags{EnableChaining: false})
	if err != nil {
		return nil, stepErr(1, "step1 exchange", err)
	}
	if !status.Continues() || len(resp) != bs {
		return nil, stepErr(1, "step1: expected ADDITIONAL_FRAME with enc(RndB)", nil)
	}

	zeroIV := make([]byte, bs)
	rndB, err := deskey.DecryptCBC(deskey.AES, p.Key, zeroIV, resp)
	if err != nil {
		return nil, stepErr(2, "decrypting RndB", err)
	}

	rndA, err := p.Rand.RndA(bs)
	if err != nil {
		return nil, stepErr(3, "generating RndA", err)
	}

	rndBRot := deskey.RotateLeft1(rndB)
	rndAB := append(append([]byte{}, rndA...), rndBRot...)
	rndABEnc, err := deskey.EncryptCBC(deskey.AES, p.Key, zeroIV, rndAB)
	if err != nil {
		return nil, stepErr(4, "encrypting RndA||RndB'", err)
	}

	resp, status, err = p.Engine.Exchange(ctx, wire.InsAdditionalFrame, rndABEnc, channel.Plain, none, exchange.Flags{EnableChaining: false})
	if err != nil {
		return nil, stepErr(5, "step2 exchange", err)
	}
	if status != wire.StatusOperationOK || len(resp) != 32 {
		return nil, stepErr(5, "step2: expected OPERATION_OK with 32-byte enc(data)", nil)
	}

	data, err := deskey.DecryptCBC(deskey.AES, p.Key, zeroIV, resp)
	if err != nil {
		return nil, stepErr(6, "decrypting response data", err)
	}

	expectRndARot := deskey.RotateLeft1(rndA)

	res := &Result{Kind: channel.EV2}
	if p.FirstAuth {
		if len(data) != 32 {
			return nil, stepErr(7, "first-auth data must be 32 bytes", nil)
		}
		copy(res.TI[:], data[0:4])
		rndARotRecv := data[4:20]
		if !bytes.Equal(expectRndARot, rndARotRecv) {
			return nil, stepErr(8, "RndA mismatch: authentication failed", nil)
		}
		res.CmdCtr = 0
	} else {
		if len(data) < 16 {
			return nil, stepErr(7, "non-first-auth data must be at least 16 bytes", nil)
		}
		rndARotRecv := data[0:16]
		if !bytes.Equal(expectRndARot, rndARotRecv) {
			return nil, stepErr(8, "RndA mismatch: authentication failed", nil)
		}
		res.TI = p.PreviousTI
		res.CmdCtr = p.PreviousCmdCtr
	}

	sv1 := sessionVector(0xA5, 0x5A, rndA, rndB)
	sv2 := sessionVector(0x5A, 0xA5, rndA, rndB)

	sessionKeyEnc, err := deskey.CMAC(deskey.AES, p.Key, sv1)
	if err != nil {
		return nil, stepErr(9, "deriving session_key_enc", err)
	}
	sessionKeyMac, err := deskey.CMAC(deskey.AES, p.Key, sv2)
	if err != nil {
		return nil, stepErr(10, "deriving session_key_mac", err)
	}
	res.SessionKeyEnc = sessionKeyEnc
	res.SessionKeyMac = sessionKeyMac

	deskey.Zero(rndA)
	deskey.Zero(rndB)
	deskey.Zero(rndBRot)
	deskey.Zero(rndAB)
	deskey.Zero(data)
	deskey.Zero(sv1)
	deskey.Zero(sv2)

	return res, nil
}

// sessionVector builds the SV1/SV2 session-key derivation input (spec
// §4.E.3 step 6): a fixed 6-byte prefix distinguishing encryption from MAC
// subkeys, followed by RndA/RndB mixed across their shared middle bytes.
func sessionVector(b0, b1 byte, rndA, rndB []byte) []byte {
	mid := make([]byte, 6)
	deskey.XorBlock(mid, rndA[2:8], rndB[0:6])

	sv := make([]byte, 0, 32)
	sv = append(sv, b0, b1, 0x00, 0x01, 0x00, 0x80)
	sv = append(sv, rndA[0:2]...)
	sv = append(sv, mid...)
	sv = append(sv, rndB[6:16]...)
	sv = append(sv, rndA[8:16]...)
	return sv
}
