// Package channel implements the DESFire secure-channel state and codec
// (spec §4.D): per-session IV, transaction identifier and command counter,
// and the wrap/unwrap contract for each (channel, comm mode) combination.
package channel

import (
	"fmt"

	"github.com/go-desfire/desfire/internal/deskey"
	"github.com/go-desfire/desfire/pkg/desfire/wire"
)

// Kind is the secure-channel protocol currently in force.
type Kind int

const (
	None Kind = iota
	D40
	EV1
	EV2
)

func (k Kind) String() string {
	switch k {
	case None:
		return "none"
	case D40:
		return "d40"
	case EV1:
		return "ev1"
	case EV2:
		return "ev2"
	default:
		return "unknown"
	}
}

// CommMode is the per-command protection level.
type CommMode int

const (
	Plain CommMode = iota
	MAC
	Encrypted
)

// ErrIntegrity is returned by Unwrap when a CRC or MAC check fails.
var ErrIntegrity = fmt.Errorf("channel: integrity check failed")

// State holds everything a Context needs to wrap/unwrap commands for the
// channel currently in force: session keys, IV, EV2 TI/command counter.
// Selecting an application clears it (desfire.Context.ClearSession).
type State struct {
	Kind          Kind
	KeyType       deskey.KeyType
	SessionKeyEnc []byte
	SessionKeyMac []byte
	IV            []byte
	TI            [4]byte
	CmdCtr        uint16
}

// Reset clears all session material: secure_channel<-None, session keys
// zeroed, IV zeroed, TI and command counter zeroed (spec §3 invariant,
// DesfireClearSession).
func (s *State) Reset() {
	deskey.Zero(s.SessionKeyEnc)
	deskey.Zero(s.SessionKeyMac)
	deskey.Zero(s.IV)
	s.Kind = None
	s.KeyType = 0
	s.SessionKeyEnc = nil
	s.SessionKeyMac = nil
	s.IV = nil
	s.TI = [4]byte{}
	s.CmdCtr = 0
}

// ResetIVOnly zeroes the running IV without touching TI/CmdCtr/keys; used
// after authenticate and on channel mode change (spec §3).
func (s *State) ResetIVOnly() {
	s.IV = make([]byte, s.KeyType.BlockSize())
}

// Wrap encodes an outbound payload per (channel, comm mode) (spec §4.D
// table). ins is the command's instruction byte; payload is the
// pre-chaining command data (header plus data, as the caller assembled
// it) that Wrap MUST see before TX chaining splits it.
func (s *State) Wrap(ins byte, payload []byte, mode CommMode) ([]byte, error) {
	switch s.Kind {
	case None:
		return payload, nil
	case D40:
		return s.wrapD40(ins, payload, mode)
	case EV1:
		return s.wrapEV1(ins, payload, mode)
	case EV2:
		return s.wrapEV2(ins, payload, mode)
	default:
		return nil, fmt.Errorf("channel: unknown channel kind %v", s.Kind)
	}
}

// Unwrap decodes an inbound response per (channel, comm mode), verifying
// integrity. resp MUST be the fully reassembled response (post RX
// chaining). status is the terminal status the response carried, needed
// by the EV2 response MAC input.
func (s *State) Unwrap(ins byte, resp []byte, mode CommMode, status wire.Status) ([]byte, error) {
	switch s.Kind {
	case None:
		return resp, nil
	case D40:
		return s.unwrapD40(ins, resp, mode)
	case EV1:
		return s.unwrapEV1(ins, resp, mode)
	case EV2:
		return s.unwrapEV2(ins, resp, mode, status)
	default:
		return nil, fmt.Errorf("channel: unknown channel kind %v", s.Kind)
	}
}

func cmacTrunc(t deskey.KeyType, key, msg []byte) ([]byte, error) {
	full, err := deskey.CMAC(t, key, msg)
	if err != nil {
		return nil, err
	}
	return deskey.TruncateOddBytes(full), nil
}

func concat(parts ...[]byte) []byte {
	n := 0
	for _, p := range parts {
		n += len(p)
	}
	out := make([]byte, 0, n)
	for _, p := range parts {
		out = append(out, p...)
	}
	return out
}
