// Package auth implements the three DESFire challenge-response
// authentication protocols (spec §4.E): legacy/EV1 (d40 DES/3DES, EV1 ISO,
// EV1 AES), ISO external/internal authenticate, and EV2 first/non-first.
// Each produces session material for the channel package.
package auth

import (
	"context"
	"crypto/rand"
	"fmt"
	"io"

	"github.com/go-desfire/desfire/internal/deskey"
	"github.com/go-desfire/desfire/pkg/desfire/channel"
	"github.com/go-desfire/desfire/pkg/desfire/exchange"
	"github.com/go-desfire/desfire/pkg/desfire/frame"
	"github.com/go-desfire/desfire/pkg/desfire/wire"
	"github.com/rs/zerolog"
)

// Error is the enumerated authentication diagnostic (spec §7): each step
// has a numeric code so callers can classify failures without parsing
// strings.
type Error struct {
	Code    int
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("auth: step %d (%s): %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("auth: step %d: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error { return e.Cause }

func stepErr(code int, msg string, cause error) error {
	return &Error{Code: code, Message: msg, Cause: cause}
}

// RandSource abstracts RndA generation so tests can inject deterministic
// values (spec §8 scenarios S1/S2 use a fixed RndA); production callers
// pass CryptoRandSource.
type RandSource interface {
	RndA(n int) ([]byte, error)
}

// CryptoRandSource reads RndA from crypto/rand.
type CryptoRandSource struct{}

func (CryptoRandSource) RndA(n int) ([]byte, error) {
	b := make([]byte, n)
	if _, err := io.ReadFull(rand.Reader, b); err != nil {
		return nil, err
	}
	return b, nil
}

// FixedRandSource returns a pre-set RndA value, used by deterministic test
// vectors (spec §8 S1/S2) and never by the production Context (which
// defaults to CryptoRandSource).
type FixedRandSource struct{ Value []byte }

func (f FixedRandSource) RndA(n int) ([]byte, error) {
	if len(f.Value) != n {
		return nil, fmt.Errorf("auth: fixed RndA length %d != requested %d", len(f.Value), n)
	}
	return append([]byte(nil), f.Value...), nil
}

// Params bundles everything Authenticate needs: which channel to
// establish, the key material/type, the key slot, and the wire/transport
// configuration already carried by the engine.
type Params struct {
	Engine     *exchange.Engine
	CommandSet frame.CommandSet
	Channel    channel.Kind
	KeyType    deskey.KeyType
	Key        []byte
	KeyNum     byte
	AppLevel   bool // for ISO P2 tagging: selected app != 000000
	Rand       RandSource
	Log        zerolog.Logger

	// FirstAuth selects EV2 first-auth vs non-first; ignored for other
	// channels. Set by the caller per spec §4.E.4 (!is_authenticated(ctx)).
	FirstAuth bool

	// PreviousTI and PreviousCmdCtr carry the existing EV2 session's
	// transaction identifier and command counter through a non-first
	// re-authenticate (spec §4.E.3 step 5: both are retained, not reset).
	// Ignored for first-auth and for other channels.
	PreviousTI     [4]byte
	PreviousCmdCtr uint16
}

// Result carries the session material a successful authenticate produces,
// ready to install into a channel.State.
type Result struct {
	Kind          channel.Kind
	SessionKeyEnc []byte
	SessionKeyMac []byte
	TI            [4]byte
	CmdCtr        uint16
}

// Authenticate is the protocol selector (spec §4.E.4): dispatches to the
// ISO, EV1/d40, or EV2 flow based on command set and target channel. No
// partial session is ever left behind on failure — callers must not touch
// channel.State until Authenticate returns a Result.
func Authenticate(ctx context.Context, p Params) (*Result, error) {
	if p.Rand == nil {
		p.Rand = CryptoRandSource{}
	}
	switch {
	case p.CommandSet == frame.ISO && p.Channel != channel.EV2:
		return authenticateISO(ctx, p)
	case p.Channel == channel.D40 || p.Channel == channel.EV1:
		return authenticateEV1(ctx, p)
	case p.Channel == channel.EV2:
		return authenticateEV2(ctx, p)
	default:
		return nil, stepErr(100, fmt.Sprintf("no protocol selector matches command_set=%v channel=%v", p.CommandSet, p.Channel), nil)
	}
}
