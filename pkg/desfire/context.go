// Package desfire is the command surface layered over the secure channel,
// exchange engine and framing codec (spec §4.F): application, file, key,
// value and record operations, each a thin wrapper that builds a
// fixed-offset payload and drives one DesfireExchange.
package desfire

import (
	"context"
	"errors"
	"fmt"

	"github.com/go-desfire/desfire/internal/deskey"
	"github.com/go-desfire/desfire/pkg/desfire/auth"
	"github.com/go-desfire/desfire/pkg/desfire/channel"
	"github.com/go-desfire/desfire/pkg/desfire/exchange"
	"github.com/go-desfire/desfire/pkg/desfire/frame"
	"github.com/go-desfire/desfire/pkg/desfire/transport"
	"github.com/go-desfire/desfire/pkg/desfire/wire"
	"github.com/rs/zerolog"
)

// KdfAlgo selects an optional pre-authenticate key derivation.
type KdfAlgo int

const (
	KdfNone KdfAlgo = iota
	KdfAN10922
)

// Context is the process-visible handle (spec §3): at most one
// authenticated session is live at a time. The zero value is not usable;
// construct with NewContext.
type Context struct {
	Card       transport.Card
	CommandSet frame.CommandSet
	Log        zerolog.Logger

	KeyNum   byte
	KeyType  deskey.KeyType
	Key      []byte
	KdfAlgo  KdfAlgo
	KdfInput []byte

	CommMode channel.CommMode

	chState     channel.State
	appSelected bool

	engine *exchange.Engine
	rand   auth.RandSource
}

// NewContext builds a Context bound to a transport.Card and wire framing.
func NewContext(card transport.Card, commandSet frame.CommandSet, log zerolog.Logger) *Context {
	c := &Context{Card: card, CommandSet: commandSet, Log: log}
	c.engine = &exchange.Engine{Card: card, CommandSet: commandSet, Log: log}
	c.rand = auth.CryptoRandSource{}
	return c
}

// IsAuthenticated reports whether a secure channel is currently in force.
func (c *Context) IsAuthenticated() bool {
	return c.chState.Kind != channel.None
}

// SecureChannel reports the protocol of the current session.
func (c *Context) SecureChannel() channel.Kind {
	return c.chState.Kind
}

// AppSelected reports whether the currently selected AID is not 000000.
func (c *Context) AppSelected() bool {
	return c.appSelected
}

// ClearSession implements DesfireClearSession (spec §3, invariant 1):
// secure_channel<-None, session keys zeroed, IV zeroed, ti and cmd_cntr
// zeroed. Called automatically by SelectApplication and on transport/
// integrity failures (spec §5 "Cancellation / timeouts").
func (c *Context) ClearSession() {
	c.chState.Reset()
}

// SetKey installs the key material used by the next Authenticate call.
// Callers are responsible for zeroising key after the Context no longer
// needs it (spec §9 zeroisation note).
func (c *Context) SetKey(keyNum byte, keyType deskey.KeyType, key []byte) error {
	if len(key) != keyType.KeyLength() {
		return invalidArg("SetKey", "key length %d does not match %s (want %d)", len(key), keyType, keyType.KeyLength())
	}
	c.KeyNum = keyNum
	c.KeyType = keyType
	c.Key = key
	return nil
}

// effectiveKey applies the configured KDF, if any, before authenticate
// uses the key (spec §3 kdf_algo/kdf_input).
func (c *Context) effectiveKey() ([]byte, error) {
	switch c.KdfAlgo {
	case KdfNone:
		return c.Key, nil
	case KdfAN10922:
		return deskey.KDFAN10922(c.KeyType, c.Key, c.KdfInput)
	default:
		return nil, fmt.Errorf("desfire: unknown KDF algorithm %d", c.KdfAlgo)
	}
}

// Authenticate runs the protocol selector (spec §4.E.4) against the
// Context's configured key, and on success installs the resulting secure
// channel. No partial session is ever left behind on failure.
func (c *Context) Authenticate(ctx context.Context, ch channel.Kind) error {
	key, err := c.effectiveKey()
	if err != nil {
		return newErr(KindAuthFailure, "Authenticate", err)
	}

	res, err := auth.Authenticate(ctx, auth.Params{
		Engine:         c.engine,
		CommandSet:     c.CommandSet,
		Channel:        ch,
		KeyType:        c.KeyType,
		Key:            key,
		KeyNum:         c.KeyNum,
		AppLevel:       c.appSelected,
		Rand:           c.rand,
		Log:            c.Log,
		FirstAuth:      !c.IsAuthenticated(),
		PreviousTI:     c.chState.TI,
		PreviousCmdCtr: c.chState.CmdCtr,
	})
	if err != nil {
		c.ClearSession()
		return newErr(KindAuthFailure, "Authenticate", err)
	}

	c.chState = channel.State{
		Kind:          res.Kind,
		KeyType:       c.KeyType,
		SessionKeyEnc: res.SessionKeyEnc,
		SessionKeyMac: res.SessionKeyMac,
		TI:            res.TI,
		CmdCtr:        res.CmdCtr,
	}
	c.chState.ResetIVOnly()
	return nil
}

// exchangeFlags are the Flags every command-surface operation uses,
// selection included: chaining on, ActivateField off.
func (c *Context) exchangeFlags() exchange.Flags {
	return exchange.Flags{EnableChaining: true}
}

// exchange drives one command through the secure channel and classifies
// any failure into the command surface's Kind taxonomy (spec §7).
func (c *Context) exchange(ctx context.Context, op string, ins byte, payload []byte, mode channel.CommMode) ([]byte, error) {
	data, _, err := c.engine.Exchange(ctx, ins, payload, mode, &c.chState, c.exchangeFlags())
	if err != nil {
		var fail *exchange.Fail
		if errors.As(err, &fail) {
			return nil, &Error{Kind: KindApduFail, Status: byte(fail.Status), Op: op, Cause: err}
		}
		if errors.Is(err, channel.ErrIntegrity) {
			c.ClearSession()
			return nil, newErr(KindIntegrity, op, err)
		}
		c.ClearSession()
		return nil, newErr(KindTransport, op, err)
	}
	return data, nil
}

// exchangeSplit is exchange followed by re-blocking into fixed-stride
// records (spec §4.C point 3).
func (c *Context) exchangeSplit(ctx context.Context, op string, ins byte, payload []byte, mode channel.CommMode, stride int) ([]exchange.Block, error) {
	blocks, _, err := c.engine.ExchangeSplit(ctx, ins, payload, mode, &c.chState, c.exchangeFlags(), stride)
	if err != nil {
		var fail *exchange.Fail
		if errors.As(err, &fail) {
			return nil, &Error{Kind: KindApduFail, Status: byte(fail.Status), Op: op, Cause: err}
		}
		if errors.Is(err, channel.ErrIntegrity) {
			c.ClearSession()
			return nil, newErr(KindIntegrity, op, err)
		}
		c.ClearSession()
		return nil, newErr(KindTransport, op, err)
	}
	return blocks, nil
}

// selectApplication is the shared primitive behind SelectApplication and
// the AID=000000 bootstrap: selecting always clears the session first
// (spec §3).
func (c *Context) selectApplication(ctx context.Context, aid uint32) error {
	c.ClearSession()
	c.appSelected = aid != 0
	_, err := c.exchange(ctx, "SelectApplication", wire.InsSelectApplication, wire.AIDUintToByte(aid), channel.Plain)
	return err
}

// SelectApplication selects an AID, clearing any existing secure session.
func (c *Context) SelectApplication(ctx context.Context, aid uint32) error {
	return c.selectApplication(ctx, aid)
}
