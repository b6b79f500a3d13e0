package desfire

import (
	"fmt"

	"context"

	"github.com/go-desfire/desfire/pkg/desfire/channel"
	"github.com/go-desfire/desfire/pkg/desfire/wire"
)

// GetValue returns the current balance of a value file.
func (c *Context) GetValue(ctx context.Context, fileNo byte, mode channel.CommMode) (int32, error) {
	data, err := c.exchange(ctx, "GetValue", wire.InsGetValue, []byte{fileNo}, mode)
	if err != nil {
		return 0, err
	}
	if len(data) != 4 {
		return 0, newErr(KindCardExchange, "GetValue", fmt.Errorf("expected 4 bytes, got %d", len(data)))
	}
	return int32(wire.ParseLE4(data)), nil
}

// Credit increases a value file's balance, effective only after
// CommitTransaction.
func (c *Context) Credit(ctx context.Context, fileNo byte, amount uint32, mode channel.CommMode) error {
	payload := append([]byte{fileNo}, wire.LE4(amount)...)
	_, err := c.exchange(ctx, "Credit", wire.InsCredit, payload, mode)
	return err
}

// LimitedCredit is Credit restricted to files with LimitedCreditEnabled,
// usable without the file's Credit key.
func (c *Context) LimitedCredit(ctx context.Context, fileNo byte, amount uint32, mode channel.CommMode) error {
	payload := append([]byte{fileNo}, wire.LE4(amount)...)
	_, err := c.exchange(ctx, "LimitedCredit", wire.InsLimitedCredit, payload, mode)
	return err
}

// Debit decreases a value file's balance, effective only after
// CommitTransaction.
func (c *Context) Debit(ctx context.Context, fileNo byte, amount uint32, mode channel.CommMode) error {
	payload := append([]byte{fileNo}, wire.LE4(amount)...)
	_, err := c.exchange(ctx, "Debit", wire.InsDebit, payload, mode)
	return err
}

// CommitTransaction durably applies every pending backup-file write and
// value-file credit/debit/limited-credit issued since the last commit or
// abort.
func (c *Context) CommitTransaction(ctx context.Context) error {
	_, err := c.exchange(ctx, "CommitTransaction", wire.InsCommitTransaction, nil, channel.Plain)
	return err
}

// AbortTransaction discards every pending backup-file write and value-file
// credit/debit/limited-credit issued since the last commit or abort.
func (c *Context) AbortTransaction(ctx context.Context) error {
	_, err := c.exchange(ctx, "AbortTransaction", wire.InsAbortTransaction, nil, channel.Plain)
	return err
}
