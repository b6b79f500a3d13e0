package desfire

import (
	"context"

	"github.com/go-desfire/desfire/pkg/desfire/channel"
)

// fallbackAttempt is one (key, keyNo) combination AuthenticateWithFallback
// will try in order.
type fallbackAttempt struct {
	key   []byte
	keyNo byte
	label string
}

// AuthenticateWithFallback tries, in order: the provided key at keyNo; the
// provided key at altKeyNo (if different); the provided key at slot 0 (if
// neither keyNo nor altKeyNo was already 0); and an all-zero key at slot 0
// (if the provided key wasn't already all-zero). Useful for provisioning
// tools encountering a card whose current key state is unknown. Channel is
// fixed at EV2: callers targeting an older card should call Authenticate
// directly with the right channel.Kind.
func (c *Context) AuthenticateWithFallback(ctx context.Context, key []byte, keyNo, altKeyNo byte) (effectiveKey []byte, effectiveKeyNo byte, err error) {
	zeroKey := make([]byte, c.KeyType.KeyLength())

	attempts := []fallbackAttempt{
		{key: key, keyNo: keyNo, label: "provided key, provided slot"},
	}
	if altKeyNo != keyNo {
		attempts = append(attempts, fallbackAttempt{key: key, keyNo: altKeyNo, label: "provided key, alt slot"})
	}
	if keyNo != 0 && altKeyNo != 0 {
		attempts = append(attempts, fallbackAttempt{key: key, keyNo: 0, label: "provided key, slot 0"})
	}
	if !isAllZero(key) {
		attempts = append(attempts, fallbackAttempt{key: zeroKey, keyNo: 0, label: "all-zero key, slot 0"})
	}

	var lastErr error
	for i, attempt := range attempts {
		c.KeyNum = attempt.keyNo
		c.Key = attempt.key
		authErr := c.Authenticate(ctx, channel.EV2)
		if authErr == nil {
			c.Log.Info().Str("method", attempt.label).Msg("authenticated")
			return attempt.key, attempt.keyNo, nil
		}
		if i > 0 {
			c.Log.Warn().Str("method", attempt.label).Err(authErr).Msg("auth attempt failed")
		}
		lastErr = authErr
	}
	return nil, 0, lastErr
}

func isAllZero(b []byte) bool {
	for _, v := range b {
		if v != 0 {
			return false
		}
	}
	return true
}
