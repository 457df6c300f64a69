package auth

import (
	"time"

	"github.com/AstralVarkon/azure-iot-sdks/internal/auth/sas"
	"github.com/AstralVarkon/azure-iot-sdks/internal/clock"
)

// minter mints SAS tokens from a symmetric key via an injected signer. It is
// a pure transformation: given "now" and a lifetime it produces a token and
// the create_time to record alongside it.
type minter struct {
	signer sas.Signer
	clk    clock.Clock
}

// mint signs a token for audience, keyName, expiring lifetime after now.
// Returns the token and the create_time (== now). Fails with
// ErrKindClockUnavailable if the clock reports indefinite, or
// ErrKindSignerFailure if the signer errors.
func (m *minter) mint(key []byte, audience, keyName string, lifetime time.Duration) (token string, createTime time.Time, err error) {
	now, ok := m.clk.Now()
	if !ok {
		return "", time.Time{}, newErr("mint", ErrKindClockUnavailable, nil)
	}

	expiry := now.Add(lifetime).Unix()
	token, signErr := m.signer.Sign(key, audience, keyName, expiry)
	if signErr != nil {
		return "", time.Time{}, newErr("mint", ErrKindSignerFailure, signErr)
	}
	return token, now, nil
}
