package auth

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AstralVarkon/azure-iot-sdks/internal/clock"
)

func TestMinterSetsCreateTimeToNow(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	m := &minter{signer: &stubSigner{token: "tok"}, clk: clock.NewFake(now)}

	token, createTime, err := m.mint([]byte("k"), "aud", "", time.Hour)
	require.NoError(t, err)
	assert.Equal(t, "tok", token)
	assert.Equal(t, now, createTime)
}

func TestMinterFailsOnIndefiniteClock(t *testing.T) {
	clk := clock.NewFake(time.Unix(0, 0))
	clk.SetIndefinite(true)
	m := &minter{signer: &stubSigner{token: "tok"}, clk: clk}

	_, _, err := m.mint([]byte("k"), "aud", "", time.Hour)
	require.Error(t, err)
	kind, ok := Kind(err)
	require.True(t, ok)
	assert.Equal(t, ErrKindClockUnavailable, kind)
}

func TestMinterFailsOnSignerError(t *testing.T) {
	m := &minter{signer: &stubSigner{err: errors.New("boom")}, clk: clock.NewFake(time.Unix(0, 0))}

	_, _, err := m.mint([]byte("k"), "aud", "", time.Hour)
	require.Error(t, err)
	kind, ok := Kind(err)
	require.True(t, ok)
	assert.Equal(t, ErrKindSignerFailure, kind)
}
