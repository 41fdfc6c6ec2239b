package security

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGeneratePairRoundTrip(t *testing.T) {
	opts := DefaultOptions([]byte("unit-secret"))

	pair, err := GeneratePair(opts, "u1", "u1@example.com", "member")
	require.NoError(t, err)
	require.NotEmpty(t, pair.AccessToken)
	require.NotEmpty(t, pair.RefreshToken)
	assert.NotEqual(t, pair.AccessToken, pair.RefreshToken)

	access, err := Verify(opts, pair.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, "u1", access.UserID)
	assert.Equal(t, "u1@example.com", access.Email)
	assert.Equal(t, "member", access.UserType)
	assert.Equal(t, "access", access.Kind)
	assert.WithinDuration(t, time.Now().Add(opts.AccessTTL), access.ExpireAt, 5*time.Second)

	refresh, err := Verify(opts, pair.RefreshToken)
	require.NoError(t, err)
	assert.Equal(t, "u1", refresh.UserID)
	assert.Equal(t, "refresh", refresh.Kind)
	assert.Empty(t, refresh.Email)
}

func TestVerifyExpired(t *testing.T) {
	opts := DefaultOptions([]byte("unit-secret"))
	opts.AccessTTL = time.Millisecond

	pair, err := GeneratePair(opts, "u1", "u1@example.com", "member")
	require.NoError(t, err)

	time.Sleep(50 * time.Millisecond)
	_, err = Verify(opts, pair.AccessToken)
	assert.ErrorIs(t, err, ErrExpired)
}

func TestVerifyRejectsTampering(t *testing.T) {
	opts := DefaultOptions([]byte("unit-secret"))
	pair, err := GeneratePair(opts, "u1", "u1@example.com", "member")
	require.NoError(t, err)

	_, err = Verify(DefaultOptions([]byte("other-secret")), pair.AccessToken)
	assert.ErrorIs(t, err, ErrInvalid)

	_, err = Verify(opts, pair.AccessToken+"x")
	assert.ErrorIs(t, err, ErrInvalid)

	_, err = Verify(opts, "not-a-token")
	assert.ErrorIs(t, err, ErrInvalid)
}

func TestSigningAlgSelection(t *testing.T) {
	for _, alg := range []string{"HS256", "HS384", "HS512", ""} {
		opts := Options{Secret: []byte("unit-secret"), Alg: alg}
		pair, err := GeneratePair(opts, "u1", "u1@example.com", "member")
		require.NoError(t, err, "alg %q", alg)
		_, err = Verify(opts, pair.AccessToken)
		assert.NoError(t, err, "alg %q", alg)
	}

	_, err := GeneratePair(Options{Secret: []byte("k"), Alg: "RS256"}, "u1", "", "")
	assert.Error(t, err)
}
