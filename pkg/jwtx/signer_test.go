package jwtx_test

import (
	"encoding/base64"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/aussiebroadwan/licensor/pkg/jwtx"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"
)

var testSecret = []byte("unit-test-secret")

func newSigner(t *testing.T, now time.Time) *jwtx.HMACSigner {
	t.Helper()

	s, err := jwtx.NewHMACSigner(testSecret)
	require.NoError(t, err)
	s.Now = func() time.Time { return now }
	return s
}

func TestNewHMACSignerRequiresSecret(t *testing.T) {
	_, err := jwtx.NewHMACSigner(nil)
	require.ErrorIs(t, err, jwtx.ErrMissingSecret)

	_, err = jwtx.NewHMACSigner([]byte{})
	require.ErrorIs(t, err, jwtx.ErrMissingSecret)
}

func TestIssueAndVerify(t *testing.T) {
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	exp := time.Date(2030, 1, 1, 0, 0, 0, 0, time.UTC)
	s := newSigner(t, now)

	token, err := s.Issue("p1", "K1", exp)
	require.NoError(t, err)
	require.Equal(t, 3, len(strings.Split(token, ".")))

	claims, err := s.Verify(token)
	require.NoError(t, err)
	require.Equal(t, "p1", claims.PlayerID)
	require.Equal(t, "K1", claims.LicenseKey)
	require.True(t, exp.Equal(claims.Expiry()))
	require.True(t, now.Equal(claims.IssuedAt.Time))
	require.Equal(t, "HS256", s.Alg())
}

func TestPayloadFieldNames(t *testing.T) {
	s := newSigner(t, time.Unix(1700000000, 0))

	token, err := s.Issue("p1", "K1", time.Unix(1900000000, 0))
	require.NoError(t, err)

	raw, err := base64.RawURLEncoding.DecodeString(strings.Split(token, ".")[1])
	require.NoError(t, err)

	var payload map[string]any
	require.NoError(t, json.Unmarshal(raw, &payload))
	require.Equal(t, "K1", payload["licenseKey"])
	require.Equal(t, "p1", payload["playerId"])
	require.EqualValues(t, 1700000000, payload["iat"])
	require.EqualValues(t, 1900000000, payload["exp"])
}

func TestExpiryMonotonicity(t *testing.T) {
	exp := time.Date(2030, 1, 1, 0, 0, 0, 0, time.UTC)
	issuer := newSigner(t, exp.Add(-24*time.Hour))

	token, err := issuer.Issue("p1", "K1", exp)
	require.NoError(t, err)

	for _, offset := range []time.Duration{-24 * time.Hour, -time.Minute, -time.Second} {
		_, err := newSigner(t, exp.Add(offset)).Verify(token)
		require.NoError(t, err, "offset %s", offset)
	}

	for _, offset := range []time.Duration{0, time.Second, 365 * 24 * time.Hour} {
		claims, err := newSigner(t, exp.Add(offset)).Verify(token)
		require.ErrorIs(t, err, jwtx.ErrExpired, "offset %s", offset)
		require.NotNil(t, claims)
		require.Equal(t, "K1", claims.LicenseKey)
		require.False(t, jwtx.IsUntrusted(err))
	}
}

func TestVerifyRejectsUntrustedTokens(t *testing.T) {
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	s := newSigner(t, now)

	t.Run("garbage", func(t *testing.T) {
		claims, err := s.Verify("not.a.jwt")
		require.ErrorIs(t, err, jwtx.ErrMalformed)
		require.Nil(t, claims)
		require.True(t, jwtx.IsUntrusted(err))
	})

	t.Run("empty", func(t *testing.T) {
		_, err := s.Verify("")
		require.ErrorIs(t, err, jwtx.ErrMalformed)
	})

	t.Run("wrong secret", func(t *testing.T) {
		other, err := jwtx.NewHMACSigner([]byte("someone-else"))
		require.NoError(t, err)
		other.Now = s.Now

		token, err := other.Issue("p1", "K1", now.Add(time.Hour))
		require.NoError(t, err)

		_, err = s.Verify(token)
		require.ErrorIs(t, err, jwtx.ErrInvalidSig)
	})

	t.Run("expired and wrong secret reports signature", func(t *testing.T) {
		other, err := jwtx.NewHMACSigner([]byte("someone-else"))
		require.NoError(t, err)

		token, err := other.Issue("p1", "K1", now.Add(-time.Hour))
		require.NoError(t, err)

		_, err = s.Verify(token)
		require.ErrorIs(t, err, jwtx.ErrInvalidSig)
	})

	t.Run("tampered payload", func(t *testing.T) {
		token, err := s.Issue("p1", "K1", now.Add(time.Hour))
		require.NoError(t, err)

		parts := strings.Split(token, ".")
		parts[1] = base64.RawURLEncoding.EncodeToString([]byte(`{"licenseKey":"K1","playerId":"p2","exp":4102444800}`))

		_, err = s.Verify(strings.Join(parts, "."))
		require.ErrorIs(t, err, jwtx.ErrInvalidSig)
	})

	t.Run("alg none", func(t *testing.T) {
		claims := jwtx.NewLicenseClaims("p1", "K1", now.Add(time.Hour), now)
		token, err := jwt.NewWithClaims(jwt.SigningMethodNone, claims).SignedString(jwt.UnsafeAllowNoneSignatureType)
		require.NoError(t, err)

		_, err = s.Verify(token)
		require.True(t, jwtx.IsUntrusted(err))
	})

	t.Run("missing exp", func(t *testing.T) {
		token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
			"licenseKey": "K1",
			"playerId":   "p1",
		}).SignedString(testSecret)
		require.NoError(t, err)

		_, err = s.Verify(token)
		require.ErrorIs(t, err, jwtx.ErrMalformed)
	})
}
