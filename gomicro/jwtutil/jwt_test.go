package jwtutil

import (
	"strings"
	"testing"
	"time"

	"github.com/fleetmanager/backend/gomicro/config"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "test-secret-that-is-at-least-32-bytes!"

func newTestUtil(t *testing.T, opts ...Option) *JWTUtil {
	t.Helper()
	j, err := NewJWTUtil(config.JWTConfig{Secret: testSecret, TTL: time.Hour, Issuer: "fleetmanager"}, opts...)
	require.NoError(t, err)
	return j
}

func TestNewJWTUtilRejectsWeakSecret(t *testing.T) {
	_, err := NewJWTUtil(config.JWTConfig{Secret: strings.Repeat("x", 31), TTL: time.Hour})
	assert.ErrorIs(t, err, ErrWeakSecret)

	_, err = NewJWTUtil(config.JWTConfig{Secret: strings.Repeat("x", 32), TTL: time.Hour})
	assert.NoError(t, err)
}

func TestIssueVerifyRoundTrip(t *testing.T) {
	j := newTestUtil(t)

	cases := []struct {
		user, tenant uint
		role         string
		ttl          time.Duration
	}{
		{1, 100, "ADMIN", 60 * time.Second},
		{42, 7, "", time.Millisecond * 1500},
		{9, 9, "DRIVER", 24 * time.Hour},
	}
	for _, tc := range cases {
		token, err := j.Issue(tc.user, tc.tenant, tc.role, tc.ttl)
		require.NoError(t, err)

		claims, err := j.Verify(token)
		require.NoError(t, err)
		assert.Equal(t, tc.user, claims.UserID.Uint())
		assert.Equal(t, tc.tenant, claims.TenantID.Uint())
		assert.Equal(t, tc.role, claims.Role)
		assert.NoError(t, claims.RequireIdentity())
	}
}

func TestIssueRejectsNonPositiveTTL(t *testing.T) {
	j := newTestUtil(t)
	_, err := j.Issue(1, 1, "ADMIN", 0)
	assert.ErrorIs(t, err, ErrInvalidTTL)
}

func TestVerifyExpired(t *testing.T) {
	now := time.Now()
	clock := func() time.Time { return now }
	j := newTestUtil(t, WithClock(func() time.Time { return clock() }))

	token, err := j.Issue(1, 100, "ADMIN", time.Minute)
	require.NoError(t, err)

	clock = func() time.Time { return now.Add(2 * time.Minute) }
	_, err = j.Verify(token)
	assert.ErrorIs(t, err, ErrTokenExpired)
	assert.ErrorIs(t, err, ErrInvalidToken)
	assert.Equal(t, "expired", Reason(err))
}

func TestVerifyTamperedPayload(t *testing.T) {
	j := newTestUtil(t)
	token, err := j.Issue(1, 100, "VIEWER", time.Minute)
	require.NoError(t, err)

	// Re-sign a forged payload with a different secret and graft the original signature.
	forged, err := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		UserID:   1,
		TenantID: 200,
		Role:     "ADMIN",
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    "fleetmanager",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Minute)),
		},
	}).SignedString([]byte("another-secret-that-is-32-bytes-long!!"))
	require.NoError(t, err)

	parts := strings.Split(token, ".")
	forgedParts := strings.Split(forged, ".")
	tampered := strings.Join([]string{forgedParts[0], forgedParts[1], parts[2]}, ".")

	_, err = j.Verify(tampered)
	assert.ErrorIs(t, err, ErrSignatureInvalid)

	_, err = j.Verify(forged)
	assert.ErrorIs(t, err, ErrSignatureInvalid)
}

func TestVerifyUnsupportedAlgorithm(t *testing.T) {
	j := newTestUtil(t)

	token, err := jwt.NewWithClaims(jwt.SigningMethodHS512, Claims{
		UserID:   1,
		TenantID: 1,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    "fleetmanager",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Minute)),
		},
	}).SignedString([]byte(testSecret))
	require.NoError(t, err)

	_, err = j.Verify(token)
	assert.ErrorIs(t, err, ErrUnsupportedAlgorithm)

	unsigned, err := jwt.NewWithClaims(jwt.SigningMethodNone, Claims{UserID: 1, TenantID: 1}).
		SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	_, err = j.Verify(unsigned)
	assert.ErrorIs(t, err, ErrUnsupportedAlgorithm)
}

func TestVerifyMalformed(t *testing.T) {
	j := newTestUtil(t)
	for _, token := range []string{"", "abc", "a.b.c", "a.b"} {
		_, err := j.Verify(token)
		assert.ErrorIs(t, err, ErrMalformedToken, token)
	}
}

func TestVerifyRequiresExpiry(t *testing.T) {
	j := newTestUtil(t)
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		UserID:           1,
		TenantID:         1,
		RegisteredClaims: jwt.RegisteredClaims{Issuer: "fleetmanager"},
	}).SignedString([]byte(testSecret))
	require.NoError(t, err)

	_, err = j.Verify(token)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestVerifyWrongIssuer(t *testing.T) {
	other, err := NewJWTUtil(config.JWTConfig{Secret: testSecret, TTL: time.Hour, Issuer: "someone-else"})
	require.NoError(t, err)
	token, err := other.Issue(1, 1, "ADMIN", time.Minute)
	require.NoError(t, err)

	_, err = newTestUtil(t).Verify(token)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestRequireIdentity(t *testing.T) {
	j := newTestUtil(t)

	token, err := j.Issue(5, 0, "ADMIN", time.Minute)
	require.NoError(t, err)
	claims, err := j.Verify(token)
	require.NoError(t, err)
	assert.ErrorIs(t, claims.RequireIdentity(), ErrMissingClaim)
	assert.Equal(t, "missing_claim", Reason(claims.RequireIdentity()))

	token, err = j.Issue(0, 3, "ADMIN", time.Minute)
	require.NoError(t, err)
	claims, err = j.Verify(token)
	require.NoError(t, err)
	assert.ErrorIs(t, claims.RequireIdentity(), ErrMissingClaim)
}

func TestNumericIDAcceptsStrings(t *testing.T) {
	j := newTestUtil(t)
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"user_id":   "12",
		"tenant_id": "100",
		"iss":       "fleetmanager",
		"exp":       time.Now().Add(time.Minute).Unix(),
	}).SignedString([]byte(testSecret))
	require.NoError(t, err)

	claims, err := j.Verify(token)
	require.NoError(t, err)
	assert.Equal(t, uint(12), claims.UserID.Uint())
	assert.Equal(t, uint(100), claims.TenantID.Uint())
}

func TestNumericIDRejectsGarbage(t *testing.T) {
	j := newTestUtil(t)
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"user_id":   1,
		"tenant_id": "not-a-number",
		"iss":       "fleetmanager",
		"exp":       time.Now().Add(time.Minute).Unix(),
	}).SignedString([]byte(testSecret))
	require.NoError(t, err)

	_, err = j.Verify(token)
	assert.ErrorIs(t, err, ErrMalformedToken)
}
