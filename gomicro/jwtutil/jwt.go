package jwtutil

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/fleetmanager/backend/gomicro/config"
	"github.com/golang-jwt/jwt/v5"
)

// Verification errors. Every verification failure wraps ErrInvalidToken so
// that callers can treat them as a single outcome and still log the kind.
var (
	ErrInvalidToken         = errors.New("invalid token")
	ErrMalformedToken       = fmt.Errorf("%w: malformed", ErrInvalidToken)
	ErrSignatureInvalid     = fmt.Errorf("%w: signature mismatch", ErrInvalidToken)
	ErrUnsupportedAlgorithm = fmt.Errorf("%w: unsupported signing algorithm", ErrInvalidToken)
	ErrTokenExpired         = fmt.Errorf("%w: expired", ErrInvalidToken)

	// ErrMissingClaim is returned by RequireIdentity for a correctly signed token
	// that lacks the user id or the tenant id.
	ErrMissingClaim = errors.New("token missing required claims")

	ErrWeakSecret = fmt.Errorf("jwt secret must be at least %d bytes", config.MinSecretLength)
	ErrInvalidTTL = errors.New("token ttl must be positive")
)

// NumericID is a numeric claim that also accepts a quoted decimal string.
type NumericID uint

// UnmarshalJSON implements json.Unmarshaler.
func (n *NumericID) UnmarshalJSON(b []byte) error {
	s := strings.Trim(string(b), `"`)
	if s == "" || s == "null" {
		*n = 0
		return nil
	}
	v, err := strconv.ParseUint(s, 10, strconv.IntSize)
	if err != nil {
		return fmt.Errorf("invalid numeric claim %q: %w", s, err)
	}
	*n = NumericID(v)
	return nil
}

// Uint returns the id as a plain uint.
func (n NumericID) Uint() uint {
	return uint(n)
}

// Claims are the claims carried by access tokens.
type Claims struct {
	UserID   NumericID `json:"user_id,omitempty"`
	TenantID NumericID `json:"tenant_id,omitempty"`
	Role     string    `json:"role,omitempty"`
	jwt.RegisteredClaims
}

// RequireIdentity reports ErrMissingClaim when the user id or tenant id is absent.
func (c *Claims) RequireIdentity() error {
	switch {
	case c.UserID == 0 && c.TenantID == 0:
		return fmt.Errorf("%w: user_id, tenant_id", ErrMissingClaim)
	case c.UserID == 0:
		return fmt.Errorf("%w: user_id", ErrMissingClaim)
	case c.TenantID == 0:
		return fmt.Errorf("%w: tenant_id", ErrMissingClaim)
	}
	return nil
}

// Option configures a JWTUtil.
type Option func(*JWTUtil)

// WithClock replaces the time source used for issuing and expiry checks.
func WithClock(now func() time.Time) Option {
	return func(j *JWTUtil) {
		j.now = now
	}
}

// JWTUtil signs and verifies HS256 access tokens.
type JWTUtil struct {
	secret []byte
	ttl    time.Duration
	issuer string
	now    func() time.Time
}

// NewJWTUtil creates a token codec. It fails when the secret is shorter than
// config.MinSecretLength bytes.
func NewJWTUtil(cfg config.JWTConfig, opts ...Option) (*JWTUtil, error) {
	if len(cfg.Secret) < config.MinSecretLength {
		return nil, ErrWeakSecret
	}
	j := &JWTUtil{
		secret: []byte(cfg.Secret),
		ttl:    cfg.TTL,
		issuer: cfg.Issuer,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(j)
	}
	return j, nil
}

// Issue creates a signed token for the user and tenant valid for ttl.
func (j *JWTUtil) Issue(userID, tenantID uint, role string, ttl time.Duration) (string, error) {
	if ttl <= 0 {
		return "", ErrInvalidTTL
	}

	now := j.now()
	claims := Claims{
		UserID:   NumericID(userID),
		TenantID: NumericID(tenantID),
		Role:     role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   strconv.FormatUint(uint64(userID), 10),
			Issuer:    j.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(j.secret)
}

// IssueDefault issues a token with the configured TTL.
func (j *JWTUtil) IssueDefault(userID, tenantID uint, role string) (string, error) {
	return j.Issue(userID, tenantID, role, j.ttl)
}

// Verify checks structure, algorithm, signature and expiry and returns the claims.
// Expiry is always enforced; a token without exp is rejected.
func (j *JWTUtil) Verify(tokenString string) (*Claims, error) {
	opts := []jwt.ParserOption{
		jwt.WithExpirationRequired(),
		jwt.WithIssuedAt(),
		jwt.WithTimeFunc(j.now),
	}
	if j.issuer != "" {
		opts = append(opts, jwt.WithIssuer(j.issuer))
	}

	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, j.keyFunc, opts...)
	if err != nil {
		return nil, classify(err)
	}
	if !token.Valid {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

func (j *JWTUtil) keyFunc(token *jwt.Token) (interface{}, error) {
	if token.Method == nil || token.Method.Alg() != jwt.SigningMethodHS256.Alg() {
		return nil, fmt.Errorf("%w: %v", ErrUnsupportedAlgorithm, token.Header["alg"])
	}
	return j.secret, nil
}

func classify(err error) error {
	switch {
	case errors.Is(err, ErrUnsupportedAlgorithm):
		return fmt.Errorf("%w: %w", ErrUnsupportedAlgorithm, err)
	case errors.Is(err, jwt.ErrTokenMalformed), errors.Is(err, jwt.ErrTokenRequiredClaimMissing):
		return fmt.Errorf("%w: %w", ErrMalformedToken, err)
	case errors.Is(err, jwt.ErrTokenUnverifiable):
		return fmt.Errorf("%w: %w", ErrUnsupportedAlgorithm, err)
	case errors.Is(err, jwt.ErrTokenSignatureInvalid):
		return fmt.Errorf("%w: %w", ErrSignatureInvalid, err)
	case errors.Is(err, jwt.ErrTokenExpired):
		return fmt.Errorf("%w: %w", ErrTokenExpired, err)
	default:
		return fmt.Errorf("%w: %w", ErrInvalidToken, err)
	}
}

// Reason returns a short label for a verification error, for logs and metrics.
func Reason(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrMissingClaim):
		return "missing_claim"
	case errors.Is(err, ErrUnsupportedAlgorithm):
		return "unsupported_algorithm"
	case errors.Is(err, ErrMalformedToken):
		return "malformed"
	case errors.Is(err, ErrSignatureInvalid):
		return "signature_invalid"
	case errors.Is(err, ErrTokenExpired):
		return "expired"
	default:
		return "invalid"
	}
}
