package auth

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/platinummonkey/warden/pkg/apperr"
)

const (
	// MinSecretLength is the minimum HMAC secret length in bytes.
	MinSecretLength = 32
	// DefaultTokenTTL is used when TokenConfig.TTL is zero.
	DefaultTokenTTL = time.Hour
	// DefaultIssuer is used when TokenConfig.Issuer is empty.
	DefaultIssuer = "warden"
)

// ErrSecretTooShort is returned by NewTokenManager for weak secrets.
var ErrSecretTooShort = fmt.Errorf("jwt secret must be at least %d bytes", MinSecretLength)

// Claims are the JWT claims carried by access tokens.
type Claims struct {
	Email string `json:"email"`
	jwt.RegisteredClaims
}

// UserID parses the subject claim.
func (c *Claims) UserID() (int64, error) {
	id, err := strconv.ParseInt(c.Subject, 10, 64)
	if err != nil || id <= 0 {
		return 0, apperr.Unauthorized("invalid token subject")
	}
	return id, nil
}

// TokenConfig configures a TokenManager.
type TokenConfig struct {
	Secret []byte
	Issuer string
	TTL    time.Duration
	// Now overrides the clock; nil means time.Now.
	Now func() time.Time
}

// TokenManager signs and validates access tokens.
type TokenManager struct {
	secret []byte
	issuer string
	ttl    time.Duration
	now    func() time.Time
}

// NewTokenManager creates a token manager.
func NewTokenManager(cfg TokenConfig) (*TokenManager, error) {
	if len(cfg.Secret) < MinSecretLength {
		return nil, ErrSecretTooShort
	}
	tm := &TokenManager{
		secret: cfg.Secret,
		issuer: cfg.Issuer,
		ttl:    cfg.TTL,
		now:    cfg.Now,
	}
	if tm.issuer == "" {
		tm.issuer = DefaultIssuer
	}
	if tm.ttl <= 0 {
		tm.ttl = DefaultTokenTTL
	}
	if tm.now == nil {
		tm.now = time.Now
	}
	return tm, nil
}

// TTL returns the lifetime of issued tokens.
func (tm *TokenManager) TTL() time.Duration {
	return tm.ttl
}

// Issue signs a new access token for the user.
func (tm *TokenManager) Issue(userID int64, email string) (string, time.Time, error) {
	now := tm.now().UTC()
	expiresAt := now.Add(tm.ttl)

	claims := Claims{
		Email: email,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    tm.issuer,
			Subject:   strconv.FormatInt(userID, 10),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			ID:        uuid.NewString(),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(tm.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("failed to sign token: %w", err)
	}
	return signed, expiresAt, nil
}

// Validate parses a signed token and returns its claims. Every failure is
// reported as an Unauthorized error.
func (tm *TokenManager) Validate(tokenString string) (*Claims, error) {
	if tokenString == "" {
		return nil, apperr.Unauthorized("missing token")
	}

	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return tm.secret, nil
	},
		jwt.WithIssuer(tm.issuer),
		jwt.WithTimeFunc(tm.now),
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, apperr.Wrap(apperr.KindUnauthorized, err, "token expired")
		}
		return nil, apperr.Wrap(apperr.KindUnauthorized, err, "invalid token")
	}
	if !token.Valid {
		return nil, apperr.Unauthorized("invalid token")
	}
	if _, err := claims.UserID(); err != nil {
		return nil, err
	}
	return claims, nil
}
