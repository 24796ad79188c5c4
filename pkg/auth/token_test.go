package auth

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/platinummonkey/warden/pkg/apperr"
)

var testSecret = []byte("0123456789abcdef0123456789abcdef")

func newTestManager(t *testing.T, now func() time.Time) *TokenManager {
	t.Helper()
	tm, err := NewTokenManager(TokenConfig{Secret: testSecret, TTL: time.Hour, Now: now})
	require.NoError(t, err)
	return tm
}

func TestNewTokenManager_RejectsShortSecret(t *testing.T) {
	_, err := NewTokenManager(TokenConfig{Secret: []byte("short")})
	assert.ErrorIs(t, err, ErrSecretTooShort)
}

func TestNewTokenManager_Defaults(t *testing.T) {
	tm, err := NewTokenManager(TokenConfig{Secret: testSecret})
	require.NoError(t, err)
	assert.Equal(t, DefaultTokenTTL, tm.TTL())
	assert.Equal(t, DefaultIssuer, tm.issuer)
}

func TestIssueAndValidate(t *testing.T) {
	tm := newTestManager(t, nil)

	token, expiresAt, err := tm.Issue(42, "alice@example.com")
	require.NoError(t, err)
	assert.Equal(t, 3, len(strings.Split(token, ".")))
	assert.WithinDuration(t, time.Now().Add(time.Hour), expiresAt, 5*time.Second)

	claims, err := tm.Validate(token)
	require.NoError(t, err)
	assert.Equal(t, "alice@example.com", claims.Email)
	assert.Equal(t, DefaultIssuer, claims.Issuer)
	assert.NotEmpty(t, claims.ID)

	id, err := claims.UserID()
	require.NoError(t, err)
	assert.Equal(t, int64(42), id)
}

func TestIssue_UniqueTokenIDs(t *testing.T) {
	tm := newTestManager(t, nil)
	a, _, err := tm.Issue(1, "a@example.com")
	require.NoError(t, err)
	b, _, err := tm.Issue(1, "a@example.com")
	require.NoError(t, err)
	assert.NotEqual(t, a, b)
}

func TestValidate_Expired(t *testing.T) {
	issuedAt := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	issuer := newTestManager(t, func() time.Time { return issuedAt })
	token, _, err := issuer.Issue(7, "bob@example.com")
	require.NoError(t, err)

	later := newTestManager(t, func() time.Time { return issuedAt.Add(2 * time.Hour) })
	_, err = later.Validate(token)
	require.Error(t, err)
	assert.True(t, apperr.Is(err, apperr.KindUnauthorized))
	assert.Equal(t, "token expired", apperr.Message(err))
}

func TestValidate_Rejects(t *testing.T) {
	tm := newTestManager(t, nil)

	otherSecret, err := NewTokenManager(TokenConfig{Secret: []byte("ffffffffffffffffffffffffffffffff")})
	require.NoError(t, err)
	forged, _, err := otherSecret.Issue(1, "eve@example.com")
	require.NoError(t, err)

	otherIssuer, err := NewTokenManager(TokenConfig{Secret: testSecret, Issuer: "someone-else"})
	require.NoError(t, err)
	wrongIssuer, _, err := otherIssuer.Issue(1, "eve@example.com")
	require.NoError(t, err)

	none := jwt.NewWithClaims(jwt.SigningMethodNone, jwt.RegisteredClaims{Subject: "1", Issuer: DefaultIssuer})
	unsigned, err := none.SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	badSubject := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "not-a-number",
			Issuer:    DefaultIssuer,
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	})
	badSubjectToken, err := badSubject.SignedString(testSecret)
	require.NoError(t, err)

	tests := []struct {
		name  string
		token string
	}{
		{"empty", ""},
		{"garbage", "not.a.jwt"},
		{"wrong secret", forged},
		{"wrong issuer", wrongIssuer},
		{"alg none", unsigned},
		{"bad subject", badSubjectToken},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := tm.Validate(tt.token)
			require.Error(t, err)
			assert.True(t, apperr.Is(err, apperr.KindUnauthorized))
		})
	}
}

func TestContextRoundTrip(t *testing.T) {
	_, ok := FromContext(context.Background())
	assert.False(t, ok)

	org := int64(9)
	ctx := WithContext(context.Background(), &Context{UserID: 3, OrganizationID: &org})
	ac, ok := FromContext(ctx)
	require.True(t, ok)
	assert.Equal(t, int64(3), ac.UserID)
	assert.True(t, ac.InOrganization())
	assert.Equal(t, int64(9), ac.OrgID())

	var nilCtx *Context
	assert.False(t, nilCtx.InOrganization())
	assert.Equal(t, int64(0), nilCtx.OrgID())
}
