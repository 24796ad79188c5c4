package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/platinummonkey/warden/pkg/apperr"
	"github.com/platinummonkey/warden/pkg/auth"
	"github.com/platinummonkey/warden/pkg/httputil"
	"github.com/platinummonkey/warden/pkg/orgs"
	"github.com/platinummonkey/warden/pkg/users"
)

// UserLookup loads accounts by id.
type UserLookup interface {
	Get(ctx context.Context, id int64) (*users.User, error)
}

// MembershipResolver loads a user's organization membership, returning a
// NotFound error when there is none.
type MembershipResolver interface {
	MembershipFor(ctx context.Context, userID int64) (*orgs.Member, error)
}

// Authenticator turns bearer tokens into an auth.Context.
type Authenticator struct {
	tokens  *auth.TokenManager
	users   UserLookup
	members MembershipResolver
	log     logrus.FieldLogger
}

// NewAuthenticator creates the middleware.
func NewAuthenticator(tokens *auth.TokenManager, users UserLookup, members MembershipResolver, log logrus.FieldLogger) *Authenticator {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Authenticator{
		tokens:  tokens,
		users:   users,
		members: members,
		log:     log.WithField("component", "authn"),
	}
}

// BearerToken extracts the token from an "Authorization: Bearer" header.
func BearerToken(r *http.Request) (string, error) {
	header := r.Header.Get("Authorization")
	if header == "" {
		return "", apperr.Unauthorized("missing authorization header")
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") || strings.TrimSpace(parts[1]) == "" {
		return "", apperr.Unauthorized("invalid authorization header format")
	}
	return strings.TrimSpace(parts[1]), nil
}

// Authenticate resolves the caller of r.
func (a *Authenticator) Authenticate(r *http.Request) (*auth.Context, error) {
	token, err := BearerToken(r)
	if err != nil {
		return nil, err
	}
	claims, err := a.tokens.Validate(token)
	if err != nil {
		return nil, err
	}
	userID, err := claims.UserID()
	if err != nil {
		return nil, err
	}

	ctx := r.Context()
	user, err := a.users.Get(ctx, userID)
	if err != nil {
		if apperr.Is(err, apperr.KindNotFound) {
			return nil, apperr.Unauthorized("account no longer exists")
		}
		return nil, err
	}
	if user.Status != users.StatusActive {
		return nil, apperr.Unauthorized("account is %s", user.Status)
	}

	ac := &auth.Context{
		UserID:            user.ID,
		Email:             user.Email,
		TemporaryPassword: user.TempPassword,
	}
	member, err := a.members.MembershipFor(ctx, userID)
	switch {
	case err == nil:
		ac.OrganizationID = &member.OrganizationID
		ac.MemberID = member.ID
		ac.RoleID = member.RoleID
	case !apperr.Is(err, apperr.KindNotFound):
		return nil, err
	}
	return ac, nil
}

// Handler rejects unauthenticated requests with 401.
func (a *Authenticator) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ac, err := a.Authenticate(r)
		if err != nil {
			if apperr.Is(err, apperr.KindUnauthorized) {
				a.log.WithField("reason", apperr.Message(err)).Debug("Rejected unauthenticated request")
			}
			httputil.WriteAppError(w, r, err)
			return
		}
		next.ServeHTTP(w, r.WithContext(auth.WithContext(r.Context(), ac)))
	})
}
