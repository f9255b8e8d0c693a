package auth

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/wellspring/apiserver/internal/store"
	"github.com/wellspring/apiserver/types"
)

// ErrUnauthorized is returned when a request carries no usable identity.
var ErrUnauthorized = errors.New("unauthorized")

// UserLookup resolves a user id to a stored user.
type UserLookup interface {
	GetByID(ctx context.Context, id string) (types.User, error)
}

// Gateway resolves the acting user of a request from its bearer token.
type Gateway struct {
	tokens *TokenService
	users  UserLookup
}

func NewGateway(tokens *TokenService, users UserLookup) *Gateway {
	return &Gateway{tokens: tokens, users: users}
}

// Authenticate extracts and verifies the bearer token of r and loads the
// user it names. Missing, invalid or expired tokens and tokens naming a
// deleted user all yield ErrUnauthorized; store failures are returned as-is.
func (g *Gateway) Authenticate(r *http.Request) (types.User, error) {
	tokenString, err := BearerToken(r)
	if err != nil {
		return types.User{}, ErrUnauthorized
	}

	userID, err := g.tokens.Verify(tokenString)
	if err != nil {
		return types.User{}, ErrUnauthorized
	}

	user, err := g.users.GetByID(r.Context(), userID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return types.User{}, ErrUnauthorized
		}
		return types.User{}, err
	}
	return user, nil
}

// BearerToken returns the token of an "Authorization: Bearer <token>" header.
func BearerToken(r *http.Request) (string, error) {
	header := strings.TrimSpace(r.Header.Get("Authorization"))
	if header == "" {
		return "", errors.New("missing authorization")
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return "", errors.New("invalid authorization")
	}
	token := strings.TrimSpace(parts[1])
	if token == "" {
		return "", errors.New("invalid authorization")
	}
	return token, nil
}

type contextKey string

const contextUserKey contextKey = "user"

// WithUser returns a copy of ctx carrying the authenticated user.
func WithUser(ctx context.Context, user types.User) context.Context {
	return context.WithValue(ctx, contextUserKey, user)
}

// UserFromContext returns the user stored by WithUser.
func UserFromContext(ctx context.Context) (types.User, bool) {
	user, ok := ctx.Value(contextUserKey).(types.User)
	return user, ok
}
