package api

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"studiotblack/internal/access"

	"github.com/golang-jwt/jwt/v5"
	"github.com/julienschmidt/httprouter"
)

var ErrBadToken = errors.New("invalid token")

// Claims are issued by the hosted auth provider: sub is the user id and
// role is "authenticated", "manager" or "admin".
type Claims struct {
	Role string `json:"role,omitempty"`
	jwt.RegisteredClaims
}

// Identity is the authenticated caller of a request.
type Identity struct {
	UserID  string
	Manager bool
}

type identityKey struct{}

func identityFrom(ctx context.Context) Identity {
	id, _ := ctx.Value(identityKey{}).(Identity)
	return id
}

// ParseToken verifies an HS256 token signed with secret.
func ParseToken(raw, secret string) (*Claims, error) {
	tok, err := jwt.ParseWithClaims(raw, &Claims{}, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrBadToken
		}
		return []byte(secret), nil
	})
	if err != nil {
		return nil, err
	}
	c, ok := tok.Claims.(*Claims)
	if !ok || !tok.Valid || c.Subject == "" {
		return nil, ErrBadToken
	}
	return c, nil
}

func (s *HTTPServer) authenticate(next httprouter.Handle) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
		raw := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
		if raw == "" {
			writeMessage(w, http.StatusUnauthorized, "missing bearer token")
			return
		}
		claims, err := ParseToken(raw, s.cfg.JWTSecret)
		if err != nil {
			writeMessage(w, http.StatusUnauthorized, "invalid token")
			return
		}

		id := Identity{UserID: claims.Subject}
		switch claims.Role {
		case "admin", "manager":
			id.Manager = true
		default:
			id.Manager = s.deps.Access != nil && s.deps.Access.IsManager(id.UserID)
		}

		ctx := context.WithValue(r.Context(), identityKey{}, id)
		if id.Manager {
			ctx = access.WithManagerGrant(ctx)
		}
		next(w, r.WithContext(ctx), ps)
	}
}

func (s *HTTPServer) requireManager(next httprouter.Handle) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
		if !identityFrom(r.Context()).Manager {
			writeMessage(w, http.StatusForbidden, "manager role required")
			return
		}
		next(w, r, ps)
	}
}
