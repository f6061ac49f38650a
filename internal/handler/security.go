package handler

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/go-faster/errors"
	"github.com/golang-jwt/jwt/v5"
)

const (
	ctxUserID = "userID"
	ctxRole   = "role"

	roleAdmin = "admin"
)

// Auth authenticates requests with HS256 bearer tokens. The token subject
// is the user id; the "role" claim gates the admin surface.
type Auth struct {
	secret []byte
}

// NewAuth creates an Auth with the given signing secret.
func NewAuth(secret []byte) *Auth {
	return &Auth{secret: secret}
}

// Require rejects requests without a valid bearer token and stores the
// authenticated user id and role on the request context.
func (a *Auth) Require() gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, role, err := a.parse(c.GetHeader("Authorization"))
		if err != nil {
			respondErrorMsg(c, http.StatusUnauthorized, "authentication required")
			c.Abort()
			return
		}
		c.Set(ctxUserID, userID)
		c.Set(ctxRole, role)
		c.Next()
	}
}

// RequireAdmin rejects authenticated requests whose token lacks the admin
// role. Must run after Require.
func (a *Auth) RequireAdmin() gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.GetString(ctxRole) != roleAdmin {
			respondErrorMsg(c, http.StatusForbidden, "admin access required")
			c.Abort()
			return
		}
		c.Next()
	}
}

func (a *Auth) parse(header string) (userID, role string, err error) {
	raw, ok := strings.CutPrefix(header, "Bearer ")
	if !ok || raw == "" {
		return "", "", errors.New("missing bearer token")
	}

	claims := jwt.MapClaims{}
	token, err := jwt.ParseWithClaims(raw, claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.Errorf("unexpected signing method %q", t.Method.Alg())
		}
		return a.secret, nil
	})
	if err != nil || !token.Valid {
		return "", "", errors.Wrap(err, "parse token")
	}

	sub, err := claims.GetSubject()
	if err != nil || sub == "" {
		return "", "", errors.New("token has no subject")
	}

	if r, ok := claims[ctxRole].(string); ok {
		role = r
	}
	return sub, role, nil
}

// userID returns the authenticated user id set by Require.
func userID(c *gin.Context) string {
	return c.GetString(ctxUserID)
}
