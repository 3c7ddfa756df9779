package middleware

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/labstack/echo/v4"

	"loan-proposal-service/internal/domain/proposal"
)

const actorContextKey = "actor"

// Actor is the authenticated caller of a request.
type Actor struct {
	ID   string
	Role proposal.Role
}

type Claims struct {
	Role string `json:"role"`
	jwt.RegisteredClaims
}

// ActorAuth verifies an HS256 bearer token and stores its subject and role
// on the request. The system role is reserved for internal transitions.
func ActorAuth(secret []byte) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			actor, err := parseBearer(c.Request().Header.Get(echo.HeaderAuthorization), secret)
			if err != nil {
				return c.JSON(http.StatusUnauthorized, map[string]string{"error": err.Error()})
			}
			c.Set(actorContextKey, actor)
			return next(c)
		}
	}
}

func parseBearer(header string, secret []byte) (Actor, error) {
	raw, ok := strings.CutPrefix(strings.TrimSpace(header), "Bearer ")
	if !ok || strings.TrimSpace(raw) == "" {
		return Actor{}, errors.New("missing bearer token")
	}
	var claims Claims
	_, err := jwt.ParseWithClaims(strings.TrimSpace(raw), &claims, func(*jwt.Token) (any, error) {
		return secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithExpirationRequired())
	if err != nil {
		return Actor{}, errors.New("invalid token")
	}
	if claims.Subject == "" {
		return Actor{}, errors.New("token has no subject")
	}
	role, ok := proposal.ParseRole(claims.Role)
	if !ok || role == proposal.RoleSystem {
		return Actor{}, errors.New("token role not accepted")
	}
	return Actor{ID: claims.Subject, Role: role}, nil
}

func ActorFrom(c echo.Context) (Actor, bool) {
	a, ok := c.Get(actorContextKey).(Actor)
	return a, ok
}

// IssueToken signs a token for actorID. Used by local tooling and tests.
func IssueToken(secret []byte, actorID string, role proposal.Role, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := Claims{
		Role: string(role),
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   actorID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secret)
}
