package auth

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// ErrOpaqueToken is returned by ParseIdentity when the access token is not a JWT.
var ErrOpaqueToken = errors.New("access token is not a JWT")

// Identity describes the signed-in user as far as the access token tells.
type Identity struct {
	Subject   string
	Name      string
	Email     string
	Issuer    string
	Scopes    []string
	ExpiresAt time.Time
}

// ParseIdentity reads the claims of a JWT access token without verifying its
// signature. The result is for display only and must not drive authorization.
func ParseIdentity(accessToken string) (Identity, error) {
	if strings.Count(accessToken, ".") != 2 {
		return Identity{}, ErrOpaqueToken
	}
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(accessToken, claims); err != nil {
		return Identity{}, fmt.Errorf("%w: %v", ErrOpaqueToken, err)
	}

	var id Identity
	id.Subject, _ = claims.GetSubject()
	id.Issuer, _ = claims.GetIssuer()
	if exp, err := claims.GetExpirationTime(); err == nil && exp != nil {
		id.ExpiresAt = exp.Time
	}
	id.Name = stringClaim(claims, "name", "preferred_username")
	id.Email = stringClaim(claims, "email")
	if scope := stringClaim(claims, "scope", "scp"); scope != "" {
		id.Scopes = strings.Fields(scope)
	}
	return id, nil
}

func stringClaim(claims jwt.MapClaims, keys ...string) string {
	for _, k := range keys {
		if v, ok := claims[k].(string); ok && v != "" {
			return v
		}
	}
	return ""
}
