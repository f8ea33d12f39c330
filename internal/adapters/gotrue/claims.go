package gotrue

import (
	"errors"
	"fmt"

	"github.com/golang-jwt/jwt/v5"
)

// accessClaims are the claims GoTrue puts in access tokens.
type accessClaims struct {
	Email        string         `json:"email"`
	Role         string         `json:"role"`
	UserMetadata map[string]any `json:"user_metadata"`
	SessionID    string         `json:"session_id"`
	jwt.RegisteredClaims
}

// parseClaims decodes an access token. With a JWT secret configured the HS256
// signature and expiry are verified; otherwise the claims are read unverified
// and only used for identity and expiry hints.
func (c *Client) parseClaims(token string) (*accessClaims, error) {
	claims := &accessClaims{}
	if len(c.jwtSecret) == 0 {
		if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
			return nil, fmt.Errorf("decode access token: %w", err)
		}
		return claims, nil
	}

	_, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (any, error) {
		return c.jwtSecret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(c.now),
		jwt.WithLeeway(c.leeway),
	)
	if err != nil {
		return nil, fmt.Errorf("verify access token: %w", err)
	}
	if claims.Subject == "" {
		return nil, errors.New("verify access token: missing sub claim")
	}
	return claims, nil
}
