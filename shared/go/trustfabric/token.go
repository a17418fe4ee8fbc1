package trustfabric

import (
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

// TokenType distinguishes access tokens from refresh tokens so one cannot be
// presented where the other is required.
type TokenType string

const (
	TokenTypeAccess  TokenType = "access"
	TokenTypeRefresh TokenType = "refresh"
)

// Claims is the fixed claim set carried by both token types. TokenID is only
// populated on refresh tokens; it is the lookup key into the refresh token
// record table.
type Claims struct {
	UserID    string    `json:"user_id"`
	Type      TokenType `json:"type"`
	TokenID   string    `json:"token_id,omitempty"`
	IssuedAt  int64     `json:"iat"`
	ExpiresAt int64     `json:"exp"`
}

var (
	ErrMalformedToken = errors.New("trustfabric: malformed token")
	ErrInvalidToken   = errors.New("trustfabric: invalid token signature")
	ErrExpiredToken   = errors.New("trustfabric: token expired")
)

// SignToken encodes claims as base64url(header).base64url(claims).signature,
// HMAC-SHA256 keyed by secret. This is not a general-purpose JWT: the header
// is fixed and the only accepted algorithm is HMAC-SHA256, so there is no
// "alg":"none" surface to defend against.
func SignToken(secret string, claims Claims) (string, error) {
	header := `{"alg":"HS256","typ":"AAS"}`
	headerEnc := base64.RawURLEncoding.EncodeToString([]byte(header))

	claimsJSON, err := json.Marshal(claims)
	if err != nil {
		return "", fmt.Errorf("trustfabric: marshal claims: %w", err)
	}
	claimsEnc := base64.RawURLEncoding.EncodeToString(claimsJSON)

	signingInput := headerEnc + "." + claimsEnc
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(signingInput))
	sigEnc := base64.RawURLEncoding.EncodeToString(mac.Sum(nil))

	return signingInput + "." + sigEnc, nil
}

// VerifyToken checks the signature and expiry of token and returns its claims.
func VerifyToken(secret, token string) (Claims, error) {
	parts := strings.Split(token, ".")
	if len(parts) != 3 {
		return Claims{}, ErrMalformedToken
	}
	signingInput := parts[0] + "." + parts[1]

	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(signingInput))
	expectedSig := base64.RawURLEncoding.EncodeToString(mac.Sum(nil))
	if subtle.ConstantTimeCompare([]byte(expectedSig), []byte(parts[2])) != 1 {
		return Claims{}, ErrInvalidToken
	}

	claimsJSON, err := base64.RawURLEncoding.DecodeString(parts[1])
	if err != nil {
		return Claims{}, fmt.Errorf("%w: %v", ErrMalformedToken, err)
	}
	var claims Claims
	if err := json.Unmarshal(claimsJSON, &claims); err != nil {
		return Claims{}, fmt.Errorf("%w: %v", ErrMalformedToken, err)
	}

	if time.Now().Unix() > claims.ExpiresAt {
		return Claims{}, ErrExpiredToken
	}
	return claims, nil
}
