package crypto

import "github.com/ai-aas/shared-go/trustfabric"

// TokenType distinguishes access tokens from refresh tokens so one cannot be
// presented where the other is required.
type TokenType = trustfabric.TokenType

const (
	TokenTypeAccess  = trustfabric.TokenTypeAccess
	TokenTypeRefresh = trustfabric.TokenTypeRefresh
)

// Claims is the fixed claim set carried by both token types. TokenID is only
// populated on refresh tokens; it is the lookup key into the refresh token
// record table.
type Claims = trustfabric.Claims

var (
	ErrMalformedToken = trustfabric.ErrMalformedToken
	ErrInvalidToken   = trustfabric.ErrInvalidToken
	ErrExpiredToken   = trustfabric.ErrExpiredToken
)

// SignToken encodes claims as base64url(header).base64url(claims).signature,
// HMAC-SHA256 keyed by secret. This is not a general-purpose JWT: the header
// is fixed and the only accepted algorithm is HMAC-SHA256, so there is no
// "alg":"none" surface to defend against.
func SignToken(secret string, claims Claims) (string, error) {
	return trustfabric.SignToken(secret, claims)
}

// VerifyToken checks the signature and expiry of token and returns its claims.
func VerifyToken(secret, token string) (Claims, error) {
	return trustfabric.VerifyToken(secret, token)
}
