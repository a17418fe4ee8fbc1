// Package authz carries the trust-fabric types shared by every HTTP-facing
// service: the authenticated request context attached by the HMAC and bearer
// gates, and the single role-hierarchy check every role guard composes
// through. No handler in this codebase should compare role strings directly.
package authz

// Role ordering: owner satisfies anything admin or user satisfies, admin
// satisfies anything user satisfies. This is the sole source of truth for
// role comparisons; nothing hardcodes a role list elsewhere.
var roleRank = map[string]int{
	"user":  1,
	"admin": 2,
	"owner": 3,
}

// Satisfies reports whether a principal holding `have` meets a requirement of
// `want`. Unknown roles rank below every known role and satisfy nothing.
func Satisfies(have, want string) bool {
	haveRank, ok := roleRank[have]
	if !ok {
		return false
	}
	wantRank, ok := roleRank[want]
	if !ok {
		return false
	}
	return haveRank >= wantRank
}
