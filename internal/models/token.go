// Package models defines types shared across internal packages.
package models

import "time"

// TokenInfo is the bearer token material cached for one client session.
// AccessToken and ExpiresAt are always written together.
type TokenInfo struct {
	AccessToken string    `json:"access_token"`
	TokenType   string    `json:"token_type"`
	ExpiresAt   time.Time `json:"expires_at"`
}

// ValidAt reports whether the token is usable at instant now. A token
// expiring exactly at now is already expired.
func (t *TokenInfo) ValidAt(now time.Time) bool {
	if t == nil || t.AccessToken == "" {
		return false
	}

	return t.ExpiresAt.After(now)
}
