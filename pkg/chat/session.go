package chat

import "time"

// Session holds the bearer token issued by the identity provider. The core
// only reads presence and the token value; protocol internals live with the
// identity collaborator.
type Session struct {
	AccessToken string    `json:"access_token"`
	ExpiresAt   time.Time `json:"expires_at,omitempty"`
}

// Present reports whether a usable session exists.
func (s *Session) Present() bool {
	return s != nil && s.AccessToken != ""
}
