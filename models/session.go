package models

import "time"

// Session holds the structure for the sessions collection in mongo. A session
// is created on login and carries the identity for every later request.
type Session struct {
	ID        string     `json:"id" bson:"_id"`
	Username  string     `json:"username" bson:"username"`
	CreatedAt time.Time  `json:"createdAt" bson:"createdAt"`
	ExpiresAt time.Time  `json:"expiresAt" bson:"expiresAt"`
	RevokedAt *time.Time `json:"revokedAt,omitempty" bson:"revokedAt,omitempty"`
}

// Active reports whether the session can still be used at now
func (s Session) Active(now time.Time) bool {
	return s.RevokedAt == nil && now.Before(s.ExpiresAt)
}

// Identity is what the auth gate hands to a workspace: the current user and
// a way to end the session.
type Identity struct {
	SessionID   string
	CurrentUser string
	Logout      func() error
}

// LoginRequest is the body of the login endpoint. Passphrase is only checked
// when the deployment configures one.
type LoginRequest struct {
	Username   string `json:"username"`
	Passphrase string `json:"passphrase,omitempty"`
}

// LoginResponse carries the bearer token for later requests
type LoginResponse struct {
	Token       string    `json:"token"`
	ExpiresAt   time.Time `json:"expiresAt"`
	CurrentUser string    `json:"currentUser"`
}
