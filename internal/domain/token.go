package domain

import "time"

// Token kinds.
const (
	TokenNameAccess  = "access_token"
	TokenNameRefresh = "refresh_token"

	TokenTypeBearer = "bearer"
)

// Token persists an issued credential. Value holds the fingerprint of the
// secret handed to the caller, never the secret itself.
type Token struct {
	ID            string    `bson:"_id"`
	Value         string    `bson:"value"`
	LoginProvider string    `bson:"loginProvider"`
	Name          string    `bson:"name"`
	Scope         string    `bson:"scope"`
	Type          string    `bson:"type"`
	ExpiresIn     int64     `bson:"expiresIn"`
	DateExpire    time.Time `bson:"dateExpire"`
	UserID        string    `bson:"userId,omitempty"`
	ClientID      string    `bson:"clientId,omitempty"`
	Origin        string    `bson:"origin,omitempty"`
	ForceRefresh  bool      `bson:"forceRefresh"`
	CreatedAt     time.Time `bson:"createdAt"`
}

// Expired reports whether now is past the absolute expiry.
func (t Token) Expired(now time.Time) bool {
	return now.After(t.DateExpire)
}

// HasUser reports whether the token represents an end user rather than a client.
func (t Token) HasUser() bool {
	return t.UserID != ""
}
