package domain

import (
	"strings"
	"time"
)

// AccountStatus enumerates the lifecycle states of an account.
type AccountStatus string

const (
	AccountActive    AccountStatus = "active"
	AccountInactive  AccountStatus = "inactive"
	AccountDisabled  AccountStatus = "disabled"
	AccountPending   AccountStatus = "pending"
	AccountArchived  AccountStatus = "archived"
	AccountSuspended AccountStatus = "suspended"
)

// Valid reports whether s is a known status.
func (s AccountStatus) Valid() bool {
	switch s {
	case AccountActive, AccountInactive, AccountDisabled, AccountPending, AccountArchived, AccountSuspended:
		return true
	}
	return false
}

// Address is a postal address attached to an account.
type Address struct {
	Label      string `json:"label,omitempty" bson:"label,omitempty"`
	Line1      string `json:"line1" bson:"line1"`
	Line2      string `json:"line2,omitempty" bson:"line2,omitempty"`
	City       string `json:"city" bson:"city"`
	State      string `json:"state,omitempty" bson:"state,omitempty"`
	PostalCode string `json:"postalCode,omitempty" bson:"postalCode,omitempty"`
	Country    string `json:"country,omitempty" bson:"country,omitempty"`
}

// Device is a registered push/notification device.
type Device struct {
	DeviceID  string    `json:"deviceId" bson:"deviceId"`
	Platform  string    `json:"platform,omitempty" bson:"platform,omitempty"`
	PushToken string    `json:"pushToken,omitempty" bson:"pushToken,omitempty"`
	CreatedAt time.Time `json:"createdAt" bson:"createdAt"`
}

// RefreshPreference controls whether refresh tokens issued to the account
// may be exchanged for new access tokens.
type RefreshPreference struct {
	ForceRefresh bool `json:"forceRefresh" bson:"forceRefresh"`
}

// Account is an end-user identity.
type Account struct {
	ID                 string             `bson:"_id"`
	Username           string             `bson:"username"`
	NormalizedUsername string             `bson:"normalizedUsername"`
	Email              string             `bson:"email"`
	NormalizedEmail    string             `bson:"normalizedEmail"`
	FirstName          string             `bson:"firstName,omitempty"`
	LastName           string             `bson:"lastName,omitempty"`
	DisplayName        string             `bson:"displayName,omitempty"`
	PasswordHash       string             `bson:"password"`
	Salt               string             `bson:"salt"`
	LoginAttempts      int                `bson:"loginAttempts"`
	LockUntil          *time.Time         `bson:"lockUntil,omitempty"`
	Status             AccountStatus      `bson:"status"`
	Roles              []string           `bson:"roles,omitempty"`
	Addresses          []Address          `bson:"addresses,omitempty"`
	Devices            []Device           `bson:"devices,omitempty"`
	RefreshToken       *RefreshPreference `bson:"refreshToken,omitempty"`
	CreatedAt          time.Time          `bson:"createdAt"`
	UpdatedAt          time.Time          `bson:"updatedAt"`
}

// AllowsRefresh reports whether refresh tokens minted for the account may be
// redeemed. Accounts without a preference default to allowing it.
func (a Account) AllowsRefresh() bool {
	if a.RefreshToken == nil {
		return true
	}
	return a.RefreshToken.ForceRefresh
}

// Normalize fills the case-folded lookup copies of username and email.
func (a *Account) Normalize() {
	a.NormalizedUsername = NormalizeIdentifier(a.Username)
	a.NormalizedEmail = NormalizeIdentifier(a.Email)
}

// NormalizeIdentifier folds a username or email for lookup.
func NormalizeIdentifier(v string) string {
	return strings.ToLower(strings.TrimSpace(v))
}

// PublicAccount is the profile projection returned to API callers.
type PublicAccount struct {
	ID          string        `json:"id"`
	Username    string        `json:"username"`
	Email       string        `json:"email"`
	FirstName   string        `json:"firstName,omitempty"`
	LastName    string        `json:"lastName,omitempty"`
	DisplayName string        `json:"displayName,omitempty"`
	Status      AccountStatus `json:"status"`
	Roles       []string      `json:"roles"`
	Addresses   []Address     `json:"addresses"`
	Devices     []Device      `json:"devices"`
}

// Public strips credential material from the account.
func (a Account) Public() PublicAccount {
	return PublicAccount{
		ID:          a.ID,
		Username:    a.Username,
		Email:       a.Email,
		FirstName:   a.FirstName,
		LastName:    a.LastName,
		DisplayName: a.DisplayName,
		Status:      a.Status,
		Roles:       nonNil(a.Roles),
		Addresses:   nonNil(a.Addresses),
		Devices:     nonNil(a.Devices),
	}
}

func nonNil[T any](in []T) []T {
	if in == nil {
		return []T{}
	}
	return in
}
