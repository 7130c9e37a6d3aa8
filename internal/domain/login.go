package domain

import "time"

// LoginUpdateKind is the store operation a login outcome requires.
type LoginUpdateKind int

const (
	// LoginNoop leaves the account untouched.
	LoginNoop LoginUpdateKind = iota
	// LoginIncrement adds one failed attempt, optionally setting LockUntil.
	LoginIncrement
	// LoginRestart sets attempts to one and clears an expired lock.
	LoginRestart
	// LoginReset zeroes attempts and clears any lock.
	LoginReset
)

// LoginUpdate describes a change to an account's lockout counters.
type LoginUpdate struct {
	Kind      LoginUpdateKind
	LockUntil *time.Time
}

// ApplyTo mirrors the store operation on an in-memory account.
func (u LoginUpdate) ApplyTo(a *Account) {
	switch u.Kind {
	case LoginIncrement:
		a.LoginAttempts++
		if u.LockUntil != nil {
			until := *u.LockUntil
			a.LockUntil = &until
		}
	case LoginRestart:
		a.LoginAttempts = 1
		a.LockUntil = nil
	case LoginReset:
		a.LoginAttempts = 0
		a.LockUntil = nil
	}
}
