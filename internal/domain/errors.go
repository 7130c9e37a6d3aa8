package domain

import "errors"

var (
	// ErrAccountNotFound signals a missing account.
	ErrAccountNotFound = errors.New("domain: account not found")
	// ErrClientNotFound signals a missing OAuth client.
	ErrClientNotFound = errors.New("domain: client not found")
	// ErrTokenNotFound signals a missing or deleted token.
	ErrTokenNotFound = errors.New("domain: token not found")
)
