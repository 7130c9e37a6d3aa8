package exchange

import (
	"fmt"
	"net/http"
)

// OAuth2 error codes.
const (
	ErrCodeInvalidRequest       = "invalid_request"
	ErrCodeInvalidClient        = "invalid_client"
	ErrCodeInvalidGrant         = "invalid_grant"
	ErrCodeUnsupportedGrantType = "unsupported_grant_type"
	ErrCodeServerError          = "server_error"
)

// GrantError standardizes OAuth compliant errors.
type GrantError struct {
	Code        string
	Description string
	Status      int
	Err         error
}

func (e *GrantError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Description, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Description)
}

func (e *GrantError) Unwrap() error { return e.Err }

func invalidRequest(desc string) *GrantError {
	return &GrantError{Code: ErrCodeInvalidRequest, Description: desc, Status: http.StatusBadRequest}
}

func invalidClient(err error) *GrantError {
	return &GrantError{Code: ErrCodeInvalidClient, Description: "Client authentication failed.", Status: http.StatusUnauthorized, Err: err}
}

func invalidGrant(desc string, err error) *GrantError {
	return &GrantError{Code: ErrCodeInvalidGrant, Description: desc, Status: http.StatusForbidden, Err: err}
}

func unsupportedGrant(grant string) *GrantError {
	return &GrantError{
		Code:        ErrCodeUnsupportedGrantType,
		Description: fmt.Sprintf("Grant type %q is not supported.", grant),
		Status:      http.StatusBadRequest,
	}
}

func serverError(err error) *GrantError {
	return &GrantError{Code: ErrCodeServerError, Description: "The server encountered an unexpected error.", Status: http.StatusInternalServerError, Err: err}
}

// Descriptions surfaced to callers. Password failures share one description so
// unknown accounts and wrong passwords are indistinguishable.
const (
	descCredentials    = "The user name or password is incorrect."
	descLocked         = "Account temporarily locked. Try again later."
	descRevoked        = "Refresh token has been revoked."
	descExpired        = "Refresh token has expired. Please log in again."
	descRefreshOff     = "Refresh is disabled for this account."
	descClientMismatch = "Refresh token was issued to another client."
	descAssertion      = "Assertion could not be verified."
)
