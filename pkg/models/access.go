package models

import "time"

// ErrorCode is the stable error identifier shared with the external source.
// The empty code means the last fetch went fine.
type ErrorCode string

const (
	FetchStatusOK ErrorCode = ""

	ErrUnknownModule      ErrorCode = "UNKNOWN_MODULE"
	ErrInvalidParameters  ErrorCode = "INVALID_PARAMETERS"
	ErrInvalidPassword    ErrorCode = "INVALID_PASSWORD"
	ErrExpiredPassword    ErrorCode = "EXPIRED_PASSWORD"
	ErrNoPassword         ErrorCode = "NO_PASSWORD"
	ErrActionNeeded       ErrorCode = "ACTION_NEEDED"
	ErrNoAccounts         ErrorCode = "NO_ACCOUNTS"
	ErrGenericException   ErrorCode = "GENERIC_EXCEPTION"
	ErrInternalError      ErrorCode = "INTERNAL_ERROR"
	ErrSourceNotInstalled ErrorCode = "SOURCE_NOT_INSTALLED"
	ErrBankAlreadyExists  ErrorCode = "BANK_ALREADY_EXISTS"
	ErrConnectionError    ErrorCode = "CONNECTION_ERROR"
)

// AllErrorCodes lists every code of the taxonomy, in a stable order.
var AllErrorCodes = []ErrorCode{
	ErrUnknownModule,
	ErrInvalidParameters,
	ErrInvalidPassword,
	ErrExpiredPassword,
	ErrNoPassword,
	ErrActionNeeded,
	ErrNoAccounts,
	ErrGenericException,
	ErrInternalError,
	ErrSourceNotInstalled,
	ErrBankAlreadyExists,
	ErrConnectionError,
}

// RequiresUserAction reports whether an access failing with this code must
// not be polled again until the user fixes its credentials or parameters.
func (c ErrorCode) RequiresUserAction() bool {
	switch c {
	case ErrInvalidPassword, ErrExpiredPassword, ErrInvalidParameters, ErrNoPassword, ErrActionNeeded:
		return true
	}
	return false
}

// CustomField is one extra name/value parameter required by some modules.
type CustomField struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// Access is one set of credentials for one source module.
type Access struct {
	ID             string        `json:"id"`
	ModuleID       string        `json:"moduleId"`
	Login          string        `json:"login"`
	Password       string        `json:"-"`
	CustomFields   []CustomField `json:"customFields,omitempty"`
	Enabled        bool          `json:"enabled"`
	FetchStatus    ErrorCode     `json:"fetchStatus,omitempty"`
	DisabledReason string        `json:"disabledReason,omitempty"`
	CreatedAt      time.Time     `json:"createdAt"`
}

// CanBePolled is false while the last fetch error needs the user to act.
func (a *Access) CanBePolled() bool {
	return !a.FetchStatus.RequiresUserAction()
}
