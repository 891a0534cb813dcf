package core

import "errors"

var (
	ErrTokenExpired          = errors.New("token has expired")
	ErrTokenInvalid          = errors.New("invalid token")
	ErrUnauthenticated       = errors.New("unauthenticated")
	ErrBondInvalidRoles      = errors.New("invalid bond: a patient bonds with a keeper")
	ErrBondLimitReached      = errors.New("maximum number of bonds reached")
	ErrBondAlreadyAssigned   = errors.New("keeper is already bonded")
	ErrUserNotFound          = errors.New("user not found")
	ErrUnauthorizedOperation = errors.New("unauthorized operation")
	ErrInvalidRole           = errors.New("invalid role")
	ErrStoreOperationFailed  = errors.New("store operation failed")
)
