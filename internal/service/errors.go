// Package service holds the token minter, the decision engine and the signup flow.
package service

import "errors"

// Service errors. Business denials are not errors; they are returned as
// model.Decision values.
var (
	ErrInvalidInput        = errors.New("invalid input")
	ErrInvalidTier         = errors.New("invalid tier")
	ErrUnknownUser         = errors.New("user not found")
	ErrEntitlementNotFound = errors.New("entitlement not found")
	ErrEmailTaken          = errors.New("email already registered to another subject")
)
