package service

import (
	"github.com/fleetmanager/backend/gomicro/apperror"
)

var (
	// ErrSubdomainTaken is returned when registering a subdomain that is in use.
	ErrSubdomainTaken = apperror.Conflict("Subdomain is already taken")

	// ErrInvalidCredentials covers unknown tenant, unknown user, inactive
	// tenant or user, and wrong password alike.
	ErrInvalidCredentials = apperror.Unauthorized("Invalid credentials")
)
