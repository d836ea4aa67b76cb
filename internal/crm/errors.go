package crm

import "errors"

var (
	// ErrContactNotFound is returned when no phone record matches the candidates.
	ErrContactNotFound = errors.New("crm: contact not found")

	// ErrMissingSender is returned when an inbound event has no sender number.
	ErrMissingSender = errors.New("crm: sender phone is required")

	// ErrMissingFunnel is returned when no default funnel name is configured.
	ErrMissingFunnel = errors.New("crm: default funnel name is required")
)
