package domain

import "errors"

var (
	ErrNoCredential   = errors.New("no stored credential")
	ErrNoSnapshot     = errors.New("no snapshot persisted yet")
	ErrInvalidTapType = errors.New("invalid tap type")
	ErrInvalidAmount  = errors.New("dispense amount must be positive")
	ErrInvalidKind    = errors.New("invalid consumable kind")
)
