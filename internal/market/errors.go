package market

import "errors"

var (
	// ErrInvalidRequest marks malformed predict, simulate or list requests
	ErrInvalidRequest = errors.New("invalid request")
	// ErrInvalidBet marks a bet rejected by validation
	ErrInvalidBet = errors.New("invalid bet")
	// ErrUnknownMatch is returned when no line exists for a match
	ErrUnknownMatch = errors.New("unknown match")
)
