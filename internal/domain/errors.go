package domain

import "errors"

var (
	ErrNotFound            = errors.New("not found")
	ErrAlreadyExists       = errors.New("already exists")
	ErrInvalidAmount       = errors.New("invalid amount")
	ErrInvalidOutcome      = errors.New("invalid outcome")
	ErrInvalidFee          = errors.New("invalid fee")
	ErrInvalidSplitConfig  = errors.New("invalid fee split configuration")
	ErrMarketClosed        = errors.New("market closed")
	ErrAlreadyResolved     = errors.New("market already resolved")
	ErrResolutionConflict  = errors.New("resolution conflicts with stored settlement")
	ErrInsufficientBalance = errors.New("insufficient balance")
	ErrInvariantViolation  = errors.New("settlement invariant violation")
	ErrLockHeld            = errors.New("lock already held")
)
