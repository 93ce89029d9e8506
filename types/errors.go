package types

import "errors"

// Attempt failure kinds. Every one of them aborts the whole attempt.
var (
	ErrCostTooHigh                = errors.New("cost rate above ceiling")
	ErrUntrustedOrigin            = errors.New("untrusted transaction origin")
	ErrCostOutOfBand              = errors.New("cost rate outside trusted band")
	ErrInsufficientExpectedProfit = errors.New("insufficient expected profit")
	ErrVenueInactive              = errors.New("venue inactive")
	ErrSlippageExceeded           = errors.New("slippage exceeded")
	ErrInsufficientProfit         = errors.New("insufficient profit")
	ErrRepaymentFailed            = errors.New("flash loan repayment failed")
)

var (
	ErrReentrant             = errors.New("attempt already in progress")
	ErrPaused                = errors.New("engine paused")
	ErrDeadlineExpired       = errors.New("trade deadline expired")
	ErrVenueNotFound         = errors.New("venue not found")
	ErrVenueExists           = errors.New("venue already registered")
	ErrUnsupportedPair       = errors.New("pair not supported by venue")
	ErrNoLiquidity           = errors.New("insufficient liquidity")
	ErrInsufficientBalance   = errors.New("insufficient balance")
	ErrInsufficientAllowance = errors.New("insufficient allowance")
	ErrInvalidAmount         = errors.New("invalid amount")
	ErrPriceMoved            = errors.New("price moved since scan")
)
