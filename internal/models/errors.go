package models

import "errors"

var (
	// ErrNotFound is returned by stores when a record does not exist.
	ErrNotFound = errors.New("not found")

	// ErrInvalidTrade wraps trade validation failures at the store boundary.
	ErrInvalidTrade = errors.New("invalid trade")

	// ErrProviderUnavailable marks failures of an upstream store (trades,
	// prices, exchange rates). Data absence is never reported with it.
	ErrProviderUnavailable = errors.New("provider unavailable")
)
