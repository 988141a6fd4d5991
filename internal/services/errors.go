package services

import "errors"

var (
	// ErrNotFound is returned when a ledger record does not exist.
	ErrNotFound = errors.New("not found")
	// ErrInvalidOrExpiredCode is returned when a claimed code is unknown or past its expiry.
	ErrInvalidOrExpiredCode = errors.New("invalid or expired code")
	// ErrForbidden is returned when an operator is not responsible for a channel.
	ErrForbidden = errors.New("operator is not an admin of this channel")
	// ErrInvalidDuration is returned for a duration token outside the grammar.
	ErrInvalidDuration = errors.New("invalid duration")
	// ErrDuplicateSubscription is returned when a (user, channel) pair already holds a subscription.
	ErrDuplicateSubscription = errors.New("subscription already exists")
	// ErrCodeSpaceExhausted is returned when no free verification code could be generated.
	ErrCodeSpaceExhausted = errors.New("unable to generate a unique code")
)
