package domain

import "errors"

var (
	ErrNotFound        = errors.New("not found")
	ErrRateLimited     = errors.New("rate limited")
	ErrBetRejected     = errors.New("bet rejected")
	ErrMatchNotTracked = errors.New("match not tracked")
	ErrMatchFinished   = errors.New("match finished")
	ErrFeedUnavailable = errors.New("feed unavailable")
	ErrLockHeld        = errors.New("lock already held")
	ErrUnauthorized    = errors.New("unauthorized")
)
