package domain

import "errors"

// Repository-level outcomes of a card link attempt.
var (
	ErrCardDigestTaken   = errors.New("card digest already assigned to another user")
	ErrCardAlreadyLinked = errors.New("user already has a linked card")
	ErrUserNotFound      = errors.New("user not found")
)
