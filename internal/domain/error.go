package domain

import "errors"

var (
	// Common domain errors
	ErrNotFound        = errors.New("entity not found")
	ErrAlreadyExists   = errors.New("entity already exists")
	ErrNotSubscribed   = errors.New("chat is not subscribed")
	ErrInvalidArgument = errors.New("invalid argument")
	ErrInference       = errors.New("inference call failed")
	ErrStaleContext    = errors.New("conversation context was replaced")
	ErrUnknownCommand  = errors.New("unknown command")
	ErrMissingArgument = errors.New("missing command argument")
)
