package storage

import "errors"

// Common storage errors
var (
	// ErrNotFound indicates that the addressed row does not exist
	ErrNotFound = errors.New("not found")

	// ErrUserNotFound indicates that user was not found in storage
	ErrUserNotFound = errors.New("user not found")

	// ErrUserAlreadyExists indicates that user with this username already exists
	ErrUserAlreadyExists = errors.New("user already exists")

	// ErrUnknownEntity indicates a DATA_CHANGE named an entity the store
	// does not manage
	ErrUnknownEntity = errors.New("unknown entity")

	// ErrUnknownAction indicates a DATA_CHANGE action outside
	// create/update/delete
	ErrUnknownAction = errors.New("unknown action")
)
