package domain

import "errors"

var (
	ErrInvalidUsername  = errors.New("invalid username")
	ErrUsernameTaken    = errors.New("username taken")
	ErrCapacityExceeded = errors.New("connection capacity exceeded")
	ErrNotJoined        = errors.New("connection has not joined")
	ErrUnknownConn      = errors.New("unknown connection")
)
