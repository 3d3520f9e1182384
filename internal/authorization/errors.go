package authorization

import "errors"

var (
	ErrForbidden     = errors.New("authorization: forbidden")
	ErrInvalidActor  = errors.New("authorization: invalid actor")
	ErrInvalidObject = errors.New("authorization: invalid object")
	ErrInvalidAction = errors.New("authorization: invalid action")
)
