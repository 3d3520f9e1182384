package scheduler

import "errors"

var ErrInvalidConfig = errors.New("scheduler: invalid configuration")
