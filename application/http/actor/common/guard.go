package common

import "github.com/pkg/errors"

// Guard runs f, turning a panic into an error.
func Guard(f func() error) (err error) {
	defer func() {
		if e := recover(); e != nil {
			err = errors.Errorf("handler panicked: %v", e)
		}
	}()
	return f()
}
