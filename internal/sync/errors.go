package sync

import "errors"

// ErrEmptyName is returned by Run when called without a name.
var ErrEmptyName = errors.New("entry name is required")

// RemoteFetchFailure is returned when the registry lookup fails. Its message
// is the lookup error's message, unchanged.
type RemoteFetchFailure struct {
	Name string
	Err  error
}

func (e *RemoteFetchFailure) Error() string {
	return e.Err.Error()
}

func (e *RemoteFetchFailure) Unwrap() error {
	return e.Err
}
