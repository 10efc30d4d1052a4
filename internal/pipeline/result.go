package pipeline

// Result is the single terminal outcome of a pipeline run. Exactly one of
// Location and Err is set.
type Result struct {
	// Location is the output path on success.
	Location string
	// Err is the classified failure, always an *Error when set.
	Err error
}

// Success returns a successful result pointing at location.
func Success(location string) Result {
	return Result{Location: location}
}

// Failure returns a failed result. Errors that are not already classified are
// wrapped as KindUnknown.
func Failure(err error) Result {
	if err == nil {
		err = ErrUnknownCompletion
	}
	if KindOf(err) == KindUnknown {
		err = NewError(KindUnknown, err)
	}
	return Result{Err: err}
}

// OK reports whether the run succeeded.
func (r Result) OK() bool {
	return r.Err == nil
}

// Kind returns the failure kind, or KindUnknown on success.
func (r Result) Kind() ErrorKind {
	return KindOf(r.Err)
}
