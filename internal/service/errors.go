package service

// ValidationError reports a malformed request. It is raised before the
// model is invoked and maps to 400.
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string { return e.Message }

func invalid(msg string) error {
	return &ValidationError{Message: msg}
}

// ProviderError reports a failure while computing embeddings. It maps to 500.
type ProviderError struct {
	Message string
	Err     error
}

func (e *ProviderError) Error() string { return e.Message + ": " + e.Err.Error() }

func (e *ProviderError) Unwrap() error { return e.Err }
