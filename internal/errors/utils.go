package errors

import "errors"

// Wrap wraps an error with additional context, creating a StreamError if the input is not already one
func Wrap(err error, kind ErrorKind, code, message string) *StreamError {
	if err == nil {
		return nil
	}

	// Keep the retry hint and context of a wrapped StreamError
	var se *StreamError
	if errors.As(err, &se) {
		return &StreamError{
			Kind:      kind,
			Code:      code,
			Message:   message,
			Cause:     err,
			Context:   se.Context,
			Retryable: se.Retryable,
		}
	}

	return &StreamError{
		Kind:      kind,
		Code:      code,
		Message:   message,
		Cause:     err,
		Retryable: kind == KindUpstream,
	}
}

// WrapUpstream wraps an error raised while pulling the next input delta
func WrapUpstream(err error, message string) *StreamError {
	return Wrap(err, KindUpstream, ErrCodeUpstreamRead, message)
}

// WrapWrite wraps an error raised while handing output to the sink
func WrapWrite(err error, message string) *StreamError {
	return Wrap(err, KindWrite, ErrCodeDownstreamWrite, message)
}

// WrapConfig wraps an error as a configuration error
func WrapConfig(err error, message string) *StreamError {
	return Wrap(err, KindConfig, ErrCodeConfigInvalid, message)
}

// GetRootCause returns the innermost error of the chain
func GetRootCause(err error) error {
	for {
		next := errors.Unwrap(err)
		if next == nil {
			return err
		}
		err = next
	}
}
