package calls

import "fmt"

// StatusError is returned when the calls endpoint answers with a non-2xx status.
type StatusError struct {
	Code    int
	Message string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("Code: %d, Message: %s", e.Code, e.Message)
}

// NetworkError wraps a transport failure: no response was received.
type NetworkError struct {
	Err error
}

func (e *NetworkError) Error() string {
	return "calls endpoint unreachable: " + e.Err.Error()
}

func (e *NetworkError) Unwrap() error {
	return e.Err
}
