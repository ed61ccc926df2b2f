package vision

import "fmt"

// CaptureError marks a tick that produced no usable frame. Callers skip the tick.
type CaptureError struct {
	Reason string
	Err    error
}

func (e *CaptureError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("capture: %s: %v", e.Reason, e.Err)
	}
	return "capture: " + e.Reason
}

func (e *CaptureError) Unwrap() error {
	return e.Err
}

type NetworkError struct {
	Op  string
	Err error
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("%s: network: %v", e.Op, e.Err)
}

func (e *NetworkError) Unwrap() error {
	return e.Err
}

// InferenceError covers responses that arrived but carry no usable analysis.
type InferenceError struct {
	Op         string
	StatusCode int
	Message    string
	Err        error
}

func (e *InferenceError) Error() string {
	msg := e.Message
	if e.Err != nil {
		if msg != "" {
			msg += ": "
		}
		msg += e.Err.Error()
	}
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s: inference (status %d): %s", e.Op, e.StatusCode, msg)
	}
	return fmt.Sprintf("%s: inference: %s", e.Op, msg)
}

func (e *InferenceError) Unwrap() error {
	return e.Err
}
