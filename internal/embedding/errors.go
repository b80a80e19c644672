package embedding

import (
	"errors"
	"fmt"
)

// ErrQueueFull is returned when the inference request queue is at capacity.
// Callers should back off rather than pile up behind the model context.
var ErrQueueFull = errors.New("embedding queue full")

// ErrModelClosed is returned for embed calls that arrive after disposal.
var ErrModelClosed = errors.New("model handle closed")

// ModelLoadError reports a failure to load the model artifact or allocate
// its embedding context. Fatal to the handle instance; callers may retry
// Acquire after remediation.
type ModelLoadError struct {
	Path string
	Err  error
}

func (e *ModelLoadError) Error() string {
	return fmt.Sprintf("load model %s: %v", e.Path, e.Err)
}

func (e *ModelLoadError) Unwrap() error { return e.Err }

// InferenceError reports a failure of a single embed call (tokenization,
// context overflow, decode failure). Recoverable per item.
type InferenceError struct {
	Err error
}

func (e *InferenceError) Error() string {
	return fmt.Sprintf("inference failed: %v", e.Err)
}

func (e *InferenceError) Unwrap() error { return e.Err }
