package gpu

import (
	"errors"
	"fmt"
)

var (
	// ErrDeviceNotFound indicates no usable GPU adapter was found.
	ErrDeviceNotFound = errors.New("gpu: no usable adapter found")

	// ErrInteropUnsupported indicates the display provider does not
	// expose HAL device handles, so zero-copy sharing is impossible.
	ErrInteropUnsupported = errors.New("gpu: display provider does not expose a shared device")

	// ErrNotInitialized is returned when a pipeline is used before Init.
	ErrNotInitialized = errors.New("gpu: pipeline not initialized")

	// ErrAlreadyAcquired is returned by SharedImage.Acquire when the
	// compute side already owns the image.
	ErrAlreadyAcquired = errors.New("gpu: shared image already owned by compute")

	// ErrNotAcquired is returned when a release or dispatch is attempted
	// while the display side owns the image.
	ErrNotAcquired = errors.New("gpu: shared image not owned by compute")
)

// CompileError reports a shader compilation failure for one pipeline
// stage. Log carries the compiler diagnostics verbatim so the caller can
// surface the full build log.
type CompileError struct {
	Stage string
	Log   string
}

func (e *CompileError) Error() string {
	return fmt.Sprintf("gpu: compile %s: %s", e.Stage, e.Log)
}
