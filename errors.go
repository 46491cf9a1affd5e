package kinectfilter

import (
	"errors"

	"github.com/kinectfilter/kinectfilter/internal/gpu"
)

// Sentinel errors returned by the root package. GPU-side conditions are
// surfaced from internal/gpu so callers can match them with errors.Is.
var (
	// ErrDeviceNotFound indicates that no usable GPU adapter was found
	// during setup. There is no CPU fallback at runtime; callers should
	// treat this as fatal.
	ErrDeviceNotFound = gpu.ErrDeviceNotFound

	// ErrInteropUnsupported indicates that the display provider does not
	// expose the shared GPU device needed for zero-copy output.
	ErrInteropUnsupported = gpu.ErrInteropUnsupported

	// ErrClosed is returned when an operation is attempted on a Filter
	// that has already been closed.
	ErrClosed = errors.New("kinectfilter: filter closed")

	// ErrFrameSize is returned when input data does not match the
	// width and height the Filter was created with.
	ErrFrameSize = errors.New("kinectfilter: frame size mismatch")
)

// CompileError reports a shader compilation failure during setup.
// Log carries the compiler diagnostics verbatim.
type CompileError = gpu.CompileError
