package kinectfilter

import "github.com/kinectfilter/kinectfilter/internal/gpu"

// SharedImage is an RGBA f32 image buffer shared between the Filter and
// a display subsystem on the same GPU device. See [Filter.NewSharedImage]
// and [Filter.ConvolveShared].
//
// Every filtered frame must be bracketed by exactly one Acquire/Release
// pair; the Filter refuses to dispatch into an image the compute side
// does not own.
type SharedImage = gpu.SharedImage

// Ownership identifies which side may touch a SharedImage's buffer.
type Ownership = gpu.Ownership

// Ownership states of a SharedImage.
const (
	OwnedByDisplay = gpu.OwnedByDisplay
	OwnedByCompute = gpu.OwnedByCompute
)
