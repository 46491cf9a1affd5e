package gpu

import (
	"fmt"
	"sync"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"
)

// Ownership identifies which side may touch a SharedImage's buffer.
type Ownership int

const (
	// OwnedByDisplay means the display subsystem may sample the buffer
	// and the compute side must not dispatch into it.
	OwnedByDisplay Ownership = iota

	// OwnedByCompute means the filter may write the buffer and the
	// display side must not read it.
	OwnedByCompute
)

// String returns the human-readable name of the ownership state.
func (o Ownership) String() string {
	switch o {
	case OwnedByDisplay:
		return "display"
	case OwnedByCompute:
		return "compute"
	default:
		return fmt.Sprintf("Unknown(%d)", int(o))
	}
}

// SharedImage is an RGBA f32 image buffer shared between the filter and
// a display subsystem running on the same GPU device. The filter writes
// it via the expand stage; the display samples it directly. No pixel
// ever crosses back to the CPU.
//
// Access is serialized by an explicit ownership hand-off: the image
// starts owned by the display, Acquire transfers it to compute, Release
// returns it. Every frame must be bracketed by exactly one
// Acquire/Release pair; transitions from the wrong state are errors, and
// dispatching without ownership is refused.
type SharedImage struct {
	mu sync.Mutex

	device hal.Device
	buf    hal.Buffer

	width  int
	height int

	state Ownership

	acquires uint64
	releases uint64

	closed bool
}

// NewSharedImage allocates an RGBA f32 buffer (width*height*4 floats) on
// the shared device of ctx. The context must have been created with
// NewSharedContext so the display subsystem can see the buffer;
// a standalone context returns ErrInteropUnsupported.
//
// The image starts owned by the display.
func NewSharedImage(ctx *Context, width, height int) (*SharedImage, error) {
	if !ctx.external {
		return nil, fmt.Errorf("%w: context does not share a display device", ErrInteropUnsupported)
	}
	if width <= 0 || height <= 0 {
		return nil, fmt.Errorf("gpu: invalid shared image dimensions %dx%d", width, height)
	}

	device := ctx.Device()
	size := uint64(width) * uint64(height) * 4 * 4
	buf, err := device.CreateBuffer(&hal.BufferDescriptor{
		Label: "shared_image",
		Size:  size,
		Usage: gputypes.BufferUsageStorage,
	})
	if err != nil {
		return nil, fmt.Errorf("gpu: create shared image buffer: %w", err)
	}

	slogger().Info("gpu: shared image created",
		"size", fmt.Sprintf("%dx%d", width, height),
		"bytes", size)

	return &SharedImage{
		device: device,
		buf:    buf,
		width:  width,
		height: height,
		state:  OwnedByDisplay,
	}, nil
}

// Width returns the image width in pixels.
func (img *SharedImage) Width() int { return img.width }

// Height returns the image height in pixels.
func (img *SharedImage) Height() int { return img.height }

// Acquire transfers ownership from the display to the compute side.
// It fails with ErrAlreadyAcquired if compute already owns the image;
// the acquire/release bracket must never nest.
func (img *SharedImage) Acquire() error {
	img.mu.Lock()
	defer img.mu.Unlock()

	if img.closed {
		return fmt.Errorf("gpu: shared image closed")
	}
	if img.state == OwnedByCompute {
		return ErrAlreadyAcquired
	}
	img.state = OwnedByCompute
	img.acquires++
	return nil
}

// Release returns ownership to the display side. It fails with
// ErrNotAcquired when compute does not own the image; a release without
// a matching acquire is a caller bug.
func (img *SharedImage) Release() error {
	img.mu.Lock()
	defer img.mu.Unlock()

	if img.closed {
		return fmt.Errorf("gpu: shared image closed")
	}
	if img.state != OwnedByCompute {
		return ErrNotAcquired
	}
	img.state = OwnedByDisplay
	img.releases++
	return nil
}

// Owner returns the current ownership state.
func (img *SharedImage) Owner() Ownership {
	img.mu.Lock()
	defer img.mu.Unlock()
	return img.state
}

// Counts returns the total number of acquires and releases. Outside an
// active bracket the two are equal.
func (img *SharedImage) Counts() (acquires, releases uint64) {
	img.mu.Lock()
	defer img.mu.Unlock()
	return img.acquires, img.releases
}

// DisplayBuffer returns the underlying HAL buffer for the display side
// to bind. The display must only sample it while it holds ownership.
func (img *SharedImage) DisplayBuffer() hal.Buffer {
	return img.buf
}

// computeBuffer returns the buffer for a compute dispatch, refusing when
// the compute side does not currently own the image.
func (img *SharedImage) computeBuffer() (hal.Buffer, error) {
	img.mu.Lock()
	defer img.mu.Unlock()

	if img.closed {
		return nil, fmt.Errorf("gpu: shared image closed")
	}
	if img.state != OwnedByCompute {
		return nil, ErrNotAcquired
	}
	return img.buf, nil
}

// Close destroys the image buffer. The image must not be used afterward.
// Close is idempotent.
func (img *SharedImage) Close() {
	img.mu.Lock()
	defer img.mu.Unlock()

	if img.closed {
		return
	}
	if img.buf != nil {
		img.device.DestroyBuffer(img.buf)
		img.buf = nil
	}
	img.closed = true
}
