package kinectfilter

import (
	"fmt"
	"sync"

	"github.com/gogpu/gpucontext"

	"github.com/kinectfilter/kinectfilter/internal/gpu"
)

// Filter owns the GPU device and the convolution pipeline for frames of
// a fixed size. A process creates one Filter at startup, feeds it frames
// from the processing loop, and closes it at shutdown.
//
// Filter methods are not safe for concurrent use; the intended caller is
// the single consumer goroutine draining a FrameSlot.
type Filter struct {
	mu sync.Mutex

	ctx  *gpu.Context
	pipe *gpu.ConvolutionPipeline

	width  int
	height int

	closed bool
}

// New creates a Filter with its own GPU device. Setup errors, including
// ErrDeviceNotFound and shader CompileError, are fatal: there is no
// CPU fallback.
func New(opts Options) (*Filter, error) {
	if err := opts.validate(); err != nil {
		return nil, err
	}
	ctx, err := gpu.NewContext()
	if err != nil {
		return nil, err
	}
	return newFilter(ctx, opts)
}

// NewShared creates a Filter on the GPU device of a display provider,
// enabling zero-copy output through SharedImage. The provider must
// expose HAL device handles beyond the base gpucontext.DeviceProvider
// contract; otherwise NewShared returns ErrInteropUnsupported.
//
// The display provider must exist before the Filter: the shared device
// is adopted, never created, on this path.
func NewShared(provider gpucontext.DeviceProvider, opts Options) (*Filter, error) {
	if err := opts.validate(); err != nil {
		return nil, err
	}
	ctx, err := gpu.NewSharedContext(provider)
	if err != nil {
		return nil, err
	}
	return newFilter(ctx, opts)
}

func newFilter(ctx *gpu.Context, opts Options) (*Filter, error) {
	pipe := gpu.NewConvolutionPipeline(ctx.Device(), ctx.Queue(), opts.Width, opts.Height)
	if err := pipe.Init(); err != nil {
		ctx.Close()
		return nil, err
	}
	pipe.SetSmoothing(opts.Smoothing)

	Logger().Info("kinectfilter: filter ready",
		"size", fmt.Sprintf("%dx%d", opts.Width, opts.Height),
		"smoothing", opts.Smoothing,
		"adapter", ctx.AdapterName())

	return &Filter{
		ctx:    ctx,
		pipe:   pipe,
		width:  opts.Width,
		height: opts.Height,
	}, nil
}

// Width returns the frame width the Filter was created with.
func (f *Filter) Width() int { return f.width }

// Height returns the frame height the Filter was created with.
func (f *Filter) Height() int { return f.height }

// Convolve filters one grayscale frame (width*height bytes) and returns
// the edge-detected result. It blocks until the GPU result is read back.
func (f *Filter) Convolve(gray []byte) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.closed {
		return nil, ErrClosed
	}
	if len(gray) != f.width*f.height {
		return nil, fmt.Errorf("%w: got %d bytes, want %d", ErrFrameSize, len(gray), f.width*f.height)
	}

	out := make([]byte, f.width*f.height)
	if err := f.pipe.Run(gray, out); err != nil {
		return nil, err
	}
	return out, nil
}

// ConvolveFrame filters a captured Frame. RGB24 frames are converted to
// grayscale first; grayscale frames pass through unchanged.
func (f *Filter) ConvolveFrame(frame Frame) ([]byte, error) {
	gray, err := f.frameGray(frame)
	if err != nil {
		return nil, err
	}
	return f.Convolve(gray)
}

// ConvolveShared filters a captured Frame directly into a shared display
// image. The caller must hold compute ownership of img (see
// [SharedImage.Acquire]); the result never touches the CPU.
func (f *Filter) ConvolveShared(frame Frame, img *SharedImage) error {
	gray, err := f.frameGray(frame)
	if err != nil {
		return err
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	if f.closed {
		return ErrClosed
	}
	return f.pipe.RunShared(gray, img)
}

// NewSharedImage allocates a display-shared output image matching the
// Filter's dimensions. Only available on filters created with NewShared;
// others return ErrInteropUnsupported.
func (f *Filter) NewSharedImage() (*SharedImage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.closed {
		return nil, ErrClosed
	}
	return gpu.NewSharedImage(f.ctx, f.width, f.height)
}

// frameGray extracts the grayscale payload from a Frame, converting
// RGB24 data with BT.601 weights when needed.
func (f *Filter) frameGray(frame Frame) ([]byte, error) {
	if frame.Width != f.width || frame.Height != f.height {
		return nil, fmt.Errorf("%w: frame is %dx%d, filter is %dx%d",
			ErrFrameSize, frame.Width, frame.Height, f.width, f.height)
	}
	pixels := f.width * f.height
	switch len(frame.Data) {
	case pixels:
		return frame.Data, nil
	case pixels * 3:
		return Grayscale(frame.Data), nil
	default:
		return nil, fmt.Errorf("%w: %d data bytes for %dx%d frame",
			ErrFrameSize, len(frame.Data), frame.Width, frame.Height)
	}
}

// SetSmoothing enables or disables the double box-smoothing pass. The
// change applies from the next frame; a frame being filtered when the
// toggle flips is unaffected.
func (f *Filter) SetSmoothing(on bool) {
	f.pipe.SetSmoothing(on)
	Logger().Debug("kinectfilter: smoothing toggled", "enabled", on)
}

// Smoothing reports whether the smoothing pass is enabled.
func (f *Filter) Smoothing() bool {
	return f.pipe.Smoothing()
}

// Close releases the pipeline and then the device, in reverse order of
// creation. Close is idempotent. A Filter cannot be reused after Close.
func (f *Filter) Close() {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.closed {
		return
	}
	f.pipe.Close()
	f.ctx.Close()
	f.closed = true
}
