package kinectfilter

import "time"

// Frame is one captured sensor image plus its metadata.
//
// Data is owned by the holder of the Frame. Sensor adapters must copy
// pixel data out of the driver's buffer before building a Frame, because
// the driver reuses its buffer as soon as the capture callback returns.
type Frame struct {
	// Seq is a monotonically increasing capture sequence number,
	// assigned by the producing device. Gaps indicate dropped frames.
	Seq uint64

	// Timestamp is the capture time as observed by the adapter.
	Timestamp time.Time

	// TraceID correlates one frame across log lines.
	TraceID string

	// Width and Height are the frame dimensions in pixels.
	Width  int
	Height int

	// Data holds the pixel payload. Length is Width*Height*channels;
	// the channel count depends on the producing device (1 for
	// grayscale, 3 for RGB24).
	Data []byte
}
