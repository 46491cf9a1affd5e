package kinectfilter

import "fmt"

// Options configures a Filter at creation time. Frame dimensions are
// fixed for the lifetime of the Filter; smoothing can be toggled later
// with [Filter.SetSmoothing].
type Options struct {
	// Width and Height are the frame dimensions in pixels. Required.
	Width  int
	Height int

	// Smoothing enables the double box-filter pass before edge
	// detection. The double pass approximates a Gaussian blur and
	// suppresses sensor noise at the cost of softer edges.
	Smoothing bool
}

// validate checks that the options describe a usable configuration.
func (o Options) validate() error {
	if o.Width <= 0 || o.Height <= 0 {
		return fmt.Errorf("kinectfilter: invalid dimensions %dx%d", o.Width, o.Height)
	}
	return nil
}
