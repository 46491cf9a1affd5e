// Package sensor abstracts frame-producing devices. A Device pushes
// captured frames into a caller-supplied callback; the kinectfilter
// FrameSlot is the intended callback target.
package sensor

import "github.com/kinectfilter/kinectfilter"

// FrameCallback receives one captured frame. The Frame's Data is owned
// by the receiver: adapters copy pixel data out of the driver's buffer
// before invoking the callback, so the receiver may keep the slice.
//
// Callbacks run on the device's capture goroutine and must return
// quickly; hand the frame to a FrameSlot instead of processing inline.
type FrameCallback func(kinectfilter.Frame)

// Device is a frame source that can be started and stopped.
type Device interface {
	// Start begins capture and invokes cb for every frame until Stop.
	// It returns an error if the device is already running or cannot
	// be opened.
	Start(cb FrameCallback) error

	// Stop ends capture and waits for the capture goroutine to finish.
	// No callback runs after Stop returns.
	Stop() error
}
