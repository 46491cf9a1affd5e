// Package kinectfilter turns a stream of sensor frames into edge-detected
// output images using a GPU compute pipeline.
//
// The package has three moving parts:
//
//   - FrameSlot: a single-frame, latest-wins hand-off between the sensor
//     driver callback and the processing loop. The producer never blocks
//     and the consumer never sees a stale backlog.
//   - Filter: owns the GPU device and the convolution pipeline. Each call
//     to Convolve uploads one grayscale frame, runs an optional double
//     box-smoothing pass followed by a Laplacian edge-detection pass, and
//     reads the result back.
//   - SharedImage: an alternative zero-copy output path that writes the
//     filtered frame directly into a buffer owned by a display subsystem
//     sharing the same GPU device.
//
// A minimal processing loop:
//
//	f, err := kinectfilter.New(kinectfilter.Options{Width: 640, Height: 480})
//	if err != nil {
//		log.Fatal(err)
//	}
//	defer f.Close()
//
//	slot := kinectfilter.NewFrameSlot()
//	dev.Start(slot.Push)
//
//	var frame kinectfilter.Frame
//	for running {
//		if !slot.TryTake(&frame) {
//			continue // no new frame yet
//		}
//		out, err := f.ConvolveFrame(frame)
//		...
//	}
//
// By default the package produces no log output. Call [SetLogger] to
// enable structured logging.
package kinectfilter
