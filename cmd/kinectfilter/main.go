// Command kinectfilter runs the sensor-to-filter pipeline end to end:
// a frame source feeds a latest-wins slot, the consumer loop filters
// each taken frame on the GPU, and the first and last results are
// written as PNG files.
//
//	kinectfilter -width 640 -height 480 -frames 100 -smooth -out edges
//	kinectfilter -source gst -gst-element videotestsrc -frames 30
package main

import (
	"flag"
	"fmt"
	"image"
	"image/png"
	"log/slog"
	"os"
	"time"

	"github.com/kinectfilter/kinectfilter"
	"github.com/kinectfilter/kinectfilter/sensor"
	gstsrc "github.com/kinectfilter/kinectfilter/sensor/gst"
)

func main() {
	var (
		width      = flag.Int("width", 640, "frame width in pixels")
		height     = flag.Int("height", 480, "frame height in pixels")
		frames     = flag.Int("frames", 100, "number of frames to process")
		smooth     = flag.Bool("smooth", false, "enable box smoothing before edge detection")
		out        = flag.String("out", "kinectfilter", "output PNG path prefix")
		source     = flag.String("source", "synthetic", "frame source: synthetic or gst")
		gstElement = flag.String("gst-element", "v4l2src", "GStreamer source element (gst source)")
		gstDevice  = flag.String("gst-device", "", "capture device path (gst source)")
		fps        = flag.Int("fps", 30, "capture frame rate")
		verbose    = flag.Bool("v", false, "enable debug logging to stderr")
	)
	flag.Parse()

	if *verbose {
		kinectfilter.SetLogger(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
			Level: slog.LevelDebug,
		})))
	}

	if err := run(*width, *height, *frames, *smooth, *out, *source, *gstElement, *gstDevice, *fps); err != nil {
		fmt.Fprintln(os.Stderr, "kinectfilter:", err)
		os.Exit(1)
	}
}

func run(width, height, frames int, smooth bool, out, source, gstElement, gstDevice string, fps int) error {
	filter, err := kinectfilter.New(kinectfilter.Options{
		Width:     width,
		Height:    height,
		Smoothing: smooth,
	})
	if err != nil {
		return err
	}
	defer filter.Close()

	var dev sensor.Device
	switch source {
	case "synthetic":
		dev = sensor.NewSynthetic(width, height, fps)
	case "gst":
		dev = gstsrc.NewSource(gstsrc.Config{
			Element: gstElement,
			Device:  gstDevice,
			Width:   width,
			Height:  height,
			FPS:     fps,
		})
	default:
		return fmt.Errorf("unknown source %q", source)
	}

	slot := kinectfilter.NewFrameSlot()
	if err := dev.Start(slot.Push); err != nil {
		return err
	}
	defer dev.Stop()

	var (
		processed int
		first     []byte
		last      []byte
		frame     kinectfilter.Frame
	)

	start := time.Now()
	deadline := start.Add(time.Duration(frames) * time.Second / time.Duration(fps) * 4)
	for processed < frames && time.Now().Before(deadline) {
		if !slot.TryTake(&frame) {
			time.Sleep(time.Millisecond)
			continue
		}

		result, err := filter.ConvolveFrame(frame)
		if err != nil {
			return fmt.Errorf("frame %d: %w", frame.Seq, err)
		}
		if first == nil {
			first = result
		}
		last = result
		processed++
	}
	slot.Close()

	if first != nil {
		if err := writePNG(out+"_first.png", first, width, height); err != nil {
			return err
		}
	}
	if last != nil {
		if err := writePNG(out+"_last.png", last, width, height); err != nil {
			return err
		}
	}

	stats := slot.Stats()
	fmt.Printf("processed %d frames in %v (smoothing=%v)\n", processed, time.Since(start).Round(time.Millisecond), smooth)
	fmt.Printf("last seq %d, dropped %d frames\n", stats.LastSeq, stats.TotalDrops)
	return nil
}

// writePNG stores one grayscale frame as a PNG file.
func writePNG(path string, gray []byte, width, height int) error {
	img := image.NewGray(image.Rect(0, 0, width, height))
	copy(img.Pix, gray)

	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	if err := png.Encode(f, img); err != nil {
		return fmt.Errorf("encode %s: %w", path, err)
	}
	return nil
}
