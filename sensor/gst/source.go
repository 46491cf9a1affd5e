// Package gst captures frames from a GStreamer source element (camera,
// test source) and adapts them to the sensor.Device interface.
package gst

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/tinyzimmer/go-gst/gst"
	"github.com/tinyzimmer/go-gst/gst/app"

	"github.com/kinectfilter/kinectfilter"
	"github.com/kinectfilter/kinectfilter/sensor"
)

var initOnce sync.Once

// Config describes the capture pipeline.
type Config struct {
	// Element is the GStreamer source element to instantiate,
	// e.g. "v4l2src" for a camera or "videotestsrc" for testing.
	Element string

	// Device is the value for the source's "device" property
	// (e.g. "/dev/video0"). Empty leaves the element default.
	Device string

	// Width and Height are the capture resolution. Frames are scaled
	// to this size by the pipeline, so they match the filter exactly.
	Width  int
	Height int

	// FPS caps the capture rate. Zero means 30.
	FPS int
}

// Source is a sensor.Device backed by a GStreamer pipeline:
//
//	source -> videoconvert -> videoscale -> capsfilter(RGB) -> appsink
//
// The appsink is configured to keep only the newest buffer and drop the
// rest, matching the latest-wins hand-off downstream.
type Source struct {
	cfg Config

	mu       sync.Mutex
	pipeline *gst.Pipeline
	running  bool

	frameCounter uint64
}

var _ sensor.Device = (*Source)(nil)

// NewSource creates a capture source for the given configuration.
func NewSource(cfg Config) *Source {
	if cfg.Element == "" {
		cfg.Element = "v4l2src"
	}
	if cfg.FPS <= 0 {
		cfg.FPS = 30
	}
	return &Source{cfg: cfg}
}

// Start builds the pipeline and begins delivering frames to cb.
func (s *Source) Start(cb sensor.FrameCallback) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return errors.New("gst: source already running")
	}

	initOnce.Do(func() { gst.Init(nil) })

	pipeline, err := s.buildPipeline(cb)
	if err != nil {
		return err
	}

	if err := pipeline.SetState(gst.StatePlaying); err != nil {
		_ = pipeline.SetState(gst.StateNull)
		return fmt.Errorf("gst: start pipeline: %w", err)
	}

	s.pipeline = pipeline
	s.running = true
	kinectfilter.Logger().Info("gst: capture started",
		"element", s.cfg.Element,
		"size", fmt.Sprintf("%dx%d", s.cfg.Width, s.cfg.Height),
		"fps", s.cfg.FPS)
	return nil
}

// Stop halts the pipeline. No callback runs after Stop returns.
func (s *Source) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running {
		return nil
	}
	if err := s.pipeline.SetState(gst.StateNull); err != nil {
		return fmt.Errorf("gst: stop pipeline: %w", err)
	}
	s.pipeline = nil
	s.running = false
	return nil
}

func (s *Source) buildPipeline(cb sensor.FrameCallback) (*gst.Pipeline, error) {
	pipeline, err := gst.NewPipeline("")
	if err != nil {
		return nil, fmt.Errorf("gst: create pipeline: %w", err)
	}

	src, err := gst.NewElement(s.cfg.Element)
	if err != nil {
		return nil, fmt.Errorf("gst: create %s: %w", s.cfg.Element, err)
	}
	if s.cfg.Device != "" {
		if err := src.SetProperty("device", s.cfg.Device); err != nil {
			return nil, fmt.Errorf("gst: set device %q: %w", s.cfg.Device, err)
		}
	}

	converter, err := gst.NewElement("videoconvert")
	if err != nil {
		return nil, fmt.Errorf("gst: create videoconvert: %w", err)
	}
	scaler, err := gst.NewElement("videoscale")
	if err != nil {
		return nil, fmt.Errorf("gst: create videoscale: %w", err)
	}

	capsfilter, err := gst.NewElement("capsfilter")
	if err != nil {
		return nil, fmt.Errorf("gst: create capsfilter: %w", err)
	}
	capsStr := fmt.Sprintf("video/x-raw,format=RGB,width=%d,height=%d,framerate=%d/1",
		s.cfg.Width, s.cfg.Height, s.cfg.FPS)
	if err := capsfilter.SetProperty("caps", gst.NewCapsFromString(capsStr)); err != nil {
		return nil, fmt.Errorf("gst: set caps %q: %w", capsStr, err)
	}

	appsink, err := app.NewAppSink()
	if err != nil {
		return nil, fmt.Errorf("gst: create appsink: %w", err)
	}
	// No clock sync, keep only the latest frame, drop older frames under
	// backpressure.
	sinkProps := []struct {
		name  string
		value any
	}{
		{"sync", false},
		{"max-buffers", 1},
		{"drop", true},
	}
	for _, p := range sinkProps {
		if err := appsink.SetProperty(p.name, p.value); err != nil {
			return nil, fmt.Errorf("gst: set appsink %s: %w", p.name, err)
		}
	}

	if err := pipeline.AddMany(src, converter, scaler, capsfilter, appsink.Element); err != nil {
		return nil, fmt.Errorf("gst: add pipeline elements: %w", err)
	}
	if err := gst.ElementLinkMany(src, converter, scaler, capsfilter, appsink.Element); err != nil {
		return nil, fmt.Errorf("gst: link pipeline elements: %w", err)
	}

	appsink.SetCallbacks(&app.SinkCallbacks{
		NewSampleFunc: func(sink *app.Sink) gst.FlowReturn {
			return s.onNewSample(sink, cb)
		},
	})
	return pipeline, nil
}

// onNewSample copies the mapped buffer before handing the frame to the
// callback: GStreamer reuses the buffer as soon as we return.
func (s *Source) onNewSample(sink *app.Sink, cb sensor.FrameCallback) gst.FlowReturn {
	sample := sink.PullSample()
	if sample == nil {
		// A single bad sample should not kill the stream.
		kinectfilter.Logger().Warn("gst: failed to pull sample, skipping frame")
		return gst.FlowOK
	}

	buffer := sample.GetBuffer()
	if buffer == nil {
		kinectfilter.Logger().Warn("gst: sample without buffer, skipping frame")
		return gst.FlowOK
	}

	mapInfo := buffer.Map(gst.MapRead)
	data := mapInfo.Bytes()
	if len(data) == 0 {
		buffer.Unmap()
		kinectfilter.Logger().Warn("gst: empty buffer received")
		return gst.FlowOK
	}

	frameData := make([]byte, len(data))
	copy(frameData, data)
	buffer.Unmap()

	seq := atomic.AddUint64(&s.frameCounter, 1)
	cb(kinectfilter.Frame{
		Seq:       seq,
		Timestamp: time.Now(),
		TraceID:   uuid.New().String(),
		Width:     s.cfg.Width,
		Height:    s.cfg.Height,
		Data:      frameData,
	})
	return gst.FlowOK
}
