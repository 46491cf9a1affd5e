package gst

import (
	"strings"
	"testing"

	"github.com/tinyzimmer/go-gst/gst"

	"github.com/kinectfilter/kinectfilter"
)

// requireGst initializes GStreamer and skips the test when the core
// elements are not installed on the host.
func requireGst(t *testing.T) {
	t.Helper()
	initOnce.Do(func() { gst.Init(nil) })
	if _, err := gst.NewElement("videotestsrc"); err != nil {
		t.Skipf("gstreamer base plugins unavailable: %v", err)
	}
}

func TestNewSourceDefaults(t *testing.T) {
	s := NewSource(Config{Width: 640, Height: 480})
	if s.cfg.Element != "v4l2src" {
		t.Errorf("default element = %q, want v4l2src", s.cfg.Element)
	}
	if s.cfg.FPS != 30 {
		t.Errorf("default fps = %d, want 30", s.cfg.FPS)
	}
}

func TestBuildPipeline(t *testing.T) {
	requireGst(t)

	s := NewSource(Config{Element: "videotestsrc", Width: 64, Height: 48, FPS: 15})
	pipeline, err := s.buildPipeline(func(kinectfilter.Frame) {})
	if err != nil {
		t.Fatalf("buildPipeline: %v", err)
	}
	if pipeline == nil {
		t.Fatal("buildPipeline returned nil pipeline")
	}
	_ = pipeline.SetState(gst.StateNull)
}

func TestStartRejectsUnknownElement(t *testing.T) {
	requireGst(t)

	s := NewSource(Config{Element: "no-such-element", Width: 64, Height: 48})
	if err := s.Start(func(kinectfilter.Frame) {}); err == nil {
		t.Fatal("Start with unknown element succeeded, want error")
	}
}

// videotestsrc has no "device" property, so configuring one must surface
// the property error instead of silently producing a broken pipeline.
func TestStartRejectsBadSourceProperty(t *testing.T) {
	requireGst(t)

	s := NewSource(Config{
		Element: "videotestsrc",
		Device:  "/dev/video0",
		Width:   64,
		Height:  48,
	})
	err := s.Start(func(kinectfilter.Frame) {})
	if err == nil {
		s.Stop()
		t.Fatal("Start with bad source property succeeded, want error")
	}
	if !strings.Contains(err.Error(), "set device") {
		t.Errorf("error = %v, want property context", err)
	}
}
