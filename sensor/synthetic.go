package sensor

import (
	"errors"
	"image"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/image/draw"

	"github.com/kinectfilter/kinectfilter"
)

// basePatternW and basePatternH are the dimensions the test pattern is
// drawn at before being scaled to the device resolution.
const (
	basePatternW = 64
	basePatternH = 48
)

// Synthetic is a software frame source producing a moving test pattern:
// a diagonal gradient background with a bright square orbiting it.
// The square's hard edges give the Laplacian stage something to find.
type Synthetic struct {
	width  int
	height int
	fps    int

	mu      sync.Mutex
	running bool
	stop    chan struct{}
	done    chan struct{}
}

// NewSynthetic creates a test-pattern device producing width x height
// RGB24 frames at the given rate.
func NewSynthetic(width, height, fps int) *Synthetic {
	if fps <= 0 {
		fps = 30
	}
	return &Synthetic{width: width, height: height, fps: fps}
}

// Start begins generating frames on a background goroutine.
func (s *Synthetic) Start(cb FrameCallback) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return errors.New("sensor: synthetic device already running")
	}
	s.stop = make(chan struct{})
	s.done = make(chan struct{})
	s.running = true

	go s.run(cb, s.stop, s.done)
	return nil
}

// Stop ends frame generation and waits for the goroutine to exit.
func (s *Synthetic) Stop() error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return nil
	}
	close(s.stop)
	done := s.done
	s.running = false
	s.mu.Unlock()

	<-done
	return nil
}

func (s *Synthetic) run(cb FrameCallback, stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)

	ticker := time.NewTicker(time.Second / time.Duration(s.fps))
	defer ticker.Stop()

	var seq uint64
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			seq++
			cb(kinectfilter.Frame{
				Seq:       seq,
				Timestamp: time.Now(),
				TraceID:   uuid.New().String(),
				Width:     s.width,
				Height:    s.height,
				Data:      s.FrameData(seq),
			})
		}
	}
}

// FrameData renders the test pattern for sequence number seq as an
// RGB24 payload. Exposed so tests and tools can render frames without
// running the capture goroutine.
func (s *Synthetic) FrameData(seq uint64) []byte {
	base := image.NewRGBA(image.Rect(0, 0, basePatternW, basePatternH))

	// Diagonal gradient background.
	for y := 0; y < basePatternH; y++ {
		for x := 0; x < basePatternW; x++ {
			v := byte((x*255/basePatternW + y*255/basePatternH) / 2)
			i := base.PixOffset(x, y)
			base.Pix[i+0] = v
			base.Pix[i+1] = v
			base.Pix[i+2] = v
			base.Pix[i+3] = 255
		}
	}

	// Bright square orbiting horizontally, wrapping at the edge.
	const side = 10
	offset := int(seq) % (basePatternW - side)
	sy := basePatternH/2 - side/2
	for y := sy; y < sy+side; y++ {
		for x := offset; x < offset+side; x++ {
			i := base.PixOffset(x, y)
			base.Pix[i+0] = 255
			base.Pix[i+1] = 255
			base.Pix[i+2] = 255
		}
	}

	// Scale to the device resolution.
	scaled := image.NewRGBA(image.Rect(0, 0, s.width, s.height))
	draw.ApproxBiLinear.Scale(scaled, scaled.Bounds(), base, base.Bounds(), draw.Src, nil)

	// Repack RGBA to RGB24.
	out := make([]byte, s.width*s.height*3)
	for p := 0; p < s.width*s.height; p++ {
		out[p*3+0] = scaled.Pix[p*4+0]
		out[p*3+1] = scaled.Pix[p*4+1]
		out[p*3+2] = scaled.Pix[p*4+2]
	}
	return out
}
