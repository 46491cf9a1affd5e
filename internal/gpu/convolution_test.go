package gpu

import (
	"bytes"
	"encoding/binary"
	"math"
	"testing"

	"github.com/kinectfilter/kinectfilter/internal/conv"
)

func TestStageString(t *testing.T) {
	tests := []struct {
		stage Stage
		want  string
	}{
		{StageNormalize, "normalize"},
		{StageConvolve3x3, "convolve3x3"},
		{StagePack, "pack"},
		{StageExpand, "expand"},
		{Stage(42), "Unknown(42)"},
	}
	for _, tt := range tests {
		if got := tt.stage.String(); got != tt.want {
			t.Errorf("Stage(%d).String() = %q, want %q", int(tt.stage), got, tt.want)
		}
	}
}

func TestStageBindGroupLayoutEntries(t *testing.T) {
	// Binding indexes must match the @binding annotations in the WGSL.
	tests := []struct {
		stage Stage
		want  int
	}{
		{StageNormalize, 3},
		{StageConvolve3x3, 4},
		{StagePack, 3},
		{StageExpand, 3},
	}
	for _, tt := range tests {
		t.Run(tt.stage.String(), func(t *testing.T) {
			entries := stageBindGroupLayoutEntries(tt.stage)
			if len(entries) != tt.want {
				t.Fatalf("entries = %d, want %d", len(entries), tt.want)
			}
			for i, e := range entries {
				if e.Binding != uint32(i) {
					t.Errorf("entry %d has binding %d", i, e.Binding)
				}
			}
		})
	}
}

func TestImagePassGroups(t *testing.T) {
	tests := []struct {
		w, h   int
		gx, gy uint32
	}{
		{16, 16, 1, 1},
		{17, 16, 2, 1},
		{640, 480, 40, 30},
		{1, 1, 1, 1},
	}
	for _, tt := range tests {
		p := NewConvolutionPipeline(nil, nil, tt.w, tt.h)
		gx, gy := p.imagePassGroups()
		if gx != tt.gx || gy != tt.gy {
			t.Errorf("%dx%d: groups = (%d,%d), want (%d,%d)", tt.w, tt.h, gx, gy, tt.gx, tt.gy)
		}
	}
}

func TestFramePassesPlan(t *testing.T) {
	p := NewConvolutionPipeline(nil, nil, 64, 64)

	t.Run("without smoothing", func(t *testing.T) {
		passes := p.framePasses(false, StagePack, p.outputBuf)
		want := []Stage{StageNormalize, StageConvolve3x3, StagePack}
		checkStages(t, passes, want)
	})

	t.Run("with smoothing", func(t *testing.T) {
		passes := p.framePasses(true, StagePack, p.outputBuf)
		want := []Stage{StageNormalize, StageConvolve3x3, StageConvolve3x3, StageConvolve3x3, StagePack}
		checkStages(t, passes, want)
	})

	t.Run("shared output", func(t *testing.T) {
		passes := p.framePasses(true, StageExpand, nil)
		want := []Stage{StageNormalize, StageConvolve3x3, StageConvolve3x3, StageConvolve3x3, StageExpand}
		checkStages(t, passes, want)
	})
}

func checkStages(t *testing.T, passes []pass, want []Stage) {
	t.Helper()
	if len(passes) != len(want) {
		t.Fatalf("passes = %d, want %d", len(passes), len(want))
	}
	for i, ps := range passes {
		if ps.stage != want[i] {
			t.Errorf("pass %d = %s, want %s", i, ps.stage, want[i])
		}
	}
}

func TestLaplacianIsAlwaysPenultimate(t *testing.T) {
	// Whether or not the box passes ran, the plan ends with the
	// laplacian pass feeding the output stage.
	p := NewConvolutionPipeline(nil, nil, 32, 32)

	for _, smoothing := range []bool{false, true} {
		passes := p.framePasses(smoothing, StagePack, p.outputBuf)
		lap := passes[len(passes)-2]
		if lap.stage != StageConvolve3x3 {
			t.Fatalf("smoothing=%v: penultimate pass = %s, want convolve3x3", smoothing, lap.stage)
		}
		if len(lap.buffers) != 3 {
			t.Errorf("smoothing=%v: convolve pass binds %d buffers, want 3", smoothing, len(lap.buffers))
		}
	}
}

func TestPackGroups(t *testing.T) {
	// 100x100 = 10000 pixels = 2500 words: fits into 10 pack workgroups.
	p := NewConvolutionPipeline(nil, nil, 100, 100)
	passes := p.framePasses(false, StagePack, p.outputBuf)
	packPass := passes[len(passes)-1]
	if packPass.groupsX != 10 || packPass.groupsY != 1 {
		t.Errorf("pack groups = (%d,%d), want (10,1)", packPass.groupsX, packPass.groupsY)
	}
}

func TestSmoothingToggleDefaultsOff(t *testing.T) {
	p := NewConvolutionPipeline(nil, nil, 8, 8)
	if p.Smoothing() {
		t.Error("smoothing enabled by default")
	}
	p.SetSmoothing(true)
	if !p.Smoothing() {
		t.Error("SetSmoothing(true) did not stick")
	}
	p.SetSmoothing(false)
	if p.Smoothing() {
		t.Error("SetSmoothing(false) did not stick")
	}
}

func TestTapsToBytes(t *testing.T) {
	b := tapsToBytes(laplacianTaps)
	if len(b) != 36 {
		t.Fatalf("len = %d, want 36", len(b))
	}
	center := math.Float32frombits(binary.LittleEndian.Uint32(b[4*4:]))
	if center != -8 {
		t.Errorf("center tap = %v, want -8", center)
	}
}

func TestKernelTapSums(t *testing.T) {
	var box, lap float32
	for i := 0; i < 9; i++ {
		box += boxTaps[i]
		lap += laplacianTaps[i]
	}
	if box != 1.125 {
		t.Errorf("box taps sum = %v, want 1.125 (9/8)", box)
	}
	if lap != 0 {
		t.Errorf("laplacian taps sum = %v, want 0", lap)
	}
}

func TestPackedSizePadding(t *testing.T) {
	tests := []struct {
		w, h int
		want uint64
	}{
		{4, 4, 16},  // exact multiple of 4
		{3, 3, 12},  // 9 pixels -> 3 words
		{5, 1, 8},   // 5 pixels -> 2 words
		{640, 480, 307200},
	}
	for _, tt := range tests {
		p := NewConvolutionPipeline(nil, nil, tt.w, tt.h)
		if got := p.packedSize(); got != tt.want {
			t.Errorf("%dx%d: packedSize = %d, want %d", tt.w, tt.h, got, tt.want)
		}
	}
}

// newGPUPipeline sets up a real device and pipeline, or skips the test
// when no adapter is available.
func newGPUPipeline(t *testing.T, w, h int) (*Context, *ConvolutionPipeline) {
	t.Helper()
	ctx, err := NewContext()
	if err != nil {
		t.Skipf("no GPU available: %v", err)
	}
	p := NewConvolutionPipeline(ctx.Device(), ctx.Queue(), w, h)
	if err := p.Init(); err != nil {
		ctx.Close()
		t.Fatalf("Init: %v", err)
	}
	t.Cleanup(func() {
		p.Close()
		ctx.Close()
	})
	return ctx, p
}

func TestRunMatchesReference(t *testing.T) {
	const w, h = 64, 48
	_, p := newGPUPipeline(t, w, h)

	img := make([]byte, w*h)
	for i := range img {
		img[i] = byte((i*13 + i/w*7) % 256)
	}

	for _, smoothing := range []bool{false, true} {
		p.SetSmoothing(smoothing)

		got := make([]byte, w*h)
		if err := p.Run(img, got); err != nil {
			t.Fatalf("smoothing=%v: Run: %v", smoothing, err)
		}

		want := conv.Filter(img, w, h, smoothing)
		diff := 0
		for i := range want {
			d := int(got[i]) - int(want[i])
			if d < -1 || d > 1 {
				diff++
			}
		}
		// GPU float math may round the last bit differently; anything
		// beyond off-by-one disagrees with the reference.
		if diff > 0 {
			t.Errorf("smoothing=%v: %d pixels differ from reference by more than 1", smoothing, diff)
		}
	}
}

func TestRunUniformImageIsZero(t *testing.T) {
	const w, h = 32, 32
	_, p := newGPUPipeline(t, w, h)

	img := bytes.Repeat([]byte{100}, w*h)
	got := make([]byte, w*h)
	if err := p.Run(img, got); err != nil {
		t.Fatalf("Run: %v", err)
	}
	for i, v := range got {
		if v != 0 {
			t.Fatalf("pixel %d = %d, want 0 on uniform input", i, v)
		}
	}
}

func TestRunRejectsWrongSizes(t *testing.T) {
	p := NewConvolutionPipeline(nil, nil, 8, 8)
	p.initialized = true

	if err := p.Run(make([]byte, 10), make([]byte, 64)); err == nil {
		t.Error("Run accepted wrong input size")
	}
	if err := p.Run(make([]byte, 64), make([]byte, 10)); err == nil {
		t.Error("Run accepted wrong output size")
	}
}
