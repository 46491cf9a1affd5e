package gpu

import (
	"encoding/binary"
	"fmt"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"
)

const (
	// convWorkgroupDim is the 2D workgroup edge used by the image-wide
	// stages. Matches @workgroup_size(16, 16) in the WGSL sources.
	convWorkgroupDim = 16

	// packWorkgroupSize is the 1D workgroup size of the pack stage.
	// Matches @workgroup_size(256) in pack.wgsl.
	packWorkgroupSize = 256

	// fenceTimeout is the maximum time to wait for GPU work to complete.
	fenceTimeout = 5 * time.Second
)

// boxTaps is the 3x3 box-smoothing kernel (1/8 per tap). Applying it
// twice approximates a Gaussian blur.
var boxTaps = [9]float32{
	0.125, 0.125, 0.125,
	0.125, 0.125, 0.125,
	0.125, 0.125, 0.125,
}

// laplacianTaps is the 8-connected Laplacian edge-detection kernel.
// The taps sum to zero so uniform regions map to zero.
var laplacianTaps = [9]float32{
	1, 1, 1,
	1, -8, 1,
	1, 1, 1,
}

// ConvolutionPipeline runs the per-frame filter on the GPU:
// normalize -> (box -> box, optional) -> laplacian -> pack/expand.
//
// The pipeline is built once per process via Init and reused for every
// frame. Frame dimensions are fixed at creation, so all storage buffers
// and kernel uploads happen exactly once; per-frame work is one input
// upload, a handful of bind groups, and a single submit.
type ConvolutionPipeline struct {
	mu sync.Mutex

	device hal.Device
	queue  hal.Queue

	width  int
	height int

	pipelines       [StageCount]hal.ComputePipeline
	pipelineLayouts [StageCount]hal.PipelineLayout
	bgLayouts       [StageCount]hal.BindGroupLayout
	shaderModules   [StageCount]hal.ShaderModule

	// Persistent buffers, created at Init.
	paramsBuf  hal.Buffer // uniform: width, height
	inputBuf   hal.Buffer // packed u8 grayscale, 4 per u32
	interA     hal.Buffer // f32 intermediate
	interB     hal.Buffer // f32 intermediate
	outputBuf  hal.Buffer // packed u8 result
	stagingBuf hal.Buffer // CPU-visible readback copy
	boxBuf     hal.Buffer // box kernel taps
	lapBuf     hal.Buffer // laplacian kernel taps

	// smoothing is read once at the start of each Run, so a toggle
	// mid-frame only ever affects the next frame.
	smoothing atomic.Bool

	initialized bool
}

// NewConvolutionPipeline creates a pipeline bound to the given device
// and queue for frames of the given dimensions. Call Init before Run.
func NewConvolutionPipeline(device hal.Device, queue hal.Queue, width, height int) *ConvolutionPipeline {
	return &ConvolutionPipeline{
		device: device,
		queue:  queue,
		width:  width,
		height: height,
	}
}

// pixelCount returns the number of pixels per frame.
func (p *ConvolutionPipeline) pixelCount() int { return p.width * p.height }

// packedSize returns the byte size of the packed u8 buffers (4 pixels
// per u32 word, rounded up).
func (p *ConvolutionPipeline) packedSize() uint64 {
	words := (p.pixelCount() + 3) / 4
	return uint64(words) * 4
}

// floatSize returns the byte size of the f32 intermediate buffers.
func (p *ConvolutionPipeline) floatSize() uint64 {
	return uint64(p.pixelCount()) * 4
}

// stageBindGroupLayoutEntries returns the bind group layout entries for
// a stage. These match the @group(0) @binding(N) annotations in the
// corresponding WGSL source exactly.
func stageBindGroupLayoutEntries(stage Stage) []gputypes.BindGroupLayoutEntry {
	uniform := gputypes.BindGroupLayoutEntry{
		Binding:    0,
		Visibility: gputypes.ShaderStageCompute,
		Buffer:     &gputypes.BufferBindingLayout{Type: gputypes.BufferBindingTypeUniform},
	}
	storageRO := func(binding uint32) gputypes.BindGroupLayoutEntry {
		return gputypes.BindGroupLayoutEntry{
			Binding:    binding,
			Visibility: gputypes.ShaderStageCompute,
			Buffer:     &gputypes.BufferBindingLayout{Type: gputypes.BufferBindingTypeReadOnlyStorage},
		}
	}
	storageRW := func(binding uint32) gputypes.BindGroupLayoutEntry {
		return gputypes.BindGroupLayoutEntry{
			Binding:    binding,
			Visibility: gputypes.ShaderStageCompute,
			Buffer:     &gputypes.BufferBindingLayout{Type: gputypes.BufferBindingTypeStorage},
		}
	}

	switch stage {
	case StageNormalize:
		// @binding(0) uniform params
		// @binding(1) storage(read) packed input
		// @binding(2) storage(read_write) f32 output
		return []gputypes.BindGroupLayoutEntry{uniform, storageRO(1), storageRW(2)}

	case StageConvolve3x3:
		// @binding(0) uniform params
		// @binding(1) storage(read) kernel taps
		// @binding(2) storage(read) f32 source
		// @binding(3) storage(read_write) f32 destination
		return []gputypes.BindGroupLayoutEntry{uniform, storageRO(1), storageRO(2), storageRW(3)}

	case StagePack:
		// @binding(0) uniform params
		// @binding(1) storage(read) f32 source
		// @binding(2) storage(read_write) packed output
		return []gputypes.BindGroupLayoutEntry{uniform, storageRO(1), storageRW(2)}

	case StageExpand:
		// @binding(0) uniform params
		// @binding(1) storage(read) f32 source
		// @binding(2) storage(read_write) shared RGBA f32
		return []gputypes.BindGroupLayoutEntry{uniform, storageRO(1), storageRW(2)}

	default:
		return nil
	}
}

// Init validates the shaders, creates the four compute pipelines, and
// allocates all persistent buffers including the one-time kernel and
// params uploads. Init is safe to call more than once; subsequent calls
// are no-ops.
func (p *ConvolutionPipeline) Init() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.initialized {
		return nil
	}
	if p.width <= 0 || p.height <= 0 {
		return fmt.Errorf("gpu: invalid dimensions %dx%d", p.width, p.height)
	}

	sources := stageSources()
	for i := Stage(0); i < StageCount; i++ {
		src := sources[i]
		if src == "" {
			return fmt.Errorf("gpu: missing shader source for stage %s", i)
		}

		if err := validateShader(i, src); err != nil {
			p.destroyPartialInit(i)
			return err
		}

		module, err := p.device.CreateShaderModule(&hal.ShaderModuleDescriptor{
			Label:  "conv_" + i.String(),
			Source: hal.ShaderSource{WGSL: src},
		})
		if err != nil {
			p.destroyPartialInit(i)
			return fmt.Errorf("gpu: create shader module for %s: %w", i, err)
		}
		p.shaderModules[i] = module

		entries := stageBindGroupLayoutEntries(i)
		bgLayout, err := p.device.CreateBindGroupLayout(&hal.BindGroupLayoutDescriptor{
			Label:   "conv_" + i.String() + "_bgl",
			Entries: entries,
		})
		if err != nil {
			p.destroyPartialInit(i + 1) // module was already stored
			return fmt.Errorf("gpu: create bind group layout for %s: %w", i, err)
		}
		p.bgLayouts[i] = bgLayout

		pipelineLayout, err := p.device.CreatePipelineLayout(&hal.PipelineLayoutDescriptor{
			Label:            "conv_" + i.String() + "_pl",
			BindGroupLayouts: []hal.BindGroupLayout{bgLayout},
		})
		if err != nil {
			p.destroyPartialInit(i + 1)
			return fmt.Errorf("gpu: create pipeline layout for %s: %w", i, err)
		}
		p.pipelineLayouts[i] = pipelineLayout

		pipeline, err := p.device.CreateComputePipeline(&hal.ComputePipelineDescriptor{
			Label:  "conv_" + i.String(),
			Layout: pipelineLayout,
			Compute: hal.ComputeState{
				Module:     module,
				EntryPoint: "main",
			},
		})
		if err != nil {
			p.destroyPartialInit(i + 1)
			return fmt.Errorf("gpu: create compute pipeline for %s: %w", i, err)
		}
		p.pipelines[i] = pipeline

		slogger().Debug("gpu: pipeline created",
			"stage", i.String(),
			"bindings", len(entries),
			"shader_bytes", len(src))
	}

	if err := p.createBuffers(); err != nil {
		p.destroyPartialInit(StageCount)
		return err
	}

	p.initialized = true
	slogger().Info("gpu: convolution pipeline initialized",
		"size", fmt.Sprintf("%dx%d", p.width, p.height),
		"stages", int(StageCount))
	return nil
}

// createBuffers allocates the persistent buffers and performs the
// one-time uploads: frame params and the two kernels.
func (p *ConvolutionPipeline) createBuffers() error {
	storageUpload := gputypes.BufferUsageStorage | gputypes.BufferUsageCopyDst
	storageGPU := gputypes.BufferUsageStorage
	storageOut := gputypes.BufferUsageStorage | gputypes.BufferUsageCopySrc
	readback := gputypes.BufferUsageMapRead | gputypes.BufferUsageCopyDst
	uniformUpload := gputypes.BufferUsageUniform | gputypes.BufferUsageCopyDst

	type bufSpec struct {
		target *hal.Buffer
		label  string
		size   uint64
		usage  gputypes.BufferUsage
	}
	specs := []bufSpec{
		{&p.paramsBuf, "conv_params", 8, uniformUpload},
		{&p.inputBuf, "conv_input", p.packedSize(), storageUpload},
		{&p.interA, "conv_inter_a", p.floatSize(), storageGPU},
		{&p.interB, "conv_inter_b", p.floatSize(), storageGPU},
		{&p.outputBuf, "conv_output", p.packedSize(), storageOut},
		{&p.stagingBuf, "conv_staging", p.packedSize(), readback},
		{&p.boxBuf, "conv_box_kernel", 9 * 4, storageUpload},
		{&p.lapBuf, "conv_laplacian_kernel", 9 * 4, storageUpload},
	}

	for _, s := range specs {
		buf, err := p.device.CreateBuffer(&hal.BufferDescriptor{
			Label: s.label,
			Size:  s.size,
			Usage: s.usage,
		})
		if err != nil {
			p.destroyBuffers()
			return fmt.Errorf("gpu: create %s buffer: %w", s.label, err)
		}
		*s.target = buf
	}

	params := make([]byte, 8)
	binary.LittleEndian.PutUint32(params[0:4], uint32(p.width))
	binary.LittleEndian.PutUint32(params[4:8], uint32(p.height))
	p.queue.WriteBuffer(p.paramsBuf, 0, params)

	p.queue.WriteBuffer(p.boxBuf, 0, tapsToBytes(boxTaps))
	p.queue.WriteBuffer(p.lapBuf, 0, tapsToBytes(laplacianTaps))

	slogger().Debug("gpu: buffers allocated",
		"packed_bytes", p.packedSize(),
		"float_bytes", p.floatSize())
	return nil
}

// tapsToBytes serializes kernel taps as little-endian f32 values,
// matching the WGSL storage buffer layout.
func tapsToBytes(taps [9]float32) []byte {
	buf := make([]byte, len(taps)*4)
	for i, t := range taps {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(t))
	}
	return buf
}

// destroyBuffers releases the persistent buffers.
func (p *ConvolutionPipeline) destroyBuffers() {
	destroy := func(b *hal.Buffer) {
		if *b != nil {
			p.device.DestroyBuffer(*b)
			*b = nil
		}
	}
	destroy(&p.paramsBuf)
	destroy(&p.inputBuf)
	destroy(&p.interA)
	destroy(&p.interB)
	destroy(&p.outputBuf)
	destroy(&p.stagingBuf)
	destroy(&p.boxBuf)
	destroy(&p.lapBuf)
}

// destroyPartialInit cleans up resources for stages [0, upTo) during a
// failed Init, so partial initialization never leaks.
func (p *ConvolutionPipeline) destroyPartialInit(upTo Stage) {
	for j := Stage(0); j < upTo; j++ {
		if p.pipelines[j] != nil {
			p.device.DestroyComputePipeline(p.pipelines[j])
			p.pipelines[j] = nil
		}
		if p.pipelineLayouts[j] != nil {
			p.device.DestroyPipelineLayout(p.pipelineLayouts[j])
			p.pipelineLayouts[j] = nil
		}
		if p.bgLayouts[j] != nil {
			p.device.DestroyBindGroupLayout(p.bgLayouts[j])
			p.bgLayouts[j] = nil
		}
		if p.shaderModules[j] != nil {
			p.device.DestroyShaderModule(p.shaderModules[j])
			p.shaderModules[j] = nil
		}
	}
}

// Close releases all GPU resources held by the pipeline.
func (p *ConvolutionPipeline) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.destroyBuffers()
	p.destroyPartialInit(StageCount)
	p.initialized = false
}

// SetSmoothing enables or disables the double box-smoothing pass.
// The new value takes effect with the next Run, never mid-frame.
func (p *ConvolutionPipeline) SetSmoothing(on bool) {
	p.smoothing.Store(on)
}

// Smoothing reports whether the smoothing pass is enabled.
func (p *ConvolutionPipeline) Smoothing() bool {
	return p.smoothing.Load()
}

// frameResources tracks per-frame GPU resources for cleanup.
type frameResources struct {
	device     hal.Device
	bindGroups []hal.BindGroup
	cmdBuf     hal.CommandBuffer
	fence      hal.Fence
}

func (r *frameResources) cleanup() {
	if r.fence != nil {
		r.device.DestroyFence(r.fence)
	}
	if r.cmdBuf != nil {
		r.device.FreeCommandBuffer(r.cmdBuf)
	}
	for _, g := range r.bindGroups {
		r.device.DestroyBindGroup(g)
	}
}

// pass describes one compute dispatch: which pipeline to run and which
// buffers to bind, in binding order after the params uniform.
type pass struct {
	stage   Stage
	buffers []hal.Buffer
	groupsX uint32
	groupsY uint32
}

// imagePassGroups returns the 2D workgroup counts covering the frame.
func (p *ConvolutionPipeline) imagePassGroups() (uint32, uint32) {
	gx := (uint32(p.width) + convWorkgroupDim - 1) / convWorkgroupDim
	gy := (uint32(p.height) + convWorkgroupDim - 1) / convWorkgroupDim
	return gx, gy
}

// framePasses builds the dispatch plan for one frame. The final stage
// writes to target: outputBuf for the readback path (StagePack) or a
// shared display buffer (StageExpand).
//
// Data flow: input -> interA; with smoothing, two box passes bounce
// interA -> interB -> interA; the laplacian always reads interA and
// writes interB; the final stage reads interB.
func (p *ConvolutionPipeline) framePasses(smoothing bool, finalStage Stage, target hal.Buffer) []pass {
	gx, gy := p.imagePassGroups()
	passes := []pass{
		{StageNormalize, []hal.Buffer{p.inputBuf, p.interA}, gx, gy},
	}
	if smoothing {
		passes = append(passes,
			pass{StageConvolve3x3, []hal.Buffer{p.boxBuf, p.interA, p.interB}, gx, gy},
			pass{StageConvolve3x3, []hal.Buffer{p.boxBuf, p.interB, p.interA}, gx, gy},
		)
	}
	passes = append(passes,
		pass{StageConvolve3x3, []hal.Buffer{p.lapBuf, p.interA, p.interB}, gx, gy},
	)

	switch finalStage {
	case StagePack:
		words := uint32((p.pixelCount() + 3) / 4)
		groups := (words + packWorkgroupSize - 1) / packWorkgroupSize
		passes = append(passes, pass{StagePack, []hal.Buffer{p.interB, target}, groups, 1})
	case StageExpand:
		passes = append(passes, pass{StageExpand, []hal.Buffer{p.interB, target}, gx, gy})
	}
	return passes
}

// encodePasses records the dispatch plan into a command buffer.
// copySize > 0 appends an output -> staging copy for readback.
func (p *ConvolutionPipeline) encodePasses(res *frameResources, passes []pass, copySize uint64) error {
	encoder, err := p.device.CreateCommandEncoder(&hal.CommandEncoderDescriptor{
		Label: "conv_frame",
	})
	if err != nil {
		return fmt.Errorf("gpu: create command encoder: %w", err)
	}
	if err := encoder.BeginEncoding("conv_frame"); err != nil {
		return fmt.Errorf("gpu: begin encoding: %w", err)
	}

	for _, ps := range passes {
		entries := make([]gputypes.BindGroupEntry, 0, len(ps.buffers)+1)
		entries = append(entries, gputypes.BindGroupEntry{
			Binding:  0,
			Resource: gputypes.BufferBinding{Buffer: p.paramsBuf.NativeHandle()},
		})
		for i, buf := range ps.buffers {
			entries = append(entries, gputypes.BindGroupEntry{
				Binding:  uint32(i + 1),
				Resource: gputypes.BufferBinding{Buffer: buf.NativeHandle()},
			})
		}

		bg, bgErr := p.device.CreateBindGroup(&hal.BindGroupDescriptor{
			Label:   "conv_" + ps.stage.String() + "_bg",
			Layout:  p.bgLayouts[ps.stage],
			Entries: entries,
		})
		if bgErr != nil {
			encoder.DiscardEncoding()
			return fmt.Errorf("gpu: create bind group for %s: %w", ps.stage, bgErr)
		}
		res.bindGroups = append(res.bindGroups, bg)

		cp := encoder.BeginComputePass(&hal.ComputePassDescriptor{
			Label: "conv_" + ps.stage.String(),
		})
		cp.SetPipeline(p.pipelines[ps.stage])
		cp.SetBindGroup(0, bg, nil)
		cp.Dispatch(ps.groupsX, ps.groupsY, 1)
		cp.End()
	}

	if copySize > 0 {
		encoder.CopyBufferToBuffer(p.outputBuf, p.stagingBuf, []hal.BufferCopy{
			{SrcOffset: 0, DstOffset: 0, Size: copySize},
		})
	}

	cmdBuf, err := encoder.EndEncoding()
	if err != nil {
		return fmt.Errorf("gpu: end encoding: %w", err)
	}
	res.cmdBuf = cmdBuf
	return nil
}

// submitAndWait submits the command buffer and blocks until the GPU
// signals completion or the fence times out.
func (p *ConvolutionPipeline) submitAndWait(res *frameResources) error {
	fence, err := p.device.CreateFence()
	if err != nil {
		return fmt.Errorf("gpu: create fence: %w", err)
	}
	res.fence = fence

	if err := p.queue.Submit([]hal.CommandBuffer{res.cmdBuf}, fence, 1); err != nil {
		return fmt.Errorf("gpu: submit: %w", err)
	}

	ok, err := p.device.Wait(fence, 1, fenceTimeout)
	if err != nil {
		return fmt.Errorf("gpu: wait for GPU: %w", err)
	}
	if !ok {
		return fmt.Errorf("gpu: GPU timeout after %v", fenceTimeout)
	}
	return nil
}

// Run filters one grayscale frame and writes the 8-bit result to out.
// Both slices must hold width*height bytes. Run blocks until the result
// has been read back; there is no cross-frame pipelining. Any device
// failure is returned to the caller, which should treat it as fatal.
func (p *ConvolutionPipeline) Run(gray, out []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.initialized {
		return ErrNotInitialized
	}
	if len(gray) != p.pixelCount() || len(out) != p.pixelCount() {
		return fmt.Errorf("gpu: frame size %d/%d, want %d", len(gray), len(out), p.pixelCount())
	}

	smoothing := p.smoothing.Load()

	packed := make([]byte, p.packedSize())
	copy(packed, gray)
	p.queue.WriteBuffer(p.inputBuf, 0, packed)

	res := &frameResources{device: p.device}
	defer res.cleanup()

	passes := p.framePasses(smoothing, StagePack, p.outputBuf)
	if err := p.encodePasses(res, passes, p.packedSize()); err != nil {
		return err
	}
	if err := p.submitAndWait(res); err != nil {
		return err
	}

	readback := make([]byte, p.packedSize())
	if err := p.queue.ReadBuffer(p.stagingBuf, 0, readback); err != nil {
		return fmt.Errorf("gpu: readback: %w", err)
	}
	copy(out, readback[:p.pixelCount()])

	slogger().Debug("gpu: frame filtered",
		"smoothing", smoothing,
		"passes", len(passes))
	return nil
}

// RunShared filters one grayscale frame and writes the RGBA f32 result
// directly into the shared display buffer of img. The caller must hold
// compute ownership (img.Acquire) for the duration; RunShared refuses to
// dispatch otherwise. No readback happens on this path.
func (p *ConvolutionPipeline) RunShared(gray []byte, img *SharedImage) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.initialized {
		return ErrNotInitialized
	}
	if len(gray) != p.pixelCount() {
		return fmt.Errorf("gpu: frame size %d, want %d", len(gray), p.pixelCount())
	}
	if img.Width() != p.width || img.Height() != p.height {
		return fmt.Errorf("gpu: shared image size %dx%d, want %dx%d",
			img.Width(), img.Height(), p.width, p.height)
	}
	target, err := img.computeBuffer()
	if err != nil {
		return err
	}

	smoothing := p.smoothing.Load()

	packed := make([]byte, p.packedSize())
	copy(packed, gray)
	p.queue.WriteBuffer(p.inputBuf, 0, packed)

	res := &frameResources{device: p.device}
	defer res.cleanup()

	passes := p.framePasses(smoothing, StageExpand, target)
	if err := p.encodePasses(res, passes, 0); err != nil {
		return err
	}
	if err := p.submitAndWait(res); err != nil {
		return err
	}

	slogger().Debug("gpu: frame filtered into shared image",
		"smoothing", smoothing,
		"passes", len(passes))
	return nil
}
